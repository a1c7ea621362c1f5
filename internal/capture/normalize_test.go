package capture

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geocapture-desktop/internal/apperr"
	"geocapture-desktop/internal/mapview"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89")

const sampleDataURL = "data:image/png;base64,iVBORw0KGgo="

func TestNormalizeRaw_Shapes(t *testing.T) {
	ctx := context.Background()
	pngURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)

	tests := []struct {
		name string
		raw  any
		kind Kind
		want EncodedImage
	}{
		{"plain string", sampleDataURL, KindPlainString, sampleDataURL},
		{"wrapped data struct", mapview.Screenshot{Data: sampleDataURL}, KindWrappedData, sampleDataURL},
		{"wrapped dataUrl struct", &mapview.Screenshot{DataURL: sampleDataURL}, KindWrappedDataURL, sampleDataURL},
		{"wrapped data map", map[string]any{"data": sampleDataURL}, KindWrappedData, sampleDataURL},
		{"wrapped dataUrl map", map[string]any{"dataUrl": sampleDataURL}, KindWrappedDataURL, sampleDataURL},
		{"json string", json.RawMessage(`"` + sampleDataURL + `"`), KindPlainString, sampleDataURL},
		{"json dataUrl", json.RawMessage(`{"dataUrl":"` + sampleDataURL + `"}`), KindWrappedDataURL, sampleDataURL},
		{"blob", mapview.Blob{Data: pngBytes}, KindBinaryBlob, EncodedImage(pngURL)},
		{"raw bytes", pngBytes, KindBinaryBlob, EncodedImage(pngURL)},
		{"blob in data field", map[string]any{"data": mapview.Blob{Type: "image/png", Data: pngBytes}}, KindBinaryBlob, EncodedImage(pngURL)},
		{"bare base64", base64.StdEncoding.EncodeToString(pngBytes), KindPlainString, EncodedImage(pngURL)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Decode(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, r.Kind)

			img, err := NormalizeRaw(ctx, tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, img)
		})
	}
}

func TestDecode_DataFieldWinsOverDataURL(t *testing.T) {
	r, err := Decode(map[string]any{"dataUrl": "data:image/jpeg;base64,/9j/", "data": sampleDataURL})
	require.NoError(t, err)
	assert.Equal(t, KindWrappedData, r.Kind)
	assert.Equal(t, sampleDataURL, r.Text)
}

func TestNormalizeRaw_Unrecognized(t *testing.T) {
	for name, raw := range map[string]any{
		"nil":          nil,
		"number":       42,
		"empty string": "",
		"unknown map":  map[string]any{"foo": 1},
		"json array":   json.RawMessage(`[1,2]`),
		"json object":  json.RawMessage(`{"image":"x"}`),
		"bad base64":   "data:image/png;base64,!!!!",
		"no payload":   "data:image/png;base64,",
		"not base64":   "hello world",
		"empty blob":   mapview.Blob{Type: "image/png"},
	} {
		t.Run(name, func(t *testing.T) {
			img, err := NormalizeRaw(context.Background(), raw)
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindUnrecognizedCaptureShape), "got %v", err)
			assert.Empty(t, img)
		})
	}
}

func TestEncodedImage_Split(t *testing.T) {
	img := Encode("image/jpeg", []byte{0xff, 0xd8, 0xff})
	mime, payload := img.Split()

	assert.Equal(t, "image/jpeg", mime)
	assert.Equal(t, "/9j/", payload)

	data, err := img.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xd8, 0xff}, data)
}

func TestNormalize_DeclaredMimeIsKept(t *testing.T) {
	img, err := NormalizeRaw(context.Background(), mapview.Blob{Type: "image/webp; q=1", Data: pngBytes})
	require.NoError(t, err)
	assert.Equal(t, "image/webp", img.MimeType())
}
