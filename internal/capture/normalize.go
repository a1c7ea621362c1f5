package capture

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/tidwall/gjson"

	"geocapture-desktop/internal/apperr"
	"geocapture-desktop/internal/mapview"
)

// Kind identifies which screenshot shape a Result was decoded from
type Kind int

const (
	KindPlainString Kind = iota + 1
	KindWrappedData
	KindWrappedDataURL
	KindBinaryBlob
)

func (k Kind) String() string {
	switch k {
	case KindPlainString:
		return "plain_string"
	case KindWrappedData:
		return "wrapped_data"
	case KindWrappedDataURL:
		return "wrapped_data_url"
	case KindBinaryBlob:
		return "binary_blob"
	default:
		return "unknown"
	}
}

// BlobReader is anything that yields image bytes with a declared mime type.
// mapview.Blob satisfies it.
type BlobReader interface {
	MimeType() string
	ReadAll(ctx context.Context) ([]byte, error)
}

// Result is a decoded screenshot value. Text is set for the three string
// kinds, Blob for KindBinaryBlob.
type Result struct {
	Kind Kind
	Text string
	Blob BlobReader
}

// Decode classifies a raw screenshot value. The first matching shape wins:
// plain string, string "data" field, string "dataUrl" field, then blob-like
// value or blob-like "data" field.
func Decode(raw any) (Result, error) {
	switch v := raw.(type) {
	case nil:
		return Result{}, apperr.UnrecognizedCaptureShape("<nil>")
	case string:
		if v == "" {
			return Result{}, apperr.UnrecognizedCaptureShape("empty string")
		}
		return Result{Kind: KindPlainString, Text: v}, nil
	case mapview.Screenshot:
		return decodeWrapped(v.Data, v.DataURL)
	case *mapview.Screenshot:
		if v == nil {
			return Result{}, apperr.UnrecognizedCaptureShape("<nil>")
		}
		return decodeWrapped(v.Data, v.DataURL)
	case json.RawMessage:
		return decodeJSON([]byte(v))
	case []byte:
		if looksLikeJSON(v) {
			return decodeJSON(v)
		}
		return decodeBlob(mapview.Blob{Data: v})
	case map[string]any:
		return decodeMap(v)
	case BlobReader:
		return Result{Kind: KindBinaryBlob, Blob: v}, nil
	}
	return Result{}, apperr.UnrecognizedCaptureShape(fmt.Sprintf("%T", raw))
}

func decodeWrapped(data, dataURL string) (Result, error) {
	switch {
	case data != "":
		return Result{Kind: KindWrappedData, Text: data}, nil
	case dataURL != "":
		return Result{Kind: KindWrappedDataURL, Text: dataURL}, nil
	}
	return Result{}, apperr.UnrecognizedCaptureShape("screenshot without data")
}

func decodeMap(m map[string]any) (Result, error) {
	if s, ok := m["data"].(string); ok && s != "" {
		return Result{Kind: KindWrappedData, Text: s}, nil
	}
	if s, ok := m["dataUrl"].(string); ok && s != "" {
		return Result{Kind: KindWrappedDataURL, Text: s}, nil
	}
	switch d := m["data"].(type) {
	case []byte:
		return decodeBlob(mapview.Blob{Data: d})
	case BlobReader:
		return Result{Kind: KindBinaryBlob, Blob: d}, nil
	}
	return Result{}, apperr.UnrecognizedCaptureShape("object without data or dataUrl")
}

func decodeJSON(doc []byte) (Result, error) {
	parsed := gjson.ParseBytes(doc)
	switch {
	case parsed.Type == gjson.String:
		return Decode(parsed.String())
	case parsed.IsObject():
		if data := parsed.Get("data"); data.Type == gjson.String && data.String() != "" {
			return Result{Kind: KindWrappedData, Text: data.String()}, nil
		}
		if dataURL := parsed.Get("dataUrl"); dataURL.Type == gjson.String && dataURL.String() != "" {
			return Result{Kind: KindWrappedDataURL, Text: dataURL.String()}, nil
		}
		return Result{}, apperr.UnrecognizedCaptureShape("JSON object without data or dataUrl")
	}
	return Result{}, apperr.UnrecognizedCaptureShape("JSON " + parsed.Type.String())
}

func decodeBlob(b mapview.Blob) (Result, error) {
	if len(b.Data) == 0 {
		return Result{}, apperr.UnrecognizedCaptureShape("empty blob")
	}
	return Result{Kind: KindBinaryBlob, Blob: b}, nil
}

func looksLikeJSON(b []byte) bool {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '"') {
		return false
	}
	return gjson.ValidBytes(trimmed)
}

// Normalize turns a decoded Result into an EncodedImage
func Normalize(ctx context.Context, r Result) (EncodedImage, error) {
	switch r.Kind {
	case KindPlainString, KindWrappedData, KindWrappedDataURL:
		return normalizeText(r.Text)
	case KindBinaryBlob:
		if r.Blob == nil {
			return "", apperr.UnrecognizedCaptureShape("blob result without reader")
		}
		data, err := r.Blob.ReadAll(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to read screenshot blob: %w", err)
		}
		if len(data) == 0 {
			return "", apperr.UnrecognizedCaptureShape("empty blob")
		}
		return Encode(detectMime(r.Blob.MimeType(), data), data), nil
	}
	return "", apperr.UnrecognizedCaptureShape(r.Kind.String())
}

// NormalizeRaw decodes and normalizes a raw screenshot value
func NormalizeRaw(ctx context.Context, raw any) (EncodedImage, error) {
	r, err := Decode(raw)
	if err != nil {
		return "", err
	}
	return Normalize(ctx, r)
}

// normalizeText accepts a data URL as is, and wraps bare base64 with the
// sniffed mime type
func normalizeText(s string) (EncodedImage, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		return ParseEncodedImage(s)
	}
	data, err := decodeBase64(s)
	if err != nil || len(data) == 0 {
		return "", apperr.UnrecognizedCaptureShape("string that is neither a data URL nor base64")
	}
	return Encode(detectMime("", data), data), nil
}

func detectMime(declared string, data []byte) string {
	declared = strings.TrimSpace(strings.SplitN(declared, ";", 2)[0])
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	sniffed := mimetype.Detect(data).String()
	return strings.TrimSpace(strings.SplitN(sniffed, ";", 2)[0])
}

// EncodedImage is a base64 data URL: data:<mime>;base64,<payload>
type EncodedImage string

// Encode builds an EncodedImage from raw bytes
func Encode(mime string, data []byte) EncodedImage {
	return EncodedImage("data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data))
}

// ParseEncodedImage validates a data URL with a base64 payload
func ParseEncodedImage(s string) (EncodedImage, error) {
	img := EncodedImage(s)
	header, payload, ok := strings.Cut(s, ",")
	if !ok || !strings.HasPrefix(header, "data:") || !strings.HasSuffix(header, ";base64") {
		return "", apperr.UnrecognizedCaptureShape("malformed data URL")
	}
	if payload == "" {
		return "", apperr.UnrecognizedCaptureShape("data URL without payload")
	}
	if _, err := decodeBase64(payload); err != nil {
		return "", apperr.Wrap(apperr.KindUnrecognizedCaptureShape, "normalize", fmt.Errorf("invalid base64 payload: %w", err))
	}
	return img, nil
}

// Split returns the mime type and base64 payload, splitting on the first ','
func (e EncodedImage) Split() (mime, payload string) {
	header, payload, _ := strings.Cut(string(e), ",")
	mime = strings.TrimPrefix(header, "data:")
	mime = strings.TrimSuffix(mime, ";base64")
	return mime, payload
}

// MimeType returns the declared mime type
func (e EncodedImage) MimeType() string {
	mime, _ := e.Split()
	return mime
}

// Bytes decodes the payload
func (e EncodedImage) Bytes() ([]byte, error) {
	_, payload := e.Split()
	return decodeBase64(payload)
}

func (e EncodedImage) String() string {
	return string(e)
}

func decodeBase64(s string) ([]byte, error) {
	if data, err := base64.StdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}
