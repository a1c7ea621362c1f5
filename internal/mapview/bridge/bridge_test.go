package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geocapture-desktop/internal/mapview"
	"geocapture-desktop/internal/mapview/rpc"
)

// pageStub answers every emitted call on a goroutine, like the webview would
type pageStub struct {
	mu     sync.Mutex
	seen   []Envelope
	answer func(env Envelope) (string, string)
	bridge *Bridge
}

func (p *pageStub) Emit(name string, data ...interface{}) {
	env := data[0].(Envelope)
	p.mu.Lock()
	p.seen = append(p.seen, env)
	p.mu.Unlock()
	if p.answer == nil {
		return
	}
	result, errMsg := p.answer(env)
	go func() { _ = p.bridge.Resolve(env.ID, result, errMsg) }()
}

func TestBridge_RoundTrip(t *testing.T) {
	page := &pageStub{answer: func(env Envelope) (string, string) {
		return `{"center":{"lat":10,"lng":20},"zoom":7}`, ""
	}}
	b := New(page, time.Second, nil)
	page.bridge = b

	view := rpc.New(b)
	cam, err := view.Camera(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7.0, cam.Zoom)
	assert.Equal(t, 10.0, cam.Center.Lat)

	require.Len(t, page.seen, 1)
	assert.Equal(t, "camera", page.seen[0].Op)
	assert.NotEmpty(t, page.seen[0].ID)
	assert.Equal(t, 0, b.Pending())
}

func TestBridge_RemoteUnsupported(t *testing.T) {
	page := &pageStub{answer: func(env Envelope) (string, string) {
		return "", rpc.UnsupportedMessage
	}}
	b := New(page, time.Second, nil)
	page.bridge = b

	err := rpc.New(b).HideLayer(context.Background(), "results")
	assert.ErrorIs(t, err, mapview.ErrUnsupported)
}

func TestBridge_TimeoutLeavesNothingPending(t *testing.T) {
	page := &pageStub{}
	b := New(page, 20*time.Millisecond, nil)
	page.bridge = b

	_, err := b.Call(context.Background(), "camera", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, b.Pending())

	assert.Error(t, b.Resolve(page.seen[0].ID, "{}", ""))
}

func TestBridge_CloseFailsPendingCalls(t *testing.T) {
	page := &pageStub{}
	b := New(page, time.Second, nil)
	page.bridge = b

	done := make(chan error, 1)
	go func() {
		_, err := b.Call(context.Background(), "layers", nil)
		done <- err
	}()

	require.Eventually(t, func() bool { return b.Pending() == 1 }, time.Second, 5*time.Millisecond)
	b.Close()

	assert.ErrorIs(t, <-done, ErrClosed)

	_, err := b.Call(context.Background(), "layers", nil)
	assert.ErrorIs(t, err, ErrClosed)
}
