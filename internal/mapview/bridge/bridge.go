// Package bridge is the desktop transport between Go and the map page running
// in the Wails webview. Calls go out as "map:call" events; the page answers by
// invoking the bound App.ResolveMapCall method with the call ID.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	wailsRuntime "github.com/wailsapp/wails/v2/pkg/runtime"

	"geocapture-desktop/internal/logging"
	"geocapture-desktop/internal/mapview/rpc"
)

// CallEvent is the event name the page listens on
const CallEvent = "map:call"

// DefaultTimeout bounds a call when the caller's context has no deadline
const DefaultTimeout = 30 * time.Second

// ErrClosed is returned for calls pending when the bridge is closed
var ErrClosed = errors.New("map bridge closed")

// Emitter publishes an event to the frontend
type Emitter interface {
	Emit(name string, data ...interface{})
}

// EmitterFunc adapts a function to Emitter
type EmitterFunc func(name string, data ...interface{})

func (f EmitterFunc) Emit(name string, data ...interface{}) {
	f(name, data...)
}

// WailsEmitter emits through the Wails runtime bound to ctx
func WailsEmitter(ctx context.Context) Emitter {
	return EmitterFunc(func(name string, data ...interface{}) {
		wailsRuntime.EventsEmit(ctx, name, data...)
	})
}

// Envelope is the payload of a CallEvent
type Envelope struct {
	ID   string `json:"id"`
	Op   string `json:"op"`
	Args any    `json:"args,omitempty"`
}

type reply struct {
	result json.RawMessage
	err    error
}

// Bridge correlates outgoing calls with page replies. It implements rpc.Transport.
type Bridge struct {
	emit    Emitter
	timeout time.Duration
	log     *logrus.Entry

	mu      sync.Mutex
	pending map[string]chan reply
	closed  bool
}

var _ rpc.Transport = (*Bridge)(nil)

// New creates a bridge. A zero timeout means DefaultTimeout.
func New(emit Emitter, timeout time.Duration, log *logrus.Entry) *Bridge {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Bridge{
		emit:    emit,
		timeout: timeout,
		log:     log,
		pending: make(map[string]chan reply),
	}
}

// Call emits op to the page and waits for its reply
func (b *Bridge) Call(ctx context.Context, op string, args any) (json.RawMessage, error) {
	id := uuid.NewString()
	ch := make(chan reply, 1)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.pending[id] = ch
	b.mu.Unlock()

	defer b.forget(id)

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	b.emit.Emit(CallEvent, Envelope{ID: id, Op: op, Args: args})

	select {
	case r := <-ch:
		return r.result, r.err
	case <-ctx.Done():
		b.log.WithFields(logrus.Fields{"op": op, "id": id}).Warn("map call abandoned")
		return nil, fmt.Errorf("map call %s: %w", op, ctx.Err())
	}
}

// Resolve completes a pending call. result is the JSON text of the page's
// return value; a non-empty errMsg fails the call with an rpc.RemoteError.
func (b *Bridge) Resolve(id, result, errMsg string) error {
	b.mu.Lock()
	ch, ok := b.pending[id]
	delete(b.pending, id)
	b.mu.Unlock()

	if !ok {
		return fmt.Errorf("no pending map call %s", id)
	}

	if errMsg != "" {
		ch <- reply{err: &rpc.RemoteError{Op: id, Message: errMsg}}
		return nil
	}
	if result != "" && !json.Valid([]byte(result)) {
		ch <- reply{err: fmt.Errorf("map call %s returned invalid JSON", id)}
		return nil
	}
	ch <- reply{result: json.RawMessage(result)}
	return nil
}

// Pending returns the number of calls awaiting a reply
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Close fails every pending call with ErrClosed and rejects new ones
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, ch := range b.pending {
		ch <- reply{err: ErrClosed}
		delete(b.pending, id)
	}
}

func (b *Bridge) forget(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pending, id)
}
