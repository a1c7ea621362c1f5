// Package headless drives the embedded map page in headless Chrome so the
// capture and selection flows can run without the desktop shell.
package headless

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"

	"geocapture-desktop/internal/logging"
	"geocapture-desktop/internal/mapview"
	"geocapture-desktop/internal/mapview/rpc"
)

// Options configures the browser
type Options struct {
	Headless     bool
	NoSandbox    bool
	WindowWidth  int
	WindowHeight int
	ReadyTimeout time.Duration
	CallTimeout  time.Duration
}

// DefaultOptions returns a 1280x800 headless browser
func DefaultOptions() Options {
	return Options{
		Headless:     true,
		WindowWidth:  1280,
		WindowHeight: 800,
		ReadyTimeout: 30 * time.Second,
		CallTimeout:  30 * time.Second,
	}
}

// Browser owns one Chrome process with a single tab
type Browser struct {
	opts          Options
	log           *logrus.Entry
	tabCtx        context.Context
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
}

// Launch starts Chrome. Close must be called to release it.
func Launch(opts Options, log *logrus.Entry) (*Browser, error) {
	if log == nil {
		log = logging.Discard()
	}
	allocatorOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("no-sandbox", opts.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(opts.WindowWidth, opts.WindowHeight),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOpts...)
	tabCtx, browserCancel := chromedp.NewContext(allocCtx)

	startCtx, cancel := context.WithTimeout(tabCtx, opts.ReadyTimeout)
	defer cancel()
	if err := chromedp.Run(startCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	log.WithFields(logrus.Fields{"headless": opts.Headless, "width": opts.WindowWidth, "height": opts.WindowHeight}).
		Info("browser started")

	return &Browser{
		opts:          opts,
		log:           log,
		tabCtx:        tabCtx,
		allocCancel:   allocCancel,
		browserCancel: browserCancel,
	}, nil
}

// Close shuts the browser down
func (b *Browser) Close() {
	b.browserCancel()
	b.allocCancel()
}

// Open navigates to the map page and waits until it reports ready
func (b *Browser) Open(ctx context.Context, url string) (*View, error) {
	runCtx, cancel := b.bind(ctx, b.opts.ReadyTimeout)
	defer cancel()

	err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.Poll(`window.geocapture && window.geocapture.ready === true`, nil,
			chromedp.WithPollingInterval(100*time.Millisecond)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open map page %s: %w", url, err)
	}
	b.log.WithField("url", url).Info("map page ready")

	return &View{View: rpc.New(&transport{b: b}), b: b}, nil
}

// bind derives a context from the tab that is also cancelled with ctx.
// Cancelling it aborts the action without closing the tab.
func (b *Browser) bind(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithTimeout(b.tabCtx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

// View is the page's map view. Screenshots come from the DevTools protocol
// instead of the page renderer.
type View struct {
	*rpc.View
	b *Browser
}

var _ mapview.View = (*View)(nil)

// TakeScreenshot captures the viewport as PNG bytes wrapped in a mapview.Blob
// with no declared type; the normalizer sniffs it.
func (v *View) TakeScreenshot(ctx context.Context, opts mapview.ScreenshotOptions) (any, error) {
	runCtx, cancel := v.b.bind(ctx, v.b.opts.CallTimeout)
	defer cancel()

	var buf []byte
	if err := chromedp.Run(runCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	if len(buf) == 0 {
		return nil, nil
	}
	return mapview.Blob{Data: buf}, nil
}

// pageReply is what window.geocapture.call resolves to
type pageReply struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

type transport struct {
	b *Browser
}

func (t *transport) Call(ctx context.Context, op string, args any) (json.RawMessage, error) {
	argJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s args: %w", op, err)
	}
	opJSON, _ := json.Marshal(op)
	expr := fmt.Sprintf(`window.geocapture.call(%s, %s)`, opJSON, argJSON)

	runCtx, cancel := t.b.bind(ctx, t.b.opts.CallTimeout)
	defer cancel()

	var raw []byte
	err = chromedp.Run(runCtx, chromedp.Evaluate(expr, &raw, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
	if err != nil {
		return nil, fmt.Errorf("map call %s: %w", op, err)
	}

	var reply pageReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, fmt.Errorf("failed to decode %s reply: %w", op, err)
	}
	if !reply.OK {
		return nil, &rpc.RemoteError{Op: op, Message: reply.Error}
	}
	return reply.Result, nil
}
