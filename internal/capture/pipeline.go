// Package capture turns the live map view into an encoded image and fans it
// out to the image sink, the upload endpoint, the captioner and local disk.
package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"

	"geocapture-desktop/internal/apperr"
	"geocapture-desktop/internal/logging"
	"geocapture-desktop/internal/mapview"
	"geocapture-desktop/internal/utils/naming"
)

// Caption placeholders shown when no usable caption is available
const (
	NoCaptionPlaceholder     = "No caption returned"
	CaptionFailedPlaceholder = "Caption request failed"
)

// DefaultQuality is the screenshot quality requested from the view
const DefaultQuality = 90

// FilenamePrefix starts every saved capture filename
const FilenamePrefix = "geocapture"

// Session is the map view plus its liveness check
type Session interface {
	mapview.View
	Available() bool
}

// Sink receives the UI-facing results of a capture
type Sink interface {
	SetImage(img EncodedImage)
	SetCaption(text string)
}

// Uploader sends a capture to the upload endpoint
type Uploader interface {
	Upload(ctx context.Context, filename string, img EncodedImage) error
}

// Captioner turns a capture into descriptive text
type Captioner interface {
	Caption(ctx context.Context, img EncodedImage) (string, error)
}

// Saver writes capture bytes locally and returns where they went. An empty
// path with a nil error means the user cancelled.
type Saver interface {
	Save(ctx context.Context, filename, mime string, data []byte) (string, error)
}

// Options selects the capture fan-out steps
type Options struct {
	Quality  int
	Upload   bool
	Caption  bool
	Download bool
}

// DefaultOptions enables every step
func DefaultOptions() Options {
	return Options{Quality: DefaultQuality, Upload: true, Caption: true, Download: true}
}

// CaptureReport describes one Capture run. Step errors are recorded and
// never stop later steps.
type CaptureReport struct {
	Image      EncodedImage
	Caption    string
	SavedPath  string
	UploadErr  error
	CaptionErr error
	SaveErr    error
}

// Failed lists the best-effort steps that failed
func (r *CaptureReport) Failed() []string {
	var failed []string
	if r.UploadErr != nil {
		failed = append(failed, "upload")
	}
	if r.CaptionErr != nil {
		failed = append(failed, "caption")
	}
	if r.SaveErr != nil {
		failed = append(failed, "download")
	}
	return failed
}

// CaptionReport describes one RequestCaption run
type CaptionReport struct {
	Image   EncodedImage
	Caption string
	Err     error
}

// Pipeline runs captures against a session
type Pipeline struct {
	session  Session
	guard    *Guard
	sink     Sink
	uploader Uploader
	saver    Saver
	opts     Options
	log      *logrus.Entry
	now      func() time.Time

	capMu     sync.RWMutex
	captioner Captioner
}

// Deps are the collaborators of a Pipeline. Nil collaborators skip their step.
type Deps struct {
	Session   Session
	Results   ResultsLayer
	Sink      Sink
	Uploader  Uploader
	Captioner Captioner
	Saver     Saver
	Log       *logrus.Entry
}

// NewPipeline creates a pipeline
func NewPipeline(deps Deps, opts Options) *Pipeline {
	log := deps.Log
	if log == nil {
		log = logging.Discard()
	}
	if opts.Quality <= 0 {
		opts.Quality = DefaultQuality
	}
	return &Pipeline{
		session:   deps.Session,
		guard:     NewGuard(deps.Session, deps.Results, log),
		sink:      deps.Sink,
		uploader:  deps.Uploader,
		captioner: deps.Captioner,
		saver:     deps.Saver,
		opts:      opts,
		log:       log,
		now:       time.Now,
	}
}

// SetCaptioner swaps the captioner, e.g. after settings change. Runs already
// in flight keep the captioner they started with.
func (p *Pipeline) SetCaptioner(c Captioner) {
	p.capMu.Lock()
	defer p.capMu.Unlock()
	p.captioner = c
}

func (p *Pipeline) currentCaptioner() Captioner {
	p.capMu.RLock()
	defer p.capMu.RUnlock()
	return p.captioner
}

// Capture takes a screenshot with overlays suppressed, stores it, then
// uploads, captions and saves it. Only screenshot and normalization failures
// abort.
func (p *Pipeline) Capture(ctx context.Context) (*CaptureReport, error) {
	captioner := p.currentCaptioner()
	img, err := p.shoot(ctx, "capture", RestoreVisibility)
	if err != nil {
		return nil, err
	}
	report := &CaptureReport{Image: img}
	p.setImage(img)

	if p.opts.Upload && p.uploader != nil {
		report.UploadErr = p.upload(ctx, img)
	}
	if p.opts.Caption && captioner != nil {
		report.Caption, report.CaptionErr = p.caption(ctx, captioner, img)
		p.setCaption(report.Caption)
	}
	if p.opts.Download && p.saver != nil {
		report.SavedPath, report.SaveErr = p.save(ctx, img)
	}

	p.log.WithFields(logrus.Fields{
		"mime":   img.MimeType(),
		"failed": report.Failed(),
		"saved":  report.SavedPath,
	}).Info("capture finished")
	return report, nil
}

// RequestCaption takes a screenshot and shows its caption. Removed result
// markers are regenerated afterwards.
func (p *Pipeline) RequestCaption(ctx context.Context) (*CaptionReport, error) {
	captioner := p.currentCaptioner()
	img, err := p.shoot(ctx, "caption", RegenerateMarkers)
	if err != nil {
		return nil, err
	}
	p.setImage(img)

	report := &CaptionReport{Image: img}
	if captioner == nil {
		report.Caption = CaptionFailedPlaceholder
		report.Err = apperr.CapabilityUnavailable("caption")
	} else {
		report.Caption, report.Err = p.caption(ctx, captioner, img)
	}
	p.setCaption(report.Caption)
	return report, nil
}

// shoot runs screenshot and normalization inside the suppression guard
func (p *Pipeline) shoot(ctx context.Context, op string, policy RestorePolicy) (EncodedImage, error) {
	if p.session == nil || !p.session.Available() {
		p.log.WithField("op", op).Warn("map view not ready")
		return "", apperr.CapabilityUnavailable(op)
	}

	img, err := RunSuppressed(ctx, p.guard, policy, func(ctx context.Context) (EncodedImage, error) {
		raw, err := p.session.TakeScreenshot(ctx, mapview.ScreenshotOptions{Quality: p.opts.Quality})
		if err != nil {
			return "", fmt.Errorf("failed to take screenshot: %w", err)
		}
		if isEmpty(raw) {
			return "", apperr.New(apperr.KindUnrecognizedCaptureShape, op, "screenshot returned no data")
		}
		return NormalizeRaw(ctx, raw)
	})
	if err != nil {
		p.log.WithError(err).WithField("op", op).Warn("screenshot failed")
		return "", err
	}
	return img, nil
}

func isEmpty(raw any) bool {
	switch v := raw.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []byte:
		return len(v) == 0
	}
	return false
}

func (p *Pipeline) upload(ctx context.Context, img EncodedImage) error {
	name := naming.UploadFilename(extensionFor(img.MimeType()))
	if err := p.uploader.Upload(ctx, name, img); err != nil {
		p.log.WithError(err).WithField("step", "upload").Warn("capture step failed")
		return err
	}
	p.log.WithField("filename", name).Debug("capture uploaded")
	return nil
}

// caption always returns display text; err reports why it is a placeholder
func (p *Pipeline) caption(ctx context.Context, c Captioner, img EncodedImage) (string, error) {
	text, err := c.Caption(ctx, img)
	if err != nil {
		p.log.WithError(err).WithField("step", "caption").Warn("capture step failed")
		return CaptionFailedPlaceholder, err
	}
	if text == "" {
		return NoCaptionPlaceholder, nil
	}
	return text, nil
}

func (p *Pipeline) save(ctx context.Context, img EncodedImage) (string, error) {
	data, err := img.Bytes()
	if err != nil {
		err = fmt.Errorf("failed to decode capture payload: %w", err)
		p.log.WithError(err).WithField("step", "download").Warn("capture step failed")
		return "", err
	}
	mime := img.MimeType()
	path, err := p.saver.Save(ctx, p.filename(ctx, mime), mime, data)
	if err != nil {
		p.log.WithError(err).WithField("step", "download").Warn("capture step failed")
		return "", err
	}
	return path, nil
}

// filename names a capture after the camera position when it is known
func (p *Pipeline) filename(ctx context.Context, mime string) string {
	ext := extensionFor(mime)
	cam, err := p.session.Camera(ctx)
	if err != nil {
		return naming.FallbackFilename(FilenamePrefix, p.now(), ext)
	}
	return naming.CaptureFilename(FilenamePrefix, cam.Center, cam.Zoom, p.now(), ext)
}

func extensionFor(mime string) string {
	if m := mimetype.Lookup(mime); m != nil && m.Extension() != "" {
		return m.Extension()
	}
	return ".png"
}

func (p *Pipeline) setImage(img EncodedImage) {
	if p.sink != nil {
		p.sink.SetImage(img)
	}
}

func (p *Pipeline) setCaption(text string) {
	if p.sink != nil {
		p.sink.SetCaption(text)
	}
}
