// Package orchestrator runs the user-triggered operations against the map:
// capture, caption, search and result selection. Only one operation runs at
// a time; overlapping triggers are rejected, never queued.
package orchestrator

import (
	"context"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"geocapture-desktop/internal/apperr"
	"geocapture-desktop/internal/capture"
	"geocapture-desktop/internal/geo"
	"geocapture-desktop/internal/logging"
	"geocapture-desktop/internal/navigator"
)

// Operation names, used for busy errors, status events and analytics
const (
	OpCapture = "capture"
	OpCaption = "caption"
	OpSearch  = "search"
	OpSelect  = "select"
)

// Capturer is the capture pipeline
type Capturer interface {
	Capture(ctx context.Context) (*capture.CaptureReport, error)
	RequestCaption(ctx context.Context) (*capture.CaptionReport, error)
}

// Searcher submits a query and shows its results
type Searcher interface {
	Submit(ctx context.Context, query string) ([]geo.Result, error)
}

// Selector flies to a result and highlights it
type Selector interface {
	Select(ctx context.Context, r geo.Result) (*navigator.Trace, error)
}

// Results looks up the current result set
type Results interface {
	Result(id string) (geo.Result, bool)
}

// Tracker records analytics events
type Tracker interface {
	Track(event string, props map[string]interface{})
}

// Deps are the collaborators of an Orchestrator. Notifier and Tracker may be nil.
type Deps struct {
	Capturer Capturer
	Searcher Searcher
	Selector Selector
	Results  Results
	Notifier Notifier
	Tracker  Tracker
	Log      *logrus.Entry
}

// Orchestrator serializes the user operations
type Orchestrator struct {
	busy    sync.Mutex
	stateMu sync.Mutex
	running string

	capturer Capturer
	searcher Searcher
	selector Selector
	results  Results
	notify   Notifier
	tracker  Tracker
	log      *logrus.Entry
}

// New creates an orchestrator
func New(deps Deps) *Orchestrator {
	log := deps.Log
	if log == nil {
		log = logging.Discard()
	}
	notify := deps.Notifier
	if notify == nil {
		notify = NotifierFunc(func(string, interface{}) {})
	}
	return &Orchestrator{
		capturer: deps.Capturer,
		searcher: deps.Searcher,
		selector: deps.Selector,
		results:  deps.Results,
		notify:   notify,
		tracker:  deps.Tracker,
		log:      log,
	}
}

// Running returns the operation in progress, or ""
func (o *Orchestrator) Running() string {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	return o.running
}

// begin claims the busy flag for op. The returned func releases it and puts
// op's button back to idle.
func (o *Orchestrator) begin(op string) (func(), error) {
	if !o.busy.TryLock() {
		running := o.Running()
		o.log.WithFields(logrus.Fields{"op": op, "running": running}).Info("operation rejected, another is running")
		return nil, apperr.Busy(op, running)
	}
	o.stateMu.Lock()
	o.running = op
	o.stateMu.Unlock()
	o.notify.Notify(EventButton, ButtonState{Op: op, Label: busyLabels[op], Busy: true})

	return func() {
		o.stateMu.Lock()
		o.running = ""
		o.stateMu.Unlock()
		o.busy.Unlock()
		o.notify.Notify(EventButton, ButtonState{Op: op, Label: idleLabels[op]})
	}, nil
}

func (o *Orchestrator) track(event string, props map[string]interface{}) {
	if o.tracker != nil {
		o.tracker.Track(event, props)
	}
}

func (o *Orchestrator) finish(op string, err error, failed []string) {
	status := Status{Op: op, OK: err == nil, Failed: failed}
	if err != nil {
		status.Message = err.Error()
		status.Kind = apperr.KindOf(err).String()
		o.log.WithField("op", op).WithError(err).Warn("operation failed")
	} else if len(failed) > 0 {
		status.Message = "completed with failed steps: " + strings.Join(failed, ", ")
	}
	o.notify.Notify(EventStatus, status)
}

// Capture takes, stores and fans out a screenshot
func (o *Orchestrator) Capture(ctx context.Context) (*capture.CaptureReport, error) {
	done, err := o.begin(OpCapture)
	if err != nil {
		return nil, err
	}
	defer done()

	report, err := o.capturer.Capture(ctx)
	if err != nil {
		o.finish(OpCapture, err, nil)
		return nil, err
	}
	failed := report.Failed()
	o.finish(OpCapture, nil, failed)
	o.track("capture_completed", map[string]interface{}{
		"failed_steps": failed,
		"saved":        report.SavedPath != "",
	})
	return report, nil
}

// RequestCaption captures the view and asks for a caption only
func (o *Orchestrator) RequestCaption(ctx context.Context) (*capture.CaptionReport, error) {
	done, err := o.begin(OpCaption)
	if err != nil {
		return nil, err
	}
	defer done()

	report, err := o.capturer.RequestCaption(ctx)
	if err != nil {
		o.finish(OpCaption, err, nil)
		return nil, err
	}
	var failed []string
	if report.Err != nil {
		failed = []string{"caption"}
	}
	o.finish(OpCaption, nil, failed)
	o.track("caption_requested", map[string]interface{}{"ok": report.Err == nil})
	return report, nil
}

// SubmitSearch runs a query and publishes its results
func (o *Orchestrator) SubmitSearch(ctx context.Context, query string) ([]geo.Result, error) {
	done, err := o.begin(OpSearch)
	if err != nil {
		return nil, err
	}
	defer done()

	results, err := o.searcher.Submit(ctx, query)
	if results == nil {
		results = []geo.Result{}
	}
	// a new result set, or none, always drops the selection
	o.notify.Notify(EventResults, results)
	o.notify.Notify(EventSelection, Selection{})
	o.finish(OpSearch, err, nil)
	if err != nil {
		return nil, err
	}
	o.track("search_submitted", map[string]interface{}{"results": len(results)})
	return results, nil
}

// SelectResult flies to the result with id and highlights it
func (o *Orchestrator) SelectResult(ctx context.Context, id string) (*navigator.Trace, error) {
	done, err := o.begin(OpSelect)
	if err != nil {
		return nil, err
	}
	defer done()

	r, ok := o.results.Result(id)
	if !ok {
		err := apperr.Validation(OpSelect, "unknown result "+id)
		o.finish(OpSelect, err, nil)
		return nil, err
	}

	trace, err := o.selector.Select(ctx, r)
	if err != nil {
		o.finish(OpSelect, err, nil)
		return trace, err
	}
	for _, w := range trace.Warnings {
		o.log.WithField("id", id).WithError(w).Debug("selection step degraded")
	}
	o.notify.Notify(EventSelection, Selection{ID: id, Result: &r})
	o.finish(OpSelect, nil, nil)
	o.track("result_selected", map[string]interface{}{"warnings": len(trace.Warnings)})
	return trace, nil
}
