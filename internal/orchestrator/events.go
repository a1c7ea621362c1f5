package orchestrator

import (
	"geocapture-desktop/internal/capture"
	"geocapture-desktop/internal/geo"
)

// Events sent to the UI
const (
	EventImage     = "capture:image"
	EventCaption   = "capture:caption"
	EventButton    = "ui:button"
	EventResults   = "search:results"
	EventSelection = "selection:changed"
	EventStatus    = "status"
)

var idleLabels = map[string]string{
	OpCapture: "Capture",
	OpCaption: "Caption",
	OpSearch:  "Search",
	OpSelect:  "Select",
}

var busyLabels = map[string]string{
	OpCapture: "Capturing...",
	OpCaption: "Captioning...",
	OpSearch:  "Searching...",
	OpSelect:  "Flying...",
}

// Notifier delivers UI events
type Notifier interface {
	Notify(event string, payload interface{})
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(event string, payload interface{})

func (f NotifierFunc) Notify(event string, payload interface{}) {
	f(event, payload)
}

// ButtonState is the label of an operation's trigger
type ButtonState struct {
	Op    string `json:"op"`
	Label string `json:"label"`
	Busy  bool   `json:"busy"`
}

// Status reports how an operation ended
type Status struct {
	Op      string   `json:"op"`
	OK      bool     `json:"ok"`
	Kind    string   `json:"kind,omitempty"`
	Message string   `json:"message,omitempty"`
	Failed  []string `json:"failed,omitempty"`
}

// Selection is the current selected result; an empty ID means none
type Selection struct {
	ID     string      `json:"id"`
	Result *geo.Result `json:"result,omitempty"`
}

// Sink forwards pipeline output to the UI
type Sink struct {
	n Notifier
}

var _ capture.Sink = Sink{}

// NewSink creates a capture sink publishing through n
func NewSink(n Notifier) Sink {
	return Sink{n: n}
}

func (s Sink) SetImage(img capture.EncodedImage) {
	s.n.Notify(EventImage, img.String())
}

func (s Sink) SetCaption(text string) {
	s.n.Notify(EventCaption, text)
}
