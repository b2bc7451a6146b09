package engine

import (
	"time"

	"github.com/andresmejia3/sentinel-home/internal/types"
)

// Action is one side effect decided by the engine. The concrete types are
// Capture, LogVisit, Announce and RaiseAlert; sinks switch on them.
type Action interface {
	Kind() string
	Event() string
}

// Capture asks the evidence sink to store the frame. Visit is persisted by the sink
// once it knows the image URL.
type Capture struct {
	EventID      string
	Key          string
	Frame        []byte // JPEG of the full frame
	Box          types.Box
	FilenameHint string
	Visit        LogVisit
}

// LogVisit is an audit record of a sighting. Name is empty for unknown faces.
type LogVisit struct {
	EventID        string
	Name           string
	Classification string
	Notes          string
	Distance       float64
	Embedding      types.Embedding
	ImageURL       string
	At             time.Time
}

// Announce is a spoken message.
type Announce struct {
	EventID string
	Text    string
}

// RaiseAlert is a persisted alert. ImageURL is filled in by the dispatcher when the
// same decision also captured evidence.
type RaiseAlert struct {
	EventID   string
	AlertType string
	Message   string
	ImageURL  string
	At        time.Time
}

func (Capture) Kind() string    { return "capture" }
func (LogVisit) Kind() string   { return "log_visit" }
func (Announce) Kind() string   { return "announce" }
func (RaiseAlert) Kind() string { return "raise_alert" }

func (a Capture) Event() string    { return a.EventID }
func (a LogVisit) Event() string   { return a.EventID }
func (a Announce) Event() string   { return a.EventID }
func (a RaiseAlert) Event() string { return a.EventID }
