// Package stream decodes the line-delimited progress stream returned by the
// Helix rate-change endpoints.
//
// The backend answers a streaming action with newline-separated records of the
// form "data: <json>". Records arrive in network chunks that may split a line at
// any byte. [Parser] buffers partial lines, decodes complete ones into [Event]
// values, and skips anything it cannot decode.
//
// Key types:
//   - [Parser]: incremental chunk decoder
//   - [StreamEvent]: raw JSON record as sent by the server
//   - [Event]: parsed record with a normalized [Tally]
package stream

// StreamEvent is a raw record from the progress stream.
//
// The same struct carries every event variant; which fields are populated
// depends on Type. Most callers should use [Event] instead.
type StreamEvent struct {
	Type          string       `json:"type"`
	Step          string       `json:"step,omitempty"`
	Message       string       `json:"message,omitempty"`
	DisplayNumber string       `json:"displayNumber,omitempty"`
	Success       *bool        `json:"success,omitempty"`
	Skipped       bool         `json:"skipped,omitempty"`
	Error         string       `json:"error,omitempty"`
	Progress      *Tally       `json:"progress,omitempty"`
	ClioUpdates   *ClioUpdates `json:"clio_updates,omitempty"`
}

// Tally counts per-matter outcomes for a run.
type Tally struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Total   int `json:"total"`
}

// ClioUpdates is the older tally shape some endpoints still send on their
// final record. It has no total.
type ClioUpdates struct {
	Success int      `json:"success"`
	Failed  int      `json:"failed"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors,omitempty"`
}

// EventType discriminates stream records.
type EventType string

const (
	// EventTypeProgress carries a human-readable step label only.
	EventTypeProgress EventType = "progress"

	// EventTypeMatterStart marks one matter as being updated.
	EventTypeMatterStart EventType = "matter-start"

	// EventTypeMatterComplete reports one matter's outcome.
	EventTypeMatterComplete EventType = "matter-complete"

	// EventTypeComplete ends the run with a final tally.
	EventTypeComplete EventType = "complete"

	// EventTypeError ends the run without a tally.
	EventTypeError EventType = "error"
)

// Known reports whether t is one of the event types this package understands.
// Unknown types still decode; consumers ignore them.
func (t EventType) Known() bool {
	switch t {
	case EventTypeProgress, EventTypeMatterStart, EventTypeMatterComplete,
		EventTypeComplete, EventTypeError:
		return true
	}
	return false
}

// Event is a parsed stream record.
//
// Event is created by [NewEventFromStream] and emitted by [Parser.Feed].
type Event struct {
	// Raw is the record as decoded from the wire.
	Raw *StreamEvent

	Type EventType

	// Step is the display label for progress events. It falls back to the
	// record's message when the server did not send a step.
	Step string

	// DisplayNumber identifies the matter for matter-start and matter-complete.
	DisplayNumber string

	// Success is the matter-complete success flag. A missing flag decodes as false.
	Success bool

	// Skipped is the matter-complete skip flag. It takes precedence over Success.
	Skipped bool

	// Error is the failure text of a matter-complete or error record.
	Error string

	Message string

	// Tally is the normalized running or final tally, nil when the record had none.
	Tally *Tally
}

// NewEventFromStream creates an [Event] from a raw [StreamEvent].
func NewEventFromStream(raw *StreamEvent) Event {
	e := Event{
		Raw:           raw,
		Type:          EventType(raw.Type),
		DisplayNumber: raw.DisplayNumber,
		Skipped:       raw.Skipped,
		Error:         raw.Error,
		Message:       raw.Message,
		Tally:         NormalizeTally(raw.Progress, raw.ClioUpdates),
	}
	if raw.Success != nil {
		e.Success = *raw.Success
	}

	switch e.Type {
	case EventTypeProgress:
		e.Step = raw.Step
		if e.Step == "" {
			e.Step = raw.Message
		}
	case EventTypeError:
		if e.Error == "" {
			e.Error = raw.Message
		}
	}

	return e
}

// NormalizeTally folds the two historical tally shapes into one.
//
// A progress tally passes through unchanged. A clio_updates tally gains a
// total equal to the sum of its counts. Nil is returned when neither is set.
func NormalizeTally(progress *Tally, clio *ClioUpdates) *Tally {
	if progress != nil {
		t := *progress
		return &t
	}
	if clio != nil {
		return &Tally{
			Success: clio.Success,
			Failed:  clio.Failed,
			Skipped: clio.Skipped,
			Total:   clio.Success + clio.Failed + clio.Skipped,
		}
	}
	return nil
}

// IsTerminal returns true for complete and error events.
func (e Event) IsTerminal() bool {
	return e.Type == EventTypeComplete || e.Type == EventTypeError
}

// IsMatterEvent returns true for events that target a single matter.
func (e Event) IsMatterEvent() bool {
	return e.Type == EventTypeMatterStart || e.Type == EventTypeMatterComplete
}
