package workflow

import (
	"fmt"

	"helixhub/internal/stream"
)

// RunState is the run-level view of one streaming action.
//
// RunState is owned by the [Runner]; the parser and reducer never hold it.
// [RunState.Observe] is pure and returns the next state.
type RunState struct {
	// IsStreaming is true between the first response byte and end of stream.
	IsStreaming bool

	// CurrentStep is the latest step label for display.
	CurrentStep string

	// Complete is true once a complete event has been seen.
	Complete bool

	// AllSucceeded is true only after a complete event whose tally has zero
	// failures, and only if no error event was seen.
	AllSucceeded bool

	// Errored is true once an error event has been seen. It never resets
	// within a run.
	Errored bool

	// ErrorMessage is the text of the last error event.
	ErrorMessage string

	// Summary is the normalized final tally from the complete event.
	Summary *stream.Tally
}

// Observe returns the state after ev.
func (s RunState) Observe(ev stream.Event) RunState {
	switch ev.Type {
	case stream.EventTypeProgress:
		if ev.Step != "" {
			s.CurrentStep = ev.Step
		}

	case stream.EventTypeMatterStart:
		if ev.DisplayNumber != "" {
			s.CurrentStep = fmt.Sprintf("Updating %s", ev.DisplayNumber)
		}

	case stream.EventTypeComplete:
		s.Complete = true
		s.Summary = ev.Tally
		s.AllSucceeded = !s.Errored && ev.Tally != nil && ev.Tally.Failed == 0

	case stream.EventTypeError:
		s.Errored = true
		s.AllSucceeded = false
		s.ErrorMessage = ev.Error
		if s.ErrorMessage == "" {
			s.ErrorMessage = "stream reported an error"
		}
	}
	return s
}

// ShouldCommit is the single gate every caller uses before persisting the
// result of a run: the run must have completed, never errored, and reported
// a normalized tally with zero failures.
func ShouldCommit(s RunState) bool {
	return s.Complete && !s.Errored && s.Summary != nil && s.Summary.Failed == 0
}
