// Package progress tracks per-matter outcomes during one streaming action.
//
// A [Table] holds exactly one [Entry] per targeted matter for the lifetime of
// a run. [Apply] is a pure transition function: it returns a new Table and
// never mutates its input, so folding the same events over the same targets
// always yields the same table.
//
// Status only moves forward:
//
//	pending -> updating -> success | failed | skipped
//
// A repeated matter-complete for the same matter overwrites the earlier
// outcome. Events naming a matter outside the table are ignored.
package progress

import (
	"helixhub/internal/stream"
)

// MatterRef identifies one billable matter targeted by a run.
type MatterRef struct {
	MatterID      string `json:"matter_id" yaml:"matter_id"`
	DisplayNumber string `json:"display_number" yaml:"display_number"`
}

// Status is the state of one matter within a run.
type Status string

const (
	StatusPending  Status = "pending"
	StatusUpdating Status = "updating"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusSkipped  Status = "skipped"
)

// Rank orders statuses along the forward path. Terminal statuses share a rank.
func (s Status) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusUpdating:
		return 1
	case StatusSuccess, StatusFailed, StatusSkipped:
		return 2
	}
	return -1
}

// Terminal returns true for success, failed and skipped.
func (s Status) Terminal() bool {
	return s.Rank() == 2
}

// Entry is one matter's progress.
type Entry struct {
	DisplayNumber string

	Status Status

	// Error is set only when Status is failed.
	Error string

	// Message is free-text detail from the server, such as a skip reason.
	Message string
}

// Summary counts entries by status.
type Summary struct {
	Pending  int
	Updating int
	Success  int
	Failed   int
	Skipped  int
	Total    int
}

// Table is the per-matter status table for one run.
//
// The zero value is an empty table. Use [Initialize] to create one.
type Table struct {
	order   []string
	entries map[string]Entry
	tally   *stream.Tally
}

// Initialize creates a table with every target pending. Targets are kept in
// the given order; a repeated display number yields a single entry.
func Initialize(targets []MatterRef) Table {
	t := Table{
		order:   make([]string, 0, len(targets)),
		entries: make(map[string]Entry, len(targets)),
	}
	for _, target := range targets {
		if _, ok := t.entries[target.DisplayNumber]; ok {
			continue
		}
		t.order = append(t.order, target.DisplayNumber)
		t.entries[target.DisplayNumber] = Entry{
			DisplayNumber: target.DisplayNumber,
			Status:        StatusPending,
		}
	}
	return t
}

// Apply returns the table that results from applying ev to t.
//
// progress, complete, error and unrecognized events return t unchanged; they
// only affect run-level state.
func Apply(t Table, ev stream.Event) Table {
	switch ev.Type {
	case stream.EventTypeMatterStart:
		current, ok := t.entries[ev.DisplayNumber]
		if !ok || current.Status != StatusPending {
			return t
		}
		next := t.clone()
		current.Status = StatusUpdating
		next.entries[ev.DisplayNumber] = current
		return next

	case stream.EventTypeMatterComplete:
		current, ok := t.entries[ev.DisplayNumber]
		if !ok {
			return t
		}
		next := t.clone()
		current.Status = ResolveOutcome(ev)
		current.Message = ev.Message
		current.Error = ""
		if current.Status == StatusFailed {
			current.Error = ev.Error
		}
		next.entries[ev.DisplayNumber] = current
		if ev.Tally != nil {
			tally := *ev.Tally
			next.tally = &tally
		}
		return next
	}
	return t
}

// Fold applies events to t in order.
func Fold(t Table, events []stream.Event) Table {
	for _, ev := range events {
		t = Apply(t, ev)
	}
	return t
}

// ResolveOutcome picks a matter-complete status: skipped, then success, else failed.
func ResolveOutcome(ev stream.Event) Status {
	switch {
	case ev.Skipped:
		return StatusSkipped
	case ev.Success:
		return StatusSuccess
	default:
		return StatusFailed
	}
}

func (t Table) clone() Table {
	next := Table{
		order:   t.order, // never mutated after Initialize
		entries: make(map[string]Entry, len(t.entries)),
		tally:   t.tally,
	}
	for k, v := range t.entries {
		next.entries[k] = v
	}
	return next
}

// Len returns the number of tracked matters.
func (t Table) Len() int {
	return len(t.order)
}

// Entry returns the entry for a display number.
func (t Table) Entry(displayNumber string) (Entry, bool) {
	e, ok := t.entries[displayNumber]
	return e, ok
}

// Entries returns all entries in target order.
func (t Table) Entries() []Entry {
	out := make([]Entry, len(t.order))
	for i, key := range t.order {
		out[i] = t.entries[key]
	}
	return out
}

// Tally returns the most recent tally carried by a matter-complete event,
// or nil if none has been seen.
func (t Table) Tally() *stream.Tally {
	if t.tally == nil {
		return nil
	}
	tally := *t.tally
	return &tally
}

// Summary counts the table's entries by status.
func (t Table) Summary() Summary {
	s := Summary{Total: len(t.order)}
	for _, e := range t.entries {
		switch e.Status {
		case StatusPending:
			s.Pending++
		case StatusUpdating:
			s.Updating++
		case StatusSuccess:
			s.Success++
		case StatusFailed:
			s.Failed++
		case StatusSkipped:
			s.Skipped++
		}
	}
	return s
}

// Done returns true when every entry has a terminal status.
func (t Table) Done() bool {
	for _, e := range t.entries {
		if !e.Status.Terminal() {
			return false
		}
	}
	return true
}
