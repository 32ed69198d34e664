package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helixhub/internal/stream"
)

func refs(displayNumbers ...string) []MatterRef {
	out := make([]MatterRef, len(displayNumbers))
	for i, d := range displayNumbers {
		out[i] = MatterRef{MatterID: "id-" + d, DisplayNumber: d}
	}
	return out
}

func start(d string) stream.Event {
	return stream.Event{Type: stream.EventTypeMatterStart, DisplayNumber: d}
}

func succeeded(d string) stream.Event {
	return stream.Event{Type: stream.EventTypeMatterComplete, DisplayNumber: d, Success: true}
}

func skipped(d, msg string) stream.Event {
	return stream.Event{Type: stream.EventTypeMatterComplete, DisplayNumber: d, Skipped: true, Message: msg}
}

func failed(d, errText string) stream.Event {
	return stream.Event{Type: stream.EventTypeMatterComplete, DisplayNumber: d, Error: errText}
}

func TestInitialize(t *testing.T) {
	table := Initialize(refs("M-1", "M-2", "M-1"))

	assert.Equal(t, 2, table.Len())
	entries := table.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "M-1", entries[0].DisplayNumber)
	assert.Equal(t, "M-2", entries[1].DisplayNumber)
	for _, e := range entries {
		assert.Equal(t, StatusPending, e.Status)
	}
	assert.Nil(t, table.Tally())
	assert.False(t, table.Done())
}

func TestInitialize_Empty(t *testing.T) {
	table := Initialize(nil)
	assert.Equal(t, 0, table.Len())
	assert.True(t, table.Done())
}

func TestApply(t *testing.T) {
	tests := []struct {
		name       string
		before     []stream.Event
		event      stream.Event
		wantStatus Status
		wantError  string
		wantMsg    string
	}{
		{
			name:       "matter start moves pending to updating",
			event:      start("M-1"),
			wantStatus: StatusUpdating,
		},
		{
			name:       "success",
			before:     []stream.Event{start("M-1")},
			event:      succeeded("M-1"),
			wantStatus: StatusSuccess,
		},
		{
			name:       "skipped wins over success",
			before:     []stream.Event{start("M-1")},
			event:      stream.Event{Type: stream.EventTypeMatterComplete, DisplayNumber: "M-1", Success: true, Skipped: true, Message: "already sent"},
			wantStatus: StatusSkipped,
			wantMsg:    "already sent",
		},
		{
			name:       "neither flag means failed",
			before:     []stream.Event{start("M-1")},
			event:      failed("M-1", "Clio timeout"),
			wantStatus: StatusFailed,
			wantError:  "Clio timeout",
		},
		{
			name:       "error text dropped for non-failures",
			event:      stream.Event{Type: stream.EventTypeMatterComplete, DisplayNumber: "M-1", Success: true, Error: "ignored"},
			wantStatus: StatusSuccess,
		},
		{
			name:       "complete without start",
			event:      succeeded("M-1"),
			wantStatus: StatusSuccess,
		},
		{
			name:       "start after complete does not regress",
			before:     []stream.Event{start("M-1"), succeeded("M-1")},
			event:      start("M-1"),
			wantStatus: StatusSuccess,
		},
		{
			name:       "duplicate complete overwrites",
			before:     []stream.Event{start("M-1"), failed("M-1", "first try")},
			event:      succeeded("M-1"),
			wantStatus: StatusSuccess,
		},
		{
			name:       "progress leaves table unchanged",
			event:      stream.Event{Type: stream.EventTypeProgress, Step: "Connecting"},
			wantStatus: StatusPending,
		},
		{
			name:       "complete leaves table unchanged",
			event:      stream.Event{Type: stream.EventTypeComplete, Tally: &stream.Tally{Failed: 1}},
			wantStatus: StatusPending,
		},
		{
			name:       "error leaves table unchanged",
			event:      stream.Event{Type: stream.EventTypeError, Error: "boom"},
			wantStatus: StatusPending,
		},
		{
			name:       "unknown type leaves table unchanged",
			event:      stream.Event{Type: "heartbeat", DisplayNumber: "M-1"},
			wantStatus: StatusPending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := Fold(Initialize(refs("M-1")), tt.before)
			table = Apply(table, tt.event)

			e, ok := table.Entry("M-1")
			require.True(t, ok)
			assert.Equal(t, tt.wantStatus, e.Status)
			assert.Equal(t, tt.wantError, e.Error)
			assert.Equal(t, tt.wantMsg, e.Message)
		})
	}
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	original := Initialize(refs("M-1"))
	updated := Apply(original, start("M-1"))

	before, _ := original.Entry("M-1")
	after, _ := updated.Entry("M-1")
	assert.Equal(t, StatusPending, before.Status)
	assert.Equal(t, StatusUpdating, after.Status)
}

func TestApply_UnknownTargetIgnored(t *testing.T) {
	table := Initialize(refs("M-1"))

	assert.NotPanics(t, func() {
		table = Apply(table, start("M-404"))
		table = Apply(table, succeeded("M-404"))
	})

	assert.Equal(t, 1, table.Len())
	_, ok := table.Entry("M-404")
	assert.False(t, ok)
}

func TestApply_ZeroTableIgnoresEvents(t *testing.T) {
	var table Table
	table = Apply(table, start("M-1"))
	table = Apply(table, succeeded("M-1"))
	assert.Equal(t, 0, table.Len())
}

func TestApply_RunningTally(t *testing.T) {
	table := Initialize(refs("M-1", "M-2"))

	ev := succeeded("M-1")
	ev.Tally = &stream.Tally{Success: 1, Total: 2}
	table = Apply(table, ev)

	require.NotNil(t, table.Tally())
	assert.Equal(t, stream.Tally{Success: 1, Total: 2}, *table.Tally())

	// A complete without a tally keeps the last one.
	table = Apply(table, succeeded("M-2"))
	assert.Equal(t, stream.Tally{Success: 1, Total: 2}, *table.Tally())
}

func TestFold_EndToEndScenario(t *testing.T) {
	events := []stream.Event{
		start("M-1"),
		succeeded("M-1"),
		start("M-2"),
		skipped("M-2", "No rate change"),
		start("M-3"),
		failed("M-3", "Clio timeout"),
		{Type: stream.EventTypeComplete, Tally: &stream.Tally{Success: 1, Failed: 1, Skipped: 1, Total: 3}},
	}

	table := Fold(Initialize(refs("M-1", "M-2", "M-3")), events)

	m1, _ := table.Entry("M-1")
	m2, _ := table.Entry("M-2")
	m3, _ := table.Entry("M-3")
	assert.Equal(t, StatusSuccess, m1.Status)
	assert.Equal(t, StatusSkipped, m2.Status)
	assert.Equal(t, "No rate change", m2.Message)
	assert.Equal(t, StatusFailed, m3.Status)
	assert.Equal(t, "Clio timeout", m3.Error)

	assert.True(t, table.Done())
	assert.Equal(t, Summary{Success: 1, Failed: 1, Skipped: 1, Total: 3}, table.Summary())
}

func TestSummary_CountsInFlight(t *testing.T) {
	table := Fold(Initialize(refs("A", "B", "C")), []stream.Event{start("A")})

	assert.Equal(t, Summary{Pending: 2, Updating: 1, Total: 3}, table.Summary())
}

func TestStatus_Rank(t *testing.T) {
	assert.Less(t, StatusPending.Rank(), StatusUpdating.Rank())
	assert.Less(t, StatusUpdating.Rank(), StatusSuccess.Rank())
	assert.Equal(t, StatusSuccess.Rank(), StatusFailed.Rank())
	assert.Equal(t, StatusSuccess.Rank(), StatusSkipped.Rank())
	assert.Equal(t, -1, Status("bogus").Rank())

	assert.True(t, StatusSkipped.Terminal())
	assert.False(t, StatusUpdating.Terminal())
}
