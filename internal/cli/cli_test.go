package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helixhub/internal/lifecycle"
	"helixhub/internal/logging"
	"helixhub/internal/output"
	"helixhub/internal/status"
	"helixhub/internal/stream"
	"helixhub/internal/workflow"
)

func allSucceeded(displayNumbers ...string) []stream.Event {
	var events []stream.Event
	for _, dn := range displayNumbers {
		events = append(events,
			stream.Event{Type: stream.EventTypeMatterStart, DisplayNumber: dn},
			stream.Event{Type: stream.EventTypeMatterComplete, DisplayNumber: dn, Success: true},
		)
	}
	n := len(displayNumbers)
	return append(events, stream.Event{
		Type:  stream.EventTypeComplete,
		Tally: &stream.Tally{Success: n, Total: n},
	})
}

func oneFailed() []stream.Event {
	return []stream.Event{
		{Type: stream.EventTypeMatterComplete, DisplayNumber: "ACME-0001", Success: true},
		{Type: stream.EventTypeMatterComplete, DisplayNumber: "ACME-0002", Error: "matter locked"},
		{Type: stream.EventTypeComplete, Tally: &stream.Tally{Success: 1, Failed: 1, Total: 2}},
	}
}

func execute(app *App, args ...string) error {
	rootCmd := NewRootCommand(app)
	outBuf := &bytes.Buffer{}
	rootCmd.SetOut(outBuf)
	rootCmd.SetErr(outBuf)
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func assertExitCode(t *testing.T, err error, want int) {
	t.Helper()
	if want == 0 {
		assert.NoError(t, err)
		return
	}
	require.Error(t, err)
	code, ok := IsExitError(err)
	require.True(t, ok, "error should be an ExitError, got %v", err)
	assert.Equal(t, want, code)
}

func TestOperationCommands(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		attempts    [][]stream.Event
		runnerErr   error
		wantCode    int
		wantUpdates []StatusUpdate
		wantDates   []string
		wantCalls   int
		wantOutput  []string
	}{
		{
			name:        "mark-sent commits on zero failures",
			args:        []string{"mark-sent", "ACME"},
			attempts:    [][]stream.Event{allSucceeded("ACME-0001", "ACME-0002")},
			wantUpdates: []StatusUpdate{{ClientID: "ACME", NewStatus: status.StatusSent}},
			wantCalls:   1,
			wantOutput:  []string{"● mark-sent ACME (2 matters)", "✓ ACME-0002", "2 succeeded", "[Done]", "ACME is now sent"},
		},
		{
			name:        "mark-na commits not-applicable",
			args:        []string{"mark-na", "ACME"},
			attempts:    [][]stream.Event{allSucceeded("ACME-0001", "ACME-0002")},
			wantUpdates: []StatusUpdate{{ClientID: "ACME", NewStatus: status.StatusNotApplicable}},
			wantCalls:   1,
		},
		{
			name:        "undo reverts sent",
			args:        []string{"undo", "GLOBEX"},
			attempts:    [][]stream.Event{allSucceeded("GLX-0001")},
			wantUpdates: []StatusUpdate{{ClientID: "GLOBEX", NewStatus: status.StatusPending}},
			wantCalls:   1,
		},
		{
			name:       "partial failure exits 2 without commit",
			args:       []string{"mark-sent", "ACME"},
			attempts:   [][]stream.Event{oneFailed()},
			wantCode:   2,
			wantCalls:  1,
			wantOutput: []string{"✗ ACME-0002 matter locked", "1 of 2 matters failed", "Server: 1 succeeded | 1 failed | 0 skipped of 2", "[Retry]"},
		},
		{
			name:       "stream without complete exits 2",
			args:       []string{"mark-sent", "ACME"},
			attempts:   [][]stream.Event{{{Type: stream.EventTypeMatterStart, DisplayNumber: "ACME-0001"}}},
			wantCode:   2,
			wantCalls:  1,
			wantOutput: []string{"stream ended before completion", "2 unfinished"},
		},
		{
			name:       "error event exits 2",
			args:       []string{"mark-sent", "ACME"},
			attempts:   [][]stream.Event{{{Type: stream.EventTypeError, Error: "Clio unavailable"}}},
			wantCode:   2,
			wantCalls:  1,
			wantOutput: []string{"Clio unavailable"},
		},
		{
			name:        "retry recovers from a partial run",
			args:        []string{"mark-sent", "ACME", "--retry", "2"},
			attempts:    [][]stream.Event{oneFailed(), allSucceeded("ACME-0001", "ACME-0002")},
			wantUpdates: []StatusUpdate{{ClientID: "ACME", NewStatus: status.StatusSent}},
			wantCalls:   2,
			wantOutput:  []string{"! retrying (2/3)", "[Done]"},
		},
		{
			name:      "retries exhausted exits 2",
			args:      []string{"mark-sent", "ACME", "--retry", "1"},
			attempts:  [][]stream.Event{oneFailed()},
			wantCode:  2,
			wantCalls: 2,
		},
		{
			name:       "rejected request exits 1",
			args:       []string{"mark-sent", "ACME"},
			runnerErr:  fmt.Errorf("mark-sent: %w: status 409", workflow.ErrRequestRejected),
			wantCode:   1,
			wantCalls:  1,
			wantOutput: []string{"request rejected", "[Close]"},
		},
		{
			name:       "invalid transition exits 1 without calling the server",
			args:       []string{"mark-sent", "GLOBEX"},
			wantCode:   1,
			wantOutput: []string{"operation not allowed from current status", "[Close]"},
		},
		{
			name:       "unknown client exits 1",
			args:       []string{"undo", "UMBRELLA"},
			wantCode:   1,
			wantOutput: []string{"notice not found"},
		},
		{
			name:       "no matters exits 1",
			args:       []string{"mark-sent", "EMPTY"},
			wantCode:   1,
			wantOutput: []string{"no matters targeted"},
		},
		{
			name:      "ccl-date records the date",
			args:      []string{"ccl-date", "GLOBEX", "2026-05-01"},
			attempts:  [][]stream.Event{allSucceeded("GLX-0001")},
			wantDates: []string{"GLOBEX=2026-05-01"},
			wantCalls: 1,
			wantOutput: []string{
				"GLOBEX CCL date set to 2026-05-01",
			},
		},
		{
			name:       "ccl-date rejects a bad date",
			args:       []string{"ccl-date", "ACME", "05/01/2026"},
			wantCode:   1,
			wantOutput: []string{"invalid ccl date"},
		},
		{
			name:       "ccl-date dry run still checks the date",
			args:       []string{"ccl-date", "ACME", "notadate", "--dry-run"},
			wantCode:   1,
			wantOutput: []string{"invalid ccl date", "[Close]"},
		},
		{
			name:       "dry run does not call the server",
			args:       []string{"undo", "GLOBEX", "--dry-run"},
			wantOutput: []string{"Dry run: undo", "sent → pending", "POST http://api.test/api/rate-changes/GLOBEX/undo", "○ GLX-0001"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &MockRunner{Attempts: tt.attempts, Err: tt.runnerErr}
			app, writer, buf := newTestApp(t, testNotices, runner)

			err := execute(app, tt.args...)

			assertExitCode(t, err, tt.wantCode)
			assert.Equal(t, tt.wantUpdates, writer.Updates)
			assert.Equal(t, tt.wantDates, writer.DateUpdates)
			assert.Len(t, runner.Requests, tt.wantCalls)
			for _, want := range tt.wantOutput {
				assert.Contains(t, buf.String(), want)
			}
			if tt.wantCode == 1 && len(runner.Requests) == 0 {
				assert.NotContains(t, buf.String(), "Dry run")
			}
		})
	}
}

func TestOperationCommand_RequestBody(t *testing.T) {
	runner := &MockRunner{Attempts: [][]stream.Event{allSucceeded("GLX-0001")}}
	app, _, _ := newTestApp(t, testNotices, runner)

	require.NoError(t, execute(app, "ccl-date", "GLOBEX", "2026-05-01"))

	require.Len(t, runner.Requests, 1)
	req := runner.Requests[0]
	assert.Equal(t, "http://api.test/api/rate-changes/GLOBEX/ccl-date", req.URL)
	assert.Equal(t, "POST", req.Method)
	body, ok := req.Body.(lifecycle.RequestBody)
	require.True(t, ok)
	assert.Equal(t, "GLOBEX", body.ClientID)
	assert.Equal(t, "jo@example.com", body.UserEmail)
	assert.Equal(t, "JO", body.UserInitials)
	assert.Equal(t, "2026-05-01", body.CCLDate)
	require.Len(t, body.Matters, 1)
	assert.Equal(t, "2001", body.Matters[0].MatterID)
}

func TestOperationCommand_MissingIdentity(t *testing.T) {
	runner := &MockRunner{}
	app, _, buf := newTestApp(t, testNotices, runner)
	app.Config.Identity.Email = ""

	err := execute(app, "mark-sent", "ACME")

	assertExitCode(t, err, 1)
	assert.Contains(t, buf.String(), "user identity is not configured")
	assert.Empty(t, runner.Requests)
}

func TestOperationCommand_UsageErrors(t *testing.T) {
	tests := [][]string{
		{"mark-sent"},
		{"mark-sent", "A", "B"},
		{"ccl-date", "ACME"},
		{"mark-sent", "ACME", "--retry", "-1"},
	}

	for _, args := range tests {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			app, _, _ := newTestApp(t, testNotices, &MockRunner{})

			err := execute(app, args...)

			require.Error(t, err)
			_, ok := IsExitError(err)
			assert.False(t, ok, "usage errors are plain errors mapped to exit 1")
		})
	}
}

func TestStatusCommand(t *testing.T) {
	t.Run("lists every client", func(t *testing.T) {
		app, _, buf := newTestApp(t, testNotices, &MockRunner{})

		require.NoError(t, execute(app, "status"))

		out := buf.String()
		assert.Contains(t, out, "ACME")
		assert.Contains(t, out, "GLOBEX")
		assert.Contains(t, out, "EMPTY")
		assert.Less(t, strings.Index(out, "ACME"), strings.Index(out, "EMPTY"))
		assert.Less(t, strings.Index(out, "EMPTY"), strings.Index(out, "GLOBEX"))
	})

	t.Run("shows one client", func(t *testing.T) {
		app, _, buf := newTestApp(t, testNotices, &MockRunner{})

		require.NoError(t, execute(app, "status", "ACME"))

		out := buf.String()
		assert.Contains(t, out, "○ ACME-0001 (1001)")
		assert.NotContains(t, out, "GLOBEX")
	})

	t.Run("unknown client", func(t *testing.T) {
		app, _, _ := newTestApp(t, testNotices, &MockRunner{})
		assertExitCode(t, execute(app, "status", "UMBRELLA"), 1)
	})
}

// TestEndToEnd_StreamingServer drives the real runner and notice store
// against an httptest server.
func TestEndToEnd_StreamingServer(t *testing.T) {
	t.Setenv(status.PathEnvVar, "")

	var gotBody lifecycle.RequestBody
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "text/event-stream")
		lines := []string{
			`data: {"type":"progress","step":"Updating matters"}`,
			`data: {"type":"matter-start","displayNumber":"ACME-0001"}`,
			`data: {"type":"matter-complete","displayNumber":"ACME-0001","success":true}`,
			`garbage that is skipped`,
			`data: {"type":"matter-complete","displayNumber":"ACME-0002","success":false,"skipped":true}`,
			`data: {"type":"complete","clio_updates":{"success":1,"failed":0,"skipped":1}}`,
		}
		_, _ = w.Write([]byte(strings.Join(lines, "\n") + "\n"))
	}))
	t.Cleanup(srv.Close)

	tmpDir := t.TempDir()
	path := createNoticeFile(t, tmpDir, testNotices)

	cfg := testConfig()
	cfg.API.BaseURL = srv.URL
	cfg.API.Token = "secret"
	cfg.Notices.Path = path

	buf := &bytes.Buffer{}
	printer := output.NewPrinterWithWriter(buf)
	printer.SetColor(false)
	app := &App{Config: cfg, Printer: printer, Logger: logging.Discard()}

	require.NoError(t, execute(app, "mark-sent", "ACME"))

	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "ACME", gotBody.ClientID)
	assert.Len(t, gotBody.Matters, 2)

	notice, err := status.NewReaderWithPath(tmpDir, path).GetNotice("ACME")
	require.NoError(t, err)
	assert.Equal(t, status.StatusSent, notice.Status)

	out := buf.String()
	assert.Contains(t, out, "→ Updating matters")
	assert.Contains(t, out, "– ACME-0002")
	assert.Contains(t, out, "[Done]")
}

func TestEndToEnd_ManifestRouting(t *testing.T) {
	tmpDir := t.TempDir()
	manifestPath := filepath.Join(tmpDir, "transitions.csv")
	require.NoError(t, os.WriteFile(manifestPath, []byte("operation,from_status,next_status\nmark-sent,pending,sent\n"), 0644))

	app, _, buf := newTestApp(t, testNotices, &MockRunner{})
	app.Config.Transitions.ManifestPath = manifestPath

	err := execute(app, "undo", "GLOBEX")

	assertExitCode(t, err, 1)
	assert.Contains(t, buf.String(), "unknown operation")
}

func TestRunWithConfig_UnknownCommand(t *testing.T) {
	oldArgs := os.Args
	t.Cleanup(func() { os.Args = oldArgs })
	os.Args = []string{"helix", "explode"}

	result := RunWithConfig(testConfig())

	assert.Equal(t, 1, result.ExitCode)
	assert.Error(t, result.Err)
}
