package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"helixhub/internal/config"
	"helixhub/internal/logging"
	"helixhub/internal/output"
	"helixhub/internal/progress"
	"helixhub/internal/status"
	"helixhub/internal/stream"
	"helixhub/internal/workflow"
)

// StatusUpdate represents a status update for testing.
type StatusUpdate struct {
	ClientID  string
	NewStatus status.Status
}

// MockRunner is a scripted lifecycle.StreamRunner. Like the real runner it
// refuses a matter-scoped request with no targets.
type MockRunner struct {
	// Attempts holds the events for each call in order. Calls past the end
	// replay the last entry.
	Attempts [][]stream.Event
	// Err is returned with no result when set.
	Err error
	// Requests records every request received.
	Requests []workflow.Request
}

func (m *MockRunner) Run(ctx context.Context, req workflow.Request, targets []progress.MatterRef, onEvent workflow.EventCallback) (*workflow.Result, error) {
	if req.MatterScoped && len(targets) == 0 {
		return nil, workflow.ErrNoTargets
	}
	m.Requests = append(m.Requests, req)
	if m.Err != nil {
		return nil, m.Err
	}

	var events []stream.Event
	if n := len(m.Attempts); n > 0 {
		i := len(m.Requests) - 1
		if i >= n {
			i = n - 1
		}
		events = m.Attempts[i]
	}

	result := &workflow.Result{Request: req, Table: progress.Initialize(targets), Streamed: true}
	for _, ev := range events {
		result.Table = progress.Apply(result.Table, ev)
		result.State = result.State.Observe(ev)
		if onEvent != nil {
			onEvent(ev)
		}
	}
	return result, nil
}

// MockNoticeWriter records notice updates.
type MockNoticeWriter struct {
	Updates     []StatusUpdate
	DateUpdates []string
}

func (m *MockNoticeWriter) UpdateStatus(clientID string, newStatus status.Status) error {
	m.Updates = append(m.Updates, StatusUpdate{ClientID: clientID, NewStatus: newStatus})
	return nil
}

func (m *MockNoticeWriter) UpdateCCLDate(clientID, date string) error {
	m.DateUpdates = append(m.DateUpdates, clientID+"="+date)
	return nil
}

// createNoticeFile writes a notice store in tmpDir and returns its path.
func createNoticeFile(t *testing.T, tmpDir string, content string) string {
	t.Helper()

	path := filepath.Join(tmpDir, status.WorkspacePath)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create notice directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write notice file: %v", err)
	}
	return path
}

// testConfig returns defaults with a test identity.
func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.API.BaseURL = "http://api.test"
	cfg.Identity = config.IdentityConfig{Email: "jo@example.com", Initials: "JO"}
	return cfg
}

// newTestApp builds an App over a real notice reader with mock runner and writer.
func newTestApp(t *testing.T, noticesYAML string, runner *MockRunner) (*App, *MockNoticeWriter, *bytes.Buffer) {
	t.Helper()
	t.Setenv(status.PathEnvVar, "")

	tmpDir := t.TempDir()
	createNoticeFile(t, tmpDir, noticesYAML)

	writer := &MockNoticeWriter{}
	buf := &bytes.Buffer{}
	printer := output.NewPrinterWithWriter(buf)
	printer.SetColor(false)

	app := &App{
		Config:       testConfig(),
		NoticeReader: status.NewReader(tmpDir),
		NoticeWriter: writer,
		Runner:       runner,
		Printer:      printer,
		Logger:       logging.Discard(),
	}
	return app, writer, buf
}

const testNotices = `notices:
  ACME:
    status: pending
    matters:
      - matter_id: "1001"
        display_number: ACME-0001
      - matter_id: "1002"
        display_number: ACME-0002
  GLOBEX:
    status: sent
    matters:
      - matter_id: "2001"
        display_number: GLX-0001
  EMPTY:
    status: pending
`
