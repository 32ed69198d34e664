// Package workflow runs one streaming rate-change action end to end.
//
// A [Runner] issues the HTTP request, feeds response chunks to a
// [stream.Parser], folds each event into a [progress.Table] and a [RunState],
// and reports every event to the caller as it arrives. The Runner never
// persists anything; callers decide what to commit with [ShouldCommit].
//
// Key types:
//   - [Runner] drives a single request/stream lifecycle
//   - [Request] describes the HTTP call for one operation
//   - [Result] carries the final table and run state
package workflow

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"helixhub/internal/progress"
	"helixhub/internal/stream"
)

// Sentinel errors for streaming actions.
var (
	// ErrNoTargets is returned when a matter-scoped request has no matters.
	ErrNoTargets = errors.New("no matters targeted")

	// ErrRequestFailed wraps transport errors before any response arrived.
	ErrRequestFailed = errors.New("request failed")

	// ErrRequestRejected wraps non-2xx responses. Nothing was streamed.
	ErrRequestRejected = errors.New("request rejected")

	// ErrInvalidResponse wraps a non-streaming response that could not be decoded.
	ErrInvalidResponse = errors.New("invalid response")

	// ErrStreamInterrupted wraps read errors after streaming began.
	ErrStreamInterrupted = errors.New("stream interrupted")

	// ErrStreamStalled is returned when no chunk arrived within the idle timeout.
	ErrStreamStalled = errors.New("stream stalled")
)

const (
	maxErrorBody    = 1 << 20
	maxFallbackBody = 1 << 20
	defaultReadSize = 32 * 1024
)

// Request describes the HTTP call for one streaming action.
type Request struct {
	// Operation names the action for logs and errors (e.g. "mark-sent").
	Operation string

	// Method defaults to POST.
	Method string

	URL string

	// Body is encoded as JSON when non-nil.
	Body any

	// Headers are added to the request after the defaults.
	Headers map[string]string

	// MatterScoped requires at least one target matter.
	MatterScoped bool
}

// EventCallback receives every decoded event in arrival order.
type EventCallback func(stream.Event)

// Result is the outcome of a run that received a response.
type Result struct {
	// RunID is sent as X-Request-ID and tags every log line for the run.
	RunID string

	Request Request

	// Table is the per-matter progress after the last event.
	Table progress.Table

	State RunState

	// Events counts dispatched events.
	Events int

	// Streamed is false when the server answered with a single JSON object.
	Streamed bool
}

// FallbackResponse is the single JSON object returned by deployments that do
// not stream.
type FallbackResponse struct {
	Success     bool                `json:"success"`
	Progress    *stream.Tally       `json:"progress,omitempty"`
	ClioUpdates *stream.ClioUpdates `json:"clio_updates,omitempty"`
	Error       string              `json:"error,omitempty"`
	Message     string              `json:"message,omitempty"`
}

// Event synthesizes the terminal event for a fallback response: complete
// when the server reported success, error otherwise.
func (fb FallbackResponse) Event() stream.Event {
	raw := &stream.StreamEvent{
		Type:        string(stream.EventTypeComplete),
		Message:     fb.Message,
		Progress:    fb.Progress,
		ClioUpdates: fb.ClioUpdates,
	}
	if !fb.Success {
		raw.Type = string(stream.EventTypeError)
		raw.Error = fb.Error
		if raw.Error == "" {
			raw.Error = "server reported failure"
		}
	}
	return stream.NewEventFromStream(raw)
}

// Runner executes streaming actions. A Runner holds no per-run state and may
// be shared; callers must not run two actions for the same client at once.
type Runner struct {
	httpClient  *http.Client
	idleTimeout time.Duration
	headers     map[string]string
	logger      *slog.Logger
	newParser   func() *stream.Parser
	newRunID    func() string
	readSize    int
}

// Option configures a Runner.
type Option func(*Runner)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Runner) {
		r.httpClient = client
	}
}

// WithIdleTimeout aborts a stream that delivers no data for d. Zero disables it.
func WithIdleTimeout(d time.Duration) Option {
	return func(r *Runner) {
		r.idleTimeout = d
	}
}

// WithHeader adds a static header to every request.
func WithHeader(key, value string) Option {
	return func(r *Runner) {
		r.headers[key] = value
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithParserFactory replaces the parser constructor.
func WithParserFactory(newParser func() *stream.Parser) Option {
	return func(r *Runner) {
		r.newParser = newParser
	}
}

// WithRunIDs replaces the run ID generator.
func WithRunIDs(newRunID func() string) Option {
	return func(r *Runner) {
		r.newRunID = newRunID
	}
}

// NewRunner creates a Runner. Without options it uses a plain http.Client
// with no overall timeout, since streams are long-lived.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		httpClient: &http.Client{},
		headers:    make(map[string]string),
		newParser:  stream.NewParser,
		newRunID:   uuid.NewString,
		readSize:   defaultReadSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewHTTPClient returns a client whose transport gives up waiting for
// response headers after headerTimeout. The body is not bounded.
func NewHTTPClient(headerTimeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = headerTimeout
	return &http.Client{Transport: transport}
}

// Run executes req and streams its progress for targets.
//
// Run returns an error without a Result when the request cannot be sent or is
// rejected. Once a response has been accepted, Run returns a Result; if
// reading the stream fails the Result holds the partial table and the error
// wraps [ErrStreamInterrupted] or [ErrStreamStalled]. A stream that ends
// without a complete event is not an error; the Result's state simply does
// not report success.
//
// onEvent may be nil.
func (r *Runner) Run(ctx context.Context, req Request, targets []progress.MatterRef, onEvent EventCallback) (*Result, error) {
	if req.MatterScoped && len(targets) == 0 {
		return nil, fmt.Errorf("%s: %w", req.Operation, ErrNoTargets)
	}

	result := &Result{
		RunID:   r.newRunID(),
		Request: req,
		Table:   progress.Initialize(targets),
	}
	log := r.log().With("run_id", result.RunID, "operation", req.Operation)

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	httpReq, err := r.newHTTPRequest(ctx, req, result.RunID)
	if err != nil {
		return nil, err
	}

	log.Info("Starting streaming action.", "method", httpReq.Method, "url", httpReq.URL.Redacted(), "matters", result.Table.Len())
	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", req.Operation, ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		log.Warn("Streaming action rejected.", "status", resp.StatusCode)
		return nil, fmt.Errorf("%s: %w: status %d: %s", req.Operation, ErrRequestRejected, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	dispatch := func(ev stream.Event) {
		result.Events++
		result.Table = progress.Apply(result.Table, ev)
		result.State = result.State.Observe(ev)
		if onEvent != nil {
			onEvent(ev)
		}
	}

	body := bufio.NewReaderSize(resp.Body, r.readSize)
	if isSingleObject(resp.Header.Get("Content-Type"), body) {
		var fb FallbackResponse
		if err := json.NewDecoder(io.LimitReader(body, maxFallbackBody)).Decode(&fb); err != nil {
			return result, fmt.Errorf("%s: %w: %w", req.Operation, ErrInvalidResponse, err)
		}
		dispatch(fb.Event())
		log.Info("Action finished without streaming.", "success", fb.Success, "all_succeeded", result.State.AllSucceeded)
		return result, nil
	}

	result.Streamed = true
	result.State.IsStreaming = true
	err = r.readStream(ctx, body, dispatch, cancel)
	result.State.IsStreaming = false
	if err != nil {
		log.Warn("Streaming action interrupted.", "error", err, "events", result.Events)
		return result, fmt.Errorf("%s: %w", req.Operation, err)
	}

	log.Info("Streaming action finished.",
		"events", result.Events,
		"complete", result.State.Complete,
		"all_succeeded", result.State.AllSucceeded)
	return result, nil
}

func (r *Runner) readStream(ctx context.Context, body io.Reader, dispatch func(stream.Event), cancel context.CancelCauseFunc) error {
	parser := r.newParser()
	defer parser.Flush()

	var idle *time.Timer
	if r.idleTimeout > 0 {
		idle = time.AfterFunc(r.idleTimeout, func() { cancel(ErrStreamStalled) })
		defer idle.Stop()
	}

	buf := make([]byte, r.readSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if idle != nil {
				idle.Reset(r.idleTimeout)
			}
			for _, ev := range parser.Feed(buf[:n]) {
				dispatch(ev)
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if cause := context.Cause(ctx); cause != nil {
				if errors.Is(cause, ErrStreamStalled) {
					return fmt.Errorf("%w: no data for %s", ErrStreamStalled, r.idleTimeout)
				}
				return fmt.Errorf("%w: %w", ErrStreamInterrupted, cause)
			}
			return fmt.Errorf("%w: %w", ErrStreamInterrupted, err)
		}
	}
}

func (r *Runner) newHTTPRequest(ctx context.Context, req Request, runID string) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("%s: marshal request: %w", req.Operation, err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", req.Operation, err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "text/event-stream, application/json")
	httpReq.Header.Set("X-Request-ID", runID)
	for k, v := range r.headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}

func (r *Runner) log() *slog.Logger {
	if r.logger != nil {
		return r.logger
	}
	return slog.Default()
}

// isSingleObject reports whether the server answered with one JSON object
// instead of a stream. Stream media types always stream and application/json
// never does. Anything else is judged by its first non-space byte, which is
// peeked without consuming it.
func isSingleObject(contentType string, body *bufio.Reader) bool {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mediaType {
		case "application/json":
			return true
		case "text/event-stream", "application/x-ndjson":
			return false
		}
	}

	for n := 1; n <= body.Size(); n++ {
		peeked, _ := body.Peek(n)
		if len(peeked) < n {
			return false
		}
		switch c := peeked[n-1]; c {
		case ' ', '\t', '\r', '\n':
		default:
			return c == '{'
		}
	}
	return false
}
