// Package lifecycle runs one notice operation from routing through commit.
//
// The lifecycle package provides [Executor], the caller side of a streaming
// action. It routes the operation against the notice's current status, builds
// the request for the notice's matters, drives the [StreamRunner] (retrying
// the same request when asked), and commits the notice's new status only when
// the run reported a zero-failure tally.
//
// Key concepts:
//   - Routing comes from [router.Router]; invalid transitions never start a run
//   - At most one run per client is in flight; a second gets [ErrBusy]
//   - Commits go through [NoticeWriter] and only when [workflow.ShouldCommit] passes
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"helixhub/internal/progress"
	"helixhub/internal/router"
	"helixhub/internal/status"
	"helixhub/internal/workflow"
)

// Sentinel errors for lifecycle execution.
var (
	// ErrBusy is returned when an operation is already running for the client.
	ErrBusy = errors.New("an operation is already running for this client")

	// ErrMissingIdentity is returned when no user email or initials are configured.
	ErrMissingIdentity = errors.New("user identity is not configured")

	// ErrInvalidCCLDate is returned when ccl-date is run without a valid date.
	ErrInvalidCCLDate = errors.New("invalid ccl date")
)

// StreamRunner executes one streaming request.
//
// The [workflow.Runner] type implements this interface.
type StreamRunner interface {
	Run(ctx context.Context, req workflow.Request, targets []progress.MatterRef, onEvent workflow.EventCallback) (*workflow.Result, error)
}

// NoticeReader looks up a client's notice.
type NoticeReader interface {
	GetNotice(clientID string) (*status.Notice, error)
}

// NoticeWriter persists notice changes after a successful run.
type NoticeWriter interface {
	UpdateStatus(clientID string, newStatus status.Status) error
	UpdateCCLDate(clientID, date string) error
}

// EndpointResolver maps an operation and client to an HTTP method and URL.
//
// The [config.Config] type implements this interface.
type EndpointResolver interface {
	ResolveEndpoint(op, clientID string) (method, url string, err error)
}

// Identity is the acting user, sent with every request.
type Identity struct {
	Email    string
	Initials string
}

// Options tune one Execute call.
type Options struct {
	// CCLDate is required for ccl-date and ignored otherwise (YYYY-MM-DD).
	CCLDate string

	// Retries is the number of extra attempts after a failed or partial run.
	Retries int
}

// RequestBody is the JSON body sent to every operation endpoint.
type RequestBody struct {
	ClientID     string               `json:"client_id"`
	Matters      []progress.MatterRef `json:"matters"`
	UserEmail    string               `json:"user_email"`
	UserInitials string               `json:"user_initials"`
	CCLDate      string               `json:"ccl_date,omitempty"`
}

// AttemptCallback is invoked before each attempt with the 1-based attempt
// number and the maximum number of attempts.
type AttemptCallback func(attempt, maxAttempts int)

// Plan is a dry-run preview of an operation.
type Plan struct {
	ClientID   string
	Transition router.Transition
	Method     string
	URL        string
	Matters    []progress.MatterRef
}

// Outcome describes a finished Execute call.
type Outcome struct {
	Transition router.Transition

	// Result is the last attempt's result. Nil when no attempt got a response.
	Result *workflow.Result

	// Attempts counts runs started, including the first.
	Attempts int

	// Committed reports whether the notice was updated locally.
	Committed bool

	// NextStatus is the status committed, or empty when the status was kept.
	NextStatus status.Status

	// StreamErr is the last attempt's streaming error, if the stream broke
	// after the server accepted the request.
	StreamErr error
}

// Partial reports whether the server accepted the request but the run did
// not finish with every matter succeeding.
func (o *Outcome) Partial() bool {
	return o != nil && o.Result != nil && !o.Committed
}

// Executor runs notice operations.
//
// Executor uses dependency injection for testability. Use [NewExecutor] to
// create an instance and [Executor.Execute] to run an operation.
type Executor struct {
	runner    StreamRunner
	reader    NoticeReader
	writer    NoticeWriter
	endpoints EndpointResolver
	identity  Identity
	router    *router.Router
	logger    *slog.Logger

	eventCallback   workflow.EventCallback
	attemptCallback AttemptCallback

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewExecutor creates a new Executor with the required dependencies.
//
// The default hardcoded router is used until [Executor.SetRouter] is called.
func NewExecutor(runner StreamRunner, reader NoticeReader, writer NoticeWriter, endpoints EndpointResolver, identity Identity) *Executor {
	return &Executor{
		runner:    runner,
		reader:    reader,
		writer:    writer,
		endpoints: endpoints,
		identity:  identity,
		router:    router.NewRouter(),
		inFlight:  make(map[string]struct{}),
	}
}

// SetRouter configures a custom router, such as one from
// [router.NewRouterFromManifest]. Nil restores the default.
func (e *Executor) SetRouter(r *router.Router) {
	if r == nil {
		r = router.NewRouter()
	}
	e.router = r
}

// SetLogger sets the logger. Defaults to slog.Default().
func (e *Executor) SetLogger(logger *slog.Logger) {
	e.logger = logger
}

// SetEventCallback receives every stream event of every attempt.
func (e *Executor) SetEventCallback(cb workflow.EventCallback) {
	e.eventCallback = cb
}

// SetAttemptCallback is called before each attempt begins.
func (e *Executor) SetAttemptCallback(cb AttemptCallback) {
	e.attemptCallback = cb
}

// Plan routes op for the client and resolves its endpoint without running it.
func (e *Executor) Plan(op router.Operation, clientID string) (*Plan, error) {
	notice, err := e.reader.GetNotice(clientID)
	if err != nil {
		return nil, err
	}

	t, err := e.router.GetTransition(op, notice.Status)
	if err != nil {
		return nil, err
	}

	method, url, err := e.endpoints.ResolveEndpoint(string(op), clientID)
	if err != nil {
		return nil, err
	}

	return &Plan{
		ClientID:   clientID,
		Transition: t,
		Method:     method,
		URL:        url,
		Matters:    notice.Matters,
	}, nil
}

// Execute runs op against the client's notice.
//
// Execute returns an error when the operation could not start: the client is
// busy, the transition is invalid, the identity or date is missing, or no
// attempt got an accepted response. Once an attempt has a [workflow.Result],
// Execute returns an Outcome; check [Outcome.Partial] for "some matters
// failed". A failure to record a committed status is returned alongside the
// Outcome.
//
// Attempts after the first reuse the same request. A cancelled ctx is never
// retried.
func (e *Executor) Execute(ctx context.Context, op router.Operation, clientID string, opts Options) (*Outcome, error) {
	if !e.acquire(clientID) {
		return nil, fmt.Errorf("%w: %s", ErrBusy, clientID)
	}
	defer e.release(clientID)

	if e.identity.Email == "" || e.identity.Initials == "" {
		return nil, ErrMissingIdentity
	}

	plan, err := e.Plan(op, clientID)
	if err != nil {
		return nil, err
	}

	if op == router.OpCCLDate {
		if err := ValidateCCLDate(opts.CCLDate); err != nil {
			return nil, err
		}
	}

	body := RequestBody{
		ClientID:     clientID,
		Matters:      plan.Matters,
		UserEmail:    e.identity.Email,
		UserInitials: e.identity.Initials,
	}
	if op == router.OpCCLDate {
		body.CCLDate = opts.CCLDate
	}
	req := workflow.Request{
		Operation:    string(op),
		Method:       plan.Method,
		URL:          plan.URL,
		Body:         body,
		MatterScoped: true,
	}

	log := e.log().With("operation", string(op), "client", clientID)
	outcome := &Outcome{Transition: plan.Transition}
	maxAttempts := opts.Retries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			log.Info("Retrying operation.", "attempt", attempt, "max_attempts", maxAttempts)
		}
		if e.attemptCallback != nil {
			e.attemptCallback(attempt, maxAttempts)
		}
		outcome.Attempts = attempt

		result, runErr := e.runner.Run(ctx, req, plan.Matters, e.eventCallback)
		if result != nil {
			outcome.Result = result
			outcome.StreamErr = runErr
		}
		lastErr = runErr

		if errors.Is(runErr, workflow.ErrNoTargets) || ctx.Err() != nil {
			break
		}
		if result != nil && runErr == nil && workflow.ShouldCommit(result.State) {
			return outcome, e.commit(log, outcome, clientID, opts)
		}
	}

	if outcome.Result == nil {
		return nil, lastErr
	}

	log.Warn("Operation did not fully succeed; notice left unchanged.",
		"attempts", outcome.Attempts,
		"error", outcome.StreamErr)
	return outcome, nil
}

// ValidateCCLDate checks that date is a YYYY-MM-DD calendar date.
func ValidateCCLDate(date string) error {
	if _, err := time.Parse(status.CCLDateLayout, date); err != nil {
		return fmt.Errorf("%w: %q: expected YYYY-MM-DD", ErrInvalidCCLDate, date)
	}
	return nil
}

func (e *Executor) commit(log *slog.Logger, outcome *Outcome, clientID string, opts Options) error {
	t := outcome.Transition
	if t.Operation == router.OpCCLDate {
		if err := e.writer.UpdateCCLDate(clientID, opts.CCLDate); err != nil {
			return fmt.Errorf("run succeeded but recording the ccl date failed: %w", err)
		}
	}
	if !t.KeepsStatus() {
		if err := e.writer.UpdateStatus(clientID, t.Next); err != nil {
			return fmt.Errorf("run succeeded but recording status %s failed: %w", t.Next, err)
		}
		outcome.NextStatus = t.Next
	}
	outcome.Committed = true
	log.Info("Committed notice.", "status", outcome.NextStatus, "ccl_date", opts.CCLDate)
	return nil
}

func (e *Executor) acquire(clientID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inFlight[clientID]; busy {
		return false
	}
	e.inFlight[clientID] = struct{}{}
	return true
}

func (e *Executor) release(clientID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inFlight, clientID)
}

func (e *Executor) log() *slog.Logger {
	if e.logger != nil {
		return e.logger
	}
	return slog.Default()
}
