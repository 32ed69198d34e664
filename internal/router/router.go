// Package router maps notice operations to status transitions.
//
// Each operation (mark-sent, mark-na, undo, ccl-date) accepts a notice only
// in certain statuses and, after a fully successful run, commits a next
// status. The router is the single decision point for whether an operation
// may start against a notice and what the caller commits afterwards.
//
// Routing can be driven by hardcoded defaults ([NewRouter]) or by a
// transition manifest ([NewRouterFromManifest]).
package router

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"helixhub/internal/manifest"
	"helixhub/internal/status"
)

// Sentinel errors for operation routing.
var (
	// ErrUnknownOperation indicates the operation name is not routable.
	ErrUnknownOperation = errors.New("unknown operation")

	// ErrInvalidTransition indicates the notice is in a status the operation
	// does not accept. Callers should report this, not retry it.
	ErrInvalidTransition = errors.New("operation not allowed from current status")
)

// Router routes (operation, current status) pairs to transitions.
type Router struct {
	// routes maps operation → accepted status → transition.
	routes map[Operation]map[status.Status]Transition

	// order keeps operations in registration order for listing.
	order []Operation
}

func newRouter() *Router {
	return &Router{routes: make(map[Operation]map[status.Status]Transition)}
}

func (r *Router) add(t Transition) {
	byStatus, ok := r.routes[t.Operation]
	if !ok {
		byStatus = make(map[status.Status]Transition)
		r.routes[t.Operation] = byStatus
		r.order = append(r.order, t.Operation)
	}
	byStatus[t.From] = t
}

// NewRouter creates a [Router] with the default routing rules:
//   - mark-sent: pending → sent
//   - mark-na: pending → not-applicable
//   - undo: sent, not-applicable → pending
//   - ccl-date: any status, unchanged
func NewRouter() *Router {
	r := newRouter()
	r.add(Transition{Operation: OpMarkSent, From: status.StatusPending, Next: status.StatusSent})
	r.add(Transition{Operation: OpMarkNA, From: status.StatusPending, Next: status.StatusNotApplicable})
	r.add(Transition{Operation: OpUndo, From: status.StatusSent, Next: status.StatusPending})
	r.add(Transition{Operation: OpUndo, From: status.StatusNotApplicable, Next: status.StatusPending})
	for _, s := range []status.Status{status.StatusPending, status.StatusSent, status.StatusNotApplicable} {
		r.add(Transition{Operation: OpCCLDate, From: s})
	}
	return r
}

// NewRouterFromManifest creates a [Router] from a transition manifest.
//
// Every manifest status must be a valid notice status. An empty next_status
// produces a transition that keeps the current status.
func NewRouterFromManifest(m *manifest.Manifest) (*Router, error) {
	r := newRouter()
	for i, e := range m.Entries {
		from := status.Status(e.FromStatus)
		if !from.IsValid() {
			return nil, fmt.Errorf("manifest entry %d: invalid from_status %q", i+1, e.FromStatus)
		}
		next := status.Status(e.NextStatus)
		if next != "" && !next.IsValid() {
			return nil, fmt.Errorf("manifest entry %d: invalid next_status %q", i+1, e.NextStatus)
		}
		r.add(Transition{
			Operation:   Operation(e.Operation),
			From:        from,
			Next:        next,
			Description: e.Description,
		})
	}
	return r, nil
}

// GetTransition returns the transition for op applied to a notice in current.
//
// Returns [ErrUnknownOperation] for operations the router does not know and
// [ErrInvalidTransition] when op does not accept current.
func (r *Router) GetTransition(op Operation, current status.Status) (Transition, error) {
	byStatus, ok := r.routes[op]
	if !ok {
		return Transition{}, fmt.Errorf("%w: %s", ErrUnknownOperation, op)
	}

	t, ok := byStatus[current]
	if !ok {
		return Transition{}, fmt.Errorf("%w: %s from %s (accepts %s)", ErrInvalidTransition, op, current, joinStatuses(r.AcceptedStatuses(op)))
	}
	return t, nil
}

// Operations returns the routable operations in registration order.
func (r *Router) Operations() []Operation {
	return append([]Operation(nil), r.order...)
}

// AcceptedStatuses returns the statuses op accepts, sorted.
func (r *Router) AcceptedStatuses(op Operation) []status.Status {
	var out []status.Status
	for s := range r.routes[op] {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func joinStatuses(statuses []status.Status) string {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}
