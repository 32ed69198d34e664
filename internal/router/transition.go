package router

import (
	"helixhub/internal/status"
)

// Operation names an action a user can run against a client's notice.
type Operation string

// Operations understood by the default router.
const (
	OpMarkSent Operation = "mark-sent"
	OpMarkNA   Operation = "mark-na"
	OpUndo     Operation = "undo"
	OpCCLDate  Operation = "ccl-date"
)

// Transition is the routing decision for one operation from one status.
type Transition struct {
	// Operation is the operation being routed.
	Operation Operation

	// From is the notice status the operation was routed from.
	From status.Status

	// Next is the status to commit after a fully successful run.
	// Empty means the status is left unchanged.
	Next status.Status

	// Description is optional text from the transition manifest.
	Description string
}

// KeepsStatus reports whether a successful run leaves the status unchanged.
func (t Transition) KeepsStatus() bool {
	return t.Next == ""
}
