// Package status reads and writes the local rate-change notice store.
//
// The store is a YAML file mapping client IDs to their rate-change notice:
// the notice status, the last CCL date pushed, and the matters a streaming
// action targets for that client.
//
//	notices:
//	  ACME:
//	    status: pending
//	    ccl_date: ""
//	    matters:
//	      - matter_id: "1001"
//	        display_number: ACME-0001
//
// [Reader] looks notices up; [Writer] commits status and date changes with an
// atomic temp-file rename. Only the lifecycle executor writes, and only after
// a run passed the zero-failure gate.
package status

import (
	"helixhub/internal/progress"
)

// Status is the state of a client's rate-change notice.
type Status string

const (
	// StatusPending means the notice has not been sent yet.
	StatusPending Status = "pending"

	// StatusSent means the notice was sent and every matter updated.
	StatusSent Status = "sent"

	// StatusNotApplicable means the client was marked as not needing a notice.
	StatusNotApplicable Status = "not-applicable"
)

// IsValid returns true for the statuses the store accepts.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusSent, StatusNotApplicable:
		return true
	}
	return false
}

// Notice is one client's rate-change notice.
type Notice struct {
	Status Status `yaml:"status"`

	// CCLDate is the last client care letter date pushed to the matters,
	// formatted YYYY-MM-DD. Empty if never set.
	CCLDate string `yaml:"ccl_date,omitempty"`

	// Matters are the targets of every streaming action for this client.
	Matters []progress.MatterRef `yaml:"matters"`
}

// NoticeFile is the root of the store file.
type NoticeFile struct {
	Notices map[string]*Notice `yaml:"notices"`
}
