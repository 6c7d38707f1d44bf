package print

import (
	"time"

	"github.com/google/uuid"
)

// JobID uniquely identifies a print job across the client and the spooler.
type JobID string

// NewJobID returns a fresh random job identifier. Spoolers assign one per
// created session.
func NewJobID() JobID {
	return JobID(uuid.NewString())
}

// JobState is the lifecycle state of a print job as reported by the spooler.
type JobState string

const (
	JobStateCreated   JobState = "created"
	JobStateQueued    JobState = "queued"
	JobStateStarted   JobState = "started"
	JobStateBlocked   JobState = "blocked"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
	JobStateCancelled JobState = "cancelled"
)

// IsValidJobState reports whether the state is one of the defined values.
func IsValidJobState(s JobState) bool {
	switch s {
	case JobStateCreated,
		JobStateQueued,
		JobStateStarted,
		JobStateBlocked,
		JobStateCompleted,
		JobStateFailed,
		JobStateCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further state transitions can follow.
func (s JobState) IsTerminal() bool {
	switch s {
	case JobStateCompleted, JobStateFailed, JobStateCancelled:
		return true
	default:
		return false
	}
}

// JobInfo is the spooler's descriptor for one print job.
type JobInfo struct {
	ID         JobID       `json:"id"`
	Label      string      `json:"label"`
	State      JobState    `json:"state"`
	CreatedAt  time.Time   `json:"createdAt,omitzero"`
	Pages      []PageRange `json:"pages,omitempty"`
	Attributes *Attributes `json:"attributes,omitempty"`
}
