package wire

import "github.com/spoolworks/printspool-go/print"

// Client-to-spooler request methods. Each carries an id and is answered
// with a Response.
const (
	MethodCreateSession = "spool/createSession"
	MethodGetJob        = "spool/getJob"
	MethodListJobs      = "spool/listJobs"
	MethodCancelJob     = "spool/cancelJob"
	MethodRestartJob    = "spool/restartJob"
	MethodListServices  = "spool/listServices"
	MethodWatchJobs     = "spool/watchJobs"
	MethodUnwatchJobs   = "spool/unwatchJobs"
)

// Spooler-to-client document-drive notifications. These are one-way; the
// delegate answers through the result notifications below, correlated by
// session id and sequence.
const (
	MethodDocumentStart  = "document/start"
	MethodDocumentLayout = "document/layout"
	MethodDocumentWrite  = "document/write"
	MethodDocumentFinish = "document/finish"
	MethodDocumentCancel = "document/cancel"
)

// Client-to-spooler document-result notifications.
const (
	MethodLayoutStarted    = "document/layoutStarted"
	MethodLayoutFinished   = "document/layoutFinished"
	MethodLayoutFailed     = "document/layoutFailed"
	MethodLayoutCancelled  = "document/layoutCancelled"
	MethodWriteStarted     = "document/writeStarted"
	MethodWriteData        = "document/data"
	MethodWriteFinished    = "document/writeFinished"
	MethodWriteFailed      = "document/writeFailed"
	MethodWriteCancelled   = "document/writeCancelled"
	MethodSessionDestroyed = "document/destroyed"
)

// Spooler-to-client job event notification.
const MethodJobStateChanged = "jobs/stateChanged"

// CreateSessionParams opens a document session. The client assigns the
// session id and registers its delegate under it before sending, so the
// spooler may start driving immediately after answering.
type CreateSessionParams struct {
	SessionID  string            `json:"sessionId"`
	JobName    string            `json:"jobName"`
	Attributes *print.Attributes `json:"attributes,omitempty"`
	CallerApp  string            `json:"callerApp,omitzero"`
	CallerUser string            `json:"callerUser,omitzero"`
}

// CreateSessionResult carries the created job and the configuration handle.
// Both must be present for the session to count as created.
type CreateSessionResult struct {
	Job       *print.JobInfo `json:"job,omitempty"`
	ConfigURL string         `json:"configUrl,omitzero"`
}

// JobParams references one job.
type JobParams struct {
	JobID print.JobID `json:"jobId"`
}

// JobResult carries one job descriptor; nil means unknown id.
type JobResult struct {
	Job *print.JobInfo `json:"job,omitempty"`
}

// ListJobsResult carries the caller's jobs.
type ListJobsResult struct {
	Jobs []print.JobInfo `json:"jobs"`
}

// ListServicesResult carries the installed print services.
type ListServicesResult struct {
	Services []print.ServiceInfo `json:"services"`
}

// DocumentStartParams begins the document protocol for a session.
type DocumentStartParams struct {
	SessionID string `json:"sessionId"`
}

// DocumentLayoutParams requests a layout pass.
type DocumentLayoutParams struct {
	SessionID     string            `json:"sessionId"`
	OldAttributes *print.Attributes `json:"oldAttributes,omitempty"`
	NewAttributes *print.Attributes `json:"newAttributes,omitempty"`
	Preview       bool              `json:"preview,omitzero"`
	Sequence      int32             `json:"seq"`
}

// DocumentWriteParams requests rendering of a page subset.
type DocumentWriteParams struct {
	SessionID string            `json:"sessionId"`
	Pages     []print.PageRange `json:"pages"`
	Sequence  int32             `json:"seq"`
}

// DocumentFinishParams ends the document protocol for a session.
type DocumentFinishParams struct {
	SessionID string `json:"sessionId"`
}

// DocumentCancelParams triggers the cancellation bridge of an outstanding
// layout or write.
type DocumentCancelParams struct {
	SessionID string `json:"sessionId"`
	Sequence  int32  `json:"seq"`
}

// OperationAckParams acknowledges start-of-operation (layoutStarted /
// writeStarted). Receiving it tells the spooler the sequence is cancellable.
type OperationAckParams struct {
	SessionID string `json:"sessionId"`
	Sequence  int32  `json:"seq"`
}

// LayoutFinishedParams reports a successful layout.
type LayoutFinishedParams struct {
	SessionID string              `json:"sessionId"`
	Info      *print.DocumentInfo `json:"info"`
	Changed   bool                `json:"changed"`
	Sequence  int32               `json:"seq"`
}

// OperationFailedParams reports a failed layout or write.
type OperationFailedParams struct {
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason,omitzero"`
	Sequence  int32  `json:"seq"`
}

// OperationCancelledParams reports an honored cancellation.
type OperationCancelledParams struct {
	SessionID string `json:"sessionId"`
	Sequence  int32  `json:"seq"`
}

// WriteDataParams streams one chunk of rendered document bytes.
type WriteDataParams struct {
	SessionID string `json:"sessionId"`
	Chunk     []byte `json:"chunk"`
	Sequence  int32  `json:"seq"`
}

// WriteFinishedParams reports a successful write and the pages rendered.
type WriteFinishedParams struct {
	SessionID string            `json:"sessionId"`
	Pages     []print.PageRange `json:"pages"`
	Sequence  int32             `json:"seq"`
}

// SessionDestroyedParams tells the spooler the session reached its terminal
// state locally (observer notification).
type SessionDestroyedParams struct {
	SessionID string `json:"sessionId"`
}

// JobStateChangedParams fans a job state transition out to watching clients.
type JobStateChangedParams struct {
	JobID print.JobID    `json:"jobId"`
	State print.JobState `json:"state"`
}
