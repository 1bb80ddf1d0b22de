package types

import "time"

// SessionStatus is the lifecycle state of an upload session.
type SessionStatus string

const (
	SessionProcessing SessionStatus = "processing"
	SessionCompleted  SessionStatus = "completed"
	SessionFailed     SessionStatus = "failed"
	SessionCancelled  SessionStatus = "cancelled"
)

// UploadSession is a snapshot of one upload request's lifecycle.
type UploadSession struct {
	SessionId    string        `json:"sessionId"`
	TotalFiles   int           `json:"totalFiles"`
	StartedAt    time.Time     `json:"startedAt"`
	FinishedAt   *time.Time    `json:"finishedAt,omitempty"`
	Status       SessionStatus `json:"status"`
	SuccessCount int           `json:"successCount"`
	FailureCount int           `json:"failureCount"`
	// failed file indices, in order
	FailedFiles []int `json:"failedFiles,omitempty"`
}

// Done reports whether the session reached a final status.
func (s UploadSession) Done() bool {
	return s.Status != SessionProcessing
}
