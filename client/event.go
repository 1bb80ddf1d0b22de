// Package client consumes upload event streams: it parses SSE frames, maps every
// known payload schema onto one canonical event and tracks the UI state of a batch.
package client

import "github.com/moyoez/bill2sheet/types"

// Unknown is the type of an event no rule could classify.
const Unknown types.EventType = "unknown"

// OcrEvent is the canonical event handed to UI state, whatever schema it arrived in.
type OcrEvent struct {
	Type types.EventType `json:"type"`
	Data Payload         `json:"data"`
}

// Terminal reports whether the stream ends after this event.
func (e OcrEvent) Terminal() bool {
	return e.Type.IsTerminal()
}

// Payload is the union of the fields of every event type. Absent fields keep their
// zero value; FileIndex is nil for events that are not about one file.
type Payload struct {
	SessionId      string           `json:"sessionId,omitempty"`
	Timestamp      string           `json:"timestamp,omitempty"`
	TotalFiles     int              `json:"totalFiles,omitempty"`
	FileIndex      *int             `json:"fileIndex,omitempty"`
	FileName       string           `json:"fileName,omitempty"`
	SizeBytes      int64            `json:"sizeBytes,omitempty"`
	FileInfo       *types.FileInfo  `json:"fileInfo,omitempty"`
	Message        string           `json:"message,omitempty"`
	ErrorCode      *types.ErrorCode `json:"errorCode,omitempty"`
	ErrorKind      types.ErrorKind  `json:"errorKind,omitempty"`
	BillCount      int              `json:"billCount,omitempty"`
	TotalProcessed int              `json:"totalProcessed,omitempty"`
	SuccessCount   int              `json:"successCount,omitempty"`
	FailureCount   int              `json:"failureCount,omitempty"`
	DurationMs     int64            `json:"durationMs,omitempty"`
}
