package types

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
)

// EventType is the wire name of a ProcessingEvent. It is used both as the SSE event name
// and as the "type" field of the JSON envelope.
type EventType string

const (
	EventUploadStarted           EventType = "upload_started"
	EventFileReceived            EventType = "file_received"
	EventFileValidationStarted   EventType = "file_validation_started"
	EventFileValidationSucceeded EventType = "file_validation_succeeded"
	EventFileValidationFailed    EventType = "file_validation_failed"
	EventFileExtracted           EventType = "file_extracted"
	EventFileExtractionFailed    EventType = "file_extraction_failed"
	EventBatchValidated          EventType = "batch_validated"
	EventProcessingCompleted     EventType = "processing_completed"
	EventProcessingFailed        EventType = "processing_failed"
)

// IsTerminal reports whether t ends a session.
func (t EventType) IsTerminal() bool {
	return t == EventProcessingCompleted || t == EventProcessingFailed
}

// ProcessingEvent is one step of an upload session. The set of implementations is closed:
// only the event structs in this file satisfy it.
type ProcessingEvent interface {
	EventType() EventType
	Meta() EventMeta
	sealed()
}

// EventMeta is carried by every event.
type EventMeta struct {
	SessionId string    `json:"sessionId"`
	Timestamp time.Time `json:"timestamp"`
}

func (m EventMeta) Meta() EventMeta { return m }
func (EventMeta) sealed()           {}

// NewMeta stamps an event for sessionId with the current time.
func NewMeta(sessionId string) EventMeta {
	return EventMeta{SessionId: sessionId, Timestamp: time.Now().UTC()}
}

type UploadStarted struct {
	EventMeta
	TotalFiles int `json:"totalFiles"`
}

type FileReceived struct {
	EventMeta
	FileIndex int    `json:"fileIndex"`
	FileName  string `json:"fileName,omitempty"`
	SizeBytes int64  `json:"sizeBytes"`
}

type FileValidationStarted struct {
	EventMeta
	FileIndex int    `json:"fileIndex"`
	FileName  string `json:"fileName,omitempty"`
}

type FileValidationSucceeded struct {
	EventMeta
	FileIndex int      `json:"fileIndex"`
	FileInfo  FileInfo `json:"fileInfo"`
}

type FileValidationFailed struct {
	EventMeta
	FileIndex int       `json:"fileIndex"`
	FileName  string    `json:"fileName,omitempty"`
	Message   string    `json:"message"`
	ErrorCode ErrorCode `json:"errorCode"`
}

// FileExtracted reports that OCR produced BillCount rows for a validated file.
type FileExtracted struct {
	EventMeta
	FileIndex int `json:"fileIndex"`
	BillCount int `json:"billCount"`
}

// FileExtractionFailed reports an OCR failure. The file still counts as validated.
type FileExtractionFailed struct {
	EventMeta
	FileIndex int    `json:"fileIndex"`
	Message   string `json:"message"`
}

type BatchValidated struct {
	EventMeta
	TotalProcessed int `json:"totalProcessed"`
	SuccessCount   int `json:"successCount"`
	FailureCount   int `json:"failureCount"`
}

type ProcessingCompleted struct {
	EventMeta
	TotalFiles   int   `json:"totalFiles"`
	SuccessCount int   `json:"successCount"`
	DurationMs   int64 `json:"durationMs"`
}

type ProcessingFailed struct {
	EventMeta
	Message   string    `json:"message"`
	ErrorKind ErrorKind `json:"errorKind"`
}

func (UploadStarted) EventType() EventType           { return EventUploadStarted }
func (FileReceived) EventType() EventType            { return EventFileReceived }
func (FileValidationStarted) EventType() EventType   { return EventFileValidationStarted }
func (FileValidationSucceeded) EventType() EventType { return EventFileValidationSucceeded }
func (FileValidationFailed) EventType() EventType    { return EventFileValidationFailed }
func (FileExtracted) EventType() EventType           { return EventFileExtracted }
func (FileExtractionFailed) EventType() EventType    { return EventFileExtractionFailed }
func (BatchValidated) EventType() EventType          { return EventBatchValidated }
func (ProcessingCompleted) EventType() EventType     { return EventProcessingCompleted }
func (ProcessingFailed) EventType() EventType        { return EventProcessingFailed }

// FileIndexOf returns the file index carried by per-file events.
func FileIndexOf(ev ProcessingEvent) (int, bool) {
	switch e := ev.(type) {
	case FileReceived:
		return e.FileIndex, true
	case FileValidationStarted:
		return e.FileIndex, true
	case FileValidationSucceeded:
		return e.FileIndex, true
	case FileValidationFailed:
		return e.FileIndex, true
	case FileExtracted:
		return e.FileIndex, true
	case FileExtractionFailed:
		return e.FileIndex, true
	}
	return 0, false
}

type envelope struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// EncodeEvent serializes ev as {"type": ..., "data": {...}}.
func EncodeEvent(ev ProcessingEvent) ([]byte, error) {
	if ev == nil {
		return nil, fmt.Errorf("encode event: nil event")
	}
	data, err := sonic.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", ev.EventType(), err)
	}
	return sonic.Marshal(envelope{Type: ev.EventType(), Data: data})
}

// DecodeEvent parses an envelope produced by EncodeEvent back into its concrete variant.
func DecodeEvent(raw []byte) (ProcessingEvent, error) {
	var env envelope
	if err := sonic.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}
	var (
		ev  ProcessingEvent
		err error
	)
	switch env.Type {
	case EventUploadStarted:
		ev, err = decodeAs[UploadStarted](env.Data)
	case EventFileReceived:
		ev, err = decodeAs[FileReceived](env.Data)
	case EventFileValidationStarted:
		ev, err = decodeAs[FileValidationStarted](env.Data)
	case EventFileValidationSucceeded:
		ev, err = decodeAs[FileValidationSucceeded](env.Data)
	case EventFileValidationFailed:
		ev, err = decodeAs[FileValidationFailed](env.Data)
	case EventFileExtracted:
		ev, err = decodeAs[FileExtracted](env.Data)
	case EventFileExtractionFailed:
		ev, err = decodeAs[FileExtractionFailed](env.Data)
	case EventBatchValidated:
		ev, err = decodeAs[BatchValidated](env.Data)
	case EventProcessingCompleted:
		ev, err = decodeAs[ProcessingCompleted](env.Data)
	case EventProcessingFailed:
		ev, err = decodeAs[ProcessingFailed](env.Data)
	default:
		return nil, fmt.Errorf("decode event: unknown type %q", env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("decode event %s: %w", env.Type, err)
	}
	return ev, nil
}

func decodeAs[T ProcessingEvent](data json.RawMessage) (ProcessingEvent, error) {
	var v T
	if len(data) == 0 {
		return v, fmt.Errorf("missing data")
	}
	if err := sonic.Unmarshal(data, &v); err != nil {
		return v, err
	}
	return v, nil
}
