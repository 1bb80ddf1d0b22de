package client

import (
	"sort"

	"github.com/moyoez/bill2sheet/types"
)

// FileStatus is the progress of one file as the UI shows it.
type FileStatus string

const (
	FileReceived         FileStatus = "received"
	FileValidating       FileStatus = "validating"
	FileValid            FileStatus = "valid"
	FileInvalid          FileStatus = "invalid"
	FileExtracted        FileStatus = "extracted"
	FileExtractionFailed FileStatus = "extraction_failed"
)

type FileState struct {
	Index     int        `json:"index"`
	Name      string     `json:"name,omitempty"`
	Status    FileStatus `json:"status"`
	SizeBytes int64      `json:"sizeBytes,omitempty"`
	Message   string     `json:"message,omitempty"`
	Bills     int        `json:"bills,omitempty"`
}

// State accumulates the events of one session. The zero value is ready to use.
type State struct {
	SessionId    string             `json:"sessionId,omitempty"`
	TotalFiles   int                `json:"totalFiles"`
	SuccessCount int                `json:"successCount"`
	FailureCount int                `json:"failureCount"`
	Done         bool               `json:"done"`
	Failed       bool               `json:"failed"`
	Error        string             `json:"error,omitempty"`
	ErrorKind    types.ErrorKind    `json:"errorKind,omitempty"`
	DurationMs   int64              `json:"durationMs,omitempty"`
	files        map[int]*FileState
}

// Apply folds ev into the state. Events after the terminal one are ignored.
func (s *State) Apply(ev OcrEvent) {
	if s.Done {
		return
	}
	d := ev.Data
	if d.SessionId != "" && s.SessionId == "" {
		s.SessionId = d.SessionId
	}
	switch ev.Type {
	case types.EventUploadStarted:
		s.TotalFiles = d.TotalFiles
	case types.EventFileReceived:
		f := s.file(d)
		f.Status = FileReceived
		if d.SizeBytes > 0 {
			f.SizeBytes = d.SizeBytes
		}
	case types.EventFileValidationStarted:
		s.file(d).Status = FileValidating
	case types.EventFileValidationSucceeded:
		f := s.file(d)
		f.Status = FileValid
		if d.FileInfo != nil {
			f.SizeBytes = d.FileInfo.SizeBytes
		}
		s.SuccessCount++
	case types.EventFileValidationFailed:
		f := s.file(d)
		f.Status = FileInvalid
		f.Message = d.Message
		if f.Message == "" && d.ErrorCode != nil {
			f.Message = d.ErrorCode.Message()
		}
		s.FailureCount++
	case types.EventFileExtracted:
		f := s.file(d)
		if f.Status != FileValid {
			// streams without a validation stage report success here
			s.SuccessCount++
		}
		f.Status = FileExtracted
		f.Bills = d.BillCount
	case types.EventFileExtractionFailed:
		f := s.file(d)
		f.Status = FileExtractionFailed
		f.Message = d.Message
	case types.EventBatchValidated:
		s.SuccessCount, s.FailureCount = d.SuccessCount, d.FailureCount
	case types.EventProcessingCompleted:
		s.Done = true
		s.DurationMs = d.DurationMs
		if s.TotalFiles == 0 {
			s.TotalFiles = d.TotalFiles
		}
	case types.EventProcessingFailed:
		s.Done = true
		s.Failed = true
		s.Error = d.Message
		s.ErrorKind = d.ErrorKind
	}
}

// Files returns the known files ordered by index.
func (s *State) Files() []FileState {
	out := make([]FileState, 0, len(s.files))
	for _, f := range s.files {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Fail marks the session as failed from the client side, e.g. after a connection loss.
func (s *State) Fail(msg string) {
	if s.Done {
		return
	}
	s.Done = true
	s.Failed = true
	s.Error = msg
}

func (s *State) file(d Payload) *FileState {
	if s.files == nil {
		s.files = make(map[int]*FileState)
	}
	idx := -1
	if d.FileIndex != nil {
		idx = *d.FileIndex
	}
	f, ok := s.files[idx]
	if !ok {
		f = &FileState{Index: idx}
		s.files[idx] = f
	}
	if d.FileName != "" {
		f.Name = d.FileName
	}
	return f
}
