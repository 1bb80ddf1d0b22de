package types

import "fmt"

// ErrorCodeKind classifies why a single file was rejected.
type ErrorCodeKind string

const (
	CodeSizeExceeded      ErrorCodeKind = "size_exceeded"
	CodeUnsupportedFormat ErrorCodeKind = "unsupported_format"
	CodeCorrupted         ErrorCodeKind = "corrupted"
	CodeEmpty             ErrorCodeKind = "empty"
	CodeCountExceeded     ErrorCodeKind = "count_exceeded"
)

// ErrorCode is a per-file (or per-request, for count_exceeded) rejection reason.
// Only the fields of its Code are populated; build it with the constructors below.
type ErrorCode struct {
	Code     ErrorCodeKind `json:"code"`
	Actual   int64         `json:"actual,omitempty"`
	Limit    int64         `json:"limit,omitempty"`
	Detected string        `json:"detected,omitempty"`
	Count    int           `json:"count,omitempty"`
}

func SizeExceeded(actual, limit int64) *ErrorCode {
	return &ErrorCode{Code: CodeSizeExceeded, Actual: actual, Limit: limit}
}

func UnsupportedFormat(detected string) *ErrorCode {
	return &ErrorCode{Code: CodeUnsupportedFormat, Detected: detected}
}

func Corrupted() *ErrorCode { return &ErrorCode{Code: CodeCorrupted} }

func Empty() *ErrorCode { return &ErrorCode{Code: CodeEmpty} }

func CountExceeded(count int, limit int64) *ErrorCode {
	return &ErrorCode{Code: CodeCountExceeded, Count: count, Limit: limit}
}

// Message is the human readable form shown to the user.
func (e ErrorCode) Message() string {
	switch e.Code {
	case CodeSizeExceeded:
		return fmt.Sprintf("File size %d bytes exceeds limit of %d bytes", e.Actual, e.Limit)
	case CodeUnsupportedFormat:
		return fmt.Sprintf("Unsupported file format: %s", e.Detected)
	case CodeCorrupted:
		return "File is corrupted or unreadable"
	case CodeEmpty:
		return "File is empty"
	case CodeCountExceeded:
		return fmt.Sprintf("Too many files: %d exceeds limit of %d", e.Count, e.Limit)
	}
	return string(e.Code)
}

func (e ErrorCode) Error() string { return e.Message() }

// ErrorKind classifies a session-level fault carried by ProcessingFailed.
type ErrorKind string

const (
	KindTimeout               ErrorKind = "timeout"
	KindInternalError         ErrorKind = "internal_error"
	KindClientDisconnected    ErrorKind = "client_disconnected"
	KindMultipartParsingError ErrorKind = "multipart_parsing_error"
)
