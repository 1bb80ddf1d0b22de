package types

// FileInfo is the metadata of a file that passed validation.
type FileInfo struct {
	Index                int    `json:"index"`
	ContentType          string `json:"contentType"`
	SizeBytes            int64  `json:"sizeBytes"`
	Format               string `json:"format"` // uppercase mime subtype, e.g. JPEG
	ProcessedAt          string `json:"processedAt"`
	ProcessingDurationMs int64  `json:"processingDurationMs"`
}

// FileUnit is one received part of an upload batch. Content is dropped once the file
// has been validated (and extracted, when OCR runs inline).
type FileUnit struct {
	Index     int
	Name      string
	SizeBytes int64 // measured, never the client declared size
	Declared  int64 // client declared size, 0 when absent
	Content   []byte

	// outcome: both nil while pending
	Info      *FileInfo
	Rejection *ErrorCode
}

// Pending reports whether the unit has not been validated yet.
func (f *FileUnit) Pending() bool {
	return f.Info == nil && f.Rejection == nil
}

// Release drops the file bytes.
func (f *FileUnit) Release() {
	f.Content = nil
}
