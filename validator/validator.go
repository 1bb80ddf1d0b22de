// Package validator decides whether an uploaded file is an acceptable invoice image.
package validator

import (
	"bytes"
	"image"
	"mime"
	"path/filepath"
	"strings"
	"time"

	// decoders registered for image.Decode
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/moyoez/bill2sheet/types"
)

const defaultMime = "application/octet-stream"

// Limits is the part of the upload configuration the validator needs.
type Limits struct {
	MaxFileSizeBytes int64
}

var supported = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/gif":  {},
	"image/webp": {},
	"image/bmp":  {},
	"image/tiff": {},
}

// Validate checks one file. The declared size is informational only: the size limit is
// always enforced against len(data). It does no I/O and is safe for concurrent use.
func Validate(data []byte, name string, declaredSize int64, index int, limits Limits) (types.FileInfo, *types.ErrorCode) {
	return ValidateMeasured(data, int64(len(data)), name, declaredSize, index, limits)
}

// ValidateMeasured is Validate for a file whose bytes were counted on arrival but only
// partly kept. measured is the number of bytes received; data may be shorter when the
// reader stopped buffering past the size limit.
func ValidateMeasured(data []byte, measured int64, name string, declaredSize int64, index int, limits Limits) (types.FileInfo, *types.ErrorCode) {
	start := time.Now()
	size := max(measured, int64(len(data)))
	if size == 0 {
		return types.FileInfo{}, types.Empty()
	}
	if limits.MaxFileSizeBytes > 0 && size > limits.MaxFileSizeBytes {
		return types.FileInfo{}, types.SizeExceeded(size, limits.MaxFileSizeBytes)
	}

	contentType := Sniff(data)
	if _, ok := supported[contentType]; !ok {
		detected := contentType
		if detected == defaultMime {
			if declared := declaredMime(name); declared != "" {
				detected = declared
			}
		}
		return types.FileInfo{}, types.UnsupportedFormat(detected)
	}

	if _, _, err := image.Decode(bytes.NewReader(data)); err != nil {
		return types.FileInfo{}, types.Corrupted()
	}

	return types.FileInfo{
		Index:                index,
		ContentType:          contentType,
		SizeBytes:            size,
		Format:               FormatOf(contentType),
		ProcessedAt:          time.Now().UTC().Format(time.RFC3339),
		ProcessingDurationMs: time.Since(start).Milliseconds(),
	}, nil
}

// Sniff returns the mime type detected from the content, without parameters.
func Sniff(data []byte) string {
	m := mimetype.Detect(data)
	if m == nil {
		return defaultMime
	}
	ct, _, err := mime.ParseMediaType(m.String())
	if err != nil {
		return m.String()
	}
	return ct
}

// FormatOf maps image/jpeg to JPEG.
func FormatOf(contentType string) string {
	_, sub, ok := strings.Cut(contentType, "/")
	if !ok {
		return strings.ToUpper(contentType)
	}
	sub, _, _ = strings.Cut(sub, "+")
	return strings.ToUpper(strings.TrimPrefix(sub, "x-"))
}

func declaredMime(name string) string {
	ext := filepath.Ext(name)
	if ext == "" {
		return ""
	}
	ct, _, err := mime.ParseMediaType(mime.TypeByExtension(ext))
	if err != nil {
		return ""
	}
	return ct
}
