package tool

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

func GenerateRandomUUID() string {
	return uuid.New().String()
}

// NewSessionId returns the opaque token identifying an upload session.
func NewSessionId() string {
	return GenerateRandomUUID()
}

// ObjectKey builds the storage key of file index of a session, e.g. 2025/03/01/<session>/0-scan.jpg.
func ObjectKey(sessionId string, index int, name string, at time.Time) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "" || name == "." || name == "/" {
		name = "file"
	}
	return fmt.Sprintf("%s/%s/%d-%s", at.UTC().Format("2006/01/02"), sessionId, index, name)
}

// ExportFileName returns bills_export_YYYYMMDD_HHMMSS.<ext>.
func ExportFileName(ext string, at time.Time) string {
	return fmt.Sprintf("bills_export_%s.%s", at.Format("20060102_150405"), ext)
}
