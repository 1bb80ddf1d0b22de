package client

import (
	"fmt"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/moyoez/bill2sheet/types"
)

// typeNames maps every known event name onto its canonical type: the current names,
// the PascalCase names of the first server, its snake_case spellings and the names of
// the per-image OCR stream.
var typeNames = map[string]types.EventType{
	"upload_started":            types.EventUploadStarted,
	"file_received":             types.EventFileReceived,
	"file_validation_started":   types.EventFileValidationStarted,
	"file_validation_succeeded": types.EventFileValidationSucceeded,
	"file_validation_failed":    types.EventFileValidationFailed,
	"file_extracted":            types.EventFileExtracted,
	"file_extraction_failed":    types.EventFileExtractionFailed,
	"batch_validated":           types.EventBatchValidated,
	"processing_completed":      types.EventProcessingCompleted,
	"processing_failed":         types.EventProcessingFailed,

	"UploadStarted":          types.EventUploadStarted,
	"ImageReceived":          types.EventFileReceived,
	"ImageValidationStart":   types.EventFileValidationStarted,
	"ImageValidationSuccess": types.EventFileValidationSucceeded,
	"ImageValidationError":   types.EventFileValidationFailed,
	"AllImagesValidated":     types.EventBatchValidated,
	"ProcessingComplete":     types.EventProcessingCompleted,
	"ProcessingError":        types.EventProcessingFailed,

	"image_received":           types.EventFileReceived,
	"image_validation_start":   types.EventFileValidationStarted,
	"image_validation_success": types.EventFileValidationSucceeded,
	"image_validation_error":   types.EventFileValidationFailed,
	"all_images_validated":     types.EventBatchValidated,
	"processing_complete":      types.EventProcessingCompleted,
	"processing_error":         types.EventProcessingFailed,

	"image_started":    types.EventFileReceived,
	"image_processing": types.EventFileValidationStarted,
	"image_completed":  types.EventFileExtracted,
	"image_failed":     types.EventFileValidationFailed,
	"finished":         types.EventProcessingCompleted,
}

// oneBasedIndexKey is the index spelling of the per-image OCR stream, which counts from 1.
// A payload carrying it is shifted to 0-based whatever its event name.
const oneBasedIndexKey = "image_index"

var fieldAliases = map[string]string{
	"imageIndex":       "fileIndex",
	"image_index":      "fileIndex",
	"index":            "fileIndex",
	"filename":         "fileName",
	"file_name":        "fileName",
	"name":             "fileName",
	"successful_files": "successCount",
	"successFiles":     "successCount",
	"successful_count": "successCount",
	"failed_count":     "failureCount",
	"failedCount":      "failureCount",
	"total_files":      "totalFiles",
	"session_id":       "sessionId",
	"error_message":    "message",
	"error_type":       "errorKind",
	"errorType":        "errorKind",
	"processed":        "totalProcessed",
}

var legacyCodes = map[string]types.ErrorCodeKind{
	"FileSizeExceeded":   types.CodeSizeExceeded,
	"UnsupportedFormat":  types.CodeUnsupportedFormat,
	"CorruptedFile":      types.CodeCorrupted,
	"EmptyFile":          types.CodeEmpty,
	"CountLimitExceeded": types.CodeCountExceeded,
}

var legacyKinds = map[string]types.ErrorKind{
	"SystemTimeout":         types.KindTimeout,
	"InternalServerError":   types.KindInternalError,
	"ClientDisconnected":    types.KindClientDisconnected,
	"MultipartParsingError": types.KindMultipartParsingError,
}

// rule infers a type from the fields present in a canonical payload.
type rule struct {
	match func(p map[string]any) bool
	typ   types.EventType
}

// inference is evaluated in order; the first match wins.
var inference = []rule{
	{func(p map[string]any) bool { return has(p, "errorKind") }, types.EventProcessingFailed},
	{func(p map[string]any) bool { return has(p, "durationMs") }, types.EventProcessingCompleted},
	{func(p map[string]any) bool { return has(p, "totalFiles") && has(p, "successCount") }, types.EventProcessingCompleted},
	{func(p map[string]any) bool { return has(p, "totalProcessed") && has(p, "successCount", "failureCount") },
		types.EventBatchValidated},
	{func(p map[string]any) bool { return has(p, "totalProcessed") }, types.EventProcessingCompleted},
	{func(p map[string]any) bool { return has(p, "fileIndex") && has(p, "errorCode") }, types.EventFileValidationFailed},
	{func(p map[string]any) bool { return has(p, "fileIndex") && has(p, "fileInfo") }, types.EventFileValidationSucceeded},
	{func(p map[string]any) bool { return has(p, "fileIndex") && has(p, "billCount", "items") }, types.EventFileExtracted},
	{func(p map[string]any) bool { return has(p, "fileIndex") && has(p, "message") }, types.EventFileValidationFailed},
	{func(p map[string]any) bool { return has(p, "fileIndex") && has(p, "sizeBytes") }, types.EventFileReceived},
	{func(p map[string]any) bool { return has(p, "fileIndex") }, types.EventFileValidationStarted},
	{func(p map[string]any) bool { return has(p, "sessionId") && has(p, "message") }, types.EventProcessingFailed},
	{func(p map[string]any) bool { return has(p, "totalFiles") }, types.EventUploadStarted},
}

// has reports whether p holds any of keys.
func has(p map[string]any, keys ...string) bool {
	for _, k := range keys {
		if v, ok := p[k]; ok && v != nil {
			return true
		}
	}
	return false
}

// Normalize turns one wire event into its canonical form. eventName is the SSE event
// name and may be empty. The type is taken from the first of: a known event name, a
// known payload "type", the fields present, or Unknown. Only invalid JSON is an error.
func Normalize(eventName string, payload []byte) (OcrEvent, error) {
	var raw any
	if err := sonic.Unmarshal(payload, &raw); err != nil {
		return OcrEvent{}, fmt.Errorf("decode event payload: %w", err)
	}
	body, ok := raw.(map[string]any)
	if !ok {
		return OcrEvent{}, fmt.Errorf("event payload is %T, not an object", raw)
	}

	// {"type":..,"data":{..}} envelope, current and first-server schema alike
	payloadType, _ := body["type"].(string)
	if inner, ok := body["data"].(map[string]any); ok && payloadType != "" {
		body = inner
	}

	name := resolveName(eventName, payloadType)
	fields, oneBased := canonicalize(body)
	if oneBased {
		if idx, ok := fields["fileIndex"].(float64); ok && idx > 0 {
			fields["fileIndex"] = idx - 1
		}
	}

	typ, known := typeNames[name]
	if !known {
		typ = infer(fields)
	}

	ev := OcrEvent{Type: typ}
	data, err := sonic.Marshal(fields)
	if err != nil {
		return OcrEvent{}, fmt.Errorf("re-encode payload: %w", err)
	}
	if err := sonic.Unmarshal(data, &ev.Data); err != nil {
		return OcrEvent{}, fmt.Errorf("decode canonical payload: %w", err)
	}
	if typ == types.EventProcessingCompleted && ev.Data.TotalFiles == 0 {
		ev.Data.TotalFiles = ev.Data.TotalProcessed
	}
	return ev, nil
}

// resolveName picks the first recognised name. The default SSE event name "message"
// carries no type information.
func resolveName(eventName, payloadType string) string {
	for _, n := range []string{eventName, payloadType} {
		n = strings.TrimSpace(n)
		if n == "" || n == "message" {
			continue
		}
		if _, ok := typeNames[n]; ok {
			return n
		}
	}
	return ""
}

func infer(fields map[string]any) types.EventType {
	for _, r := range inference {
		if r.match(fields) {
			return r.typ
		}
	}
	return Unknown
}

// canonicalize renames aliased and snake_case keys and rewrites legacy enum values.
// oneBased reports that fileIndex was taken from the 1-based image_index.
func canonicalize(body map[string]any) (out map[string]any, oneBased bool) {
	out = make(map[string]any, len(body))
	source := make(map[string]string, len(body))
	for k, v := range body {
		key, ok := fieldAliases[k]
		if !ok {
			key = snakeToCamel(k)
		}
		if _, taken := out[key]; taken && key != k {
			continue // the canonical spelling wins over an alias
		}
		out[key] = v
		source[key] = k
	}
	oneBased = source["fileIndex"] == oneBasedIndexKey
	if nested, ok := out["fileInfo"].(map[string]any); ok {
		info := make(map[string]any, len(nested))
		for k, v := range nested {
			info[snakeToCamel(k)] = v
		}
		out["fileInfo"] = info
	}
	if v, ok := out["errorCode"]; ok {
		out["errorCode"] = normalizeErrorCode(v)
	}
	if s, ok := out["errorKind"].(string); ok {
		if kind, legacy := legacyKinds[s]; legacy {
			out["errorKind"] = string(kind)
		}
	}
	if items, ok := out["items"].([]any); ok && !has(out, "billCount") {
		out["billCount"] = len(items)
	}
	delete(out, "items")
	delete(out, "invoice")
	return out, oneBased
}

// normalizeErrorCode accepts {"code":..}, a bare code string, and the externally
// tagged enum of the first server ("EmptyFile" or {"FileSizeExceeded":{..}}).
func normalizeErrorCode(v any) any {
	switch c := v.(type) {
	case string:
		if code, ok := legacyCodes[c]; ok {
			return map[string]any{"code": string(code)}
		}
		return map[string]any{"code": c}
	case map[string]any:
		if _, ok := c["code"]; ok {
			return c
		}
		if len(c) == 1 {
			for tag, inner := range c {
				code, ok := legacyCodes[tag]
				if !ok {
					break
				}
				out := map[string]any{"code": string(code)}
				if fields, ok := inner.(map[string]any); ok {
					for k, fv := range fields {
						out[k] = fv
					}
				}
				return out
			}
		}
	}
	return nil
}

func snakeToCamel(s string) string {
	if !strings.Contains(s, "_") {
		return s
	}
	parts := strings.Split(s, "_")
	var sb strings.Builder
	sb.WriteString(parts[0])
	for _, p := range parts[1:] {
		if p == "" {
			continue
		}
		sb.WriteString(strings.ToUpper(p[:1]) + p[1:])
	}
	return sb.String()
}
