package client

import (
	"testing"

	"github.com/moyoez/bill2sheet/types"
)

func TestNormalizeCurrentSchema(t *testing.T) {
	meta := types.NewMeta("sess-1")
	events := []types.ProcessingEvent{
		types.UploadStarted{EventMeta: meta, TotalFiles: 3},
		types.FileReceived{EventMeta: meta, FileIndex: 0, FileName: "a.jpg", SizeBytes: 10},
		types.FileValidationStarted{EventMeta: meta, FileIndex: 0},
		types.FileValidationSucceeded{EventMeta: meta, FileIndex: 0, FileInfo: types.FileInfo{ContentType: "image/jpeg"}},
		types.FileValidationFailed{EventMeta: meta, FileIndex: 1, Message: "File is empty", ErrorCode: *types.Empty()},
		types.FileExtracted{EventMeta: meta, FileIndex: 0, BillCount: 0},
		types.FileExtractionFailed{EventMeta: meta, FileIndex: 2, Message: "ocr down"},
		types.BatchValidated{EventMeta: meta, TotalProcessed: 3, SuccessCount: 2, FailureCount: 1},
		types.ProcessingCompleted{EventMeta: meta, TotalFiles: 3, SuccessCount: 2, DurationMs: 40},
		types.ProcessingFailed{EventMeta: meta, Message: "processing timeout exceeded", ErrorKind: types.KindTimeout},
	}
	for _, want := range events {
		payload, err := types.EncodeEvent(want)
		if err != nil {
			t.Fatal(err)
		}
		for _, name := range []string{string(want.EventType()), "", "message"} {
			ev, err := Normalize(name, payload)
			if err != nil {
				t.Fatalf("%s: %v", want.EventType(), err)
			}
			if ev.Type != want.EventType() {
				t.Errorf("event name %q: got %s, want %s", name, ev.Type, want.EventType())
			}
			if ev.Data.SessionId != "sess-1" {
				t.Errorf("%s: session id lost", want.EventType())
			}
		}
	}
}

func TestNormalizeLegacySchemas(t *testing.T) {
	tests := []struct {
		name      string
		eventName string
		payload   string
		want      types.EventType
		check     func(t *testing.T, ev OcrEvent)
	}{
		{
			name:    "first server upload started",
			payload: `{"type":"UploadStarted","data":{"total_files":2,"session_id":"s","timestamp":"2025-01-01T00:00:00Z"}}`,
			want:    types.EventUploadStarted,
			check: func(t *testing.T, ev OcrEvent) {
				if ev.Data.TotalFiles != 2 || ev.Data.SessionId != "s" {
					t.Errorf("data = %+v", ev.Data)
				}
			},
		},
		{
			name:    "first server validation error with tagged code",
			payload: `{"type":"ImageValidationError","data":{"file_index":1,"file_name":"x.png","error_message":"too big","error_code":{"FileSizeExceeded":{"actual":52428800,"limit":10485760}}}}`,
			want:    types.EventFileValidationFailed,
			check: func(t *testing.T, ev OcrEvent) {
				c := ev.Data.ErrorCode
				if c == nil || c.Code != types.CodeSizeExceeded || c.Actual != 52428800 || c.Limit != 10485760 {
					t.Errorf("error code = %+v", c)
				}
				if *ev.Data.FileIndex != 1 || ev.Data.FileName != "x.png" || ev.Data.Message != "too big" {
					t.Errorf("data = %+v", ev.Data)
				}
			},
		},
		{
			name:    "first server unit code",
			payload: `{"type":"ImageValidationError","data":{"file_index":0,"error_message":"empty","error_code":"EmptyFile"}}`,
			want:    types.EventFileValidationFailed,
			check: func(t *testing.T, ev OcrEvent) {
				if ev.Data.ErrorCode == nil || ev.Data.ErrorCode.Code != types.CodeEmpty {
					t.Errorf("error code = %+v", ev.Data.ErrorCode)
				}
			},
		},
		{
			name:    "first server completion",
			payload: `{"type":"ProcessingComplete","data":{"session_id":"s","total_files":3,"successful_files":2,"duration_ms":1500}}`,
			want:    types.EventProcessingCompleted,
			check: func(t *testing.T, ev OcrEvent) {
				if ev.Data.SuccessCount != 2 || ev.Data.DurationMs != 1500 {
					t.Errorf("data = %+v", ev.Data)
				}
			},
		},
		{
			name:    "first server timeout",
			payload: `{"type":"ProcessingError","data":{"session_id":"s","error_message":"slow","error_type":"SystemTimeout"}}`,
			want:    types.EventProcessingFailed,
			check: func(t *testing.T, ev OcrEvent) {
				if ev.Data.ErrorKind != types.KindTimeout {
					t.Errorf("kind = %q", ev.Data.ErrorKind)
				}
			},
		},
		{
			name:    "first server batch",
			payload: `{"type":"AllImagesValidated","data":{"total_processed":3,"successful_count":2,"failed_count":1}}`,
			want:    types.EventBatchValidated,
			check: func(t *testing.T, ev OcrEvent) {
				if ev.Data.SuccessCount != 2 || ev.Data.FailureCount != 1 {
					t.Errorf("data = %+v", ev.Data)
				}
			},
		},
		{
			name:      "per-image stream started",
			eventName: "image_started",
			payload:   `{"image_index":1,"filename":"hd.jpg"}`,
			want:      types.EventFileReceived,
			check: func(t *testing.T, ev OcrEvent) {
				if ev.Data.FileIndex == nil || *ev.Data.FileIndex != 0 || ev.Data.FileName != "hd.jpg" {
					t.Errorf("index should become zero based: %+v", ev.Data)
				}
			},
		},
		{
			name:      "per-image stream completed",
			eventName: "image_completed",
			payload:   `{"image_index":2,"filename":"b.jpg","invoice":{"invoice_no":"1"},"items":[{"id":1},{"id":2}]}`,
			want:      types.EventFileExtracted,
			check: func(t *testing.T, ev OcrEvent) {
				if ev.Data.BillCount != 2 || *ev.Data.FileIndex != 1 {
					t.Errorf("data = %+v", ev.Data)
				}
			},
		},
		{
			name:      "per-image stream failure",
			eventName: "image_failed",
			payload:   `{"image_index":1,"filename":"a.jpg","message":"Uploaded image is empty"}`,
			want:      types.EventFileValidationFailed,
		},
		{
			name:      "per-image stream finished",
			eventName: "finished",
			payload:   `{"processed":4}`,
			want:      types.EventProcessingCompleted,
			check: func(t *testing.T, ev OcrEvent) {
				if ev.Data.TotalFiles != 4 {
					t.Errorf("total = %d", ev.Data.TotalFiles)
				}
			},
		},
		{
			name:      "snake case completion alias",
			eventName: "processing_complete",
			payload:   `{"total_files":1}`,
			want:      types.EventProcessingCompleted,
		},
		{
			name:      "snake case error alias",
			eventName: "processing_error",
			payload:   `{"message":"boom"}`,
			want:      types.EventProcessingFailed,
		},
		{
			name:      "unknown event name falls back to payload type",
			eventName: "progress",
			payload:   `{"type":"file_received","data":{"index":3}}`,
			want:      types.EventFileReceived,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Normalize(tt.eventName, []byte(tt.payload))
			if err != nil {
				t.Fatal(err)
			}
			if ev.Type != tt.want {
				t.Fatalf("type = %s, want %s", ev.Type, tt.want)
			}
			if tt.check != nil {
				tt.check(t, ev)
			}
		})
	}
}

func TestNormalizeStructuralInference(t *testing.T) {
	for payload, want := range map[string]types.EventType{
		`{"sessionId":"s","totalFiles":2}`:                          types.EventUploadStarted,
		`{"fileIndex":0,"sizeBytes":12}`:                            types.EventFileReceived,
		`{"imageIndex":0}`:                                          types.EventFileValidationStarted,
		`{"fileIndex":0,"fileInfo":{"content_type":"image/png"}}`:   types.EventFileValidationSucceeded,
		`{"fileIndex":0,"errorCode":{"code":"corrupted"}}`:          types.EventFileValidationFailed,
		`{"fileIndex":0,"billCount":3}`:                             types.EventFileExtracted,
		`{"totalProcessed":2,"successCount":1,"failureCount":1}`:    types.EventBatchValidated,
		`{"totalFiles":2,"successCount":2,"durationMs":5}`:          types.EventProcessingCompleted,
		`{"totalFiles":2,"successCount":1}`:                         types.EventProcessingCompleted,
		`{"image_index":1,"message":"bad"}`:                         types.EventFileValidationFailed,
		`{"sessionId":"s","message":"x","errorKind":"timeout"}`:     types.EventProcessingFailed,
		`{"hello":"world"}`:                                         Unknown,
	} {
		ev, err := Normalize("", []byte(payload))
		if err != nil {
			t.Fatalf("%s: %v", payload, err)
		}
		if ev.Type != want {
			t.Errorf("%s: got %s, want %s", payload, ev.Type, want)
		}
	}
}

func TestNormalizeOneBasedIndexWithoutEventName(t *testing.T) {
	failed := `{"image_index":1,"filename":"a.jpg","message":"Uploaded image is empty"}`
	for _, name := range []string{"image_failed", "", "message"} {
		ev, err := Normalize(name, []byte(failed))
		if err != nil {
			t.Fatal(err)
		}
		if ev.Type != types.EventFileValidationFailed {
			t.Errorf("event name %q: type = %s", name, ev.Type)
		}
		if ev.Data.FileIndex == nil || *ev.Data.FileIndex != 0 {
			t.Errorf("event name %q: index = %v, want 0", name, ev.Data.FileIndex)
		}
	}

	ev, err := Normalize("", []byte(`{"image_index":2,"filename":"a.jpg"}`))
	if err != nil {
		t.Fatal(err)
	}
	if ev.Data.FileIndex == nil || *ev.Data.FileIndex != 1 {
		t.Errorf("index = %v, want 1", ev.Data.FileIndex)
	}

	// zero-based spellings are left alone, and the canonical key wins over image_index
	for payload, want := range map[string]int{
		`{"file_index":1,"sizeBytes":3}`:                 1,
		`{"index":1,"sizeBytes":3}`:                      1,
		`{"fileIndex":4,"image_index":5,"sizeBytes":3}`: 4,
	} {
		ev, err := Normalize("", []byte(payload))
		if err != nil {
			t.Fatal(err)
		}
		if ev.Data.FileIndex == nil || *ev.Data.FileIndex != want {
			t.Errorf("%s: index = %v, want %d", payload, ev.Data.FileIndex, want)
		}
	}
}

func TestNormalizeFlattenedCompletionWithoutDuration(t *testing.T) {
	ev, err := Normalize("", []byte(`{"session_id":"s","total_files":3,"successful_files":2}`))
	if err != nil {
		t.Fatal(err)
	}
	if ev.Type != types.EventProcessingCompleted {
		t.Fatalf("type = %s, want processing_completed", ev.Type)
	}
	if ev.Data.TotalFiles != 3 || ev.Data.SuccessCount != 2 || ev.Data.SessionId != "s" {
		t.Errorf("data = %+v", ev.Data)
	}
}

func TestNormalizeRejectsBadJSON(t *testing.T) {
	for _, payload := range []string{`{"type":`, `[1,2]`, `"text"`} {
		if _, err := Normalize("file_received", []byte(payload)); err == nil {
			t.Errorf("%s: expected error", payload)
		}
	}
}

func TestSnakeToCamel(t *testing.T) {
	for in, want := range map[string]string{
		"size_bytes":          "sizeBytes",
		"processing_duration": "processingDuration",
		"plain":               "plain",
		"trailing_":           "trailing",
	} {
		if got := snakeToCamel(in); got != want {
			t.Errorf("%s = %s, want %s", in, got, want)
		}
	}
}
