package client

import (
	"errors"
	"strings"
	"testing"

	"github.com/moyoez/bill2sheet/types"
)

func TestConsumeBuildsState(t *testing.T) {
	stream := strings.Join([]string{
		"event:upload_started\ndata:{\"type\":\"upload_started\",\"data\":{\"sessionId\":\"s\",\"totalFiles\":2}}",
		"event:file_received\ndata:{\"type\":\"file_received\",\"data\":{\"fileIndex\":0,\"fileName\":\"a.jpg\",\"sizeBytes\":10}}",
		": heartbeat",
		"event:file_validation_succeeded\ndata:{\"type\":\"file_validation_succeeded\",\"data\":{\"fileIndex\":0,\"fileInfo\":{\"sizeBytes\":10}}}",
		"event:file_received\ndata:not json at all",
		"event:file_validation_failed\ndata:{\"type\":\"file_validation_failed\",\"data\":{\"fileIndex\":1,\"errorCode\":{\"code\":\"empty\"}}}",
		"event:batch_validated\ndata:{\"type\":\"batch_validated\",\"data\":{\"totalProcessed\":2,\"successCount\":1,\"failureCount\":1}}",
		"event:processing_completed\ndata:{\"type\":\"processing_completed\",\"data\":{\"totalFiles\":2,\"successCount\":1,\"durationMs\":9}}",
		"event:upload_started\ndata:{\"totalFiles\":99}",
	}, "\n\n") + "\n\n"

	var seen []types.EventType
	state := &State{}
	err := Consume(strings.NewReader(stream), state, func(ev OcrEvent) { seen = append(seen, ev.Type) })
	if err != nil {
		t.Fatal(err)
	}
	if len(seen) != 6 {
		t.Errorf("saw %d events (%v), the bad frame must be skipped and nothing read after the terminal one", len(seen), seen)
	}
	if !state.Done || state.Failed || state.TotalFiles != 2 || state.SuccessCount != 1 || state.FailureCount != 1 {
		t.Errorf("state = %+v", state)
	}
	files := state.Files()
	if len(files) != 2 || files[0].Status != FileValid || files[1].Status != FileInvalid {
		t.Fatalf("files = %+v", files)
	}
	if files[1].Message == "" {
		t.Errorf("invalid file needs a message: %+v", files[1])
	}
}

func TestConsumeConnectionLoss(t *testing.T) {
	stream := "event:upload_started\ndata:{\"type\":\"upload_started\",\"data\":{\"totalFiles\":2}}\n\n"
	state := &State{}
	if err := Consume(strings.NewReader(stream), state, nil); !errors.Is(err, ErrStreamEnded) {
		t.Fatalf("err = %v, want ErrStreamEnded", err)
	}
	if !state.Done || !state.Failed {
		t.Errorf("connection loss must fail the session: %+v", state)
	}
}

func TestStatePerImageStream(t *testing.T) {
	state := &State{}
	for _, f := range []struct{ name, payload string }{
		{"image_started", `{"image_index":1,"filename":"a.jpg"}`},
		{"image_processing", `{"image_index":1,"filename":"a.jpg"}`},
		{"image_completed", `{"image_index":1,"filename":"a.jpg","items":[{},{}]}`},
		{"image_started", `{"image_index":2,"filename":"b.jpg"}`},
		{"image_failed", `{"image_index":2,"filename":"b.jpg","message":"Uploaded image is empty"}`},
		{"finished", `{"processed":2}`},
	} {
		ev, err := Normalize(f.name, []byte(f.payload))
		if err != nil {
			t.Fatal(err)
		}
		state.Apply(ev)
	}
	if !state.Done || state.TotalFiles != 2 || state.SuccessCount != 1 || state.FailureCount != 1 {
		t.Errorf("state = %+v", state)
	}
	files := state.Files()
	if files[0].Bills != 2 || files[0].Status != FileExtracted || files[1].Message != "Uploaded image is empty" {
		t.Errorf("files = %+v", files)
	}
}

func TestStateFailure(t *testing.T) {
	state := &State{}
	state.Apply(OcrEvent{Type: types.EventProcessingFailed, Data: Payload{Message: "slow", ErrorKind: types.KindTimeout}})
	state.Fail("ignored")
	if !state.Failed || state.Error != "slow" || state.ErrorKind != types.KindTimeout {
		t.Errorf("state = %+v", state)
	}
}
