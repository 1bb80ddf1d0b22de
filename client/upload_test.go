package client

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/moyoez/bill2sheet/api"
	"github.com/moyoez/bill2sheet/tool"
	"github.com/moyoez/bill2sheet/types"
)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := tool.DefaultConfig()
	srv := httptest.NewServer(api.NewServer(cfg, api.Deps{}).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func pngFile(t *testing.T, name string) UploadFile {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 3, 3))); err != nil {
		t.Fatal(err)
	}
	return UploadFile{Name: name, Data: &buf}
}

func TestUploadEndToEnd(t *testing.T) {
	srv := testServer(t)
	files := []UploadFile{
		pngFile(t, "a.png"),
		{Name: "notes.txt", Data: bytes.NewBufferString("not an image")},
		pngFile(t, "b.png"),
	}
	var events []OcrEvent
	state, err := NewUploader(srv.URL).Upload(context.Background(), files, func(ev OcrEvent) {
		events = append(events, ev)
	})
	if err != nil {
		t.Fatal(err)
	}
	if !state.Done || state.Failed || state.SuccessCount != 2 || state.FailureCount != 1 {
		t.Errorf("state = %+v", state)
	}
	if events[0].Type != types.EventUploadStarted || !events[len(events)-1].Terminal() {
		t.Errorf("unexpected event order: first %s last %s", events[0].Type, events[len(events)-1].Type)
	}
	for _, ev := range events {
		if ev.Type == Unknown {
			t.Errorf("server event not recognised: %+v", ev)
		}
	}
	if f := state.Files(); len(f) != 3 || f[1].Status != FileInvalid || f[1].Name != "notes.txt" {
		t.Errorf("files = %+v", f)
	}
}

func TestUploadRejected(t *testing.T) {
	srv := testServer(t)
	files := make([]UploadFile, 11)
	for i := range files {
		files[i] = pngFile(t, "x.png")
	}
	_, err := NewUploader(srv.URL).Upload(context.Background(), files, nil)
	var rejected *RejectedError
	if !errors.As(err, &rejected) || rejected.Status != http.StatusUnprocessableEntity {
		t.Fatalf("err = %v, want 422 rejection", err)
	}
	if rejected.Message == "" {
		t.Error("rejection should carry the server message")
	}
	if rejected.Code == nil || rejected.Code.Code != types.CodeCountExceeded || rejected.Code.Count != 11 {
		t.Errorf("code = %+v", rejected.Code)
	}
}

func TestUploadNoFiles(t *testing.T) {
	if _, err := NewUploader("http://127.0.0.1:1").Upload(context.Background(), nil, nil); err == nil {
		t.Error("expected error for an empty batch")
	}
}
