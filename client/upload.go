package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/moyoez/bill2sheet/tool"
	"github.com/moyoez/bill2sheet/types"
)

// ErrStreamEnded is returned when the connection closed before a terminal event.
var ErrStreamEnded = errors.New("event stream ended before the session finished")

// UploadFile is one image to send.
type UploadFile struct {
	Name string
	Data io.Reader
}

// RejectedError is a request the server refused before streaming.
type RejectedError struct {
	Status  int
	Message string
	// set for batch-level validation failures such as count_exceeded
	Code *types.ErrorCode
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("upload rejected (%d): %s", e.Status, e.Message)
}

// Uploader posts image batches to a bill2sheet server and follows the event stream.
type Uploader struct {
	BaseURL string
	Client  *http.Client
}

func NewUploader(baseURL string) *Uploader {
	return &Uploader{BaseURL: strings.TrimSuffix(baseURL, "/"), Client: tool.GetHttpClient()}
}

// OpenFiles opens paths for upload. The caller closes them.
func OpenFiles(paths []string) ([]UploadFile, func(), error) {
	var closers []io.Closer
	closeAll := func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}
	files := make([]UploadFile, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("open %s: %w", p, err)
		}
		closers = append(closers, f)
		files = append(files, UploadFile{Name: filepath.Base(p), Data: f})
	}
	return files, closeAll, nil
}

// Upload sends files and calls onEvent for every canonical event until the terminal one.
// The returned state is valid even when err is not nil.
func (u *Uploader) Upload(ctx context.Context, files []UploadFile, onEvent func(OcrEvent)) (*State, error) {
	state := &State{}
	if len(files) == 0 {
		return state, fmt.Errorf("invalid parameters: no files to upload")
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeParts(mw, files))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.BaseURL+"/api/v1/upload", pr)
	if err != nil {
		return state, fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "text/event-stream")

	resp, err := u.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return state, fmt.Errorf("upload cancelled: %w", ctx.Err())
		}
		return state, fmt.Errorf("failed to send upload request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			tool.DefaultLogger.Errorf("[Client] Failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return state, rejection(resp)
	}
	tool.DefaultLogger.Debugf("[Client] Streaming session %s", resp.Header.Get("X-Session-Id"))
	err = Consume(resp.Body, state, onEvent)
	if err != nil && ctx.Err() != nil {
		err = fmt.Errorf("upload cancelled: %w", ctx.Err())
	}
	return state, err
}

func writeParts(mw *multipart.Writer, files []UploadFile) error {
	for _, f := range files {
		part, err := mw.CreateFormFile("images", f.Name)
		if err != nil {
			return err
		}
		if _, err := io.Copy(part, f.Data); err != nil {
			return fmt.Errorf("copy %s: %w", f.Name, err)
		}
	}
	return mw.Close()
}

func rejection(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var parsed struct {
		Error     string           `json:"error"`
		ErrorCode *types.ErrorCode `json:"errorCode"`
	}
	rejected := &RejectedError{Status: resp.StatusCode, Message: resp.Status}
	if err := sonic.Unmarshal(body, &parsed); err == nil {
		if parsed.Error != "" {
			rejected.Message = parsed.Error
		}
		rejected.Code = parsed.ErrorCode
	}
	return rejected
}

// Consume reads frames from r into state until a terminal event. Frames whose payload
// is not valid JSON are logged and skipped.
func Consume(r io.Reader, state *State, onEvent func(OcrEvent)) error {
	reader := NewReader(r)
	for {
		frame, err := reader.Next()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				state.Fail(ErrStreamEnded.Error())
				return ErrStreamEnded
			}
			state.Fail(err.Error())
			return fmt.Errorf("read event stream: %w", err)
		}
		if frame.Data == "" {
			continue
		}
		ev, err := Normalize(frame.Event, []byte(frame.Data))
		if err != nil {
			tool.DefaultLogger.Warnf("[Client] Skipping malformed %q frame: %v", frame.Event, err)
			continue
		}
		state.Apply(ev)
		if onEvent != nil {
			onEvent(ev)
		}
		if ev.Terminal() {
			return nil
		}
	}
}
