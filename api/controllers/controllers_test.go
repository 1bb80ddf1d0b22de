package controllers

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"

	"github.com/moyoez/bill2sheet/api/models"
	"github.com/moyoez/bill2sheet/ocr"
	"github.com/moyoez/bill2sheet/repository"
	"github.com/moyoez/bill2sheet/types"
	"github.com/moyoez/bill2sheet/validator"
)

func testUploadConfig() types.UploadConfig {
	return types.UploadConfig{
		MaxFileCount:             10,
		MaxFileSizeBytes:         2 << 20,
		EventBufferCapacity:      100,
		HeartbeatIntervalSeconds: 15,
		SessionTimeoutSeconds:    10,
	}
}

type fakeExtractor struct{ err error }

func (f fakeExtractor) Extract(ctx context.Context, image []byte, mimeType string) (ocr.Result, error) {
	if f.err != nil {
		return ocr.Result{}, f.err
	}
	return ocr.Result{
		Invoice: ocr.Invoice{InvoiceNo: types.StrPtr("0000777")},
		Items:   []ocr.Item{{ItemName: types.StrPtr("Giấy A4")}, {ItemName: types.StrPtr("Bút bi")}},
	}, nil
}

// setupRouter creates a test router with the upload, session and bill endpoints
func setupRouter(repo repository.BillRepository, bodyLimit int64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	upload := NewUploadController(testUploadConfig(), bodyLimit, nil)
	bills := NewBillController(repo)
	ocrCtrl := NewOcrController(fakeExtractor{}, repo, validator.Limits{MaxFileSizeBytes: 2 << 20}, time.Second)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/upload", upload.HandleUpload)
		v1.POST("/ocr", ocrCtrl.HandleExtract)
		v1.GET("/sessions/:id", HandleSessionStatus)
		v1.POST("/sessions/:id/cancel", HandleSessionCancel)
		v1.DELETE("/sessions/:id", HandleSessionDelete)
		v1.GET("/bills", bills.HandleList)
		v1.GET("/bills/paginated", bills.HandlePaginated)
		v1.GET("/bills/count", bills.HandleCount)
		v1.GET("/bills/search", bills.HandleSearch)
		v1.GET("/bills/export", bills.HandleExport)
		v1.GET("/bills/:id", bills.HandleGet)
		v1.POST("/bills", bills.HandleCreate)
		v1.PUT("/bills/:id", bills.HandleUpdate)
		v1.DELETE("/bills/:id", bills.HandleDelete)
	}
	return router
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.Set(2, 2, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

type part struct {
	field, name string
	data        []byte
}

func multipartBody(t *testing.T, parts ...part) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, p := range parts {
		fw, err := w.CreateFormFile(p.field, p.name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write(p.data); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return &body, w.FormDataContentType()
}

func images(t *testing.T, n int) []part {
	parts := make([]part, n)
	for i := range parts {
		parts[i] = part{field: ImagesField, name: "invoice.jpg", data: jpegBytes(t)}
	}
	return parts
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := sonic.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not JSON: %v\n%s", err, w.Body.String())
	}
	return out
}

// sseTypes returns the event names of an SSE body in order.
func sseTypes(body string) []string {
	var out []string
	for _, line := range strings.Split(body, "\n") {
		if name, ok := strings.CutPrefix(line, "event:"); ok {
			out = append(out, strings.TrimSpace(name))
		}
	}
	return out
}

func TestUploadStreamsSession(t *testing.T) {
	router := setupRouter(repository.NewMemoryBills(), 50<<20)
	body, ct := multipartBody(t, images(t, 3)...)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("content type = %q", ct)
	}
	got := sseTypes(w.Body.String())
	want := []string{"upload_started"}
	for i := 0; i < 3; i++ {
		want = append(want, "file_received", "file_validation_started", "file_validation_succeeded")
	}
	want = append(want, "batch_validated", "processing_completed")
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v\nwant %v", got, want)
	}

	sessionId := w.Header().Get(SessionHeader)
	task, ok := models.LookupSession(sessionId)
	if !ok {
		t.Fatalf("session %q not registered", sessionId)
	}
	if s := task.Wait(); s.Status != types.SessionCompleted || s.SuccessCount != 3 {
		t.Errorf("snapshot = %+v", s)
	}

	sw := httptest.NewRecorder()
	router.ServeHTTP(sw, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+sessionId, nil))
	if sw.Code != http.StatusOK || decodeBody(t, sw)["status"] != "completed" {
		t.Errorf("status endpoint = %d %s", sw.Code, sw.Body.String())
	}
	cw := httptest.NewRecorder()
	router.ServeHTTP(cw, httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+sessionId+"/cancel", nil))
	if cw.Code != http.StatusConflict {
		t.Errorf("cancel after finish = %d", cw.Code)
	}

	dw := httptest.NewRecorder()
	router.ServeHTTP(dw, httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/"+sessionId, nil))
	if dw.Code != http.StatusOK {
		t.Errorf("delete = %d", dw.Code)
	}
	if _, ok := models.LookupSession(sessionId); ok {
		t.Error("session still registered after delete")
	}
}

func TestUploadRejectsBadFilesIndividually(t *testing.T) {
	router := setupRouter(repository.NewMemoryBills(), 50<<20)
	parts := append(images(t, 1),
		part{field: ImagesField, name: "empty.jpg"},
		part{field: ImagesField, name: "notes.txt", data: []byte("plain text")},
	)
	body, ct := multipartBody(t, parts...)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	out := w.Body.String()
	if n := strings.Count(out, "event:file_validation_failed"); n != 2 {
		t.Errorf("failed events = %d, want 2\n%s", n, out)
	}
	if !strings.Contains(out, `"code":"empty"`) || !strings.Contains(out, `"code":"unsupported_format"`) {
		t.Errorf("missing error codes:\n%s", out)
	}
	if !strings.Contains(out, "event:processing_completed") {
		t.Error("batch must still complete")
	}
}

func TestUploadPreStreamErrors(t *testing.T) {
	tests := []struct {
		name   string
		limit  int64
		build  func(t *testing.T) (*bytes.Buffer, string)
		status int
	}{
		{"no files", 50 << 20, func(t *testing.T) (*bytes.Buffer, string) {
			return multipartBody(t, part{field: "other", name: "x.jpg", data: []byte("x")})
		}, http.StatusBadRequest},
		{"too many files", 50 << 20, func(t *testing.T) (*bytes.Buffer, string) {
			return multipartBody(t, images(t, 11)...)
		}, http.StatusUnprocessableEntity},
		{"not multipart", 50 << 20, func(t *testing.T) (*bytes.Buffer, string) {
			return bytes.NewBufferString(`{"images":[]}`), "application/json"
		}, http.StatusUnsupportedMediaType},
		{"body too large", 1024, func(t *testing.T) (*bytes.Buffer, string) {
			return multipartBody(t, part{field: ImagesField, name: "big.jpg", data: make([]byte, 4096)})
		}, http.StatusRequestEntityTooLarge},
		{"malformed multipart", 50 << 20, func(t *testing.T) (*bytes.Buffer, string) {
			return bytes.NewBufferString("--nope\r\ngarbage"), "multipart/form-data; boundary=other"
		}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupRouter(repository.NewMemoryBills(), tt.limit)
			body, ct := tt.build(t)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", body)
			req.Header.Set("Content-Type", ct)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.status, w.Body.String())
			}
			resp := decodeBody(t, w)
			if resp["success"] != false || resp["error"] == "" || resp["status"] != float64(tt.status) {
				t.Errorf("body = %v", resp)
			}
		})
	}
}

func TestCountErrorReportsRealCount(t *testing.T) {
	router := setupRouter(repository.NewMemoryBills(), 50<<20)
	body, ct := multipartBody(t, images(t, 12)...)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	resp := decodeBody(t, w)
	if msg, _ := resp["error"].(string); !strings.Contains(msg, "12") || !strings.Contains(msg, "10") {
		t.Errorf("message %q should name count and limit", msg)
	}
	code, _ := resp["errorCode"].(map[string]any)
	if code["code"] != "count_exceeded" || code["count"] != float64(12) || code["limit"] != float64(10) {
		t.Errorf("errorCode = %v", resp["errorCode"])
	}
}

func TestSessionNotFound(t *testing.T) {
	router := setupRouter(repository.NewMemoryBills(), 0)
	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/api/v1/sessions/missing", nil),
		httptest.NewRequest(http.MethodPost, "/api/v1/sessions/missing/cancel", nil),
		httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/missing", nil),
	} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusNotFound {
			t.Errorf("%s %s = %d", req.Method, req.URL.Path, w.Code)
		}
	}
}

func TestBillEndpoints(t *testing.T) {
	repo := repository.NewMemoryBills()
	router := setupRouter(repo, 0)
	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	w := do(http.MethodPost, "/api/v1/bills", `{"invoice_no":"HD-01","issued_date":"2025-02-14","vat_rate":10}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", w.Code, w.Body.String())
	}
	created := decodeBody(t, w)
	if created["id"] != float64(1) || created["issued_date"] != "2025-02-14" {
		t.Errorf("created = %v", created)
	}

	if w := do(http.MethodPut, "/api/v1/bills/1", `{"seller_name":"Công ty ABC"}`); w.Code != http.StatusOK {
		t.Errorf("update = %d", w.Code)
	} else if b := decodeBody(t, w); b["seller_name"] != "Công ty ABC" || b["invoice_no"] != "HD-01" {
		t.Errorf("updated = %v", b)
	}

	if w := do(http.MethodGet, "/api/v1/bills/search?invoice_no=hd", ""); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "HD-01") {
		t.Errorf("search = %d %s", w.Code, w.Body.String())
	}
	if w := do(http.MethodGet, "/api/v1/bills/search", ""); w.Code != http.StatusBadRequest {
		t.Errorf("search without query = %d", w.Code)
	}
	if w := do(http.MethodGet, "/api/v1/bills", ""); decodeBody(t, w)["total"] != float64(1) {
		t.Errorf("list = %s", w.Body.String())
	}
	if w := do(http.MethodGet, "/api/v1/bills/count", ""); decodeBody(t, w)["count"] != float64(1) {
		t.Errorf("count = %s", w.Body.String())
	}
	if w := do(http.MethodGet, "/api/v1/bills/paginated?page=1&page_size=5", ""); decodeBody(t, w)["total_pages"] != float64(1) {
		t.Errorf("paginated = %s", w.Body.String())
	}

	w = do(http.MethodGet, "/api/v1/bills/export?format=csv", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Header().Get("Content-Disposition"), "bills_export_") {
		t.Errorf("export = %d %v", w.Code, w.Header())
	}
	if w := do(http.MethodGet, "/api/v1/bills/export?format=pdf", ""); w.Code != http.StatusBadRequest {
		t.Errorf("pdf export = %d", w.Code)
	}

	if w := do(http.MethodDelete, "/api/v1/bills/1", ""); w.Code != http.StatusOK {
		t.Errorf("delete = %d", w.Code)
	}
	w = do(http.MethodGet, "/api/v1/bills/1", "")
	if w.Code != http.StatusNotFound || decodeBody(t, w)["error"] != "Bill not found" {
		t.Errorf("get deleted = %d %s", w.Code, w.Body.String())
	}
	if w := do(http.MethodGet, "/api/v1/bills/abc", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad id = %d", w.Code)
	}
}

func TestOcrEndpoint(t *testing.T) {
	repo := repository.NewMemoryBills()
	router := setupRouter(repo, 0)

	body, ct := multipartBody(t, part{field: ImageField, name: "hd.jpg", data: jpegBytes(t)})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ocr?save=true", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("ocr = %d %s", w.Code, w.Body.String())
	}
	if decodeBody(t, w)["saved"] != true {
		t.Error("bills should be saved")
	}
	if n, _ := repo.Count(context.Background()); n != 2 {
		t.Errorf("stored %d bills, want 2", n)
	}

	body, ct = multipartBody(t, part{field: ImageField, name: "a.txt", data: []byte("hello")})
	req = httptest.NewRequest(http.MethodPost, "/api/v1/ocr", body)
	req.Header.Set("Content-Type", ct)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnsupportedMediaType {
		t.Errorf("text file = %d", w.Code)
	}
}

type fakeChecker struct{ err error }

func (f fakeChecker) Ping(ctx context.Context) error { return f.err }
func (f fakeChecker) Stats() repository.PoolStats  { return repository.PoolStats{MaxConns: 8} }

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	for _, tt := range []struct {
		checker repository.HealthChecker
		status  int
		want    string
	}{
		{nil, http.StatusOK, "healthy"},
		{fakeChecker{}, http.StatusOK, "healthy"},
		{fakeChecker{err: errors.New("connection refused")}, http.StatusServiceUnavailable, "unhealthy"},
	} {
		router := gin.New()
		router.GET("/health", NewHealthController(tt.checker).HandleHealth)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		if w.Code != tt.status || decodeBody(t, w)["status"] != tt.want {
			t.Errorf("health = %d %s", w.Code, w.Body.String())
		}
	}
}

func TestQRCodeDefaultsToUploadLink(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/qrcode", HandleUploadQRCode)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/qrcode?size=128x128", nil))
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
		t.Errorf("qrcode = %d %s", w.Code, w.Header().Get("Content-Type"))
	}
	if !strings.HasSuffix(uploadLink(), UploadPagePath) {
		t.Errorf("upload link = %q", uploadLink())
	}
}

func TestQRSize(t *testing.T) {
	for in, want := range map[string]int{"": defaultQRSize, "300x300": 300, "300": 300, "10": minQRSize, "4096x4096": maxQRSize, "abc": defaultQRSize} {
		if got := qrSize(in); got != want {
			t.Errorf("qrSize(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestReadBatchStopsBufferingPastFileLimit(t *testing.T) {
	big := make([]byte, 5000)
	copy(big, jpegBytes(t))
	body, ct := multipartBody(t,
		part{field: ImagesField, name: "big.jpg", data: big},
		part{field: ImagesField, name: "small.jpg", data: jpegBytes(t)},
	)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", body)
	req.Header.Set("Content-Type", ct)

	b, err := readBatch(context.Background(), req, 10, 1024)
	if err != nil {
		t.Fatal(err)
	}
	if len(b.units) != 2 {
		t.Fatalf("units = %d", len(b.units))
	}
	if b.units[0].SizeBytes != 5000 || len(b.units[0].Content) != 1024 {
		t.Errorf("big part: measured %d, kept %d", b.units[0].SizeBytes, len(b.units[0].Content))
	}
	small := b.units[1]
	if small.SizeBytes != int64(len(small.Content)) || !bytes.Equal(small.Content, jpegBytes(t)) {
		t.Errorf("small part changed: measured %d, kept %d", small.SizeBytes, len(small.Content))
	}
}

func TestOversizedFileReportsMeasuredSize(t *testing.T) {
	router := setupRouter(repository.NewMemoryBills(), 50<<20)
	big := make([]byte, 3<<20)
	copy(big, jpegBytes(t))
	body, ct := multipartBody(t, part{field: ImagesField, name: "scan.jpg", data: big})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	out := w.Body.String()
	if !strings.Contains(out, `"code":"size_exceeded"`) || !strings.Contains(out, `"actual":3145728`) || !strings.Contains(out, `"limit":2097152`) {
		t.Errorf("size_exceeded should carry the received size:\n%s", out)
	}
	if !strings.Contains(out, "event:processing_completed") {
		t.Error("batch must still complete")
	}
}
