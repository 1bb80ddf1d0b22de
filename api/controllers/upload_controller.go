package controllers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/moyoez/bill2sheet/api/models"
	"github.com/moyoez/bill2sheet/api/stream"
	"github.com/moyoez/bill2sheet/pipeline"
	"github.com/moyoez/bill2sheet/tool"
	"github.com/moyoez/bill2sheet/types"
	"github.com/moyoez/bill2sheet/validator"
)

// SessionHeader carries the id of the session an upload stream belongs to.
const SessionHeader = "X-Session-Id"

type UploadController struct {
	upload     types.UploadConfig
	bodyLimit  int64
	dispatcher pipeline.Dispatcher
}

// NewUploadController builds the streaming upload endpoint. dispatcher may be nil,
// in which case files are only validated.
func NewUploadController(upload types.UploadConfig, bodyLimit int64, dispatcher pipeline.Dispatcher) *UploadController {
	return &UploadController{
		upload:     upload,
		bodyLimit:  bodyLimit,
		dispatcher: dispatcher,
	}
}

// HandleUpload reads the whole batch, rejects it up front when the request itself is
// broken, and otherwise answers with an event stream of the session.
func (ctrl *UploadController) HandleUpload(c *gin.Context) {
	if !isMultipart(c.Request) {
		c.JSON(http.StatusUnsupportedMediaType, tool.UploadError(errNotMultipart.Error(), http.StatusUnsupportedMediaType, nil))
		return
	}
	if ctrl.bodyLimit > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, ctrl.bodyLimit)
	}

	b, err := readBatch(c.Request.Context(), c.Request, ctrl.upload.MaxFileCount, ctrl.upload.MaxFileSizeBytes)
	if err != nil {
		releaseAll(b.units)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			tool.DefaultLogger.Warnf("[Upload] Body over %d bytes rejected", tooLarge.Limit)
			c.JSON(http.StatusRequestEntityTooLarge, tool.UploadError("Request body too large", http.StatusRequestEntityTooLarge, nil))
			return
		}
		tool.DefaultLogger.Errorf("[Upload] Failed to parse multipart body: %v", err)
		c.JSON(http.StatusBadRequest, tool.UploadError("Malformed multipart request", http.StatusBadRequest, nil))
		return
	}
	if b.count == 0 {
		c.JSON(http.StatusBadRequest, tool.UploadError(errNoFiles.Error(), http.StatusBadRequest, nil))
		return
	}
	if b.count > ctrl.upload.MaxFileCount {
		releaseAll(b.units)
		ec := types.CountExceeded(b.count, int64(ctrl.upload.MaxFileCount))
		tool.DefaultLogger.Warnf("[Upload] %s", ec.Message())
		c.JSON(http.StatusUnprocessableEntity, tool.UploadError(ec.Message(), http.StatusUnprocessableEntity, ec))
		return
	}

	sessionId := tool.NewSessionId()
	task := pipeline.Start(context.Background(), sessionId, pipeline.NewSliceSource(b.units), pipeline.Options{
		Limits:         validator.Limits{MaxFileSizeBytes: ctrl.upload.MaxFileSizeBytes},
		Timeout:        time.Duration(ctrl.upload.SessionTimeoutSeconds) * time.Second,
		BufferCapacity: ctrl.upload.EventBufferCapacity,
		Dispatcher:     ctrl.dispatcher,
	})
	models.RegisterSession(task)
	tool.DefaultLogger.Infof("[Upload] Session %s started with %d files from %s", sessionId, b.count, c.ClientIP())

	c.Header(SessionHeader, sessionId)
	stream.Serve(c, task, time.Duration(ctrl.upload.HeartbeatIntervalSeconds)*time.Second)
}

func releaseAll(units []*types.FileUnit) {
	for _, u := range units {
		u.Release()
	}
}
