package controllers

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/moyoez/bill2sheet/ocr"
	"github.com/moyoez/bill2sheet/repository"
	"github.com/moyoez/bill2sheet/tool"
	"github.com/moyoez/bill2sheet/types"
	"github.com/moyoez/bill2sheet/validator"
)

// ImageField is the multipart field of the single image OCR endpoint.
const ImageField = "image"

type OcrController struct {
	extractor ocr.Extractor
	repo      repository.BillRepository
	limits    validator.Limits
	timeout   time.Duration
}

func NewOcrController(ex ocr.Extractor, repo repository.BillRepository, limits validator.Limits, timeout time.Duration) *OcrController {
	return &OcrController{extractor: ex, repo: repo, limits: limits, timeout: timeout}
}

// HandleExtract runs OCR on one image and returns the bill rows. With save=true they
// are stored as well.
func (ctrl *OcrController) HandleExtract(c *gin.Context) {
	if ctrl.extractor == nil {
		c.JSON(http.StatusServiceUnavailable, tool.FastReturnError("OCR is not configured"))
		return
	}
	fh, err := c.FormFile(ImageField)
	if err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Missing required file: image"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Failed to read uploaded file"))
		return
	}
	defer f.Close()
	var buf bytes.Buffer
	if _, err := copyWithContext(c.Request.Context(), &buf, f); err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Failed to read uploaded file"))
		return
	}

	info, rejection := validator.Validate(buf.Bytes(), fh.Filename, fh.Size, 0, ctrl.limits)
	if rejection != nil {
		c.JSON(rejectionStatus(rejection), tool.FastReturnErrorWithData(rejection.Message(), map[string]any{
			"errorCode": rejection,
		}))
		return
	}

	ctx := c.Request.Context()
	if ctrl.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ctrl.timeout)
		defer cancel()
	}
	res, err := ctrl.extractor.Extract(ctx, buf.Bytes(), info.ContentType)
	if err != nil {
		tool.DefaultLogger.Errorf("[OCR] Extraction of %s failed: %v", fh.Filename, err)
		c.JSON(http.StatusBadGateway, tool.FastReturnError("OCR extraction failed"))
		return
	}

	bills := res.Bills()
	saved := false
	if c.Query("save") == "true" {
		stored, err := ctrl.repo.CreateMany(ctx, bills)
		if err != nil {
			tool.DefaultLogger.Errorf("[OCR] Saving %d bills failed: %v", len(bills), err)
			c.JSON(http.StatusInternalServerError, tool.FastReturnError("Failed to save bills"))
			return
		}
		bills, saved = stored, true
	}
	c.JSON(http.StatusOK, gin.H{
		"file":  info,
		"bills": bills,
		"saved": saved,
	})
}

func rejectionStatus(ec *types.ErrorCode) int {
	switch ec.Code {
	case types.CodeSizeExceeded:
		return http.StatusRequestEntityTooLarge
	case types.CodeUnsupportedFormat:
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusBadRequest
	}
}
