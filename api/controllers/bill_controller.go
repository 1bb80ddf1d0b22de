package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"

	"github.com/moyoez/bill2sheet/export"
	"github.com/moyoez/bill2sheet/repository"
	"github.com/moyoez/bill2sheet/tool"
	"github.com/moyoez/bill2sheet/types"
)

type BillController struct {
	repo repository.BillRepository
	now  func() time.Time
}

func NewBillController(repo repository.BillRepository) *BillController {
	return &BillController{repo: repo, now: time.Now}
}

func (ctrl *BillController) HandleList(c *gin.Context) {
	skip, err1 := queryInt(c, "skip", 0)
	limit, err2 := queryInt(c, "limit", 100)
	if err1 != nil || err2 != nil || skip < 0 || limit < 0 {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("skip and limit must be non-negative integers"))
		return
	}
	ctx := c.Request.Context()
	bills, err := ctrl.repo.List(ctx, skip, limit)
	if err != nil {
		ctrl.internal(c, "list", err)
		return
	}
	total, err := ctrl.repo.Count(ctx)
	if err != nil {
		ctrl.internal(c, "count", err)
		return
	}
	if bills == nil {
		bills = []types.Bill{}
	}
	c.JSON(http.StatusOK, gin.H{"items": bills, "total": total})
}

func (ctrl *BillController) HandlePaginated(c *gin.Context) {
	page, err1 := queryInt(c, "page", 1)
	size, err2 := queryInt(c, "page_size", repository.DefaultPageSize)
	if err1 != nil || err2 != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("page and page_size must be integers"))
		return
	}
	result, err := repository.Paginate(c.Request.Context(), ctrl.repo, page, size)
	if err != nil {
		ctrl.internal(c, "paginate", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (ctrl *BillController) HandleCount(c *gin.Context) {
	total, err := ctrl.repo.Count(c.Request.Context())
	if err != nil {
		ctrl.internal(c, "count", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": total})
}

func (ctrl *BillController) HandleSearch(c *gin.Context) {
	invoiceNo := c.Query("invoice_no")
	if invoiceNo == "" {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Missing required parameter: invoice_no"))
		return
	}
	bills, err := ctrl.repo.Search(c.Request.Context(), invoiceNo)
	if err != nil {
		ctrl.internal(c, "search", err)
		return
	}
	if bills == nil {
		bills = []types.Bill{}
	}
	c.JSON(http.StatusOK, bills)
}

func (ctrl *BillController) HandleGet(c *gin.Context) {
	id, ok := billID(c)
	if !ok {
		return
	}
	bill, err := ctrl.repo.Get(c.Request.Context(), id)
	if err != nil {
		ctrl.fail(c, "get", err)
		return
	}
	c.JSON(http.StatusOK, bill)
}

func (ctrl *BillController) HandleCreate(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Failed to read request body"))
		return
	}
	var bill types.Bill
	if err := sonic.Unmarshal(body, &bill); err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Invalid request body"))
		return
	}
	bill.ID = 0
	created, err := ctrl.repo.Create(c.Request.Context(), bill)
	if err != nil {
		ctrl.internal(c, "create", err)
		return
	}
	tool.DefaultLogger.Infof("[Bills] Created bill %d", created.ID)
	c.JSON(http.StatusCreated, created)
}

func (ctrl *BillController) HandleUpdate(c *gin.Context) {
	id, ok := billID(c)
	if !ok {
		return
	}
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Failed to read request body"))
		return
	}
	var patch types.BillPatch
	if err := sonic.Unmarshal(body, &patch); err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Invalid request body"))
		return
	}
	updated, err := ctrl.repo.Update(c.Request.Context(), id, patch)
	if err != nil {
		ctrl.fail(c, "update", err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (ctrl *BillController) HandleDelete(c *gin.Context) {
	id, ok := billID(c)
	if !ok {
		return
	}
	if err := ctrl.repo.Delete(c.Request.Context(), id); err != nil {
		ctrl.fail(c, "delete", err)
		return
	}
	tool.DefaultLogger.Infof("[Bills] Deleted bill %d", id)
	c.JSON(http.StatusOK, gin.H{"message": "Bill deleted successfully"})
}

// HandleExport downloads every bill as csv (default) or xlsx.
func (ctrl *BillController) HandleExport(c *gin.Context) {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError(err.Error()))
		return
	}
	bills, err := ctrl.repo.List(c.Request.Context(), 0, 0)
	if err != nil {
		ctrl.internal(c, "export", err)
		return
	}
	data, err := export.Export(bills, format)
	if err != nil {
		ctrl.internal(c, "export", err)
		return
	}
	name := tool.ExportFileName(format.Extension(), ctrl.now())
	tool.DefaultLogger.Infof("[Bills] Exported %d bills as %s", len(bills), name)
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, format.ContentType(), data)
}

func (ctrl *BillController) fail(c *gin.Context, op string, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, tool.FastReturnError("Bill not found"))
		return
	}
	ctrl.internal(c, op, err)
}

func (ctrl *BillController) internal(c *gin.Context, op string, err error) {
	tool.DefaultLogger.Errorf("[Bills] %s failed: %v", op, err)
	c.JSON(http.StatusInternalServerError, tool.FastReturnError("Internal server error"))
}

func billID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Invalid bill id"))
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}
