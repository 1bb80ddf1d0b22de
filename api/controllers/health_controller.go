package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/moyoez/bill2sheet/repository"
	"github.com/moyoez/bill2sheet/tool"
)

const healthTimeout = 3 * time.Second

type HealthController struct {
	checker repository.HealthChecker
}

// NewHealthController reports on checker. A nil checker means in-memory storage.
func NewHealthController(checker repository.HealthChecker) *HealthController {
	return &HealthController{checker: checker}
}

func (ctrl *HealthController) HandleHealth(c *gin.Context) {
	if ctrl.checker == nil {
		c.JSON(http.StatusOK, gin.H{
			"status":              "healthy",
			"database_accessible": true,
			"storage":             "memory",
		})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()
	if err := ctrl.checker.Ping(ctx); err != nil {
		tool.DefaultLogger.Warnf("[Health] Database ping failed: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":              "unhealthy",
			"database_accessible": false,
			"error":               err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":              "healthy",
		"database_accessible": true,
		"pool":                ctrl.checker.Stats(),
	})
}
