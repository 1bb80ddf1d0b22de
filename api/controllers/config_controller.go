package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/moyoez/bill2sheet/tool"
)

const masked = "******"

// HandleUploadLimits returns what a client needs to check a batch before sending it.
// GET /api/v1/config
func HandleUploadLimits(c *gin.Context) {
	cfg := tool.GetCurrentConfig()
	c.JSON(http.StatusOK, gin.H{
		"maxFileCount":             cfg.Upload.MaxFileCount,
		"maxFileSizeBytes":         cfg.Upload.MaxFileSizeBytes,
		"bodyLimitBytes":           cfg.Server.BodyLimitBytes,
		"heartbeatIntervalSeconds": cfg.Upload.HeartbeatIntervalSeconds,
		"sessionTimeoutSeconds":    cfg.Upload.SessionTimeoutSeconds,
		"extractInline":            cfg.Upload.ExtractInline,
		"queueEnabled":             cfg.Queue.Enabled,
	})
}

// HandleConfigGet returns the loaded config with credentials masked.
// GET /api/v1/admin/config
func HandleConfigGet(c *gin.Context) {
	cfg := tool.GetCurrentConfig()
	if cfg.Database.DSN != "" {
		cfg.Database.DSN = masked
	}
	if cfg.Storage.SecretKey != "" {
		cfg.Storage.SecretKey = masked
	}
	c.JSON(http.StatusOK, gin.H{"config": cfg, "configPath": tool.ConfigPath})
}
