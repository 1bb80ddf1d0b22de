package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/moyoez/bill2sheet/api/models"
	"github.com/moyoez/bill2sheet/pipeline"
	"github.com/moyoez/bill2sheet/tool"
)

// HandleSessionStatus returns the current snapshot of a session.
func HandleSessionStatus(c *gin.Context) {
	task, ok := models.LookupSession(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, tool.FastReturnError("Session not found"))
		return
	}
	c.JSON(http.StatusOK, task.Snapshot())
}

// HandleSessionCancel stops a running session as if its client had disconnected.
func HandleSessionCancel(c *gin.Context) {
	sessionId := c.Param("id")
	task, ok := models.LookupSession(sessionId)
	if !ok {
		c.JSON(http.StatusNotFound, tool.FastReturnError("Session not found"))
		return
	}
	select {
	case <-task.Done():
		c.JSON(http.StatusConflict, tool.FastReturnErrorWithData("Session already finished", map[string]any{
			"status": task.Snapshot().Status,
		}))
		return
	default:
	}
	task.Cancel(pipeline.ErrClientDisconnected)
	tool.DefaultLogger.Infof("[Session] Session %s cancelled by request from %s", sessionId, c.ClientIP())
	c.JSON(http.StatusOK, tool.FastReturnSuccess())
}

// HandleSessionDelete forgets a session, stopping it first when it is still running.
func HandleSessionDelete(c *gin.Context) {
	sessionId := c.Param("id")
	if !models.CancelSession(sessionId, pipeline.ErrCancelled) {
		c.JSON(http.StatusNotFound, tool.FastReturnError("Session not found"))
		return
	}
	models.RemoveSession(sessionId)
	c.JSON(http.StatusOK, tool.FastReturnSuccess())
}
