package tool

import (
	"maps"

	"github.com/gin-gonic/gin"

	"github.com/moyoez/bill2sheet/types"
)

func FastReturnError(msg string) gin.H {
	return gin.H{
		"error": msg,
	}
}

func FastReturnSuccess() gin.H {
	return gin.H{
		"status": "ok",
	}
}

func FastReturnErrorWithData(msg string, data map[string]any) gin.H {
	resp := gin.H{
		"error": msg,
	}
	maps.Copy(resp, data)
	return resp
}

// UploadError is the body of an upload rejected before any stream starts. code is set when
// the whole batch failed a validation rule, e.g. count_exceeded.
func UploadError(msg string, status int, code *types.ErrorCode) gin.H {
	resp := gin.H{
		"success": false,
		"error":   msg,
		"status":  status,
	}
	if code != nil {
		resp["errorCode"] = code
	}
	return resp
}
