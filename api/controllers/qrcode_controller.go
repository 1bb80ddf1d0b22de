package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"

	"github.com/moyoez/bill2sheet/tool"
)

const (
	defaultQRSize = 200
	minQRSize     = 64
	maxQRSize     = 512
)

// UploadPagePath is what a phone opens after scanning the upload QR code.
const UploadPagePath = "/upload"

// HandleUploadQRCode returns a PNG QR code that sends a phone to the upload page.
// GET ?size=200x200&data=<url>. data overrides the link; the size syntax follows the
// api.qrserver.com create-qr-code API.
func HandleUploadQRCode(c *gin.Context) {
	link := strings.TrimSpace(c.Query("data"))
	if link == "" {
		link = uploadLink()
	}

	png, err := qrcode.Encode(link, qrcode.Medium, qrSize(c.Query("size")))
	if err != nil {
		tool.DefaultLogger.Errorf("[QR] Failed to encode %q: %v", link, err)
		c.JSON(http.StatusInternalServerError, tool.FastReturnError("Failed to encode QR code"))
		return
	}
	// the LAN address can change between restarts
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

// qrSize reads "200x200" or "200" and clamps it to what a phone camera can scan.
func qrSize(s string) int {
	s, _, _ = strings.Cut(strings.TrimSpace(s), "x")
	n, err := strconv.Atoi(strings.TrimSpace(s))
	switch {
	case err != nil || n <= 0:
		return defaultQRSize
	case n < minQRSize:
		return minQRSize
	case n > maxQRSize:
		return maxQRSize
	}
	return n
}

// uploadLink prefers publicBaseUrl, since behind a proxy the LAN guess is wrong.
func uploadLink() string {
	cfg := tool.GetCurrentConfig()
	base := strings.TrimSuffix(cfg.PublicBaseUrl, "/")
	if base == "" {
		base = tool.LanBaseURL(cfg.Server.Port)
	}
	return base + UploadPagePath
}
