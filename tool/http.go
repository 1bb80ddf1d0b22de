package tool

import (
	"net"
	"net/http"
	"time"
)

var (
	DefaultTimeout = 30 * time.Second
	// StreamHttpClient has no overall timeout: an upload stream lasts as long as the session.
	StreamHttpClient = NewStreamHTTPClient()
)

// NewStreamHTTPClient creates a client for long-lived event streams. Only the dial and
// response header phases are bounded.
func NewStreamHTTPClient() *http.Client {
	dialer := &net.Dialer{
		Timeout:   DefaultTimeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: 2 * time.Minute,
	}
	return &http.Client{Transport: transport}
}

func GetHttpClient() *http.Client {
	return StreamHttpClient
}
