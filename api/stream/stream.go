// Package stream writes session events to an HTTP client as server-sent events.
package stream

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"

	"github.com/moyoez/bill2sheet/pipeline"
	"github.com/moyoez/bill2sheet/tool"
	"github.com/moyoez/bill2sheet/types"
)

const heartbeatFrame = ": heartbeat\n\n"

// DefaultHeartbeat is used when no interval is configured.
const DefaultHeartbeat = 15 * time.Second

// WriteEvent writes one frame: the event type as the SSE event name and the
// {type,data} envelope as data.
func WriteEvent(w io.Writer, ev types.ProcessingEvent) error {
	payload, err := types.EncodeEvent(ev)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ev.EventType(), err)
	}
	ew := &errWriter{w: w}
	if err := sse.Encode(ew, sse.Event{Event: string(ev.EventType()), Data: string(payload)}); err != nil {
		return err
	}
	return ew.err
}

// errWriter keeps the first write error; sse.Encode does not report them.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(p)
	if err != nil {
		e.err = err
	}
	return n, err
}

// WriteHeartbeat writes a comment frame that clients ignore.
func WriteHeartbeat(w io.Writer) error {
	_, err := io.WriteString(w, heartbeatFrame)
	return err
}

// SetHeaders prepares the response for an event stream.
func SetHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", sse.ContentType)
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// Serve streams the events of task until its channel closes. A done request
// context or a failed write cancels the session as a client disconnect.
func Serve(c *gin.Context, task *pipeline.Task, heartbeat time.Duration) {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	SetHeaders(c.Writer)
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	disconnect := func(reason string) {
		tool.DefaultLogger.Warnf("[Stream] Session %s: %s", task.ID(), reason)
		task.Cancel(pipeline.ErrClientDisconnected)
		task.Detach()
	}

	ctx := c.Request.Context()
	events := task.Events()
	for {
		select {
		case <-ctx.Done():
			disconnect("client went away")
			return
		case <-ticker.C:
			if err := WriteHeartbeat(c.Writer); err != nil {
				disconnect("heartbeat write failed: " + err.Error())
				return
			}
			c.Writer.Flush()
		case ev, ok := <-events:
			if !ok {
				tool.DefaultLogger.Debugf("[Stream] Session %s stream closed", task.ID())
				return
			}
			if err := WriteEvent(c.Writer, ev); err != nil {
				disconnect("event write failed: " + err.Error())
				return
			}
			c.Writer.Flush()
		}
	}
}
