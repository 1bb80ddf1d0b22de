package notifyhub

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/moyoez/bill2sheet/tool"
	"github.com/moyoez/bill2sheet/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS is wide open for the web UI anyway
	},
}

const writeWait = 10 * time.Second

// HubLookup resolves the hub of an in-flight session.
type HubLookup func(sessionId string) (*Hub, bool)

// HandleSessionWS mirrors the events of a running session onto a WebSocket.
// The connection closes after the terminal event or when the session hub closes.
func HandleSessionWS(lookup HubLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionId := c.Param("id")
		hub, ok := lookup(sessionId)
		if !ok || hub.Closed() {
			c.JSON(http.StatusNotFound, tool.FastReturnError("Session not found or already finished"))
			return
		}
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			tool.DefaultLogger.Warnf("[SessionWS] Upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		events, unsubscribe := hub.Subscribe()
		defer unsubscribe()

		// Read loop to detect client close
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		tool.DefaultLogger.Debugf("[SessionWS] Mirroring session %s", sessionId)
		for {
			select {
			case <-gone:
				return
			case ev, ok := <-events:
				if !ok {
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
					return
				}
				payload, err := types.EncodeEvent(ev)
				if err != nil {
					tool.DefaultLogger.Errorf("[SessionWS] Encode event: %v", err)
					continue
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					return
				}
				if ev.EventType().IsTerminal() {
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
					return
				}
			}
		}
	}
}
