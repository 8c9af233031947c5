package api

import (
	"net/http"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
)

// wsHandler upgrades HTTP connections to WebSocket and delegates to the
// ConnectionManager.
func (s *Server) wsHandler(c *gin.Context) {
	if s.connManager == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "WebSocket not available"})
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		// Dashboards connect cross-origin behind the auth proxy, which
		// already enforces the allowed origins.
		InsecureSkipVerify: true,
	})
	if err != nil {
		// Accept already wrote the HTTP error response.
		return
	}

	// HandleConnection blocks until the WebSocket closes.
	s.connManager.HandleConnection(c.Request.Context(), conn)
}
