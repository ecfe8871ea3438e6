package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/amd-agi/genforge/internal/logger/log"
)

// handleWebSocket upgrades the connection and registers it with the
// Progress Bus; the server tolerates and ignores any inbound message
// (spec §6 WebSocket contract). A connection only ever produces updates
// outbound, so the only reason to read from it at all is to drain
// client-sent frames and notice disconnects.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warnf("websocket upgrade failed: %v", err)
		return
	}

	unsubscribe := s.Bus.Subscribe(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			unsubscribe()
			return
		}
	}
}
