package http

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"
)

var ssePingInterval = 15 * time.Second

// handleEvents streams presenter events as server-sent events until the client goes away.
func (s *Server) handleEvents(c *gin.Context) {
	events, cancel := s.deps.Hub.Subscribe()
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ping := time.NewTicker(ssePingInterval)
	defer ping.Stop()
	ctx := c.Request.Context()

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Type), ev)
			return true
		case <-ping.C:
			c.SSEvent("ping", time.Now().Unix())
			return true
		}
	})
}
