package apihttp

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"tradedesk/internal/live"
	"tradedesk/internal/logger"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// plSocket attaches the connection to the hub; inbound frames are read and discarded.
func plSocket(hub *live.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warnf("ws upgrade failed ip=%s: %v", c.ClientIP(), err)
			return
		}
		obs := hub.Attach()
		log := logger.With("observer", obs.ID(), "ip", c.ClientIP())
		log.Debugf("ws observer attached")

		go func() {
			defer hub.Detach(obs)
			for {
				if _, _, err := conn.NextReader(); err != nil {
					return
				}
			}
		}()

		ping := time.NewTicker(wsPingPeriod)
		defer func() {
			ping.Stop()
			hub.Detach(obs)
			_ = conn.Close()
			log.Debugf("ws observer detached")
		}()
		for {
			select {
			case frame, ok := <-obs.C():
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if !ok {
					_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
					return
				}
			case <-ping.C:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}
}
