package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const presenceWriteWait = 10 * time.Second

// handlePresence handles GET /v1/ws. Clients hold the socket open and treat
// a live connection as "online". The server only sends pings; anything the
// client sends is read and discarded.
func (s *Server) handlePresence(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logFor(r.Context()).Debug("presence upgrade", "err", err)
		return
	}
	defer conn.Close()

	s.metrics.PresenceOpened()
	defer s.metrics.PresenceClosed()
	log := logFor(r.Context())
	log.Debug("presence open")

	readWait := 2*s.config.WSPingInterval + presenceWriteWait
	conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Debug("presence read", "err", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(s.config.WSPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			log.Debug("presence closed")
			return
		case <-s.closing.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(presenceWriteWait))
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(presenceWriteWait)); err != nil {
				log.Debug("presence ping", "err", err)
				return
			}
		}
	}
}
