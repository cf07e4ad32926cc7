package connectivity

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Server pings arrive every 30s; a missed pair means the link is gone.
	readTimeout    = 65 * time.Second
	minRetryDelay  = time.Second
	maxRetryDelay  = 30 * time.Second
	handshakeLimit = 10 * time.Second
)

// Socket treats a live websocket to the server's presence channel as
// "online". It reconnects with capped exponential backoff until its context
// is cancelled.
type Socket struct {
	notifier

	url    string
	apiKey string
	dialer *websocket.Dialer
	logger *slog.Logger
}

// NewSocket returns a monitor for the server at baseURL (http or https).
// It starts offline; call Run to connect.
func NewSocket(baseURL, apiKey string, logger *slog.Logger) *Socket {
	if logger == nil {
		logger = slog.Default()
	}
	return &Socket{
		url:    wsURL(baseURL),
		apiKey: apiKey,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeLimit,
		},
		logger: logger,
	}
}

func wsURL(baseURL string) string {
	u := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/v1/ws"
}

// Run keeps the presence connection alive until ctx is done.
func (s *Socket) Run(ctx context.Context) {
	delay := minRetryDelay
	for {
		connected := s.session(ctx)
		s.set(false)
		if ctx.Err() != nil {
			return
		}
		if connected {
			delay = minRetryDelay
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxRetryDelay {
			delay = maxRetryDelay
		}
	}
}

// session dials once and blocks until the connection drops. It reports
// whether the dial succeeded.
func (s *Socket) session(ctx context.Context) bool {
	header := http.Header{}
	if s.apiKey != "" {
		header.Set("Authorization", "Bearer "+s.apiKey)
	}
	conn, resp, err := s.dialer.DialContext(ctx, s.url, header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		s.logger.Debug("presence dial failed", "url", s.url, "status", status, "err", err)
		return false
	}
	defer conn.Close()

	// Closing the conn unblocks ReadMessage when ctx ends.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	s.logger.Debug("presence connected", "url", s.url)
	s.set(true)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && ctx.Err() == nil {
				s.logger.Debug("presence connection lost", "err", err)
			}
			return true
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))
	}
}
