package httpapi

import (
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/printflow/portal/internal/errors"
	"github.com/printflow/portal/internal/httputil"
	"github.com/printflow/portal/internal/portal/auth"
)

const (
	pingInterval = 30 * time.Second
	pongWait     = pingInterval + 10*time.Second
	writeWait    = 10 * time.Second
)

// handleAuthEvents streams the caller's auth state over a WebSocket. The
// current state is sent first, then every change until either side closes.
func (s *Server) handleAuthEvents(w http.ResponseWriter, r *http.Request) {
	c, err := s.lookup(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if c == nil {
		httputil.WriteError(w, r, errors.NotAuthenticated())
		return
	}

	upgrader := websocket.Upgrader{
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      s.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		s.logger.WithContext(r.Context()).WithError(err).Debug("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	updates, unsubscribe := c.Subscribe()
	defer unsubscribe()

	closed := make(chan struct{})
	go s.readPump(conn, closed)

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case state, ok := <-updates:
			if !ok {
				return
			}
			if err := writeState(conn, state); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
			return
		}
	}
}

func writeState(conn *websocket.Conn, state auth.State) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(state)
}

// readPump discards client messages and keeps the read deadline alive on
// pongs. It closes closed when the connection ends.
func (s *Server) readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// checkOrigin allows same-host and configured CORS origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host || s.cors.Allowed(origin)
}
