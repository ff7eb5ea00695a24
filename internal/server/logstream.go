package server

import (
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
)

const (
	logPushInterval = 2 * time.Second
	logWriteTimeout = 5 * time.Second
)

var logUpgrader = websocket.Upgrader{CheckOrigin: sameOrigin}

type logPayload struct {
	GeneratedAt time.Time `json:"generated_at"`
	Logs        []string  `json:"logs"`
}

// handleLogsWS pushes the restart log on connect and again whenever it changes.
func (s *Server) handleLogsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := logUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.serveLogConnection(conn)
}

func (s *Server) serveLogConnection(conn *websocket.Conn) {
	defer conn.Close()

	last := nonNil(s.activator.RestartLogs())
	if err := writeLogPayload(conn, last); err != nil {
		return
	}

	ticker := time.NewTicker(s.logPush)
	defer ticker.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ticker.C:
			current := nonNil(s.activator.RestartLogs())
			if slices.Equal(current, last) {
				continue
			}
			if err := writeLogPayload(conn, current); err != nil {
				s.log.Debugw("Log stream closed", "error", err)
				return
			}
			last = current
		case <-done:
			return
		}
	}
}

func writeLogPayload(conn *websocket.Conn, logs []string) error {
	_ = conn.SetWriteDeadline(time.Now().Add(logWriteTimeout))
	return conn.WriteJSON(logPayload{GeneratedAt: time.Now().UTC(), Logs: logs})
}
