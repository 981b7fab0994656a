package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 10 * time.Second

type wsMessage struct {
	Type   string          `json:"type"`
	Latest *latestResponse `json:"latest,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// handleWS pushes the latest snapshot on connect and then every push interval.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// reads only to notice the client going away
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.pushInterval())
	defer ticker.Stop()

	for {
		if err := s.pushSnapshot(ctx, conn); err != nil {
			s.logger.Debug().Err(err).Msg("websocket client gone")
			return
		}
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) pushSnapshot(ctx context.Context, conn *websocket.Conn) error {
	msg := wsMessage{Type: "snapshot"}
	snap, err := s.svc.LatestSnapshot(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("websocket snapshot failed")
		msg = wsMessage{Type: "error", Error: "snapshot unavailable"}
	} else {
		latest := toLatestResponse(snap)
		msg.Latest = &latest
	}
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(msg)
}
