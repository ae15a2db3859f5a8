package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/cordum/playground/core/infra/bus"
	"github.com/cordum/playground/core/infra/logging"
	"github.com/cordum/playground/core/infra/secrets"
	"github.com/cordum/playground/core/readiness"
	"github.com/cordum/playground/core/session"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	streamBuffer     = 64
	streamWriteWait  = 10 * time.Second
	streamPingPeriod = 30 * time.Second
)

// handleStream pushes session events to a websocket. The first frame is the
// current config so clients start in sync. Clients that fall behind are
// disconnected.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.allows,
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error("api", "ws upgrade failed", "session", sess.ID(), "error", err)
		return
	}
	defer ws.Close()
	logging.Info("api", "ws connected", "session", sess.ID(), "remote", r.RemoteAddr)

	events := make(chan bus.Event, streamBuffer)
	slow := make(chan struct{})
	var slowOnce sync.Once
	unsubscribe := sess.Subscribe(func(ev bus.Event) {
		select {
		case events <- ev:
		default:
			slowOnce.Do(func() { close(slow) })
		}
	})
	defer unsubscribe()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	snap := sess.Config()
	first := bus.Event{
		ID:        uuid.NewString(),
		Type:      bus.EventConfig,
		SessionID: sess.ID(),
		Time:      time.Now().UTC(),
		Data:      session.ConfigEvent{Snapshot: secrets.RedactSnapshot(snap), Readiness: readiness.Evaluate(snap.Config)},
	}
	if err := writeEvent(ws, first); err != nil {
		return
	}

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()
	for {
		select {
		case ev := <-events:
			if err := writeEvent(ws, ev); err != nil {
				return
			}
			if ev.Type == bus.EventClosed {
				_ = ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
					time.Now().Add(streamWriteWait))
				return
			}
		case <-ping.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		case <-slow:
			logging.Info("api", "ws client too slow, dropping", "session", sess.ID(), "remote", r.RemoteAddr)
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "client too slow"),
				time.Now().Add(streamWriteWait))
			return
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func writeEvent(ws *websocket.Conn, ev bus.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		logging.Error("api", "marshal event", "type", ev.Type, "error", err)
		return nil
	}
	_ = ws.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return ws.WriteMessage(websocket.TextMessage, data)
}
