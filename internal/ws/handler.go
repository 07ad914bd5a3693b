package ws

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/partyrounds/session-backend/internal/hub"
	"github.com/partyrounds/session-backend/internal/session"
	"github.com/partyrounds/session-backend/internal/types"
)

func Handler(h *hub.Hub, log *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}

		reply := make(chan *session.Session, 1)
		h.Inbox() <- hub.GetSession{Code: code, Reply: reply}
		s := <-reply
		if s == nil {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// In dev ONLY, you can loosen origin checks:
			// OriginPatterns: []string{"http://localhost:*", "http://127.0.0.1:*"},
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		out := make(chan session.Snapshot, 32)
		clientID := randID(6)

		s.Inbox() <- session.Join{ClientID: clientID, Outbox: out}
		defer func() { s.Inbox() <- session.Leave{ClientID: clientID} }()

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for snap := range out {
				msg := types.ServerMessage{
					Type:    "Event",
					Event:   string(snap.Event),
					Version: snap.Version,
					State:   &snap.State,
				}
				payload, _ := json.Marshal(msg)
				ctx, cancel := context.WithTimeout(writeCtx, 3*time.Second)
				_ = conn.Write(ctx, websocket.MessageText, payload)
				cancel()
			}
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				// Treat clean close/going-away as normal:
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				// Otherwise, just exit (session.Leave in defer):
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				_ = conn.Write(r.Context(), websocket.MessageText,
					[]byte(`{"type":"Error","error":"bad json"}`))
				continue
			}

			cmd, ok := toSessionCommand(cm)
			if !ok {
				log.Debugw("unknown client message", "code", code, "type", cm.Type)
				_ = conn.Write(r.Context(), websocket.MessageText,
					[]byte(`{"type":"Error","error":"unknown type"}`))
				continue
			}

			s.Inbox() <- session.FromClient{Cmd: cmd}
		}
	}
}

func toSessionCommand(m types.ClientMessage) (session.Command, bool) {
	switch m.Type {
	case "Play":
		return session.Command{Type: session.CmdPlay}, true
	case "Pause":
		return session.Command{Type: session.CmdPause}, true
	case "Restart":
		return session.Command{Type: session.CmdRestart}, true
	case "Reveal":
		return session.Command{Type: session.CmdReveal}, true
	case "SelectWinner":
		// WinnerID may be nil: "no one scored this round".
		return session.Command{Type: session.CmdSelectWinner, WinnerID: m.WinnerID}, true
	case "NextRound":
		return session.Command{Type: session.CmdNextRound}, true
	case "Abort":
		return session.Command{Type: session.CmdAbort}, true
	default:
		return session.Command{}, false
	}
}

func randID(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[rand.Intn(len(charset))]
	}
	return string(b)
}
