package httpapi

import (
	"crypto/rand"
	"encoding/json"
	"math/big"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/partyrounds/session-backend/internal/hub"
	"github.com/partyrounds/session-backend/internal/media"
	"github.com/partyrounds/session-backend/internal/session"
)

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := 0; i < 6; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

type createSessionRequest struct {
	SourceRef       string   `json:"source_ref"`
	Rounds          int      `json:"rounds"`
	PointsPerRound  int      `json:"points_per_round"`
	Participants    []string `json:"participants"`
	DefaultWinnerID string   `json:"default_winner_id,omitempty"`
}

func CreateSession(h *hub.Hub, log *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request body", http.StatusBadRequest)
			return
		}
		if !media.ValidSourceRef(req.SourceRef) {
			http.Error(w, "invalid source_ref", http.StatusBadRequest)
			return
		}
		if len(req.Participants) == 0 {
			http.Error(w, "participants required", http.StatusBadRequest)
			return
		}

		var code string
		for {
			c, err := GenerateCode()
			if err != nil {
				http.Error(w, "failed to generate code", http.StatusInternalServerError)
				return
			}
			reply := make(chan *session.Session, 1)
			h.Inbox() <- hub.GetSession{Code: c, Reply: reply}
			if <-reply == nil {
				code = c
				break
			}
			log.Debugw("collision on code, regenerating", "code", c)
		}

		opts := session.Options{
			SourceRef:       req.SourceRef,
			DesiredRounds:   req.Rounds,
			PointsPerRound:  req.PointsPerRound,
			Participants:    req.Participants,
			DefaultWinnerID: req.DefaultWinnerID,
		}

		reply := make(chan *session.Session, 1)
		h.Inbox() <- hub.EnsureSession{Code: code, Opts: opts, Reply: reply}
		s := <-reply
		if s == nil {
			http.Error(w, "failed to create session", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(struct {
			Code      string `json:"code"`
			SessionID string `json:"session_id"`
		}{Code: code, SessionID: s.ID()})
	}
}

func SessionState(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")

		reply := make(chan *session.Session, 1)
		h.Inbox() <- hub.GetSession{Code: code, Reply: reply}
		s := <-reply
		if s == nil {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}

		viewReply := make(chan session.View, 1)
		s.Inbox() <- session.GetState{Reply: viewReply}

		select {
		case view := <-viewReply:
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(view.State)
		case <-time.After(2 * time.Second):
			http.Error(w, "session unresponsive", http.StatusServiceUnavailable)
		}
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
