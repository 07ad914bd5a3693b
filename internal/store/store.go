package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/partyrounds/session-backend/internal/round"
	"github.com/partyrounds/session-backend/internal/session"
)

// ParticipantScore is the authoritative aggregate score row. The engine only
// ever sends signed deltas; it never reads this table to decide its own
// logic.
type ParticipantScore struct {
	ParticipantID string    `gorm:"primaryKey"`
	Points        int       `gorm:"not null;default:0"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`
}

// SessionProgress holds a resumable session: round set, cursor and ledger
// entries, serialized as JSON.
type SessionProgress struct {
	SessionID    string `gorm:"primaryKey"`
	CurrentIndex int    `gorm:"not null"`
	RoundsJSON   string `gorm:"type:text;not null"`
	LedgerJSON   string `gorm:"type:text;not null"`
	UpdatedAt    time.Time
}

// Store implements both the score sink and the progress store on postgres.
type Store struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func Open(dsn string, log *zap.SugaredLogger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&ParticipantScore{}, &SessionProgress{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

// ApplyDelta applies one signed point delta as an atomic upsert-increment.
// Fire-and-forget for the caller: failures are logged here, not retried.
func (s *Store) ApplyDelta(participantID string, points int) {
	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "participant_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"points":     gorm.Expr("participant_scores.points + ?", points),
			"updated_at": time.Now(),
		}),
	}).Create(&ParticipantScore{ParticipantID: participantID, Points: points}).Error
	if err != nil {
		s.log.Errorw("applying score delta failed", "participant_id", participantID, "points", points, "error", err)
	}
}

func (s *Store) SaveProgress(sessionID string, currentIndex int, rounds []round.Round, ledger map[string]string) error {
	roundsJSON, err := json.Marshal(rounds)
	if err != nil {
		return fmt.Errorf("encode rounds: %w", err)
	}
	ledgerJSON, err := json.Marshal(ledger)
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}

	row := SessionProgress{
		SessionID:    sessionID,
		CurrentIndex: currentIndex,
		RoundsJSON:   string(roundsJSON),
		LedgerJSON:   string(ledgerJSON),
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		UpdateAll: true,
	}).Create(&row).Error
}

func (s *Store) LoadProgress(sessionID string) (*session.SavedProgress, error) {
	var row SessionProgress
	if err := s.db.First(&row, "session_id = ?", sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var rounds []round.Round
	if err := json.Unmarshal([]byte(row.RoundsJSON), &rounds); err != nil {
		return nil, fmt.Errorf("decode rounds: %w", err)
	}
	ledger := map[string]string{}
	if err := json.Unmarshal([]byte(row.LedgerJSON), &ledger); err != nil {
		return nil, fmt.Errorf("decode ledger: %w", err)
	}

	return &session.SavedProgress{
		CurrentIndex: row.CurrentIndex,
		Rounds:       rounds,
		Ledger:       ledger,
	}, nil
}
