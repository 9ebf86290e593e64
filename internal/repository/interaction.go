package repository

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ghabxph/happy-on-slack/internal/database"
)

// Outcome values stored for each handled mention
const (
	OutcomeReplied   = "replied"
	OutcomeClarified = "clarified"
	OutcomeFailed    = "failed"
)

type Interaction struct {
	ID           int64     `db:"id"`
	EventID      string    `db:"event_id"`
	ChannelID    string    `db:"channel_id"`
	UserID       string    `db:"user_id"`
	ThreadTS     string    `db:"thread_ts"`
	PromptChars  int       `db:"prompt_chars"`
	ReplyChars   int       `db:"reply_chars"`
	HistoryTurns int       `db:"history_turns"`
	Outcome      string    `db:"outcome"`
	CreatedAt    time.Time `db:"created_at"`
}

type InteractionRepository struct {
	db     *database.Database
	logger *zap.Logger
}

func NewInteractionRepository(db *database.Database, logger *zap.Logger) *InteractionRepository {
	return &InteractionRepository{
		db:     db,
		logger: logger,
	}
}

// Record inserts one audit row for a handled mention
func (r *InteractionRepository) Record(ctx context.Context, in *Interaction) error {
	query := `
		INSERT INTO interactions (event_id, channel_id, user_id, thread_ts,
			prompt_chars, reply_chars, history_turns, outcome, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING id, created_at`

	err := r.db.GetDB().QueryRowContext(ctx, query, in.EventID, in.ChannelID, in.UserID, in.ThreadTS,
		in.PromptChars, in.ReplyChars, in.HistoryTurns, in.Outcome).Scan(&in.ID, &in.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record interaction: %w", err)
	}

	r.logger.Debug("Interaction recorded",
		zap.String("event_id", in.EventID),
		zap.Int64("id", in.ID),
		zap.String("outcome", in.Outcome))

	return nil
}

// RecentByChannel returns the latest interactions of a channel, newest first
func (r *InteractionRepository) RecentByChannel(ctx context.Context, channelID string, limit int) ([]*Interaction, error) {
	query := `
		SELECT id, event_id, channel_id, user_id, thread_ts, prompt_chars,
			reply_chars, history_turns, outcome, created_at
		FROM interactions
		WHERE channel_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	rows, err := r.db.GetDB().QueryContext(ctx, query, channelID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load interactions: %w", err)
	}
	defer rows.Close()

	var out []*Interaction
	for rows.Next() {
		in := &Interaction{}
		if err := rows.Scan(&in.ID, &in.EventID, &in.ChannelID, &in.UserID, &in.ThreadTS,
			&in.PromptChars, &in.ReplyChars, &in.HistoryTurns, &in.Outcome, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan interaction: %w", err)
		}
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate interactions: %w", err)
	}

	return out, nil
}
