package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ashita-ai/kaizen/internal/model"
)

// InsertSignal appends one learning signal. Signals are append-only; nothing
// ever updates or deletes them.
func (db *DB) InsertSignal(ctx context.Context, sig model.LearningSignal) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO learning_signals (id, run_id, recommended, reason, chosen, ts)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		sig.ID, sig.RunID, string(sig.Recommended), sig.Reason, string(sig.Chosen), sig.TS.UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage: insert signal: %w", err)
	}
	return nil
}

// ListSignalsSince returns all signals recorded at or after since, newest
// first, each joined with the error code of the run it reconciles.
func (db *DB) ListSignalsSince(ctx context.Context, since time.Time) ([]model.SignalContext, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT s.id, s.run_id, s.recommended, s.reason, s.chosen, s.ts, COALESCE(r.error_code, '')
		FROM learning_signals s
		JOIN runs r ON r.run_id = s.run_id
		WHERE s.ts >= $1
		ORDER BY s.ts DESC`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("storage: list signals: %w", err)
	}
	defer rows.Close()

	var signals []model.SignalContext
	for rows.Next() {
		var sc model.SignalContext
		if err := rows.Scan(&sc.ID, &sc.RunID, &sc.Recommended, &sc.Reason,
			&sc.Chosen, &sc.TS, &sc.ErrorCode); err != nil {
			return nil, fmt.Errorf("storage: scan signal: %w", err)
		}
		signals = append(signals, sc)
	}
	return signals, rows.Err()
}
