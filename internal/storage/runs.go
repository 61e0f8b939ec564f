package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/errgroup"

	"github.com/ashita-ai/kaizen/internal/model"
)

const runColumns = `run_id, trace_id, task_id, status, passed, provider, model,
	duration_ms, changes, error_stage, error_code, artifacts, artifact_hashes,
	created_at, started_at, completed_at, summary_card, parent_run_id`

func scanRun(row pgx.Row) (model.Run, error) {
	var r model.Run
	err := row.Scan(
		&r.RunID, &r.TraceID, &r.TaskID, &r.Status, &r.Passed, &r.Provider, &r.Model,
		&r.DurationMS, &r.Changes, &r.ErrorStage, &r.ErrorCode, &r.Artifacts, &r.ArtifactHashes,
		&r.CreatedAt, &r.StartedAt, &r.CompletedAt, &r.SummaryCard, &r.ParentRunID,
	)
	return r, err
}

// ApplyRun inserts or progresses a run record reported by the execution
// backend, keyed on run_id. Progression is forward-only: a terminal run is
// immutable and any further report for it fails with ErrImmutable. Artifact
// hashes are supplied by the caller (computed at ingest time) and only ever
// added, never overwritten.
func (db *DB) ApplyRun(ctx context.Context, req model.IngestRunRequest, hashes map[string]string) (model.Run, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return model.Run{}, fmt.Errorf("storage: begin apply run: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	existing, err := scanRun(tx.QueryRow(ctx,
		`SELECT `+runColumns+` FROM runs WHERE run_id = $1 FOR UPDATE`, req.RunID))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		run, insErr := db.insertRun(ctx, tx, req, hashes)
		if insErr != nil {
			return model.Run{}, insErr
		}
		if err := tx.Commit(ctx); err != nil {
			return model.Run{}, fmt.Errorf("storage: commit apply run: %w", err)
		}
		return run, nil
	case err != nil:
		return model.Run{}, fmt.Errorf("storage: lock run: %w", err)
	}

	if existing.Status.Terminal() {
		return model.Run{}, fmt.Errorf("storage: run %s already %s: %w", req.RunID, existing.Status, ErrImmutable)
	}

	now := time.Now().UTC()
	startedAt := existing.StartedAt
	if req.Status == model.RunStatusStarted && startedAt == nil {
		startedAt = &now
	}
	var completedAt *time.Time
	if req.Status.Terminal() {
		completedAt = &now
		if startedAt == nil {
			startedAt = &now
		}
	}

	artifacts := mergeStringMap(existing.Artifacts, req.Artifacts)
	merged := mergeStringMap(existing.ArtifactHashes, hashes)

	row := tx.QueryRow(ctx, `
		UPDATE runs SET
			status = $2, passed = $3, duration_ms = COALESCE($4, duration_ms),
			changes = COALESCE($5, changes), error_stage = COALESCE($6, error_stage),
			error_code = COALESCE($7, error_code), artifacts = $8, artifact_hashes = $9,
			started_at = $10, completed_at = $11
		WHERE run_id = $1
		RETURNING `+runColumns,
		req.RunID, string(req.Status), req.Passed, req.DurationMS,
		req.Changes, req.ErrorStage, req.ErrorCode, artifacts, merged,
		startedAt, completedAt,
	)
	run, err := scanRun(row)
	if err != nil {
		return model.Run{}, fmt.Errorf("storage: progress run: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Run{}, fmt.Errorf("storage: commit apply run: %w", err)
	}
	return run, nil
}

func (db *DB) insertRun(ctx context.Context, tx pgx.Tx, req model.IngestRunRequest, hashes map[string]string) (model.Run, error) {
	now := time.Now().UTC()
	var startedAt, completedAt *time.Time
	if req.Status == model.RunStatusStarted || req.Status.Terminal() {
		startedAt = &now
	}
	if req.Status.Terminal() {
		completedAt = &now
	}
	if req.Artifacts == nil {
		req.Artifacts = map[string]string{}
	}
	if hashes == nil {
		hashes = map[string]string{}
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO runs (run_id, trace_id, task_id, status, passed, provider, model,
			duration_ms, changes, error_stage, error_code, artifacts, artifact_hashes,
			created_at, started_at, completed_at, parent_run_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING `+runColumns,
		req.RunID, req.TraceID, req.TaskID, string(req.Status), req.Passed,
		req.Provider, req.Model, req.DurationMS, req.Changes, req.ErrorStage,
		req.ErrorCode, req.Artifacts, hashes, now, startedAt, completedAt, req.ParentRunID,
	)
	run, err := scanRun(row)
	if err != nil {
		return model.Run{}, fmt.Errorf("storage: insert run: %w", err)
	}
	return run, nil
}

func mergeStringMap(base, extra map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return out
}

// GetRun retrieves a run by ID.
func (db *DB) GetRun(ctx context.Context, runID string) (model.Run, error) {
	run, err := scanRun(db.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM runs WHERE run_id = $1`, runID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Run{}, fmt.Errorf("storage: run %s: %w", runID, ErrNotFound)
		}
		return model.Run{}, fmt.Errorf("storage: get run: %w", err)
	}
	return run, nil
}

// AttachSummaryCard stores a run's summary card. Cards are written exactly
// once; a second attach fails with ErrCardExists regardless of content.
func (db *DB) AttachSummaryCard(ctx context.Context, runID string, card model.SummaryCard) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE runs SET summary_card = $2 WHERE run_id = $1 AND summary_card IS NULL`,
		runID, card,
	)
	if err != nil {
		return fmt.Errorf("storage: attach summary card: %w", err)
	}
	if tag.RowsAffected() == 0 {
		run, getErr := db.GetRun(ctx, runID)
		if getErr != nil {
			return getErr
		}
		if run.SummaryCard != nil {
			return fmt.Errorf("storage: run %s: %w", runID, ErrCardExists)
		}
		return fmt.Errorf("storage: run %s: %w", runID, ErrNotFound)
	}
	return nil
}

// ListRuns returns runs matching the filters, ordered by completed_at
// descending with in-flight runs (null completed_at) at the end. Pagination
// is keyset-based behind an opaque cursor.
func (db *DB) ListRuns(ctx context.Context, filters model.RunFilters, cursor string, limit int) (model.RunList, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var conds []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filters.Status != nil {
		conds = append(conds, "status = "+arg(string(*filters.Status)))
	}
	if filters.TraceID != "" {
		conds = append(conds, "trace_id LIKE "+arg("%"+filters.TraceID+"%"))
	}
	if filters.Provider != "" {
		conds = append(conds, "provider = "+arg(filters.Provider))
	}
	if filters.Model != "" {
		conds = append(conds, "model = "+arg(filters.Model))
	}
	if filters.Since != nil {
		conds = append(conds, "created_at >= "+arg(*filters.Since))
	}
	if cursor != "" {
		completedAt, runID, err := decodeCursor(cursor)
		if err != nil {
			return model.RunList{}, err
		}
		if completedAt != nil {
			conds = append(conds, fmt.Sprintf(
				"(completed_at < %[1]s OR (completed_at = %[1]s AND run_id < %[2]s) OR completed_at IS NULL)",
				arg(*completedAt), arg(runID)))
		} else {
			conds = append(conds, "completed_at IS NULL AND run_id < "+arg(runID))
		}
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	// Fetch one extra row to learn whether another page exists.
	query := fmt.Sprintf(`SELECT %s FROM runs %s
		ORDER BY completed_at DESC NULLS LAST, run_id DESC
		LIMIT %s`, runColumns, where, arg(limit+1))

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return model.RunList{}, fmt.Errorf("storage: list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]model.Run, 0, limit)
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return model.RunList{}, fmt.Errorf("storage: scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return model.RunList{}, fmt.Errorf("storage: list runs: %w", err)
	}

	list := model.RunList{Runs: runs}
	if len(runs) > limit {
		list.Runs = runs[:limit]
		last := list.Runs[limit-1]
		list.HasMore = true
		list.NextCursor = encodeCursor(last.CompletedAt, last.RunID)
	}
	return list, nil
}

// RunStats computes aggregate counts over runs created since the given time.
// The three aggregates are independent queries and run concurrently; each is
// a pure fold over the queried window, so concurrent writers cannot corrupt
// the counts, only land in or out of the window.
func (db *DB) RunStats(ctx context.Context, since time.Time) (model.RunStats, error) {
	var stats model.RunStats

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := db.pool.QueryRow(gctx, `
			SELECT count(*),
				count(*) FILTER (WHERE status = 'completed'),
				count(*) FILTER (WHERE status = 'failed'),
				count(*) FILTER (WHERE error_code = $2)
			FROM runs WHERE created_at >= $1`,
			since, model.ErrCodeTimeout,
		).Scan(&stats.Total, &stats.Completed, &stats.Failed, &stats.Timeouts)
		if err != nil {
			return fmt.Errorf("storage: run totals: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		rows, err := db.pool.Query(gctx, `
			SELECT error_stage, count(*) FROM runs
			WHERE created_at >= $1 AND error_stage IS NOT NULL
			GROUP BY error_stage ORDER BY count(*) DESC`, since)
		if err != nil {
			return fmt.Errorf("storage: stats by stage: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var c model.StageCount
			if err := rows.Scan(&c.Stage, &c.Count); err != nil {
				return fmt.Errorf("storage: scan stage count: %w", err)
			}
			stats.ByErrorStage = append(stats.ByErrorStage, c)
		}
		return rows.Err()
	})

	g.Go(func() error {
		rows, err := db.pool.Query(gctx, `
			SELECT error_code, count(*) FROM runs
			WHERE created_at >= $1 AND error_code IS NOT NULL
			GROUP BY error_code ORDER BY count(*) DESC`, since)
		if err != nil {
			return fmt.Errorf("storage: stats by code: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var c model.ErrorCodeCount
			if err := rows.Scan(&c.Code, &c.Count); err != nil {
				return fmt.Errorf("storage: scan code count: %w", err)
			}
			stats.ByErrorCode = append(stats.ByErrorCode, c)
		}
		return rows.Err()
	})

	if err := g.Wait(); err != nil {
		return model.RunStats{}, err
	}
	if stats.ByErrorStage == nil {
		stats.ByErrorStage = []model.StageCount{}
	}
	if stats.ByErrorCode == nil {
		stats.ByErrorCode = []model.ErrorCodeCount{}
	}
	return stats, nil
}
