package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/kaizen/internal/model"
	"github.com/ashita-ai/kaizen/internal/service/cifix"
)

// AppendCiFixEvent records a tracker event and refreshes the materialized
// state columns from the full event log. The event is stored unconditionally,
// whatever its ordering; the fold decides what the tracker state becomes.
func (db *DB) AppendCiFixEvent(ctx context.Context, req model.CiFixEventRequest) (model.CiFixRun, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return model.CiFixRun{}, fmt.Errorf("storage: begin ci-fix event: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	// Upsert the tracked run row. Identifying fields are set by whichever
	// event carries them first and never blanked by later empty ones.
	if _, err := tx.Exec(ctx, `
		INSERT INTO ci_fix_runs (run_id, issue, sha, workflow_name, project)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id) DO UPDATE SET
			issue = CASE WHEN ci_fix_runs.issue = '' THEN EXCLUDED.issue ELSE ci_fix_runs.issue END,
			sha = CASE WHEN ci_fix_runs.sha = '' THEN EXCLUDED.sha ELSE ci_fix_runs.sha END,
			workflow_name = CASE WHEN ci_fix_runs.workflow_name = '' THEN EXCLUDED.workflow_name ELSE ci_fix_runs.workflow_name END,
			project = CASE WHEN ci_fix_runs.project = '' THEN EXCLUDED.project ELSE ci_fix_runs.project END`,
		req.RunID, req.Issue, req.SHA, req.WorkflowName, req.Project,
	); err != nil {
		return model.CiFixRun{}, fmt.Errorf("storage: upsert ci-fix run: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO ci_fix_events (run_id, event_type, ts, agent, result)
		VALUES ($1, $2, $3, $4, $5)`,
		req.RunID, string(req.EventType), req.Timestamp.UTC(), req.Agent, req.Result,
	); err != nil {
		return model.CiFixRun{}, fmt.Errorf("storage: insert ci-fix event: %w", err)
	}

	events, err := loadCiFixEvents(ctx, tx, req.RunID)
	if err != nil {
		return model.CiFixRun{}, err
	}

	d := cifix.Reduce(events)
	if _, err := tx.Exec(ctx, `
		UPDATE ci_fix_runs SET status = $2, detected_at = $3, started_at = $4,
			done_at = $5, t_start = $6, t_fix = $7, updated_at = now()
		WHERE run_id = $1`,
		req.RunID, string(d.Status), d.DetectedAt, d.StartedAt, d.DoneAt, d.TStart, d.TFix,
	); err != nil {
		return model.CiFixRun{}, fmt.Errorf("storage: update ci-fix state: %w", err)
	}

	run, err := scanCiFixRun(tx.QueryRow(ctx,
		`SELECT `+ciFixColumns+` FROM ci_fix_runs WHERE run_id = $1`, req.RunID))
	if err != nil {
		return model.CiFixRun{}, fmt.Errorf("storage: reload ci-fix run: %w", err)
	}
	run.Events = events

	if err := tx.Commit(ctx); err != nil {
		return model.CiFixRun{}, fmt.Errorf("storage: commit ci-fix event: %w", err)
	}
	return run, nil
}

const ciFixColumns = `run_id, status, detected_at, started_at, done_at, t_start, t_fix,
	issue, sha, workflow_name, project`

func scanCiFixRun(row pgx.Row) (model.CiFixRun, error) {
	var r model.CiFixRun
	err := row.Scan(
		&r.RunID, &r.Status, &r.DetectedAt, &r.StartedAt, &r.DoneAt, &r.TStart, &r.TFix,
		&r.Issue, &r.SHA, &r.WorkflowName, &r.Project,
	)
	return r, err
}

type ciFixQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadCiFixEvents(ctx context.Context, q ciFixQuerier, runID string) ([]model.CiFixEvent, error) {
	rows, err := q.Query(ctx, `
		SELECT event_type, ts, agent, result FROM ci_fix_events
		WHERE run_id = $1 ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("storage: load ci-fix events: %w", err)
	}
	defer rows.Close()

	var events []model.CiFixEvent
	for rows.Next() {
		var ev model.CiFixEvent
		if err := rows.Scan(&ev.EventType, &ev.Timestamp, &ev.Agent, &ev.Result); err != nil {
			return nil, fmt.Errorf("storage: scan ci-fix event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// GetCiFixRun retrieves a tracked CI-fix run with its full event log.
func (db *DB) GetCiFixRun(ctx context.Context, runID string) (model.CiFixRun, error) {
	run, err := scanCiFixRun(db.pool.QueryRow(ctx,
		`SELECT `+ciFixColumns+` FROM ci_fix_runs WHERE run_id = $1`, runID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.CiFixRun{}, fmt.Errorf("storage: ci-fix run %s: %w", runID, ErrNotFound)
		}
		return model.CiFixRun{}, fmt.Errorf("storage: get ci-fix run: %w", err)
	}

	events, err := loadCiFixEvents(ctx, db.pool, runID)
	if err != nil {
		return model.CiFixRun{}, err
	}
	run.Events = events
	return run, nil
}

// ListCiFixRuns returns tracked runs, optionally filtered by status, most
// recently updated first, with their event logs attached.
func (db *DB) ListCiFixRuns(ctx context.Context, status *model.CiFixStatus, limit int) (model.CiFixRunList, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	where := ""
	args := []any{}
	if status != nil {
		where = "WHERE status = $1"
		args = append(args, string(*status))
	}

	var total int
	if err := db.pool.QueryRow(ctx,
		`SELECT count(*) FROM ci_fix_runs `+where, args...).Scan(&total); err != nil {
		return model.CiFixRunList{}, fmt.Errorf("storage: count ci-fix runs: %w", err)
	}

	args = append(args, limit)
	rows, err := db.pool.Query(ctx, fmt.Sprintf(
		`SELECT %s FROM ci_fix_runs %s ORDER BY updated_at DESC LIMIT $%d`,
		ciFixColumns, where, len(args)), args...)
	if err != nil {
		return model.CiFixRunList{}, fmt.Errorf("storage: list ci-fix runs: %w", err)
	}
	defer rows.Close()

	runs := make([]model.CiFixRun, 0, limit)
	for rows.Next() {
		r, err := scanCiFixRun(rows)
		if err != nil {
			return model.CiFixRunList{}, fmt.Errorf("storage: scan ci-fix run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return model.CiFixRunList{}, fmt.Errorf("storage: list ci-fix runs: %w", err)
	}

	for i := range runs {
		events, err := loadCiFixEvents(ctx, db.pool, runs[i].RunID)
		if err != nil {
			return model.CiFixRunList{}, err
		}
		runs[i].Events = events
	}

	return model.CiFixRunList{Runs: runs, Total: total, HasMore: total > len(runs)}, nil
}
