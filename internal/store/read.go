package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

const runColumns = `
	r.seq, r.id, r.scenario, r.path, r.pass, r.errors, r.duration_ns, r.started_at,
	(SELECT COUNT(*) FROM run_steps s WHERE s.run_id = r.id)
`

// ListRuns returns the most recent runs, newest first, without their steps.
// A limit of zero or less returns every run.
//
// Returns an empty slice (not nil) if no runs exist.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs r
		ORDER BY r.seq DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// GetRun retrieves a run and its steps by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+`
		FROM runs r
		WHERE r.id = ?
	`, id)
	run, err := scanRun(row)
	if err != nil {
		return Run{}, err
	}

	steps, err := s.readSteps(ctx, id)
	if err != nil {
		return Run{}, err
	}
	run.Steps = steps
	return run, nil
}

// readSteps returns a run's steps in execution order.
func (s *Store) readSteps(ctx context.Context, runID string) ([]Step, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, pass, humane_errs, response, logs, error
		FROM run_steps
		WHERE run_id = ?
		ORDER BY idx ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	steps := []Step{}
	for rows.Next() {
		var (
			step     Step
			errsJSON string
			response sql.NullString
			logs     sql.NullString
		)
		if err := rows.Scan(&step.Name, &step.Pass, &errsJSON, &response, &logs, &step.Error); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		if step.HumaneErrs, err = unmarshalStrings(errsJSON); err != nil {
			return nil, err
		}
		if response.Valid {
			step.Response = json.RawMessage(response.String)
		}
		if logs.Valid {
			step.Logs = &logs.String
		}
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate steps: %w", err)
	}
	return steps, nil
}

func scanRun(row scanner) (Run, error) {
	var (
		run        Run
		errorsJSON string
		durationNS int64
		startedAt  string
	)
	err := row.Scan(
		&run.Seq,
		&run.ID,
		&run.Scenario,
		&run.Path,
		&run.Pass,
		&errorsJSON,
		&durationNS,
		&startedAt,
		&run.StepCount,
	)
	if err == sql.ErrNoRows {
		return Run{}, err
	}
	if err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}

	if run.Errors, err = unmarshalStrings(errorsJSON); err != nil {
		return Run{}, err
	}
	run.Duration = time.Duration(durationNS)
	if run.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return Run{}, fmt.Errorf("parse started_at: %w", err)
	}
	return run, nil
}
