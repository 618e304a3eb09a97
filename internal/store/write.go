package store

import (
	"context"
	"fmt"
	"time"
)

// RecordRun inserts a run and its steps, returning the run ID.
// An empty run.ID is filled from the store's generator.
//
// Uses ON CONFLICT(id) DO NOTHING for idempotency - recording the same ID
// twice keeps the first copy and its steps.
func (s *Store) RecordRun(ctx context.Context, run Run) (string, error) {
	if run.ID == "" {
		run.ID = s.idGen.Generate()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	errorsJSON, err := marshalStrings(run.Errors)
	if err != nil {
		return "", fmt.Errorf("record run: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("record run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, scenario, path, pass, errors, duration_ns, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.Scenario,
		run.Path,
		run.Pass,
		errorsJSON,
		int64(run.Duration),
		run.StartedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("record run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("record run: rows affected: %w", err)
	}
	if rows == 0 {
		// Already recorded
		return run.ID, nil
	}

	for i, step := range run.Steps {
		errsJSON, err := marshalStrings(step.HumaneErrs)
		if err != nil {
			return "", fmt.Errorf("record run: step %d: %w", i, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO run_steps
			(run_id, idx, name, pass, humane_errs, response, logs, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			run.ID,
			i,
			step.Name,
			step.Pass,
			errsJSON,
			nullableRaw(step.Response),
			nullableString(step.Logs),
			step.Error,
		)
		if err != nil {
			return "", fmt.Errorf("record run: step %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("record run: commit: %w", err)
	}
	return run.ID, nil
}
