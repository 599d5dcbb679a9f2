package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/eventdesk/api/internal/platform/sqldb"
	"github.com/eventdesk/api/internal/repositories"
)

// CounterRepository issues sequence values from the counters table.
type CounterRepository struct {
	db    *sqldb.DB
	clock func() time.Time
}

var _ repositories.CounterRepository = (*CounterRepository)(nil)

// NewCounterRepository constructs the SQLite counter repository.
func NewCounterRepository(db *sqldb.DB) (*CounterRepository, error) {
	if db == nil {
		return nil, errors.New("counter repository: sqlite db is required")
	}
	return &CounterRepository{db: db, clock: time.Now}, nil
}

// Next increments the counter with UPDATE ... RETURNING inside a transaction, joining the one
// carried by ctx when present. A value above the configured maximum rolls the increment back.
func (r *CounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	id := strings.TrimSpace(counterID)
	if id == "" {
		return 0, repositories.NewCounterError(repositories.CounterErrorInvalidInput, "counter id is required", nil)
	}
	if step < 0 {
		return 0, repositories.NewCounterError(repositories.CounterErrorInvalidInput, fmt.Sprintf("step must be positive, got %d", step), nil)
	}

	now := sqldb.FormatTime(r.clock())
	var next int64
	err := r.db.RunInTx(ctx, func(ctx context.Context) error {
		conn := r.db.Conn(ctx)
		if _, err := conn.ExecContext(ctx,
			`INSERT INTO counters (id, current_value, step, updated_at) VALUES (?, 0, 1, ?) ON CONFLICT (id) DO NOTHING`,
			id, now,
		); err != nil {
			return err
		}

		var row struct {
			Value    int64         `db:"current_value"`
			MaxValue sql.NullInt64 `db:"max_value"`
		}
		err := conn.GetContext(ctx, &row, `
			UPDATE counters
			SET current_value = current_value + (CASE WHEN ? > 0 THEN ? ELSE MAX(step, 1) END),
			    updated_at = ?
			WHERE id = ?
			RETURNING current_value, max_value`,
			step, step, now, id,
		)
		if err != nil {
			return err
		}
		if row.MaxValue.Valid && row.Value > row.MaxValue.Int64 {
			return repositories.NewCounterError(repositories.CounterErrorExhausted,
				fmt.Sprintf("counter %s exceeded max value %d", id, row.MaxValue.Int64), nil)
		}
		next = row.Value
		return nil
	})
	if err != nil {
		var counterErr *repositories.CounterError
		if errors.As(err, &counterErr) {
			return 0, counterErr
		}
		wrapped := sqldb.WrapError("counters.next", err)
		var repoErr repositories.RepositoryError
		if errors.As(wrapped, &repoErr) && (repoErr.IsUnavailable() || repoErr.IsConflict()) {
			return 0, &repositories.CounterError{Op: "counters.next", Code: repositories.CounterErrorContended, Message: "counter increment contended", Err: err}
		}
		return 0, wrapped
	}
	return next, nil
}

// Configure upserts step, max and initial value settings.
func (r *CounterRepository) Configure(ctx context.Context, counterID string, cfg repositories.CounterConfig) error {
	id := strings.TrimSpace(counterID)
	if id == "" {
		return repositories.NewCounterError(repositories.CounterErrorInvalidInput, "counter id is required", nil)
	}
	now := sqldb.FormatTime(r.clock())

	return r.db.RunInTx(ctx, func(ctx context.Context) error {
		conn := r.db.Conn(ctx)
		if _, err := conn.ExecContext(ctx,
			`INSERT INTO counters (id, current_value, step, updated_at) VALUES (?, 0, 1, ?) ON CONFLICT (id) DO NOTHING`,
			id, now,
		); err != nil {
			return sqldb.WrapError("counters.configure", err)
		}
		if cfg.Step > 0 {
			if _, err := conn.ExecContext(ctx, `UPDATE counters SET step = ?, updated_at = ? WHERE id = ?`, cfg.Step, now, id); err != nil {
				return sqldb.WrapError("counters.configure", err)
			}
		}
		if cfg.MaxValue != nil {
			if _, err := conn.ExecContext(ctx, `UPDATE counters SET max_value = ?, updated_at = ? WHERE id = ?`, *cfg.MaxValue, now, id); err != nil {
				return sqldb.WrapError("counters.configure", err)
			}
		}
		if cfg.InitialValue != nil {
			if _, err := conn.ExecContext(ctx, `UPDATE counters SET current_value = ?, updated_at = ? WHERE id = ?`, *cfg.InitialValue, now, id); err != nil {
				return sqldb.WrapError("counters.configure", err)
			}
		}
		return nil
	})
}
