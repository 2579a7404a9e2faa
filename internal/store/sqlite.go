package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/MJE43/blackjack-policy/internal/blackjack"
	"github.com/MJE43/blackjack-policy/internal/dealer"
	"github.com/MJE43/blackjack-policy/internal/solver"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const defaultListLimit = 50

// SQLiteStore implements Store on a single SQLite file.
type SQLiteStore struct {
	db      *sql.DB
	log     zerolog.Logger
	backoff func() retry.Backoff
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens the database at path and applies pending migrations.
// ":memory:" gives a private in-memory database.
func OpenSQLite(ctx context.Context, path string, log zerolog.Logger) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// each connection would open its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, multierr.Append(fmt.Errorf("ping database: %w", err), db.Close())
	}

	s := &SQLiteStore{
		db:  db,
		log: log.With().Str("component", "store").Str("backend", "sqlite").Logger(),
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(3, retry.NewExponential(50*time.Millisecond))
		},
	}
	if err := s.migrate(ctx); err != nil {
		return nil, multierr.Append(err, db.Close())
	}
	return s, nil
}

// dsn applies the connection pragmas to every pooled connection.
func dsn(path string) string {
	pragmas := "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if path == ":memory:" {
		return "file::memory:?" + pragmas
	}
	return "file:" + filepath.Clean(path) + "?" + pragmas + "&_pragma=journal_mode(WAL)"
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, sub)
	if err != nil {
		return fmt.Errorf("migration provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	s.log.Debug().Str("op", "store_operation").Int("applied", len(results)).Msg("migrations applied")
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func isBusy(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code() & 0xff
	return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
}

// withTx runs fn in a transaction, retrying the whole transaction while the
// database reports it is busy.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	attempt := 0
	return retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		attempt++
		err := s.runTx(ctx, fn)
		if isBusy(err) {
			s.log.Warn().Err(err).Str("op", "store_operation").Int("attempt", attempt).Msg("database busy, retrying")
			return retry.RetryableError(err)
		}
		return err
	})
}

func (s *SQLiteStore) runTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func insertRun(ctx context.Context, tx *sql.Tx, run Run) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, kind, horizon, timestep, created_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, string(run.Kind), run.Horizon, run.Timestep, run.CreatedAt.UnixMilli())
	return err
}

// SaveDealerTable stores t as a new dealer run.
func (s *SQLiteStore) SaveDealerTable(ctx context.Context, t dealer.OutcomeTable) (Run, error) {
	run := NewRun(KindDealer)
	cells := EncodeDealer(t)

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertRun(ctx, tx, run); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO dealer_outcomes (run_id, up_card, outcome, probability) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, c := range cells {
			if _, err := stmt.ExecContext(ctx, run.ID, c.UpCard, c.Outcome, c.Probability.String()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Run{}, fmt.Errorf("save dealer table: %w", err)
	}

	s.log.Info().Str("op", "store_operation").Str("run_id", run.ID).Str("kind", string(run.Kind)).Int("cells", len(cells)).Msg("saved")
	return run, nil
}

// LoadDealerTable returns the latest stored dealer table.
func (s *SQLiteStore) LoadDealerTable(ctx context.Context) (dealer.OutcomeTable, Run, error) {
	run, err := s.latestRun(ctx, KindDealer)
	if err != nil {
		return dealer.OutcomeTable{}, Run{}, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT up_card, outcome, probability FROM dealer_outcomes WHERE run_id = ? ORDER BY up_card, outcome`, run.ID)
	if err != nil {
		return dealer.OutcomeTable{}, Run{}, err
	}
	defer rows.Close()

	var cells []DealerCell
	for rows.Next() {
		var c DealerCell
		if err := rows.Scan(&c.UpCard, &c.Outcome, &c.Probability); err != nil {
			return dealer.OutcomeTable{}, Run{}, err
		}
		cells = append(cells, c)
	}
	if err := rows.Err(); err != nil {
		return dealer.OutcomeTable{}, Run{}, err
	}

	t, err := DecodeDealer(cells)
	if err != nil {
		return dealer.OutcomeTable{}, Run{}, fmt.Errorf("run %s: %w", run.ID, err)
	}
	return t, run, nil
}

// SavePolicy stores p as a new policy run.
func (s *SQLiteStore) SavePolicy(ctx context.Context, p solver.Policy) (Run, error) {
	run := NewRun(KindPolicy)
	run.Horizon, run.Timestep = p.Horizon, p.Timestep
	cells := EncodePolicy(p)

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertRun(ctx, tx, run); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO policy_cells (run_id, total, soft, up_card, action, cost) VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, c := range cells {
			if _, err := stmt.ExecContext(ctx, run.ID, c.Total, c.Soft, c.UpCard, c.Action.String(), c.Cost.String()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Run{}, fmt.Errorf("save policy: %w", err)
	}

	s.log.Info().Str("op", "store_operation").Str("run_id", run.ID).Str("kind", string(run.Kind)).Int("cells", len(cells)).Msg("saved")
	return run, nil
}

// LoadPolicy returns the latest stored policy.
func (s *SQLiteStore) LoadPolicy(ctx context.Context) (solver.Policy, Run, error) {
	run, err := s.latestRun(ctx, KindPolicy)
	if err != nil {
		return solver.Policy{}, Run{}, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT total, soft, up_card, action, cost FROM policy_cells WHERE run_id = ? ORDER BY soft, total, up_card`, run.ID)
	if err != nil {
		return solver.Policy{}, Run{}, err
	}
	defer rows.Close()

	var cells []PolicyCell
	for rows.Next() {
		var c PolicyCell
		var action string
		if err := rows.Scan(&c.Total, &c.Soft, &c.UpCard, &action, &c.Cost); err != nil {
			return solver.Policy{}, Run{}, err
		}
		if c.Action, err = blackjack.ParseAction(action); err != nil {
			return solver.Policy{}, Run{}, err
		}
		cells = append(cells, c)
	}
	if err := rows.Err(); err != nil {
		return solver.Policy{}, Run{}, err
	}

	p, err := DecodePolicy(run, cells)
	if err != nil {
		return solver.Policy{}, Run{}, fmt.Errorf("run %s: %w", run.ID, err)
	}
	return p, run, nil
}

func (s *SQLiteStore) latestRun(ctx context.Context, kind Kind) (Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, kind, horizon, timestep, created_at FROM runs
		WHERE kind = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`, string(kind))
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%s table: %w", kind, ErrNotFound)
	}
	return run, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var run Run
	var kind string
	var createdAt int64
	if err := row.Scan(&run.ID, &kind, &run.Horizon, &run.Timestep, &createdAt); err != nil {
		return Run{}, err
	}
	run.Kind = Kind(kind)
	run.CreatedAt = time.UnixMilli(createdAt).UTC()
	return run, nil
}

// ListRuns returns runs newest first, optionally restricted to one kind.
func (s *SQLiteStore) ListRuns(ctx context.Context, kind Kind, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `SELECT id, kind, horizon, timestep, created_at FROM runs`
	args := []any{}
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
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
	return runs, rows.Err()
}
