package cart

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrate applies the embedded cart schema migrations to databaseURL.
func Migrate(databaseURL string) error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// PostgresBackend stores carts in PostgreSQL so they survive restarts and
// can be shared by several server replicas. Update holds a row lock on the
// session for the whole read-modify-write.
type PostgresBackend struct {
	db *pgxpool.Pool
}

// NewPostgresBackend creates a backend over an existing pool.
// The schema must already be migrated (see Migrate).
func NewPostgresBackend(db *pgxpool.Pool) *PostgresBackend {
	return &PostgresBackend{db: db}
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

func (b *PostgresBackend) Load(ctx context.Context, sessionID string) (*Cart, bool, error) {
	var exists bool
	err := b.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM cart_sessions WHERE session_id = $1)`,
		sessionID).Scan(&exists)
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up session: %w", err)
	}
	if !exists {
		return &Cart{}, false, nil
	}

	c, err := loadLines(ctx, b.db, sessionID)
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}

func (b *PostgresBackend) Save(ctx context.Context, sessionID string, c *Cart) error {
	return pgx.BeginFunc(ctx, b.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO cart_sessions (session_id) VALUES ($1)
			 ON CONFLICT (session_id) DO UPDATE SET updated_at = now()`,
			sessionID)
		if err != nil {
			return fmt.Errorf("failed to upsert session: %w", err)
		}
		return replaceLines(ctx, tx, sessionID, c)
	})
}

// Update registers the session if needed, then locks its row with
// SELECT ... FOR UPDATE before reading the lines, so concurrent updates
// from any replica apply one after another.
func (b *PostgresBackend) Update(ctx context.Context, sessionID string, fn UpdateFunc) error {
	return pgx.BeginFunc(ctx, b.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`INSERT INTO cart_sessions (session_id) VALUES ($1)
			 ON CONFLICT (session_id) DO NOTHING`,
			sessionID)
		if err != nil {
			return fmt.Errorf("failed to register session: %w", err)
		}
		known := tag.RowsAffected() == 0

		if _, err := tx.Exec(ctx,
			`SELECT 1 FROM cart_sessions WHERE session_id = $1 FOR UPDATE`,
			sessionID); err != nil {
			return fmt.Errorf("failed to lock session: %w", err)
		}

		c, err := loadLines(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if err := fn(c, known); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`UPDATE cart_sessions SET updated_at = now() WHERE session_id = $1`,
			sessionID); err != nil {
			return fmt.Errorf("failed to touch session: %w", err)
		}
		return replaceLines(ctx, tx, sessionID, c)
	})
}

func loadLines(ctx context.Context, q querier, sessionID string) (*Cart, error) {
	rows, err := q.Query(ctx,
		`SELECT store, item_index, product, quantity
		   FROM cart_lines
		  WHERE session_id = $1
		  ORDER BY position`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart lines: %w", err)
	}
	defer rows.Close()

	c := &Cart{}
	for rows.Next() {
		var (
			line    Line
			product []byte
		)
		if err := rows.Scan(&line.Ref.Store, &line.Ref.Index, &product, &line.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan cart line: %w", err)
		}
		if err := json.Unmarshal(product, &line.Product); err != nil {
			return nil, fmt.Errorf("failed to decode product snapshot: %w", err)
		}
		line.Store = line.Ref.Store
		c.Lines = append(c.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cart lines: %w", err)
	}
	return c, nil
}

// replaceLines swaps the session's stored lines for c's. Callers hold the
// session row lock.
func replaceLines(ctx context.Context, q querier, sessionID string, c *Cart) error {
	if _, err := q.Exec(ctx, `DELETE FROM cart_lines WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("failed to clear cart lines: %w", err)
	}

	batch := &pgx.Batch{}
	for i, line := range c.Lines {
		product, err := json.Marshal(line.Product)
		if err != nil {
			return fmt.Errorf("failed to encode product snapshot: %w", err)
		}
		batch.Queue(
			`INSERT INTO cart_lines (session_id, position, store, item_index, product, quantity)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			sessionID, i, line.Ref.Store, line.Ref.Index, product, line.Quantity)
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := q.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert cart lines: %w", err)
	}
	return nil
}

func (b *PostgresBackend) Sessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := b.db.Query(ctx,
		`SELECT s.session_id, COUNT(l.session_id)
		   FROM cart_sessions s
		   LEFT JOIN cart_lines l ON l.session_id = s.session_id
		  GROUP BY s.session_id
		  ORDER BY s.session_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	sessions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (SessionInfo, error) {
		var info SessionInfo
		err := row.Scan(&info.ID, &info.Lines)
		return info, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan sessions: %w", err)
	}
	return sessions, nil
}

// Verify PostgresBackend implements Backend at compile time.
var _ Backend = (*PostgresBackend)(nil)
