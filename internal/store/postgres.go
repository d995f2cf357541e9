package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgMaxAttempts   = 8
	pgNotifyChannel = "bullpen_documents"
)

// Postgres persists documents as versioned jsonb rows. Commits are
// compare-and-swap updates on the version column; subscriptions ride
// LISTEN/NOTIFY with a re-read per notification, so subscribers always see
// committed values in version order.
type Postgres struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func ConnectPostgres(ctx context.Context, databaseURL string, logger *slog.Logger) (*Postgres, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 20
	cfg.MinConns = 2
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 10 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS documents (
			key        TEXT PRIMARY KEY,
			version    BIGINT NOT NULL,
			doc        JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure documents table: %w", err)
	}
	return &Postgres{pool: pool, log: logger}, nil
}

func (p *Postgres) Read(ctx context.Context, key string) (Snapshot, error) {
	var snap Snapshot
	snap.Key = key
	err := p.pool.QueryRow(ctx, `
		SELECT version, doc
		FROM documents
		WHERE key = $1
	`, key).Scan(&snap.Version, &snap.Data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Snapshot{}, ErrNotFound
		}
		return Snapshot{}, fmt.Errorf("read %q: %w", key, err)
	}
	return snap, nil
}

func (p *Postgres) Transact(ctx context.Context, key string, update Updater) (TxResult, error) {
	retryDelay := 75 * time.Millisecond
	for attempt := 0; attempt < pgMaxAttempts; attempt++ {
		snap, err := p.Read(ctx, key)
		var cur []byte
		seenVersion := int64(-1)
		switch {
		case err == nil:
			cur = snap.Data
			seenVersion = snap.Version
		case errors.Is(err, ErrNotFound):
			// Updater may create the document.
		default:
			return TxResult{}, err
		}

		next, err := update(cur)
		if err != nil {
			return TxResult{}, err
		}
		if next == nil {
			return TxResult{}, fmt.Errorf("updater returned nil document for %q", key)
		}
		if seenVersion >= 0 && bytes.Equal(cur, next) {
			return TxResult{Committed: true, Snapshot: snap}, nil
		}

		committed, result, err := p.commit(ctx, key, seenVersion, next)
		if err != nil {
			return TxResult{}, err
		}
		if committed {
			return TxResult{Committed: true, Snapshot: result}, nil
		}
		if attempt == pgMaxAttempts-1 {
			break
		}
		if err := sleepWithContext(ctx, retryDelay); err != nil {
			return TxResult{}, err
		}
		if retryDelay < 1200*time.Millisecond {
			retryDelay *= 2
		}
	}
	return TxResult{Committed: false}, ErrConflict
}

// commit attempts exactly one compare-and-swap write. seenVersion < 0 means
// the document was absent and the write is an insert.
func (p *Postgres) commit(ctx context.Context, key string, seenVersion int64, next []byte) (bool, Snapshot, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return false, Snapshot{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var newVersion int64
	if seenVersion < 0 {
		tag, err := tx.Exec(ctx, `
			INSERT INTO documents (key, version, doc)
			VALUES ($1, 1, $2)
			ON CONFLICT (key) DO NOTHING
		`, key, next)
		if err != nil {
			return false, Snapshot{}, fmt.Errorf("insert %q: %w", key, err)
		}
		if tag.RowsAffected() == 0 {
			return false, Snapshot{}, nil
		}
		newVersion = 1
	} else {
		err := tx.QueryRow(ctx, `
			UPDATE documents
			SET version = version + 1, doc = $1, updated_at = now()
			WHERE key = $2 AND version = $3
			RETURNING version
		`, next, key, seenVersion).Scan(&newVersion)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return false, Snapshot{}, nil
			}
			return false, Snapshot{}, fmt.Errorf("update %q: %w", key, err)
		}
	}

	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, pgNotifyChannel, key); err != nil {
		return false, Snapshot{}, fmt.Errorf("notify %q: %w", key, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, Snapshot{}, fmt.Errorf("commit %q: %w", key, err)
	}
	return true, Snapshot{Key: key, Version: newVersion, Data: append([]byte(nil), next...)}, nil
}

func (p *Postgres) Subscribe(ctx context.Context, key string, onNext OnNext, onErr OnError) (func(), error) {
	initial, err := p.Read(ctx, key)
	if err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(context.Background())
	go p.listen(subCtx, key, initial, onNext, onErr)
	return cancel, nil
}

// listen owns a dedicated connection for LISTEN and re-reads the document on
// every notification. Deliveries happen on this goroutine, so order follows
// the version column.
func (p *Postgres) listen(ctx context.Context, key string, initial Snapshot, onNext OnNext, onErr OnError) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		onErr(fmt.Errorf("%w: acquire listener: %v", ErrUnreachable, err))
		return
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgNotifyChannel); err != nil {
		onErr(fmt.Errorf("%w: listen: %v", ErrUnreachable, err))
		return
	}

	lastVersion := initial.Version
	onNext(initial)

	for {
		note, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			onErr(fmt.Errorf("%w: wait notification: %v", ErrUnreachable, err))
			return
		}
		if note.Payload != key {
			continue
		}
		snap, err := p.Read(ctx, key)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				onErr(ErrNotFound)
				return
			}
			if ctx.Err() != nil {
				return
			}
			onErr(err)
			return
		}
		if snap.Version <= lastVersion {
			continue
		}
		lastVersion = snap.Version
		onNext(snap)
	}
}

func (p *Postgres) Delete(ctx context.Context, key string) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM documents WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, pgNotifyChannel, key); err != nil {
		return fmt.Errorf("notify %q: %w", key, err)
	}
	return tx.Commit(ctx)
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
