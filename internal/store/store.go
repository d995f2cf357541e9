// Package store provides the keyed document store the game runs on: atomic
// read-modify-commit transactions plus commit-ordered change subscriptions.
// Every mutation in the system flows through Transact as a pure updater, so
// the store is the only mutual-exclusion mechanism anywhere.
package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound: the key has no document (never created, or deleted).
	ErrNotFound = errors.New("document not found")
	// ErrConflict: the bounded optimistic retry loop never committed.
	ErrConflict = errors.New("transaction conflict: retries exhausted")
	// ErrUnreachable: the backing store cannot be reached.
	ErrUnreachable = errors.New("store unreachable")
	// ErrClosed: the store or a subscription was shut down.
	ErrClosed = errors.New("store closed")
)

// Snapshot is one committed value of a document. Version increases with
// every committed write to the same key.
type Snapshot struct {
	Key     string
	Version int64
	Data    []byte
}

// Updater maps the current document (nil when absent) to its next value. It
// must be pure: the store may invoke it several times against progressively
// fresher snapshots before one commit wins. Returning the input bytes
// unchanged commits a no-op; returning an error aborts the transaction
// without committing anything.
type Updater func(current []byte) ([]byte, error)

// OnNext receives committed snapshots in commit order. Intermediate values
// may be conflated to the latest unseen one, but never reordered.
type OnNext func(Snapshot)

// OnError receives a terminal subscription error; no OnNext follows it.
type OnError func(error)

type TxResult struct {
	Committed bool
	Snapshot  Snapshot
}

type Store interface {
	// Read returns the latest committed snapshot for key.
	Read(ctx context.Context, key string) (Snapshot, error)

	// Transact atomically applies update to key. The updater sees nil when
	// the document does not exist and may create it. Exhausted retries
	// return ErrConflict with Committed=false and no observable effect.
	Transact(ctx context.Context, key string, update Updater) (TxResult, error)

	// Subscribe delivers the current value immediately, then every commit in
	// order, until cancel is called or a terminal error is delivered.
	Subscribe(ctx context.Context, key string, onNext OnNext, onErr OnError) (cancel func(), err error)

	// Delete removes the document; active subscribers receive ErrNotFound.
	Delete(ctx context.Context, key string) error

	Close() error
}
