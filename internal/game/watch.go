package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"bullpen/internal/store"
)

// Watcher is one client's live view of a room: every emission is a whole
// decoded snapshot that replaces the previous view, never a partial merge.
// A terminal error means the view is no longer live and the client must not
// keep acting on the last snapshot as if it were.
type Watcher struct {
	updates chan Room
	errs    chan error
	cancel  func()
}

// Updates delivers committed room snapshots in commit order, conflated to
// the latest when the consumer lags.
func (w *Watcher) Updates() <-chan Room { return w.updates }

// Errs delivers at most one terminal error.
func (w *Watcher) Errs() <-chan error { return w.errs }

func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
}

// WatchRoom subscribes one client to a room document.
func (s *Service) WatchRoom(ctx context.Context, roomID string) (*Watcher, error) {
	w := &Watcher{
		updates: make(chan Room, 1),
		errs:    make(chan error, 1),
	}

	onNext := func(snap store.Snapshot) {
		var room Room
		if err := json.Unmarshal(snap.Data, &room); err != nil {
			w.fail(fmt.Errorf("decode room %q: %w", roomID, err))
			return
		}
		// Conflate: replace an unconsumed snapshot with the newer one. The
		// store delivers on a single goroutine, so this never races itself.
		select {
		case w.updates <- room:
		default:
			select {
			case <-w.updates:
			default:
			}
			w.updates <- room
		}
	}
	onErr := func(err error) {
		if errors.Is(err, store.ErrNotFound) {
			err = ErrRoomNotFound
		} else if !errors.Is(err, ErrRoomNotFound) {
			err = fmt.Errorf("%w: %v", ErrStoreUnreachable, err)
		}
		w.fail(err)
	}

	cancel, err := s.store.Subscribe(ctx, roomID, onNext, onErr)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	w.cancel = cancel
	return w, nil
}

func (w *Watcher) fail(err error) {
	select {
	case w.errs <- err:
	default:
	}
}
