package store

import (
	"bytes"
	"context"
	"fmt"
	"sync"
)

const memoryMaxAttempts = 8

// Memory is the in-process store implementation: a versioned document map
// with compare-and-swap commits and per-key subscriber fan-out. It backs
// single-node deployments and every test in the repo.
type Memory struct {
	mu     sync.Mutex
	docs   map[string]*memDoc
	subs   map[string]map[*memSub]struct{}
	closed bool
}

type memDoc struct {
	version int64
	data    []byte
}

type memSub struct {
	mu      sync.Mutex
	pending *Snapshot
	termErr error
	wake    chan struct{}
	onNext  OnNext
	onErr   OnError
}

func NewMemory() *Memory {
	return &Memory{
		docs: make(map[string]*memDoc),
		subs: make(map[string]map[*memSub]struct{}),
	}
}

func (m *Memory) Read(_ context.Context, key string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Snapshot{}, ErrClosed
	}
	doc, ok := m.docs[key]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return snapshotOf(key, doc), nil
}

func (m *Memory) Transact(ctx context.Context, key string, update Updater) (TxResult, error) {
	for attempt := 0; attempt < memoryMaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return TxResult{}, err
		}

		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return TxResult{}, ErrClosed
		}
		var cur []byte
		seenVersion := int64(-1)
		if doc, ok := m.docs[key]; ok {
			cur = append([]byte(nil), doc.data...)
			seenVersion = doc.version
		}
		m.mu.Unlock()

		next, err := update(cur)
		if err != nil {
			return TxResult{}, err
		}
		if next == nil {
			return TxResult{}, fmt.Errorf("updater returned nil document for %q", key)
		}

		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return TxResult{}, ErrClosed
		}
		doc, exists := m.docs[key]
		liveVersion := int64(-1)
		if exists {
			liveVersion = doc.version
		}
		if liveVersion != seenVersion {
			// Another writer won; re-run the updater on the fresh value.
			m.mu.Unlock()
			continue
		}
		if exists && bytes.Equal(doc.data, next) {
			snap := snapshotOf(key, doc)
			m.mu.Unlock()
			return TxResult{Committed: true, Snapshot: snap}, nil
		}
		if !exists {
			doc = &memDoc{}
			m.docs[key] = doc
		}
		doc.version++
		doc.data = append([]byte(nil), next...)
		snap := snapshotOf(key, doc)
		m.notifyLocked(key, snap)
		m.mu.Unlock()
		return TxResult{Committed: true, Snapshot: snap}, nil
	}
	return TxResult{Committed: false}, ErrConflict
}

func (m *Memory) Subscribe(_ context.Context, key string, onNext OnNext, onErr OnError) (func(), error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	doc, ok := m.docs[key]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	sub := &memSub{
		wake:   make(chan struct{}, 1),
		onNext: onNext,
		onErr:  onErr,
	}
	initial := snapshotOf(key, doc)
	sub.pending = &initial
	if m.subs[key] == nil {
		m.subs[key] = make(map[*memSub]struct{})
	}
	m.subs[key][sub] = struct{}{}
	m.mu.Unlock()

	go sub.pump()
	sub.signal()

	cancel := func() {
		m.mu.Lock()
		if set, ok := m.subs[key]; ok {
			delete(set, sub)
		}
		m.mu.Unlock()
		sub.terminate(ErrClosed, false)
	}
	return cancel, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if _, ok := m.docs[key]; !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	delete(m.docs, key)
	set := m.subs[key]
	delete(m.subs, key)
	m.mu.Unlock()

	for sub := range set {
		sub.terminate(ErrNotFound, true)
	}
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	all := m.subs
	m.subs = make(map[string]map[*memSub]struct{})
	m.mu.Unlock()

	for _, set := range all {
		for sub := range set {
			sub.terminate(ErrClosed, false)
		}
	}
	return nil
}

// notifyLocked replaces each subscriber's pending slot with the newest
// snapshot. Slow consumers see conflated-but-ordered values, never stale
// ones out of order.
func (m *Memory) notifyLocked(key string, snap Snapshot) {
	for sub := range m.subs[key] {
		sub.offer(snap)
	}
}

func (s *memSub) offer(snap Snapshot) {
	s.mu.Lock()
	if s.termErr == nil {
		c := snap
		s.pending = &c
	}
	s.mu.Unlock()
	s.signal()
}

func (s *memSub) terminate(err error, notify bool) {
	s.mu.Lock()
	if s.termErr != nil {
		s.mu.Unlock()
		return
	}
	s.termErr = err
	if !notify {
		s.onErr = nil
	}
	s.mu.Unlock()
	s.signal()
}

func (s *memSub) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// pump delivers snapshots one at a time on a dedicated goroutine, so a slow
// onNext can never block a committing writer.
func (s *memSub) pump() {
	for range s.wake {
		for {
			s.mu.Lock()
			snap := s.pending
			s.pending = nil
			termErr := s.termErr
			onErr := s.onErr
			s.mu.Unlock()

			if snap != nil {
				s.onNext(*snap)
				continue
			}
			if termErr != nil {
				if onErr != nil {
					onErr(termErr)
				}
				return
			}
			break
		}
	}
}

func snapshotOf(key string, doc *memDoc) Snapshot {
	return Snapshot{
		Key:     key,
		Version: doc.version,
		Data:    append([]byte(nil), doc.data...),
	}
}
