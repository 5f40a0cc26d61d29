// Package accountstore owns the single source of truth for what the
// ledger currently says about the loaded account.
package accountstore

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lumeris/lumeris/internal/domain"
)

// AccountLoader is the slice of the ledger gateway the store needs.
type AccountLoader interface {
	LoadAccount(ctx context.Context, accountID string) (domain.AccountSnapshot, error)
}

// Store maintains the current AccountSnapshot and refreshes it on demand
// and on a polling timer. It is the only writer of the snapshot; every
// update is a wholesale replacement, never a field-by-field merge, so
// readers can never observe torn state.
type Store struct {
	loader AccountLoader
	logger *zap.Logger

	mu         sync.Mutex
	key        domain.KeyMaterial
	snapshot   domain.AccountSnapshot
	generation uint64

	pollRefs   int
	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

// New creates a store backed by the given account loader.
func New(loader AccountLoader, logger *zap.Logger) *Store {
	return &Store{loader: loader, logger: logger}
}

// Snapshot returns a copy of the current snapshot. Cheap, synchronous,
// safe to call from any goroutine.
func (s *Store) Snapshot() domain.AccountSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot.Clone()
}

// Key returns the currently loaded key material.
func (s *Store) Key() domain.KeyMaterial {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key
}

// SetKey replaces the session key material and immediately loads the
// account it names. Passing zero material clears the snapshot instead.
func (s *Store) SetKey(ctx context.Context, km domain.KeyMaterial) error {
	s.mu.Lock()
	s.key = km
	s.generation++ // late responses for the previous key are now stale
	s.snapshot = domain.AccountSnapshot{}
	s.mu.Unlock()

	if km.IsZero() {
		return nil
	}
	return s.Load(ctx)
}

// ClearKey drops the key material and snapshot.
func (s *Store) ClearKey() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = domain.KeyMaterial{}
	s.snapshot = domain.AccountSnapshot{}
	s.generation++
}

// Load refreshes the snapshot from the ledger. Concurrent loads adopt
// latest-initiated-wins semantics: each call takes a new generation and a
// completed fetch is only stored if no newer load has started since. A
// failed fetch returns FetchError and leaves the previous snapshot
// untouched; stale-but-valid beats blanked state.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	if s.key.IsZero() {
		s.mu.Unlock()
		return domain.NewValidationError("no key material loaded")
	}
	s.generation++
	generation := s.generation
	accountID := s.key.PublicKey
	s.mu.Unlock()

	snapshot, err := s.loader.LoadAccount(ctx, accountID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if generation != s.generation {
		// a newer load or key change superseded this response
		return nil
	}
	if s.key.PublicKey != accountID {
		return nil
	}
	s.snapshot = snapshot
	return nil
}

// StartPolling begins (or joins) the refresh loop. Calls are reference
// counted so several surfaces can share one poller; the loop starts on
// the first call and stops when StopPolling has been called as many times.
func (s *Store) StartPolling(ctx context.Context, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pollRefs++
	if s.pollRefs > 1 {
		return
	}

	pollCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.pollCancel = cancel
	s.pollDone = done

	go s.pollLoop(pollCtx, interval, done)
}

// StopPolling releases one reference to the polling loop, cancelling it
// when the last reference goes. Idempotent: extra stops are no-ops.
func (s *Store) StopPolling() {
	s.mu.Lock()
	if s.pollRefs == 0 {
		s.mu.Unlock()
		return
	}
	s.pollRefs--
	if s.pollRefs > 0 {
		s.mu.Unlock()
		return
	}
	cancel := s.pollCancel
	done := s.pollDone
	s.pollCancel = nil
	s.pollDone = nil
	s.generation++ // in-flight poll results must not resurrect the snapshot
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (s *Store) pollLoop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.Key().IsZero() {
				continue
			}
			if err := s.Load(ctx); err != nil {
				// keep the previous snapshot; the next tick retries the read
				s.logger.Warn("account refresh failed", zap.Error(err))
			}
		}
	}
}
