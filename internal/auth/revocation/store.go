// Package revocation tracks tokens explicitly invalidated before their
// natural expiry. Entries are created at issuance for audit/inventory,
// flipped to blacklisted on logout, and removed by a periodic sweep
// once the underlying token no longer verifies. Absence of an entry
// never means "revoked" — it means "rely on the token's own expiry".
package revocation

import (
	"context"
	"sync"
	"time"

	"github.com/shoply/gateway/internal/observability"
)

// Entry records a token issued by the gateway.
type Entry struct {
	UserID      int64
	Email       string
	Role        string
	CreatedAt   time.Time
	Blacklisted bool
}

// Store is the revocation store contract. Implementations must be safe
// under arbitrary concurrent access with no external locking.
type Store interface {
	// Record inserts an entry at issuance time. Recording the same
	// token twice overwrites the previous entry.
	Record(ctx context.Context, token string, userID int64, email, role string) error

	// Blacklist marks a known token as revoked and reports whether it
	// was found. Unknown tokens are a no-op success.
	Blacklist(ctx context.Context, token string) (bool, error)

	// IsBlacklisted reports whether the token has been revoked.
	// Tokens never recorded are not blacklisted.
	IsBlacklisted(ctx context.Context, token string) (bool, error)

	// Sweep removes entries whose token fails the given verification,
	// regardless of blacklist state, and returns the number removed.
	Sweep(ctx context.Context, verify func(token string) error) (int, error)

	// Len returns the current number of entries.
	Len(ctx context.Context) (int, error)
}

// MemoryStore is the default in-memory store implementation.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	now     func() time.Time
}

// MemoryOption is a functional option for the memory store.
type MemoryOption func(*MemoryStore)

// WithMemoryClock sets the time source for created-at stamps.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore creates a new in-memory revocation store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]*Entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record inserts or overwrites the entry for the token.
func (s *MemoryStore) Record(_ context.Context, token string, userID int64, email, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[token] = &Entry{
		UserID:    userID,
		Email:     email,
		Role:      role,
		CreatedAt: s.now(),
	}
	return nil
}

// Blacklist marks a known token as revoked.
func (s *MemoryStore) Blacklist(_ context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[token]
	if !ok {
		return false, nil
	}
	entry.Blacklisted = true
	return true, nil
}

// IsBlacklisted reports whether the token has been revoked.
func (s *MemoryStore) IsBlacklisted(_ context.Context, token string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[token]
	return ok && entry.Blacklisted, nil
}

// Sweep removes entries whose token fails verification. Verification
// runs outside the lock; each removal holds the lock briefly so
// request handling is never blocked for the whole pass.
func (s *MemoryStore) Sweep(ctx context.Context, verify func(token string) error) (int, error) {
	s.mu.RLock()
	tokens := make([]string, 0, len(s.entries))
	for token := range s.entries {
		tokens = append(tokens, token)
	}
	s.mu.RUnlock()

	removed := 0
	for _, token := range tokens {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if verify(token) == nil {
			continue
		}
		s.mu.Lock()
		if _, ok := s.entries[token]; ok {
			delete(s.entries, token)
			removed++
		}
		s.mu.Unlock()
	}
	return removed, nil
}

// Len returns the current number of entries.
func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// Sweeper periodically sweeps a store on a fixed interval. It runs on
// its own goroutine, never blocks request handling, and swallows sweep
// failures after logging them.
type Sweeper struct {
	store    Store
	verify   func(token string) error
	interval time.Duration
	logger   observability.Logger
	onSize   func(int)
}

// SweeperOption is a functional option for the sweeper.
type SweeperOption func(*Sweeper)

// WithSweeperLogger sets the logger for the sweeper.
func WithSweeperLogger(logger observability.Logger) SweeperOption {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

// WithSweeperSizeCallback sets a callback invoked with the store size
// after each sweep, used for metrics.
func WithSweeperSizeCallback(fn func(int)) SweeperOption {
	return func(s *Sweeper) {
		s.onSize = fn
	}
}

// NewSweeper creates a new sweeper.
func NewSweeper(store Store, verify func(token string) error, interval time.Duration, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		store:    store,
		verify:   verify,
		interval: interval,
		logger:   observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs the sweep loop until the context is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweepOnce(ctx)
			}
		}
	}()
}

// sweepOnce runs a single sweep pass.
func (s *Sweeper) sweepOnce(ctx context.Context) {
	removed, err := s.store.Sweep(ctx, s.verify)
	if err != nil {
		s.logger.Warn("revocation sweep failed", observability.Error(err))
		return
	}

	size, err := s.store.Len(ctx)
	if err == nil && s.onSize != nil {
		s.onSize(size)
	}

	s.logger.Debug("revocation sweep completed",
		observability.Int("removed", removed),
		observability.Int("remaining", size),
	)
}
