package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bnema/meetlink/internal/domain"
	"github.com/bnema/meetlink/internal/ports"
)

// CredentialStore is the single source of truth for the current credential
// bundle. Exactly one writer (the refresh orchestrator, plus the login and
// logout commands) calls Set and Clear; everything else reads and subscribes.
//
// Repository failures degrade to "no credential" instead of propagating, so
// readers always get a definite answer.
type CredentialStore struct {
	repo   ports.CredentialRepository
	logger *slog.Logger

	mu        sync.Mutex
	loaded    bool
	bundle    *domain.CredentialBundle
	listeners map[int]func(*domain.CredentialBundle)
	nextID    int
}

func NewCredentialStore(repo ports.CredentialRepository, logger *slog.Logger) *CredentialStore {
	if logger == nil {
		logger = slog.Default()
	}

	return &CredentialStore{
		repo:      repo,
		logger:    logger,
		listeners: map[int]func(*domain.CredentialBundle){},
	}
}

// Get returns the cached bundle, loading from the repository exactly once.
// Returns nil when no credential is available.
func (s *CredentialStore) Get(ctx context.Context) *domain.CredentialBundle {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		s.loaded = true
		bundle, err := s.repo.Load(ctx)
		if err != nil {
			if !errors.Is(err, domain.ErrCredentialUnavailable) {
				s.logger.Warn("credential load failed, treating as absent", "error", err)
			}
		} else {
			s.bundle = &bundle
		}
	}

	return copyBundle(s.bundle)
}

// Set replaces the bundle, persists it, and synchronously notifies
// subscribers. A persistence failure is logged; the in-memory value still
// wins so the running process keeps working.
func (s *CredentialStore) Set(ctx context.Context, bundle domain.CredentialBundle) {
	s.mu.Lock()
	s.loaded = true
	s.bundle = &bundle
	if err := s.repo.Save(ctx, bundle); err != nil {
		s.logger.Error("credential save failed", "error", err)
	}
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	for _, listener := range listeners {
		listener(copyBundle(&bundle))
	}
}

// Clear drops the bundle and notifies subscribers with nil.
func (s *CredentialStore) Clear(ctx context.Context) {
	s.mu.Lock()
	s.loaded = true
	s.bundle = nil
	if err := s.repo.Clear(ctx); err != nil {
		s.logger.Error("credential clear failed", "error", err)
	}
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	for _, listener := range listeners {
		listener(nil)
	}
}

// Subscribe registers a listener invoked on every Set and Clear, in
// registration order. The returned function unsubscribes.
func (s *CredentialStore) Subscribe(listener func(*domain.CredentialBundle)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = listener
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// WaitForAccessToken resolves once an access token is present, checking the
// cached value before waiting so a token that arrived earlier is not missed.
// Fails with domain.ErrWaitTimeout after timeout.
func (s *CredentialStore) WaitForAccessToken(ctx context.Context, timeout time.Duration) (string, error) {
	if bundle := s.Get(ctx); bundle != nil && bundle.AccessToken != "" {
		return bundle.AccessToken, nil
	}

	tokens := make(chan string, 1)
	unsubscribe := s.Subscribe(func(bundle *domain.CredentialBundle) {
		if bundle == nil || bundle.AccessToken == "" {
			return
		}
		select {
		case tokens <- bundle.AccessToken:
		default:
		}
	})
	defer unsubscribe()

	// Re-check after subscribing: the token may have landed in between.
	if bundle := s.Get(ctx); bundle != nil && bundle.AccessToken != "" {
		return bundle.AccessToken, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case token := <-tokens:
		return token, nil
	case <-timer.C:
		return "", domain.ErrWaitTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// snapshotListeners must be called with s.mu held.
func (s *CredentialStore) snapshotListeners() []func(*domain.CredentialBundle) {
	listeners := make([]func(*domain.CredentialBundle), 0, len(s.listeners))
	for id := 0; id < s.nextID; id++ {
		if listener, ok := s.listeners[id]; ok {
			listeners = append(listeners, listener)
		}
	}
	return listeners
}

func copyBundle(bundle *domain.CredentialBundle) *domain.CredentialBundle {
	if bundle == nil {
		return nil
	}
	copied := *bundle
	return &copied
}
