package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/bnema/meetlink/internal/domain"
	"github.com/bnema/meetlink/internal/ports"
)

// RefreshPolicy tunes the orchestrator. RetryFailedRefresh keeps a failed
// refresh on a retry interval instead of waiting for a manual sync; the
// default is manual-sync only.
type RefreshPolicy struct {
	Grace              time.Duration
	RetryFailedRefresh bool
	RetryInterval      time.Duration
}

func (p RefreshPolicy) grace() time.Duration {
	if p.Grace > 0 {
		return p.Grace
	}
	return domain.DefaultGraceWindow
}

func (p RefreshPolicy) retryInterval() time.Duration {
	if p.RetryInterval > 0 {
		return p.RetryInterval
	}
	return 5 * time.Minute
}

// RefreshOrchestrator owns the proactive half of the credential lifecycle:
// one expiry timer per bundle, the refresh exchange, and the refreshed /
// re-auth broadcasts. It is the only component that writes refreshed bundles
// into the store.
//
// Concurrent RequestRefresh calls collapse onto a single in-flight exchange;
// refresh tokens are single-use, so a second parallel exchange with the same
// token would spuriously fail.
type RefreshOrchestrator struct {
	store     *CredentialStore
	refresher ports.TokenRefresher
	bus       ports.EventBus
	clock     ports.Clock
	logger    *slog.Logger
	policy    RefreshPolicy

	group singleflight.Group

	mu          sync.Mutex
	timer       *time.Timer
	stopped     bool
	unsubscribe func()
}

func NewRefreshOrchestrator(store *CredentialStore, refresher ports.TokenRefresher, bus ports.EventBus, clock ports.Clock, logger *slog.Logger, policy RefreshPolicy) *RefreshOrchestrator {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &RefreshOrchestrator{
		store:     store,
		refresher: refresher,
		bus:       bus,
		clock:     clock,
		logger:    logger,
		policy:    policy,
	}
}

// Start arms the expiry timer for the current bundle and keeps it in lockstep
// with every store update. If the bundle is already past threshold the
// refresh fires immediately.
func (o *RefreshOrchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	o.stopped = false
	if o.unsubscribe == nil {
		o.unsubscribe = o.store.Subscribe(func(bundle *domain.CredentialBundle) {
			o.reschedule(bundle)
		})
	}
	o.mu.Unlock()

	o.reschedule(o.store.Get(ctx))
}

// Stop cancels the pending timer and detaches from the store.
func (o *RefreshOrchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.stopped = true
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	if o.unsubscribe != nil {
		o.unsubscribe()
		o.unsubscribe = nil
	}
}

// RequestRefresh performs (or joins) one refresh exchange. It reports false
// with no error when there is nothing to refresh with, matching the
// validator's "escalate, don't crash" contract.
func (o *RefreshOrchestrator) RequestRefresh(ctx context.Context) (bool, error) {
	result, err, _ := o.group.Do("refresh", func() (any, error) {
		return o.refreshOnce(ctx)
	})
	if err != nil {
		return false, err
	}
	return result.(bool), nil
}

func (o *RefreshOrchestrator) refreshOnce(ctx context.Context) (bool, error) {
	bundle := o.store.Get(ctx)
	if bundle == nil || !bundle.CanRefresh() {
		o.logger.Warn("refresh requested without refresh capability")
		o.bus.Publish(domain.ReauthenticationRequired{})
		return false, domain.ErrCredentialUnavailable
	}

	result, err := o.refresher.Refresh(ctx, bundle.SubjectID, bundle.RefreshToken)
	if err != nil {
		o.logger.Error("refresh exchange failed", "subject_id", bundle.SubjectID, "error", err)
		o.bus.Publish(domain.ReauthenticationRequired{})
		o.maybeScheduleRetry()
		return false, fmt.Errorf("%w: %w", domain.ErrRefreshFailed, err)
	}

	refreshed := domain.CredentialBundle{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		SubjectID:    bundle.SubjectID,
		IssuedAt:     o.clock.Now(),
		Lifetime:     bundle.Lifetime,
	}
	if refreshed.RefreshToken == "" {
		// The backend rotated only the access token; the old refresh
		// token stays valid.
		refreshed.RefreshToken = bundle.RefreshToken
	}

	// Set triggers the store subscription, which reschedules the timer
	// from the new IssuedAt.
	o.store.Set(ctx, refreshed)
	o.bus.Publish(domain.CredentialsRefreshed{AccessToken: refreshed.AccessToken})
	o.logger.Info("credentials refreshed", "subject_id", refreshed.SubjectID)

	return true, nil
}

// reschedule cancels any pending timer and arms a new one for the bundle's
// threshold. A nil bundle just cancels.
func (o *RefreshOrchestrator) reschedule(bundle *domain.CredentialBundle) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	if o.stopped || bundle == nil {
		return
	}

	delay := bundle.ExpiresAt().Add(-o.policy.grace()).Sub(o.clock.Now())
	if delay < 0 {
		delay = 0
	}
	o.timer = time.AfterFunc(delay, o.fire)
}

func (o *RefreshOrchestrator) fire() {
	o.mu.Lock()
	stopped := o.stopped
	o.mu.Unlock()
	if stopped {
		return
	}

	if _, err := o.RequestRefresh(context.Background()); err != nil {
		o.logger.Warn("scheduled refresh failed", "error", err)
	}
}

func (o *RefreshOrchestrator) maybeScheduleRetry() {
	if !o.policy.RetryFailedRefresh {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.stopped {
		return
	}
	if o.timer != nil {
		o.timer.Stop()
	}
	o.timer = time.AfterFunc(o.policy.retryInterval(), o.fire)
}

// Grace exposes the effective grace window so the health validator applies
// the same threshold.
func (o *RefreshOrchestrator) Grace() time.Duration {
	return o.policy.grace()
}
