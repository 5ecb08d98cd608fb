package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/bnema/meetlink/internal/domain"
	"github.com/bnema/meetlink/internal/ports"
)

// RefreshRequester is the slice of the orchestrator the validator needs.
type RefreshRequester interface {
	RequestRefresh(ctx context.Context) (bool, error)
	Grace() time.Duration
}

// HealthValidator periodically audits credential freshness from the runtime
// side. It is deliberately redundant with the orchestrator's own timer; the
// orchestrator's in-flight collapsing deduplicates the two.
type HealthValidator struct {
	store     *CredentialStore
	refresher RefreshRequester
	bus       ports.EventBus
	clock     ports.Clock
	logger    *slog.Logger
	interval  time.Duration
}

func NewHealthValidator(store *CredentialStore, refresher RefreshRequester, bus ports.EventBus, clock ports.Clock, logger *slog.Logger, interval time.Duration) *HealthValidator {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Minute
	}

	return &HealthValidator{
		store:     store,
		refresher: refresher,
		bus:       bus,
		clock:     clock,
		logger:    logger,
		interval:  interval,
	}
}

// Run checks immediately, then on every interval tick until ctx is done.
func (v *HealthValidator) Run(ctx context.Context) {
	v.Check(ctx)

	ticker := time.NewTicker(v.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			v.Check(ctx)
		}
	}
}

// Check performs one audit. It produces the same outcome whether or not the
// orchestrator's timer has already fired.
func (v *HealthValidator) Check(ctx context.Context) {
	bundle := v.store.Get(ctx)

	switch {
	case bundle == nil || bundle.AccessToken == "":
		if bundle != nil && bundle.CanRefresh() {
			v.requestRefresh(ctx)
			return
		}
		v.logger.Warn("no credentials and no refresh capability")
		v.bus.Publish(domain.ReauthenticationRequired{})

	case bundle.ExpiringSoon(v.clock.Now(), v.refresher.Grace()):
		v.requestRefresh(ctx)
	}
}

func (v *HealthValidator) requestRefresh(ctx context.Context) {
	// Failure escalation (the re-auth broadcast) is the orchestrator's
	// job; the validator only logs.
	if _, err := v.refresher.RequestRefresh(ctx); err != nil {
		v.logger.Warn("health check refresh failed", "error", err)
	}
}
