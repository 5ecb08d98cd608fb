package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	memorybus "github.com/bnema/meetlink/internal/adapters/bus/memory"
	"github.com/bnema/meetlink/internal/domain"
)

type fakeRequester struct {
	mu    sync.Mutex
	calls int
	err   error
	grace time.Duration
}

func (r *fakeRequester) RequestRefresh(_ context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.err == nil, r.err
}

func (r *fakeRequester) Grace() time.Duration {
	if r.grace > 0 {
		return r.grace
	}
	return domain.DefaultGraceWindow
}

func (r *fakeRequester) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestHealthCheckFreshTokenDoesNothing(t *testing.T) {
	now := time.Now()
	bundle := testBundle(now)
	store := NewCredentialStore(&fakeRepo{bundle: &bundle}, nil)
	bus := memorybus.NewBus()
	recorder := recordEvents(bus)
	requester := &fakeRequester{}

	validator := NewHealthValidator(store, requester, bus, newFakeClock(now), nil, time.Minute)
	validator.Check(context.Background())

	assert.Zero(t, requester.callCount())
	assert.Empty(t, recorder.all())
}

func TestHealthCheckExpiringSoonTriggersRefresh(t *testing.T) {
	now := time.Now()
	bundle := testBundle(now.Add(-17 * time.Hour))
	store := NewCredentialStore(&fakeRepo{bundle: &bundle}, nil)
	requester := &fakeRequester{}

	validator := NewHealthValidator(store, requester, memorybus.NewBus(), newFakeClock(now), nil, time.Minute)
	validator.Check(context.Background())

	assert.Equal(t, 1, requester.callCount())
}

func TestHealthCheckIsIdempotent(t *testing.T) {
	now := time.Now()
	bundle := testBundle(now.Add(-17 * time.Hour))
	store := NewCredentialStore(&fakeRepo{bundle: &bundle}, nil)
	requester := &fakeRequester{}

	validator := NewHealthValidator(store, requester, memorybus.NewBus(), newFakeClock(now), nil, time.Minute)
	validator.Check(context.Background())
	validator.Check(context.Background())

	// Each audit re-requests; the orchestrator's collapsing makes the
	// second one cheap. The audit itself must not change state.
	assert.Equal(t, 2, requester.callCount())
	assert.NotNil(t, store.Get(context.Background()))
}

func TestHealthCheckMissingTokenWithRefreshCapability(t *testing.T) {
	now := time.Now()
	bundle := testBundle(now)
	bundle.AccessToken = ""
	store := NewCredentialStore(&fakeRepo{bundle: &bundle}, nil)
	requester := &fakeRequester{}

	validator := NewHealthValidator(store, requester, memorybus.NewBus(), newFakeClock(now), nil, time.Minute)
	validator.Check(context.Background())

	assert.Equal(t, 1, requester.callCount())
}

func TestHealthCheckNoCredentialsBroadcastsReauth(t *testing.T) {
	store := NewCredentialStore(&fakeRepo{}, nil)
	bus := memorybus.NewBus()
	recorder := recordEvents(bus)
	requester := &fakeRequester{}

	validator := NewHealthValidator(store, requester, bus, nil, nil, time.Minute)
	validator.Check(context.Background())

	assert.Zero(t, requester.callCount())
	assert.True(t, recorder.has(isReauth))
}
