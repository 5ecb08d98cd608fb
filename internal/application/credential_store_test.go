package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/meetlink/internal/domain"
)

func testBundle(issuedAt time.Time) domain.CredentialBundle {
	return domain.CredentialBundle{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		SubjectID:    "user-1",
		IssuedAt:     issuedAt,
		Lifetime:     24 * time.Hour,
	}
}

func TestCredentialStoreRoundTrip(t *testing.T) {
	repo := &fakeRepo{}
	store := NewCredentialStore(repo, nil)
	bundle := testBundle(time.Now())

	store.Set(context.Background(), bundle)

	got := store.Get(context.Background())
	require.NotNil(t, got)
	assert.Equal(t, bundle, *got)
	assert.Equal(t, 1, repo.saves)
}

func TestCredentialStoreClear(t *testing.T) {
	repo := &fakeRepo{}
	store := NewCredentialStore(repo, nil)

	store.Set(context.Background(), testBundle(time.Now()))
	store.Clear(context.Background())

	assert.Nil(t, store.Get(context.Background()))
}

func TestCredentialStoreLazyLoadOnce(t *testing.T) {
	bundle := testBundle(time.Now())
	repo := &fakeRepo{bundle: &bundle}
	store := NewCredentialStore(repo, nil)

	first := store.Get(context.Background())
	second := store.Get(context.Background())

	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, bundle, *first)
	assert.Equal(t, 1, repo.loads, "repository hit exactly once")
}

func TestCredentialStoreLoadErrorTreatedAsAbsent(t *testing.T) {
	repo := &fakeRepo{loadErr: errors.New("disk on fire")}
	store := NewCredentialStore(repo, nil)

	assert.Nil(t, store.Get(context.Background()))
}

func TestCredentialStoreSaveErrorKeepsCachedValue(t *testing.T) {
	repo := &fakeRepo{saveErr: errors.New("disk full")}
	store := NewCredentialStore(repo, nil)
	bundle := testBundle(time.Now())

	store.Set(context.Background(), bundle)

	got := store.Get(context.Background())
	require.NotNil(t, got)
	assert.Equal(t, bundle, *got)
}

func TestCredentialStoreSubscribe(t *testing.T) {
	repo := &fakeRepo{}
	store := NewCredentialStore(repo, nil)

	var seen []*domain.CredentialBundle
	unsubscribe := store.Subscribe(func(bundle *domain.CredentialBundle) {
		seen = append(seen, bundle)
	})

	bundle := testBundle(time.Now())
	store.Set(context.Background(), bundle)
	store.Clear(context.Background())

	require.Len(t, seen, 2)
	require.NotNil(t, seen[0])
	assert.Equal(t, bundle, *seen[0])
	assert.Nil(t, seen[1])

	unsubscribe()
	store.Set(context.Background(), bundle)
	assert.Len(t, seen, 2, "no notifications after unsubscribe")
}

func TestWaitForAccessTokenAlreadyPresent(t *testing.T) {
	bundle := testBundle(time.Now())
	repo := &fakeRepo{bundle: &bundle}
	store := NewCredentialStore(repo, nil)

	token, err := store.WaitForAccessToken(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "access-1", token)
}

func TestWaitForAccessTokenArrivesLater(t *testing.T) {
	repo := &fakeRepo{}
	store := NewCredentialStore(repo, nil)

	go func() {
		time.Sleep(20 * time.Millisecond)
		store.Set(context.Background(), testBundle(time.Now()))
	}()

	token, err := store.WaitForAccessToken(context.Background(), 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "access-1", token)
}

func TestWaitForAccessTokenTimeout(t *testing.T) {
	store := NewCredentialStore(&fakeRepo{}, nil)

	_, err := store.WaitForAccessToken(context.Background(), 20*time.Millisecond)
	require.ErrorIs(t, err, domain.ErrWaitTimeout)
}
