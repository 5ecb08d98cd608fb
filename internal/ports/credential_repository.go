package ports

import (
	"context"

	"github.com/bnema/meetlink/internal/domain"
)

// CredentialRepository persists the current credential bundle. Load returns
// domain.ErrCredentialUnavailable when no bundle has been stored.
type CredentialRepository interface {
	Load(ctx context.Context) (domain.CredentialBundle, error)
	Save(ctx context.Context, bundle domain.CredentialBundle) error
	Clear(ctx context.Context) error
}
