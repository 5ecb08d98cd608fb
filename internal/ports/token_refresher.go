package ports

import (
	"context"

	"github.com/bnema/meetlink/internal/domain"
)

// RefreshResult carries the outcome of a refresh exchange. RefreshToken is
// empty when the backend rotates access tokens without rotating refresh
// tokens.
type RefreshResult struct {
	AccessToken  string
	RefreshToken string
}

type TokenRefresher interface {
	Refresh(ctx context.Context, subjectID domain.SubjectID, refreshToken string) (RefreshResult, error)
}
