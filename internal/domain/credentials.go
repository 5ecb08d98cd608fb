package domain

import "time"

const (
	// DefaultCredentialLifetime is how long an access token stays usable
	// after issuance.
	DefaultCredentialLifetime = 24 * time.Hour

	// DefaultGraceWindow is how long before actual expiry a proactive
	// refresh is triggered.
	DefaultGraceWindow = 8 * time.Hour
)

type SubjectID string

// CredentialBundle is the unit of authentication state. It is replaced
// wholesale on every refresh; contexts other than the credential authority
// only ever hold a by-value copy.
type CredentialBundle struct {
	AccessToken  string
	RefreshToken string
	SubjectID    SubjectID
	IssuedAt     time.Time
	Lifetime     time.Duration
}

func (b CredentialBundle) lifetime() time.Duration {
	if b.Lifetime > 0 {
		return b.Lifetime
	}
	return DefaultCredentialLifetime
}

func (b CredentialBundle) ExpiresAt() time.Time {
	return b.IssuedAt.Add(b.lifetime())
}

// Usable reports whether the access token can still back API calls.
func (b CredentialBundle) Usable(now time.Time) bool {
	if b.AccessToken == "" || b.IssuedAt.IsZero() {
		return false
	}
	return now.Sub(b.IssuedAt) < b.lifetime()
}

// CanRefresh reports whether the bundle carries what a refresh exchange
// needs. A bundle missing either field cannot self-refresh.
func (b CredentialBundle) CanRefresh() bool {
	return b.RefreshToken != "" && b.SubjectID != ""
}

// ExpiringSoon is true once elapsed time since issuance reaches
// lifetime minus grace, threshold included.
func (b CredentialBundle) ExpiringSoon(now time.Time, grace time.Duration) bool {
	if b.IssuedAt.IsZero() {
		return true
	}
	if grace <= 0 {
		grace = DefaultGraceWindow
	}
	return now.Sub(b.IssuedAt) >= b.lifetime()-grace
}
