package status

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/bnema/meetlink/internal/domain"
)

type RenderOptions struct {
	Now   time.Time
	Grace time.Duration
}

// Render produces the `meetlink status` view for the given bundle. A nil
// bundle renders the logged-out state.
func Render(bundle *domain.CredentialBundle, opts RenderOptions) string {
	return renderView(bundle, opts, newStyles())
}

func renderView(bundle *domain.CredentialBundle, opts RenderOptions, s styles) string {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	grace := opts.Grace
	if grace <= 0 {
		grace = domain.DefaultGraceWindow
	}

	lines := []string{s.title.Render("meetlink credentials")}

	if bundle == nil {
		lines = append(lines,
			s.empty.Render("No credentials stored."),
			s.detail.Render("Run `meetlink login` to authenticate."),
		)
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	lines = append(lines, s.subject.Render(fmt.Sprintf("subject: %s", bundle.SubjectID)))
	lines = append(lines, s.detail.Render(fmt.Sprintf("issued:  %s", bundle.IssuedAt.Format(time.RFC1123))))
	lines = append(lines, freshnessLine(*bundle, now, grace, s))
	lines = append(lines, refreshLine(*bundle, s))

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func freshnessLine(bundle domain.CredentialBundle, now time.Time, grace time.Duration, s styles) string {
	switch {
	case !bundle.Usable(now):
		return s.bad.Render("access token expired")
	case bundle.ExpiringSoon(now, grace):
		return s.warning.Render(fmt.Sprintf("access token expiring soon (%s left)", remaining(bundle, now)))
	default:
		return s.good.Render(fmt.Sprintf("access token fresh (%s left)", remaining(bundle, now)))
	}
}

func refreshLine(bundle domain.CredentialBundle, s styles) string {
	if bundle.CanRefresh() {
		return s.detail.Render("refresh:  automatic")
	}
	return s.warning.Render("refresh:  unavailable, re-login required at expiry")
}

func remaining(bundle domain.CredentialBundle, now time.Time) string {
	left := bundle.ExpiresAt().Sub(now)
	if left < 0 {
		left = 0
	}
	return left.Round(time.Minute).String()
}
