package ports

import "context"

// Presence is one observation of the meeting surface. Title is best effort
// and may be empty even while a meeting is running.
type Presence struct {
	Present bool
	Title   string
}

// PresenceProbe answers "is a meeting visible right now". Implementations
// wrap whatever the scraping layer exports; errors mean "could not observe",
// not "absent".
type PresenceProbe interface {
	Observe(ctx context.Context) (Presence, error)
}
