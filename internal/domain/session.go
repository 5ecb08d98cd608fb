package domain

// NoSessionSentinel is sent in place of a session id when no meeting is
// active, so the backend can tell "no session" from a malformed request.
const NoSessionSentinel = "null"

// MeetingSession is one contiguous detected meeting. At most one is active
// per runtime; the id only changes across an inactive/active transition.
type MeetingSession struct {
	SessionID string
	Title     string
	Active    bool
}
