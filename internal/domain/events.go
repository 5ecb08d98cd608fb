package domain

// Events carried over the event bus. The credential authority publishes the
// first two to every runtime; the detector and controller publish the rest
// for the UI layer to render.

// CredentialsRefreshed announces a successful refresh. It deliberately
// carries only the new access token.
type CredentialsRefreshed struct {
	AccessToken string
}

// ReauthenticationRequired asks every runtime to surface the re-auth prompt
// and stop connecting until a new bundle appears.
type ReauthenticationRequired struct{}

type MeetingStarted struct {
	SessionID string
	Title     string
}

type MeetingEnded struct {
	SessionID string
}

// SessionClosed is the controller's signal that a session's realtime state
// has been torn down, for UI layers to clear transient widgets.
type SessionClosed struct {
	SessionID string
}

type ClassificationReceived struct {
	Message InboundMessage
}

type QuestionReceived struct {
	Message InboundMessage
}

type RealtimeErrorReceived struct {
	Message InboundMessage
}
