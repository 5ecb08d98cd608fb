package ports

import (
	"context"

	"github.com/bnema/meetlink/internal/domain"
)

// RealtimeTarget parameterizes one connection attempt. SessionID must be the
// domain.NoSessionSentinel rather than empty when no session is active.
type RealtimeTarget struct {
	AccessToken string
	SubjectID   domain.SubjectID
	SessionID   string
	Title       string
}

// RealtimeConn is one live socket. Receive blocks until a frame arrives or
// the connection dies; a frame that fails to parse returns an error wrapping
// domain.ErrMalformedMessage and leaves the connection usable.
type RealtimeConn interface {
	Send(msg domain.OutboundMessage) error
	Receive() (domain.InboundMessage, error)
	Close() error
}

type RealtimeDialer interface {
	Dial(ctx context.Context, target RealtimeTarget) (RealtimeConn, error)
}
