package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"golang.org/x/net/websocket"

	"github.com/bnema/meetlink/internal/domain"
	"github.com/bnema/meetlink/internal/ports"
)

const defaultHandshakeTimeout = 15 * time.Second

// Dialer opens realtime sockets against the classification backend. The
// target's access token, subject id, session id, and title travel as query
// parameters; an absent session id is already the sentinel by the time it
// gets here.
type Dialer struct {
	// BaseURL is the ws:// or wss:// endpoint.
	BaseURL          string
	Origin           string
	HandshakeTimeout time.Duration
}

var _ ports.RealtimeDialer = (*Dialer)(nil)

func (d Dialer) Dial(ctx context.Context, target ports.RealtimeTarget) (ports.RealtimeConn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	endpoint, err := d.buildEndpoint(target)
	if err != nil {
		return nil, err
	}

	origin := d.Origin
	if origin == "" {
		origin = "http://localhost/"
	}

	cfg, err := websocket.NewConfig(endpoint, origin)
	if err != nil {
		return nil, fmt.Errorf("build websocket config: %w", err)
	}

	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = defaultHandshakeTimeout
	}
	if deadline, ok := ctx.Deadline(); ok {
		if until := time.Until(deadline); until < timeout {
			timeout = until
		}
	}
	cfg.Dialer = &net.Dialer{Timeout: timeout}

	conn, err := websocket.DialConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("dial realtime endpoint: %w", err)
	}

	return &realtimeConn{conn: conn}, nil
}

func (d Dialer) buildEndpoint(target ports.RealtimeTarget) (string, error) {
	if d.BaseURL == "" {
		return "", errors.New("realtime base url is required")
	}
	parsed, err := url.Parse(d.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse realtime base url: %w", err)
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return "", fmt.Errorf("realtime base url must use ws or wss, got %q", parsed.Scheme)
	}

	sessionID := target.SessionID
	if sessionID == "" {
		sessionID = domain.NoSessionSentinel
	}

	query := parsed.Query()
	query.Set("access_token", target.AccessToken)
	query.Set("subject_id", string(target.SubjectID))
	query.Set("session_id", sessionID)
	if target.Title != "" {
		query.Set("meeting_title", target.Title)
	}
	parsed.RawQuery = query.Encode()

	return parsed.String(), nil
}

type realtimeConn struct {
	conn *websocket.Conn
}

func (c *realtimeConn) Send(msg domain.OutboundMessage) error {
	if err := websocket.JSON.Send(c.conn, msg); err != nil {
		return fmt.Errorf("send realtime frame: %w", err)
	}
	return nil
}

// Receive reads one frame. Parse failures wrap domain.ErrMalformedMessage
// and leave the connection usable; frames are independent, so one bad frame
// must not poison the stream.
func (c *realtimeConn) Receive() (domain.InboundMessage, error) {
	var data []byte
	if err := websocket.Message.Receive(c.conn, &data); err != nil {
		return domain.InboundMessage{}, fmt.Errorf("receive realtime frame: %w", err)
	}

	return domain.DecodeInboundMessage(data)
}

func (c *realtimeConn) Close() error {
	return c.conn.Close()
}
