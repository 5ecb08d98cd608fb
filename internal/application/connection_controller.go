package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bnema/meetlink/internal/domain"
	"github.com/bnema/meetlink/internal/ports"
)

type ConnectionState string

const (
	StateIdle         ConnectionState = "idle"
	StateConnecting   ConnectionState = "connecting"
	StateOpen         ConnectionState = "open"
	StateReconnecting ConnectionState = "reconnecting"
)

// ControllerConfig tunes reconnection. Backoff for attempt n is
// Base * 2^(n-1); after MaxAttempts failed attempts the controller parks in
// Idle until the next session or credential edge.
type ControllerConfig struct {
	BackoffBase time.Duration
	MaxAttempts int
}

func (c ControllerConfig) backoffBase() time.Duration {
	if c.BackoffBase > 0 {
		return c.BackoffBase
	}
	return 2 * time.Second
}

func (c ControllerConfig) maxAttempts() int {
	if c.MaxAttempts > 0 {
		return c.MaxAttempts
	}
	return 6
}

// ConnectionController keeps one realtime socket in lockstep with the
// detected meeting window. It only ever connects while a session is active,
// re-dials when credentials or the session change under an open socket, and
// survives transport flaps with exponential backoff.
//
// All mutable state is guarded by mu. gen is a connection generation; dial
// results, reader exits, and backoff timers from a superseded generation are
// ignored, which is what makes force-close-and-redial race free.
type ConnectionController struct {
	dialer ports.RealtimeDialer
	store  *CredentialStore
	bus    ports.EventBus
	clock  ports.Clock
	logger *slog.Logger
	cfg    ControllerConfig

	mu           sync.Mutex
	ctx          context.Context
	state        ConnectionState
	session      *domain.MeetingSession
	announced    bool
	conn         ports.RealtimeConn
	gen          uint64
	queue        []domain.OutboundMessage
	attempt      int
	backoffTimer *time.Timer
	accessToken  string
	subjectID    domain.SubjectID
	lockedOut    bool
	stopped      bool

	unsubscribers []func()
}

func NewConnectionController(dialer ports.RealtimeDialer, store *CredentialStore, bus ports.EventBus, clock ports.Clock, logger *slog.Logger, cfg ControllerConfig) *ConnectionController {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &ConnectionController{
		dialer: dialer,
		store:  store,
		bus:    bus,
		clock:  clock,
		logger: logger,
		cfg:    cfg,
		state:  StateIdle,
	}
}

// Start adopts current credentials and begins reacting to bus and store
// events. ctx bounds every dial issued by the controller.
func (c *ConnectionController) Start(ctx context.Context) {
	c.mu.Lock()
	c.ctx = ctx
	c.stopped = false
	if bundle := c.store.Get(ctx); bundle != nil {
		c.accessToken = bundle.AccessToken
		c.subjectID = bundle.SubjectID
	}
	c.mu.Unlock()

	unsubBus := c.bus.Subscribe(c.handleEvent)
	unsubStore := c.store.Subscribe(c.handleCredentialChange)

	c.mu.Lock()
	c.unsubscribers = append(c.unsubscribers, unsubBus, unsubStore)
	c.mu.Unlock()
}

// Stop force-closes any live socket and stops reacting to events.
func (c *ConnectionController) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.gen++
	conn := c.conn
	c.conn = nil
	c.state = StateIdle
	c.cancelBackoffLocked()
	unsubscribers := c.unsubscribers
	c.unsubscribers = nil
	c.mu.Unlock()

	for _, unsubscribe := range unsubscribers {
		unsubscribe()
	}
	if conn != nil {
		_ = conn.Close()
	}
}

func (c *ConnectionController) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Send transmits immediately when the socket is open and enqueues otherwise.
// The session id is stamped at enqueue time and re-stamped on flush.
func (c *ConnectionController) Send(msgType domain.OutboundType, fields map[string]any) {
	c.mu.Lock()
	msg := c.buildMessageLocked(msgType, fields)

	if c.state != StateOpen || c.conn == nil {
		c.queue = append(c.queue, msg)
		c.mu.Unlock()
		return
	}

	conn := c.conn
	gen := c.gen
	c.mu.Unlock()

	if err := conn.Send(msg); err != nil {
		c.logger.Warn("realtime send failed", "type", msgType, "error", err)
		c.mu.Lock()
		if gen == c.gen {
			// Head-of-line message goes back to the front so flush
			// order is preserved.
			c.queue = append([]domain.OutboundMessage{msg}, c.queue...)
		}
		c.mu.Unlock()
		c.connectionLost(gen)
	}
}

// SendIfActiveSession silently drops the message when no session is active.
// It never grows the queue in that case; transcript text outside a meeting
// carries no information.
func (c *ConnectionController) SendIfActiveSession(msgType domain.OutboundType, fields map[string]any) {
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.Send(msgType, fields)
}

func (c *ConnectionController) handleEvent(event any) {
	switch e := event.(type) {
	case domain.MeetingStarted:
		c.handleMeetingStarted(e)
	case domain.MeetingEnded:
		c.handleMeetingEnded(e)
	case domain.CredentialsRefreshed:
		c.handleCredentialsRefreshed(e)
	case domain.ReauthenticationRequired:
		c.mu.Lock()
		c.lockedOut = true
		c.mu.Unlock()
	}
}

func (c *ConnectionController) handleMeetingStarted(e domain.MeetingStarted) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}

	c.session = &domain.MeetingSession{SessionID: e.SessionID, Title: e.Title, Active: true}
	c.announced = false

	// Sessions are serialized by the detector, so we normally arrive here
	// in Idle. A lingering socket belongs to a dead session; drop it.
	if c.conn != nil || c.state != StateIdle {
		c.logger.Warn("meeting started with connection state not idle", "state", c.state)
		c.dropConnectionLocked()
	}
	c.startConnectLocked()
}

func (c *ConnectionController) handleMeetingEnded(e domain.MeetingEnded) {
	c.mu.Lock()
	if c.session == nil || c.session.SessionID != e.SessionID {
		c.mu.Unlock()
		return
	}

	ended := c.session.SessionID
	c.session = nil
	c.cancelBackoffLocked()

	wasOpen := c.state == StateOpen && c.conn != nil
	conn := c.conn
	c.conn = nil
	c.gen++
	c.state = StateIdle
	c.attempt = 0
	now := c.clock.Now()
	c.mu.Unlock()

	if wasOpen {
		// Best effort only: a session-end for a session that never
		// reached Open carries no information, so it is never queued.
		endMsg := domain.OutboundMessage{
			Type:      domain.OutboundSessionEnd,
			SessionID: ended,
			Timestamp: now,
		}
		if err := conn.Send(endMsg); err != nil {
			c.logger.Debug("session end notification dropped", "session_id", ended, "error", err)
		}
	}
	if conn != nil {
		_ = conn.Close()
	}

	c.bus.Publish(domain.SessionClosed{SessionID: ended})
}

func (c *ConnectionController) handleCredentialsRefreshed(e domain.CredentialsRefreshed) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.accessToken = e.AccessToken
	c.lockedOut = false

	// Never leave a socket running against a soon-to-be-invalid token.
	if c.state == StateOpen {
		c.dropConnectionLocked()
		c.startConnectLocked()
	}
}

func (c *ConnectionController) handleCredentialChange(bundle *domain.CredentialBundle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if bundle == nil {
		c.accessToken = ""
		c.subjectID = ""
		if c.conn != nil || c.state != StateIdle {
			c.dropConnectionLocked()
			c.state = StateIdle
			c.cancelBackoffLocked()
		}
		return
	}

	changed := bundle.AccessToken != c.accessToken
	c.accessToken = bundle.AccessToken
	c.subjectID = bundle.SubjectID
	c.lockedOut = false

	switch {
	case c.state == StateOpen && changed:
		c.dropConnectionLocked()
		c.startConnectLocked()
	case c.state == StateIdle && c.session != nil:
		// Recovery: a fresh bundle appeared while a session was
		// starved of credentials.
		c.startConnectLocked()
	}
}

// startConnectLocked begins a dial for the current session. Callers hold mu.
func (c *ConnectionController) startConnectLocked() {
	if c.stopped {
		return
	}
	if c.session == nil {
		c.logger.Warn("connect rejected", "error", domain.ErrConnectNotPermitted)
		c.state = StateIdle
		return
	}
	if c.lockedOut || c.accessToken == "" || c.subjectID == "" {
		c.logger.Warn("connect deferred until credentials are available",
			"session_id", c.session.SessionID)
		c.state = StateIdle
		return
	}

	c.state = StateConnecting
	c.gen++
	gen := c.gen
	target := ports.RealtimeTarget{
		AccessToken: c.accessToken,
		SubjectID:   c.subjectID,
		SessionID:   c.session.SessionID,
		Title:       c.session.Title,
	}
	ctx := c.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	go c.dial(ctx, gen, target)
}

func (c *ConnectionController) dial(ctx context.Context, gen uint64, target ports.RealtimeTarget) {
	conn, err := c.dialer.Dial(ctx, target)

	c.mu.Lock()
	if gen != c.gen || c.stopped {
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}

	if err != nil {
		c.logger.Warn("realtime dial failed", "session_id", target.SessionID, "error", err)
		if c.session == nil {
			c.state = StateIdle
			c.mu.Unlock()
			return
		}
		c.scheduleReconnectLocked()
		c.mu.Unlock()
		return
	}

	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(gen, conn)
	c.finishOpen(gen, conn)
}

// finishOpen announces the session, drains the queue with re-stamped session
// ids, and only then flips to Open so concurrent Sends keep FIFO order.
func (c *ConnectionController) finishOpen(gen uint64, conn ports.RealtimeConn) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}

	if !c.announced && c.session != nil {
		c.announced = true
		announce := domain.OutboundMessage{
			Type:      domain.OutboundSessionStart,
			SessionID: c.session.SessionID,
			Timestamp: c.clock.Now(),
			Fields:    map[string]any{"meetingTitle": c.session.Title},
		}
		c.mu.Unlock()
		if err := conn.Send(announce); err != nil {
			c.logger.Warn("session start announcement failed", "error", err)
			c.connectionLost(gen)
			return
		}
		c.mu.Lock()
		if gen != c.gen {
			c.mu.Unlock()
			return
		}
	}

	for {
		if len(c.queue) == 0 {
			c.state = StateOpen
			c.attempt = 0
			c.logger.Info("realtime connection open", "session_id", c.sessionIDLocked())
			c.mu.Unlock()
			return
		}

		batch := c.queue
		c.queue = nil
		sessionID := c.sessionIDLocked()
		now := c.clock.Now()
		c.mu.Unlock()

		for i, msg := range batch {
			msg.SessionID = sessionID
			msg.Timestamp = now
			if err := conn.Send(msg); err != nil {
				c.logger.Warn("queue flush failed", "error", err)
				c.mu.Lock()
				if gen == c.gen {
					c.queue = append(batch[i:], c.queue...)
				}
				c.mu.Unlock()
				c.connectionLost(gen)
				return
			}
		}

		c.mu.Lock()
		if gen != c.gen {
			c.mu.Unlock()
			return
		}
	}
}

func (c *ConnectionController) readLoop(gen uint64, conn ports.RealtimeConn) {
	for {
		msg, err := conn.Receive()
		if err != nil {
			if errors.Is(err, domain.ErrMalformedMessage) {
				c.logger.Warn("dropping malformed realtime message", "error", err)
				continue
			}
			c.connectionLost(gen)
			return
		}
		c.dispatch(msg)
	}
}

func (c *ConnectionController) dispatch(msg domain.InboundMessage) {
	switch msg.Type {
	case domain.InboundClassificationResult:
		c.bus.Publish(domain.ClassificationReceived{Message: msg})
	case domain.InboundQuestion:
		c.bus.Publish(domain.QuestionReceived{Message: msg})
	case domain.InboundError:
		c.logger.Warn("realtime backend error", "error", msg.Error)
		c.bus.Publish(domain.RealtimeErrorReceived{Message: msg})
	default:
		c.logger.Warn("dropping unrecognized realtime message", "type", msg.Type)
	}
}

// connectionLost handles an unexpected close for generation gen. A
// MeetingEnded that already fired bumped the generation, so stale losses are
// ignored and nothing reconnects after the session is gone.
func (c *ConnectionController) connectionLost(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || c.stopped {
		return
	}

	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.gen++

	if c.session == nil {
		c.state = StateIdle
		return
	}
	c.scheduleReconnectLocked()
}

// scheduleReconnectLocked arms the backoff timer for the next attempt.
// Callers hold mu.
func (c *ConnectionController) scheduleReconnectLocked() {
	c.attempt++
	if c.attempt > c.cfg.maxAttempts() {
		c.logger.Error("reconnect attempts exhausted", "attempts", c.attempt-1)
		c.state = StateIdle
		c.attempt = 0
		return
	}

	delay := c.backoffDelay(c.attempt)
	c.state = StateReconnecting
	c.logger.Info("scheduling reconnect", "attempt", c.attempt, "delay", delay)

	c.cancelBackoffLocked()
	gen := c.gen
	c.backoffTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if gen != c.gen || c.stopped {
			return
		}
		if c.session == nil {
			c.state = StateIdle
			return
		}
		c.startConnectLocked()
	})
}

// backoffDelay is base * 2^(attempt-1).
func (c *ConnectionController) backoffDelay(attempt int) time.Duration {
	return c.cfg.backoffBase() << (attempt - 1)
}

func (c *ConnectionController) dropConnectionLocked() {
	c.gen++
	if c.conn != nil {
		conn := c.conn
		c.conn = nil
		go func() { _ = conn.Close() }()
	}
	c.cancelBackoffLocked()
}

func (c *ConnectionController) cancelBackoffLocked() {
	if c.backoffTimer != nil {
		c.backoffTimer.Stop()
		c.backoffTimer = nil
	}
}

func (c *ConnectionController) buildMessageLocked(msgType domain.OutboundType, fields map[string]any) domain.OutboundMessage {
	return domain.OutboundMessage{
		Type:      msgType,
		SessionID: c.sessionIDLocked(),
		Timestamp: c.clock.Now(),
		Fields:    fields,
	}
}

func (c *ConnectionController) sessionIDLocked() string {
	if c.session == nil {
		return domain.NoSessionSentinel
	}
	return c.session.SessionID
}
