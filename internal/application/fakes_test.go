package application

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/bnema/meetlink/internal/domain"
	"github.com/bnema/meetlink/internal/ports"
)

type fakeRepo struct {
	mu       sync.Mutex
	bundle   *domain.CredentialBundle
	loadErr  error
	saveErr  error
	clearErr error
	loads    int
	saves    int
}

func (r *fakeRepo) Load(_ context.Context) (domain.CredentialBundle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.loads++
	if r.loadErr != nil {
		return domain.CredentialBundle{}, r.loadErr
	}
	if r.bundle == nil {
		return domain.CredentialBundle{}, domain.ErrCredentialUnavailable
	}
	return *r.bundle, nil
}

func (r *fakeRepo) Save(_ context.Context, bundle domain.CredentialBundle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.saveErr != nil {
		return r.saveErr
	}
	r.saves++
	r.bundle = &bundle
	return nil
}

func (r *fakeRepo) Clear(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.clearErr != nil {
		return r.clearErr
	}
	r.bundle = nil
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeRefresher struct {
	mu      sync.Mutex
	calls   int
	result  ports.RefreshResult
	err     error
	entered chan struct{}
	release chan struct{}
}

func (r *fakeRefresher) Refresh(_ context.Context, _ domain.SubjectID, _ string) (ports.RefreshResult, error) {
	r.mu.Lock()
	r.calls++
	entered := r.entered
	release := r.release
	r.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if release != nil {
		<-release
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result, r.err
}

func (r *fakeRefresher) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type eventRecorder struct {
	mu     sync.Mutex
	events []any
}

func recordEvents(bus ports.EventBus) *eventRecorder {
	recorder := &eventRecorder{}
	bus.Subscribe(func(event any) {
		recorder.mu.Lock()
		defer recorder.mu.Unlock()
		recorder.events = append(recorder.events, event)
	})
	return recorder
}

func (r *eventRecorder) all() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.events...)
}

func (r *eventRecorder) count(match func(any) bool) int {
	total := 0
	for _, event := range r.all() {
		if match(event) {
			total++
		}
	}
	return total
}

func (r *eventRecorder) has(match func(any) bool) bool {
	return r.count(match) > 0
}

type fakeProbe struct {
	mu       sync.Mutex
	presence ports.Presence
	err      error
}

func (p *fakeProbe) Observe(_ context.Context) (ports.Presence, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.presence, p.err
}

func (p *fakeProbe) set(presence ports.Presence, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.presence = presence
	p.err = err
}

type fakeConn struct {
	mu        sync.Mutex
	sent      []domain.OutboundMessage
	sendErr   error
	inbound   chan domain.InboundMessage
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan domain.InboundMessage, 16),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) Send(msg domain.OutboundMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeConn) Receive() (domain.InboundMessage, error) {
	select {
	case msg := <-c.inbound:
		return msg, nil
	case <-c.closed:
		return domain.InboundMessage{}, io.EOF
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) sentMessages() []domain.OutboundMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.OutboundMessage(nil), c.sent...)
}

type fakeDialer struct {
	mu       sync.Mutex
	targets  []ports.RealtimeTarget
	conns    []*fakeConn
	failures int
	gate     chan struct{}
}

func (d *fakeDialer) Dial(_ context.Context, target ports.RealtimeTarget) (ports.RealtimeConn, error) {
	d.mu.Lock()
	d.targets = append(d.targets, target)
	fail := d.failures > 0
	if fail {
		d.failures--
	}
	gate := d.gate
	d.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if fail {
		return nil, io.ErrUnexpectedEOF
	}

	conn := newFakeConn()
	d.mu.Lock()
	d.conns = append(d.conns, conn)
	d.mu.Unlock()
	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.targets)
}

func (d *fakeDialer) target(i int) ports.RealtimeTarget {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.targets[i]
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[i]
}

func (d *fakeDialer) connCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}
