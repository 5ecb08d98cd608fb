package application

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bnema/meetlink/internal/domain"
	"github.com/bnema/meetlink/internal/ports"
)

// MeetingDetector turns a polled presence signal into edge-triggered
// MeetingStarted / MeetingEnded events with a stable session id per detected
// meeting. A probe error leaves the current state untouched so one flaky
// observation does not end a live session.
type MeetingDetector struct {
	probe    ports.PresenceProbe
	bus      ports.EventBus
	logger   *slog.Logger
	interval time.Duration

	newSessionID func() string

	mu      sync.Mutex
	current *domain.MeetingSession
}

func NewMeetingDetector(probe ports.PresenceProbe, bus ports.EventBus, logger *slog.Logger, interval time.Duration) *MeetingDetector {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}

	return &MeetingDetector{
		probe:        probe,
		bus:          bus,
		logger:       logger,
		interval:     interval,
		newSessionID: uuid.NewString,
	}
}

// Run polls until ctx is done. An active session at shutdown is ended so
// subscribers see a closing edge.
func (d *MeetingDetector) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.endActiveSession()
			return
		case <-ticker.C:
			d.Poll(ctx)
		}
	}
}

// Poll performs one observation and fires at most one transition.
func (d *MeetingDetector) Poll(ctx context.Context) {
	presence, err := d.probe.Observe(ctx)
	if err != nil {
		d.logger.Warn("presence probe failed", "error", err)
		return
	}

	d.mu.Lock()
	var event any
	switch {
	case presence.Present && d.current == nil:
		session := &domain.MeetingSession{
			SessionID: d.newSessionID(),
			Title:     presence.Title,
			Active:    true,
		}
		d.current = session
		event = domain.MeetingStarted{SessionID: session.SessionID, Title: session.Title}

	case !presence.Present && d.current != nil:
		event = domain.MeetingEnded{SessionID: d.current.SessionID}
		d.current = nil
	}
	d.mu.Unlock()

	if event != nil {
		d.bus.Publish(event)
	}
}

// Current returns a copy of the active session, or nil.
func (d *MeetingDetector) Current() *domain.MeetingSession {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.current == nil {
		return nil
	}
	session := *d.current
	return &session
}

func (d *MeetingDetector) endActiveSession() {
	d.mu.Lock()
	var event any
	if d.current != nil {
		event = domain.MeetingEnded{SessionID: d.current.SessionID}
		d.current = nil
	}
	d.mu.Unlock()

	if event != nil {
		d.bus.Publish(event)
	}
}
