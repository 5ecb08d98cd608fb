package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memorybus "github.com/bnema/meetlink/internal/adapters/bus/memory"
	"github.com/bnema/meetlink/internal/domain"
	"github.com/bnema/meetlink/internal/ports"
)

func newTestDetector(probe *fakeProbe, bus ports.EventBus) *MeetingDetector {
	detector := NewMeetingDetector(probe, bus, nil, time.Second)
	ids := 0
	detector.newSessionID = func() string {
		ids++
		return map[int]string{1: "sess-1", 2: "sess-2", 3: "sess-3"}[ids]
	}
	return detector
}

func TestDetectorFiresMeetingStartedOnce(t *testing.T) {
	probe := &fakeProbe{}
	bus := memorybus.NewBus()
	recorder := recordEvents(bus)
	detector := newTestDetector(probe, bus)

	probe.set(ports.Presence{Present: true, Title: "standup"}, nil)
	detector.Poll(context.Background())
	detector.Poll(context.Background())
	detector.Poll(context.Background())

	events := recorder.all()
	require.Len(t, events, 1, "edge-triggered, not level-triggered")
	started, ok := events[0].(domain.MeetingStarted)
	require.True(t, ok)
	assert.Equal(t, "sess-1", started.SessionID)
	assert.Equal(t, "standup", started.Title)

	current := detector.Current()
	require.NotNil(t, current)
	assert.Equal(t, "sess-1", current.SessionID)
	assert.True(t, current.Active)
}

func TestDetectorFiresMeetingEndedWithMatchingID(t *testing.T) {
	probe := &fakeProbe{}
	bus := memorybus.NewBus()
	recorder := recordEvents(bus)
	detector := newTestDetector(probe, bus)

	probe.set(ports.Presence{Present: true}, nil)
	detector.Poll(context.Background())
	probe.set(ports.Presence{Present: false}, nil)
	detector.Poll(context.Background())
	detector.Poll(context.Background())

	events := recorder.all()
	require.Len(t, events, 2)
	ended, ok := events[1].(domain.MeetingEnded)
	require.True(t, ok)
	assert.Equal(t, "sess-1", ended.SessionID)
	assert.Nil(t, detector.Current())
}

func TestDetectorNewMeetingGetsFreshSessionID(t *testing.T) {
	probe := &fakeProbe{}
	bus := memorybus.NewBus()
	recorder := recordEvents(bus)
	detector := newTestDetector(probe, bus)

	probe.set(ports.Presence{Present: true}, nil)
	detector.Poll(context.Background())
	probe.set(ports.Presence{Present: false}, nil)
	detector.Poll(context.Background())
	probe.set(ports.Presence{Present: true}, nil)
	detector.Poll(context.Background())

	events := recorder.all()
	require.Len(t, events, 3)
	second, ok := events[2].(domain.MeetingStarted)
	require.True(t, ok)
	assert.Equal(t, "sess-2", second.SessionID)
}

func TestDetectorProbeErrorKeepsState(t *testing.T) {
	probe := &fakeProbe{}
	bus := memorybus.NewBus()
	recorder := recordEvents(bus)
	detector := newTestDetector(probe, bus)

	probe.set(ports.Presence{Present: true}, nil)
	detector.Poll(context.Background())
	probe.set(ports.Presence{}, errors.New("page agent unreachable"))
	detector.Poll(context.Background())

	assert.Len(t, recorder.all(), 1, "flaky observation does not end the session")
	assert.NotNil(t, detector.Current())
}

func TestDetectorRunEndsSessionOnShutdown(t *testing.T) {
	probe := &fakeProbe{}
	bus := memorybus.NewBus()
	recorder := recordEvents(bus)
	detector := newTestDetector(probe, bus)

	probe.set(ports.Presence{Present: true}, nil)
	detector.Poll(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		detector.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	require.True(t, recorder.has(func(event any) bool {
		_, ok := event.(domain.MeetingEnded)
		return ok
	}))
	assert.Nil(t, detector.Current())
}

func TestDetectorGeneratesUUIDSessionIDsByDefault(t *testing.T) {
	detector := NewMeetingDetector(&fakeProbe{}, memorybus.NewBus(), nil, time.Second)
	first := detector.newSessionID()
	second := detector.newSessionID()
	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}
