package httpprobe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bnema/meetlink/internal/ports"
)

const maxStateResponseBytes = 1 << 16

// Probe polls the scraping layer's page-state export. The endpoint answers
// GET with {"in_meeting": bool, "meeting_title": "..."}; anything else is an
// observation failure, which the detector treats as "signal unchanged".
type Probe struct {
	URL            string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
}

var _ ports.PresenceProbe = (*Probe)(nil)

type stateResponse struct {
	InMeeting    bool   `json:"in_meeting"`
	MeetingTitle string `json:"meeting_title"`
}

func (p Probe) Observe(ctx context.Context) (ports.Presence, error) {
	timeout := p.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	requestCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, http.MethodGet, p.URL, nil)
	if err != nil {
		return ports.Presence{}, fmt.Errorf("create page state request: %w", err)
	}

	resp, err := p.httpClient().Do(req)
	if err != nil {
		return ports.Presence{}, fmt.Errorf("request page state: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return ports.Presence{}, fmt.Errorf("request page state: status %d", resp.StatusCode)
	}

	var state stateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxStateResponseBytes)).Decode(&state); err != nil {
		return ports.Presence{}, fmt.Errorf("decode page state: %w", err)
	}

	return ports.Presence{Present: state.InMeeting, Title: state.MeetingTitle}, nil
}

func (p Probe) httpClient() *http.Client {
	if p.HTTPClient != nil {
		return p.HTTPClient
	}
	return http.DefaultClient
}
