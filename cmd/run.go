package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/bnema/meetlink/internal/adapters/probe/httpprobe"
	"github.com/bnema/meetlink/internal/adapters/realtime/ws"
	"github.com/bnema/meetlink/internal/application"
	"github.com/bnema/meetlink/internal/domain"
)

type runConfig struct {
	RealtimeURL          string        `env:"MEETLINK_REALTIME_URL" envDefault:"wss://api.meetlink.dev/realtime"`
	RealtimeOrigin       string        `env:"MEETLINK_REALTIME_ORIGIN" envDefault:"http://localhost/"`
	PageStateURL         string        `env:"MEETLINK_PAGE_STATE_URL" envDefault:"http://127.0.0.1:8090/state"`
	PollInterval         time.Duration `env:"MEETLINK_POLL_INTERVAL" envDefault:"2s"`
	HealthInterval       time.Duration `env:"MEETLINK_HEALTH_INTERVAL" envDefault:"60s"`
	BackoffBase          time.Duration `env:"MEETLINK_BACKOFF_BASE" envDefault:"2s"`
	MaxReconnectAttempts int           `env:"MEETLINK_MAX_RECONNECT_ATTEMPTS" envDefault:"6"`
}

func newRunCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the meeting session agent",
		Long:  "Runs the credential refresh loop, the meeting activity detector, and the realtime connection controller. Lines on stdin are forwarded as transcript text while a meeting is active.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var cfg runConfig
			if err := env.Parse(&cfg); err != nil {
				return fmt.Errorf("parse run config: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runAgent(ctx, app, cfg, cmd.InOrStdin())
		},
	}
}

func runAgent(ctx context.Context, app *app, cfg runConfig, transcripts io.Reader) error {
	detector := application.NewMeetingDetector(
		httpprobe.Probe{URL: cfg.PageStateURL},
		app.bus,
		app.logger,
		cfg.PollInterval,
	)
	controller := application.NewConnectionController(
		ws.Dialer{BaseURL: cfg.RealtimeURL, Origin: cfg.RealtimeOrigin},
		app.store,
		app.bus,
		app.clock,
		app.logger,
		application.ControllerConfig{
			BackoffBase: cfg.BackoffBase,
			MaxAttempts: cfg.MaxReconnectAttempts,
		},
	)
	validator := application.NewHealthValidator(
		app.store,
		app.orchestrator,
		app.bus,
		app.clock,
		app.logger,
		cfg.HealthInterval,
	)

	unsubscribe := app.bus.Subscribe(func(event any) {
		logEvent(app.logger, event)
	})
	defer unsubscribe()

	app.orchestrator.Start(ctx)
	defer app.orchestrator.Stop()

	controller.Start(ctx)
	defer controller.Stop()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		validator.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		detector.Run(ctx)
	}()

	// Not in the wait group: a blocked stdin read would stall shutdown.
	go forwardTranscripts(ctx, controller, transcripts, app)

	app.logger.Info("meetlink agent running",
		"page_state_url", cfg.PageStateURL,
		"realtime_url", cfg.RealtimeURL)

	<-ctx.Done()
	wg.Wait()
	return nil
}

// forwardTranscripts treats each stdin line as one caption from the scraping
// layer. Lines outside a meeting are dropped, not queued.
func forwardTranscripts(ctx context.Context, controller *application.ConnectionController, r io.Reader, app *app) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		controller.SendIfActiveSession(domain.OutboundTranscriptText, map[string]any{
			"transcriptId": uuid.NewString(),
			"text":         text,
			"capturedAt":   app.clock.Now().UnixMilli(),
		})
	}
}

// logEvent is the stand-in UI surface: every subscribable notification the
// excluded widget layer would render is logged instead.
func logEvent(logger *slog.Logger, event any) {
	switch e := event.(type) {
	case domain.MeetingStarted:
		logger.Info("meeting started", "session_id", e.SessionID, "title", e.Title)
	case domain.MeetingEnded:
		logger.Info("meeting ended", "session_id", e.SessionID)
	case domain.SessionClosed:
		logger.Info("session closed", "session_id", e.SessionID)
	case domain.CredentialsRefreshed:
		logger.Info("credentials refreshed")
	case domain.ReauthenticationRequired:
		logger.Warn("re-authentication required, run `meetlink login`")
	case domain.ClassificationReceived:
		logger.Info("classification result",
			"transcript_id", e.Message.TranscriptID,
			"classification", e.Message.Classification,
			"confidence", e.Message.Confidence)
	case domain.QuestionReceived:
		logger.Info("question answered",
			"transcript_id", e.Message.TranscriptID,
			"speaker", e.Message.SpeakerFLName,
			"question", e.Message.OriginalQuestion)
	case domain.RealtimeErrorReceived:
		logger.Warn("backend error", "error", e.Message.Error)
	}
}
