package cmd

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/viper"

	"github.com/bnema/meetlink/internal/adapters/authapi"
	memorybus "github.com/bnema/meetlink/internal/adapters/bus/memory"
	tomlrepo "github.com/bnema/meetlink/internal/adapters/repo/toml"
	chainstore "github.com/bnema/meetlink/internal/adapters/secrets/chain"
	"github.com/bnema/meetlink/internal/application"
	"github.com/bnema/meetlink/internal/ports"
)

type app struct {
	bus          ports.EventBus
	store        *application.CredentialStore
	orchestrator *application.RefreshOrchestrator
	authClient   authapi.Client
	clock        ports.Clock
	logger       *slog.Logger
}

func wireApp() (*app, error) {
	logger := slog.Default()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	secretStore, err := chainstore.NewPassFirstWithFileFallback(filepath.Join(homeDir, ".meetlink", "secrets"))
	if err != nil {
		return nil, fmt.Errorf("wire secret store chain: %w", err)
	}

	repo, err := tomlrepo.NewRepository(viper.New(), secretStore)
	if err != nil {
		return nil, fmt.Errorf("wire credential repository: %w", err)
	}

	store := application.NewCredentialStore(repo, logger)
	bus := memorybus.NewBus()

	authClient := authapi.Client{
		API: authapi.API{
			BaseURL:     envOrDefault("MEETLINK_AUTH_BASE_URL", "https://api.meetlink.dev"),
			LoginPath:   envOrDefault("MEETLINK_AUTH_LOGIN_PATH", "/auth/login"),
			RefreshPath: envOrDefault("MEETLINK_AUTH_REFRESH_PATH", "/auth/refresh"),
		},
		HTTPClient:     http.DefaultClient,
		RequestTimeout: 30 * time.Second,
	}

	orchestrator := application.NewRefreshOrchestrator(
		store,
		authClient,
		bus,
		ports.SystemClock{},
		logger,
		application.RefreshPolicy{
			RetryFailedRefresh: envBool("MEETLINK_RETRY_FAILED_REFRESH", false),
		},
	)

	return &app{
		bus:          bus,
		store:        store,
		orchestrator: orchestrator,
		authClient:   authClient,
		clock:        ports.SystemClock{},
		logger:       logger,
	}, nil
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
