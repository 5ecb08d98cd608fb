package main

import (
	"log/slog"
	"os"

	"github.com/bnema/meetlink/cmd"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
