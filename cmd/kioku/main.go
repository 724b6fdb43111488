package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kioku-ai/kioku/common/environment"
	"github.com/kioku-ai/kioku/common/version"
	"github.com/kioku-ai/kioku/internal/kioku/app"
	"github.com/kioku-ai/kioku/internal/kioku/config"
)

func main() {
	configPath := flag.String("config", environment.StringOr("KIOKU_CONFIG", "kioku.yaml"), "path to the YAML configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("kioku " + version.Info())
		return
	}

	fmt.Printf("Kioku Conversation Memory Service\n")
	fmt.Printf("Version: %s\n", version.Version)
	fmt.Printf("Commit: %s\n", version.GitCommit)
	fmt.Println()

	logLevel := slog.LevelInfo
	if environment.BoolOr("KIOKU_DEBUG", false) {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if cfg.ChatAPIKey() == "" {
		fmt.Fprintf(os.Stderr, "Error: chat API key is required (set %s)\n", cfg.Chat.APIKeyEnv)
		os.Exit(1)
	}

	kioku, err := app.New(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize kioku: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := kioku.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error running kioku: %v\n", err)
		os.Exit(1)
	}
}
