// Package main is the entry point for the chatrelay service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/casefile-ai/chatrelay/internal/chat"
	"github.com/casefile-ai/chatrelay/internal/config"
	"github.com/casefile-ai/chatrelay/internal/document"
	"github.com/casefile-ai/chatrelay/internal/server"
	"github.com/casefile-ai/chatrelay/internal/telemetry"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "chatrelay",
		Short:   "Chat relay service with document reference extraction",
		Long:    "chatrelay forwards user turns to a hosted model, manages per-conversation history under a size budget, and augments replies with structured document references recovered from the model's text.",
		Version: server.Version,
	}

	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return serve(cfg)
		},
	}
}

func serve(cfg *config.Config) error {
	logger := newLogger(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	invoker, err := chat.NewBedrockInvoker(ctx, cfg.AWSRegion)
	cancel()
	if err != nil {
		return fmt.Errorf("creating model invoker: %w", err)
	}

	gateway := chat.NewGateway(invoker, chat.GatewayConfig{
		ModelID:         cfg.ModelID,
		MaxOutputTokens: cfg.MaxOutputTokens,
		Temperature:     cfg.Temperature,
	}, logger)

	var usage chat.UsageRecorder
	if cfg.UsageDBPath != "" {
		recorder, err := telemetry.Open(cfg.UsageDBPath, logger)
		if err != nil {
			return fmt.Errorf("opening usage recorder: %w", err)
		}
		defer recorder.Close()
		usage = recorder
	}

	store := chat.NewStore()
	orchestrator := chat.NewOrchestrator(store, gateway, usage, logger)

	var documents *document.Client
	if cfg.DocumentAPIBaseURL != "" {
		documents = document.NewClient(document.ClientConfig{
			BaseURL: cfg.DocumentAPIBaseURL,
			Token:   cfg.DocumentAPIToken,
		}, nil, logger)
	}

	srv := server.New(cfg, orchestrator, store, documents, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}
