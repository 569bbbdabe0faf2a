/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/friendsincode/skald/internal/announce"
	"github.com/friendsincode/skald/internal/config"
	"github.com/friendsincode/skald/internal/events"
	"github.com/friendsincode/skald/internal/logging"
	"github.com/friendsincode/skald/internal/script"
	"github.com/friendsincode/skald/internal/selector"
	"github.com/friendsincode/skald/internal/server"
	"github.com/friendsincode/skald/internal/telemetry"
)

var (
	logger zerolog.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "skald",
	Short: "Skald - radio announcement sidecar",
	Long:  "Skald renders randomized DJ announcements around song playback from an author-editable pattern script, and serves them over HTTP.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Skald server",
	Long:  "Start the HTTP API server, script watcher, and metrics listener",
	RunE:  runServe,
}

var validateCmd = &cobra.Command{
	Use:   "validate [script.yaml]",
	Short: "Validate an announcement script",
	Long:  "Parse and compile a script document, reporting the first validation failure. With no argument the embedded default script is checked.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runValidate,
}

var (
	renderMoment string
	renderEntry  string
	renderSeed   int64
	renderScript string
	renderTags   []string
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render one announcement to stdout",
	Long:  "Render a single announcement from tag values given on the command line, without starting the server.",
	RunE:  runRender,
}

func init() {
	renderCmd.Flags().StringVar(&renderMoment, "moment", "before", "playback moment: before or after")
	renderCmd.Flags().StringVar(&renderEntry, "entry-point", "", "pattern to render; random whole pattern when empty")
	renderCmd.Flags().Int64Var(&renderSeed, "seed", 0, "rng seed; 0 means time-based")
	renderCmd.Flags().StringVar(&renderScript, "script", "", "script file; embedded default when empty")
	renderCmd.Flags().StringArrayVar(&renderTags, "tag", nil, "tag value as name=value, repeatable")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(renderCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = logging.Setup(cfg.Environment)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	logger.Info().Msg("Skald starting")

	tracerProvider, err := telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
		ServiceName:    "skald",
		ServiceVersion: "0.1.0",
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown tracer provider")
		}
	}()

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize server: %w", err)
	}

	httpServer := srv.HTTPServer()
	metricsServer := srv.MetricsServer()

	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()
	go func() {
		logger.Info().Str("addr", metricsServer.Addr).Msg("metrics server listening")
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down gracefully...")

	timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(timeoutCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	if err := metricsServer.Shutdown(timeoutCtx); err != nil {
		logger.Error().Err(err).Msg("metrics shutdown failed")
	}

	if err := srv.Close(); err != nil {
		logger.Error().Err(err).Msg("shutdown cleanup failed")
	}

	logger.Info().Msg("Skald stopped")
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	var (
		doc *script.Document
		err error
	)
	if len(args) == 0 {
		doc = script.Default()
	} else {
		doc, err = script.Load(args[0])
		if err != nil {
			return err
		}
	}

	reg, _, _, err := doc.Compile()
	if err != nil {
		var verr *announce.ValidationError
		if errors.As(err, &verr) {
			return fmt.Errorf("invalid script: %s", verr.Error())
		}
		return err
	}

	fmt.Printf("script ok, %d whole patterns: %s\n",
		len(reg.EntryPoints()), strings.Join(reg.EntryPoints(), ", "))
	return nil
}

func runRender(cmd *cobra.Command, args []string) error {
	moment, err := selector.ParseMoment(renderMoment)
	if err != nil {
		return err
	}

	meta := announce.Metadata{}
	for _, pair := range renderTags {
		name, value, found := strings.Cut(pair, "=")
		if !found || name == "" {
			return fmt.Errorf("tag %q: want name=value", pair)
		}
		meta[name] = value
	}

	svc, err := script.NewService(renderScript, events.NewBus(), zerolog.Nop())
	if err != nil {
		return err
	}
	sel := selector.New(svc, events.NewBus(), zerolog.Nop())

	seed := renderSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	var text string
	if renderEntry != "" {
		text, err = sel.AnnounceAt(renderEntry, meta, moment, rng)
	} else {
		text, err = sel.Announce(meta, moment, rng)
	}
	if err != nil {
		return err
	}

	fmt.Println(text)
	return nil
}
