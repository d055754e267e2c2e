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
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/VoiceBridge/internal/adapters/http"
	"github.com/dkeye/VoiceBridge/internal/adapters/relayws"
	"github.com/dkeye/VoiceBridge/internal/app/upstream"
	"github.com/dkeye/VoiceBridge/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config loading can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	flags := pflag.NewFlagSet("voicebridge-server", pflag.ExitOnError)
	config.ServerFlags(flags)
	_ = flags.Parse(os.Args[1:])

	loader := config.NewLoader(flags)
	cfg, err := loader.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	if cfg.Server.OpenAIAPIKey == "" {
		log.Warn().Msg("no OpenAI API key configured, sdp exchange will fail")
	}

	up := upstream.New(cfg.Server.OpenAIBaseURL, cfg.Server.OpenAIAPIKey, cfg.Server.Model, cfg.Server.Voice, log.Logger)
	limiter := router.NewRateLimiter(cfg.Server.SDPRateLimit, cfg.Server.SDPRateWindow)

	relay := relayws.NewController(settings(cfg), relayws.Options{
		ReadLimit:  cfg.Server.ReadLimit,
		PingPeriod: cfg.Server.PingPeriod,
	}, relayws.NewRegistry(log.Logger), log.Logger)

	if err := relay.RegisterTool(relayws.ClockTool(nil)); err != nil {
		log.Fatal().Err(err).Msg("register tool")
	}

	loader.Watch(func(c *config.Config) {
		relay.SetSettings(settings(c))
		if lvl, err := zerolog.ParseLevel(c.LogLevel); err == nil {
			zerolog.SetGlobalLevel(lvl)
		}
	})

	api := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.APIPort),
		Handler: router.SetupRouter(cfg, up, limiter),
	}
	ws := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.RelayPort),
		Handler: router.SetupRelayRouter(ctx, cfg, relay),
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range []*http.Server{api, ws} {
		g.Go(func() error {
			log.Info().Str("addr", srv.Addr).Msg("listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("%s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		t := time.NewTicker(time.Minute)
		defer t.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-t.C:
				limiter.Prune()
			}
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		relay.Registry.CloseAll()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return errors.Join(api.Shutdown(shutdownCtx), ws.Shutdown(shutdownCtx))
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server error")
		os.Exit(1)
	}
	log.Info().Msg("Server exited gracefully")
}

func settings(c *config.Config) relayws.Settings {
	return relayws.Settings{
		Instructions: c.Server.Instructions,
		Voice:        c.Server.Voice,
		Greeting:     c.Server.Greeting,
	}
}
