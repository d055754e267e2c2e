package main

import (
	"bufio"
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/dkeye/VoiceBridge/internal/adapters/relay"
	"github.com/dkeye/VoiceBridge/internal/adapters/rtc"
	"github.com/dkeye/VoiceBridge/internal/adapters/signaling"
	"github.com/dkeye/VoiceBridge/internal/app/handshake"
	"github.com/dkeye/VoiceBridge/internal/app/visual"
	"github.com/dkeye/VoiceBridge/internal/config"
	"github.com/dkeye/VoiceBridge/internal/core"
	"github.com/dkeye/VoiceBridge/internal/media"
	"github.com/dkeye/VoiceBridge/internal/session"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	flags := pflag.NewFlagSet("voicebridge", pflag.ExitOnError)
	config.ClientFlags(flags)
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	cc := cfg.Client

	peers, err := rtc.NewFactory(rtc.Config(cc.ICEServers), cc.RecordFile, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("webrtc setup")
	}

	opts := session.Options{
		Peers: peers,
		Relay: &relay.Dialer{URL: cc.RelayURL, Logger: log.Logger},
		Handshake: &handshake.Protocol{
			Capturer:    &media.FileCapturer{Path: cc.CaptureFile, Loop: cc.CaptureLoop, Logger: log.Logger},
			Signaler:    signaling.NewClient(cc.APIURL, log.Logger),
			Constraints: media.DefaultConstraints(),
			Label:       handshake.EventsLabel,
			Logger:      log.Logger,
		},
		Logger: log.Logger,
		OnStateChange: func(from, to session.State) {
			log.Info().Str("from", from.String()).Str("to", to.String()).Msg("session state")
			if to == session.Stopped || to == session.Failed {
				cancel()
			}
		},
		OnEvent: func(source string, env core.Envelope, raw core.Frame) {
			log.Debug().Str("source", source).Str("type", env.Type).Str("event_id", env.EventID).Int("bytes", len(raw)).Msg("event")
		},
	}
	if cc.Visualizer {
		vis := visual.New(visual.NewTermRenderer(os.Stdout, 64, 32), cc.FrameRate, log.Logger)
		defer vis.Stop()
		opts.Streams = vis
	}

	ctrl := session.New(opts)
	if err := ctrl.Start(ctx); err != nil {
		ctrl.Stop()
		log.Fatal().Err(err).Msg("session start failed")
	}
	log.Info().Msg("session active, type a message and press enter")

	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			text := strings.TrimSpace(sc.Text())
			if text == "" {
				continue
			}
			if err := ctrl.SendTextMessage(text); err != nil {
				log.Warn().Err(err).Msg("send message")
			}
		}
	}()

	<-ctx.Done()
	ctrl.Stop()
	log.Info().Msg("bye")
}
