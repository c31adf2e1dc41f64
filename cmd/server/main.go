package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/copilot/internal/adapters/capture"
	router "github.com/dkeye/copilot/internal/adapters/http"
	"github.com/dkeye/copilot/internal/adapters/rtc"
	"github.com/dkeye/copilot/internal/adapters/signal"
	"github.com/dkeye/copilot/internal/adapters/suggest"
	"github.com/dkeye/copilot/internal/app"
	"github.com/dkeye/copilot/internal/app/copilot"
	"github.com/dkeye/copilot/internal/app/orch"
	"github.com/dkeye/copilot/internal/config"
	"github.com/dkeye/copilot/internal/core"
	"github.com/dkeye/copilot/internal/domain"
)

func main() {
	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "release" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	schemas, err := signal.LoadSchemas()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load event schemas")
	}

	stun := cfg.WebRTC.STUNURLs
	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    app.NewRoomManager(),
		Policy:   app.PolicyFor(cfg.Backpressure),
		NewMedia: func(cid domain.ConnID) (core.MediaConnection, error) {
			wc, err := rtc.NewWebRTCConnection(rtc.DefaultWebRTCConfig(stun), cid)
			if err != nil {
				return nil, err
			}
			return wc, nil
		},
		Capturer: &capture.UDPCapturer{
			Enabled:     cfg.ScreenShare.Enabled,
			ListenAddr:  cfg.ScreenShare.ListenAddr,
			IdleTimeout: cfg.ScreenShare.IdleTimeout,
		},
		QualityEnabled:  cfg.Quality.Enabled,
		QualityInterval: cfg.Quality.PollInterval,
	}

	var suggester copilot.Suggester
	if cfg.Copilot.InterviewServiceURL != "" {
		suggester = suggest.NewClient(cfg.Copilot.InterviewServiceURL, cfg.Copilot.RequestTimeout)
	} else {
		log.Warn().Msg("interview service url not set, suggestions disabled")
	}
	pipeline := copilot.NewPipeline(copilot.Config{
		SuggestDelay:   cfg.Copilot.SuggestDelay,
		KeepChunks:     cfg.Copilot.KeepChunks,
		RequestTimeout: cfg.Copilot.RequestTimeout,
		IdleTTL:        cfg.Copilot.IdleTTL,
	}, suggester, o, log.Logger)
	o.Copilot = pipeline

	ctrl := signal.NewSignalWSController(
		o,
		signal.NewRateLimiter(cfg.RateLimit.Events, cfg.RateLimit.Interval),
		schemas,
		signal.Options{
			ReadLimit:    cfg.ReadLimit,
			PingPeriod:   cfg.PingPeriod,
			WriteTimeout: cfg.WriteTimeout,
			SendBuffer:   cfg.SendBuffer,
		},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router.SetupRouter(ctx, cfg, o, ctrl),
	}

	var g run.Group
	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))
	g.Add(func() error {
		log.Info().Str("addr", addr).Msg("copilot relay started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}, func(error) {
		// Cancel first so hijacked websocket pumps exit; Shutdown does not track them.
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
	})
	g.Add(func() error {
		return pipeline.Run(ctx)
	}, func(error) {
		cancel()
	})

	err = g.Run()
	var sig run.SignalError
	if err != nil && !errors.As(err, &sig) {
		log.Error().Err(err).Msg("server error")
	}

	log.Info().Msg("Shutting down, flushing copilot buffers")
	flushCtx, flushCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer flushCancel()
	pipeline.Close(flushCtx)
	log.Info().Msg("Server exited gracefully")
}
