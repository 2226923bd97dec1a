package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/Signal/internal/adapters/http"
	"github.com/dkeye/Signal/internal/adapters/rtc"
	signalsrv "github.com/dkeye/Signal/internal/adapters/signal"
	"github.com/dkeye/Signal/internal/app"
	"github.com/dkeye/Signal/internal/app/orch"
	"github.com/dkeye/Signal/internal/app/sfu"
	"github.com/dkeye/Signal/internal/config"
	"github.com/dkeye/Signal/internal/core"
	"github.com/dkeye/Signal/internal/metrics"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	} else {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("unknown log level, keeping info")
	}

	ice, err := rtc.NewICEConfig(cfg.ICEServers, cfg.ICEUsername, cfg.ICECredential)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid ice servers")
	}

	m := metrics.New()
	var media core.MediaRouter = sfu.LogRouter{}
	if cfg.Media.WebhookURL != "" {
		media = &sfu.WebhookRouter{URL: cfg.Media.WebhookURL}
	}
	notifier := sfu.NewNotifier(media, cfg.Media.QueueSize, cfg.Media.Timeout, m)

	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    app.NewRoomManager(cfg.MaxRoomMembers),
		Policy:   app.PolicyByName(cfg.Backpressure),
		Media:    notifier,
		Limiter:  app.NewRoomRateLimiter(cfg.CreateRoomRate, cfg.CreateRoomBurst),
		Metrics:  m,
	}
	sigServer := signalsrv.NewServer(o, signalsrv.Options{
		ReadLimit:         cfg.ReadLimit,
		PingPeriod:        cfg.PingPeriod,
		WriteWait:         cfg.WriteWait,
		SendBuffer:        cfg.SendBuffer,
		MessagesPerSecond: cfg.MessagesPerSecond,
		MessageBurst:      cfg.MessageBurst,
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router.SetupRouter(cfg, sigServer, ice),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("Signal server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()

		// Sessions first: hijacked connections are invisible to http.Server.
		if err := sigServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("signal sessions did not drain")
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		return notifier.Close(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server error")
		os.Exit(1)
	}
	log.Info().Msg("Server exited gracefully")
}
