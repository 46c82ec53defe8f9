package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/Meet/internal/adapters/http"
	"github.com/dkeye/Meet/internal/adapters/media"
	signaladapter "github.com/dkeye/Meet/internal/adapters/signal"
	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/app/ack"
	"github.com/dkeye/Meet/internal/app/forward"
	"github.com/dkeye/Meet/internal/app/orch"
	"github.com/dkeye/Meet/internal/app/quality"
	"github.com/dkeye/Meet/internal/app/rtcp"
	"github.com/dkeye/Meet/internal/app/verify"
	"github.com/dkeye/Meet/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	reg := app.NewMeetingRegistry()
	collector := rtcp.NewCollector(reg, cfg.RtcpWindow)
	engine := media.NewEngine(media.DefaultWebRTCConfig())
	forwarder := forward.NewForwarder(reg, engine)

	// The hub carries server-initiated pushes (ack summaries, tier changes)
	// back out over the signaling connections.
	hub := signaladapter.NewHub(reg)

	acks := ack.NewAggregator(reg, hub, cfg.AckInterval)
	verifier := verify.NewVerifier(reg, acks, verify.Config{
		TTL:           cfg.FingerprintTTL,
		SweepInterval: cfg.SweepInterval,
		ApproxMatch:   cfg.ApproxMatch,
	})
	qc := quality.NewController(reg, collector, forwarder, hub, quality.Config{
		LowLoss:    cfg.LowLoss,
		MediumLoss: cfg.MediumLoss,
		Hysteresis: cfg.Hysteresis,
		Interval:   cfg.QualityInterval,
	})

	o := &orch.Orchestrator{
		Registry:  reg,
		Collector: collector,
		Quality:   qc,
		Forwarder: forwarder,
		Verifier:  verifier,
		Acks:      acks,
		Engine:    engine,
	}

	ctrl := signaladapter.NewSignalWSController(o, hub, cfg)

	go qc.Run(ctx)
	go acks.Run(ctx)
	go verifier.Run(ctx)

	r := router.SetupRouter(ctx, cfg, ctrl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Meet server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
