// Package server runs the check on a fixed interval with the dashboard,
// status API and metrics endpoint attached.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/queuewatch/queuewatch/check"
	"github.com/queuewatch/queuewatch/config"
	"github.com/queuewatch/queuewatch/dashboard"
)

const defaultInterval = 60 * time.Second

func Run(checker *check.Checker, dash *dashboard.Dashboard, cfg config.ServeConfig) {
	go func() {
		if err := dash.Start(); err != nil {
			log.Error().Err(err).Msg("Dashboard stopped")
		}
	}()

	interval := defaultInterval
	if cfg.IntervalSeconds > 0 {
		interval = time.Duration(cfg.IntervalSeconds) * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)

		runOnce(ctx, checker, dash)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				runOnce(ctx, checker, dash)
			case <-ctx.Done():
				return
			}
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	<-c // This blocks the main thread until an interrupt is received
	fmt.Println("Gracefully shutting down...")

	cancel()
	<-done
	dash.Stop()
}

func runOnce(ctx context.Context, checker *check.Checker, dash *dashboard.Dashboard) {
	result, err := checker.Run(ctx, time.Now().UTC())
	if err != nil {
		log.Error().Err(err).Msg("Check run failed to persist")
	}
	dash.SetResult(result)
}
