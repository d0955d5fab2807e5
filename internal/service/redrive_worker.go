package service

import (
	"context"
	"time"

	"settlement-engine/internal/core/ports"

	"github.com/rs/zerolog"
)

// RedriveWorker runs a redrive sweep at startup and then on every tick until
// its context is cancelled.
type RedriveWorker struct {
	svc      ports.RedriveService
	interval time.Duration
	log      zerolog.Logger
}

// NewRedriveWorker creates a worker sweeping every interval.
func NewRedriveWorker(svc ports.RedriveService, interval time.Duration, log zerolog.Logger) *RedriveWorker {
	return &RedriveWorker{svc: svc, interval: interval, log: log}
}

// Run blocks until ctx is done.
func (w *RedriveWorker) Run(ctx context.Context) {
	w.sweep(ctx)
	if w.interval <= 0 {
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("redrive worker stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *RedriveWorker) sweep(ctx context.Context) {
	if _, err := w.svc.Redrive(ctx); err != nil && ctx.Err() == nil {
		w.log.Error().Err(err).Msg("redrive sweep failed")
	}
}
