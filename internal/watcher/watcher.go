package watcher

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vipul43/fitsync-worker/internal/service"
)

// EventRunner drains one batch of the webhook queue
type EventRunner interface {
	Run(ctx context.Context) service.RunStats
}

type Watcher struct {
	processor EventRunner
	interval  time.Duration
}

func New(processor EventRunner, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Watcher{
		processor: processor,
		interval:  interval,
	}
}

// Start runs the processor once immediately and then on every tick until ctx is cancelled
func (w *Watcher) Start(ctx context.Context) error {
	log.Info().Dur("interval", w.interval).Msg("starting webhook event watcher")

	// Drain whatever accumulated while the worker was down
	w.tick(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("watcher shutting down")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Watcher) tick(ctx context.Context) {
	stats := w.processor.Run(ctx)
	if stats.Skipped {
		log.Debug().Msg("previous run still in flight")
	}
}
