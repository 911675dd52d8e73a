package watcher

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vipul43/fitsync-worker/internal/service"
)

type countingRunner struct {
	runs atomic.Int32
}

func (r *countingRunner) Run(ctx context.Context) service.RunStats {
	r.runs.Add(1)
	return service.RunStats{}
}

func TestWatcher_RunsOnStartupAndOnTick(t *testing.T) {
	runner := &countingRunner{}
	w := New(runner, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	errChan := make(chan error, 1)
	go func() { errChan <- w.Start(ctx) }()

	require.Eventually(t, func() bool { return runner.runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-errChan:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop after cancellation")
	}
}

func TestWatcher_ImmediateRunBeforeFirstTick(t *testing.T) {
	runner := &countingRunner{}
	w := New(runner, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = w.Start(ctx) }()
	defer cancel()

	require.Eventually(t, func() bool { return runner.runs.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestNew_DefaultInterval(t *testing.T) {
	w := New(&countingRunner{}, 0)
	assert.Equal(t, 30*time.Second, w.interval)
}
