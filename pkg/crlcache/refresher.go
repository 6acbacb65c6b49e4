package crlcache

import (
	"context"
	"sync"
	"time"

	"github.com/effective-security/xlog"
)

// Refresher periodically evicts expired CRLs and re-fetches the ones
// expiring within the updater's refresh threshold.
type Refresher struct {
	updater  *Updater
	interval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewRefresher returns a Refresher running every interval
func NewRefresher(updater *Updater, interval time.Duration) *Refresher {
	return &Refresher{
		updater:  updater,
		interval: interval,
	}
}

// Start launches the refresh loop. It is a no-op when already running.
func (r *Refresher) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.stopped = make(chan struct{})

	go r.run(ctx)
}

// Stop terminates the refresh loop and waits for it to exit
func (r *Refresher) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	stopped := r.stopped
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
		<-stopped
	}
}

func (r *Refresher) run(ctx context.Context) {
	defer close(r.stopped)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := r.updater.CleanupExpired()
			refreshed := r.updater.refreshExpiring(ctx)
			logger.KV(xlog.DEBUG,
				"status", "refreshed",
				"removed", removed,
				"updated", refreshed,
			)
		}
	}
}
