package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/prepview/backend/internal/cache"
)

// SessionWatcher bounds the wall-clock duration of live sessions.
type SessionWatcher interface {
	Watch(sessionID string, limit time.Duration)
	Stop(sessionID string)
}

// Governor runs one ticking goroutine per live session and fires the timeout
// termination at most once. The tick is injectable so tests do not wait on
// wall-clock seconds; production uses one second.
type Governor struct {
	mu      sync.Mutex
	watches map[string]context.CancelFunc

	tick    time.Duration
	cache   cache.Cache
	log     *logrus.Logger
	timeout func(ctx context.Context, sessionID string)
}

func NewGovernor(tick time.Duration, c cache.Cache, log *logrus.Logger) *Governor {
	if tick <= 0 {
		tick = time.Second
	}
	if log == nil {
		log = logrus.New()
	}
	return &Governor{
		watches: make(map[string]context.CancelFunc),
		tick:    tick,
		cache:   c,
		log:     log,
	}
}

// SetTimeoutFunc wires the termination path; kept out of the constructor to
// break the cycle with the interview service.
func (g *Governor) SetTimeoutFunc(fn func(ctx context.Context, sessionID string)) {
	g.mu.Lock()
	g.timeout = fn
	g.mu.Unlock()
}

func (g *Governor) timeoutFunc() func(ctx context.Context, sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.timeout
}

func (g *Governor) Watch(sessionID string, limit time.Duration) {
	g.mu.Lock()
	if _, ok := g.watches[sessionID]; ok {
		g.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	g.watches[sessionID] = cancel
	g.mu.Unlock()

	go g.run(ctx, sessionID, limit)
}

// Stop cancels the watch immediately. Safe to call for unknown sessions and
// after the watch already fired.
func (g *Governor) Stop(sessionID string) {
	g.mu.Lock()
	cancel, ok := g.watches[sessionID]
	if ok {
		delete(g.watches, sessionID)
	}
	g.mu.Unlock()
	if ok {
		cancel()
	}
}

func (g *Governor) run(ctx context.Context, sessionID string, limit time.Duration) {
	t := time.NewTicker(g.tick)
	defer t.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			elapsed := time.Since(start)
			g.publishElapsed(ctx, sessionID, elapsed, limit)

			if elapsed >= limit {
				// deregister first so a racing Stop is a no-op
				g.Stop(sessionID)
				if fn := g.timeoutFunc(); fn != nil {
					tctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
					fn(tctx, sessionID)
					cancel()
				}
				return
			}
		}
	}
}

// publishElapsed mirrors elapsed seconds into Redis for soft UI display. Never
// authoritative, never blocks termination.
func (g *Governor) publishElapsed(ctx context.Context, sessionID string, elapsed, limit time.Duration) {
	if g.cache == nil {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	key := "session:" + sessionID + ":elapsed"
	if err := g.cache.SetJSON(cctx, key, int64(elapsed/time.Second), limit+time.Minute); err != nil {
		g.log.WithError(err).WithField("session_id", sessionID).Debug("elapsed publish failed")
	}
}
