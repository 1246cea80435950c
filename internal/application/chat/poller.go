package chat

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// poller runs a reconciliation pass on a fixed interval and on demand. Passes
// never overlap: the timer tick and Trigger are served by the same goroutine.
type poller struct {
	clock    clock.Clock
	interval time.Duration
	pass     func(ctx context.Context)

	trigger chan struct{}

	mu     sync.Mutex
	ticker *clock.Ticker
	cancel context.CancelFunc
}

func newPoller(clk clock.Clock, interval time.Duration, pass func(ctx context.Context)) *poller {
	return &poller{
		clock:    clk,
		interval: interval,
		pass:     pass,
		trigger:  make(chan struct{}, 1),
	}
}

func (p *poller) start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	ticker := p.clock.Ticker(p.interval)

	p.mu.Lock()
	p.ticker = ticker
	p.cancel = cancel
	p.mu.Unlock()

	go p.run(ctx, ticker)
}

func (p *poller) run(ctx context.Context, ticker *clock.Ticker) {
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-p.trigger:
		}
		if ctx.Err() != nil {
			return
		}
		p.pass(ctx)
	}
}

// Trigger requests an out-of-cycle pass. Requests made while one is already
// queued collapse into it.
func (p *poller) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// stop halts the poller without waiting for a running pass; the pass observes
// the cancelled context.
func (p *poller) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	if p.ticker != nil {
		p.ticker.Stop()
		p.ticker = nil
	}
}
