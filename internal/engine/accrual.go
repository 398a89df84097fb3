package engine

import (
	"context"
	"sync"
	"time"
)

const (
	// SecondsPerYear is the compounding period of the bond rate.
	SecondsPerYear = 365 * 24 * 60 * 60
	// DefaultBondRate is the fixed annual growth rate of a bond.
	DefaultBondRate = 0.05
	// DefaultTick is the display refresh interval of the projection.
	DefaultTick = time.Second
)

// Projector grows a snapshot value by a fixed annual rate, one tick at a
// time: V += V * rate * tick / SecondsPerYear. The result is a display value
// only. Every fresh on-chain read must be applied with Reset, which discards
// the drift accumulated so far.
type Projector struct {
	mu         sync.Mutex
	rate       float64
	tick       time.Duration
	value      float64
	snapshotAt time.Time
	has        bool
}

// NewProjector returns a projector with no snapshot. A non-positive tick
// falls back to DefaultTick.
func NewProjector(rate float64, tick time.Duration) *Projector {
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Projector{rate: rate, tick: tick}
}

// Reset replaces the running value with a fresh snapshot.
func (p *Projector) Reset(v float64, at time.Time) {
	p.mu.Lock()
	p.value = v
	p.snapshotAt = at
	p.has = true
	p.mu.Unlock()
}

// Step advances the projection by one tick and returns the new value. It is
// a no-op while no snapshot has been applied.
func (p *Projector) Step() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.has {
		return 0
	}
	p.value += p.value * p.rate * p.tick.Seconds() / SecondsPerYear
	return p.value
}

// Value returns the current projection, or 0 before the first snapshot.
func (p *Projector) Value() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.has {
		return 0
	}
	return p.value
}

// SnapshotAt returns when the last snapshot was applied.
func (p *Projector) SnapshotAt() (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotAt, p.has
}

// HasSnapshot reports whether Reset has ever been called.
func (p *Projector) HasSnapshot() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.has
}

// Interval returns the tick interval.
func (p *Projector) Interval() time.Duration { return p.tick }

// Ticker drives a Projector on its tick interval. It is owned by exactly one
// consumer: Start acquires the timer, Stop releases it. A Ticker can be
// restarted after Stop.
type Ticker struct {
	p      *Projector
	onTick func(float64)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTicker binds a ticker to p. onTick may be nil.
func NewTicker(p *Projector, onTick func(float64)) *Ticker {
	return &Ticker{p: p, onTick: onTick}
}

// Start begins ticking until ctx is cancelled or Stop is called. It returns
// false without starting when the projector has no snapshot yet or the
// ticker is already running.
func (t *Ticker) Start(ctx context.Context) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil || !t.p.HasSnapshot() {
		return false
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	t.cancel = cancel
	t.done = done
	go t.loop(ctx, done)
	return true
}

func (t *Ticker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer t.release(done)
	tk := time.NewTicker(t.p.Interval())
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
			v := t.p.Step()
			if t.onTick != nil {
				t.onTick(v)
			}
		}
	}
}

// release clears the running state if it still belongs to the loop that
// owns done, so a ticker whose parent context ended can be started again.
func (t *Ticker) release(done chan struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done == done {
		t.cancel()
		t.cancel, t.done = nil, nil
	}
}

// Stop releases the timer and waits for the tick goroutine to exit. Calling
// Stop on a stopped ticker does nothing.
func (t *Ticker) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the tick goroutine is active.
func (t *Ticker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}
