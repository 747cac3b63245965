package resilience

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned when the breaker rejects an upstream call.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State of a Breaker.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

var stateNames = map[State]string{
	Closed:   "closed",
	Open:     "open",
	HalfOpen: "half_open",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// gauge is the value exported on the breaker_state gauge.
func (s State) gauge() float64 {
	switch s {
	case Closed, Open, HalfOpen:
		return float64(s)
	}
	return -1
}

// Breaker trips when the share of failed calls among the most recent outcomes
// reaches the configured ratio. The outcome window holds twice the minimum
// sample size so that old results age out. After openFor has elapsed a single
// probe is let through; its outcome decides between Closed and Open.
type Breaker struct {
	mu       sync.Mutex
	state    State
	outcomes []bool
	next     int
	filled   int
	failed   int
	minCalls int
	ratio    float64
	openFor  time.Duration
	openedAt time.Time
	probing  bool
	target   string
	logger   zerolog.Logger
	now      func() time.Time
}

// NewBreaker returns a closed breaker. Non-positive arguments fall back to a
// single call, a ratio of one half and thirty seconds respectively.
func NewBreaker(minRequests int, failureRatio float64, openFor time.Duration) *Breaker {
	if minRequests <= 0 {
		minRequests = 1
	}
	switch {
	case failureRatio <= 0:
		failureRatio = 0.5
	case failureRatio > 1:
		failureRatio = 1
	}
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	return &Breaker{
		outcomes: make([]bool, minRequests*2),
		minCalls: minRequests,
		ratio:    failureRatio,
		openFor:  openFor,
		target:   "default",
		logger:   zerolog.Nop(),
		now:      time.Now,
	}
}

// WithTarget names the upstream in metrics and logs.
func (b *Breaker) WithTarget(target string) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t := strings.TrimSpace(target); t != "" {
		b.target = t
	}
	b.publishLocked()
	return b
}

// WithLogger sets the fallback logger for transitions. A logger stored on the
// request context takes precedence.
func (b *Breaker) WithLogger(logger zerolog.Logger) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = logger
	return b
}

// WithClock replaces time.Now, mainly for tests.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	if now != nil {
		b.now = now
	}
	return b
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may proceed.
func (b *Breaker) Allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if b.now().Sub(b.openedAt) < b.openFor {
			return false
		}
		b.moveLocked(ctx, HalfOpen)
	}
	if b.probing {
		return false
	}
	b.probing = true
	return true
}

// Report records the outcome of a call that Allow admitted.
func (b *Breaker) Report(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		return
	case HalfOpen:
		b.probing = false
		if success {
			b.moveLocked(ctx, Closed)
		} else {
			b.moveLocked(ctx, Open)
		}
		return
	}

	b.recordLocked(success)
	if b.filled < b.minCalls {
		return
	}
	if float64(b.failed)/float64(b.filled) >= b.ratio {
		b.moveLocked(ctx, Open)
	}
}

func (b *Breaker) recordLocked(success bool) {
	if b.filled == len(b.outcomes) {
		if !b.outcomes[b.next] {
			b.failed--
		}
	} else {
		b.filled++
	}
	b.outcomes[b.next] = success
	if !success {
		b.failed++
	}
	b.next = (b.next + 1) % len(b.outcomes)
}

func (b *Breaker) resetLocked() {
	for i := range b.outcomes {
		b.outcomes[i] = false
	}
	b.next, b.filled, b.failed = 0, 0, 0
}

func (b *Breaker) moveLocked(ctx context.Context, to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.resetLocked()
	if to == Open {
		b.openedAt = b.now()
	}
	b.publishLocked()

	if BreakerTransitions != nil {
		BreakerTransitions.WithLabelValues(b.target, from.String(), to.String()).Inc()
	}
	if to == Open && BreakerOpenedTotal != nil {
		BreakerOpenedTotal.WithLabelValues(b.target).Inc()
	}

	logger := b.logger
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		logger = *l
	}
	evt := logger.Info().
		Str("target", b.target).
		Str("from_state", from.String()).
		Str("to_state", to.String())
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		evt = evt.Str("trace_id", sc.TraceID().String())
	}
	evt.Msg("breaker_transition")
}

func (b *Breaker) publishLocked() {
	if BreakerState != nil {
		BreakerState.WithLabelValues(b.target).Set(b.state.gauge())
	}
}

// Backoff doubles base for each attempt after the first and spreads the result
// by up to jitterPct in either direction.
func Backoff(base time.Duration, attempt int, jitterPct float64) time.Duration {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	if attempt < 1 {
		attempt = 1
	}
	d := base << uint(attempt-1)
	if jitterPct <= 0 {
		return d
	}
	spread := float64(d) * jitterPct
	return d + time.Duration((rand.Float64()*2-1)*spread)
}
