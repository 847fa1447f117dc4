package resilience

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fugue-ai/rhema-sub012/rherr"
	"github.com/fugue-ai/rhema-sub012/rhlog"
)

// CircuitState is one of the three states a CircuitBreaker can be in.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrorClassifier decides whether err should count toward the circuit's
// error rate. Cancellation and caller-side errors shouldn't trip a breaker
// meant to protect against an unhealthy dependency.
type ErrorClassifier func(error) bool

// DefaultErrorClassifier counts everything except cancellation as a failure.
func DefaultErrorClassifier(err error) bool {
	if err == nil {
		return false
	}
	return !rherr.IsCancelled(err) && err != context.Canceled
}

// Config configures a CircuitBreaker.
type Config struct {
	Name             string
	ErrorThreshold   float64       // error rate (0..1) that trips the breaker
	VolumeThreshold  int           // minimum requests before the rate is evaluated
	SleepWindow      time.Duration // how long to stay Open before probing Half-Open
	HalfOpenRequests int           // probes admitted per Half-Open period
	SuccessThreshold float64       // half-open success rate needed to close
	WindowSize       time.Duration // sliding window duration for the error rate
	BucketCount      int           // buckets composing the sliding window
	ErrorClassifier  ErrorClassifier
	Logger           rhlog.Logger
}

// DefaultConfig returns production-shaped defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:             "default",
		ErrorThreshold:   0.5,
		VolumeThreshold:  10,
		SleepWindow:      30 * time.Second,
		HalfOpenRequests: 5,
		SuccessThreshold: 0.6,
		WindowSize:       60 * time.Second,
		BucketCount:      10,
		ErrorClassifier:  DefaultErrorClassifier,
	}
}

// CircuitBreaker protects a remote capability call from cascading failure:
// it trips Open once the sliding-window error rate crosses ErrorThreshold,
// waits SleepWindow, then admits a bounded number of Half-Open probes
// before deciding whether to Close or re-Open.
type CircuitBreaker struct {
	cfg    *Config
	logger rhlog.Logger
	window *slidingWindow

	mu             sync.Mutex
	state          CircuitState
	stateChangedAt time.Time

	halfOpenTotal     int
	halfOpenSuccesses int
	halfOpenFailures  int

	forceOpen, forceClosed atomic.Bool
	listeners              []func(name string, from, to CircuitState)
}

// New builds a CircuitBreaker, filling any zero-valued fields from
// DefaultConfig.
func New(cfg *Config) *CircuitBreaker {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	def := DefaultConfig()
	if cfg.WindowSize == 0 {
		cfg.WindowSize = def.WindowSize
	}
	if cfg.BucketCount == 0 {
		cfg.BucketCount = def.BucketCount
	}
	if cfg.ErrorClassifier == nil {
		cfg.ErrorClassifier = DefaultErrorClassifier
	}
	if cfg.SuccessThreshold == 0 {
		cfg.SuccessThreshold = def.SuccessThreshold
	}
	if cfg.HalfOpenRequests == 0 {
		cfg.HalfOpenRequests = def.HalfOpenRequests
	}
	if cfg.SleepWindow == 0 {
		cfg.SleepWindow = def.SleepWindow
	}
	logger := rhlog.Component(cfg.Logger, "resilience.circuit_breaker")
	return &CircuitBreaker{
		cfg:            cfg,
		logger:         logger,
		window:         newSlidingWindow(cfg.WindowSize, cfg.BucketCount),
		state:          StateClosed,
		stateChangedAt: time.Now(),
	}
}

// State returns the breaker's current state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// OnStateChange registers a listener invoked synchronously on every
// transition, most-recent-registration-last.
func (cb *CircuitBreaker) OnStateChange(fn func(name string, from, to CircuitState)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.listeners = append(cb.listeners, fn)
}

// ForceOpen/ForceClose override the computed state for manual operator
// intervention; ForceReset returns to automatic operation.
func (cb *CircuitBreaker) ForceOpen()  { cb.forceOpen.Store(true); cb.forceClosed.Store(false) }
func (cb *CircuitBreaker) ForceClose() { cb.forceClosed.Store(true); cb.forceOpen.Store(false) }
func (cb *CircuitBreaker) ForceReset() { cb.forceOpen.Store(false); cb.forceClosed.Store(false) }

// CanExecute reports whether a call may proceed right now, advancing
// Open→HalfOpen when SleepWindow has elapsed.
func (cb *CircuitBreaker) CanExecute() bool {
	allowed, _ := cb.tryAdmit()
	return allowed
}

// tryAdmit is CanExecute's implementation; it also reports whether the
// admitted request is a half-open probe, so Execute can route its outcome
// to the right bookkeeping.
func (cb *CircuitBreaker) tryAdmit() (allowed, isProbe bool) {
	if cb.forceClosed.Load() {
		return true, false
	}
	if cb.forceOpen.Load() {
		return false, false
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true, false
	case StateOpen:
		if time.Since(cb.stateChangedAt) > cb.cfg.SleepWindow {
			cb.transitionLocked(StateHalfOpen)
		} else {
			return false, false
		}
		fallthrough
	case StateHalfOpen:
		if cb.halfOpenTotal >= cb.cfg.HalfOpenRequests {
			return false, false
		}
		cb.halfOpenTotal++
		return true, true
	default:
		return false, false
	}
}

// Execute runs fn under circuit-breaker protection, recording its outcome
// and returning rherr.ErrTransport-flavored rejection when the circuit is
// Open.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	allowed, isProbe := cb.tryAdmit()
	if !allowed {
		return rherr.New("resilience.Execute", "resilience", rherr.ErrTransport,
			fmt.Sprintf("circuit breaker %q is open", cb.cfg.Name))
	}

	err := fn()
	cb.complete(isProbe, err)
	return err
}

func (cb *CircuitBreaker) complete(isProbe bool, err error) {
	if cb.forceClosed.Load() || cb.forceOpen.Load() {
		return
	}

	counts := cb.cfg.ErrorClassifier(err)
	if counts {
		cb.window.recordFailure()
	} else {
		cb.window.recordSuccess()
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen && isProbe {
		if counts {
			cb.halfOpenFailures++
		} else {
			cb.halfOpenSuccesses++
		}
		if cb.halfOpenTotal >= cb.cfg.HalfOpenRequests {
			total := cb.halfOpenSuccesses + cb.halfOpenFailures
			successRate := 1.0
			if total > 0 {
				successRate = float64(cb.halfOpenSuccesses) / float64(total)
			}
			if successRate >= cb.cfg.SuccessThreshold {
				cb.transitionLocked(StateClosed)
			} else {
				cb.transitionLocked(StateOpen)
			}
		}
		return
	}

	if cb.state == StateClosed && counts {
		total := cb.window.total()
		if total >= cb.cfg.VolumeThreshold && cb.window.errorRate() >= cb.cfg.ErrorThreshold {
			cb.transitionLocked(StateOpen)
		}
	}
}

// transitionLocked moves to next, resetting half-open bookkeeping and
// notifying listeners. Caller must hold cb.mu.
func (cb *CircuitBreaker) transitionLocked(next CircuitState) {
	prev := cb.state
	if prev == next {
		return
	}
	cb.state = next
	cb.stateChangedAt = time.Now()
	cb.halfOpenTotal, cb.halfOpenSuccesses, cb.halfOpenFailures = 0, 0, 0

	cb.logger.Info("circuit breaker state change", map[string]interface{}{
		"name": cb.cfg.Name, "from": prev.String(), "to": next.String(),
	})
	for _, l := range cb.listeners {
		l(cb.cfg.Name, prev, next)
	}
}

// bucket holds one time-sliced window segment.
type bucket struct {
	timestamp       time.Time
	success, failure uint64
}

// slidingWindow is a fixed-bucket-count rolling counter of successes and
// failures, used by CircuitBreaker to compute a time-decayed error rate.
type slidingWindow struct {
	mu         sync.Mutex
	buckets    []bucket
	windowSize time.Duration
	bucketSize time.Duration
	currentIdx int
	lastRotate time.Time
}

func newSlidingWindow(windowSize time.Duration, bucketCount int) *slidingWindow {
	if bucketCount <= 0 {
		bucketCount = 10
	}
	now := time.Now()
	buckets := make([]bucket, bucketCount)
	for i := range buckets {
		buckets[i].timestamp = now
	}
	return &slidingWindow{
		buckets:    buckets,
		windowSize: windowSize,
		bucketSize: windowSize / time.Duration(bucketCount),
		lastRotate: now,
	}
}

func (sw *slidingWindow) rotate() {
	now := time.Now()
	elapsed := now.Sub(sw.lastRotate)
	if elapsed < sw.bucketSize {
		return
	}
	steps := int(elapsed / sw.bucketSize)
	if steps > len(sw.buckets) {
		steps = len(sw.buckets)
	}
	for i := 0; i < steps; i++ {
		sw.currentIdx = (sw.currentIdx + 1) % len(sw.buckets)
		sw.buckets[sw.currentIdx] = bucket{timestamp: now}
	}
	sw.lastRotate = now
}

func (sw *slidingWindow) recordSuccess() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.rotate()
	sw.buckets[sw.currentIdx].success++
}

func (sw *slidingWindow) recordFailure() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.rotate()
	sw.buckets[sw.currentIdx].failure++
}

func (sw *slidingWindow) counts() (success, failure uint64) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	cutoff := time.Now().Add(-sw.windowSize)
	for _, b := range sw.buckets {
		if b.timestamp.After(cutoff) {
			success += b.success
			failure += b.failure
		}
	}
	return success, failure
}

func (sw *slidingWindow) total() int {
	s, f := sw.counts()
	return int(s + f)
}

func (sw *slidingWindow) errorRate() float64 {
	s, f := sw.counts()
	total := s + f
	if total == 0 {
		return 0
	}
	return float64(f) / float64(total)
}
