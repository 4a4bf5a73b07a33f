package providers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/neoxmeet/meet-backend/internal/metrics"
)

// ErrCircuitOpen is returned without calling the provider while its breaker is open
var ErrCircuitOpen = errors.New("provider circuit breaker is open")

// BreakerState is the state of one capability's breaker
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// BreakerConfig tunes every breaker created by a CircuitBreaker
type BreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	Cooldown         time.Duration
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 2
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Second
	}
	return c
}

// CircuitBreaker keeps one breaker per key
type CircuitBreaker struct {
	cfg    BreakerConfig
	logger logrus.FieldLogger
	now    func() time.Time

	mu       sync.Mutex
	breakers map[string]*breaker
}

type breaker struct {
	state       BreakerState
	failures    int
	successes   int
	lastFailure time.Time
}

func NewCircuitBreaker(cfg BreakerConfig, logger logrus.FieldLogger) *CircuitBreaker {
	return &CircuitBreaker{
		cfg:      cfg.withDefaults(),
		logger:   logger,
		now:      time.Now,
		breakers: make(map[string]*breaker),
	}
}

// Execute runs fn unless the breaker for key is open. Context cancellation
// is not counted as a provider failure.
func (cb *CircuitBreaker) Execute(ctx context.Context, key string, fn func() error) error {
	if !cb.allow(key) {
		return fmt.Errorf("%s: %w", key, ErrCircuitOpen)
	}

	err := fn()
	switch {
	case err == nil:
		cb.recordSuccess(key)
	case ctx.Err() != nil:
	default:
		cb.recordFailure(key)
	}
	return err
}

// State reports the breaker state for key
func (cb *CircuitBreaker) State(key string) BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	b, ok := cb.breakers[key]
	if !ok {
		return StateClosed
	}
	cb.advanceLocked(b)
	return b.state
}

// Reset closes the breaker for key
func (cb *CircuitBreaker) Reset(key string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	delete(cb.breakers, key)
}

func (cb *CircuitBreaker) allow(key string) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	b := cb.getLocked(key)
	cb.advanceLocked(b)
	return b.state != StateOpen
}

func (cb *CircuitBreaker) getLocked(key string) *breaker {
	b, ok := cb.breakers[key]
	if !ok {
		b = &breaker{}
		cb.breakers[key] = b
	}
	return b
}

// advanceLocked moves an open breaker to half-open once the cooldown passed
func (cb *CircuitBreaker) advanceLocked(b *breaker) {
	if b.state == StateOpen && cb.now().Sub(b.lastFailure) >= cb.cfg.Cooldown {
		b.state = StateHalfOpen
		b.failures = 0
		b.successes = 0
	}
}

func (cb *CircuitBreaker) recordFailure(key string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	b := cb.getLocked(key)
	b.failures++
	b.lastFailure = cb.now()

	switch b.state {
	case StateClosed:
		if b.failures >= cb.cfg.FailureThreshold {
			b.state = StateOpen
			metrics.RecordBreakerOpen(key)
			cb.logger.WithField("capability", key).WithField("failures", b.failures).Warn("Opening provider circuit breaker")
		}
	case StateHalfOpen:
		b.state = StateOpen
		metrics.RecordBreakerOpen(key)
		cb.logger.WithField("capability", key).Warn("Re-opening provider circuit breaker after half-open failure")
	}
}

func (cb *CircuitBreaker) recordSuccess(key string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	b := cb.getLocked(key)
	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= cb.cfg.SuccessThreshold {
			b.state = StateClosed
			b.failures = 0
			b.successes = 0
			cb.logger.WithField("capability", key).Info("Closing provider circuit breaker")
		}
	}
}

// Capability is a provider implementing every AI capability
type Capability interface {
	Transcriber
	Summarizer
	Translator
	SpeechSynthesizer
}

// Guarded wraps a provider so each capability trips its own breaker
type Guarded struct {
	next    Capability
	breaker *CircuitBreaker
}

var _ Capability = (*Guarded)(nil)

func NewGuarded(next Capability, breaker *CircuitBreaker) *Guarded {
	return &Guarded{next: next, breaker: breaker}
}

func (g *Guarded) Transcribe(ctx context.Context, audioPath string) (*Transcription, error) {
	var out *Transcription
	err := g.breaker.Execute(ctx, "transcribe", func() error {
		var err error
		out, err = g.next.Transcribe(ctx, audioPath)
		return err
	})
	return out, err
}

func (g *Guarded) Summarize(ctx context.Context, transcript string) (string, error) {
	var out string
	err := g.breaker.Execute(ctx, "summarize", func() error {
		var err error
		out, err = g.next.Summarize(ctx, transcript)
		return err
	})
	return out, err
}

func (g *Guarded) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	var out string
	err := g.breaker.Execute(ctx, "translate", func() error {
		var err error
		out, err = g.next.Translate(ctx, text, sourceLang, targetLang)
		return err
	})
	return out, err
}

func (g *Guarded) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	var out []byte
	err := g.breaker.Execute(ctx, "synthesize", func() error {
		var err error
		out, err = g.next.Synthesize(ctx, text, voice)
		return err
	})
	return out, err
}
