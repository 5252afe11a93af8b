package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/exim-agent/pkg/apperrors"
)

// CircuitState is the state of a BreakerCompleter.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds the trip threshold and the cool-down before a probe.
type BreakerConfig struct {
	Threshold  int
	ResetAfter time.Duration
}

// DefaultBreakerConfig trips after 5 consecutive failures and probes again after 30s.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Threshold:  5,
		ResetAfter: 30 * time.Second,
	}
}

// BreakerCompleter fails fast with apperrors.ErrCircuitOpen once the wrapped
// provider has failed Threshold times in a row. After ResetAfter a single
// probe request is let through; its outcome closes or re-opens the circuit.
type BreakerCompleter struct {
	next   Completer
	logger *zap.Logger
	now    func() time.Time

	mu               sync.Mutex
	threshold        int
	resetAfter       time.Duration
	consecutiveFails int
	lastFailure      time.Time
	state            CircuitState
}

// NewBreakerCompleter wraps next. Non-positive config values fall back to the defaults.
func NewBreakerCompleter(next Completer, cfg BreakerConfig, logger *zap.Logger) *BreakerCompleter {
	def := DefaultBreakerConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.ResetAfter <= 0 {
		cfg.ResetAfter = def.ResetAfter
	}
	return &BreakerCompleter{
		next:       next,
		logger:     logger.Named("breaker"),
		now:        time.Now,
		threshold:  cfg.Threshold,
		resetAfter: cfg.ResetAfter,
		state:      CircuitClosed,
	}
}

// Generate implements Completer.
func (b *BreakerCompleter) Generate(ctx context.Context, prompt string) (*Completion, error) {
	if err := b.allow(); err != nil {
		return nil, err
	}

	out, err := b.next.Generate(ctx, prompt)
	if err != nil {
		if countsAsFailure(err) {
			b.recordFailure()
		} else {
			b.release()
		}
		return nil, err
	}
	b.recordSuccess()
	return out, nil
}

// Model implements Completer.
func (b *BreakerCompleter) Model() string {
	return b.next.Model()
}

// Close closes the wrapped provider when it holds resources.
func (b *BreakerCompleter) Close() error {
	if c, ok := b.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// State returns the current state.
func (b *BreakerCompleter) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// ConsecutiveFailures returns the current run of failures.
func (b *BreakerCompleter) ConsecutiveFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveFails
}

func (b *BreakerCompleter) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitClosed:
		return nil
	case CircuitOpen:
		if b.now().Sub(b.lastFailure) >= b.resetAfter {
			b.state = CircuitHalfOpen
			b.logger.Info("Probing provider after cool-down", zap.String("model", b.next.Model()))
			return nil
		}
		return fmt.Errorf("%w: %d consecutive failures, last %v ago",
			apperrors.ErrCircuitOpen, b.consecutiveFails, b.now().Sub(b.lastFailure).Round(time.Second))
	default:
		return fmt.Errorf("%w: probe in flight", apperrors.ErrCircuitOpen)
	}
}

func (b *BreakerCompleter) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != CircuitClosed {
		b.logger.Info("Provider recovered, circuit closed", zap.String("model", b.next.Model()))
	}
	b.consecutiveFails = 0
	b.state = CircuitClosed
}

func (b *BreakerCompleter) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFails++
	b.lastFailure = b.now()

	if b.state == CircuitHalfOpen || b.consecutiveFails >= b.threshold {
		if b.state != CircuitOpen {
			b.logger.Warn("Circuit opened",
				zap.String("model", b.next.Model()),
				zap.Int("consecutive_failures", b.consecutiveFails))
		}
		b.state = CircuitOpen
	}
}

// release ends a half-open probe that failed for reasons unrelated to the
// provider, so the next request may probe again.
func (b *BreakerCompleter) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == CircuitHalfOpen {
		b.state = CircuitOpen
		b.lastFailure = b.now().Add(-b.resetAfter)
	}
}

// countsAsFailure reports whether err says something about provider health.
// Caller cancellations and deadlines do not.
func countsAsFailure(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var llmErr *Error
	if errors.As(err, &llmErr) {
		switch llmErr.Type {
		case ErrorTypeCancelled:
			return false
		case ErrorTypeTimeout:
			// A timeout is the provider's failure only if the caller still had time.
			return llmErr.Retryable
		}
	}
	return true
}

var _ Completer = (*BreakerCompleter)(nil)
