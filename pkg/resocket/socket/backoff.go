package socket

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Backoff defaults.
const (
	// InitialBackoff is the base delay of the first reconnect attempt.
	InitialBackoff = 1 * time.Second

	// MaxBackoff caps the base delay.
	MaxBackoff = 30 * time.Second

	// BackoffMultiplier is the factor by which the base delay grows per attempt.
	BackoffMultiplier = 2.0

	// MaxJitter bounds the uniform random delay added to every base delay.
	MaxJitter = 1 * time.Second
)

// BackoffConfig allows customizing backoff parameters. Zero values select
// the defaults; a negative Jitter disables jitter.
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     time.Duration

	// Rand returns a uniform value in [0, 1). Defaults to a time-seeded source.
	Rand func() float64
}

// Backoff computes reconnect delays as
//
//	min(Initial * Multiplier^(attempt-1), Max) + uniform[0, Jitter)
//
// where attempt is the number of reconnect attempts made before the failure
// being handled.
type Backoff struct {
	initial    time.Duration
	max        time.Duration
	multiplier float64
	jitter     time.Duration

	mu   sync.Mutex
	rand func() float64
}

// NewBackoff creates a backoff calculator with default settings.
func NewBackoff() *Backoff {
	return NewBackoffWithConfig(BackoffConfig{})
}

// NewBackoffWithConfig creates a backoff calculator with custom settings.
func NewBackoffWithConfig(cfg BackoffConfig) *Backoff {
	if cfg.Initial <= 0 {
		cfg.Initial = InitialBackoff
	}
	if cfg.Max <= 0 {
		cfg.Max = MaxBackoff
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = BackoffMultiplier
	}
	if cfg.Jitter == 0 {
		cfg.Jitter = MaxJitter
	} else if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}
	if cfg.Rand == nil {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		cfg.Rand = rng.Float64
	}

	return &Backoff{
		initial:    cfg.Initial,
		max:        cfg.Max,
		multiplier: cfg.Multiplier,
		jitter:     cfg.Jitter,
		rand:       cfg.Rand,
	}
}

// Base returns the delay for attempt without jitter.
func (b *Backoff) Base(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(b.initial) * math.Pow(b.multiplier, float64(attempt-1))
	if d >= float64(b.max) {
		return b.max
	}
	return time.Duration(d)
}

// Delay returns the jittered delay for attempt.
func (b *Backoff) Delay(attempt int) time.Duration {
	return b.Base(attempt) + b.nextJitter()
}

func (b *Backoff) nextJitter() time.Duration {
	if b.jitter <= 0 {
		return 0
	}
	b.mu.Lock()
	r := b.rand()
	b.mu.Unlock()

	j := time.Duration(r * float64(b.jitter))
	if j >= b.jitter {
		j = b.jitter - 1
	}
	if j < 0 {
		j = 0
	}
	return j
}
