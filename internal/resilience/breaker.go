package resilience

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// ErrOpen is returned when a breaker rejects a call without attempting it.
var ErrOpen = eris.New("resilience: breaker open")

// BreakerConfig tunes a Breaker. Trip is the consecutive-failure count that
// opens it; Cooldown is how long it stays open before allowing one probe.
type BreakerConfig struct {
	Trip     int           `yaml:"trip" mapstructure:"trip"`
	Cooldown time.Duration `yaml:"cooldown" mapstructure:"cooldown"`
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{Trip: 5, Cooldown: 30 * time.Second}
}

// Breaker is a consecutive-failure circuit breaker. Closed passes calls
// through; Trip consecutive failures open it; after Cooldown one probe is
// allowed, and its outcome closes or reopens the breaker.
type Breaker struct {
	cfg BreakerConfig

	mu       sync.Mutex
	failures int
	openedAt time.Time
	open     bool
	probing  bool

	now func() time.Time
}

func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Trip <= 0 {
		cfg.Trip = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// Allow reports whether a call may proceed. It returns ErrOpen while the
// breaker is open and inside the cooldown window.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return nil
	}
	if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
		return ErrOpen
	}
	// Cooldown elapsed: let one probe through.
	b.probing = true
	return nil
}

// Record feeds a call outcome back. Success closes the breaker and clears
// the failure count; failure counts toward Trip, and any failed probe
// reopens immediately.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.failures = 0
		b.open = false
		b.probing = false
		return
	}

	b.failures++
	if b.probing || b.failures >= b.cfg.Trip {
		b.open = true
		b.probing = false
		b.openedAt = b.now()
	}
}

// State returns "open", "half-open", or "closed" for observability.
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case b.open && b.now().Sub(b.openedAt) >= b.cfg.Cooldown:
		return "half-open"
	case b.open:
		return "open"
	default:
		return "closed"
	}
}

// BreakerSet keys breakers by name (one per remote host or service).
type BreakerSet struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	breakers map[string]*Breaker
}

func NewBreakerSet(cfg BreakerConfig) *BreakerSet {
	return &BreakerSet{cfg: cfg, breakers: make(map[string]*Breaker)}
}

// For returns the breaker for name, creating it on first use.
func (s *BreakerSet) For(name string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.breakers[name]
	if !ok {
		b = NewBreaker(s.cfg)
		s.breakers[name] = b
	}
	return b
}

// States snapshots every breaker's state for the monitoring collector.
func (s *BreakerSet) States() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string, len(s.breakers))
	for name, b := range s.breakers {
		out[name] = b.State()
	}
	return out
}
