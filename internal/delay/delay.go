package delay

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"time"

	"github.com/TSavo/authcore/internal/kv"
)

// Config holds backoff tuning parameters.
type Config struct {
	Base         time.Duration // delay after the first failure
	Factor       float64       // exponential growth per failure
	Max          time.Duration // delay cap
	JitterFactor float64       // symmetric jitter as a fraction of the delay, 0..1
	CounterTTL   time.Duration // failure counter lifetime
}

// DefaultConfig matches the documented numeric contract: failures
// 1, 2, 3, ... produce ~1s, ~2s, ~4s, ... capped at 60s, each +/- 10%.
func DefaultConfig() Config {
	return Config{
		Base:         time.Second,
		Factor:       2,
		Max:          time.Minute,
		JitterFactor: 0.1,
		CounterTTL:   time.Hour,
	}
}

// Backoff computes and applies progressive delays. Safe for concurrent use.
type Backoff struct {
	store  *kv.Store
	config Config
}

func New(store *kv.Store, cfg Config) *Backoff {
	if cfg.Base <= 0 {
		cfg.Base = time.Second
	}
	if cfg.Factor < 1 {
		cfg.Factor = 2
	}
	if cfg.Max <= 0 {
		cfg.Max = time.Minute
	}
	if cfg.JitterFactor < 0 || cfg.JitterFactor > 1 {
		cfg.JitterFactor = 0.1
	}
	if cfg.CounterTTL <= 0 {
		cfg.CounterTTL = time.Hour
	}
	return &Backoff{store: store, config: cfg}
}

// RecordFailure increments the consecutive-failure counter for ip and
// returns the delay the next attempt should face.
func (b *Backoff) RecordFailure(ctx context.Context, ip string) (time.Duration, error) {
	count, err := b.store.IncrWindow(ctx, b.key(ip), b.config.CounterTTL)
	if err != nil {
		return 0, err
	}
	return b.delayFor(count)
}

// GetDelay computes the current delay for ip without recording anything,
// for pre-checks before an attempt is even accepted. Zero failures means
// zero delay.
func (b *Backoff) GetDelay(ctx context.Context, ip string) (time.Duration, error) {
	count, err := b.store.GetInt(ctx, b.key(ip))
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}
	return b.delayFor(count)
}

// Reset clears the failure counter. Called on successful authentication.
func (b *Backoff) Reset(ctx context.Context, ip string) error {
	return b.store.Del(ctx, b.key(ip))
}

// Apply waits out the current delay for ip before returning. The wait
// suspends only the calling goroutine and is cut short by ctx. Returns the
// delay that was applied.
func (b *Backoff) Apply(ctx context.Context, ip string) (time.Duration, error) {
	d, err := b.GetDelay(ctx, ip)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return d, nil
	case <-ctx.Done():
		return d, ctx.Err()
	}
}

// delayFor computes min(max, base*factor^(failures-1)) with symmetric
// random jitter.
func (b *Backoff) delayFor(failures int64) (time.Duration, error) {
	if failures <= 0 {
		return 0, nil
	}

	base := float64(b.config.Base) * math.Pow(b.config.Factor, float64(failures-1))
	if base > float64(b.config.Max) || math.IsInf(base, 1) {
		base = float64(b.config.Max)
	}

	d := time.Duration(base)
	if b.config.JitterFactor > 0 {
		jitter, err := randomJitter(time.Duration(b.config.JitterFactor * base))
		if err != nil {
			return 0, err
		}
		d += jitter
	}
	if d < 0 {
		d = 0
	}

	return d, nil
}

func (b *Backoff) key(ip string) string {
	return b.store.Key("auth", "delay", ip)
}

func randomJitter(jitterRange time.Duration) (time.Duration, error) {
	if jitterRange <= 0 {
		return 0, nil
	}

	max := jitterRange.Nanoseconds()
	if max > (math.MaxInt64-1)/2 {
		return 0, errors.New("jitter range too large")
	}
	span := max*2 + 1

	n, err := rand.Int(rand.Reader, big.NewInt(span))
	if err != nil {
		return 0, err
	}

	return time.Duration(n.Int64() - max), nil
}
