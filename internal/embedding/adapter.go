package embedding

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgraph-io/ristretto"

	"github.com/rcliao/tiermem/internal/chunker"
)

// Confidence describes how a vector returned by the Adapter was produced.
type Confidence struct {
	// Degraded is set when the provider failed and the vector is a random
	// placeholder of the right dimensionality.
	Degraded bool
	// Err is the provider failure behind a degraded vector.
	Err error
}

// Adapter isolates callers from provider failures. Embed never fails: a
// timeout, provider error or malformed vector yields a fallback vector.
type Adapter struct {
	embedder      Embedder
	dims          int
	timeout       time.Duration
	maxInputChars int
	cache         *ristretto.Cache
	logger        *log.Logger
	onFallback    func(error)
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithTimeout bounds every provider call.
func WithTimeout(d time.Duration) AdapterOption {
	return func(a *Adapter) { a.timeout = d }
}

// WithCache enables an in-process cache of successful vectors, maxCost bytes.
func WithCache(maxCost int64) AdapterOption {
	return func(a *Adapter) {
		if maxCost <= 0 {
			return
		}
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: max(maxCost/1024, 1000),
			MaxCost:     maxCost,
			BufferItems: 64,
		})
		if err != nil {
			a.logger.Warn("embedding cache disabled", "err", err)
			return
		}
		a.cache = cache
	}
}

// WithMaxInputChars makes the adapter window long text and mean-pool.
func WithMaxInputChars(n int) AdapterOption {
	return func(a *Adapter) { a.maxInputChars = n }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) AdapterOption {
	return func(a *Adapter) { a.logger = l }
}

// WithFallbackHook is called every time a fallback vector is produced.
func WithFallbackHook(fn func(error)) AdapterOption {
	return func(a *Adapter) { a.onFallback = fn }
}

// NewAdapter wraps e. dims is the deployment dimensionality every returned
// vector must have.
func NewAdapter(e Embedder, dims int, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		embedder: e,
		dims:     dims,
		timeout:  10 * time.Second,
		logger:   log.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Dims returns the configured dimensionality.
func (a *Adapter) Dims() int { return a.dims }

// Embed returns a vector for text, falling back to a random vector when the
// provider cannot deliver one.
func (a *Adapter) Embed(ctx context.Context, text string) (Vector, Confidence) {
	if v, ok := a.cached(text); ok {
		return v, Confidence{}
	}

	v, err := a.embed(ctx, text)
	if err == nil && len(v) != a.dims {
		err = fmt.Errorf("provider returned %d dims, want %d", len(v), a.dims)
	}
	if err != nil {
		a.logger.Warn("embedding unavailable, using fallback vector", "err", err, "dims", a.dims)
		if a.onFallback != nil {
			a.onFallback(err)
		}
		return Fallback(a.dims), Confidence{Degraded: true, Err: err}
	}

	if a.cache != nil {
		a.cache.Set(text, v, int64(4*len(v)))
	}
	return v, Confidence{}
}

// Close releases the cache.
func (a *Adapter) Close() {
	if a.cache != nil {
		a.cache.Close()
	}
}

func (a *Adapter) cached(text string) (Vector, bool) {
	if a.cache == nil {
		return nil, false
	}
	v, ok := a.cache.Get(text)
	if !ok {
		return nil, false
	}
	vec, ok := v.(Vector)
	return vec, ok
}

func (a *Adapter) embed(ctx context.Context, text string) (Vector, error) {
	if a.embedder == nil {
		return nil, errors.New("no embedding provider configured")
	}
	if a.maxInputChars <= 0 || len(text) <= a.maxInputChars {
		return a.call(ctx, text)
	}

	windows := chunker.Split(text, a.maxInputChars)
	sum := make(Vector, a.dims)
	for i, w := range windows {
		v, err := a.call(ctx, w.Text)
		if err != nil {
			return nil, fmt.Errorf("window %d: %w", i, err)
		}
		if len(v) != a.dims {
			return nil, fmt.Errorf("window %d: provider returned %d dims, want %d", i, len(v), a.dims)
		}
		for j := range v {
			sum[j] += v[j]
		}
	}
	return Normalize(sum), nil
}

func (a *Adapter) call(ctx context.Context, text string) (Vector, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	return a.embedder.Embed(ctx, text)
}

// Fallback draws a standard-normal vector of length dims.
func Fallback(dims int) Vector {
	v := make(Vector, dims)
	for i := range v {
		v[i] = float32(rand.NormFloat64())
	}
	return v
}
