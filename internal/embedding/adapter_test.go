package embedding

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEmbedder struct {
	dims  int
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	v := make(Vector, s.dims)
	v[len(text)%s.dims] = 1
	return v, nil
}

func (s *stubEmbedder) Dims() int { return s.dims }

func TestAdapterPassesThrough(t *testing.T) {
	a := NewAdapter(&stubEmbedder{dims: 4}, 4)
	v, conf := a.Embed(context.Background(), "ab")
	assert.False(t, conf.Degraded)
	assert.Equal(t, Vector{0, 0, 1, 0}, v)
}

func TestAdapterFallsBackOnError(t *testing.T) {
	var hooked error
	a := NewAdapter(&stubEmbedder{dims: 8, err: errors.New("boom")}, 8,
		WithFallbackHook(func(err error) { hooked = err }))

	v, conf := a.Embed(context.Background(), "anything")
	require.True(t, conf.Degraded)
	assert.EqualError(t, conf.Err, "boom")
	assert.Len(t, v, 8)
	assert.Equal(t, conf.Err, hooked)
}

func TestAdapterFallsBackOnDimensionMismatch(t *testing.T) {
	a := NewAdapter(&stubEmbedder{dims: 4}, 16)
	v, conf := a.Embed(context.Background(), "x")
	assert.True(t, conf.Degraded)
	assert.Len(t, v, 16)
}

func TestAdapterTimeout(t *testing.T) {
	a := NewAdapter(&stubEmbedder{dims: 4, delay: time.Second}, 4, WithTimeout(20*time.Millisecond))
	start := time.Now()
	_, conf := a.Embed(context.Background(), "slow")
	assert.True(t, conf.Degraded)
	assert.ErrorIs(t, conf.Err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestAdapterWithoutProvider(t *testing.T) {
	a := NewAdapter(nil, 3)
	v, conf := a.Embed(context.Background(), "x")
	assert.True(t, conf.Degraded)
	assert.Len(t, v, 3)
}

func TestAdapterPoolsLongInput(t *testing.T) {
	stub := &stubEmbedder{dims: 32}
	a := NewAdapter(stub, 32, WithMaxInputChars(50))
	text := strings.Repeat("word ", 10) + "\n\n" + strings.Repeat("other ", 12)

	v, conf := a.Embed(context.Background(), text)
	require.False(t, conf.Degraded)
	assert.Len(t, v, 32)
	assert.Greater(t, int(stub.calls.Load()), 1, "long text should be embedded per window")
}

func TestAdapterCache(t *testing.T) {
	stub := &stubEmbedder{dims: 4}
	a := NewAdapter(stub, 4, WithCache(1<<20))
	defer a.Close()

	a.Embed(context.Background(), "cached")
	a.cache.Wait()
	a.Embed(context.Background(), "cached")
	assert.Equal(t, int32(1), stub.calls.Load())
}
