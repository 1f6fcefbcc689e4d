package store

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextBasic(t *testing.T) {
	f := newFixture(t, 2, nil)
	f.put(t, "Go is a statically typed language", PutParams{}, 1, 0)
	f.put(t, "Rust is a systems language with borrow checker", PutParams{}, 1, 0.1)
	f.put(t, "Lunch is at noon", PutParams{}, 0, 1)
	f.emb.set("language", 1, 0)

	result, err := f.store.Context(context.Background(), ContextParams{Query: "language", Budget: 4000})
	require.NoError(t, err)
	assert.Equal(t, 4000, result.Budget)
	require.Len(t, result.Memories, 2)
	for _, m := range result.Memories {
		assert.False(t, m.Excerpt)
		assert.NotContains(t, m.Content, "Lunch")
	}
}

func TestContextBudgetLimit(t *testing.T) {
	f := newFixture(t, 2, nil)
	long := strings.Repeat("This is a line about programming languages and their features. ", 100)
	f.put(t, long, PutParams{Importance: ptr(0.1)}, 1, 0)
	f.put(t, "Go is great for programming", PutParams{Importance: ptr(0.9)}, 1, 0)
	f.emb.set("programming", 1, 0)

	result, err := f.store.Context(context.Background(), ContextParams{Query: "programming", Budget: 100})
	require.NoError(t, err)
	require.Len(t, result.Memories, 2)
	assert.Equal(t, "Go is great for programming", result.Memories[0].Content)
	assert.True(t, result.Memories[1].Excerpt)
	assert.True(t, strings.HasSuffix(result.Memories[1].Content, "..."))
	assert.LessOrEqual(t, result.Used, 101)
}

func TestContextEmpty(t *testing.T) {
	f := newFixture(t, 2, nil)
	f.emb.set("nothing", 1, 0)

	result, err := f.store.Context(context.Background(), ContextParams{Query: "nothing"})
	require.NoError(t, err)
	assert.Equal(t, 4000, result.Budget)
	assert.Empty(t, result.Memories)
	assert.Equal(t, 0, result.Used)
}

func TestTruncateUTF8(t *testing.T) {
	assert.Equal(t, "héllo", truncateUTF8("héllo", 10))
	assert.Equal(t, "h", truncateUTF8("héllo", 2))
	assert.Equal(t, "hé", truncateUTF8("héllo", 3))
}
