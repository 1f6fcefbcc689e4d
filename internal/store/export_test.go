package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	src := newFixture(t, 2, nil)
	src.put(t, "first", PutParams{Type: "fact", Importance: ptr(0.3), Tags: []string{"a"}, Source: "notes"}, 1, 0)
	src.clock.Advance(time.Second)
	src.put(t, "second", PutParams{Type: "chat"}, 0, 1)

	records, err := src.store.ExportAll(ctx, "")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "first", records[0].Content)
	assert.Equal(t, "second", records[1].Content)

	facts, err := src.store.ExportAll(ctx, "fact")
	require.NoError(t, err)
	require.Len(t, facts, 1)

	dst := newFixture(t, 2, nil)
	dst.emb.set("first", 1, 0)
	dst.emb.set("second", 0, 1)
	records = append(records, ExportRecord{ID: "blank", Content: "  "})
	n, err := dst.store.Import(ctx, records)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := dst.store.List(ctx, ListParams{Type: "fact"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "first", got[0].Content)
	assert.Equal(t, 0.3, got[0].Importance)
	assert.Equal(t, []string{"a"}, got[0].Tags)
	assert.Equal(t, "notes", got[0].Source)
	assert.False(t, got[0].LowConfidence)
}
