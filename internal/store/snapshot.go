package store

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rcliao/tiermem/internal/index"
	"github.com/rcliao/tiermem/internal/model"
	"github.com/rcliao/tiermem/internal/snapshot"
)

// Snapshot copies the full store state for persistence.
func (s *Store) Snapshot() *snapshot.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := snapshot.New()
	snap.SavedAt = s.now()
	snap.Memories = make([]model.Memory, 0, len(s.memories))
	for _, m := range s.memories {
		snap.Memories = append(snap.Memories, m.Clone())
	}
	slices.SortFunc(snap.Memories, func(a, b model.Memory) int {
		return strings.Compare(a.ID, b.ID)
	})
	for id, v := range s.index.All() {
		snap.Embeddings[id] = v
	}
	for id, md := range s.meta {
		snap.Metadata[id] = md
	}
	for t, set := range s.tiers {
		if len(set) == 0 {
			continue
		}
		ids := make([]string, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		snap.Tiers[t] = ids
	}
	for id, at := range s.working {
		snap.Working[id] = at
	}
	return snap
}

// Restore replaces the store contents with snap. An inconsistent snapshot is
// rejected and the store is left untouched.
func (s *Store) Restore(snap *snapshot.Snapshot) error {
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("restore: %w", err)
	}

	memories := make(map[string]*model.Memory, len(snap.Memories))
	ix := index.New()
	for _, m := range snap.Memories {
		m := m.Clone()
		memories[m.ID] = &m
		ix.Insert(m.ID, snap.Embeddings[m.ID])
		if n := len(snap.Embeddings[m.ID]); s.embedder != nil && n != s.embedder.Dims() {
			s.logger.Warn("restored embedding dims differ from provider", "id", m.ID, "dims", n, "want", s.embedder.Dims())
		}
	}
	tiers := make(map[model.Tier]map[string]struct{}, len(model.PrimaryTiers))
	for _, t := range model.PrimaryTiers {
		tiers[t] = make(map[string]struct{}, len(snap.Tiers[t]))
		for _, id := range snap.Tiers[t] {
			tiers[t][id] = struct{}{}
		}
	}
	working := make(map[string]time.Time, len(snap.Working))
	for id, at := range snap.Working {
		working[id] = at
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.memories = memories
	s.tiers = tiers
	s.working = working
	s.index = ix
	s.meta = make(map[string]model.Metadata, len(memories))
	for id := range memories {
		s.syncMeta(id)
	}
	return nil
}
