package store

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/rcliao/tiermem/internal/model"
)

// CleanupReport describes one cleanup pass.
type CleanupReport struct {
	ExpiredWorking int      `json:"expired_working"`
	Evicted        []string `json:"evicted"`
}

// Cleanup drops stale working-overlay entries and evicts short-term memories
// that are both old and unimportant.
func (s *Store) Cleanup(_ context.Context) CleanupReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	rep := CleanupReport{Evicted: []string{}}

	for id, at := range s.working {
		if now.Sub(at) > s.settings.Rules.WorkingWindow {
			delete(s.working, id)
			s.syncMeta(id)
			rep.ExpiredWorking++
		}
	}

	for id := range s.tiers[model.TierShortTerm] {
		if s.stale(s.memories[id], now) {
			rep.Evicted = append(rep.Evicted, id)
		}
	}
	slices.Sort(rep.Evicted)
	for _, id := range rep.Evicted {
		s.remove(id)
	}

	s.evictions += len(rep.Evicted)
	s.lastCleanup = now
	if rep.ExpiredWorking > 0 || len(rep.Evicted) > 0 {
		s.logger.Info("cleanup", "expired_working", rep.ExpiredWorking, "evicted", len(rep.Evicted))
	}
	return rep
}

// Merge records one consolidation.
type Merge struct {
	Survivor   string  `json:"survivor"`
	Absorbed   string  `json:"absorbed"`
	Similarity float64 `json:"similarity"`
}

// CompressReport describes one compression pass.
type CompressReport struct {
	Skipped bool    `json:"skipped"`
	Count   int     `json:"count"`
	Merges  []Merge `json:"merges"`
}

// Compress merges near-duplicate memories once the store holds more than
// the trigger count. Pairs are examined in (CreatedAt, ID) order; the earlier
// memory survives and each memory takes part in at most one merge per pass.
func (s *Store) Compress(_ context.Context) CompressReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	rep := CompressReport{Count: len(s.memories), Merges: []Merge{}}
	if len(s.memories) <= s.settings.CompressionTrigger {
		rep.Skipped = true
		return rep
	}

	ordered := make([]*model.Memory, 0, len(s.memories))
	for _, m := range s.memories {
		ordered = append(ordered, m)
	}
	slices.SortFunc(ordered, func(a, b *model.Memory) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	merged := make(map[string]bool)
	for i, a := range ordered {
		if merged[a.ID] {
			continue
		}
		for _, b := range ordered[i+1:] {
			if merged[b.ID] {
				continue
			}
			sim := s.index.Similarity(a.ID, b.ID)
			if sim <= s.settings.MergeSimilarity {
				continue
			}
			s.merge(a, b)
			merged[a.ID], merged[b.ID] = true, true
			rep.Merges = append(rep.Merges, Merge{Survivor: a.ID, Absorbed: b.ID, Similarity: sim})
			break
		}
	}

	now := s.now()
	for id := range merged {
		if m, ok := s.memories[id]; ok {
			s.place(m, now)
			s.syncMeta(id)
		}
	}

	s.merges += len(rep.Merges)
	s.lastCompression = now
	if len(rep.Merges) > 0 {
		s.logger.Info("compression", "merges", len(rep.Merges), "remaining", len(s.memories))
	}
	return rep
}

// merge folds other into survivor and deletes other. The survivor keeps its
// own embedding.
func (s *Store) merge(survivor, other *model.Memory) {
	survivor.Content = survivor.Content + "\n\n" + other.Content
	survivor.Importance = max(survivor.Importance, other.Importance)

	sources := survivor.MergedFrom
	if len(sources) == 0 {
		sources = []string{survivor.ID}
	}
	sources = append(sources, other.ID)
	sources = append(sources, other.MergedFrom...)
	survivor.MergedFrom = dedupe(sources)

	survivor.Tags = model.NormalizeTags(append(slices.Clone(survivor.Tags), other.Tags...))
	survivor.AccessCount += other.AccessCount
	if other.LastAccessedAt.After(survivor.LastAccessedAt) {
		survivor.LastAccessedAt = other.LastAccessedAt
	}
	if survivor.Source == "" {
		survivor.Source = other.Source
	}

	s.remove(other.ID)
}

// dedupe drops repeated ids, keeping first occurrences in order.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// stale reports whether a short-term memory is due for eviction at now.
func (s *Store) stale(m *model.Memory, now time.Time) bool {
	return now.Sub(m.CreatedAt) > s.settings.StaleAfter && m.Importance < s.settings.ImportanceCutoff
}
