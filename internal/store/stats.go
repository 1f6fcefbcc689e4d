package store

import (
	"time"

	"github.com/rcliao/tiermem/internal/model"
)

// Stats holds aggregate statistics over the store.
type Stats struct {
	Total           int                `json:"total"`
	ByTier          map[model.Tier]int `json:"by_tier"`
	Working         int                `json:"working"`
	Embeddings      int                `json:"embeddings"`
	LowConfidence   int                `json:"low_confidence"`
	AvgImportance   float64            `json:"avg_importance"`
	Merges          int                `json:"merges"`
	Evictions       int                `json:"evictions"`
	LastCleanup     time.Time          `json:"last_cleanup,omitzero"`
	LastCompression time.Time          `json:"last_compression,omitzero"`
	RefreshedAt     time.Time          `json:"refreshed_at,omitzero"`
}

// Stats computes current statistics.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect()
}

// RefreshStats recomputes the statistics, keeps them as the latest snapshot
// and publishes them to the metrics registry.
func (s *Store) RefreshStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.collect()
	s.stats = st
	for t, n := range st.ByTier {
		if t.IsPrimary() {
			s.metrics.SetTierCount(string(t), n)
		}
	}
	s.metrics.SetWorking(st.Working)
	return st
}

// LastStats returns the statistics from the latest RefreshStats.
func (s *Store) LastStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

func (s *Store) collect() Stats {
	st := Stats{
		Total:           len(s.memories),
		ByTier:          make(map[model.Tier]int, len(model.PrimaryTiers)+1),
		Working:         len(s.working),
		Embeddings:      s.index.Len(),
		Merges:          s.merges,
		Evictions:       s.evictions,
		LastCleanup:     s.lastCleanup,
		LastCompression: s.lastCompression,
		RefreshedAt:     s.now(),
	}
	for _, t := range model.PrimaryTiers {
		st.ByTier[t] = len(s.tiers[t])
	}
	st.ByTier[model.TierWorking] = len(s.working)

	var sum float64
	for _, m := range s.memories {
		sum += m.Importance
		if m.LowConfidence {
			st.LowConfidence++
		}
	}
	if st.Total > 0 {
		st.AvgImportance = sum / float64(st.Total)
	}
	return st
}
