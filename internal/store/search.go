package store

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/rcliao/tiermem/internal/model"
)

// RetrieveParams holds parameters for similarity retrieval.
type RetrieveParams struct {
	Query string
	Limit int // 0 means the configured default
	Type  string
	// MinSimilarity overrides the configured threshold when set.
	MinSimilarity *float64
	// Since and Until bound CreatedAt inclusively; zero values are open.
	Since, Until   time.Time
	IncludeContext bool
}

// Result is a retrieved memory with its score.
type Result struct {
	model.Memory
	Similarity float64         `json:"similarity"`
	Context    *model.Metadata `json:"context,omitempty"`
}

// Retrieve returns the memories most similar to the query, best first.
// Every returned memory counts as accessed once.
func (s *Store) Retrieve(ctx context.Context, p RetrieveParams) ([]Result, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveRetrieve(time.Since(start)) }()

	limit := p.Limit
	if limit <= 0 {
		limit = s.settings.Limit
	}
	minSim := s.settings.MinSimilarity
	if p.MinSimilarity != nil {
		minSim = *p.MinSimilarity
	}

	query, conf := s.embedder.Embed(ctx, p.Query)
	if conf.Degraded {
		s.logger.Warn("query embedding unavailable, returning no results", "err", conf.Err)
		return []Result{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	type candidate struct {
		m   *model.Memory
		sim float64
	}
	var cands []candidate
	for _, h := range s.index.Scan(query) {
		if h.Similarity < minSim {
			continue
		}
		m := s.memories[h.ID]
		if p.Type != "" && !strings.EqualFold(m.Type, p.Type) {
			continue
		}
		if !p.Since.IsZero() && m.CreatedAt.Before(p.Since) {
			continue
		}
		if !p.Until.IsZero() && m.CreatedAt.After(p.Until) {
			continue
		}
		cands = append(cands, candidate{m: m, sim: h.Similarity})
	}

	slices.SortFunc(cands, func(a, b candidate) int {
		switch {
		case a.sim > b.sim:
			return -1
		case a.sim < b.sim:
			return 1
		}
		if c := b.m.LastAccessedAt.Compare(a.m.LastAccessedAt); c != 0 {
			return c
		}
		return strings.Compare(a.m.ID, b.m.ID)
	})
	if len(cands) > limit {
		cands = cands[:limit]
	}

	now := s.now()
	results := make([]Result, 0, len(cands))
	for _, c := range cands {
		c.m.AccessCount++
		c.m.LastAccessedAt = now
		s.working[c.m.ID] = now
		s.syncMeta(c.m.ID)

		r := Result{Memory: c.m.Clone(), Similarity: c.sim}
		if p.IncludeContext {
			md := s.meta[c.m.ID]
			r.Context = &md
		}
		results = append(results, r)
	}
	return results, nil
}
