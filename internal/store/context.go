package store

import (
	"context"
	"math"
	"sort"
	"unicode/utf8"
)

// ContextParams holds parameters for context assembly.
type ContextParams struct {
	Query string
	Type  string
	// MinSimilarity overrides the retrieval threshold when set.
	MinSimilarity *float64
	Budget        int // max tokens in output (rough proxy: 1 token ≈ 4 chars)
}

// ContextMemory is a scored memory for context output.
type ContextMemory struct {
	ID         string  `json:"id"`
	Type       string  `json:"type,omitempty"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
	Score      float64 `json:"score"`
	Excerpt    bool    `json:"excerpt,omitempty"`
}

// ContextResult is the assembled context response.
type ContextResult struct {
	Budget   int             `json:"budget"`
	Used     int             `json:"used"`
	Memories []ContextMemory `json:"memories"`
}

// Context assembles relevant memories within a token budget.
func (s *Store) Context(ctx context.Context, p ContextParams) (*ContextResult, error) {
	budget := p.Budget
	if budget <= 0 {
		budget = 4000
	}
	charBudget := budget * 4

	results, err := s.Retrieve(ctx, RetrieveParams{
		Query:         p.Query,
		Type:          p.Type,
		MinSimilarity: p.MinSimilarity,
		Limit:         50,
	})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return &ContextResult{Budget: budget, Used: 0, Memories: []ContextMemory{}}, nil
	}

	now := s.now()
	type scored struct {
		r     Result
		score float64
	}
	candidates := make([]scored, 0, len(results))
	for _, r := range results {
		// Recency: exponential decay over days.
		age := now.Sub(r.CreatedAt).Hours() / 24.0
		recency := math.Exp(-0.1 * age)

		// Access frequency: log scale
		accessFreq := 0.0
		if r.AccessCount > 0 {
			accessFreq = math.Min(math.Log(float64(r.AccessCount)+1)/math.Log(100), 1)
		}

		score := r.Similarity*0.4 + recency*0.2 + r.Importance*0.2 + accessFreq*0.2
		candidates = append(candidates, scored{r: r, score: score})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	// Greedy packing into budget
	result := &ContextResult{Budget: budget, Memories: []ContextMemory{}}
	used := 0
	for _, c := range candidates {
		cm := ContextMemory{
			ID:         c.r.ID,
			Type:       c.r.Type,
			Content:    c.r.Content,
			Similarity: math.Round(c.r.Similarity*1000) / 1000,
			Score:      math.Round(c.score*100) / 100,
		}
		contentLen := len(c.r.Content)
		if used+contentLen <= charBudget {
			result.Memories = append(result.Memories, cm)
			used += contentLen
			continue
		}
		if remaining := charBudget - used; remaining >= 100 {
			cm.Content = truncateUTF8(cm.Content, remaining) + "..."
			cm.Excerpt = true
			result.Memories = append(result.Memories, cm)
			used += len(cm.Content)
		}
		break
	}

	result.Used = used / 4
	return result, nil
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
