// Package model defines the core memory data types.
package model

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// DefaultImportance is used when a memory is stored without one.
const DefaultImportance = 0.5

// Memory represents a stored memory entry.
type Memory struct {
	ID             string    `json:"id"`
	Content        string    `json:"content"`
	Type           string    `json:"type"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	AccessCount    int       `json:"access_count"`
	Importance     float64   `json:"importance"`
	Tags           []string  `json:"tags,omitempty"`
	Source         string    `json:"source,omitempty"`
	MergedFrom     []string  `json:"merged_from,omitempty"`
	LowConfidence  bool      `json:"low_confidence,omitempty"`
}

// Clone returns a deep copy so callers never alias store-owned slices.
func (m Memory) Clone() Memory {
	m.Tags = slices.Clone(m.Tags)
	m.MergedFrom = slices.Clone(m.MergedFrom)
	return m
}

// Metadata is the derived bookkeeping kept per memory.
type Metadata struct {
	Tier           Tier      `json:"tier"`
	Working        bool      `json:"working"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	AccessCount    int       `json:"access_count"`
}

// Tier is the category a memory is filed under.
type Tier string

const (
	TierShortTerm Tier = "short-term"
	TierLongTerm  Tier = "long-term"
	TierEpisodic  Tier = "episodic"
	TierSemantic  Tier = "semantic"
	TierWorking   Tier = "working"
)

// PrimaryTiers are the mutually exclusive tiers. Working is an overlay.
var PrimaryTiers = []Tier{TierShortTerm, TierLongTerm, TierEpisodic, TierSemantic}

// IsPrimary reports whether t is one of the exclusive tiers.
func (t Tier) IsPrimary() bool {
	return slices.Contains(PrimaryTiers, t)
}

// ParseTier accepts the canonical names plus a few spellings used on the CLI.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "short-term", "short_term", "shortterm", "short":
		return TierShortTerm, nil
	case "long-term", "long_term", "longterm", "long":
		return TierLongTerm, nil
	case "episodic":
		return TierEpisodic, nil
	case "semantic":
		return TierSemantic, nil
	case "working":
		return TierWorking, nil
	}
	return "", fmt.Errorf("unknown tier %q", s)
}

// ClampImportance pins v into [0,1].
func ClampImportance(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// NormalizeTags trims, drops empties, deduplicates and sorts.
func NormalizeTags(tags []string) []string {
	var out []string
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t != "" {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
