package store

import (
	"context"
	"fmt"
	"strings"
)

// ExportRecord is the portable form of a memory. Embeddings are not carried;
// importing re-embeds the content with the active provider.
type ExportRecord struct {
	ID         string   `json:"id"`
	Content    string   `json:"content"`
	Type       string   `json:"type,omitempty"`
	Importance float64  `json:"importance"`
	Tags       []string `json:"tags,omitempty"`
	Source     string   `json:"source,omitempty"`
}

// ExportAll returns every memory in creation order, optionally filtered by type.
func (s *Store) ExportAll(ctx context.Context, typ string) ([]ExportRecord, error) {
	memories, err := s.List(ctx, ListParams{Type: typ})
	if err != nil {
		return nil, err
	}
	out := make([]ExportRecord, 0, len(memories))
	for i := len(memories) - 1; i >= 0; i-- {
		m := memories[i]
		out = append(out, ExportRecord{
			ID:         m.ID,
			Content:    m.Content,
			Type:       m.Type,
			Importance: m.Importance,
			Tags:       m.Tags,
			Source:     m.Source,
		})
	}
	return out, nil
}

// Import stores records from an export as new memories. Records with empty
// content are skipped.
func (s *Store) Import(ctx context.Context, records []ExportRecord) (int, error) {
	imported := 0
	for _, r := range records {
		if strings.TrimSpace(r.Content) == "" {
			continue
		}
		importance := r.Importance
		_, err := s.Put(ctx, PutParams{
			Content:    r.Content,
			Type:       r.Type,
			Importance: &importance,
			Tags:       r.Tags,
			Source:     r.Source,
		})
		if err != nil {
			return imported, fmt.Errorf("import %s: %w", r.ID, err)
		}
		imported++
	}
	return imported, nil
}
