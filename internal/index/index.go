// Package index holds memory embeddings and ranks them against a query by
// brute-force cosine similarity.
package index

import (
	"slices"

	"github.com/rcliao/tiermem/internal/embedding"
)

// Hit is a scored index entry.
type Hit struct {
	ID         string
	Similarity float64
}

// Index maps memory ids to embeddings. It is not safe for concurrent use;
// the store serializes access under its own lock.
type Index struct {
	vectors map[string]embedding.Vector
}

// New returns an empty index.
func New() *Index {
	return &Index{vectors: make(map[string]embedding.Vector)}
}

// Insert adds or overwrites the vector for id. The vector is copied.
func (ix *Index) Insert(id string, v embedding.Vector) {
	ix.vectors[id] = slices.Clone(v)
}

// Replace swaps the vector of an existing id and reports whether id existed.
func (ix *Index) Replace(id string, v embedding.Vector) bool {
	if _, ok := ix.vectors[id]; !ok {
		return false
	}
	ix.vectors[id] = slices.Clone(v)
	return true
}

// Remove drops id and reports whether it was present.
func (ix *Index) Remove(id string) bool {
	if _, ok := ix.vectors[id]; !ok {
		return false
	}
	delete(ix.vectors, id)
	return true
}

// Get returns a copy of the vector stored for id.
func (ix *Index) Get(id string) (embedding.Vector, bool) {
	v, ok := ix.vectors[id]
	if !ok {
		return nil, false
	}
	return slices.Clone(v), true
}

// Len returns the number of indexed vectors.
func (ix *Index) Len() int { return len(ix.vectors) }

// Similarity scores two indexed ids against each other.
func (ix *Index) Similarity(a, b string) float64 {
	va, ok := ix.vectors[a]
	if !ok {
		return 0
	}
	vb, ok := ix.vectors[b]
	if !ok {
		return 0
	}
	return embedding.CosineSimilarity(va, vb)
}

// Scan scores every indexed vector against query. Hits come back unordered;
// ranking and thresholds are applied by the caller.
func (ix *Index) Scan(query embedding.Vector) []Hit {
	hits := make([]Hit, 0, len(ix.vectors))
	for id, v := range ix.vectors {
		hits = append(hits, Hit{ID: id, Similarity: embedding.CosineSimilarity(query, v)})
	}
	return hits
}

// All returns a copy of every id → vector pair.
func (ix *Index) All() map[string]embedding.Vector {
	out := make(map[string]embedding.Vector, len(ix.vectors))
	for id, v := range ix.vectors {
		out[id] = slices.Clone(v)
	}
	return out
}
