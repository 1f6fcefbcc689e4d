package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/rcliao/tiermem/internal/config"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Vector
		expected float64
		delta    float64
	}{
		{"identical", Vector{1, 0, 0}, Vector{1, 0, 0}, 1.0, 0.001},
		{"orthogonal", Vector{1, 0, 0}, Vector{0, 1, 0}, 0.0, 0.001},
		{"opposite", Vector{1, 0, 0}, Vector{-1, 0, 0}, -1.0, 0.001},
		{"similar", Vector{1, 1, 0}, Vector{1, 0, 0}, 0.707, 0.01},
		{"near duplicate", Vector{1, 0}, Vector{0.99, 0.14}, 0.990, 0.001},
		{"empty", Vector{}, Vector{}, 0.0, 0.001},
		{"different lengths", Vector{1, 0}, Vector{1, 0, 0}, 0.0, 0.001},
		{"zero vector", Vector{0, 0, 0}, Vector{1, 0, 0}, 0.0, 0.001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.expected) > tt.delta {
				t.Errorf("CosineSimilarity(%v, %v) = %f, want %f (±%f)", tt.a, tt.b, got, tt.expected, tt.delta)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	v := Normalize(Vector{3, 4})
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("Normalize = %v, want [0.6 0.8]", v)
	}
	zero := Normalize(Vector{0, 0})
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("zero vector changed: %v", zero)
	}
}

func TestHashEmbedder(t *testing.T) {
	ctx := context.Background()
	e := NewHashEmbedder(256)

	a, err := e.Embed(ctx, "Go is a compiled language")
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != 256 {
		t.Fatalf("expected 256 dims, got %d", len(a))
	}
	same, _ := e.Embed(ctx, "go IS a compiled language!")
	if sim := CosineSimilarity(a, same); math.Abs(sim-1) > 1e-6 {
		t.Errorf("same word bag should score 1, got %f", sim)
	}
	other, _ := e.Embed(ctx, "rust borrow checker")
	if sim := CosineSimilarity(a, other); sim > 0.5 {
		t.Errorf("unrelated text scored %f", sim)
	}
	if _, err := e.Embed(ctx, "   ...  "); err == nil {
		t.Error("expected error for text without tokens")
	}
}

func TestNewFromConfig(t *testing.T) {
	tests := []struct {
		provider string
		wantErr  bool
	}{
		{"", false},
		{"hash", false},
		{"openai", false},
		{"ollama", false},
		{"cohere", true},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			e, err := NewFromConfig(config.Embedding{Provider: tt.provider, Dims: 64, BaseURL: ""})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && e == nil {
				t.Fatal("expected an embedder")
			}
		})
	}
}

func TestNewFromConfigResolvesDims(t *testing.T) {
	withProvider := func(provider, model string, dims int) config.Embedding {
		cfg := config.Default().Embedding
		cfg.Provider, cfg.Model, cfg.Dims = provider, model, dims
		return cfg
	}
	tests := []struct {
		name     string
		cfg      config.Embedding
		wantDims int
		wantErr  bool
	}{
		{"hash default", config.Default().Embedding, DefaultDims, false},
		{"hash sized", withProvider("hash", "", 64), 64, false},
		{"ollama default", withProvider("ollama", "", 0), 768, false},
		{"ollama minilm", withProvider("ollama", "all-minilm", 0), 384, false},
		{"ollama tagged", withProvider("ollama", "mxbai-embed-large:latest", 0), 1024, false},
		{"ollama matching size", withProvider("ollama", "nomic-embed-text", 768), 768, false},
		{"ollama wrong size", withProvider("ollama", "nomic-embed-text", 3072), 0, true},
		{"ollama unknown model", withProvider("ollama", "my-embedder", 0), 0, true},
		{"ollama unknown model sized", withProvider("ollama", "my-embedder", 512), 512, false},
		{"openai default", withProvider("openai", "", 0), DefaultDims, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewFromConfig(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if e.Dims() != tt.wantDims {
				t.Fatalf("dims = %d, want %d", e.Dims(), tt.wantDims)
			}
		})
	}
}
