// Package snapshot persists the full memory store to a durable backend and
// restores it on startup.
package snapshot

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/charmbracelet/log"

	"github.com/rcliao/tiermem/internal/config"
	"github.com/rcliao/tiermem/internal/model"
)

// FormatVersion is bumped whenever the on-disk layout changes.
const FormatVersion = 1

var (
	// ErrNotExist is returned by a Backend that has nothing stored yet.
	ErrNotExist = errors.New("snapshot does not exist")
	// ErrCorrupt marks a snapshot that could not be decoded or is inconsistent.
	ErrCorrupt = errors.New("snapshot is corrupt")
)

// Snapshot is a point-in-time copy of every memory, its embedding, its
// metadata record and tier memberships.
type Snapshot struct {
	Version    int                       `json:"version"`
	SavedAt    time.Time                 `json:"saved_at"`
	Memories   []model.Memory            `json:"memories"`
	Embeddings map[string][]float32      `json:"embeddings"`
	Metadata   map[string]model.Metadata `json:"metadata"`
	Tiers      map[model.Tier][]string   `json:"tiers"`
	// Working maps overlay members to the time they entered the overlay.
	Working map[string]time.Time `json:"working"`
}

// New returns an empty snapshot of the current format.
func New() *Snapshot {
	return &Snapshot{
		Version:    FormatVersion,
		Embeddings: make(map[string][]float32),
		Metadata:   make(map[string]model.Metadata),
		Tiers:      make(map[model.Tier][]string),
		Working:    make(map[string]time.Time),
	}
}

// Validate checks that every memory has an embedding and a metadata record,
// and sits in exactly one primary tier.
func (s *Snapshot) Validate() error {
	if s.Version != FormatVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrCorrupt, s.Version)
	}
	seen := make(map[string]int, len(s.Memories))
	for _, m := range s.Memories {
		if m.ID == "" {
			return fmt.Errorf("%w: memory without id", ErrCorrupt)
		}
		if _, dup := seen[m.ID]; dup {
			return fmt.Errorf("%w: duplicate memory %s", ErrCorrupt, m.ID)
		}
		seen[m.ID] = 0
		if len(s.Embeddings[m.ID]) == 0 {
			return fmt.Errorf("%w: memory %s has no embedding", ErrCorrupt, m.ID)
		}
		if _, ok := s.Metadata[m.ID]; !ok {
			return fmt.Errorf("%w: memory %s has no metadata", ErrCorrupt, m.ID)
		}
	}
	for t, ids := range s.Tiers {
		if !t.IsPrimary() {
			return fmt.Errorf("%w: unknown tier %q", ErrCorrupt, t)
		}
		for _, id := range ids {
			n, ok := seen[id]
			if !ok {
				return fmt.Errorf("%w: tier %s lists unknown memory %s", ErrCorrupt, t, id)
			}
			seen[id] = n + 1
		}
	}
	for id, n := range seen {
		if n != 1 {
			return fmt.Errorf("%w: memory %s is in %d primary tiers", ErrCorrupt, id, n)
		}
		if meta := s.Metadata[id]; !slices.Contains(s.Tiers[meta.Tier], id) {
			return fmt.Errorf("%w: metadata tier of %s disagrees with tier sets", ErrCorrupt, id)
		}
	}
	for id := range s.Working {
		if _, ok := seen[id]; !ok {
			return fmt.Errorf("%w: working overlay lists unknown memory %s", ErrCorrupt, id)
		}
	}
	return nil
}

// Backend is the durable store collaborator.
type Backend interface {
	Write(ctx context.Context, s *Snapshot) error
	// Read returns ErrNotExist when nothing has been written yet.
	Read(ctx context.Context) (*Snapshot, error)
	Close() error
}

// Open creates the backend selected by cfg.Driver. logger may be nil.
func Open(ctx context.Context, cfg config.Persistence, logger *log.Logger) (Backend, error) {
	if logger == nil {
		logger = log.Default()
	}
	switch cfg.Driver {
	case "", "sqlite":
		b, err := NewSQLiteBackend(cfg.Path)
		if err != nil {
			return nil, err
		}
		if moved := b.Quarantined(); moved != "" {
			logger.Warn("snapshot database unreadable, moved aside and starting empty", "path", cfg.Path, "moved_to", moved)
		}
		return b, nil
	case "file":
		return NewFileBackend(cfg.Path), nil
	case "postgres":
		b, err := NewPostgresBackend(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown persistence driver %q", cfg.Driver)
	}
}

// Source is what the gateway snapshots and restores.
type Source interface {
	Snapshot() *Snapshot
	Restore(*Snapshot) error
}

// Gateway moves snapshots between a Source and a Backend.
type Gateway struct {
	backend Backend
	logger  *log.Logger
	onSave  func(error)
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) GatewayOption {
	return func(g *Gateway) { g.logger = l }
}

// WithSaveHook is called after every save attempt with its outcome.
func WithSaveHook(fn func(error)) GatewayOption {
	return func(g *Gateway) { g.onSave = fn }
}

// NewGateway wraps backend.
func NewGateway(backend Backend, opts ...GatewayOption) *Gateway {
	g := &Gateway{backend: backend, logger: log.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Load restores dst from the backend and returns how many memories were
// restored. A missing or corrupt snapshot is not fatal: dst stays empty.
func (g *Gateway) Load(ctx context.Context, dst Source) int {
	snap, err := g.backend.Read(ctx)
	switch {
	case errors.Is(err, ErrNotExist):
		g.logger.Info("no snapshot found, starting empty")
		return 0
	case err != nil:
		g.logger.Warn("snapshot unreadable, starting empty", "err", err)
		return 0
	}
	if err := dst.Restore(snap); err != nil {
		g.logger.Warn("snapshot rejected, starting empty", "err", err)
		return 0
	}
	g.logger.Info("snapshot restored", "memories", len(snap.Memories), "saved_at", snap.SavedAt)
	return len(snap.Memories)
}

// Save writes src to the backend. Failures are logged and returned; the
// in-memory store is unaffected.
func (g *Gateway) Save(ctx context.Context, src Source) error {
	snap := src.Snapshot()
	err := g.backend.Write(ctx, snap)
	if g.onSave != nil {
		g.onSave(err)
	}
	if err != nil {
		g.logger.Error("snapshot save failed", "err", err)
		return fmt.Errorf("save snapshot: %w", err)
	}
	g.logger.Debug("snapshot saved", "memories", len(snap.Memories))
	return nil
}

// Close closes the backend.
func (g *Gateway) Close() error {
	return g.backend.Close()
}

func encodeVector(v []float32) []byte {
	b := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(f))
	}
	return b
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("%w: vector blob of %d bytes", ErrCorrupt, len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
