// Package store holds memories in memory, files each one into a tier and
// retrieves them by embedding similarity.
package store

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/oklog/ulid/v2"

	"github.com/rcliao/tiermem/internal/config"
	"github.com/rcliao/tiermem/internal/embedding"
	"github.com/rcliao/tiermem/internal/index"
	"github.com/rcliao/tiermem/internal/model"
	"github.com/rcliao/tiermem/internal/observability"
	"github.com/rcliao/tiermem/internal/tier"
)

var (
	// ErrNotFound is returned for an unknown memory id.
	ErrNotFound = errors.New("memory not found")
	// ErrEmptyContent is returned when a memory would have no content.
	ErrEmptyContent = errors.New("memory content is empty")
)

// Settings are the thresholds the store applies.
type Settings struct {
	MinSimilarity float64
	Limit         int
	Rules         tier.Rules

	StaleAfter       time.Duration
	ImportanceCutoff float64

	CompressionTrigger int
	MergeSimilarity    float64
}

// DefaultSettings mirrors config.Default.
func DefaultSettings() Settings {
	return SettingsFromConfig(config.Default())
}

// SettingsFromConfig extracts the store thresholds from cfg.
func SettingsFromConfig(cfg config.Config) Settings {
	return Settings{
		MinSimilarity: cfg.Retrieval.MinSimilarity,
		Limit:         cfg.Retrieval.Limit,
		Rules: tier.Rules{
			LongTermImportance: cfg.Tiers.LongTermImportance,
			WorkingWindow:      cfg.Tiers.WorkingWindow,
		},
		StaleAfter:         cfg.Decay.StaleAfter,
		ImportanceCutoff:   cfg.Decay.ImportanceCutoff,
		CompressionTrigger: cfg.Compression.TriggerCount,
		MergeSimilarity:    cfg.Compression.Similarity,
	}
}

// Store is the in-memory record store. All maps and the index are guarded
// by mu as one unit; provider calls happen outside it.
type Store struct {
	mu       sync.RWMutex
	memories map[string]*model.Memory
	meta     map[string]model.Metadata
	tiers    map[model.Tier]map[string]struct{}
	working  map[string]time.Time // id -> last time it entered or was touched in the overlay
	index    *index.Index

	embedder *embedding.Adapter
	settings Settings
	entropy  *ulid.MonotonicEntropy
	now      func() time.Time
	logger   *log.Logger
	metrics  *observability.Metrics

	merges          int
	evictions       int
	lastCleanup     time.Time
	lastCompression time.Time
	stats           Stats
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

func WithSettings(st Settings) Option {
	return func(s *Store) { s.settings = st }
}

// New creates an empty store that embeds through e.
func New(e *embedding.Adapter, opts ...Option) *Store {
	s := &Store{
		embedder: e,
		settings: DefaultSettings(),
		entropy:  ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
		now:      time.Now,
		logger:   log.Default(),
	}
	s.reset()
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) reset() {
	s.memories = make(map[string]*model.Memory)
	s.meta = make(map[string]model.Metadata)
	s.tiers = make(map[model.Tier]map[string]struct{}, len(model.PrimaryTiers))
	for _, t := range model.PrimaryTiers {
		s.tiers[t] = make(map[string]struct{})
	}
	s.working = make(map[string]time.Time)
	s.index = index.New()
}

func (s *Store) newID(now time.Time) string {
	return ulid.MustNew(ulid.Timestamp(now), s.entropy).String()
}

// Len returns the number of stored memories.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.memories)
}

// PutParams holds parameters for storing a memory.
type PutParams struct {
	Content    string
	Type       string
	Importance *float64 // nil means model.DefaultImportance
	Tags       []string
	Source     string
}

// Put embeds and stores a new memory. A provider failure does not fail the
// call; the memory is stored with a fallback vector and LowConfidence set.
func (s *Store) Put(ctx context.Context, p PutParams) (*model.Memory, error) {
	if strings.TrimSpace(p.Content) == "" {
		return nil, ErrEmptyContent
	}
	importance := model.DefaultImportance
	if p.Importance != nil {
		importance = model.ClampImportance(*p.Importance)
	}

	vec, conf := s.embedder.Embed(ctx, p.Content)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	m := &model.Memory{
		ID:             s.newID(now),
		Content:        p.Content,
		Type:           strings.TrimSpace(p.Type),
		CreatedAt:      now,
		LastAccessedAt: now,
		Importance:     importance,
		Tags:           model.NormalizeTags(p.Tags),
		Source:         p.Source,
		LowConfidence:  conf.Degraded,
	}
	s.memories[m.ID] = m
	s.index.Insert(m.ID, vec)
	if s.place(m, now).Working {
		s.working[m.ID] = now
	}
	s.syncMeta(m.ID)

	s.logger.Debug("memory stored", "id", m.ID, "tier", s.meta[m.ID].Tier, "low_confidence", m.LowConfidence)
	out := m.Clone()
	return &out, nil
}

// Get returns a copy of the memory. Reading by id is not an access.
func (s *Store) Get(_ context.Context, id string) (*model.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memories[id]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	out := m.Clone()
	return &out, nil
}

// Metadata returns the bookkeeping record for id.
func (s *Store) Metadata(id string) (model.Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	md, ok := s.meta[id]
	if !ok {
		return model.Metadata{}, fmt.Errorf("metadata %s: %w", id, ErrNotFound)
	}
	return md, nil
}

// UpdateParams carries the fields to change. Nil fields are left alone;
// a non-nil empty Tags slice clears the tags.
type UpdateParams struct {
	Content    *string
	Type       *string
	Importance *float64
	Tags       []string
	Source     *string
}

// Update changes a memory in place and re-files it. Changed content is
// re-embedded.
func (s *Store) Update(ctx context.Context, id string, p UpdateParams) (*model.Memory, error) {
	if p.Content != nil && strings.TrimSpace(*p.Content) == "" {
		return nil, ErrEmptyContent
	}

	s.mu.RLock()
	cur, ok := s.memories[id]
	var stale bool
	if ok && p.Content != nil {
		stale = *p.Content != cur.Content
	}
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("update %s: %w", id, ErrNotFound)
	}

	var pe *pendingEmbedding
	if stale {
		pe = s.embedContent(ctx, *p.Content)
	}
	return s.applyUpdate(ctx, id, p, pe)
}

// pendingEmbedding is a vector computed outside the lock for new content.
type pendingEmbedding struct {
	vec  embedding.Vector
	conf embedding.Confidence
}

func (s *Store) embedContent(ctx context.Context, content string) *pendingEmbedding {
	vec, conf := s.embedder.Embed(ctx, content)
	return &pendingEmbedding{vec: vec, conf: conf}
}

// applyUpdate takes the write lock and applies p. pe is nil when the content
// looked unchanged at read time; if another writer has changed it since, the
// new content is embedded before it is applied.
func (s *Store) applyUpdate(ctx context.Context, id string, p UpdateParams, pe *pendingEmbedding) (*model.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.memories[id]
	if !ok {
		return nil, fmt.Errorf("update %s: %w", id, ErrNotFound)
	}
	if p.Content != nil && *p.Content != m.Content && pe == nil {
		s.mu.Unlock()
		pe = s.embedContent(ctx, *p.Content)
		s.mu.Lock()
		if m, ok = s.memories[id]; !ok {
			return nil, fmt.Errorf("update %s: %w", id, ErrNotFound)
		}
	}
	if p.Content != nil && *p.Content != m.Content {
		m.Content = *p.Content
		m.LowConfidence = pe.conf.Degraded
		s.index.Replace(id, pe.vec)
	}
	if p.Type != nil {
		m.Type = strings.TrimSpace(*p.Type)
	}
	if p.Importance != nil {
		m.Importance = model.ClampImportance(*p.Importance)
	}
	if p.Tags != nil {
		m.Tags = model.NormalizeTags(p.Tags)
	}
	if p.Source != nil {
		m.Source = *p.Source
	}

	now := s.now()
	s.place(m, now)
	s.working[id] = now
	s.syncMeta(id)

	out := m.Clone()
	return &out, nil
}

// Delete removes a memory from every structure.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.memories[id]; !ok {
		return fmt.Errorf("delete %s: %w", id, ErrNotFound)
	}
	s.remove(id)
	return nil
}

// ListParams holds parameters for listing memories.
type ListParams struct {
	Tier  model.Tier // empty means every tier
	Type  string
	Limit int // 0 means no limit
}

// List returns memories newest first.
func (s *Store) List(_ context.Context, p ListParams) ([]model.Memory, error) {
	if p.Tier != "" && !p.Tier.IsPrimary() && p.Tier != model.TierWorking {
		return nil, fmt.Errorf("unknown tier %q", p.Tier)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Memory, 0)
	for id, m := range s.memories {
		if !s.inTier(id, p.Tier) {
			continue
		}
		if p.Type != "" && !strings.EqualFold(m.Type, p.Type) {
			continue
		}
		out = append(out, m.Clone())
	}
	slices.SortFunc(out, func(a, b model.Memory) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	if p.Limit > 0 && len(out) > p.Limit {
		out = out[:p.Limit]
	}
	return out, nil
}

func (s *Store) inTier(id string, t model.Tier) bool {
	switch {
	case t == "":
		return true
	case t == model.TierWorking:
		_, ok := s.working[id]
		return ok
	default:
		_, ok := s.tiers[t][id]
		return ok
	}
}

// place files m into exactly one primary tier. Callers hold the write lock.
func (s *Store) place(m *model.Memory, now time.Time) tier.Placement {
	p := s.settings.Rules.Assign(m.Type, m.Importance, m.CreatedAt, now)
	for t, set := range s.tiers {
		if t != p.Primary {
			delete(set, m.ID)
		}
	}
	s.tiers[p.Primary][m.ID] = struct{}{}
	return p
}

// syncMeta rebuilds the metadata record of id from the memory, its tier and
// the overlay.
func (s *Store) syncMeta(id string) {
	m := s.memories[id]
	md := model.Metadata{
		CreatedAt:      m.CreatedAt,
		LastAccessedAt: m.LastAccessedAt,
		AccessCount:    m.AccessCount,
	}
	for _, t := range model.PrimaryTiers {
		if _, ok := s.tiers[t][id]; ok {
			md.Tier = t
			break
		}
	}
	_, md.Working = s.working[id]
	s.meta[id] = md
}

func (s *Store) remove(id string) {
	delete(s.memories, id)
	delete(s.meta, id)
	for _, set := range s.tiers {
		delete(set, id)
	}
	delete(s.working, id)
	s.index.Remove(id)
}
