// Package memory stores regret memories and retrieves them by semantic
// similarity to a new spending intent.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Moneymaker1996/finivo-backend/internal/models"
)

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbedderFactory builds the embedder on first use.
type EmbedderFactory func() (Embedder, error)

// Repo persists memory documents.
type Repo interface {
	AddMemory(ctx context.Context, doc models.MemoryDocument) error
	ListMemories(ctx context.Context, userID int64) ([]models.MemoryDocument, error)
	HasMemory(ctx context.Context, userID int64, content string) (bool, error)
}

const (
	DefaultMinSimilarity = 0.8
	DefaultWindow        = 30 * 24 * time.Hour
	DefaultRecentLimit   = 1
	DefaultSearchLimit   = 5
)

// SearchOptions bounds a recency-filtered search.
type SearchOptions struct {
	MinSimilarity float64
	Window        time.Duration
	Limit         int
}

// DefaultSearchOptions returns a 30 day window, a 0.8 floor and one result.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{MinSimilarity: DefaultMinSimilarity, Window: DefaultWindow, Limit: DefaultRecentLimit}
}

// Service is the single process-wide handle to the memory store. The
// embedder is created lazily the first time it is needed.
type Service struct {
	repo    Repo
	factory EmbedderFactory
	clock   models.Clock

	once     sync.Once
	embedder Embedder
	initErr  error
}

// NewService creates a Service. A nil factory falls back to HashEmbedder.
func NewService(repo Repo, factory EmbedderFactory, clock models.Clock) *Service {
	if factory == nil {
		factory = func() (Embedder, error) { return NewHashEmbedder(DefaultHashDims), nil }
	}
	if clock == nil {
		clock = models.SystemClock{}
	}
	return &Service{repo: repo, factory: factory, clock: clock}
}

func (s *Service) getEmbedder() (Embedder, error) {
	s.once.Do(func() {
		s.embedder, s.initErr = s.factory()
		if s.initErr == nil {
			slog.Debug("memory.Service: embedder initialized", "type", fmt.Sprintf("%T", s.embedder))
		}
	})
	if s.initErr != nil {
		return nil, fmt.Errorf("%w: init embedder: %w", models.ErrCollaboratorUnavailable, s.initErr)
	}
	return s.embedder, nil
}

func (s *Service) embed(ctx context.Context, text string) ([]float32, error) {
	e, err := s.getEmbedder()
	if err != nil {
		return nil, err
	}
	vec, err := e.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: embed: %w", models.ErrCollaboratorUnavailable, err)
	}
	return vec, nil
}

func (s *Service) list(ctx context.Context, userID int64) ([]models.MemoryDocument, error) {
	docs, err := s.repo.ListMemories(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: list memories for user %d: %w", models.ErrCollaboratorUnavailable, userID, err)
	}
	return docs, nil
}

// Store saves content as a regret memory for userID. It returns false
// without error when the user already has a memory with identical content.
// A zero ts uses the current time.
func (s *Service) Store(ctx context.Context, userID int64, content string, ts time.Time) (bool, error) {
	if userID <= 0 {
		return false, models.ErrInvalidUserID
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return false, models.ErrEmptyMemory
	}

	dup, err := s.repo.HasMemory(ctx, userID, content)
	if err != nil {
		return false, fmt.Errorf("%w: check memory for user %d: %w", models.ErrCollaboratorUnavailable, userID, err)
	}
	if dup {
		slog.Info("memory.Service.Store: duplicate memory skipped", "user_id", userID)
		return false, nil
	}

	vec, err := s.embed(ctx, content)
	if err != nil {
		return false, err
	}
	if ts.IsZero() {
		ts = s.clock.Now()
	}
	doc := models.MemoryDocument{
		ID:        uuid.NewString(),
		UserID:    userID,
		Content:   content,
		Embedding: vec,
		Timestamp: ts.UTC(),
	}
	if err := s.repo.AddMemory(ctx, doc); err != nil {
		return false, fmt.Errorf("%w: add memory for user %d: %w", models.ErrCollaboratorUnavailable, userID, err)
	}
	slog.Info("memory.Service.Store: memory stored", "user_id", userID, "id", doc.ID)
	return true, nil
}

// SearchRecent returns the user's memories from within opts.Window whose
// similarity to query is at least opts.MinSimilarity, best first.
func (s *Service) SearchRecent(ctx context.Context, userID int64, query string, opts SearchOptions) ([]models.RegretMemory, error) {
	if opts.MinSimilarity <= 0 {
		opts.MinSimilarity = DefaultMinSimilarity
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultRecentLimit
	}
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	docs, err := s.list(ctx, userID)
	if err != nil {
		return nil, err
	}
	cutoff := s.clock.Now().Add(-opts.Window)
	recent := docs[:0:0]
	for _, d := range docs {
		if !d.Timestamp.Before(cutoff) {
			recent = append(recent, d)
		}
	}
	if len(recent) == 0 {
		return nil, nil
	}

	ranked, err := s.rank(ctx, query, recent)
	if err != nil {
		return nil, err
	}
	var out []models.RegretMemory
	for _, m := range ranked {
		if m.Similarity < opts.MinSimilarity {
			break
		}
		out = append(out, m)
		if len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

// Search returns up to limit of the user's memories ranked by similarity to
// query, with duplicate contents collapsed.
func (s *Service) Search(ctx context.Context, userID int64, query string, limit int) ([]models.RegretMemory, error) {
	if strings.TrimSpace(query) == "" {
		return nil, models.ErrEmptyQuery
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	docs, err := s.list(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	ranked, err := s.rank(ctx, query, docs)
	if err != nil {
		return nil, err
	}
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// rank scores docs against query, drops repeated contents and sorts by
// similarity descending, newest first on ties.
func (s *Service) rank(ctx context.Context, query string, docs []models.MemoryDocument) ([]models.RegretMemory, error) {
	qvec, err := s.embed(ctx, query)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	out := make([]models.RegretMemory, 0, len(docs))
	for _, d := range docs {
		if seen[d.Content] {
			continue
		}
		sim, err := CosineSimilarity(qvec, d.Embedding)
		if err != nil {
			slog.Debug("memory.Service.rank: skipping document", "id", d.ID, "error", err)
			continue
		}
		seen[d.Content] = true
		out = append(out, models.RegretMemory{Content: d.Content, Timestamp: d.Timestamp, Similarity: sim})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}
