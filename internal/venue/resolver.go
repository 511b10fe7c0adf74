// Package venue resolves free-text place names to known venues.
package venue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/capitalize-ai/event-assistant/internal/embedding"
	"github.com/capitalize-ai/event-assistant/internal/model"
	"github.com/capitalize-ai/event-assistant/internal/textnorm"
	"github.com/capitalize-ai/event-assistant/internal/vectorindex"
	"github.com/capitalize-ai/event-assistant/pkg/logger"
)

// Namespace is the vector index namespace holding venue names.
const Namespace = "venues"

const (
	// DefaultSimilarityFloor is the minimum cosine score for the vector tier.
	DefaultSimilarityFloor = 0.82
	// DefaultFuzzyFloor is the minimum normalized edit similarity.
	DefaultFuzzyFloor = 0.8
	minSubstringLen   = 4
)

// ErrNotFound is returned when no tier matches.
var ErrNotFound = errors.New("venue not found")

// Places lists the known venues.
type Places interface {
	ListPlaces(ctx context.Context) ([]model.Place, error)
}

// Tier records which resolution step matched.
type Tier string

const (
	TierExact  Tier = "exact"
	TierFuzzy  Tier = "fuzzy"
	TierVector Tier = "vector"
)

// Match is a resolved venue.
type Match struct {
	Place model.Place
	Tier  Tier
	Score float64
}

// Resolver matches names exactly, then fuzzily, then by embedding
// similarity.
type Resolver struct {
	places      Places
	embedder    embedding.Embedder
	index       vectorindex.Index
	vectorFloor float64
	fuzzyFloor  float64
	log         *logger.Logger

	mu      sync.Mutex
	indexed bool
}

// NewResolver creates a resolver. vectorFloor <= 0 uses the default.
func NewResolver(places Places, embedder embedding.Embedder, index vectorindex.Index, vectorFloor float64, log *logger.Logger) *Resolver {
	if vectorFloor <= 0 {
		vectorFloor = DefaultSimilarityFloor
	}
	if embedder == nil {
		embedder = embedding.Noop{}
	}
	if index == nil {
		index = vectorindex.NewMemory()
	}
	return &Resolver{
		places:      places,
		embedder:    embedder,
		index:       index,
		vectorFloor: vectorFloor,
		fuzzyFloor:  DefaultFuzzyFloor,
		log:         logger.OrNop(log).Named("venue"),
	}
}

// Resolve returns the venue for name or ErrNotFound. Repository errors are
// returned as is.
func (r *Resolver) Resolve(ctx context.Context, name string) (*Match, error) {
	query := textnorm.Fold(name)
	if query == "" {
		return nil, ErrNotFound
	}
	places, err := r.places.ListPlaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("list places: %w", err)
	}

	if p, ok := exact(places, query); ok {
		return &Match{Place: p, Tier: TierExact, Score: 1}, nil
	}
	if m, ok := r.fuzzy(places, query); ok {
		return m, nil
	}
	if m, ok := r.vector(ctx, places, name); ok {
		return m, nil
	}
	r.log.Info("venue not resolved", zap.String("name", name))
	return nil, ErrNotFound
}

func names(p model.Place) []string {
	out := make([]string, 0, 1+len(p.Aliases))
	out = append(out, p.Name)
	return append(out, p.Aliases...)
}

func exact(places []model.Place, query string) (model.Place, bool) {
	for _, p := range places {
		for _, n := range names(p) {
			if textnorm.Fold(n) == query {
				return p, true
			}
		}
	}
	return model.Place{}, false
}

// fuzzy prefers a unique substring containment, then the best edit
// similarity above the floor.
func (r *Resolver) fuzzy(places []model.Place, query string) (*Match, bool) {
	var contained []model.Place
	if len([]rune(query)) >= minSubstringLen {
		for _, p := range places {
			for _, n := range names(p) {
				fn := textnorm.Fold(n)
				if len([]rune(fn)) >= minSubstringLen && (strings.Contains(fn, query) || strings.Contains(query, fn)) {
					contained = append(contained, p)
					break
				}
			}
		}
	}
	if len(contained) == 1 {
		return &Match{Place: contained[0], Tier: TierFuzzy, Score: 0.9}, true
	}

	var best *Match
	for _, p := range places {
		for _, n := range names(p) {
			s := textnorm.Similarity(query, n)
			if s >= r.fuzzyFloor && (best == nil || s > best.Score) {
				best = &Match{Place: p, Tier: TierFuzzy, Score: s}
			}
		}
	}
	return best, best != nil
}

func (r *Resolver) vector(ctx context.Context, places []model.Place, name string) (*Match, bool) {
	if err := r.ensureIndexed(ctx, places); err != nil {
		if !errors.Is(err, embedding.ErrUnavailable) {
			r.log.Warn("venue indexing failed", zap.Error(err))
		}
		return nil, false
	}
	vec, err := embedding.EmbedOne(ctx, r.embedder, name)
	if err != nil || vec == nil {
		if err != nil {
			r.log.Warn("venue embedding failed", zap.Error(err))
		}
		return nil, false
	}
	hits, err := r.index.Search(ctx, Namespace, vec, 1)
	if err != nil || len(hits) == 0 || hits[0].Score < r.vectorFloor {
		return nil, false
	}
	id, err := strconv.ParseInt(hits[0].Doc.Metadata["place_id"], 10, 64)
	if err != nil {
		return nil, false
	}
	for _, p := range places {
		if p.ID == id {
			return &Match{Place: p, Tier: TierVector, Score: hits[0].Score}, true
		}
	}
	return nil, false
}

func (r *Resolver) ensureIndexed(ctx context.Context, places []model.Place) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexed {
		return nil
	}
	return r.index0(ctx, places)
}

// Index rebuilds the venue vectors. Call it after the venue list changes.
func (r *Resolver) Index(ctx context.Context) error {
	places, err := r.places.ListPlaces(ctx)
	if err != nil {
		return fmt.Errorf("list places: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.index0(ctx, places)
}

func (r *Resolver) index0(ctx context.Context, places []model.Place) error {
	var texts []string
	var ids []int64
	for _, p := range places {
		for _, n := range names(p) {
			texts = append(texts, n)
			ids = append(ids, p.ID)
		}
	}
	if len(texts) == 0 {
		r.indexed = true
		return nil
	}
	vecs, err := r.embedder.Embed(ctx, texts)
	if err != nil {
		return err
	}
	if len(vecs) != len(texts) {
		return errors.New("embedder returned wrong number of vectors")
	}
	docs := make([]vectorindex.Doc, len(texts))
	for i := range texts {
		pid := strconv.FormatInt(ids[i], 10)
		docs[i] = vectorindex.Doc{
			ID:       pid + ":" + texts[i],
			Text:     texts[i],
			Vector:   vecs[i],
			Metadata: map[string]string{"place_id": pid},
		}
	}
	if err := r.index.Reset(ctx, Namespace); err != nil {
		return err
	}
	if err := r.index.Upsert(ctx, Namespace, docs); err != nil {
		return err
	}
	r.indexed = true
	r.log.Info("venues indexed", zap.Int("count", len(docs)))
	return nil
}
