// Package intent maps free text to a coarse action category.
package intent

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/capitalize-ai/event-assistant/internal/embedding"
	"github.com/capitalize-ai/event-assistant/internal/textnorm"
	"github.com/capitalize-ai/event-assistant/internal/vectorindex"
	"github.com/capitalize-ai/event-assistant/pkg/logger"
	"github.com/capitalize-ai/event-assistant/pkg/metrics"
)

// Namespace is the vector index namespace holding reference phrases.
const Namespace = "intent"

// DefaultConfidenceFloor is the minimum cosine similarity accepted from
// the vector path.
const DefaultConfidenceFloor = 0.75

const keywordConfidence = 0.6

// Source records which path produced a Result.
type Source string

const (
	SourceVector  Source = "vector"
	SourceKeyword Source = "keyword"
	SourceNone    Source = "none"
)

// Result is the outcome of Classify.
type Result struct {
	Category   Category
	Confidence float64
	Source     Source
	Outdoor    bool
}

// Context carries conversation state that affects classification.
type Context struct {
	// Pending is set when the user has an operation awaiting a reply.
	// Confirmation and cancellation words are only meaningful then.
	Pending bool
}

// Config holds the reference phrases and keyword tables.
type Config struct {
	References      map[Category][]string
	Keywords        map[Category][]string
	OutdoorKeywords []string
	Floor           float64
}

// DefaultConfig returns the built-in tables.
func DefaultConfig() Config {
	return Config{
		References:      DefaultReferences(),
		Keywords:        DefaultKeywords(),
		OutdoorKeywords: DefaultOutdoorKeywords(),
		Floor:           DefaultConfidenceFloor,
	}
}

// Classifier classifies by embedding similarity to reference phrases, with
// a keyword fallback. It never fails: the worst case is CategoryUnknown.
type Classifier struct {
	embedder embedding.Embedder
	index    vectorindex.Index
	cfg      Config
	log      *logger.Logger

	mu      sync.Mutex
	indexed bool
}

// NewClassifier creates a classifier. Zero-value fields in cfg take their
// defaults.
func NewClassifier(embedder embedding.Embedder, index vectorindex.Index, cfg Config, log *logger.Logger) *Classifier {
	def := DefaultConfig()
	if cfg.References == nil {
		cfg.References = def.References
	}
	if cfg.Keywords == nil {
		cfg.Keywords = def.Keywords
	}
	if cfg.OutdoorKeywords == nil {
		cfg.OutdoorKeywords = def.OutdoorKeywords
	}
	if cfg.Floor <= 0 {
		cfg.Floor = def.Floor
	}
	if embedder == nil {
		embedder = embedding.Noop{}
	}
	if index == nil {
		index = vectorindex.NewMemory()
	}
	return &Classifier{embedder: embedder, index: index, cfg: cfg, log: logger.OrNop(log).Named("intent")}
}

// Classify returns the best category for text.
func (c *Classifier) Classify(ctx context.Context, text string, cc Context) Result {
	res := c.classify(ctx, text, cc)
	res.Outdoor = c.IsOutdoor(text)
	metrics.IntentsTotal.WithLabelValues(string(res.Category), string(res.Source)).Inc()
	return res
}

func (c *Classifier) classify(ctx context.Context, text string, cc Context) Result {
	if res, ok := c.byVector(ctx, text, cc); ok {
		return res
	}
	if res, ok := c.byKeyword(text, cc); ok {
		return res
	}
	return Result{Category: CategoryUnknown, Source: SourceNone}
}

func (c *Classifier) byVector(ctx context.Context, text string, cc Context) (Result, bool) {
	if err := c.ensureIndexed(ctx); err != nil {
		if !errors.Is(err, embedding.ErrUnavailable) {
			c.log.Warn("intent reference embedding failed", zap.Error(err))
		}
		return Result{}, false
	}
	vec, err := embedding.EmbedOne(ctx, c.embedder, text)
	if err != nil {
		c.log.Warn("intent embedding failed, using keywords", zap.Error(err))
		return Result{}, false
	}
	if vec == nil {
		return Result{}, false
	}
	hits, err := c.index.Search(ctx, Namespace, vec, 3)
	if err != nil {
		c.log.Warn("intent index search failed", zap.Error(err))
		return Result{}, false
	}
	for _, h := range hits {
		if h.Score < c.cfg.Floor {
			break
		}
		cat := Category(h.Doc.Metadata["category"])
		if !cc.Pending && (cat == CategoryConfirm || cat == CategoryCancel) {
			continue
		}
		return Result{Category: cat, Confidence: h.Score, Source: SourceVector}, true
	}
	return Result{}, false
}

// ensureIndexed embeds the reference phrases once. A failure leaves the
// classifier unindexed so the next call retries.
func (c *Classifier) ensureIndexed(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.indexed {
		return nil
	}

	var texts []string
	var cats []Category
	for _, cat := range keywordOrder {
		for _, phrase := range c.cfg.References[cat] {
			texts = append(texts, phrase)
			cats = append(cats, cat)
		}
	}
	if len(texts) == 0 {
		return embedding.ErrUnavailable
	}
	vecs, err := c.embedder.Embed(ctx, texts)
	if err != nil {
		return err
	}
	if len(vecs) != len(texts) {
		return errors.New("embedder returned wrong number of vectors")
	}

	docs := make([]vectorindex.Doc, len(texts))
	for i := range texts {
		docs[i] = vectorindex.Doc{
			ID:       string(cats[i]) + ":" + texts[i],
			Text:     texts[i],
			Vector:   vecs[i],
			Metadata: map[string]string{"category": string(cats[i])},
		}
	}
	if err := c.index.Reset(ctx, Namespace); err != nil {
		return err
	}
	if err := c.index.Upsert(ctx, Namespace, docs); err != nil {
		return err
	}
	c.indexed = true
	c.log.Info("intent references indexed", zap.Int("count", len(docs)))
	return nil
}

func (c *Classifier) byKeyword(text string, cc Context) (Result, bool) {
	best := CategoryUnknown
	bestScore := 0
	for _, cat := range keywordOrder {
		if !cc.Pending && (cat == CategoryConfirm || cat == CategoryCancel) {
			continue
		}
		score := 0
		for _, kw := range c.cfg.Keywords[cat] {
			if textnorm.ContainsWord(text, kw) {
				score += len(textnorm.Tokens(kw))
			}
		}
		if score > bestScore {
			best, bestScore = cat, score
		}
	}
	if bestScore == 0 {
		return Result{}, false
	}
	return Result{Category: best, Confidence: keywordConfidence, Source: SourceKeyword}, true
}

// IsOutdoor reports whether text describes an activity exposed to weather.
func (c *Classifier) IsOutdoor(text string) bool {
	for _, kw := range c.cfg.OutdoorKeywords {
		if textnorm.ContainsWord(text, kw) {
			return true
		}
	}
	return false
}
