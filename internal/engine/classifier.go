package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/knowledge-engine/errclass/internal/config"
	"github.com/knowledge-engine/errclass/internal/corpus"
	"github.com/knowledge-engine/errclass/internal/features"
	"github.com/knowledge-engine/errclass/internal/network"
	"github.com/knowledge-engine/errclass/internal/search"
	"github.com/knowledge-engine/errclass/internal/storage"
	"github.com/knowledge-engine/errclass/internal/tfidf"
)

var (
	// ErrModelNotLoaded is returned when classifying before a model is loaded.
	ErrModelNotLoaded = errors.New("model, vectorizer or categories not loaded")
	// ErrIndexNotBuilt is returned by Similar before IndexCorpus has run.
	ErrIndexNotBuilt = errors.New("similarity index not built")
)

// CategoryScore is the confidence assigned to one category
type CategoryScore struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// Prediction is the classification of one report
type Prediction struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	// AllPredictions lists every category, most confident first.
	AllPredictions []CategoryScore `json:"all_predictions"`
}

// ModelInfo describes the loaded model
type ModelInfo struct {
	ID             string                  `json:"id"`
	CreatedAt      string                  `json:"created_at"`
	Categories     []string                `json:"categories"`
	VocabularySize int                     `json:"vocabulary_size"`
	MaxLen         int                     `json:"max_len"`
	Pad            bool                    `json:"pad"`
	InputSize      int                     `json:"input_size"`
	IndexedReports int                     `json:"indexed_reports"`
	Training       storage.TrainingSummary `json:"training"`
}

// model is everything derived from one snapshot, replaced wholesale by Load.
// Only index changes afterwards, under Classifier.mu.
type model struct {
	snapshot   *storage.Snapshot
	vectorizer *tfidf.Vectorizer
	categories *corpus.CategorySet
	network    *network.Network
	assembler  *features.Assembler
	cache      *lru.Cache[string, []float64]
	index      *search.Index
}

// Classifier predicts categories with a trained model. Safe for concurrent
// use; Load may be called while predictions are in flight.
type Classifier struct {
	Logger    *logrus.Entry
	cacheSize int

	mu    sync.RWMutex
	model *model
}

// NewClassifier returns a classifier with no model. cacheSize bounds the
// number of texts whose vectors are kept.
func NewClassifier(logger *logrus.Entry, cacheSize int) *Classifier {
	if cacheSize <= 0 {
		cacheSize = 1
	}
	return &Classifier{
		Logger:    logger.WithField("component", "classifier"),
		cacheSize: cacheSize,
	}
}

// LoadFrom loads the model held by store
func (c *Classifier) LoadFrom(store storage.ModelStore) error {
	snapshot, err := store.Load()
	if err != nil {
		return fmt.Errorf("failed to load model: %w", err)
	}
	return c.Load(snapshot)
}

// Load replaces the current model with snapshot
func (c *Classifier) Load(snapshot *storage.Snapshot) error {
	vocabulary, err := tfidf.FromTerms(snapshot.Terms)
	if err != nil {
		return fmt.Errorf("failed to restore vocabulary: %w", err)
	}
	categories, err := corpus.CategorySetFrom(snapshot.Categories)
	if err != nil {
		return fmt.Errorf("failed to restore categories: %w", err)
	}
	net, err := network.FromLayers(snapshot.Layers)
	if err != nil {
		return fmt.Errorf("failed to restore network: %w", err)
	}
	if net.OutputSize() != categories.Len() {
		return fmt.Errorf("%w: network has %d outputs for %d categories", network.ErrShape, net.OutputSize(), categories.Len())
	}

	cache, err := lru.New[string, []float64](c.cacheSize)
	if err != nil {
		return fmt.Errorf("failed to create vector cache: %w", err)
	}

	m := &model{
		snapshot:   snapshot,
		vectorizer: tfidf.NewVectorizerFrom(vocabulary),
		categories: categories,
		network:    net,
		cache:      cache,
	}
	m.assembler = features.NewAssembler(cachedVectorizer{m}, snapshot.MaxLen, snapshot.Pad)

	c.mu.Lock()
	c.model = m
	c.mu.Unlock()

	c.Logger.WithFields(logrus.Fields{
		"model_id":   snapshot.ID,
		"categories": categories.Len(),
		"vocabulary": vocabulary.Len(),
	}).Info("Model loaded")
	return nil
}

func (c *Classifier) current() (*model, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.model == nil || c.model.categories.Len() == 0 {
		return nil, ErrModelNotLoaded
	}
	return c.model, nil
}

// Loaded reports whether a model is available
func (c *Classifier) Loaded() bool {
	_, err := c.current()
	return err == nil
}

// Info describes the loaded model
func (c *Classifier) Info() (*ModelInfo, error) {
	m, err := c.current()
	if err != nil {
		return nil, err
	}
	info := &ModelInfo{
		ID:             m.snapshot.ID.String(),
		CreatedAt:      m.snapshot.CreatedAt.Format(time.RFC3339),
		Categories:     m.categories.Names(),
		VocabularySize: m.vectorizer.Size(),
		MaxLen:         m.snapshot.MaxLen,
		Pad:            m.snapshot.Pad,
		InputSize:      m.network.InputSize(),
		Training:       m.snapshot.Training,
	}
	if idx := c.index(); idx != nil {
		info.IndexedReports = idx.Len()
	}
	return info, nil
}

// Predict classifies one report
func (c *Classifier) Predict(text, callstack string) (*Prediction, error) {
	m, err := c.current()
	if err != nil {
		return nil, err
	}
	return m.predict(text, callstack)
}

func (m *model) predict(text, callstack string) (*Prediction, error) {
	probs, err := m.network.Predict(m.assembler.Row(text, callstack))
	if err != nil {
		return nil, fmt.Errorf("failed to run network: %w", err)
	}

	scores := lo.Map(m.categories.Names(), func(name string, i int) CategoryScore {
		return CategoryScore{Category: name, Confidence: probs[i]}
	})
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Confidence > scores[j].Confidence
	})

	best := network.Argmax(probs)
	name, _ := m.categories.Name(best)
	return &Prediction{
		Category:       name,
		Confidence:     probs[best],
		AllPredictions: scores,
	}, nil
}

// cachedVectorizer memoises vectors per text. Cached slices are shared and
// must not be modified.
type cachedVectorizer struct {
	m *model
}

func (v cachedVectorizer) Get(text string) []float64 {
	if vec, ok := v.m.cache.Get(text); ok {
		return vec
	}
	vec := v.m.vectorizer.Get(text)
	v.m.cache.Add(text, vec)
	return vec
}

// CategoryResult counts predictions for records of one category
type CategoryResult struct {
	Category string `json:"category"`
	Total    int    `json:"total"`
	Correct  int    `json:"correct"`
}

// Miss is a record the model got wrong
type Miss struct {
	ID         int64   `json:"id"`
	Expected   string  `json:"expected"`
	Predicted  string  `json:"predicted"`
	Confidence float64 `json:"confidence"`
}

// Evaluation summarises predictions over a labelled corpus
type Evaluation struct {
	Successes   int              `json:"successes"`
	Failures    int              `json:"failures"`
	PerCategory []CategoryResult `json:"per_category"`
	Misses      []Miss           `json:"misses"`
}

func (e *Evaluation) Total() int { return e.Successes + e.Failures }

func (e *Evaluation) Accuracy() float64 {
	if e.Total() == 0 {
		return 0
	}
	return float64(e.Successes) / float64(e.Total())
}

// Evaluate predicts every categorised record of the corpus at path and
// compares the prediction with its label. Records whose category the model
// does not know count as failures.
func (c *Classifier) Evaluate(ctx context.Context, loader *corpus.Loader, path string, maxData int) (*Evaluation, error) {
	m, err := c.current()
	if err != nil {
		return nil, err
	}

	eval := &Evaluation{}
	perCategory := make(map[string]*CategoryResult)
	order := m.categories.Names()

	observe := corpus.SubscriberFunc(func(rec corpus.Record, _ int) error {
		p, err := m.predict(rec.Text, rec.Callstack)
		if err != nil {
			return err
		}

		res, ok := perCategory[rec.Category]
		if !ok {
			res = &CategoryResult{Category: rec.Category}
			perCategory[rec.Category] = res
			if _, known := m.categories.Index(rec.Category); !known {
				order = append(order, rec.Category)
			}
		}
		res.Total++

		if p.Category == rec.Category {
			eval.Successes++
			res.Correct++
			return nil
		}
		eval.Failures++
		eval.Misses = append(eval.Misses, Miss{
			ID:         rec.ID,
			Expected:   rec.Category,
			Predicted:  p.Category,
			Confidence: p.Confidence,
		})
		return nil
	})

	if _, err := loader.StreamFile(ctx, path, maxData, observe); err != nil {
		return nil, fmt.Errorf("failed to evaluate corpus: %w", err)
	}

	eval.PerCategory = lo.FilterMap(order, func(name string, _ int) (CategoryResult, bool) {
		res, ok := perCategory[name]
		if !ok {
			return CategoryResult{}, false
		}
		return *res, true
	})

	c.Logger.WithFields(logrus.Fields{
		"successes": eval.Successes,
		"failures":  eval.Failures,
		"accuracy":  eval.Accuracy(),
	}).Info("Evaluation completed")
	return eval, nil
}

// IndexCorpus builds the similarity index from the corpus at path using the
// loaded model's features, replacing any previous index. It returns the number
// of indexed reports.
func (c *Classifier) IndexCorpus(ctx context.Context, loader *corpus.Loader, path string, maxData int, cfg config.SearchConfig) (int, error) {
	m, err := c.current()
	if err != nil {
		return 0, err
	}

	builder := m.assembler.NewBuilder(m.categories)
	if _, err := loader.StreamFile(ctx, path, maxData, builder); err != nil {
		return 0, fmt.Errorf("failed to read corpus for index: %w", err)
	}
	index, err := BuildIndex(builder.Matrix(), m.categories, cfg)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	// A concurrent Load may have swapped the model; the index belongs to m only.
	m.index = index
	c.mu.Unlock()

	c.Logger.WithField("reports", index.Len()).Info("Similarity index built")
	return index.Len(), nil
}

func (c *Classifier) index() *search.Index {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.model == nil {
		return nil
	}
	return c.model.index
}

// Similar returns the k indexed training reports closest to a report
func (c *Classifier) Similar(text, callstack string, k int) ([]search.SearchResult, error) {
	m, err := c.current()
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	index := m.index
	c.mu.RUnlock()
	if index == nil {
		return nil, ErrIndexNotBuilt
	}

	return index.Search(m.assembler.Row(text, callstack), k), nil
}
