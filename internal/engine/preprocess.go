package engine

import (
	"context"
	"fmt"

	"github.com/knowledge-engine/errclass/internal/corpus"
	"github.com/knowledge-engine/errclass/internal/tfidf"
)

// Preprocessed is the outcome of the first pass over a corpus.
type Preprocessed struct {
	Vectorizer *tfidf.Vectorizer
	Categories *corpus.CategorySet
	// Total is the number of categorised records read.
	Total int
}

// Preprocess streams the corpus once, collecting report texts and the category
// set together, then fits a vectorizer on the texts. maxData <= 0 reads every
// record.
func Preprocess(ctx context.Context, loader *corpus.Loader, path string, maxData int) (*Preprocessed, error) {
	docs := &corpus.DocumentCollector{}
	categories := corpus.NewCategorySet()

	total, err := loader.StreamFile(ctx, path, maxData, docs, categories)
	if err != nil {
		return nil, fmt.Errorf("failed to preprocess corpus: %w", err)
	}

	vectorizer := tfidf.NewVectorizer()
	vectorizer.Fit(docs.Documents)

	return &Preprocessed{
		Vectorizer: vectorizer,
		Categories: categories,
		Total:      total,
	}, nil
}
