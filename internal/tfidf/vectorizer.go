package tfidf

// Vectorizer turns text into TF-IDF vectors using the Vocabulary it owns.
//
// Fit replaces the vocabulary wholesale. A Vectorizer is not safe for Fit
// running concurrently with Get: callers must treat Fit as an exclusive writer
// and only call Get once a Fit has completed. An unfitted Vectorizer returns
// empty vectors.
type Vectorizer struct {
	vocabulary *Vocabulary
}

// NewVectorizer returns an unfitted Vectorizer.
func NewVectorizer() *Vectorizer {
	return &Vectorizer{}
}

// NewVectorizerFrom wraps an already built vocabulary, typically one restored
// from storage.
func NewVectorizerFrom(v *Vocabulary) *Vectorizer {
	return &Vectorizer{vocabulary: v}
}

// Fit builds a new vocabulary from docs and replaces the current one.
func (z *Vectorizer) Fit(docs []Document) {
	z.vocabulary = Fit(docs)
}

// Get returns the TF-IDF vector of text. Its length is the vocabulary size at
// the time of the call.
func (z *Vectorizer) Get(text string) []float64 {
	return z.vocabulary.Vector(text)
}

// Vocabulary returns the current vocabulary, nil before the first Fit.
func (z *Vectorizer) Vocabulary() *Vocabulary {
	return z.vocabulary
}

// Size returns the current vocabulary size.
func (z *Vectorizer) Size() int {
	return z.vocabulary.Len()
}
