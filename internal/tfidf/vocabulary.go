package tfidf

import (
	"fmt"
	"math"
)

// Document is a single fit-time text.
type Document struct {
	ID   int64
	Text string
}

// Term is a vocabulary entry as it is persisted: terms are stored in index
// order so a Vocabulary can be rebuilt without re-fitting.
type Term struct {
	Term  string  `json:"term"`
	Index int     `json:"index"`
	IDF   float64 `json:"idf"`
}

// Vocabulary maps every known term to its vector position and idf weight.
// A Vocabulary never changes after it is built, so it can be shared between
// readers freely.
type Vocabulary struct {
	terms []Term
	index map[string]int
}

// Fit builds a Vocabulary from docs.
//
// The first pass counts, for every term, the number of documents containing it
// and records terms in the order they are first seen. The second pass walks that
// order, so term indices depend only on the order of docs and of the tokens in
// each of them. IDF is smoothed: ln(N / (1 + df)) + 1.
func Fit(docs []Document) *Vocabulary {
	documentCount := float64(len(docs))
	documentFrequency := make(map[string]int)
	var order []string

	for _, doc := range docs {
		seenInDoc := make(map[string]struct{})
		for _, token := range Tokenize(doc.Text) {
			if _, seen := seenInDoc[token]; seen {
				continue
			}
			seenInDoc[token] = struct{}{}
			if _, known := documentFrequency[token]; !known {
				order = append(order, token)
			}
			documentFrequency[token]++
		}
	}

	v := &Vocabulary{
		terms: make([]Term, len(order)),
		index: make(map[string]int, len(order)),
	}
	for i, term := range order {
		df := float64(documentFrequency[term])
		v.terms[i] = Term{
			Term:  term,
			Index: i,
			IDF:   math.Log(documentCount/(1+df)) + 1,
		}
		v.index[term] = i
	}
	return v
}

// FromTerms rebuilds a Vocabulary from its persisted form. Terms must be in
// index order with indices 0..n-1 and no term repeated.
func FromTerms(terms []Term) (*Vocabulary, error) {
	v := &Vocabulary{
		terms: make([]Term, len(terms)),
		index: make(map[string]int, len(terms)),
	}
	for i, t := range terms {
		if t.Index != i {
			return nil, fmt.Errorf("term %q has index %d, expected %d", t.Term, t.Index, i)
		}
		if _, dup := v.index[t.Term]; dup {
			return nil, fmt.Errorf("term %q appears more than once", t.Term)
		}
		v.terms[i] = t
		v.index[t.Term] = i
	}
	return v, nil
}

// Len returns the number of terms, which is also the length of every vector.
func (v *Vocabulary) Len() int {
	if v == nil {
		return 0
	}
	return len(v.terms)
}

// Terms returns a copy of the vocabulary in index order.
func (v *Vocabulary) Terms() []Term {
	if v == nil {
		return nil
	}
	out := make([]Term, len(v.terms))
	copy(out, v.terms)
	return out
}

// Lookup returns the entry for term.
func (v *Vocabulary) Lookup(term string) (Term, bool) {
	if v == nil {
		return Term{}, false
	}
	i, ok := v.index[term]
	if !ok {
		return Term{}, false
	}
	return v.terms[i], true
}

// Vector maps text to a dense TF-IDF vector of length Len(). Each known term
// gets count/total * idf; unknown terms are ignored. Text without tokens yields
// the zero vector. A nil Vocabulary yields an empty vector.
func (v *Vocabulary) Vector(text string) []float64 {
	vector := make([]float64, v.Len())
	if len(vector) == 0 {
		return vector
	}

	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return vector
	}

	termFrequency := make(map[string]int, len(tokens))
	for _, token := range tokens {
		termFrequency[token]++
	}

	total := float64(len(tokens))
	for term, count := range termFrequency {
		i, ok := v.index[term]
		if !ok {
			continue
		}
		vector[i] = float64(count) / total * v.terms[i].IDF
	}
	return vector
}
