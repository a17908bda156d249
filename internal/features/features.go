package features

import (
	"errors"
	"fmt"

	"github.com/knowledge-engine/errclass/internal/corpus"
)

var (
	ErrUnknownCategory = errors.New("category not in category set")
	ErrRowWidth        = errors.New("feature row width differs from previous rows")
)

// Vectorizer maps text to a TF-IDF vector.
type Vectorizer interface {
	Get(text string) []float64
}

// Assembler builds one feature row per report: the text vector followed by the
// callstack vector, each cut to at most maxLen entries.
//
// With pad set, each half is zero-padded to exactly maxLen so rows are always
// 2*maxLen wide. Without it, halves shorter than maxLen (vocabulary smaller
// than maxLen) are kept as they are.
type Assembler struct {
	vectorizer Vectorizer
	maxLen     int
	pad        bool
}

func NewAssembler(v Vectorizer, maxLen int, pad bool) *Assembler {
	return &Assembler{vectorizer: v, maxLen: maxLen, pad: pad}
}

// Row returns the feature row of a single report.
func (a *Assembler) Row(text, callstack string) []float64 {
	row := make([]float64, 0, 2*a.maxLen)
	row = a.appendHalf(row, a.vectorizer.Get(text))
	row = a.appendHalf(row, a.vectorizer.Get(callstack))
	return row
}

func (a *Assembler) appendHalf(row, vec []float64) []float64 {
	if len(vec) > a.maxLen {
		vec = vec[:a.maxLen]
	}
	row = append(row, vec...)
	if a.pad {
		for i := len(vec); i < a.maxLen; i++ {
			row = append(row, 0)
		}
	}
	return row
}

// Width returns the row width produced for a vocabulary of the given size.
func Width(vocabularySize, maxLen int, pad bool) int {
	half := vocabularySize
	if pad || half > maxLen {
		half = maxLen
	}
	return 2 * half
}

// Matrix is the assembled training set: Rows[i] is labelled Labels[i] and came
// from the record with ID IDs[i].
type Matrix struct {
	Rows   [][]float64
	Labels []int
	IDs    []int64
}

func (m *Matrix) Len() int { return len(m.Rows) }

// Width returns the shared row width, 0 for an empty matrix.
func (m *Matrix) Width() int {
	if len(m.Rows) == 0 {
		return 0
	}
	return len(m.Rows[0])
}

// Builder collects feature rows as a corpus.Subscriber, in stream order.
type Builder struct {
	assembler  *Assembler
	categories *corpus.CategorySet
	matrix     Matrix
}

func (a *Assembler) NewBuilder(categories *corpus.CategorySet) *Builder {
	return &Builder{assembler: a, categories: categories}
}

func (b *Builder) Observe(rec corpus.Record, _ int) error {
	label, ok := b.categories.Index(rec.Category)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, rec.Category)
	}

	row := b.assembler.Row(rec.Text, rec.Callstack)
	if b.matrix.Len() > 0 && len(row) != b.matrix.Width() {
		return fmt.Errorf("%w: got %d, want %d", ErrRowWidth, len(row), b.matrix.Width())
	}

	b.matrix.Rows = append(b.matrix.Rows, row)
	b.matrix.Labels = append(b.matrix.Labels, label)
	b.matrix.IDs = append(b.matrix.IDs, rec.ID)
	return nil
}

// Matrix returns the rows collected so far.
func (b *Builder) Matrix() *Matrix {
	return &b.matrix
}
