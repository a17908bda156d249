package corpus

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/knowledge-engine/errclass/internal/tfidf"
)

// DefaultMaxLineBytes bounds a single NDJSON line. Callstacks can be long.
const DefaultMaxLineBytes = 16 << 20

// Subscriber receives every record presented by a stream, with its index
// among presented records.
type Subscriber interface {
	Observe(rec Record, index int) error
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(rec Record, index int) error

func (f SubscriberFunc) Observe(rec Record, index int) error { return f(rec, index) }

// DocumentCollector gathers the fit corpus: one document per record, built from
// the record text.
type DocumentCollector struct {
	Documents []tfidf.Document
}

func (d *DocumentCollector) Observe(rec Record, _ int) error {
	d.Documents = append(d.Documents, tfidf.Document{ID: rec.ID, Text: rec.Text})
	return nil
}

// Loader streams labelled records out of newline-delimited JSON.
type Loader struct {
	logger       *logrus.Entry
	maxLineBytes int
}

// NewLoader creates a loader. maxLineBytes <= 0 selects DefaultMaxLineBytes.
func NewLoader(logger *logrus.Entry, maxLineBytes int) *Loader {
	if logger == nil {
		logger = logrus.WithField("component", "corpus_loader")
	}
	if maxLineBytes <= 0 {
		maxLineBytes = DefaultMaxLineBytes
	}
	return &Loader{logger: logger, maxLineBytes: maxLineBytes}
}

// Stream reads records from r in order and presents those with a non-empty
// category to every subscriber. When limit > 0 it stops once limit records
// have been presented. It returns the number of records presented.
//
// Any malformed line aborts the whole stream with a *ValidationError; nothing
// is skipped except records without a category.
func (l *Loader) Stream(ctx context.Context, r io.Reader, limit int, subscribers ...Subscriber) (int, error) {
	initial := 64 * 1024
	if l.maxLineBytes < initial {
		initial = l.maxLineBytes
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, initial), l.maxLineBytes)

	index := 0
	line := 0
	skipped := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return index, err
		}
		line++

		rec, err := ParseRecord(scanner.Bytes())
		if err != nil {
			return index, &ValidationError{Line: line, Err: err}
		}

		if rec.Category != "" {
			for _, s := range subscribers {
				if err := s.Observe(rec, index); err != nil {
					return index, fmt.Errorf("failed to handle record %d: %w", rec.ID, err)
				}
			}
			index++
		} else {
			skipped++
		}

		if limit > 0 && index >= limit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return index, fmt.Errorf("failed to read corpus: %w", err)
	}

	l.logger.WithFields(logrus.Fields{
		"records": index,
		"skipped": skipped,
		"lines":   line,
	}).Debug("Corpus streamed")
	return index, nil
}

// StreamFile opens path and streams it.
func (l *Loader) StreamFile(ctx context.Context, path string, limit int, subscribers ...Subscriber) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open corpus: %w", err)
	}
	defer f.Close()

	return l.Stream(ctx, f, limit, subscribers...)
}
