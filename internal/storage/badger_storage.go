package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/knowledge-engine/errclass/internal/network"
	"github.com/knowledge-engine/errclass/internal/tfidf"
)

// Key layout. Zero padded positions keep prefix scans in index order.
const (
	metaKey        = "meta"
	categoryPrefix = "category:"
	termPrefix     = "term:"
	layerPrefix    = "layer:"
)

// BadgerStorage implements ModelStore on a BadgerDB directory. Each term,
// category and layer is its own key, so a model can be inspected with any
// badger tooling.
type BadgerStorage struct {
	db *badger.DB
}

// meta is stored under metaKey; the counts guard against a torn model.
type meta struct {
	ID         uuid.UUID       `json:"id"`
	CreatedAt  time.Time       `json:"created_at"`
	MaxLen     int             `json:"max_len"`
	Pad        bool            `json:"pad"`
	Categories int             `json:"categories"`
	Terms      int             `json:"terms"`
	Layers     int             `json:"layers"`
	Training   TrainingSummary `json:"training"`
}

// NewBadgerStorage opens (or creates) a badger database in dir
func NewBadgerStorage(dir string) (*BadgerStorage, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLoggingLevel(badger.WARNING))
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &BadgerStorage{db: db}, nil
}

// Save replaces the stored model with snapshot
func (s *BadgerStorage) Save(snapshot *Snapshot) error {
	if err := s.db.DropPrefix([]byte(metaKey), []byte(categoryPrefix), []byte(termPrefix), []byte(layerPrefix)); err != nil {
		return fmt.Errorf("failed to clear previous model: %w", err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for i, name := range snapshot.Categories {
		if err := wb.Set(categoryKey(i), []byte(name)); err != nil {
			return fmt.Errorf("failed to write category %d: %w", i, err)
		}
	}
	for _, term := range snapshot.Terms {
		value, err := json.Marshal(term)
		if err != nil {
			return fmt.Errorf("failed to marshal term: %w", err)
		}
		if err := wb.Set(termKey(term.Index), value); err != nil {
			return fmt.Errorf("failed to write term %d: %w", term.Index, err)
		}
	}
	for i, layer := range snapshot.Layers {
		value, err := json.Marshal(layer)
		if err != nil {
			return fmt.Errorf("failed to marshal layer: %w", err)
		}
		if err := wb.Set(layerKey(i), value); err != nil {
			return fmt.Errorf("failed to write layer %d: %w", i, err)
		}
	}

	m, err := json.Marshal(meta{
		ID:         snapshot.ID,
		CreatedAt:  snapshot.CreatedAt,
		MaxLen:     snapshot.MaxLen,
		Pad:        snapshot.Pad,
		Categories: len(snapshot.Categories),
		Terms:      len(snapshot.Terms),
		Layers:     len(snapshot.Layers),
		Training:   snapshot.Training,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal meta: %w", err)
	}
	// meta goes last: a crash mid-save leaves no meta and Load reports ErrNotFound.
	if err := wb.Set([]byte(metaKey), m); err != nil {
		return fmt.Errorf("failed to write meta: %w", err)
	}

	if err := wb.Flush(); err != nil {
		return fmt.Errorf("failed to flush model: %w", err)
	}
	return nil
}

// Load reads the stored model back
func (s *BadgerStorage) Load() (*Snapshot, error) {
	var snapshot *Snapshot
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(metaKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var m meta
		if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &m) }); err != nil {
			return fmt.Errorf("failed to decode meta: %w", err)
		}

		snapshot = &Snapshot{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			MaxLen:    m.MaxLen,
			Pad:       m.Pad,
			Training:  m.Training,
		}

		err = scan(txn, categoryPrefix, func(val []byte) error {
			snapshot.Categories = append(snapshot.Categories, string(val))
			return nil
		})
		if err != nil {
			return err
		}
		err = scan(txn, termPrefix, func(val []byte) error {
			var term tfidf.Term
			if err := json.Unmarshal(val, &term); err != nil {
				return err
			}
			snapshot.Terms = append(snapshot.Terms, term)
			return nil
		})
		if err != nil {
			return err
		}
		err = scan(txn, layerPrefix, func(val []byte) error {
			var layer network.Layer
			if err := json.Unmarshal(val, &layer); err != nil {
				return err
			}
			snapshot.Layers = append(snapshot.Layers, layer)
			return nil
		})
		if err != nil {
			return err
		}

		if len(snapshot.Categories) != m.Categories || len(snapshot.Terms) != m.Terms || len(snapshot.Layers) != m.Layers {
			return fmt.Errorf("incomplete model: have %d/%d categories, %d/%d terms, %d/%d layers",
				len(snapshot.Categories), m.Categories, len(snapshot.Terms), m.Terms, len(snapshot.Layers), m.Layers)
		}
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}
	return snapshot, nil
}

// Close closes the underlying database
func (s *BadgerStorage) Close() error {
	return s.db.Close()
}

// scan calls fn with every value under prefix, in key order.
func scan(txn *badger.Txn, prefix string, fn func(val []byte) error) error {
	p := []byte(prefix)
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	for it.Seek(p); it.ValidForPrefix(p); it.Next() {
		item := it.Item()
		if err := item.Value(fn); err != nil {
			return fmt.Errorf("failed to read %s: %w", item.Key(), err)
		}
	}
	return nil
}

func categoryKey(i int) []byte { return []byte(fmt.Sprintf("%s%06d", categoryPrefix, i)) }
func termKey(i int) []byte     { return []byte(fmt.Sprintf("%s%09d", termPrefix, i)) }
func layerKey(i int) []byte    { return []byte(fmt.Sprintf("%s%03d", layerPrefix, i)) }
