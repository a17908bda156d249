package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/knowledge-engine/errclass/internal/config"
	"github.com/knowledge-engine/errclass/internal/network"
	"github.com/knowledge-engine/errclass/internal/tfidf"
)

// ErrNotFound is returned by Load when no model has been saved yet.
var ErrNotFound = errors.New("model not found")

// ModelStore defines the interface for persisting trained models
type ModelStore interface {
	Save(snapshot *Snapshot) error
	Load() (*Snapshot, error)
	Close() error
}

// TrainingSummary records how a model was trained
type TrainingSummary struct {
	Records   int             `json:"records"`
	Epochs    int             `json:"epochs"`
	Loss      float64         `json:"loss"`
	ValLoss   float64         `json:"val_loss"`
	LossRatio float64         `json:"loss_ratio"`
	Verdict   string          `json:"verdict"`
	History   network.History `json:"history"`
}

// Snapshot is everything needed to classify reports without the corpus:
// the categories, the fitted vocabulary in index order and the network.
type Snapshot struct {
	ID         uuid.UUID       `json:"id"`
	CreatedAt  time.Time       `json:"created_at"`
	MaxLen     int             `json:"max_len"`
	Pad        bool            `json:"pad"`
	Categories []string        `json:"categories"`
	Terms      []tfidf.Term    `json:"terms"`
	Layers     []network.Layer `json:"layers"`
	Training   TrainingSummary `json:"training"`
}

// NewSnapshot returns a snapshot with a fresh id and creation time.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		ID:        uuid.New(),
		CreatedAt: time.Now().UTC(),
	}
}

// Open creates the store selected by cfg.Backend
func Open(cfg config.StorageConfig) (ModelStore, error) {
	var (
		store ModelStore
		err   error
	)
	switch cfg.Backend {
	case "", "file":
		store, err = NewFileStorage(cfg.Dir)
	case "badger":
		store, err = NewBadgerStorage(cfg.Dir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}
