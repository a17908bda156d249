package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/knowledge-engine/errclass/internal/config"
	"github.com/knowledge-engine/errclass/internal/corpus"
	"github.com/knowledge-engine/errclass/internal/features"
	"github.com/knowledge-engine/errclass/internal/network"
	"github.com/knowledge-engine/errclass/internal/search"
	"github.com/knowledge-engine/errclass/internal/storage"
)

// Trainer runs the whole training pipeline: preprocess, assemble features,
// fit the network and persist the resulting model.
type Trainer struct {
	Config *config.Config
	Logger *logrus.Entry
	Loader *corpus.Loader
	Store  storage.ModelStore
}

// TrainResult is what a training run produced
type TrainResult struct {
	Snapshot *storage.Snapshot
	History  network.History
	// Index holds the training rows when search is enabled, nil otherwise.
	Index    *search.Index
	Duration time.Duration
}

func NewTrainer(cfg *config.Config, logger *logrus.Entry, store storage.ModelStore) *Trainer {
	logger = logger.WithField("component", "trainer")
	return &Trainer{
		Config: cfg,
		Logger: logger,
		Loader: corpus.NewLoader(logger, cfg.Corpus.MaxLineBytes),
		Store:  store,
	}
}

// NetworkConfig maps training settings onto network hyperparameters
func NetworkConfig(cfg config.TrainingConfig) network.Config {
	return network.Config{
		Hidden:          cfg.Hidden,
		LearningRate:    cfg.LearningRate,
		BatchSize:       cfg.BatchSize,
		Epochs:          cfg.Epochs,
		ValidationSplit: cfg.ValidationSplit,
		Patience:        cfg.Patience,
		Seed:            uint64(cfg.Seed),
	}
}

// Run trains a model on the configured corpus and saves it
func (t *Trainer) Run(ctx context.Context) (*TrainResult, error) {
	if err := t.Config.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	path := t.Config.Corpus.Path
	maxData := t.Config.Corpus.MaxData

	pre, err := Preprocess(ctx, t.Loader, path, maxData)
	if err != nil {
		return nil, err
	}
	if pre.Total == 0 {
		return nil, errors.New("corpus has no categorised records")
	}
	t.Logger.WithFields(logrus.Fields{
		"records":    pre.Total,
		"categories": pre.Categories.Len(),
		"vocabulary": pre.Vectorizer.Size(),
	}).Info("Corpus preprocessed")

	assembler := features.NewAssembler(pre.Vectorizer, t.Config.Features.MaxLen, t.Config.Features.Pad)
	builder := assembler.NewBuilder(pre.Categories)
	if _, err := t.Loader.StreamFile(ctx, path, maxData, builder); err != nil {
		return nil, fmt.Errorf("failed to assemble features: %w", err)
	}
	matrix := builder.Matrix()
	if matrix.Width() == 0 {
		return nil, errors.New("feature rows are empty: vocabulary or max length is zero")
	}

	trainer := network.NewTrainer(NetworkConfig(t.Config.Training), t.Logger)
	net, history, err := trainer.Train(ctx, matrix.Rows, matrix.Labels, pre.Categories.Len())
	if err != nil {
		return nil, fmt.Errorf("failed to train network: %w", err)
	}

	loss, valLoss := history.FinalLoss()
	ratio := history.LossRatio()

	snapshot := storage.NewSnapshot()
	snapshot.MaxLen = t.Config.Features.MaxLen
	snapshot.Pad = t.Config.Features.Pad
	snapshot.Categories = pre.Categories.Names()
	snapshot.Terms = pre.Vectorizer.Vocabulary().Terms()
	snapshot.Layers = net.Layers()
	snapshot.Training = storage.TrainingSummary{
		Records:   matrix.Len(),
		Epochs:    history.Epochs(),
		Loss:      loss,
		ValLoss:   valLoss,
		LossRatio: ratio,
		Verdict:   network.Verdict(ratio),
		History:   history,
	}

	if err := t.Store.Save(snapshot); err != nil {
		return nil, fmt.Errorf("failed to save model: %w", err)
	}

	result := &TrainResult{
		Snapshot: snapshot,
		History:  history,
	}
	if t.Config.Search.Enabled {
		result.Index, err = BuildIndex(matrix, pre.Categories, t.Config.Search)
		if err != nil {
			return nil, err
		}
	}
	result.Duration = time.Since(start)

	t.Logger.WithFields(logrus.Fields{
		"model_id":   snapshot.ID,
		"epochs":     history.Epochs(),
		"loss":       loss,
		"val_loss":   valLoss,
		"loss_ratio": ratio,
		"verdict":    snapshot.Training.Verdict,
		"duration":   result.Duration,
	}).Info("Model trained and saved")

	return result, nil
}

// BuildIndex indexes every row of matrix under its record id
func BuildIndex(matrix *features.Matrix, categories *corpus.CategorySet, cfg config.SearchConfig) (*search.Index, error) {
	index := search.NewIndex(cfg.M, cfg.EfSearch)
	for i, row := range matrix.Rows {
		name, _ := categories.Name(matrix.Labels[i])
		if _, err := index.Add(matrix.IDs[i], name, row); err != nil {
			return nil, fmt.Errorf("failed to index record %d: %w", matrix.IDs[i], err)
		}
	}
	return index, nil
}
