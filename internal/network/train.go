package network

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/sirupsen/logrus"
)

// Config holds the training hyperparameters.
type Config struct {
	Hidden          []int
	LearningRate    float64
	BatchSize       int
	Epochs          int
	ValidationSplit float64
	// Patience is the number of epochs without val_loss improvement before
	// training stops. Zero disables early stopping.
	Patience int
	Seed     uint64
}

// DefaultConfig returns the stock architecture and schedule.
func DefaultConfig() Config {
	return Config{
		Hidden:          []int{64, 128, 64, 32, 16},
		LearningRate:    0.001,
		BatchSize:       8,
		Epochs:          50,
		ValidationSplit: 0.2,
		Patience:        5,
		Seed:            42,
	}
}

func (c Config) check() error {
	switch {
	case c.BatchSize < 1:
		return fmt.Errorf("invalid training config: batch size %d", c.BatchSize)
	case c.Epochs < 1:
		return fmt.Errorf("invalid training config: %d epochs", c.Epochs)
	case !(c.LearningRate > 0):
		return fmt.Errorf("invalid training config: learning rate %v", c.LearningRate)
	case !(c.ValidationSplit >= 0 && c.ValidationSplit < 1):
		return fmt.Errorf("invalid training config: validation split %v outside [0,1)", c.ValidationSplit)
	}
	return nil
}

// History records per-epoch metrics. ValLoss and ValAccuracy are empty when
// no validation rows were held out.
type History struct {
	Loss        []float64 `json:"loss"`
	ValLoss     []float64 `json:"val_loss,omitempty"`
	Accuracy    []float64 `json:"accuracy"`
	ValAccuracy []float64 `json:"val_accuracy,omitempty"`
}

// Epochs returns the number of epochs actually run.
func (h History) Epochs() int { return len(h.Loss) }

// FinalLoss returns the last training loss and the last validation loss. The
// validation loss falls back to the training loss when there was none.
func (h History) FinalLoss() (loss, valLoss float64) {
	if len(h.Loss) == 0 {
		return 0, 0
	}
	loss = h.Loss[len(h.Loss)-1]
	valLoss = loss
	if len(h.ValLoss) > 0 {
		valLoss = h.ValLoss[len(h.ValLoss)-1]
	}
	return loss, valLoss
}

// LossRatio is final validation loss over final training loss.
func (h History) LossRatio() float64 {
	loss, valLoss := h.FinalLoss()
	if loss == 0 {
		return 1
	}
	return valLoss / loss
}

// Fit verdicts for a loss ratio.
const (
	GoodFit      = "good fit"
	Overfitting  = "overfitting"
	Underfitting = "underfitting"
)

// Verdict classifies a loss ratio.
func Verdict(ratio float64) string {
	switch {
	case ratio > 1.2:
		return Overfitting
	case ratio < 0.8:
		return Underfitting
	default:
		return GoodFit
	}
}

// EarlyStopping tracks a minimised metric and reports when it has stopped
// improving for patience consecutive observations.
type EarlyStopping struct {
	patience int
	minDelta float64
	best     float64
	wait     int
}

func NewEarlyStopping(patience int, minDelta float64) *EarlyStopping {
	return &EarlyStopping{patience: patience, minDelta: minDelta, best: math.Inf(1)}
}

// Observe records value and returns true when training should stop.
func (e *EarlyStopping) Observe(value float64) bool {
	if value < e.best-e.minDelta {
		e.best = value
		e.wait = 0
		return false
	}
	e.wait++
	return e.patience > 0 && e.wait >= e.patience
}

// Best returns the lowest value observed so far.
func (e *EarlyStopping) Best() float64 { return e.best }

// Trainer fits networks to labelled feature matrices.
type Trainer struct {
	cfg    Config
	logger *logrus.Entry
}

func NewTrainer(cfg Config, logger *logrus.Entry) *Trainer {
	if logger == nil {
		logger = logrus.WithField("component", "network")
	}
	return &Trainer{cfg: cfg, logger: logger}
}

// Train builds a fresh network sized to the rows and fits it. The last
// ValidationSplit fraction of rows is held out, unshuffled, for validation.
func (t *Trainer) Train(ctx context.Context, rows [][]float64, labels []int, classes int) (*Network, History, error) {
	var history History

	if err := t.cfg.check(); err != nil {
		return nil, history, err
	}
	if len(rows) == 0 {
		return nil, history, errors.New("no training rows")
	}
	if len(rows) != len(labels) {
		return nil, history, fmt.Errorf("%w: %d rows but %d labels", ErrShape, len(rows), len(labels))
	}
	width := len(rows[0])
	for i, row := range rows {
		if len(row) != width {
			return nil, history, fmt.Errorf("%w: row %d has %d values, expected %d", ErrShape, i, len(row), width)
		}
		if labels[i] < 0 || labels[i] >= classes {
			return nil, history, fmt.Errorf("%w: label %d of row %d is outside [0,%d)", ErrShape, labels[i], i, classes)
		}
	}

	rng := rand.New(rand.NewPCG(t.cfg.Seed, t.cfg.Seed^0x9e3779b97f4a7c15))
	net, err := New(width, classes, t.cfg.Hidden, rng)
	if err != nil {
		return nil, history, fmt.Errorf("failed to create network: %w", err)
	}

	split := len(rows) - int(float64(len(rows))*t.cfg.ValidationSplit)
	if split <= 0 {
		split = len(rows)
	}
	trainRows, trainLabels := rows[:split], labels[:split]
	valRows, valLabels := rows[split:], labels[split:]

	batchSize := t.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = len(trainRows)
	}

	order := make([]int, len(trainRows))
	for i := range order {
		order[i] = i
	}
	grads := net.newGradients()
	opt := newAdam(net, t.cfg.LearningRate)
	stopper := NewEarlyStopping(t.cfg.Patience, 0)

	t.logger.WithFields(logrus.Fields{
		"rows":       len(rows),
		"validation": len(valRows),
		"width":      width,
		"classes":    classes,
	}).Info("Starting training")

	for epoch := 1; epoch <= t.cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, history, err
		}

		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		var lossSum float64
		correct := 0
		for start := 0; start < len(order); start += batchSize {
			end := min(start+batchSize, len(order))
			resetGradients(grads)
			for _, i := range order[start:end] {
				acts := net.forward(trainRows[i])
				probs := acts[len(acts)-1]
				lossSum += crossEntropy(probs, trainLabels[i])
				if Argmax(probs) == trainLabels[i] {
					correct++
				}
				net.backward(acts, trainLabels[i], grads)
			}
			opt.step(net, grads, float64(end-start))
		}

		history.Loss = append(history.Loss, lossSum/float64(len(order)))
		history.Accuracy = append(history.Accuracy, float64(correct)/float64(len(order)))

		fields := logrus.Fields{
			"epoch":    epoch,
			"loss":     history.Loss[epoch-1],
			"accuracy": history.Accuracy[epoch-1],
		}
		stop := false
		if len(valRows) > 0 {
			valLoss, valAcc := Evaluate(net, valRows, valLabels)
			history.ValLoss = append(history.ValLoss, valLoss)
			history.ValAccuracy = append(history.ValAccuracy, valAcc)
			fields["val_loss"] = valLoss
			fields["val_accuracy"] = valAcc
			stop = stopper.Observe(valLoss)
		}
		t.logger.WithFields(fields).Infof("Epoch %d/%d completed", epoch, t.cfg.Epochs)

		if stop {
			t.logger.WithField("best_val_loss", stopper.Best()).Info("Early stopping: val_loss stopped improving")
			break
		}
	}

	return net, history, nil
}

// Evaluate returns mean cross-entropy and accuracy of net over rows.
func Evaluate(net *Network, rows [][]float64, labels []int) (loss, accuracy float64) {
	if len(rows) == 0 {
		return 0, 0
	}
	correct := 0
	for i, row := range rows {
		acts := net.forward(row)
		probs := acts[len(acts)-1]
		loss += crossEntropy(probs, labels[i])
		if Argmax(probs) == labels[i] {
			correct++
		}
	}
	n := float64(len(rows))
	return loss / n, float64(correct) / n
}

// adam holds first and second moment estimates for every parameter.
type adam struct {
	lr, beta1, beta2, epsilon float64
	t                         int
	mW, vW, mB, vB            [][]float64
}

func newAdam(net *Network, lr float64) *adam {
	a := &adam{lr: lr, beta1: 0.9, beta2: 0.999, epsilon: 1e-7}
	for _, l := range net.layers {
		a.mW = append(a.mW, make([]float64, len(l.Weights)))
		a.vW = append(a.vW, make([]float64, len(l.Weights)))
		a.mB = append(a.mB, make([]float64, len(l.Bias)))
		a.vB = append(a.vB, make([]float64, len(l.Bias)))
	}
	return a
}

// step applies one update using gradients summed over batch samples.
func (a *adam) step(net *Network, grads []gradient, batch float64) {
	a.t++
	c1 := 1 - math.Pow(a.beta1, float64(a.t))
	c2 := 1 - math.Pow(a.beta2, float64(a.t))
	for l := range net.layers {
		a.apply(net.layers[l].Weights, grads[l].weights, a.mW[l], a.vW[l], batch, c1, c2)
		a.apply(net.layers[l].Bias, grads[l].bias, a.mB[l], a.vB[l], batch, c1, c2)
	}
}

func (a *adam) apply(params, grad, m, v []float64, batch, c1, c2 float64) {
	for i := range params {
		g := grad[i] / batch
		m[i] = a.beta1*m[i] + (1-a.beta1)*g
		v[i] = a.beta2*v[i] + (1-a.beta2)*g*g
		params[i] -= a.lr * (m[i] / c1) / (math.Sqrt(v[i]/c2) + a.epsilon)
	}
}
