package network

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
)

// ErrShape is returned when inputs, labels or layers do not line up.
var ErrShape = errors.New("shape mismatch")

// Activation names the function applied to a layer's output.
type Activation string

const (
	ReLU    Activation = "relu"
	Softmax Activation = "softmax"
)

// Layer is a dense layer. Weights are row-major [Out][In].
type Layer struct {
	In         int        `json:"in"`
	Out        int        `json:"out"`
	Activation Activation `json:"activation"`
	Weights    []float64  `json:"weights"`
	Bias       []float64  `json:"bias"`
}

// Network is a feed-forward classifier: ReLU hidden layers and a softmax
// output giving a probability distribution over categories.
type Network struct {
	layers []Layer
}

// New creates a network with Glorot-uniform weights and zero biases.
func New(inputSize, classes int, hidden []int, rng *rand.Rand) (*Network, error) {
	if inputSize <= 0 || classes <= 0 {
		return nil, fmt.Errorf("%w: input size %d, classes %d", ErrShape, inputSize, classes)
	}

	sizes := make([]int, 0, len(hidden)+2)
	sizes = append(sizes, inputSize)
	sizes = append(sizes, hidden...)
	sizes = append(sizes, classes)

	n := &Network{}
	for i := 1; i < len(sizes); i++ {
		if sizes[i] <= 0 {
			return nil, fmt.Errorf("%w: layer %d has %d units", ErrShape, i, sizes[i])
		}
		act := ReLU
		if i == len(sizes)-1 {
			act = Softmax
		}
		n.layers = append(n.layers, newLayer(sizes[i-1], sizes[i], act, rng))
	}
	return n, nil
}

func newLayer(in, out int, act Activation, rng *rand.Rand) Layer {
	limit := math.Sqrt(6 / float64(in+out))
	weights := make([]float64, in*out)
	for i := range weights {
		weights[i] = (rng.Float64()*2 - 1) * limit
	}
	return Layer{
		In:         in,
		Out:        out,
		Activation: act,
		Weights:    weights,
		Bias:       make([]float64, out),
	}
}

// FromLayers rebuilds a network from exported layers.
func FromLayers(layers []Layer) (*Network, error) {
	if len(layers) == 0 {
		return nil, fmt.Errorf("%w: no layers", ErrShape)
	}
	n := &Network{layers: make([]Layer, len(layers))}
	for i, l := range layers {
		if l.In <= 0 || l.Out <= 0 || len(l.Weights) != l.In*l.Out || len(l.Bias) != l.Out {
			return nil, fmt.Errorf("%w: layer %d is %dx%d with %d weights and %d biases",
				ErrShape, i, l.Out, l.In, len(l.Weights), len(l.Bias))
		}
		if i > 0 && l.In != layers[i-1].Out {
			return nil, fmt.Errorf("%w: layer %d expects %d inputs, previous layer has %d outputs",
				ErrShape, i, l.In, layers[i-1].Out)
		}
		want := ReLU
		if i == len(layers)-1 {
			want = Softmax
		}
		if l.Activation != want {
			return nil, fmt.Errorf("layer %d: activation %q, expected %q", i, l.Activation, want)
		}
		n.layers[i] = cloneLayer(l)
	}
	return n, nil
}

// Layers returns a deep copy of the network's layers.
func (n *Network) Layers() []Layer {
	out := make([]Layer, len(n.layers))
	for i, l := range n.layers {
		out[i] = cloneLayer(l)
	}
	return out
}

func cloneLayer(l Layer) Layer {
	c := l
	c.Weights = append([]float64(nil), l.Weights...)
	c.Bias = append([]float64(nil), l.Bias...)
	return c
}

func (n *Network) InputSize() int  { return n.layers[0].In }
func (n *Network) OutputSize() int { return n.layers[len(n.layers)-1].Out }

// Predict returns the probability of every category for feature row x.
func (n *Network) Predict(x []float64) ([]float64, error) {
	if len(x) != n.InputSize() {
		return nil, fmt.Errorf("%w: input has %d values, network expects %d", ErrShape, len(x), n.InputSize())
	}
	acts := n.forward(x)
	return acts[len(acts)-1], nil
}

// forward returns every layer's activation, acts[0] being the input.
func (n *Network) forward(x []float64) [][]float64 {
	acts := make([][]float64, len(n.layers)+1)
	acts[0] = x
	for i := range n.layers {
		acts[i+1] = n.layers[i].apply(acts[i])
	}
	return acts
}

func (l *Layer) apply(x []float64) []float64 {
	out := make([]float64, l.Out)
	for o := 0; o < l.Out; o++ {
		row := l.Weights[o*l.In : (o+1)*l.In]
		sum := l.Bias[o]
		for j, w := range row {
			sum += w * x[j]
		}
		out[o] = sum
	}

	switch l.Activation {
	case ReLU:
		for i, v := range out {
			if v < 0 {
				out[i] = 0
			}
		}
	case Softmax:
		softmax(out)
	}
	return out
}

func softmax(v []float64) {
	peak := math.Inf(-1)
	for _, x := range v {
		if x > peak {
			peak = x
		}
	}
	var sum float64
	for i, x := range v {
		v[i] = math.Exp(x - peak)
		sum += v[i]
	}
	for i := range v {
		v[i] /= sum
	}
}

// gradient accumulates per-layer parameter gradients over a batch.
type gradient struct {
	weights []float64
	bias    []float64
}

func (n *Network) newGradients() []gradient {
	grads := make([]gradient, len(n.layers))
	for i, l := range n.layers {
		grads[i] = gradient{
			weights: make([]float64, len(l.Weights)),
			bias:    make([]float64, len(l.Bias)),
		}
	}
	return grads
}

func resetGradients(grads []gradient) {
	for i := range grads {
		clear(grads[i].weights)
		clear(grads[i].bias)
	}
}

// backward adds the cross-entropy gradients of one sample to grads. With a
// softmax output the output delta is simply probabilities minus the one-hot
// target.
func (n *Network) backward(acts [][]float64, target int, grads []gradient) {
	last := len(n.layers)
	delta := append([]float64(nil), acts[last]...)
	delta[target] -= 1

	for l := last - 1; l >= 0; l-- {
		layer := &n.layers[l]
		in := acts[l]
		g := &grads[l]

		for o := 0; o < layer.Out; o++ {
			d := delta[o]
			if d == 0 {
				continue
			}
			g.bias[o] += d
			row := g.weights[o*layer.In : (o+1)*layer.In]
			for j, x := range in {
				row[j] += d * x
			}
		}
		if l == 0 {
			break
		}

		prev := make([]float64, layer.In)
		for o := 0; o < layer.Out; o++ {
			d := delta[o]
			if d == 0 {
				continue
			}
			row := layer.Weights[o*layer.In : (o+1)*layer.In]
			for j, w := range row {
				prev[j] += w * d
			}
		}
		// Hidden layers are ReLU: no gradient where the unit was inactive.
		for j := range prev {
			if in[j] <= 0 {
				prev[j] = 0
			}
		}
		delta = prev
	}
}

// crossEntropy is the categorical cross-entropy of one prediction, with
// probabilities clipped away from 0 and 1.
func crossEntropy(probs []float64, target int) float64 {
	const eps = 1e-7
	p := math.Min(math.Max(probs[target], eps), 1-eps)
	return -math.Log(p)
}

// Argmax returns the index of the largest value, the first one on ties.
func Argmax(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}
