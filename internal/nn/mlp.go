package nn

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// MLP is a feedforward policy network. Layer l is stored as an
// (in+1) x units matrix: one column per output unit, the last row holds the
// biases.
type MLP struct {
	InputSize int
	UnitSizes []int

	Layers []*mat.Dense

	// Pre-allocated activations, one per layer (no allocations in hot path)
	acts []*mat.VecDense
}

// NewMLP creates a zero-weight MLP with the given architecture
func NewMLP(inputSize int, unitSizes []int) *MLP {
	m := &MLP{
		InputSize: inputSize,
		UnitSizes: append([]int(nil), unitSizes...),
	}

	in := inputSize
	for _, units := range unitSizes {
		m.Layers = append(m.Layers, mat.NewDense(in+1, units, nil))
		m.acts = append(m.acts, mat.NewVecDense(units, nil))
		in = units
	}
	return m
}

// OutputSize returns the width of the last layer
func (m *MLP) OutputSize() int {
	if len(m.UnitSizes) == 0 {
		return m.InputSize
	}
	return m.UnitSizes[len(m.UnitSizes)-1]
}

// GenomeSize returns the total number of weights (including biases)
func (m *MLP) GenomeSize() int {
	size := 0
	for _, l := range m.Layers {
		r, c := l.Dims()
		size += r * c
	}
	return size
}

// Weights returns a copy of the layer tensors
func (m *MLP) Weights() []*mat.Dense {
	return CloneWeights(m.Layers)
}

// SetWeights copies the given layer tensors into the network
func (m *MLP) SetWeights(ws []*mat.Dense) error {
	if len(ws) != len(m.Layers) {
		return fmt.Errorf("set weights: got %d layers, want %d", len(ws), len(m.Layers))
	}
	for i, w := range ws {
		wr, wc := w.Dims()
		r, c := m.Layers[i].Dims()
		if wr != r || wc != c {
			return fmt.Errorf("set weights: layer %d is %dx%d, want %dx%d", i, wr, wc, r, c)
		}
		m.Layers[i].Copy(w)
	}
	return nil
}

// Predict performs a forward pass and returns the raw output values.
// Hidden layers use tanh; the output layer is linear.
func (m *MLP) Predict(obs []float64) []float64 {
	x := obs
	if len(x) > m.InputSize {
		x = x[:m.InputSize]
	}
	for l, w := range m.Layers {
		in, units := w.Dims()
		in-- // bias row

		input := make([]float64, in)
		copy(input, x)

		act := m.acts[l]
		act.MulVec(w.Slice(0, in, 0, units).T(), mat.NewVecDense(in, input))
		act.AddVec(act, mat.NewVecDense(units, w.RawRowView(in)))

		if l < len(m.Layers)-1 {
			for j := 0; j < units; j++ {
				act.SetVec(j, math.Tanh(act.AtVec(j)))
			}
		}
		x = act.RawVector().Data
	}

	out := make([]float64, len(x))
	copy(out, x)
	return out
}

// RandomWeights generates random layer tensors for the given architecture
func RandomWeights(inputSize int, unitSizes []int, rng *rand.Rand) []*mat.Dense {
	ws := make([]*mat.Dense, 0, len(unitSizes))
	in := inputSize
	for _, units := range unitSizes {
		// Xavier-like initialization
		scale := math.Sqrt(2.0 / float64(in+units))
		data := make([]float64, (in+1)*units)
		for i := range data {
			data[i] = rng.NormFloat64() * scale
		}
		ws = append(ws, mat.NewDense(in+1, units, data))
		in = units
	}
	return ws
}

// CloneWeights makes a deep copy of layer tensors
func CloneWeights(src []*mat.Dense) []*mat.Dense {
	dst := make([]*mat.Dense, len(src))
	for i, w := range src {
		dst[i] = mat.DenseCopyOf(w)
	}
	return dst
}

// Flatten concatenates layer tensors row-major
func Flatten(ws []*mat.Dense) []float64 {
	var out []float64
	for _, w := range ws {
		r, _ := w.Dims()
		for i := 0; i < r; i++ {
			out = append(out, w.RawRowView(i)...)
		}
	}
	return out
}

// Unflatten rebuilds layer tensors for an architecture from a flat genome
func Unflatten(flat []float64, inputSize int, unitSizes []int) ([]*mat.Dense, error) {
	ws := make([]*mat.Dense, 0, len(unitSizes))
	in, offset := inputSize, 0
	for _, units := range unitSizes {
		n := (in + 1) * units
		if offset+n > len(flat) {
			return nil, fmt.Errorf("unflatten: genome has %d values, architecture needs more", len(flat))
		}
		data := make([]float64, n)
		copy(data, flat[offset:offset+n])
		ws = append(ws, mat.NewDense(in+1, units, data))
		offset += n
		in = units
	}
	if offset != len(flat) {
		return nil, fmt.Errorf("unflatten: genome has %d values, architecture needs %d", len(flat), offset)
	}
	return ws, nil
}
