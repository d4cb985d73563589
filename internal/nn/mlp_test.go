package nn

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestNewMLPShapes(t *testing.T) {
	m := NewMLP(3, []int{4, 2})
	if len(m.Layers) != 2 {
		t.Fatalf("layers = %d, want 2", len(m.Layers))
	}
	r, c := m.Layers[0].Dims()
	if r != 4 || c != 4 {
		t.Fatalf("layer 0 dims = %dx%d, want 4x4", r, c)
	}
	r, c = m.Layers[1].Dims()
	if r != 5 || c != 2 {
		t.Fatalf("layer 1 dims = %dx%d, want 5x2", r, c)
	}
	if m.GenomeSize() != 16+10 {
		t.Fatalf("genome size = %d, want 26", m.GenomeSize())
	}
	if m.OutputSize() != 2 {
		t.Fatalf("output size = %d, want 2", m.OutputSize())
	}
}

func TestPredictSingleLinearLayer(t *testing.T) {
	m := NewMLP(2, []int{1})
	w := mat.NewDense(3, 1, []float64{
		2,   // x0
		-1,  // x1
		0.5, // bias
	})
	if err := m.SetWeights([]*mat.Dense{w}); err != nil {
		t.Fatalf("set weights: %v", err)
	}
	out := m.Predict([]float64{3, 4})
	if math.Abs(out[0]-2.5) > 1e-12 {
		t.Fatalf("output = %v, want 2.5", out[0])
	}
}

func TestPredictHiddenUsesTanh(t *testing.T) {
	m := NewMLP(1, []int{1, 1})
	hidden := mat.NewDense(2, 1, []float64{1, 0})
	output := mat.NewDense(2, 1, []float64{1, 0})
	if err := m.SetWeights([]*mat.Dense{hidden, output}); err != nil {
		t.Fatalf("set weights: %v", err)
	}
	out := m.Predict([]float64{0.7})
	if math.Abs(out[0]-math.Tanh(0.7)) > 1e-12 {
		t.Fatalf("output = %v, want tanh(0.7)", out[0])
	}
}

func TestSetWeightsRejectsShapeMismatch(t *testing.T) {
	m := NewMLP(2, []int{3})
	if err := m.SetWeights([]*mat.Dense{mat.NewDense(2, 3, nil)}); err == nil {
		t.Fatal("expected shape mismatch error")
	}
	if err := m.SetWeights(nil); err == nil {
		t.Fatal("expected layer count error")
	}
}

func TestFlattenUnflattenRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	ws := RandomWeights(4, []int{5, 2}, rng)
	flat := Flatten(ws)
	back, err := Unflatten(flat, 4, []int{5, 2})
	if err != nil {
		t.Fatalf("unflatten: %v", err)
	}
	for i := range ws {
		if !mat.Equal(ws[i], back[i]) {
			t.Fatalf("layer %d differs after round trip", i)
		}
	}
	if _, err := Unflatten(flat[:len(flat)-1], 4, []int{5, 2}); err == nil {
		t.Fatal("expected error for short genome")
	}
}

func TestCloneWeightsIsDeep(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	ws := RandomWeights(2, []int{2}, rng)
	clone := CloneWeights(ws)
	clone[0].Set(0, 0, 100)
	if ws[0].At(0, 0) == 100 {
		t.Fatal("clone shares backing data with source")
	}
}
