package randutil

import (
	"math"
	"math/rand"
	"reflect"
	"testing"
)

func TestRankDescending(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   []int
	}{
		{"empty", []float64{}, []int{}},
		{"distinct", []float64{1, 3, 2}, []int{1, 2, 0}},
		{"ties keep index order", []float64{2, 5, 2, 5}, []int{1, 3, 0, 2}},
		{"nan last", []float64{math.NaN(), -4, 0}, []int{2, 1, 0}},
		{"inf last", []float64{math.Inf(1), 1}, []int{1, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RankDescending(tt.values)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("RankDescending(%v) = %v, want %v", tt.values, got, tt.want)
			}
		})
	}
}

func TestInverseOfPermutation(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	perm := Permutation(rng, 10)
	inv := Inverse(perm)
	for i, p := range perm {
		if inv[p] != i {
			t.Fatalf("inv[perm[%d]] = %d, want %d", i, inv[p], i)
		}
	}
}

func TestReorder(t *testing.T) {
	got := Reorder([]string{"a", "b", "c"}, []int{2, 0, 1})
	want := []string{"c", "a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Reorder = %v, want %v", got, want)
	}
}

func TestArgmax(t *testing.T) {
	if got := Argmax([]float64{math.NaN(), 1, 4, 4}); got != 2 {
		t.Fatalf("Argmax = %d, want 2", got)
	}
	if got := Argmax(nil); got != -1 {
		t.Fatalf("Argmax(nil) = %d, want -1", got)
	}
}

func TestUniformRange(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		v := Uniform(rng, -math.Pi/2, math.Pi/2)
		if v < -math.Pi/2 || v >= math.Pi/2 {
			t.Fatalf("sample %v out of range", v)
		}
	}
}
