package genotype

import (
	"errors"
	"math/rand"
	"reflect"
	"testing"
)

func sum(xs []int) int {
	s := 0
	for _, x := range xs {
		s += x
	}
	return s
}

func TestCorrectStructureKnownCases(t *testing.T) {
	tests := []struct {
		name       string
		in         []int
		maxBreadth int
		want       []int
	}{
		{"valid unchanged", []int{2, 0, 0}, 8, []int{2, 0, 0}},
		{"too broad single node", []int{3}, 2, []int{2, 0, 0}},
		{"leading zero forced", []int{0}, 4, []int{1, 0}},
		{"empty", nil, 4, []int{1, 0}},
		{"missing leaves appended", []int{1, 2}, 8, []int{1, 2, 0, 0}},
		{"trailing elements dropped", []int{1, 0, 3, 1}, 8, []int{1, 0}},
		{"chain", []int{1, 1, 1, 0}, 8, []int{1, 1, 1, 0}},
		{"chain too long keeps the root branch", []int{1, 1, 1, 0}, 2, []int{1, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CorrectStructure(tt.in, tt.maxBreadth)
			if err != nil {
				t.Fatalf("CorrectStructure(%v): %v", tt.in, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("CorrectStructure(%v, %d) = %v, want %v", tt.in, tt.maxBreadth, got, tt.want)
			}
		})
	}
}

func TestCorrectStructureRandomSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	for i := 0; i < 2000; i++ {
		n := rng.Intn(12)
		seq := make([]int, n)
		for j := range seq {
			seq[j] = rng.Intn(5)
		}
		maxBreadth := 1 + rng.Intn(8)

		got, err := CorrectStructure(seq, maxBreadth)
		if err != nil {
			t.Fatalf("CorrectStructure(%v, %d): %v", seq, maxBreadth, err)
		}
		if sum(got) != len(got)-1 {
			t.Fatalf("CorrectStructure(%v) = %v: sum %d != len-1", seq, got, sum(got))
		}
		if len(got)-1 > maxBreadth {
			t.Fatalf("CorrectStructure(%v) = %v: breadth %d > %d", seq, got, len(got)-1, maxBreadth)
		}
		if !IsValid(got) {
			t.Fatalf("CorrectStructure(%v) = %v is not a valid tree", seq, got)
		}

		again, err := CorrectStructure(got, maxBreadth)
		if err != nil {
			t.Fatalf("second repair of %v: %v", got, err)
		}
		if !reflect.DeepEqual(again, got) {
			t.Fatalf("repair not idempotent: %v -> %v", got, again)
		}
	}
}

func TestCorrectStructureRejectsZeroBreadth(t *testing.T) {
	if _, err := CorrectStructure([]int{1, 0}, 0); err == nil {
		t.Fatal("expected error for max breadth 0")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := [][]int{
		{0},
		{1, 0},
		{2, 0, 0},
		{2, 1, 0, 2, 0, 0},
		{3, 0, 1, 1, 0, 0},
	}
	for _, structure := range cases {
		root, err := Decode(structure)
		if err != nil {
			t.Fatalf("Decode(%v): %v", structure, err)
		}
		if root.Size() != len(structure) {
			t.Fatalf("Decode(%v) size = %d", structure, root.Size())
		}
		if got := Encode(root); !reflect.DeepEqual(got, structure) {
			t.Fatalf("Encode(Decode(%v)) = %v", structure, got)
		}
	}
}

func TestDecodeRejectsInvalid(t *testing.T) {
	for _, structure := range [][]int{{}, {2, 0}, {1, 0, 0}, {0, 1}} {
		if _, err := Decode(structure); !errors.Is(err, ErrInvariant) {
			t.Fatalf("Decode(%v) error = %v, want ErrInvariant", structure, err)
		}
	}
}
