package genotype

import (
	"errors"
	"fmt"
)

// ErrInvariant reports a logic defect in the structural encoding. It is never
// a data condition and callers must not recover from it.
var ErrInvariant = errors.New("structural invariant violated")

// Node is one vertex of a decoded structural tree
type Node struct {
	Children []*Node
}

// Size returns the number of nodes in the subtree
func (n *Node) Size() int {
	size := 1
	for _, c := range n.Children {
		size += c.Size()
	}
	return size
}

// IsValid reports whether structure decodes to exactly one rooted tree
func IsValid(structure []int) bool {
	if len(structure) == 0 {
		return false
	}
	sum := 0
	pending := 1
	for i, d := range structure {
		if d < 0 || pending == 0 {
			return false
		}
		sum += d
		pending += d - 1
		if pending == 0 && i != len(structure)-1 {
			return false
		}
	}
	return pending == 0 && sum == len(structure)-1
}

// Decode turns a pre-order out-degree sequence into a tree
func Decode(structure []int) (*Node, error) {
	if !IsValid(structure) {
		return nil, fmt.Errorf("decode %v: %w", structure, ErrInvariant)
	}
	pos := 0
	var build func() *Node
	build = func() *Node {
		n := &Node{}
		d := structure[pos]
		pos++
		for i := 0; i < d; i++ {
			n.Children = append(n.Children, build())
		}
		return n
	}
	return build(), nil
}

// Encode turns a tree into its pre-order out-degree sequence
func Encode(root *Node) []int {
	var out []int
	var walk func(n *Node)
	walk = func(n *Node) {
		out = append(out, len(n.Children))
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(root)
	return out
}

// CorrectStructure repairs a perturbed degree sequence into a valid tree of
// breadth (len-1) at most maxBreadth.
//
// The walk keeps a count of open child slots, starting at one for the root.
// Elements past the point where every slot is filled are dropped; if the
// input runs out first, leaves are appended. A leading zero is forced to one
// so the root always keeps a branch. When the result is too broad the first
// highest-degree entry loses one child and the repair runs again; a root of
// degree one is skipped there since the forced branch would restore it.
func CorrectStructure(seq []int, maxBreadth int) ([]int, error) {
	if maxBreadth < 1 {
		return nil, fmt.Errorf("correct structure: max breadth %d < 1", maxBreadth)
	}

	in := append([]int(nil), seq...)
	if len(in) == 0 {
		in = []int{0}
	}
	if in[0] <= 0 {
		// TODO: revisit the forced root branch if bare-root limbs become legal.
		in[0] = 1
	}

	out := make([]int, 0, len(in)+1)
	pending := 1
	for _, v := range in {
		if pending == 0 {
			break
		}
		if v < 0 {
			v = 0
		}
		out = append(out, v)
		pending += v - 1
	}
	for pending > 0 {
		out = append(out, 0)
		pending--
	}

	sum := 0
	for _, v := range out {
		sum += v
	}
	if sum != len(out)-1 {
		return nil, fmt.Errorf("correct structure %v: degree sum %d, length %d: %w", seq, sum, len(out), ErrInvariant)
	}

	if len(out)-1 > maxBreadth {
		hi := -1
		for i, v := range out {
			if i == 0 && v == 1 {
				continue
			}
			if hi < 0 || v > out[hi] {
				hi = i
			}
		}
		out[hi]--
		return CorrectStructure(out, maxBreadth)
	}
	return out, nil
}
