// Package traversal implements hop-limited breadth-first expansion and
// shortest path search over a read-locked graph view.
package traversal

import (
	"context"
	"slices"

	"peoplegraph/backend/internal/graph"
	apperrors "peoplegraph/backend/pkg/errors"
)

// checkEvery is how many visited nodes pass between context checks.
const checkEvery = 256

// Reached is a node discovered by Expand together with its hop distance.
type Reached struct {
	Ref  graph.NodeRef
	Hops int
}

// Set is a set of node refs.
type Set map[graph.NodeRef]struct{}

// NewSet builds a set from refs.
func NewSet(refs ...graph.NodeRef) Set {
	s := make(Set, len(refs))
	for _, r := range refs {
		s[r] = struct{}{}
	}
	return s
}

func (s Set) Has(r graph.NodeRef) bool {
	_, ok := s[r]
	return ok
}

// Sorted returns the members in ascending order.
func (s Set) Sorted() []graph.NodeRef {
	out := make([]graph.NodeRef, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	slices.SortFunc(out, graph.NodeRef.Compare)
	return out
}

// CountCommon returns |a ∩ b|.
func CountCommon(a, b Set) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for r := range a {
		if b.Has(r) {
			n++
		}
	}
	return n
}

// Intersect returns a ∩ b in ascending order.
func Intersect(a, b Set) []graph.NodeRef {
	if len(a) > len(b) {
		a, b = b, a
	}
	var out []graph.NodeRef
	for r := range a {
		if b.Has(r) {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, graph.NodeRef.Compare)
	return out
}

// Expand runs a breadth-first search from seed over edges of type t in
// direction dir, up to maxHops hops. Each node is reported once, at the hop
// it was first discovered. Nodes in exclude (and the seed) are still walked
// through but never reported. Results are ordered by hops, then by ref.
//
// The search stops with a Cancelled error as soon as ctx is done; partial
// results are discarded.
func Expand(ctx context.Context, v *graph.View, seed graph.NodeRef, t graph.EdgeType, dir graph.Direction, maxHops int, exclude Set) ([]Reached, error) {
	if maxHops < 1 {
		return nil, apperrors.NewInvalidInput("maxHops", "must be at least 1")
	}
	if !v.Exists(seed) {
		return nil, graph.NotFound(seed)
	}

	visited := NewSet(seed)
	frontier := []graph.NodeRef{seed}
	var out []Reached
	steps := 0

	for hop := 1; hop <= maxHops && len(frontier) > 0; hop++ {
		var next []graph.NodeRef
		for _, n := range frontier {
			for w := range v.Neighbors(n, t, dir) {
				if steps++; steps%checkEvery == 0 {
					if err := ctx.Err(); err != nil {
						return nil, apperrors.FromContext("expand", err)
					}
				}
				if visited.Has(w) {
					continue
				}
				visited[w] = struct{}{}
				next = append(next, w)
				if !exclude.Has(w) {
					out = append(out, Reached{Ref: w, Hops: hop})
				}
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, apperrors.FromContext("expand", err)
		}
		slices.SortFunc(next, graph.NodeRef.Compare)
		frontier = next
	}

	slices.SortStableFunc(out, func(a, b Reached) int {
		if a.Hops != b.Hops {
			return a.Hops - b.Hops
		}
		return a.Ref.Compare(b.Ref)
	})
	return out, nil
}
