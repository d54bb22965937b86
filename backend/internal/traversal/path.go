package traversal

import (
	"context"
	"slices"

	"peoplegraph/backend/internal/graph"
	apperrors "peoplegraph/backend/pkg/errors"
)

// Path is the result of ShortestPath. When Connected is false Nodes is empty.
type Path struct {
	Nodes     []graph.NodeRef
	Connected bool
}

// Length is the number of hops, or -1 when the endpoints are not connected.
func (p Path) Length() int {
	if !p.Connected {
		return -1
	}
	return len(p.Nodes) - 1
}

// side is one half of a bidirectional search.
type side struct {
	parent   map[graph.NodeRef]graph.NodeRef
	frontier []graph.NodeRef
}

func newSide(start graph.NodeRef) *side {
	return &side{
		parent:   map[graph.NodeRef]graph.NodeRef{start: {}},
		frontier: []graph.NodeRef{start},
	}
}

func (s *side) seen(r graph.NodeRef) bool {
	_, ok := s.parent[r]
	return ok
}

// ShortestPath finds a minimum-hop path from -> to over edges of type t with a
// bidirectional breadth-first search. Both searches expand one full level at a
// time, walking frontiers and neighbors in ascending ref order, so the first
// discoverer of a node is always its lowest-ref parent. Among meeting nodes the
// lowest ref wins, which makes the returned path reproducible.
//
// Unknown endpoints are NotFound; unreachable ones yield Path{Connected: false}.
func ShortestPath(ctx context.Context, v *graph.View, from, to graph.NodeRef, t graph.EdgeType, dir graph.Direction) (Path, error) {
	for _, r := range []graph.NodeRef{from, to} {
		if !v.Exists(r) {
			return Path{}, graph.NotFound(r)
		}
	}
	if from == to {
		return Path{Nodes: []graph.NodeRef{from}, Connected: true}, nil
	}

	fwd, bwd := newSide(from), newSide(to)

	for len(fwd.frontier) > 0 && len(bwd.frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return Path{}, apperrors.FromContext("shortest path", err)
		}

		// Grow the smaller frontier; forward wins ties.
		grow, other := fwd, bwd
		if len(bwd.frontier) < len(fwd.frontier) {
			grow, other = bwd, fwd
		}

		var next, meet []graph.NodeRef
		for _, n := range grow.frontier {
			for w := range v.Neighbors(n, t, dir) {
				if grow.seen(w) {
					continue
				}
				grow.parent[w] = n
				next = append(next, w)
				if other.seen(w) {
					meet = append(meet, w)
				}
			}
		}
		if len(meet) > 0 {
			return Path{Nodes: join(fwd, bwd, slices.MinFunc(meet, graph.NodeRef.Compare)), Connected: true}, nil
		}
		slices.SortFunc(next, graph.NodeRef.Compare)
		grow.frontier = next
	}
	return Path{}, nil
}

// join stitches the two parent chains together at the meeting node.
func join(fwd, bwd *side, meet graph.NodeRef) []graph.NodeRef {
	var head []graph.NodeRef
	for n := meet; !n.IsZero(); n = fwd.parent[n] {
		head = append(head, n)
	}
	slices.Reverse(head)
	for n := bwd.parent[meet]; !n.IsZero(); n = bwd.parent[n] {
		head = append(head, n)
	}
	return head
}
