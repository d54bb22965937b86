package recommend

import (
	"context"
	"iter"
	"maps"
	"slices"

	"peoplegraph/backend/internal/graph"
	"peoplegraph/backend/internal/traversal"
	apperrors "peoplegraph/backend/pkg/errors"

	"golang.org/x/sync/errgroup"
)

// ConnectionSuggestions ranks friends of friends by how many of the user's
// connections they share.
func (e *Engine) ConnectionSuggestions(ctx context.Context, userID int64, limit int) ([]Suggestion, error) {
	if err := requireLimit(limit); err != nil {
		return nil, err
	}

	var out []Suggestion
	err := e.run(ctx, "connection_suggestions", func(ctx context.Context, v *graph.View) (int, error) {
		if _, err := seedUser(v, userID); err != nil {
			return 0, err
		}
		seed := graph.UserRef(userID)
		friends := traversal.Set(v.NeighborSet(seed, graph.EdgeConnectedTo, graph.Outgoing))

		reached, err := traversal.Expand(ctx, v, seed, graph.EdgeConnectedTo, graph.Outgoing, 2, excluded(v, seed))
		if err != nil {
			return 0, err
		}

		cands := make([]scored, 0, len(reached))
		for _, r := range reached {
			if r.Ref.Variant != graph.VariantUser {
				continue
			}
			theirs := traversal.Set(v.NeighborSet(r.Ref, graph.EdgeConnectedTo, graph.Outgoing))
			cands = append(cands, scored{id: r.Ref.ID, score: traversal.CountCommon(friends, theirs)})
		}

		out = e.projectAll(v, rank(cands, limit), func(s *Suggestion, n int) { s.MutualFriends = intPtr(n) })
		return len(out), nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PeopleYouMayKnow builds four candidate sets (colleagues, same industry,
// same location, shared skills) and scores each candidate by how many of the
// sets contain it. Signals are not weighted.
func (e *Engine) PeopleYouMayKnow(ctx context.Context, userID int64, limit int) ([]Suggestion, error) {
	if err := requireLimit(limit); err != nil {
		return nil, err
	}

	var out []Suggestion
	err := e.run(ctx, "people_you_may_know", func(ctx context.Context, v *graph.View) (int, error) {
		u, err := seedUser(v, userID)
		if err != nil {
			return 0, err
		}
		seed := u.Ref()
		exclude := excluded(v, seed)

		generators := []func() map[int64]struct{}{
			func() map[int64]struct{} { return sharedTargets(v, seed, graph.EdgeWorkedAt) },
			func() map[int64]struct{} { return collectIDs(v.UsersByIndustry(u.Industry)) },
			func() map[int64]struct{} { return collectIDs(v.UsersByLocation(u.Location)) },
			func() map[int64]struct{} { return sharedTargets(v, seed, graph.EdgeHasSkill) },
		}
		sets := make([]map[int64]struct{}, len(generators))

		g, gctx := errgroup.WithContext(ctx)
		for i, gen := range generators {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				sets[i] = gen()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return 0, err
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		counts := make(map[int64]int)
		for _, set := range sets {
			for id := range set {
				if !exclude.Has(graph.UserRef(id)) {
					counts[id]++
				}
			}
		}
		cands := make([]scored, 0, len(counts))
		for _, id := range slices.Sorted(maps.Keys(counts)) {
			cands = append(cands, scored{id: id, score: counts[id]})
		}

		out = e.projectAll(v, rank(cands, limit), func(s *Suggestion, n int) { s.RelevanceScore = intPtr(n) })
		return len(out), nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MutualConnections returns the users connected to both a and b, ordered by id.
// A user has no mutual connections with themselves.
func (e *Engine) MutualConnections(ctx context.Context, userA, userB int64) ([]Suggestion, error) {
	out := []Suggestion{}
	err := e.run(ctx, "mutual_connections", func(ctx context.Context, v *graph.View) (int, error) {
		for _, id := range []int64{userA, userB} {
			if _, err := seedUser(v, id); err != nil {
				return 0, err
			}
		}
		if userA == userB {
			return 0, nil
		}
		a := traversal.Set(v.NeighborSet(graph.UserRef(userA), graph.EdgeConnectedTo, graph.Outgoing))
		b := traversal.Set(v.NeighborSet(graph.UserRef(userB), graph.EdgeConnectedTo, graph.Outgoing))
		for _, r := range traversal.Intersect(a, b) {
			if u, ok := v.User(r.ID); ok {
				out = append(out, project(u))
			}
		}
		return len(out), nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AffinityRanking scores every user that is not the seed or one of its
// connections:
//
//	mutual*3 + skills*2 + companies*4 + (same industry ? 2 : 0) + (same location ? 1 : 0)
//
// Only strictly positive scores are returned. Candidates are scored in shards
// concurrently; all shards read the same locked view.
func (e *Engine) AffinityRanking(ctx context.Context, userID int64, limit int) ([]Suggestion, error) {
	if err := requireLimit(limit); err != nil {
		return nil, err
	}

	var out []Suggestion
	err := e.run(ctx, "affinity_ranking", func(ctx context.Context, v *graph.View) (int, error) {
		u, err := seedUser(v, userID)
		if err != nil {
			return 0, err
		}
		seed := newProfile(v, u)
		exclude := excluded(v, u.Ref())

		ids := make([]int64, 0, v.UserCount())
		for id := range v.UserIDs() {
			if !exclude.Has(graph.UserRef(id)) {
				ids = append(ids, id)
			}
		}

		results := make([][]scored, e.shards)
		chunk := (len(ids) + e.shards - 1) / e.shards
		g, gctx := errgroup.WithContext(ctx)
		for i := 0; i < e.shards && i*chunk < len(ids); i++ {
			part := ids[i*chunk : min((i+1)*chunk, len(ids))]
			g.Go(func() error {
				shard := make([]scored, 0, len(part))
				for n, id := range part {
					if n%256 == 0 {
						if err := gctx.Err(); err != nil {
							return err
						}
					}
					other, ok := v.User(id)
					if !ok {
						continue
					}
					shard = append(shard, scored{id: id, score: seed.affinity(v, other)})
				}
				results[i] = shard
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return 0, err
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		out = e.projectAll(v, rank(slices.Concat(results...), limit), func(s *Suggestion, n int) { s.AffinityScore = intPtr(n) })
		return len(out), nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ConnectionCount returns the number of distinct users connected to userID.
func (e *Engine) ConnectionCount(ctx context.Context, userID int64) (int, error) {
	var count int
	err := e.run(ctx, "connection_count", func(ctx context.Context, v *graph.View) (int, error) {
		if _, err := seedUser(v, userID); err != nil {
			return 0, err
		}
		count = v.Degree(graph.UserRef(userID), graph.EdgeConnectedTo, graph.Outgoing)
		return 1, nil
	})
	return count, err
}

// PathResult is the shortest path between two users.
type PathResult struct {
	From       int64        `json:"from"`
	To         int64        `json:"to"`
	PathLength int          `json:"pathLength"`
	Path       []Suggestion `json:"path"`
	Connected  bool         `json:"connected"`
}

// FindShortestPath returns a minimum-hop CONNECTED_TO path between two users.
// Unconnected users yield Connected == false and PathLength -1, not an error.
func (e *Engine) FindShortestPath(ctx context.Context, fromID, toID int64) (PathResult, error) {
	res := PathResult{From: fromID, To: toID, Path: []Suggestion{}}
	err := e.run(ctx, "shortest_path", func(ctx context.Context, v *graph.View) (int, error) {
		p, err := traversal.ShortestPath(ctx, v, graph.UserRef(fromID), graph.UserRef(toID), graph.EdgeConnectedTo, graph.Outgoing)
		if err != nil {
			return 0, err
		}
		res.Connected = p.Connected
		res.PathLength = p.Length()
		for _, r := range p.Nodes {
			u, ok := v.User(r.ID)
			if !ok {
				return 0, apperrors.NewInternal("shortest path", graph.NotFound(r))
			}
			res.Path = append(res.Path, project(u))
		}
		return len(res.Path), nil
	})
	if err != nil {
		return PathResult{}, err
	}
	return res, nil
}

// ============================================================================
// Signals
// ============================================================================

// profile caches the seed's neighbor sets for affinity scoring.
type profile struct {
	user      *graph.User
	conns     traversal.Set
	skills    traversal.Set
	companies traversal.Set
}

func newProfile(v *graph.View, u *graph.User) profile {
	ref := u.Ref()
	return profile{
		user:      u,
		conns:     traversal.Set(v.NeighborSet(ref, graph.EdgeConnectedTo, graph.Outgoing)),
		skills:    traversal.Set(v.NeighborSet(ref, graph.EdgeHasSkill, graph.Outgoing)),
		companies: traversal.Set(v.NeighborSet(ref, graph.EdgeWorkedAt, graph.Outgoing)),
	}
}

func (p profile) affinity(v *graph.View, other *graph.User) int {
	ref := other.Ref()
	score := traversal.CountCommon(p.conns, traversal.Set(v.NeighborSet(ref, graph.EdgeConnectedTo, graph.Outgoing)))*WeightMutualConnection +
		traversal.CountCommon(p.skills, traversal.Set(v.NeighborSet(ref, graph.EdgeHasSkill, graph.Outgoing)))*WeightCommonSkill +
		traversal.CountCommon(p.companies, traversal.Set(v.NeighborSet(ref, graph.EdgeWorkedAt, graph.Outgoing)))*WeightCommonCompany
	if p.user.Industry != "" && other.Industry == p.user.Industry {
		score += WeightSameIndustry
	}
	if p.user.Location != "" && other.Location == p.user.Location {
		score += WeightSameLocation
	}
	return score
}

// sharedTargets returns users with an edge of type t to any node seed has an
// edge of type t to: colleagues for WORKED_AT, skill matches for HAS_SKILL.
func sharedTargets(v *graph.View, seed graph.NodeRef, t graph.EdgeType) map[int64]struct{} {
	out := make(map[int64]struct{})
	for target := range v.Neighbors(seed, t, graph.Outgoing) {
		for r := range v.Neighbors(target, t, graph.Incoming) {
			if r.Variant == graph.VariantUser {
				out[r.ID] = struct{}{}
			}
		}
	}
	return out
}

func collectIDs(seq iter.Seq[int64]) map[int64]struct{} {
	out := make(map[int64]struct{})
	for id := range seq {
		out[id] = struct{}{}
	}
	return out
}
