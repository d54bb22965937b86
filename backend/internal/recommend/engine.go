// Package recommend ranks users for connection suggestions, people you may
// know and affinity, and answers mutual-connection and shortest path queries.
package recommend

import (
	"context"
	"slices"
	"time"

	"peoplegraph/backend/internal/graph"
	"peoplegraph/backend/internal/metrics"
	"peoplegraph/backend/internal/traversal"
	apperrors "peoplegraph/backend/pkg/errors"
	"peoplegraph/backend/pkg/logger"

	"go.uber.org/zap"
)

// DefaultTimeout bounds a query when the caller's context has no deadline.
const DefaultTimeout = 5 * time.Second

// Affinity weights. These are fixed policy and must not vary per call.
const (
	WeightMutualConnection = 3
	WeightCommonSkill      = 2
	WeightCommonCompany    = 4
	WeightSameIndustry     = 2
	WeightSameLocation     = 1
)

// Engine runs read-only ranking queries against a graph store. Each query
// holds the store's read lock for its whole run.
type Engine struct {
	store   *graph.Store
	logger  *zap.Logger
	timeout time.Duration
	shards  int
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimeout sets the per-query timeout applied when ctx has no deadline.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithShards sets how many goroutines score affinity candidates.
func WithShards(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.shards = n
		}
	}
}

// NewEngine creates a query engine over store.
func NewEngine(store *graph.Store, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		logger:  logger.Named("recommend"),
		timeout: DefaultTimeout,
		shards:  4,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Suggestion is the projection every ranking query returns. Exactly one score
// field is set, depending on the query; mutual connections set none.
type Suggestion struct {
	ID             int64  `json:"id"`
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	Headline       string `json:"headline,omitempty"`
	Industry       string `json:"industry,omitempty"`
	Location       string `json:"location,omitempty"`
	MutualFriends  *int   `json:"mutualFriends,omitempty"`
	RelevanceScore *int   `json:"relevanceScore,omitempty"`
	AffinityScore  *int   `json:"affinityScore,omitempty"`
}

func project(u *graph.User) Suggestion {
	return Suggestion{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Headline:  u.Headline,
		Industry:  u.Industry,
		Location:  u.Location,
	}
}

// scored is a candidate with its folded score.
type scored struct {
	id    int64
	score int
}

// rank sorts by score descending then id ascending, drops non-positive
// scores and truncates to limit.
func rank(cands []scored, limit int) []scored {
	cands = slices.DeleteFunc(cands, func(c scored) bool { return c.score <= 0 })
	slices.SortFunc(cands, func(a, b scored) int {
		if a.score != b.score {
			return b.score - a.score
		}
		switch {
		case a.id < b.id:
			return -1
		case a.id > b.id:
			return 1
		}
		return 0
	})
	if len(cands) > limit {
		cands = cands[:limit]
	}
	return cands
}

// ============================================================================
// Query plumbing
// ============================================================================

// run applies the default timeout, holds the read lock for fn, converts
// context errors and records metrics.
func (e *Engine) run(ctx context.Context, query string, fn func(ctx context.Context, v *graph.View) (int, error)) error {
	start := time.Now()
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	var results int
	err := e.store.Read(func(v *graph.View) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		var err error
		results, err = fn(ctx, v)
		return err
	})
	err = apperrors.FromContext(query, err)

	metrics.ObserveQuery(query, start, results, err)
	if err != nil {
		e.logger.Debug("Query failed", zap.String("query", query), zap.Error(err))
		return err
	}
	e.logger.Debug("Query completed",
		zap.String("query", query),
		zap.Int("results", results),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

func requireLimit(limit int) error {
	if limit <= 0 {
		return apperrors.NewInvalidInput("limit", "must be positive")
	}
	return nil
}

func seedUser(v *graph.View, id int64) (*graph.User, error) {
	u, ok := v.User(id)
	if !ok {
		return nil, apperrors.NewNotFound("user", id)
	}
	return u, nil
}

// excluded is the seed plus its direct connections.
func excluded(v *graph.View, seed graph.NodeRef) traversal.Set {
	set := traversal.Set(v.NeighborSet(seed, graph.EdgeConnectedTo, graph.Outgoing))
	set[seed] = struct{}{}
	return set
}

func (e *Engine) projectAll(v *graph.View, ranked []scored, setScore func(*Suggestion, int)) []Suggestion {
	out := make([]Suggestion, 0, len(ranked))
	for _, c := range ranked {
		u, ok := v.User(c.id)
		if !ok {
			continue
		}
		s := project(u)
		setScore(&s, c.score)
		out = append(out, s)
	}
	return out
}

func intPtr(n int) *int { return &n }
