package graph

import (
	"context"
	"hash/fnv"
	"iter"
	"maps"
	"slices"
	"sync"

	apperrors "peoplegraph/backend/pkg/errors"
	"peoplegraph/backend/pkg/logger"

	"go.uber.org/zap"
)

// DefaultStripes is the number of node lock stripes when none is configured.
const DefaultStripes = 64

// Journal persists committed batches. Append is called before a batch becomes
// visible; an error aborts the mutation and leaves the graph untouched.
type Journal interface {
	Append(ctx context.Context, batch Batch) error
}

// Store is the in-memory graph: an arena of nodes keyed by NodeRef plus
// adjacency indices keyed by (node, edge type).
//
// Queries hold mu.RLock for their whole run through Read. Mutations go
// through Update, which serializes on the stripes of the nodes they touch and
// takes mu.Lock only to publish a validated batch, so a reader never sees half
// of a batch.
type Store struct {
	mu      sync.RWMutex
	stripes []sync.Mutex
	journal Journal
	logger  *zap.Logger

	users     map[int64]*User
	companies map[int64]*Company
	skills    map[string]*Skill

	edges map[edgeKey][]*Edge
	out   map[adjKey]map[NodeRef]int
	in    map[adjKey]map[NodeRef]int

	byIndustry map[string]map[int64]struct{}
	byLocation map[string]map[int64]struct{}
	edgeCount  map[EdgeType]int
}

// Option configures a Store.
type Option func(*Store)

// WithStripes sets the number of node lock stripes.
func WithStripes(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.stripes = make([]sync.Mutex, n)
		}
	}
}

// WithJournal attaches a journal that sees every batch before it is applied.
func WithJournal(j Journal) Option {
	return func(s *Store) { s.journal = j }
}

// WithLogger overrides the store logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore creates an empty graph.
func NewStore(opts ...Option) *Store {
	s := &Store{
		stripes:    make([]sync.Mutex, DefaultStripes),
		logger:     logger.Named("graph"),
		users:      make(map[int64]*User),
		companies:  make(map[int64]*Company),
		skills:     make(map[string]*Skill),
		edges:      make(map[edgeKey][]*Edge),
		out:        make(map[adjKey]map[NodeRef]int),
		in:         make(map[adjKey]map[NodeRef]int),
		byIndustry: make(map[string]map[int64]struct{}),
		byLocation: make(map[string]map[int64]struct{}),
		edgeCount:  make(map[EdgeType]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetJournal attaches a journal after replay has rebuilt the graph.
func (s *Store) SetJournal(j Journal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.journal = j
}

// Read runs fn against a consistent view of the graph. Concurrent Reads never
// block each other; fn must not retain the view after returning.
func (s *Store) Read(fn func(v *View) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&View{s: s})
}

// ============================================================================
// Convenience accessors (each takes the read lock itself)
// ============================================================================

// GetNode returns the node for ref or a NotFound error.
func (s *Store) GetNode(ref NodeRef) (Node, error) {
	var node Node
	err := s.Read(func(v *View) error {
		n, ok := v.Node(ref)
		if !ok {
			return NotFound(ref)
		}
		node = n
		return nil
	})
	return node, err
}

// GetUser returns a copy of the user with the given id.
func (s *Store) GetUser(id int64) (User, error) {
	var u User
	err := s.Read(func(v *View) error {
		found, ok := v.User(id)
		if !ok {
			return apperrors.NewNotFound("user", id)
		}
		u = *found
		return nil
	})
	return u, err
}

// GetCompany returns a copy of the company with the given id.
func (s *Store) GetCompany(id int64) (Company, error) {
	var c Company
	err := s.Read(func(v *View) error {
		found, ok := v.Company(id)
		if !ok {
			return apperrors.NewNotFound("company", id)
		}
		c = *found
		return nil
	})
	return c, err
}

// GetSkill returns a copy of the named skill.
func (s *Store) GetSkill(name string) (Skill, error) {
	var sk Skill
	err := s.Read(func(v *View) error {
		found, ok := v.Skill(name)
		if !ok {
			return apperrors.NewNotFound("skill", name)
		}
		sk = *found
		return nil
	})
	return sk, err
}

// NodeExists reports whether ref is in the graph.
func (s *Store) NodeExists(ref NodeRef) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exists(ref)
}

// Neighbors returns the sorted neighbors of ref over edges of type t.
func (s *Store) Neighbors(ref NodeRef, t EdgeType, dir Direction) []NodeRef {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Collect((&View{s: s}).Neighbors(ref, t, dir))
}

// Stats counts nodes and edges.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Users:     len(s.users),
		Companies: len(s.companies),
		Skills:    len(s.skills),
		Edges:     maps.Clone(s.edgeCount),
	}
}

// ============================================================================
// View
// ============================================================================

// View is a read-locked window onto the store. Returned nodes are shared and
// must not be modified.
type View struct {
	s *Store
}

func (v *View) User(id int64) (*User, bool) {
	u, ok := v.s.users[id]
	return u, ok
}

func (v *View) Company(id int64) (*Company, bool) {
	c, ok := v.s.companies[id]
	return c, ok
}

func (v *View) Skill(name string) (*Skill, bool) {
	sk, ok := v.s.skills[name]
	return sk, ok
}

// Node resolves any ref.
func (v *View) Node(ref NodeRef) (Node, bool) {
	switch ref.Variant {
	case VariantUser:
		if u, ok := v.s.users[ref.ID]; ok {
			return u, true
		}
	case VariantCompany:
		if c, ok := v.s.companies[ref.ID]; ok {
			return c, true
		}
	case VariantSkill:
		if sk, ok := v.s.skills[ref.Name]; ok {
			return sk, true
		}
	}
	return nil, false
}

func (v *View) Exists(ref NodeRef) bool { return v.s.exists(ref) }

// Neighbors yields the distinct neighbors of ref over edges of type t in
// ascending NodeRef order. Multi-edges to the same node yield it once.
func (v *View) Neighbors(ref NodeRef, t EdgeType, dir Direction) iter.Seq[NodeRef] {
	var keys []NodeRef
	switch dir {
	case Outgoing:
		keys = slices.Collect(maps.Keys(v.s.out[adjKey{ref, t}]))
	case Incoming:
		keys = slices.Collect(maps.Keys(v.s.in[adjKey{ref, t}]))
	case Both:
		seen := make(map[NodeRef]struct{}, len(v.s.out[adjKey{ref, t}])+len(v.s.in[adjKey{ref, t}]))
		for n := range v.s.out[adjKey{ref, t}] {
			seen[n] = struct{}{}
		}
		for n := range v.s.in[adjKey{ref, t}] {
			seen[n] = struct{}{}
		}
		keys = slices.Collect(maps.Keys(seen))
	}
	slices.SortFunc(keys, NodeRef.Compare)
	return slices.Values(keys)
}

// NeighborSet returns the neighbors of ref as a set. The caller owns the map.
func (v *View) NeighborSet(ref NodeRef, t EdgeType, dir Direction) map[NodeRef]struct{} {
	set := make(map[NodeRef]struct{})
	if dir == Outgoing || dir == Both {
		for n := range v.s.out[adjKey{ref, t}] {
			set[n] = struct{}{}
		}
	}
	if dir == Incoming || dir == Both {
		for n := range v.s.in[adjKey{ref, t}] {
			set[n] = struct{}{}
		}
	}
	return set
}

// Degree counts distinct neighbors without allocating.
func (v *View) Degree(ref NodeRef, t EdgeType, dir Direction) int {
	switch dir {
	case Outgoing:
		return len(v.s.out[adjKey{ref, t}])
	case Incoming:
		return len(v.s.in[adjKey{ref, t}])
	}
	return len(v.NeighborSet(ref, t, dir))
}

// HasEdge reports whether at least one edge of type t runs from -> to.
func (v *View) HasEdge(t EdgeType, from, to NodeRef) bool {
	return len(v.s.edges[edgeKey{t, from, to}]) > 0
}

// Edges returns copies of every edge of type t from -> to, oldest first.
func (v *View) Edges(t EdgeType, from, to NodeRef) []Edge {
	stored := v.s.edges[edgeKey{t, from, to}]
	out := make([]Edge, 0, len(stored))
	for _, e := range stored {
		out = append(out, *e)
	}
	return out
}

// EdgesFrom returns copies of every outgoing edge of type t, grouped by
// target in ascending order.
func (v *View) EdgesFrom(from NodeRef, t EdgeType) []Edge {
	var out []Edge
	for to := range v.Neighbors(from, t, Outgoing) {
		out = append(out, v.Edges(t, from, to)...)
	}
	return out
}

// UserIDs yields every user id in ascending order.
func (v *View) UserIDs() iter.Seq[int64] {
	ids := slices.Sorted(maps.Keys(v.s.users))
	return slices.Values(ids)
}

// UserCount is the number of user nodes.
func (v *View) UserCount() int { return len(v.s.users) }

// UsersByIndustry yields ids of users whose industry equals industry.
// An empty industry matches nobody.
func (v *View) UsersByIndustry(industry string) iter.Seq[int64] {
	if industry == "" {
		return slices.Values([]int64(nil))
	}
	return slices.Values(slices.Sorted(maps.Keys(v.s.byIndustry[industry])))
}

// UsersByLocation yields ids of users whose location equals location.
// An empty location matches nobody.
func (v *View) UsersByLocation(location string) iter.Seq[int64] {
	if location == "" {
		return slices.Values([]int64(nil))
	}
	return slices.Values(slices.Sorted(maps.Keys(v.s.byLocation[location])))
}

// ============================================================================
// Internal helpers (callers hold mu)
// ============================================================================

func (s *Store) exists(ref NodeRef) bool {
	switch ref.Variant {
	case VariantUser:
		_, ok := s.users[ref.ID]
		return ok
	case VariantCompany:
		_, ok := s.companies[ref.ID]
		return ok
	case VariantSkill:
		_, ok := s.skills[ref.Name]
		return ok
	}
	return false
}

func (s *Store) stripeOf(ref NodeRef) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(ref.String()))
	return int(h.Sum32() % uint32(len(s.stripes)))
}

// lockNodes locks the stripes covering refs in ascending stripe order so two
// mutations over overlapping nodes cannot deadlock.
func (s *Store) lockNodes(refs []NodeRef) func() {
	idx := make([]int, 0, len(refs))
	for _, r := range refs {
		idx = append(idx, s.stripeOf(r))
	}
	slices.Sort(idx)
	idx = slices.Compact(idx)
	for _, i := range idx {
		s.stripes[i].Lock()
	}
	return func() {
		for i := len(idx) - 1; i >= 0; i-- {
			s.stripes[idx[i]].Unlock()
		}
	}
}

// NotFound builds the NotFound error for a missing node.
func NotFound(ref NodeRef) error {
	return apperrors.NewNotFound(ref.entity(), ref.idString())
}
