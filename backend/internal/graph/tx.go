package graph

import (
	"context"
	"fmt"
	"time"

	apperrors "peoplegraph/backend/pkg/errors"

	"go.uber.org/zap"
)

// ============================================================================
// Batches
// ============================================================================

// OpKind names a primitive graph change.
type OpKind string

const (
	OpUpsertUser            OpKind = "upsert_user"
	OpUpsertCompany         OpKind = "upsert_company"
	OpUpsertSkill           OpKind = "upsert_skill"
	OpAddEdge               OpKind = "add_edge"
	OpIncrementEndorsements OpKind = "increment_endorsements"
)

// Op is one primitive change. Exactly one payload field is set, matching Kind.
// Ops carry their own timestamps so replaying a batch is deterministic.
type Op struct {
	Kind    OpKind   `json:"kind"`
	User    *User    `json:"user,omitempty"`
	Company *Company `json:"company,omitempty"`
	Skill   *Skill   `json:"skill,omitempty"`
	Edge    *Edge    `json:"edge,omitempty"`

	// OpIncrementEndorsements
	UserID    int64  `json:"userId,omitempty"`
	SkillName string `json:"skillName,omitempty"`
}

// Batch is the unit of atomicity: all of its ops become visible together or
// none do. Seq is assigned by the journal.
type Batch struct {
	Seq       uint64    `json:"seq"`
	Ops       []Op      `json:"ops"`
	CreatedAt time.Time `json:"createdAt"`
}

// ============================================================================
// Transactions
// ============================================================================

// Tx stages ops for one Update. Its reads see committed state plus the
// nodes staged earlier in the same Tx.
type Tx struct {
	s      *Store
	locked map[NodeRef]struct{}
	staged map[NodeRef]struct{}
	ops    []Op
}

// Update runs fn with the stripes of refs held, then journals and publishes
// the staged ops as one batch. If fn or the journal fails nothing is applied.
// Every node an op touches must be listed in refs.
func (s *Store) Update(ctx context.Context, refs []NodeRef, fn func(tx *Tx) error) error {
	if err := ctx.Err(); err != nil {
		return apperrors.FromContext("graph update", err)
	}

	unlock := s.lockNodes(refs)
	defer unlock()

	tx := &Tx{
		s:      s,
		locked: make(map[NodeRef]struct{}, len(refs)),
		staged: make(map[NodeRef]struct{}),
	}
	for _, r := range refs {
		tx.locked[r] = struct{}{}
	}

	if err := fn(tx); err != nil {
		return err
	}
	if len(tx.ops) == 0 {
		return nil
	}

	batch := Batch{Ops: tx.ops, CreatedAt: time.Now().UTC()}

	s.mu.RLock()
	err := s.validate(batch)
	journal := s.journal
	s.mu.RUnlock()
	if err != nil {
		return err
	}

	if journal != nil {
		if err := journal.Append(ctx, batch); err != nil {
			return apperrors.NewInternal("journal append", err)
		}
	}

	s.mu.Lock()
	s.apply(batch)
	s.mu.Unlock()

	return nil
}

// ApplyBatch validates and publishes a batch without journaling it. Used to
// rebuild the graph from a journal.
func (s *Store) ApplyBatch(batch Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.validate(batch); err != nil {
		return fmt.Errorf("batch %d: %w", batch.Seq, err)
	}
	s.apply(batch)
	return nil
}

// Exists reports whether ref is committed or staged in this Tx.
func (tx *Tx) Exists(ref NodeRef) bool {
	if _, ok := tx.staged[ref]; ok {
		return true
	}
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	return tx.s.exists(ref)
}

// HasEdge reports whether a committed edge of type t runs from -> to.
func (tx *Tx) HasEdge(t EdgeType, from, to NodeRef) bool {
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	return len(tx.s.edges[edgeKey{t, from, to}]) > 0
}

// User returns a copy of a committed user.
func (tx *Tx) User(id int64) (User, bool) {
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	u, ok := tx.s.users[id]
	if !ok {
		return User{}, false
	}
	return *u, true
}

func (tx *Tx) UpsertUser(u User) error {
	if err := tx.guard(u.Ref()); err != nil {
		return err
	}
	tx.staged[u.Ref()] = struct{}{}
	tx.ops = append(tx.ops, Op{Kind: OpUpsertUser, User: &u})
	return nil
}

func (tx *Tx) UpsertCompany(c Company) error {
	if err := tx.guard(c.Ref()); err != nil {
		return err
	}
	tx.staged[c.Ref()] = struct{}{}
	tx.ops = append(tx.ops, Op{Kind: OpUpsertCompany, Company: &c})
	return nil
}

func (tx *Tx) UpsertSkill(sk Skill) error {
	if err := tx.guard(sk.Ref()); err != nil {
		return err
	}
	tx.staged[sk.Ref()] = struct{}{}
	tx.ops = append(tx.ops, Op{Kind: OpUpsertSkill, Skill: &sk})
	return nil
}

// AddEdge stages an edge. For single-edge types an existing edge makes this a
// no-op at publish time.
func (tx *Tx) AddEdge(e Edge) error {
	if err := tx.guard(e.From); err != nil {
		return err
	}
	if err := tx.guard(e.To); err != nil {
		return err
	}
	tx.ops = append(tx.ops, Op{Kind: OpAddEdge, Edge: &e})
	return nil
}

// IncrementEndorsements stages a +1 on the HAS_SKILL counter of userID.
func (tx *Tx) IncrementEndorsements(userID int64, skillName string) error {
	if err := tx.guard(UserRef(userID)); err != nil {
		return err
	}
	tx.ops = append(tx.ops, Op{Kind: OpIncrementEndorsements, UserID: userID, SkillName: skillName})
	return nil
}

func (tx *Tx) guard(ref NodeRef) error {
	if _, ok := tx.locked[ref]; !ok {
		return apperrors.NewInternal("graph update", fmt.Errorf("node %s touched without its lock", ref))
	}
	return nil
}

// ============================================================================
// Validation and apply (callers hold mu)
// ============================================================================

func (s *Store) validate(batch Batch) error {
	created := make(map[NodeRef]struct{})
	skilled := make(map[edgeKey]struct{})
	connected := make(map[edgeKey]struct{})
	exists := func(r NodeRef) bool {
		if _, ok := created[r]; ok {
			return true
		}
		return s.exists(r)
	}

	for i, op := range batch.Ops {
		switch op.Kind {
		case OpUpsertUser:
			if op.User == nil {
				return malformed(i, op)
			}
			created[op.User.Ref()] = struct{}{}
		case OpUpsertCompany:
			if op.Company == nil {
				return malformed(i, op)
			}
			created[op.Company.Ref()] = struct{}{}
		case OpUpsertSkill:
			if op.Skill == nil || op.Skill.Name == "" {
				return malformed(i, op)
			}
			created[op.Skill.Ref()] = struct{}{}
		case OpAddEdge:
			e := op.Edge
			if e == nil {
				return malformed(i, op)
			}
			from, to, ok := e.Type.Endpoints()
			if !ok {
				return apperrors.NewInvalidInput("edge type", string(e.Type))
			}
			if e.From.Variant != from || e.To.Variant != to {
				return apperrors.NewInvalidInput("edge", fmt.Sprintf("%s cannot connect %s to %s", e.Type, e.From.Variant, e.To.Variant))
			}
			if e.Type == EdgeConnectedTo && e.From == e.To {
				return apperrors.NewInvalidInput("connection", "a user cannot connect to themselves")
			}
			if !exists(e.From) {
				return NotFound(e.From)
			}
			if !exists(e.To) {
				return NotFound(e.To)
			}
			switch e.Type {
			case EdgeHasSkill:
				skilled[edgeKey{e.Type, e.From, e.To}] = struct{}{}
			case EdgeConnectedTo:
				connected[edgeKey{e.Type, e.From, e.To}] = struct{}{}
			}
		case OpIncrementEndorsements:
			k := edgeKey{EdgeHasSkill, UserRef(op.UserID), SkillRef(op.SkillName)}
			if _, ok := skilled[k]; !ok && len(s.edges[k]) == 0 {
				return apperrors.NewNotFound("skill", op.SkillName)
			}
		default:
			return malformed(i, op)
		}
	}

	// CONNECTED_TO is only ever written as a symmetric pair.
	for k := range connected {
		reverse := edgeKey{EdgeConnectedTo, k.to, k.from}
		if _, ok := connected[reverse]; !ok && len(s.edges[reverse]) == 0 {
			return apperrors.NewInvalidInput("connection", fmt.Sprintf("%s has no reverse edge", k.from))
		}
	}
	return nil
}

func malformed(i int, op Op) error {
	return apperrors.NewInvalidInput("batch", fmt.Sprintf("op %d (%s) is malformed", i, op.Kind))
}

func (s *Store) apply(batch Batch) {
	for _, op := range batch.Ops {
		switch op.Kind {
		case OpUpsertUser:
			s.putUser(*op.User)
		case OpUpsertCompany:
			s.putCompany(*op.Company)
		case OpUpsertSkill:
			if _, ok := s.skills[op.Skill.Name]; !ok {
				sk := *op.Skill
				s.skills[sk.Name] = &sk
			}
		case OpAddEdge:
			s.putEdge(*op.Edge)
		case OpIncrementEndorsements:
			k := edgeKey{EdgeHasSkill, UserRef(op.UserID), SkillRef(op.SkillName)}
			if stored := s.edges[k]; len(stored) > 0 {
				next := *stored[0]
				next.Endorsements++
				stored[0] = &next
			}
		}
	}
	s.logger.Debug("Batch applied", zap.Uint64("seq", batch.Seq), zap.Int("ops", len(batch.Ops)))
}

// putUser replaces the stored user, keeping the original CreatedAt and the
// attribute indices in step.
func (s *Store) putUser(u User) {
	if prev, ok := s.users[u.ID]; ok {
		u.CreatedAt = prev.CreatedAt
		unindex(s.byIndustry, prev.Industry, prev.ID)
		unindex(s.byLocation, prev.Location, prev.ID)
	}
	s.users[u.ID] = &u
	index(s.byIndustry, u.Industry, u.ID)
	index(s.byLocation, u.Location, u.ID)
}

func (s *Store) putCompany(c Company) {
	if prev, ok := s.companies[c.ID]; ok {
		c.CreatedAt = prev.CreatedAt
	}
	s.companies[c.ID] = &c
}

func (s *Store) putEdge(e Edge) {
	k := edgeKey{e.Type, e.From, e.To}
	if !e.Type.Multi() && len(s.edges[k]) > 0 {
		return
	}
	if e.Type == EdgeHasSkill && e.Endorsements < 0 {
		e.Endorsements = 0
	}
	s.edges[k] = append(s.edges[k], &e)
	bump(s.out, adjKey{e.From, e.Type}, e.To)
	bump(s.in, adjKey{e.To, e.Type}, e.From)
	s.edgeCount[e.Type]++
}

func bump(idx map[adjKey]map[NodeRef]int, k adjKey, n NodeRef) {
	m, ok := idx[k]
	if !ok {
		m = make(map[NodeRef]int)
		idx[k] = m
	}
	m[n]++
}

func index(idx map[string]map[int64]struct{}, value string, id int64) {
	if value == "" {
		return
	}
	m, ok := idx[value]
	if !ok {
		m = make(map[int64]struct{})
		idx[value] = m
	}
	m[id] = struct{}{}
}

func unindex(idx map[string]map[int64]struct{}, value string, id int64) {
	if m, ok := idx[value]; ok {
		delete(m, id)
		if len(m) == 0 {
			delete(idx, value)
		}
	}
}
