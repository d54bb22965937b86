package graph

import (
	"context"
	"errors"
	"iter"
	"slices"
	"sync"
	"testing"
	"time"

	apperrors "peoplegraph/backend/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func seedUsers(t *testing.T, s *Store, ids ...int64) {
	t.Helper()
	for _, id := range ids {
		u := User{ID: id, FirstName: "user", CreatedAt: t0}
		require.NoError(t, s.Update(context.Background(), []NodeRef{u.Ref()}, func(tx *Tx) error {
			return tx.UpsertUser(u)
		}))
	}
}

func connect(t *testing.T, s *Store, a, b int64) {
	t.Helper()
	ra, rb := UserRef(a), UserRef(b)
	require.NoError(t, s.Update(context.Background(), []NodeRef{ra, rb}, func(tx *Tx) error {
		if err := tx.AddEdge(Edge{Type: EdgeConnectedTo, From: ra, To: rb, CreatedAt: t0}); err != nil {
			return err
		}
		return tx.AddEdge(Edge{Type: EdgeConnectedTo, From: rb, To: ra, CreatedAt: t0})
	}))
}

func TestUpsertUser_KeepsCreatedAt(t *testing.T) {
	s := NewStore()
	seedUsers(t, s, 1)

	later := User{ID: 1, FirstName: "Ada", Industry: "Software", CreatedAt: t0.Add(time.Hour)}
	require.NoError(t, s.Update(context.Background(), []NodeRef{later.Ref()}, func(tx *Tx) error {
		return tx.UpsertUser(later)
	}))

	u, err := s.GetUser(1)
	require.NoError(t, err)
	assert.Equal(t, "Ada", u.FirstName)
	assert.Equal(t, t0, u.CreatedAt)
	assert.Equal(t, []int64{1}, slices.Collect(readIndustry(s, "Software")))
}

func TestUpsertUser_ReindexesAttributes(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	u := User{ID: 1, Industry: "Finance", Location: "Paris"}
	require.NoError(t, s.Update(ctx, []NodeRef{u.Ref()}, func(tx *Tx) error { return tx.UpsertUser(u) }))
	u.Industry = "Software"
	require.NoError(t, s.Update(ctx, []NodeRef{u.Ref()}, func(tx *Tx) error { return tx.UpsertUser(u) }))

	assert.Empty(t, slices.Collect(readIndustry(s, "Finance")))
	assert.Equal(t, []int64{1}, slices.Collect(readIndustry(s, "Software")))
}

func readIndustry(s *Store, industry string) iter.Seq[int64] {
	var ids []int64
	_ = s.Read(func(v *View) error {
		ids = slices.Collect(v.UsersByIndustry(industry))
		return nil
	})
	return slices.Values(ids)
}

func TestGetNode_NotFound(t *testing.T) {
	s := NewStore()
	_, err := s.GetNode(UserRef(99))
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))

	var nf *apperrors.ErrNotFound
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "user", nf.Entity)
	assert.Equal(t, "99", nf.ID)
}

func TestAddEdge_SingleTypesMerge(t *testing.T) {
	s := NewStore()
	seedUsers(t, s, 1, 2)
	connect(t, s, 1, 2)
	connect(t, s, 1, 2)

	assert.Equal(t, []NodeRef{UserRef(2)}, s.Neighbors(UserRef(1), EdgeConnectedTo, Outgoing))
	assert.Equal(t, []NodeRef{UserRef(1)}, s.Neighbors(UserRef(2), EdgeConnectedTo, Outgoing))
	assert.Equal(t, 2, s.Stats().Edges[EdgeConnectedTo])
}

func TestAddEdge_HistoryTypesAppend(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	seedUsers(t, s, 1)
	c := Company{ID: 10, Name: "Acme"}
	require.NoError(t, s.Update(ctx, []NodeRef{c.Ref()}, func(tx *Tx) error { return tx.UpsertCompany(c) }))

	for i := 0; i < 2; i++ {
		e := Edge{Type: EdgeWorkedAt, From: UserRef(1), To: c.Ref(), Work: &WorkProps{Position: "Engineer", StartDate: t0}}
		require.NoError(t, s.Update(ctx, []NodeRef{e.From, e.To}, func(tx *Tx) error { return tx.AddEdge(e) }))
	}

	var edges []Edge
	_ = s.Read(func(v *View) error {
		edges = v.Edges(EdgeWorkedAt, UserRef(1), c.Ref())
		return nil
	})
	assert.Len(t, edges, 2)
	// Neighbor sets still hold the company once.
	assert.Equal(t, []NodeRef{c.Ref()}, s.Neighbors(UserRef(1), EdgeWorkedAt, Outgoing))
	assert.Equal(t, []NodeRef{UserRef(1)}, s.Neighbors(c.Ref(), EdgeWorkedAt, Incoming))
}

func TestAddEdge_Validation(t *testing.T) {
	s := NewStore()
	seedUsers(t, s, 1)
	ctx := context.Background()

	tests := []struct {
		name  string
		edge  Edge
		check func(error) bool
	}{
		{"missing endpoint", Edge{Type: EdgeFollows, From: UserRef(1), To: CompanyRef(5)}, apperrors.IsNotFound},
		{"self loop", Edge{Type: EdgeConnectedTo, From: UserRef(1), To: UserRef(1)}, apperrors.IsInvalidInput},
		{"wrong variants", Edge{Type: EdgeHasSkill, From: UserRef(1), To: UserRef(1)}, apperrors.IsInvalidInput},
		{"one-sided connection", Edge{Type: EdgeConnectedTo, From: UserRef(1), To: UserRef(2)}, func(err error) bool { return err != nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Update(ctx, []NodeRef{tt.edge.From, tt.edge.To}, func(tx *Tx) error { return tx.AddEdge(tt.edge) })
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error %v", err)
		})
	}
	assert.Empty(t, s.Stats().Edges)
}

func TestUpdate_RejectsUnlockedNodes(t *testing.T) {
	s := NewStore()
	seedUsers(t, s, 1, 2)
	err := s.Update(context.Background(), []NodeRef{UserRef(1)}, func(tx *Tx) error {
		return tx.AddEdge(Edge{Type: EdgeEndorsed, From: UserRef(1), To: UserRef(2)})
	})
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeInternal))
}

type failingJournal struct{ calls int }

func (j *failingJournal) Append(context.Context, Batch) error {
	j.calls++
	return errors.New("disk full")
}

func TestUpdate_JournalFailureLeavesGraphUntouched(t *testing.T) {
	s := NewStore()
	seedUsers(t, s, 1, 2)
	j := &failingJournal{}
	s.SetJournal(j)

	err := s.Update(context.Background(), []NodeRef{UserRef(1), UserRef(2)}, func(tx *Tx) error {
		if err := tx.AddEdge(Edge{Type: EdgeConnectedTo, From: UserRef(1), To: UserRef(2)}); err != nil {
			return err
		}
		return tx.AddEdge(Edge{Type: EdgeConnectedTo, From: UserRef(2), To: UserRef(1)})
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
	assert.Equal(t, 1, j.calls)
	assert.Empty(t, s.Neighbors(UserRef(1), EdgeConnectedTo, Both))
}

func TestUpdate_CancelledContext(t *testing.T) {
	s := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Update(ctx, nil, func(tx *Tx) error { return nil })
	assert.True(t, apperrors.IsCancelled(err))
}

func TestIncrementEndorsements(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	seedUsers(t, s, 1)
	sk := Skill{Name: "Go"}
	refs := []NodeRef{UserRef(1), sk.Ref()}

	err := s.Update(ctx, refs, func(tx *Tx) error { return tx.IncrementEndorsements(1, "Go") })
	require.Error(t, err, "counter without HAS_SKILL edge")

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Update(ctx, refs, func(tx *Tx) error {
			if err := tx.UpsertSkill(sk); err != nil {
				return err
			}
			if err := tx.AddEdge(Edge{Type: EdgeHasSkill, From: UserRef(1), To: sk.Ref()}); err != nil {
				return err
			}
			return tx.IncrementEndorsements(1, "Go")
		}))
	}

	var edges []Edge
	_ = s.Read(func(v *View) error {
		edges = v.Edges(EdgeHasSkill, UserRef(1), sk.Ref())
		return nil
	})
	require.Len(t, edges, 1)
	assert.Equal(t, 3, edges[0].Endorsements)
}

func TestApplyBatch_Replay(t *testing.T) {
	s := NewStore()
	batch := Batch{Seq: 1, Ops: []Op{
		{Kind: OpUpsertUser, User: &User{ID: 1}},
		{Kind: OpUpsertUser, User: &User{ID: 2}},
		{Kind: OpAddEdge, Edge: &Edge{Type: EdgeConnectedTo, From: UserRef(1), To: UserRef(2)}},
		{Kind: OpAddEdge, Edge: &Edge{Type: EdgeConnectedTo, From: UserRef(2), To: UserRef(1)}},
	}}
	require.NoError(t, s.ApplyBatch(batch))
	assert.Equal(t, 2, s.Stats().Users)
	assert.True(t, s.NodeExists(UserRef(2)))

	bad := Batch{Seq: 2, Ops: []Op{{Kind: OpAddEdge, Edge: &Edge{Type: EdgeFollows, From: UserRef(1), To: CompanyRef(9)}}}}
	assert.Error(t, s.ApplyBatch(bad))
}

func TestNeighbors_Deterministic(t *testing.T) {
	s := NewStore()
	seedUsers(t, s, 1, 5, 3, 9, 2)
	for _, id := range []int64{9, 3, 5, 2} {
		connect(t, s, 1, id)
	}
	want := []NodeRef{UserRef(2), UserRef(3), UserRef(5), UserRef(9)}
	for i := 0; i < 5; i++ {
		assert.Equal(t, want, s.Neighbors(UserRef(1), EdgeConnectedTo, Both))
	}
}

func TestConcurrentUpdatesOnDisjointNodes(t *testing.T) {
	s := NewStore(WithStripes(4))
	const n = 50
	ids := make([]int64, 0, n)
	for i := int64(1); i <= n; i++ {
		ids = append(ids, i)
	}
	seedUsers(t, s, ids...)

	var wg sync.WaitGroup
	for i := int64(1); i < n; i += 2 {
		wg.Add(1)
		go func(a, b int64) {
			defer wg.Done()
			ra, rb := UserRef(a), UserRef(b)
			err := s.Update(context.Background(), []NodeRef{ra, rb}, func(tx *Tx) error {
				if err := tx.AddEdge(Edge{Type: EdgeConnectedTo, From: ra, To: rb}); err != nil {
					return err
				}
				return tx.AddEdge(Edge{Type: EdgeConnectedTo, From: rb, To: ra})
			})
			assert.NoError(t, err)
		}(i, i+1)
	}
	wg.Wait()

	assert.Equal(t, n, s.Stats().Edges[EdgeConnectedTo])
}
