package mutation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"peoplegraph/backend/internal/graph"
	apperrors "peoplegraph/backend/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *graph.Store) {
	t.Helper()
	store := graph.NewStore()
	var n int
	svc := NewService(store,
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("edge-%d", n) }),
	)
	return svc, store
}

func addUsers(t *testing.T, svc *Service, ids ...int64) {
	t.Helper()
	for _, id := range ids {
		_, err := svc.UpsertUser(context.Background(), graph.User{ID: id, FirstName: fmt.Sprintf("User%d", id)})
		require.NoError(t, err)
	}
}

func TestUpsertUser(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	u, err := svc.UpsertUser(ctx, graph.User{ID: 1, FirstName: "Ada", Industry: "Software"})
	require.NoError(t, err)
	assert.Equal(t, fixedNow, u.CreatedAt)

	svc.now = func() time.Time { return fixedNow.Add(time.Hour) }
	u, err = svc.UpsertUser(ctx, graph.User{ID: 1, FirstName: "Ada", LastName: "Lovelace"})
	require.NoError(t, err)
	assert.Equal(t, "Lovelace", u.LastName)
	assert.Equal(t, fixedNow, u.CreatedAt, "createdAt is kept on update")

	_, err = svc.UpsertUser(ctx, graph.User{ID: 0})
	assert.True(t, apperrors.IsInvalidInput(err))
}

func TestUpsertCompany_RequiresName(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.UpsertCompany(context.Background(), graph.Company{ID: 3})
	assert.True(t, apperrors.IsInvalidInput(err))

	c, err := svc.UpsertCompany(context.Background(), graph.Company{ID: 3, Name: "Acme"})
	require.NoError(t, err)
	assert.Equal(t, "Acme", c.Name)
}

func TestConnectUsers(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	addUsers(t, svc, 1, 2)

	created, err := svc.ConnectUsers(ctx, 1, 2)
	require.NoError(t, err)
	assert.True(t, created)

	assert.Equal(t, []graph.NodeRef{graph.UserRef(2)}, store.Neighbors(graph.UserRef(1), graph.EdgeConnectedTo, graph.Outgoing))
	assert.Equal(t, []graph.NodeRef{graph.UserRef(1)}, store.Neighbors(graph.UserRef(2), graph.EdgeConnectedTo, graph.Outgoing))

	t.Run("idempotent", func(t *testing.T) {
		created, err := svc.ConnectUsers(ctx, 2, 1)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, 2, store.Stats().Edges[graph.EdgeConnectedTo])
	})

	t.Run("self", func(t *testing.T) {
		_, err := svc.ConnectUsers(ctx, 1, 1)
		assert.True(t, apperrors.IsInvalidInput(err))
	})

	t.Run("missing user", func(t *testing.T) {
		_, err := svc.ConnectUsers(ctx, 1, 42)
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))
		assert.Equal(t, 2, store.Stats().Edges[graph.EdgeConnectedTo])
	})
}

func TestFollowCompany(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	addUsers(t, svc, 1)

	err := svc.FollowCompany(ctx, 1, 7)
	assert.True(t, apperrors.IsNotFound(err))

	_, err = svc.UpsertCompany(ctx, graph.Company{ID: 7, Name: "Acme"})
	require.NoError(t, err)
	require.NoError(t, svc.FollowCompany(ctx, 1, 7))
	require.NoError(t, svc.FollowCompany(ctx, 1, 7))
	assert.Equal(t, 1, store.Stats().Edges[graph.EdgeFollows])
}

func TestAddWorkExperience(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	addUsers(t, svc, 1)
	_, err := svc.UpsertCompany(ctx, graph.Company{ID: 7, Name: "Acme"})
	require.NoError(t, err)

	end := "2021-06-30"
	e, err := svc.AddWorkExperience(ctx, WorkExperience{UserID: 1, CompanyID: 7, Position: "Engineer", StartDate: "2019-01-15", EndDate: &end})
	require.NoError(t, err)
	assert.Equal(t, "edge-1", e.ID)
	require.NotNil(t, e.Work.EndDate)
	assert.False(t, e.Work.Current())

	e, err = svc.AddWorkExperience(ctx, WorkExperience{UserID: 1, CompanyID: 7, Position: "Staff Engineer", StartDate: "2022-02-01"})
	require.NoError(t, err)
	assert.True(t, e.Work.Current())
	assert.Equal(t, 2, store.Stats().Edges[graph.EdgeWorkedAt], "work history appends")

	invalid := []struct {
		name string
		req  WorkExperience
	}{
		{"bad start", WorkExperience{UserID: 1, CompanyID: 7, Position: "Engineer", StartDate: "15/01/2019"}},
		{"end before start", WorkExperience{UserID: 1, CompanyID: 7, Position: "Engineer", StartDate: "2020-01-01", EndDate: strPtr("2019-01-01")}},
		{"missing position", WorkExperience{UserID: 1, CompanyID: 7, StartDate: "2020-01-01"}},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AddWorkExperience(ctx, tt.req)
			assert.True(t, apperrors.IsInvalidInput(err), "got %v", err)
		})
	}

	_, err = svc.AddWorkExperience(ctx, WorkExperience{UserID: 1, CompanyID: 99, Position: "Engineer", StartDate: "2020-01-01"})
	assert.True(t, apperrors.IsNotFound(err))
}

func strPtr(s string) *string { return &s }

func TestEndorseSkill(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	addUsers(t, svc, 1, 2, 3)

	count, err := svc.EndorseSkill(ctx, Endorsement{EndorserID: 2, UserID: 1, SkillName: "Go"})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = svc.EndorseSkill(ctx, Endorsement{EndorserID: 3, UserID: 1, SkillName: "Go"})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, err = store.GetSkill("Go")
	require.NoError(t, err)

	stats := store.Stats()
	assert.Equal(t, 1, stats.Edges[graph.EdgeHasSkill])
	assert.Equal(t, 2, stats.Edges[graph.EdgeEndorsed])

	var endorsed []graph.Edge
	_ = store.Read(func(v *graph.View) error {
		endorsed = v.Edges(graph.EdgeEndorsed, graph.UserRef(2), graph.UserRef(1))
		return nil
	})
	require.Len(t, endorsed, 1)
	assert.Equal(t, "Go", endorsed[0].SkillName)

	_, err = svc.EndorseSkill(ctx, Endorsement{EndorserID: 1, UserID: 1, SkillName: "Go"})
	assert.True(t, apperrors.IsInvalidInput(err))

	_, err = svc.EndorseSkill(ctx, Endorsement{EndorserID: 9, UserID: 1, SkillName: "Rust"})
	assert.True(t, apperrors.IsNotFound(err))
	_, err = store.GetSkill("Rust")
	assert.True(t, apperrors.IsNotFound(err), "failed endorsement leaves no skill behind")
}

func TestAddSkill(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	addUsers(t, svc, 1)

	require.NoError(t, svc.AddSkill(ctx, 1, "Go"))
	require.NoError(t, svc.AddSkill(ctx, 1, "Go"))
	assert.Equal(t, 1, store.Stats().Edges[graph.EdgeHasSkill])

	assert.True(t, apperrors.IsInvalidInput(svc.AddSkill(ctx, 1, "  ")))
}

func TestEnsureSkill(t *testing.T) {
	svc, _ := newTestService(t)
	sk, err := svc.EnsureSkill(context.Background(), "Kubernetes")
	require.NoError(t, err)
	assert.Equal(t, fixedNow, sk.CreatedAt)

	svc.now = func() time.Time { return fixedNow.Add(time.Hour) }
	sk, err = svc.EnsureSkill(context.Background(), "Kubernetes")
	require.NoError(t, err)
	assert.Equal(t, fixedNow, sk.CreatedAt)
}

func TestConcurrentEndorsementsAreNotLost(t *testing.T) {
	store := graph.NewStore(graph.WithStripes(8))
	svc := NewService(store)
	ctx := context.Background()
	const endorsers = 40
	addUsers(t, svc, 1)
	for i := int64(2); i < endorsers+2; i++ {
		addUsers(t, svc, i)
	}

	var wg sync.WaitGroup
	for i := int64(2); i < endorsers+2; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := svc.EndorseSkill(ctx, Endorsement{EndorserID: id, UserID: 1, SkillName: "Go"})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	var count int
	_ = store.Read(func(v *graph.View) error {
		count = v.Edges(graph.EdgeHasSkill, graph.UserRef(1), graph.SkillRef("Go"))[0].Endorsements
		return nil
	})
	assert.Equal(t, endorsers, count)
	assert.Equal(t, endorsers, store.Stats().Edges[graph.EdgeEndorsed])
}

func TestCancelledContext(t *testing.T) {
	svc, _ := newTestService(t)
	addUsers(t, svc, 1, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.ConnectUsers(ctx, 1, 2)
	assert.True(t, apperrors.IsCancelled(err))
}
