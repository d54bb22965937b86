package persistence

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"peoplegraph/backend/internal/graph"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatementFor(t *testing.T) {
	start := time.Date(2019, 1, 15, 0, 0, 0, 0, time.UTC)
	end := time.Date(2021, 6, 30, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		op       graph.Op
		contains []string
		params   map[string]interface{}
	}{
		{
			name:     "user upsert keeps createdAt on match",
			op:       graph.Op{Kind: graph.OpUpsertUser, User: &graph.User{ID: 7, FirstName: "Ada"}},
			contains: []string{"MERGE (u:User {id: $id})", "ON CREATE SET u.createdAt"},
			params:   map[string]interface{}{"id": int64(7), "firstName": "Ada"},
		},
		{
			name:     "connections merge",
			op:       graph.Op{Kind: graph.OpAddEdge, Edge: &graph.Edge{ID: "e1", Type: graph.EdgeConnectedTo, From: graph.UserRef(1), To: graph.UserRef(2)}},
			contains: []string{"MERGE (a)-[r:CONNECTED_TO]->(b)"},
			params:   map[string]interface{}{"from": int64(1), "to": int64(2), "id": "e1"},
		},
		{
			name: "work history is created",
			op: graph.Op{Kind: graph.OpAddEdge, Edge: &graph.Edge{
				Type: graph.EdgeWorkedAt, From: graph.UserRef(1), To: graph.CompanyRef(3),
				Work: &graph.WorkProps{Position: "Engineer", StartDate: start, EndDate: &end},
			}},
			contains: []string{"CREATE (u)-[r:WORKED_AT]->(c)", "date($startDate)"},
			params:   map[string]interface{}{"startDate": "2019-01-15", "endDate": "2021-06-30", "position": "Engineer"},
		},
		{
			name:     "skills match by name",
			op:       graph.Op{Kind: graph.OpAddEdge, Edge: &graph.Edge{Type: graph.EdgeHasSkill, From: graph.UserRef(1), To: graph.SkillRef("Go")}},
			contains: []string{"MERGE (u)-[r:HAS_SKILL]->(s)"},
			params:   map[string]interface{}{"to": "Go", "endorsements": 0},
		},
		{
			name:     "endorsement counter",
			op:       graph.Op{Kind: graph.OpIncrementEndorsements, UserID: 1, SkillName: "Go"},
			contains: []string{"coalesce(r.endorsements, 0) + 1"},
			params:   map[string]interface{}{"userId": int64(1), "skillName": "Go"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := statementFor(tt.op)
			require.NoError(t, err)
			for _, c := range tt.contains {
				assert.Contains(t, st.query, c)
			}
			for k, v := range tt.params {
				assert.Equal(t, v, st.params[k], "param %s", k)
			}
		})
	}
}

func TestStatementFor_Rejects(t *testing.T) {
	_, err := statementFor(graph.Op{Kind: "drop_everything"})
	assert.Error(t, err)

	_, err = statementFor(graph.Op{Kind: graph.OpAddEdge, Edge: &graph.Edge{Type: graph.EdgeWorkedAt}})
	assert.Error(t, err)
}

// TestNeo4jMirror_RoundTrip requires a running Neo4j instance
// Set NEO4J_URI, NEO4J_USER, NEO4J_PASSWORD environment variables
func TestNeo4jMirror_RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	ctx := context.Background()
	driver, err := createTestDriver()
	if err != nil {
		t.Skipf("Neo4j not reachable: %v", err)
	}
	defer driver.Close(ctx)

	mirror := NewNeo4jMirror(driver)
	require.NoError(t, mirror.Reset(ctx))
	defer mirror.Reset(ctx)

	require.NoError(t, mirror.EnsureSchema(ctx))

	original := seedThroughJournal(t, mirror)

	restored := graph.NewStore()
	_, err = mirror.Load(ctx, restored)
	require.NoError(t, err)
	assert.Equal(t, original.Stats(), restored.Stats())

	var endorsements int
	_ = restored.Read(func(v *graph.View) error {
		endorsements = v.Edges(graph.EdgeHasSkill, graph.UserRef(1), graph.SkillRef("Go"))[0].Endorsements
		return nil
	})
	assert.Equal(t, 1, endorsements)
}

func createTestDriver() (neo4j.DriverWithContext, error) {
	uri := envOr("NEO4J_URI", "bolt://localhost:7687")
	user := envOr("NEO4J_USER", "neo4j")
	password := envOr("NEO4J_PASSWORD", "password")

	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, err
	}

	// Verify connection
	ctx := context.Background()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, err
	}

	return driver, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
