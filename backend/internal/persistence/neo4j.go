package persistence

import (
	"context"
	"fmt"
	"time"

	"peoplegraph/backend/internal/graph"
	"peoplegraph/backend/pkg/logger"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// dateLayout is how WORKED_AT dates are passed to Cypher's date().
const dateLayout = "2006-01-02"

// Neo4jMirror is a graph.Journal that writes every batch through to Neo4j
// in one transaction. Load rebuilds an in-memory store from the database.
type Neo4jMirror struct {
	driver  neo4j.DriverWithContext
	breaker *gobreaker.CircuitBreaker[any]
	logger  *zap.Logger
}

// NewNeo4jMirror wraps driver. Writes fail fast once five in a row have failed,
// until the breaker half-opens again after 30s.
func NewNeo4jMirror(driver neo4j.DriverWithContext) *Neo4jMirror {
	log := logger.Named("neo4j")
	return &Neo4jMirror{
		driver: driver,
		logger: log,
		breaker: gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
			Name:        "neo4j-write",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn("Circuit breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		}),
	}
}

// Close closes the Neo4j driver connection
func (m *Neo4jMirror) Close() error {
	return m.driver.Close(context.Background())
}

// EnsureSchema creates the uniqueness constraints the MERGE statements rely on.
func (m *Neo4jMirror) EnsureSchema(ctx context.Context) error {
	session := m.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	constraints := []string{
		"CREATE CONSTRAINT user_id IF NOT EXISTS FOR (u:User) REQUIRE u.id IS UNIQUE",
		"CREATE CONSTRAINT company_id IF NOT EXISTS FOR (c:Company) REQUIRE c.id IS UNIQUE",
		"CREATE CONSTRAINT skill_name IF NOT EXISTS FOR (s:Skill) REQUIRE s.name IS UNIQUE",
	}
	for _, q := range constraints {
		if _, err := session.Run(ctx, q, nil); err != nil {
			return fmt.Errorf("failed to create constraint: %w", err)
		}
	}
	m.logger.Info("Schema constraints ensured")
	return nil
}

// Reset deletes every graph node and relationship this mirror manages.
func (m *Neo4jMirror) Reset(ctx context.Context) error {
	session := m.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := `
		MATCH (n)
		WHERE n:User OR n:Company OR n:Skill
		DETACH DELETE n
	`
	if _, err := session.Run(ctx, query, nil); err != nil {
		return fmt.Errorf("failed to delete graph data: %w", err)
	}
	m.logger.Info("All graph nodes and relationships deleted")
	return nil
}

// Append writes batch in a single write transaction.
func (m *Neo4jMirror) Append(ctx context.Context, batch graph.Batch) error {
	stmts := make([]statement, 0, len(batch.Ops))
	for _, op := range batch.Ops {
		st, err := statementFor(op)
		if err != nil {
			return err
		}
		stmts = append(stmts, st)
	}

	_, err := m.breaker.Execute(func() (any, error) {
		session := m.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
		defer session.Close(ctx)

		return session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			for _, st := range stmts {
				res, err := tx.Run(ctx, st.query, st.params)
				if err != nil {
					return nil, err
				}
				if _, err := res.Consume(ctx); err != nil {
					return nil, err
				}
			}
			return nil, nil
		})
	})
	if err != nil {
		return fmt.Errorf("failed to write batch: %w", err)
	}

	m.logger.Debug("Batch mirrored", zap.Int("ops", len(batch.Ops)))
	return nil
}

// ============================================================================
// Write statements
// ============================================================================

type statement struct {
	query  string
	params map[string]interface{}
}

func neoTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func statementFor(op graph.Op) (statement, error) {
	switch op.Kind {
	case graph.OpUpsertUser:
		u := op.User
		return statement{
			query: `
				MERGE (u:User {id: $id})
				ON CREATE SET u.createdAt = datetime($createdAt)
				SET u.email = $email,
				    u.firstName = $firstName,
				    u.lastName = $lastName,
				    u.headline = $headline,
				    u.location = $location,
				    u.industry = $industry
			`,
			params: map[string]interface{}{
				"id":        u.ID,
				"createdAt": neoTime(u.CreatedAt),
				"email":     u.Email,
				"firstName": u.FirstName,
				"lastName":  u.LastName,
				"headline":  u.Headline,
				"location":  u.Location,
				"industry":  u.Industry,
			},
		}, nil

	case graph.OpUpsertCompany:
		c := op.Company
		return statement{
			query: `
				MERGE (c:Company {id: $id})
				ON CREATE SET c.createdAt = datetime($createdAt)
				SET c.name = $name,
				    c.description = $description,
				    c.industry = $industry,
				    c.location = $location
			`,
			params: map[string]interface{}{
				"id":          c.ID,
				"createdAt":   neoTime(c.CreatedAt),
				"name":        c.Name,
				"description": c.Description,
				"industry":    c.Industry,
				"location":    c.Location,
			},
		}, nil

	case graph.OpUpsertSkill:
		return statement{
			query: `
				MERGE (s:Skill {name: $name})
				ON CREATE SET s.createdAt = datetime($createdAt)
			`,
			params: map[string]interface{}{
				"name":      op.Skill.Name,
				"createdAt": neoTime(op.Skill.CreatedAt),
			},
		}, nil

	case graph.OpAddEdge:
		return edgeStatement(op.Edge)

	case graph.OpIncrementEndorsements:
		return statement{
			query: `
				MATCH (u:User {id: $userId})-[r:HAS_SKILL]->(s:Skill {name: $skillName})
				SET r.endorsements = coalesce(r.endorsements, 0) + 1
			`,
			params: map[string]interface{}{
				"userId":    op.UserID,
				"skillName": op.SkillName,
			},
		}, nil
	}
	return statement{}, fmt.Errorf("unsupported op %q", op.Kind)
}

func edgeStatement(e *graph.Edge) (statement, error) {
	params := map[string]interface{}{
		"from":      e.From.ID,
		"to":        e.To.ID,
		"id":        e.ID,
		"createdAt": neoTime(e.CreatedAt),
	}

	switch e.Type {
	case graph.EdgeConnectedTo:
		return statement{query: `
			MATCH (a:User {id: $from}), (b:User {id: $to})
			MERGE (a)-[r:CONNECTED_TO]->(b)
			ON CREATE SET r.id = $id, r.connectedAt = datetime($createdAt)
		`, params: params}, nil

	case graph.EdgeFollows:
		return statement{query: `
			MATCH (u:User {id: $from}), (c:Company {id: $to})
			MERGE (u)-[r:FOLLOWS]->(c)
			ON CREATE SET r.id = $id, r.followedAt = datetime($createdAt)
		`, params: params}, nil

	case graph.EdgeHasSkill:
		params["to"] = e.To.Name
		params["endorsements"] = e.Endorsements
		return statement{query: `
			MATCH (u:User {id: $from}), (s:Skill {name: $to})
			MERGE (u)-[r:HAS_SKILL]->(s)
			ON CREATE SET r.id = $id, r.endorsements = $endorsements, r.createdAt = datetime($createdAt)
		`, params: params}, nil

	case graph.EdgeWorkedAt:
		if e.Work == nil {
			return statement{}, fmt.Errorf("WORKED_AT edge %s has no work properties", e.ID)
		}
		params["position"] = e.Work.Position
		params["startDate"] = e.Work.StartDate.Format(dateLayout)
		params["endDate"] = nil
		if e.Work.EndDate != nil {
			params["endDate"] = e.Work.EndDate.Format(dateLayout)
		}
		return statement{query: `
			MATCH (u:User {id: $from}), (c:Company {id: $to})
			CREATE (u)-[r:WORKED_AT]->(c)
			SET r.id = $id,
			    r.position = $position,
			    r.startDate = date($startDate),
			    r.endDate = CASE WHEN $endDate IS NOT NULL THEN date($endDate) ELSE null END,
			    r.createdAt = datetime($createdAt)
		`, params: params}, nil

	case graph.EdgeEndorsed:
		params["skillName"] = e.SkillName
		return statement{query: `
			MATCH (a:User {id: $from}), (b:User {id: $to})
			CREATE (a)-[r:ENDORSED]->(b)
			SET r.id = $id, r.skillName = $skillName, r.endorsedAt = datetime($createdAt)
		`, params: params}, nil
	}
	return statement{}, fmt.Errorf("unsupported edge type %q", e.Type)
}

// ============================================================================
// Load
// ============================================================================

// loadQueries read the whole graph. Nodes come first so every edge finds its
// endpoints when the batch is applied.
var loadQueries = []struct {
	name  string
	query string
	op    func(*neo4j.Record) (graph.Op, error)
}{
	{"users", `
		MATCH (u:User)
		RETURN u.id AS id, u.email AS email, u.firstName AS firstName, u.lastName AS lastName,
		       u.headline AS headline, u.location AS location, u.industry AS industry,
		       u.createdAt AS createdAt
		ORDER BY id`, userOp},
	{"companies", `
		MATCH (c:Company)
		RETURN c.id AS id, c.name AS name, c.description AS description, c.industry AS industry,
		       c.location AS location, c.createdAt AS createdAt
		ORDER BY id`, companyOp},
	{"skills", `
		MATCH (s:Skill)
		RETURN s.name AS name, s.createdAt AS createdAt
		ORDER BY name`, skillOp},
	{"connections", `
		MATCH (a:User)-[r:CONNECTED_TO]->(b:User)
		RETURN r.id AS id, a.id AS fromId, b.id AS toId, r.connectedAt AS createdAt
		ORDER BY fromId, toId`, simpleEdgeOp(graph.EdgeConnectedTo, graph.VariantUser)},
	{"follows", `
		MATCH (u:User)-[r:FOLLOWS]->(c:Company)
		RETURN r.id AS id, u.id AS fromId, c.id AS toId, r.followedAt AS createdAt
		ORDER BY fromId, toId`, simpleEdgeOp(graph.EdgeFollows, graph.VariantCompany)},
	{"work", `
		MATCH (u:User)-[r:WORKED_AT]->(c:Company)
		RETURN r.id AS id, u.id AS fromId, c.id AS toId, r.position AS position,
		       r.startDate AS startDate, r.endDate AS endDate,
		       r.createdAt AS createdAt
		ORDER BY createdAt`, workOp},
	{"skills held", `
		MATCH (u:User)-[r:HAS_SKILL]->(s:Skill)
		RETURN r.id AS id, u.id AS fromId, s.name AS skill, r.endorsements AS endorsements,
		       r.createdAt AS createdAt
		ORDER BY fromId, skill`, hasSkillOp},
	{"endorsements", `
		MATCH (a:User)-[r:ENDORSED]->(b:User)
		RETURN r.id AS id, a.id AS fromId, b.id AS toId, r.skillName AS skillName,
		       r.endorsedAt AS createdAt
		ORDER BY createdAt`, endorsedOp},
}

// Load reads every node and edge and applies them to store as one batch.
// It must run before the mirror is attached as the store's journal.
func (m *Neo4jMirror) Load(ctx context.Context, store *graph.Store) (int, error) {
	session := m.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	var ops []graph.Op
	for _, lq := range loadQueries {
		records, err := neo4j.ExecuteRead(ctx, session, func(tx neo4j.ManagedTransaction) ([]*neo4j.Record, error) {
			res, err := tx.Run(ctx, lq.query, nil)
			if err != nil {
				return nil, err
			}
			return res.Collect(ctx)
		})
		if err != nil {
			return 0, fmt.Errorf("failed to load %s: %w", lq.name, err)
		}
		for _, rec := range records {
			op, err := lq.op(rec)
			if err != nil {
				return 0, fmt.Errorf("failed to decode %s: %w", lq.name, err)
			}
			ops = append(ops, op)
		}
	}

	if len(ops) > 0 {
		if err := store.ApplyBatch(graph.Batch{Ops: ops, CreatedAt: time.Now().UTC()}); err != nil {
			return 0, err
		}
	}
	m.logger.Info("Graph loaded from Neo4j", zap.Int("ops", len(ops)))
	return len(ops), nil
}

func userOp(rec *neo4j.Record) (graph.Op, error) {
	createdAt, err := getTimeFromRecord(rec, "createdAt", time.RFC3339Nano)
	if err != nil {
		return graph.Op{}, err
	}
	return graph.Op{Kind: graph.OpUpsertUser, User: &graph.User{
		ID:        getInt64FromRecord(rec, "id"),
		Email:     getStringFromRecord(rec, "email"),
		FirstName: getStringFromRecord(rec, "firstName"),
		LastName:  getStringFromRecord(rec, "lastName"),
		Headline:  getStringFromRecord(rec, "headline"),
		Location:  getStringFromRecord(rec, "location"),
		Industry:  getStringFromRecord(rec, "industry"),
		CreatedAt: createdAt,
	}}, nil
}

func companyOp(rec *neo4j.Record) (graph.Op, error) {
	createdAt, err := getTimeFromRecord(rec, "createdAt", time.RFC3339Nano)
	if err != nil {
		return graph.Op{}, err
	}
	return graph.Op{Kind: graph.OpUpsertCompany, Company: &graph.Company{
		ID:          getInt64FromRecord(rec, "id"),
		Name:        getStringFromRecord(rec, "name"),
		Description: getStringFromRecord(rec, "description"),
		Industry:    getStringFromRecord(rec, "industry"),
		Location:    getStringFromRecord(rec, "location"),
		CreatedAt:   createdAt,
	}}, nil
}

func skillOp(rec *neo4j.Record) (graph.Op, error) {
	createdAt, err := getTimeFromRecord(rec, "createdAt", time.RFC3339Nano)
	if err != nil {
		return graph.Op{}, err
	}
	return graph.Op{Kind: graph.OpUpsertSkill, Skill: &graph.Skill{
		Name:      getStringFromRecord(rec, "name"),
		CreatedAt: createdAt,
	}}, nil
}

func simpleEdgeOp(t graph.EdgeType, target graph.Variant) func(*neo4j.Record) (graph.Op, error) {
	return func(rec *neo4j.Record) (graph.Op, error) {
		createdAt, err := getTimeFromRecord(rec, "createdAt", time.RFC3339Nano)
		if err != nil {
			return graph.Op{}, err
		}
		return graph.Op{Kind: graph.OpAddEdge, Edge: &graph.Edge{
			ID:        getStringFromRecord(rec, "id"),
			Type:      t,
			From:      graph.UserRef(getInt64FromRecord(rec, "fromId")),
			To:        graph.NodeRef{Variant: target, ID: getInt64FromRecord(rec, "toId")},
			CreatedAt: createdAt,
		}}, nil
	}
}

func workOp(rec *neo4j.Record) (graph.Op, error) {
	createdAt, err := getTimeFromRecord(rec, "createdAt", time.RFC3339Nano)
	if err != nil {
		return graph.Op{}, err
	}
	start, err := getTimeFromRecord(rec, "startDate", dateLayout)
	if err != nil {
		return graph.Op{}, err
	}
	work := &graph.WorkProps{Position: getStringFromRecord(rec, "position"), StartDate: start}
	if end, err := getTimeFromRecord(rec, "endDate", dateLayout); err != nil {
		return graph.Op{}, err
	} else if !end.IsZero() {
		work.EndDate = &end
	}
	return graph.Op{Kind: graph.OpAddEdge, Edge: &graph.Edge{
		ID:        getStringFromRecord(rec, "id"),
		Type:      graph.EdgeWorkedAt,
		From:      graph.UserRef(getInt64FromRecord(rec, "fromId")),
		To:        graph.CompanyRef(getInt64FromRecord(rec, "toId")),
		CreatedAt: createdAt,
		Work:      work,
	}}, nil
}

func hasSkillOp(rec *neo4j.Record) (graph.Op, error) {
	createdAt, err := getTimeFromRecord(rec, "createdAt", time.RFC3339Nano)
	if err != nil {
		return graph.Op{}, err
	}
	return graph.Op{Kind: graph.OpAddEdge, Edge: &graph.Edge{
		ID:           getStringFromRecord(rec, "id"),
		Type:         graph.EdgeHasSkill,
		From:         graph.UserRef(getInt64FromRecord(rec, "fromId")),
		To:           graph.SkillRef(getStringFromRecord(rec, "skill")),
		CreatedAt:    createdAt,
		Endorsements: getIntFromRecord(rec, "endorsements"),
	}}, nil
}

func endorsedOp(rec *neo4j.Record) (graph.Op, error) {
	createdAt, err := getTimeFromRecord(rec, "createdAt", time.RFC3339Nano)
	if err != nil {
		return graph.Op{}, err
	}
	return graph.Op{Kind: graph.OpAddEdge, Edge: &graph.Edge{
		ID:        getStringFromRecord(rec, "id"),
		Type:      graph.EdgeEndorsed,
		From:      graph.UserRef(getInt64FromRecord(rec, "fromId")),
		To:        graph.UserRef(getInt64FromRecord(rec, "toId")),
		CreatedAt: createdAt,
		SkillName: getStringFromRecord(rec, "skillName"),
	}}, nil
}
