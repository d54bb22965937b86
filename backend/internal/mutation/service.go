package mutation

import (
	"context"
	"strings"
	"time"

	"peoplegraph/backend/internal/graph"
	"peoplegraph/backend/internal/metrics"
	apperrors "peoplegraph/backend/pkg/errors"
	"peoplegraph/backend/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service is the only writer of the graph. Every operation validates its
// input, checks that referenced nodes exist and commits one atomic batch.
type Service struct {
	store  *graph.Store
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator replaces the uuid edge id generator.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) { s.newID = gen }
}

// NewService creates a mutation service over store.
func NewService(store *graph.Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: logger.Named("mutation"),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ============================================================================
// Node upserts
// ============================================================================

// UpsertUser creates or updates a user. CreatedAt is set on first insert only.
func (s *Service) UpsertUser(ctx context.Context, u graph.User) (graph.User, error) {
	if u.ID <= 0 {
		return graph.User{}, s.done("upsert_user", apperrors.NewInvalidInput("id", "must be positive"))
	}
	u.CreatedAt = s.now()

	err := s.store.Update(ctx, []graph.NodeRef{u.Ref()}, func(tx *graph.Tx) error {
		return tx.UpsertUser(u)
	})
	if err != nil {
		return graph.User{}, s.done("upsert_user", err)
	}

	saved, err := s.store.GetUser(u.ID)
	if err != nil {
		return graph.User{}, s.done("upsert_user", err)
	}
	s.logger.Info("User created/updated", zap.Int64("user_id", u.ID))
	return saved, s.done("upsert_user", nil)
}

// UpsertCompany creates or updates a company.
func (s *Service) UpsertCompany(ctx context.Context, c graph.Company) (graph.Company, error) {
	if c.ID <= 0 {
		return graph.Company{}, s.done("upsert_company", apperrors.NewInvalidInput("id", "must be positive"))
	}
	if strings.TrimSpace(c.Name) == "" {
		return graph.Company{}, s.done("upsert_company", apperrors.NewInvalidInput("name", "is required"))
	}
	c.CreatedAt = s.now()

	err := s.store.Update(ctx, []graph.NodeRef{c.Ref()}, func(tx *graph.Tx) error {
		return tx.UpsertCompany(c)
	})
	if err != nil {
		return graph.Company{}, s.done("upsert_company", err)
	}

	saved, err := s.store.GetCompany(c.ID)
	if err != nil {
		return graph.Company{}, s.done("upsert_company", err)
	}
	s.logger.Info("Company created/updated", zap.Int64("company_id", c.ID))
	return saved, s.done("upsert_company", nil)
}

// EnsureSkill creates the named skill if it does not exist yet.
func (s *Service) EnsureSkill(ctx context.Context, name string) (graph.Skill, error) {
	if err := validateSkillName(name); err != nil {
		return graph.Skill{}, s.done("ensure_skill", err)
	}
	sk := graph.Skill{Name: name, CreatedAt: s.now()}

	err := s.store.Update(ctx, []graph.NodeRef{sk.Ref()}, func(tx *graph.Tx) error {
		if tx.Exists(sk.Ref()) {
			return nil
		}
		return tx.UpsertSkill(sk)
	})
	if err != nil {
		return graph.Skill{}, s.done("ensure_skill", err)
	}

	saved, err := s.store.GetSkill(name)
	if err != nil {
		return graph.Skill{}, s.done("ensure_skill", err)
	}
	s.logger.Info("Skill ensured", zap.String("skill", name))
	return saved, s.done("ensure_skill", nil)
}

// ============================================================================
// Edges
// ============================================================================

// ConnectUsers links two users in both directions. Connecting an already
// connected pair succeeds without changes; created reports which case ran.
func (s *Service) ConnectUsers(ctx context.Context, userA, userB int64) (created bool, err error) {
	if userA == userB {
		return false, s.done("connect", apperrors.NewInvalidInput("connection", "a user cannot connect to themselves"))
	}
	a, b := graph.UserRef(userA), graph.UserRef(userB)

	err = s.store.Update(ctx, []graph.NodeRef{a, b}, func(tx *graph.Tx) error {
		if err := requireNodes(tx, a, b); err != nil {
			return err
		}
		if tx.HasEdge(graph.EdgeConnectedTo, a, b) && tx.HasEdge(graph.EdgeConnectedTo, b, a) {
			return nil
		}
		at := s.now()
		if err := tx.AddEdge(graph.Edge{ID: s.newID(), Type: graph.EdgeConnectedTo, From: a, To: b, CreatedAt: at}); err != nil {
			return err
		}
		if err := tx.AddEdge(graph.Edge{ID: s.newID(), Type: graph.EdgeConnectedTo, From: b, To: a, CreatedAt: at}); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, s.done("connect", err)
	}

	s.logger.Info("Users connected",
		zap.Int64("from_user_id", userA),
		zap.Int64("to_user_id", userB),
		zap.Bool("created", created),
	)
	return created, s.done("connect", nil)
}

// FollowCompany merges a FOLLOWS edge.
func (s *Service) FollowCompany(ctx context.Context, userID, companyID int64) error {
	u, c := graph.UserRef(userID), graph.CompanyRef(companyID)

	err := s.store.Update(ctx, []graph.NodeRef{u, c}, func(tx *graph.Tx) error {
		if err := requireNodes(tx, u, c); err != nil {
			return err
		}
		if tx.HasEdge(graph.EdgeFollows, u, c) {
			return nil
		}
		return tx.AddEdge(graph.Edge{ID: s.newID(), Type: graph.EdgeFollows, From: u, To: c, CreatedAt: s.now()})
	})
	if err != nil {
		return s.done("follow", err)
	}

	s.logger.Info("User follows company", zap.Int64("user_id", userID), zap.Int64("company_id", companyID))
	return s.done("follow", nil)
}

// WorkExperience is the input of AddWorkExperience. Dates use YYYY-MM-DD;
// a nil EndDate marks the current role.
type WorkExperience struct {
	UserID    int64
	CompanyID int64
	Position  string
	StartDate string
	EndDate   *string
}

// AddWorkExperience always appends a new WORKED_AT edge.
func (s *Service) AddWorkExperience(ctx context.Context, req WorkExperience) (graph.Edge, error) {
	props, err := parseWork(req)
	if err != nil {
		return graph.Edge{}, s.done("work_experience", err)
	}
	u, c := graph.UserRef(req.UserID), graph.CompanyRef(req.CompanyID)
	edge := graph.Edge{
		ID:        s.newID(),
		Type:      graph.EdgeWorkedAt,
		From:      u,
		To:        c,
		CreatedAt: s.now(),
		Work:      props,
	}

	err = s.store.Update(ctx, []graph.NodeRef{u, c}, func(tx *graph.Tx) error {
		if err := requireNodes(tx, u, c); err != nil {
			return err
		}
		return tx.AddEdge(edge)
	})
	if err != nil {
		return graph.Edge{}, s.done("work_experience", err)
	}

	s.logger.Info("Work experience added",
		zap.Int64("user_id", req.UserID),
		zap.Int64("company_id", req.CompanyID),
		zap.String("position", req.Position),
	)
	return edge, s.done("work_experience", nil)
}

// AddSkill merges a HAS_SKILL edge with zero endorsements, creating the skill
// node if needed.
func (s *Service) AddSkill(ctx context.Context, userID int64, skillName string) error {
	if err := validateSkillName(skillName); err != nil {
		return s.done("add_skill", err)
	}
	u, sk := graph.UserRef(userID), graph.SkillRef(skillName)

	err := s.store.Update(ctx, []graph.NodeRef{u, sk}, func(tx *graph.Tx) error {
		if err := requireNodes(tx, u); err != nil {
			return err
		}
		if err := s.stageSkill(tx, skillName); err != nil {
			return err
		}
		if tx.HasEdge(graph.EdgeHasSkill, u, sk) {
			return nil
		}
		return tx.AddEdge(graph.Edge{ID: s.newID(), Type: graph.EdgeHasSkill, From: u, To: sk, CreatedAt: s.now()})
	})
	if err != nil {
		return s.done("add_skill", err)
	}

	s.logger.Info("Skill added", zap.Int64("user_id", userID), zap.String("skill", skillName))
	return s.done("add_skill", nil)
}

// Endorsement is the input of EndorseSkill.
type Endorsement struct {
	EndorserID int64
	UserID     int64
	SkillName  string
}

// EndorseSkill records that EndorserID vouches for UserID's skill: the skill
// and HAS_SKILL edge are created if absent, the counter is incremented and an
// ENDORSED history edge is appended, all in one batch. It returns the new
// endorsement count.
func (s *Service) EndorseSkill(ctx context.Context, req Endorsement) (int, error) {
	if err := validateSkillName(req.SkillName); err != nil {
		return 0, s.done("endorse", err)
	}
	if req.EndorserID == req.UserID {
		return 0, s.done("endorse", apperrors.NewInvalidInput("endorsement", "a user cannot endorse themselves"))
	}
	endorser, endorsed, sk := graph.UserRef(req.EndorserID), graph.UserRef(req.UserID), graph.SkillRef(req.SkillName)

	err := s.store.Update(ctx, []graph.NodeRef{endorser, endorsed, sk}, func(tx *graph.Tx) error {
		if err := requireNodes(tx, endorser, endorsed); err != nil {
			return err
		}
		if err := s.stageSkill(tx, req.SkillName); err != nil {
			return err
		}
		at := s.now()
		if !tx.HasEdge(graph.EdgeHasSkill, endorsed, sk) {
			if err := tx.AddEdge(graph.Edge{ID: s.newID(), Type: graph.EdgeHasSkill, From: endorsed, To: sk, CreatedAt: at}); err != nil {
				return err
			}
		}
		if err := tx.IncrementEndorsements(req.UserID, req.SkillName); err != nil {
			return err
		}
		return tx.AddEdge(graph.Edge{
			ID:        s.newID(),
			Type:      graph.EdgeEndorsed,
			From:      endorser,
			To:        endorsed,
			CreatedAt: at,
			SkillName: req.SkillName,
		})
	})
	if err != nil {
		return 0, s.done("endorse", err)
	}

	var count int
	_ = s.store.Read(func(v *graph.View) error {
		if edges := v.Edges(graph.EdgeHasSkill, endorsed, sk); len(edges) > 0 {
			count = edges[0].Endorsements
		}
		return nil
	})

	s.logger.Info("Skill endorsed",
		zap.Int64("endorser_id", req.EndorserID),
		zap.Int64("user_id", req.UserID),
		zap.String("skill", req.SkillName),
		zap.Int("endorsements", count),
	)
	return count, s.done("endorse", nil)
}

// ============================================================================
// Helpers
// ============================================================================

func (s *Service) stageSkill(tx *graph.Tx, name string) error {
	if tx.Exists(graph.SkillRef(name)) {
		return nil
	}
	return tx.UpsertSkill(graph.Skill{Name: name, CreatedAt: s.now()})
}

// done records the outcome metric and graph size, then passes err through.
func (s *Service) done(op string, err error) error {
	metrics.ObserveMutation(op, err)
	if err != nil {
		s.logger.Debug("Mutation rejected", zap.String("op", op), zap.Error(err))
		return err
	}
	metrics.SetGraphStats(s.store.Stats())
	return nil
}

func requireNodes(tx *graph.Tx, refs ...graph.NodeRef) error {
	for _, r := range refs {
		if !tx.Exists(r) {
			return graph.NotFound(r)
		}
	}
	return nil
}

func validateSkillName(name string) error {
	if strings.TrimSpace(name) == "" {
		return apperrors.NewInvalidInput("skillName", "is required")
	}
	return nil
}
