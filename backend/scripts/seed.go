package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"peoplegraph/backend/internal/graph"
	"peoplegraph/backend/internal/ingest"
	"peoplegraph/backend/internal/mutation"
	"peoplegraph/backend/internal/persistence"
	"peoplegraph/backend/pkg/config"
	"peoplegraph/backend/pkg/logger"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// Seeds a small demo network through the mutation layer so it lands in the
// configured backend's journal.
func main() {
	reset := flag.Bool("reset", false, "Delete existing graph data before seeding")
	skipConfirm := flag.Bool("y", false, "Skip confirmation prompt")
	flag.Parse()

	// Initialize logger
	if err := logger.Init("development"); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting graph seeding...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	if *reset && !*skipConfirm {
		log.Warn("WARNING: This will DELETE ALL graph data", zap.String("backend", cfg.StoreBackend))
		fmt.Print("Are you sure you want to continue? (yes/no): ")
		var response string
		fmt.Scanln(&response)
		if response != "yes" && response != "y" {
			log.Info("Aborted.")
			os.Exit(0)
		}
	}

	ctx := context.Background()
	store := graph.NewStore(graph.WithStripes(cfg.LockStripes))

	switch cfg.StoreBackend {
	case config.BackendBadger:
		if *reset {
			if err := os.RemoveAll(cfg.BadgerPath); err != nil {
				log.Fatal("Failed to remove journal", zap.Error(err))
			}
		}
		journal, err := persistence.OpenBadger(persistence.BadgerConfig{Path: cfg.BadgerPath, SyncWrites: true})
		if err != nil {
			log.Fatal("Failed to open journal", zap.Error(err))
		}
		defer journal.Close()
		if _, err := journal.Replay(ctx, store); err != nil {
			log.Fatal("Failed to replay journal", zap.Error(err))
		}
		store.SetJournal(journal)

	case config.BackendNeo4j:
		driver, err := neo4j.NewDriverWithContext(
			cfg.Neo4jURI,
			neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""),
		)
		if err != nil {
			log.Fatal("Failed to create Neo4j driver", zap.Error(err))
		}
		if err := driver.VerifyConnectivity(ctx); err != nil {
			log.Fatal("Failed to verify Neo4j connectivity", zap.Error(err))
		}
		mirror := persistence.NewNeo4jMirror(driver)
		defer mirror.Close()

		if *reset {
			if err := mirror.Reset(ctx); err != nil {
				log.Fatal("Failed to delete graph data", zap.Error(err))
			}
		}
		if err := mirror.EnsureSchema(ctx); err != nil {
			log.Warn("Failed to create some constraints (may already exist)", zap.Error(err))
		}
		if _, err := mirror.Load(ctx, store); err != nil {
			log.Fatal("Failed to load graph", zap.Error(err))
		}
		store.SetJournal(mirror)

	default:
		log.Warn("In-memory backend: the seeded graph only lives for this run")
	}

	if err := seed(ctx, mutation.NewService(store), log); err != nil {
		log.Fatal("Seeding failed", zap.Error(err))
	}

	stats := store.Stats()
	log.Info("Seeding completed successfully!",
		zap.Int("users", stats.Users),
		zap.Int("companies", stats.Companies),
		zap.Int("skills", stats.Skills),
	)
}

func seed(ctx context.Context, svc *mutation.Service, log *zap.Logger) error {
	syncer := ingest.NewAdapter(svc)

	users := []ingest.UserPayload{
		{ID: 1, FirstName: "Ana", LastName: "Silva", Headline: "Backend Engineer", Industry: "Software", Location: "Lisbon"},
		{ID: 2, FirstName: "Ben", LastName: "Okafor", Headline: "Platform Lead", Industry: "Software", Location: "Berlin"},
		{ID: 3, FirstName: "Chen", LastName: "Wei", Headline: "Data Scientist", Industry: "Software", Location: "Lisbon"},
		{ID: 4, FirstName: "Dana", LastName: "Kowalski", Headline: "Product Manager", Industry: "Fintech", Location: "Berlin"},
		{ID: 5, FirstName: "Eli", LastName: "Haddad", Headline: "SRE", Industry: "Software", Location: "Lisbon"},
		{ID: 6, FirstName: "Fatima", LastName: "Rahman", Headline: "Recruiter", Industry: "Staffing", Location: "London"},
	}
	for _, u := range users {
		if _, err := syncer.SyncUser(ctx, u); err != nil {
			return fmt.Errorf("sync user %d: %w", u.ID, err)
		}
	}

	companies := []ingest.CompanyPayload{
		{ID: 100, Name: "Northwind", Industry: "Software", Location: "Berlin"},
		{ID: 101, Name: "Ledgerly", Industry: "Fintech", Location: "London"},
	}
	for _, c := range companies {
		if _, err := syncer.SyncCompany(ctx, c); err != nil {
			return fmt.Errorf("sync company %d: %w", c.ID, err)
		}
	}

	for _, pair := range [][2]int64{{1, 2}, {2, 3}, {2, 4}, {3, 5}, {4, 6}} {
		if _, err := svc.ConnectUsers(ctx, pair[0], pair[1]); err != nil {
			return fmt.Errorf("connect %d-%d: %w", pair[0], pair[1], err)
		}
	}

	end := "2022-03-31"
	work := []mutation.WorkExperience{
		{UserID: 1, CompanyID: 100, Position: "Backend Engineer", StartDate: "2021-02-01"},
		{UserID: 2, CompanyID: 100, Position: "Platform Lead", StartDate: "2018-06-01"},
		{UserID: 4, CompanyID: 101, Position: "Product Manager", StartDate: "2019-09-01"},
		{UserID: 5, CompanyID: 101, Position: "SRE", StartDate: "2019-01-15", EndDate: &end},
	}
	for _, w := range work {
		if _, err := svc.AddWorkExperience(ctx, w); err != nil {
			return fmt.Errorf("work experience for %d: %w", w.UserID, err)
		}
	}

	for _, f := range [][2]int64{{1, 101}, {3, 100}, {6, 101}} {
		if err := svc.FollowCompany(ctx, f[0], f[1]); err != nil {
			return fmt.Errorf("follow %d->%d: %w", f[0], f[1], err)
		}
	}

	skills := map[int64][]string{
		1: {"Go", "PostgreSQL"},
		2: {"Go", "Kubernetes"},
		3: {"Python", "PostgreSQL"},
		5: {"Kubernetes", "Go"},
	}
	for userID, names := range skills {
		for _, name := range names {
			if err := svc.AddSkill(ctx, userID, name); err != nil {
				return fmt.Errorf("skill %s for %d: %w", name, userID, err)
			}
		}
	}

	for _, e := range []mutation.Endorsement{
		{EndorserID: 2, UserID: 1, SkillName: "Go"},
		{EndorserID: 5, UserID: 2, SkillName: "Kubernetes"},
		{EndorserID: 1, UserID: 3, SkillName: "PostgreSQL"},
	} {
		if _, err := svc.EndorseSkill(ctx, e); err != nil {
			return fmt.Errorf("endorse %s for %d: %w", e.SkillName, e.UserID, err)
		}
	}

	log.Info("Demo network created")
	return nil
}
