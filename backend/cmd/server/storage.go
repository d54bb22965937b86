package main

import (
	"context"
	"fmt"
	"time"

	"peoplegraph/backend/internal/graph"
	"peoplegraph/backend/internal/persistence"
	"peoplegraph/backend/pkg/config"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

const badgerGCInterval = 10 * time.Minute

// openStore builds the graph store for the configured backend, restores its
// contents and attaches the journal. The returned func releases the backend.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (*graph.Store, func(), error) {
	store := graph.NewStore(graph.WithStripes(cfg.LockStripes))

	switch cfg.StoreBackend {
	case config.BackendMemory:
		log.Warn("Using in-memory store; the graph is lost on restart")
		return store, func() {}, nil

	case config.BackendBadger:
		journal, err := persistence.OpenBadger(persistence.BadgerConfig{
			Path:       cfg.BadgerPath,
			SyncWrites: true,
		})
		if err != nil {
			return nil, nil, err
		}
		n, err := journal.Replay(ctx, store)
		if err != nil {
			journal.Close()
			return nil, nil, fmt.Errorf("failed to replay journal: %w", err)
		}
		store.SetJournal(journal)
		log.Info("Graph restored from journal", zap.Int("batches", n), zap.String("path", cfg.BadgerPath))

		gcCtx, stop := context.WithCancel(context.Background())
		go runBadgerGC(gcCtx, journal)
		return store, func() {
			stop()
			if err := journal.Close(); err != nil {
				log.Error("Failed to close journal", zap.Error(err))
			}
		}, nil

	case config.BackendNeo4j:
		driver, err := neo4j.NewDriverWithContext(
			cfg.Neo4jURI,
			neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Neo4j driver: %w", err)
		}
		if err := driver.VerifyConnectivity(ctx); err != nil {
			driver.Close(ctx)
			return nil, nil, fmt.Errorf("failed to verify Neo4j connectivity: %w", err)
		}

		mirror := persistence.NewNeo4jMirror(driver)
		if err := mirror.EnsureSchema(ctx); err != nil {
			log.Warn("Failed to create some constraints (may already exist)", zap.Error(err))
		}
		n, err := mirror.Load(ctx, store)
		if err != nil {
			mirror.Close()
			return nil, nil, fmt.Errorf("failed to load graph from Neo4j: %w", err)
		}
		store.SetJournal(mirror)
		log.Info("Graph loaded from Neo4j", zap.Int("records", n))
		return store, func() {
			if err := mirror.Close(); err != nil {
				log.Error("Failed to close Neo4j driver", zap.Error(err))
			}
		}, nil
	}

	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

func runBadgerGC(ctx context.Context, journal *persistence.BadgerJournal) {
	ticker := time.NewTicker(badgerGCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			journal.RunGC(0.5)
		}
	}
}
