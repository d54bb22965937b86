package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"peoplegraph/backend/internal/graph"
	"peoplegraph/backend/internal/mutation"
	"peoplegraph/backend/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig(backend string) *config.Config {
	return &config.Config{
		Port:           "0",
		Env:            "test",
		StoreBackend:   backend,
		LockStripes:    8,
		QueryTimeout:   time.Second,
		RateLimitRPS:   10,
		RateLimitBurst: 10,
	}
}

func TestOpenStore_Memory(t *testing.T) {
	store, closeStore, err := openStore(context.Background(), testConfig(config.BackendMemory), zap.NewNop())
	require.NoError(t, err)
	defer closeStore()
	assert.Equal(t, 0, store.Stats().Users)
}

func TestOpenStore_BadgerSurvivesRestart(t *testing.T) {
	cfg := testConfig(config.BackendBadger)
	cfg.BadgerPath = filepath.Join(t.TempDir(), "graph")
	ctx := context.Background()

	store, closeStore, err := openStore(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	svc := mutation.NewService(store)
	for _, id := range []int64{1, 2} {
		_, err := svc.UpsertUser(ctx, graph.User{ID: id})
		require.NoError(t, err)
	}
	_, err = svc.ConnectUsers(ctx, 1, 2)
	require.NoError(t, err)
	closeStore()

	store, closeStore, err = openStore(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	defer closeStore()
	assert.Equal(t, 2, store.Stats().Users)
	assert.Equal(t, []graph.NodeRef{graph.UserRef(2)}, store.Neighbors(graph.UserRef(1), graph.EdgeConnectedTo, graph.Outgoing))
}

func TestOpenStore_UnknownBackend(t *testing.T) {
	_, _, err := openStore(context.Background(), testConfig("sqlite"), zap.NewNop())
	assert.Error(t, err)
}
