// Package persistence makes committed graph mutations durable: a BadgerDB
// write-ahead log replayed at startup, or a Neo4j write-through mirror loaded
// at startup.
package persistence

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"peoplegraph/backend/internal/graph"
	"peoplegraph/backend/pkg/logger"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

var batchPrefix = []byte("batch/")

// BadgerConfig configures the write-ahead log.
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string
	// InMemory keeps everything in RAM, for tests.
	InMemory bool
	// SyncWrites fsyncs every append. Required for crash consistency.
	SyncWrites bool
}

// BadgerJournal is a graph.Journal that appends every batch to BadgerDB under
// a monotonically increasing sequence key.
type BadgerJournal struct {
	db     *badger.DB
	logger *zap.Logger

	mu   sync.Mutex
	next uint64
}

// badgerLogger adapts zap to BadgerDB's Logger interface.
type badgerLogger struct {
	s *zap.SugaredLogger
}

func (l badgerLogger) Errorf(format string, args ...interface{})   { l.s.Errorf(format, args...) }
func (l badgerLogger) Warningf(format string, args ...interface{}) { l.s.Warnf(format, args...) }
func (l badgerLogger) Infof(format string, args ...interface{})    { l.s.Debugf(format, args...) }
func (l badgerLogger) Debugf(format string, args ...interface{})   { l.s.Debugf(format, args...) }

// OpenBadger opens (or creates) the journal.
func OpenBadger(cfg BadgerConfig) (*BadgerJournal, error) {
	log := logger.Named("badger")

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("badger path is required")
		}
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create journal directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.
		WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(badgerLogger{s: log.Sugar()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger journal: %w", err)
	}

	j := &BadgerJournal{db: db, logger: log}
	last, err := j.lastSeq()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	j.next = last + 1

	log.Info("Journal opened",
		zap.String("path", cfg.Path),
		zap.Bool("in_memory", cfg.InMemory),
		zap.Uint64("last_seq", last),
	)
	return j, nil
}

func batchKey(seq uint64) []byte {
	return fmt.Appendf(nil, "%s%016d", batchPrefix, seq)
}

func seqFromKey(key []byte) (uint64, error) {
	return strconv.ParseUint(string(bytes.TrimPrefix(key, batchPrefix)), 10, 64)
}

func (j *BadgerJournal) lastSeq() (uint64, error) {
	var last uint64
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration seeks to the largest key <= the seek key.
		it.Seek(append(append([]byte{}, batchPrefix...), 0xFF))
		if it.ValidForPrefix(batchPrefix) {
			seq, err := seqFromKey(it.Item().Key())
			if err != nil {
				return fmt.Errorf("parse journal key %q: %w", it.Item().Key(), err)
			}
			last = seq
		}
		return nil
	})
	return last, err
}

// Append writes batch durably before it is applied to the graph.
func (j *BadgerJournal) Append(ctx context.Context, batch graph.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	batch.Seq = j.next
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}

	if err := j.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(batchKey(batch.Seq), data))
	}); err != nil {
		return fmt.Errorf("write batch %d: %w", batch.Seq, err)
	}
	j.next++

	j.logger.Debug("Batch journaled", zap.Uint64("seq", batch.Seq), zap.Int("ops", len(batch.Ops)))
	return nil
}

// Replay applies every journaled batch to store in sequence order and returns
// how many were applied. It must run before the journal is attached.
func (j *BadgerJournal) Replay(ctx context.Context, store *graph.Store) (int, error) {
	applied := 0
	err := j.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(batchPrefix); it.ValidForPrefix(batchPrefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var batch graph.Batch
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &batch)
			}); err != nil {
				return fmt.Errorf("decode journal entry %q: %w", it.Item().Key(), err)
			}
			if err := store.ApplyBatch(batch); err != nil {
				return fmt.Errorf("replay: %w", err)
			}
			applied++
		}
		return nil
	})
	if err != nil {
		return applied, err
	}

	j.logger.Info("Journal replayed", zap.Int("batches", applied))
	return applied, nil
}

// RunGC runs value log garbage collection until there is nothing to rewrite.
func (j *BadgerJournal) RunGC(discardRatio float64) {
	for {
		if err := j.db.RunValueLogGC(discardRatio); err != nil {
			return
		}
	}
}

// Close flushes and closes the database.
func (j *BadgerJournal) Close() error {
	return j.db.Close()
}
