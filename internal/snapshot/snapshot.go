// Package snapshot persists the Graph Store and Provenance Ledger to
// BadgerDB and reloads them, implementing the persisted snapshot layout
// of spec.md §6: `{ graph: { nodes, edges }, provenance: [(entity,
// field, record-history)], completed_stages: [stage], timestamp }`.
//
// Persistence, like parsing, is deliberately out of the core's scope
// (spec.md §1) — this package is the mechanical translator between the
// in-memory model and an on-disk store, grounded on the same key-prefix
// scheme the teacher's storage backend used for its own entities.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/Benny93/dkg-go/internal/graph"
	"github.com/Benny93/dkg-go/internal/provenance"
	"github.com/Benny93/dkg-go/internal/stage"
)

// Key prefixes for the entity kinds this package persists.
const (
	prefixNode       = "n:"
	prefixEdge       = "e:"
	prefixProvenance = "p:"
	prefixStage      = "s:"
	keyTimestamp     = "meta:timestamp"
)

// Store wraps a BadgerDB handle dedicated to one snapshot.
type Store struct {
	db *badger.DB
	mu sync.RWMutex
}

// Open opens or creates the snapshot database at path. readOnly mirrors
// BadgerDB's own read-only open mode, for inspecting a snapshot without
// risking a write.
func Open(path string, readOnly bool) (*Store, error) {
	opts := badger.DefaultOptions(path).
		WithNumCompactors(2).
		WithNumMemtables(5).
		WithLoggingLevel(badger.ERROR)
	if readOnly {
		opts = opts.WithReadOnly(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("snapshot: opening badger db: %w", err)
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying BadgerDB handle so callers can layer other
// prefix-scoped stores (e.g. internal/query's NameIndex) onto the same
// snapshot file instead of opening a second database.
func (s *Store) DB() *badger.DB {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// provenanceRecordRow is the on-disk shape for one (entity, field)'s
// full history.
type provenanceRecordRow struct {
	EntityID string               `json:"entity_id"`
	Field    string               `json:"field"`
	History  []provenance.Record `json:"history"`
}

// Save writes g, ledger, and pipeline's completed stages to the snapshot
// database as a single atomic write batch, plus the given timestamp
// (caller-supplied since this package may not call time.Now() directly
// in a context where determinism matters for tests).
func (s *Store) Save(ctx context.Context, g *graph.Store, ledger *provenance.Ledger, pipeline *stage.Pipeline, timestamp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, n := range g.AllNodes() {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := json.Marshal(n)
		if err != nil {
			return fmt.Errorf("snapshot: marshal node %s: %w", n.ID, err)
		}
		if err := wb.Set([]byte(prefixNode+n.ID), data); err != nil {
			return fmt.Errorf("snapshot: write node %s: %w", n.ID, err)
		}
	}

	for _, e := range g.AllEdges() {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("snapshot: marshal edge %s: %w", e.ID, err)
		}
		if err := wb.Set([]byte(prefixEdge+e.ID), data); err != nil {
			return fmt.Errorf("snapshot: write edge %s: %w", e.ID, err)
		}
	}

	for _, f := range ledger.Fields() {
		row := provenanceRecordRow{
			EntityID: f.EntityID,
			Field:    f.Field,
			History:  ledger.History(f.EntityID, f.Field),
		}
		data, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("snapshot: marshal provenance %s/%s: %w", f.EntityID, f.Field, err)
		}
		key := prefixProvenance + f.EntityID + "\x00" + f.Field
		if err := wb.Set([]byte(key), data); err != nil {
			return fmt.Errorf("snapshot: write provenance %s/%s: %w", f.EntityID, f.Field, err)
		}
	}

	for _, stg := range pipeline.CompletedStages() {
		if err := wb.Set([]byte(prefixStage+string(stg)), []byte("1")); err != nil {
			return fmt.Errorf("snapshot: write stage marker %s: %w", stg, err)
		}
	}

	if err := wb.Set([]byte(keyTimestamp), []byte(timestamp)); err != nil {
		return fmt.Errorf("snapshot: write timestamp: %w", err)
	}

	return wb.Flush()
}

// Loaded bundles the reconstructed in-memory state a Load produces.
type Loaded struct {
	Store     *graph.Store
	Ledger    *provenance.Ledger
	Pipeline  *stage.Pipeline
	Timestamp string
}

// Load reconstructs a graph.Store, provenance.Ledger, and stage.Pipeline
// from the snapshot database. The ledger's sequence counter is fast-
// forwarded past every loaded record's sequence number, so that writes
// issued after reload continue to be precedence-gated correctly (spec.md
// §6).
func (s *Store) Load(ctx context.Context) (*Loaded, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g := graph.NewStore()
	ledger := provenance.NewLedger(0)

	if err := s.loadNodes(ctx, g); err != nil {
		return nil, err
	}
	if err := s.loadEdges(ctx, g); err != nil {
		return nil, err
	}
	maxSeq, err := s.loadProvenance(ctx, ledger)
	if err != nil {
		return nil, err
	}
	ledger.FastForwardSequence(maxSeq)

	pipeline := stage.New(g, nil, nil)
	stages, err := s.loadStages(ctx)
	if err != nil {
		return nil, err
	}
	for _, stg := range stages {
		pipeline.MarkCompleted(stg)
	}

	timestamp, err := s.loadTimestamp()
	if err != nil {
		return nil, err
	}

	return &Loaded{Store: g, Ledger: ledger, Pipeline: pipeline, Timestamp: timestamp}, nil
}

func (s *Store) loadNodes(ctx context.Context, g *graph.Store) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixNode)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var n graph.Node
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &n) }); err != nil {
				return fmt.Errorf("snapshot: unmarshal node: %w", err)
			}
			if err := g.AddNode(&n); err != nil {
				return fmt.Errorf("snapshot: reconstruct node %s: %w", n.ID, err)
			}
		}
		return nil
	})
}

func (s *Store) loadEdges(ctx context.Context, g *graph.Store) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixEdge)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var e graph.Edge
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &e) }); err != nil {
				return fmt.Errorf("snapshot: unmarshal edge: %w", err)
			}
			if err := g.AddEdge(&e); err != nil {
				return fmt.Errorf("snapshot: reconstruct edge %s: %w", e.ID, err)
			}
		}
		return nil
	})
}

func (s *Store) loadProvenance(ctx context.Context, ledger *provenance.Ledger) (int64, error) {
	var maxSeq int64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixProvenance)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var row provenanceRecordRow
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &row) }); err != nil {
				return fmt.Errorf("snapshot: unmarshal provenance row: %w", err)
			}
			for _, rec := range row.History {
				ledger.Append(row.EntityID, row.Field, rec)
				if rec.Sequence > maxSeq {
					maxSeq = rec.Sequence
				}
			}
		}
		return nil
	})
	return maxSeq, err
}

func (s *Store) loadStages(ctx context.Context) ([]provenance.Stage, error) {
	var stages []provenance.Stage
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixStage)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			key := string(it.Item().Key())
			stages = append(stages, provenance.Stage(key[len(prefixStage):]))
		}
		return nil
	})
	return stages, err
}

func (s *Store) loadTimestamp() (string, error) {
	var timestamp string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyTimestamp))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			timestamp = string(val)
			return nil
		})
	})
	return timestamp, err
}
