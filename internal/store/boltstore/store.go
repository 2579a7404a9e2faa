// Package boltstore implements store.Store on a bbolt file. Each run kind has
// its own bucket keyed by a big-endian sequence, so the last key is the
// latest run.
package boltstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.etcd.io/bbolt"

	"github.com/MJE43/blackjack-policy/internal/dealer"
	"github.com/MJE43/blackjack-policy/internal/solver"
	"github.com/MJE43/blackjack-policy/internal/store"
)

const defaultListLimit = 50

type dealerRecord struct {
	Run   store.Run          `json:"run"`
	Cells []store.DealerCell `json:"cells"`
}

type policyRecord struct {
	Run   store.Run          `json:"run"`
	Cells []store.PolicyCell `json:"cells"`
}

// Store provides a bbolt-backed store.Store.
type Store struct {
	db  *bbolt.DB
	log zerolog.Logger
}

var _ store.Store = (*Store)(nil)

// Open opens the bbolt file at path, creating it and its buckets if needed.
func Open(path string, log zerolog.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	db, err := bbolt.Open(filepath.Clean(path), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	s := &Store{db: db, log: log.With().Str("component", "store").Str("backend", "bolt").Logger()}
	if err := s.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, kind := range []store.Kind{store.KindDealer, store.KindPolicy} {
			if _, err := tx.CreateBucketIfNotExists([]byte(kind)); err != nil {
				return fmt.Errorf("create %s bucket: %w", kind, err)
			}
		}
		return nil
	})
}

func (s *Store) put(ctx context.Context, run store.Run, record any) (store.Run, error) {
	if err := ctx.Err(); err != nil {
		return store.Run{}, err
	}

	kind := run.Kind
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(kind))
		if bucket == nil {
			return fmt.Errorf("%s bucket is missing", kind)
		}
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		payload, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal %s record: %w", kind, err)
		}
		return bucket.Put(seqKey(seq), payload)
	})
	if err != nil {
		return store.Run{}, err
	}

	s.log.Info().Str("op", "store_operation").Str("run_id", run.ID).Str("kind", string(kind)).Msg("saved")
	return run, nil
}

func (s *Store) latest(ctx context.Context, kind store.Kind, into any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(kind))
		if bucket == nil {
			return fmt.Errorf("%s bucket is missing", kind)
		}
		_, payload := bucket.Cursor().Last()
		if payload == nil {
			return fmt.Errorf("%s table: %w", kind, store.ErrNotFound)
		}
		if err := json.Unmarshal(payload, into); err != nil {
			return fmt.Errorf("unmarshal %s record: %w", kind, err)
		}
		return nil
	})
}

// SaveDealerTable stores t as a new dealer run.
func (s *Store) SaveDealerTable(ctx context.Context, t dealer.OutcomeTable) (store.Run, error) {
	run := store.NewRun(store.KindDealer)
	return s.put(ctx, run, dealerRecord{Run: run, Cells: store.EncodeDealer(t)})
}

// LoadDealerTable returns the latest dealer table.
func (s *Store) LoadDealerTable(ctx context.Context) (dealer.OutcomeTable, store.Run, error) {
	var rec dealerRecord
	if err := s.latest(ctx, store.KindDealer, &rec); err != nil {
		return dealer.OutcomeTable{}, store.Run{}, err
	}
	t, err := store.DecodeDealer(rec.Cells)
	if err != nil {
		return dealer.OutcomeTable{}, store.Run{}, fmt.Errorf("run %s: %w", rec.Run.ID, err)
	}
	return t, rec.Run, nil
}

// SavePolicy stores p as a new policy run.
func (s *Store) SavePolicy(ctx context.Context, p solver.Policy) (store.Run, error) {
	run := store.NewRun(store.KindPolicy)
	run.Horizon, run.Timestep = p.Horizon, p.Timestep
	return s.put(ctx, run, policyRecord{Run: run, Cells: store.EncodePolicy(p)})
}

// LoadPolicy returns the latest policy.
func (s *Store) LoadPolicy(ctx context.Context) (solver.Policy, store.Run, error) {
	var rec policyRecord
	if err := s.latest(ctx, store.KindPolicy, &rec); err != nil {
		return solver.Policy{}, store.Run{}, err
	}
	p, err := store.DecodePolicy(rec.Run, rec.Cells)
	if err != nil {
		return solver.Policy{}, store.Run{}, fmt.Errorf("run %s: %w", rec.Run.ID, err)
	}
	return p, rec.Run, nil
}

// ListRuns walks the kind buckets newest first and merges them by creation
// time.
func (s *Store) ListRuns(ctx context.Context, kind store.Kind, limit int) ([]store.Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	kinds := []store.Kind{store.KindDealer, store.KindPolicy}
	if kind != "" {
		kinds = []store.Kind{kind}
	}

	runs := []store.Run{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		for _, k := range kinds {
			bucket := tx.Bucket([]byte(k))
			if bucket == nil {
				return fmt.Errorf("%w: %s", store.ErrUnknownKind, k)
			}
			c := bucket.Cursor()
			n := 0
			for key, payload := c.Last(); key != nil && n < limit; key, payload = c.Prev() {
				var rec struct {
					Run store.Run `json:"run"`
				}
				if err := json.Unmarshal(payload, &rec); err != nil {
					return fmt.Errorf("unmarshal %s record: %w", k, err)
				}
				runs = append(runs, rec.Run)
				n++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortNewestFirst(runs)
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func seqKey(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}

func sortNewestFirst(runs []store.Run) {
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].CreatedAt.After(runs[j].CreatedAt) })
}
