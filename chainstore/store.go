// Package chainstore implements the logical key/value schema — blocks,
// transactions, exits, exitable-ends, predicate bytecode, marks — over a
// bbolt-backed store, one bucket per namespace.
package chainstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"math/big"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prysmaticlabs/prombbolt"
	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"github.com/nikeshnazareth/plasma-core/async"
	"github.com/nikeshnazareth/plasma-core/types"
)

var log = logrus.WithField("prefix", "chainstore")

// ErrNotFound is returned by lookups that find nothing.
var ErrNotFound = errors.New("not found")

const dbFileName = "plasma_chain.db"

// Store is the bbolt-backed implementation of ChainStore.
type Store struct {
	db *bolt.DB
}

// NewStore opens (creating if absent) a bbolt database under dirPath and
// ensures every namespace bucket exists.
func NewStore(dirPath string) (*Store, error) {
	db, err := bolt.Open(filepath.Join(dirPath, dbFileName), 0600, nil)
	if err != nil {
		return nil, errors.Wrap(err, "opening bbolt database")
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "creating buckets")
	}
	store := &Store{db: db}
	if err := prometheus.Register(&boltStats{db: db}); err != nil {
		log.WithError(err).Debug("bolt stats collector already registered")
	}
	log.WithField("path", filepath.Join(dirPath, dbFileName)).Info("opened chain store")
	return store, nil
}

// boltStats bridges bbolt's internal counters into Prometheus via
// prombbolt, exposing bucket sizes and transaction counts.
type boltStats struct {
	db *bolt.DB
}

func (b *boltStats) Describe(ch chan<- *prometheus.Desc) {
	prombbolt.Describe(b.db, ch)
}

func (b *boltStats) Collect(ch chan<- prometheus.Metric) {
	prombbolt.Report(b.db, ch, "plasma_chainstore")
}

// Close releases the underlying bbolt file handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func blockKey(block *big.Int) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, block.Uint64())
	return out
}

// SetTransaction persists tx, keyed by its hash. Idempotent: writing the
// same transaction twice is a no-op in effect.
func (s *Store) SetTransaction(_ context.Context, tx *types.Transaction) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(tx); err != nil {
		return errors.Wrap(err, "encoding transaction")
	}
	return s.db.Update(func(btx *bolt.Tx) error {
		return btx.Bucket(transactionsBucket).Put(tx.Hash().Bytes(), buf.Bytes())
	})
}

// HasTransaction reports whether a transaction with the given hash has
// been persisted.
func (s *Store) HasTransaction(_ context.Context, hash common.Hash) (bool, error) {
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(transactionsBucket).Get(hash.Bytes()) != nil
		return nil
	})
	return found, err
}

// GetBlockHeader returns the root committed for block, if any.
func (s *Store) GetBlockHeader(_ context.Context, block *big.Int) (common.Hash, bool, error) {
	var root common.Hash
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(headersBucket).Get(blockKey(block))
		if v == nil {
			return nil
		}
		found = true
		root = common.BytesToHash(v)
		return nil
	})
	return root, found, err
}

// SetBlockHeader persists root for block. Headers are immutable after
// first write: a conflicting second write for the same block is rejected.
func (s *Store) SetBlockHeader(_ context.Context, block *big.Int, root common.Hash) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(headersBucket)
		if existing := b.Get(blockKey(block)); existing != nil {
			if common.BytesToHash(existing) != root {
				return errors.Errorf("block %s header already committed with a different root", block)
			}
			return nil
		}
		return b.Put(blockKey(block), root.Bytes())
	})
}

// latestBlockLock serializes latestblock updates with a named mutex.
func latestBlockLock() *async.Multilock {
	return async.NewMultilock("latestblock")
}

// GetLatestBlock returns the highest block number ever observed from a
// block-submission event, or zero if none yet.
func (s *Store) GetLatestBlock(_ context.Context) (*big.Int, error) {
	out := big.NewInt(0)
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(metaBucket).Get(latestBlockKey)
		if v != nil {
			out.SetBytes(v)
		}
		return nil
	})
	return out, err
}

// SetLatestBlock advances the persisted latest-block marker monotonically:
// a lower or equal value is silently ignored, per the invariant that
// latestBlock never regresses.
func (s *Store) SetLatestBlock(_ context.Context, block *big.Int) error {
	lock := latestBlockLock()
	lock.Lock()
	defer lock.Unlock()
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(metaBucket)
		cur := big.NewInt(0)
		if v := b.Get(latestBlockKey); v != nil {
			cur.SetBytes(v)
		}
		if block.Cmp(cur) <= 0 {
			return nil
		}
		return b.Put(latestBlockKey, block.Bytes())
	})
}

// GetPredicateBytecode / SetPredicateBytecode back proof.Verifier's
// write-through predicate-bytecode cache.
func (s *Store) GetPredicateBytecode(_ context.Context, predicate common.Address) ([]byte, bool, error) {
	var out []byte
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(predicateBucket).Get(predicate.Bytes())
		if v == nil {
			return nil
		}
		found = true
		out = append([]byte(nil), v...)
		return nil
	})
	return out, found, err
}

func (s *Store) SetPredicateBytecode(_ context.Context, predicate common.Address, bytecode []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(predicateBucket).Put(predicate.Bytes(), bytecode)
	})
}

// SaveHeadState persists the authoritative head range set.
func (s *Store) SaveHeadState(_ context.Context, objects []*types.StateObject) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(objects); err != nil {
		return errors.Wrap(err, "encoding head state")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(stateBucket).Put(stateHeadKey, buf.Bytes())
	})
}

// LoadHeadState returns the persisted head range set, or an empty slice if
// nothing has been saved yet.
func (s *Store) LoadHeadState(_ context.Context) ([]*types.StateObject, error) {
	out := make([]*types.StateObject, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(stateBucket).Get(stateHeadKey)
		if v == nil {
			return nil
		}
		return gob.NewDecoder(bytes.NewReader(v)).Decode(&out)
	})
	if err != nil {
		return nil, errors.Wrap(err, "decoding head state")
	}
	return out, nil
}
