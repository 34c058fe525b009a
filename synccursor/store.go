// Package synccursor persists per-event cursors, a seen-event identity set,
// the last-synced plasma block, and a queue of transactions that failed
// import and need retrying.
package synccursor

import (
	"bytes"
	"context"
	"encoding/gob"
	"math/big"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"github.com/nikeshnazareth/plasma-core/types"
)

var log = logrus.WithField("prefix", "synccursor")

const dbFileName = "plasma_sync_cursor.db"

var (
	cursorsBucket      = []byte("cursors")
	seenEventsBucket   = []byte("seen_events")
	failedTxBucket     = []byte("failed_tx")
	syncMetaBucket     = []byte("sync_meta")
	lastSyncedBlockKey = []byte("last_synced_block")
	failedTxListKey    = []byte("list")
)

// Store is the bbolt-backed implementation of SyncCursorStore.
type Store struct {
	db *bolt.DB
}

// NewStore opens (creating if absent) a bbolt database under dirPath.
func NewStore(dirPath string) (*Store, error) {
	db, err := bolt.Open(filepath.Join(dirPath, dbFileName), 0600, nil)
	if err != nil {
		return nil, errors.Wrap(err, "opening bbolt database")
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{cursorsBucket, seenEventsBucket, failedTxBucket, syncMetaBucket} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "creating buckets")
	}
	log.Debug("opened sync cursor store")
	return &Store{db: db}, nil
}

// Close releases the underlying bbolt file handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetLastLoggedEventBlock returns the highest anchor block processed for
// event name, or zero if none yet.
func (s *Store) GetLastLoggedEventBlock(_ context.Context, name string) (*big.Int, error) {
	out := big.NewInt(0)
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(cursorsBucket).Get([]byte(name))
		if v != nil {
			out.SetBytes(v)
		}
		return nil
	})
	return out, err
}

// SetLastLoggedEventBlock advances the cursor for name.
func (s *Store) SetLastLoggedEventBlock(_ context.Context, name string, block *big.Int) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(cursorsBucket).Put([]byte(name), block.Bytes())
	})
}

// AddEvents idempotently marks every event as seen. Calling it twice with
// the same events has the same effect as calling it once.
func (s *Store) AddEvents(_ context.Context, events []*types.AnchorEvent) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(seenEventsBucket)
		for _, e := range events {
			if err := b.Put(e.ID().Bytes(), []byte{1}); err != nil {
				return err
			}
		}
		return nil
	})
}

// HasEvent reports whether e was ever passed to AddEvents.
func (s *Store) HasEvent(_ context.Context, e *types.AnchorEvent) (bool, error) {
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(seenEventsBucket).Get(e.ID().Bytes()) != nil
		return nil
	})
	return found, err
}

// GetLastSyncedBlock returns the last plasma block the operator sync loop
// fully processed, or zero if it has never run.
func (s *Store) GetLastSyncedBlock(_ context.Context) (*big.Int, error) {
	out := big.NewInt(0)
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(syncMetaBucket).Get(lastSyncedBlockKey)
		if v != nil {
			out.SetBytes(v)
		}
		return nil
	})
	return out, err
}

// SetLastSyncedBlock persists the plasma block through which the operator
// sync loop has fully processed incoming transactions.
func (s *Store) SetLastSyncedBlock(_ context.Context, block *big.Int) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(syncMetaBucket).Put(lastSyncedBlockKey, block.Bytes())
	})
}

// PendingTx is an encoded transaction awaiting import: either newly
// received from the operator or queued for retry after a failed import.
type PendingTx struct {
	Sender  common.Address
	Encoded []byte
}

// GetFailedTransactions returns the current retry queue.
func (s *Store) GetFailedTransactions(_ context.Context) ([]PendingTx, error) {
	out := make([]PendingTx, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(failedTxBucket).Get(failedTxListKey)
		if v == nil {
			return nil
		}
		return gob.NewDecoder(bytes.NewReader(v)).Decode(&out)
	})
	return out, err
}

// SetFailedTransactions overwrites the retry queue wholesale — the sync
// pipeline recomputes it each iteration from unresolved pending txs.
func (s *Store) SetFailedTransactions(_ context.Context, pending []PendingTx) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(pending); err != nil {
		return errors.Wrap(err, "encoding failed transactions")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(failedTxBucket).Put(failedTxListKey, buf.Bytes())
	})
}
