package chainstore

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/nikeshnazareth/plasma-core/async"
	"github.com/nikeshnazareth/plasma-core/types"
)

func exitsLock(owner common.Address) *async.Multilock {
	return async.NewMultilock(fmt.Sprintf("exits:%s", owner.Hex()))
}

// AddExit appends e to owner's exit list and marks (token, start, end) as
// exited. Append is serialized by a mutex keyed on the target list.
func (s *Store) AddExit(_ context.Context, e *types.Exit) error {
	lock := exitsLock(e.Owner)
	lock.Lock()
	defer lock.Unlock()

	return s.db.Update(func(tx *bolt.Tx) error {
		existing, err := s.readExitsLocked(tx, e.Owner)
		if err != nil {
			return err
		}
		existing = append(existing, e)
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(existing); err != nil {
			return errors.Wrap(err, "encoding exits")
		}
		if err := tx.Bucket(exitsBucket).Put(e.Owner.Bytes(), buf.Bytes()); err != nil {
			return err
		}

		key := exitKey(e.Token.Bytes(), e.Start.Bytes(), e.End.Bytes())
		return tx.Bucket(exitedBucket).Put(key, []byte{1})
	})
}

func (s *Store) readExitsLocked(tx *bolt.Tx, owner common.Address) ([]*types.Exit, error) {
	v := tx.Bucket(exitsBucket).Get(owner.Bytes())
	out := make([]*types.Exit, 0)
	if v == nil {
		return out, nil
	}
	if err := gob.NewDecoder(bytes.NewReader(v)).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "decoding exits")
	}
	return out, nil
}

// GetExits returns every exit ever added for owner, with Finalized set from
// the persisted finalized mark.
func (s *Store) GetExits(_ context.Context, owner common.Address) ([]*types.Exit, error) {
	var out []*types.Exit
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		out, err = s.readExitsLocked(tx, owner)
		if err != nil {
			return err
		}
		finalized := tx.Bucket(finalizedBucket)
		for _, e := range out {
			e.Finalized = finalized.Get(exitKey(e.Token.Bytes(), e.Start.Bytes(), e.End.Bytes())) != nil
		}
		return nil
	})
	return out, err
}

// IsExited reports whether (token, start, end) has an exited mark.
func (s *Store) IsExited(_ context.Context, token, start, end *big.Int) (bool, error) {
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		key := exitKey(token.Bytes(), start.Bytes(), end.Bytes())
		found = tx.Bucket(exitedBucket).Get(key) != nil
		return nil
	})
	return found, err
}

// MarkFinalized sets the finalized mark for (token, start, end). The caller
// must ensure a matching exited mark already exists.
func (s *Store) MarkFinalized(_ context.Context, token, start, end *big.Int) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		exitedKey := exitKey(token.Bytes(), start.Bytes(), end.Bytes())
		if tx.Bucket(exitedBucket).Get(exitedKey) == nil {
			return errors.New("cannot finalize an exit that was never started")
		}
		return tx.Bucket(finalizedBucket).Put(exitedKey, []byte{1})
	})
}

// IsFinalized reports whether (token, start, end) has a finalized mark.
func (s *Store) IsFinalized(_ context.Context, token, start, end *big.Int) (bool, error) {
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		key := exitKey(token.Bytes(), start.Bytes(), end.Bytes())
		found = tx.Bucket(finalizedBucket).Get(key) != nil
		return nil
	})
	return found, err
}

// AddExitableEnd records a new exitable frontier entry for (token, end).
// Exitable ends are never removed: this is a monotone frontier set, keyed
// by typedValue(token, end) so a prefix scan can recover the effective
// boundary for a token.
func (s *Store) AddExitableEnd(_ context.Context, token, end *big.Int) error {
	key := types.TypedValue(token, end)
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(exitableBucket).Put(key, end.Bytes())
	})
}

// GetExitableEnd performs a key-space "next key with prefix" scan
// starting at typedValue(token, end) and returns the first exitable end at
// or after it for the same token.
func (s *Store) GetExitableEnd(_ context.Context, token, end *big.Int) (*big.Int, bool, error) {
	seek := types.TypedValue(token, end)
	prefix := seek[:8]

	var out *big.Int
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(exitableBucket).Cursor()
		k, v := c.Seek(seek)
		if k == nil || !bytes.HasPrefix(k, prefix) {
			return nil
		}
		found = true
		out = new(big.Int).SetBytes(v)
		return nil
	})
	return out, found, err
}
