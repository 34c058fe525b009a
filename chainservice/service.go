// Package chainservice is the public read/write façade over head state —
// deposits, exits, spends, and transaction import via ProofVerifier —
// guarded by the "state" named mutex, the same discipline chainstore uses
// for "latestblock" and "exits:{owner}".
package chainservice

import (
	"context"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nikeshnazareth/plasma-core/async"
	"github.com/nikeshnazareth/plasma-core/snapshot"
	"github.com/nikeshnazareth/plasma-core/types"
)

var log = logrus.WithField("prefix", "chainservice")

// ErrInsufficientBalance is returned by PickRanges when address does not
// own enough of token to satisfy the requested amount.
var ErrInsufficientBalance = errors.New("insufficient balance")

// ChainStore is the subset of the chain store ChainService reads and
// writes through.
type ChainStore interface {
	HasTransaction(ctx context.Context, hash common.Hash) (bool, error)
	SetTransaction(ctx context.Context, tx *types.Transaction) error
	AddExit(ctx context.Context, e *types.Exit) error
	GetExits(ctx context.Context, owner common.Address) ([]*types.Exit, error)
	IsExited(ctx context.Context, token, start, end *big.Int) (bool, error)
	MarkFinalized(ctx context.Context, token, start, end *big.Int) error
	AddExitableEnd(ctx context.Context, token, end *big.Int) error
	GetExitableEnd(ctx context.Context, token, end *big.Int) (*big.Int, bool, error)
	SaveHeadState(ctx context.Context, objects []*types.StateObject) error
	LoadHeadState(ctx context.Context) ([]*types.StateObject, error)
}

// AnchorClient is the subset of anchor-chain contract calls ChainService
// needs to finalise exits and judge their challenge period.
type AnchorClient interface {
	HeadBlock(ctx context.Context) (*big.Int, error)
	FinalizeExit(ctx context.Context, id, exitableEnd *big.Int, owner common.Address) ([]byte, error)
}

// OperatorClient forwards an encoded transaction to the operator for
// inclusion. Transport framing is the caller's concern — this is an
// interface the caller implements.
type OperatorClient interface {
	SendTransaction(ctx context.Context, encoded []byte) ([]byte, error)
}

// ProofVerifier is the subset of §4.C ProofVerifier ChainService needs.
type ProofVerifier interface {
	ApplyProof(ctx context.Context, tx *types.Transaction, proof *types.TransactionProof) (*snapshot.Manager, error)
}

// Service is the ChainService implementation. Head state lives in memory
// as a snapshot.Manager and is persisted to ChainStore after every
// mutating call; all mutating paths (and balance/selection reads, for a
// consistent view) acquire the "state" named mutex.
type Service struct {
	chainStore ChainStore
	anchor     AnchorClient
	operator   OperatorClient
	verifier   ProofVerifier

	challengePeriod *big.Int
	head            *snapshot.Manager
}

// New builds a Service, rehydrating head state from ChainStore.
func New(ctx context.Context, chainStore ChainStore, anchor AnchorClient, operator OperatorClient, verifier ProofVerifier, challengePeriod *big.Int) (*Service, error) {
	saved, err := chainStore.LoadHeadState(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "loading head state")
	}
	head := snapshot.New()
	for _, obj := range saved {
		if err := head.ApplyDeposit(obj); err != nil {
			log.WithError(err).Warn("dropping unloadable head state entry")
		}
	}
	return &Service{
		chainStore:      chainStore,
		anchor:          anchor,
		operator:        operator,
		verifier:        verifier,
		challengePeriod: challengePeriod,
		head:            head,
	}, nil
}

func stateLock() *async.Multilock {
	return async.NewMultilock("state")
}

// tokenAndLocal recovers the (token, localStart, localEnd) triple a
// StateObject's global RangeStore coordinates were built from —
// RangeStore coordinates are typedValue-joined so a single flat head
// range set stays non-overlapping across every token.
func tokenAndLocal(obj *types.StateObject) (token, start, end *big.Int) {
	token, start = types.SplitTypedValue(obj.Start)
	_, end = types.SplitTypedValue(obj.End)
	return token, start, end
}

func (s *Service) persistHead(ctx context.Context) error {
	return s.chainStore.SaveHeadState(ctx, s.head.Store().All())
}

// AddDeposits filters out already-exited ranges, applies the rest to head
// state, persists, and records their exitable-end frontier.
func (s *Service) AddDeposits(ctx context.Context, deposits []*types.StateObject) error {
	lock := stateLock()
	lock.Lock()
	defer lock.Unlock()

	accepted := make([]*types.StateObject, 0, len(deposits))
	for _, d := range deposits {
		token, start, end := tokenAndLocal(d)
		exited, err := s.chainStore.IsExited(ctx, token, start, end)
		if err != nil {
			return errors.Wrap(err, "checking exited mark")
		}
		if exited {
			continue
		}
		if err := s.head.ApplyDeposit(d); err != nil {
			return errors.Wrap(err, "applying deposit")
		}
		accepted = append(accepted, d)
	}

	if err := s.persistHead(ctx); err != nil {
		return err
	}
	return s.addExitableEnds(ctx, accepted)
}

func (s *Service) addExitableEnds(ctx context.Context, deposits []*types.StateObject) error {
	for _, d := range deposits {
		token, _, end := tokenAndLocal(d)
		if err := s.chainStore.AddExitableEnd(ctx, token, end); err != nil {
			return errors.Wrap(err, "recording exitable end")
		}
	}
	return nil
}

// AddExit persists e (exited mark + owner exit list) then overwrites head
// state at the exited range with a null-owner marker, so the range can no
// longer be selected for spends.
func (s *Service) AddExit(ctx context.Context, e *types.Exit) error {
	if err := s.chainStore.AddExit(ctx, e); err != nil {
		return errors.Wrap(err, "persisting exit")
	}

	lock := stateLock()
	lock.Lock()
	defer lock.Unlock()

	start := types.JoinTypedValue(e.Token, e.Start)
	end := types.JoinTypedValue(e.Token, e.End)
	marker, err := types.NewStateObject(start, end, e.Block, types.NullAddress, types.EncodeOwnerState(types.NullAddress, nil))
	if err != nil {
		return errors.Wrap(err, "building exit marker")
	}
	// e.Block is an anchor-chain block number, not a plasma block number,
	// so it cannot be compared against head StateObject.Block under the
	// §4.A block-height overlap rule. Clear the exited interval outright
	// before inserting the marker so the exit always wins regardless of
	// the two numbering schemes' relative magnitude.
	s.head.Store().RemoveRange(&types.StateObject{Start: start, End: end})
	if err := s.head.ApplyDeposit(marker); err != nil {
		return errors.Wrap(err, "applying exit marker")
	}
	return s.persistHead(ctx)
}

// FinalizeExits invokes the anchor contract's finalizeExit for every
// completed, not-yet-finalized exit owned by owner, marking each finalized
// on success and skipping (not failing) any it cannot yet resolve.
func (s *Service) FinalizeExits(ctx context.Context, owner common.Address) ([][]byte, error) {
	exits, err := s.chainStore.GetExits(ctx, owner)
	if err != nil {
		return nil, errors.Wrap(err, "loading exits")
	}
	currentAnchorBlock, err := s.anchor.HeadBlock(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetching anchor head")
	}

	var receipts [][]byte
	for _, e := range exits {
		if e.Finalized || !e.Completed(currentAnchorBlock, s.challengePeriod) {
			continue
		}
		exitableEnd, found, err := s.chainStore.GetExitableEnd(ctx, e.Token, e.End)
		if err != nil {
			return nil, errors.Wrap(err, "reading exitable end")
		}
		if !found {
			log.WithField("exit", e.ID).Debug("no exitable end recorded yet, skipping")
			continue
		}
		receipt, err := s.anchor.FinalizeExit(ctx, e.ID, exitableEnd, owner)
		if err != nil {
			log.WithError(err).WithField("exit", e.ID).Warn("finalizeExit call failed, will retry later")
			continue
		}
		if err := s.chainStore.MarkFinalized(ctx, e.Token, e.Start, e.End); err != nil {
			return nil, errors.Wrap(err, "marking exit finalized")
		}
		receipts = append(receipts, receipt)
	}
	return receipts, nil
}

// AddTransaction verifies proof against tx, merges the resulting post-state
// into head, and persists both head state and the transaction record.
func (s *Service) AddTransaction(ctx context.Context, tx *types.Transaction, proof *types.TransactionProof) error {
	post, err := s.verifier.ApplyProof(ctx, tx, proof)
	if err != nil {
		return err
	}

	lock := stateLock()
	lock.Lock()
	defer lock.Unlock()

	s.head.Merge(post)
	if err := s.persistHead(ctx); err != nil {
		return err
	}
	return s.chainStore.SetTransaction(ctx, tx)
}

// SendTransaction forwards an already-built encoded transaction to the
// operator for inclusion in the next block.
func (s *Service) SendTransaction(ctx context.Context, encoded []byte) ([]byte, error) {
	return s.operator.SendTransaction(ctx, encoded)
}

// GetBalances sums owned range lengths by token, for ranges whose decoded
// owner matches address.
func (s *Service) GetBalances(ctx context.Context, address common.Address) (map[string]*big.Int, error) {
	lock := stateLock()
	lock.Lock()
	defer lock.Unlock()

	balances := make(map[string]*big.Int)
	for _, obj := range s.head.Store().All() {
		owner, _ := types.DecodeOwnerState(obj.State)
		if owner != address {
			continue
		}
		token, _, _ := tokenAndLocal(obj)
		key := token.String()
		size := new(big.Int).Sub(obj.End, obj.Start)
		if existing, ok := balances[key]; ok {
			balances[key] = new(big.Int).Add(existing, size)
		} else {
			balances[key] = size
		}
	}
	return balances, nil
}

// PickRanges implements the §Selection coin-selection algorithm: ranges
// owned by address for token are visited smallest-first, consumed whole
// while they fit, and the first one that doesn't fit is split to make up
// exactly amount.
func (s *Service) PickRanges(ctx context.Context, address common.Address, token, amount *big.Int) ([]*types.StateObject, error) {
	lock := stateLock()
	lock.Lock()
	defer lock.Unlock()

	candidates := make([]*types.StateObject, 0)
	for _, obj := range s.head.Store().All() {
		owner, _ := types.DecodeOwnerState(obj.State)
		if owner != address {
			continue
		}
		objToken, _, _ := tokenAndLocal(obj)
		if objToken.Cmp(token) != 0 {
			continue
		}
		candidates = append(candidates, obj)
	}
	sort.Slice(candidates, func(i, j int) bool {
		sizeI := new(big.Int).Sub(candidates[i].End, candidates[i].Start)
		sizeJ := new(big.Int).Sub(candidates[j].End, candidates[j].Start)
		return sizeI.Cmp(sizeJ) < 0
	})

	remaining := new(big.Int).Set(amount)
	picked := make([]*types.StateObject, 0)
	for _, c := range candidates {
		if remaining.Sign() <= 0 {
			break
		}
		size := new(big.Int).Sub(c.End, c.Start)
		if size.Cmp(remaining) <= 0 {
			picked = append(picked, c.Clone())
			remaining = remaining.Sub(remaining, size)
			continue
		}
		piece := c.Clone()
		piece.End = new(big.Int).Add(c.Start, remaining)
		picked = append(picked, piece)
		remaining = big.NewInt(0)
		break
	}

	if remaining.Sign() > 0 {
		return nil, ErrInsufficientBalance
	}

	sort.Slice(picked, func(i, j int) bool {
		ti, _, _ := tokenAndLocal(picked[i])
		tj, _, _ := tokenAndLocal(picked[j])
		if c := ti.Cmp(tj); c != 0 {
			return c < 0
		}
		return picked[i].Start.Cmp(picked[j].Start) < 0
	})
	return picked, nil
}
