// Package proof validates a TransactionProof against the anchor chain and
// chain store, replays it into a transient snapshot.Manager, and confirms
// the target transition.
package proof

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	gocache "github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nikeshnazareth/plasma-core/snapshot"
	"github.com/nikeshnazareth/plasma-core/types"
)

var log = logrus.WithField("prefix", "proof")

// Error taxonomy. These are sentinel values; callers compare with errors.Is.
var (
	ErrInvalidDeposit    = errors.New("invalid deposit")
	ErrInvalidInclusion  = errors.New("invalid inclusion proof")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrMissingBlockRoot  = errors.New("missing block root")
	ErrUnknownPredicate  = errors.New("unknown predicate")
)

// AnchorClient is the subset of anchor-chain contract calls ProofVerifier
// needs. Transport, retries, and ABI framing are the caller's problem.
type AnchorClient interface {
	DepositValid(ctx context.Context, deposit *types.StateObject) (bool, error)
	GetContractBytecode(ctx context.Context, predicate common.Address) ([]byte, error)
}

// ChainStore is the subset of the chain store ProofVerifier reads and
// write-throughs predicate bytecode into.
type ChainStore interface {
	GetBlockHeader(ctx context.Context, block *big.Int) (common.Hash, bool, error)
	GetPredicateBytecode(ctx context.Context, predicate common.Address) ([]byte, bool, error)
	SetPredicateBytecode(ctx context.Context, predicate common.Address, bytecode []byte) error
}

// MerkleSumTree abstracts the sum-tree inclusion-proof machinery. Root
// padding, leaf encoding, and cryptographic verification are implementation
// details the core does not own.
type MerkleSumTree interface {
	GetImplicitBounds(encodedState []byte, inclusionProof [][]byte) (implicitStart, implicitEnd *big.Int, err error)
	VerifyInclusion(root common.Hash, encodedState []byte, inclusionProof [][]byte) (bool, error)
}

// PredicateEvaluator invokes predicate bytecode to decide whether a
// transition from oldState to newState is valid given witness. The
// predicate VM itself is external (Non-goal).
type PredicateEvaluator interface {
	ValidStateTransition(ctx context.Context, oldStateEncoded, newStateEncoded, witness, bytecode []byte) (bool, error)
}

// Verifier implements the §4.C algorithm. It is stateless across calls
// except for the predicate-bytecode cache, which is a write-through cache
// in front of ChainStore and never evicts within a single ApplyProof call.
type Verifier struct {
	anchor     AnchorClient
	chainStore ChainStore
	tree       MerkleSumTree
	evaluator  PredicateEvaluator

	bytecodeCache *gocache.Cache
}

// New builds a Verifier. bytecodeCache has no expiration and no cleanup
// interval: entries persist for the process lifetime, backed by
// ChainStore for cold lookups.
func New(anchor AnchorClient, chainStore ChainStore, tree MerkleSumTree, evaluator PredicateEvaluator) *Verifier {
	return &Verifier{
		anchor:        anchor,
		chainStore:    chainStore,
		tree:          tree,
		evaluator:     evaluator,
		bytecodeCache: gocache.New(gocache.NoExpiration, gocache.NoExpiration),
	}
}

// ApplyProof validates proof against tx and, on success, returns a
// transient snapshot.Manager containing every deposit and transition in
// proof plus a state object equal to tx.NewState.
func (v *Verifier) ApplyProof(ctx context.Context, tx *types.Transaction, p *types.TransactionProof) (*snapshot.Manager, error) {
	if err := v.validateDeposits(ctx, p); err != nil {
		return nil, err
	}
	if err := v.validateInclusionProofs(ctx, p); err != nil {
		return nil, err
	}

	post := snapshot.New()
	for _, d := range p.SortedDeposits() {
		if err := post.ApplyDeposit(d); err != nil {
			return nil, errors.Wrap(err, "applying deposit to post-state")
		}
	}

	for _, t := range p.SortedTransactions() {
		if err := v.validateTransition(ctx, post, t); err != nil {
			return nil, err
		}
		if err := post.ApplyTransition(t); err != nil {
			return nil, errors.Wrap(err, "applying transition to post-state")
		}
	}

	if !post.HasStateObject(tx.NewState) {
		return nil, ErrInvalidTransition
	}
	return post, nil
}

func (v *Verifier) validateDeposits(ctx context.Context, p *types.TransactionProof) error {
	for _, d := range p.Deposits {
		ok, err := v.anchor.DepositValid(ctx, d)
		if err != nil {
			return errors.Wrap(err, "querying deposit validity")
		}
		if !ok {
			return ErrInvalidDeposit
		}
	}
	return nil
}

func (v *Verifier) validateInclusionProofs(ctx context.Context, p *types.TransactionProof) error {
	for _, t := range p.Transactions {
		root, found, err := v.chainStore.GetBlockHeader(ctx, t.Block)
		if err != nil {
			return errors.Wrap(err, "fetching block header")
		}
		if !found {
			return ErrMissingBlockRoot
		}

		implicitStart, implicitEnd, err := v.tree.GetImplicitBounds(t.NewState.Encoded(), t.InclusionProof)
		if err != nil {
			return errors.Wrap(err, "deriving implicit bounds")
		}
		t.NewState.ImplicitStart = implicitStart
		t.NewState.ImplicitEnd = implicitEnd

		valid, err := v.tree.VerifyInclusion(root, t.NewState.Encoded(), t.InclusionProof)
		if err != nil {
			return errors.Wrap(err, "verifying inclusion proof")
		}
		if !valid {
			return ErrInvalidInclusion
		}
	}
	return nil
}

func (v *Verifier) validateTransition(ctx context.Context, post *snapshot.Manager, t *types.Transaction) error {
	for _, oldState := range post.GetOldStates(t.NewState) {
		bytecode, err := v.predicateBytecode(ctx, oldState.Predicate)
		if err != nil {
			return err
		}
		valid, err := v.evaluator.ValidStateTransition(ctx, oldState.Encoded(), t.NewState.Encoded(), t.Witness, bytecode)
		if err != nil {
			return errors.Wrap(err, "evaluating predicate")
		}
		if !valid {
			return ErrInvalidTransition
		}
	}
	return nil
}

// predicateBytecode implements the write-through cache: in-memory hit
// first, then ChainStore, then the anchor chain (persisted back into
// ChainStore for next time).
func (v *Verifier) predicateBytecode(ctx context.Context, predicate common.Address) ([]byte, error) {
	key := predicate.Hex()
	if cached, ok := v.bytecodeCache.Get(key); ok {
		return cached.([]byte), nil
	}

	bytecode, found, err := v.chainStore.GetPredicateBytecode(ctx, predicate)
	if err != nil {
		return nil, errors.Wrap(err, "reading predicate bytecode from chain store")
	}
	if found {
		v.bytecodeCache.Set(key, bytecode, gocache.NoExpiration)
		return bytecode, nil
	}

	bytecode, err = v.anchor.GetContractBytecode(ctx, predicate)
	if err != nil {
		return nil, errors.Wrapf(ErrUnknownPredicate, "fetching bytecode for %s: %v", predicate.Hex(), err)
	}
	if err := v.chainStore.SetPredicateBytecode(ctx, predicate, bytecode); err != nil {
		log.WithError(err).WithField("predicate", predicate.Hex()).Warn("failed to persist predicate bytecode")
	}
	v.bytecodeCache.Set(key, bytecode, gocache.NoExpiration)
	return bytecode, nil
}
