package proof

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/nikeshnazareth/plasma-core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bi(v int64) *big.Int { return big.NewInt(v) }

func obj(t *testing.T, start, end, block int64, predicate byte) *types.StateObject {
	o, err := types.NewStateObject(bi(start), bi(end), bi(block), common.Address{predicate}, nil)
	require.NoError(t, err)
	return o
}

type fakeAnchor struct {
	depositsValid map[string]bool
	bytecode      map[common.Address][]byte
}

func (f *fakeAnchor) DepositValid(_ context.Context, d *types.StateObject) (bool, error) {
	if f.depositsValid == nil {
		return true, nil
	}
	v, ok := f.depositsValid[d.Start.String()]
	if !ok {
		return true, nil
	}
	return v, nil
}

func (f *fakeAnchor) GetContractBytecode(_ context.Context, predicate common.Address) ([]byte, error) {
	return f.bytecode[predicate], nil
}

type fakeChainStore struct {
	headers    map[string]common.Hash
	bytecode   map[common.Address][]byte
}

func (f *fakeChainStore) GetBlockHeader(_ context.Context, block *big.Int) (common.Hash, bool, error) {
	h, ok := f.headers[block.String()]
	return h, ok, nil
}

func (f *fakeChainStore) GetPredicateBytecode(_ context.Context, predicate common.Address) ([]byte, bool, error) {
	b, ok := f.bytecode[predicate]
	return b, ok, nil
}

func (f *fakeChainStore) SetPredicateBytecode(_ context.Context, predicate common.Address, bytecode []byte) error {
	if f.bytecode == nil {
		f.bytecode = map[common.Address][]byte{}
	}
	f.bytecode[predicate] = bytecode
	return nil
}

type passThroughTree struct{}

func (passThroughTree) GetImplicitBounds(_ []byte, _ [][]byte) (*big.Int, *big.Int, error) {
	return nil, nil, nil
}

func (passThroughTree) VerifyInclusion(_ common.Hash, _ []byte, _ [][]byte) (bool, error) {
	return true, nil
}

type allowAllEvaluator struct{ allow bool }

func (a allowAllEvaluator) ValidStateTransition(_ context.Context, _, _, _, _ []byte) (bool, error) {
	return a.allow, nil
}

func TestApplyProof_Success(t *testing.T) {
	deposit := obj(t, 0, 100, 1, 9)
	newState := obj(t, 0, 100, 2, 9)
	tx := &types.Transaction{Block: bi(2), NewState: newState}
	txProof := &types.TransactionProof{
		Deposits:     []*types.StateObject{deposit},
		Transactions: []*types.Transaction{{Block: bi(2), NewState: newState}},
	}

	anchor := &fakeAnchor{}
	store := &fakeChainStore{headers: map[string]common.Hash{"2": {1}}}
	v := New(anchor, store, passThroughTree{}, allowAllEvaluator{allow: true})

	post, err := v.ApplyProof(context.Background(), tx, txProof)
	require.NoError(t, err)
	assert.True(t, post.HasStateObject(newState))
}

func TestApplyProof_InvalidDeposit(t *testing.T) {
	deposit := obj(t, 0, 100, 1, 9)
	anchor := &fakeAnchor{depositsValid: map[string]bool{"0": false}}
	store := &fakeChainStore{}
	v := New(anchor, store, passThroughTree{}, allowAllEvaluator{allow: true})

	txProof := &types.TransactionProof{Deposits: []*types.StateObject{deposit}}
	_, err := v.ApplyProof(context.Background(), &types.Transaction{NewState: deposit}, txProof)
	assert.ErrorIs(t, err, ErrInvalidDeposit)
}

func TestApplyProof_MissingBlockRoot(t *testing.T) {
	newState := obj(t, 0, 100, 2, 9)
	tx := &types.Transaction{Block: bi(2), NewState: newState}
	txProof := &types.TransactionProof{
		Transactions: []*types.Transaction{{Block: bi(2), NewState: newState}},
	}
	anchor := &fakeAnchor{}
	store := &fakeChainStore{}
	v := New(anchor, store, passThroughTree{}, allowAllEvaluator{allow: true})

	_, err := v.ApplyProof(context.Background(), tx, txProof)
	assert.ErrorIs(t, err, ErrMissingBlockRoot)
}

func TestApplyProof_InvalidTransition(t *testing.T) {
	deposit := obj(t, 0, 100, 1, 9)
	newState := obj(t, 0, 100, 2, 9)
	tx := &types.Transaction{Block: bi(2), NewState: newState}
	txProof := &types.TransactionProof{
		Deposits:     []*types.StateObject{deposit},
		Transactions: []*types.Transaction{{Block: bi(2), NewState: newState}},
	}
	anchor := &fakeAnchor{}
	store := &fakeChainStore{headers: map[string]common.Hash{"2": {1}}}
	v := New(anchor, store, passThroughTree{}, allowAllEvaluator{allow: false})

	_, err := v.ApplyProof(context.Background(), tx, txProof)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestApplyProof_Idempotent(t *testing.T) {
	deposit := obj(t, 0, 100, 1, 9)
	newState := obj(t, 0, 100, 2, 9)
	tx := &types.Transaction{Block: bi(2), NewState: newState}
	txProof := &types.TransactionProof{
		Deposits:     []*types.StateObject{deposit},
		Transactions: []*types.Transaction{{Block: bi(2), NewState: newState}},
	}
	anchor := &fakeAnchor{}
	store := &fakeChainStore{headers: map[string]common.Hash{"2": {1}}}
	v := New(anchor, store, passThroughTree{}, allowAllEvaluator{allow: true})

	post1, err := v.ApplyProof(context.Background(), tx, txProof)
	require.NoError(t, err)
	post2, err := v.ApplyProof(context.Background(), tx, txProof)
	require.NoError(t, err)
	assert.True(t, post1.Equal(post2))
}
