package sync

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikeshnazareth/plasma-core/synccursor"
	"github.com/nikeshnazareth/plasma-core/types"
)

type fakeOperator struct {
	online    bool
	received  []synccursor.PendingTx
	fetchErr  error
	importErr error
}

func (f *fakeOperator) IsOnline(_ context.Context) (bool, error) { return f.online, nil }
func (f *fakeOperator) ReceivedTransactions(_ context.Context, account common.Address, from, to *big.Int) ([]synccursor.PendingTx, error) {
	return f.received, nil
}
func (f *fakeOperator) FetchProof(_ context.Context, encoded []byte) (*types.Transaction, *types.TransactionProof, error) {
	if f.fetchErr != nil {
		return nil, nil, f.fetchErr
	}
	obj, _ := types.NewStateObject(bi(0), bi(1), bi(1), common.Address{1}, []byte("s"))
	return &types.Transaction{Block: bi(1), NewState: obj}, &types.TransactionProof{}, nil
}

type fakeCursors struct {
	lastSynced *big.Int
	failed     []synccursor.PendingTx
}

func (f *fakeCursors) GetLastSyncedBlock(_ context.Context) (*big.Int, error) { return f.lastSynced, nil }
func (f *fakeCursors) SetLastSyncedBlock(_ context.Context, block *big.Int) error {
	f.lastSynced = block
	return nil
}
func (f *fakeCursors) GetFailedTransactions(_ context.Context) ([]synccursor.PendingTx, error) {
	return f.failed, nil
}
func (f *fakeCursors) SetFailedTransactions(_ context.Context, pending []synccursor.PendingTx) error {
	f.failed = pending
	return nil
}

type fakeChainStore struct {
	latest *big.Int
	seen   map[common.Hash]bool
}

func (f *fakeChainStore) GetLatestBlock(_ context.Context) (*big.Int, error) { return f.latest, nil }
func (f *fakeChainStore) HasTransaction(_ context.Context, hash common.Hash) (bool, error) {
	return f.seen[hash], nil
}

type fakeChainService struct {
	calls int
	err   error
}

func (f *fakeChainService) AddTransaction(_ context.Context, tx *types.Transaction, proof *types.TransactionProof) error {
	f.calls++
	return f.err
}

func TestRunOnce_SkipsWhenPlasmaContractUnset(t *testing.T) {
	operator := &fakeOperator{online: true}
	cursors := &fakeCursors{lastSynced: bi(0)}
	p := New(operator, cursors, &fakeChainStore{latest: bi(5)}, &fakeChainService{}, nil, nil, 0)
	require.NoError(t, p.RunOnce(context.Background()))
	assert.Equal(t, 0, cursors.lastSynced.Cmp(bi(0)), "cursor must not advance when the plasma contract is unset")
}

func TestRunOnce_SkipsWhenOperatorOffline(t *testing.T) {
	addr := common.Address{1}
	operator := &fakeOperator{online: false}
	chainService := &fakeChainService{}
	p := New(operator, &fakeCursors{lastSynced: bi(0)}, &fakeChainStore{latest: bi(5)}, chainService, nil, &addr, 0)
	require.NoError(t, p.RunOnce(context.Background()))
	assert.Zero(t, chainService.calls)
}

func TestRunOnce_ImportsPendingAndAdvancesCursor(t *testing.T) {
	addr := common.Address{1}
	sender := common.Address{2}
	operator := &fakeOperator{online: true, received: []synccursor.PendingTx{{Sender: sender, Encoded: []byte("tx1")}}}
	cursors := &fakeCursors{lastSynced: bi(0)}
	chainStore := &fakeChainStore{latest: bi(5), seen: map[common.Hash]bool{}}
	chainService := &fakeChainService{}

	p := New(operator, cursors, chainStore, chainService, []common.Address{addr}, &addr, 0)
	require.NoError(t, p.RunOnce(context.Background()))

	assert.Equal(t, 1, chainService.calls)
	assert.Empty(t, cursors.failed)
	assert.Equal(t, 0, cursors.lastSynced.Cmp(bi(5)))
}

func TestRunOnce_FailedImportGoesToRetryQueue(t *testing.T) {
	addr := common.Address{1}
	sender := common.Address{2}
	operator := &fakeOperator{online: true, received: []synccursor.PendingTx{{Sender: sender, Encoded: []byte("tx1")}}}
	cursors := &fakeCursors{lastSynced: bi(0)}
	chainStore := &fakeChainStore{latest: bi(5), seen: map[common.Hash]bool{}}
	chainService := &fakeChainService{err: assert.AnError}

	p := New(operator, cursors, chainStore, chainService, []common.Address{addr}, &addr, 0)
	require.NoError(t, p.RunOnce(context.Background()))

	require.Len(t, cursors.failed, 1)
	assert.Equal(t, sender, cursors.failed[0].Sender)
}

func TestRunOnce_SkipsNullSenderTransactions(t *testing.T) {
	addr := common.Address{1}
	operator := &fakeOperator{online: true, received: []synccursor.PendingTx{{Sender: types.NullAddress, Encoded: []byte("tx1")}}}
	cursors := &fakeCursors{lastSynced: bi(0)}
	chainStore := &fakeChainStore{latest: bi(5), seen: map[common.Hash]bool{}}
	chainService := &fakeChainService{}

	p := New(operator, cursors, chainStore, chainService, []common.Address{addr}, &addr, 0)
	require.NoError(t, p.RunOnce(context.Background()))
	assert.Zero(t, chainService.calls)
}
