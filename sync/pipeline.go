package sync

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github.com/nikeshnazareth/plasma-core/synccursor"
	"github.com/nikeshnazareth/plasma-core/types"
)

// OperatorClient is the subset of operator access the Sync pipeline needs.
// Transport framing is a Non-goal — this is an interface the caller
// implements.
type OperatorClient interface {
	IsOnline(ctx context.Context) (bool, error)
	ReceivedTransactions(ctx context.Context, account common.Address, from, to *big.Int) ([]synccursor.PendingTx, error)
	FetchProof(ctx context.Context, encoded []byte) (*types.Transaction, *types.TransactionProof, error)
}

// CursorStore is the subset of §4.E SyncCursorStore the Sync pipeline
// needs, beyond the per-event cursors EventWatcher already owns.
type CursorStore interface {
	GetLastSyncedBlock(ctx context.Context) (*big.Int, error)
	SetLastSyncedBlock(ctx context.Context, block *big.Int) error
	GetFailedTransactions(ctx context.Context) ([]synccursor.PendingTx, error)
	SetFailedTransactions(ctx context.Context, pending []synccursor.PendingTx) error
}

// ChainStore is the subset of §4.D ChainStore the Sync pipeline needs.
type ChainStore interface {
	GetLatestBlock(ctx context.Context) (*big.Int, error)
	HasTransaction(ctx context.Context, hash common.Hash) (bool, error)
}

// ChainService is the subset of chainservice.Service the Sync pipeline drives.
type ChainService interface {
	AddTransaction(ctx context.Context, tx *types.Transaction, proof *types.TransactionProof) error
}

// Pipeline runs the transaction-import sync loop, independent of and at a
// different cadence from EventWatcher's polling.
type Pipeline struct {
	operator     OperatorClient
	cursors      CursorStore
	chainStore   ChainStore
	chainService ChainService
	accounts     []common.Address

	// plasmaContract mirrors "the plasma contract address is
	// unset" in step 1: nil means unset, and the loop no-ops.
	plasmaContract *common.Address

	interval time.Duration

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New builds a Pipeline. plasmaContract may be nil if not yet configured;
// RunOnce treats that the same as the operator being offline.
func New(operator OperatorClient, cursors CursorStore, chainStore ChainStore, chainService ChainService, accounts []common.Address, plasmaContract *common.Address, interval time.Duration) *Pipeline {
	return &Pipeline{
		operator:       operator,
		cursors:        cursors,
		chainStore:     chainStore,
		chainService:   chainService,
		accounts:       accounts,
		plasmaContract: plasmaContract,
		interval:       interval,
	}
}

// Dependencies satisfies the ServiceGraph service contract. Sync has none
// of its own — its collaborators are supplied at construction.
func (p *Pipeline) Dependencies() []string { return nil }

// Started reports whether the sync loop is currently running.
func (p *Pipeline) Started() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

// Start launches the cooperative sync loop.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.loop()
	return nil
}

// Stop halts the sync loop and waits for the current iteration to finish.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = false
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)
	<-doneCh
	return nil
}

func (p *Pipeline) loop() {
	defer close(p.doneCh)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if err := p.RunOnce(context.Background()); err != nil {
			log.WithError(err).Warn("sync iteration failed")
		}
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
		}
	}
}

// RunOnce executes one pass of the transaction-import algorithm: collect
// pending transactions, dedupe against what has already landed, fetch and
// apply proofs, and persist the advanced cursor.
func (p *Pipeline) RunOnce(ctx context.Context) error {
	if p.plasmaContract == nil {
		return nil
	}
	online, err := p.operator.IsOnline(ctx)
	if err != nil {
		return errors.Wrap(err, "checking operator liveness")
	}
	if !online {
		return nil
	}

	lastSynced, err := p.cursors.GetLastSyncedBlock(ctx)
	if err != nil {
		return errors.Wrap(err, "reading last synced block")
	}
	currentLocal, err := p.chainStore.GetLatestBlock(ctx)
	if err != nil {
		return errors.Wrap(err, "reading latest block")
	}
	from := new(big.Int).Add(lastSynced, big.NewInt(1))
	if from.Cmp(currentLocal) > 0 {
		return nil
	}

	pending, err := p.collectPending(ctx, from, currentLocal)
	if err != nil {
		return err
	}

	retry := p.importPending(ctx, pending)

	if err := p.cursors.SetFailedTransactions(ctx, retry); err != nil {
		return errors.Wrap(err, "persisting retry queue")
	}
	return p.cursors.SetLastSyncedBlock(ctx, currentLocal)
}

func (p *Pipeline) collectPending(ctx context.Context, from, to *big.Int) ([]synccursor.PendingTx, error) {
	pending := make([]synccursor.PendingTx, 0)
	for _, account := range p.accounts {
		received, err := p.operator.ReceivedTransactions(ctx, account, from, to)
		if err != nil {
			return nil, errors.Wrapf(err, "fetching received transactions for %s", account.Hex())
		}
		pending = append(pending, received...)
	}

	failed, err := p.cursors.GetFailedTransactions(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "reading failed-transaction queue")
	}

	return dedupePending(append(pending, failed...)), nil
}

func dedupePending(all []synccursor.PendingTx) []synccursor.PendingTx {
	seen := make(map[common.Hash]bool, len(all))
	out := make([]synccursor.PendingTx, 0, len(all))
	for _, e := range all {
		key := crypto.Keccak256Hash(e.Sender.Bytes(), e.Encoded)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}
	return out
}

// importPending processes every pending encoded transaction and returns
// the ones that should be retried next iteration.
func (p *Pipeline) importPending(ctx context.Context, pending []synccursor.PendingTx) []synccursor.PendingTx {
	retry := make([]synccursor.PendingTx, 0)
	for _, e := range pending {
		if e.Sender == types.NullAddress {
			continue
		}

		pendingHash := crypto.Keccak256Hash(e.Encoded)
		has, err := p.chainStore.HasTransaction(ctx, pendingHash)
		if err != nil {
			log.WithError(err).Warn("failed checking transaction presence, retrying later")
			retry = append(retry, e)
			continue
		}
		if has {
			continue
		}

		newTx, proof, err := p.operator.FetchProof(ctx, e.Encoded)
		if err != nil {
			log.WithError(err).WithField("sender", e.Sender.Hex()).Warn("failed fetching proof, retrying later")
			retry = append(retry, e)
			continue
		}

		if err := p.chainService.AddTransaction(ctx, newTx, proof); err != nil {
			log.WithError(err).WithField("sender", e.Sender.Hex()).Warn("failed importing transaction, retrying later")
			retry = append(retry, e)
		}
	}
	return retry
}
