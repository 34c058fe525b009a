package types

import (
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Transaction is a single transition witnessed by an inclusion proof into a
// committed plasma block.
type Transaction struct {
	Block           *big.Int
	InclusionProof  [][]byte
	Witness         []byte
	NewState        *StateObject
	cachedHash      *common.Hash
}

// Hash is keccak256 over the 32-byte left-padded block, the inclusion-proof
// elements, the witness and newState.Encoded(), concatenated in that order.
// The input is a plain byte concatenation, not an ABI encoding.
func (t *Transaction) Hash() common.Hash {
	if t.cachedHash != nil {
		return *t.cachedHash
	}
	buf := make([]byte, 0)
	buf = append(buf, leftPad32(t.Block)...)
	for _, p := range t.InclusionProof {
		buf = append(buf, p...)
	}
	buf = append(buf, t.Witness...)
	buf = append(buf, t.NewState.Encoded()...)
	h := crypto.Keccak256Hash(buf)
	t.cachedHash = &h
	return h
}

// TransactionProof bundles the deposits and prior transitions a
// ProofVerifier needs to validate and replay up to a target Transaction.
// Deposits are ordered by Start; Transactions are ordered by Block.
type TransactionProof struct {
	Deposits     []*StateObject
	Transactions []*Transaction
}

// SortedDeposits returns a defensive copy of Deposits ordered by Start.
func (p *TransactionProof) SortedDeposits() []*StateObject {
	out := append([]*StateObject(nil), p.Deposits...)
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Cmp(out[j].Start) < 0 })
	return out
}

// SortedTransactions returns a defensive copy of Transactions ordered by
// ascending Block, per §4.C step 5 ("for each t in ascending block order").
func (p *TransactionProof) SortedTransactions() []*Transaction {
	out := append([]*Transaction(nil), p.Transactions...)
	sort.Slice(out, func(i, j int) bool { return out[i].Block.Cmp(out[j].Block) < 0 })
	return out
}

// NullAddress is the sender/owner value used to mark a StateObject as a
// deposit or an exited (null-owner) marker.
var NullAddress = common.Address{}
