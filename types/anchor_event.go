package types

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ID computes this event's identity: keccak256(transactionHash ‖
// logIndex). SyncCursorStore's seen-set is keyed by this value.
func (e *AnchorEvent) ID() common.Hash {
	idx := make([]byte, 8)
	binary.BigEndian.PutUint64(idx, e.LogIndex.Uint64())
	buf := append(append([]byte(nil), e.TransactionHash.Bytes()...), idx...)
	return crypto.Keccak256Hash(buf)
}

// TypedValue builds the 32-byte sort key used by the exitable-ends
// namespace: an 8-byte token prefix concatenated with a 24-byte value
// suffix. Fixed widths mean the key orders by token first, then by value
// within a token, and is strictly increasing in v for a fixed token.
func TypedValue(token, v *big.Int) []byte {
	out := make([]byte, 32)
	tb := token.Bytes()
	if len(tb) > 8 {
		tb = tb[len(tb)-8:]
	}
	copy(out[8-len(tb):8], tb)

	vb := v.Bytes()
	if len(vb) > 24 {
		vb = vb[len(vb)-24:]
	}
	copy(out[32-len(vb):], vb)
	return out
}

var valueBits = uint(192)
var valueMask = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), valueBits), big.NewInt(1))

// SplitTypedValue recovers (token, value) from a coordinate built the same
// way typedValue partitions the coin-space: token occupies the high 64
// bits, value the low 192. RangeStore coordinates (StateObject.Start/End)
// are constructed this way so every token owns a disjoint sub-range of the
// global integer axis.
func SplitTypedValue(coord *big.Int) (token, value *big.Int) {
	token = new(big.Int).Rsh(coord, valueBits)
	value = new(big.Int).And(coord, valueMask)
	return token, value
}

// JoinTypedValue is the inverse of SplitTypedValue: it builds the
// coordinate for (token, value) in the shared global coin-space.
func JoinTypedValue(token, value *big.Int) *big.Int {
	return new(big.Int).Or(new(big.Int).Lsh(token, valueBits), value)
}
