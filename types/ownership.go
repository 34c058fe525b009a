package types

import "github.com/ethereum/go-ethereum/common"

// EncodeOwnerState builds the payload used by the default ownership
// predicate: a 20-byte owner address followed by predicate-specific extra
// bytes. ChainService and the sync pipeline use this encoding to recover
// "who owns this range" without invoking the predicate evaluator, which is
// reserved for transition validation (§4.C) only.
func EncodeOwnerState(owner common.Address, extra []byte) []byte {
	return append(append([]byte(nil), owner.Bytes()...), extra...)
}

// DecodeOwnerState is the inverse of EncodeOwnerState. State shorter than
// an address yields the zero address and no extra bytes.
func DecodeOwnerState(state []byte) (owner common.Address, extra []byte) {
	if len(state) < common.AddressLength {
		return common.Address{}, nil
	}
	copy(owner[:], state[:common.AddressLength])
	return owner, append([]byte(nil), state[common.AddressLength:]...)
}
