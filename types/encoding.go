package types

import "math/big"

// Encoded produces a deterministic byte encoding of the five core fields,
// used both for hashing (Transaction.Hash) and as the opaque "newState"
// payload handed to PlasmaMerkleSumTree.getImplicitBounds and to the
// predicate evaluator. Layout: 32-byte start, 32-byte end, 32-byte block,
// 20-byte predicate, then the raw state bytes.
func (s *StateObject) Encoded() []byte {
	buf := make([]byte, 0, 32+32+32+20+len(s.State))
	buf = append(buf, leftPad32(s.Start)...)
	buf = append(buf, leftPad32(s.End)...)
	buf = append(buf, leftPad32(s.Block)...)
	buf = append(buf, s.Predicate.Bytes()...)
	buf = append(buf, s.State...)
	return buf
}

func leftPad32(v *big.Int) []byte {
	out := make([]byte, 32)
	if v == nil {
		return out
	}
	b := v.Bytes()
	if len(b) > 32 {
		b = b[len(b)-32:]
	}
	copy(out[32-len(b):], b)
	return out
}
