// Package difficulty implements BlockStats, the rolling window of recent
// header fields, and the DifficultyEngine that derives the next block's
// required target from it: the original 2016-block retarget,
// the Cash emergency difficulty adjustment (EDA), and its cw-144
// replacement (the Cash DAA).
package difficulty

import (
	"math/big"

	"github.com/bchsuite/bchd/chaincfg/chainhash"
)

// bigOne is 1 represented as a big.Int, kept at package scope to avoid
// reallocating it on every call.
var bigOne = big.NewInt(1)

// oneLsh256 is 1 shifted left 256 bits -- 2^256, used to derive per-block
// work from a target.
var oneLsh256 = new(big.Int).Lsh(bigOne, 256)

// HashToBig converts a chainhash.Hash into a big.Int that can be used to
// perform math comparisons against a target.
func HashToBig(hash *chainhash.Hash) *big.Int {
	buf := *hash
	blen := len(buf)
	for i := 0; i < blen/2; i++ {
		buf[i], buf[blen-1-i] = buf[blen-1-i], buf[i]
	}
	return new(big.Int).SetBytes(buf[:])
}

// CompactToBig converts a compact-target representation -- an 8-bit
// exponent and a 24-bit signed mantissa -- to a big.Int.  This
// mirrors Bitcoin's "nBits" encoding exactly, mantissa sign bit included,
// since historical targets on the network were in fact produced with the
// sign bit set by certain miners and must decode identically.
func CompactToBig(compact uint32) *big.Int {
	mantissa := compact & 0x007fffff
	isNegative := compact&0x00800000 != 0
	exponent := compact >> 24

	var bn *big.Int
	if exponent <= 3 {
		mantissa >>= 8 * (3 - exponent)
		bn = big.NewInt(int64(mantissa))
	} else {
		bn = big.NewInt(int64(mantissa))
		bn.Lsh(bn, 8*(uint(exponent)-3))
	}

	if isNegative {
		bn = bn.Neg(bn)
	}
	return bn
}

// BigToCompact converts a whole number N to a compact representation using
// an unsigned 32-bit number, the inverse of CompactToBig.
func BigToCompact(n *big.Int) uint32 {
	if n.Sign() == 0 {
		return 0
	}

	var mantissa uint32
	exponent := uint(len(n.Bytes()))

	if exponent <= 3 {
		mantissa = uint32(n.Bits()[0])
		mantissa <<= 8 * (3 - exponent)
	} else {
		tn := new(big.Int).Set(n)
		mantissa = uint32(tn.Rsh(tn, 8*(exponent-3)).Bits()[0])
	}

	if mantissa&0x00800000 != 0 {
		mantissa >>= 8
		exponent++
	}

	compact := uint32(exponent<<24) | mantissa
	if n.Sign() < 0 {
		compact |= 0x00800000
	}
	return compact
}

// CalcWork calculates a work value from difficulty bits.  Bitcoin Cash and
// Bitcoin both limit the target such that CalcWork produces the quantity
// used to compare branches: floor(2^256 / (target + 1)).
func CalcWork(bits uint32) *big.Int {
	target := CompactToBig(bits)
	if target.Sign() <= 0 {
		return big.NewInt(0)
	}
	denominator := new(big.Int).Add(target, bigOne)
	return new(big.Int).Div(oneLsh256, denominator)
}
