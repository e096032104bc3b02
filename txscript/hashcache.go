package txscript

import (
	"github.com/bchsuite/bchd/chaincfg/chainhash"
	"github.com/bchsuite/bchd/wire"
)

// TxSigHashes houses the partial set of sighash midstate values introduced
// by the FORKID signature hash algorithm.  These double hashes
// of the transaction's prevouts, sequence numbers, and outputs are
// identical for every input of a given transaction whenever the
// corresponding ANYONECANPAY / SINGLE / NONE bit is not set, so computing
// them once per transaction and reusing them across inputs turns an O(n^2)
// validation cost into O(n).
type TxSigHashes struct {
	HashPrevOuts chainhash.Hash
	HashSequence chainhash.Hash
	HashOutputs  chainhash.Hash
}

// NewTxSigHashes computes the midstate hashes for the given transaction in
// one pass.
func NewTxSigHashes(tx *wire.MsgTx) *TxSigHashes {
	return &TxSigHashes{
		HashPrevOuts: calcHashPrevOuts(tx),
		HashSequence: calcHashSequence(tx),
		HashOutputs:  calcHashOutputs(tx),
	}
}

func calcHashPrevOuts(tx *wire.MsgTx) chainhash.Hash {
	var b []byte
	for _, in := range tx.TxIn {
		b = append(b, in.PreviousOutPoint.Hash[:]...)
		var idx [4]byte
		putUint32LE(idx[:], in.PreviousOutPoint.Index)
		b = append(b, idx[:]...)
	}
	return chainhash.DoubleHashH(b)
}

func calcHashSequence(tx *wire.MsgTx) chainhash.Hash {
	var b []byte
	for _, in := range tx.TxIn {
		var seq [4]byte
		putUint32LE(seq[:], in.Sequence)
		b = append(b, seq[:]...)
	}
	return chainhash.DoubleHashH(b)
}

func calcHashOutputs(tx *wire.MsgTx) chainhash.Hash {
	var b []byte
	for _, out := range tx.TxOut {
		var val [8]byte
		putUint64LE(val[:], uint64(out.Value))
		b = append(b, val[:]...)
		b = append(b, varIntBytes(uint64(len(out.PkScript)))...)
		b = append(b, out.PkScript...)
	}
	return chainhash.DoubleHashH(b)
}

func putUint32LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func putUint64LE(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> uint(8*i))
	}
}

func varIntBytes(v uint64) []byte {
	if v < 0xfd {
		return []byte{byte(v)}
	}
	if v <= 0xffff {
		return []byte{0xfd, byte(v), byte(v >> 8)}
	}
	if v <= 0xffffffff {
		return []byte{0xfe, byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
	}
	b := make([]byte, 9)
	b[0] = 0xff
	putUint64LE(b[1:], v)
	return b
}
