package blockchain

import (
	"github.com/bchsuite/bchd/chaincfg/chainhash"
	"github.com/bchsuite/bchd/wire"
)

// CalcMerkleRoot computes the Merkle root of a list of transaction hashes,
// duplicating the last hash of any row with an odd number of entries.
func CalcMerkleRoot(txs []*wire.MsgTx) chainhash.Hash {
	if len(txs) == 0 {
		return chainhash.Hash{}
	}

	row := make([]chainhash.Hash, len(txs))
	for i, tx := range txs {
		row[i] = tx.TxHash()
	}

	for len(row) > 1 {
		if len(row)%2 != 0 {
			row = append(row, row[len(row)-1])
		}
		next := make([]chainhash.Hash, len(row)/2)
		for i := 0; i < len(next); i++ {
			var buf [chainhash.HashSize * 2]byte
			copy(buf[:chainhash.HashSize], row[2*i][:])
			copy(buf[chainhash.HashSize:], row[2*i+1][:])
			next[i] = chainhash.DoubleHashH(buf[:])
		}
		row = next
	}
	return row[0]
}
