// Package utxo implements UtxoStore: the set of unspent transaction
// outputs, with block-granularity commit/revert transactions and a
// two-tier hot-cache-plus-bucketed-file storage layer.
package utxo

import "github.com/bchsuite/bchd/wire"

// txoFlags records auxiliary per-output state that would otherwise cost a
// full extra field; kept as a single byte since there are many of these
// entries live in memory at once.
type txoFlags uint8

const (
	tfCoinBase txoFlags = 1 << iota
	tfSpent
)

// Entry describes one unspent transaction output: the amount it carries,
// its locking script, the height of the block that produced it, and
// whether that producing transaction was a coinbase.
type Entry struct {
	Amount      int64
	PkScript    []byte
	BlockHeight int32
	flags       txoFlags
}

// IsCoinBase reports whether the output was produced by a coinbase
// transaction.
func (e *Entry) IsCoinBase() bool {
	return e.flags&tfCoinBase == tfCoinBase
}

// IsSpent reports whether the output has been marked spent.
func (e *Entry) IsSpent() bool {
	return e.flags&tfSpent == tfSpent
}

// clone returns a deep-enough copy safe for the hot cache to share with
// callers without risking later in-place mutation surprising them.
func (e *Entry) clone() *Entry {
	if e == nil {
		return nil
	}
	script := make([]byte, len(e.PkScript))
	copy(script, e.PkScript)
	return &Entry{
		Amount:      e.Amount,
		PkScript:    script,
		BlockHeight: e.BlockHeight,
		flags:       e.flags,
	}
}

// OutPoint aliases wire.OutPoint for readability within this package.
type OutPoint = wire.OutPoint

// SpentOutput is the undo-log record kept for one spent output, enough
// information to restore it verbatim on revert.
type SpentOutput struct {
	OutPoint OutPoint
	Entry    Entry
}
