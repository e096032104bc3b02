package blockchain

import (
	"fmt"
	"math/big"
	"time"

	"github.com/bchsuite/bchd/chaincfg/chainhash"
	"github.com/bchsuite/bchd/txscript"
	"github.com/bchsuite/bchd/wire"

	"github.com/bchsuite/bchd/difficulty"
)

// maxFutureBlockTime bounds how far into the future, relative to the local
// clock, a candidate block's timestamp may be.
const maxFutureBlockTime = 2 * time.Hour

// bip34CoinbaseHeight extracts the height a BIP-34 coinbase input script
// claims to push as its first item, or ok=false if the script does not
// begin with a minimal-encoded height push.
func bip34CoinbaseHeight(sigScript []byte) (int32, bool) {
	if len(sigScript) < 1 {
		return 0, false
	}

	op := sigScript[0]
	switch {
	case op >= 0x01 && op <= 0x4b:
		n := int(op)
		if len(sigScript) < 1+n || n > 4 || n == 0 {
			return 0, false
		}
		var v int64
		for i := n - 1; i >= 0; i-- {
			v = v<<8 | int64(sigScript[1+i])
		}
		return int32(v), true
	case op >= 0x51 && op <= 0x60:
		return int32(op - 0x50), true
	case op == 0x00:
		return 0, true
	default:
		return 0, false
	}
}

// validateBlock runs the eight-step validation pipeline against a
// candidate block at the provisional next height, applying its effects to
// the UtxoStore as it goes.  On any failure the caller must
// call m.utxos.Revert() to discard the partially-built delta; on success
// the caller commits the delta and advances BlockStats/ChainStore.
func (m *ChainManager) validateBlock(block *wire.MsgBlock, parent *blockNode, height int32) error {
	header := &block.Header
	hash := block.BlockHash()

	// Step 1: header sanity.
	var parentHash chainhash.Hash
	if parent != nil {
		parentHash = parent.hash
	}
	if header.PrevBlock != parentHash {
		return ruleError(ErrMissingParent, "previousHash does not match tip")
	}
	target := difficulty.CompactToBig(header.Bits)
	if difficulty.HashToBig(&hash).Cmp(target) > 0 {
		return ruleError(ErrHighHash, fmt.Sprintf(
			"block hash %s is higher than its target", hash))
	}

	// Step 2: difficulty.
	expectedBits := m.diffEngine.ExpectedTarget(height, header.Timestamp.Unix())
	if header.Bits != expectedBits {
		return ruleError(ErrUnexpectedDifficulty, fmt.Sprintf(
			"block targetBits %08x does not match expected %08x",
			header.Bits, expectedBits))
	}

	// Step 3: time.
	if mtp, ok := m.stats.MedianTimePast(height - 1); ok {
		if header.Timestamp.Unix() <= mtp {
			return ruleError(ErrTimeTooOld,
				"block timestamp is not after median time past")
		}
	}
	if header.Timestamp.After(time.Now().Add(maxFutureBlockTime)) {
		return ruleError(ErrTimeTooNew, "block timestamp too far in the future")
	}

	// Step 4: merkle.
	if len(block.Transactions) == 0 {
		return ruleError(ErrNoTransactions, "block has no transactions")
	}
	gotRoot := CalcMerkleRoot(block.Transactions)
	if gotRoot != header.MerkleRoot {
		return ruleError(ErrBadMerkleRoot, "computed merkle root does not match header")
	}

	// Step 5: coinbase shape.
	if !block.Transactions[0].IsCoinBase() {
		return ruleError(ErrFirstTxNotCoinbase, "first transaction is not coinbase")
	}
	for _, tx := range block.Transactions[1:] {
		if tx.IsCoinBase() {
			return ruleError(ErrMultipleCoinbases, "block contains more than one coinbase")
		}
	}
	if m.ladder.IsBIP34Active(height) {
		coinbaseHeight, ok := bip34CoinbaseHeight(block.Transactions[0].TxIn[0].SignatureScript)
		if !ok || coinbaseHeight != height {
			return ruleError(ErrBadCoinbaseHeight,
				"coinbase does not begin with a push of the block height")
		}
	}

	if err := m.utxos.BeginBlock(height); err != nil {
		return err
	}

	flags := m.scriptFlagsForHeight(height)

	var totalFees int64
	coinbase := block.Transactions[0]

	for txIdx, tx := range block.Transactions {
		if txIdx == 0 {
			continue
		}

		hashCache := txscript.NewTxSigHashes(tx)

		var inputSum int64
		for inIdx, in := range tx.TxIn {
			entry, ok := m.utxos.IsSpendable(in.PreviousOutPoint, height)
			if !ok {
				return ruleError(ErrMissingTxOut, fmt.Sprintf(
					"input %d of tx %s spends an unknown, spent, or "+
						"immature output", inIdx, tx.TxHash()))
			}
			inputSum += entry.Amount

			// Step 7: script evaluation.
			if err := m.verifyInputScript(tx, inIdx, entry.PkScript,
				entry.Amount, flags, hashCache); err != nil {
				return err
			}

			if err := m.utxos.Spend(in.PreviousOutPoint); err != nil {
				return err
			}
		}

		var outputSum int64
		for _, out := range tx.TxOut {
			outputSum += out.Value
		}
		if inputSum < outputSum {
			return ruleError(ErrSpendTooHigh, fmt.Sprintf(
				"tx %s spends more than its inputs carry", tx.TxHash()))
		}
		totalFees += inputSum - outputSum

		txHash := tx.TxHash()
		for outIdx, out := range tx.TxOut {
			op := wire.OutPoint{Hash: txHash, Index: uint32(outIdx)}
			m.utxos.Produce(op, out.Value, out.PkScript, false)
		}
	}

	// Produce the coinbase's own outputs now that fees are known, and
	// check step 8.
	coinbaseHash := coinbase.TxHash()
	var coinbaseSum int64
	for _, out := range coinbase.TxOut {
		coinbaseSum += out.Value
	}
	subsidy := CalcBlockSubsidy(height, m.params.SubsidyHalvingInterval)
	if coinbaseSum > subsidy+totalFees {
		return ruleError(ErrBadFees, "coinbase output value exceeds subsidy plus fees")
	}
	for outIdx, out := range coinbase.TxOut {
		op := wire.OutPoint{Hash: coinbaseHash, Index: uint32(outIdx)}
		m.utxos.Produce(op, out.Value, out.PkScript, true)
	}

	return nil
}

// workForHeader returns the work contributed by a header with the given
// compact target.
func workForHeader(bits uint32) *big.Int {
	return difficulty.CalcWork(bits)
}
