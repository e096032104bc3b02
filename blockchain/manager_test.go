package blockchain

import (
	"os"
	"testing"
	"time"

	"github.com/bchsuite/bchd/chaincfg"
	"github.com/bchsuite/bchd/chaincfg/chainhash"
	"github.com/bchsuite/bchd/difficulty"
	"github.com/bchsuite/bchd/wire"
)

// testPowLimitBits is a regtest-style maximum target: roughly half of all
// hashes satisfy it, so mineBlock finds a valid nonce within a few tries.
const testPowLimitBits = 0x207fffff

const testGenesisTime = int64(1600000000)

func testParams() *chaincfg.Params {
	farFuture := int32(1 << 30)
	return &chaincfg.Params{
		Name:                   "manager-test",
		PowLimit:               difficulty.CompactToBig(testPowLimitBits),
		PowLimitBits:           testPowLimitBits,
		TargetTimePerBlock:     600 * time.Second,
		SubsidyHalvingInterval: 0,
		CoinbaseMaturity:       100,
		BIP34Height:            farFuture,
		BIP65Height:            farFuture,
		BIP66Height:            farFuture,
		CSVHeight:              farFuture,
		UAHFHeight:             farFuture,
		DAAHeight:              farFuture,
		GenesisHeader: chaincfg.BlockHeader{
			Version:   1,
			Timestamp: time.Unix(testGenesisTime, 0),
			Bits:      testPowLimitBits,
		},
	}
}

func newTestManager(t *testing.T) *ChainManager {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(dir+"/chain", 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	m, err := New(Config{
		Params:   testParams(),
		ChainDir: dir + "/chain",
		UtxoDir:  dir + "/utxo",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

// mineBlock builds a trivially-valid block extending prev at timestamp:
// a single coinbase claiming the full subsidy with an anyone-can-spend
// output, at the fixed pow-limit target every test block uses.
func mineBlock(prev chainhash.Hash, timestamp int64) *wire.MsgBlock {
	coinbase := wire.NewMsgTx(1)
	coinbase.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Index: wire.MaxPrevOutIndex},
		SignatureScript:  []byte{0x51},
		Sequence:         wire.MaxTxInSequenceNum,
	})
	coinbase.AddTxOut(&wire.TxOut{Value: 5000000000, PkScript: []byte{0x51}})

	block := &wire.MsgBlock{
		Header: wire.BlockHeader{
			Version:    1,
			PrevBlock:  prev,
			MerkleRoot: CalcMerkleRoot([]*wire.MsgTx{coinbase}),
			Timestamp:  time.Unix(timestamp, 0),
			Bits:       testPowLimitBits,
		},
	}
	block.AddTransaction(coinbase)

	target := difficulty.CompactToBig(testPowLimitBits)
	for {
		hash := block.Header.BlockHash()
		if difficulty.HashToBig(&hash).Cmp(target) <= 0 {
			break
		}
		block.Header.Nonce++
	}
	return block
}

func TestSubmitBlockExtendsActiveChain(t *testing.T) {
	m := newTestManager(t)
	genesisHash := m.TipHash()
	if m.Height() != 0 {
		t.Fatalf("Height() after bootstrap = %d, want 0", m.Height())
	}

	prev := genesisHash
	ts := testGenesisTime
	for i := 1; i <= 3; i++ {
		ts += 600
		blk := mineBlock(prev, ts)
		if res := m.SubmitBlock(blk); res != AcceptedOnMain {
			t.Fatalf("submitBlock(%d) = %v, want AcceptedOnMain", i, res)
		}
		prev = blk.BlockHash()
	}

	if m.Height() != 3 {
		t.Fatalf("Height() = %d, want 3", m.Height())
	}
	if m.TipHash() != prev {
		t.Fatalf("TipHash() = %s, want %s", m.TipHash(), prev)
	}
}

func TestSubmitBlockDuplicateIsRejected(t *testing.T) {
	m := newTestManager(t)
	blk := mineBlock(m.TipHash(), testGenesisTime+600)

	if res := m.SubmitBlock(blk); res != AcceptedOnMain {
		t.Fatalf("first submitBlock = %v, want AcceptedOnMain", res)
	}
	if res := m.SubmitBlock(blk); res != Duplicate {
		t.Fatalf("resubmitted block = %v, want Duplicate", res)
	}
}

func TestSubmitHeaderThenBlockFillsPendingSlot(t *testing.T) {
	m := newTestManager(t)
	blk := mineBlock(m.TipHash(), testGenesisTime+600)

	if res := m.SubmitHeader(blk.Header); res != AcceptedOnMain {
		t.Fatalf("submitHeader = %v, want AcceptedOnMain", res)
	}
	if m.Height() != 0 {
		t.Fatalf("Height() before body arrives = %d, want 0 (still header-only)", m.Height())
	}

	if res := m.SubmitBlock(blk); res != AcceptedOnMain {
		t.Fatalf("submitBlock filling pending header = %v, want AcceptedOnMain", res)
	}
	if m.Height() != 1 {
		t.Fatalf("Height() after body arrives = %d, want 1", m.Height())
	}
}

func TestOrphanBlockIsReported(t *testing.T) {
	m := newTestManager(t)
	var unknownParent chainhash.Hash
	unknownParent[0] = 0xff
	blk := mineBlock(unknownParent, testGenesisTime+600)

	if res := m.SubmitBlock(blk); res != Orphan {
		t.Fatalf("submitBlock of an unknown-parent block = %v, want Orphan", res)
	}
}

// TestReorgActivatesHeavierBranch grows a branch off genesis to more blocks
// than the active chain gathers over the same period, then checks that the
// second main-line submission -- which is what drives the next
// evaluateBranches pass -- reorganises onto the heavier branch.
func TestReorgActivatesHeavierBranch(t *testing.T) {
	m := newTestManager(t)
	genesisHash := m.TipHash()

	// Establish the first main-line block so that a same-parent block
	// submitted afterwards is recognised as a sibling (a branch) rather
	// than simply extending main pending.
	mainBlock1 := mineBlock(genesisHash, testGenesisTime+600)
	if res := m.SubmitBlock(mainBlock1); res != AcceptedOnMain {
		t.Fatalf("submitBlock(mainBlock1) = %v, want AcceptedOnMain", res)
	}

	branchTs := testGenesisTime
	var branchTip chainhash.Hash
	prev := genesisHash
	for i := 0; i < 4; i++ {
		branchTs += 500
		blk := mineBlock(prev, branchTs)
		if res := m.SubmitBlock(blk); res != AcceptedOnBranch {
			t.Fatalf("branch submitBlock(%d) = %v, want AcceptedOnBranch", i, res)
		}
		prev = blk.BlockHash()
	}
	branchTip = prev

	// The second main-line block brings main's own work up to 2 blocks,
	// still short of the branch's 4 work-bearing blocks, and its
	// connection is what triggers the next evaluateBranches pass.
	mainBlock2 := mineBlock(mainBlock1.BlockHash(), testGenesisTime+1200)
	if res := m.SubmitBlock(mainBlock2); res != AcceptedOnMain {
		t.Fatalf("submitBlock(mainBlock2) = %v, want AcceptedOnMain", res)
	}

	if m.Height() != 4 {
		t.Fatalf("Height() after reorg = %d, want 4", m.Height())
	}
	if m.TipHash() != branchTip {
		t.Fatalf("TipHash() after reorg = %s, want the branch tip %s", m.TipHash(), branchTip)
	}

	// The demoted main-line blocks must survive as a competing branch,
	// not be discarded.
	if _, err := m.GetBlock(mainBlock1.BlockHash()); err != nil {
		t.Fatalf("GetBlock(old main block 1) after reorg: %v", err)
	}
	if _, err := m.GetBlock(mainBlock2.BlockHash()); err != nil {
		t.Fatalf("GetBlock(old main block 2) after reorg: %v", err)
	}
}

func TestCoinbaseSpendRejectedBeforeMaturity(t *testing.T) {
	m := newTestManager(t)
	genesisHash := m.TipHash()

	b1 := mineBlock(genesisHash, testGenesisTime+600)
	if res := m.SubmitBlock(b1); res != AcceptedOnMain {
		t.Fatalf("submitBlock(b1) = %v, want AcceptedOnMain", res)
	}

	// Spend b1's coinbase output one block later, long before its 100
	// block maturity: validateBlock must reject the block.
	spendTx := wire.NewMsgTx(1)
	spendTx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Hash: b1.Transactions[0].TxHash(), Index: 0},
		SignatureScript:  nil,
		Sequence:         wire.MaxTxInSequenceNum,
	})
	spendTx.AddTxOut(&wire.TxOut{Value: 1, PkScript: []byte{0x51}})

	coinbase := wire.NewMsgTx(1)
	coinbase.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Index: wire.MaxPrevOutIndex},
		SignatureScript:  []byte{0x51},
		Sequence:         wire.MaxTxInSequenceNum,
	})
	coinbase.AddTxOut(&wire.TxOut{Value: 5000000000, PkScript: []byte{0x51}})

	block := &wire.MsgBlock{
		Header: wire.BlockHeader{
			Version:   1,
			PrevBlock: b1.BlockHash(),
			Timestamp: time.Unix(testGenesisTime+1200, 0),
			Bits:      testPowLimitBits,
		},
	}
	block.AddTransaction(coinbase)
	block.AddTransaction(spendTx)
	block.Header.MerkleRoot = CalcMerkleRoot(block.Transactions)
	target := difficulty.CompactToBig(testPowLimitBits)
	for {
		hash := block.Header.BlockHash()
		if difficulty.HashToBig(&hash).Cmp(target) <= 0 {
			break
		}
		block.Header.Nonce++
	}

	if res := m.SubmitBlock(block); res != Invalid {
		t.Fatalf("submitBlock spending an immature coinbase = %v, want Invalid", res)
	}
	if m.Height() != 1 {
		t.Fatalf("Height() after the invalid block was rejected = %d, want 1 (unchanged)", m.Height())
	}
}
