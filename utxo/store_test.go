package utxo

import (
	"testing"

	"github.com/bchsuite/bchd/chaincfg/chainhash"
)

func outpoint(b byte, index uint32) OutPoint {
	var h chainhash.Hash
	h[0] = b
	return OutPoint{Hash: h, Index: index}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestProduceSpendCommitRoundTrip(t *testing.T) {
	s := newTestStore(t)
	op := outpoint(1, 0)

	if err := s.BeginBlock(0); err != nil {
		t.Fatalf("BeginBlock: %v", err)
	}
	s.Produce(op, 5000, []byte{0x51}, false)
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	entry, ok := s.Lookup(op)
	if !ok || entry.Amount != 5000 {
		t.Fatalf("Lookup after commit = %v,%v, want 5000,true", entry, ok)
	}

	if err := s.BeginBlock(1); err != nil {
		t.Fatalf("BeginBlock: %v", err)
	}
	if err := s.Spend(op); err != nil {
		t.Fatalf("Spend: %v", err)
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if _, ok := s.Lookup(op); ok {
		t.Fatal("output should be gone after being spent and committed")
	}
}

func TestRevertDiscardsPendingBlock(t *testing.T) {
	s := newTestStore(t)
	op := outpoint(2, 0)

	if err := s.BeginBlock(0); err != nil {
		t.Fatalf("BeginBlock: %v", err)
	}
	s.Produce(op, 1000, []byte{0x51}, false)
	s.Revert()

	if _, ok := s.Lookup(op); ok {
		t.Fatal("output produced by a reverted block must not be visible")
	}
	if s.Height() != 0 {
		t.Fatalf("Height() after Revert = %d, want 0 (unchanged)", s.Height())
	}
}

func TestRevertToHeightRestoresSpentOutputs(t *testing.T) {
	s := newTestStore(t)
	op := outpoint(3, 0)

	if err := s.BeginBlock(0); err != nil {
		t.Fatal(err)
	}
	s.Produce(op, 2500, []byte{0x51}, false)
	if err := s.Commit(); err != nil {
		t.Fatal(err)
	}

	if err := s.BeginBlock(1); err != nil {
		t.Fatal(err)
	}
	if err := s.Spend(op); err != nil {
		t.Fatal(err)
	}
	if err := s.Commit(); err != nil {
		t.Fatal(err)
	}

	if _, ok := s.Lookup(op); ok {
		t.Fatal("output should be spent before revert")
	}

	if err := s.RevertToHeight(0); err != nil {
		t.Fatalf("RevertToHeight: %v", err)
	}
	entry, ok := s.Lookup(op)
	if !ok || entry.Amount != 2500 {
		t.Fatalf("Lookup after RevertToHeight(0) = %v,%v, want restored entry", entry, ok)
	}
	if s.Height() != 0 {
		t.Fatalf("Height() after RevertToHeight(0) = %d, want 0", s.Height())
	}
}

func TestCoinbaseMaturityBoundary(t *testing.T) {
	s := newTestStore(t)
	op := outpoint(4, 0)

	if err := s.BeginBlock(0); err != nil {
		t.Fatal(err)
	}
	s.Produce(op, 5000000000, []byte{0x51}, true)
	if err := s.Commit(); err != nil {
		t.Fatal(err)
	}

	// One block short of maturity: not spendable.
	if _, ok := s.IsSpendable(op, CoinbaseMaturity-1); ok {
		t.Fatalf("coinbase output must not be spendable at height %d", CoinbaseMaturity-1)
	}

	// Exactly at the maturity boundary: spendable.
	if _, ok := s.IsSpendable(op, CoinbaseMaturity); !ok {
		t.Fatalf("coinbase output must be spendable at height %d", CoinbaseMaturity)
	}
}

func TestSpendImmatureCoinbaseFails(t *testing.T) {
	s := newTestStore(t)
	op := outpoint(5, 0)

	if err := s.BeginBlock(0); err != nil {
		t.Fatal(err)
	}
	s.Produce(op, 5000000000, []byte{0x51}, true)
	if err := s.Commit(); err != nil {
		t.Fatal(err)
	}

	if err := s.BeginBlock(1); err != nil {
		t.Fatal(err)
	}
	if err := s.Spend(op); err == nil {
		t.Fatal("expected Spend of an immature coinbase output to fail")
	}
	s.Revert()
}
