package difficulty

import (
	"math/big"
	"testing"
)

func TestCompactBigRoundTrip(t *testing.T) {
	cases := []uint32{
		0x1d00ffff, // mainnet genesis pow limit
		0x1b0404cb,
		0x207fffff,
		0x01010000, // the value 1: small mantissa, low exponent
	}
	for _, bits := range cases {
		n := CompactToBig(bits)
		got := BigToCompact(n)
		if got != bits {
			t.Errorf("BigToCompact(CompactToBig(%08x)) = %08x, want %08x", bits, got, bits)
		}
	}
}

func TestCompactToBigNegativeMantissa(t *testing.T) {
	n := CompactToBig(0x04923456)
	if n.Sign() >= 0 {
		t.Fatalf("expected negative value for a compact target with the sign bit set, got %s", n)
	}
}

func TestCalcWorkMonotonic(t *testing.T) {
	easy := CalcWork(0x1d00ffff)
	hard := CalcWork(0x1b0404cb)
	if hard.Cmp(easy) <= 0 {
		t.Fatalf("a smaller target (harder difficulty) must produce more work: hard=%s easy=%s", hard, easy)
	}
}

func TestCalcWorkZeroTarget(t *testing.T) {
	if got := CalcWork(0); got.Sign() != 0 {
		t.Fatalf("CalcWork(0) = %s, want 0", got)
	}
}

func newTestEngine(reduceMinDiff bool, cashActive CashActiveFunc) (*BlockStats, *Engine) {
	stats := New(0)
	powLimit := CompactToBig(0x1d00ffff)
	engine := NewEngine(stats, Config{
		PowLimit:             powLimit,
		PowLimitBits:         0x1d00ffff,
		CashActive:           cashActive,
		ReduceMinDifficulty:  reduceMinDiff,
		MinDiffReductionTime: 20 * 60,
		TargetTimePerBlock:   600,
	})
	return stats, engine
}

func TestExpectedTargetGenesisUsesPowLimit(t *testing.T) {
	_, engine := newTestEngine(false, nil)
	if got := engine.ExpectedTarget(0, 0); got != 0x1d00ffff {
		t.Fatalf("ExpectedTarget(0) = %08x, want pow limit", got)
	}
}

func TestExpectedTargetCarriesForwardWhenNoRuleApplies(t *testing.T) {
	stats, engine := newTestEngine(false, nil)
	stats.Append(0, 1, 1600000000, 0x1b0404cb)
	if got := engine.ExpectedTarget(1, 1600000600); got != 0x1b0404cb {
		t.Fatalf("ExpectedTarget(1) = %08x, want prior block's bits carried forward", got)
	}
}

func TestExpectedTargetTestnetReductionRule(t *testing.T) {
	stats, engine := newTestEngine(true, func(int32) bool { return false })
	stats.Append(0, 1, 1600000000, 0x1b0404cb)

	// A block within the allowed gap keeps the prior difficulty.
	if got := engine.ExpectedTarget(1, 1600000000+19*60); got != 0x1b0404cb {
		t.Fatalf("ExpectedTarget within reduction window = %08x, want unchanged", got)
	}

	// A block after a gap exceeding MinDiffReductionTime falls back to the
	// pow limit, the "testnet 20-minute rule".
	if got := engine.ExpectedTarget(1, 1600000000+21*60); got != engine.powLimitBits {
		t.Fatalf("ExpectedTarget after stall = %08x, want pow limit", got)
	}
}

func TestBlockStatsMedianTimePast(t *testing.T) {
	stats := New(0)
	base := int64(1600000000)
	for h := int32(0); h < 11; h++ {
		stats.Append(h, 1, base+int64(h)*600, 0x1d00ffff)
	}
	mtp, ok := stats.MedianTimePast(10)
	if !ok {
		t.Fatal("MedianTimePast(10) not ok")
	}
	if want := base + 5*600; mtp != want {
		t.Fatalf("MedianTimePast(10) = %d, want %d", mtp, want)
	}
}

func TestBlockStatsAccumulatedWork(t *testing.T) {
	stats := New(0)
	stats.Append(0, 1, 1600000000, 0x1d00ffff)
	stats.Append(1, 1, 1600000600, 0x1d00ffff)

	w0, _ := stats.AccumulatedWork(0)
	w1, _ := stats.AccumulatedWork(1)
	if w1.Cmp(w0) <= 0 {
		t.Fatalf("accumulated work must strictly increase: w0=%s w1=%s", w0, w1)
	}

	single := CalcWork(0x1d00ffff)
	want := new(big.Int).Add(single, single)
	if w1.Cmp(want) != 0 {
		t.Fatalf("AccumulatedWork(1) = %s, want %s", w1, want)
	}
}

func TestBlockStatsRevertToHeight(t *testing.T) {
	stats := New(0)
	for h := int32(0); h < 5; h++ {
		stats.Append(h, 1, 1600000000+int64(h)*600, 0x1d00ffff)
	}
	stats.RevertToHeight(2)

	if tip, ok := stats.Tip(); !ok || tip != 2 {
		t.Fatalf("Tip() = %d,%v, want 2,true", tip, ok)
	}
	if _, _, _, ok := stats.At(3); ok {
		t.Fatal("At(3) should be gone after RevertToHeight(2)")
	}
	if _, _, _, ok := stats.At(2); !ok {
		t.Fatal("At(2) should survive RevertToHeight(2)")
	}
}
