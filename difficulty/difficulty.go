package difficulty

import (
	"math/big"
	"sort"
)

const (
	// retargetBlockInterval is the number of blocks between original
	// retargets.
	retargetBlockInterval = 2016

	// retargetTimespan is the expected number of seconds between
	// retargetBlockInterval blocks (14 days at 10 minutes/block).
	retargetTimespan = int64(retargetBlockInterval * 600)

	// minRetargetTimespan and maxRetargetTimespan clamp the observed
	// timespan to a factor of 4 either side of retargetTimespan, per
	// the original retarget rule.
	minRetargetTimespan = retargetTimespan / 4
	maxRetargetTimespan = retargetTimespan * 4

	// edaWindow is the number of blocks the EDA looks back to decide
	// whether to trigger an emergency adjustment.
	edaWindow = 6

	// edaStallSeconds is the MTP gap (12 hours) that triggers the EDA.
	edaStallSeconds = 12 * 60 * 60

	// daaHeightFloor is the minimum height the cw-144 DAA may activate
	// at -- it needs 146 blocks of history below the current height.
	daaHeightFloor = 146

	// daaActivationMTP is the median-time-past threshold (2017-11-13
	// 19:06:40 UTC) gating cw-144 DAA activation.
	daaActivationMTP = 1510600000

	// daaAveragingWindow is the target timespan (600s) used to scale
	// work in the cw-144 DAA.
	daaAveragingWindow = int64(600)
)

// CashActiveFunc reports whether the Cash (UAHF) consensus rules are active
// at the given height.  Difficulty depends on fork activation but must not
// import the forks package directly (difficulty sits below forks in the
// dependency order), so the caller injects this predicate.
type CashActiveFunc func(height int32) bool

// Engine computes the expected target for the next block from a BlockStats
// window, implementing the ladder in priority order: before
// height 1, the cw-144 DAA, the EDA, the original 2016-block retarget, and
// finally "unchanged".
type Engine struct {
	stats          *BlockStats
	powLimit       *big.Int
	powLimitBits   uint32
	cashActive     CashActiveFunc
	reduceMinDiff  bool
	minDiffSeconds int64
	blockInterval  int64
}

// Config carries the network parameters DifficultyEngine needs.  It is
// intentionally a plain struct (rather than importing chaincfg.Params
// directly) so difficulty stays a leaf package, below ScriptEngine and
// UtxoStore and above ChainStore and ChainManager in the dependency order.
type Config struct {
	PowLimit            *big.Int
	PowLimitBits        uint32
	CashActive          CashActiveFunc
	ReduceMinDifficulty bool
	MinDiffReductionTime int64
	TargetTimePerBlock   int64
}

// NewEngine constructs a DifficultyEngine sharing the given BlockStats.
func NewEngine(stats *BlockStats, cfg Config) *Engine {
	blockInterval := cfg.TargetTimePerBlock
	if blockInterval == 0 {
		blockInterval = 600
	}
	return &Engine{
		stats:          stats,
		powLimit:       cfg.PowLimit,
		powLimitBits:   cfg.PowLimitBits,
		cashActive:     cfg.CashActive,
		reduceMinDiff:  cfg.ReduceMinDifficulty,
		minDiffSeconds: cfg.MinDiffReductionTime,
		blockInterval:  blockInterval,
	}
}

// ExpectedTarget returns the compact targetBits the block at the given
// height must satisfy.
func (e *Engine) ExpectedTarget(height int32, blockTime int64) uint32 {
	if height < 1 {
		return e.powLimitBits
	}

	if e.reduceMinDiff {
		if _, prevBlockTime, _, ok := e.stats.At(height - 1); ok {
			if blockTime > prevBlockTime+e.minDiffSeconds {
				return e.powLimitBits
			}
		}
	}

	cashActive := e.cashActive != nil && e.cashActive(height)

	mtpPrev, haveMTP := e.stats.MedianTimePast(height - 1)

	if cashActive && haveMTP && mtpPrev > daaActivationMTP && height > daaHeightFloor {
		if bits, ok := e.cashDAA(height); ok {
			return bits
		}
	}

	if cashActive && height > 7 {
		if bits, ok := e.eda(height); ok {
			return bits
		}
	}

	if height%retargetBlockInterval == 0 {
		if bits, ok := e.originalRetarget(height); ok {
			return bits
		}
	}

	// Unchanged: carry forward the prior block's target.
	if _, _, bits, ok := e.stats.At(height - 1); ok {
		return bits
	}
	return e.powLimitBits
}

// suitableBlock implements the cw-144 DAA's median-of-three block selection:
// among the block at height and its two predecessors, pick the one with the
// median timestamp, to dampen single-miner timestamp manipulation.
func (e *Engine) suitableBlock(height int32) (blockTime int64, work *big.Int, ok bool) {
	type sample struct {
		height int32
		time   int64
	}
	var samples []sample
	for h := height - 2; h <= height; h++ {
		if _, t, _, has := e.stats.At(h); has {
			samples = append(samples, sample{height: h, time: t})
		} else {
			return 0, nil, false
		}
	}
	if len(samples) != 3 {
		return 0, nil, false
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].time < samples[j].time })
	mid := samples[1]
	work, has := e.stats.AccumulatedWork(mid.height)
	if !has {
		return 0, nil, false
	}
	return mid.time, work, true
}

// cashDAA implements the cw-144 continuous difficulty adjustment: a
// 144-block trailing average of work per second, rescaled to the target
// block interval.
func (e *Engine) cashDAA(height int32) (uint32, bool) {
	lastTime, lastWork, ok := e.suitableBlock(height - 1)
	if !ok {
		return 0, false
	}
	firstTime, firstWork, ok := e.suitableBlock(height - 145)
	if !ok {
		return 0, false
	}

	timeSpan := lastTime - firstTime
	if timeSpan < 72*600 {
		timeSpan = 72 * 600
	}
	if timeSpan > 288*600 {
		timeSpan = 288 * 600
	}

	workPerformed := new(big.Int).Sub(lastWork, firstWork)
	if workPerformed.Sign() <= 0 {
		return 0, false
	}
	workPerformed.Mul(workPerformed, big.NewInt(daaAveragingWindow))
	workPerformed.Div(workPerformed, big.NewInt(timeSpan))

	if workPerformed.Sign() <= 0 {
		return e.powLimitBits, true
	}

	target := new(big.Int).Sub(oneLsh256, workPerformed)
	target.Div(target, workPerformed)

	if target.Cmp(e.powLimit) > 0 {
		target.Set(e.powLimit)
	}
	return BigToCompact(target), true
}

// eda implements the original Cash emergency difficulty adjustment: if the
// chain has stalled for 12 hours measured over a 6-block window, the target
// is relaxed by a factor of 1.25.
func (e *Engine) eda(height int32) (uint32, bool) {
	mtpNow, ok1 := e.stats.MedianTimePast(height - 1)
	mtpPast, ok2 := e.stats.MedianTimePast(height - 1 - edaWindow)
	if !ok1 || !ok2 {
		return 0, false
	}
	if mtpNow-mtpPast < edaStallSeconds {
		return 0, false
	}

	_, _, prevBits, ok := e.stats.At(height - 1)
	if !ok {
		return 0, false
	}
	target := CompactToBig(prevBits)
	target.Mul(target, big.NewInt(5))
	target.Div(target, big.NewInt(4))
	if target.Cmp(e.powLimit) > 0 {
		target.Set(e.powLimit)
	}
	return BigToCompact(target), true
}

// originalRetarget implements the legacy 2016-block retarget rule.
func (e *Engine) originalRetarget(height int32) (uint32, bool) {
	_, lastTime, prevBits, ok := e.stats.At(height - 1)
	if !ok {
		return 0, false
	}
	_, firstTime, _, ok := e.stats.At(height - retargetBlockInterval)
	if !ok {
		return 0, false
	}

	actualTimespan := lastTime - firstTime
	if actualTimespan < minRetargetTimespan {
		actualTimespan = minRetargetTimespan
	}
	if actualTimespan > maxRetargetTimespan {
		actualTimespan = maxRetargetTimespan
	}

	target := CompactToBig(prevBits)
	target.Mul(target, big.NewInt(actualTimespan))
	target.Div(target, big.NewInt(retargetTimespan))
	if target.Cmp(e.powLimit) > 0 {
		target.Set(e.powLimit)
	}
	return BigToCompact(target), true
}
