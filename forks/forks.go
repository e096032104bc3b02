// Package forks tracks the height-keyed activation ladder for BIP-34,
// BIP-65, BIP-66, the BIP-68/112/113 relative lock-time family, and the
// Bitcoin Cash UAHF and DAA follow-up forks.
//
// Upstream, these were latched with miner-signalled version-bit threshold
// counting (see the now-deleted versionbits.go/thresholdstate.go) behind a
// local constant that used bitwise-AND rather than bitwise-OR when
// combining the BIP-34/65 threshold flags -- a bug that silently degraded
// enforcement.  A Cash-fork node does not use miner signalling at all:
// every one of these deployments activated at a known, fixed, historical
// height, so the ladder here is a plain height comparison and the bug has
// no analogue to reintroduce.
package forks

// Ladder reports which consensus rule changes are active at a given
// height.  It is advanced implicitly: every query is a pure function of
// height, so there is no mutable state to keep "in lockstep" with
// BlockStats beyond both being indexed by the same height.
type Ladder struct {
	bip34Height int32
	bip65Height int32
	bip66Height int32
	csvHeight   int32
	uahfHeight  int32
	daaHeight   int32
}

// New builds a Ladder from the activation heights carried on a network's
// parameters.
func New(bip34, bip65, bip66, csv, uahf, daa int32) *Ladder {
	return &Ladder{
		bip34Height: bip34,
		bip65Height: bip65,
		bip66Height: bip66,
		csvHeight:   csv,
		uahfHeight:  uahf,
		daaHeight:   daa,
	}
}

// IsBIP34Active reports whether coinbase transactions at the given height
// must push the block height as the first script item.
func (l *Ladder) IsBIP34Active(height int32) bool {
	return height >= l.bip34Height
}

// IsBIP65Active reports whether OP_CHECKLOCKTIMEVERIFY is consensus-enforced
// at the given height.
func (l *Ladder) IsBIP65Active(height int32) bool {
	return height >= l.bip65Height
}

// IsBIP66Active reports whether strict DER signature encoding is
// consensus-enforced at the given height.
func (l *Ladder) IsBIP66Active(height int32) bool {
	return height >= l.bip66Height
}

// IsCSVActive reports whether OP_CHECKSEQUENCEVERIFY and relative
// lock-times (BIP-68/112/113) are consensus-enforced at the given height.
func (l *Ladder) IsCSVActive(height int32) bool {
	return height >= l.csvHeight
}

// IsUAHFActive reports whether the August 2017 UAHF (Cash) fork is active:
// the legacy 1 MB block-size cap is lifted and SIGHASH_FORKID becomes
// mandatory.
func (l *Ladder) IsUAHFActive(height int32) bool {
	return height >= l.uahfHeight
}

// IsCashActive is an alias for IsUAHFActive -- "Cash is active" in the
// difficulty ladder means the UAHF fork height has been reached.
func (l *Ladder) IsCashActive(height int32) bool {
	return l.IsUAHFActive(height)
}

// IsDAAActive reports whether the cw-144 difficulty adjustment algorithm
// has replaced the earlier EDA.
func (l *Ladder) IsDAAActive(height int32) bool {
	return height >= l.daaHeight
}
