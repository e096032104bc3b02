package blockchain

import (
	"math/big"
	"time"

	"github.com/bchsuite/bchd/chaincfg/chainhash"
	"github.com/bchsuite/bchd/wire"
)

// SubmitResult is the outcome of submitting a candidate header or block to
// the chain manager.
type SubmitResult int

const (
	AcceptedOnMain SubmitResult = iota
	AcceptedOnBranch
	Duplicate
	BlackListed
	Orphan
	Invalid
)

func (r SubmitResult) String() string {
	switch r {
	case AcceptedOnMain:
		return "AcceptedOnMain"
	case AcceptedOnBranch:
		return "AcceptedOnBranch"
	case Duplicate:
		return "Duplicate"
	case BlackListed:
		return "BlackListed"
	case Orphan:
		return "Orphan"
	case Invalid:
		return "Invalid"
	default:
		return "Unknown"
	}
}

// defaultRequestTimeout is how long a block download request is honored
// before the block becomes eligible for re-request.
const defaultRequestTimeout = 360 * time.Second

// pendingEntry is one member of the main pending queue or a branch's
// pending list: a header that has arrived, optionally with its full body.
type pendingEntry struct {
	hash   chainhash.Hash
	header wire.BlockHeader
	block  *wire.MsgBlock

	requestedTime  time.Time
	requestingNode uint64
	requested      bool
}

func newPendingEntry(header wire.BlockHeader) *pendingEntry {
	return &pendingEntry{hash: header.BlockHash(), header: header}
}

func (e *pendingEntry) hasBody() bool {
	return e.block != nil
}

// eligibleForRequest reports whether a download client may now be asked
// for this entry's body: never requested, or the prior request has timed
// out.
func (e *pendingEntry) eligibleForRequest(now time.Time) bool {
	if e.hasBody() {
		return false
	}
	if !e.requested {
		return true
	}
	return now.Sub(e.requestedTime) >= defaultRequestTimeout
}

// branch tracks a competing sequence of pending blocks forked away from
// the active chain.
type branch struct {
	forkHeight      int32
	forkHash        chainhash.Hash
	pending         []*pendingEntry
	accumulatedWork *big.Int
}

func newBranch(forkHeight int32, forkHash chainhash.Hash, forkWork *big.Int) *branch {
	return &branch{
		forkHeight:      forkHeight,
		forkHash:        forkHash,
		accumulatedWork: new(big.Int).Set(forkWork),
	}
}

func (b *branch) tipHash() chainhash.Hash {
	if len(b.pending) == 0 {
		return b.forkHash
	}
	return b.pending[len(b.pending)-1].hash
}

func (b *branch) addWork(work *big.Int) {
	b.accumulatedWork = new(big.Int).Add(b.accumulatedWork, work)
}
