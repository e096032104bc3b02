package blockchain

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"

	"github.com/bchsuite/bchd/chaincfg"
	"github.com/bchsuite/bchd/chaincfg/chainhash"
	"github.com/bchsuite/bchd/chainstore"
	"github.com/bchsuite/bchd/difficulty"
	"github.com/bchsuite/bchd/forks"
	"github.com/bchsuite/bchd/txscript"
	"github.com/bchsuite/bchd/utxo"
	"github.com/bchsuite/bchd/wire"
)

// abandonDepth is how far below the active tip a branch must fall, with
// insufficient accumulated work, before it is dropped.
const abandonDepth = 144

// legacyMaxBlockSize and cashMaxBlockSize bound the serialized size of a
// candidate block before and after the UAHF fork lifts the original 1 MB
// cap.
const (
	legacyMaxBlockSize = 1000000
	cashMaxBlockSize   = 32 * 1000000
)

// blockStatsWindow is the capacity given to BlockStats: enough to cover the
// legacy 2016-block retarget window with margin for the abandon depth and
// the DAA's own lookback.
const blockStatsWindow = 3000

// utxoFlushInterval is how many connected blocks pass between automatic
// UtxoStore flushes to disk.
const utxoFlushInterval = 1000

// Config bundles everything a ChainManager needs to open its subordinate
// components.
type Config struct {
	Params *chaincfg.Params

	ChainDir string
	UtxoDir  string

	SigCacheSize    uint
	UtxoHotCacheSize int
}

// ChainManager is the active head and its branches: it drives ingestion of
// candidate headers/blocks, reorganisation, and the apply/revert of blocks
// against ChainStore, UtxoStore, and BlockStats.
//
// Shared-resource policy: no component mutates UtxoStore, ChainStore,
// BlockStats, or the fork ladder outside mu -- every exported method that
// touches them takes it for the duration of the call (Subscribe, which only
// registers a callback on the notification bus, does not).
type ChainManager struct {
	params *chaincfg.Params
	ladder *forks.Ladder

	sigCache   *txscript.SigCache
	chainStore *chainstore.Store
	utxos      *utxo.Store
	stats      *difficulty.BlockStats
	diffEngine *difficulty.Engine

	mu    sync.Mutex
	index *blockIndex
	view  *chainView

	mainPending []*pendingEntry
	branches    []*branch
	blacklist   map[chainhash.Hash]struct{}

	notifications notificationBus
}

// New opens (or creates) a ChainManager over the given directories,
// replaying ChainStore's existing blocks to rebuild BlockStats, the block
// index, and the active chain view, and bootstrapping the genesis block if
// the store is empty.
func New(cfg Config) (*ChainManager, error) {
	if cfg.Params == nil {
		return nil, fmt.Errorf("blockchain: Config.Params is required")
	}

	cs, err := chainstore.Open(cfg.ChainDir)
	if err != nil {
		return nil, fmt.Errorf("blockchain: opening chain store: %w", err)
	}

	us, err := utxo.New(utxo.Config{Dir: cfg.UtxoDir, HotCacheSize: cfg.UtxoHotCacheSize})
	if err != nil {
		return nil, fmt.Errorf("blockchain: opening utxo store: %w", err)
	}

	sigCacheSize := cfg.SigCacheSize
	if sigCacheSize == 0 {
		sigCacheSize = 100000
	}

	m := &ChainManager{
		params: cfg.Params,
		ladder: forks.New(cfg.Params.BIP34Height, cfg.Params.BIP65Height,
			cfg.Params.BIP66Height, cfg.Params.CSVHeight,
			cfg.Params.UAHFHeight, cfg.Params.DAAHeight),
		sigCache:   txscript.NewSigCache(sigCacheSize),
		chainStore: cs,
		utxos:      us,
		stats:      difficulty.New(blockStatsWindow),
		index:      newBlockIndex(),
		blacklist:  make(map[chainhash.Hash]struct{}),
	}
	m.diffEngine = difficulty.NewEngine(m.stats, difficulty.Config{
		PowLimit:             cfg.Params.PowLimit,
		PowLimitBits:         cfg.Params.PowLimitBits,
		CashActive:           m.ladder.IsCashActive,
		ReduceMinDifficulty:  cfg.Params.ReduceMinDifficulty,
		MinDiffReductionTime: int64(cfg.Params.MinDiffReductionTime.Seconds()),
		TargetTimePerBlock:   int64(cfg.Params.TargetTimePerBlock.Seconds()),
	})

	if err := m.bootstrap(); err != nil {
		return nil, err
	}
	return m, nil
}

// bootstrap rebuilds in-memory state from ChainStore (or writes the
// genesis block if the store is empty), then reconciles the UtxoStore's
// persisted height against it -- replaying ChainStore's own blocks to
// rebuild any suffix the UtxoStore's last flush did not reach, since a
// flush only happens every utxoFlushInterval blocks (or on an explicit
// Flush) while ChainStore itself persists every block immediately.
func (m *ChainManager) bootstrap() error {
	storeHeight := m.chainStore.Height()

	if storeHeight < 0 {
		genesis := toWireHeader(m.params.GenesisHeader)
		block := &wire.MsgBlock{Header: genesis}
		if _, _, err := m.chainStore.Append(block); err != nil {
			return fmt.Errorf("blockchain: writing genesis block: %w", err)
		}
		storeHeight = 0
	}

	if err := m.utxos.Load(storeHeight); err != nil {
		return fmt.Errorf("blockchain: loading utxo store: %w", err)
	}
	utxoHeight := m.utxos.Height()
	if utxoHeight < storeHeight {
		log.Infof("UTXO set at height %d trails the chain store at height %d; "+
			"replaying the difference", utxoHeight, storeHeight)
	}

	var parent *blockNode
	for h := int32(0); h <= storeHeight; h++ {
		blk, err := m.chainStore.ReadByHeight(h)
		if err != nil {
			return fmt.Errorf("blockchain: replaying height %d: %w", h, err)
		}

		if h > 0 && h > utxoHeight {
			if err := m.validateBlock(blk, parent, h); err != nil {
				m.utxos.Revert()
				return fmt.Errorf("blockchain: rebuilding utxo set at height %d: %w", h, err)
			}
			if err := m.utxos.Commit(); err != nil {
				return fmt.Errorf("blockchain: committing rebuilt utxo set at height %d: %w", h, err)
			}
		}

		work := workForHeader(blk.Header.Bits)
		accum := new(big.Int).Set(work)
		if parent != nil {
			accum.Add(accum, parent.workSum)
		}
		node := newBlockNode(&blk.Header, parent, accum)
		m.index.addNode(node)
		m.stats.Append(h, blk.Header.Version, blk.Header.Timestamp.Unix(), blk.Header.Bits)
		parent = node
	}
	m.view = newChainView(parent)

	if utxoHeight < storeHeight {
		if err := m.utxos.Persist(); err != nil {
			return fmt.Errorf("blockchain: flushing rebuilt utxo set: %w", err)
		}
	}

	log.Infof("Chain manager bootstrapped at height %d", storeHeight)
	return nil
}

// Flush persists the UTXO set to disk immediately, beyond the periodic
// flush connectBlock performs automatically every utxoFlushInterval
// blocks. Callers should invoke this before a graceful shutdown.
func (m *ChainManager) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.utxos.Persist()
}

func toWireHeader(h chaincfg.BlockHeader) wire.BlockHeader {
	return wire.BlockHeader{
		Version:    h.Version,
		PrevBlock:  h.PrevBlock,
		MerkleRoot: h.MerkleRoot,
		Timestamp:  h.Timestamp,
		Bits:       h.Bits,
		Nonce:      h.Nonce,
	}
}

// Subscribe registers cb to receive future block notifications.
func (m *ChainManager) Subscribe(cb NotificationCallback) {
	m.notifications.Subscribe(cb)
}

// TipHash returns the hash of the current active tip.
func (m *ChainManager) TipHash() chainhash.Hash {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tip := m.view.tip(); tip != nil {
		return tip.hash
	}
	return chainhash.Hash{}
}

// Height returns the height of the current active tip, or -1 if the chain
// has not been bootstrapped.
func (m *ChainManager) Height() int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tip := m.view.tip(); tip != nil {
		return tip.height
	}
	return -1
}

// GetHeader returns the header for hash, whether committed, pending, or on
// a branch.
func (m *ChainManager) GetHeader(hash chainhash.Hash) (wire.BlockHeader, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := m.index.lookupNode(hash); n != nil {
		return n.header(), true
	}
	if e := m.findPendingEntry(hash); e != nil {
		return e.header, true
	}
	return wire.BlockHeader{}, false
}

// GetBlock returns the full block for hash from ChainStore or, failing
// that, from a pending entry that already has a body.
func (m *ChainManager) GetBlock(hash chainhash.Hash) (*wire.MsgBlock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if blk, err := m.chainStore.ReadByHash(hash); err == nil {
		return blk, nil
	}
	if e := m.findPendingEntry(hash); e != nil && e.hasBody() {
		return e.block, nil
	}
	return nil, fmt.Errorf("blockchain: block %s not found", hash)
}

// GetBlockHashes returns up to count active-chain hashes starting at
// height start.
func (m *ChainManager) GetBlockHashes(start int32, count int) []chainhash.Hash {
	m.mu.Lock()
	defer m.mu.Unlock()
	var hashes []chainhash.Hash
	for h := start; h < start+int32(count); h++ {
		n := m.view.nodeByHeight(h)
		if n == nil {
			break
		}
		hashes = append(hashes, n.hash)
	}
	return hashes
}

// GetReverseBlockHashes returns up to count active-chain hashes walking
// back from the tip, skipping ~100 blocks between samples.
func (m *ChainManager) GetReverseBlockHashes(count int) []chainhash.Hash {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view.reverseHashes(count)
}

// BlockLocator builds a locator for the active chain's tip.
func (m *ChainManager) BlockLocator() BlockLocator {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view.blockLocator(nil)
}

// SubmitHeader runs the pending-queue arrival algorithm for a header
// alone, with no associated block body yet.
func (m *ChainManager) SubmitHeader(header wire.BlockHeader) SubmitResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	hash := header.BlockHash()
	if _, ok := m.blacklist[hash]; ok {
		return BlackListed
	}
	if m.haveHash(hash) {
		return Duplicate
	}
	result, _ := m.acceptHeader(header)
	return result
}

// SubmitBlock runs the pending-queue arrival algorithm for a full block,
// filling in a header-only slot or connecting it directly.
func (m *ChainManager) SubmitBlock(block *wire.MsgBlock) SubmitResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	header := block.Header
	hash := header.BlockHash()
	if _, ok := m.blacklist[hash]; ok {
		return BlackListed
	}

	// Step 3 of the arrival algorithm: fill a header-only slot.
	if entry := m.findPendingEntry(hash); entry != nil {
		if entry.hasBody() {
			return Duplicate
		}
		entry.block = block
		m.processPending()
		if _, ok := m.blacklist[hash]; ok {
			return Invalid
		}
		return m.locate(hash)
	}

	if m.index.haveBlock(hash) {
		return Duplicate
	}

	result, entry := m.acceptHeader(header)
	if entry == nil {
		return result
	}
	entry.block = block
	if result == AcceptedOnMain {
		m.processPending()
		if _, ok := m.blacklist[hash]; ok {
			return Invalid
		}
	}
	return result
}

// locate reports whether hash now sits on the active chain or a branch,
// used to translate a filled-in pending entry's outcome after processing.
func (m *ChainManager) locate(hash chainhash.Hash) SubmitResult {
	if m.index.haveBlock(hash) {
		return AcceptedOnMain
	}
	for _, b := range m.branches {
		for _, e := range b.pending {
			if e.hash == hash {
				return AcceptedOnBranch
			}
		}
	}
	return AcceptedOnMain
}

// haveHash reports whether hash is already known: on the active chain, in
// main pending, or on a branch.
func (m *ChainManager) haveHash(hash chainhash.Hash) bool {
	if m.index.haveBlock(hash) {
		return true
	}
	return m.findPendingEntry(hash) != nil
}

func (m *ChainManager) findPendingEntry(hash chainhash.Hash) *pendingEntry {
	for _, e := range m.mainPending {
		if e.hash == hash {
			return e
		}
	}
	for _, b := range m.branches {
		for _, e := range b.pending {
			if e.hash == hash {
				return e
			}
		}
	}
	return nil
}

// acceptHeader runs the seven-step pending-queue arrival algorithm for a
// header whose hash is already known not to be a duplicate.
// The caller must hold m.mu.
func (m *ChainManager) acceptHeader(header wire.BlockHeader) (SubmitResult, *pendingEntry) {
	tip := m.view.tip()
	var tipHash chainhash.Hash
	var tipHeight int32 = -1
	if tip != nil {
		tipHash = tip.hash
		tipHeight = tip.height
	}

	// Step 1: append to main pending.
	lastMainHash := tipHash
	if n := len(m.mainPending); n > 0 {
		lastMainHash = m.mainPending[n-1].hash
	}
	if header.PrevBlock == lastMainHash {
		entry := newPendingEntry(header)
		m.mainPending = append(m.mainPending, entry)
		return AcceptedOnMain, entry
	}

	// Step 4: start a new branch rooted below the tail of main pending.
	for i, e := range m.mainPending {
		if e.hash != header.PrevBlock {
			continue
		}
		forkHeight := tipHeight + 1 + int32(i)
		entry := newPendingEntry(header)
		br := newBranch(forkHeight, e.hash, m.workAtHeight(forkHeight))
		br.pending = append(br.pending, entry)
		br.addWork(workForHeader(header.Bits))
		m.branches = append(m.branches, br)
		log.Debugf("New branch forked below the pending tail at height %d", forkHeight)
		return AcceptedOnBranch, entry
	}

	// Step 5: extend an existing branch tip.
	for _, b := range m.branches {
		if b.tipHash() != header.PrevBlock {
			continue
		}
		entry := newPendingEntry(header)
		b.pending = append(b.pending, entry)
		b.addWork(workForHeader(header.Bits))
		return AcceptedOnBranch, entry
	}

	// Step 6: start a new branch from the last 100 active hashes.
	if height, ok := m.activeHeightOfHash(header.PrevBlock, 100); ok {
		entry := newPendingEntry(header)
		br := newBranch(height, header.PrevBlock, m.workAtHeight(height))
		br.pending = append(br.pending, entry)
		br.addWork(workForHeader(header.Bits))
		m.branches = append(m.branches, br)
		log.Debugf("New branch forked from active chain at height %d", height)
		return AcceptedOnBranch, entry
	}

	// Step 7: unknown parent.
	return Orphan, nil
}

func (m *ChainManager) workAtHeight(height int32) *big.Int {
	if w, ok := m.stats.AccumulatedWork(height); ok {
		return new(big.Int).Set(w)
	}
	return new(big.Int)
}

func (m *ChainManager) activeHeightOfHash(hash chainhash.Hash, lastN int32) (int32, bool) {
	tip := m.view.tip()
	if tip == nil {
		return 0, false
	}
	minHeight := tip.height - lastN + 1
	if minHeight < 0 {
		minHeight = 0
	}
	for h := tip.height; h >= minHeight; h-- {
		if n := m.view.nodeByHeight(h); n != nil && n.hash == hash {
			return h, true
		}
	}
	return 0, false
}

// NextBlocksNeeded drives block download: up to n hashes of headers whose
// body has not yet arrived.  reduceOnly suppresses first-time requests,
// returning only bodies that are eligible for re-request.
func (m *ChainManager) NextBlocksNeeded(n int, reduceOnly bool) []chainhash.Hash {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var out []chainhash.Hash

	collect := func(e *pendingEntry) bool {
		if len(out) >= n {
			return false
		}
		if !e.eligibleForRequest(now) {
			return true
		}
		if reduceOnly && !e.requested {
			return true
		}
		out = append(out, e.hash)
		return true
	}

	for _, e := range m.mainPending {
		if !collect(e) {
			return out
		}
	}
	for _, b := range m.branches {
		for _, e := range b.pending {
			if !collect(e) {
				return out
			}
		}
	}
	return out
}

// MarkBlocksRequested records that nodeId has been asked for the given
// hashes as of now.
func (m *ChainManager) MarkBlocksRequested(hashes []chainhash.Hash, nodeId uint64, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range hashes {
		if e := m.findPendingEntry(h); e != nil {
			e.requested = true
			e.requestingNode = nodeId
			e.requestedTime = now
		}
	}
}

// ReleaseBlocksForNode makes every body-less entry nodeId was holding
// immediately eligible for re-request.
func (m *ChainManager) ReleaseBlocksForNode(nodeId uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	release := func(e *pendingEntry) {
		if e.requestingNode == nodeId && !e.hasBody() {
			e.requested = false
		}
	}
	for _, e := range m.mainPending {
		release(e)
	}
	for _, b := range m.branches {
		for _, e := range b.pending {
			release(e)
		}
	}
}

// BlocksNeeded reports whether any known header is still missing its body.
func (m *ChainManager) BlocksNeeded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.mainPending {
		if !e.hasBody() {
			return true
		}
	}
	for _, b := range m.branches {
		for _, e := range b.pending {
			if !e.hasBody() {
				return true
			}
		}
	}
	return false
}

// HeadersNeeded reports whether the manager has any pending tip (main or
// branch) that peers should be asked to extend with more headers.
func (m *ChainManager) HeadersNeeded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.mainPending) > 0 || len(m.branches) > 0
}

// processPending advances the active chain by validating and connecting as
// many leading full blocks from mainPending as succeed, then re-evaluates
// branch policy.  A branch activation replaces mainPending with the
// newly-active branch's own entries, so this keeps alternating drain and
// evaluate passes until a pass settles (no activation).  The caller must
// hold m.mu.
func (m *ChainManager) processPending() {
	for {
		m.drainMainPending()
		if !m.evaluateBranches() {
			return
		}
	}
}

// drainMainPending connects leading entries of mainPending for as long as
// they have bodies, stopping at the first missing body or validation
// failure.  The caller must hold m.mu.
func (m *ChainManager) drainMainPending() {
	for len(m.mainPending) > 0 {
		head := m.mainPending[0]
		if !head.hasBody() {
			return
		}
		if err := m.connectBlock(head); err != nil {
			log.Warnf("Rejecting block %s: %v", head.hash, err)
			log.Debugf("Rejected block detail: %v", newLogClosure(func() string {
				return spew.Sdump(head.header)
			}))
			m.blacklist[head.hash] = struct{}{}
			m.mainPending = nil
			return
		}
		m.mainPending = m.mainPending[1:]
	}
}

// connectBlock validates entry.block against the current tip and, on
// success, commits it to every subordinate component and advances the
// active chain view.
func (m *ChainManager) connectBlock(entry *pendingEntry) error {
	parent := m.view.tip()
	height := nodeHeight(parent)

	maxSize := legacyMaxBlockSize
	if m.ladder.IsUAHFActive(height) {
		maxSize = cashMaxBlockSize
	}
	if entry.block.SerializeSize() > maxSize {
		return ruleError(ErrBlockTooBig, "block exceeds the maximum permitted size")
	}

	if err := m.validateBlock(entry.block, parent, height); err != nil {
		m.utxos.Revert()
		return err
	}
	if err := m.utxos.Commit(); err != nil {
		return err
	}

	work := workForHeader(entry.header.Bits)
	accum := new(big.Int).Set(work)
	if parent != nil {
		accum.Add(accum, parent.workSum)
	}
	node := newBlockNode(&entry.header, parent, accum)

	m.stats.Append(height, entry.header.Version, entry.header.Timestamp.Unix(), entry.header.Bits)
	if _, _, err := m.chainStore.Append(entry.block); err != nil {
		return fmt.Errorf("blockchain: appending block to chain store: %w", err)
	}
	m.index.addNode(node)
	m.view.SetTip(node)

	if height%utxoFlushInterval == 0 {
		if err := m.utxos.Persist(); err != nil {
			log.Warnf("Flushing utxo set at height %d: %v", height, err)
		}
	}

	log.Debugf("Connected block %s at height %d (%d tx)",
		node.hash, height, len(entry.block.Transactions))

	m.notifications.send(NTBlockAccepted, entry.block)
	m.notifications.send(NTBlockConnected, entry.block)
	return nil
}

// evaluateBranches abandons branches that have fallen too far behind
// without enough work, and activates the branch with the most work if it
// exceeds the main chain's own.  It reports whether a branch was activated,
// so the caller knows to re-drain the (now replaced) main pending queue.
func (m *ChainManager) evaluateBranches() bool {
	tip := m.view.tip()
	if tip == nil || len(m.branches) == 0 {
		return false
	}

	mainWork := new(big.Int).Set(tip.workSum)
	for _, e := range m.mainPending {
		mainWork.Add(mainWork, workForHeader(e.header.Bits))
	}

	var toActivate *branch
	kept := m.branches[:0]
	for _, b := range m.branches {
		branchTipHeight := b.forkHeight + int32(len(b.pending))
		tooDeep := branchTipHeight < tip.height-abandonDepth
		exceedsMain := b.accumulatedWork.Cmp(mainWork) > 0

		if tooDeep && !exceedsMain {
			log.Debugf("Abandoning branch at fork height %d: %d blocks behind "+
				"the active tip with insufficient work", b.forkHeight, tip.height-branchTipHeight)
			continue
		}
		if !exceedsMain {
			kept = append(kept, b)
			continue
		}
		// b exceeds main: a candidate for activation. Only the single
		// heaviest candidate is pulled out as toActivate; any
		// previously-leading candidate it displaces falls back into
		// kept as an ordinary competing branch.
		if toActivate == nil || b.accumulatedWork.Cmp(toActivate.accumulatedWork) > 0 {
			if toActivate != nil {
				kept = append(kept, toActivate)
			}
			toActivate = b
		} else {
			kept = append(kept, b)
		}
	}
	m.branches = kept

	if toActivate == nil {
		return false
	}
	return m.activateBranch(toActivate)
}

// activateBranch reorganises onto b: it reverts UtxoStore, BlockStats, and
// ChainStore back to the fork height, keeps the demoted chain -- together
// with anything still queued behind its old tip -- as a competing branch,
// and moves b's own pending entries into the main pending queue for normal
// processing. b's entries may not all have bodies yet (b may have been
// built entirely from announced headers); routing them through the main
// pending queue rather than connecting them here means drainMainPending
// simply stops at the first missing body instead of faulting on one, and a
// later failure there falls back onto the demoted chain on the next
// evaluateBranches pass rather than requiring a bespoke abort path.
// The caller must hold m.mu and reports whether the reorg proceeded.
func (m *ChainManager) activateBranch(b *branch) bool {
	tip := m.view.tip()
	if tip == nil {
		return false
	}
	log.Infof("Reorganising chain: fork height %d, old tip %s at height %d, "+
		"new branch carries %d pending block(s)", b.forkHeight, tip.hash, tip.height, len(b.pending))

	// Collect the currently-active blocks above the fork height,
	// height-ascending, for disconnect notifications and so the demoted
	// chain can be preserved as a competing branch below.
	var oldBlocks []*wire.MsgBlock
	for h := tip.height; h > b.forkHeight; h-- {
		blk, err := m.chainStore.ReadByHeight(h)
		if err != nil {
			log.Warnf("Aborting reorganisation: reading block at height %d: %v", h, err)
			return false
		}
		oldBlocks = append(oldBlocks, blk)
	}
	for i, j := 0, len(oldBlocks)-1; i < j; i, j = i+1, j-1 {
		oldBlocks[i], oldBlocks[j] = oldBlocks[j], oldBlocks[i]
	}
	for _, blk := range oldBlocks {
		m.notifications.send(NTBlockDisconnected, blk)
	}

	if err := m.utxos.RevertToHeight(b.forkHeight); err != nil {
		log.Warnf("Aborting reorganisation: reverting utxo set to height %d: %v", b.forkHeight, err)
		return false
	}
	m.stats.RevertToHeight(b.forkHeight)

	if err := m.chainStore.TruncateAboveHeight(b.forkHeight); err != nil {
		log.Warnf("Aborting reorganisation: truncating chain store to height %d: %v", b.forkHeight, err)
		return false
	}
	m.index.removeAbove(b.forkHeight)

	forkNode := m.index.lookupNode(b.forkHash)
	m.view.SetTip(forkNode)

	// Preserve the demoted chain, plus whatever was still queued behind
	// its old tip (those entries extend it, not the newly-active chain),
	// as a competing branch.
	saved := newBranch(b.forkHeight, b.forkHash, m.workAtHeight(b.forkHeight))
	for _, blk := range oldBlocks {
		saved.pending = append(saved.pending, &pendingEntry{
			hash: blk.BlockHash(), header: blk.Header, block: blk,
		})
		saved.addWork(workForHeader(blk.Header.Bits))
	}
	for _, e := range m.mainPending {
		saved.pending = append(saved.pending, e)
		saved.addWork(workForHeader(e.header.Bits))
	}
	m.branches = append(m.branches, saved)

	m.mainPending = b.pending

	log.Infof("Reorganisation pending: new tip %s at height %d, %d block(s) queued to connect",
		forkNode.hash, forkNode.height, len(m.mainPending))
	return true
}
