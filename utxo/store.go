package utxo

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CoinbaseMaturity is the number of blocks a coinbase output must sit
// unspent before it may be spent.
const CoinbaseMaturity = 100

// maxUndoDepth bounds how many blocks of undo history the store retains in
// memory, matching the reorg-depth invariant the ChainManager enforces
// (spec I5, 144 blocks) with a small margin.
const maxUndoDepth = 200

// blockDelta accumulates the spend/produce effects of one in-progress block
// before they are committed or discarded.
type blockDelta struct {
	height  int32
	spent   []SpentOutput
	spentOP map[OutPoint]struct{}
	created []OutPoint
}

// Store is the UtxoStore: the set of unspent outputs plus the block-
// granularity commit/revert transaction discipline.
type Store struct {
	mu sync.RWMutex

	hot *lru.Cache[OutPoint, *Entry]

	disk *diskIndex

	height int32

	pending *blockDelta

	// undoLog maps height -> the SpentOutputs removed, and the outpoints
	// created, by that block, so revertToHeight can walk backwards.
	undoLog    map[int32]*blockDelta
	undoHeight []int32
}

// Config configures a new Store.
type Config struct {
	// Dir is the directory persist/load use for the on-disk bucketed
	// index.  An empty Dir keeps the store purely in-memory (used by
	// regression tests).
	Dir string

	// HotCacheSize bounds the number of entries kept in the in-memory
	// hot cache.
	HotCacheSize int
}

// New constructs an empty Store.
func New(cfg Config) (*Store, error) {
	size := cfg.HotCacheSize
	if size <= 0 {
		size = 100000
	}
	cache, err := lru.New[OutPoint, *Entry](size)
	if err != nil {
		return nil, err
	}

	return &Store{
		hot:     cache,
		disk:    newDiskIndex(cfg.Dir),
		undoLog: make(map[int32]*blockDelta),
	}, nil
}

// Height returns the height of the last committed block.
func (s *Store) Height() int32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.height
}

// Lookup returns the unspent output at (txid, outIndex), or ok=false if it
// does not exist or has already been spent.
func (s *Store) Lookup(op OutPoint) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookupLocked(op)
}

func (s *Store) lookupLocked(op OutPoint) (*Entry, bool) {
	if e, ok := s.hot.Get(op); ok {
		if e.IsSpent() {
			return nil, false
		}
		return e, true
	}
	e, ok := s.disk.lookup(op)
	if !ok {
		return nil, false
	}
	s.hot.Add(op, e)
	return e, true
}

// IsSpendable reports whether the output at op can be spent by a
// transaction included in a block at spendHeight -- false if the output
// does not exist, is already spent, or is an immature coinbase output.
func (s *Store) IsSpendable(op OutPoint, spendHeight int32) (*Entry, bool) {
	e, ok := s.Lookup(op)
	if !ok {
		return nil, false
	}
	if e.IsCoinBase() && spendHeight-e.BlockHeight < CoinbaseMaturity {
		return nil, false
	}
	return e, true
}

// BeginBlock opens a new pending transaction for the block at height,
// which must be exactly one greater than the store's current height; a
// store that has committed no block yet also accepts height 0.
func (s *Store) BeginBlock(height int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending != nil {
		return fmt.Errorf("utxo: block %d still pending", s.pending.height)
	}
	first := height == 0 && s.height == 0 && len(s.undoHeight) == 0
	if height != s.height+1 && !first {
		return fmt.Errorf("utxo: BeginBlock height %d does not follow "+
			"current height %d", height, s.height)
	}
	s.pending = &blockDelta{
		height:  height,
		spentOP: make(map[OutPoint]struct{}),
	}
	return nil
}

// Spend marks the referenced output as spent within the pending block
// transaction.  It is an error to spend an output that does not exist or
// is not yet mature.
func (s *Store) Spend(op OutPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return fmt.Errorf("utxo: Spend called with no pending block")
	}

	if _, dup := s.pending.spentOP[op]; dup {
		return fmt.Errorf("utxo: spend of already-spent output %v", op)
	}
	e, ok := s.lookupLocked(op)
	if !ok {
		return fmt.Errorf("utxo: spend of unknown or already-spent "+
			"output %v", op)
	}
	if e.IsCoinBase() && s.pending.height-e.BlockHeight < CoinbaseMaturity {
		return fmt.Errorf("utxo: coinbase output %v spent before "+
			"maturity (produced at %d, spent at %d)", op,
			e.BlockHeight, s.pending.height)
	}

	s.pending.spent = append(s.pending.spent, SpentOutput{
		OutPoint: op,
		Entry:    *e.clone(),
	})
	s.pending.spentOP[op] = struct{}{}
	return nil
}

// Produce adds a newly created output within the pending block
// transaction.
func (s *Store) Produce(op OutPoint, amount int64, pkScript []byte, isCoinBase bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	flags := txoFlags(0)
	if isCoinBase {
		flags |= tfCoinBase
	}
	entry := &Entry{
		Amount:      amount,
		PkScript:    pkScript,
		BlockHeight: s.pending.height,
		flags:       flags,
	}
	s.hot.Add(op, entry)
	s.disk.put(op, entry)
	s.pending.created = append(s.pending.created, op)
}

// Commit applies the pending block transaction's spend/produce effects
// atomically, advancing the store's height.
func (s *Store) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return fmt.Errorf("utxo: Commit called with no pending block")
	}

	for _, spent := range s.pending.spent {
		s.disk.delete(spent.OutPoint)
		s.hot.Remove(spent.OutPoint)
	}

	s.height = s.pending.height
	s.undoLog[s.height] = s.pending
	s.undoHeight = append(s.undoHeight, s.height)
	s.pending = nil

	for len(s.undoHeight) > maxUndoDepth {
		delete(s.undoLog, s.undoHeight[0])
		s.undoHeight = s.undoHeight[1:]
	}
	return nil
}

// Revert discards the pending block transaction without applying it,
// leaving the store's committed state untouched.
func (s *Store) Revert() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return
	}
	for _, op := range s.pending.created {
		s.hot.Remove(op)
		s.disk.delete(op)
	}
	s.pending = nil
}

// RevertToHeight undoes every committed block above the given height,
// restoring spent outputs and removing created ones, using the in-memory
// undo log.  It is an error to ask for a height more than maxUndoDepth
// below the current height.
func (s *Store) RevertToHeight(height int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending != nil {
		return fmt.Errorf("utxo: RevertToHeight called with a block pending")
	}
	if height > s.height {
		return fmt.Errorf("utxo: RevertToHeight %d is above current "+
			"height %d", height, s.height)
	}

	for h := s.height; h > height; h-- {
		delta, ok := s.undoLog[h]
		if !ok {
			return fmt.Errorf("utxo: no undo information retained "+
				"for height %d", h)
		}
		for _, op := range delta.created {
			s.hot.Remove(op)
			s.disk.delete(op)
		}
		for _, spent := range delta.spent {
			entry := spent.Entry
			s.hot.Add(spent.OutPoint, &entry)
			s.disk.put(spent.OutPoint, &entry)
		}
		delete(s.undoLog, h)
	}

	trimmed := s.undoHeight[:0]
	for _, h := range s.undoHeight {
		if h <= height {
			trimmed = append(trimmed, h)
		}
	}
	s.undoHeight = trimmed
	s.height = height
	return nil
}
