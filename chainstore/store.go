package chainstore

import (
	"fmt"
	"sync"

	"github.com/bchsuite/bchd/chaincfg/chainhash"
	"github.com/bchsuite/bchd/wire"
)

// Store is the ChainStore: append-only by height, with revert implemented
// as file truncation.
type Store struct {
	dir string

	filesMu sync.Mutex
	files   map[uint32]*blockFile

	hashIdx *hashIndex

	heightMu sync.RWMutex
	// heights maps height -> location; len(heights)-1 is the current tip
	// height.
	heights []location
}

// Open opens or creates a ChainStore rooted at dir, replaying every
// existing flat file's header index to rebuild the height and hash
// indexes in memory.
func Open(dir string) (*Store, error) {
	s := &Store{
		dir:     dir,
		files:   make(map[uint32]*blockFile),
		hashIdx: newHashIndex(),
	}

	for id := uint32(0); ; id++ {
		path := fileName(dir, id)
		if !fileExists(path) {
			break
		}
		bf, err := openBlockFile(dir, id)
		if err != nil {
			return nil, fmt.Errorf("chainstore: opening file %08x: %w", id, err)
		}
		s.files[id] = bf

		for i, hash := range bf.hashes() {
			height := int32(id)*MaxBlocksPerFile + int32(i)
			loc := location{fileID: id, height: height}
			s.ensureHeightSlot(height)
			s.heights[height] = loc
			s.hashIdx.put(hash, loc)
		}
	}
	log.Infof("Opened chain store %s at height %d", dir, int32(len(s.heights))-1)
	return s, nil
}

func (s *Store) ensureHeightSlot(height int32) {
	for int32(len(s.heights)) <= height {
		s.heights = append(s.heights, location{})
	}
}

// Height returns the height of the most recently appended block, or -1 if
// the store is empty.
func (s *Store) Height() int32 {
	s.heightMu.RLock()
	defer s.heightMu.RUnlock()
	return int32(len(s.heights)) - 1
}

// TipHash returns the hash of the most recently appended block.
func (s *Store) TipHash() (chainhash.Hash, bool) {
	s.heightMu.RLock()
	defer s.heightMu.RUnlock()
	if len(s.heights) == 0 {
		return chainhash.Hash{}, false
	}
	loc := s.heights[len(s.heights)-1]
	block, _, err := s.readLocation(loc)
	if err != nil {
		return chainhash.Hash{}, false
	}
	h := block.BlockHash()
	return h, true
}

func (s *Store) fileFor(id uint32) (*blockFile, error) {
	s.filesMu.Lock()
	defer s.filesMu.Unlock()

	if bf, ok := s.files[id]; ok {
		return bf, nil
	}
	bf, err := openBlockFile(s.dir, id)
	if err != nil {
		return nil, err
	}
	s.files[id] = bf
	return bf, nil
}

// Append writes block as the next block after the store's current tip,
// returning its (fileId, offsetInFile) location.
func (s *Store) Append(block *wire.MsgBlock) (uint32, int64, error) {
	s.heightMu.Lock()
	defer s.heightMu.Unlock()

	height := int32(len(s.heights))
	fileID := uint32(height) / MaxBlocksPerFile

	bf, err := s.fileFor(fileID)
	if err != nil {
		return 0, 0, err
	}

	raw, err := encodeBlock(block)
	if err != nil {
		return 0, 0, err
	}

	hash := block.BlockHash()
	offset, err := bf.append(hash, raw)
	if err != nil {
		return 0, 0, err
	}

	loc := location{fileID: fileID, height: height}
	s.heights = append(s.heights, loc)
	s.hashIdx.put(hash, loc)

	return fileID, offset, nil
}

func (s *Store) readLocation(loc location) (*wire.MsgBlock, chainhash.Hash, error) {
	bf, err := s.fileFor(loc.fileID)
	if err != nil {
		return nil, chainhash.Hash{}, err
	}
	slotIdx := int(loc.height) - int(loc.fileID)*MaxBlocksPerFile
	raw, hash, err := bf.readAt(slotIdx)
	if err != nil {
		return nil, chainhash.Hash{}, err
	}
	block, err := decodeBlock(raw)
	if err != nil {
		return nil, chainhash.Hash{}, err
	}
	return block, hash, nil
}

// ReadByHeight returns the block at the given height.
func (s *Store) ReadByHeight(height int32) (*wire.MsgBlock, error) {
	s.heightMu.RLock()
	if height < 0 || height >= int32(len(s.heights)) {
		s.heightMu.RUnlock()
		return nil, fmt.Errorf("chainstore: height %d out of range", height)
	}
	loc := s.heights[height]
	s.heightMu.RUnlock()

	block, _, err := s.readLocation(loc)
	return block, err
}

// ReadByHash returns the block with the given hash.
func (s *Store) ReadByHash(hash chainhash.Hash) (*wire.MsgBlock, error) {
	loc, ok := s.hashIdx.get(hash)
	if !ok {
		return nil, fmt.Errorf("chainstore: unknown block %s", hash)
	}
	block, _, err := s.readLocation(loc)
	return block, err
}

// ReadHeaders returns up to count headers for heights in [start, stop].
func (s *Store) ReadHeaders(start, stop int32, count int) ([]wire.BlockHeader, error) {
	s.heightMu.RLock()
	tip := int32(len(s.heights)) - 1
	s.heightMu.RUnlock()

	if stop > tip {
		stop = tip
	}
	if start < 0 || start > stop {
		return nil, nil
	}

	headers := make([]wire.BlockHeader, 0, count)
	for h := start; h <= stop && len(headers) < count; h++ {
		block, err := s.ReadByHeight(h)
		if err != nil {
			return nil, err
		}
		headers = append(headers, block.Header)
	}
	return headers, nil
}

// ListHashes returns every block hash stored in the given file, in height
// order.
func (s *Store) ListHashes(fileID uint32) ([]chainhash.Hash, error) {
	bf, err := s.fileFor(fileID)
	if err != nil {
		return nil, err
	}
	return bf.hashes(), nil
}

// TruncateAboveHeight discards every block above the given height,
// removing the corresponding hash-index entries and truncating the
// affected flat files' slot lists.  Implements ChainStore's revert.
func (s *Store) TruncateAboveHeight(height int32) error {
	s.heightMu.Lock()
	defer s.heightMu.Unlock()

	tip := int32(len(s.heights)) - 1
	if height >= tip {
		return nil
	}
	log.Infof("Truncating chain store from height %d to %d", tip, height)

	for h := tip; h > height; h-- {
		loc := s.heights[h]
		block, hash, err := s.readLocation(loc)
		if err != nil {
			return err
		}
		_ = block
		s.hashIdx.delete(hash)
	}

	s.heights = s.heights[:height+1]

	// Truncate each touched file's header index down to how many slots
	// of it remain live.
	lastFileID := uint32(tip) / MaxBlocksPerFile
	keepFileID := uint32(0)
	if height >= 0 {
		keepFileID = uint32(height) / MaxBlocksPerFile
	}
	for id := keepFileID; id <= lastFileID; id++ {
		bf, err := s.fileFor(id)
		if err != nil {
			return err
		}
		keep := bf.numBlocks()
		if id == keepFileID {
			keep = int(height) - int(id)*MaxBlocksPerFile + 1
			if height < int32(id)*MaxBlocksPerFile {
				keep = 0
			}
		} else if id > keepFileID {
			keep = 0
		}
		if err := bf.truncateToCount(keep); err != nil {
			return err
		}
	}
	return nil
}

// Close releases every open flat file handle.
func (s *Store) Close() error {
	s.filesMu.Lock()
	defer s.filesMu.Unlock()
	var firstErr error
	for _, bf := range s.files {
		if err := bf.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
