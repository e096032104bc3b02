// Package chainstore implements ChainStore: persistent, append-only
// storage for accepted blocks, indexed by height and by hash.
package chainstore

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bchsuite/bchd/chaincfg/chainhash"
	"github.com/bchsuite/bchd/wire"
)

// MaxBlocksPerFile bounds how many blocks a single flat file holds before a
// new file is opened.
const MaxBlocksPerFile = 100

// headerSlotSize is the on-disk size of one header-index record: a 32-byte
// hash, an 8-byte data offset, and a 4-byte length.
const headerSlotSize = 32 + 8 + 4

// headerRegionSize is the fixed size of the header index reserved at the
// front of every file, regardless of how many slots are actually filled,
// so the data region always begins at the same offset.
const headerRegionSize = 4 + MaxBlocksPerFile*headerSlotSize

// slotRecord is one entry of a file's header index.
type slotRecord struct {
	hash   chainhash.Hash
	offset int64
	length uint32
}

// blockFile is one fixed-capacity flat file: a header index followed by
// the raw serialized blocks it indexes, in height order.  A locking
// discipline per file serialises concurrent access.
type blockFile struct {
	mu sync.RWMutex

	id   uint32
	path string

	f      *os.File
	slots  []slotRecord
	dataSz int64 // bytes written in the data region so far
}

func fileName(dir string, id uint32) string {
	return filepath.Join(dir, fmt.Sprintf("blk%08x.dat", id))
}

// openBlockFile opens (creating if necessary) the flat file for id and
// loads its header index into memory.
func openBlockFile(dir string, id uint32) (*blockFile, error) {
	path := fileName(dir, id)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}

	bf := &blockFile{id: id, path: path, f: f}
	if err := bf.loadHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return bf, nil
}

// loadHeader reads the header index region, sizing the in-memory slot list
// from the leading count field, and derives dataSz from the sum of slot
// lengths so appends know where to resume writing.
func (bf *blockFile) loadHeader() error {
	info, err := bf.f.Stat()
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		// Brand new file: reserve the header region up front so data
		// offsets are stable even before any block is appended.
		if err := bf.f.Truncate(headerRegionSize); err != nil {
			return err
		}
		bf.slots = nil
		bf.dataSz = 0
		return nil
	}

	r := bufio.NewReader(bf.f)
	var countBuf [4]byte
	if _, err := bf.f.ReadAt(countBuf[:], 0); err != nil {
		return err
	}
	count := binary.LittleEndian.Uint32(countBuf[:])

	bf.slots = make([]slotRecord, 0, count)
	buf := make([]byte, headerSlotSize)
	for i := uint32(0); i < count; i++ {
		off := int64(4) + int64(i)*headerSlotSize
		if _, err := bf.f.ReadAt(buf, off); err != nil {
			return err
		}
		var rec slotRecord
		copy(rec.hash[:], buf[:32])
		rec.offset = int64(binary.LittleEndian.Uint64(buf[32:40]))
		rec.length = binary.LittleEndian.Uint32(buf[40:44])
		bf.slots = append(bf.slots, rec)
		if end := rec.offset + int64(rec.length); end > bf.dataSz {
			bf.dataSz = end
		}
	}
	_ = r
	return nil
}

// append writes block at the next free data offset and records a new
// header slot for it, returning the block's byte offset from the start of
// the file (which lies past the header region).
func (bf *blockFile) append(hash chainhash.Hash, raw []byte) (int64, error) {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	if len(bf.slots) >= MaxBlocksPerFile {
		return 0, fmt.Errorf("chainstore: file %08x is full", bf.id)
	}

	dataOffset := headerRegionSize + bf.dataSz
	if _, err := bf.f.WriteAt(raw, dataOffset); err != nil {
		return 0, err
	}

	rec := slotRecord{hash: hash, offset: bf.dataSz, length: uint32(len(raw))}
	bf.slots = append(bf.slots, rec)
	bf.dataSz += int64(len(raw))

	if err := bf.writeSlot(len(bf.slots)-1, rec); err != nil {
		return 0, err
	}
	if err := bf.writeCount(uint32(len(bf.slots))); err != nil {
		return 0, err
	}
	return dataOffset, nil
}

func (bf *blockFile) writeSlot(idx int, rec slotRecord) error {
	buf := make([]byte, headerSlotSize)
	copy(buf[:32], rec.hash[:])
	binary.LittleEndian.PutUint64(buf[32:40], uint64(rec.offset))
	binary.LittleEndian.PutUint32(buf[40:44], rec.length)

	off := int64(4) + int64(idx)*headerSlotSize
	_, err := bf.f.WriteAt(buf, off)
	return err
}

func (bf *blockFile) writeCount(count uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], count)
	_, err := bf.f.WriteAt(buf[:], 0)
	return err
}

// readAt returns the serialized block at the given slot index.
func (bf *blockFile) readAt(idx int) ([]byte, chainhash.Hash, error) {
	bf.mu.RLock()
	defer bf.mu.RUnlock()

	if idx < 0 || idx >= len(bf.slots) {
		return nil, chainhash.Hash{}, fmt.Errorf(
			"chainstore: slot %d out of range in file %08x", idx, bf.id)
	}
	rec := bf.slots[idx]
	raw := make([]byte, rec.length)
	dataOffset := headerRegionSize + rec.offset
	if _, err := bf.f.ReadAt(raw, dataOffset); err != nil {
		return nil, chainhash.Hash{}, err
	}
	return raw, rec.hash, nil
}

// truncateToCount drops every slot at index ≥ keep, rewriting the count
// and reclaiming the data region.  It does not shrink the file on disk
// beyond the header, it simply allows the next append to overwrite the
// truncated tail.
func (bf *blockFile) truncateToCount(keep int) error {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	if keep >= len(bf.slots) {
		return nil
	}
	bf.slots = bf.slots[:keep]

	bf.dataSz = 0
	for _, rec := range bf.slots {
		if end := rec.offset + int64(rec.length); end > bf.dataSz {
			bf.dataSz = end
		}
	}
	return bf.writeCount(uint32(keep))
}

func (bf *blockFile) numBlocks() int {
	bf.mu.RLock()
	defer bf.mu.RUnlock()
	return len(bf.slots)
}

func (bf *blockFile) hashes() []chainhash.Hash {
	bf.mu.RLock()
	defer bf.mu.RUnlock()
	out := make([]chainhash.Hash, len(bf.slots))
	for i, rec := range bf.slots {
		out[i] = rec.hash
	}
	return out
}

func (bf *blockFile) close() error {
	return bf.f.Close()
}

func decodeBlock(raw []byte) (*wire.MsgBlock, error) {
	return wire.BlockFromBytes(raw)
}

func encodeBlock(b *wire.MsgBlock) ([]byte, error) {
	return b.ToBytes()
}
