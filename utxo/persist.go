package utxo

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// numBuckets is the number of on-disk buckets the persistent index is split
// across, one per value of the txid's first byte in internal byte order.
const numBuckets = 256

// diskIndex is the persistent half of the two-tier storage model.  When Dir
// is empty it behaves as a plain in-memory map, which is how unit tests and
// the regression-test network run without touching the filesystem; a
// non-empty Dir additionally flushes to and restores from bucket files on
// persist/load.
type diskIndex struct {
	dir string

	mu      sync.RWMutex
	buckets [numBuckets]map[OutPoint]*Entry
}

func newDiskIndex(dir string) *diskIndex {
	d := &diskIndex{dir: dir}
	for i := range d.buckets {
		d.buckets[i] = make(map[OutPoint]*Entry)
	}
	return d
}

func bucketOf(op OutPoint) int {
	return int(op.Hash[0])
}

func (d *diskIndex) lookup(op OutPoint) (*Entry, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.buckets[bucketOf(op)][op]
	return e, ok
}

func (d *diskIndex) put(op OutPoint, e *Entry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buckets[bucketOf(op)][op] = e
}

func (d *diskIndex) delete(op OutPoint) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.buckets[bucketOf(op)], op)
}

// heightFileName is the small header file recording the store's current
// height, checked on load against the ChainStore's block count.
const heightFileName = "height"

// Persist flushes the store to its configured directory: one
// self-describing file per bucket, plus a height header file.  A Dir of ""
// makes this a no-op, matching the in-memory-only test mode.
func (s *Store) Persist() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.disk.dir == "" {
		return nil
	}
	if err := os.MkdirAll(s.disk.dir, 0o755); err != nil {
		return err
	}

	s.disk.mu.RLock()
	defer s.disk.mu.RUnlock()

	for i, bucket := range s.disk.buckets {
		if err := writeBucketFile(s.disk.dir, i, bucket); err != nil {
			return fmt.Errorf("utxo: persisting bucket %d: %w", i, err)
		}
	}

	heightPath := filepath.Join(s.disk.dir, heightFileName)
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(s.height))
	return os.WriteFile(heightPath, buf[:], 0o644)
}

// Load restores the store from its configured directory.  If the stored
// height exceeds chainHeight (the ChainStore's current block count) the
// store refuses the stale-forward state and instead bulk-reverts by
// discarding every bucket entry whose BlockHeight exceeds chainHeight,
// rewinding to the ChainStore height.
func (s *Store) Load(chainHeight int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disk.dir == "" {
		return nil
	}

	heightPath := filepath.Join(s.disk.dir, heightFileName)
	raw, err := os.ReadFile(heightPath)
	if err != nil {
		if os.IsNotExist(err) {
			s.height = 0
			return nil
		}
		return err
	}
	if len(raw) != 4 {
		return fmt.Errorf("utxo: malformed height header file")
	}
	storedHeight := int32(binary.LittleEndian.Uint32(raw))

	s.disk.mu.Lock()
	defer s.disk.mu.Unlock()

	for i := range s.disk.buckets {
		bucket, err := readBucketFile(s.disk.dir, i)
		if err != nil {
			return fmt.Errorf("utxo: loading bucket %d: %w", i, err)
		}
		s.disk.buckets[i] = bucket
	}

	s.height = storedHeight
	s.hot.Purge()

	if storedHeight > chainHeight {
		log.Warnf("Loaded UTXO set is ahead of the chain store (height %d > %d), "+
			"bulk-reverting", storedHeight, chainHeight)
		s.bulkRevertLocked(chainHeight)
	}
	log.Infof("Loaded UTXO set at height %d", s.height)
	return nil
}

// bulkRevertLocked discards every entry whose producing block height
// exceeds the target, used when a persisted index is ahead of the
// ChainStore it should be consistent with.  Caller holds s.mu and
// s.disk.mu.
func (s *Store) bulkRevertLocked(height int32) {
	for i, bucket := range s.disk.buckets {
		for op, e := range bucket {
			if e.BlockHeight > height {
				delete(s.disk.buckets[i], op)
			}
		}
	}
	s.height = height
	s.undoLog = make(map[int32]*blockDelta)
	s.undoHeight = nil
}

func bucketFilePath(dir string, idx int) string {
	return filepath.Join(dir, fmt.Sprintf("bucket-%03d.dat", idx))
}

// writeBucketFile serialises one bucket as: recordCount(varint) followed by
// that many records of txid(32) || index(4) || amount(8) || blockHeight(4)
// || flags(1) || scriptLen(varint) || script.  The record count at the
// front makes the file self-describing so load can size its read without
// scanning to EOF first.
func writeBucketFile(dir string, idx int, bucket map[OutPoint]*Entry) error {
	path := bucketFilePath(dir, idx)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := writeUvarint(w, uint64(len(bucket))); err != nil {
		return err
	}
	for op, e := range bucket {
		if err := writeRecord(w, op, e); err != nil {
			return err
		}
	}
	return w.Flush()
}

func readBucketFile(dir string, idx int) (map[OutPoint]*Entry, error) {
	path := bucketFilePath(dir, idx)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[OutPoint]*Entry), nil
		}
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	count, err := readUvarint(r)
	if err != nil {
		return nil, err
	}

	bucket := make(map[OutPoint]*Entry, count)
	for i := uint64(0); i < count; i++ {
		op, e, err := readRecord(r)
		if err != nil {
			return nil, err
		}
		bucket[op] = e
	}
	return bucket, nil
}

func writeRecord(w io.Writer, op OutPoint, e *Entry) error {
	if _, err := w.Write(op.Hash[:]); err != nil {
		return err
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], op.Index)
	if _, err := w.Write(buf[:]); err != nil {
		return err
	}

	var buf8 [8]byte
	binary.LittleEndian.PutUint64(buf8[:], uint64(e.Amount))
	if _, err := w.Write(buf8[:]); err != nil {
		return err
	}

	binary.LittleEndian.PutUint32(buf[:], uint32(e.BlockHeight))
	if _, err := w.Write(buf[:]); err != nil {
		return err
	}

	if _, err := w.Write([]byte{byte(e.flags)}); err != nil {
		return err
	}

	if err := writeUvarint(w, uint64(len(e.PkScript))); err != nil {
		return err
	}
	_, err := w.Write(e.PkScript)
	return err
}

func readRecord(r *bufio.Reader) (OutPoint, *Entry, error) {
	var op OutPoint
	if _, err := io.ReadFull(r, op.Hash[:]); err != nil {
		return op, nil, err
	}

	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return op, nil, err
	}
	op.Index = binary.LittleEndian.Uint32(buf[:])

	var buf8 [8]byte
	if _, err := io.ReadFull(r, buf8[:]); err != nil {
		return op, nil, err
	}
	amount := int64(binary.LittleEndian.Uint64(buf8[:]))

	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return op, nil, err
	}
	height := int32(binary.LittleEndian.Uint32(buf[:]))

	var flagByte [1]byte
	if _, err := io.ReadFull(r, flagByte[:]); err != nil {
		return op, nil, err
	}

	scriptLen, err := readUvarint(r)
	if err != nil {
		return op, nil, err
	}
	script := make([]byte, scriptLen)
	if _, err := io.ReadFull(r, script); err != nil {
		return op, nil, err
	}

	return op, &Entry{
		Amount:      amount,
		PkScript:    script,
		BlockHeight: height,
		flags:       txoFlags(flagByte[0]),
	}, nil
}

func writeUvarint(w io.Writer, v uint64) error {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	_, err := w.Write(buf[:n])
	return err
}

func readUvarint(r io.ByteReader) (uint64, error) {
	return binary.ReadUvarint(r)
}
