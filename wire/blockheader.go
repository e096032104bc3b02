package wire

import (
	"bytes"
	"io"
	"time"

	"github.com/bchsuite/bchd/chaincfg/chainhash"
)

// BlockHeaderLen is the number of bytes in the bit-exact wire encoding of a
// BlockHeader: 4 (version) + 32 (prev) + 32 (merkle) + 4 (time) + 4 (bits)
// + 4 (nonce).
const BlockHeaderLen = 80

// BlockHeader defines information about a block and is used in the bitcoin
// block (MsgBlock) message.
type BlockHeader struct {
	// Version of the block.  This is not the same as the protocol
	// version.
	Version int32

	// PrevBlock is the hash of the previous block header in the block
	// chain.
	PrevBlock chainhash.Hash

	// MerkleRoot is the merkle tree reference to the hash of all
	// transactions for the block.
	MerkleRoot chainhash.Hash

	// Timestamp is the time the block was created.  Encoded on the wire
	// as a uint32 and therefore limited to representing times through
	// the year 2106.
	Timestamp time.Time

	// Bits is the difficulty target for the block, compact-encoded.
	Bits uint32

	// Nonce used to generate the block.
	Nonce uint32
}

// BlockHash computes the block identifier hash for the given block header.
func (h *BlockHeader) BlockHash() chainhash.Hash {
	buf := bytes.NewBuffer(make([]byte, 0, BlockHeaderLen))
	_ = writeBlockHeader(buf, h)
	return chainhash.DoubleHashH(buf.Bytes())
}

// Deserialize decodes a block header from r into the receiver using the
// bit-exact wire format the network uses.
func (h *BlockHeader) Deserialize(r io.Reader) error {
	return readBlockHeader(r, h)
}

// Serialize encodes a block header to w using the bit-exact wire format.
func (h *BlockHeader) Serialize(w io.Writer) error {
	return writeBlockHeader(w, h)
}

// NewBlockHeader returns a new BlockHeader using the provided version,
// previous block hash, merkle root hash, difficulty bits, and nonce used to
// generate the block with defaults for the remaining fields.
func NewBlockHeader(version int32, prevHash, merkleRootHash *chainhash.Hash,
	bits uint32, nonce uint32) *BlockHeader {

	return &BlockHeader{
		Version:    version,
		PrevBlock:  *prevHash,
		MerkleRoot: *merkleRootHash,
		Timestamp:  time.Unix(time.Now().Unix(), 0),
		Bits:       bits,
		Nonce:      nonce,
	}
}

func readBlockHeader(r io.Reader, h *BlockHeader) error {
	version, err := binarySerializer.Uint32(r)
	if err != nil {
		return err
	}
	h.Version = int32(version)

	if err := readHash(r, &h.PrevBlock); err != nil {
		return err
	}
	if err := readHash(r, &h.MerkleRoot); err != nil {
		return err
	}

	sec, err := binarySerializer.Uint32(r)
	if err != nil {
		return err
	}
	h.Timestamp = time.Unix(int64(sec), 0)

	h.Bits, err = binarySerializer.Uint32(r)
	if err != nil {
		return err
	}
	h.Nonce, err = binarySerializer.Uint32(r)
	if err != nil {
		return err
	}
	return nil
}

func writeBlockHeader(w io.Writer, h *BlockHeader) error {
	if err := binarySerializer.PutUint32(w, uint32(h.Version)); err != nil {
		return err
	}
	if err := writeHash(w, &h.PrevBlock); err != nil {
		return err
	}
	if err := writeHash(w, &h.MerkleRoot); err != nil {
		return err
	}
	if err := binarySerializer.PutUint32(w, uint32(h.Timestamp.Unix())); err != nil {
		return err
	}
	if err := binarySerializer.PutUint32(w, h.Bits); err != nil {
		return err
	}
	return binarySerializer.PutUint32(w, h.Nonce)
}
