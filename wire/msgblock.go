package wire

import (
	"bytes"
	"fmt"
	"io"

	"github.com/bchsuite/bchd/chaincfg/chainhash"
)

// maxTxPerBlock is a generous upper bound used only to reject obviously
// malformed transaction counts while decoding; the real per-block limit is
// governed by MsgBlock.SerializeSize against the network's max block size,
// enforced by the blockchain package.
const maxTxPerBlock = MaxMessagePayload / minTxPayload

const minTxPayload = 10

// MsgBlock implements a block: a header plus an
// ordered sequence of transactions, the first of which must be coinbase.
type MsgBlock struct {
	Header       BlockHeader
	Transactions []*MsgTx
}

// AddTransaction adds a transaction to the message.
func (msg *MsgBlock) AddTransaction(tx *MsgTx) {
	msg.Transactions = append(msg.Transactions, tx)
}

// ClearTransactions removes all transactions from the message.
func (msg *MsgBlock) ClearTransactions() {
	msg.Transactions = make([]*MsgTx, 0, 0)
}

// BlockHash computes the block identifier hash for this block.
func (msg *MsgBlock) BlockHash() chainhash.Hash {
	return msg.Header.BlockHash()
}

// SerializeSize returns the number of bytes it would take to serialize the
// block.
func (msg *MsgBlock) SerializeSize() int {
	n := BlockHeaderLen
	n += VarIntSerializeSize(uint64(len(msg.Transactions)))
	for _, tx := range msg.Transactions {
		n += tx.SerializeSize()
	}
	return n
}

// Serialize encodes the block to w using the bit-exact wire format:
// 80-byte header, compact-size tx count, then each
// transaction in its own legacy encoding.
func (msg *MsgBlock) Serialize(w io.Writer) error {
	if err := writeBlockHeader(w, &msg.Header); err != nil {
		return err
	}
	if err := WriteVarInt(w, uint64(len(msg.Transactions))); err != nil {
		return err
	}
	for _, tx := range msg.Transactions {
		if err := tx.Serialize(w); err != nil {
			return err
		}
	}
	return nil
}

// Deserialize decodes a block from r into the receiver.
func (msg *MsgBlock) Deserialize(r io.Reader) error {
	if err := readBlockHeader(r, &msg.Header); err != nil {
		return err
	}

	txCount, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	if txCount > uint64(maxTxPerBlock) {
		return messageError("MsgBlock.Deserialize", fmt.Sprintf(
			"too many transactions to fit into a block "+
				"[count %d, max %d]", txCount, maxTxPerBlock))
	}

	msg.Transactions = make([]*MsgTx, 0, txCount)
	for i := uint64(0); i < txCount; i++ {
		tx := MsgTx{}
		if err := tx.Deserialize(r); err != nil {
			return err
		}
		msg.Transactions = append(msg.Transactions, &tx)
	}

	return nil
}

// BlockFromBytes decodes raw bytes into a MsgBlock, the inverse of
// (*MsgBlock).Serialize applied to bytes.Buffer.
func BlockFromBytes(b []byte) (*MsgBlock, error) {
	block := MsgBlock{}
	if err := block.Deserialize(bytes.NewReader(b)); err != nil {
		return nil, err
	}
	return &block, nil
}

// ToBytes serializes the block into a freshly allocated byte slice.
func (msg *MsgBlock) ToBytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := msg.Serialize(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
