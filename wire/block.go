package wire

import (
	"bytes"

	"github.com/bchsuite/bchd/chaincfg/chainhash"
)

// Block is a lightweight wrapper around MsgBlock that caches the block's
// hash and its assigned chain height the way btcutil.Block does upstream.
// It is reimplemented locally (rather than importing btcutil.Block)
// because that type wraps btcd's own wire.MsgBlock, a different type from
// the one this module owns — see SPEC_FULL.md "Domain stack" for why.
type Block struct {
	msg           *MsgBlock
	serializedSz  int
	blockHash     *chainhash.Hash
	height        int32
	transactions  []*Tx
	txnsGenerated bool
}

// NewBlock returns a new instance of a block given an underlying MsgBlock.
// See Block.
func NewBlock(msgBlock *MsgBlock) *Block {
	return &Block{
		msg:    msgBlock,
		height: BlockHeightUnknown,
	}
}

// NewBlockFromBytes returns a new instance of a block given the
// serialized bytes.  See Block.
func NewBlockFromBytes(serializedBlock []byte) (*Block, error) {
	br := bytes.NewReader(serializedBlock)
	b, err := NewBlockFromReader(br)
	if err != nil {
		return nil, err
	}
	b.serializedSz = len(serializedBlock)
	return b, nil
}

// NewBlockFromReader returns a new instance of a block given a Reader to
// deserialize the block.
func NewBlockFromReader(r *bytes.Reader) (*Block, error) {
	msgBlock := MsgBlock{}
	if err := msgBlock.Deserialize(r); err != nil {
		return nil, err
	}
	b := Block{
		msg:    &msgBlock,
		height: BlockHeightUnknown,
	}
	return &b, nil
}

// BlockHeightUnknown is the value returned for a block height that is not
// known.  This is typically because the block has not been inserted into
// the main chain yet.
const BlockHeightUnknown = int32(-1)

// MsgBlock returns the underlying MsgBlock for the Block.
func (b *Block) MsgBlock() *MsgBlock {
	return b.msg
}

// Bytes returns the serialized bytes for the Block and records their
// length; the bytes themselves are not cached, so every call serializes
// the block again.
func (b *Block) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(b.msg.SerializeSize())
	if err := b.msg.Serialize(&buf); err != nil {
		return nil, err
	}
	serializedBlock := buf.Bytes()
	b.serializedSz = len(serializedBlock)
	return serializedBlock, nil
}

// Hash returns the block identifier hash for the Block, caching the result
// for subsequent calls.
func (b *Block) Hash() *chainhash.Hash {
	if b.blockHash != nil {
		return b.blockHash
	}
	hash := b.msg.BlockHash()
	b.blockHash = &hash
	return &hash
}

// Height returns the saved height of the block in the chain.  This value
// will be BlockHeightUnknown if it hasn't already explicitly been set.
func (b *Block) Height() int32 {
	return b.height
}

// SetHeight sets the height of the block in the chain.
func (b *Block) SetHeight(height int32) {
	b.height = height
}

// Transactions returns a slice of wrapped transactions for the block,
// building the cache as needed.
func (b *Block) Transactions() []*Tx {
	if b.txnsGenerated {
		return b.transactions
	}

	b.transactions = make([]*Tx, len(b.msg.Transactions))
	for i, tx := range b.msg.Transactions {
		newTx := NewTx(tx)
		newTx.SetIndex(i)
		b.transactions[i] = newTx
	}
	b.txnsGenerated = true
	return b.transactions
}

// Tx is a lightweight wrapper around MsgTx that caches the transaction's
// hash and the index it occupies within a parent block.
type Tx struct {
	msg     *MsgTx
	txHash  *chainhash.Hash
	txIndex int
}

// TxIndexUnknown is the value returned for a transaction index that is not
// known.
const TxIndexUnknown = -1

// NewTx returns a new instance of a transaction given an underlying MsgTx.
func NewTx(msgTx *MsgTx) *Tx {
	return &Tx{msg: msgTx, txIndex: TxIndexUnknown}
}

// MsgTx returns the underlying MsgTx for the transaction.
func (t *Tx) MsgTx() *MsgTx {
	return t.msg
}

// Hash returns the hash of the transaction, caching the result.
func (t *Tx) Hash() *chainhash.Hash {
	if t.txHash != nil {
		return t.txHash
	}
	hash := t.msg.TxHash()
	t.txHash = &hash
	return &hash
}

// Index returns the saved index of the transaction within a block.  This
// value will be TxIndexUnknown if it hasn't already explicitly been set.
func (t *Tx) Index() int {
	return t.txIndex
}

// SetIndex sets the index of the transaction within a parent block.
func (t *Tx) SetIndex(index int) {
	t.txIndex = index
}
