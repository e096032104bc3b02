package blockchain

import (
	"math/big"
	"sync"
	"time"

	"github.com/bchsuite/bchd/chaincfg/chainhash"
	"github.com/bchsuite/bchd/wire"
)

// blockNode represents a block within the chain manager's in-memory tree
// of known headers, used for branch tracking and work comparison.  The
// active chain's nodes mirror what has actually been committed to
// ChainStore/UtxoStore/BlockStats; branch nodes exist only here until (or
// unless) their branch is activated.
type blockNode struct {
	parent  *blockNode
	hash    chainhash.Hash
	height  int32
	workSum *big.Int

	version    int32
	bits       uint32
	nonce      uint32
	timestamp  int64
	merkleRoot chainhash.Hash
	prevHash   chainhash.Hash
}

func newBlockNode(header *wire.BlockHeader, parent *blockNode, workSum *big.Int) *blockNode {
	return &blockNode{
		parent:     parent,
		hash:       header.BlockHash(),
		height:     nodeHeight(parent),
		workSum:    workSum,
		version:    header.Version,
		bits:       header.Bits,
		nonce:      header.Nonce,
		timestamp:  header.Timestamp.Unix(),
		merkleRoot: header.MerkleRoot,
		prevHash:   header.PrevBlock,
	}
}

func nodeHeight(parent *blockNode) int32 {
	if parent == nil {
		return 0
	}
	return parent.height + 1
}

func (n *blockNode) header() wire.BlockHeader {
	return wire.BlockHeader{
		Version:    n.version,
		PrevBlock:  n.prevHash,
		MerkleRoot: n.merkleRoot,
		Timestamp:  time.Unix(n.timestamp, 0),
		Bits:       n.bits,
		Nonce:      n.nonce,
	}
}

// ancestorAtHeight walks parent pointers back to the given height, or
// returns nil if the node's chain does not reach that far back.
func (n *blockNode) ancestorAtHeight(height int32) *blockNode {
	cur := n
	for cur != nil && cur.height > height {
		cur = cur.parent
	}
	if cur == nil || cur.height != height {
		return nil
	}
	return cur
}

// blockIndex is the complete in-memory set of known headers (active chain
// plus every tracked branch), keyed by hash.
type blockIndex struct {
	mu    sync.RWMutex
	nodes map[chainhash.Hash]*blockNode
}

func newBlockIndex() *blockIndex {
	return &blockIndex{nodes: make(map[chainhash.Hash]*blockNode)}
}

func (idx *blockIndex) addNode(n *blockNode) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.nodes[n.hash] = n
}

func (idx *blockIndex) lookupNode(hash chainhash.Hash) *blockNode {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.nodes[hash]
}

func (idx *blockIndex) haveBlock(hash chainhash.Hash) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.nodes[hash]
	return ok
}

func (idx *blockIndex) removeAbove(height int32) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for h, n := range idx.nodes {
		if n.height > height {
			delete(idx.nodes, h)
		}
	}
}
