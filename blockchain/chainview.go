package blockchain

import (
	"sync"

	"github.com/bchsuite/bchd/chaincfg/chainhash"
)

// BlockLocator is a list of block hashes used to find a common ancestor
// between two views of the chain: most recent first, increasingly sparse
// toward the genesis block.
type BlockLocator []chainhash.Hash

// chainView provides a flat array view of one branch of the block tree from
// its tip back to the genesis block, indexed by height for O(1) ancestor
// lookups and locator/reverse-hash construction.
type chainView struct {
	mtx   sync.Mutex
	nodes []*blockNode
}

func newChainView(tip *blockNode) *chainView {
	var c chainView
	c.setTip(tip)
	return &c
}

// setTip rebuilds the flat node array to represent the chain ending at the
// given node.  The caller must hold the lock.
func (c *chainView) setTip(node *blockNode) {
	if node == nil {
		c.nodes = nil
		return
	}

	needed := node.height + 1
	if int32(cap(c.nodes)) < needed {
		nodes := make([]*blockNode, needed)
		copy(nodes, c.nodes)
		c.nodes = nodes
	} else {
		prevLen := int32(len(c.nodes))
		c.nodes = c.nodes[:needed]
		for i := prevLen; i < needed; i++ {
			c.nodes[i] = nil
		}
	}

	for node != nil && c.nodes[node.height] != node {
		c.nodes[node.height] = node
		node = node.parent
	}
}

// SetTip rebuilds the view to end at the given node.
func (c *chainView) SetTip(node *blockNode) {
	c.mtx.Lock()
	c.setTip(node)
	c.mtx.Unlock()
}

func (c *chainView) genesis() *blockNode {
	if len(c.nodes) == 0 {
		return nil
	}
	return c.nodes[0]
}

func (c *chainView) tip() *blockNode {
	if len(c.nodes) == 0 {
		return nil
	}
	return c.nodes[len(c.nodes)-1]
}

// Tip returns the current tip block node for the chain view, or nil if the
// view is empty.
func (c *chainView) Tip() *blockNode {
	c.mtx.Lock()
	tip := c.tip()
	c.mtx.Unlock()
	return tip
}

// height returns the view's tip height, or -1 if the view is empty.
func (c *chainView) height() int32 {
	return int32(len(c.nodes)) - 1
}

func (c *chainView) nodeByHeight(height int32) *blockNode {
	if height < 0 || height >= int32(len(c.nodes)) {
		return nil
	}
	return c.nodes[height]
}

// NodeByHeight returns the node at the given height on this view, or nil if
// the height is out of range.
func (c *chainView) NodeByHeight(height int32) *blockNode {
	c.mtx.Lock()
	node := c.nodeByHeight(height)
	c.mtx.Unlock()
	return node
}

// contains reports whether the node is part of this view (an ancestor of
// the view's tip, inclusive).
func (c *chainView) contains(node *blockNode) bool {
	return c.nodeByHeight(node.height) == node
}

// findFork returns the highest node that is both an ancestor of the given
// node and part of this view.
func (c *chainView) findFork(node *blockNode) *blockNode {
	if node == nil {
		return nil
	}
	if node.height > c.height() {
		node = node.ancestorAtHeight(c.height())
		if node == nil {
			return nil
		}
	}
	for !c.contains(node) {
		node = node.parent
		if node == nil {
			return nil
		}
	}
	return node
}

// blockLocator builds a block locator for the given node, or the view's
// current tip when node is nil.  The caller must hold the lock.
func (c *chainView) blockLocator(node *blockNode) BlockLocator {
	if node == nil {
		node = c.tip()
	}
	if node == nil {
		return nil
	}

	var locator BlockLocator
	step := int32(1)
	for node != nil {
		locator = append(locator, node.hash)

		if node.height == 0 {
			break
		}

		height := node.height - step
		if height < 0 {
			height = 0
		}

		if c.contains(node) {
			node = c.nodeByHeight(height)
		} else {
			node = node.ancestorAtHeight(height)
		}

		if len(locator) > 10 {
			step *= 2
		}
	}
	return locator
}

// BlockLocator builds a block locator for the given node (or the tip, if
// nil), safe for concurrent use.
func (c *chainView) BlockLocator(node *blockNode) BlockLocator {
	c.mtx.Lock()
	locator := c.blockLocator(node)
	c.mtx.Unlock()
	return locator
}

// reverseHashes returns up to count hashes walking back from the tip,
// skipping approximately 100 blocks between samples, most recent first.
func (c *chainView) reverseHashes(count int) []chainhash.Hash {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	const sampleGap = 100

	var hashes []chainhash.Hash
	for h := c.height(); h >= 0 && len(hashes) < count; h -= sampleGap {
		hashes = append(hashes, c.nodes[h].hash)
	}
	return hashes
}
