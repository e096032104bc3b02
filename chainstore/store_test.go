package chainstore

import (
	"testing"
	"time"

	"github.com/bchsuite/bchd/chaincfg/chainhash"
	"github.com/bchsuite/bchd/wire"
)

func testBlock(t *testing.T, prev chainhash.Hash, nonce uint32) *wire.MsgBlock {
	t.Helper()
	coinbase := wire.NewMsgTx(1)
	coinbase.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Index: 0xffffffff},
		SignatureScript:  []byte{0x51},
		Sequence:         0xffffffff,
	})
	coinbase.AddTxOut(&wire.TxOut{Value: 5000000000, PkScript: []byte{0x51}})

	block := &wire.MsgBlock{
		Header: wire.BlockHeader{
			Version:    1,
			PrevBlock:  prev,
			MerkleRoot: coinbase.TxHash(),
			Timestamp:  time.Unix(1600000000, 0),
			Bits:       0x1d00ffff,
			Nonce:      nonce,
		},
	}
	block.AddTransaction(coinbase)
	return block
}

func TestAppendAndReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	var prev chainhash.Hash
	var hashes []chainhash.Hash
	for i := uint32(0); i < 5; i++ {
		b := testBlock(t, prev, i)
		if _, _, err := store.Append(b); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
		hash := b.BlockHash()
		hashes = append(hashes, hash)
		prev = hash
	}

	if got := store.Height(); got != 4 {
		t.Fatalf("Height() = %d, want 4", got)
	}

	for h, hash := range hashes {
		byHeight, err := store.ReadByHeight(int32(h))
		if err != nil {
			t.Fatalf("ReadByHeight(%d): %v", h, err)
		}
		if byHeight.BlockHash() != hash {
			t.Fatalf("ReadByHeight(%d) hash mismatch", h)
		}

		byHash, err := store.ReadByHash(hash)
		if err != nil {
			t.Fatalf("ReadByHash(%d): %v", h, err)
		}
		if byHash.BlockHash() != hash {
			t.Fatalf("ReadByHash(%d) hash mismatch", h)
		}
	}
}

func TestTruncateAboveHeight(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	var prev chainhash.Hash
	var hashes []chainhash.Hash
	for i := uint32(0); i < 3; i++ {
		b := testBlock(t, prev, i)
		if _, _, err := store.Append(b); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
		hash := b.BlockHash()
		hashes = append(hashes, hash)
		prev = hash
	}

	if err := store.TruncateAboveHeight(0); err != nil {
		t.Fatalf("TruncateAboveHeight: %v", err)
	}
	if got := store.Height(); got != 0 {
		t.Fatalf("Height() after truncate = %d, want 0", got)
	}
	if _, err := store.ReadByHash(hashes[2]); err == nil {
		t.Fatalf("expected truncated block to be unreadable by hash")
	}
	if _, err := store.ReadByHeight(0); err != nil {
		t.Fatalf("ReadByHeight(0) after truncate: %v", err)
	}

	// Appending after truncation should reuse the reclaimed slot.
	b := testBlock(t, hashes[0], 99)
	if _, _, err := store.Append(b); err != nil {
		t.Fatalf("Append after truncate: %v", err)
	}
	if got := store.Height(); got != 1 {
		t.Fatalf("Height() after re-append = %d, want 1", got)
	}
}

func TestListHashesGroupsByFile(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	var prev chainhash.Hash
	for i := uint32(0); i < 3; i++ {
		b := testBlock(t, prev, i)
		if _, _, err := store.Append(b); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
		prev = b.BlockHash()
	}

	hashes, err := store.ListHashes(0)
	if err != nil {
		t.Fatalf("ListHashes: %v", err)
	}
	if len(hashes) != 3 {
		t.Fatalf("ListHashes returned %d hashes, want 3", len(hashes))
	}
}
