package blockchain

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/bchsuite/bchd/chaincfg"
	"github.com/bchsuite/bchd/wire"
)

// genesisCoinbaseHex is the sole transaction of the mainnet genesis block,
// unchanged since Bitcoin's original 2009 launch and inherited by every
// chain (including this one) that shares that genesis block.
const genesisCoinbaseHex = "01000000010000000000000000000000000000000000" +
	"000000000000000000000000000000ffffffff4d04ffff001d0104455468652054" +
	"696d65732030332f4a616e2f32303039204368616e63656c6c6f72206f6e20627269" +
	"6e6b206f66207365636f6e64206261696c6f757420666f722062616e6b73ffffff" +
	"ff0100f2052a01000000434104678afdb0fe5548271967f1a67130b7105cd6a828" +
	"e03909a67962e0ea1f61deb649f6bc3f4cef38c4f35504e51ec112de5c384df7ba" +
	"0b8d578a4c702b6bf11d5fac00000000"

// TestGenesisMerkleRoot pins CalcMerkleRoot's single-transaction case
// against the genesis block's own known coinbase and merkle root: a block
// with one transaction's root is just that transaction's own hash, and for
// the genesis block specifically it must equal the constant baked into
// chaincfg.MainNetParams.
func TestGenesisMerkleRoot(t *testing.T) {
	raw, err := hex.DecodeString(genesisCoinbaseHex)
	if err != nil {
		t.Fatalf("decoding genesis coinbase hex: %v", err)
	}

	var tx wire.MsgTx
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		t.Fatalf("deserializing genesis coinbase: %v", err)
	}

	got := CalcMerkleRoot([]*wire.MsgTx{&tx})
	want := chaincfg.MainNetParams.GenesisHeader.MerkleRoot
	if got != want {
		t.Fatalf("CalcMerkleRoot(genesis coinbase) = %s, want %s", got, want)
	}
}
