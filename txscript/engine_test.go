package txscript

import (
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"golang.org/x/crypto/ripemd160"

	"github.com/bchsuite/bchd/chaincfg/chainhash"
	"github.com/bchsuite/bchd/wire"
)

// hash160 mirrors the OP_HASH160 opcode's sha256-then-ripemd160 pipeline.
func hash160(buf []byte) []byte {
	sha := sha256.Sum256(buf)
	h := ripemd160.New()
	h.Write(sha[:])
	return h.Sum(nil)
}

// pushData returns the minimal push opcode for data up to 75 bytes, which
// covers both a 20-byte pubkey hash and a compressed 33-byte pubkey.
func pushData(data []byte) []byte {
	if len(data) > 75 {
		panic("pushData: data too long for a direct push opcode")
	}
	return append([]byte{byte(len(data))}, data...)
}

// p2pkhScript builds a standard pay-to-pubkey-hash locking script for pkHash.
func p2pkhScript(pkHash []byte) []byte {
	script := []byte{OP_DUP, OP_HASH160}
	script = append(script, pushData(pkHash)...)
	script = append(script, OP_EQUALVERIFY, OP_CHECKSIG)
	return script
}

// signP2PKH builds the pay-to-pubkey-hash spending transaction, signs input
// 0 against pkScript with priv, and returns the completed signature script.
func signP2PKH(t *testing.T, tx *wire.MsgTx, pkScript []byte, amount int64,
	priv *btcec.PrivateKey, hashType SigHashType, forkID bool) []byte {
	t.Helper()

	subScript, err := parseScript(pkScript)
	if err != nil {
		t.Fatalf("parseScript: %v", err)
	}
	hash, err := calcSignatureHash(subScript, hashType, tx, 0, amount, nil, forkID)
	if err != nil {
		t.Fatalf("calcSignatureHash: %v", err)
	}

	sig := ecdsa.Sign(priv, hash[:])
	sigBytes := append(sig.Serialize(), byte(hashType))

	pubKeyBytes := priv.PubKey().SerializeCompressed()

	sigScript := pushData(sigBytes)
	sigScript = append(sigScript, pushData(pubKeyBytes)...)
	return sigScript
}

func newSpendingTx(prevHash chainhash.Hash, prevIndex uint32, destScript []byte, amount int64) *wire.MsgTx {
	tx := wire.NewMsgTx(1)
	tx.TxIn = append(tx.TxIn, &wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Hash: prevHash, Index: prevIndex},
		Sequence:         wire.MaxTxInSequenceNum,
	})
	tx.TxOut = append(tx.TxOut, &wire.TxOut{Value: amount, PkScript: destScript})
	return tx
}

func TestP2PKHSignAndVerify(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("NewPrivateKey: %v", err)
	}
	pkHash := hash160(priv.PubKey().SerializeCompressed())
	pkScript := p2pkhScript(pkHash)

	const amount = int64(50000)
	tx := newSpendingTx(chainhash.Hash{0x01}, 0, []byte{OP_TRUE}, amount)

	flags := ScriptBip16 | ScriptVerifyDERSignatures | ScriptVerifyStrictEncoding |
		ScriptEnableSighashForkID
	hashType := SigHashAll | SigHashForkID

	tx.TxIn[0].SignatureScript = signP2PKH(t, tx, pkScript, amount, priv, hashType, true)

	vm, err := NewEngine(pkScript, tx, 0, flags, nil, nil, amount)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if err := vm.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
}

func TestP2PKHWrongKeyFailsVerification(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("NewPrivateKey: %v", err)
	}
	wrongPriv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("NewPrivateKey: %v", err)
	}
	pkHash := hash160(priv.PubKey().SerializeCompressed())
	pkScript := p2pkhScript(pkHash)

	const amount = int64(50000)
	tx := newSpendingTx(chainhash.Hash{0x02}, 0, []byte{OP_TRUE}, amount)

	flags := ScriptBip16 | ScriptVerifyDERSignatures | ScriptVerifyStrictEncoding |
		ScriptEnableSighashForkID
	hashType := SigHashAll | SigHashForkID

	// Sign with wrongPriv but push priv's pubkey: the hash won't match.
	tx.TxIn[0].SignatureScript = signP2PKH(t, tx, pkScript, amount, wrongPriv, hashType, true)

	vm, err := NewEngine(pkScript, tx, 0, flags, nil, nil, amount)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if err := vm.Execute(); err == nil {
		t.Fatal("expected Execute to fail for a signature from the wrong key")
	}
}
