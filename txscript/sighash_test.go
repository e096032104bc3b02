package txscript

import (
	"encoding/binary"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"

	"github.com/bchsuite/bchd/chaincfg/chainhash"
	"github.com/bchsuite/bchd/wire"
)

// buildForkIDPreimage reconstructs the SIGHASH_FORKID preimage byte-for-byte
// from scratch, independent of calcForkIDSignatureHash, to pin the exact
// field order and widths the production path must produce.
func buildForkIDPreimage(t *testing.T, tx *wire.MsgTx, idx int, pkScript []byte,
	amount int64, hashType SigHashType) []byte {
	t.Helper()

	var hashPrevOuts, hashSequence, hashOutputs chainhash.Hash
	{
		var b []byte
		for _, in := range tx.TxIn {
			b = append(b, in.PreviousOutPoint.Hash[:]...)
			var idxBuf [4]byte
			binary.LittleEndian.PutUint32(idxBuf[:], in.PreviousOutPoint.Index)
			b = append(b, idxBuf[:]...)
		}
		hashPrevOuts = chainhash.DoubleHashH(b)
	}
	{
		var b []byte
		for _, in := range tx.TxIn {
			var seqBuf [4]byte
			binary.LittleEndian.PutUint32(seqBuf[:], in.Sequence)
			b = append(b, seqBuf[:]...)
		}
		hashSequence = chainhash.DoubleHashH(b)
	}
	{
		var b []byte
		for _, out := range tx.TxOut {
			var valBuf [8]byte
			binary.LittleEndian.PutUint64(valBuf[:], uint64(out.Value))
			b = append(b, valBuf[:]...)
			b = append(b, byte(len(out.PkScript)))
			b = append(b, out.PkScript...)
		}
		hashOutputs = chainhash.DoubleHashH(b)
	}

	var buf []byte
	var ver [4]byte
	binary.LittleEndian.PutUint32(ver[:], uint32(tx.Version))
	buf = append(buf, ver[:]...)
	buf = append(buf, hashPrevOuts[:]...)
	buf = append(buf, hashSequence[:]...)

	in := tx.TxIn[idx]
	buf = append(buf, in.PreviousOutPoint.Hash[:]...)
	var outIdx [4]byte
	binary.LittleEndian.PutUint32(outIdx[:], in.PreviousOutPoint.Index)
	buf = append(buf, outIdx[:]...)

	buf = append(buf, byte(len(pkScript)))
	buf = append(buf, pkScript...)

	var amt [8]byte
	binary.LittleEndian.PutUint64(amt[:], uint64(amount))
	buf = append(buf, amt[:]...)

	var seq [4]byte
	binary.LittleEndian.PutUint32(seq[:], in.Sequence)
	buf = append(buf, seq[:]...)

	buf = append(buf, hashOutputs[:]...)

	var lockTime [4]byte
	binary.LittleEndian.PutUint32(lockTime[:], tx.LockTime)
	buf = append(buf, lockTime[:]...)

	var ht [4]byte
	binary.LittleEndian.PutUint32(ht[:], uint32(hashType))
	buf = append(buf, ht[:]...)

	return buf
}

// TestForkIDSigHashExactPreimage pins calcSignatureHash's FORKID path
// against an independently assembled preimage: the test's own byte-by-byte
// preimage is double-hashed and the result must equal the engine's
// signature hash, so a field reordering or width mistake changes the hash
// and is caught.
func TestForkIDSigHashExactPreimage(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("NewPrivateKey: %v", err)
	}
	pkHash := hash160(priv.PubKey().SerializeCompressed())
	pkScript := p2pkhScript(pkHash)

	const amount = int64(1234500000)
	tx := newSpendingTx(chainhash.Hash{0x03}, 1, []byte{OP_TRUE}, amount)
	tx.LockTime = 500000

	hashType := SigHashAll | SigHashForkID

	subScript, err := parseScript(pkScript)
	if err != nil {
		t.Fatalf("parseScript: %v", err)
	}
	got, err := calcSignatureHash(subScript, hashType, tx, 0, amount, nil, true)
	if err != nil {
		t.Fatalf("calcSignatureHash: %v", err)
	}

	wantPreimage := buildForkIDPreimage(t, tx, 0, pkScript, amount, hashType)
	want := chainhash.DoubleHashH(wantPreimage)
	if got != want {
		t.Fatalf("calcSignatureHash FORKID path = %s, want %s (independently built preimage)", got, want)
	}

	// The exact sighash must also be the one CHECKSIG actually verifies
	// against: sign it directly and confirm the engine accepts it.
	sig := ecdsa.Sign(priv, got[:])
	sigBytes := append(sig.Serialize(), byte(hashType))
	tx.TxIn[0].SignatureScript = append(pushData(sigBytes), pushData(priv.PubKey().SerializeCompressed())...)

	flags := ScriptBip16 | ScriptVerifyDERSignatures | ScriptVerifyStrictEncoding |
		ScriptEnableSighashForkID
	vm, err := NewEngine(pkScript, tx, 0, flags, nil, nil, amount)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if err := vm.Execute(); err != nil {
		t.Fatalf("Execute with a signature over the exact pinned sighash: %v", err)
	}
}
