package txscript

import (
	"bytes"
	"fmt"

	"github.com/bchsuite/bchd/chaincfg/chainhash"
	"github.com/bchsuite/bchd/wire"
)

// removeCodeSeparators returns a copy of the subscript with OP_CODESEPARATOR
// instances removed, as required before hashing.
func removeCodeSeparators(script []parsedOpcode) []parsedOpcode {
	filtered := make([]parsedOpcode, 0, len(script))
	for _, pop := range script {
		if pop.opcode.value == OP_CODESEPARATOR {
			continue
		}
		filtered = append(filtered, pop)
	}
	return filtered
}

// calcSignatureHash computes the double-SHA256 signature hash that a
// CHECKSIG signature must verify against.  When
// ScriptEnableSighashForkID is set on the owning engine's active forks, the
// FORKID pre-image -- which additionally commits the prevout amount and the
// cached double hashes of all prevouts/sequences/outputs -- is used
// instead of the legacy per-input serialisation.
func calcSignatureHash(subScript []parsedOpcode, hashType SigHashType,
	tx *wire.MsgTx, idx int, amount int64, hashCache *TxSigHashes,
	forkID bool) (chainhash.Hash, error) {

	if idx >= len(tx.TxIn) {
		return chainhash.Hash{}, scriptError(ErrInvalidIndex, fmt.Sprintf(
			"input index %d is out of range for transaction with %d "+
				"inputs", idx, len(tx.TxIn)))
	}

	if forkID {
		return calcForkIDSignatureHash(subScript, hashType, tx, idx, amount,
			hashCache)
	}
	return calcLegacySignatureHash(subScript, hashType, tx, idx)
}

// calcForkIDSignatureHash implements the alternative, amount-committing
// serialisation mandatory after the Cash UAHF fork activates.
func calcForkIDSignatureHash(subScript []parsedOpcode, hashType SigHashType,
	tx *wire.MsgTx, idx int, amount int64, hashCache *TxSigHashes) (chainhash.Hash, error) {

	if hashCache == nil {
		hashCache = NewTxSigHashes(tx)
	}

	hashPrevOuts := chainhash.Hash{}
	hashSequence := chainhash.Hash{}
	hashOutputs := chainhash.Hash{}

	anyoneCanPay := hashType&SigHashAnyOneCanPay != 0
	sigHashType := hashType & sigHashMask

	if !anyoneCanPay {
		hashPrevOuts = hashCache.HashPrevOuts
	}
	if !anyoneCanPay && sigHashType != SigHashSingle && sigHashType != SigHashNone {
		hashSequence = hashCache.HashSequence
	}
	if sigHashType != SigHashSingle && sigHashType != SigHashNone {
		hashOutputs = hashCache.HashOutputs
	} else if sigHashType == SigHashSingle && idx < len(tx.TxOut) {
		hashOutputs = calcHashOutputs(&wire.MsgTx{TxOut: []*wire.TxOut{tx.TxOut[idx]}})
	}

	script, err := unparseScript(removeCodeSeparators(subScript))
	if err != nil {
		return chainhash.Hash{}, err
	}

	var buf []byte
	var ver [4]byte
	putUint32LE(ver[:], uint32(tx.Version))
	buf = append(buf, ver[:]...)

	buf = append(buf, hashPrevOuts[:]...)
	buf = append(buf, hashSequence[:]...)

	in := tx.TxIn[idx]
	buf = append(buf, in.PreviousOutPoint.Hash[:]...)
	var outIdx [4]byte
	putUint32LE(outIdx[:], in.PreviousOutPoint.Index)
	buf = append(buf, outIdx[:]...)

	buf = append(buf, varIntBytes(uint64(len(script)))...)
	buf = append(buf, script...)

	var amt [8]byte
	putUint64LE(amt[:], uint64(amount))
	buf = append(buf, amt[:]...)

	var seq [4]byte
	putUint32LE(seq[:], in.Sequence)
	buf = append(buf, seq[:]...)

	buf = append(buf, hashOutputs[:]...)

	var lockTime [4]byte
	putUint32LE(lockTime[:], tx.LockTime)
	buf = append(buf, lockTime[:]...)

	var ht [4]byte
	putUint32LE(ht[:], uint32(hashType))
	buf = append(buf, ht[:]...)

	return chainhash.DoubleHashH(buf), nil
}

// calcLegacySignatureHash implements the pre-UAHF serialisation, used for
// historical (pre-fork) block validation when the FORKID flag is not set.
func calcLegacySignatureHash(subScript []parsedOpcode, hashType SigHashType,
	tx *wire.MsgTx, idx int) (chainhash.Hash, error) {

	script, err := unparseScript(removeCodeSeparators(subScript))
	if err != nil {
		return chainhash.Hash{}, err
	}

	txCopy := tx.Copy()

	for i := range txCopy.TxIn {
		if i == idx {
			txCopy.TxIn[i].SignatureScript = script
		} else {
			txCopy.TxIn[i].SignatureScript = nil
		}
	}

	sigHashType := hashType & sigHashMask

	switch sigHashType {
	case SigHashNone:
		txCopy.TxOut = txCopy.TxOut[0:0]
		for i := range txCopy.TxIn {
			if i != idx {
				txCopy.TxIn[i].Sequence = 0
			}
		}

	case SigHashSingle:
		if idx >= len(txCopy.TxOut) {
			// Historical edge case: signing a SINGLE hash type for an
			// input with no corresponding output hashes the constant
			// 0x01 rather than erroring, matching long-standing network
			// behaviour.
			return chainhash.Hash{0x01}, nil
		}
		txCopy.TxOut = txCopy.TxOut[:idx+1]
		for i := 0; i < idx; i++ {
			txCopy.TxOut[i].Value = -1
			txCopy.TxOut[i].PkScript = nil
		}
		for i := range txCopy.TxIn {
			if i != idx {
				txCopy.TxIn[i].Sequence = 0
			}
		}

	default:
		// SigHashAll and any other value fall through to committing all
		// outputs unchanged.
	}

	if hashType&SigHashAnyOneCanPay != 0 {
		txCopy.TxIn = []*wire.TxIn{txCopy.TxIn[idx]}
	}

	var buf []byte
	buf = append(buf, serializeTxForHash(txCopy)...)

	var ht [4]byte
	putUint32LE(ht[:], uint32(hashType))
	buf = append(buf, ht[:]...)

	return chainhash.DoubleHashH(buf), nil
}

// serializeTxForHash serialises a (possibly mutated) transaction copy using
// the canonical no-witness wire encoding, reusing MsgTx.Serialize.
func serializeTxForHash(tx *wire.MsgTx) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, tx.SerializeSize()))
	_ = tx.Serialize(buf)
	return buf.Bytes()
}
