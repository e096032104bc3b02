package txscript

import (
	"bytes"
	"crypto/sha1"
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/bchsuite/bchd/chaincfg/chainhash"
	"golang.org/x/crypto/ripemd160"
)

// opcodeDisabled is a common handler for disabled opcodes.  It should never
// actually be executed since isDisabled catches it before the branch check,
// but is retained as the dispatch target for symmetry with the table.
func opcodeDisabled(op *parsedOpcode, vm *Engine) error {
	return scriptError(ErrDisabledOpcode, fmt.Sprintf("attempt to "+
		"execute disabled opcode %s", op.opcode.name))
}

// opcodeReserved handles OP_RESERVED-family opcodes, which are only illegal
// when actually executed (unlike alwaysIllegal opcodes).
func opcodeReserved(op *parsedOpcode, vm *Engine) error {
	return scriptError(ErrReservedOpcode, fmt.Sprintf("attempt to "+
		"execute reserved opcode %s", op.opcode.name))
}

func opcodeInvalid(op *parsedOpcode, vm *Engine) error {
	return scriptError(ErrReservedOpcode, fmt.Sprintf("attempt to "+
		"execute invalid opcode %s", op.opcode.name))
}

// opcodePushData pushes the data associated with the opcode (for OP_0
// through OP_PUSHDATA4) onto the stack.
func opcodePushData(op *parsedOpcode, vm *Engine) error {
	vm.dstack.PushByteArray(op.data)
	return nil
}

// opcodeNegate serves both OP_1NEGATE, which pushes -1 onto the stack, and
// OP_NEGATE, which replaces the top stack item with its negation.
func opcodeNegate(op *parsedOpcode, vm *Engine) error {
	if op.opcode.value == OP_NEGATE {
		n, err := vm.dstack.PopInt()
		if err != nil {
			return err
		}
		vm.dstack.PushInt(-n)
		return nil
	}
	vm.dstack.PushInt(scriptNum(-1))
	return nil
}

// opcodeN pushes the small integer 1 through 16 associated with the opcode
// onto the stack.
func opcodeN(op *parsedOpcode, vm *Engine) error {
	vm.dstack.PushInt(scriptNum(int(op.opcode.value) - int(OP_1) + 1))
	return nil
}

// opcodeNop does nothing except, for the OP_NOPn range, error out if the
// discourage-upgradable-nops flag is set (not currently wired as a flag,
// retained as a no-op).
func opcodeNop(op *parsedOpcode, vm *Engine) error {
	return nil
}

func opcodeIf(op *parsedOpcode, vm *Engine) error {
	condVal := opCondFalse
	if vm.isBranchExecuting() {
		if vm.dstack.Depth() < 1 {
			return scriptError(ErrUnbalancedConditional,
				"condition stack empty for if")
		}
		ok, err := vm.dstack.PopBool()
		if err != nil {
			return err
		}
		if ok {
			condVal = opCondTrue
		}
	} else {
		condVal = opCondSkip
	}
	if len(vm.condStack) >= maxConditionStackDepth {
		return scriptError(ErrUnbalancedConditional,
			"conditional stack depth exceeds limit")
	}
	vm.condStack = append(vm.condStack, condVal)
	return nil
}

func opcodeNotIf(op *parsedOpcode, vm *Engine) error {
	condVal := opCondFalse
	if vm.isBranchExecuting() {
		if vm.dstack.Depth() < 1 {
			return scriptError(ErrUnbalancedConditional,
				"condition stack empty for notif")
		}
		ok, err := vm.dstack.PopBool()
		if err != nil {
			return err
		}
		if !ok {
			condVal = opCondTrue
		}
	} else {
		condVal = opCondSkip
	}
	if len(vm.condStack) >= maxConditionStackDepth {
		return scriptError(ErrUnbalancedConditional,
			"conditional stack depth exceeds limit")
	}
	vm.condStack = append(vm.condStack, condVal)
	return nil
}

func opcodeElse(op *parsedOpcode, vm *Engine) error {
	if len(vm.condStack) == 0 {
		return scriptError(ErrUnbalancedConditional,
			"encountered else with no matching if")
	}
	top := len(vm.condStack) - 1
	switch vm.condStack[top] {
	case opCondTrue:
		vm.condStack[top] = opCondFalse
	case opCondFalse:
		vm.condStack[top] = opCondTrue
	case opCondSkip:
		// stays skipped
	}
	return nil
}

func opcodeEndif(op *parsedOpcode, vm *Engine) error {
	if len(vm.condStack) == 0 {
		return scriptError(ErrUnbalancedConditional,
			"encountered endif with no matching if")
	}
	vm.condStack = vm.condStack[:len(vm.condStack)-1]
	return nil
}

func opcodeVerify(op *parsedOpcode, vm *Engine) error {
	verified, err := vm.dstack.PopBool()
	if err != nil {
		return err
	}
	if !verified {
		return scriptError(ErrVerify, "VERIFY failed")
	}
	return nil
}

func opcodeReturn(op *parsedOpcode, vm *Engine) error {
	return scriptError(ErrEarlyReturn, "script returned early")
}

func opcodeToAltStack(op *parsedOpcode, vm *Engine) error {
	so, err := vm.dstack.PopByteArray()
	if err != nil {
		return err
	}
	vm.astack.PushByteArray(so)
	return nil
}

func opcodeFromAltStack(op *parsedOpcode, vm *Engine) error {
	so, err := vm.astack.PopByteArray()
	if err != nil {
		return err
	}
	vm.dstack.PushByteArray(so)
	return nil
}

func opcode2Drop(op *parsedOpcode, vm *Engine) error {
	return vm.dstack.DropN(2)
}

func opcode2Dup(op *parsedOpcode, vm *Engine) error {
	return vm.dstack.DupN(2)
}

func opcode3Dup(op *parsedOpcode, vm *Engine) error {
	return vm.dstack.DupN(3)
}

func opcode2Over(op *parsedOpcode, vm *Engine) error {
	return vm.dstack.OverN(2)
}

func opcode2Rot(op *parsedOpcode, vm *Engine) error {
	return vm.dstack.RotN(2)
}

func opcode2Swap(op *parsedOpcode, vm *Engine) error {
	return vm.dstack.SwapN(2)
}

func opcodeIfDup(op *parsedOpcode, vm *Engine) error {
	so, err := vm.dstack.PeekByteArray(0)
	if err != nil {
		return err
	}
	if asBool(so) {
		vm.dstack.PushByteArray(so)
	}
	return nil
}

func opcodeDepth(op *parsedOpcode, vm *Engine) error {
	vm.dstack.PushInt(scriptNum(vm.dstack.Depth()))
	return nil
}

func opcodeDrop(op *parsedOpcode, vm *Engine) error {
	return vm.dstack.DropN(1)
}

func opcodeDup(op *parsedOpcode, vm *Engine) error {
	return vm.dstack.DupN(1)
}

func opcodeNip(op *parsedOpcode, vm *Engine) error {
	return vm.dstack.NipN(1)
}

func opcodeOver(op *parsedOpcode, vm *Engine) error {
	return vm.dstack.OverN(1)
}

func opcodePick(op *parsedOpcode, vm *Engine) error {
	pidx, err := vm.dstack.PopInt()
	if err != nil {
		return err
	}
	return vm.dstack.PickN(int32(pidx))
}

func opcodeRoll(op *parsedOpcode, vm *Engine) error {
	ridx, err := vm.dstack.PopInt()
	if err != nil {
		return err
	}
	return vm.dstack.RollN(int32(ridx))
}

func opcodeRot(op *parsedOpcode, vm *Engine) error {
	return vm.dstack.RotN(1)
}

func opcodeSwap(op *parsedOpcode, vm *Engine) error {
	return vm.dstack.SwapN(1)
}

func opcodeTuck(op *parsedOpcode, vm *Engine) error {
	return vm.dstack.Tuck()
}

func opcodeSize(op *parsedOpcode, vm *Engine) error {
	so, err := vm.dstack.PeekByteArray(0)
	if err != nil {
		return err
	}
	vm.dstack.PushInt(scriptNum(len(so)))
	return nil
}

func opcodeEqual(op *parsedOpcode, vm *Engine) error {
	a, err := vm.dstack.PopByteArray()
	if err != nil {
		return err
	}
	b, err := vm.dstack.PopByteArray()
	if err != nil {
		return err
	}
	vm.dstack.PushBool(bytes.Equal(a, b))
	return nil
}

func opcodeEqualVerify(op *parsedOpcode, vm *Engine) error {
	if err := opcodeEqual(op, vm); err != nil {
		return err
	}
	ok, err := vm.dstack.PopBool()
	if err != nil {
		return err
	}
	if !ok {
		return scriptError(ErrEqualVerify, "EQUALVERIFY failed")
	}
	return nil
}

func popArithArgs(vm *Engine) (scriptNum, scriptNum, error) {
	b, err := vm.dstack.PopInt()
	if err != nil {
		return 0, 0, err
	}
	a, err := vm.dstack.PopInt()
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

func opcode1Add(op *parsedOpcode, vm *Engine) error {
	n, err := vm.dstack.PopInt()
	if err != nil {
		return err
	}
	vm.dstack.PushInt(n + 1)
	return nil
}

func opcode1Sub(op *parsedOpcode, vm *Engine) error {
	n, err := vm.dstack.PopInt()
	if err != nil {
		return err
	}
	vm.dstack.PushInt(n - 1)
	return nil
}

func opcodeAbs(op *parsedOpcode, vm *Engine) error {
	n, err := vm.dstack.PopInt()
	if err != nil {
		return err
	}
	if n < 0 {
		n = -n
	}
	vm.dstack.PushInt(n)
	return nil
}

func opcodeNot(op *parsedOpcode, vm *Engine) error {
	n, err := vm.dstack.PopInt()
	if err != nil {
		return err
	}
	vm.dstack.PushBool(n == 0)
	return nil
}

func opcode0NotEqual(op *parsedOpcode, vm *Engine) error {
	n, err := vm.dstack.PopInt()
	if err != nil {
		return err
	}
	vm.dstack.PushBool(n != 0)
	return nil
}

func opcodeAdd(op *parsedOpcode, vm *Engine) error {
	a, b, err := popArithArgs(vm)
	if err != nil {
		return err
	}
	vm.dstack.PushInt(a + b)
	return nil
}

func opcodeSub(op *parsedOpcode, vm *Engine) error {
	a, b, err := popArithArgs(vm)
	if err != nil {
		return err
	}
	vm.dstack.PushInt(a - b)
	return nil
}

func opcodeBoolAnd(op *parsedOpcode, vm *Engine) error {
	a, b, err := popArithArgs(vm)
	if err != nil {
		return err
	}
	vm.dstack.PushBool(a != 0 && b != 0)
	return nil
}

func opcodeBoolOr(op *parsedOpcode, vm *Engine) error {
	a, b, err := popArithArgs(vm)
	if err != nil {
		return err
	}
	vm.dstack.PushBool(a != 0 || b != 0)
	return nil
}

func opcodeNumEqual(op *parsedOpcode, vm *Engine) error {
	a, b, err := popArithArgs(vm)
	if err != nil {
		return err
	}
	vm.dstack.PushBool(a == b)
	return nil
}

func opcodeNumEqualVerify(op *parsedOpcode, vm *Engine) error {
	if err := opcodeNumEqual(op, vm); err != nil {
		return err
	}
	ok, err := vm.dstack.PopBool()
	if err != nil {
		return err
	}
	if !ok {
		return scriptError(ErrNumEqualVerify, "NUMEQUALVERIFY failed")
	}
	return nil
}

func opcodeNumNotEqual(op *parsedOpcode, vm *Engine) error {
	a, b, err := popArithArgs(vm)
	if err != nil {
		return err
	}
	vm.dstack.PushBool(a != b)
	return nil
}

func opcodeLessThan(op *parsedOpcode, vm *Engine) error {
	a, b, err := popArithArgs(vm)
	if err != nil {
		return err
	}
	vm.dstack.PushBool(a < b)
	return nil
}

func opcodeGreaterThan(op *parsedOpcode, vm *Engine) error {
	a, b, err := popArithArgs(vm)
	if err != nil {
		return err
	}
	vm.dstack.PushBool(a > b)
	return nil
}

func opcodeLessThanOrEqual(op *parsedOpcode, vm *Engine) error {
	a, b, err := popArithArgs(vm)
	if err != nil {
		return err
	}
	vm.dstack.PushBool(a <= b)
	return nil
}

func opcodeGreaterThanOrEqual(op *parsedOpcode, vm *Engine) error {
	a, b, err := popArithArgs(vm)
	if err != nil {
		return err
	}
	vm.dstack.PushBool(a >= b)
	return nil
}

func opcodeMin(op *parsedOpcode, vm *Engine) error {
	a, b, err := popArithArgs(vm)
	if err != nil {
		return err
	}
	if a < b {
		vm.dstack.PushInt(a)
	} else {
		vm.dstack.PushInt(b)
	}
	return nil
}

func opcodeMax(op *parsedOpcode, vm *Engine) error {
	a, b, err := popArithArgs(vm)
	if err != nil {
		return err
	}
	if a > b {
		vm.dstack.PushInt(a)
	} else {
		vm.dstack.PushInt(b)
	}
	return nil
}

func opcodeWithin(op *parsedOpcode, vm *Engine) error {
	maxVal, err := vm.dstack.PopInt()
	if err != nil {
		return err
	}
	minVal, err := vm.dstack.PopInt()
	if err != nil {
		return err
	}
	x, err := vm.dstack.PopInt()
	if err != nil {
		return err
	}
	vm.dstack.PushBool(x >= minVal && x < maxVal)
	return nil
}

func opcodeRipemd160(op *parsedOpcode, vm *Engine) error {
	buf, err := vm.dstack.PopByteArray()
	if err != nil {
		return err
	}
	h := ripemd160.New()
	h.Write(buf)
	vm.dstack.PushByteArray(h.Sum(nil))
	return nil
}

func opcodeSha1(op *parsedOpcode, vm *Engine) error {
	buf, err := vm.dstack.PopByteArray()
	if err != nil {
		return err
	}
	sum := sha1.Sum(buf)
	vm.dstack.PushByteArray(sum[:])
	return nil
}

func opcodeSha256(op *parsedOpcode, vm *Engine) error {
	buf, err := vm.dstack.PopByteArray()
	if err != nil {
		return err
	}
	sum := sha256.Sum256(buf)
	vm.dstack.PushByteArray(sum[:])
	return nil
}

func opcodeHash160(op *parsedOpcode, vm *Engine) error {
	buf, err := vm.dstack.PopByteArray()
	if err != nil {
		return err
	}
	sha := sha256.Sum256(buf)
	h := ripemd160.New()
	h.Write(sha[:])
	vm.dstack.PushByteArray(h.Sum(nil))
	return nil
}

func opcodeHash256(op *parsedOpcode, vm *Engine) error {
	buf, err := vm.dstack.PopByteArray()
	if err != nil {
		return err
	}
	sum := chainhash.DoubleHashB(buf)
	vm.dstack.PushByteArray(sum)
	return nil
}

func opcodeCodeSeparator(op *parsedOpcode, vm *Engine) error {
	vm.lastCodeSep = vm.scriptOff
	return nil
}

func opcodeCheckSig(op *parsedOpcode, vm *Engine) error {
	pkBytes, err := vm.dstack.PopByteArray()
	if err != nil {
		return err
	}
	sigBytes, err := vm.dstack.PopByteArray()
	if err != nil {
		return err
	}

	ok, err := verifySignature(vm, sigBytes, pkBytes)
	if err != nil {
		vm.dstack.PushBool(false)
		return nil
	}
	vm.dstack.PushBool(ok)
	return nil
}

func opcodeCheckSigVerify(op *parsedOpcode, vm *Engine) error {
	if err := opcodeCheckSig(op, vm); err != nil {
		return err
	}
	ok, err := vm.dstack.PopBool()
	if err != nil {
		return err
	}
	if !ok {
		return scriptError(ErrCheckSigVerify, "CHECKSIGVERIFY failed")
	}
	return nil
}

// verifySignature checks sigBytes (raw DER signature plus trailing hash-type
// byte) against pubKeyBytes over the signature hash of the current
// subscript.  A malformed signature or public key results in
// a false verification, not a script error, matching CHECKSIG's historical
// permissiveness for empty signatures.
func verifySignature(vm *Engine, sigBytes, pkBytes []byte) (bool, error) {
	if len(sigBytes) == 0 {
		return false, nil
	}

	hashType := SigHashType(sigBytes[len(sigBytes)-1])
	sigDER := sigBytes[:len(sigBytes)-1]

	if err := vm.checkHashTypeEncoding(hashType); err != nil {
		return false, err
	}

	sig, err := ecdsa.ParseDERSignature(sigDER)
	if err != nil {
		return false, nil
	}

	pubKey, err := btcec.ParsePubKey(pkBytes)
	if err != nil {
		return false, nil
	}

	subScript := removeCodeSeparators(vm.subScript())
	forkID := vm.hasFlag(ScriptEnableSighashForkID)
	hash, err := calcSignatureHash(subScript, hashType, vm.tx, vm.txIdx,
		vm.inputAmount, vm.hashCache, forkID)
	if err != nil {
		return false, err
	}

	if vm.sigCache != nil {
		if valid, cached := vm.sigCache.Lookup(hash, sig, pubKey); cached {
			return valid, nil
		}
		valid := sig.Verify(hash[:], pubKey)
		vm.sigCache.Add(hash, sig, pubKey, valid)
		return valid, nil
	}

	return sig.Verify(hash[:], pubKey), nil
}

func opcodeCheckMultiSig(op *parsedOpcode, vm *Engine) error {
	numKeys, err := vm.dstack.PopInt()
	if err != nil {
		return err
	}
	numPubKeys := int(numKeys)
	if numPubKeys < 0 || numPubKeys > MaxPubKeysPerMultiSig {
		return scriptError(ErrInvalidPubKeyCount, fmt.Sprintf(
			"number of pubkeys %d is negative or exceeds max of %d",
			numPubKeys, MaxPubKeysPerMultiSig))
	}
	vm.numOps += numPubKeys
	if vm.numOps > MaxOpsPerScript {
		return scriptError(ErrTooManyOperations, "exceeded max operation limit")
	}

	pubKeys := make([][]byte, 0, numPubKeys)
	for i := 0; i < numPubKeys; i++ {
		pk, err := vm.dstack.PopByteArray()
		if err != nil {
			return err
		}
		pubKeys = append(pubKeys, pk)
	}

	numSigs, err := vm.dstack.PopInt()
	if err != nil {
		return err
	}
	numSignatures := int(numSigs)
	if numSignatures < 0 || numSignatures > numPubKeys {
		return scriptError(ErrInvalidSignatureCount, fmt.Sprintf(
			"number of signatures %d is negative or exceeds number of "+
				"pubkeys %d", numSignatures, numPubKeys))
	}

	signatures := make([][]byte, 0, numSignatures)
	for i := 0; i < numSignatures; i++ {
		sig, err := vm.dstack.PopByteArray()
		if err != nil {
			return err
		}
		signatures = append(signatures, sig)
	}

	// Historical off-by-one bug: an extra unused value is popped and
	// discarded on every CHECKMULTISIG.  Preserved for consensus.
	if _, err := vm.dstack.PopByteArray(); err != nil {
		return err
	}

	success := true
	pubKeyIdx := 0
	sigIdx := 0
	for sigIdx < len(signatures) {
		if pubKeyIdx >= len(pubKeys) {
			success = false
			break
		}
		sig := signatures[sigIdx]
		pk := pubKeys[pubKeyIdx]

		if len(sig) == 0 {
			pubKeyIdx++
			continue
		}

		ok, err := verifySignature(vm, sig, pk)
		if err != nil {
			return err
		}
		if ok {
			sigIdx++
		}
		pubKeyIdx++
	}
	if sigIdx < len(signatures) {
		success = false
	}

	vm.dstack.PushBool(success)
	return nil
}

func opcodeCheckMultiSigVerify(op *parsedOpcode, vm *Engine) error {
	if err := opcodeCheckMultiSig(op, vm); err != nil {
		return err
	}
	ok, err := vm.dstack.PopBool()
	if err != nil {
		return err
	}
	if !ok {
		return scriptError(ErrCheckMultiSigVerify, "CHECKMULTISIGVERIFY failed")
	}
	return nil
}

// opcodeCheckLockTimeVerify implements BIP-65: it verifies the top stack
// item is a valid lock time no greater than the transaction's own
// nLockTime, then leaves the stack unchanged.  It is a no-op prior to
// activation: without ScriptVerifyCheckLockTimeVerify it returns at once.
func opcodeCheckLockTimeVerify(op *parsedOpcode, vm *Engine) error {
	if !vm.hasFlag(ScriptVerifyCheckLockTimeVerify) {
		return nil
	}

	so, err := vm.dstack.PeekByteArray(0)
	if err != nil {
		return err
	}
	lockTime, err := makeScriptNum(so, true, 5)
	if err != nil {
		return err
	}
	if lockTime < 0 {
		return scriptError(ErrNegativeLockTime, fmt.Sprintf(
			"negative lock time %d", lockTime))
	}

	const lockTimeThreshold = 500000000
	txLockTime := scriptNum(vm.tx.LockTime)
	if !((txLockTime < lockTimeThreshold && lockTime < lockTimeThreshold) ||
		(txLockTime >= lockTimeThreshold && lockTime >= lockTimeThreshold)) {
		return scriptError(ErrUnsatisfiedLockTime, "mismatched lock time types")
	}
	if lockTime > txLockTime {
		return scriptError(ErrUnsatisfiedLockTime, "lock time requirement not satisfied")
	}
	if vm.tx.TxIn[vm.txIdx].Sequence == wireMaxTxInSequenceNum {
		return scriptError(ErrUnsatisfiedLockTime,
			"transaction input is finalized")
	}
	return nil
}

// opcodeCheckSequenceVerify implements BIP-112 relative lock time checks.
func opcodeCheckSequenceVerify(op *parsedOpcode, vm *Engine) error {
	if !vm.hasFlag(ScriptVerifyCheckSequenceVerify) {
		return nil
	}

	so, err := vm.dstack.PeekByteArray(0)
	if err != nil {
		return err
	}
	sequence, err := makeScriptNum(so, true, 5)
	if err != nil {
		return err
	}
	if sequence < 0 {
		return scriptError(ErrNegativeLockTime, fmt.Sprintf(
			"negative sequence %d", sequence))
	}

	const sequenceLockTimeDisabled = 1 << 31
	if int64(sequence)&sequenceLockTimeDisabled != 0 {
		return nil
	}

	const sequenceLockTimeIsSeconds = 1 << 22
	const sequenceLockTimeMask = 0x0000ffff
	txSequence := scriptNum(vm.tx.TxIn[vm.txIdx].Sequence)
	if int64(txSequence)&sequenceLockTimeDisabled != 0 {
		return scriptError(ErrUnsatisfiedLockTime,
			"transaction sequence has disable flag set")
	}
	if int64(sequence)&sequenceLockTimeIsSeconds !=
		int64(txSequence)&sequenceLockTimeIsSeconds {
		return scriptError(ErrUnsatisfiedLockTime,
			"mismatched sequence lock time types")
	}
	if sequence&sequenceLockTimeMask > txSequence&sequenceLockTimeMask {
		return scriptError(ErrUnsatisfiedLockTime,
			"sequence lock time requirement not satisfied")
	}
	return nil
}

const wireMaxTxInSequenceNum = 0xffffffff
