package txscript

import (
	"bytes"
	"fmt"

	"github.com/bchsuite/bchd/wire"
)

// ScriptFlags is a bitmask defining additional operations or tests that
// will be done when executing a script pair.
type ScriptFlags uint32

const (
	// ScriptBip16 defines whether the bip16 threshold has passed and
	// thus pay-to-script-hash transactions will be fully validated.
	ScriptBip16 ScriptFlags = 1 << iota

	// ScriptVerifyDERSignatures defines that signatures are required to
	// compily with the DER format (BIP-66).
	ScriptVerifyDERSignatures

	// ScriptVerifyStrictEncoding defines that signature scripts and
	// public keys must follow the strict encoding requirements.
	ScriptVerifyStrictEncoding

	// ScriptVerifyLowS defines that signatures are required to have a
	// low S value in accordance with BIP-62.
	ScriptVerifyLowS

	// ScriptVerifyMinimalData defines that opcodes pushing data onto the
	// stack must use the smallest possible opcode (BIP-62 rule 3/4).
	ScriptVerifyMinimalData

	// ScriptVerifyCleanStack defines that the stack must contain only a
	// single non-zero item at the end of execution.
	ScriptVerifyCleanStack

	// ScriptVerifyCheckLockTimeVerify defines whether to allow execution
	// of OP_CHECKLOCKTIMEVERIFY (BIP-65).
	ScriptVerifyCheckLockTimeVerify

	// ScriptVerifyCheckSequenceVerify defines whether to allow execution
	// of OP_CHECKSEQUENCEVERIFY (BIP-112).
	ScriptVerifyCheckSequenceVerify

	// ScriptEnableSighashForkID defines that the required signature-hash
	// serialisation includes SIGHASH_FORKID, mandatory after
	// the Cash UAHF fork.
	ScriptEnableSighashForkID

	// ScriptVerifyBip143SigHash requests the pre-image based sighash
	// (amount- and prevout-committing) used together with ForkID.
	ScriptVerifyBip143SigHash
)

const (
	// MaxStackSize is the maximum combined height of stack and altstack
	// during execution.
	MaxStackSize = 1000

	// MaxScriptSize is the maximum allowed length of a raw script.
	MaxScriptSize = 10000

	// MaxScriptElementSize is the maximum allowed size, in bytes, of an
	// element on the stack.
	MaxScriptElementSize = 520

	// MaxOpsPerScript is the maximum number of non-push operations that
	// may be executed in a script.
	MaxOpsPerScript = 201

	// MaxPubKeysPerMultiSig is the maximum number of public keys allowed
	// in an OP_CHECKMULTISIG.
	MaxPubKeysPerMultiSig = 20

	// maxConditionStackDepth is the maximum depth of the if/notif
	// condition stack.
	maxConditionStackDepth = 20
)

// SigHashType represents the hash type bits at the end of a signature.
type SigHashType uint32

const (
	SigHashOld          SigHashType = 0x0
	SigHashAll          SigHashType = 0x1
	SigHashNone         SigHashType = 0x2
	SigHashSingle       SigHashType = 0x3
	SigHashAnyOneCanPay SigHashType = 0x80

	// SigHashForkID must be OR'd into the hash type byte for every
	// signature checked after the Cash UAHF activation height.
	SigHashForkID SigHashType = 0x40

	sigHashMask = 0x1f
)

// Engine is the virtual machine that executes a signature script followed
// by the referenced output script.
type Engine struct {
	scripts         [][]parsedOpcode
	scriptIdx       int
	scriptOff       int
	lastCodeSep     int
	dstack          stack
	astack          stack
	tx              *wire.MsgTx
	txIdx           int
	condStack       []int
	numOps          int
	flags           ScriptFlags
	sigCache        *SigCache
	hashCache       *TxSigHashes
	prevOutFetcher PrevOutputAmount
	inputAmount    int64
	bip16          bool
}

// condition stack values.
const (
	opCondFalse = 0
	opCondTrue  = 1
	opCondSkip  = 2
)

// PrevOutputAmount supplies the value, in satoshis, of the output an input
// spends -- required to compute the FORKID signature hash.
type PrevOutputAmount int64

// hasFlag returns whether the script engine instance has the passed flag
// set.
func (vm *Engine) hasFlag(flag ScriptFlags) bool {
	return vm.flags&flag == flag
}

// isBranchExecuting returns whether or not the current conditional branch
// is actively executing.
func (vm *Engine) isBranchExecuting() bool {
	if len(vm.condStack) == 0 {
		return true
	}
	return vm.condStack[len(vm.condStack)-1] == opCondTrue
}

// executeOpcode peforms execution on the passed opcode.
func (vm *Engine) executeOpcode(pop *parsedOpcode) error {
	// Disabled opcodes are illegal whether or not they are executed.
	if pop.isDisabled() {
		return scriptError(ErrDisabledOpcode, fmt.Sprintf("attempt to "+
			"execute disabled opcode %s", pop.opcode.name))
	}

	// Always-illegal opcodes are illegal whether or not they are
	// executed.
	if pop.alwaysIllegal() {
		return scriptError(ErrReservedOpcode, fmt.Sprintf("attempt to "+
			"execute reserved opcode %s", pop.opcode.name))
	}

	// Note that this includes OP_RESERVED which counts as a push
	// operation.
	if pop.opcode.value > OP_16 {
		vm.numOps++
		if vm.numOps > MaxOpsPerScript {
			return scriptError(ErrTooManyOperations, fmt.Sprintf(
				"exceeded max operation limit of %d", MaxOpsPerScript))
		}
	} else if len(pop.data) > MaxScriptElementSize {
		return scriptError(ErrElementTooBig, fmt.Sprintf("element size "+
			"%d exceeds max allowed size %d", len(pop.data),
			MaxScriptElementSize))
	}

	// Nothing left to do when this is not a conditional opcode and it is
	// not in an executing branch.
	if !vm.isBranchExecuting() && !pop.isConditional() {
		return nil
	}

	if vm.hasFlag(ScriptVerifyMinimalData) && vm.isBranchExecuting() &&
		pop.opcode.value >= OP_0 && pop.opcode.value <= OP_PUSHDATA4 {
		if err := pop.checkMinimalDataPush(); err != nil {
			return err
		}
	}

	return pop.opcode.opfunc(pop, vm)
}

// disasm formats a parsed opcode for logging/debugging.
func (vm *Engine) disasm(scriptIdx, scriptOff int) string {
	pop := vm.scripts[scriptIdx][scriptOff]
	return fmt.Sprintf("%02x:%04x: %s", scriptIdx, scriptOff, pop.opcode.name)
}

// validPC returns nil if the current script position is valid for
// execution, an error otherwise.
func (vm *Engine) validPC() error {
	if vm.scriptIdx >= len(vm.scripts) {
		return scriptError(ErrInvalidProgramCounter, fmt.Sprintf(
			"script index %d beyond total scripts %d", vm.scriptIdx,
			len(vm.scripts)))
	}
	if vm.scriptOff >= len(vm.scripts[vm.scriptIdx]) {
		return scriptError(ErrInvalidProgramCounter, fmt.Sprintf(
			"script index %d, offset %d beyond script length %d",
			vm.scriptIdx, vm.scriptOff, len(vm.scripts[vm.scriptIdx])))
	}
	return nil
}

// curPC returns either the current script and offset, or an error if the
// script position is invalid.
func (vm *Engine) curPC() (script int, off int, err error) {
	if err := vm.validPC(); err != nil {
		return 0, 0, err
	}
	return vm.scriptIdx, vm.scriptOff, nil
}

// Step executes the next instruction and returns whether or not the script
// is complete.
func (vm *Engine) Step() (done bool, err error) {
	opcode := &vm.scripts[vm.scriptIdx][vm.scriptOff]
	vm.scriptOff++

	if err := vm.executeOpcode(opcode); err != nil {
		return true, err
	}

	if vm.dstack.Depth()+vm.astack.Depth() > MaxStackSize {
		return false, scriptError(ErrStackOverflow, "combined stack "+
			"size exceeds limit")
	}

	// Prepare for next instruction.
	if vm.scriptOff >= len(vm.scripts[vm.scriptIdx]) {
		if len(vm.condStack) != 0 {
			return false, scriptError(ErrUnbalancedConditional,
				"end of script reached in conditional execution")
		}

		vm.astack.DropN(vm.astack.Depth())

		vm.numOps = 0
		vm.scriptOff = 0
		// P2SH redeem execution is intentionally out of scope (this
		// engine classifies pay-to-script-hash outputs but does not
		// itself execute the redeem script); callers needing that
		// must invoke a second Engine explicitly.
		vm.scriptIdx++

		if vm.scriptIdx >= len(vm.scripts) {
			return true, nil
		}
	}
	return false, nil
}

// Execute runs the entire script pair to completion and returns the final
// validity as a {Valid-Verified, Valid-Unverified, Invalid}
// outcome, folded here into a single error (nil on any Valid outcome).
func (vm *Engine) Execute() error {
	for {
		done, err := vm.Step()
		if err != nil {
			return err
		}
		if done {
			break
		}
	}
	return vm.CheckErrorCondition(true)
}

// CheckErrorCondition returns nil if the running script has ended and
// terminated successfully, leaving a true boolean on top of the stack.
func (vm *Engine) CheckErrorCondition(finalScript bool) error {
	if vm.scriptIdx < len(vm.scripts) {
		return scriptError(ErrScriptUnfinished,
			"error check when script unfinished")
	}

	if finalScript && vm.hasFlag(ScriptVerifyCleanStack) &&
		vm.dstack.Depth() != 1 {
		return scriptError(ErrNumClean, fmt.Sprintf("stack contains %d "+
			"unexpected items", vm.dstack.Depth()-1))
	} else if vm.dstack.Depth() < 1 {
		return scriptError(ErrEmptyStack, "stack empty at end of "+
			"script execution")
	}

	v, err := vm.dstack.PopBool()
	if err != nil {
		return err
	}
	if !v {
		return scriptError(ErrEvalFalse, "false stack entry at end of "+
			"script execution")
	}
	return nil
}

// GetStack returns a copy of the main data stack, used to hand a P2SH
// redeem script to a follow-up Engine.
func (vm *Engine) GetStack() [][]byte {
	items := make([][]byte, len(vm.dstack.stk))
	copy(items, vm.dstack.stk)
	return items
}

// SetStack sets the contents of the main data stack from a copy previously
// obtained via GetStack.
func (vm *Engine) SetStack(data [][]byte) {
	vm.dstack.stk = nil
	for _, d := range data {
		vm.dstack.PushByteArray(d)
	}
}

// subScript returns the script since the last OP_CODESEPARATOR.
func (vm *Engine) subScript() []parsedOpcode {
	return vm.scripts[vm.scriptIdx][vm.lastCodeSep:]
}

// checkHashTypeEncoding returns whether or not the passed hashtype is one
// of the supported hash types and whether or not the FORKID bit matches the
// active fork state: required when ScriptEnableSighashForkID is set,
// rejected when it is not.
func (vm *Engine) checkHashTypeEncoding(hashType SigHashType) error {
	if vm.hasFlag(ScriptEnableSighashForkID) {
		if hashType&SigHashForkID == 0 {
			return scriptError(ErrSigHashType, "signature hash type "+
				"missing required fork id")
		}
	} else if hashType&SigHashForkID != 0 {
		return scriptError(ErrSigHashType, "signature hash type "+
			"includes unsupported fork id")
	}

	sht := hashType & ^SigHashForkID & ^SigHashAnyOneCanPay
	if sht < SigHashAll || sht > SigHashSingle {
		return scriptError(ErrSigHashType, fmt.Sprintf("invalid "+
			"hash type 0x%x", hashType))
	}
	return nil
}

// NewEngine returns a new script engine for the provided public key script,
// transaction, and input index, which parses the sigScript then the
// pkScript into a two-script execution sequence.  It does not implement
// P2SH's second-pass redeem-script execution itself; classification of a
// pkScript as P2SH is left to
// IsPayToScriptHash and its own follow-up Engine.
func NewEngine(scriptPubKey []byte, tx *wire.MsgTx, txIdx int, flags ScriptFlags,
	sigCache *SigCache, hashCache *TxSigHashes, inputAmount int64) (*Engine, error) {

	if txIdx < 0 || txIdx >= len(tx.TxIn) {
		return nil, scriptError(ErrInvalidIndex, fmt.Sprintf(
			"transaction input index %d is negative or >= %d", txIdx,
			len(tx.TxIn)))
	}
	scriptSig := tx.TxIn[txIdx].SignatureScript

	if len(scriptSig) > MaxScriptSize || len(scriptPubKey) > MaxScriptSize {
		return nil, scriptError(ErrScriptTooBig, "script pair exceeds "+
			"max allowed size")
	}

	vm := Engine{
		tx:          tx,
		txIdx:       txIdx,
		sigCache:    sigCache,
		hashCache:   hashCache,
		flags:       flags,
		inputAmount: inputAmount,
	}

	sigPops, err := parseScript(scriptSig)
	if err != nil {
		return nil, err
	}
	pkPops, err := parseScript(scriptPubKey)
	if err != nil {
		return nil, err
	}

	for _, pop := range sigPops {
		if pop.opcode.value > OP_16 {
			return nil, scriptError(ErrNotPushOnly,
				"signature script is not push only")
		}
	}

	vm.scripts = [][]parsedOpcode{sigPops, pkPops}
	if vm.hasFlag(ScriptBip16) && isScriptHash(pkPops) {
		vm.bip16 = true
	}

	return &vm, nil
}

// parseScript preparses the script such that it is broken down into
// individual opcodes and data.  It also does a fair amount of upfront
// error checking.
func parseScript(script []byte) ([]parsedOpcode, error) {
	return parseScriptTemplate(script, &opcodeArray)
}

func parseScriptTemplate(script []byte, opcodes *[256]opcode) ([]parsedOpcode, error) {
	retScript := make([]parsedOpcode, 0, len(script))
	for i := 0; i < len(script); {
		instr := script[i]
		op := &opcodes[instr]
		pop := parsedOpcode{opcode: op}

		switch {
		case op.length == 1:
			i++
		case op.length > 1:
			if len(script[i:]) < op.length {
				return nil, scriptError(ErrMalformedPush, fmt.Sprintf(
					"opcode %s requires %d bytes, but script "+
						"only has %d remaining", op.name, op.length,
					len(script[i:])))
			}
			pop.data = script[i+1 : i+op.length]
			i += op.length
		case op.length < 0:
			var l int
			off := i + 1
			switch op.length {
			case -1:
				if len(script[off:]) < 1 {
					return nil, scriptError(ErrMalformedPush,
						"opcode requires 1 byte length")
				}
				l = int(script[off])
				off++
			case -2:
				if len(script[off:]) < 2 {
					return nil, scriptError(ErrMalformedPush,
						"opcode requires 2 byte length")
				}
				l = int(script[off]) | int(script[off+1])<<8
				off += 2
			case -4:
				if len(script[off:]) < 4 {
					return nil, scriptError(ErrMalformedPush,
						"opcode requires 4 byte length")
				}
				l = int(script[off]) | int(script[off+1])<<8 |
					int(script[off+2])<<16 | int(script[off+3])<<24
				off += 4
			}
			if l < 0 || l > len(script[off:]) {
				return nil, scriptError(ErrMalformedPush, fmt.Sprintf(
					"opcode pushes %d bytes, but script only has "+
						"%d remaining", l, len(script[off:])))
			}
			pop.data = script[off : off+l]
			i = off + l
		}

		retScript = append(retScript, pop)
	}
	return retScript, nil
}

// RemoveOpcodeByData returns the script minus any opcodes that would push
// the passed data to the stack.
func removeOpcodeByData(pkscript []parsedOpcode, data []byte) []parsedOpcode {
	retScript := make([]parsedOpcode, 0, len(pkscript))
	for _, pop := range pkscript {
		if !canonicalPush(pop) || !bytes.Contains(pop.data, data) {
			retScript = append(retScript, pop)
			continue
		}
	}
	return retScript
}

func canonicalPush(pop parsedOpcode) bool {
	opcode := pop.opcode.value
	data := pop.data
	dataLen := len(pop.data)
	if opcode > OP_16 {
		return true
	}

	if opcode < OP_PUSHDATA1 && opcode > OP_0 && (dataLen == 1 && data[0] <= 16) {
		return false
	}
	if opcode == OP_PUSHDATA1 && dataLen < OP_PUSHDATA1 {
		return false
	}
	if opcode == OP_PUSHDATA2 && dataLen <= 0xff {
		return false
	}
	if opcode == OP_PUSHDATA4 && dataLen <= 0xffff {
		return false
	}
	return true
}

// unparseScript reverses parseScript, reconstructing the original script
// bytes.
func unparseScript(pops []parsedOpcode) ([]byte, error) {
	script := make([]byte, 0, len(pops))
	for _, pop := range pops {
		b, err := pop.bytes()
		if err != nil {
			return nil, err
		}
		script = append(script, b...)
	}
	return script, nil
}
