package blockchain

import (
	"github.com/bchsuite/bchd/txscript"
	"github.com/bchsuite/bchd/wire"
)

// scriptFlagsForHeight translates the height-keyed fork ladder into the
// txscript.ScriptFlags bitmask active for a block at that height.
func (m *ChainManager) scriptFlagsForHeight(height int32) txscript.ScriptFlags {
	flags := txscript.ScriptBip16 | txscript.ScriptVerifyStrictEncoding |
		txscript.ScriptVerifyMinimalData

	if m.ladder.IsBIP66Active(height) {
		flags |= txscript.ScriptVerifyDERSignatures
	}
	if m.ladder.IsBIP65Active(height) {
		flags |= txscript.ScriptVerifyCheckLockTimeVerify
	}
	if m.ladder.IsCSVActive(height) {
		flags |= txscript.ScriptVerifyCheckSequenceVerify
	}
	if m.ladder.IsUAHFActive(height) {
		flags |= txscript.ScriptEnableSighashForkID | txscript.ScriptVerifyBip143SigHash
	}
	return flags
}

// verifyInputScript runs the script engine over one transaction input
// against the output it spends.
func (m *ChainManager) verifyInputScript(tx *wire.MsgTx, txIdx int, prevPkScript []byte,
	prevAmount int64, flags txscript.ScriptFlags, hashCache *txscript.TxSigHashes) error {

	engine, err := txscript.NewEngine(prevPkScript, tx, txIdx, flags, m.sigCache,
		hashCache, prevAmount)
	if err != nil {
		return ruleError(ErrScriptValidation, err.Error())
	}
	if err := engine.Execute(); err != nil {
		return ruleError(ErrScriptValidation, err.Error())
	}
	return nil
}
