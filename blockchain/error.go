package blockchain

import "fmt"

// AssertError identifies an error that indicates an internal code
// consistency issue and should be treated as a critical and unrecoverable
// error.
type AssertError string

func (e AssertError) Error() string {
	return "assertion failed: " + string(e)
}

// ErrorCode identifies a kind of error returned while validating a
// candidate header or block.
type ErrorCode int

const (
	// ErrDuplicateBlock indicates a block with the same hash already
	// exists, whether on the active chain, a branch, or the pending
	// queue.
	ErrDuplicateBlock ErrorCode = iota

	// ErrMissingParent indicates the block's previousHash is not known
	// to the chain manager: the block is an orphan.
	ErrMissingParent

	// ErrBlockTooBig indicates the serialized block size exceeds the
	// network's maximum.
	ErrBlockTooBig

	// ErrInvalidTime indicates the block's timestamp has a precision
	// finer than one second.
	ErrInvalidTime

	// ErrTimeTooOld indicates the block's timestamp is not strictly
	// greater than the median time of the preceding 11 blocks.
	ErrTimeTooOld

	// ErrTimeTooNew indicates the block's timestamp is too far in the
	// future compared to the local clock.
	ErrTimeTooNew

	// ErrUnexpectedDifficulty indicates the block's targetBits does not
	// match what the DifficultyEngine computes for its height.
	ErrUnexpectedDifficulty

	// ErrHighHash indicates the block's hash does not satisfy its own
	// targetBits.
	ErrHighHash

	// ErrNoTransactions indicates the block has no transactions.
	ErrNoTransactions

	// ErrFirstTxNotCoinbase indicates the first transaction of a block
	// is not a coinbase transaction.
	ErrFirstTxNotCoinbase

	// ErrMultipleCoinbases indicates a block contains more than one
	// coinbase transaction.
	ErrMultipleCoinbases

	// ErrBadCoinbaseHeight indicates the block's coinbase input script
	// does not begin with a push of the block height, when BIP-34 is
	// active for the block's height.
	ErrBadCoinbaseHeight

	// ErrBadMerkleRoot indicates the computed Merkle root does not match
	// the header's merkleRoot field.
	ErrBadMerkleRoot

	// ErrDuplicateTx indicates a block contains the same transaction
	// more than once.
	ErrDuplicateTx

	// ErrMissingTxOut indicates a transaction input spends an outpoint
	// that does not resolve to an unspent output in the UtxoStore.
	ErrMissingTxOut

	// ErrImmatureSpend indicates a transaction attempts to spend a
	// coinbase output before it has reached maturity.
	ErrImmatureSpend

	// ErrSpendTooHigh indicates a transaction's inputs are worth less
	// than its outputs.
	ErrSpendTooHigh

	// ErrBadFees indicates the coinbase output value exceeds the
	// allowed subsidy plus collected fees.
	ErrBadFees

	// ErrScriptValidation indicates a transaction input failed script
	// evaluation.
	ErrScriptValidation
)

var errorCodeStrings = map[ErrorCode]string{
	ErrDuplicateBlock:       "ErrDuplicateBlock",
	ErrMissingParent:        "ErrMissingParent",
	ErrBlockTooBig:          "ErrBlockTooBig",
	ErrInvalidTime:          "ErrInvalidTime",
	ErrTimeTooOld:           "ErrTimeTooOld",
	ErrTimeTooNew:           "ErrTimeTooNew",
	ErrUnexpectedDifficulty: "ErrUnexpectedDifficulty",
	ErrHighHash:             "ErrHighHash",
	ErrNoTransactions:       "ErrNoTransactions",
	ErrFirstTxNotCoinbase:   "ErrFirstTxNotCoinbase",
	ErrMultipleCoinbases:    "ErrMultipleCoinbases",
	ErrBadCoinbaseHeight:    "ErrBadCoinbaseHeight",
	ErrBadMerkleRoot:        "ErrBadMerkleRoot",
	ErrDuplicateTx:          "ErrDuplicateTx",
	ErrMissingTxOut:         "ErrMissingTxOut",
	ErrImmatureSpend:        "ErrImmatureSpend",
	ErrSpendTooHigh:         "ErrSpendTooHigh",
	ErrBadFees:              "ErrBadFees",
	ErrScriptValidation:     "ErrScriptValidation",
}

func (e ErrorCode) String() string {
	if s, ok := errorCodeStrings[e]; ok {
		return s
	}
	return fmt.Sprintf("ErrorCode(%d)", int(e))
}

// RuleError identifies a rule violation encountered validating a header or
// block.  Callers can use a type assertion to check whether a failure was
// specifically due to a rule violation and, if so, examine the error code
// to identify the specific reason.
type RuleError struct {
	ErrorCode   ErrorCode
	Description string
}

func (e RuleError) Error() string {
	return e.Description
}

func ruleError(c ErrorCode, desc string) RuleError {
	return RuleError{ErrorCode: c, Description: desc}
}

// IsErrorCode reports whether err is a RuleError carrying the given code.
func IsErrorCode(err error, c ErrorCode) bool {
	rerr, ok := err.(RuleError)
	return ok && rerr.ErrorCode == c
}
