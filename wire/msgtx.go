package wire

import (
	"bytes"
	"fmt"
	"io"

	"github.com/bchsuite/bchd/chaincfg/chainhash"
)

const (
	// TxVersion is the current latest supported transaction version.
	TxVersion = 1

	// MaxTxInSequenceNum is the maximum sequence number the sequence field
	// of a transaction input can be.
	MaxTxInSequenceNum uint32 = 0xffffffff

	// MaxPrevOutIndex is the maximum index the index field of a previous
	// outpoint can be.  It is used by the coinbase outpoint.
	MaxPrevOutIndex uint32 = 0xffffffff

	// minTxInPayload is the minimum payload size for a transaction input:
	// previous outpoint hash (32 bytes) + index (4 bytes) + varint script
	// length (1 byte) + sequence (4 bytes).
	minTxInPayload = 9 + chainhash.HashSize

	// MinTxOutPayload is the minimum payload size for a transaction
	// output: value (8 bytes) + varint script length (1 byte).
	MinTxOutPayload = 9

	// MaxMessagePayload is the maximum bytes a message can be regardless
	// of other individual limits imposed by messages themselves.
	MaxMessagePayload = 32 * 1024 * 1024

	maxTxInPerMessage  = (MaxMessagePayload / minTxInPayload) + 1
	maxTxOutPerMessage = (MaxMessagePayload / MinTxOutPayload) + 1
)

// OutPoint defines a bitcoin data type that is used to track previous
// transaction outputs.
type OutPoint struct {
	Hash  chainhash.Hash
	Index uint32
}

// NewOutPoint returns a new bitcoin transaction outpoint point with the
// provided hash and index.
func NewOutPoint(hash *chainhash.Hash, index uint32) *OutPoint {
	return &OutPoint{Hash: *hash, Index: index}
}

// String returns the OutPoint in the human-readable form "hash:index".
func (o OutPoint) String() string {
	return fmt.Sprintf("%s:%d", o.Hash.String(), o.Index)
}

// TxIn defines a bitcoin transaction input.
type TxIn struct {
	PreviousOutPoint OutPoint
	SignatureScript  []byte
	Sequence         uint32
}

// NewTxIn returns a new bitcoin transaction input with the provided
// previous outpoint point and signature script with a default sequence of
// MaxTxInSequenceNum.
func NewTxIn(prevOut *OutPoint, signatureScript []byte) *TxIn {
	return &TxIn{
		PreviousOutPoint: *prevOut,
		SignatureScript:  signatureScript,
		Sequence:         MaxTxInSequenceNum,
	}
}

// SerializeSize returns the number of bytes it would take to serialize the
// transaction input.
func (t *TxIn) SerializeSize() int {
	return 40 + VarIntSerializeSize(uint64(len(t.SignatureScript))) + len(t.SignatureScript)
}

// TxOut defines a bitcoin transaction output.
type TxOut struct {
	Value    int64
	PkScript []byte
}

// NewTxOut returns a new bitcoin transaction output with the provided
// transaction value and public key script.
func NewTxOut(value int64, pkScript []byte) *TxOut {
	return &TxOut{Value: value, PkScript: pkScript}
}

// SerializeSize returns the number of bytes it would take to serialize the
// transaction output.
func (t *TxOut) SerializeSize() int {
	return 8 + VarIntSerializeSize(uint64(len(t.PkScript))) + len(t.PkScript)
}

// MsgTx implements a transaction: an ordered
// sequence of inputs and outputs plus a version and lock time.  There is no
// segregated witness commitment — Bitcoin Cash never adopted SegWit, so the
// legacy encoding is the only encoding.
type MsgTx struct {
	Version  int32
	TxIn     []*TxIn
	TxOut    []*TxOut
	LockTime uint32
}

// NewMsgTx returns a new bitcoin tx message that conforms to the Message
// interface.  The return instance has the passed version and there are no
// transaction inputs or outputs.  Also, the lock time is set
// to zero to indicate the transaction is valid immediately as opposed to
// some time in future.
func NewMsgTx(version int32) *MsgTx {
	return &MsgTx{
		Version: version,
		TxIn:    make([]*TxIn, 0, 1),
		TxOut:   make([]*TxOut, 0, 1),
	}
}

// AddTxIn adds a transaction input to the message.
func (msg *MsgTx) AddTxIn(ti *TxIn) {
	msg.TxIn = append(msg.TxIn, ti)
}

// AddTxOut adds a transaction output to the message.
func (msg *MsgTx) AddTxOut(to *TxOut) {
	msg.TxOut = append(msg.TxOut, to)
}

// IsCoinBase determines whether the transaction is a coinbase transaction:
// exactly one input whose outpoint is the all-zero hash with
// index 0xffffffff.
func (msg *MsgTx) IsCoinBase() bool {
	if len(msg.TxIn) != 1 {
		return false
	}
	prevOut := &msg.TxIn[0].PreviousOutPoint
	return prevOut.Index == MaxPrevOutIndex && prevOut.Hash == zeroHash
}

var zeroHash chainhash.Hash

// TxHash computes the double-SHA256 hash of the canonical serialization of
// the transaction (no witness data exists to exclude).
func (msg *MsgTx) TxHash() chainhash.Hash {
	buf := bytes.NewBuffer(make([]byte, 0, msg.SerializeSize()))
	_ = msg.Serialize(buf)
	return chainhash.DoubleHashH(buf.Bytes())
}

// SerializeSize returns the number of bytes it would take to serialize the
// transaction.
func (msg *MsgTx) SerializeSize() int {
	n := 8 // version + locktime
	n += VarIntSerializeSize(uint64(len(msg.TxIn)))
	for _, ti := range msg.TxIn {
		n += ti.SerializeSize()
	}
	n += VarIntSerializeSize(uint64(len(msg.TxOut)))
	for _, to := range msg.TxOut {
		n += to.SerializeSize()
	}
	return n
}

// Serialize encodes the transaction to w using the canonical legacy wire
// format.
func (msg *MsgTx) Serialize(w io.Writer) error {
	if err := binarySerializer.PutUint32(w, uint32(msg.Version)); err != nil {
		return err
	}

	if err := WriteVarInt(w, uint64(len(msg.TxIn))); err != nil {
		return err
	}
	for _, ti := range msg.TxIn {
		if err := writeTxIn(w, ti); err != nil {
			return err
		}
	}

	if err := WriteVarInt(w, uint64(len(msg.TxOut))); err != nil {
		return err
	}
	for _, to := range msg.TxOut {
		if err := writeTxOut(w, to); err != nil {
			return err
		}
	}

	return binarySerializer.PutUint32(w, msg.LockTime)
}

// Deserialize decodes a transaction from r into the receiver using the
// canonical legacy wire format.
func (msg *MsgTx) Deserialize(r io.Reader) error {
	version, err := binarySerializer.Uint32(r)
	if err != nil {
		return err
	}
	msg.Version = int32(version)

	txInCount, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	if txInCount > uint64(maxTxInPerMessage) {
		return messageError("MsgTx.Deserialize", fmt.Sprintf(
			"too many input transactions to fit into max message "+
				"size [count %d, max %d]", txInCount, maxTxInPerMessage))
	}
	msg.TxIn = make([]*TxIn, txInCount)
	for i := uint64(0); i < txInCount; i++ {
		ti := &TxIn{}
		if err := readTxIn(r, ti); err != nil {
			return err
		}
		msg.TxIn[i] = ti
	}

	txOutCount, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	if txOutCount > uint64(maxTxOutPerMessage) {
		return messageError("MsgTx.Deserialize", fmt.Sprintf(
			"too many output transactions to fit into max message "+
				"size [count %d, max %d]", txOutCount, maxTxOutPerMessage))
	}
	msg.TxOut = make([]*TxOut, txOutCount)
	for i := uint64(0); i < txOutCount; i++ {
		to := &TxOut{}
		if err := readTxOut(r, to); err != nil {
			return err
		}
		msg.TxOut[i] = to
	}

	msg.LockTime, err = binarySerializer.Uint32(r)
	return err
}

func readTxIn(r io.Reader, ti *TxIn) error {
	if err := readHash(r, &ti.PreviousOutPoint.Hash); err != nil {
		return err
	}
	idx, err := binarySerializer.Uint32(r)
	if err != nil {
		return err
	}
	ti.PreviousOutPoint.Index = idx

	script, err := ReadVarBytes(r, MaxMessagePayload, "signature script")
	if err != nil {
		return err
	}
	ti.SignatureScript = script

	ti.Sequence, err = binarySerializer.Uint32(r)
	return err
}

func writeTxIn(w io.Writer, ti *TxIn) error {
	if err := writeHash(w, &ti.PreviousOutPoint.Hash); err != nil {
		return err
	}
	if err := binarySerializer.PutUint32(w, ti.PreviousOutPoint.Index); err != nil {
		return err
	}
	if err := WriteVarBytes(w, ti.SignatureScript); err != nil {
		return err
	}
	return binarySerializer.PutUint32(w, ti.Sequence)
}

func readTxOut(r io.Reader, to *TxOut) error {
	value, err := binarySerializer.Uint64(r)
	if err != nil {
		return err
	}
	to.Value = int64(value)

	script, err := ReadVarBytes(r, MaxMessagePayload, "public key script")
	if err != nil {
		return err
	}
	to.PkScript = script
	return nil
}

func writeTxOut(w io.Writer, to *TxOut) error {
	if err := binarySerializer.PutUint64(w, uint64(to.Value)); err != nil {
		return err
	}
	return WriteVarBytes(w, to.PkScript)
}

// Copy creates a deep copy of the transaction so callers can mutate (e.g.
// for signature-hash serialisations in txscript) without affecting the
// original.
func (msg *MsgTx) Copy() *MsgTx {
	newTx := MsgTx{
		Version:  msg.Version,
		TxIn:     make([]*TxIn, 0, len(msg.TxIn)),
		TxOut:    make([]*TxOut, 0, len(msg.TxOut)),
		LockTime: msg.LockTime,
	}

	for _, oldTxIn := range msg.TxIn {
		var newScript []byte
		if len(oldTxIn.SignatureScript) > 0 {
			newScript = make([]byte, len(oldTxIn.SignatureScript))
			copy(newScript, oldTxIn.SignatureScript)
		}
		newTx.TxIn = append(newTx.TxIn, &TxIn{
			PreviousOutPoint: oldTxIn.PreviousOutPoint,
			SignatureScript:  newScript,
			Sequence:         oldTxIn.Sequence,
		})
	}

	for _, oldTxOut := range msg.TxOut {
		var newScript []byte
		if len(oldTxOut.PkScript) > 0 {
			newScript = make([]byte, len(oldTxOut.PkScript))
			copy(newScript, oldTxOut.PkScript)
		}
		newTx.TxOut = append(newTx.TxOut, &TxOut{
			Value:    oldTxOut.Value,
			PkScript: newScript,
		})
	}

	return &newTx
}
