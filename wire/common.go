// Package wire implements the bit-exact block and transaction encoding
// this node's chain state must agree on with the rest of the network: the
// 80-byte header, compact-size integers, and the legacy (no-witness)
// transaction format.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/bchsuite/bchd/chaincfg/chainhash"
)

// MaxVarIntPayload is the max payload size for a compact-size encoded
// variable length integer.
const MaxVarIntPayload = 9

// errNonCanonicalVarInt is the common format string used for discovering
// errors in the compact size decoder.
var errNonCanonicalVarInt = "non-canonical varint %x - discriminant %x must " +
	"encode a value greater than %x"

// binarySerializer is a shared scratch-buffer helper mirroring the pattern
// the upstream btcd wire package uses to avoid per-call allocation when
// reading/writing small fixed-size fields.
type binaryFreeList chan []byte

var binarySerializer binaryFreeList = make(chan []byte, 32)

func (l binaryFreeList) Borrow() []byte {
	var buf []byte
	select {
	case buf = <-l:
	default:
		buf = make([]byte, 8)
	}
	return buf[:8]
}

func (l binaryFreeList) Return(buf []byte) {
	select {
	case l <- buf:
	default:
	}
}

func (l binaryFreeList) Uint8(r io.Reader) (uint8, error) {
	buf := l.Borrow()[:1]
	if _, err := io.ReadFull(r, buf); err != nil {
		l.Return(buf)
		return 0, err
	}
	rv := buf[0]
	l.Return(buf)
	return rv, nil
}

func (l binaryFreeList) Uint16(r io.Reader) (uint16, error) {
	buf := l.Borrow()[:2]
	if _, err := io.ReadFull(r, buf); err != nil {
		l.Return(buf)
		return 0, err
	}
	rv := binary.LittleEndian.Uint16(buf)
	l.Return(buf)
	return rv, nil
}

func (l binaryFreeList) Uint32(r io.Reader) (uint32, error) {
	buf := l.Borrow()[:4]
	if _, err := io.ReadFull(r, buf); err != nil {
		l.Return(buf)
		return 0, err
	}
	rv := binary.LittleEndian.Uint32(buf)
	l.Return(buf)
	return rv, nil
}

func (l binaryFreeList) Uint64(r io.Reader) (uint64, error) {
	buf := l.Borrow()[:8]
	if _, err := io.ReadFull(r, buf); err != nil {
		l.Return(buf)
		return 0, err
	}
	rv := binary.LittleEndian.Uint64(buf)
	l.Return(buf)
	return rv, nil
}

func (l binaryFreeList) PutUint8(w io.Writer, val uint8) error {
	buf := l.Borrow()[:1]
	buf[0] = val
	_, err := w.Write(buf)
	l.Return(buf)
	return err
}

func (l binaryFreeList) PutUint16(w io.Writer, val uint16) error {
	buf := l.Borrow()[:2]
	binary.LittleEndian.PutUint16(buf, val)
	_, err := w.Write(buf)
	l.Return(buf)
	return err
}

func (l binaryFreeList) PutUint32(w io.Writer, val uint32) error {
	buf := l.Borrow()[:4]
	binary.LittleEndian.PutUint32(buf, val)
	_, err := w.Write(buf)
	l.Return(buf)
	return err
}

func (l binaryFreeList) PutUint64(w io.Writer, val uint64) error {
	buf := l.Borrow()[:8]
	binary.LittleEndian.PutUint64(buf, val)
	_, err := w.Write(buf)
	l.Return(buf)
	return err
}

// ReadVarInt reads a compact-size encoded variable-length integer from r
// and returns it as a uint64.
func ReadVarInt(r io.Reader) (uint64, error) {
	discriminant, err := binarySerializer.Uint8(r)
	if err != nil {
		return 0, err
	}

	var rv uint64
	switch discriminant {
	case 0xff:
		sv, err := binarySerializer.Uint64(r)
		if err != nil {
			return 0, err
		}
		rv = sv

		// The encoding is not canonical if the value could have been
		// encoded using fewer bytes.
		min := uint64(0x100000000)
		if rv < min {
			return 0, messageError("ReadVarInt", fmt.Sprintf(
				errNonCanonicalVarInt, rv, discriminant, min))
		}

	case 0xfe:
		sv, err := binarySerializer.Uint32(r)
		if err != nil {
			return 0, err
		}
		rv = uint64(sv)

		min := uint64(0x10000)
		if rv < min {
			return 0, messageError("ReadVarInt", fmt.Sprintf(
				errNonCanonicalVarInt, rv, discriminant, min))
		}

	case 0xfd:
		sv, err := binarySerializer.Uint16(r)
		if err != nil {
			return 0, err
		}
		rv = uint64(sv)

		min := uint64(0xfd)
		if rv < min {
			return 0, messageError("ReadVarInt", fmt.Sprintf(
				errNonCanonicalVarInt, rv, discriminant, min))
		}

	default:
		rv = uint64(discriminant)
	}

	return rv, nil
}

// WriteVarInt writes val to w using a variable number of bytes depending on
// its value: one byte if < 0xfd, else a discriminant byte followed by the
// value encoded in 2, 4, or 8 bytes.
func WriteVarInt(w io.Writer, val uint64) error {
	if val < 0xfd {
		return binarySerializer.PutUint8(w, uint8(val))
	}

	if val <= 0xffff {
		if err := binarySerializer.PutUint8(w, 0xfd); err != nil {
			return err
		}
		return binarySerializer.PutUint16(w, uint16(val))
	}

	if val <= 0xffffffff {
		if err := binarySerializer.PutUint8(w, 0xfe); err != nil {
			return err
		}
		return binarySerializer.PutUint32(w, uint32(val))
	}

	if err := binarySerializer.PutUint8(w, 0xff); err != nil {
		return err
	}
	return binarySerializer.PutUint64(w, val)
}

// VarIntSerializeSize returns the number of bytes it would take to encode
// val as a compact-size variable-length integer.
func VarIntSerializeSize(val uint64) int {
	if val < 0xfd {
		return 1
	}
	if val <= 0xffff {
		return 3
	}
	if val <= 0xffffffff {
		return 5
	}
	return 9
}

// ReadVarBytes reads a variable length byte array.  A maxAllowed parameter
// is provided to ensure the byte array doesn't blow up the allocator.
func ReadVarBytes(r io.Reader, maxAllowed uint32, fieldName string) ([]byte, error) {
	count, err := ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	if count > uint64(maxAllowed) {
		str := fmt.Sprintf("%s is larger than the max allowed size "+
			"[count %d, max %d]", fieldName, count, maxAllowed)
		return nil, messageError("ReadVarBytes", str)
	}

	b := make([]byte, count)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// WriteVarBytes serializes a variable length byte array to w as a
// compact-size length prefix followed by the bytes themselves.
func WriteVarBytes(w io.Writer, bytes []byte) error {
	slen := uint64(len(bytes))
	if err := WriteVarInt(w, slen); err != nil {
		return err
	}
	_, err := w.Write(bytes)
	return err
}

func readHash(r io.Reader, h *chainhash.Hash) error {
	_, err := io.ReadFull(r, h[:])
	return err
}

func writeHash(w io.Writer, h *chainhash.Hash) error {
	_, err := w.Write(h[:])
	return err
}

// messageError creates an error for the given function and description.
func messageError(f string, desc string) error {
	return &MessageError{Func: f, Description: desc}
}

// MessageError describes an issue with a message.  An example of some of
// the issues are messages that are too long, malformed header
// encodings, or invalid field values.
type MessageError struct {
	Func        string
	Description string
}

func (e *MessageError) Error() string {
	if e.Func != "" {
		return fmt.Sprintf("%s: %s", e.Func, e.Description)
	}
	return e.Description
}
