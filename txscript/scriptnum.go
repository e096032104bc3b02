package txscript

import "fmt"

// defaultScriptNumLen is the default number of bytes data being interpreted
// as an integer may be.
const defaultScriptNumLen = 4

// scriptNum represents the number used in the scripting engine.  Numbers
// are serialised little-endian, with the most significant
// bit of the last byte as the sign bit, a prepended zero byte when needed
// to disambiguate sign, and the empty byte string representing zero.  The
// decoder rejects encodings whose magnitude exceeds the requested byte
// length (4 bytes for ordinary arithmetic opcodes), but arithmetic is
// carried out on a 64-bit signed integer internally so intermediate
// results (e.g. multiplying two 4-byte operands) do not overflow before
// the final minimal re-encoding.
type scriptNum int64

// checkMinimalDataEncoding returns whether the given byte array adheres to
// the minimal encoding requirements.
func checkMinimalDataEncoding(v []byte) error {
	if len(v) == 0 {
		return nil
	}

	// Check that the number is encoded with the minimum possible number
	// of bytes.
	//
	// If the most-significant-byte - excluding the sign bit - is zero
	// then we're not minimal.  Note how this test also rejects the
	// negative-zero encoding, [0x80].
	if v[len(v)-1]&0x7f == 0 {
		// One exception: if there's more than one byte and the most
		// significant bit of the second-to-last byte is set it would
		// conflict with the sign bit, so a single zero byte is
		// required in that case.
		if len(v) == 1 || v[len(v)-2]&0x80 == 0 {
			return scriptError(ErrMinimalData,
				"numeric value encoded as "+fmt.Sprintf("%x", v)+" is "+
					"not minimally encoded")
		}
	}

	return nil
}

// makeScriptNum interprets the passed serialized bytes as an encoded
// integer and returns the result as a scriptNum.  It errors if the length
// exceeds the passed scriptNumLen or (if requireMinimal is true) the
// encoding is non-minimal.
func makeScriptNum(v []byte, requireMinimal bool, scriptNumLen int) (scriptNum, error) {
	if len(v) > scriptNumLen {
		return 0, scriptError(ErrNumberTooBig, fmt.Sprintf(
			"numeric value encoded as %x is %d bytes which exceeds "+
				"the max allowed of %d", v, len(v), scriptNumLen))
	}

	if requireMinimal {
		if err := checkMinimalDataEncoding(v); err != nil {
			return 0, err
		}
	}

	if len(v) == 0 {
		return 0, nil
	}

	var result int64
	for i, b := range v {
		result |= int64(b) << uint8(8*i)
	}

	// The most significant byte's high bit is the sign bit: if it's set
	// the number is negative and the sign bit must be masked out of the
	// magnitude.
	if v[len(v)-1]&0x80 != 0 {
		result &^= int64(0x80) << uint8(8*(len(v)-1))
		return scriptNum(-result), nil
	}

	return scriptNum(result), nil
}

// Bytes returns the number serialized as a little-endian sign-magnitude
// integer, stripped of any unnecessary leading zero bytes.
func (n scriptNum) Bytes() []byte {
	if n == 0 {
		return nil
	}

	isNegative := n < 0
	absoluteValue := n
	if isNegative {
		absoluteValue = -n
	}

	result := make([]byte, 0, 9)
	for absoluteValue > 0 {
		result = append(result, byte(absoluteValue&0xff))
		absoluteValue >>= 8
	}

	if result[len(result)-1]&0x80 != 0 {
		extraByte := byte(0x00)
		if isNegative {
			extraByte = 0x80
		}
		result = append(result, extraByte)
	} else if isNegative {
		result[len(result)-1] |= 0x80
	}

	return result
}

// Int32 returns the script number clamped to a valid int32.  The current
// script engine only uses this for things such as OP_CHECKSEQUENCEVERIFY
// and relative lock time calculations.
func (n scriptNum) Int32() int32 {
	if int64(n) > int32max {
		return int32max
	}
	if int64(n) < int32min {
		return int32min
	}
	return int32(n)
}

const (
	int32max = 1<<31 - 1
	int32min = -1 << 31
)
