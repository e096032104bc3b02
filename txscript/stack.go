package txscript

import (
	"fmt"
)

// asBool gets the boolean value of the byte array.
func asBool(t []byte) bool {
	for i := range t {
		if t[i] != 0 {
			// Negative zero is still considered false.
			if i == len(t)-1 && t[i] == 0x80 {
				return false
			}
			return true
		}
	}
	return false
}

// fromBool converts a boolean into the appropriate byte array.
func fromBool(v bool) []byte {
	if v {
		return []byte{1}
	}
	return nil
}

// stack represents a stack of immutable objects to be used with bitcoin
// scripts.  Objects may be shared, so it is important not to mutate any
// items on the stack.
type stack struct {
	stk [][]byte
}

// Depth returns the number of items on the stack.
func (s *stack) Depth() int32 {
	return int32(len(s.stk))
}

// PushByteArray adds the given back array to the top of the stack.
func (s *stack) PushByteArray(so []byte) {
	s.stk = append(s.stk, so)
}

// PushInt converts the provided scriptNum to a suitable byte array then
// pushes it onto the top of the stack.
func (s *stack) PushInt(val scriptNum) {
	s.PushByteArray(val.Bytes())
}

// PushBool converts the provided boolean to a suitable byte array then
// pushes it onto the top of the stack.
func (s *stack) PushBool(val bool) {
	s.PushByteArray(fromBool(val))
}

// PopByteArray pops the value off the top of the stack and returns it.
func (s *stack) PopByteArray() ([]byte, error) {
	return s.nipN(0)
}

// PopInt pops the value off the top of the stack, converts it into a
// script num, and returns it.
func (s *stack) PopInt() (scriptNum, error) {
	so, err := s.PopByteArray()
	if err != nil {
		return 0, err
	}
	return makeScriptNum(so, true, defaultScriptNumLen)
}

// PopBool pops the value off the top of the stack, converts it into a
// bool, and returns it.
func (s *stack) PopBool() (bool, error) {
	so, err := s.PopByteArray()
	if err != nil {
		return false, err
	}
	return asBool(so), nil
}

// PeekByteArray returns the Nth item on the stack without removing it.
func (s *stack) PeekByteArray(idx int32) ([]byte, error) {
	sz := int32(len(s.stk))
	if idx < 0 || idx >= sz {
		return nil, scriptError(ErrInvalidStackOperation,
			"index out of range")
	}
	return s.stk[sz-idx-1], nil
}

// PeekInt returns the Nth item on the stack as a script num without
// removing it.
func (s *stack) PeekInt(idx int32) (scriptNum, error) {
	so, err := s.PeekByteArray(idx)
	if err != nil {
		return 0, err
	}
	return makeScriptNum(so, true, defaultScriptNumLen)
}

// PeekBool returns the Nth item on the stack as a bool without removing it.
func (s *stack) PeekBool(idx int32) (bool, error) {
	so, err := s.PeekByteArray(idx)
	if err != nil {
		return false, err
	}
	return asBool(so), nil
}

// nipN is a helper function that removes the nth item on the stack and
// returns it.
func (s *stack) nipN(idx int32) ([]byte, error) {
	sz := int32(len(s.stk))
	if idx < 0 || idx > sz-1 {
		return nil, scriptError(ErrInvalidStackOperation,
			fmt.Sprintf("index %d is invalid for stack size %d", idx, sz))
	}
	so := s.stk[sz-idx-1]
	if idx == 0 {
		s.stk = s.stk[:sz-1]
	} else if idx == sz-1 {
		s1 := make([][]byte, sz-1)
		copy(s1, s.stk[1:])
		s.stk = s1
	} else {
		s1 := s.stk[sz-idx : sz]
		s.stk = append(s.stk[:sz-idx-1], s1...)
	}
	return so, nil
}

// NipN removes the Nth object on the stack.
func (s *stack) NipN(idx int32) error {
	_, err := s.nipN(idx)
	return err
}

// Tuck copies the item at the top of the stack and inserts it before the
// second to top item.
func (s *stack) Tuck() error {
	so2, err := s.PopByteArray()
	if err != nil {
		return err
	}
	so1, err := s.PopByteArray()
	if err != nil {
		return err
	}
	s.PushByteArray(so2)
	s.PushByteArray(so1)
	s.PushByteArray(so2)
	return nil
}

// DropN removes the top N items from the stack.
func (s *stack) DropN(n int32) error {
	if n < 1 {
		return scriptError(ErrInvalidStackOperation,
			"attempt to drop fewer than 1 items from stack")
	}
	for ; n > 0; n-- {
		if _, err := s.PopByteArray(); err != nil {
			return err
		}
	}
	return nil
}

// DupN duplicates the top N items on the stack.
func (s *stack) DupN(n int32) error {
	if n < 1 {
		return scriptError(ErrInvalidStackOperation,
			"attempt to dup fewer than 1 items from stack")
	}
	for i := n; i > 0; i-- {
		so, err := s.PeekByteArray(n - 1)
		if err != nil {
			return err
		}
		s.PushByteArray(so)
	}
	return nil
}

// RotN rotates the top 3N items on the stack to the left N times.
func (s *stack) RotN(n int32) error {
	if n < 1 {
		return scriptError(ErrInvalidStackOperation,
			"attempt to rotate fewer than 1 items from stack")
	}
	entry := 3*n - 1
	for i := int32(0); i < n; i++ {
		so, err := s.nipN(entry)
		if err != nil {
			return err
		}
		s.PushByteArray(so)
	}
	return nil
}

// SwapN swaps the top N items on the stack with those below them.
func (s *stack) SwapN(n int32) error {
	if n < 1 {
		return scriptError(ErrInvalidStackOperation,
			"attempt to swap fewer than 1 items from stack")
	}
	entry := 2*n - 1
	for i := int32(0); i < n; i++ {
		so, err := s.nipN(entry)
		if err != nil {
			return err
		}
		s.PushByteArray(so)
	}
	return nil
}

// OverN copies N items N items back to the top of the stack.
func (s *stack) OverN(n int32) error {
	if n < 1 {
		return scriptError(ErrInvalidStackOperation,
			"attempt to perform over on fewer than 1 items from stack")
	}
	entry := 2*n - 1
	for ; n > 0; n-- {
		so, err := s.PeekByteArray(entry)
		if err != nil {
			return err
		}
		s.PushByteArray(so)
	}
	return nil
}

// PickN copies the item N items back in the stack to the top.
func (s *stack) PickN(n int32) error {
	so, err := s.PeekByteArray(n)
	if err != nil {
		return err
	}
	s.PushByteArray(so)
	return nil
}

// RollN moves the item N items back in the stack to the top.
func (s *stack) RollN(n int32) error {
	so, err := s.nipN(n)
	if err != nil {
		return err
	}
	s.PushByteArray(so)
	return nil
}

// String returns the stack in a human-readable format.
func (s *stack) String() string {
	var result string
	for _, stack := range s.stk {
		if len(stack) == 0 {
			result += "00000000  <empty>\n"
			continue
		}
		result += fmt.Sprintf("%x\n", stack)
	}
	return result
}
