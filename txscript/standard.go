package txscript

// ScriptClass is a label describing a standard recognised form of output
// script.  Classification is advisory only -- it has no
// bearing on consensus validity, which is always determined by actually
// running the scripts through the Engine.
type ScriptClass int

const (
	NonStandardTy ScriptClass = iota
	PubKeyTy
	PubKeyHashTy
	ScriptHashTy
	MultiSigTy
	NullDataTy
)

var scriptClassNames = map[ScriptClass]string{
	NonStandardTy: "nonstandard",
	PubKeyTy:      "pubkey",
	PubKeyHashTy:  "pubkeyhash",
	ScriptHashTy:  "scripthash",
	MultiSigTy:    "multisig",
	NullDataTy:    "nulldata",
}

func (c ScriptClass) String() string {
	if name, ok := scriptClassNames[c]; ok {
		return name
	}
	return "invalid"
}

// isScriptHash reports whether pops is the P2SH template: HASH160 <20> EQUAL.
func isScriptHash(pops []parsedOpcode) bool {
	return len(pops) == 3 &&
		pops[0].opcode.value == OP_HASH160 &&
		pops[1].opcode.value == OP_DATA_20 &&
		len(pops[1].data) == 20 &&
		pops[2].opcode.value == OP_EQUAL
}

// isPubKeyHash reports whether pops is the P2PKH template: DUP HASH160 <20>
// EQUALVERIFY CHECKSIG.
func isPubKeyHash(pops []parsedOpcode) bool {
	return len(pops) == 5 &&
		pops[0].opcode.value == OP_DUP &&
		pops[1].opcode.value == OP_HASH160 &&
		pops[2].opcode.value == OP_DATA_20 &&
		len(pops[2].data) == 20 &&
		pops[3].opcode.value == OP_EQUALVERIFY &&
		pops[4].opcode.value == OP_CHECKSIG
}

// isPubKey reports whether pops is the P2PK template: <pubkey> CHECKSIG.
func isPubKey(pops []parsedOpcode) bool {
	if len(pops) != 2 {
		return false
	}
	if pops[1].opcode.value != OP_CHECKSIG {
		return false
	}
	dataLen := len(pops[0].data)
	return (dataLen == 33 || dataLen == 65) &&
		pops[0].opcode.value <= OP_DATA_75
}

// isMultiSig reports whether pops is the m <keys...> n CHECKMULTISIG
// template.
func isMultiSig(pops []parsedOpcode) bool {
	l := len(pops)
	if l < 4 {
		return false
	}
	if pops[l-1].opcode.value != OP_CHECKMULTISIG {
		return false
	}

	numSigs, ok := asSmallInt(pops[0].opcode.value)
	if !ok {
		return false
	}
	numKeys, ok := asSmallInt(pops[l-2].opcode.value)
	if !ok {
		return false
	}
	if numKeys < numSigs {
		return false
	}
	if l-2-1 != numKeys {
		return false
	}
	for _, pop := range pops[1 : l-2] {
		dataLen := len(pop.data)
		if dataLen != 33 && dataLen != 65 {
			return false
		}
	}
	return true
}

func asSmallInt(op byte) (int, bool) {
	if op == OP_0 {
		return 0, true
	}
	if op >= OP_1 && op <= OP_16 {
		return int(op) - int(OP_1) + 1, true
	}
	return 0, false
}

// isNullData reports whether pops is the data-carrier template: RETURN
// followed only by push opcodes.
func isNullData(pops []parsedOpcode) bool {
	if len(pops) < 1 || pops[0].opcode.value != OP_RETURN {
		return false
	}
	for _, pop := range pops[1:] {
		if pop.opcode.value > OP_16 {
			return false
		}
	}
	return true
}

// GetScriptClass classifies pkScript as one of the standard recognised
// output script shapes, for inspection tooling only.
func GetScriptClass(pkScript []byte) ScriptClass {
	pops, err := parseScript(pkScript)
	if err != nil {
		return NonStandardTy
	}

	switch {
	case isPubKeyHash(pops):
		return PubKeyHashTy
	case isScriptHash(pops):
		return ScriptHashTy
	case isPubKey(pops):
		return PubKeyTy
	case isMultiSig(pops):
		return MultiSigTy
	case isNullData(pops):
		return NullDataTy
	default:
		return NonStandardTy
	}
}
