package vm

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// OpCode defines the type for bytecode instructions.
type OpCode uint8

// The opcode catalogue. Operand layout conventions: registers are one byte,
// constant/name/cache indices are two bytes big-endian, jump offsets are
// signed 16-bit relative to the end of the instruction, heap upper-depth is
// one byte.
const (
	// Register moves and literals.
	OpLoadConst     OpCode = iota // Rx ConstIdx16: Rx = Constants[idx]
	OpLoadUndefined               // Rx
	OpLoadNull                    // Rx
	OpLoadTrue                    // Rx
	OpLoadFalse                   // Rx
	OpLoadInt8                    // Rx Imm8: Rx = small integer literal
	OpMove                        // Rx Ry: Rx = Ry

	// Arithmetic and logic (Dest, Left, Right).
	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
	OpRemainder
	OpExponent
	OpNegate   // Rx Ry
	OpToNumber // Rx Ry: unary plus
	OpNot      // Rx Ry
	OpBitwiseNot
	OpBitwiseAnd
	OpBitwiseOr
	OpBitwiseXor
	OpShiftLeft
	OpShiftRight
	OpUnsignedShiftRight

	// Comparison (Dest, Left, Right) -> boolean.
	OpEqual
	OpNotEqual
	OpStrictEqual
	OpStrictNotEqual
	OpLess
	OpLessEqual
	OpGreater
	OpGreaterEqual
	OpIn         // Rx Ry Rz: Rx = (Ry in Rz)
	OpInstanceof // Rx Ry Rz

	OpTypeof     // Rx Ry
	OpTypeofName // Rx NameIdx16: typeof of a possibly-unresolved name

	// Name-keyed access along the environment chain.
	OpLoadByName             // Rx NameIdx16
	OpStoreByName            // NameIdx16 Ry
	OpStoreByNameWithAddress // AddrReg NameIdx16 Ry: store through a pre-resolved reference
	OpInitializeByName       // NameIdx16 Ry IsLexical8
	OpResolveNameAddress     // Rx NameIdx16: pre-resolve a reference for a compound assignment

	// Indexed heap environment access.
	OpLoadByHeapIndex       // Rx Depth8 Slot16
	OpStoreByHeapIndex      // Depth8 Slot16 Ry
	OpInitializeByHeapIndex // Slot16 Ry

	// Global variable cache family.
	OpGetGlobalVariable        // Rx CacheIdx16
	OpSetGlobalVariable        // CacheIdx16 Ry
	OpInitializeGlobalVariable // NameIdx16 Ry Mode8 (0: var hoist, 1: lexical init, 2: function decl)
	OpDeclareGlobalLexical     // NameIdx16 Mutable8: create a top-level lexical binding in its TDZ

	OpCheckTDZ // Rx NameIdx16: throw ReferenceError if Rx is the empty sentinel

	// Property access.
	OpGetPropByName        // Rx Ry NameIdx16: Rx = Ry.name
	OpSetPropByName        // Rx NameIdx16 Ry: Rx.name = Ry
	OpGetByProperty        // Rx Ry Rz: Rx = Ry[Rz]
	OpSetByProperty        // Rx Ry Rz: Rx[Ry] = Rz
	OpDeleteProperty       // Rx Ry Rz: Rx = delete Ry[Rz]
	OpDeletePropByName     // Rx Ry NameIdx16
	OpDeleteGlobalProperty // Rx NameIdx16: Rx = delete global.name (sloppy delete of an unresolved identifier)

	// Object and array construction.
	OpMakeObject         // Rx
	OpMakeArray          // Rx StartReg Count8: array from Count contiguous registers
	OpDefineDataProperty // ObjReg KeyReg ValReg: computed-key literal entry
	OpDefineGetter       // ObjReg NameIdx16 FnReg
	OpDefineSetter       // ObjReg NameIdx16 FnReg

	// Control flow.
	OpJump        // Offset16
	OpJumpIfFalse // Ry Offset16
	OpJumpIfTrue  // Ry Offset16
	OpCall        // Rx FuncReg ThisReg ArgStart ArgCount
	OpNew         // Rx FuncReg ArgStart ArgCount
	OpReturn      // Ry
	OpReturnUndefined
	OpThrow            // Ry
	OpThrowStaticError // Kind8 MsgConstIdx16: compile-time proven failure

	// Iteration.
	OpGetIterator      // Rx Ry: Rx = Ry[@@iterator]()
	OpIteratorStep     // Rx DoneReg IterReg: advance, Rx = value, DoneReg = done
	OpIteratorClose    // Ry: call Ry.return() on abrupt loop completion
	OpCreateEnumerator // Rx Ry: for-in key enumerator over Ry
	OpEnumeratorNext   // Rx DoneReg EnumReg

	// Functions and frames.
	OpMakeFunction          // Rx ConstIdx16: close Constants[idx] over the live environment
	OpEnsureArgumentsObject // Rx: materialize the lazy arguments object, cache it, load into Rx
	OpLoadThis              // Rx

	// With-scope. Never emitted for strict-mode code blocks.
	OpPushWithScope // Ry
	OpPopWithScope  // no operands

	// Heap environment records. A capturing block pushes its record on
	// entry and pops on exit; loop bodies re-enter per iteration.
	OpPushBlockEnv // BlockScopeIdx16
	OpPopBlockEnv  // no operands
)

var opNames = [...]string{
	OpLoadConst: "LoadConst", OpLoadUndefined: "LoadUndefined", OpLoadNull: "LoadNull",
	OpLoadTrue: "LoadTrue", OpLoadFalse: "LoadFalse", OpLoadInt8: "LoadInt8", OpMove: "Move",
	OpAdd: "Add", OpSubtract: "Subtract", OpMultiply: "Multiply", OpDivide: "Divide",
	OpRemainder: "Remainder", OpExponent: "Exponent", OpNegate: "Negate", OpToNumber: "ToNumber",
	OpNot: "Not", OpBitwiseNot: "BitwiseNot", OpBitwiseAnd: "BitwiseAnd", OpBitwiseOr: "BitwiseOr",
	OpBitwiseXor: "BitwiseXor", OpShiftLeft: "ShiftLeft", OpShiftRight: "ShiftRight",
	OpUnsignedShiftRight: "UnsignedShiftRight",
	OpEqual:              "Equal", OpNotEqual: "NotEqual", OpStrictEqual: "StrictEqual",
	OpStrictNotEqual: "StrictNotEqual", OpLess: "Less", OpLessEqual: "LessEqual",
	OpGreater: "Greater", OpGreaterEqual: "GreaterEqual", OpIn: "In", OpInstanceof: "Instanceof",
	OpTypeof: "Typeof", OpTypeofName: "TypeofName",
	OpLoadByName: "LoadByName", OpStoreByName: "StoreByName",
	OpStoreByNameWithAddress: "StoreByNameWithAddress", OpInitializeByName: "InitializeByName",
	OpResolveNameAddress: "ResolveNameAddress",
	OpLoadByHeapIndex:    "LoadByHeapIndex", OpStoreByHeapIndex: "StoreByHeapIndex",
	OpInitializeByHeapIndex: "InitializeByHeapIndex",
	OpGetGlobalVariable:     "GetGlobalVariable", OpSetGlobalVariable: "SetGlobalVariable",
	OpInitializeGlobalVariable: "InitializeGlobalVariable",
	OpDeclareGlobalLexical:     "DeclareGlobalLexical", OpCheckTDZ: "CheckTDZ",
	OpGetPropByName: "GetPropByName", OpSetPropByName: "SetPropByName",
	OpGetByProperty: "GetByProperty", OpSetByProperty: "SetByProperty",
	OpDeleteProperty: "DeleteProperty", OpDeletePropByName: "DeletePropByName",
	OpDeleteGlobalProperty: "DeleteGlobalProperty",
	OpMakeObject:           "MakeObject", OpMakeArray: "MakeArray",
	OpDefineDataProperty: "DefineDataProperty", OpDefineGetter: "DefineGetter",
	OpDefineSetter: "DefineSetter",
	OpJump:         "Jump", OpJumpIfFalse: "JumpIfFalse", OpJumpIfTrue: "JumpIfTrue",
	OpCall: "Call", OpNew: "New", OpReturn: "Return", OpReturnUndefined: "ReturnUndefined",
	OpThrow: "Throw", OpThrowStaticError: "ThrowStaticError",
	OpGetIterator: "GetIterator", OpIteratorStep: "IteratorStep",
	OpIteratorClose:    "IteratorClose",
	OpCreateEnumerator: "CreateEnumerator", OpEnumeratorNext: "EnumeratorNext",
	OpMakeFunction: "MakeFunction", OpEnsureArgumentsObject: "EnsureArgumentsObject",
	OpLoadThis: "LoadThis", OpPushWithScope: "PushWithScope", OpPopWithScope: "PopWithScope",
	OpPushBlockEnv: "PushBlockEnv", OpPopBlockEnv: "PopBlockEnv",
}

func (op OpCode) String() string {
	if int(op) < len(opNames) && opNames[op] != "" {
		return opNames[op]
	}
	return fmt.Sprintf("Op(%d)", uint8(op))
}

// operandWidths gives the operand byte count per opcode for the
// disassembler and the source-map walker.
var operandWidths = [...]int{
	OpLoadConst: 3, OpLoadUndefined: 1, OpLoadNull: 1, OpLoadTrue: 1, OpLoadFalse: 1,
	OpLoadInt8: 2, OpMove: 2,
	OpAdd: 3, OpSubtract: 3, OpMultiply: 3, OpDivide: 3, OpRemainder: 3, OpExponent: 3,
	OpNegate: 2, OpToNumber: 2, OpNot: 2, OpBitwiseNot: 2,
	OpBitwiseAnd: 3, OpBitwiseOr: 3, OpBitwiseXor: 3,
	OpShiftLeft: 3, OpShiftRight: 3, OpUnsignedShiftRight: 3,
	OpEqual: 3, OpNotEqual: 3, OpStrictEqual: 3, OpStrictNotEqual: 3,
	OpLess: 3, OpLessEqual: 3, OpGreater: 3, OpGreaterEqual: 3, OpIn: 3, OpInstanceof: 3,
	OpTypeof: 2, OpTypeofName: 3,
	OpLoadByName: 3, OpStoreByName: 3, OpStoreByNameWithAddress: 4,
	OpInitializeByName: 4, OpResolveNameAddress: 3,
	OpLoadByHeapIndex: 4, OpStoreByHeapIndex: 4, OpInitializeByHeapIndex: 3,
	OpGetGlobalVariable: 3, OpSetGlobalVariable: 3, OpInitializeGlobalVariable: 4,
	OpDeclareGlobalLexical: 3,
	OpCheckTDZ:             3,
	OpGetPropByName:        4, OpSetPropByName: 4,
	OpGetByProperty: 3, OpSetByProperty: 3, OpDeleteProperty: 3, OpDeletePropByName: 4,
	OpDeleteGlobalProperty: 3,
	OpMakeObject:           1, OpMakeArray: 3, OpDefineDataProperty: 3,
	OpDefineGetter: 4, OpDefineSetter: 4,
	OpJump: 2, OpJumpIfFalse: 3, OpJumpIfTrue: 3,
	OpCall: 5, OpNew: 4, OpReturn: 1, OpReturnUndefined: 0,
	OpThrow: 1, OpThrowStaticError: 3,
	OpGetIterator: 2, OpIteratorStep: 3, OpIteratorClose: 1,
	OpCreateEnumerator: 2, OpEnumeratorNext: 3,
	OpMakeFunction: 3, OpEnsureArgumentsObject: 1, OpLoadThis: 1,
	OpPushWithScope: 1, OpPopWithScope: 0,
	OpPushBlockEnv: 2, OpPopBlockEnv: 0,
}

// OperandWidth returns the operand byte count for op.
func OperandWidth(op OpCode) int { return operandWidths[op] }

// ReadUint16 decodes a big-endian index operand.
func ReadUint16(code []byte, pc int) uint16 {
	return binary.BigEndian.Uint16(code[pc : pc+2])
}

// ReadInt16 decodes a signed jump offset operand.
func ReadInt16(code []byte, pc int) int16 {
	return int16(binary.BigEndian.Uint16(code[pc : pc+2]))
}

// Disassemble renders the code block for debugging.
func (cb *CodeBlock) Disassemble() string {
	var b strings.Builder
	name := "<program>"
	if cb.FunctionName != nil {
		name = cb.FunctionName.String()
	}
	fmt.Fprintf(&b, "== %s ==\n", name)
	pc := 0
	for pc < len(cb.Code) {
		op := OpCode(cb.Code[pc])
		fmt.Fprintf(&b, "%04d %-24s", pc, op.String())
		width := OperandWidth(op)
		for i := 0; i < width; i++ {
			fmt.Fprintf(&b, " %3d", cb.Code[pc+1+i])
		}
		switch op {
		case OpLoadConst, OpMakeFunction:
			idx := ReadUint16(cb.Code, pc+2)
			fmt.Fprintf(&b, "    ; %s", inspectConstant(cb.Constants[idx]))
		case OpLoadByName, OpTypeofName, OpResolveNameAddress:
			fmt.Fprintf(&b, "    ; %s", cb.Atoms[ReadUint16(cb.Code, pc+2)])
		case OpStoreByName:
			fmt.Fprintf(&b, "    ; %s", cb.Atoms[ReadUint16(cb.Code, pc+1)])
		}
		b.WriteByte('\n')
		pc += 1 + width
	}
	return b.String()
}

func inspectConstant(v Value) string {
	switch v.Type() {
	case TypeString:
		return "\"" + v.AsString().String() + "\""
	case TypeObject:
		return "<object>"
	default:
		return v.TypeOf()
	}
}

// SourceMapBuilder accumulates the delta-encoded pc -> source byte offset
// side table. Each entry is (pc delta uvarint, offset delta varint); every
// bytecode offset maps to the last entry at or before it.
type SourceMapBuilder struct {
	buf        []byte
	lastPC     int
	lastOffset int
}

// Add records that the instruction at pc begins at the given source offset.
func (m *SourceMapBuilder) Add(pc, offset int) {
	m.buf = binary.AppendUvarint(m.buf, uint64(pc-m.lastPC))
	m.buf = binary.AppendVarint(m.buf, int64(offset-m.lastOffset))
	m.lastPC = pc
	m.lastOffset = offset
}

// Bytes returns the encoded side table.
func (m *SourceMapBuilder) Bytes() []byte { return m.buf }

// SourceOffsetForPC resolves a bytecode offset to a source byte offset
// through the delta-encoded side table.
func (cb *CodeBlock) SourceOffsetForPC(pc int) int {
	buf := cb.SourceMap
	curPC, curOffset, best := 0, 0, 0
	for len(buf) > 0 {
		dpc, n := binary.Uvarint(buf)
		buf = buf[n:]
		doff, n := binary.Varint(buf)
		buf = buf[n:]
		curPC += int(dpc)
		curOffset += int(doff)
		if curPC > pc {
			break
		}
		best = curOffset
	}
	return best
}
