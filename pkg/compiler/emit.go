package compiler

import (
	"escargot/pkg/lexer"
	"escargot/pkg/vm"
)

// note records that the next emitted instruction originates at tok, feeding
// the delta-encoded source-location side table.
func (f *funcCompiler) note(tok lexer.Token) {
	f.srcMap.Add(len(f.block.Code), tok.StartPos)
}

func (f *funcCompiler) emit(op vm.OpCode, operands ...byte) int {
	pc := len(f.block.Code)
	f.block.Code = append(f.block.Code, byte(op))
	f.block.Code = append(f.block.Code, operands...)
	return pc
}

func u16(v uint16) (byte, byte) { return byte(v >> 8), byte(v) }

func (f *funcCompiler) emitU16(op vm.OpCode, idx uint16, rest ...byte) int {
	hi, lo := u16(idx)
	return f.emit(op, append([]byte{hi, lo}, rest...)...)
}

func (f *funcCompiler) emitRU16(op vm.OpCode, r Register, idx uint16, rest ...byte) int {
	hi, lo := u16(idx)
	return f.emit(op, append([]byte{byte(r), hi, lo}, rest...)...)
}

// emitJump writes a jump with a placeholder offset and returns the patch
// site (offset operand position).
func (f *funcCompiler) emitJump(op vm.OpCode, cond Register) int {
	if op == vm.OpJump {
		f.emit(op, 0, 0)
		return len(f.block.Code) - 2
	}
	f.emit(op, byte(cond), 0, 0)
	return len(f.block.Code) - 2
}

// patchJump points the placeholder at the current position.
func (f *funcCompiler) patchJump(site int) {
	offset := len(f.block.Code) - (site + 2)
	if offset > 32767 || offset < -32768 {
		f.c.internalError("jump offset out of range")
	}
	f.block.Code[site] = byte(uint16(int16(offset)) >> 8)
	f.block.Code[site+1] = byte(uint16(int16(offset)))
}

// emitJumpBack writes an unconditional jump to an earlier target.
func (f *funcCompiler) emitJumpBack(target int) {
	f.emit(vm.OpJump, 0, 0)
	site := len(f.block.Code) - 2
	offset := target - (site + 2)
	f.block.Code[site] = byte(uint16(int16(offset)) >> 8)
	f.block.Code[site+1] = byte(uint16(int16(offset)))
}

// patchJumpTo points the placeholder at an explicit target.
func (f *funcCompiler) patchJumpTo(site, target int) {
	offset := target - (site + 2)
	f.block.Code[site] = byte(uint16(int16(offset)) >> 8)
	f.block.Code[site+1] = byte(uint16(int16(offset)))
}

type constKey struct {
	kind byte
	num  float64
	str  string
}

// constIdx adds a value to the constant pool, deduplicating numbers and
// strings.
func (f *funcCompiler) constIdx(v vm.Value) uint16 {
	var key constKey
	dedupe := true
	switch v.Type() {
	case vm.TypeInteger, vm.TypeFloat:
		key = constKey{kind: 1, num: v.NumberValue()}
	case vm.TypeString:
		key = constKey{kind: 2, str: v.AsString().String()}
	default:
		dedupe = false
	}
	if dedupe {
		if idx, ok := f.consts[key]; ok {
			return idx
		}
	}
	idx := uint16(len(f.block.Constants))
	f.block.Constants = append(f.block.Constants, v)
	if dedupe {
		f.consts[key] = idx
	}
	return idx
}

// atomIdx interns name into the code block's atom table.
func (f *funcCompiler) atomIdx(name string) uint16 {
	if idx, ok := f.atoms[name]; ok {
		return idx
	}
	idx := uint16(len(f.block.Atoms))
	f.block.Atoms = append(f.block.Atoms, f.c.instance.Intern(name))
	f.atoms[name] = idx
	return idx
}

// globalCacheIdx allocates a global variable cache slot for name.
func (f *funcCompiler) globalCacheIdx(name string) uint16 {
	if idx, ok := f.globalCaches[name]; ok {
		return idx
	}
	idx := uint16(len(f.block.GlobalCaches))
	f.block.GlobalCaches = append(f.block.GlobalCaches, vm.GlobalCache{Name: f.c.instance.Intern(name)})
	f.globalCaches[name] = idx
	return idx
}

// emitLoadConst loads a pooled constant into dst.
func (f *funcCompiler) emitLoadConst(v vm.Value, dst Register) {
	f.emitRU16(vm.OpLoadConst, dst, f.constIdx(v))
}

// emitThrowStatic emits the compile-time proven failure opcode.
func (f *funcCompiler) emitThrowStatic(kind vm.ErrorKind, message string) {
	idx := f.constIdx(vm.StringValue(message))
	hi, lo := u16(idx)
	f.emit(vm.OpThrowStaticError, byte(kind), hi, lo)
}
