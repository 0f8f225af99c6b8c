package compiler

import (
	"escargot/pkg/lexer"
	"escargot/pkg/parser"
	"escargot/pkg/vm"
)

// storeMode distinguishes the write contexts the lowering table cares
// about: a plain assignment, the initializing write of a declaration, and
// a hoisted function declaration binding.
type storeMode uint8

const (
	storePlain storeMode = iota
	storeInitializer
	storeFunctionDecl
)

// identInfo is the result of indexedIdentifierInfo: where the name lives
// and how deep its environment record sits.
type identInfo struct {
	binding  *Binding
	resolved bool
	// upperDepth counts environment records between the emission point and
	// the binding's record; valid for heap storage.
	upperDepth int
	// dynamicAncestor is set when the binding's function cannot use
	// indexed storage, forcing the name-keyed opcode family.
	dynamicAncestor bool
}

// indexedIdentifierInfo resolves name at the current lexical block.
func (f *funcCompiler) indexedIdentifierInfo(name string) identInfo {
	binding, ok := lookup(f.curBlock, name)
	if !ok {
		return identInfo{}
	}
	info := identInfo{binding: binding, resolved: true}
	if binding.Storage == StorageHeap {
		if !binding.Block.Fn.CanUseIndexedVariableStorage {
			info.dynamicAncestor = binding.Block.Fn != f.fs
		}
		info.upperDepth = f.heapDepthFor(binding)
	}
	return info
}

// heapDepthFor counts the environment records on the chain between the
// emission point and the binding's record.
func (f *funcCompiler) heapDepthFor(binding *Binding) int {
	depth := 0
	blk := f.curBlock
	for blk != nil {
		if blk.allocatesEnvironment() {
			if blk == binding.Block {
				return depth
			}
			depth++
		}
		if blk.Parent != nil {
			blk = blk.Parent
			continue
		}
		blk = blk.Fn.DefinedIn
	}
	f.c.internalError("heap binding %q not reachable from emission point", binding.Name)
	return 0
}

// stackReg names the register backing a stack slot.
func stackReg(slot int) Register {
	return Register(vm.RegularRegisterLimit + slot)
}

// emitStoreIdentifier lowers `name = src` following the binding kind and
// storage of the resolved identifier. tok attributes the store's source
// location.
func (f *funcCompiler) emitStoreIdentifier(name string, src Register, tok lexer.Token, mode storeMode) {
	f.note(tok)
	info := f.indexedIdentifierInfo(name)

	if f.fs.CanUseIndexedVariableStorage && info.resolved && !info.dynamicAncestor {
		b := info.binding
		if b.Kind == BindConst && mode == storePlain {
			f.emitThrowStatic(vm.ErrorKindTypeError, "Assignment to constant variable.")
			return
		}
		switch b.Storage {
		case StorageStack:
			if b.Kind.IsLexical() && mode == storePlain && !b.initializedSeen {
				f.emitRU16(vm.OpCheckTDZ, stackReg(b.Slot), f.atomIdx(name))
			}
			if stackReg(b.Slot) != src {
				f.emit(vm.OpMove, byte(stackReg(b.Slot)), byte(src))
			}
		case StorageHeap:
			if mode != storePlain && b.Kind.IsLexical() && info.upperDepth == 0 {
				f.emitU16(vm.OpInitializeByHeapIndex, uint16(b.Slot), byte(src))
			} else {
				f.emit(vm.OpStoreByHeapIndex, byte(info.upperDepth), byte(uint16(b.Slot)>>8), byte(uint16(b.Slot)), byte(src))
			}
		case StorageGlobalVar:
			if mode == storeFunctionDecl {
				f.emitU16(vm.OpInitializeGlobalVariable, f.atomIdx(name), byte(src), 2)
			} else {
				f.emitU16(vm.OpSetGlobalVariable, f.globalCacheIdx(name), byte(src))
			}
		case StorageGlobalLex:
			if mode == storeInitializer {
				f.emitU16(vm.OpInitializeGlobalVariable, f.atomIdx(name), byte(src), 1)
			} else {
				f.emitU16(vm.OpSetGlobalVariable, f.globalCacheIdx(name), byte(src))
			}
		}
		if mode != storePlain {
			b.initializedSeen = true
		}
		return
	}

	if f.fs.CanUseIndexedVariableStorage {
		// Unresolved, or resolved into a dynamic ancestor.
		if info.dynamicAncestor || f.fs.HasAncestorUsesNonIndexedVariableStorage {
			if mode != storePlain {
				f.emitU16(vm.OpInitializeByName, f.atomIdx(name), byte(src), boolByte(false))
			} else {
				f.emitU16(vm.OpStoreByName, f.atomIdx(name), byte(src))
			}
			return
		}
		f.emitU16(vm.OpSetGlobalVariable, f.globalCacheIdx(name), byte(src))
		return
	}

	// The code block itself cannot use indexed storage: generic name
	// opcodes unconditionally.
	if mode != storePlain {
		isLexical := info.resolved && info.binding.Kind.IsLexical()
		f.emitU16(vm.OpInitializeByName, f.atomIdx(name), byte(src), boolByte(isLexical))
		return
	}
	f.emitU16(vm.OpStoreByName, f.atomIdx(name), byte(src))
}

// emitLoadIdentifier lowers a read of name. When hint is BadRegister the
// value may be returned in its natural register (a stack slot) without a
// copy; otherwise it lands in hint.
func (f *funcCompiler) emitLoadIdentifier(name string, tok lexer.Token, hint Register) Register {
	f.note(tok)
	info := f.indexedIdentifierInfo(name)

	// arguments materializes lazily in non-arrow functions.
	if name == "arguments" && !info.resolved && f.fs.UsesArguments {
		dst := hint
		if dst == BadRegister {
			dst = f.regs.Alloc()
		}
		f.emit(vm.OpEnsureArgumentsObject, byte(dst))
		return dst
	}

	if f.fs.CanUseIndexedVariableStorage && info.resolved && !info.dynamicAncestor {
		b := info.binding
		switch b.Storage {
		case StorageStack:
			if b.Kind.IsLexical() && !b.initializedSeen {
				f.emitRU16(vm.OpCheckTDZ, stackReg(b.Slot), f.atomIdx(name))
			}
			if hint == BadRegister {
				// canSkipCopyToRegister: the caller reads the slot directly.
				return stackReg(b.Slot)
			}
			if hint != stackReg(b.Slot) {
				f.emit(vm.OpMove, byte(hint), byte(stackReg(b.Slot)))
			}
			return hint
		case StorageHeap:
			dst := hint
			if dst == BadRegister {
				dst = f.regs.Alloc()
			}
			f.emit(vm.OpLoadByHeapIndex, byte(dst), byte(info.upperDepth), byte(uint16(b.Slot)>>8), byte(uint16(b.Slot)))
			return dst
		case StorageGlobalVar, StorageGlobalLex:
			dst := hint
			if dst == BadRegister {
				dst = f.regs.Alloc()
			}
			f.emitRU16(vm.OpGetGlobalVariable, dst, f.globalCacheIdx(name))
			return dst
		}
	}

	dst := hint
	if dst == BadRegister {
		dst = f.regs.Alloc()
	}
	if !f.fs.CanUseIndexedVariableStorage || info.dynamicAncestor || f.fs.HasAncestorUsesNonIndexedVariableStorage {
		f.emitRU16(vm.OpLoadByName, dst, f.atomIdx(name))
		return dst
	}
	f.emitRU16(vm.OpGetGlobalVariable, dst, f.globalCacheIdx(name))
	return dst
}

// usesNameStore reports whether a store to name would go through the
// name-keyed opcode family, which is when a compound assignment may need a
// pre-resolved address.
func (f *funcCompiler) usesNameStore(name string) bool {
	info := f.indexedIdentifierInfo(name)
	if !f.fs.CanUseIndexedVariableStorage {
		return true
	}
	if info.resolved {
		return info.dynamicAncestor
	}
	return f.fs.HasAncestorUsesNonIndexedVariableStorage
}

// compileAssignment lowers assignment expressions, including the compound
// forms and their with-scope address pre-resolution.
func (f *funcCompiler) compileAssignment(e *parser.AssignmentExpression, hint Register) Register {
	switch target := e.Target.(type) {
	case *parser.Identifier:
		if e.Operator == "=" {
			src := f.compileExpression(e.Value, BadRegister)
			f.emitStoreIdentifier(target.Value, src, e.Token, storePlain)
			return f.intoHint(src, hint)
		}
		// Compound assignment. When the reference may be rebound by the
		// RHS (a with-scope is live and the store is name-keyed), the
		// address is resolved before the RHS runs; otherwise the
		// pre-resolution is elided.
		mayNeedResolveAddress := f.withDepth > 0 && f.usesNameStore(target.Value)
		var addrReg Register = BadRegister
		if mayNeedResolveAddress {
			addrReg = f.regs.Alloc()
			f.emitRU16(vm.OpResolveNameAddress, addrReg, f.atomIdx(target.Value))
		}
		cur := f.emitLoadIdentifier(target.Value, target.Token, BadRegister)
		rhs := f.compileExpression(e.Value, BadRegister)
		result := f.regs.Alloc()
		f.note(e.Token)
		f.emit(compoundOp(e.Operator), byte(result), byte(cur), byte(rhs))
		f.regs.Free(rhs)
		f.regs.Free(cur)
		if mayNeedResolveAddress {
			f.note(e.Token)
			hi, lo := u16(f.atomIdx(target.Value))
			f.emit(vm.OpStoreByNameWithAddress, byte(addrReg), hi, lo, byte(result))
			f.regs.Free(addrReg)
		} else {
			f.emitStoreIdentifier(target.Value, result, e.Token, storePlain)
		}
		return f.intoHint(result, hint)

	case *parser.MemberExpression:
		obj := f.compileExpression(target.Object, BadRegister)
		var result Register
		if e.Operator == "=" {
			result = f.compileExpression(e.Value, BadRegister)
		} else {
			cur := f.regs.Alloc()
			f.note(target.Token)
			f.emit(vm.OpGetPropByName, byte(cur), byte(obj), byte(f.atomIdx(target.Property.Value)>>8), byte(f.atomIdx(target.Property.Value)))
			rhs := f.compileExpression(e.Value, BadRegister)
			result = f.regs.Alloc()
			f.emit(compoundOp(e.Operator), byte(result), byte(cur), byte(rhs))
			f.regs.Free(rhs)
			f.regs.Free(cur)
		}
		f.note(e.Token)
		hi, lo := u16(f.atomIdx(target.Property.Value))
		f.emit(vm.OpSetPropByName, byte(obj), hi, lo, byte(result))
		f.regs.Free(obj)
		return f.intoHint(result, hint)

	case *parser.IndexExpression:
		obj := f.compileExpression(target.Object, BadRegister)
		idx := f.compileExpression(target.Index, BadRegister)
		var result Register
		if e.Operator == "=" {
			result = f.compileExpression(e.Value, BadRegister)
		} else {
			cur := f.regs.Alloc()
			f.note(target.Token)
			f.emit(vm.OpGetByProperty, byte(cur), byte(obj), byte(idx))
			rhs := f.compileExpression(e.Value, BadRegister)
			result = f.regs.Alloc()
			f.emit(compoundOp(e.Operator), byte(result), byte(cur), byte(rhs))
			f.regs.Free(rhs)
			f.regs.Free(cur)
		}
		f.note(e.Token)
		f.emit(vm.OpSetByProperty, byte(obj), byte(idx), byte(result))
		f.regs.Free(idx)
		f.regs.Free(obj)
		return f.intoHint(result, hint)

	default:
		f.c.errorAt(e.Token, "invalid assignment target")
		return f.loadUndefined(hint)
	}
}

func compoundOp(operator string) vm.OpCode {
	switch operator {
	case "+=":
		return vm.OpAdd
	case "-=":
		return vm.OpSubtract
	case "*=":
		return vm.OpMultiply
	case "/=":
		return vm.OpDivide
	case "%=":
		return vm.OpRemainder
	case "**=":
		return vm.OpExponent
	case "&=":
		return vm.OpBitwiseAnd
	case "|=":
		return vm.OpBitwiseOr
	case "^=":
		return vm.OpBitwiseXor
	case "<<=":
		return vm.OpShiftLeft
	case ">>=":
		return vm.OpShiftRight
	case ">>>=":
		return vm.OpUnsignedShiftRight
	}
	return vm.OpAdd
}

// intoHint moves src into hint when the caller demanded a register.
func (f *funcCompiler) intoHint(src Register, hint Register) Register {
	if hint == BadRegister || hint == src {
		return src
	}
	f.emit(vm.OpMove, byte(hint), byte(src))
	f.regs.Free(src)
	return hint
}

func (f *funcCompiler) loadUndefined(hint Register) Register {
	dst := hint
	if dst == BadRegister {
		dst = f.regs.Alloc()
	}
	f.emit(vm.OpLoadUndefined, byte(dst))
	return dst
}
