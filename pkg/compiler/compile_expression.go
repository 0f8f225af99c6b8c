package compiler

import (
	"escargot/pkg/parser"
	"escargot/pkg/vm"
)

func (f *funcCompiler) compileExpression(expr parser.Expression, hint Register) Register {
	switch e := expr.(type) {
	case *parser.Identifier:
		return f.emitLoadIdentifier(e.Value, e.Token, hint)
	case *parser.NumberLiteral:
		dst := f.want(hint)
		f.note(e.Token)
		if i := int8(e.Value); float64(i) == e.Value {
			f.emit(vm.OpLoadInt8, byte(dst), byte(i))
		} else {
			f.emitLoadConst(vm.Number(e.Value), dst)
		}
		return dst
	case *parser.StringLiteral:
		dst := f.want(hint)
		f.note(e.Token)
		f.emitLoadConst(vm.StringValue(e.Value), dst)
		return dst
	case *parser.BooleanLiteral:
		dst := f.want(hint)
		if e.Value {
			f.emit(vm.OpLoadTrue, byte(dst))
		} else {
			f.emit(vm.OpLoadFalse, byte(dst))
		}
		return dst
	case *parser.NullLiteral:
		dst := f.want(hint)
		f.emit(vm.OpLoadNull, byte(dst))
		return dst
	case *parser.UndefinedLiteral:
		return f.loadUndefined(hint)
	case *parser.ThisExpression:
		dst := f.want(hint)
		f.emit(vm.OpLoadThis, byte(dst))
		return dst
	case *parser.TemplateLiteral:
		return f.compileTemplate(e, hint)
	case *parser.RegexLiteral:
		return f.compileRegex(e, hint)
	case *parser.ArrayLiteral:
		return f.compileArrayLiteral(e, hint)
	case *parser.ObjectLiteral:
		return f.compileObjectLiteral(e, hint)
	case *parser.FunctionLiteral:
		dst := f.want(hint)
		f.compileFunctionLiteralInto(e, dst)
		return dst
	case *parser.PrefixExpression:
		return f.compilePrefix(e, hint)
	case *parser.UpdateExpression:
		return f.compileUpdate(e, hint)
	case *parser.InfixExpression:
		return f.compileInfix(e, hint)
	case *parser.LogicalExpression:
		return f.compileLogical(e, hint)
	case *parser.AssignmentExpression:
		return f.compileAssignment(e, hint)
	case *parser.ConditionalExpression:
		return f.compileConditional(e, hint)
	case *parser.CallExpression:
		return f.compileCall(e, hint)
	case *parser.NewExpression:
		return f.compileNew(e, hint)
	case *parser.MemberExpression:
		obj := f.compileExpression(e.Object, BadRegister)
		dst := f.want(hint)
		f.note(e.Token)
		hi, lo := u16(f.atomIdx(e.Property.Value))
		f.emit(vm.OpGetPropByName, byte(dst), byte(obj), hi, lo)
		f.regs.Free(obj)
		return dst
	case *parser.IndexExpression:
		obj := f.compileExpression(e.Object, BadRegister)
		idx := f.compileExpression(e.Index, BadRegister)
		dst := f.want(hint)
		f.note(e.Token)
		f.emit(vm.OpGetByProperty, byte(dst), byte(obj), byte(idx))
		f.regs.Free(idx)
		f.regs.Free(obj)
		return dst
	case *parser.SequenceExpression:
		var last Register = BadRegister
		for i, sub := range e.Expressions {
			if last != BadRegister {
				f.regs.Free(last)
			}
			if i == len(e.Expressions)-1 {
				last = f.compileExpression(sub, hint)
			} else {
				last = f.compileExpression(sub, BadRegister)
			}
		}
		return last
	default:
		f.c.internalError("cannot lower expression %T", expr)
		return f.loadUndefined(hint)
	}
}

// want resolves a hint into a concrete destination register.
func (f *funcCompiler) want(hint Register) Register {
	if hint == BadRegister {
		return f.regs.Alloc()
	}
	return hint
}

func (f *funcCompiler) compileTemplate(e *parser.TemplateLiteral, hint Register) Register {
	dst := f.want(hint)
	f.note(e.Token)
	f.emitLoadConst(vm.StringValue(e.Quasis[0]), dst)
	for i, sub := range e.Expressions {
		val := f.compileExpression(sub, BadRegister)
		f.emit(vm.OpAdd, byte(dst), byte(dst), byte(val))
		f.regs.Free(val)
		if i+1 < len(e.Quasis) && e.Quasis[i+1] != "" {
			q := f.regs.Alloc()
			f.emitLoadConst(vm.StringValue(e.Quasis[i+1]), q)
			f.emit(vm.OpAdd, byte(dst), byte(dst), byte(q))
			f.regs.Free(q)
		}
	}
	return dst
}

// compileRegex lowers /pattern/flags to new RegExp(pattern, flags).
func (f *funcCompiler) compileRegex(e *parser.RegexLiteral, hint Register) Register {
	ctor := f.regs.Alloc()
	f.note(e.Token)
	f.emitRU16(vm.OpGetGlobalVariable, ctor, f.globalCacheIdx("RegExp"))
	argStart := f.regs.AllocContiguous(2)
	f.emitLoadConst(vm.StringValue(e.Pattern), argStart)
	f.emitLoadConst(vm.StringValue(e.Flags), argStart+1)
	dst := f.want(hint)
	f.emit(vm.OpNew, byte(dst), byte(ctor), byte(argStart), 2)
	f.regs.FreeContiguous(argStart, 2)
	f.regs.Free(ctor)
	return dst
}

func (f *funcCompiler) compileArrayLiteral(e *parser.ArrayLiteral, hint Register) Register {
	n := len(e.Elements)
	if n <= 32 {
		start := f.regs.AllocContiguous(n)
		for i, el := range e.Elements {
			r := start + Register(i)
			if el == nil {
				// A hole carries the empty sentinel through MakeArray.
				f.emitLoadConst(vm.Empty, r)
				continue
			}
			f.compileExpression(el, r)
		}
		dst := f.want(hint)
		f.note(e.Token)
		f.emit(vm.OpMakeArray, byte(dst), byte(start), byte(n))
		f.regs.FreeContiguous(start, n)
		return dst
	}
	// Long literals build incrementally.
	dst := f.want(hint)
	f.note(e.Token)
	f.emit(vm.OpMakeArray, byte(dst), 0, 0)
	idx := f.regs.Alloc()
	for i, el := range e.Elements {
		if el == nil {
			continue
		}
		val := f.compileExpression(el, BadRegister)
		f.emitLoadConst(vm.Integer(int32(i)), idx)
		f.emit(vm.OpSetByProperty, byte(dst), byte(idx), byte(val))
		f.regs.Free(val)
	}
	if hasTrailingHoles(e) {
		length := f.regs.Alloc()
		f.emitLoadConst(vm.Integer(int32(n)), length)
		hi, lo := u16(f.atomIdx("length"))
		f.emit(vm.OpSetPropByName, byte(dst), hi, lo, byte(length))
		f.regs.Free(length)
	}
	f.regs.Free(idx)
	return dst
}

func hasTrailingHoles(e *parser.ArrayLiteral) bool {
	return len(e.Elements) > 0 && e.Elements[len(e.Elements)-1] == nil
}

func (f *funcCompiler) compileObjectLiteral(e *parser.ObjectLiteral, hint Register) Register {
	dst := f.want(hint)
	f.note(e.Token)
	f.emit(vm.OpMakeObject, byte(dst))
	for _, p := range e.Properties {
		switch {
		case p.Kind == parser.PropertyGet || p.Kind == parser.PropertySet:
			name, ok := literalKeyName(p.Key)
			if !ok {
				f.c.errorAt(e.Token, "computed accessor keys are not supported in object literals")
				continue
			}
			fn := f.compileExpression(p.Value, BadRegister)
			hi, lo := u16(f.atomIdx(name))
			if p.Kind == parser.PropertyGet {
				f.emit(vm.OpDefineGetter, byte(dst), hi, lo, byte(fn))
			} else {
				f.emit(vm.OpDefineSetter, byte(dst), hi, lo, byte(fn))
			}
			f.regs.Free(fn)
		case p.Computed:
			key := f.compileExpression(p.Key, BadRegister)
			val := f.compileExpression(p.Value, BadRegister)
			f.emit(vm.OpDefineDataProperty, byte(dst), byte(key), byte(val))
			f.regs.Free(val)
			f.regs.Free(key)
		default:
			name, ok := literalKeyName(p.Key)
			if !ok {
				f.c.errorAt(e.Token, "invalid property key")
				continue
			}
			key := f.regs.Alloc()
			f.emitLoadConst(vm.StringValue(name), key)
			val := f.compileExpression(p.Value, BadRegister)
			f.emit(vm.OpDefineDataProperty, byte(dst), byte(key), byte(val))
			f.regs.Free(val)
			f.regs.Free(key)
		}
	}
	return dst
}

func literalKeyName(key parser.Expression) (string, bool) {
	switch k := key.(type) {
	case *parser.Identifier:
		return k.Value, true
	case *parser.StringLiteral:
		return k.Value, true
	case *parser.NumberLiteral:
		return vm.NumberToString(k.Value), true
	}
	return "", false
}

func (f *funcCompiler) compilePrefix(e *parser.PrefixExpression, hint Register) Register {
	switch e.Operator {
	case "typeof":
		if id, ok := e.Right.(*parser.Identifier); ok {
			info := f.indexedIdentifierInfo(id.Value)
			if !info.resolved || info.dynamicAncestor || !f.fs.CanUseIndexedVariableStorage {
				// typeof of an unresolved name yields "undefined" without
				// raising a ReferenceError.
				dst := f.want(hint)
				f.note(e.Token)
				f.emitRU16(vm.OpTypeofName, dst, f.atomIdx(id.Value))
				return dst
			}
		}
		val := f.compileExpression(e.Right, BadRegister)
		dst := f.want(hint)
		f.emit(vm.OpTypeof, byte(dst), byte(val))
		f.regs.Free(val)
		return dst
	case "void":
		val := f.compileExpression(e.Right, BadRegister)
		f.regs.Free(val)
		return f.loadUndefined(hint)
	case "delete":
		return f.compileDelete(e, hint)
	}

	val := f.compileExpression(e.Right, BadRegister)
	dst := f.want(hint)
	f.note(e.Token)
	switch e.Operator {
	case "!":
		f.emit(vm.OpNot, byte(dst), byte(val))
	case "-":
		f.emit(vm.OpNegate, byte(dst), byte(val))
	case "+":
		f.emit(vm.OpToNumber, byte(dst), byte(val))
	case "~":
		f.emit(vm.OpBitwiseNot, byte(dst), byte(val))
	default:
		f.c.errorAt(e.Token, "unknown prefix operator %q", e.Operator)
	}
	f.regs.Free(val)
	return dst
}

func (f *funcCompiler) compileDelete(e *parser.PrefixExpression, hint Register) Register {
	switch target := e.Right.(type) {
	case *parser.Identifier:
		info := f.indexedIdentifierInfo(target.Value)
		dst := f.want(hint)
		f.note(e.Token)
		if info.resolved && info.binding.Storage != StorageGlobalVar {
			// Declared bindings are not deletable; sloppy mode yields false.
			f.emit(vm.OpLoadFalse, byte(dst))
			return dst
		}
		f.emitRU16(vm.OpDeleteGlobalProperty, dst, f.atomIdx(target.Value))
		return dst
	case *parser.MemberExpression:
		obj := f.compileExpression(target.Object, BadRegister)
		dst := f.want(hint)
		f.note(e.Token)
		hi, lo := u16(f.atomIdx(target.Property.Value))
		f.emit(vm.OpDeletePropByName, byte(dst), byte(obj), hi, lo)
		f.regs.Free(obj)
		return dst
	case *parser.IndexExpression:
		obj := f.compileExpression(target.Object, BadRegister)
		idx := f.compileExpression(target.Index, BadRegister)
		dst := f.want(hint)
		f.note(e.Token)
		f.emit(vm.OpDeleteProperty, byte(dst), byte(obj), byte(idx))
		f.regs.Free(idx)
		f.regs.Free(obj)
		return dst
	default:
		val := f.compileExpression(e.Right, BadRegister)
		f.regs.Free(val)
		dst := f.want(hint)
		f.emit(vm.OpLoadTrue, byte(dst))
		return dst
	}
}

func (f *funcCompiler) compileUpdate(e *parser.UpdateExpression, hint Register) Register {
	op := vm.OpAdd
	if e.Operator == "--" {
		op = vm.OpSubtract
	}
	one := f.regs.Alloc()
	f.emit(vm.OpLoadInt8, byte(one), 1)

	switch target := e.Operand.(type) {
	case *parser.Identifier:
		cur := f.emitLoadIdentifier(target.Value, target.Token, BadRegister)
		old := f.regs.Alloc()
		f.note(e.Token)
		f.emit(vm.OpToNumber, byte(old), byte(cur))
		if cur < vm.RegularRegisterLimit {
			f.regs.Free(cur)
		}
		updated := f.regs.Alloc()
		f.emit(op, byte(updated), byte(old), byte(one))
		f.emitStoreIdentifier(target.Value, updated, e.Token, storePlain)
		f.regs.Free(one)
		if e.Prefix {
			f.regs.Free(old)
			return f.intoHint(updated, hint)
		}
		f.regs.Free(updated)
		return f.intoHint(old, hint)
	case *parser.MemberExpression, *parser.IndexExpression:
		// Lower through the compound-assignment path: t = t + 1.
		f.regs.Free(one)
		assign := &parser.AssignmentExpression{
			Token:    e.Token,
			Operator: opToCompound(e.Operator),
			Target:   e.Operand,
			Value:    &parser.NumberLiteral{Token: e.Token, Value: 1},
		}
		result := f.compileAssignment(assign, hint)
		if !e.Prefix {
			// The postfix value is the pre-increment number; re-deriving
			// it costs a subtract against the stored result.
			old := f.want(BadRegister)
			one2 := f.regs.Alloc()
			f.emit(vm.OpLoadInt8, byte(one2), 1)
			invOp := vm.OpSubtract
			if e.Operator == "--" {
				invOp = vm.OpAdd
			}
			f.emit(invOp, byte(old), byte(result), byte(one2))
			f.regs.Free(one2)
			f.regs.Free(result)
			return f.intoHint(old, hint)
		}
		return result
	default:
		f.c.errorAt(e.Token, "invalid update target")
		f.regs.Free(one)
		return f.loadUndefined(hint)
	}
}

func opToCompound(op string) string {
	if op == "--" {
		return "-="
	}
	return "+="
}

func (f *funcCompiler) compileInfix(e *parser.InfixExpression, hint Register) Register {
	left := f.compileExpression(e.Left, BadRegister)
	right := f.compileExpression(e.Right, BadRegister)
	dst := f.want(hint)
	f.note(e.Token)
	var op vm.OpCode
	switch e.Operator {
	case "+":
		op = vm.OpAdd
	case "-":
		op = vm.OpSubtract
	case "*":
		op = vm.OpMultiply
	case "/":
		op = vm.OpDivide
	case "%":
		op = vm.OpRemainder
	case "**":
		op = vm.OpExponent
	case "==":
		op = vm.OpEqual
	case "!=":
		op = vm.OpNotEqual
	case "===":
		op = vm.OpStrictEqual
	case "!==":
		op = vm.OpStrictNotEqual
	case "<":
		op = vm.OpLess
	case "<=":
		op = vm.OpLessEqual
	case ">":
		op = vm.OpGreater
	case ">=":
		op = vm.OpGreaterEqual
	case "&":
		op = vm.OpBitwiseAnd
	case "|":
		op = vm.OpBitwiseOr
	case "^":
		op = vm.OpBitwiseXor
	case "<<":
		op = vm.OpShiftLeft
	case ">>":
		op = vm.OpShiftRight
	case ">>>":
		op = vm.OpUnsignedShiftRight
	case "in":
		op = vm.OpIn
	case "instanceof":
		op = vm.OpInstanceof
	default:
		f.c.errorAt(e.Token, "unknown operator %q", e.Operator)
		op = vm.OpAdd
	}
	f.emit(op, byte(dst), byte(left), byte(right))
	f.regs.Free(right)
	f.regs.Free(left)
	return dst
}

func (f *funcCompiler) compileLogical(e *parser.LogicalExpression, hint Register) Register {
	dst := f.want(hint)
	left := f.compileExpression(e.Left, dst)
	if left != dst {
		f.emit(vm.OpMove, byte(dst), byte(left))
		f.regs.Free(left)
	}
	var skip int
	if e.Operator == "&&" {
		skip = f.emitJump(vm.OpJumpIfFalse, dst)
	} else {
		skip = f.emitJump(vm.OpJumpIfTrue, dst)
	}
	right := f.compileExpression(e.Right, dst)
	if right != dst {
		f.emit(vm.OpMove, byte(dst), byte(right))
		f.regs.Free(right)
	}
	f.patchJump(skip)
	return dst
}

func (f *funcCompiler) compileConditional(e *parser.ConditionalExpression, hint Register) Register {
	cond := f.compileExpression(e.Condition, BadRegister)
	elseJump := f.emitJump(vm.OpJumpIfFalse, cond)
	f.regs.Free(cond)
	dst := f.want(hint)
	cons := f.compileExpression(e.Consequence, dst)
	if cons != dst {
		f.emit(vm.OpMove, byte(dst), byte(cons))
		f.regs.Free(cons)
	}
	endJump := f.emitJump(vm.OpJump, 0)
	f.patchJump(elseJump)
	alt := f.compileExpression(e.Alternative, dst)
	if alt != dst {
		f.emit(vm.OpMove, byte(dst), byte(alt))
		f.regs.Free(alt)
	}
	f.patchJump(endJump)
	return dst
}

func (f *funcCompiler) compileCall(e *parser.CallExpression, hint Register) Register {
	var fnReg, thisReg Register
	switch callee := e.Callee.(type) {
	case *parser.MemberExpression:
		thisReg = f.compileExpression(callee.Object, BadRegister)
		fnReg = f.regs.Alloc()
		f.note(callee.Token)
		hi, lo := u16(f.atomIdx(callee.Property.Value))
		f.emit(vm.OpGetPropByName, byte(fnReg), byte(thisReg), hi, lo)
	case *parser.IndexExpression:
		thisReg = f.compileExpression(callee.Object, BadRegister)
		idx := f.compileExpression(callee.Index, BadRegister)
		fnReg = f.regs.Alloc()
		f.note(callee.Token)
		f.emit(vm.OpGetByProperty, byte(fnReg), byte(thisReg), byte(idx))
		f.regs.Free(idx)
	default:
		fnReg = f.compileExpression(e.Callee, BadRegister)
		thisReg = f.regs.Alloc()
		f.emit(vm.OpLoadUndefined, byte(thisReg))
	}

	argc := len(e.Arguments)
	argStart := f.regs.AllocContiguous(argc)
	for i, a := range e.Arguments {
		f.compileExpression(a, argStart+Register(i))
	}
	dst := f.want(hint)
	f.note(e.Token)
	f.emit(vm.OpCall, byte(dst), byte(fnReg), byte(thisReg), byte(argStart), byte(argc))
	f.regs.FreeContiguous(argStart, argc)
	f.regs.Free(thisReg)
	f.regs.Free(fnReg)
	return dst
}

func (f *funcCompiler) compileNew(e *parser.NewExpression, hint Register) Register {
	fnReg := f.compileExpression(e.Callee, BadRegister)
	argc := len(e.Arguments)
	argStart := f.regs.AllocContiguous(argc)
	for i, a := range e.Arguments {
		f.compileExpression(a, argStart+Register(i))
	}
	dst := f.want(hint)
	f.note(e.Token)
	f.emit(vm.OpNew, byte(dst), byte(fnReg), byte(argStart), byte(argc))
	f.regs.FreeContiguous(argStart, argc)
	f.regs.Free(fnReg)
	return dst
}
