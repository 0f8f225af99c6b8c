package vm

import (
	"math"
	"unsafe"

	"escargot/pkg/errors"
)

// MaxFrames bounds the interpreter call depth.
const MaxFrames = 512

// typeCodeBlockRef is the internal value tag for a *CodeBlock held in a
// constant pool, consumed by MakeFunction.
const typeCodeBlockRef ValueType = 0xFD

// CodeBlockValue wraps a code block for the constant pool.
func CodeBlockValue(cb *CodeBlock) Value {
	return Value{typ: typeCodeBlockRef, obj: unsafe.Pointer(cb)}
}

// AsCodeBlock unwraps a constant-pool code block reference.
func (v Value) AsCodeBlock() *CodeBlock { return (*CodeBlock)(v.obj) }

// IsCodeBlock reports a constant-pool code block reference.
func (v Value) IsCodeBlock() bool { return v.typ == typeCodeBlockRef }

// Frame is one activation: a register file window, the instruction pointer,
// the innermost heap environment record, and the this binding. Frames are
// the interpreter's own data structure; script throws unwind them against
// the code block handler tables, never via Go panics.
type Frame struct {
	fn         *Object // nil for the program frame
	block      *CodeBlock
	pc         int
	registers  []Value
	env        *Environment
	envDepth   int
	this       Value
	args       []Value
	argsObj    Value
	withScopes []Value
}

// VM dispatches bytecode for one context. Single-threaded.
type VM struct {
	ctx    *Context
	frames []*Frame
}

// NewVM creates an interpreter bound to ctx.
func NewVM(ctx *Context) *VM {
	return &VM{ctx: ctx, frames: make([]*Frame, 0, 16)}
}

// CaptureStack snapshots the live frames for error objects, innermost
// first.
func (vm *VM) CaptureStack() []StackSite {
	sites := make([]StackSite, 0, len(vm.frames))
	for i := len(vm.frames) - 1; i >= 0; i-- {
		f := vm.frames[i]
		line, col := f.block.PositionForPC(f.pc)
		src := ""
		if f.block.Source != nil {
			src = f.block.Source.DisplayPath()
		}
		sites = append(sites, StackSite{Src: src, Line: line, Column: col})
	}
	return sites
}

// RunProgram executes a top-level code block against the global scope.
func (vm *VM) RunProgram(block *CodeBlock) (Value, error) {
	f := &Frame{
		block:     block,
		registers: newRegisterFile(block),
		this:      ObjectValue(vm.ctx.global),
	}
	if block.FnScopeAllocated {
		f.env = NewEnvironment(nil, &block.BlockScopes[0])
		f.envDepth = 1
	}
	return vm.runFrame(f)
}

// CallFunction activates an interpreted function. Parameters are bound to
// their slots per the scope descriptor before the body runs.
func (vm *VM) CallFunction(fn *Object, this Value, args []Value) (Value, error) {
	if len(vm.frames) >= MaxFrames {
		return Undefined, vm.ctx.ThrowError(ErrorKindRangeError, "Maximum call stack size exceeded")
	}
	data := fn.internal.(*FunctionData)
	block := data.Block

	if !block.Strict && !block.IsArrow {
		// Sloppy-mode this coercion.
		if this.IsNullish() {
			this = ObjectValue(vm.ctx.global)
		} else if !this.IsObject() {
			obj, err := vm.ctx.ToObject(this)
			if err != nil {
				return Undefined, err
			}
			this = ObjectValue(obj)
		}
	}

	f := &Frame{
		fn:        fn,
		block:     block,
		registers: newRegisterFile(block),
		env:       data.Env,
		this:      this,
		args:      args,
	}
	if block.FnScopeAllocated {
		f.env = NewEnvironment(data.Env, &block.BlockScopes[0])
		f.envDepth = 1
	}
	for i, pb := range block.ParamBindings {
		arg := Undefined
		if i < len(args) {
			arg = args[i]
		}
		if pb.ToHeap {
			f.env.Store(pb.Slot, arg)
		} else {
			f.registers[RegularRegisterLimit+pb.Slot] = arg
		}
	}
	return vm.runFrame(f)
}

func newRegisterFile(block *CodeBlock) []Value {
	regs := make([]Value, block.RegisterCount)
	for i := 0; i < block.StackSlotCount; i++ {
		if i < len(block.StackSlotLexical) && block.StackSlotLexical[i] {
			regs[RegularRegisterLimit+i] = Empty // TDZ
		} else {
			regs[RegularRegisterLimit+i] = Undefined
		}
	}
	return regs
}

func (vm *VM) runFrame(f *Frame) (Value, error) {
	vm.frames = append(vm.frames, f)
	v, err := vm.run(f)
	vm.frames = vm.frames[:len(vm.frames)-1]
	return v, err
}

// handleThrow searches the frame's handler table for the faulting pc.
// Returns true when a handler took control.
func (vm *VM) handleThrow(f *Frame, faultPC int, err error) bool {
	thrown, ok := err.(*Thrown)
	if !ok {
		return false
	}
	for i := range f.block.Handlers {
		h := &f.block.Handlers[i]
		if faultPC >= h.Start && faultPC < h.End {
			for f.envDepth > h.EnvDepth {
				f.env = f.env.parent
				f.envDepth--
			}
			if len(f.withScopes) > h.WithDepth {
				f.withScopes = f.withScopes[:h.WithDepth]
			}
			f.registers[h.CatchReg] = thrown.Value
			f.pc = h.HandlerPC
			return true
		}
	}
	return false
}

func (vm *VM) run(f *Frame) (Value, error) {
	ctx := vm.ctx
	code := f.block.Code
	regs := f.registers

	var err error
	for f.pc < len(code) {
		opPC := f.pc
		op := OpCode(code[f.pc])
		f.pc++
		err = nil

		switch op {
		case OpLoadConst:
			rx := code[f.pc]
			idx := ReadUint16(code, f.pc+1)
			regs[rx] = f.block.Constants[idx]
			f.pc += 3
		case OpLoadUndefined:
			regs[code[f.pc]] = Undefined
			f.pc++
		case OpLoadNull:
			regs[code[f.pc]] = Null
			f.pc++
		case OpLoadTrue:
			regs[code[f.pc]] = True
			f.pc++
		case OpLoadFalse:
			regs[code[f.pc]] = False
			f.pc++
		case OpLoadInt8:
			regs[code[f.pc]] = Integer(int32(int8(code[f.pc+1])))
			f.pc += 2
		case OpMove:
			regs[code[f.pc]] = regs[code[f.pc+1]]
			f.pc += 2

		case OpAdd:
			regs[code[f.pc]], err = vm.add(regs[code[f.pc+1]], regs[code[f.pc+2]])
			f.pc += 3
		case OpSubtract:
			regs[code[f.pc]], err = vm.arith(op, regs[code[f.pc+1]], regs[code[f.pc+2]])
			f.pc += 3
		case OpMultiply, OpDivide, OpRemainder, OpExponent:
			regs[code[f.pc]], err = vm.arith(op, regs[code[f.pc+1]], regs[code[f.pc+2]])
			f.pc += 3
		case OpNegate:
			regs[code[f.pc]], err = vm.negate(regs[code[f.pc+1]])
			f.pc += 2
		case OpToNumber:
			var n float64
			n, err = ctx.ToNumber(regs[code[f.pc+1]])
			regs[code[f.pc]] = Number(n)
			f.pc += 2
		case OpNot:
			regs[code[f.pc]] = Boolean(!ToBoolean(regs[code[f.pc+1]]))
			f.pc += 2
		case OpBitwiseNot:
			var n int32
			n, err = ctx.ToInt32(regs[code[f.pc+1]])
			regs[code[f.pc]] = Integer(^n)
			f.pc += 2
		case OpBitwiseAnd, OpBitwiseOr, OpBitwiseXor, OpShiftLeft, OpShiftRight, OpUnsignedShiftRight:
			regs[code[f.pc]], err = vm.bitop(op, regs[code[f.pc+1]], regs[code[f.pc+2]])
			f.pc += 3

		case OpEqual:
			var eq bool
			eq, err = ctx.LooseEquals(regs[code[f.pc+1]], regs[code[f.pc+2]])
			regs[code[f.pc]] = Boolean(eq)
			f.pc += 3
		case OpNotEqual:
			var eq bool
			eq, err = ctx.LooseEquals(regs[code[f.pc+1]], regs[code[f.pc+2]])
			regs[code[f.pc]] = Boolean(!eq)
			f.pc += 3
		case OpStrictEqual:
			regs[code[f.pc]] = Boolean(StrictEquals(regs[code[f.pc+1]], regs[code[f.pc+2]]))
			f.pc += 3
		case OpStrictNotEqual:
			regs[code[f.pc]] = Boolean(!StrictEquals(regs[code[f.pc+1]], regs[code[f.pc+2]]))
			f.pc += 3
		case OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
			regs[code[f.pc]], err = vm.compare(op, regs[code[f.pc+1]], regs[code[f.pc+2]])
			f.pc += 3
		case OpIn:
			var has bool
			has, err = ctx.HasProperty(regs[code[f.pc+1]], regs[code[f.pc+2]])
			regs[code[f.pc]] = Boolean(has)
			f.pc += 3
		case OpInstanceof:
			var is bool
			is, err = ctx.InstanceOf(regs[code[f.pc+1]], regs[code[f.pc+2]])
			regs[code[f.pc]] = Boolean(is)
			f.pc += 3

		case OpTypeof:
			regs[code[f.pc]] = StringValue(regs[code[f.pc+1]].TypeOf())
			f.pc += 2
		case OpTypeofName:
			name := f.block.Atoms[ReadUint16(code, f.pc+1)]
			v, found, lookupErr := vm.loadName(f, name)
			if lookupErr != nil {
				err = lookupErr
			} else if !found {
				regs[code[f.pc]] = StringValue("undefined")
			} else {
				regs[code[f.pc]] = StringValue(v.TypeOf())
			}
			f.pc += 3

		case OpLoadByName:
			name := f.block.Atoms[ReadUint16(code, f.pc+1)]
			v, found, lookupErr := vm.loadName(f, name)
			if lookupErr != nil {
				err = lookupErr
			} else if !found {
				err = ctx.NewReferenceError("%s is not defined", name)
			} else {
				regs[code[f.pc]] = v
			}
			f.pc += 3
		case OpStoreByName:
			name := f.block.Atoms[ReadUint16(code, f.pc)]
			err = vm.storeName(f, name, regs[code[f.pc+2]])
			f.pc += 3
		case OpStoreByNameWithAddress:
			addr := regs[code[f.pc]]
			name := f.block.Atoms[ReadUint16(code, f.pc+1)]
			src := regs[code[f.pc+3]]
			if addr.IsObject() {
				err = ctx.SetProperty(addr, AtomKey(name), src, f.block.Strict)
			} else {
				err = vm.storeName(f, name, src)
			}
			f.pc += 4
		case OpInitializeByName:
			name := f.block.Atoms[ReadUint16(code, f.pc)]
			isLexical := code[f.pc+3] != 0
			err = vm.initializeName(f, name, regs[code[f.pc+2]], isLexical)
			f.pc += 4
		case OpResolveNameAddress:
			name := f.block.Atoms[ReadUint16(code, f.pc+1)]
			regs[code[f.pc]] = vm.resolveNameAddress(f, name)
			f.pc += 3

		case OpLoadByHeapIndex:
			depth := int(code[f.pc+1])
			slot := int(ReadUint16(code, f.pc+2))
			rec := f.env.At(depth)
			v := rec.Load(slot)
			if v.IsEmpty() {
				err = ctx.NewReferenceError("Cannot access '%s' before initialization", rec.scope.HeapSlotNames[slot])
			} else {
				regs[code[f.pc]] = v
			}
			f.pc += 4
		case OpStoreByHeapIndex:
			depth := int(code[f.pc])
			slot := int(ReadUint16(code, f.pc+1))
			rec := f.env.At(depth)
			if rec.Load(slot).IsEmpty() && rec.scope.LexicalSlots[slot] {
				err = ctx.NewReferenceError("Cannot access '%s' before initialization", rec.scope.HeapSlotNames[slot])
			} else {
				rec.Store(slot, regs[code[f.pc+3]])
			}
			f.pc += 4
		case OpInitializeByHeapIndex:
			slot := int(ReadUint16(code, f.pc))
			f.env.Store(slot, regs[code[f.pc+2]])
			f.pc += 3

		case OpGetGlobalVariable:
			regs[code[f.pc]], err = vm.getGlobal(f, ReadUint16(code, f.pc+1))
			f.pc += 3
		case OpSetGlobalVariable:
			err = vm.setGlobal(f, ReadUint16(code, f.pc), regs[code[f.pc+2]])
			f.pc += 3
		case OpInitializeGlobalVariable:
			name := f.block.Atoms[ReadUint16(code, f.pc)]
			switch code[f.pc+3] {
			case 1: // lexical initializer
				b, ok := ctx.GlobalLexical(name)
				if !ok {
					b = ctx.DefineGlobalLexical(name, true)
				}
				b.Value = regs[code[f.pc+2]]
			case 2: // function declaration: always overwrites
				ctx.global.DefineOwn(ctx, AtomKey(name), regs[code[f.pc+2]], AttrWritable|AttrEnumerable)
			default: // var hoisting: keeps an existing value
				if !ctx.global.HasOwnProperty(ctx, AtomKey(name)) {
					ctx.global.DefineOwn(ctx, AtomKey(name), regs[code[f.pc+2]], AttrWritable|AttrEnumerable)
				}
			}
			f.pc += 4
		case OpDeclareGlobalLexical:
			name := f.block.Atoms[ReadUint16(code, f.pc)]
			ctx.DefineGlobalLexical(name, code[f.pc+2] != 0)
			f.pc += 3

		case OpCheckTDZ:
			if regs[code[f.pc]].IsEmpty() {
				err = ctx.NewReferenceError("Cannot access '%s' before initialization", f.block.Atoms[ReadUint16(code, f.pc+1)])
			}
			f.pc += 3

		case OpGetPropByName:
			name := f.block.Atoms[ReadUint16(code, f.pc+2)]
			regs[code[f.pc]], err = ctx.GetProperty(regs[code[f.pc+1]], AtomKey(name))
			f.pc += 4
		case OpSetPropByName:
			name := f.block.Atoms[ReadUint16(code, f.pc+1)]
			err = ctx.SetProperty(regs[code[f.pc]], AtomKey(name), regs[code[f.pc+3]], f.block.Strict)
			f.pc += 4
		case OpGetByProperty:
			regs[code[f.pc]], err = ctx.GetIndexed(regs[code[f.pc+1]], regs[code[f.pc+2]])
			f.pc += 3
		case OpSetByProperty:
			err = ctx.SetIndexed(regs[code[f.pc]], regs[code[f.pc+1]], regs[code[f.pc+2]], f.block.Strict)
			f.pc += 3
		case OpDeleteProperty:
			var ok bool
			ok, err = ctx.DeleteProperty(regs[code[f.pc+1]], regs[code[f.pc+2]], f.block.Strict)
			regs[code[f.pc]] = Boolean(ok)
			f.pc += 3
		case OpDeletePropByName:
			name := f.block.Atoms[ReadUint16(code, f.pc+2)]
			var ok bool
			ok, err = ctx.DeleteProperty(regs[code[f.pc+1]], AtomValue(name), f.block.Strict)
			regs[code[f.pc]] = Boolean(ok)
			f.pc += 4
		case OpDeleteGlobalProperty:
			name := f.block.Atoms[ReadUint16(code, f.pc+1)]
			if _, ok := ctx.GlobalLexical(name); ok {
				regs[code[f.pc]] = False
			} else if !ctx.global.Has(ctx, AtomKey(name)) {
				// Deleting an unresolvable reference yields true.
				regs[code[f.pc]] = True
			} else {
				regs[code[f.pc]] = Boolean(ctx.global.DeleteOwnProperty(ctx, AtomKey(name)))
			}
			f.pc += 3

		case OpMakeObject:
			regs[code[f.pc]] = ObjectValue(ctx.NewPlainObject())
			f.pc++
		case OpMakeArray:
			start := code[f.pc+1]
			count := int(code[f.pc+2])
			elems := make([]Value, count)
			copy(elems, regs[start:int(start)+count])
			regs[code[f.pc]] = ObjectValue(ctx.NewArrayFromValues(elems))
			f.pc += 3
		case OpDefineDataProperty:
			obj := regs[code[f.pc]].AsObject()
			var key PropertyKey
			key, err = ctx.ToPropertyKey(regs[code[f.pc+1]])
			if err == nil {
				_, err = obj.DefineOwnProperty(ctx, key, DataDescriptor(regs[code[f.pc+2]], AttrDefault))
			}
			f.pc += 3
		case OpDefineGetter:
			vm.defineAccessorPart(f, code[f.pc], ReadUint16(code, f.pc+1), code[f.pc+3], true)
			f.pc += 4
		case OpDefineSetter:
			vm.defineAccessorPart(f, code[f.pc], ReadUint16(code, f.pc+1), code[f.pc+3], false)
			f.pc += 4

		case OpJump:
			off := ReadInt16(code, f.pc)
			f.pc += 2 + int(off)
		case OpJumpIfFalse:
			cond := regs[code[f.pc]]
			off := ReadInt16(code, f.pc+1)
			f.pc += 3
			if !ToBoolean(cond) {
				f.pc += int(off)
			}
		case OpJumpIfTrue:
			cond := regs[code[f.pc]]
			off := ReadInt16(code, f.pc+1)
			f.pc += 3
			if ToBoolean(cond) {
				f.pc += int(off)
			}

		case OpCall:
			rx := code[f.pc]
			callee := regs[code[f.pc+1]]
			this := regs[code[f.pc+2]]
			argStart := int(code[f.pc+3])
			argc := int(code[f.pc+4])
			args := make([]Value, argc)
			copy(args, regs[argStart:argStart+argc])
			f.pc += 5
			var res Value
			res, err = ctx.Call(callee, this, args)
			if err == nil {
				regs[rx] = res
			}
		case OpNew:
			rx := code[f.pc]
			callee := regs[code[f.pc+1]]
			argStart := int(code[f.pc+2])
			argc := int(code[f.pc+3])
			args := make([]Value, argc)
			copy(args, regs[argStart:argStart+argc])
			f.pc += 4
			var res Value
			res, err = ctx.Construct(callee, args)
			if err == nil {
				regs[rx] = res
			}

		case OpReturn:
			return regs[code[f.pc]], nil
		case OpReturnUndefined:
			return Undefined, nil
		case OpThrow:
			err = &Thrown{Value: regs[code[f.pc]], Stack: vm.CaptureStack()}
			f.pc++
		case OpThrowStaticError:
			kind := ErrorKind(code[f.pc])
			msg := f.block.Constants[ReadUint16(code, f.pc+1)]
			f.pc += 3
			err = ctx.ThrowError(kind, "%s", msg.AsString().String())

		case OpGetIterator:
			regs[code[f.pc]], err = ctx.GetIterator(regs[code[f.pc+1]])
			f.pc += 2
		case OpIteratorStep:
			var v Value
			var done bool
			v, done, err = ctx.IteratorStep(regs[code[f.pc+2]])
			if err == nil {
				regs[code[f.pc]] = v
				regs[code[f.pc+1]] = Boolean(done)
			}
			f.pc += 3
		case OpIteratorClose:
			ctx.IteratorClose(regs[code[f.pc]], nil)
			f.pc++
		case OpCreateEnumerator:
			regs[code[f.pc]], err = ctx.NewEnumerator(regs[code[f.pc+1]])
			f.pc += 2
		case OpEnumeratorNext:
			key, done := ctx.EnumeratorNext(regs[code[f.pc+2]])
			regs[code[f.pc]] = key
			regs[code[f.pc+1]] = Boolean(done)
			f.pc += 3

		case OpMakeFunction:
			cb := f.block.Constants[ReadUint16(code, f.pc+1)].AsCodeBlock()
			var fn *Object
			if cb.IsArrow {
				fn = ctx.NewFunction(cb, f.env, f.this, true)
			} else {
				fn = ctx.NewFunction(cb, f.env, Undefined, false)
			}
			regs[code[f.pc]] = ObjectValue(fn)
			f.pc += 3
		case OpEnsureArgumentsObject:
			if f.argsObj.IsEmpty() || f.argsObj.IsUndefined() {
				f.argsObj = ObjectValue(vm.makeArgumentsObject(f))
			}
			regs[code[f.pc]] = f.argsObj
			f.pc++
		case OpLoadThis:
			regs[code[f.pc]] = f.this
			f.pc++

		case OpPushWithScope:
			var scopeObj *Object
			scopeObj, err = ctx.ToObject(regs[code[f.pc]])
			if err == nil {
				f.withScopes = append(f.withScopes, ObjectValue(scopeObj))
			}
			f.pc++
		case OpPopWithScope:
			f.withScopes = f.withScopes[:len(f.withScopes)-1]

		case OpPushBlockEnv:
			idx := ReadUint16(code, f.pc)
			f.env = NewEnvironment(f.env, &f.block.BlockScopes[idx])
			f.envDepth++
			f.pc += 2
		case OpPopBlockEnv:
			f.env = f.env.parent
			f.envDepth--

		default:
			return Undefined, &errors.RuntimeError{Msg: "corrupt bytecode: unknown opcode"}
		}

		if err != nil {
			if thrown, ok := err.(*Thrown); ok && thrown.Stack == nil {
				thrown.Stack = vm.CaptureStack()
			}
			if vm.handleThrow(f, opPC, err) {
				continue
			}
			return Undefined, err
		}
	}
	return Undefined, nil
}

func (vm *VM) defineAccessorPart(f *Frame, objReg byte, nameIdx uint16, fnReg byte, isGetter bool) {
	ctx := vm.ctx
	obj := f.registers[objReg].AsObject()
	key := AtomKey(f.block.Atoms[nameIdx])
	fn := f.registers[fnReg]
	getter, setter := Undefined, Undefined
	if existing, ok := obj.GetOwnProperty(ctx, key); ok && existing.IsAccessor() {
		getter, setter = existing.Getter, existing.Setter
	}
	if isGetter {
		getter = fn
	} else {
		setter = fn
	}
	obj.DefineAccessor(ctx, key, getter, setter, AttrEnumerable|AttrConfigurable)
}

// makeArgumentsObject materializes the lazy arguments object on first use
// of the name in a non-arrow function.
func (vm *VM) makeArgumentsObject(f *Frame) *Object {
	ctx := vm.ctx
	obj := &Object{
		kind:       KindArguments,
		shape:      ctx.instance.rootShape,
		prototype:  ctx.ObjectPrototype(),
		extensible: true,
	}
	inst := ctx.Instance()
	for i, arg := range f.args {
		obj.DefineOwn(ctx, AtomKey(inst.InternIndex(uint32(i))), arg, AttrDefault)
	}
	obj.DefineOwn(ctx, AtomKey(inst.Intern("length")), Integer(int32(len(f.args))), AttrWritable|AttrConfigurable)
	if !f.block.Strict && f.fn != nil {
		obj.DefineOwn(ctx, AtomKey(inst.Intern("callee")), ObjectValue(f.fn), AttrWritable|AttrConfigurable)
	}
	// arguments is iterable like an array.
	if iterFn, err := ctx.intrinsics.ArrayProto.Get(ctx, AtomKey(inst.Intern("values")), ObjectValue(ctx.intrinsics.ArrayProto)); err == nil && iterFn.IsCallable() {
		obj.DefineOwn(ctx, SymbolKey(inst.wellKnown.Iterator), iterFn, AttrWritable|AttrConfigurable)
	}
	return obj
}

// loadName performs the dynamic name lookup: with-scopes innermost first,
// then the heap environment chain, then global lexicals, then the global
// object.
func (vm *VM) loadName(f *Frame, name *Atom) (Value, bool, error) {
	ctx := vm.ctx
	key := AtomKey(name)
	for i := len(f.withScopes) - 1; i >= 0; i-- {
		scope := f.withScopes[i]
		if scope.IsObject() && scope.AsObject().Has(ctx, key) {
			v, err := ctx.GetProperty(scope, key)
			return v, true, err
		}
	}
	if f.env != nil {
		if rec, slot, ok := f.env.ResolveName(name); ok {
			v := rec.Load(slot)
			if v.IsEmpty() {
				return Undefined, true, ctx.NewReferenceError("Cannot access '%s' before initialization", name)
			}
			return v, true, nil
		}
	}
	if b, ok := ctx.GlobalLexical(name); ok {
		if b.Value.IsEmpty() {
			return Undefined, true, ctx.NewReferenceError("Cannot access '%s' before initialization", name)
		}
		return b.Value, true, nil
	}
	if ctx.global.Has(ctx, key) {
		v, err := ctx.GetProperty(ObjectValue(ctx.global), key)
		return v, true, err
	}
	return Undefined, false, nil
}

func (vm *VM) storeName(f *Frame, name *Atom, val Value) error {
	ctx := vm.ctx
	key := AtomKey(name)
	for i := len(f.withScopes) - 1; i >= 0; i-- {
		scope := f.withScopes[i]
		if scope.IsObject() && scope.AsObject().Has(ctx, key) {
			return ctx.SetProperty(scope, key, val, f.block.Strict)
		}
	}
	if f.env != nil {
		if rec, slot, ok := f.env.ResolveName(name); ok {
			if rec.Load(slot).IsEmpty() && slot < len(rec.scope.LexicalSlots) && rec.scope.LexicalSlots[slot] {
				return ctx.NewReferenceError("Cannot access '%s' before initialization", name)
			}
			rec.Store(slot, val)
			return nil
		}
	}
	if b, ok := ctx.GlobalLexical(name); ok {
		if b.Value.IsEmpty() {
			return ctx.NewReferenceError("Cannot access '%s' before initialization", name)
		}
		if !b.Mutable {
			return ctx.NewTypeError("Assignment to constant variable.")
		}
		b.Value = val
		return nil
	}
	if !ctx.global.Has(ctx, key) && f.block.Strict {
		return ctx.NewReferenceError("%s is not defined", name)
	}
	return ctx.SetProperty(ObjectValue(ctx.global), key, val, f.block.Strict)
}

func (vm *VM) initializeName(f *Frame, name *Atom, val Value, isLexical bool) error {
	ctx := vm.ctx
	if f.env != nil {
		if rec, slot, ok := f.env.ResolveName(name); ok {
			rec.Store(slot, val)
			return nil
		}
	}
	if isLexical {
		b, ok := ctx.GlobalLexical(name)
		if !ok {
			b = ctx.DefineGlobalLexical(name, true)
		}
		b.Value = val
		return nil
	}
	ctx.global.DefineOwn(ctx, AtomKey(name), val, AttrWritable|AttrEnumerable)
	return nil
}

// resolveNameAddress pre-resolves the reference for a with-scoped compound
// assignment: the with object owning the name, or Undefined when the
// binding lives in an environment record or the global scope.
func (vm *VM) resolveNameAddress(f *Frame, name *Atom) Value {
	ctx := vm.ctx
	key := AtomKey(name)
	for i := len(f.withScopes) - 1; i >= 0; i-- {
		scope := f.withScopes[i]
		if scope.IsObject() && scope.AsObject().Has(ctx, key) {
			return scope
		}
	}
	return Undefined
}

func (vm *VM) getGlobal(f *Frame, cacheIdx uint16) (Value, error) {
	ctx := vm.ctx
	cache := &f.block.GlobalCaches[cacheIdx]
	name := cache.Name
	if b, ok := ctx.GlobalLexical(name); ok {
		if b.Value.IsEmpty() {
			return Undefined, ctx.NewReferenceError("Cannot access '%s' before initialization", name)
		}
		return b.Value, nil
	}
	// Shape-keyed fast path against the global object.
	if cache.shape == ctx.global.shape && cache.shape != nil {
		return ctx.global.slots[cache.offset], nil
	}
	key := AtomKey(name)
	if field, ok := ctx.global.shape.Lookup(key); ok && field.Attrs&attrAccessor == 0 {
		cache.shape = ctx.global.shape
		cache.offset = field.Offset
		return ctx.global.slots[field.Offset], nil
	}
	if ctx.global.Has(ctx, key) {
		return ctx.GetProperty(ObjectValue(ctx.global), key)
	}
	return Undefined, ctx.NewReferenceError("%s is not defined", name)
}

func (vm *VM) setGlobal(f *Frame, cacheIdx uint16, val Value) error {
	ctx := vm.ctx
	cache := &f.block.GlobalCaches[cacheIdx]
	name := cache.Name
	if b, ok := ctx.GlobalLexical(name); ok {
		if b.Value.IsEmpty() {
			return ctx.NewReferenceError("Cannot access '%s' before initialization", name)
		}
		if !b.Mutable {
			return ctx.NewTypeError("Assignment to constant variable.")
		}
		b.Value = val
		return nil
	}
	if cache.shape == ctx.global.shape && cache.shape != nil {
		field := cache.shape.fields[slotField(cache.shape, cache.offset)]
		if field.Attrs&AttrWritable != 0 {
			ctx.global.slots[cache.offset] = val
			return nil
		}
	}
	key := AtomKey(name)
	if field, ok := ctx.global.shape.Lookup(key); ok && field.Attrs&attrAccessor == 0 && field.Attrs&AttrWritable != 0 {
		cache.shape = ctx.global.shape
		cache.offset = field.Offset
		ctx.global.slots[field.Offset] = val
		return nil
	}
	if !ctx.global.Has(ctx, key) && f.block.Strict {
		return ctx.NewReferenceError("%s is not defined", name)
	}
	return ctx.SetProperty(ObjectValue(ctx.global), key, val, f.block.Strict)
}

func slotField(s *Shape, offset int) int {
	for i := range s.fields {
		if s.fields[i].Offset == offset {
			return i
		}
	}
	return 0
}

// add implements the + operator with its string-concatenation branch.
func (vm *VM) add(a, b Value) (Value, error) {
	ctx := vm.ctx
	if a.IsInteger() && b.IsInteger() {
		sum := int64(a.AsInteger()) + int64(b.AsInteger())
		if sum >= math.MinInt32 && sum <= math.MaxInt32 {
			return Integer(int32(sum)), nil
		}
		return Number(float64(sum)), nil
	}
	if a.IsNumber() && b.IsNumber() {
		return Number(a.NumberValue() + b.NumberValue()), nil
	}
	pa, err := ctx.ToPrimitive(a, "default")
	if err != nil {
		return Undefined, err
	}
	pb, err := ctx.ToPrimitive(b, "default")
	if err != nil {
		return Undefined, err
	}
	if pa.IsString() || pb.IsString() {
		sa, err := ctx.ToString(pa)
		if err != nil {
			return Undefined, err
		}
		sb, err := ctx.ToString(pb)
		if err != nil {
			return Undefined, err
		}
		s := ConcatStrings(sa, sb)
		if s == nil {
			return Undefined, ctx.NewRangeError("Invalid string length")
		}
		return NewStringValue(s), nil
	}
	na, err := ctx.ToNumber(pa)
	if err != nil {
		return Undefined, err
	}
	nb, err := ctx.ToNumber(pb)
	if err != nil {
		return Undefined, err
	}
	return Number(na + nb), nil
}

func (vm *VM) arith(op OpCode, a, b Value) (Value, error) {
	ctx := vm.ctx
	na, err := ctx.ToNumber(a)
	if err != nil {
		return Undefined, err
	}
	nb, err := ctx.ToNumber(b)
	if err != nil {
		return Undefined, err
	}
	switch op {
	case OpSubtract:
		return Number(na - nb), nil
	case OpMultiply:
		return Number(na * nb), nil
	case OpDivide:
		return Number(na / nb), nil
	case OpRemainder:
		return Number(math.Mod(na, nb)), nil
	case OpExponent:
		return Number(math.Pow(na, nb)), nil
	}
	return Undefined, nil
}

func (vm *VM) negate(a Value) (Value, error) {
	if a.IsInteger() && a.AsInteger() != 0 && a.AsInteger() != math.MinInt32 {
		return Integer(-a.AsInteger()), nil
	}
	n, err := vm.ctx.ToNumber(a)
	if err != nil {
		return Undefined, err
	}
	return Number(-n), nil
}

func (vm *VM) bitop(op OpCode, a, b Value) (Value, error) {
	ctx := vm.ctx
	switch op {
	case OpBitwiseAnd, OpBitwiseOr, OpBitwiseXor:
		x, err := ctx.ToInt32(a)
		if err != nil {
			return Undefined, err
		}
		y, err := ctx.ToInt32(b)
		if err != nil {
			return Undefined, err
		}
		switch op {
		case OpBitwiseAnd:
			return Integer(x & y), nil
		case OpBitwiseOr:
			return Integer(x | y), nil
		default:
			return Integer(x ^ y), nil
		}
	case OpShiftLeft, OpShiftRight:
		x, err := ctx.ToInt32(a)
		if err != nil {
			return Undefined, err
		}
		shift, err := ctx.ToUint32(b)
		if err != nil {
			return Undefined, err
		}
		if op == OpShiftLeft {
			return Integer(x << (shift & 31)), nil
		}
		return Integer(x >> (shift & 31)), nil
	default: // OpUnsignedShiftRight
		x, err := ctx.ToUint32(a)
		if err != nil {
			return Undefined, err
		}
		shift, err := ctx.ToUint32(b)
		if err != nil {
			return Undefined, err
		}
		return uint32Value(x >> (shift & 31)), nil
	}
}

// compare implements the abstract relational comparison.
func (vm *VM) compare(op OpCode, a, b Value) (Value, error) {
	ctx := vm.ctx
	pa, err := ctx.ToPrimitive(a, "number")
	if err != nil {
		return Undefined, err
	}
	pb, err := ctx.ToPrimitive(b, "number")
	if err != nil {
		return Undefined, err
	}
	if pa.IsString() && pb.IsString() {
		c := pa.AsString().Compare(pb.AsString())
		switch op {
		case OpLess:
			return Boolean(c < 0), nil
		case OpLessEqual:
			return Boolean(c <= 0), nil
		case OpGreater:
			return Boolean(c > 0), nil
		default:
			return Boolean(c >= 0), nil
		}
	}
	na, err := ctx.ToNumber(pa)
	if err != nil {
		return Undefined, err
	}
	nb, err := ctx.ToNumber(pb)
	if err != nil {
		return Undefined, err
	}
	if math.IsNaN(na) || math.IsNaN(nb) {
		return False, nil
	}
	switch op {
	case OpLess:
		return Boolean(na < nb), nil
	case OpLessEqual:
		return Boolean(na <= nb), nil
	case OpGreater:
		return Boolean(na > nb), nil
	default:
		return Boolean(na >= nb), nil
	}
}
