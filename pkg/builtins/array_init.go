package builtins

import (
	"escargot/pkg/vm"
)

type ArrayInitializer struct{}

func (a *ArrayInitializer) Name() string  { return "Array" }
func (a *ArrayInitializer) Priority() int { return PriorityArray }

// arrayFromArgs implements the constructor's argument forms: empty, single
// non-number element, single valid length, or an element list.
func arrayFromArgs(ctx *vm.Context, args []vm.Value) (vm.Value, error) {
	switch len(args) {
	case 0:
		return vm.ObjectValue(ctx.NewArray(0)), nil
	case 1:
		v := args[0]
		if v.IsNumber() {
			n := v.NumberValue()
			length := vm.ToUint32Float(n)
			if float64(length) != n {
				return vm.Undefined, ctx.NewRangeError("Invalid array length")
			}
			return vm.ObjectValue(ctx.NewArray(length)), nil
		}
		return vm.ObjectValue(ctx.NewArrayFromValues([]vm.Value{v})), nil
	default:
		elems := make([]vm.Value, len(args))
		copy(elems, args)
		return vm.ObjectValue(ctx.NewArrayFromValues(elems)), nil
	}
}

func (a *ArrayInitializer) InitRuntime(rc *RuntimeContext) error {
	ctx := rc.Ctx
	proto := ctx.Intrinsics().ArrayProto
	wk := ctx.Instance().WellKnown()

	ctor := ctx.NewNativeConstructor("Array", 1,
		func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
			return arrayFromArgs(ctx, args)
		},
		func(ctx *vm.Context, newTarget vm.Value, args []vm.Value) (vm.Value, error) {
			return arrayFromArgs(ctx, args)
		})
	ctx.Intrinsics().ArrayCtor = vm.ObjectValue(ctor)
	ctor.DefineOwn(ctx, key(ctx, "prototype"), vm.ObjectValue(proto), 0)
	defineValue(ctx, proto, "constructor", vm.ObjectValue(ctor))
	rc.DefineGlobal("Array", vm.ObjectValue(ctor))

	// @@species returns the receiver so derived classes construct
	// themselves by default.
	speciesGetter := ctx.NewNativeFunction("get [Symbol.species]", 0,
		func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
			return this, nil
		})
	ctor.DefineAccessor(ctx, vm.SymbolKey(wk.Species), vm.ObjectValue(speciesGetter), vm.Undefined, vm.AttrConfigurable)

	defineMethod(ctx, ctor, "isArray", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		v := arg(args, 0)
		return vm.Boolean(v.IsObject() && v.AsObject().IsArray()), nil
	})

	defineMethod(ctx, ctor, "of", 0, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		elems := make([]vm.Value, len(args))
		copy(elems, args)
		return vm.ObjectValue(ctx.NewArrayFromValues(elems)), nil
	})

	defineMethod(ctx, ctor, "from", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		items := arg(args, 0)
		mapFn := arg(args, 1)
		if !mapFn.IsUndefined() {
			if err := requireCallable(ctx, mapFn, "Array.from map function"); err != nil {
				return vm.Undefined, err
			}
		}
		apply := func(v vm.Value, i int64) (vm.Value, error) {
			if mapFn.IsUndefined() {
				return v, nil
			}
			return ctx.Call(mapFn, arg(args, 2), []vm.Value{v, vm.Number(float64(i))})
		}

		iterMethod, err := ctx.GetProperty(items, vm.SymbolKey(wk.Iterator))
		if err != nil {
			return vm.Undefined, err
		}
		if iterMethod.IsCallable() {
			iter, err := ctx.GetIterator(items)
			if err != nil {
				return vm.Undefined, err
			}
			var out []vm.Value
			for i := int64(0); ; i++ {
				v, done, err := ctx.IteratorStep(iter)
				if err != nil {
					return vm.Undefined, err
				}
				if done {
					break
				}
				mapped, err := apply(v, i)
				if err != nil {
					return vm.Undefined, ctx.IteratorClose(iter, err)
				}
				out = append(out, mapped)
			}
			return vm.ObjectValue(ctx.NewArrayFromValues(out)), nil
		}

		if items.IsNullish() {
			return vm.Undefined, ctx.NewTypeError("Array.from requires an array-like object")
		}
		length, err := lengthOf(ctx, items)
		if err != nil {
			return vm.Undefined, err
		}
		out := make([]vm.Value, 0, length)
		for i := int64(0); i < length; i++ {
			v, err := getElement(ctx, items, i)
			if err != nil {
				return vm.Undefined, err
			}
			mapped, err := apply(v, i)
			if err != nil {
				return vm.Undefined, err
			}
			out = append(out, mapped)
		}
		return vm.ObjectValue(ctx.NewArrayFromValues(out)), nil
	})

	// --- mutators ---

	defineMethod(ctx, proto, "push", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		length, err := lengthOf(ctx, this)
		if err != nil {
			return vm.Undefined, err
		}
		if err := checkLengthLimit(ctx, length+int64(len(args))); err != nil {
			return vm.Undefined, err
		}
		for _, v := range args {
			if err := setElement(ctx, this, length, v); err != nil {
				return vm.Undefined, err
			}
			length++
		}
		if err := setLength(ctx, this, length); err != nil {
			return vm.Undefined, err
		}
		return vm.Number(float64(length)), nil
	})

	defineMethod(ctx, proto, "pop", 0, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		length, err := lengthOf(ctx, this)
		if err != nil {
			return vm.Undefined, err
		}
		if length == 0 {
			if err := setLength(ctx, this, 0); err != nil {
				return vm.Undefined, err
			}
			return vm.Undefined, nil
		}
		v, err := getElement(ctx, this, length-1)
		if err != nil {
			return vm.Undefined, err
		}
		if err := deleteElement(ctx, this, length-1); err != nil {
			return vm.Undefined, err
		}
		if err := setLength(ctx, this, length-1); err != nil {
			return vm.Undefined, err
		}
		return v, nil
	})

	defineMethod(ctx, proto, "shift", 0, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		length, err := lengthOf(ctx, this)
		if err != nil {
			return vm.Undefined, err
		}
		if length == 0 {
			if err := setLength(ctx, this, 0); err != nil {
				return vm.Undefined, err
			}
			return vm.Undefined, nil
		}
		first, err := getElement(ctx, this, 0)
		if err != nil {
			return vm.Undefined, err
		}
		for i := int64(1); i < length; i++ {
			present, err := hasElement(ctx, this, i)
			if err != nil {
				return vm.Undefined, err
			}
			if present {
				v, err := getElement(ctx, this, i)
				if err != nil {
					return vm.Undefined, err
				}
				if err := setElement(ctx, this, i-1, v); err != nil {
					return vm.Undefined, err
				}
			} else if err := deleteElement(ctx, this, i-1); err != nil {
				return vm.Undefined, err
			}
		}
		if err := deleteElement(ctx, this, length-1); err != nil {
			return vm.Undefined, err
		}
		if err := setLength(ctx, this, length-1); err != nil {
			return vm.Undefined, err
		}
		return first, nil
	})

	defineMethod(ctx, proto, "unshift", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		length, err := lengthOf(ctx, this)
		if err != nil {
			return vm.Undefined, err
		}
		count := int64(len(args))
		if count > 0 {
			if err := checkLengthLimit(ctx, length+count); err != nil {
				return vm.Undefined, err
			}
			// Shift existing elements up, scanning presence so sparse
			// arrays stay sparse.
			for i := length - 1; i >= 0; i-- {
				present, err := hasElement(ctx, this, i)
				if err != nil {
					return vm.Undefined, err
				}
				if present {
					v, err := getElement(ctx, this, i)
					if err != nil {
						return vm.Undefined, err
					}
					if err := setElement(ctx, this, i+count, v); err != nil {
						return vm.Undefined, err
					}
				} else if err := deleteElement(ctx, this, i+count); err != nil {
					return vm.Undefined, err
				}
			}
			for i, v := range args {
				if err := setElement(ctx, this, int64(i), v); err != nil {
					return vm.Undefined, err
				}
			}
		}
		if err := setLength(ctx, this, length+count); err != nil {
			return vm.Undefined, err
		}
		return vm.Number(float64(length + count)), nil
	})

	defineMethod(ctx, proto, "splice", 2, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		length, err := lengthOf(ctx, this)
		if err != nil {
			return vm.Undefined, err
		}
		startF, err := ctx.ToInteger(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		start := relativeIndex(startF, length)
		var deleteCount int64
		switch {
		case len(args) == 0:
			deleteCount = 0
		case len(args) == 1:
			deleteCount = length - start
		default:
			dcF, err := ctx.ToInteger(arg(args, 1))
			if err != nil {
				return vm.Undefined, err
			}
			deleteCount = int64(dcF)
			if deleteCount < 0 {
				deleteCount = 0
			}
			if deleteCount > length-start {
				deleteCount = length - start
			}
		}
		var items []vm.Value
		if len(args) > 2 {
			items = args[2:]
		}
		if err := checkLengthLimit(ctx, length+int64(len(items))-deleteCount); err != nil {
			return vm.Undefined, err
		}

		removedVal, err := arraySpeciesCreate(ctx, this, deleteCount)
		if err != nil {
			return vm.Undefined, err
		}
		for i := int64(0); i < deleteCount; i++ {
			present, err := hasElement(ctx, this, start+i)
			if err != nil {
				return vm.Undefined, err
			}
			if present {
				v, err := getElement(ctx, this, start+i)
				if err != nil {
					return vm.Undefined, err
				}
				if err := setElement(ctx, removedVal, i, v); err != nil {
					return vm.Undefined, err
				}
			}
		}
		if err := setLength(ctx, removedVal, deleteCount); err != nil {
			return vm.Undefined, err
		}

		insert := int64(len(items))
		switch {
		case insert < deleteCount:
			for i := start; i < length-deleteCount; i++ {
				from, to := i+deleteCount, i+insert
				present, err := hasElement(ctx, this, from)
				if err != nil {
					return vm.Undefined, err
				}
				if present {
					v, err := getElement(ctx, this, from)
					if err != nil {
						return vm.Undefined, err
					}
					if err := setElement(ctx, this, to, v); err != nil {
						return vm.Undefined, err
					}
				} else if err := deleteElement(ctx, this, to); err != nil {
					return vm.Undefined, err
				}
			}
			for i := length; i > length-deleteCount+insert; i-- {
				if err := deleteElement(ctx, this, i-1); err != nil {
					return vm.Undefined, err
				}
			}
		case insert > deleteCount:
			for i := length - deleteCount; i > start; i-- {
				from, to := i+deleteCount-1, i+insert-1
				present, err := hasElement(ctx, this, from)
				if err != nil {
					return vm.Undefined, err
				}
				if present {
					v, err := getElement(ctx, this, from)
					if err != nil {
						return vm.Undefined, err
					}
					if err := setElement(ctx, this, to, v); err != nil {
						return vm.Undefined, err
					}
				} else if err := deleteElement(ctx, this, to); err != nil {
					return vm.Undefined, err
				}
			}
		}
		for i, v := range items {
			if err := setElement(ctx, this, start+int64(i), v); err != nil {
				return vm.Undefined, err
			}
		}
		if err := setLength(ctx, this, length-deleteCount+insert); err != nil {
			return vm.Undefined, err
		}
		return removedVal, nil
	})

	defineMethod(ctx, proto, "reverse", 0, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		length, err := lengthOf(ctx, this)
		if err != nil {
			return vm.Undefined, err
		}
		for lower := int64(0); lower < length/2; lower++ {
			upper := length - lower - 1
			lowerPresent, err := hasElement(ctx, this, lower)
			if err != nil {
				return vm.Undefined, err
			}
			upperPresent, err := hasElement(ctx, this, upper)
			if err != nil {
				return vm.Undefined, err
			}
			var lowerVal, upperVal vm.Value
			if lowerPresent {
				if lowerVal, err = getElement(ctx, this, lower); err != nil {
					return vm.Undefined, err
				}
			}
			if upperPresent {
				if upperVal, err = getElement(ctx, this, upper); err != nil {
					return vm.Undefined, err
				}
			}
			switch {
			case lowerPresent && upperPresent:
				if err := setElement(ctx, this, lower, upperVal); err != nil {
					return vm.Undefined, err
				}
				if err := setElement(ctx, this, upper, lowerVal); err != nil {
					return vm.Undefined, err
				}
			case upperPresent:
				if err := setElement(ctx, this, lower, upperVal); err != nil {
					return vm.Undefined, err
				}
				if err := deleteElement(ctx, this, upper); err != nil {
					return vm.Undefined, err
				}
			case lowerPresent:
				if err := deleteElement(ctx, this, lower); err != nil {
					return vm.Undefined, err
				}
				if err := setElement(ctx, this, upper, lowerVal); err != nil {
					return vm.Undefined, err
				}
			}
		}
		return this, nil
	})

	defineMethod(ctx, proto, "fill", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		length, err := lengthOf(ctx, this)
		if err != nil {
			return vm.Undefined, err
		}
		value := arg(args, 0)
		startF := 0.0
		if len(args) > 1 {
			if startF, err = ctx.ToInteger(arg(args, 1)); err != nil {
				return vm.Undefined, err
			}
		}
		endF := float64(length)
		if len(args) > 2 && !arg(args, 2).IsUndefined() {
			if endF, err = ctx.ToInteger(arg(args, 2)); err != nil {
				return vm.Undefined, err
			}
		}
		for i := relativeIndex(startF, length); i < relativeIndex(endF, length); i++ {
			if err := setElement(ctx, this, i, value); err != nil {
				return vm.Undefined, err
			}
		}
		return this, nil
	})

	defineMethod(ctx, proto, "copyWithin", 2, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		length, err := lengthOf(ctx, this)
		if err != nil {
			return vm.Undefined, err
		}
		targetF, err := ctx.ToInteger(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		startF, err := ctx.ToInteger(arg(args, 1))
		if err != nil {
			return vm.Undefined, err
		}
		endF := float64(length)
		if len(args) > 2 && !arg(args, 2).IsUndefined() {
			if endF, err = ctx.ToInteger(arg(args, 2)); err != nil {
				return vm.Undefined, err
			}
		}
		to := relativeIndex(targetF, length)
		from := relativeIndex(startF, length)
		final := relativeIndex(endF, length)
		count := final - from
		if count > length-to {
			count = length - to
		}
		step := int64(1)
		if from < to && to < from+count {
			step = -1
			from += count - 1
			to += count - 1
		}
		for count > 0 {
			present, err := hasElement(ctx, this, from)
			if err != nil {
				return vm.Undefined, err
			}
			if present {
				v, err := getElement(ctx, this, from)
				if err != nil {
					return vm.Undefined, err
				}
				if err := setElement(ctx, this, to, v); err != nil {
					return vm.Undefined, err
				}
			} else if err := deleteElement(ctx, this, to); err != nil {
				return vm.Undefined, err
			}
			from += step
			to += step
			count--
		}
		return this, nil
	})

	defineMethod(ctx, proto, "sort", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		comparator := arg(args, 0)
		if !comparator.IsUndefined() && !comparator.IsCallable() {
			return vm.Undefined, ctx.NewTypeError("The comparison function must be either a function or undefined")
		}
		length, err := lengthOf(ctx, this)
		if err != nil {
			return vm.Undefined, err
		}
		var defined []vm.Value
		undefinedCount := int64(0)
		for i := int64(0); i < length; i++ {
			present, err := hasElement(ctx, this, i)
			if err != nil {
				return vm.Undefined, err
			}
			if !present {
				continue
			}
			v, err := getElement(ctx, this, i)
			if err != nil {
				return vm.Undefined, err
			}
			if v.IsUndefined() {
				undefinedCount++
				continue
			}
			defined = append(defined, v)
		}
		if err := sortValues(ctx, defined, comparator); err != nil {
			return vm.Undefined, err
		}
		i := int64(0)
		for _, v := range defined {
			if err := setElement(ctx, this, i, v); err != nil {
				return vm.Undefined, err
			}
			i++
		}
		// undefined sorts just before the holes at the end.
		for j := int64(0); j < undefinedCount; j++ {
			if err := setElement(ctx, this, i, vm.Undefined); err != nil {
				return vm.Undefined, err
			}
			i++
		}
		for ; i < length; i++ {
			if err := deleteElement(ctx, this, i); err != nil {
				return vm.Undefined, err
			}
		}
		return this, nil
	})

	// --- accessors and copies ---

	defineMethod(ctx, proto, "slice", 2, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		length, err := lengthOf(ctx, this)
		if err != nil {
			return vm.Undefined, err
		}
		startF := 0.0
		if len(args) > 0 && !arg(args, 0).IsUndefined() {
			if startF, err = ctx.ToInteger(arg(args, 0)); err != nil {
				return vm.Undefined, err
			}
		}
		endF := float64(length)
		if len(args) > 1 && !arg(args, 1).IsUndefined() {
			if endF, err = ctx.ToInteger(arg(args, 1)); err != nil {
				return vm.Undefined, err
			}
		}
		start := relativeIndex(startF, length)
		end := relativeIndex(endF, length)
		count := end - start
		if count < 0 {
			count = 0
		}
		result, err := arraySpeciesCreate(ctx, this, count)
		if err != nil {
			return vm.Undefined, err
		}
		n := int64(0)
		for i := start; i < end; i++ {
			present, err := hasElement(ctx, this, i)
			if err != nil {
				return vm.Undefined, err
			}
			if present {
				v, err := getElement(ctx, this, i)
				if err != nil {
					return vm.Undefined, err
				}
				if err := setElement(ctx, result, n, v); err != nil {
					return vm.Undefined, err
				}
			}
			n++
		}
		if err := setLength(ctx, result, n); err != nil {
			return vm.Undefined, err
		}
		return result, nil
	})

	defineMethod(ctx, proto, "concat", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		obj, err := ctx.ToObject(this)
		if err != nil {
			return vm.Undefined, err
		}
		result, err := arraySpeciesCreate(ctx, this, 0)
		if err != nil {
			return vm.Undefined, err
		}
		n := int64(0)
		parts := append([]vm.Value{vm.ObjectValue(obj)}, args...)
		for _, part := range parts {
			spreadable, err := isConcatSpreadable(ctx, part)
			if err != nil {
				return vm.Undefined, err
			}
			if spreadable {
				partLen, err := lengthOf(ctx, part)
				if err != nil {
					return vm.Undefined, err
				}
				if err := checkLengthLimit(ctx, n+partLen); err != nil {
					return vm.Undefined, err
				}
				for i := int64(0); i < partLen; i++ {
					present, err := hasElement(ctx, part, i)
					if err != nil {
						return vm.Undefined, err
					}
					if present {
						v, err := getElement(ctx, part, i)
						if err != nil {
							return vm.Undefined, err
						}
						if err := setElement(ctx, result, n, v); err != nil {
							return vm.Undefined, err
						}
					}
					n++
				}
			} else {
				if err := checkLengthLimit(ctx, n+1); err != nil {
					return vm.Undefined, err
				}
				if err := setElement(ctx, result, n, part); err != nil {
					return vm.Undefined, err
				}
				n++
			}
		}
		if err := setLength(ctx, result, n); err != nil {
			return vm.Undefined, err
		}
		return result, nil
	})

	defineMethod(ctx, proto, "join", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		obj, err := ctx.ToObject(this)
		if err != nil {
			return vm.Undefined, err
		}
		// Self-referential arrays render their cycle as the empty string.
		if !ctx.EnterRecursion(obj) {
			return vm.StringValue(""), nil
		}
		defer ctx.LeaveRecursion(obj)

		length, err := lengthOf(ctx, this)
		if err != nil {
			return vm.Undefined, err
		}
		sep := vm.NewStringFromGo(",")
		if s := arg(args, 0); !s.IsUndefined() {
			if sep, err = ctx.ToString(s); err != nil {
				return vm.Undefined, err
			}
		}
		var out *vm.String = vm.NewStringFromGo("")
		for i := int64(0); i < length; i++ {
			if i > 0 {
				if out = vm.ConcatStrings(out, sep); out == nil {
					return vm.Undefined, ctx.NewRangeError("Invalid string length")
				}
			}
			v, err := getElement(ctx, this, i)
			if err != nil {
				return vm.Undefined, err
			}
			piece, err := joinElement(ctx, v)
			if err != nil {
				return vm.Undefined, err
			}
			if out = vm.ConcatStrings(out, piece); out == nil {
				return vm.Undefined, ctx.NewRangeError("Invalid string length")
			}
		}
		return vm.NewStringValue(out), nil
	})

	defineMethod(ctx, proto, "toString", 0, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		joinFn, err := ctx.GetProperty(this, key(ctx, "join"))
		if err != nil {
			return vm.Undefined, err
		}
		if joinFn.IsCallable() {
			return ctx.Call(joinFn, this, nil)
		}
		m, err := ctx.GetProperty(vm.ObjectValue(ctx.Intrinsics().ObjectProto), key(ctx, "toString"))
		if err != nil {
			return vm.Undefined, err
		}
		return ctx.Call(m, this, nil)
	})

	defineMethod(ctx, proto, "indexOf", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		length, err := lengthOf(ctx, this)
		if err != nil {
			return vm.Undefined, err
		}
		target := arg(args, 0)
		fromF := 0.0
		if len(args) > 1 {
			if fromF, err = ctx.ToInteger(arg(args, 1)); err != nil {
				return vm.Undefined, err
			}
		}
		start := int64(fromF)
		if start < 0 {
			start += length
			if start < 0 {
				start = 0
			}
		}
		for i := start; i < length; i++ {
			present, err := hasElement(ctx, this, i)
			if err != nil {
				return vm.Undefined, err
			}
			if !present {
				continue
			}
			v, err := getElement(ctx, this, i)
			if err != nil {
				return vm.Undefined, err
			}
			if vm.StrictEquals(v, target) {
				return vm.Number(float64(i)), nil
			}
		}
		return vm.Integer(-1), nil
	})

	defineMethod(ctx, proto, "lastIndexOf", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		length, err := lengthOf(ctx, this)
		if err != nil {
			return vm.Undefined, err
		}
		target := arg(args, 0)
		start := length - 1
		if len(args) > 1 {
			fromF, err := ctx.ToInteger(arg(args, 1))
			if err != nil {
				return vm.Undefined, err
			}
			start = int64(fromF)
			if start < 0 {
				start += length
			} else if start > length-1 {
				start = length - 1
			}
		}
		for i := start; i >= 0; i-- {
			present, err := hasElement(ctx, this, i)
			if err != nil {
				return vm.Undefined, err
			}
			if !present {
				continue
			}
			v, err := getElement(ctx, this, i)
			if err != nil {
				return vm.Undefined, err
			}
			if vm.StrictEquals(v, target) {
				return vm.Number(float64(i)), nil
			}
		}
		return vm.Integer(-1), nil
	})

	defineMethod(ctx, proto, "includes", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		length, err := lengthOf(ctx, this)
		if err != nil {
			return vm.Undefined, err
		}
		target := arg(args, 0)
		fromF := 0.0
		if len(args) > 1 {
			if fromF, err = ctx.ToInteger(arg(args, 1)); err != nil {
				return vm.Undefined, err
			}
		}
		start := int64(fromF)
		if start < 0 {
			start += length
			if start < 0 {
				start = 0
			}
		}
		// includes visits holes: they read as undefined.
		for i := start; i < length; i++ {
			v, err := getElement(ctx, this, i)
			if err != nil {
				return vm.Undefined, err
			}
			if vm.SameValueZero(v, target) {
				return vm.True, nil
			}
		}
		return vm.False, nil
	})

	// --- iteration methods (hole-skipping) ---

	defineMethod(ctx, proto, "forEach", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		_, err := iterateArray(ctx, this, args, "forEach", func(v vm.Value, i int64, res vm.Value) (bool, error) {
			return true, nil
		})
		return vm.Undefined, err
	})

	defineMethod(ctx, proto, "map", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		length, err := lengthOf(ctx, this)
		if err != nil {
			return vm.Undefined, err
		}
		callback := arg(args, 0)
		if err := requireCallable(ctx, callback, "map callback"); err != nil {
			return vm.Undefined, err
		}
		result, err := arraySpeciesCreate(ctx, this, length)
		if err != nil {
			return vm.Undefined, err
		}
		thisArg := arg(args, 1)
		for i := int64(0); i < length; i++ {
			present, err := hasElement(ctx, this, i)
			if err != nil {
				return vm.Undefined, err
			}
			if !present {
				continue
			}
			v, err := getElement(ctx, this, i)
			if err != nil {
				return vm.Undefined, err
			}
			mapped, err := ctx.Call(callback, thisArg, callbackArgs(v, i, this))
			if err != nil {
				return vm.Undefined, err
			}
			if err := setElement(ctx, result, i, mapped); err != nil {
				return vm.Undefined, err
			}
		}
		return result, nil
	})

	defineMethod(ctx, proto, "filter", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		length, err := lengthOf(ctx, this)
		if err != nil {
			return vm.Undefined, err
		}
		callback := arg(args, 0)
		if err := requireCallable(ctx, callback, "filter callback"); err != nil {
			return vm.Undefined, err
		}
		result, err := arraySpeciesCreate(ctx, this, 0)
		if err != nil {
			return vm.Undefined, err
		}
		thisArg := arg(args, 1)
		n := int64(0)
		for i := int64(0); i < length; i++ {
			present, err := hasElement(ctx, this, i)
			if err != nil {
				return vm.Undefined, err
			}
			if !present {
				continue
			}
			v, err := getElement(ctx, this, i)
			if err != nil {
				return vm.Undefined, err
			}
			selected, err := ctx.Call(callback, thisArg, callbackArgs(v, i, this))
			if err != nil {
				return vm.Undefined, err
			}
			if vm.ToBoolean(selected) {
				if err := setElement(ctx, result, n, v); err != nil {
					return vm.Undefined, err
				}
				n++
			}
		}
		return result, nil
	})

	defineMethod(ctx, proto, "every", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		all := true
		_, err := iterateArray(ctx, this, args, "every", func(v vm.Value, i int64, res vm.Value) (bool, error) {
			if !vm.ToBoolean(res) {
				all = false
				return false, nil
			}
			return true, nil
		})
		return vm.Boolean(all), err
	})

	defineMethod(ctx, proto, "some", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		any := false
		_, err := iterateArray(ctx, this, args, "some", func(v vm.Value, i int64, res vm.Value) (bool, error) {
			if vm.ToBoolean(res) {
				any = true
				return false, nil
			}
			return true, nil
		})
		return vm.Boolean(any), err
	})

	defineMethod(ctx, proto, "find", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		return arrayFind(ctx, this, args, true)
	})

	defineMethod(ctx, proto, "findIndex", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		return arrayFind(ctx, this, args, false)
	})

	defineMethod(ctx, proto, "reduce", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		return arrayReduce(ctx, this, args, false)
	})

	defineMethod(ctx, proto, "reduceRight", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		return arrayReduce(ctx, this, args, true)
	})

	// --- iterators ---

	defineMethod(ctx, proto, "keys", 0, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		obj, err := ctx.ToObject(this)
		if err != nil {
			return vm.Undefined, err
		}
		return vm.ObjectValue(ctx.NewArrayIterator(vm.ObjectValue(obj), vm.IterKeys)), nil
	})
	valuesFn := ctx.NewNativeFunction("values", 0, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		obj, err := ctx.ToObject(this)
		if err != nil {
			return vm.Undefined, err
		}
		return vm.ObjectValue(ctx.NewArrayIterator(vm.ObjectValue(obj), vm.IterValues)), nil
	})
	proto.DefineOwn(ctx, key(ctx, "values"), vm.ObjectValue(valuesFn), vm.AttrWritable|vm.AttrConfigurable)
	proto.DefineOwn(ctx, vm.SymbolKey(wk.Iterator), vm.ObjectValue(valuesFn), vm.AttrWritable|vm.AttrConfigurable)
	defineMethod(ctx, proto, "entries", 0, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		obj, err := ctx.ToObject(this)
		if err != nil {
			return vm.Undefined, err
		}
		return vm.ObjectValue(ctx.NewArrayIterator(vm.ObjectValue(obj), vm.IterEntries)), nil
	})

	return nil
}

// iterateArray drives the common forEach/every/some loop: call the callback
// for present indices only, stop early when visit returns false.
func iterateArray(ctx *vm.Context, this vm.Value, args []vm.Value, name string, visit func(v vm.Value, i int64, res vm.Value) (bool, error)) (int64, error) {
	length, err := lengthOf(ctx, this)
	if err != nil {
		return 0, err
	}
	callback := arg(args, 0)
	if err := requireCallable(ctx, callback, name+" callback"); err != nil {
		return 0, err
	}
	thisArg := arg(args, 1)
	for i := int64(0); i < length; i++ {
		present, err := hasElement(ctx, this, i)
		if err != nil {
			return 0, err
		}
		if !present {
			continue
		}
		v, err := getElement(ctx, this, i)
		if err != nil {
			return 0, err
		}
		res, err := ctx.Call(callback, thisArg, callbackArgs(v, i, this))
		if err != nil {
			return 0, err
		}
		cont, err := visit(v, i, res)
		if err != nil {
			return 0, err
		}
		if !cont {
			return i, nil
		}
	}
	return length, nil
}

// arrayFind visits every index (holes read as undefined) per the spec.
func arrayFind(ctx *vm.Context, this vm.Value, args []vm.Value, wantValue bool) (vm.Value, error) {
	length, err := lengthOf(ctx, this)
	if err != nil {
		return vm.Undefined, err
	}
	callback := arg(args, 0)
	if err := requireCallable(ctx, callback, "find predicate"); err != nil {
		return vm.Undefined, err
	}
	thisArg := arg(args, 1)
	for i := int64(0); i < length; i++ {
		v, err := getElement(ctx, this, i)
		if err != nil {
			return vm.Undefined, err
		}
		res, err := ctx.Call(callback, thisArg, callbackArgs(v, i, this))
		if err != nil {
			return vm.Undefined, err
		}
		if vm.ToBoolean(res) {
			if wantValue {
				return v, nil
			}
			return vm.Number(float64(i)), nil
		}
	}
	if wantValue {
		return vm.Undefined, nil
	}
	return vm.Integer(-1), nil
}

func arrayReduce(ctx *vm.Context, this vm.Value, args []vm.Value, fromRight bool) (vm.Value, error) {
	length, err := lengthOf(ctx, this)
	if err != nil {
		return vm.Undefined, err
	}
	callback := arg(args, 0)
	if err := requireCallable(ctx, callback, "reduce callback"); err != nil {
		return vm.Undefined, err
	}
	i, step, end := int64(0), int64(1), length
	if fromRight {
		i, step, end = length-1, -1, -1
	}
	var acc vm.Value
	hasAcc := len(args) > 1
	if hasAcc {
		acc = args[1]
	}
	for ; i != end; i += step {
		present, err := hasElement(ctx, this, i)
		if err != nil {
			return vm.Undefined, err
		}
		if !present {
			continue
		}
		v, err := getElement(ctx, this, i)
		if err != nil {
			return vm.Undefined, err
		}
		if !hasAcc {
			acc = v
			hasAcc = true
			continue
		}
		if acc, err = ctx.Call(callback, vm.Undefined, []vm.Value{acc, v, vm.Number(float64(i)), this}); err != nil {
			return vm.Undefined, err
		}
	}
	if !hasAcc {
		return vm.Undefined, ctx.NewTypeError("Reduce of empty array with no initial value")
	}
	return acc, nil
}

// isConcatSpreadable honors @@isConcatSpreadable before falling back to
// IsArray.
func isConcatSpreadable(ctx *vm.Context, v vm.Value) (bool, error) {
	if !v.IsObject() {
		return false, nil
	}
	custom, err := v.AsObject().Get(ctx, vm.SymbolKey(ctx.Instance().WellKnown().IsConcatSpreadable), v)
	if err != nil {
		return false, err
	}
	if !custom.IsUndefined() {
		return vm.ToBoolean(custom), nil
	}
	return v.AsObject().IsArray(), nil
}
