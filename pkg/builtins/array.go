package builtins

import (
	"sort"
	"strconv"

	"escargot/pkg/vm"
)

// maxArrayLength is the 2^53-1 cap every length-extending write checks.
const maxArrayLength = int64(1)<<53 - 1

func indexKey(ctx *vm.Context, i int64) vm.PropertyKey {
	if i >= 0 && i < 0xFFFFFFFF {
		return vm.AtomKey(ctx.Instance().InternIndex(uint32(i)))
	}
	return vm.AtomKey(ctx.Instance().Intern(strconv.FormatInt(i, 10)))
}

// lengthOf reads ToLength(receiver.length).
func lengthOf(ctx *vm.Context, recv vm.Value) (int64, error) {
	if recv.IsObject() && recv.AsObject().IsArray() {
		return int64(recv.AsObject().ArrayLength()), nil
	}
	lenVal, err := ctx.GetProperty(recv, key(ctx, "length"))
	if err != nil {
		return 0, err
	}
	return ctx.ToLength(lenVal)
}

// hasElement walks the prototype chain so callbacks observe mutations the
// way the spec algorithms require.
func hasElement(ctx *vm.Context, recv vm.Value, i int64) (bool, error) {
	if !recv.IsObject() {
		obj, err := ctx.ToObject(recv)
		if err != nil {
			return false, err
		}
		return obj.Has(ctx, indexKey(ctx, i)), nil
	}
	obj := recv.AsObject()
	if obj.IsFastArray() {
		if v, hit := obj.ArrayFastGet(uint32(i)); hit && !v.IsEmpty() {
			return true, nil
		}
		// Holes defer to the prototype chain.
	}
	return obj.Has(ctx, indexKey(ctx, i)), nil
}

func getElement(ctx *vm.Context, recv vm.Value, i int64) (vm.Value, error) {
	return ctx.GetProperty(recv, indexKey(ctx, i))
}

// setElement performs the strict-mode Set the mutating methods use.
func setElement(ctx *vm.Context, recv vm.Value, i int64, v vm.Value) error {
	return ctx.SetProperty(recv, indexKey(ctx, i), v, true)
}

func deleteElement(ctx *vm.Context, recv vm.Value, i int64) error {
	if !recv.IsObject() {
		return nil
	}
	if !recv.AsObject().DeleteOwnProperty(ctx, indexKey(ctx, i)) {
		return ctx.NewTypeError("Cannot delete property '%d'", i)
	}
	return nil
}

func setLength(ctx *vm.Context, recv vm.Value, n int64) error {
	return ctx.SetProperty(recv, key(ctx, "length"), vm.Number(float64(n)), true)
}

// checkLengthLimit rejects writes that would push length past 2^53-1.
func checkLengthLimit(ctx *vm.Context, n int64) error {
	if n > maxArrayLength || n < 0 {
		return ctx.NewTypeError("Invalid array length")
	}
	return nil
}

// arraySpeciesCreate implements the shared @@species construction protocol:
// derived classes build derived results, a null species falls back to the
// default array.
func arraySpeciesCreate(ctx *vm.Context, original vm.Value, length int64) (vm.Value, error) {
	if length >= 1<<32 {
		return vm.Undefined, ctx.NewRangeError("Invalid array length")
	}
	if !original.IsObject() || !original.AsObject().IsArray() {
		return vm.ObjectValue(ctx.NewArray(uint32(length))), nil
	}
	ctor, err := ctx.GetProperty(original, key(ctx, "constructor"))
	if err != nil {
		return vm.Undefined, err
	}
	if ctor.IsObject() {
		species, err := ctx.GetProperty(ctor, vm.SymbolKey(ctx.Instance().WellKnown().Species))
		if err != nil {
			return vm.Undefined, err
		}
		if species.IsNull() {
			ctor = vm.Undefined
		} else {
			ctor = species
		}
	}
	if ctor.IsUndefined() || vm.StrictEquals(ctor, ctx.Intrinsics().ArrayCtor) {
		return vm.ObjectValue(ctx.NewArray(uint32(length))), nil
	}
	if !ctor.IsCallable() {
		return vm.Undefined, ctx.NewTypeError("constructor is not a constructor")
	}
	return ctx.Construct(ctor, []vm.Value{vm.Number(float64(length))})
}

// callbackArgs is the (element, index, receiver) triple the iteration
// methods pass.
func callbackArgs(v vm.Value, i int64, recv vm.Value) []vm.Value {
	return []vm.Value{v, vm.Number(float64(i)), recv}
}

func requireCallable(ctx *vm.Context, v vm.Value, method string) error {
	if !v.IsCallable() {
		return ctx.NewTypeError("%s is not a function", method)
	}
	return nil
}

// relativeIndex clamps the negative-from-end index convention shared by
// slice, splice, fill, copyWithin and friends.
func relativeIndex(idx float64, length int64) int64 {
	var i int64
	if idx < 0 {
		i = length + int64(idx)
		if i < 0 {
			i = 0
		}
	} else {
		i = int64(idx)
		if i > length {
			i = length
		}
	}
	return i
}

// sortValues implements the comparator-driven stable order: defined values
// first in sorted order, then undefineds, then holes.
func sortValues(ctx *vm.Context, values []vm.Value, comparator vm.Value) error {
	var sortErr error
	less := func(a, b vm.Value) bool {
		if sortErr != nil {
			return false
		}
		if comparator.IsCallable() {
			res, err := ctx.Call(comparator, vm.Undefined, []vm.Value{a, b})
			if err != nil {
				sortErr = err
				return false
			}
			n, err := ctx.ToNumber(res)
			if err != nil {
				sortErr = err
				return false
			}
			return n < 0
		}
		as, err := ctx.ToString(a)
		if err != nil {
			sortErr = err
			return false
		}
		bs, err := ctx.ToString(b)
		if err != nil {
			sortErr = err
			return false
		}
		return as.Compare(bs) < 0
	}
	sort.SliceStable(values, func(i, j int) bool { return less(values[i], values[j]) })
	return sortErr
}

// joinElement renders one join element: nullish and holes become the empty
// string.
func joinElement(ctx *vm.Context, v vm.Value) (*vm.String, error) {
	if v.IsNullish() || v.IsEmpty() {
		return vm.NewStringFromGo(""), nil
	}
	return ctx.ToString(v)
}
