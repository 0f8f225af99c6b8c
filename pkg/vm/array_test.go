package vm

import "testing"

func TestFastArrayInvariants(t *testing.T) {
	ctx := testContext()
	a := ctx.NewArrayFromValues([]Value{Integer(1), Integer(2), Integer(3)})
	if !a.IsFastArray() || a.ArrayLength() != 3 {
		t.Fatalf("fresh literal array should be fast with length 3")
	}
	// Append keeps fast mode.
	if ok, err := a.ArraySet(ctx, 3, Integer(4)); err != nil || !ok {
		t.Fatalf("append failed")
	}
	if !a.IsFastArray() || a.ArrayLength() != 4 {
		t.Fatalf("append should extend the dense vector")
	}
	// The logical length always equals the dense vector's length.
	if len(a.array.dense) != int(a.ArrayLength()) {
		t.Fatalf("dense length %d != logical length %d", len(a.array.dense), a.ArrayLength())
	}
}

func TestSparseWriteDemotes(t *testing.T) {
	ctx := testContext()
	a := ctx.NewArrayFromValues([]Value{Integer(1), Integer(2), Integer(3)})
	if ok, err := a.ArraySet(ctx, 10, Integer(99)); err != nil || !ok {
		t.Fatalf("sparse write failed")
	}
	if a.IsFastArray() {
		t.Fatalf("a write past length must demote to generic storage")
	}
	if a.ArrayLength() != 11 {
		t.Fatalf("length = %d, want 11", a.ArrayLength())
	}
	// The transition is permanent.
	if ok, _ := a.ArraySet(ctx, 4, Integer(5)); !ok || a.IsFastArray() {
		t.Fatalf("slow mode is irreversible")
	}
	// Former dense entries survive as named index properties.
	v, err := ctx.GetProperty(ObjectValue(a), AtomKey(ctx.Instance().InternIndex(1)))
	if err != nil || !StrictEquals(v, Integer(2)) {
		t.Fatalf("demoted element lost: %v", v)
	}
}

func TestHolesAreEmptySentinels(t *testing.T) {
	ctx := testContext()
	a := ctx.NewArrayFromValues([]Value{Integer(1), Empty, Integer(3)})
	if v, hit := a.ArrayFastGet(1); !hit || !v.IsEmpty() {
		t.Fatalf("hole should read as the empty sentinel")
	}
	if a.Has(ctx, AtomKey(ctx.Instance().InternIndex(1))) {
		t.Fatalf("has must not see a hole")
	}
	// Plain get falls through to the prototype and yields undefined.
	v, err := ctx.GetProperty(ObjectValue(a), AtomKey(ctx.Instance().InternIndex(1)))
	if err != nil || !v.IsUndefined() {
		t.Fatalf("get of a hole should be undefined, got %v", v)
	}
}

func TestLengthTruncation(t *testing.T) {
	ctx := testContext()
	a := ctx.NewArrayFromValues([]Value{Integer(1), Integer(2), Integer(3)})
	ok, err := a.DefineOwnProperty(ctx, AtomKey(ctx.Instance().Intern("length")),
		PropertyDescriptor{Value: Integer(1), HasValue: true})
	if err != nil || !ok {
		t.Fatalf("length write failed: %v", err)
	}
	if a.ArrayLength() != 1 {
		t.Fatalf("length = %d after truncation", a.ArrayLength())
	}
	if a.Has(ctx, AtomKey(ctx.Instance().InternIndex(2))) {
		t.Fatalf("truncated entries must be freed")
	}
}

func TestInvalidLengthRejected(t *testing.T) {
	ctx := testContext()
	a := ctx.NewArray(0)
	_, err := a.DefineOwnProperty(ctx, AtomKey(ctx.Instance().Intern("length")),
		PropertyDescriptor{Value: Number(1.5), HasValue: true})
	if err == nil {
		t.Fatalf("fractional length must raise the RangeError kind")
	}
	thrown, ok := err.(*Thrown)
	if !ok || !thrown.Value.IsObject() {
		t.Fatalf("expected a thrown error value")
	}
}

func TestDeleteKeepsFastMode(t *testing.T) {
	ctx := testContext()
	a := ctx.NewArrayFromValues([]Value{Integer(1), Integer(2)})
	if !a.DeleteOwnProperty(ctx, AtomKey(ctx.Instance().InternIndex(0))) {
		t.Fatalf("element delete failed")
	}
	if !a.IsFastArray() {
		t.Fatalf("deleting an element holes it without demoting")
	}
	if v, _ := a.ArrayFastGet(0); !v.IsEmpty() {
		t.Fatalf("deleted slot should hold the empty sentinel")
	}
}
