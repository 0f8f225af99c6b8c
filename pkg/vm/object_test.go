package vm

import "testing"

func testContext() *Context {
	return NewContext(NewInstance(nil))
}

func TestShapeSharing(t *testing.T) {
	ctx := testContext()
	inst := ctx.Instance()

	a := ctx.NewPlainObject()
	b := ctx.NewPlainObject()
	keys := []PropertyKey{
		AtomKey(inst.Intern("x")),
		AtomKey(inst.Intern("y")),
	}
	for _, k := range keys {
		a.DefineOwn(ctx, k, Integer(1), AttrDefault)
		b.DefineOwn(ctx, k, Integer(2), AttrDefault)
	}
	if a.shape != b.shape {
		t.Fatalf("objects with the same transition sequence must share a pointer-equal shape")
	}

	c := ctx.NewPlainObject()
	c.DefineOwn(ctx, keys[1], Integer(3), AttrDefault)
	c.DefineOwn(ctx, keys[0], Integer(3), AttrDefault)
	if c.shape == a.shape {
		t.Fatalf("a different transition order must land on a different shape")
	}
}

func TestShapeTransitionOffsets(t *testing.T) {
	root := NewRootShape()
	inst := NewInstance(nil)
	x := AtomKey(inst.Intern("x"))
	y := AtomKey(inst.Intern("y"))

	s1 := root.Transition(x, AttrDefault)
	s2 := s1.Transition(y, AttrDefault)
	if f, ok := s2.Lookup(x); !ok || f.Offset != 0 {
		t.Errorf("x should sit at offset 0")
	}
	if f, ok := s2.Lookup(y); !ok || f.Offset != 1 {
		t.Errorf("y should sit at offset 1")
	}
	// Transition is publish-once: the same label returns the same child.
	if root.Transition(x, AttrDefault) != s1 {
		t.Errorf("repeated transition must reuse the published child")
	}
}

func TestDefineOwnPropertyRoundTrip(t *testing.T) {
	ctx := testContext()
	o := ctx.NewPlainObject()
	k := AtomKey(ctx.Instance().Intern("p"))

	ok, err := o.DefineOwnProperty(ctx, k, PropertyDescriptor{Value: Integer(9), HasValue: true})
	if err != nil || !ok {
		t.Fatalf("define failed: %v %v", ok, err)
	}
	desc, found := o.GetOwnProperty(ctx, k)
	if !found {
		t.Fatalf("descriptor lost")
	}
	// Absent fields default to false.
	if !StrictEquals(desc.Value, Integer(9)) || desc.Writable || desc.Enumerable || desc.Configurable {
		t.Fatalf("descriptor mismatch: %+v", desc)
	}

	// Incompatible change on a non-configurable property fails and leaves
	// the object unchanged.
	ok, err = o.DefineOwnProperty(ctx, k, PropertyDescriptor{Value: Integer(10), HasValue: true})
	if err != nil || ok {
		t.Fatalf("redefining a non-configurable value must fail")
	}
	desc, _ = o.GetOwnProperty(ctx, k)
	if !StrictEquals(desc.Value, Integer(9)) {
		t.Fatalf("failed define must not mutate")
	}
}

func TestPrototypeChainGetAndSet(t *testing.T) {
	ctx := testContext()
	inst := ctx.Instance()
	proto := ctx.NewPlainObject()
	proto.DefineOwn(ctx, AtomKey(inst.Intern("inherited")), Integer(1), AttrDefault)

	child := NewObjectWithShape(inst.RootShape(), ObjectValue(proto))
	v, err := child.Get(ctx, AtomKey(inst.Intern("inherited")), ObjectValue(child))
	if err != nil || !StrictEquals(v, Integer(1)) {
		t.Fatalf("prototype get failed: %v %v", v, err)
	}

	// Assigning through a read-only prototype property is rejected.
	proto.DefineOwn(ctx, AtomKey(inst.Intern("ro")), Integer(5), AttrEnumerable|AttrConfigurable)
	ok, err := child.Set(ctx, AtomKey(inst.Intern("ro")), Integer(6), ObjectValue(child))
	if err != nil || ok {
		t.Fatalf("write through read-only prototype property must be rejected")
	}
	if child.HasOwnProperty(ctx, AtomKey(inst.Intern("ro"))) {
		t.Fatalf("rejected write must not create an own property")
	}
}

func TestSetPrototypeCycle(t *testing.T) {
	ctx := testContext()
	a := ctx.NewPlainObject()
	b := NewObjectWithShape(ctx.Instance().RootShape(), ObjectValue(a))
	if a.SetPrototype(ObjectValue(b)) {
		t.Fatalf("prototype cycle must be rejected")
	}
	a.PreventExtensions()
	if a.SetPrototype(Null) {
		t.Fatalf("changing the prototype of a non-extensible object must fail")
	}
}

func TestOwnKeysOrdering(t *testing.T) {
	ctx := testContext()
	inst := ctx.Instance()
	o := ctx.NewPlainObject()
	sym := &Symbol{Description: NewStringFromGo("s")}
	o.DefineOwn(ctx, AtomKey(inst.Intern("b")), Integer(1), AttrDefault)
	o.DefineOwn(ctx, AtomKey(inst.Intern("2")), Integer(1), AttrDefault)
	o.DefineOwn(ctx, SymbolKey(sym), Integer(1), AttrDefault)
	o.DefineOwn(ctx, AtomKey(inst.Intern("a")), Integer(1), AttrDefault)
	o.DefineOwn(ctx, AtomKey(inst.Intern("1")), Integer(1), AttrDefault)

	keys := o.OwnKeys(ctx)
	var order []string
	for _, k := range keys {
		order = append(order, k.String())
	}
	want := []string{"1", "2", "b", "a", "Symbol(s)"}
	if len(order) != len(want) {
		t.Fatalf("keys = %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("keys = %v, want %v", order, want)
		}
	}
}

func TestEnumerateSkipsShadowed(t *testing.T) {
	ctx := testContext()
	inst := ctx.Instance()
	proto := ctx.NewPlainObject()
	proto.DefineOwn(ctx, AtomKey(inst.Intern("a")), Integer(1), AttrDefault)
	proto.DefineOwn(ctx, AtomKey(inst.Intern("b")), Integer(1), AttrDefault)

	child := NewObjectWithShape(inst.RootShape(), ObjectValue(proto))
	// Shadow a with a non-enumerable own property: it must hide the
	// inherited one without being listed itself.
	child.DefineOwn(ctx, AtomKey(inst.Intern("a")), Integer(2), 0)

	var names []string
	for _, k := range child.Enumerate(ctx) {
		names = append(names, k.String())
	}
	if len(names) != 1 || names[0] != "b" {
		t.Fatalf("enumerate = %v, want [b]", names)
	}
}

func TestAccessorProperty(t *testing.T) {
	ctx := testContext()
	inst := ctx.Instance()
	o := ctx.NewPlainObject()
	getter := ctx.NewNativeFunction("get", 0, func(ctx *Context, this Value, args []Value) (Value, error) {
		return Integer(42), nil
	})
	o.DefineAccessor(ctx, AtomKey(inst.Intern("x")), ObjectValue(getter), Undefined, AttrEnumerable|AttrConfigurable)

	v, err := o.Get(ctx, AtomKey(inst.Intern("x")), ObjectValue(o))
	if err != nil || !StrictEquals(v, Integer(42)) {
		t.Fatalf("getter result = %v, %v", v, err)
	}
	desc, ok := o.GetOwnProperty(ctx, AtomKey(inst.Intern("x")))
	if !ok || !desc.IsAccessor() || !desc.Getter.IsCallable() {
		t.Fatalf("descriptor should expose the accessor pair")
	}
}

func TestDeleteOwnProperty(t *testing.T) {
	ctx := testContext()
	inst := ctx.Instance()
	o := ctx.NewPlainObject()
	o.DefineOwn(ctx, AtomKey(inst.Intern("a")), Integer(1), AttrDefault)
	o.DefineOwn(ctx, AtomKey(inst.Intern("b")), Integer(2), AttrDefault)
	o.DefineOwn(ctx, AtomKey(inst.Intern("locked")), Integer(3), AttrWritable|AttrEnumerable)

	if !o.DeleteOwnProperty(ctx, AtomKey(inst.Intern("a"))) {
		t.Fatalf("configurable property must delete")
	}
	if o.HasOwnProperty(ctx, AtomKey(inst.Intern("a"))) {
		t.Fatalf("deleted property still present")
	}
	if v, _ := o.Get(ctx, AtomKey(inst.Intern("b")), ObjectValue(o)); !StrictEquals(v, Integer(2)) {
		t.Fatalf("surviving slot shifted incorrectly")
	}
	if o.DeleteOwnProperty(ctx, AtomKey(inst.Intern("locked"))) {
		t.Fatalf("non-configurable property must not delete")
	}
}
