package compiler

import (
	"testing"

	"escargot/pkg/parser"
	"escargot/pkg/source"
)

func resolveSource(t *testing.T, src string) *Resolver {
	t.Helper()
	file := source.NewEvalSource(src)
	p := parser.New(file)
	program := p.ParseProgram(false)
	if len(p.Errors()) > 0 {
		t.Fatalf("parse errors: %v", p.Errors()[0])
	}
	return Resolve(program)
}

func findFunction(t *testing.T, r *Resolver, name string) *FunctionScope {
	t.Helper()
	for fn, fs := range r.fnScopes {
		if fn.Name != nil && fn.Name.Value == name {
			return fs
		}
	}
	t.Fatalf("function %q not resolved", name)
	return nil
}

func TestTopLevelStorageKinds(t *testing.T) {
	r := resolveSource(t, `var a = 1; let b = 2; const c = 3; function f() {}`)
	root := r.GlobalScope().Root
	if root.Bindings["a"].Storage != StorageGlobalVar {
		t.Errorf("top-level var stores as a global object property")
	}
	if root.Bindings["b"].Storage != StorageGlobalLex {
		t.Errorf("top-level let stores as a global lexical")
	}
	if root.Bindings["c"].Storage != StorageGlobalLex || root.Bindings["c"].Kind != BindConst {
		t.Errorf("top-level const stores as an immutable global lexical")
	}
	if root.Bindings["f"].Kind != BindFunction {
		t.Errorf("function declaration binding kind")
	}
}

func TestLocalsGetStackSlots(t *testing.T) {
	r := resolveSource(t, `function f() { var a; let b; const c = 1; return a + b + c; }`)
	fs := findFunction(t, r, "f")
	for _, name := range []string{"a", "b", "c"} {
		b := fs.Root.Bindings[name]
		if b.Storage != StorageStack {
			t.Errorf("%s: uncaptured local should live in a stack slot, got %v", name, b.Storage)
		}
	}
	if fs.StackSlotCount != 3 {
		t.Errorf("StackSlotCount = %d, want 3", fs.StackSlotCount)
	}
	if !fs.CanUseIndexedVariableStorage {
		t.Errorf("plain function should allow indexed variable storage")
	}
	if !fs.CanAllocateEnvironmentOnStack {
		t.Errorf("no captures: environment may live on the stack")
	}
}

func TestCapturedBindingGoesToHeap(t *testing.T) {
	r := resolveSource(t, `function outer() { let n = 0; return function inner() { return n; }; }`)
	outer := findFunction(t, r, "outer")
	n := outer.Root.Bindings["n"]
	if !n.Captured {
		t.Fatalf("n is referenced from a nested function and must be marked captured")
	}
	if n.Storage != StorageHeap {
		t.Fatalf("captured binding must take a heap slot")
	}
	if !outer.Root.allocatesEnvironment() {
		t.Fatalf("the function scope must allocate an environment record")
	}
	if outer.CanAllocateEnvironmentOnStack {
		t.Errorf("captures force the environment off the stack")
	}
}

func TestVarHoistsAcrossClosure(t *testing.T) {
	// The closure is collected before v's declaration statement; deferral
	// must still resolve v to outer's var.
	r := resolveSource(t, `function outer() { function g() { return v; } var v = 1; return g; }`)
	outer := findFunction(t, r, "outer")
	v := outer.Root.Bindings["v"]
	if v == nil {
		t.Fatalf("v not declared in outer")
	}
	if !v.Captured || v.Storage != StorageHeap {
		t.Fatalf("v is captured by g and must live on the heap, got captured=%v storage=%v", v.Captured, v.Storage)
	}
}

func TestWithForcesGenericStorage(t *testing.T) {
	r := resolveSource(t, `function f(o) { var x = 1; with (o) { x = 2; } function g() { return 1; } }`)
	fs := findFunction(t, r, "f")
	if fs.CanUseIndexedVariableStorage {
		t.Fatalf("a with statement in the body forbids indexed variable storage")
	}
	if fs.Root.Bindings["x"].Storage != StorageHeap {
		t.Fatalf("bindings of a non-indexed function move to named heap slots")
	}
	g := findFunction(t, r, "g")
	if !g.HasAncestorUsesNonIndexedVariableStorage {
		t.Fatalf("nested functions must see the non-indexed ancestor")
	}
}

func TestEvalForcesGenericStorage(t *testing.T) {
	r := resolveSource(t, `function f() { var x = 1; eval("x"); return x; }`)
	fs := findFunction(t, r, "f")
	if fs.CanUseIndexedVariableStorage {
		t.Fatalf("a direct eval call forbids indexed variable storage")
	}
}

func TestBlockLexicalsAreDistinctBindings(t *testing.T) {
	r := resolveSource(t, `function f() { let x = 1; { let x = 2; } return x; }`)
	fs := findFunction(t, r, "f")
	outer := fs.Root.Bindings["x"]
	var innerBlocks []*BlockScope
	for _, child := range fs.Root.Children {
		innerBlocks = append(innerBlocks, child)
	}
	if len(innerBlocks) != 1 {
		t.Fatalf("expected one inner block, got %d", len(innerBlocks))
	}
	inner := innerBlocks[0].Bindings["x"]
	if inner == nil || inner == outer {
		t.Fatalf("inner let x must be a distinct binding")
	}
	if inner.Slot == outer.Slot {
		t.Fatalf("shadowing bindings must occupy distinct stack slots")
	}
}

func TestArgumentsDetection(t *testing.T) {
	r := resolveSource(t, `function f() { return arguments.length; } function g() { return 1; }`)
	if !findFunction(t, r, "f").UsesArguments {
		t.Errorf("f references arguments")
	}
	if findFunction(t, r, "g").UsesArguments {
		t.Errorf("g does not reference arguments")
	}
}

func TestParameterBindings(t *testing.T) {
	r := resolveSource(t, `function f(a, b) { return function() { return b; }; }`)
	fs := findFunction(t, r, "f")
	if len(fs.Params) != 2 {
		t.Fatalf("params = %d", len(fs.Params))
	}
	if fs.Params[0].Storage != StorageStack {
		t.Errorf("uncaptured parameter stays on the stack")
	}
	if fs.Params[1].Storage != StorageHeap {
		t.Errorf("captured parameter moves to the heap")
	}
}
