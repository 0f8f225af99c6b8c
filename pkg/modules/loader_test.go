package modules_test

import (
	"testing"

	"escargot/pkg/builtins"
	"escargot/pkg/modules"
	"escargot/pkg/vm"
)

func moduleContext(t *testing.T) *vm.Context {
	t.Helper()
	ctx := vm.NewContext(vm.NewInstance(nil))
	if err := builtins.Install(ctx); err != nil {
		t.Fatalf("builtins: %v", err)
	}
	return ctx
}

func loadAndEvaluate(t *testing.T, ctx *vm.Context, files map[string]string, entry string) *vm.Object {
	t.Helper()
	loader := modules.NewLoader(ctx.Instance(), &modules.MemoryResolver{Files: files})
	rec, errs := loader.Load(entry)
	if len(errs) > 0 {
		t.Fatalf("load: %v", errs[0])
	}
	ns, err := loader.Evaluate(ctx, rec)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	return ns
}

func nsGet(t *testing.T, ctx *vm.Context, ns *vm.Object, name string) vm.Value {
	t.Helper()
	v, err := ns.Get(ctx, vm.AtomKey(ctx.Instance().Intern(name)), vm.ObjectValue(ns))
	if err != nil {
		t.Fatalf("read export %s: %v", name, err)
	}
	return v
}

func TestExports(t *testing.T) {
	ctx := moduleContext(t)
	ns := loadAndEvaluate(t, ctx, map[string]string{
		"main": `export const answer = 42;
export function double(x) { return x * 2; }
export default "d";`,
	}, "main")

	if v := nsGet(t, ctx, ns, "answer"); !vm.StrictEquals(v, vm.Integer(42)) {
		t.Errorf("answer export = %v", ctx.Inspect(v))
	}
	double := nsGet(t, ctx, ns, "double")
	if !double.IsCallable() {
		t.Fatalf("double export should be callable")
	}
	res, err := ctx.Call(double, vm.Undefined, []vm.Value{vm.Integer(21)})
	if err != nil || !vm.StrictEquals(res, vm.Integer(42)) {
		t.Errorf("double(21) = %v, %v", res, err)
	}
	if v := nsGet(t, ctx, ns, "default"); !v.IsString() || v.AsString().String() != "d" {
		t.Errorf("default export = %v", ctx.Inspect(v))
	}
}

func TestImports(t *testing.T) {
	ctx := moduleContext(t)
	ns := loadAndEvaluate(t, ctx, map[string]string{
		"dep":  `export const base = 40;`,
		"main": `import { base } from "dep"; export const result = base + 2;`,
	}, "main")
	if v := nsGet(t, ctx, ns, "result"); !vm.StrictEquals(v, vm.Integer(42)) {
		t.Errorf("result = %v", ctx.Inspect(v))
	}
}

func TestNamespaceImport(t *testing.T) {
	ctx := moduleContext(t)
	ns := loadAndEvaluate(t, ctx, map[string]string{
		"dep":  `export const a = 1; export const b = 2;`,
		"main": `import * as d from "dep"; export const sum = d.a + d.b;`,
	}, "main")
	if v := nsGet(t, ctx, ns, "sum"); !vm.StrictEquals(v, vm.Integer(3)) {
		t.Errorf("sum = %v", ctx.Inspect(v))
	}
}

func TestModuleDedup(t *testing.T) {
	ctx := moduleContext(t)
	// Both importers see the same instance of the counter module.
	ns := loadAndEvaluate(t, ctx, map[string]string{
		"counter": `export const tag = {};`,
		"a":       `import { tag } from "counter"; export const ta = tag;`,
		"b":       `import { tag } from "counter"; export const tb = tag;`,
		"main": `import { ta } from "a"; import { tb } from "b";
export const same = ta === tb;`,
	}, "main")
	if v := nsGet(t, ctx, ns, "same"); !vm.StrictEquals(v, vm.True) {
		t.Errorf("dedup by path failed: %v", ctx.Inspect(v))
	}
}

func TestCyclicImports(t *testing.T) {
	ctx := moduleContext(t)
	// b imports a while a is still executing; the hoisted function export
	// is visible through the partially-initialized namespace.
	ns := loadAndEvaluate(t, ctx, map[string]string{
		"a": `import { fromB } from "b";
export function early() { return 7; }
export const viaB = fromB();`,
		"b": `import * as a from "a";
export function fromB() { return a.early(); }`,
	}, "a")
	if v := nsGet(t, ctx, ns, "viaB"); !vm.StrictEquals(v, vm.Integer(7)) {
		t.Errorf("cyclic import result = %v", ctx.Inspect(v))
	}
}

func TestMissingExportFails(t *testing.T) {
	ctx := moduleContext(t)
	loader := modules.NewLoader(ctx.Instance(), &modules.MemoryResolver{Files: map[string]string{
		"dep":  `export const here = 1;`,
		"main": `import { missing } from "dep";`,
	}})
	rec, errs := loader.Load("main")
	if len(errs) > 0 {
		t.Fatalf("load: %v", errs[0])
	}
	if _, err := loader.Evaluate(ctx, rec); err == nil {
		t.Fatalf("importing a missing export must fail")
	}
}
