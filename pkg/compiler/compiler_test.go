package compiler

import (
	"strings"
	"testing"

	"escargot/pkg/parser"
	"escargot/pkg/source"
	"escargot/pkg/vm"
)

func compileSource(t *testing.T, src string) *vm.CodeBlock {
	t.Helper()
	file := source.NewEvalSource(src)
	p := parser.New(file)
	program := p.ParseProgram(false)
	if len(p.Errors()) > 0 {
		t.Fatalf("parse errors: %v", p.Errors()[0])
	}
	comp := New(vm.NewInstance(nil))
	block, errs := comp.Compile(program, file)
	if len(errs) > 0 {
		t.Fatalf("compile errors: %v", errs[0])
	}
	return block
}

// opcodesOf walks the byte stream into a flat opcode list.
func opcodesOf(code []byte) []vm.OpCode {
	var ops []vm.OpCode
	pc := 0
	for pc < len(code) {
		op := vm.OpCode(code[pc])
		ops = append(ops, op)
		pc += 1 + vm.OperandWidth(op)
	}
	return ops
}

func containsOp(ops []vm.OpCode, want vm.OpCode) bool {
	for _, op := range ops {
		if op == want {
			return true
		}
	}
	return false
}

func nestedBlocks(block *vm.CodeBlock) []*vm.CodeBlock {
	var out []*vm.CodeBlock
	for _, c := range block.Constants {
		if c.IsCodeBlock() {
			out = append(out, c.AsCodeBlock())
		}
	}
	return out
}

func TestConstAssignmentLowersToStaticThrow(t *testing.T) {
	block := compileSource(t, `const c = 1; c = 2;`)
	if !containsOp(opcodesOf(block.Code), vm.OpThrowStaticError) {
		t.Fatalf("assignment to a known const must emit ThrowStaticError:\n%s", block.Disassemble())
	}
}

func TestGlobalLoadsUseTheCacheFamily(t *testing.T) {
	block := compileSource(t, `var g = 1; g;`)
	ops := opcodesOf(block.Code)
	if !containsOp(ops, vm.OpGetGlobalVariable) {
		t.Fatalf("reading a top-level var goes through the global cache:\n%s", block.Disassemble())
	}
	if !containsOp(ops, vm.OpSetGlobalVariable) {
		t.Fatalf("writing a top-level var goes through the global cache:\n%s", block.Disassemble())
	}
	if len(block.GlobalCaches) == 0 {
		t.Fatalf("a cache slot should have been allocated")
	}
}

func TestStackLocalUsesMove(t *testing.T) {
	block := compileSource(t, `function f() { let x = 1; return x; }`)
	fns := nestedBlocks(block)
	if len(fns) != 1 {
		t.Fatalf("expected one nested code block")
	}
	ops := opcodesOf(fns[0].Code)
	if containsOp(ops, vm.OpStoreByHeapIndex) || containsOp(ops, vm.OpStoreByName) {
		t.Fatalf("an uncaptured local must not use heap or name stores:\n%s", fns[0].Disassemble())
	}
	if fns[0].StackSlotCount != 1 {
		t.Fatalf("StackSlotCount = %d, want 1", fns[0].StackSlotCount)
	}
}

func TestCapturedLocalUsesHeapOpcodes(t *testing.T) {
	block := compileSource(t, `function outer() { let n = 0; return function () { n = n + 1; return n; }; }`)
	outer := nestedBlocks(block)[0]
	inner := nestedBlocks(outer)[0]
	innerOps := opcodesOf(inner.Code)
	if !containsOp(innerOps, vm.OpLoadByHeapIndex) {
		t.Fatalf("reading a captured binding uses LoadByHeapIndex:\n%s", inner.Disassemble())
	}
	if !containsOp(innerOps, vm.OpStoreByHeapIndex) {
		t.Fatalf("writing a captured binding uses StoreByHeapIndex:\n%s", inner.Disassemble())
	}
	if !outer.FnScopeAllocated {
		t.Fatalf("the capturing function must allocate its scope record")
	}
}

func TestWithBodyUsesNameOpcodes(t *testing.T) {
	block := compileSource(t, `var o = {}; with (o) { a = 1; b; }`)
	ops := opcodesOf(block.Code)
	if !containsOp(ops, vm.OpPushWithScope) || !containsOp(ops, vm.OpPopWithScope) {
		t.Fatalf("with body must be bracketed by the with-scope opcodes")
	}
	if !containsOp(ops, vm.OpStoreByName) {
		t.Fatalf("stores inside a with-carrying program use StoreByName:\n%s", block.Disassemble())
	}
	if !containsOp(ops, vm.OpLoadByName) {
		t.Fatalf("loads inside a with-carrying program use LoadByName")
	}
}

func TestCompoundAssignmentInWithPreResolvesAddress(t *testing.T) {
	block := compileSource(t, `var o = { a: 1 }; with (o) { a += 2; }`)
	ops := opcodesOf(block.Code)
	if !containsOp(ops, vm.OpResolveNameAddress) {
		t.Fatalf("a compound assignment under a live with-scope pre-resolves its address:\n%s", block.Disassemble())
	}
	if !containsOp(ops, vm.OpStoreByNameWithAddress) {
		t.Fatalf("the store goes through the pre-resolved address")
	}
}

func TestPlainAssignmentElidesAddressResolution(t *testing.T) {
	block := compileSource(t, `var x = 1; x += 2;`)
	ops := opcodesOf(block.Code)
	if containsOp(ops, vm.OpResolveNameAddress) {
		t.Fatalf("no with-scope is live: the pre-resolution must be elided")
	}
}

func TestTDZCheckOnStackLexical(t *testing.T) {
	block := compileSource(t, `function f(cond) { if (cond) { x; } let x = 1; }`)
	fn := nestedBlocks(block)[0]
	if !containsOp(opcodesOf(fn.Code), vm.OpCheckTDZ) {
		t.Fatalf("a lexical read before its initializer needs a TDZ check:\n%s", fn.Disassemble())
	}
}

func TestTDZCheckElidedAfterInitialization(t *testing.T) {
	block := compileSource(t, `function f() { let x = 1; return x; }`)
	fn := nestedBlocks(block)[0]
	if containsOp(opcodesOf(fn.Code), vm.OpCheckTDZ) {
		t.Fatalf("straight-line reads after the initializer skip the TDZ check:\n%s", fn.Disassemble())
	}
}

func TestArgumentsEmitsEnsureOpcode(t *testing.T) {
	block := compileSource(t, `function f() { return arguments.length; }`)
	fn := nestedBlocks(block)[0]
	if !containsOp(opcodesOf(fn.Code), vm.OpEnsureArgumentsObject) {
		t.Fatalf("reading arguments must materialize it lazily:\n%s", fn.Disassemble())
	}
	if !fn.UsesArguments {
		t.Fatalf("the flag should be stamped on the code block")
	}
}

func TestTypeofUnresolvedUsesTypeofName(t *testing.T) {
	block := compileSource(t, `typeof missing;`)
	if !containsOp(opcodesOf(block.Code), vm.OpTypeofName) {
		t.Fatalf("typeof of an unresolved name must not emit a throwing load:\n%s", block.Disassemble())
	}
}

func TestBlockEnvironmentBracketsCapturedBlock(t *testing.T) {
	block := compileSource(t, `function f() { let fns = []; { let x = 1; fns.push(function () { return x; }); } }`)
	fn := nestedBlocks(block)[0]
	ops := opcodesOf(fn.Code)
	if !containsOp(ops, vm.OpPushBlockEnv) || !containsOp(ops, vm.OpPopBlockEnv) {
		t.Fatalf("a block with captured lexicals pushes its environment record:\n%s", fn.Disassemble())
	}
}

func countOp(ops []vm.OpCode, want vm.OpCode) int {
	n := 0
	for _, op := range ops {
		if op == want {
			n++
		}
	}
	return n
}

func TestBreakReplaysEnclosedFinally(t *testing.T) {
	block := compileSource(t, `for (;;) { try { break; } finally { x = 1; } }`)
	// The finally store appears on the normal path, in the abrupt handler
	// copy, and on the break path.
	if n := countOp(opcodesOf(block.Code), vm.OpSetGlobalVariable); n < 3 {
		t.Fatalf("break must replay the finally body, found %d copies:\n%s", n, block.Disassemble())
	}
}

func TestContinueReplaysEnclosedFinally(t *testing.T) {
	block := compileSource(t, `for (;;) { try { continue; } finally { x = 1; } }`)
	if n := countOp(opcodesOf(block.Code), vm.OpSetGlobalVariable); n < 3 {
		t.Fatalf("continue must replay the finally body, found %d copies:\n%s", n, block.Disassemble())
	}
}

func TestForOfEmitsIteratorClose(t *testing.T) {
	block := compileSource(t, `for (let v of xs) { if (v) { break; } }`)
	ops := opcodesOf(block.Code)
	// One close on the break path, one in the abrupt-completion handler.
	if n := countOp(ops, vm.OpIteratorClose); n < 2 {
		t.Fatalf("for-of needs iterator closes on abrupt exits, found %d:\n%s", n, block.Disassemble())
	}
	// The handler table carries the body-range cleanup entry.
	if len(block.Handlers) == 0 {
		t.Fatalf("for-of should register an abrupt-completion handler")
	}
}

func TestForInEmitsNoIteratorClose(t *testing.T) {
	block := compileSource(t, `for (k in o) { break; }`)
	if countOp(opcodesOf(block.Code), vm.OpIteratorClose) != 0 {
		t.Fatalf("for-in enumerators have no return() to call:\n%s", block.Disassemble())
	}
}

func TestLabeledBreakTargetsOuterLoop(t *testing.T) {
	block := compileSource(t, `outer: for (;;) { for (;;) { break outer; } }`)
	// Both loops compile; the labeled break patches into the outer loop's
	// exit, so the program must still end with the completion return.
	ops := opcodesOf(block.Code)
	if ops[len(ops)-1] != vm.OpReturn {
		t.Fatalf("unexpected tail:\n%s", block.Disassemble())
	}
}

func TestUndefinedLabelIsACompileError(t *testing.T) {
	file := source.NewEvalSource(`for (;;) { break missing; }`)
	p := parser.New(file)
	program := p.ParseProgram(false)
	if len(p.Errors()) > 0 {
		t.Fatalf("parse errors: %v", p.Errors()[0])
	}
	comp := New(vm.NewInstance(nil))
	_, errs := comp.Compile(program, file)
	if len(errs) == 0 {
		t.Fatalf("break to an undefined label must fail to compile")
	}
}

func TestExceptionHandlerTable(t *testing.T) {
	block := compileSource(t, `try { 1; } catch (e) { 2; }`)
	if len(block.Handlers) != 1 {
		t.Fatalf("handlers = %d, want 1", len(block.Handlers))
	}
	h := block.Handlers[0]
	if h.Start >= h.End || h.HandlerPC < h.End {
		t.Fatalf("handler layout is inconsistent: %+v", h)
	}
}

func TestSourceMapResolvesOffsets(t *testing.T) {
	block := compileSource(t, "1;\n2;\nmissingName;")
	// The load of missingName sits on line 3.
	var loadPC = -1
	pc := 0
	for pc < len(block.Code) {
		op := vm.OpCode(block.Code[pc])
		if op == vm.OpGetGlobalVariable {
			loadPC = pc
		}
		pc += 1 + vm.OperandWidth(op)
	}
	if loadPC < 0 {
		t.Fatalf("expected a global load:\n%s", block.Disassemble())
	}
	line, _ := block.PositionForPC(loadPC)
	if line != 3 {
		t.Fatalf("source map line = %d, want 3", line)
	}
}

func TestRegisterCountCoversSlots(t *testing.T) {
	block := compileSource(t, `function f() { let a = 1; let b = 2; let c = 3; return a + b + c; }`)
	fn := nestedBlocks(block)[0]
	if fn.RegisterCount != vm.RegularRegisterLimit+fn.StackSlotCount {
		t.Fatalf("register count must be the regular limit plus the stack slots")
	}
}

func TestDisassembleIsReadable(t *testing.T) {
	block := compileSource(t, `let a = 1; a + 2;`)
	out := block.Disassemble()
	if !strings.Contains(out, "Add") {
		t.Fatalf("disassembly should name opcodes:\n%s", out)
	}
}
