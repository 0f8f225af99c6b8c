package driver

import (
	"strings"
	"testing"

	"escargot/pkg/vm"
)

// matrixCase drives one source snippet to a printed value or an expected
// error substring.
type matrixCase struct {
	name    string
	input   string
	expect  string
	isError bool
}

func runMatrix(t *testing.T, cases []matrixCase) {
	t.Helper()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine, err := NewEngine()
			if err != nil {
				t.Fatalf("engine: %v", err)
			}
			v, runErr := engine.RunString(tc.input)
			if tc.isError {
				if runErr == nil {
					t.Fatalf("expected error containing %q, got value %s", tc.expect, engine.Context.Raw().Inspect(v))
				}
				if !strings.Contains(runErr.Error(), tc.expect) {
					t.Fatalf("expected error containing %q, got %q", tc.expect, runErr.Error())
				}
				return
			}
			if runErr != nil {
				t.Fatalf("unexpected error: %v", runErr)
			}
			got := engine.Context.Raw().Inspect(v)
			if got != tc.expect {
				t.Fatalf("expected %q, got %q", tc.expect, got)
			}
		})
	}
}

func TestLiteralsAndOperators(t *testing.T) {
	runMatrix(t, []matrixCase{
		{name: "NumberLiteral", input: "123.45;", expect: "123.45"},
		{name: "StringLiteral", input: `"hello";`, expect: "hello"},
		{name: "True", input: "true;", expect: "true"},
		{name: "Null", input: "null;", expect: "null"},
		{name: "UndefinedLet", input: "let u; u;", expect: "undefined"},
		{name: "Add", input: "5 + 10;", expect: "15"},
		{name: "AddString", input: `1 + "a";`, expect: "1a"},
		{name: "Sub", input: "10 - 4;", expect: "6"},
		{name: "Mul", input: "6 * 7;", expect: "42"},
		{name: "Div", input: "10 / 4;", expect: "2.5"},
		{name: "DivZero", input: "1 / 0;", expect: "Infinity"},
		{name: "Mod", input: "7 % 3;", expect: "1"},
		{name: "Pow", input: "2 ** 10;", expect: "1024"},
		{name: "Neg", input: "-15;", expect: "-15"},
		{name: "Not", input: "!0;", expect: "true"},
		{name: "BitAnd", input: "6 & 3;", expect: "2"},
		{name: "Shift", input: "1 << 8;", expect: "256"},
		{name: "UShift", input: "-1 >>> 28;", expect: "15"},
		{name: "StrictEq", input: "1 === 1.0;", expect: "true"},
		{name: "StrictEqZero", input: "+0 === -0;", expect: "true"},
		{name: "NaNNotEqual", input: "NaN === NaN;", expect: "false"},
		{name: "LooseEq", input: `1 == "1";`, expect: "true"},
		{name: "LooseNullUndef", input: "null == undefined;", expect: "true"},
		{name: "Less", input: `"a" < "b";`, expect: "true"},
		{name: "Ternary", input: "1 ? 2 : 3;", expect: "2"},
		{name: "LogicalAnd", input: "0 && x;", expect: "0"},
		{name: "LogicalOr", input: `"" || "fallback";`, expect: "fallback"},
		{name: "Typeof", input: "typeof 1;", expect: "number"},
		{name: "TypeofUnresolved", input: "typeof nothingHere;", expect: "undefined"},
		{name: "Void", input: "void 42;", expect: "undefined"},
		{name: "Template", input: "`a${1 + 1}b`;", expect: "a2b"},
		{name: "Sequence", input: "(1, 2, 3);", expect: "3"},
	})
}

func TestVariablesAndScope(t *testing.T) {
	runMatrix(t, []matrixCase{
		{name: "LetTopLevel", input: "let x = 1; x + 1;", expect: "2"},
		{name: "VarTopLevel", input: "var v = 40; v + 2;", expect: "42"},
		{name: "ConstRead", input: "const k = 7; k;", expect: "7"},
		{name: "ConstAssign", input: "const c = 1; c = 2;", expect: "Assignment to constant variable.", isError: true},
		{name: "BlockShadow", input: "function f() { let x = 1; { let x = 2; return x; } } f();", expect: "2"},
		{name: "OuterUntouched", input: "function f() { let x = 1; { let x = 2; } return x; } f();", expect: "1"},
		{name: "TDZ", input: "{ y; let y = 1; }", expect: "before initialization", isError: true},
		{name: "TDZGlobalLexical", input: "z; let z = 1;", expect: "before initialization", isError: true},
		{name: "Unresolved", input: "definitelyMissing;", expect: "is not defined", isError: true},
		{name: "VarHoisting", input: "function f() { return typeof a; var a = 1; } f();", expect: "undefined"},
		{name: "FunctionHoisting", input: "function f() { return g(); function g() { return 9; } } f();", expect: "9"},
		{name: "ClosureCounter", input: "function counter() { let n = 0; return function() { n = n + 1; return n; }; } let c = counter(); c(); c();", expect: "2"},
		{name: "ClosureIndependence", input: "function mk() { let n = 0; return function() { n = n + 1; return n; }; } let a = mk(); let b = mk(); a(); a(); b();", expect: "1"},
		{name: "ClosureOverVar", input: "function f() { function g() { return v; } var v = 5; return g(); } f();", expect: "5"},
		{name: "NestedCapture", input: "function f(x) { return function() { return function() { return x; }; }; } f(3)()();", expect: "3"},
		{name: "LoopCapture", input: "function f() { let fs = []; for (let i = 0; i < 3; i = i + 1) { let j = i; fs.push(function() { return j; }); } return fs[0]() + fs[1]() + fs[2](); } f();", expect: "3"},
		{name: "Arguments", input: "function f() { return arguments.length; } f(1, 2, 3);", expect: "3"},
		{name: "ArgumentsIndex", input: "function f() { return arguments[1]; } f(10, 20);", expect: "20"},
		{name: "ArrowThis", input: "let o = { v: 5, m: function() { let a = () => this.v; return a(); } }; o.m();", expect: "5"},
		{name: "ArrowSingleParam", input: "let f = x => x * 2; f(21);", expect: "42"},
		{name: "DefaultUndefinedParam", input: "function f(a, b) { return typeof b; } f(1);", expect: "undefined"},
	})
}

func TestControlFlow(t *testing.T) {
	runMatrix(t, []matrixCase{
		{name: "IfTrue", input: "if (1 < 2) { 10; } else { 20; }", expect: "10"},
		{name: "IfFalse", input: "if (1 > 2) { 10; } else { 20; }", expect: "20"},
		{name: "While", input: "let i = 0; while (i < 5) { i = i + 1; } i;", expect: "5"},
		{name: "DoWhile", input: "let i = 0; do { i = i + 1; } while (i < 3); i;", expect: "3"},
		{name: "For", input: "let s = 0; for (let i = 1; i <= 4; i = i + 1) { s = s + i; } s;", expect: "10"},
		{name: "ForBreak", input: "let i = 0; for (;;) { i = i + 1; if (i === 3) { break; } } i;", expect: "3"},
		{name: "ForContinue", input: "let s = 0; for (let i = 0; i < 5; i = i + 1) { if (i % 2 === 0) { continue; } s = s + i; } s;", expect: "4"},
		{name: "Update", input: "let i = 0; i++; ++i; i;", expect: "2"},
		{name: "PostfixValue", input: "let i = 5; i++;", expect: "5"},
		{name: "PrefixValue", input: "let i = 5; ++i;", expect: "6"},
		{name: "Switch", input: "let r; switch (2) { case 1: r = 'one'; break; case 2: r = 'two'; break; default: r = 'other'; } r;", expect: "two"},
		{name: "SwitchDefault", input: "let r; switch (9) { case 1: r = 'one'; break; default: r = 'other'; } r;", expect: "other"},
		{name: "SwitchFallthrough", input: "let r = ''; switch (1) { case 1: r = r + 'a'; case 2: r = r + 'b'; break; case 3: r = r + 'c'; } r;", expect: "ab"},
		{name: "ForOf", input: "let s = 0; for (let v of [1, 2, 3]) { s = s + v; } s;", expect: "6"},
		{name: "LabeledBreak", input: "let r = ''; outer: for (let i = 0; i < 3; i = i + 1) { for (let j = 0; j < 3; j = j + 1) { if (j === 1) { break outer; } r = r + i + j; } } r;", expect: "00"},
		{name: "LabeledContinue", input: "let r = ''; outer: for (let i = 0; i < 3; i = i + 1) { for (let j = 0; j < 3; j = j + 1) { if (j === 1) { continue outer; } r = r + i + j; } } r;", expect: "001020"},
		{name: "LabeledBlockBreak", input: "let r = 'a'; done: { r = r + 'b'; break done; r = r + 'c'; } r;", expect: "ab"},
		{name: "LabelOnSwitchBreak", input: "let r = ''; out: switch (1) { case 1: r = r + 'a'; break out; case 2: r = r + 'b'; } r;", expect: "a"},
		{name: "UndefinedLabel", input: "break nowhere;", expect: "undefined label", isError: true},
		{name: "ForOfString", input: "let s = ''; for (let ch of 'abc') { s = ch + s; } s;", expect: "cba"},
		{name: "ForIn", input: "var out = ''; var o = { a: 1, b: 2 }; for (var k in o) { out = out + k; } out;", expect: "ab"},
		{name: "ForInSparseArray", input: "var a = [1, 2, 3]; a[10] = 99; var out = ''; for (var k in a) { out = out + k + ','; } out;", expect: "0,1,2,10,"},
	})
}

// closableIterable builds an iterable whose iterator records return() calls
// in the global `closed` flag.
const closableIterable = `
let closed = false;
let obj = {};
obj[Symbol.iterator] = function() {
  return {
    i: 0,
    next: function() { this.i = this.i + 1; return { value: this.i, done: this.i > 5 }; },
    return: function() { closed = true; return { done: true }; }
  };
};
`

func TestForOfIteratorClose(t *testing.T) {
	runMatrix(t, []matrixCase{
		{name: "CloseOnBreak", input: closableIterable + "for (let v of obj) { if (v === 2) { break; } } closed;", expect: "true"},
		{name: "NoCloseOnExhaustion", input: closableIterable + "for (let v of obj) { } closed;", expect: "false"},
		{name: "CloseOnThrow", input: closableIterable + "try { for (let v of obj) { throw 'x'; } } catch (e) { } closed;", expect: "true"},
		{name: "CloseOnReturn", input: closableIterable + "function f() { for (let v of obj) { return v; } } f(); closed;", expect: "true"},
		{name: "CloseOnLabeledBreak", input: closableIterable + "outer: for (let v of obj) { for (let w of [1, 2]) { break outer; } } closed;", expect: "true"},
	})
}

func TestExceptions(t *testing.T) {
	runMatrix(t, []matrixCase{
		{name: "ThrowString", input: `throw "boom";`, expect: "boom", isError: true},
		{name: "TryCatch", input: "let r; try { throw new Error('x'); } catch (e) { r = e.message; } r;", expect: "x"},
		{name: "CatchBinding", input: "try { null.x; } catch (e) { e instanceof TypeError; }", expect: "true"},
		{name: "Finally", input: "let r = ''; try { r = r + 'a'; } finally { r = r + 'b'; } r;", expect: "ab"},
		{name: "FinallyAfterCatch", input: "let r = ''; try { throw 1; } catch (e) { r = r + 'c'; } finally { r = r + 'f'; } r;", expect: "cf"},
		{name: "FinallyRethrow", input: "let r = ''; try { try { throw 'inner'; } finally { r = 'ran'; } } catch (e) { r = r + ':' + e; } r;", expect: "ran:inner"},
		{name: "BreakThroughFinally", input: "let r = ''; for (;;) { try { break; } finally { r = r + 'f'; } } r;", expect: "f"},
		{name: "ContinueThroughFinally", input: "let r = ''; for (let i = 0; i < 2; i = i + 1) { try { continue; } finally { r = r + i; } } r;", expect: "01"},
		{name: "LabeledBreakThroughFinally", input: "let r = ''; outer: for (;;) { for (;;) { try { break outer; } finally { r = r + 'f'; } } } r;", expect: "f"},
		{name: "ReturnThroughNestedFinally", input: "let log = ''; function f() { try { try { return 'v'; } finally { log = log + 'i'; } } finally { log = log + 'o'; } } f() + log;", expect: "vio"},
		{name: "NestedCatch", input: "let r; try { try { throw 1; } catch (e) { throw e + 1; } } catch (e) { r = e; } r;", expect: "2"},
		{name: "UncaughtType", input: "undefined.x;", expect: "Cannot read property", isError: true},
		{name: "NotAFunction", input: "let x = 1; x();", expect: "not a function", isError: true},
		{name: "StackOverflow", input: "function f() { return f(); } f();", expect: "Maximum call stack size exceeded", isError: true},
		{name: "CatchNonError", input: "let r; try { throw 42; } catch (v) { r = v; } r;", expect: "42"},
	})
}

func TestObjects(t *testing.T) {
	runMatrix(t, []matrixCase{
		{name: "Literal", input: "let o = { a: 1, b: 2 }; o.a + o.b;", expect: "3"},
		{name: "Shorthand", input: "let a = 9; let o = { a }; o.a;", expect: "9"},
		{name: "ComputedKey", input: "let k = 'a'; let o = { [k]: 1 }; o.a;", expect: "1"},
		{name: "Getter", input: "let o = { get x() { return 42; } }; o.x;", expect: "42"},
		{name: "Setter", input: "let v; let o = { set x(n) { v = n * 2; } }; o.x = 21; v;", expect: "42"},
		{name: "Method", input: "let o = { m() { return this.v; }, v: 7 }; o.m();", expect: "7"},
		{name: "ProtoChain", input: "let proto = { greet: function() { return 'hi'; } }; let o = Object.create(proto); o.greet();", expect: "hi"},
		{name: "DefineProperty", input: "let o = {}; Object.defineProperty(o, 'a', { value: 1 }); o.a;", expect: "1"},
		{name: "DefineNonEnumerable", input: "let o = {}; Object.defineProperty(o, 'a', { value: 1 }); Object.keys(o).length;", expect: "0"},
		{name: "DescriptorRoundTrip", input: "let o = {}; Object.defineProperty(o, 'a', { value: 1, writable: true }); let d = Object.getOwnPropertyDescriptor(o, 'a'); '' + d.value + d.writable + d.enumerable + d.configurable;", expect: "1truefalsefalse"},
		{name: "RedefineNonConfigurable", input: "let o = {}; Object.defineProperty(o, 'a', { value: 1 }); Object.defineProperty(o, 'a', { value: 2 });", expect: "Cannot redefine property", isError: true},
		{name: "NonWritableSloppy", input: "let o = {}; Object.defineProperty(o, 'a', { value: 1 }); o.a = 9; o.a;", expect: "1"},
		{name: "FreezeWrite", input: "let o = { a: 1 }; Object.freeze(o); o.a = 2; o.a;", expect: "1"},
		{name: "IsFrozen", input: "let o = { a: 1 }; Object.freeze(o); Object.isFrozen(o);", expect: "true"},
		{name: "Delete", input: "let o = { a: 1 }; delete o.a; typeof o.a;", expect: "undefined"},
		{name: "In", input: "let o = { a: 1 }; 'a' in o;", expect: "true"},
		{name: "HasOwnProperty", input: "let o = { a: 1 }; o.hasOwnProperty('a') && !o.hasOwnProperty('b');", expect: "true"},
		{name: "Assign", input: "let t = Object.assign({}, { a: 1 }, { b: 2 }); t.a + t.b;", expect: "3"},
		{name: "KeysOrder", input: "let o = {}; o.b = 1; o[2] = 1; o.a = 1; o[1] = 1; Object.keys(o).join(',');", expect: "1,2,b,a"},
		{name: "Instanceof", input: "function T() {} let t = new T(); t instanceof T;", expect: "true"},
		{name: "ConstructorResult", input: "function T() { this.v = 3; } new T().v;", expect: "3"},
		{name: "ConstructReturnsObject", input: "function T() { return { v: 8 }; } new T().v;", expect: "8"},
		{name: "SetPrototypeCycle", input: "let a = {}; let b = Object.create(a); Object.setPrototypeOf(a, b);", expect: "cycle", isError: true},
		{name: "ToStringTag", input: "({}).toString();", expect: "[object Object]"},
		{name: "SameShapeSharing", input: "let a = { x: 1, y: 2 }; let b = { x: 3, y: 4 }; a.x + b.y;", expect: "5"},
	})
}

func TestArrays(t *testing.T) {
	runMatrix(t, []matrixCase{
		{name: "Length", input: "[1, 2, 3].length;", expect: "3"},
		{name: "Index", input: "let a = [10, 20]; a[1];", expect: "20"},
		{name: "SparseWriteLength", input: "var a = [1, 2, 3]; a[10] = 99; a.length;", expect: "11"},
		{name: "CtorLength", input: "new Array(5).length;", expect: "5"},
		{name: "CtorSingle", input: "new Array('x').length;", expect: "1"},
		{name: "CtorInvalidLength", input: "new Array(-1);", expect: "Invalid array length", isError: true},
		{name: "CtorMulti", input: "Array(1, 2, 3).join('-');", expect: "1-2-3"},
		{name: "Push", input: "let a = [1]; a.push(2, 3); a.join(',');", expect: "1,2,3"},
		{name: "PushReturnsLength", input: "[1].push(2);", expect: "2"},
		{name: "Pop", input: "let a = [1, 2]; a.pop() + a.length;", expect: "3"},
		{name: "Shift", input: "let a = [1, 2, 3]; a.shift(); a.join(',');", expect: "2,3"},
		{name: "Unshift", input: "let a = [3]; a.unshift(1, 2); a.join(',');", expect: "1,2,3"},
		{name: "SliceCopy", input: "var a = [1, 2, 3]; a.slice(0, 3).join(',');", expect: "1,2,3"},
		{name: "SliceNegative", input: "[1, 2, 3, 4].slice(-2).join(',');", expect: "3,4"},
		{name: "Splice", input: "let a = [1, 2, 3, 4]; let r = a.splice(1, 2, 'x'); a.join(',') + '|' + r.join(',');", expect: "1,x,4|2,3"},
		{name: "Reverse", input: "[1, 2, 3].reverse().join(',');", expect: "3,2,1"},
		{name: "ConcatCopy", input: "var a = [1, 2]; a.concat().join(',');", expect: "1,2"},
		{name: "ConcatSpread", input: "[1].concat([2, 3], 4).join(',');", expect: "1,2,3,4"},
		{name: "ConcatNoSpread", input: "let x = [2, 3]; let o = { length: 2 }; [1].concat(o).length;", expect: "2"},
		{name: "Join", input: "[1, null, 3].join('-');", expect: "1--3"},
		{name: "JoinCyclic", input: "let a = [1]; a.push(a); a.join(',');", expect: "1,"},
		{name: "IndexOf", input: "[1, 2, 3].indexOf(2);", expect: "1"},
		{name: "IndexOfMissing", input: "[1, 2].indexOf(9);", expect: "-1"},
		{name: "LastIndexOf", input: "[1, 2, 1].lastIndexOf(1);", expect: "2"},
		{name: "IncludesNaN", input: "[NaN].includes(NaN);", expect: "true"},
		{name: "IndexOfNaN", input: "[NaN].indexOf(NaN);", expect: "-1"},
		{name: "Map", input: "[1, 2, 3].map(function(x) { return x * 2; }).join(',');", expect: "2,4,6"},
		{name: "MapHoles", input: "let m = [1, , 3].map(function(x) { return x * 2; }); '' + m.length + ':' + (0 in m) + (1 in m) + (2 in m);", expect: "3:truefalsetrue"},
		{name: "Filter", input: "[1, 2, 3, 4].filter(function(x) { return x % 2 === 0; }).join(',');", expect: "2,4"},
		{name: "ForEachHoles", input: "let n = 0; [1, , 3].forEach(function() { n = n + 1; }); n;", expect: "2"},
		{name: "Every", input: "[2, 4].every(function(x) { return x % 2 === 0; });", expect: "true"},
		{name: "Some", input: "[1, 3, 4].some(function(x) { return x % 2 === 0; });", expect: "true"},
		{name: "Reduce", input: "[1, 2, 3].reduce(function(a, b) { return a + b; }, 10);", expect: "16"},
		{name: "ReduceNoInit", input: "[1, 2, 3].reduce(function(a, b) { return a + b; });", expect: "6"},
		{name: "ReduceEmpty", input: "[].reduce(function(a, b) { return a + b; });", expect: "Reduce of empty array", isError: true},
		{name: "ReduceRight", input: "['a', 'b', 'c'].reduceRight(function(a, b) { return a + b; });", expect: "cba"},
		{name: "Find", input: "[1, 2, 3].find(function(x) { return x > 1; });", expect: "2"},
		{name: "FindIndex", input: "[1, 2, 3].findIndex(function(x) { return x > 2; });", expect: "2"},
		{name: "Fill", input: "[1, 2, 3].fill(0, 1).join(',');", expect: "1,0,0"},
		{name: "CopyWithin", input: "[1, 2, 3, 4, 5].copyWithin(0, 3).join(',');", expect: "4,5,3,4,5"},
		{name: "SortDefault", input: "[3, 1, 10, 2].sort().join(',');", expect: "1,10,2,3"},
		{name: "SortComparator", input: "[3, 1, 10, 2].sort(function(a, b) { return a - b; }).join(',');", expect: "1,2,3,10"},
		{name: "SortUndefinedLast", input: "let a = [undefined, 2, 1]; a.sort(); '' + a[0] + a[1] + a[2];", expect: "12undefined"},
		{name: "SortStable", input: "let a = [{k:'b',n:1},{k:'a',n:2},{k:'b',n:3}]; a.sort(function(x,y){ return x.k < y.k ? -1 : (x.k > y.k ? 1 : 0); }); '' + a[1].n + a[2].n;", expect: "13"},
		{name: "IsArray", input: "Array.isArray([]) && !Array.isArray({});", expect: "true"},
		{name: "ArrayOf", input: "Array.of(7).length;", expect: "1"},
		{name: "ArrayFromArrayLike", input: "Array.from({ length: 2, 0: 'a', 1: 'b' }).join('');", expect: "ab"},
		{name: "ArrayFromIterable", input: "Array.from('abc').join('-');", expect: "a-b-c"},
		{name: "ArrayFromMapFn", input: "Array.from([1, 2], function(x) { return x * 10; }).join(',');", expect: "10,20"},
		{name: "Entries", input: "let it = ['a'].entries(); let r = it.next(); '' + r.value[0] + r.value[1] + it.next().done;", expect: "0atrue"},
		{name: "Keys", input: "let it = ['a', 'b'].keys(); '' + it.next().value + it.next().value;", expect: "01"},
		{name: "Values", input: "let it = ['a', 'b'].values(); '' + it.next().value + it.next().value;", expect: "ab"},
		{name: "IsConcatSpreadableOff", input: "let a = [1, 2]; a[Symbol.isConcatSpreadable] = false; [].concat(a).length;", expect: "1"},
		{name: "LengthTruncate", input: "let a = [1, 2, 3]; a.length = 1; '' + a.length + (1 in a);", expect: "1false"},
		{name: "LengthExtend", input: "let a = [1]; a.length = 3; '' + a.length + (2 in a);", expect: "3false"},
		{name: "DeleteMakesHole", input: "let a = [1, 2, 3]; delete a[1]; '' + a.length + (1 in a);", expect: "3false"},
	})
}

func TestStringsAndNumbers(t *testing.T) {
	runMatrix(t, []matrixCase{
		{name: "Length", input: `"hello".length;`, expect: "5"},
		{name: "Index", input: `"abc"[1];`, expect: "b"},
		{name: "CharAt", input: `"abc".charAt(2);`, expect: "c"},
		{name: "CharCodeAt", input: `"A".charCodeAt(0);`, expect: "65"},
		{name: "FromCharCode", input: "String.fromCharCode(104, 105);", expect: "hi"},
		{name: "FromCodePoint", input: "String.fromCodePoint(97);", expect: "a"},
		{name: "FromCodePointInvalid", input: "String.fromCodePoint(-1);", expect: "Invalid code point", isError: true},
		{name: "IndexOf", input: `"hello".indexOf("ll");`, expect: "2"},
		{name: "Includes", input: `"hello".includes("ell");`, expect: "true"},
		{name: "StartsWith", input: `"hello".startsWith("he");`, expect: "true"},
		{name: "EndsWith", input: `"hello".endsWith("lo");`, expect: "true"},
		{name: "Slice", input: `"hello".slice(1, 3);`, expect: "el"},
		{name: "SubstringSwap", input: `"hello".substring(3, 1);`, expect: "el"},
		{name: "SubstringNegative", input: `"hello".substring(-2, 2);`, expect: "he"},
		{name: "SubstrNegativeStart", input: `"hello".substr(-3, 2);`, expect: "ll"},
		{name: "SubstrNoLength", input: `"hello".substr(2);`, expect: "llo"},
		{name: "Trim", input: `"  x  ".trim();`, expect: "x"},
		{name: "TrimStart", input: `"  x".trimStart();`, expect: "x"},
		{name: "Repeat", input: `"ab".repeat(3);`, expect: "ababab"},
		{name: "RepeatNegative", input: `"a".repeat(-1);`, expect: "Invalid count value", isError: true},
		{name: "PadStart", input: `"5".padStart(3, "0");`, expect: "005"},
		{name: "PadEnd", input: `"5".padEnd(3);`, expect: "5  "},
		{name: "Concat", input: `"a".concat("b", "c");`, expect: "abc"},
		{name: "ToUpper", input: `"abc".toUpperCase();`, expect: "ABC"},
		{name: "SplitString", input: `"a,b,c".split(",").length;`, expect: "3"},
		{name: "SplitEmptySep", input: `"abc".split("").join("-");`, expect: "a-b-c"},
		{name: "SplitRegex", input: `"a1b2c".split(/[0-9]/).join("-");`, expect: "a-b-c"},
		{name: "SplitLimit", input: `"a,b,c".split(",", 2).join("-");`, expect: "a-b"},
		{name: "ReplaceDollarAmp", input: `"abc".replace("b", "$&$&");`, expect: "abbc"},
		{name: "ReplaceCallback", input: `"abc".replace(/b/, function(m) { return m + m; });`, expect: "abbc"},
		{name: "ReplaceNoCapture", input: `"a".replace("a", "$01");`, expect: "$01"},
		{name: "ReplaceCapture", input: `"ab".replace(/a(b)/, "$1$1");`, expect: "bb"},
		{name: "ReplaceDollarDollar", input: `"a".replace("a", "$$");`, expect: "$"},
		{name: "ReplaceBefore", input: "\"xay\".replace(\"a\", \"$`\");", expect: "xxy"},
		{name: "ReplaceGlobal", input: `"aaa".replace(/a/g, "b");`, expect: "bbb"},
		{name: "MatchGroups", input: `/a(b)c/.exec("xabc")[1];`, expect: "b"},
		{name: "RegexTest", input: `/\d+/.test("abc123");`, expect: "true"},
		{name: "RegexBackreference", input: `/(a)\1/.test("aa");`, expect: "true"},
		{name: "StringIterator", input: "let s = ''; for (let ch of 'ab') { s = s + ch + '.'; } s;", expect: "a.b."},
		{name: "NumberToStringRadix", input: "(255).toString(16);", expect: "ff"},
		{name: "NumberToStringFraction", input: "(3.5).toString(2);", expect: "11.1"},
		{name: "NumberToStringBadRadix", input: "(1).toString(50);", expect: "radix must be between 2 and 36", isError: true},
		{name: "ParseIntRoundTrip", input: "parseInt((255).toString(16), 16);", expect: "255"},
		{name: "ParseIntRadix2", input: "parseInt('101', 2);", expect: "5"},
		{name: "ParseIntHexPrefix", input: "parseInt('0x1f');", expect: "31"},
		{name: "ParseIntTrailing", input: "parseInt('42px');", expect: "42"},
		{name: "ParseFloat", input: "parseFloat('3.25rest');", expect: "3.25"},
		{name: "ToFixed", input: "(1.005).toFixed(1);", expect: "1.0"},
		{name: "NumberIsInteger", input: "Number.isInteger(4) && !Number.isInteger(4.5);", expect: "true"},
		{name: "MaxSafeInteger", input: "Number.MAX_SAFE_INTEGER;", expect: "9007199254740991"},
		{name: "NumberFormat", input: "0.1 + 0.2;", expect: "0.30000000000000004"},
		{name: "Exponential", input: "1e21;", expect: "1e+21"},
		{name: "SmallExponential", input: "0.0000001;", expect: "1e-7"},
		{name: "NegativeZeroString", input: "'' + -0;", expect: "0"},
		{name: "StringToNumber", input: "+'0x10';", expect: "16"},
		{name: "UnaryPlusEmpty", input: "+'';", expect: "0"},
	})
}

func TestBuiltinsMisc(t *testing.T) {
	runMatrix(t, []matrixCase{
		{name: "MathFloor", input: "Math.floor(3.7);", expect: "3"},
		{name: "MathRoundHalf", input: "Math.round(2.5);", expect: "3"},
		{name: "MathMax", input: "Math.max(1, 9, 4);", expect: "9"},
		{name: "MathPow", input: "Math.pow(2, 8);", expect: "256"},
		{name: "JSONStringify", input: "JSON.stringify({ a: [1, 2], b: 'x' });", expect: `{"a":[1,2],"b":"x"}`},
		{name: "JSONStringifyNested", input: "JSON.stringify([null, true, 1.5]);", expect: "[null,true,1.5]"},
		{name: "JSONParse", input: `JSON.parse('[1, "x", {"k": true}]')[2].k;`, expect: "true"},
		{name: "JSONRoundTrip", input: `JSON.parse(JSON.stringify({ a: 1 })).a;`, expect: "1"},
		{name: "JSONCircular", input: "let o = {}; o.self = o; JSON.stringify(o);", expect: "circular", isError: true},
		{name: "SymbolTypeof", input: "typeof Symbol('x');", expect: "symbol"},
		{name: "SymbolFor", input: "Symbol.for('k') === Symbol.for('k');", expect: "true"},
		{name: "SymbolUnique", input: "Symbol('k') === Symbol('k');", expect: "false"},
		{name: "SymbolKeyedProperty", input: "let s = Symbol('k'); let o = {}; o[s] = 7; o[s];", expect: "7"},
		{name: "FunctionCall", input: "function f(a, b) { return this.v + a + b; } f.call({ v: 1 }, 2, 3);", expect: "6"},
		{name: "FunctionApply", input: "function f(a, b) { return a * b; } f.apply(null, [6, 7]);", expect: "42"},
		{name: "FunctionBind", input: "function f(a, b) { return this.v + a + b; } let g = f.bind({ v: 10 }, 1); g(2);", expect: "13"},
		{name: "ErrorMessage", input: "new TypeError('bad').message;", expect: "bad"},
		{name: "ErrorName", input: "new RangeError('r').name;", expect: "RangeError"},
		{name: "ErrorToString", input: "new TypeError('bad').toString();", expect: "TypeError: bad"},
		{name: "ErrorInheritance", input: "new SyntaxError('s') instanceof Error;", expect: "true"},
		{name: "BooleanWrapper", input: "new Boolean(true).valueOf();", expect: "true"},
		{name: "StringWrapperLength", input: "new String('abc').length;", expect: "3"},
		{name: "ToPrimitiveHint", input: "let o = { valueOf: function() { return 7; } }; o + 1;", expect: "8"},
		{name: "SymbolToPrimitive", input: "let o = {}; o[Symbol.toPrimitive] = function() { return 5; }; o * 2;", expect: "10"},
	})
}

func TestPromises(t *testing.T) {
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	if _, err := engine.RunString("let q; let p = new Promise(function(r) { r(1); }); p.then(function(v) { q = v; });"); err != nil {
		t.Fatalf("run: %v", err)
	}
	// RunString drains the job queue cooperatively after the script.
	v, err := engine.RunString("q;")
	if err != nil {
		t.Fatalf("read q: %v", err)
	}
	if got := engine.Context.Raw().Inspect(v); got != "1" {
		t.Fatalf("q = %q, want 1", got)
	}

	if _, err := engine.RunString("let r; Promise.resolve(2).then(function(v) { return v * 2; }).then(function(v) { r = v; });"); err != nil {
		t.Fatalf("chain: %v", err)
	}
	v, _ = engine.RunString("r;")
	if got := engine.Context.Raw().Inspect(v); got != "4" {
		t.Fatalf("r = %q, want 4", got)
	}

	if _, err := engine.RunString("let c; Promise.reject('no').catch(function(e) { c = e; });"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	v, _ = engine.RunString("c;")
	if got := engine.Context.Raw().Inspect(v); got != "no" {
		t.Fatalf("c = %q, want no", got)
	}

	if _, err := engine.RunString("let all; Promise.all([1, Promise.resolve(2)]).then(function(v) { all = v.join(','); });"); err != nil {
		t.Fatalf("all: %v", err)
	}
	v, _ = engine.RunString("all;")
	if got := engine.Context.Raw().Inspect(v); got != "1,2" {
		t.Fatalf("all = %q, want 1,2", got)
	}
}

func TestPersistentSession(t *testing.T) {
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	if _, err := engine.RunString("let counter = 0; function bump() { counter = counter + 1; return counter; }"); err != nil {
		t.Fatalf("setup: %v", err)
	}
	engine.RunString("bump();")
	v, err := engine.RunString("bump();")
	if err != nil {
		t.Fatalf("bump: %v", err)
	}
	if got := engine.Context.Raw().Inspect(v); got != "2" {
		t.Fatalf("counter = %q, want 2", got)
	}
}

func TestExecutionErrorCarriesStack(t *testing.T) {
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	_, runErr := engine.RunString("function inner() { throw new Error('deep'); }\nfunction outer() { inner(); }\nouter();")
	execErr, ok := runErr.(*ExecutionError)
	if !ok {
		t.Fatalf("expected *ExecutionError, got %T (%v)", runErr, runErr)
	}
	if !execErr.Value.IsObject() {
		t.Fatalf("thrown value should be an error object")
	}
	if len(execErr.Stack) == 0 {
		t.Fatalf("expected a captured stack trace")
	}
	if execErr.Stack[0].Line != 1 {
		t.Fatalf("innermost frame should point at line 1, got %d", execErr.Stack[0].Line)
	}
}

func TestScriptParserErrors(t *testing.T) {
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	_, perr := engine.Context.ScriptParser().InitializeScript("let = ;", "<test>", false)
	if perr == nil {
		t.Fatalf("expected parse error")
	}
	if len(perr.Errors) == 0 || perr.Errors[0].Kind() != "Syntax" {
		t.Fatalf("expected syntax errors, got %v", perr.Errors)
	}
}

func TestWithStatement(t *testing.T) {
	runMatrix(t, []matrixCase{
		{name: "ReadThroughWith", input: "var o = { a: 5 }; var r; with (o) { r = a; } r;", expect: "5"},
		{name: "WriteThroughWith", input: "var o = { a: 1 }; with (o) { a = 9; } o.a;", expect: "9"},
		{name: "WithFallthrough", input: "var x = 3; var o = {}; var r; with (o) { r = x; } r;", expect: "3"},
		{name: "CompoundInWith", input: "var o = { a: 2 }; with (o) { a += 3; } o.a;", expect: "5"},
	})
}

func TestStrictMode(t *testing.T) {
	runMatrix(t, []matrixCase{
		{name: "StrictUnresolvedWrite", input: "'use strict'; missing = 1;", expect: "is not defined", isError: true},
		{name: "SloppyUnresolvedWrite", input: "notDeclared = 1; notDeclared;", expect: "1"},
		{name: "StrictNonWritable", input: "'use strict'; let o = {}; Object.defineProperty(o, 'a', { value: 1 }); o.a = 2;", expect: "read only", isError: true},
	})
}

func TestValueIdentityAcrossEvals(t *testing.T) {
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	engine.RunString("var keep = { marker: 'yes' };")
	v, err := engine.RunString("keep.marker;")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !v.IsString() || v.AsString().String() != "yes" {
		t.Fatalf("expected marker to survive, got %v", engine.Context.Raw().Inspect(v))
	}
	var _ vm.Value = v
}
