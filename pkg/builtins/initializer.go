package builtins

import (
	"sort"

	"escargot/pkg/vm"
)

// BuiltinInitializer is implemented by each builtin module.
type BuiltinInitializer interface {
	// Name returns the module name (e.g. "Array", "String", "Math").
	Name() string

	// Priority returns initialization order (lower = earlier).
	Priority() int

	// InitRuntime creates the runtime values for one realm.
	InitRuntime(ctx *RuntimeContext) error
}

// RuntimeContext provides everything an initializer needs.
type RuntimeContext struct {
	Ctx *vm.Context

	// DefineGlobal installs a global-object property.
	DefineGlobal func(name string, value vm.Value)
}

// Priority constants for initialization order.
const (
	PriorityObject   = 0 // Object must be first (base prototype)
	PriorityFunction = 1 // Function second (inherits from Object)
	PriorityIterator = 2 // iterator prototypes (needed by iterables)
	PriorityArray    = 3
	PriorityString   = 10
	PriorityNumber   = 11
	PriorityBoolean  = 12
	PrioritySymbol   = 13
	PriorityRegExp   = 14
	PriorityError    = 20
	PriorityMath     = 100
	PriorityJSON     = 101
	PriorityPromise  = 102
	PriorityGlobals  = 110
)

func allInitializers() []BuiltinInitializer {
	inits := []BuiltinInitializer{
		&ObjectInitializer{},
		&FunctionInitializer{},
		&IteratorInitializer{},
		&ArrayInitializer{},
		&StringInitializer{},
		&NumberInitializer{},
		&BooleanInitializer{},
		&SymbolInitializer{},
		&RegExpInitializer{},
		&ErrorInitializer{},
		&MathInitializer{},
		&JSONInitializer{},
		&PromiseInitializer{},
		&GlobalsInitializer{},
	}
	sort.SliceStable(inits, func(i, j int) bool { return inits[i].Priority() < inits[j].Priority() })
	return inits
}

// Install populates a fresh context's intrinsics and global object.
func Install(ctx *vm.Context) error {
	rc := &RuntimeContext{
		Ctx: ctx,
		DefineGlobal: func(name string, value vm.Value) {
			ctx.Global().DefineOwn(ctx, key(ctx, name), value, vm.AttrWritable|vm.AttrConfigurable)
		},
	}
	for _, init := range allInitializers() {
		if err := init.InitRuntime(rc); err != nil {
			return err
		}
	}
	return nil
}

// --- shared helpers ---

func key(ctx *vm.Context, name string) vm.PropertyKey {
	return vm.AtomKey(ctx.Instance().Intern(name))
}

func arg(args []vm.Value, i int) vm.Value {
	if i < len(args) {
		return args[i]
	}
	return vm.Undefined
}

// defineMethod installs a builtin function as a non-enumerable property.
func defineMethod(ctx *vm.Context, obj *vm.Object, name string, length int, fn vm.NativeFunc) {
	method := ctx.NewNativeFunction(name, length, fn)
	obj.DefineOwn(ctx, key(ctx, name), vm.ObjectValue(method), vm.AttrWritable|vm.AttrConfigurable)
}

// defineSymbolMethod installs a builtin under a symbol key.
func defineSymbolMethod(ctx *vm.Context, obj *vm.Object, sym *vm.Symbol, name string, length int, fn vm.NativeFunc) {
	method := ctx.NewNativeFunction(name, length, fn)
	obj.DefineOwn(ctx, vm.SymbolKey(sym), vm.ObjectValue(method), vm.AttrWritable|vm.AttrConfigurable)
}

// defineValue installs a non-enumerable data property.
func defineValue(ctx *vm.Context, obj *vm.Object, name string, v vm.Value) {
	obj.DefineOwn(ctx, key(ctx, name), v, vm.AttrWritable|vm.AttrConfigurable)
}

// defineConstant installs a non-writable, non-configurable property.
func defineConstant(ctx *vm.Context, obj *vm.Object, name string, v vm.Value) {
	obj.DefineOwn(ctx, key(ctx, name), v, 0)
}

// defineGetterProp installs a getter-only accessor.
func defineGetterProp(ctx *vm.Context, obj *vm.Object, name string, fn vm.NativeFunc) {
	getter := ctx.NewNativeFunction("get "+name, 0, fn)
	obj.DefineAccessor(ctx, key(ctx, name), vm.ObjectValue(getter), vm.Undefined, vm.AttrConfigurable)
}
