package vm

import (
	"strconv"
	"sync"
)

// WellKnownSymbols are the shared symbol singletons of an instance.
type WellKnownSymbols struct {
	Iterator           *Symbol
	ToPrimitive        *Symbol
	ToStringTag        *Symbol
	Species            *Symbol
	IsConcatSpreadable *Symbol
	Split              *Symbol
	HasInstance        *Symbol
	Unscopables        *Symbol
}

// Job is one pending promise job. Jobs run to completion in FIFO order when
// the host drains the queue between top-level evaluations.
type Job struct {
	Ctx  *Context
	Fn   Value
	Args []Value
}

// Instance is the shareable VM instance: it owns the atom table, the root of
// the shape transition tree, the well-known symbols, and the promise job
// queue. Contexts sharing an instance share all of these.
type Instance struct {
	atoms     *AtomTable
	rootShape *Shape
	wellKnown WellKnownSymbols

	jobMu sync.Mutex
	jobs  []Job

	symbolRegMu sync.Mutex
	symbolReg   map[string]*Symbol

	indexAtoms [128]*Atom // small-index atom cache
	atomLength *Atom
	platform   any // host Platform; concrete type lives in pkg/modules
}

var globalsOnce sync.Once

// InitializeGlobals performs process-wide setup. Idempotent.
func InitializeGlobals() {
	globalsOnce.Do(func() {})
}

// FinalizeGlobals releases process-wide state. Present for lifecycle
// symmetry with embedders that expect an explicit teardown.
func FinalizeGlobals() {}

// NewInstance creates a shareable instance. platform may be nil for hosts
// that never load modules.
func NewInstance(platform any) *Instance {
	inst := &Instance{
		atoms:     NewAtomTable(),
		rootShape: NewRootShape(),
		symbolReg: make(map[string]*Symbol),
		platform:  platform,
	}
	inst.wellKnown = WellKnownSymbols{
		Iterator:           &Symbol{Description: NewStringFromGo("Symbol.iterator")},
		ToPrimitive:        &Symbol{Description: NewStringFromGo("Symbol.toPrimitive")},
		ToStringTag:        &Symbol{Description: NewStringFromGo("Symbol.toStringTag")},
		Species:            &Symbol{Description: NewStringFromGo("Symbol.species")},
		IsConcatSpreadable: &Symbol{Description: NewStringFromGo("Symbol.isConcatSpreadable")},
		Split:              &Symbol{Description: NewStringFromGo("Symbol.split")},
		HasInstance:        &Symbol{Description: NewStringFromGo("Symbol.hasInstance")},
		Unscopables:        &Symbol{Description: NewStringFromGo("Symbol.unscopables")},
	}
	inst.atomLength = inst.atoms.Intern("length")
	for i := range inst.indexAtoms {
		inst.indexAtoms[i] = inst.atoms.Intern(strconv.Itoa(i))
	}
	return inst
}

// Atoms returns the intern pool.
func (i *Instance) Atoms() *AtomTable { return i.atoms }

// Intern is shorthand for the atom table.
func (i *Instance) Intern(s string) *Atom { return i.atoms.Intern(s) }

// InternIndex interns the decimal form of an array index, with a cache for
// small indices.
func (i *Instance) InternIndex(idx uint32) *Atom {
	if idx < uint32(len(i.indexAtoms)) {
		return i.indexAtoms[idx]
	}
	return i.atoms.Intern(strconv.FormatUint(uint64(idx), 10))
}

// RootShape returns the root of the shared shape transition tree.
func (i *Instance) RootShape() *Shape { return i.rootShape }

// WellKnown returns the instance's well-known symbols.
func (i *Instance) WellKnown() *WellKnownSymbols { return &i.wellKnown }

// Platform returns the host platform handle passed at creation.
func (i *Instance) Platform() any { return i.platform }

func (i *Instance) lengthKey() PropertyKey { return PropertyKey{atom: i.atomLength} }

// SymbolFor implements the Symbol.for registry.
func (i *Instance) SymbolFor(key string) *Symbol {
	i.symbolRegMu.Lock()
	defer i.symbolRegMu.Unlock()
	if s, ok := i.symbolReg[key]; ok {
		return s
	}
	s := &Symbol{Description: NewStringFromGo(key)}
	i.symbolReg[key] = s
	return s
}

// EnqueueJob appends a promise job.
func (i *Instance) EnqueueJob(job Job) {
	i.jobMu.Lock()
	i.jobs = append(i.jobs, job)
	i.jobMu.Unlock()
}

// HasPendingPromiseJob reports whether the queue is non-empty.
func (i *Instance) HasPendingPromiseJob() bool {
	i.jobMu.Lock()
	defer i.jobMu.Unlock()
	return len(i.jobs) > 0
}

// ExecutePendingPromiseJob pops and runs the oldest job to completion. A job
// enqueued during a job runs after the current one ends.
func (i *Instance) ExecutePendingPromiseJob() error {
	i.jobMu.Lock()
	if len(i.jobs) == 0 {
		i.jobMu.Unlock()
		return nil
	}
	job := i.jobs[0]
	i.jobs = i.jobs[1:]
	i.jobMu.Unlock()
	_, err := job.Ctx.Call(job.Fn, Undefined, job.Args)
	return err
}

// Intrinsics are the per-realm builtin prototypes and constructors. The
// objects are created bare by NewContext; pkg/builtins populates them.
type Intrinsics struct {
	ObjectProto         *Object
	FunctionProto       *Object
	ArrayProto          *Object
	StringProto         *Object
	NumberProto         *Object
	BooleanProto        *Object
	SymbolProto         *Object
	RegExpProto         *Object
	IteratorProto       *Object
	ArrayIteratorProto  *Object
	StringIteratorProto *Object
	PromiseProto        *Object
	ErrorProtos         [7]*Object
	ErrorCtors          [7]Value
	ArrayCtor           Value
	ObjectCtor          Value
	PromiseCtor         Value
}

// GlobalLexicalBinding is a top-level let/const binding. Global lexicals
// live beside the global object, not on it.
type GlobalLexicalBinding struct {
	Value   Value
	Mutable bool
	// Empty Value means the binding is still in its temporal dead zone.
}

// Context is one realm: a global object, its intrinsics, and the
// interpreter executing against them. A context is single-threaded;
// embedders sharing one must serialize.
type Context struct {
	instance   *Instance
	global     *Object
	globalLex  map[*Atom]*GlobalLexicalBinding
	intrinsics Intrinsics
	vm         *VM

	// Recursion preventer for self-referential toString/join. Entries are
	// pushed on entry to the known-recursive builtins and must be released
	// on every exit path.
	recursion map[*Object]bool
}

// NewContext creates a realm over the instance with a fresh global object
// and bare intrinsic prototypes. The builtin library is installed by the
// embedder (pkg/builtins) before first execution.
func NewContext(inst *Instance) *Context {
	ctx := &Context{
		instance:  inst,
		globalLex: make(map[*Atom]*GlobalLexicalBinding),
		recursion: make(map[*Object]bool),
	}
	ctx.vm = NewVM(ctx)

	objectProto := &Object{kind: KindPlain, shape: inst.rootShape, prototype: Null, extensible: true}
	protoOf := func(kind ObjectKind) *Object {
		return &Object{kind: kind, shape: inst.rootShape, prototype: ObjectValue(objectProto), extensible: true}
	}
	ctx.intrinsics.ObjectProto = objectProto
	ctx.intrinsics.FunctionProto = protoOf(KindPlain)
	ctx.intrinsics.ArrayProto = ctx.bootstrapArrayProto(objectProto)
	ctx.intrinsics.StringProto = protoOf(KindPlain)
	ctx.intrinsics.NumberProto = protoOf(KindPlain)
	ctx.intrinsics.BooleanProto = protoOf(KindPlain)
	ctx.intrinsics.SymbolProto = protoOf(KindPlain)
	ctx.intrinsics.RegExpProto = protoOf(KindPlain)
	ctx.intrinsics.IteratorProto = protoOf(KindPlain)
	ctx.intrinsics.PromiseProto = protoOf(KindPlain)
	iterProto := ObjectValue(ctx.intrinsics.IteratorProto)
	ctx.intrinsics.ArrayIteratorProto = &Object{kind: KindPlain, shape: inst.rootShape, prototype: iterProto, extensible: true}
	ctx.intrinsics.StringIteratorProto = &Object{kind: KindPlain, shape: inst.rootShape, prototype: iterProto, extensible: true}
	for k := range ctx.intrinsics.ErrorProtos {
		proto := ObjectValue(objectProto)
		if k != int(ErrorKindError) {
			// The specific error prototypes inherit from Error.prototype.
			proto = ObjectValue(ctx.intrinsics.ErrorProtos[ErrorKindError])
		}
		ctx.intrinsics.ErrorProtos[k] = &Object{kind: KindPlain, shape: inst.rootShape, prototype: proto, extensible: true}
	}

	ctx.global = &Object{kind: KindGlobal, shape: inst.rootShape, prototype: ObjectValue(objectProto), extensible: true}
	return ctx
}

// The array prototype is itself an (always slow-mode) array.
func (ctx *Context) bootstrapArrayProto(objectProto *Object) *Object {
	return &Object{
		kind:       KindArray,
		shape:      ctx.instance.rootShape,
		prototype:  ObjectValue(objectProto),
		extensible: true,
		array:      &ArrayStorage{fast: false, lengthWritable: true},
	}
}

func (ctx *Context) Instance() *Instance { return ctx.instance }

// Global returns the realm's global object.
func (ctx *Context) Global() *Object { return ctx.global }

// Intrinsics exposes the realm intrinsic table to the builtin installers.
func (ctx *Context) Intrinsics() *Intrinsics { return &ctx.intrinsics }

// VM returns the context's interpreter.
func (ctx *Context) VM() *VM { return ctx.vm }

func (ctx *Context) ObjectPrototype() Value   { return ObjectValue(ctx.intrinsics.ObjectProto) }
func (ctx *Context) FunctionPrototype() Value { return ObjectValue(ctx.intrinsics.FunctionProto) }
func (ctx *Context) ArrayPrototype() Value    { return ObjectValue(ctx.intrinsics.ArrayProto) }
func (ctx *Context) StringPrototype() Value   { return ObjectValue(ctx.intrinsics.StringProto) }
func (ctx *Context) NumberPrototype() Value   { return ObjectValue(ctx.intrinsics.NumberProto) }
func (ctx *Context) BooleanPrototype() Value  { return ObjectValue(ctx.intrinsics.BooleanProto) }
func (ctx *Context) SymbolPrototype() Value   { return ObjectValue(ctx.intrinsics.SymbolProto) }

// NewPlainObject creates {} with Object.prototype.
func (ctx *Context) NewPlainObject() *Object {
	return &Object{
		kind:       KindPlain,
		shape:      ctx.instance.rootShape,
		prototype:  ctx.ObjectPrototype(),
		extensible: true,
	}
}

// GlobalLexical looks up a top-level let/const binding.
func (ctx *Context) GlobalLexical(name *Atom) (*GlobalLexicalBinding, bool) {
	b, ok := ctx.globalLex[name]
	return b, ok
}

// DefineGlobalLexical creates a top-level lexical binding in its TDZ.
func (ctx *Context) DefineGlobalLexical(name *Atom, mutable bool) *GlobalLexicalBinding {
	b := &GlobalLexicalBinding{Value: Empty, Mutable: mutable}
	ctx.globalLex[name] = b
	return b
}

// EnterRecursion marks obj as being stringified. Reports false when obj is
// already on the set, in which case the caller returns the empty result and
// must not pop.
func (ctx *Context) EnterRecursion(obj *Object) bool {
	if ctx.recursion[obj] {
		return false
	}
	ctx.recursion[obj] = true
	return true
}

// LeaveRecursion releases the marker. Deferred by every entry path.
func (ctx *Context) LeaveRecursion(obj *Object) {
	delete(ctx.recursion, obj)
}

// CaptureStack snapshots the interpreter's frame stack for error objects.
func (ctx *Context) CaptureStack() []StackSite {
	if ctx.vm == nil {
		return nil
	}
	return ctx.vm.CaptureStack()
}

// DefineGlobal installs a global-object property the way the builtin
// installers do: writable and configurable, not enumerable.
func (ctx *Context) DefineGlobal(name string, v Value) {
	ctx.global.DefineOwn(ctx, AtomKey(ctx.instance.Intern(name)), v, AttrWritable|AttrConfigurable)
}
