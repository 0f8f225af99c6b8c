package compiler

import (
	"escargot/pkg/parser"
)

// BindingKind classifies a declared name the way the store table in the
// lowering rules needs it: var and function declarations write plainly,
// let gets a TDZ check, const additionally rejects writes.
type BindingKind uint8

const (
	BindVar BindingKind = iota
	BindFunction
	BindParam
	BindLet
	BindConst
)

// IsLexical reports let/const bindings (TDZ semantics).
func (k BindingKind) IsLexical() bool { return k == BindLet || k == BindConst }

// StorageKind says where a binding lives at runtime.
type StorageKind uint8

const (
	StorageStack StorageKind = iota
	StorageHeap
	StorageGlobalVar // property of the global object
	StorageGlobalLex // top-level let/const beside the global object
)

// Binding is one declared name.
type Binding struct {
	Name     string
	Kind     BindingKind
	Captured bool // referenced from a nested function
	Storage  StorageKind
	Slot     int // stack slot, or heap slot within its block's record
	Block    *BlockScope
	// initializedSeen is the emitter's straight-line "lexically declared
	// names" tracking: once the Initialize* for this binding has been
	// emitted, later loads on the same path skip the TDZ check.
	initializedSeen bool
}

// BlockScope is one lexical block of the resolver's scope tree.
type BlockScope struct {
	Fn              *FunctionScope
	Parent          *BlockScope
	Children        []*BlockScope
	Bindings        map[string]*Binding
	Order           []*Binding
	IsFunctionScope bool
	// HeapIndex is the index into the code block's BlockScopes table when
	// this block allocates an environment record; -1 otherwise.
	HeapIndex int
	heapSlots []*Binding
}

func (b *BlockScope) allocatesEnvironment() bool { return b.HeapIndex >= 0 }

// FunctionScope aggregates one function (or the program) for the resolver.
type FunctionScope struct {
	Node   *parser.FunctionLiteral // nil for the program
	Parent *FunctionScope
	// DefinedIn is the block the function literal appeared in.
	DefinedIn *BlockScope
	Root      *BlockScope
	Params    []*Binding

	IsGlobal bool
	IsArrow  bool
	Strict   bool

	UsesArguments bool
	hasEval       bool
	hasWith       bool

	CanUseIndexedVariableStorage             bool
	CanAllocateEnvironmentOnStack            bool
	HasAncestorUsesNonIndexedVariableStorage bool

	StackSlotCount int
	stackSlots     []*Binding
	assignedPass   int
	// pending defers nested function bodies until this function's own
	// declarations are complete, so var hoisting resolves across closures.
	pending []pendingFn
	// AllocatingBlocks lists the blocks with environment records, in
	// creation order; it becomes the code block's BlockScopes table.
	AllocatingBlocks []*BlockScope
}

// Resolver builds the scope tree, classifies every binding, and computes
// the storage flags the emitter's opcode selection keys on.
type Resolver struct {
	program *parser.Program
	global  *FunctionScope
	// fnScopes maps function literals to their scopes for the emitter.
	fnScopes map[*parser.FunctionLiteral]*FunctionScope
	// blockOf maps block statements to their scopes.
	blockOf    map[*parser.BlockStatement]*BlockScope
	forScopeOf map[parser.Statement]*BlockScope
}

// Resolve runs both passes over the program.
func Resolve(program *parser.Program) *Resolver {
	r := &Resolver{
		program:    program,
		fnScopes:   make(map[*parser.FunctionLiteral]*FunctionScope),
		blockOf:    make(map[*parser.BlockStatement]*BlockScope),
		forScopeOf: make(map[parser.Statement]*BlockScope),
	}
	r.global = r.newFunctionScope(nil, nil, nil, program.Strict, false)
	r.global.IsGlobal = true
	r.collectStatements(program.Statements, r.global.Root)
	r.drainPending(r.global)
	r.finalize(r.global)
	return r
}

type pendingFn struct {
	fn *parser.FunctionLiteral
	fs *FunctionScope
}

// drainPending collects the queued nested function bodies of fs in order,
// descending into each body's own queue before moving to the next one.
func (r *Resolver) drainPending(fs *FunctionScope) {
	for len(fs.pending) > 0 {
		p := fs.pending[0]
		fs.pending = fs.pending[1:]
		if p.fn.Body != nil {
			r.collectStatements(p.fn.Body.Statements, p.fs.Root)
		} else if p.fn.ExprBody != nil {
			r.collectExpression(p.fn.ExprBody, p.fs.Root)
		}
		r.drainPending(p.fs)
	}
}

// ModuleNamespaceParam is the synthesized first parameter of a module body:
// the namespace object exports write through.
const ModuleNamespaceParam = "*namespace*"

// ResolveModule resolves a module-goal program. The module body is treated
// as a strict function whose parameters are the namespace object followed
// by the imported bindings in source order.
func ResolveModule(program *parser.Program) *Resolver {
	r := &Resolver{
		program:    program,
		fnScopes:   make(map[*parser.FunctionLiteral]*FunctionScope),
		blockOf:    make(map[*parser.BlockStatement]*BlockScope),
		forScopeOf: make(map[parser.Statement]*BlockScope),
	}
	r.global = r.newFunctionScope(nil, nil, nil, true, false)
	ns := r.declare(r.global.Root, ModuleNamespaceParam, BindParam)
	r.global.Params = append(r.global.Params, ns)
	for _, stmt := range program.Statements {
		imp, ok := stmt.(*parser.ImportDeclaration)
		if !ok {
			continue
		}
		for _, spec := range imp.Specifiers {
			b := r.declare(r.global.Root, spec.Local.Value, BindParam)
			r.global.Params = append(r.global.Params, b)
		}
	}
	r.collectStatements(program.Statements, r.global.Root)
	r.drainPending(r.global)
	r.finalize(r.global)
	return r
}

// GlobalScope returns the program's function scope.
func (r *Resolver) GlobalScope() *FunctionScope { return r.global }

// FunctionScopeFor returns the scope of a function literal.
func (r *Resolver) FunctionScopeFor(fn *parser.FunctionLiteral) *FunctionScope {
	return r.fnScopes[fn]
}

// BlockScopeFor returns the scope of a block statement, if it owns one.
func (r *Resolver) BlockScopeFor(bs *parser.BlockStatement) (*BlockScope, bool) {
	b, ok := r.blockOf[bs]
	return b, ok
}

// ForScopeFor returns the implicit block scope of a for statement header.
func (r *Resolver) ForScopeFor(stmt parser.Statement) (*BlockScope, bool) {
	b, ok := r.forScopeOf[stmt]
	return b, ok
}

func (r *Resolver) newFunctionScope(node *parser.FunctionLiteral, parent *FunctionScope, definedIn *BlockScope, strict, isArrow bool) *FunctionScope {
	fs := &FunctionScope{
		Node:      node,
		Parent:    parent,
		DefinedIn: definedIn,
		Strict:    strict,
		IsArrow:   isArrow,
	}
	fs.Root = &BlockScope{Fn: fs, Bindings: make(map[string]*Binding), IsFunctionScope: true, HeapIndex: -1}
	if node != nil {
		r.fnScopes[node] = fs
	}
	return fs
}

func (r *Resolver) newBlock(parent *BlockScope) *BlockScope {
	b := &BlockScope{Fn: parent.Fn, Parent: parent, Bindings: make(map[string]*Binding), HeapIndex: -1}
	parent.Children = append(parent.Children, b)
	return b
}

// declare adds a binding. var and function declarations hoist to the
// function-level block; lexical declarations stay in their block.
func (r *Resolver) declare(block *BlockScope, name string, kind BindingKind) *Binding {
	target := block
	if kind == BindVar || kind == BindFunction {
		for !target.IsFunctionScope {
			target = target.Parent
		}
	}
	if existing, ok := target.Bindings[name]; ok {
		// Re-declaration of a var is a no-op; a function declaration wins.
		if kind == BindFunction {
			existing.Kind = BindFunction
		}
		return existing
	}
	b := &Binding{Name: name, Kind: kind, Block: target, Slot: -1}
	target.Bindings[name] = b
	target.Order = append(target.Order, b)
	return b
}

// lookup resolves a name from a block outward. crossedFn reports whether a
// function boundary was crossed, which marks the binding captured.
func lookup(block *BlockScope, name string) (*Binding, bool) {
	crossedFn := false
	for b := block; b != nil; {
		if bind, ok := b.Bindings[name]; ok {
			if crossedFn {
				bind.Captured = true
			}
			return bind, true
		}
		if b.Parent != nil {
			b = b.Parent
			continue
		}
		// Cross into the enclosing function's defining block.
		if b.Fn.Parent == nil {
			return nil, false
		}
		crossedFn = true
		b = b.Fn.DefinedIn
	}
	return nil, false
}

// --- Pass 1: collection ---

func (r *Resolver) collectStatements(stmts []parser.Statement, block *BlockScope) {
	// Hoist function declarations first so forward references resolve.
	for _, s := range stmts {
		if ed, ok := s.(*parser.ExportDeclaration); ok && ed.Declaration != nil {
			s = ed.Declaration
		}
		if fd, ok := s.(*parser.FunctionDeclaration); ok {
			r.declare(block, fd.Name.Value, BindFunction)
		}
	}
	for _, s := range stmts {
		r.collectStatement(s, block)
	}
}

func (r *Resolver) collectStatement(stmt parser.Statement, block *BlockScope) {
	switch s := stmt.(type) {
	case *parser.VariableStatement:
		kind := BindVar
		switch s.Kind {
		case parser.DeclLet:
			kind = BindLet
		case parser.DeclConst:
			kind = BindConst
		}
		for _, d := range s.Declarators {
			r.declare(block, d.Name.Value, kind)
			if d.Init != nil {
				r.collectExpression(d.Init, block)
			}
		}
	case *parser.ExpressionStatement:
		r.collectExpression(s.Expression, block)
	case *parser.BlockStatement:
		inner := r.newBlock(block)
		r.blockOf[s] = inner
		r.collectStatements(s.Statements, inner)
	case *parser.IfStatement:
		r.collectExpression(s.Condition, block)
		r.collectStatement(s.Consequence, block)
		if s.Alternative != nil {
			r.collectStatement(s.Alternative, block)
		}
	case *parser.WhileStatement:
		r.collectExpression(s.Condition, block)
		r.collectStatement(s.Body, block)
	case *parser.DoWhileStatement:
		r.collectStatement(s.Body, block)
		r.collectExpression(s.Condition, block)
	case *parser.ForStatement:
		header := r.newBlock(block)
		r.forScopeOf[s] = header
		if s.Init != nil {
			r.collectStatement(s.Init, header)
		}
		if s.Condition != nil {
			r.collectExpression(s.Condition, header)
		}
		if s.Update != nil {
			r.collectExpression(s.Update, header)
		}
		r.collectStatement(s.Body, header)
	case *parser.ForInStatement:
		header := r.newBlock(block)
		r.forScopeOf[s] = header
		if s.Declare {
			kind := BindVar
			switch s.Kind {
			case parser.DeclLet:
				kind = BindLet
			case parser.DeclConst:
				kind = BindConst
			}
			r.declare(header, s.Name.Value, kind)
		} else {
			r.reference(s.Name.Value, header)
		}
		r.collectExpression(s.Object, header)
		r.collectStatement(s.Body, header)
	case *parser.ReturnStatement:
		if s.Value != nil {
			r.collectExpression(s.Value, block)
		}
	case *parser.ThrowStatement:
		r.collectExpression(s.Value, block)
	case *parser.TryStatement:
		tryBlock := r.newBlock(block)
		r.blockOf[s.Block] = tryBlock
		r.collectStatements(s.Block.Statements, tryBlock)
		if s.Catch != nil {
			catchBlock := r.newBlock(block)
			r.blockOf[s.Catch] = catchBlock
			if s.CatchParam != nil {
				r.declare(catchBlock, s.CatchParam.Value, BindLet)
			}
			r.collectStatements(s.Catch.Statements, catchBlock)
		}
		if s.Finally != nil {
			finBlock := r.newBlock(block)
			r.blockOf[s.Finally] = finBlock
			r.collectStatements(s.Finally.Statements, finBlock)
		}
	case *parser.SwitchStatement:
		r.collectExpression(s.Discriminant, block)
		inner := r.newBlock(block)
		r.forScopeOf[s] = inner
		for _, c := range s.Cases {
			if c.Test != nil {
				r.collectExpression(c.Test, inner)
			}
			r.collectStatements(c.Body, inner)
		}
	case *parser.LabeledStatement:
		r.collectStatement(s.Body, block)
	case *parser.WithStatement:
		block.Fn.hasWith = true
		r.collectExpression(s.Object, block)
		r.collectStatement(s.Body, block)
	case *parser.FunctionDeclaration:
		// Name already hoisted; resolve the body.
		r.collectFunction(s.Function, block)
	case *parser.ImportDeclaration:
		for _, spec := range s.Specifiers {
			r.declare(block, spec.Local.Value, BindConst)
		}
	case *parser.ExportDeclaration:
		if s.Declaration != nil {
			r.collectStatement(s.Declaration, block)
		}
		for _, n := range s.Names {
			r.reference(n.Value, block)
		}
		if s.Default != nil {
			r.collectExpression(s.Default, block)
		}
	}
}

func (r *Resolver) collectExpression(expr parser.Expression, block *BlockScope) {
	switch e := expr.(type) {
	case *parser.Identifier:
		r.reference(e.Value, block)
	case *parser.PrefixExpression:
		r.collectExpression(e.Right, block)
	case *parser.UpdateExpression:
		r.collectExpression(e.Operand, block)
	case *parser.InfixExpression:
		r.collectExpression(e.Left, block)
		r.collectExpression(e.Right, block)
	case *parser.LogicalExpression:
		r.collectExpression(e.Left, block)
		r.collectExpression(e.Right, block)
	case *parser.AssignmentExpression:
		r.collectExpression(e.Target, block)
		r.collectExpression(e.Value, block)
	case *parser.ConditionalExpression:
		r.collectExpression(e.Condition, block)
		r.collectExpression(e.Consequence, block)
		r.collectExpression(e.Alternative, block)
	case *parser.CallExpression:
		// A direct call to eval forces generic variable records.
		if id, ok := e.Callee.(*parser.Identifier); ok && id.Value == "eval" {
			block.Fn.hasEval = true
		}
		r.collectExpression(e.Callee, block)
		for _, a := range e.Arguments {
			r.collectExpression(a, block)
		}
	case *parser.NewExpression:
		r.collectExpression(e.Callee, block)
		for _, a := range e.Arguments {
			r.collectExpression(a, block)
		}
	case *parser.MemberExpression:
		r.collectExpression(e.Object, block)
	case *parser.IndexExpression:
		r.collectExpression(e.Object, block)
		r.collectExpression(e.Index, block)
	case *parser.SequenceExpression:
		for _, sub := range e.Expressions {
			r.collectExpression(sub, block)
		}
	case *parser.ArrayLiteral:
		for _, el := range e.Elements {
			if el != nil {
				r.collectExpression(el, block)
			}
		}
	case *parser.ObjectLiteral:
		for _, p := range e.Properties {
			if p.Computed {
				r.collectExpression(p.Key, block)
			}
			r.collectExpression(p.Value, block)
		}
	case *parser.TemplateLiteral:
		for _, sub := range e.Expressions {
			r.collectExpression(sub, block)
		}
	case *parser.FunctionLiteral:
		r.collectFunction(e, block)
		// A named function expression binds its own name.
		if fs := r.fnScopes[e]; e.Name != nil && !e.IsArrow {
			if _, ok := fs.Root.Bindings[e.Name.Value]; !ok {
				r.declare(fs.Root, e.Name.Value, BindVar)
			}
		}
	}
}

func (r *Resolver) collectFunction(fn *parser.FunctionLiteral, definedIn *BlockScope) {
	strict := definedIn.Fn.Strict || startsWithUseStrict(fn.Body)
	fs := r.newFunctionScope(fn, definedIn.Fn, definedIn, strict, fn.IsArrow)
	for _, p := range fn.Params {
		b := r.declare(fs.Root, p.Value, BindParam)
		fs.Params = append(fs.Params, b)
	}
	// The body waits until the enclosing function's declarations are all
	// known; drainPending picks it up.
	definedIn.Fn.pending = append(definedIn.Fn.pending, pendingFn{fn: fn, fs: fs})
}

func startsWithUseStrict(body *parser.BlockStatement) bool {
	if body == nil || len(body.Statements) == 0 {
		return false
	}
	es, ok := body.Statements[0].(*parser.ExpressionStatement)
	if !ok {
		return false
	}
	sl, ok := es.Expression.(*parser.StringLiteral)
	return ok && sl.Value == "use strict"
}

// reference resolves a name use, marking captures. Unresolved names are
// left for the emitter's global/dynamic selection. References to
// `arguments` in a non-arrow function flip UsesArguments; arrows defer to
// the enclosing function's object.
func (r *Resolver) reference(name string, block *BlockScope) {
	if name == "arguments" {
		fn := block.Fn
		for fn != nil && fn.IsArrow {
			fn = fn.Parent
		}
		if fn != nil && !fn.IsGlobal {
			if _, declared := lookup(block, name); !declared {
				fn.UsesArguments = true
				return
			}
		}
	}
	lookup(block, name)
}

// --- Pass 2: storage assignment ---

// finalize walks the scope tree top-down: for each function it computes the
// flags first, then assigns slots, then recurses into nested functions.
func (r *Resolver) finalize(fs *FunctionScope) {
	fs.CanUseIndexedVariableStorage = !fs.hasEval && !fs.hasWith
	for a := fs.Parent; a != nil; a = a.Parent {
		if a.hasEval || a.hasWith {
			fs.HasAncestorUsesNonIndexedVariableStorage = true
			break
		}
	}
	r.assignStorage(fs)
	// Recurse into nested functions.
	for fnNode, nested := range r.fnScopes {
		if nested.Parent == fs && nested.assignedPass == 0 {
			_ = fnNode
			r.finalize(nested)
		}
	}
	canStack := fs.CanUseIndexedVariableStorage
	if len(fs.AllocatingBlocks) > 0 {
		canStack = false
	}
	fs.CanAllocateEnvironmentOnStack = canStack
}

func (r *Resolver) assignStorage(fs *FunctionScope) {
	fs.assignedPass = 1
	var walk func(b *BlockScope)
	walk = func(b *BlockScope) {
		for _, bind := range b.Order {
			r.placeBinding(fs, b, bind)
		}
		for _, child := range b.Children {
			walk(child)
		}
	}
	walk(fs.Root)
}

func (r *Resolver) placeBinding(fs *FunctionScope, block *BlockScope, bind *Binding) {
	if bind.Slot >= 0 || bind.Storage == StorageGlobalVar || bind.Storage == StorageGlobalLex {
		return
	}
	if fs.IsGlobal && block == fs.Root {
		if bind.Kind.IsLexical() {
			bind.Storage = StorageGlobalLex
		} else {
			bind.Storage = StorageGlobalVar
		}
		return
	}
	if !fs.CanUseIndexedVariableStorage || bind.Captured {
		bind.Storage = StorageHeap
		if !block.allocatesEnvironment() {
			block.HeapIndex = len(fs.AllocatingBlocks)
			fs.AllocatingBlocks = append(fs.AllocatingBlocks, block)
		}
		bind.Slot = len(block.heapSlots)
		block.heapSlots = append(block.heapSlots, bind)
		return
	}
	bind.Storage = StorageStack
	bind.Slot = fs.StackSlotCount
	fs.StackSlotCount++
	fs.stackSlots = append(fs.stackSlots, bind)
}
