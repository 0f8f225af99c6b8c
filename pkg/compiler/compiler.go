package compiler

import (
	"fmt"

	"escargot/pkg/errors"
	"escargot/pkg/lexer"
	"escargot/pkg/parser"
	"escargot/pkg/source"
	"escargot/pkg/vm"
)

// Compiler lowers a resolved AST into code blocks. One Compiler serves one
// program; nested functions get their own funcCompiler but share the
// constant-interning instance.
type Compiler struct {
	instance *vm.Instance
	src      *source.SourceFile
	resolver *Resolver
	errors   []errors.EngineError
}

// New creates a compiler that interns atoms against instance.
func New(instance *vm.Instance) *Compiler {
	return &Compiler{instance: instance}
}

// Compile resolves and lowers a program into its top-level code block.
func (c *Compiler) Compile(program *parser.Program, src *source.SourceFile) (*vm.CodeBlock, []errors.EngineError) {
	c.src = src
	c.resolver = Resolve(program)
	c.errors = nil

	fs := c.resolver.GlobalScope()
	f := c.newFuncCompiler(nil, fs, nil)
	f.block.Source = src
	f.block.Strict = program.Strict

	resultReg := f.regs.Alloc() // program completion value
	f.emit(vm.OpLoadUndefined, byte(resultReg))
	f.resultReg = resultReg

	f.emitPrologue(program.Statements)
	for _, stmt := range program.Statements {
		f.compileStatement(stmt)
	}
	f.emit(vm.OpReturn, byte(resultReg))
	f.finish()
	return f.block, c.errors
}

// moduleNamespaceParam aliases the resolver's synthesized parameter name.
const moduleNamespaceParam = ModuleNamespaceParam

// CompileModule lowers a module-goal program. The module body becomes a
// strict function taking the namespace object plus the imported values; the
// driver activates it once per module instance.
func (c *Compiler) CompileModule(program *parser.Program, src *source.SourceFile) (*vm.CodeBlock, []errors.EngineError) {
	c.src = src
	c.resolver = ResolveModule(program)
	c.errors = nil

	fs := c.resolver.GlobalScope()
	f := c.newFuncCompiler(nil, fs, nil)
	f.block.Source = src
	f.block.Strict = true
	f.block.ParamCount = len(fs.Params)
	f.block.FunctionName = c.instance.Intern("<module>")

	f.emitPrologue(program.Statements)
	// Hoisted function exports are visible to cyclic importers before the
	// body runs.
	for _, stmt := range program.Statements {
		if ed, ok := stmt.(*parser.ExportDeclaration); ok && ed.Declaration != nil {
			if fd, ok := ed.Declaration.(*parser.FunctionDeclaration); ok {
				f.emitExportBinding(fd.Name.Value, fd.Name)
			}
		}
	}
	for _, stmt := range program.Statements {
		f.compileStatement(stmt)
	}
	f.emit(vm.OpReturnUndefined)
	f.finish()
	return f.block, c.errors
}

func (c *Compiler) internalError(format string, args ...interface{}) {
	c.errors = append(c.errors, &errors.CompileError{
		Msg: fmt.Sprintf(format, args...),
	})
}

func (c *Compiler) errorAt(tok lexer.Token, format string, args ...interface{}) {
	c.errors = append(c.errors, &errors.CompileError{
		Position: errors.Position{Line: tok.Line, Column: tok.Column, StartPos: tok.StartPos, EndPos: tok.EndPos, Source: c.src},
		Msg:      fmt.Sprintf(format, args...),
	})
}

// loopContext tracks the patch lists and scope depths of a breakable
// construct. finallyDepth and iterReg let break/continue route through the
// finally blocks and iterator closes a transfer crosses.
type loopContext struct {
	labels         []string
	breakJumps     []int
	continueJumps  []int
	continueTarget int
	envDepth       int
	withDepth      int
	finallyDepth   int
	isSwitch       bool
	// labelOnly marks a labeled non-loop statement: only a labeled break
	// may target it.
	labelOnly bool
	// iterReg holds the live iterator of a for-of loop; abrupt exits close
	// it. BadRegister otherwise.
	iterReg Register
}

// funcCompiler holds the per-function emission state.
type funcCompiler struct {
	c      *Compiler
	parent *funcCompiler
	fs     *FunctionScope
	block  *vm.CodeBlock

	regs     *RegisterAllocator
	curBlock *BlockScope

	atoms        map[string]uint16
	consts       map[constKey]uint16
	globalCaches map[string]uint16
	srcMap       vm.SourceMapBuilder

	loops []*loopContext
	// pendingLabels are the labels seen on the way down to the statement
	// they annotate; pushLoop claims them.
	pendingLabels []string
	// finallies holds the finally blocks live around the emission point;
	// return/break/continue re-emit them before transferring out.
	finallies []*parser.BlockStatement
	envDepth  int
	withDepth int
	resultReg Register
}

func (c *Compiler) newFuncCompiler(parent *funcCompiler, fs *FunctionScope, fnNode *parser.FunctionLiteral) *funcCompiler {
	block := &vm.CodeBlock{
		Source:                                   c.src,
		Strict:                                   fs.Strict,
		IsArrow:                                  fs.IsArrow,
		UsesArguments:                            fs.UsesArguments,
		CanUseIndexedVariableStorage:             fs.CanUseIndexedVariableStorage,
		CanAllocateEnvironmentOnStack:            fs.CanAllocateEnvironmentOnStack,
		HasAncestorUsesNonIndexedVariableStorage: fs.HasAncestorUsesNonIndexedVariableStorage,
	}
	if parent != nil {
		block.Parent = parent.block
	}
	if fnNode != nil {
		block.ParamCount = len(fnNode.Params)
		if fnNode.Name != nil {
			block.FunctionName = c.instance.Intern(fnNode.Name.Value)
		}
	}
	// Scope descriptor tables.
	block.StackSlotCount = fs.StackSlotCount
	block.StackSlotNames = make([]*vm.Atom, fs.StackSlotCount)
	block.StackSlotLexical = make([]bool, fs.StackSlotCount)
	for _, b := range fs.stackSlots {
		block.StackSlotNames[b.Slot] = c.instance.Intern(b.Name)
		block.StackSlotLexical[b.Slot] = b.Kind.IsLexical()
	}
	for _, bs := range fs.AllocatingBlocks {
		scope := vm.BlockScope{HeapSlotCount: len(bs.heapSlots)}
		scope.HeapSlotNames = make([]*vm.Atom, len(bs.heapSlots))
		scope.LexicalSlots = make([]bool, len(bs.heapSlots))
		for i, b := range bs.heapSlots {
			scope.HeapSlotNames[i] = c.instance.Intern(b.Name)
			scope.LexicalSlots[i] = b.Kind.IsLexical()
		}
		block.BlockScopes = append(block.BlockScopes, scope)
	}
	for _, pb := range fs.Params {
		block.ParamBindings = append(block.ParamBindings, vm.ParamBinding{
			ToHeap: pb.Storage == StorageHeap,
			Slot:   pb.Slot,
		})
		block.ParamNames = append(block.ParamNames, c.instance.Intern(pb.Name))
	}
	block.RegisterCount = vm.RegularRegisterLimit + fs.StackSlotCount

	f := &funcCompiler{
		c:            c,
		parent:       parent,
		fs:           fs,
		block:        block,
		regs:         NewRegisterAllocator(),
		curBlock:     fs.Root,
		atoms:        make(map[string]uint16),
		consts:       make(map[constKey]uint16),
		globalCaches: make(map[string]uint16),
		resultReg:    BadRegister,
	}
	if fs.Root.allocatesEnvironment() {
		// The interpreter pushes the function-level record itself.
		block.FnScopeAllocated = true
		f.envDepth = 1
	}
	return f
}

func (f *funcCompiler) finish() {
	f.block.SourceMap = f.srcMap.Bytes()
}

// emitPrologue hoists function declarations and, at the top level, declares
// global vars and lexicals before any statement runs.
func (f *funcCompiler) emitPrologue(stmts []parser.Statement) {
	if f.fs.IsGlobal {
		for _, b := range f.fs.Root.Order {
			switch b.Storage {
			case StorageGlobalLex:
				f.emitU16(vm.OpDeclareGlobalLexical, f.atomIdx(b.Name), boolByte(b.Kind != BindConst))
			case StorageGlobalVar:
				if b.Kind != BindFunction {
					tmp := f.regs.Alloc()
					f.emit(vm.OpLoadUndefined, byte(tmp))
					f.emitU16(vm.OpInitializeGlobalVariable, f.atomIdx(b.Name), byte(tmp), 0)
					f.regs.Free(tmp)
				}
			}
		}
	}
	// Function declarations are created and bound before the body runs.
	for _, stmt := range stmts {
		if ed, ok := stmt.(*parser.ExportDeclaration); ok && ed.Declaration != nil {
			stmt = ed.Declaration
		}
		fd, ok := stmt.(*parser.FunctionDeclaration)
		if !ok {
			continue
		}
		tmp := f.regs.Alloc()
		f.compileFunctionLiteralInto(fd.Function, tmp)
		f.emitStoreIdentifier(fd.Name.Value, tmp, fd.Name.Token, storeFunctionDecl)
		f.regs.Free(tmp)
	}
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// compileFunctionLiteralInto compiles the nested function and emits
// MakeFunction into dst.
func (f *funcCompiler) compileFunctionLiteralInto(fn *parser.FunctionLiteral, dst Register) {
	fs := f.c.resolver.FunctionScopeFor(fn)
	if fs == nil {
		f.c.internalError("unresolved function literal")
		return
	}
	nested := f.c.newFuncCompiler(f, fs, fn)
	nested.emitFunctionBody(fn)
	idx := uint16(len(f.block.Constants))
	f.block.Constants = append(f.block.Constants, vm.CodeBlockValue(nested.block))
	f.note(fn.Token)
	f.emitRU16(vm.OpMakeFunction, dst, idx)
}

func (f *funcCompiler) emitFunctionBody(fn *parser.FunctionLiteral) {
	if fn.ExprBody != nil {
		r := f.compileExpression(fn.ExprBody, BadRegister)
		f.emit(vm.OpReturn, byte(r))
		f.regs.Free(r)
		f.finish()
		return
	}
	f.emitPrologue(fn.Body.Statements)
	for _, stmt := range fn.Body.Statements {
		f.compileStatement(stmt)
	}
	f.emit(vm.OpReturnUndefined)
	f.finish()
}

// enterBlock switches the emitter into a nested scope, pushing its
// environment record when it allocates one. Returns a closer.
func (f *funcCompiler) enterBlock(b *BlockScope) func() {
	prev := f.curBlock
	f.curBlock = b
	pushed := false
	if b.allocatesEnvironment() {
		f.emitU16(vm.OpPushBlockEnv, uint16(b.HeapIndex))
		f.envDepth++
		pushed = true
	}
	// Lexical bindings of this block start uninitialized on every entry.
	for _, bind := range b.Order {
		bind.initializedSeen = false
	}
	return func() {
		if pushed {
			f.emit(vm.OpPopBlockEnv)
			f.envDepth--
		}
		f.curBlock = prev
	}
}
