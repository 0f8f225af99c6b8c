package driver

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"escargot/pkg/builtins"
	"escargot/pkg/compiler"
	"escargot/pkg/errors"
	"escargot/pkg/modules"
	"escargot/pkg/parser"
	"escargot/pkg/source"
	"escargot/pkg/vm"
)

// InitializeGlobals performs process-wide setup. Call once before creating
// instances; FinalizeGlobals releases it.
func InitializeGlobals() { vm.InitializeGlobals() }

// FinalizeGlobals tears down process-wide state.
func FinalizeGlobals() { vm.FinalizeGlobals() }

// Platform is the host side of module loading: the engine asks it for a
// script when an import needs resolving, and notifies it after a load so
// the host can populate caches. The host is responsible for deduplicating
// by absolute path per context.
type Platform interface {
	OnLoadModule(ctx *Context, referrer *source.SourceFile, specifier string) (*Script, error)
	DidLoadModule(ctx *Context, referrer *source.SourceFile, script *Script)
}

// VMInstance owns the atom table, the shape tree and the promise job
// queue. It may be shared between contexts; sharing embedders serialize
// execution themselves.
type VMInstance struct {
	inst     *vm.Instance
	platform Platform
}

// NewVMInstance creates a shareable instance. platform may be nil for
// hosts that never load modules.
func NewVMInstance(platform Platform) *VMInstance {
	return &VMInstance{inst: vm.NewInstance(platform), platform: platform}
}

// Raw exposes the underlying vm.Instance.
func (i *VMInstance) Raw() *vm.Instance { return i.inst }

// HasPendingPromiseJob reports whether the job queue is non-empty.
func (i *VMInstance) HasPendingPromiseJob() bool { return i.inst.HasPendingPromiseJob() }

// ExecutePendingPromiseJob runs the oldest pending job to completion.
func (i *VMInstance) ExecutePendingPromiseJob() error { return i.inst.ExecutePendingPromiseJob() }

// DrainJobQueue runs pending jobs until the queue is empty. Jobs enqueued
// by a job run after it, never preempting.
func (i *VMInstance) DrainJobQueue() {
	for i.HasPendingPromiseJob() {
		i.ExecutePendingPromiseJob()
	}
}

// Context is one realm: a global object plus everything reachable from it.
type Context struct {
	instance *VMInstance
	ctx      *vm.Context
	loader   *modules.Loader
	parser   *ScriptParser
}

// NewContext creates a realm with its own global object and installed
// builtin library.
func NewContext(instance *VMInstance) (*Context, error) {
	vctx := vm.NewContext(instance.inst)
	if err := builtins.Install(vctx); err != nil {
		return nil, err
	}
	c := &Context{instance: instance, ctx: vctx}
	c.loader = modules.NewLoader(instance.inst, modules.NewFileSystemResolver("."))
	c.parser = &ScriptParser{ctx: c}
	return c, nil
}

// VMInstance returns the owning instance.
func (c *Context) VMInstance() *VMInstance { return c.instance }

// Raw exposes the underlying vm.Context.
func (c *Context) Raw() *vm.Context { return c.ctx }

// ScriptParser returns the context's script parser.
func (c *Context) ScriptParser() *ScriptParser { return c.parser }

// SetModuleResolver swaps the module resolver (tests use the in-memory
// one).
func (c *Context) SetModuleResolver(r modules.Resolver) {
	c.loader = modules.NewLoader(c.instance.inst, r)
}

// DefineGlobal installs a host value on the global object.
func (c *Context) DefineGlobal(name string, v vm.Value) {
	c.ctx.DefineGlobal(name, v)
}

// Script is a parsed and compiled unit ready for execution.
type Script struct {
	ctx    *Context
	src    *source.SourceFile
	block  *vm.CodeBlock
	record *modules.Record // non-nil for module-goal scripts
}

// Source returns the script's source file.
func (s *Script) Source() *source.SourceFile { return s.src }

// ParseError carries the failure arm of InitializeScript.
type ParseError struct {
	Errors []errors.EngineError
}

func (e *ParseError) Error() string {
	if len(e.Errors) == 0 {
		return "parse error"
	}
	return e.Errors[0].Error()
}

// ScriptParser turns source text into executable scripts.
type ScriptParser struct {
	ctx *Context
}

// InitializeScript parses and compiles src. The result is either a script
// handle or a parse error carrying the error list.
func (sp *ScriptParser) InitializeScript(src, name string, isModule bool) (*Script, *ParseError) {
	file := source.New(name, "", src)
	file.IsModule = isModule
	p := parser.New(file)
	program := p.ParseProgram(isModule)
	if len(p.Errors()) > 0 {
		return nil, &ParseError{Errors: p.Errors()}
	}
	comp := compiler.New(sp.ctx.instance.inst)
	var block *vm.CodeBlock
	var cerrs []errors.EngineError
	if isModule {
		block, cerrs = comp.CompileModule(program, file)
	} else {
		block, cerrs = comp.Compile(program, file)
	}
	if len(cerrs) > 0 {
		return nil, &ParseError{Errors: cerrs}
	}
	script := &Script{ctx: sp.ctx, src: file, block: block}
	if isModule {
		script.record = &modules.Record{Path: name, Source: file, Block: block, Program: program}
	}
	return script, nil
}

// ExecutionError is the thrown-value arm of Execute: the script-visible
// error value plus its captured stack trace.
type ExecutionError struct {
	Value vm.Value
	Stack []vm.StackSite
	ctx   *Context
}

func (e *ExecutionError) Error() string {
	return e.ctx.ctx.Inspect(e.Value)
}

// Execute runs the script to completion. Thrown values surface as an
// *ExecutionError; the engine never retries internally.
func (s *Script) Execute() (vm.Value, error) {
	var v vm.Value
	var err error
	if s.record != nil {
		var ns *vm.Object
		ns, err = s.ctx.loader.Evaluate(s.ctx.ctx, s.record)
		if ns != nil {
			v = vm.ObjectValue(ns)
		}
	} else {
		v, err = s.ctx.ctx.VM().RunProgram(s.block)
	}
	if err != nil {
		if thrown, ok := err.(*vm.Thrown); ok {
			return vm.Undefined, &ExecutionError{Value: thrown.Value, Stack: thrown.Stack, ctx: s.ctx}
		}
		return vm.Undefined, err
	}
	return v, nil
}

// Disassemble renders the compiled bytecode for diagnostics.
func (s *Script) Disassemble() string { return s.block.Disassemble() }

// LoadModule resolves one module through the platform when the instance
// has one, falling back to the context's file-system loader. The loader
// deduplicates by absolute path, satisfying the platform contract.
func (c *Context) LoadModule(referrer *source.SourceFile, specifier string) (*Script, error) {
	if c.instance.platform != nil {
		script, err := c.instance.platform.OnLoadModule(c, referrer, specifier)
		if err != nil {
			return nil, err
		}
		c.instance.platform.DidLoadModule(c, referrer, script)
		return script, nil
	}
	dir := ""
	if referrer != nil {
		dir = filepath.Dir(referrer.Path)
	}
	resolver := modules.NewFileSystemResolver(".")
	path, err := resolver.Resolve(dir, specifier)
	if err != nil {
		return nil, err
	}
	rec, errs := c.loader.Load(path)
	if len(errs) > 0 {
		return nil, &ParseError{Errors: errs}
	}
	return &Script{ctx: c, src: rec.Source, block: rec.Block, record: rec}, nil
}

// --- persistent session facade ---

// Engine is a persistent interpreter session: state defined by one
// evaluation is visible to the next.
type Engine struct {
	Instance *VMInstance
	Context  *Context
}

// NewEngine wires an instance and a context with the default platform.
func NewEngine() (*Engine, error) {
	InitializeGlobals()
	inst := NewVMInstance(nil)
	ctx, err := NewContext(inst)
	if err != nil {
		return nil, err
	}
	return &Engine{Instance: inst, Context: ctx}, nil
}

// RunString evaluates source text with script goal and drains the job
// queue afterwards, the cooperative schedule the engine promises.
func (e *Engine) RunString(src string) (vm.Value, error) {
	return e.run(src, "<eval>", false)
}

// RunStringInFile evaluates source text under a display name.
func (e *Engine) RunStringInFile(src, name string, isModule bool) (vm.Value, error) {
	return e.run(src, name, isModule)
}

func (e *Engine) run(src, name string, isModule bool) (vm.Value, error) {
	script, perr := e.Context.ScriptParser().InitializeScript(src, name, isModule)
	if perr != nil {
		return vm.Undefined, perr
	}
	v, err := script.Execute()
	e.Instance.DrainJobQueue()
	return v, err
}

// RunFile evaluates a file, treating .mjs (or an explicit flag) as a
// module.
func (e *Engine) RunFile(path string, forceModule bool) (vm.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return vm.Undefined, &ParseError{Errors: []errors.EngineError{&errors.SyntaxError{Msg: err.Error()}}}
	}
	isModule := forceModule || strings.HasSuffix(path, ".mjs")
	if isModule {
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		rec, errs := e.Context.loader.Load(abs)
		if len(errs) > 0 {
			return vm.Undefined, &ParseError{Errors: errs}
		}
		ns, evalErr := e.Context.loader.Evaluate(e.Context.ctx, rec)
		e.Instance.DrainJobQueue()
		if evalErr != nil {
			if thrown, ok := evalErr.(*vm.Thrown); ok {
				return vm.Undefined, &ExecutionError{Value: thrown.Value, Stack: thrown.Stack, ctx: e.Context}
			}
			return vm.Undefined, evalErr
		}
		return vm.ObjectValue(ns), nil
	}
	return e.run(string(data), path, false)
}

// DisplayResult prints a value or error the way the shell does. Returns
// false when err was non-nil.
func (e *Engine) DisplayResult(v vm.Value, err error) bool {
	if err != nil {
		switch typed := err.(type) {
		case *ParseError:
			for _, pe := range typed.Errors {
				fmt.Fprintln(os.Stderr, pe.Error())
			}
		case *ExecutionError:
			fmt.Fprintln(os.Stderr, "Uncaught "+typed.Error())
			for _, site := range typed.Stack {
				fmt.Fprintf(os.Stderr, "    at %s:%d:%d\n", site.Src, site.Line, site.Column)
			}
		default:
			fmt.Fprintln(os.Stderr, err)
		}
		return false
	}
	fmt.Println(e.Context.ctx.Inspect(v))
	return true
}
