package modules

import (
	"fmt"
	"path/filepath"

	"escargot/pkg/compiler"
	"escargot/pkg/errors"
	"escargot/pkg/parser"
	"escargot/pkg/source"
	"escargot/pkg/vm"
)

// RecordState tracks a module record through its lifecycle. An executing
// record reached again through a cycle exposes its partially-initialized
// namespace instead of re-entering evaluation.
type RecordState uint8

const (
	RecordParsed RecordState = iota
	RecordExecuting
	RecordExecuted
	RecordFailed
)

// Record is one loaded module: its compiled body, its import list in
// parameter order, and the namespace object importers read.
type Record struct {
	Path      string
	Source    *source.SourceFile
	Block     *vm.CodeBlock
	Program   *parser.Program
	Namespace *vm.Object
	State     RecordState
}

// Loader caches module records by canonical path (the host-side dedup the
// platform contract requires) and evaluates them with cyclic imports
// observing the partially-initialized exports object.
type Loader struct {
	instance *vm.Instance
	resolver Resolver
	records  map[string]*Record
}

// NewLoader creates a loader over a resolver.
func NewLoader(instance *vm.Instance, resolver Resolver) *Loader {
	return &Loader{instance: instance, resolver: resolver, records: make(map[string]*Record)}
}

// Load parses and compiles the module at path, reusing a cached record.
func (l *Loader) Load(path string) (*Record, []errors.EngineError) {
	if rec, ok := l.records[path]; ok {
		return rec, nil
	}
	content, err := l.resolver.ReadFile(path)
	if err != nil {
		return nil, []errors.EngineError{&errors.SyntaxError{Msg: err.Error()}}
	}
	src := source.FromFile(path, content)
	src.IsModule = true
	p := parser.New(src)
	program := p.ParseProgram(true)
	if len(p.Errors()) > 0 {
		return nil, p.Errors()
	}
	comp := compiler.New(l.instance)
	block, cerrs := comp.CompileModule(program, src)
	if len(cerrs) > 0 {
		return nil, cerrs
	}
	rec := &Record{Path: path, Source: src, Block: block, Program: program}
	l.records[path] = rec
	return rec, nil
}

// Evaluate runs the module body once, loading and evaluating its
// dependencies first. Returns the namespace object.
func (l *Loader) Evaluate(ctx *vm.Context, rec *Record) (*vm.Object, error) {
	switch rec.State {
	case RecordExecuted, RecordExecuting:
		// A cycle observes the namespace as initialized so far.
		return rec.Namespace, nil
	case RecordFailed:
		return nil, ctx.NewTypeError("module %s failed to evaluate", rec.Path)
	}
	rec.State = RecordExecuting
	rec.Namespace = l.newNamespace(ctx)

	// The module body's parameters are the namespace followed by the
	// imported bindings in source order.
	args := []vm.Value{vm.ObjectValue(rec.Namespace)}
	for _, stmt := range rec.Program.Statements {
		imp, ok := stmt.(*parser.ImportDeclaration)
		if !ok {
			continue
		}
		dep, err := l.loadDependency(ctx, rec, imp.Source)
		if err != nil {
			rec.State = RecordFailed
			return nil, err
		}
		for _, spec := range imp.Specifiers {
			v, err := l.importedValue(ctx, dep, spec.Imported)
			if err != nil {
				rec.State = RecordFailed
				return nil, err
			}
			args = append(args, v)
		}
	}

	fn := ctx.NewFunction(rec.Block, nil, vm.Undefined, false)
	if _, err := ctx.VM().CallFunction(fn, vm.Undefined, args); err != nil {
		rec.State = RecordFailed
		return nil, err
	}
	rec.State = RecordExecuted
	return rec.Namespace, nil
}

func (l *Loader) loadDependency(ctx *vm.Context, referrer *Record, specifier string) (*Record, error) {
	path, err := l.resolver.Resolve(filepath.Dir(referrer.Path), specifier)
	if err != nil {
		return nil, ctx.NewSyntaxErrorValue("%s", err)
	}
	dep, errs := l.Load(path)
	if len(errs) > 0 {
		return nil, ctx.NewSyntaxErrorValue("%s", errs[0].Message())
	}
	if _, err := l.Evaluate(ctx, dep); err != nil {
		return nil, err
	}
	return dep, nil
}

func (l *Loader) importedValue(ctx *vm.Context, dep *Record, imported string) (vm.Value, error) {
	if imported == "*" {
		return vm.ObjectValue(dep.Namespace), nil
	}
	k := vm.AtomKey(l.instance.Intern(imported))
	if !dep.Namespace.HasOwnProperty(ctx, k) {
		return vm.Undefined, ctx.NewSyntaxErrorValue(
			"The requested module '%s' does not provide an export named '%s'", dep.Path, imported)
	}
	return dep.Namespace.Get(ctx, k, vm.ObjectValue(dep.Namespace))
}

func (l *Loader) newNamespace(ctx *vm.Context) *vm.Object {
	ns := vm.NewObjectWithShape(l.instance.RootShape(), vm.Null)
	ns.SetKind(vm.KindModuleNamespace)
	ns.DefineOwn(ctx, vm.SymbolKey(l.instance.WellKnown().ToStringTag), vm.StringValue("Module"), 0)
	return ns
}

// Lookup returns the cached record for path.
func (l *Loader) Lookup(path string) (*Record, bool) {
	rec, ok := l.records[path]
	return rec, ok
}

func (rec *Record) String() string {
	return fmt.Sprintf("module %s", rec.Path)
}
