package compiler

import (
	"escargot/pkg/parser"
	"escargot/pkg/vm"
)

func (f *funcCompiler) compileStatement(stmt parser.Statement) {
	switch s := stmt.(type) {
	case *parser.VariableStatement:
		f.compileVariableStatement(s)
	case *parser.ExpressionStatement:
		if f.resultReg != BadRegister {
			// Top-level expression statements feed the completion value.
			r := f.compileExpression(s.Expression, BadRegister)
			if r != f.resultReg {
				f.emit(vm.OpMove, byte(f.resultReg), byte(r))
			}
			f.regs.Free(r)
			return
		}
		r := f.compileExpression(s.Expression, BadRegister)
		f.regs.Free(r)
	case *parser.BlockStatement:
		f.compileBlock(s)
	case *parser.IfStatement:
		f.compileIf(s)
	case *parser.WhileStatement:
		f.compileWhile(s)
	case *parser.DoWhileStatement:
		f.compileDoWhile(s)
	case *parser.ForStatement:
		f.compileFor(s)
	case *parser.ForInStatement:
		f.compileForIn(s)
	case *parser.ReturnStatement:
		f.compileReturn(s)
	case *parser.ThrowStatement:
		r := f.compileExpression(s.Value, BadRegister)
		f.note(s.Token)
		f.emit(vm.OpThrow, byte(r))
		f.regs.Free(r)
	case *parser.TryStatement:
		f.compileTry(s)
	case *parser.SwitchStatement:
		f.compileSwitch(s)
	case *parser.BreakStatement:
		f.compileBreak(s)
	case *parser.ContinueStatement:
		f.compileContinue(s)
	case *parser.LabeledStatement:
		f.compileLabeled(s)
	case *parser.WithStatement:
		f.compileWith(s)
	case *parser.FunctionDeclaration:
		// Bound in the prologue.
	case *parser.EmptyStatement, *parser.DebuggerStatement:
	case *parser.ImportDeclaration:
		// Import bindings arrive as module parameters.
	case *parser.ExportDeclaration:
		f.compileExport(s)
	default:
		f.c.internalError("cannot lower statement %T", stmt)
	}
}

func (f *funcCompiler) compileVariableStatement(s *parser.VariableStatement) {
	for _, d := range s.Declarators {
		init := d.Init
		if init == nil {
			if s.Kind == parser.DeclVar {
				// Hoisting already provided undefined; a bare var emits
				// nothing at its statement position.
				continue
			}
			// A bare let synthesizes an undefined literal so the ordinary
			// initialization path runs without a special case.
			init = &parser.UndefinedLiteral{Token: d.Name.Token}
		}
		mode := storeInitializer
		if s.Kind == parser.DeclVar {
			mode = storePlain
			// A var initializer is a plain write, but it must not trip the
			// const/TDZ machinery; the resolver made it a var binding.
		}
		src := f.compileExpression(init, BadRegister)
		f.emitStoreIdentifier(d.Name.Value, src, d.Name.Token, mode)
		f.regs.Free(src)
	}
}

func (f *funcCompiler) compileBlock(s *parser.BlockStatement) {
	scope, ok := f.c.resolver.BlockScopeFor(s)
	if !ok {
		for _, stmt := range s.Statements {
			f.compileStatement(stmt)
		}
		return
	}
	leave := f.enterBlock(scope)
	f.hoistBlockFunctions(s.Statements)
	for _, stmt := range s.Statements {
		f.compileStatement(stmt)
	}
	leave()
}

// hoistBlockFunctions binds function declarations at block entry.
func (f *funcCompiler) hoistBlockFunctions(stmts []parser.Statement) {
	for _, stmt := range stmts {
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

func (f *funcCompiler) compileIf(s *parser.IfStatement) {
	cond := f.compileExpression(s.Condition, BadRegister)
	f.note(s.Token)
	elseJump := f.emitJump(vm.OpJumpIfFalse, cond)
	f.regs.Free(cond)
	f.compileStatement(s.Consequence)
	if s.Alternative != nil {
		endJump := f.emitJump(vm.OpJump, 0)
		f.patchJump(elseJump)
		f.compileStatement(s.Alternative)
		f.patchJump(endJump)
	} else {
		f.patchJump(elseJump)
	}
}

func (f *funcCompiler) pushLoop(isSwitch bool) *loopContext {
	lc := &loopContext{
		labels:         f.pendingLabels,
		envDepth:       f.envDepth,
		withDepth:      f.withDepth,
		finallyDepth:   len(f.finallies),
		isSwitch:       isSwitch,
		continueTarget: -1,
		iterReg:        BadRegister,
	}
	f.pendingLabels = nil
	f.loops = append(f.loops, lc)
	return lc
}

func (lc *loopContext) hasLabel(label string) bool {
	for _, l := range lc.labels {
		if l == label {
			return true
		}
	}
	return false
}

func (f *funcCompiler) popLoop(lc *loopContext) {
	for _, site := range lc.breakJumps {
		f.patchJump(site)
	}
	for _, site := range lc.continueJumps {
		if lc.continueTarget >= 0 {
			f.patchJumpTo(site, lc.continueTarget)
		} else {
			f.patchJump(site)
		}
	}
	f.loops = f.loops[:len(f.loops)-1]
}

func (f *funcCompiler) compileWhile(s *parser.WhileStatement) {
	lc := f.pushLoop(false)
	top := len(f.block.Code)
	lc.continueTarget = top
	cond := f.compileExpression(s.Condition, BadRegister)
	exit := f.emitJump(vm.OpJumpIfFalse, cond)
	f.regs.Free(cond)
	f.compileStatement(s.Body)
	f.emitJumpBack(top)
	f.patchJump(exit)
	f.popLoop(lc)
}

func (f *funcCompiler) compileDoWhile(s *parser.DoWhileStatement) {
	lc := f.pushLoop(false)
	top := len(f.block.Code)
	f.compileStatement(s.Body)
	lc.continueTarget = len(f.block.Code)
	cond := f.compileExpression(s.Condition, BadRegister)
	f.note(s.Token)
	exit := f.emitJump(vm.OpJumpIfFalse, cond)
	f.regs.Free(cond)
	f.emitJumpBack(top)
	f.patchJump(exit)
	f.popLoop(lc)
}

func (f *funcCompiler) compileFor(s *parser.ForStatement) {
	scope, _ := f.c.resolver.ForScopeFor(s)
	var leave func()
	if scope != nil {
		leave = f.enterBlock(scope)
	}
	if s.Init != nil {
		f.compileStatement(s.Init)
	}
	lc := f.pushLoop(false)
	top := len(f.block.Code)
	exit := -1
	if s.Condition != nil {
		cond := f.compileExpression(s.Condition, BadRegister)
		exit = f.emitJump(vm.OpJumpIfFalse, cond)
		f.regs.Free(cond)
	}
	f.compileStatement(s.Body)
	lc.continueTarget = len(f.block.Code)
	if s.Update != nil {
		r := f.compileExpression(s.Update, BadRegister)
		f.regs.Free(r)
	}
	f.emitJumpBack(top)
	if exit >= 0 {
		f.patchJump(exit)
	}
	f.popLoop(lc)
	if leave != nil {
		leave()
	}
}

func (f *funcCompiler) compileForIn(s *parser.ForInStatement) {
	scope, _ := f.c.resolver.ForScopeFor(s)
	var leave func()
	if scope != nil {
		leave = f.enterBlock(scope)
	}
	obj := f.compileExpression(s.Object, BadRegister)
	iter := f.regs.Alloc()
	f.note(s.Token)
	if s.IsOf {
		f.emit(vm.OpGetIterator, byte(iter), byte(obj))
	} else {
		f.emit(vm.OpCreateEnumerator, byte(iter), byte(obj))
	}
	f.regs.Free(obj)

	lc := f.pushLoop(false)
	if s.IsOf {
		lc.iterReg = iter
	}
	top := len(f.block.Code)
	lc.continueTarget = top
	value := f.regs.Alloc()
	done := f.regs.Alloc()
	if s.IsOf {
		f.emit(vm.OpIteratorStep, byte(value), byte(done), byte(iter))
	} else {
		f.emit(vm.OpEnumeratorNext, byte(value), byte(done), byte(iter))
	}
	exit := f.emitJump(vm.OpJumpIfTrue, done)
	bodyStart := len(f.block.Code)
	mode := storePlain
	if s.Declare {
		mode = storeInitializer
	}
	f.emitStoreIdentifier(s.Name.Value, value, s.Name.Token, mode)
	f.compileStatement(s.Body)
	bodyEnd := len(f.block.Code)
	f.emitJumpBack(top)
	f.patchJump(exit)
	if s.IsOf {
		// A throw escaping the body closes the iterator before it keeps
		// unwinding. A throw out of next() itself does not close.
		overCleanup := f.emitJump(vm.OpJump, 0)
		rethrow := f.regs.Alloc()
		f.block.Handlers = append(f.block.Handlers, vm.ExceptionHandler{
			Start: bodyStart, End: bodyEnd, HandlerPC: len(f.block.Code),
			CatchReg: byte(rethrow), Kind: vm.HandlerFinally,
			EnvDepth: f.envDepth, WithDepth: f.withDepth,
		})
		f.emit(vm.OpIteratorClose, byte(iter))
		f.emit(vm.OpThrow, byte(rethrow))
		f.regs.Free(rethrow)
		f.patchJump(overCleanup)
	}
	f.popLoop(lc)
	f.regs.Free(done)
	f.regs.Free(value)
	f.regs.Free(iter)
	if leave != nil {
		leave()
	}
}

func (f *funcCompiler) compileReturn(s *parser.ReturnStatement) {
	var r Register = BadRegister
	if s.Value != nil {
		r = f.compileExpression(s.Value, BadRegister)
	}
	// Live for-of iterators close, then the wrapping finally blocks run,
	// innermost first.
	for i := len(f.loops) - 1; i >= 0; i-- {
		if f.loops[i].iterReg != BadRegister {
			f.emit(vm.OpIteratorClose, byte(f.loops[i].iterReg))
		}
	}
	for i := len(f.finallies) - 1; i >= 0; i-- {
		f.compileBlock(f.finallies[i])
	}
	f.note(s.Token)
	if r == BadRegister {
		f.emit(vm.OpReturnUndefined)
	} else {
		f.emit(vm.OpReturn, byte(r))
		f.regs.Free(r)
	}
}

// findBreakTarget locates the context a break transfers to: the labeled
// construct, or the innermost breakable one.
func (f *funcCompiler) findBreakTarget(label string) int {
	for i := len(f.loops) - 1; i >= 0; i-- {
		lc := f.loops[i]
		if label == "" {
			if !lc.labelOnly {
				return i
			}
		} else if lc.hasLabel(label) {
			return i
		}
	}
	return -1
}

// leaveTowards emits the unwinding a transfer out to f.loops[target] needs:
// the finally blocks entered inside the target run (innermost first), the
// for-of iterators of the loops being exited close, and the block/with
// scopes pop back to the target's depths. closeTarget includes the target
// loop's own iterator (break) or leaves it live (continue).
func (f *funcCompiler) leaveTowards(target int, closeTarget bool) {
	lc := f.loops[target]
	for i := len(f.finallies) - 1; i >= lc.finallyDepth; i-- {
		f.compileBlock(f.finallies[i])
	}
	for i := len(f.loops) - 1; i >= target; i-- {
		if i == target && !closeTarget {
			break
		}
		if f.loops[i].iterReg != BadRegister {
			f.emit(vm.OpIteratorClose, byte(f.loops[i].iterReg))
		}
	}
	for i := 0; i < f.envDepth-lc.envDepth; i++ {
		f.emit(vm.OpPopBlockEnv)
	}
	for i := 0; i < f.withDepth-lc.withDepth; i++ {
		f.emit(vm.OpPopWithScope)
	}
}

func (f *funcCompiler) compileBreak(s *parser.BreakStatement) {
	target := f.findBreakTarget(s.Label)
	if target < 0 {
		if s.Label != "" {
			f.c.errorAt(s.Token, "undefined label '%s'", s.Label)
		} else {
			f.c.errorAt(s.Token, "illegal break statement")
		}
		return
	}
	f.leaveTowards(target, true)
	lc := f.loops[target]
	lc.breakJumps = append(lc.breakJumps, f.emitJump(vm.OpJump, 0))
}

func (f *funcCompiler) compileContinue(s *parser.ContinueStatement) {
	target := -1
	for i := len(f.loops) - 1; i >= 0; i-- {
		lc := f.loops[i]
		if lc.isSwitch || lc.labelOnly {
			continue
		}
		if s.Label == "" || lc.hasLabel(s.Label) {
			target = i
			break
		}
	}
	if target < 0 {
		if s.Label != "" {
			f.c.errorAt(s.Token, "undefined label '%s'", s.Label)
		} else {
			f.c.errorAt(s.Token, "illegal continue statement")
		}
		return
	}
	// The target loop's own iterator stays live across a continue.
	f.leaveTowards(target, false)
	lc := f.loops[target]
	lc.continueJumps = append(lc.continueJumps, f.emitJump(vm.OpJump, 0))
}

// compileLabeled attaches the label to the annotated construct. Loops and
// switches claim it through pushLoop; any other statement gets a synthetic
// break-only context so `label: { ... break label; ... }` works.
func (f *funcCompiler) compileLabeled(s *parser.LabeledStatement) {
	f.pendingLabels = append(f.pendingLabels, s.Label.Value)
	switch s.Body.(type) {
	case *parser.ForStatement, *parser.ForInStatement, *parser.WhileStatement,
		*parser.DoWhileStatement, *parser.SwitchStatement, *parser.LabeledStatement:
		f.compileStatement(s.Body)
	default:
		lc := f.pushLoop(false)
		lc.labelOnly = true
		f.compileStatement(s.Body)
		f.popLoop(lc)
	}
}

func (f *funcCompiler) compileTry(s *parser.TryStatement) {
	if s.Finally != nil {
		f.finallies = append(f.finallies, s.Finally)
	}

	tryStart := len(f.block.Code)
	f.compileBlock(s.Block)
	tryEnd := len(f.block.Code)
	overCatch := f.emitJump(vm.OpJump, 0)

	if s.Catch != nil {
		catchReg := f.regs.Alloc()
		handlerPC := len(f.block.Code)
		f.block.Handlers = append(f.block.Handlers, vm.ExceptionHandler{
			Start: tryStart, End: tryEnd, HandlerPC: handlerPC,
			CatchReg: byte(catchReg), Kind: vm.HandlerCatch,
			EnvDepth: f.envDepth, WithDepth: f.withDepth,
		})
		scope, _ := f.c.resolver.BlockScopeFor(s.Catch)
		var leave func()
		if scope != nil {
			leave = f.enterBlock(scope)
		}
		if s.CatchParam != nil {
			f.emitStoreIdentifier(s.CatchParam.Value, catchReg, s.CatchParam.Token, storeInitializer)
		}
		f.regs.Free(catchReg)
		// A throw inside the catch body falls outside this handler's range
		// and reaches the finally handler registered below.
		for _, stmt := range s.Catch.Statements {
			f.compileStatement(stmt)
		}
		if leave != nil {
			leave()
		}
	}
	f.patchJump(overCatch)

	if s.Finally != nil {
		f.finallies = f.finallies[:len(f.finallies)-1]
		coveredEnd := len(f.block.Code)
		// Normal completion path.
		f.compileBlock(s.Finally)
		overHandler := f.emitJump(vm.OpJump, 0)
		// Abrupt completion path: run the finally body, then rethrow.
		rethrowReg := f.regs.Alloc()
		handlerPC := len(f.block.Code)
		f.block.Handlers = append(f.block.Handlers, vm.ExceptionHandler{
			Start: tryStart, End: coveredEnd, HandlerPC: handlerPC,
			CatchReg: byte(rethrowReg), Kind: vm.HandlerFinally,
			EnvDepth: f.envDepth, WithDepth: f.withDepth,
		})
		f.compileBlock(s.Finally)
		f.emit(vm.OpThrow, byte(rethrowReg))
		f.regs.Free(rethrowReg)
		f.patchJump(overHandler)
	}
}

func (f *funcCompiler) compileSwitch(s *parser.SwitchStatement) {
	disc := f.compileExpression(s.Discriminant, BadRegister)
	scope, _ := f.c.resolver.ForScopeFor(s)
	var leave func()
	if scope != nil {
		leave = f.enterBlock(scope)
	}
	lc := f.pushLoop(true)

	match := f.regs.Alloc()
	var caseJumps []int
	defaultIdx := -1
	for i, c := range s.Cases {
		if c.Test == nil {
			defaultIdx = i
			caseJumps = append(caseJumps, -1)
			continue
		}
		test := f.compileExpression(c.Test, BadRegister)
		f.emit(vm.OpStrictEqual, byte(match), byte(disc), byte(test))
		f.regs.Free(test)
		caseJumps = append(caseJumps, f.emitJump(vm.OpJumpIfTrue, match))
	}
	f.regs.Free(match)
	f.regs.Free(disc)
	defaultJump := f.emitJump(vm.OpJump, 0)

	bodyStarts := make([]int, len(s.Cases))
	for i, c := range s.Cases {
		bodyStarts[i] = len(f.block.Code)
		f.hoistBlockFunctions(c.Body)
		for _, stmt := range c.Body {
			f.compileStatement(stmt)
		}
	}
	for i, site := range caseJumps {
		if site >= 0 {
			f.patchJumpTo(site, bodyStarts[i])
		}
	}
	if defaultIdx >= 0 {
		f.patchJumpTo(defaultJump, bodyStarts[defaultIdx])
	} else {
		f.patchJump(defaultJump)
	}
	f.popLoop(lc)
	if leave != nil {
		leave()
	}
}

func (f *funcCompiler) compileWith(s *parser.WithStatement) {
	if f.fs.Strict {
		f.c.errorAt(s.Token, "strict mode code may not include a with statement")
		return
	}
	obj := f.compileExpression(s.Object, BadRegister)
	f.note(s.Token)
	f.emit(vm.OpPushWithScope, byte(obj))
	f.regs.Free(obj)
	f.withDepth++
	f.compileStatement(s.Body)
	f.emit(vm.OpPopWithScope)
	f.withDepth--
}

// compileExport lowers export declarations inside a module body. The
// namespace object arrives as the module's first parameter; exports write
// through it so cyclic importers observe the partially-initialized set.
func (f *funcCompiler) compileExport(s *parser.ExportDeclaration) {
	if s.Declaration != nil {
		f.compileStatement(s.Declaration)
		switch decl := s.Declaration.(type) {
		case *parser.VariableStatement:
			for _, d := range decl.Declarators {
				f.emitExportBinding(d.Name.Value, d.Name)
			}
		case *parser.FunctionDeclaration:
			f.emitExportBinding(decl.Name.Value, decl.Name)
		}
		return
	}
	if s.IsDefault {
		val := f.compileExpression(s.Default, BadRegister)
		ns := f.emitLoadIdentifier(moduleNamespaceParam, s.Token, BadRegister)
		hi, lo := u16(f.atomIdx("default"))
		f.emit(vm.OpSetPropByName, byte(ns), hi, lo, byte(val))
		f.regs.Free(ns)
		f.regs.Free(val)
		return
	}
	for _, name := range s.Names {
		f.emitExportBinding(name.Value, name)
	}
}

func (f *funcCompiler) emitExportBinding(name string, id *parser.Identifier) {
	val := f.emitLoadIdentifier(name, id.Token, BadRegister)
	ns := f.emitLoadIdentifier(moduleNamespaceParam, id.Token, BadRegister)
	hi, lo := u16(f.atomIdx(name))
	f.emit(vm.OpSetPropByName, byte(ns), hi, lo, byte(val))
	f.regs.Free(ns)
	f.regs.Free(val)
}
