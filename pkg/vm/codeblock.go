package vm

import (
	"escargot/pkg/source"
)

// RegularRegisterLimit is the boundary of the register file: registers below
// it are expression temporaries managed as a stack by the emitter, registers
// at and above it identify stack-allocated locals directly by
// RegularRegisterLimit + slot index.
const RegularRegisterLimit = 128

// HandlerKind distinguishes catch from finally entries in the handler table.
type HandlerKind uint8

const (
	HandlerCatch HandlerKind = iota
	HandlerFinally
)

// ExceptionHandler covers the bytecode range [Start, End); when a throw
// unwinds into the range, control transfers to HandlerPC with the thrown
// value in CatchReg. EnvDepth is the number of block environments live at
// try entry; the interpreter pops back down to it before entering the
// handler.
type ExceptionHandler struct {
	Start     int
	End       int
	HandlerPC int
	CatchReg  byte
	Kind      HandlerKind
	EnvDepth  int
	WithDepth int
}

// ParamBinding maps one formal parameter to its storage.
type ParamBinding struct {
	ToHeap bool
	Slot   int // stack slot index, or heap slot in BlockScopes[0]
}

// GlobalCache is a global variable cache slot: it remembers the global
// object's shape and the resolved slot offset from the last successful
// access. A shape mismatch falls back to the generic lookup and refreshes
// the cache.
type GlobalCache struct {
	Name   *Atom
	shape  *Shape
	offset int
}

// CodeBlock is the compiled unit for one function body or program. It owns
// the bytecode stream, the constant pool, the delta-encoded source-location
// side table, the scope descriptor the interpreter binds parameters and
// locals with, and the static flags the emitter derived from the resolver.
type CodeBlock struct {
	Code      []byte
	Constants []Value
	Atoms     []*Atom
	SourceMap []byte
	Handlers  []ExceptionHandler

	FunctionName *Atom
	Source       *source.SourceFile
	Parent       *CodeBlock

	// Scope descriptor. BlockScopes lists the allocating scopes in creation
	// order; the emitter's PushBlockEnv operands index into it.
	ParamCount       int
	ParamNames       []*Atom
	ParamBindings    []ParamBinding
	StackSlotCount   int
	StackSlotNames   []*Atom
	StackSlotLexical []bool // slots that start in the TDZ
	BlockScopes      []BlockScope
	// FnScopeAllocated is set when BlockScopes[0] is the function-level
	// scope; the interpreter pushes that record itself at activation.
	FnScopeAllocated bool
	RegisterCount    int // RegularRegisterLimit + StackSlotCount

	GlobalCaches []GlobalCache

	// Flags.
	Strict                                   bool
	IsArrow                                  bool
	UsesArguments                            bool
	CanUseIndexedVariableStorage             bool
	CanAllocateEnvironmentOnStack            bool
	HasAncestorUsesNonIndexedVariableStorage bool
}

// ErrorKind enumerates the script-visible error families. ThrowStaticError
// carries one of these.
type ErrorKind uint8

const (
	ErrorKindError ErrorKind = iota
	ErrorKindSyntaxError
	ErrorKindReferenceError
	ErrorKindTypeError
	ErrorKindRangeError
	ErrorKindURIError
	ErrorKindEvalError
)

// Name returns the constructor name for the error kind.
func (k ErrorKind) Name() string {
	switch k {
	case ErrorKindSyntaxError:
		return "SyntaxError"
	case ErrorKindReferenceError:
		return "ReferenceError"
	case ErrorKindTypeError:
		return "TypeError"
	case ErrorKindRangeError:
		return "RangeError"
	case ErrorKindURIError:
		return "URIError"
	case ErrorKindEvalError:
		return "EvalError"
	}
	return "Error"
}

// PositionForPC converts a bytecode offset into 1-based line/column through
// the source map.
func (cb *CodeBlock) PositionForPC(pc int) (line, column int) {
	offset := cb.SourceOffsetForPC(pc)
	if cb.Source == nil {
		return 0, 0
	}
	line, column = 1, 1
	for i, ch := range cb.Source.Content {
		if i >= offset {
			break
		}
		if ch == '\n' {
			line++
			column = 1
		} else {
			column++
		}
	}
	return line, column
}
