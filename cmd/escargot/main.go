package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"escargot/pkg/driver"
	"escargot/pkg/vm"
)

const prompt = "escargot> "

// exit code 3 flags a parse or load failure, matching the embedding
// contract. An uncaught exception from -e or a file also exits with 3.
const exitParseFailure = 3

func main() {
	shellFlag := flag.Bool("shell", false, "force interactive mode")
	moduleFlag := flag.Bool("module", false, "treat the next positional file as a module")
	exprFlag := flag.String("e", "", "evaluate the given source string")
	bytecodeFlag := flag.Bool("bytecode", false, "print compiled bytecode before execution")
	flag.Parse()

	engine, err := driver.NewEngine()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer driver.FinalizeGlobals()
	installShellGlobals(engine)

	if *bytecodeFlag {
		shellShowBytecode = true
	}

	exitCode := 0
	if *exprFlag != "" {
		if !engine.DisplayResult(engine.RunString(*exprFlag)) {
			exitCode = exitParseFailure
		}
	}

	for i, file := range flag.Args() {
		v, err := engine.RunFile(file, (*moduleFlag && i == 0) || strings.HasSuffix(file, ".mjs"))
		if err != nil {
			engine.DisplayResult(v, err)
			exitCode = exitParseFailure
			break
		}
	}

	if *shellFlag || (*exprFlag == "" && flag.NArg() == 0) {
		runShell(engine)
		return
	}
	os.Exit(exitCode)
}

var shellShowBytecode bool

func runShell(engine *driver.Engine) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		fmt.Print(prompt)
		if !scanner.Scan() {
			fmt.Println()
			return
		}
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if shellShowBytecode {
			if script, perr := engine.Context.ScriptParser().InitializeScript(line, "<shell>", false); perr == nil {
				fmt.Print(script.Disassemble())
			}
		}
		engine.DisplayResult(engine.RunString(line))
	}
}

// installShellGlobals wires the reference host's primitives: print, read,
// load, run and gc.
func installShellGlobals(engine *driver.Engine) {
	ctx := engine.Context.Raw()

	engine.Context.DefineGlobal("print", vm.ObjectValue(ctx.NewNativeFunction("print", 1,
		func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
			parts := make([]string, len(args))
			for i, a := range args {
				s, err := ctx.ToString(a)
				if err != nil {
					return vm.Undefined, err
				}
				parts[i] = s.String()
			}
			fmt.Println(strings.Join(parts, " "))
			return vm.Undefined, nil
		})))

	engine.Context.DefineGlobal("read", vm.ObjectValue(ctx.NewNativeFunction("read", 1,
		func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
			path, err := shellPathArg(ctx, args)
			if err != nil {
				return vm.Undefined, err
			}
			data, rerr := os.ReadFile(path)
			if rerr != nil {
				return vm.Undefined, ctx.ThrowError(vm.ErrorKindError, "cannot read %s: %s", path, rerr)
			}
			return vm.StringValue(string(data)), nil
		})))

	engine.Context.DefineGlobal("load", vm.ObjectValue(ctx.NewNativeFunction("load", 1,
		func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
			path, err := shellPathArg(ctx, args)
			if err != nil {
				return vm.Undefined, err
			}
			data, rerr := os.ReadFile(path)
			if rerr != nil {
				return vm.Undefined, ctx.ThrowError(vm.ErrorKindError, "cannot load %s: %s", path, rerr)
			}
			v, lerr := engine.RunStringInFile(string(data), path, strings.HasSuffix(path, ".mjs"))
			if lerr != nil {
				if exec, ok := lerr.(*driver.ExecutionError); ok {
					return vm.Undefined, vm.Throw(exec.Value)
				}
				return vm.Undefined, ctx.NewSyntaxErrorValue("%s", lerr)
			}
			return v, nil
		})))

	engine.Context.DefineGlobal("run", vm.ObjectValue(ctx.NewNativeFunction("run", 1,
		func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
			path, err := shellPathArg(ctx, args)
			if err != nil {
				return vm.Undefined, err
			}
			data, rerr := os.ReadFile(path)
			if rerr != nil {
				return vm.Undefined, ctx.ThrowError(vm.ErrorKindError, "cannot run %s: %s", path, rerr)
			}
			start := time.Now()
			if _, lerr := engine.RunStringInFile(string(data), path, false); lerr != nil {
				if exec, ok := lerr.(*driver.ExecutionError); ok {
					return vm.Undefined, vm.Throw(exec.Value)
				}
				return vm.Undefined, ctx.NewSyntaxErrorValue("%s", lerr)
			}
			elapsed := float64(time.Since(start).Microseconds()) / 1000.0
			return vm.Number(elapsed), nil
		})))

	engine.Context.DefineGlobal("gc", vm.ObjectValue(ctx.NewNativeFunction("gc", 0,
		func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
			collectGarbage()
			return vm.Undefined, nil
		})))
}

func shellPathArg(ctx *vm.Context, args []vm.Value) (string, error) {
	if len(args) == 0 {
		return "", ctx.NewTypeError("path argument required")
	}
	s, err := ctx.ToString(args[0])
	if err != nil {
		return "", err
	}
	return s.String(), nil
}
