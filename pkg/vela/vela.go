// Package vela is the embedding surface: the Go analogue of cyber.h. A
// host program constructs one VM per independent interpreter instance,
// feeds it bytecode text, and inspects or drives values through the
// functions here rather than reaching into pkg/vm directly.
package vela

import (
	"fmt"

	"vela/pkg/asm"
	"vela/pkg/bytecode"
	"vela/pkg/config"
	"vela/pkg/errors"
	"vela/pkg/gc"
	"vela/pkg/object"
	"vela/pkg/symbols"
	"vela/pkg/value"
	"vela/pkg/vm"

	"go.uber.org/zap"
)

// ResultCode mirrors spec.md §6's eval/validate return values verbatim.
type ResultCode int

const (
	Success ResultCode = iota
	ResultToken
	ResultParse
	ResultCompile
	ResultPanic
	ResultUnknown
)

func (r ResultCode) String() string {
	switch r {
	case Success:
		return "Success"
	case ResultToken:
		return "Token"
	case ResultParse:
		return "Parse"
	case ResultCompile:
		return "Compile"
	case ResultPanic:
		return "Panic"
	default:
		return "Unknown"
	}
}

func resultCodeFor(kind errors.Kind) ResultCode {
	switch kind {
	case errors.Token:
		return ResultToken
	case errors.Parse:
		return ResultParse
	case errors.Compile:
		return ResultCompile
	case errors.Panic, errors.TypeError, errors.DivByZero, errors.OutOfMemory, errors.StackOverflow, errors.NotFound:
		// Runtime faults all surface as Panic at the embedding boundary —
		// spec.md §6's ResultCode table has no separate slot per runtime
		// Kind, only the coarser stage-level Token/Parse/Compile/Panic
		// split; pkg/errors' finer Kind is still available for host
		// inspection through AllocLastErrorReport.
		return ResultPanic
	default:
		return ResultUnknown
	}
}

// ModuleResolver and ModuleLoader mirror spec.md §6's external module
// system hooks field-for-field. Neither is consulted by Eval in this port
// since source compilation (where the real engine would resolve imports)
// is out of scope here — pkg/asm's textual bytecode has no import syntax.
// They are wired into the VM struct so a host embedding this package in a
// larger system has the same registration points the original API
// promises, ready for a future compiler front end to call.
type ModuleResolver func(curURI, spec string) (resolvedURI string, ok bool)

type ModuleLoader struct {
	Src        string
	FuncLoader func(name string) (symbols.NativeFn, bool)
	VarLoader  func(name string) (value.Value, bool)
	TypeLoader func(name string) (object.TypeID, bool)
	PreLoad    func()
	PostLoad   func()
	Destroy    func()
}

// VM is one embeddable interpreter instance.
type VM struct {
	engine *vm.VM
	log    *zap.Logger

	lastErr errors.VelaError
	print   func(string)

	resolver ModuleResolver
	loaders  map[string]ModuleLoader
}

// New constructs a VM with default tuning (see pkg/config). Deinit must be
// called exactly once when the host is done with it.
func New() *VM {
	return NewWithConfig(config.Default())
}

// NewWithConfig constructs a VM with host-supplied tuning.
func NewWithConfig(cfg config.Config) *VM {
	log, _ := zap.NewDevelopment()
	if log == nil {
		log = zap.NewNop()
	}
	v := &VM{
		engine:  vm.New(cfg, log),
		log:     log,
		print:   func(s string) { fmt.Print(s) },
		loaders: make(map[string]ModuleLoader),
	}
	v.engine.Funcs.Add(symbols.FuncEntry{
		Kind:   symbols.FuncNative,
		Arity:  1,
		Native: func(args []value.Value) value.Value { return v.builtinPrint(args) },
		Name:   "print",
	})
	return v
}

// builtinPrint backs the print symbol registered at startup (symId 0),
// reachable from assembled bytecode via `CallSym R_, s0, argStart, #1`.
// It writes its single argument's text form followed by a newline to the
// sink installed by SetPrint.
func (v *VM) builtinPrint(args []value.Value) value.Value {
	if len(args) == 0 {
		v.print("\n")
		return value.None()
	}
	v.print(v.formatValue(args[0]) + "\n")
	return value.None()
}

// formatValue renders a Value for the built-in print() the way a host
// terminal would display it — this port has no user-facing pretty-printer
// (that's a front-end concern, out of scope), so it covers only the
// primitive tags and the string-shaped heap kinds stringText already knows.
func (v *VM) formatValue(val value.Value) string {
	switch {
	case value.IsNone(val):
		return "none"
	case value.IsBool(val):
		return fmt.Sprintf("%t", value.AsBool(val))
	case value.IsInteger(val):
		return fmt.Sprintf("%d", value.AsInteger(val))
	case value.IsDouble(val):
		return fmt.Sprintf("%g", value.AsDouble(val))
	case value.IsStaticString(val):
		return v.engine.StringText(val)
	case value.IsPointer(val):
		if s := v.engine.StringText(val); s != "" {
			return s
		}
		return fmt.Sprintf("<object typeID=%d>", object.TypeIDOf(val))
	default:
		return "<value>"
	}
}

// Deinit runs a final cycle-collection pass. Per spec.md §6, the global
// reference count must be zero afterward for any well-formed program that
// does not intentionally leak (testable property P2).
func (v *VM) Deinit() {
	v.engine.GC.PerformGC(v.engine.Manager)
}

// Eval assembles src (this port's stand-in for compiled source — see
// DESIGN.md's Open Question resolution on what "source" means here) and
// runs it as a top-level script, returning its result value and the
// spec's ResultCode.
func (v *VM) Eval(src string) (value.Value, ResultCode) {
	chunk, err := asm.Assemble("<eval>", src)
	if err != nil {
		v.lastErr = errors.New(errors.Token, errors.Position{}, "%s", err.Error())
		return value.None(), ResultToken
	}
	res := v.engine.Eval(chunk)
	if res.Err != nil {
		v.lastErr = res.Err
		return value.None(), resultCodeFor(res.Err.Kind())
	}
	return res.Value, Success
}

// Validate assembles src without executing it, surfacing only whether it
// would load.
func (v *VM) Validate(src string) ResultCode {
	if _, err := asm.Assemble("<validate>", src); err != nil {
		v.lastErr = errors.New(errors.Token, errors.Position{}, "%s", err.Error())
		return ResultToken
	}
	return Success
}

// AllocLastErrorReport renders the most recent error as a host-readable
// string, matching spec.md §6's allocLastErrorReport naming (the "Alloc"
// prefix is the original API's convention for "caller owns the returned
// buffer" — a non-issue for a Go string, kept for naming fidelity).
func (v *VM) AllocLastErrorReport() string {
	if v.lastErr == nil {
		return ""
	}
	return v.lastErr.Error()
}

// Retain increments v's reference count (a no-op for non-heap values).
func (v *VM) Retain(val value.Value) { v.engine.Manager.Retain(val) }

// Release decrements v's reference count, freeing it (and cascading
// through anything it alone kept alive) once it reaches zero.
func (v *VM) Release(val value.Value) { v.engine.Manager.Release(val) }

// PerformGC runs one trial-deletion pass over the live heap. Per spec.md
// §5 the caller must not be inside Eval when calling this.
func (v *VM) PerformGC() gc.Result {
	return v.engine.GC.PerformGC(v.engine.Manager)
}

// GetGlobalRC reports the live strong-reference count, meaningful only
// when the VM was configured with TrackGlobalRC.
func (v *VM) GetGlobalRC() int64 { return v.engine.Manager.GlobalRC() }

// SetPrint replaces the sink the built-in print() native function writes
// to; defaults to stdout.
func (v *VM) SetPrint(fn func(string)) {
	if fn == nil {
		fn = func(string) {}
	}
	v.print = fn
}

// RegisterHostFunc binds a native Go function under name, returning the
// symbol id host bytecode (assembled via pkg/asm's CallSym) refers to it
// by. Mirrors spec.md §6's funcLoader for the "Standard" kind; this port
// has no Quicken-variant distinction at registration time since every
// CallNativeFuncIC site installs its own cache lazily on first dispatch
// (see pkg/vm's IC side-table). Symbol id 0 is always the built-in print()
// installed by New/NewWithConfig, so the first host-registered function
// gets symbol id 1.
func (v *VM) RegisterHostFunc(name string, arity int, fn func(args []value.Value) value.Value) int {
	return v.engine.Funcs.Add(symbols.FuncEntry{
		Kind:   symbols.FuncNative,
		Arity:  arity,
		Native: fn,
		Name:   name,
	})
}

// RegisterHostMethod binds a native Go function as a method on typeID,
// resolved by CallObjSym/CallObjFuncIC/CallObjNativeFuncIC at symID.
// Mirrors spec.md §6's typeLoader registration path for host-provided
// methods on a host-defined type.
func (v *VM) RegisterHostMethod(typeID object.TypeID, symID int, arity int, name string, fn func(args []value.Value) value.Value) {
	v.engine.Methods.Register(typeID, symID, symbols.FuncEntry{
		Kind:   symbols.FuncNative,
		Arity:  arity,
		Native: fn,
		Name:   name,
	})
}

// RegisterHostType allocates and returns a fresh TypeID for a host-defined
// object kind, mirroring typeLoader's typeIdOut output.
func (v *VM) RegisterHostType() object.TypeID {
	return v.engine.NextHostTypeID()
}

// SetModuleResolver installs the host's (curURI, spec) -> resolvedURI
// resolver, per spec.md §6. Unused by Eval in this port (see ModuleLoader
// doc comment) but retained so a future compiler front end has the same
// registration point the original API promises.
func (v *VM) SetModuleResolver(r ModuleResolver) { v.resolver = r }

// RegisterModuleLoader installs the loader for a resolved module URI.
func (v *VM) RegisterModuleLoader(resolvedURI string, loader ModuleLoader) {
	v.loaders[resolvedURI] = loader
}

// Disassemble renders chunk's instruction stream in the same textual form
// cmd/vela's disasm subcommand prints.
func Disassemble(chunk *bytecode.Chunk) string { return chunk.Disassemble() }

// Assemble exposes pkg/asm's textual format directly, for hosts that want
// a Chunk without going through Eval (e.g. to disassemble before running).
func Assemble(name, src string) (*bytecode.Chunk, error) { return asm.Assemble(name, src) }
