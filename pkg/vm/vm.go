package vm

import (
	"strings"

	"vela/pkg/bytecode"
	"vela/pkg/config"
	"vela/pkg/errors"
	"vela/pkg/gc"
	"vela/pkg/memory"
	"vela/pkg/object"
	"vela/pkg/symbols"
	"vela/pkg/value"

	"go.uber.org/zap"
)

// Debug flags — runtime booleans rather than compile-time #if guards,
// since Go has no equivalent of conditional compilation for this; cheap
// to check, off by default, matching the teacher's debugVM/debugCalls
// gating idiom in pkg/vm/vm.go.
const (
	debugVM    = false
	debugCalls = false
)

// Result is the outcome of one dispatch-loop run, mirroring spec.md §6's
// eval() contract.
type Result struct {
	Value value.Value
	Err   errors.VelaError
}

// VM is one self-contained interpreter instance: its own heap, symbol
// tables, and frame stack. Per spec.md §5, VM instances share nothing.
type VM struct {
	Manager *memory.Manager
	GC      *gc.Collector
	Funcs   *symbols.FuncTable
	Methods *symbols.MethodTable
	Interns *symbols.Interner

	frames *FrameStack
	cfg    config.Config
	log    *zap.Logger

	// callSiteICs is the parallel IC side-table spec.md §9's design notes
	// describe as the alternative to self-modifying bytecode: keyed by
	// the byte offset of the call/field instruction that owns the cache.
	callSiteICs  map[int]*symbols.ICState
	fieldSiteICs map[int]*symbols.FieldICState
	currentFiber *object.Fiber

	// globals backs the StaticVar/StaticFunc opcode family (SPEC_FULL
	// "Supplemented features"): module-level bindings keyed by the symbol
	// id the (out-of-scope) compiler assigned them.
	globals map[uint32]value.Value

	// stopDepth is the frame-stack depth runUntil returns control at: 0
	// for the top-level script, or the depth captured by Coresume so a
	// fiber body's Coyield/Coreturn hands control back to its resumer
	// rather than ending the whole program.
	stopDepth int

	// nextHostTypeID hands out TypeIDs for host-registered object kinds
	// (the embedding surface's typeLoader.typeIdOut), starting one past
	// the highest builtin id so host and builtin types never collide.
	nextHostTypeID object.TypeID
}

// New constructs a VM with its own heap and symbol tables.
func New(cfg config.Config, log *zap.Logger) *VM {
	if log == nil {
		log = zap.NewNop()
	}
	return &VM{
		Manager:        memory.NewManager(cfg.TrackGlobalRC, log),
		GC:             gc.New(log),
		Funcs:          symbols.NewFuncTable(),
		Methods:        symbols.NewMethodTable(),
		Interns:        symbols.NewInterner(),
		frames:         NewFrameStack(cfg.MaxFrames, cfg.MaxRegisters),
		cfg:            cfg,
		log:            log,
		callSiteICs:    make(map[int]*symbols.ICState),
		fieldSiteICs:   make(map[int]*symbols.FieldICState),
		globals:        make(map[uint32]value.Value),
		nextHostTypeID: object.TypeInstance + 1,
	}
}

// NextHostTypeID allocates a fresh TypeID for a host-registered object
// kind, mirroring the embedding surface's typeLoader.typeIdOut output.
func (vm *VM) NextHostTypeID() object.TypeID {
	id := vm.nextHostTypeID
	vm.nextHostTypeID++
	return id
}

// StringText exposes stringText to callers outside the package (the
// embedding surface's built-in print() needs to render an Astring/Ustring
// argument without reaching into unexported VM internals).
func (vm *VM) StringText(v value.Value) string { return vm.stringText(v) }

func (vm *VM) icFor(pc int) *symbols.ICState {
	ic := vm.callSiteICs[pc]
	if ic == nil {
		ic = &symbols.ICState{}
		vm.callSiteICs[pc] = ic
	}
	return ic
}

func (vm *VM) fieldICFor(pc int) *symbols.FieldICState {
	ic := vm.fieldSiteICs[pc]
	if ic == nil {
		ic = &symbols.FieldICState{}
		vm.fieldSiteICs[pc] = ic
	}
	return ic
}

// LoadChunk materializes a chunk's string constants as heap Astrings,
// since bytecode.Chunk itself has no allocator to call — the assembler
// only recorded their text in StringConstants. Safe to call once per
// chunk before first execution.
func (vm *VM) LoadChunk(chunk *bytecode.Chunk) {
	si := 0
	for i, c := range chunk.Constants {
		if value.IsNone(c) && si < len(chunk.StringConstants) {
			astr := vm.Manager.NewAstring(chunk.StringConstants[si])
			chunk.Constants[i] = object.ValueOf(&astr.Header)
			si++
		}
	}
}

// Eval runs chunk as the top-level script, matching spec.md §6's eval(src)
// contract (compilation itself is out of scope; callers hand in a chunk
// produced by pkg/asm or a host compiler).
func (vm *VM) Eval(chunk *bytecode.Chunk) Result {
	vm.LoadChunk(chunk)
	numRegisters := estimateRegisterCount(chunk)
	_, ok := vm.frames.Push(value.None(), chunk, numRegisters, 0, true)
	if !ok {
		return Result{Err: errors.New(errors.StackOverflow, errors.Position{}, "could not push entry frame")}
	}
	v, err := vm.runUntil(0)
	if err != nil && err.Pos().Line == 0 {
		pos := err.Pos()
		pos.Line = chunk.GetLine(pos.PC)
		err = errors.New(err.Kind(), pos, "%s", err.Message())
	}
	return Result{Value: v, Err: err}
}

// estimateRegisterCount sizes an entry frame's register window generously
// when the loader does not carry an explicit count (pkg/asm chunks do
// not); a real compiler emits this as part of the chunk header.
func estimateRegisterCount(chunk *bytecode.Chunk) int {
	maxReg := 0
	for off := 0; off < len(chunk.Code); {
		op := bytecode.OpCode(chunk.Code[off])
		schema := bytecode.Schema(op)
		for i, k := range schema {
			if k == bytecode.FieldReg {
				reg := int(chunk.Code[off+1+byteOffsetOf(schema, i)])
				if reg > maxReg {
					maxReg = reg
				}
			}
		}
		off += chunk.InstructionLen(off)
	}
	return maxReg + 1
}

func byteOffsetOf(schema []bytecode.FieldKind, idx int) int {
	off := 0
	for i := 0; i < idx; i++ {
		switch schema[i] {
		case bytecode.FieldConstIdx, bytecode.FieldSymID, bytecode.FieldJumpOff:
			off += 2
		default:
			off++
		}
	}
	return off
}

// runUntil is the dispatch loop (C7): it decodes and executes instructions
// from the topmost frame until the frame stack depth drops back to
// stopDepth (a Ret*/End/Coyield/Coreturn that pops the frame stopDepth+1
// was watching), or an unrecovered error. Eval calls it with stopDepth 0;
// Coresume calls it with the depth captured just before pushing the
// fiber's frame, so the fiber's own Coyield/Coreturn hands control back
// here instead of ending the whole program.
func (vm *VM) runUntil(stopDepth int) (value.Value, errors.VelaError) {
	for {
		if vm.frames.Depth() <= stopDepth {
			return value.None(), nil
		}
		frame := vm.frames.Top()
		code := frame.Chunk.Code
		if frame.PC >= len(code) {
			return value.None(), nil
		}
		op := bytecode.OpCode(code[frame.PC])
		if debugVM {
			vm.log.Debug("dispatch", zap.Int("pc", frame.PC), zap.String("op", op.String()), zap.Int("depth", vm.frames.Depth()))
		}
		startPC := frame.PC
		halt, result, err := vm.step(frame, op)
		if err != nil {
			return value.None(), err
		}
		if halt {
			return result, nil
		}
		// step() advances frame.PC itself for most opcodes; only default
		// past-the-instruction fallthrough happens here, guarded so
		// explicit jumps (which set PC directly) are never re-advanced.
		if frame.PC == startPC {
			frame.PC += frame.Chunk.InstructionLen(startPC)
		}
	}
}

func u16At(code []byte, off int) uint16 { return uint16(code[off]) | uint16(code[off+1])<<8 }

func jumpTarget(pc, instrLen int, code []byte, offPos int) int {
	rel := int16(u16At(code, offPos))
	return pc + instrLen + int(rel)
}

// step executes exactly one instruction at frame.PC. It returns halt=true
// with the script's result value when execution should stop (Ret1/Ret0 at
// the outermost frame, or End). frame.PC is left unchanged (so run's
// fallthrough advances it) except for instructions that branch.
func (vm *VM) step(frame *Frame, op bytecode.OpCode) (halt bool, result value.Value, err errors.VelaError) {
	pc := frame.PC
	code := frame.Chunk.Code
	regs := frame.Registers

	switch op {
	case bytecode.True:
		regs[code[pc+1]] = value.Bool(true)
	case bytecode.False:
		regs[code[pc+1]] = value.Bool(false)
	case bytecode.None:
		regs[code[pc+1]] = value.None()
	case bytecode.ConstOp:
		dst := code[pc+1]
		idx := u16At(code, pc+2)
		regs[dst] = frame.Chunk.Constants[idx]
	case bytecode.ConstI8:
		dst := code[pc+1]
		imm := int8(code[pc+2])
		regs[dst] = value.Float(float64(imm))
	case bytecode.ConstI8Int:
		dst := code[pc+1]
		imm := int8(code[pc+2])
		regs[dst] = value.Int(int32(imm))

	case bytecode.Copy:
		regs[code[pc+2]] = regs[code[pc+1]]
	case bytecode.CopyReleaseDst:
		vm.Manager.Release(regs[code[pc+2]])
		regs[code[pc+2]] = regs[code[pc+1]]
	case bytecode.CopyRetainSrc:
		vm.Manager.Retain(regs[code[pc+1]])
		regs[code[pc+2]] = regs[code[pc+1]]
	case bytecode.CopyRetainRelease:
		vm.Manager.Retain(regs[code[pc+1]])
		vm.Manager.Release(regs[code[pc+2]])
		regs[code[pc+2]] = regs[code[pc+1]]

	case bytecode.Retain:
		vm.Manager.Retain(regs[code[pc+1]])
	case bytecode.Release:
		vm.Manager.Release(regs[code[pc+1]])
	case bytecode.ReleaseN:
		start := code[pc+1]
		n := code[pc+2]
		for i := byte(0); i < n; i++ {
			vm.Manager.Release(regs[start+i])
		}

	case bytecode.Neg:
		dst := code[pc+1]
		v := regs[dst]
		if value.IsInteger(v) {
			regs[dst] = value.Int(-value.AsInteger(v))
		} else if value.IsDouble(v) {
			regs[dst] = value.Float(-value.AsDouble(v))
		} else {
			return false, value.None(), vm.typeError(pc, "cannot negate non-numeric value")
		}

	case bytecode.Add, bytecode.Sub, bytecode.Mul, bytecode.Div, bytecode.Mod, bytecode.Pow:
		a, b, dst := regs[code[pc+1]], regs[code[pc+2]], code[pc+3]
		v, e := vm.binOp(arithOpFor(op), a, b, pc)
		if e != nil {
			return false, value.None(), e
		}
		regs[dst] = v
	case bytecode.AddInt:
		regs[code[pc+3]] = addIntFast(regs[code[pc+1]], regs[code[pc+2]])
	case bytecode.SubInt:
		regs[code[pc+3]] = subIntFast(regs[code[pc+1]], regs[code[pc+2]])
	case bytecode.LessInt:
		regs[code[pc+3]] = lessIntFast(regs[code[pc+1]], regs[code[pc+2]])

	case bytecode.BitwiseAnd:
		regs[code[pc+3]] = bitwiseBinOp(func(a, b int32) int32 { return a & b }, regs[code[pc+1]], regs[code[pc+2]])
	case bytecode.BitwiseOr:
		regs[code[pc+3]] = bitwiseBinOp(func(a, b int32) int32 { return a | b }, regs[code[pc+1]], regs[code[pc+2]])
	case bytecode.BitwiseXor:
		regs[code[pc+3]] = bitwiseBinOp(func(a, b int32) int32 { return a ^ b }, regs[code[pc+1]], regs[code[pc+2]])
	case bytecode.BitwiseLeftShift:
		regs[code[pc+3]] = bitwiseBinOp(func(a, b int32) int32 { return a << uint(b) }, regs[code[pc+1]], regs[code[pc+2]])
	case bytecode.BitwiseRightShift:
		regs[code[pc+3]] = bitwiseBinOp(func(a, b int32) int32 { return a >> uint(b) }, regs[code[pc+1]], regs[code[pc+2]])
	case bytecode.BitwiseNot:
		dst, src := code[pc+1], code[pc+2]
		regs[dst] = value.Int(^value.AsInteger(regs[src]))

	case bytecode.Compare:
		regs[code[pc+3]] = value.Bool(vm.compareEqual(regs[code[pc+1]], regs[code[pc+2]]))
	case bytecode.CompareNot:
		regs[code[pc+3]] = value.Bool(!vm.compareEqual(regs[code[pc+1]], regs[code[pc+2]]))
	case bytecode.Less, bytecode.Greater, bytecode.LessEqual, bytecode.GreaterEqual:
		order, e := vm.compareOrdered(regs[code[pc+1]], regs[code[pc+2]], pc)
		if e != nil {
			return false, value.None(), e
		}
		var r bool
		switch op {
		case bytecode.Less:
			r = order < 0
		case bytecode.Greater:
			r = order > 0
		case bytecode.LessEqual:
			r = order <= 0
		case bytecode.GreaterEqual:
			r = order >= 0
		}
		regs[code[pc+3]] = value.Bool(r)

	case bytecode.Jump:
		frame.PC = jumpTarget(pc, 3, code, pc+1)
		return false, value.None(), nil
	case bytecode.JumpCond:
		if value.IsTruthy(regs[code[pc+1]]) {
			frame.PC = jumpTarget(pc, 4, code, pc+2)
		} else {
			frame.PC = pc + 4
		}
		return false, value.None(), nil
	case bytecode.JumpNotCond:
		if !value.IsTruthy(regs[code[pc+1]]) {
			frame.PC = jumpTarget(pc, 4, code, pc+2)
		} else {
			frame.PC = pc + 4
		}
		return false, value.None(), nil
	case bytecode.JumpNotNone:
		if !value.IsNone(regs[code[pc+1]]) {
			frame.PC = jumpTarget(pc, 4, code, pc+2)
		} else {
			frame.PC = pc + 4
		}
		return false, value.None(), nil

	case bytecode.ForRangeInit:
		vm.forRangeInit(frame, pc)
		return false, value.None(), nil
	case bytecode.ForRange:
		if e := vm.forRangeStep(frame, pc, false); e != nil {
			return false, value.None(), e
		}
		return false, value.None(), nil
	case bytecode.ForRangeReverse:
		if e := vm.forRangeStep(frame, pc, true); e != nil {
			return false, value.None(), e
		}
		return false, value.None(), nil

	case bytecode.List:
		dst, start, count := code[pc+1], code[pc+2], code[pc+3]
		items := make([]value.Value, count)
		copy(items, regs[start:start+count])
		l := vm.Manager.NewList(items)
		regs[dst] = object.ValueOf(&l.Header)
	case bytecode.Index:
		vm.handleIndex(frame, pc)
	case bytecode.ReverseIndex:
		regs[code[pc+1]] = vm.indexGet(regs[code[pc+2]], regs[code[pc+3]], true)
	case bytecode.SetIndex, bytecode.SetIndexRelease:
		if e := vm.handleSetIndex(frame, pc, op == bytecode.SetIndexRelease); e != nil {
			return false, value.None(), e
		}

	case bytecode.Field, bytecode.FieldIC, bytecode.FieldRetain, bytecode.FieldRetainIC:
		vm.handleField(frame, pc, op)
	case bytecode.SetField, bytecode.SetFieldRelease, bytecode.SetFieldReleaseIC:
		vm.handleSetField(frame, pc, op)

	case bytecode.Box:
		dst, src := code[pc+1], code[pc+2]
		b := vm.Manager.NewBox(regs[src])
		regs[dst] = object.ValueOf(&b.Header)
	case bytecode.BoxValue, bytecode.BoxValueRetain:
		dst, src := code[pc+1], code[pc+2]
		h := object.HeaderOf(regs[src])
		box := asBox(h)
		if op == bytecode.BoxValueRetain {
			vm.Manager.Retain(box.Value)
		}
		regs[dst] = box.Value
	case bytecode.SetBoxValue:
		dst, src := code[pc+1], code[pc+2]
		h := object.HeaderOf(regs[dst])
		asBox(h).Value = regs[src]
	case bytecode.SetBoxValueRelease:
		dst, src := code[pc+1], code[pc+2]
		h := object.HeaderOf(regs[dst])
		box := asBox(h)
		vm.Manager.Release(box.Value)
		box.Value = regs[src]

	case bytecode.Sym:
		dst := code[pc+1]
		regs[dst] = value.Symbol(uint32(u16At(code, pc+2)))
	case bytecode.Tag, bytecode.TagLiteral:
		dst := code[pc+1]
		regs[dst] = value.TagLiteralValue(uint32(u16At(code, pc+2)))

	case bytecode.Map, bytecode.MapEmpty:
		dst := code[pc+1]
		mp := vm.Manager.NewMap()
		if op == bytecode.Map {
			start, count := code[pc+2], code[pc+3]
			for i := byte(0); i < count; i += 2 {
				mp.Set(regs[start+i], regs[start+i+1])
			}
		}
		regs[dst] = object.ValueOf(&mp.Header)
	case bytecode.SetInitN:
		dst, start, count := code[pc+1], code[pc+2], code[pc+3]
		mp := vm.Manager.NewMap()
		for i := byte(0); i < count; i++ {
			mp.Set(regs[start+i], value.Bool(true))
		}
		regs[dst] = object.ValueOf(&mp.Header)
	case bytecode.ObjectSmall, bytecode.Object:
		dst, start, count := code[pc+1], code[pc+2], code[pc+3]
		fields := make([]value.Value, count)
		copy(fields, regs[start:start+count])
		inst := vm.Manager.NewInstance(object.TypeInstance, int(count))
		copy(inst.Fields, fields)
		regs[dst] = object.ValueOf(&inst.Header)
	case bytecode.StringTemplate:
		dst, start, count := code[pc+1], code[pc+2], code[pc+3]
		var sb strings.Builder
		for i := byte(0); i < count; i++ {
			sb.WriteString(vm.stringText(regs[start+i]))
		}
		astr := vm.Manager.NewAstring(sb.String())
		regs[dst] = object.ValueOf(&astr.Header)
	case bytecode.Lambda:
		dst := code[pc+1]
		l := vm.Manager.NewLambda(0, 0, 0, "lambda")
		regs[dst] = object.ValueOf(&l.Header)
	case bytecode.ClosureOp:
		dst := code[pc+1]
		lv := regs[dst]
		lambda := asLambda(object.HeaderOf(lv))
		cl := vm.Manager.NewClosure(lambda, nil)
		regs[dst] = object.ValueOf(&cl.Header)
	case bytecode.Match:
		// No-op placeholder: pattern matching is compiled down to ordinary
		// Compare/Jump sequences by the (out-of-scope) compiler; kept as a
		// named opcode so a future compiler target has a slot reserved.

	case bytecode.Call0, bytecode.Call1:
		if e := vm.handleCall(frame, pc, op); e != nil {
			return false, value.None(), e
		}
		return false, value.None(), nil
	case bytecode.CallSym, bytecode.CallFuncIC, bytecode.CallNativeFuncIC:
		if e := vm.handleCallSym(frame, pc, op); e != nil {
			return false, value.None(), e
		}
		return false, value.None(), nil
	case bytecode.CallObjSym, bytecode.CallObjFuncIC, bytecode.CallObjNativeFuncIC:
		if e := vm.handleCallObjSym(frame, pc, op); e != nil {
			return false, value.None(), e
		}
		return false, value.None(), nil

	case bytecode.Ret0:
		return vm.handleReturn(frame, value.None())
	case bytecode.Ret1:
		return vm.handleReturn(frame, frame.Registers[code[pc+1]])

	case bytecode.Coinit, bytecode.Coresume, bytecode.Coyield, bytecode.Coreturn:
		halted, rv, e := vm.handleFiberOp(frame, pc, op)
		if e != nil {
			return false, value.None(), e
		}
		if halted {
			return true, rv, nil
		}
		return false, value.None(), nil

	case bytecode.StaticVar, bytecode.StaticFunc:
		dst := code[pc+1]
		id := u16At(code, pc+2)
		regs[dst] = vm.globals[uint32(id)]
	case bytecode.SetStaticVar, bytecode.SetStaticFunc:
		src := code[pc+1]
		id := u16At(code, pc+2)
		vm.globals[uint32(id)] = regs[src]

	case bytecode.TryValue:
		// Copies src into dst unchanged. It catches nothing: a failing
		// opcode returns its VelaError out of runUntil before any later
		// TryValue runs, and a panic-marker value in src is copied as is.
		dst, src := code[pc+1], code[pc+2]
		regs[dst] = regs[src]

	case bytecode.End:
		if len(frame.Registers) > 0 {
			return true, frame.Registers[0], nil
		}
		return true, value.None(), nil

	default:
		return false, value.None(), errors.New(errors.Compile, errors.Position{PC: pc}, "unimplemented opcode %s", op)
	}
	return false, value.None(), nil
}

func arithOpFor(op bytecode.OpCode) arithOp {
	switch op {
	case bytecode.Add:
		return opAdd
	case bytecode.Sub:
		return opSub
	case bytecode.Mul:
		return opMul
	case bytecode.Div:
		return opDiv
	case bytecode.Mod:
		return opMod
	case bytecode.Pow:
		return opPow
	default:
		return opAdd
	}
}

