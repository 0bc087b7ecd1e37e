package vm

import (
	"vela/pkg/bytecode"
	"vela/pkg/errors"
	"vela/pkg/object"
	"vela/pkg/symbols"
	"vela/pkg/value"
)

// stringText returns the Go string backing a static-string, Astring,
// Ustring, or StringSlice value, or "" for anything else. Static string
// literals and interned symbol/tag names share one table (pkg/symbols'
// Interner) — a simplification of spec.md §4.4's separate "symbol table"
// that keeps this port to a single interning mechanism.
func (vm *VM) stringText(v value.Value) string {
	if value.IsStaticString(v) {
		return vm.Interns.Name(value.AsStaticString(v))
	}
	if !value.IsPointer(v) {
		return ""
	}
	h := object.HeaderOf(v)
	switch h.TypeID {
	case object.TypeAstring:
		return string(asAstring(h).Bytes)
	case object.TypeUstring:
		return string(asUstring(h).Bytes)
	case object.TypeStringSlice:
		ss := asStringSlice(h)
		if ss.Owner == nil {
			return ""
		}
		var full []byte
		switch ss.Owner.TypeID {
		case object.TypeAstring:
			full = asAstring(ss.Owner).Bytes
		case object.TypeUstring:
			full = asUstring(ss.Owner).Bytes
		}
		if ss.Start < 0 || ss.End > len(full) || ss.Start > ss.End {
			return ""
		}
		return string(full[ss.Start:ss.End])
	default:
		return ""
	}
}

// --- indexing ---

func (vm *VM) handleIndex(frame *Frame, pc int) {
	code := frame.Chunk.Code
	regs := frame.Registers
	dst, collReg, idxReg := code[pc+1], code[pc+2], code[pc+3]
	regs[dst] = vm.indexGet(regs[collReg], regs[idxReg], false)
}

// indexGet looks up coll[idx] (or coll[len-1-idx] when reverse is set, for
// ReverseIndex). An out-of-range or untyped lookup yields an Error-tagged
// value rather than panicking the host process, consistent with spec.md
// §7 modeling runtime faults as ordinary Values a script can inspect.
func (vm *VM) indexGet(coll, idx value.Value, reverse bool) value.Value {
	if !value.IsPointer(coll) {
		return value.PanicMarker()
	}
	h := object.HeaderOf(coll)
	i := int(value.AsInteger(idx))
	switch h.TypeID {
	case object.TypeList:
		l := asList(h)
		if reverse {
			i = len(l.Items) - 1 - i
		}
		if i < 0 || i >= len(l.Items) {
			return value.PanicMarker()
		}
		return l.Items[i]
	case object.TypeMap:
		if v, ok := asMap(h).Get(idx); ok {
			return v
		}
		return value.None()
	case object.TypeAstring, object.TypeUstring, object.TypeStringSlice:
		s := vm.stringText(coll)
		if reverse {
			i = len(s) - 1 - i
		}
		if i < 0 || i >= len(s) {
			return value.PanicMarker()
		}
		return value.Int(int32(s[i]))
	default:
		return value.PanicMarker()
	}
}

func (vm *VM) handleSetIndex(frame *Frame, pc int, release bool) errors.VelaError {
	code := frame.Chunk.Code
	regs := frame.Registers
	collReg, idxReg, valReg := code[pc+1], code[pc+2], code[pc+3]
	coll, idx, val := regs[collReg], regs[idxReg], regs[valReg]
	if !value.IsPointer(coll) {
		return vm.typeError(pc, "cannot index into a non-collection value")
	}
	h := object.HeaderOf(coll)
	switch h.TypeID {
	case object.TypeList:
		l := asList(h)
		i := int(value.AsInteger(idx))
		if i < 0 || i >= len(l.Items) {
			return errors.New(errors.NotFound, errors.Position{PC: pc}, "list index %d out of range", i)
		}
		if release {
			vm.Manager.Release(l.Items[i])
		}
		l.Items[i] = val
	case object.TypeMap:
		m := asMap(h)
		if release {
			if old, ok := m.Get(idx); ok {
				vm.Manager.Release(old)
			}
		}
		m.Set(idx, val)
	default:
		return vm.typeError(pc, "value does not support index assignment")
	}
	return nil
}

// --- fields ---

func (vm *VM) handleField(frame *Frame, pc int, op bytecode.OpCode) {
	code := frame.Chunk.Code
	regs := frame.Registers
	dst, srcReg, fieldIdx := code[pc+1], code[pc+2], int(code[pc+3])
	inst := regs[srcReg]
	var v value.Value
	if value.IsPointer(inst) {
		h := object.HeaderOf(inst)
		if op == bytecode.FieldIC || op == bytecode.FieldRetainIC {
			ic := vm.fieldICFor(pc)
			if cached, ok := ic.Lookup(h.TypeID); ok {
				fieldIdx = cached
			} else {
				ic.Populate(h.TypeID, fieldIdx)
			}
		}
		if h.TypeID >= object.TypeInstance {
			fields := asInstance(h).Fields
			if fieldIdx >= 0 && fieldIdx < len(fields) {
				v = fields[fieldIdx]
			}
		}
	}
	if op == bytecode.FieldRetain || op == bytecode.FieldRetainIC {
		vm.Manager.Retain(v)
	}
	regs[dst] = v
}

func (vm *VM) handleSetField(frame *Frame, pc int, op bytecode.OpCode) {
	code := frame.Chunk.Code
	regs := frame.Registers
	instReg, valReg, fieldIdx := code[pc+1], code[pc+2], int(code[pc+3])
	inst := regs[instReg]
	if !value.IsPointer(inst) {
		return
	}
	h := object.HeaderOf(inst)
	if op == bytecode.SetFieldReleaseIC {
		ic := vm.fieldICFor(pc)
		if cached, ok := ic.Lookup(h.TypeID); ok {
			fieldIdx = cached
		} else {
			ic.Populate(h.TypeID, fieldIdx)
		}
	}
	if h.TypeID < object.TypeInstance {
		return
	}
	fields := asInstance(h).Fields
	if fieldIdx < 0 || fieldIdx >= len(fields) {
		return
	}
	if op == bytecode.SetFieldRelease || op == bytecode.SetFieldReleaseIC {
		vm.Manager.Release(fields[fieldIdx])
	}
	fields[fieldIdx] = regs[valReg]
}

// --- for-range (ForRangeInit/ForRange/ForRangeReverse) ---
//
// This port defines its own fixed register layout for the loop triple
// (counter, bound, continue-flag) since the out-of-scope compiler's exact
// encoding isn't part of spec.md; a trailing byte carries the step so the
// common "step 1" case costs nothing extra to decode.

func (vm *VM) forRangeInit(frame *Frame, pc int) {
	code := frame.Chunk.Code
	regs := frame.Registers
	counterReg, startReg := code[pc+1], code[pc+2]
	regs[counterReg] = regs[startReg]
}

func (vm *VM) forRangeStep(frame *Frame, pc int, reverse bool) errors.VelaError {
	code := frame.Chunk.Code
	regs := frame.Registers
	counterReg, endReg, condOutReg := code[pc+1], code[pc+2], code[pc+3]
	step := int32(code[pc+5])
	if step == 0 {
		return errors.New(errors.Panic, errors.Position{PC: pc}, "for-range step must not be zero")
	}
	cur := value.AsInteger(regs[counterReg])
	end := value.AsInteger(regs[endReg])
	if reverse {
		cur -= step
	} else {
		cur += step
	}
	regs[counterReg] = value.Int(cur)
	var cont bool
	if reverse {
		cont = cur > end
	} else {
		cont = cur < end
	}
	regs[condOutReg] = value.Bool(cont)
	return nil
}

// --- calls ---

// handleCall implements Call0/Call1: a direct call through a register
// holding a closure/lambda Value, args in the registers immediately
// following the callee register.
func (vm *VM) handleCall(frame *Frame, pc int, op bytecode.OpCode) errors.VelaError {
	code := frame.Chunk.Code
	regs := frame.Registers
	calleeReg, dst, argCount := code[pc+1], code[pc+2], code[pc+3]
	callee := regs[calleeReg]
	return vm.invoke(frame, pc, callee, regs[calleeReg+1:calleeReg+1+argCount], dst, true)
}

// handleCallSym implements CallSym/CallFuncIC/CallNativeFuncIC: a call
// resolved through the function symbol table rather than a register.
func (vm *VM) handleCallSym(frame *Frame, pc int, op bytecode.OpCode) errors.VelaError {
	code := frame.Chunk.Code
	regs := frame.Registers
	dst := code[pc+1]
	symID := int(u16At(code, pc+2))
	argStart, argCount := code[pc+4], code[pc+5]
	entry := vm.Funcs.Get(symID)
	args := regs[argStart : argStart+argCount]
	return vm.invokeEntry(frame, pc, value.None(), entry, args, dst, true)
}

// handleCallObjSym implements CallObjSym/CallObjFuncIC/CallObjNativeFuncIC:
// a method dispatch through (receiver type, symId), monomorphically cached
// for the IC variants (spec.md §4.4).
func (vm *VM) handleCallObjSym(frame *Frame, pc int, op bytecode.OpCode) errors.VelaError {
	code := frame.Chunk.Code
	regs := frame.Registers
	recvReg, dst := code[pc+1], code[pc+2]
	symID := int(u16At(code, pc+3))
	argStart, argCount := code[pc+5], code[pc+6]
	recv := regs[recvReg]
	typeID := object.TypeIDOf(recv)

	var entry symbols.FuncEntry
	if op == bytecode.CallObjFuncIC || op == bytecode.CallObjNativeFuncIC {
		ic := vm.icFor(pc)
		if cached, ok := ic.Lookup(typeID); ok {
			entry = cached
		} else {
			e, ok := vm.Methods.Lookup(typeID, symID)
			if !ok {
				return errors.New(errors.NotFound, errors.Position{PC: pc}, "no method %d on type %d", symID, typeID)
			}
			ic.Populate(typeID, e)
			entry = e
		}
	} else {
		e, ok := vm.Methods.Lookup(typeID, symID)
		if !ok {
			return errors.New(errors.NotFound, errors.Position{PC: pc}, "no method %d on type %d", symID, typeID)
		}
		entry = e
	}
	args := regs[argStart : argStart+argCount]
	return vm.invokeEntry(frame, pc, recv, entry, args, dst, true)
}

// invoke resolves callee (a closure or lambda Value) to a FuncEntry-shaped
// call and dispatches it.
func (vm *VM) invoke(frame *Frame, pc int, callee value.Value, args []value.Value, dst byte, wantsResult bool) errors.VelaError {
	if !value.IsPointer(callee) {
		return vm.typeError(pc, "value is not callable")
	}
	h := object.HeaderOf(callee)
	var lambda *object.Lambda
	switch h.TypeID {
	case object.TypeClosure:
		lambda = asClosure(h).Lambda
	case object.TypeLambda:
		lambda = asLambda(h)
	case object.TypeNativeFunc1:
		nf := asNativeFunc1(h)
		result := nf.Fn(args)
		if wantsResult {
			frame.Registers[dst] = result
		}
		return nil
	default:
		return vm.typeError(pc, "value is not callable")
	}
	entry := symbols.FuncEntry{Kind: symbols.FuncBytecode, EntryPC: lambda.EntryPC, NumLocals: lambda.NumLocal, Arity: lambda.NumArgs, Name: lambda.Name}
	return vm.invokeEntry(frame, pc, value.None(), entry, args, dst, wantsResult)
}

// invokeEntry pushes a new frame for a bytecode FuncEntry (receiver, when
// non-None, is copied into register 0 ahead of args — the method-call
// convention) or calls a native one directly.
func (vm *VM) invokeEntry(frame *Frame, pc int, receiver value.Value, entry symbols.FuncEntry, args []value.Value, dst byte, wantsResult bool) errors.VelaError {
	if entry.Kind == symbols.FuncNative {
		callArgs := args
		if !value.IsNone(receiver) {
			// Same receiver-ahead-of-args convention the bytecode path
			// uses (register 0 of the callee's frame); args is a live
			// subslice of the caller's registers, so build a fresh slice
			// rather than prepending in place.
			callArgs = make([]value.Value, 0, len(args)+1)
			callArgs = append(callArgs, receiver)
			callArgs = append(callArgs, args...)
		}
		result := entry.Native(callArgs)
		if wantsResult {
			frame.Registers[dst] = result
		}
		return nil
	}
	hasReceiver := !value.IsNone(receiver)
	numRegisters := entry.NumLocals
	if want := len(args) + boolToInt(hasReceiver); numRegisters < want {
		numRegisters = want
	}
	if numRegisters < 1 {
		numRegisters = 1
	}
	newFrame, ok := vm.frames.Push(value.None(), frame.Chunk, numRegisters, dst, wantsResult)
	if !ok {
		return errors.New(errors.StackOverflow, errors.Position{PC: pc}, "call frame stack exhausted")
	}
	newFrame.PC = entry.EntryPC
	i := 0
	if hasReceiver {
		newFrame.Registers[0] = receiver
		i = 1
	}
	for _, a := range args {
		newFrame.Registers[i] = a
		i++
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// handleReturn implements Ret0/Ret1: pop the current frame, and either
// hand the result back to the caller's result register or (when the
// frame stack has unwound to vm.stopDepth) surface it as runUntil's
// return value — the same depth check a Coyield/Coreturn inside a fiber
// body performs, see fiber.go.
func (vm *VM) handleReturn(frame *Frame, v value.Value) (bool, value.Value, errors.VelaError) {
	depthAfterPop := vm.frames.Depth() - 1
	vm.frames.Pop()
	if depthAfterPop <= vm.stopDepth {
		return true, v, nil
	}
	caller := vm.frames.Top()
	if frame.WantsResult {
		caller.Registers[frame.ResultReg] = v
	} else {
		vm.Manager.Release(v)
	}
	return false, value.None(), nil
}
