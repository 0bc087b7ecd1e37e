package vm

import (
	"vela/pkg/bytecode"
	"vela/pkg/errors"
	"vela/pkg/object"
	"vela/pkg/value"

	"github.com/google/uuid"
)

// handleFiberOp implements the C9 cooperative scheduler's four opcodes.
// Fibers here are single-goroutine continuations: Coresume pushes one new
// frame and re-enters the dispatch loop bounded to the depth it started
// at (runUntil(stopDepth)); Coyield snapshots that frame's register
// window and PC back into the object.Fiber and pops it, handing control
// back to Coresume exactly the way an ordinary return does. halted=true
// means the calling step()/runUntil should stop (used only when this
// call is itself what unwinds runUntil back to its stopDepth).
func (vm *VM) handleFiberOp(frame *Frame, pc int, op bytecode.OpCode) (halted bool, result value.Value, err errors.VelaError) {
	code := frame.Chunk.Code
	regs := frame.Registers

	switch op {
	case bytecode.Coinit:
		dst, lambdaReg := code[pc+1], code[pc+2]
		argStart, argCount := code[pc+3], code[pc+4]
		lambdaVal := regs[lambdaReg]
		if !value.IsPointer(lambdaVal) {
			return false, value.None(), vm.typeError(pc, "coinit target is not callable")
		}
		h := object.HeaderOf(lambdaVal)
		var entryPC, numLocal int
		switch h.TypeID {
		case object.TypeClosure:
			l := asClosure(h).Lambda
			entryPC, numLocal = l.EntryPC, l.NumLocal
		case object.TypeLambda:
			l := asLambda(h)
			entryPC, numLocal = l.EntryPC, l.NumLocal
		default:
			return false, value.None(), vm.typeError(pc, "coinit target is not callable")
		}
		stackSize := numLocal
		if stackSize < int(argCount) {
			stackSize = int(argCount)
		}
		if stackSize < 1 {
			stackSize = 1
		}
		fiber := vm.Manager.NewFiber(stackSize)
		fiber.DebugID = uuid.NewString()
		copy(fiber.Stack, regs[argStart:argStart+argCount])
		fiber.PC = entryPC
		fiber.Status = object.FiberSuspended
		regs[dst] = object.ValueOf(&fiber.Header)
		return false, value.None(), nil

	case bytecode.Coresume:
		dst, fiberReg := code[pc+1], code[pc+2]
		fiberVal := regs[fiberReg]
		if !value.IsPointer(fiberVal) {
			return false, value.None(), vm.typeError(pc, "coresume target is not a fiber")
		}
		fiber := asFiber(object.HeaderOf(fiberVal))
		if fiber.Status == object.FiberDone {
			regs[dst] = value.None()
			return false, value.None(), nil
		}
		numReg := len(fiber.Stack)
		if numReg < 1 {
			numReg = 1
		}
		depthBefore := vm.frames.Depth()
		newFrame, ok := vm.frames.Push(fiberVal, frame.Chunk, numReg, dst, true)
		if !ok {
			return false, value.None(), errors.New(errors.StackOverflow, errors.Position{PC: pc}, "fiber resume exceeded frame stack")
		}
		copy(newFrame.Registers, fiber.Stack)
		newFrame.PC = fiber.PC
		fiber.Status = object.FiberRunning

		prevFiber := vm.currentFiber
		prevStop := vm.stopDepth
		vm.currentFiber = fiber
		vm.stopDepth = depthBefore
		v, e := vm.runUntil(depthBefore)
		vm.stopDepth = prevStop
		vm.currentFiber = prevFiber
		if e != nil {
			return false, value.None(), e
		}
		_ = v // already written into regs[dst] by the Coyield/Coreturn handler below
		return false, value.None(), nil

	case bytecode.Coyield:
		// No operands (matches End's convention): the yielded value lives
		// in register 0 of the yielding frame.
		yielded := value.None()
		if len(regs) > 0 {
			yielded = regs[0]
		}
		fiber := vm.currentFiber
		instrLen := frame.Chunk.InstructionLen(pc)
		if fiber != nil {
			fiber.PC = pc + instrLen
			if len(fiber.Stack) != len(regs) {
				fiber.Stack = make([]value.Value, len(regs))
			}
			copy(fiber.Stack, regs)
			fiber.Status = object.FiberSuspended
		}
		wantsResult, resultReg := frame.WantsResult, frame.ResultReg
		depthAfterPop := vm.frames.Depth() - 1
		vm.frames.Pop()
		if wantsResult && vm.frames.Depth() > 0 {
			vm.frames.Top().Registers[resultReg] = yielded
		}
		if depthAfterPop <= vm.stopDepth {
			return true, yielded, nil
		}
		return false, value.None(), nil

	case bytecode.Coreturn:
		returned := value.None()
		if len(regs) > 0 {
			returned = regs[0]
		}
		if vm.currentFiber != nil {
			vm.currentFiber.Status = object.FiberDone
		}
		return vm.handleReturn(frame, returned)

	default:
		return false, value.None(), errors.New(errors.Compile, errors.Position{PC: pc}, "unimplemented fiber opcode %s", op)
	}
}
