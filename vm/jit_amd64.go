//go:build amd64

package vm

import (
	"fmt"
	"unsafe"

	"github.com/twitchyliquid64/golang-asm/asm"
	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"
)

// jitScratchSlots bounds how deep a straight-line expression may push on
// either the integer or the float side before compile gives up; the
// scratch buffer is partitioned in half between the two stacks. This is
// generous for anything that isn't procedurally generated and keeps the
// scratch allocation a single fixed-size slice made on each run.
const jitScratchSlots = 256

//go:noescape
func jitcall(codeAddr uintptr, scratch unsafe.Pointer) uint64

// amd64Compiler lowers a narrow, explicitly whitelisted subset of
// programs straight to machine code: pushes of immediate values,
// integer and float arithmetic, and exit. Anything else — a jump, a
// load/store against data, a console op, a reference operand — is
// refused as a recoverable failure so the facade falls back to the
// interpreter, per the backend's contract of declining what it can't
// safely lower rather than miscompiling it.
type amd64Compiler struct{}

func newPlatformCompiler() jitCompiler { return &amd64Compiler{} }

func (c *amd64Compiler) compile(ctx *Context) (*compiledProgram, error) {
	b, err := asm.NewBuilder("amd64", 64+16*len(ctx.Code))
	if err != nil {
		return nil, fatalJITError(fmt.Errorf("vm: jit builder: %w", err))
	}

	intDepth, floatDepth := 0, 0
	lastType := ValueNone
	sawExit := false

	emit := func(p *obj.Prog) { b.AddInstruction(p) }
	newProg := func() *obj.Prog { return b.NewProg() }

	memAt := func(base int16, slot int) obj.Addr {
		return obj.Addr{Type: obj.TYPE_MEM, Reg: base, Offset: int64(slot * 8)}
	}
	regAddr := func(reg int16) obj.Addr {
		return obj.Addr{Type: obj.TYPE_REG, Reg: reg}
	}
	immAddr := func(v int64) obj.Addr {
		return obj.Addr{Type: obj.TYPE_CONST, Offset: v}
	}

	const intBase = int16(x86.REG_BX)
	const floatBaseOffset = (jitScratchSlots / 2) * 8

	for _, cmd := range ctx.Code {
		if sawExit {
			break
		}
		switch cmd.OpcodeID {
		case OpPush:
			if cmd.Arg.Kind != ArgImmediateValue {
				return nil, recoverableJITError(fmt.Errorf("vm: jit: push requires an immediate operand"))
			}
			switch cmd.ValueType {
			case ValueInteger:
				if intDepth >= jitScratchSlots/2 {
					return nil, recoverableJITError(fmt.Errorf("vm: jit: integer stack too deep"))
				}
				p := newProg()
				p.As = x86.AMOVQ
				p.From = immAddr(int64(cmd.Arg.Value.ABIWord()))
				p.To = regAddr(x86.REG_AX)
				emit(p)
				p2 := newProg()
				p2.As = x86.AMOVQ
				p2.From = regAddr(x86.REG_AX)
				p2.To = memAt(intBase, intDepth)
				emit(p2)
				intDepth++
				lastType = ValueInteger
			case ValueFloat:
				if floatDepth >= jitScratchSlots/2 {
					return nil, recoverableJITError(fmt.Errorf("vm: jit: float stack too deep"))
				}
				p := newProg()
				p.As = x86.AMOVQ
				p.From = immAddr(int64(cmd.Arg.Value.ABIWord()))
				p.To = regAddr(x86.REG_AX)
				emit(p)
				p2 := newProg()
				p2.As = x86.AMOVQ
				p2.From = regAddr(x86.REG_AX)
				p2.To = memAt(intBase, jitScratchSlots/2+floatDepth)
				emit(p2)
				floatDepth++
				lastType = ValueFloat
			default:
				return nil, recoverableJITError(fmt.Errorf("vm: jit: push of untyped value"))
			}

		case OpAdd, OpSub, OpMul, OpDiv:
			switch cmd.ValueType {
			case ValueInteger:
				if intDepth < 2 {
					return nil, recoverableJITError(fmt.Errorf("vm: jit: integer stack underflow"))
				}
				bSlot, aSlot := intDepth-1, intDepth-2
				loadB := newProg()
				loadB.As = x86.AMOVQ
				loadB.From = memAt(intBase, bSlot)
				loadB.To = regAddr(x86.REG_CX)
				emit(loadB)
				loadA := newProg()
				loadA.As = x86.AMOVQ
				loadA.From = memAt(intBase, aSlot)
				loadA.To = regAddr(x86.REG_AX)
				emit(loadA)
				switch cmd.OpcodeID {
				case OpAdd:
					p := newProg()
					p.As = x86.AADDQ
					p.From = regAddr(x86.REG_CX)
					p.To = regAddr(x86.REG_AX)
					emit(p)
				case OpSub:
					p := newProg()
					p.As = x86.ASUBQ
					p.From = regAddr(x86.REG_CX)
					p.To = regAddr(x86.REG_AX)
					emit(p)
				case OpMul:
					p := newProg()
					p.As = x86.AIMULQ
					p.From = regAddr(x86.REG_CX)
					p.To = regAddr(x86.REG_AX)
					emit(p)
				case OpDiv:
					cqo := newProg()
					cqo.As = x86.ACQO
					emit(cqo)
					div := newProg()
					div.As = x86.AIDIVQ
					div.From = regAddr(x86.REG_CX)
					emit(div)
				}
				store := newProg()
				store.As = x86.AMOVQ
				store.From = regAddr(x86.REG_AX)
				store.To = memAt(intBase, aSlot)
				emit(store)
				intDepth--
				lastType = ValueInteger
			case ValueFloat:
				if floatDepth < 2 {
					return nil, recoverableJITError(fmt.Errorf("vm: jit: float stack underflow"))
				}
				bSlot, aSlot := jitScratchSlots/2+floatDepth-1, jitScratchSlots/2+floatDepth-2
				loadB := newProg()
				loadB.As = x86.AMOVSD
				loadB.From = memAt(intBase, bSlot)
				loadB.To = regAddr(x86.REG_X1)
				emit(loadB)
				loadA := newProg()
				loadA.As = x86.AMOVSD
				loadA.From = memAt(intBase, aSlot)
				loadA.To = regAddr(x86.REG_X0)
				emit(loadA)
				var op obj.As
				switch cmd.OpcodeID {
				case OpAdd:
					op = x86.AADDSD
				case OpSub:
					op = x86.ASUBSD
				case OpMul:
					op = x86.AMULSD
				case OpDiv:
					op = x86.ADIVSD
				}
				p := newProg()
				p.As = op
				p.From = regAddr(x86.REG_X1)
				p.To = regAddr(x86.REG_X0)
				emit(p)
				store := newProg()
				store.As = x86.AMOVSD
				store.From = regAddr(x86.REG_X0)
				store.To = memAt(intBase, aSlot)
				emit(store)
				floatDepth--
				lastType = ValueFloat
			default:
				return nil, recoverableJITError(fmt.Errorf("vm: jit: arithmetic on untyped value"))
			}

		case OpExit:
			sawExit = true

		default:
			return nil, recoverableJITError(fmt.Errorf("vm: jit: unsupported opcode %d", cmd.OpcodeID))
		}
	}
	if !sawExit {
		return nil, recoverableJITError(fmt.Errorf("vm: jit: straight-line buffer has no exit"))
	}

	var resultSlot int
	switch lastType {
	case ValueInteger:
		resultSlot = intDepth - 1
	case ValueFloat:
		resultSlot = jitScratchSlots/2 + floatDepth - 1
	default:
		resultSlot = -1
	}
	if resultSlot >= 0 {
		p := newProg()
		p.As = x86.AMOVQ
		p.From = memAt(intBase, resultSlot)
		p.To = regAddr(x86.REG_AX)
		emit(p)
	} else {
		p := newProg()
		p.As = x86.AMOVQ
		p.From = immAddr(0)
		p.To = regAddr(x86.REG_AX)
		emit(p)
	}
	ret := newProg()
	ret.As = obj.ARET
	emit(ret)

	if err := b.Assemble(); err != nil {
		return nil, fatalJITError(fmt.Errorf("vm: jit assemble: %w", err))
	}
	code := b.Bytes()

	buf, err := newExecBuffer(len(code))
	if err != nil {
		return nil, fatalJITError(err)
	}
	if err := buf.write(code); err != nil {
		return nil, fatalJITError(err)
	}
	if err := buf.finalize(); err != nil {
		return nil, fatalJITError(err)
	}

	entry := buf.entry()
	finalType := lastType
	return &compiledProgram{
		run: func(m *MMU) error {
			scratch := make([]uint64, jitScratchSlots)
			word := jitcall(entry, unsafe.Pointer(&scratch[0]))
			m.Current().Flags |= FlagExit
			if finalType != ValueNone {
				m.StackPush(ValueFromABIWord(word, finalType))
			}
			return nil
		},
		release: buf.release,
	}, nil
}
