package vm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInterpreterAddAndExit(t *testing.T) {
	m := newTestMMU()
	in := NewInterpreter(m)
	m.InsertText([]Command{
		NewCommand(OpPush, ValueInteger, ImmediateArgument(IntegerValue(2))),
		NewCommand(OpPush, ValueInteger, ImmediateArgument(IntegerValue(3))),
		NewCommand(OpAdd, ValueInteger, NoArgument()),
		NewCommand(OpExit, ValueNone, NoArgument()),
	})
	require.NoError(t, in.Run())
	require.True(t, m.Current().Flags.Has(FlagExit))
	top, err := m.StackTop(ValueInteger)
	require.NoError(t, err)
	got, _ := top.Integer()
	require.Equal(t, int64(5), got)
}

func TestInterpreterFallsOffEndWithoutExit(t *testing.T) {
	m := newTestMMU()
	in := NewInterpreter(m)
	m.InsertText([]Command{
		NewCommand(OpPush, ValueInteger, ImmediateArgument(IntegerValue(1))),
	})
	require.NoError(t, in.Run())
	require.False(t, m.Current().Flags.Has(FlagExit))
}

func TestInterpreterConditionalJumpTaken(t *testing.T) {
	// cmp 5,5 -> equal -> jz taken -> the push of 111 must be skipped.
	m := newTestMMU()
	in := NewInterpreter(m)
	m.InsertText([]Command{
		NewCommand(OpPush, ValueInteger, ImmediateArgument(IntegerValue(5))), // 0
		NewCommand(OpPush, ValueInteger, ImmediateArgument(IntegerValue(5))), // 1
		NewCommand(OpCmp, ValueInteger, NoArgument()),                       // 2
		NewCommand(OpJz, ValueNone, IndexArgument(5)),                       // 3
		NewCommand(OpPush, ValueInteger, ImmediateArgument(IntegerValue(111))), // 4
		NewCommand(OpPush, ValueInteger, ImmediateArgument(IntegerValue(222))), // 5
		NewCommand(OpExit, ValueNone, NoArgument()),                         // 6
	})
	require.NoError(t, in.Run())
	top, err := m.StackTop(ValueInteger)
	require.NoError(t, err)
	got, _ := top.Integer()
	require.Equal(t, int64(222), got)
}

func TestInterpreterJumpSetsIPDirectly(t *testing.T) {
	m := newTestMMU()
	in := NewInterpreter(m)
	m.InsertText([]Command{
		// 0: jmp #2 -- skip the push at index 1
		NewCommand(OpJmp, ValueNone, IndexArgument(2)),
		NewCommand(OpPush, ValueInteger, ImmediateArgument(IntegerValue(999))),
		// 2: push.i 1
		NewCommand(OpPush, ValueInteger, ImmediateArgument(IntegerValue(1))),
		// 3: exit
		NewCommand(OpExit, ValueNone, NoArgument()),
	})
	require.NoError(t, in.Run())
	top, err := m.StackTop(ValueInteger)
	require.NoError(t, err)
	got, _ := top.Integer()
	require.Equal(t, int64(1), got, "jump must have skipped the push of 999")
}

func TestInterpreterDivisionByZeroIsFatal(t *testing.T) {
	m := newTestMMU()
	in := NewInterpreter(m)
	m.InsertText([]Command{
		NewCommand(OpPush, ValueInteger, ImmediateArgument(IntegerValue(1))),
		NewCommand(OpPush, ValueInteger, ImmediateArgument(IntegerValue(0))),
		NewCommand(OpDiv, ValueInteger, NoArgument()),
		NewCommand(OpExit, ValueNone, NoArgument()),
	})
	require.Error(t, in.Run())
}

func TestInterpreterRunStreamExecutesWithoutMaterializingCode(t *testing.T) {
	m := newTestMMU()
	in := NewInterpreter(m)
	cmds := []Command{
		NewCommand(OpPush, ValueInteger, ImmediateArgument(IntegerValue(4))),
		NewCommand(OpPush, ValueInteger, ImmediateArgument(IntegerValue(6))),
		NewCommand(OpAdd, ValueInteger, NoArgument()),
		NewCommand(OpExit, ValueNone, NoArgument()),
	}
	var stream []byte
	for _, c := range cmds {
		stream = append(stream, c.Encode()...)
	}
	require.NoError(t, in.RunStream(stream))
	require.Empty(t, m.ReadText(), "streaming must never populate the code buffer")
	top, err := m.StackTop(ValueInteger)
	require.NoError(t, err)
	got, _ := top.Integer()
	require.Equal(t, int64(10), got)
}

func TestInterpreterRunStreamTreatsTrailingIncompleteRecordAsCleanEOF(t *testing.T) {
	// One leftover byte isn't even enough for a header: spec §7 category 4
	// treats this as a preliminary-EOF warning, not a hard error — the
	// frame's FlagExit is set and RunStream returns cleanly.
	m := newTestMMU()
	in := NewInterpreter(m)
	require.NoError(t, in.RunStream([]byte{0xff}))
	require.True(t, m.Current().Flags.Has(FlagExit))
}

func TestInterpreterRunStreamRejectsMalformedRecord(t *testing.T) {
	// A full-length header naming an opcode id that doesn't exist is not
	// a truncation — it's a genuinely malformed record, still fatal.
	m := newTestMMU()
	in := NewInterpreter(m)
	garbage := make([]byte, 6)
	putBeUint32(garbage[0:4], 0xffffffff)
	require.ErrorIs(t, in.RunStream(garbage), ErrStreamDecode)
}

func TestInterpreterOpInvokeRunsNestedStreamAgainstOuterStack(t *testing.T) {
	// A nested stream, invoked mid-execution, pushes Float(1.5); the
	// outer program then multiplies that by 2.0 and exits.
	m := newTestMMU()
	nested := []Command{
		NewCommand(OpPush, ValueFloat, ImmediateArgument(FloatValue(1.5))),
		NewCommand(OpExit, ValueNone, NoArgument()),
	}
	var nestedBytes []byte
	for _, c := range nested {
		nestedBytes = append(nestedBytes, c.Encode()...)
	}
	start := m.InsertBytepool(nestedBytes)

	in := NewInterpreter(m)
	m.InsertText([]Command{
		NewCommand(OpInvoke, ValueNone, IndexArgument(PackInvokeRange(start, uint64(len(nestedBytes))))),
		NewCommand(OpPush, ValueFloat, ImmediateArgument(FloatValue(2.0))),
		NewCommand(OpMul, ValueFloat, NoArgument()),
		NewCommand(OpExit, ValueNone, NoArgument()),
	})
	require.NoError(t, in.Run())
	require.Equal(t, 0, m.ContextDepth(), "invoke must restore back to the outer context once the nested stream exits")
	require.True(t, m.Current().Flags.Has(FlagExit), "outer exit must still be observed")
	top, err := m.StackTop(ValueFloat)
	require.NoError(t, err)
	got, _ := top.Float()
	require.InDelta(t, 3.0, got, 1e-9)
}

func TestInvokeNestedStreamRestoresOnDecodeError(t *testing.T) {
	m := newTestMMU()
	garbage := make([]byte, 6)
	putBeUint32(garbage[0:4], 0xffffffff)
	require.Error(t, InvokeNestedStream(m, garbage))
	require.Equal(t, 0, m.ContextDepth(), "a failed nested stream must still be unwound")
}
