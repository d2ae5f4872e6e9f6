package vm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestMMU() *MMU {
	cs := NewCommandSet()
	cs.Install(NewServiceExecutor())
	cs.Install(NewIntegerExecutor())
	cs.Install(NewFloatExecutor())
	return NewMMU(cs, nil)
}

func TestMMUStackPushPop(t *testing.T) {
	m := newTestMMU()
	m.StackPush(IntegerValue(1))
	m.StackPush(IntegerValue(2))

	v, err := m.StackPop(ValueInteger)
	require.NoError(t, err)
	got, _ := v.Integer()
	require.Equal(t, int64(2), got)

	v, err = m.StackPop(ValueInteger)
	require.NoError(t, err)
	got, _ = v.Integer()
	require.Equal(t, int64(1), got)

	_, err = m.StackPop(ValueInteger)
	require.ErrorIs(t, err, ErrOutOfBounds)
}

func TestMMUContextSaveRestore(t *testing.T) {
	// save_context shares contents with whatever stays current: a push
	// made after save is visible immediately, and survives restore too,
	// since restore only swaps the header back.
	m := newTestMMU()
	m.InsertData([]Value{IntegerValue(10)})
	require.Equal(t, 0, m.ContextDepth())

	m.SaveContext()
	require.Equal(t, 1, m.ContextDepth())
	require.Len(t, m.ReadData(), 1, "save_context shares data, it does not clear it")

	m.InsertData([]Value{IntegerValue(99)})
	require.NoError(t, m.RestoreContext())
	require.Equal(t, 0, m.ContextDepth())

	data := m.ReadData()
	require.Len(t, data, 2, "content pushed during the saved frame must survive restore")
	got, _ := data[0].Integer()
	require.Equal(t, int64(10), got)
	got, _ = data[1].Integer()
	require.Equal(t, int64(99), got)
}

func TestMMUSaveClearRestoreIsNoOpOnHeader(t *testing.T) {
	m := newTestMMU()
	m.Current().IP = 7
	m.StackPush(IntegerValue(1))

	m.SaveContext()
	m.ClearContext()
	require.NoError(t, m.RestoreContext())

	require.Equal(t, uint64(7), m.Current().IP)
	top, err := m.StackTop(ValueInteger)
	require.NoError(t, err)
	got, _ := top.Integer()
	require.Equal(t, int64(1), got)
}

func TestMMUClearContextResetsHeaderKeepsBuffers(t *testing.T) {
	m := newTestMMU()
	m.InsertData([]Value{IntegerValue(5)})
	m.InsertText([]Command{NewCommand(OpExit, ValueNone, NoArgument())})
	m.StackPush(IntegerValue(3))
	m.Current().IP = 9
	m.Current().CompareResult = 1

	m.ClearContext()

	require.Equal(t, uint64(0), m.Current().IP)
	require.Equal(t, int8(0), m.Current().CompareResult)
	_, err := m.StackTop(ValueInteger)
	require.ErrorIs(t, err, ErrOutOfBounds)
	require.Len(t, m.ReadData(), 1, "clear_context must preserve data")
	require.Len(t, m.ReadText(), 1, "clear_context must preserve code")
}

func TestMMUAllocContextThenDeleteIsStructurallyUnchanged(t *testing.T) {
	m := newTestMMU()
	m.InsertData([]Value{IntegerValue(4)})
	before := m.ContextDepth()

	m.AllocContext()
	require.Empty(t, m.ReadData(), "a freshly allocated context starts empty")
	require.NoError(t, m.RestoreContext())

	require.Equal(t, before, m.ContextDepth())
	data := m.ReadData()
	require.Len(t, data, 1)
	got, _ := data[0].Integer()
	require.Equal(t, int64(4), got)
}

func TestMMURestoreEmptyStackFails(t *testing.T) {
	m := newTestMMU()
	require.ErrorIs(t, m.RestoreContext(), ErrContextStackEmpty)
}

func TestMMUResetBuffersKeepsStacks(t *testing.T) {
	m := newTestMMU()
	m.InsertData([]Value{IntegerValue(1)})
	m.StackPush(IntegerValue(7))

	m.ResetBuffers()

	require.Empty(t, m.ReadData())
	top, err := m.StackTop(ValueInteger)
	require.NoError(t, err)
	got, _ := top.Integer()
	require.Equal(t, int64(7), got)
}

func TestMMUChecksumStateStableAndSensitive(t *testing.T) {
	m := newTestMMU()
	m.InsertText([]Command{NewCommand(OpExit, ValueNone, NoArgument())})
	first := m.ChecksumState()
	second := m.ChecksumState()
	require.Equal(t, first, second, "checksum must be stable without mutation")

	m.InsertData([]Value{IntegerValue(1)})
	third := m.ChecksumState()
	require.NotEqual(t, first, third, "checksum must change once state is mutated")
}

func TestMMUSetDataAtGrowsBuffer(t *testing.T) {
	m := newTestMMU()
	m.SetDataAt(3, IntegerValue(42))
	require.Len(t, m.ReadData(), 4)
	v, err := m.DataAt(3)
	require.NoError(t, err)
	got, _ := v.Integer()
	require.Equal(t, int64(42), got)
}
