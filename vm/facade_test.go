package vm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestFacade(t *testing.T) *Facade {
	t.Helper()
	return NewFacade(nil, WithoutJIT())
}

func TestFacadeAssembleCompileExec(t *testing.T) {
	f := newTestFacade(t)
	asm := NewAssembler(f.MMU().CommandSet())
	result, err := asm.Assemble(`
push.i 2
push.i 3
add.i
exit
`)
	require.NoError(t, err)
	f.MMU().InsertText(result.Code)

	require.NoError(t, f.Compile())
	require.NoError(t, f.Exec())

	top, err := f.MMU().StackTop(ValueInteger)
	require.NoError(t, err)
	got, _ := top.Integer()
	require.Equal(t, int64(5), got)
}

func TestFacadeCompileFailsOnUndefinedSymbol(t *testing.T) {
	f := newTestFacade(t)
	asm := NewAssembler(f.MMU().CommandSet())
	result, err := asm.Assemble(`
jmp nowhere
exit
`)
	require.NoError(t, err)
	f.MMU().InsertText(result.Code)
	require.ErrorIs(t, f.Compile(), ErrUndefinedSymbol)
}

func TestFacadeAssembleWithLabelJump(t *testing.T) {
	f := newTestFacade(t)
	asm := NewAssembler(f.MMU().CommandSet())
	result, err := asm.Assemble(`
jmp skip
push.i 111
skip:
push.i 222
exit
`)
	require.NoError(t, err)
	f.MMU().InsertText(result.Code)

	f.linker.InitSession(Offsets{})
	for _, sym := range result.Symbols {
		require.NoError(t, f.linker.Add(sym))
	}
	require.NoError(t, f.linker.Commit())

	require.NoError(t, f.Compile())
	require.NoError(t, f.Exec())

	top, err := f.MMU().StackTop(ValueInteger)
	require.NoError(t, err)
	got, _ := top.Integer()
	require.Equal(t, int64(222), got)
}

func TestFacadeLoadAssembledLinksLabels(t *testing.T) {
	f := newTestFacade(t)
	asm := NewAssembler(f.MMU().CommandSet())
	result, err := asm.Assemble(`
jmp skip
push.i 111
skip:
push.i 222
exit
`)
	require.NoError(t, err)
	require.NoError(t, f.LoadAssembled(result))

	require.NoError(t, f.Compile())
	require.NoError(t, f.Exec())

	top, err := f.MMU().StackTop(ValueInteger)
	require.NoError(t, err)
	got, _ := top.Integer()
	require.Equal(t, int64(222), got)
}

func TestFacadeLoadAssembledAppendsIncrementally(t *testing.T) {
	f := newTestFacade(t)
	asm := NewAssembler(f.MMU().CommandSet())

	first, err := asm.Assemble("push.i 1\n")
	require.NoError(t, err)
	require.NoError(t, f.LoadAssembled(first))

	second, err := asm.Assemble("push.i 2\nexit\n")
	require.NoError(t, err)
	require.NoError(t, f.LoadAssembled(second))

	require.Len(t, f.MMU().ReadText(), 3)
	require.NoError(t, f.Exec())

	top, err := f.MMU().StackTop(ValueInteger)
	require.NoError(t, err)
	got, _ := top.Integer()
	require.Equal(t, int64(2), got)
}

func TestFacadeDumpLoadRoundTrip(t *testing.T) {
	f := newTestFacade(t)
	asm := NewAssembler(f.MMU().CommandSet())
	result, err := asm.Assemble(`
push.i 41
push.i 1
add.i
exit
`)
	require.NoError(t, err)
	f.MMU().InsertText(result.Code)

	image := f.Dump()

	f2 := newTestFacade(t)
	require.NoError(t, f2.Load(image))
	require.NoError(t, f2.Compile())
	require.NoError(t, f2.Exec())

	top, err := f2.MMU().StackTop(ValueInteger)
	require.NoError(t, err)
	got, _ := top.Integer()
	require.Equal(t, int64(42), got)
}

func TestFacadeDumpLoadRoundTripCarriesStacks(t *testing.T) {
	f := newTestFacade(t)
	f.MMU().InsertData([]Value{IntegerValue(1)})
	f.MMU().StackPush(IntegerValue(5))
	f.MMU().StackPush(FloatValue(2.5))

	image := f.Dump()

	f2 := newTestFacade(t)
	require.NoError(t, f2.Load(image))

	top, err := f2.MMU().StackTop(ValueInteger)
	require.NoError(t, err)
	got, _ := top.Integer()
	require.Equal(t, int64(5), got)

	ftop, err := f2.MMU().StackTop(ValueFloat)
	require.NoError(t, err)
	fgot, _ := ftop.Float()
	require.InDelta(t, 2.5, fgot, 1e-9)
}

func TestFacadeLoadIsAUniformSnapshotNotAnAppend(t *testing.T) {
	f := newTestFacade(t)
	f.MMU().InsertData([]Value{IntegerValue(111)})

	f2 := newTestFacade(t)
	f2.MMU().InsertData([]Value{IntegerValue(999)})
	require.NoError(t, f2.Load(f.Dump()))

	data := f2.MMU().ReadData()
	require.Len(t, data, 1, "Load must replace the data buffer, not append to it")
	got, _ := data[0].Integer()
	require.Equal(t, int64(111), got)
}

func TestFacadeResetClearsHeaderKeepsBuffers(t *testing.T) {
	f := newTestFacade(t)
	f.MMU().InsertData([]Value{IntegerValue(1)})
	f.MMU().StackPush(IntegerValue(9))
	f.MMU().Current().IP = 3

	f.Reset()

	require.Len(t, f.MMU().ReadData(), 1, "reset must preserve data")
	require.Equal(t, uint64(0), f.MMU().Current().IP)
	_, err := f.MMU().StackTop(ValueInteger)
	require.ErrorIs(t, err, ErrOutOfBounds, "reset must clear operand stacks")
}

func TestFacadeClearDropsBuffersKeepsStacks(t *testing.T) {
	f := newTestFacade(t)
	f.MMU().InsertData([]Value{IntegerValue(1)})
	f.MMU().StackPush(IntegerValue(9))

	f.Clear()

	require.Empty(t, f.MMU().ReadData())
	top, err := f.MMU().StackTop(ValueInteger)
	require.NoError(t, err)
	got, _ := top.Integer()
	require.Equal(t, int64(9), got)
}

func TestFacadeDeletePopsSavedContext(t *testing.T) {
	f := newTestFacade(t)
	f.MMU().InsertData([]Value{IntegerValue(7)})
	f.MMU().SaveContext()

	require.NoError(t, f.Delete())
	require.Equal(t, 0, f.MMU().ContextDepth())
	data := f.MMU().ReadData()
	require.Len(t, data, 1)
	got, _ := data[0].Integer()
	require.Equal(t, int64(7), got)
}

func TestFacadeDeleteFailsWithNothingSaved(t *testing.T) {
	f := newTestFacade(t)
	require.ErrorIs(t, f.Delete(), ErrContextStackEmpty)
}

func TestFacadeFlushResetsEverything(t *testing.T) {
	f := newTestFacade(t)
	f.MMU().InsertData([]Value{IntegerValue(1)})
	f.MMU().SaveContext()
	f.MMU().InsertData([]Value{IntegerValue(2)})

	f.Flush()

	require.Equal(t, 0, f.MMU().ContextDepth())
	require.Empty(t, f.MMU().ReadData())
}

func TestFacadeLoadsThroughBicomponentReference(t *testing.T) {
	// data:(base + 4) addresses the 5th data slot (zero-indexed), holding
	// Integer(42); load it onto the stack and exit.
	f := newTestFacade(t)
	f.MMU().InsertData([]Value{
		IntegerValue(0), IntegerValue(0), IntegerValue(0), IntegerValue(0), IntegerValue(42),
	})
	f.MMU().SetSymbolImage(Symbol{
		Name:       "base",
		Hash:       HashSymbolName("base"),
		IsResolved: true,
		Reference: SimpleReference(SectionData, Component{
			Kind:          BaseMemoryRef,
			MemoryAddress: 0,
		}),
	})
	ref := BiReference(SectionData,
		Component{Kind: BaseSymbol, SymbolHash: HashSymbolName("base")},
		Component{Kind: BaseMemoryRef, MemoryAddress: 4},
	)
	f.MMU().InsertText([]Command{
		NewCommand(OpLoad, ValueInteger, ReferenceArgument(ref)),
		NewCommand(OpExit, ValueNone, NoArgument()),
	})

	require.NoError(t, f.Compile())
	require.NoError(t, f.Exec())

	top, err := f.MMU().StackTop(ValueInteger)
	require.NoError(t, err)
	got, _ := top.Integer()
	require.Equal(t, int64(42), got)
}

func TestFacadeStreamingLoadExecutesWithoutMaterializingCode(t *testing.T) {
	f := newTestFacade(t)
	cmds := []Command{
		NewCommand(OpPush, ValueInteger, ImmediateArgument(IntegerValue(1))),
		NewCommand(OpExit, ValueNone, NoArgument()),
	}
	var stream []byte
	for _, c := range cmds {
		stream = append(stream, c.Encode()...)
	}
	image := append([]byte{byte(modeStream)}, stream...)

	require.NoError(t, f.Load(image))
	require.NoError(t, f.Exec())
	require.Empty(t, f.MMU().ReadText())
}
