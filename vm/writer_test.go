package vm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCommandEncodeDecodeRoundTrip(t *testing.T) {
	cs := NewCommandSet()
	cmds := []Command{
		NewCommand(OpPush, ValueInteger, ImmediateArgument(IntegerValue(-42))),
		NewCommand(OpPush, ValueFloat, ImmediateArgument(FloatValue(2.5))),
		NewCommand(OpJmp, ValueNone, IndexArgument(17)),
		NewCommand(OpNop, ValueNone, NoArgument()),
		NewCommand(OpStore, ValueInteger, ReferenceArgument(
			SimpleReference(SectionData, Component{Kind: BaseMemoryRef, MemoryAddress: 3}))),
	}
	var wire []byte
	for _, c := range cmds {
		wire = append(wire, c.Encode()...)
	}
	decoded, err := DecodeCommands(cs, wire)
	require.NoError(t, err)
	require.Len(t, decoded, len(cmds))
	for i := range cmds {
		require.Equal(t, cmds[i].OpcodeID, decoded[i].OpcodeID)
		require.Equal(t, cmds[i].ValueType, decoded[i].ValueType)
		require.Equal(t, cmds[i].Arg.Kind, decoded[i].Arg.Kind)
	}
}

func TestValuesEncodeDecodeRoundTrip(t *testing.T) {
	vals := []Value{IntegerValue(1), FloatValue(-9.25), IntegerValue(0)}
	payload := EncodeValues(vals)
	decoded, err := DecodeValues(payload)
	require.NoError(t, err)
	require.Len(t, decoded, len(vals))
	for i := range vals {
		require.Equal(t, vals[i].Type(), decoded[i].Type())
	}
}

func TestSymbolsEncodeDecodeRoundTrip(t *testing.T) {
	symbols := SymbolMap{
		HashSymbolName("a"): {
			Name: "a", Hash: HashSymbolName("a"), IsResolved: true,
			Reference: SimpleReference(SectionCode, Component{Kind: BaseMemoryRef, MemoryAddress: 9}),
		},
	}
	payload := EncodeSymbols(symbols)
	decoded, err := DecodeSymbols(payload)
	require.NoError(t, err)
	sym, ok := decoded[HashSymbolName("a")]
	require.True(t, ok)
	require.Equal(t, "a", sym.Name)
	require.True(t, sym.IsResolved)
	require.Equal(t, uint64(9), sym.Reference.Components[0].MemoryAddress)
}

func TestStackEncodeDecodeRoundTrip(t *testing.T) {
	vals := []Value{IntegerValue(1), IntegerValue(2), IntegerValue(3)}
	payload := EncodeStack(ValueInteger, vals)
	vt, decoded, err := DecodeStack(payload)
	require.NoError(t, err)
	require.Equal(t, ValueInteger, vt)
	require.Len(t, decoded, len(vals))
	for i := range vals {
		got, _ := decoded[i].Integer()
		want, _ := vals[i].Integer()
		require.Equal(t, want, got)
	}
}

func TestBinaryReaderWriterSectionSequencing(t *testing.T) {
	w := NewBinaryWriter()
	w.WrSetup()
	require.NoError(t, w.Write(ImageCode, []byte{1, 2, 3}))
	require.NoError(t, w.Write(ImageData, []byte{4, 5}))
	image := w.Bytes()

	r := NewBinaryReader()
	require.NoError(t, r.RdSetup(image))
	require.False(t, r.Streaming())

	kind, payload, ok, err := r.NextSection()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ImageCode, kind)
	require.Equal(t, []byte{1, 2, 3}, payload)

	kind, payload, ok, err = r.NextSection()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ImageData, kind)
	require.Equal(t, []byte{4, 5}, payload)

	_, _, ok, err = r.NextSection()
	require.NoError(t, err)
	require.False(t, ok)
}
