package vm

import "fmt"

// Opcode identifies an operation independent of the value type it runs
// against; the pair (Opcode, ValueType) is what CommandSet resolves to an
// executor.
type Opcode uint32

// ArgumentKind tags which variant of Argument a Command carries.
type ArgumentKind byte

const (
	ArgNone ArgumentKind = iota
	ArgReference
	ArgImmediateValue
	ArgImmediateIndex
)

// Argument is the tagged-union payload a Command carries alongside its
// opcode: nothing, a symbolic/numeric Reference, an immediate Value, or a
// raw index (register number, device slot, etc).
type Argument struct {
	Kind ArgumentKind

	Ref   Reference
	Value Value
	Index uint64
}

func NoArgument() Argument                 { return Argument{Kind: ArgNone} }
func ReferenceArgument(r Reference) Argument { return Argument{Kind: ArgReference, Ref: r} }
func ImmediateArgument(v Value) Argument    { return Argument{Kind: ArgImmediateValue, Value: v} }
func IndexArgument(i uint64) Argument       { return Argument{Kind: ArgImmediateIndex, Index: i} }

func (a Argument) String() string {
	switch a.Kind {
	case ArgReference:
		return a.Ref.String()
	case ArgImmediateValue:
		return a.Value.String()
	case ArgImmediateIndex:
		return fmt.Sprintf("#%d", a.Index)
	default:
		return ""
	}
}

// Command is one decoded instruction. cachedExecutor/cachedHandle are
// non-serialised: CommandSet.GetExecutionHandle fills them the first
// time the command is dispatched and reuses them afterwards, and they
// are never persisted by the reader/writer.
type Command struct {
	OpcodeID  Opcode
	ValueType ValueType
	Arg       Argument

	cachedExecutor Executor
	cachedHandle   Handle
}

func NewCommand(opcode Opcode, vt ValueType, arg Argument) Command {
	return Command{OpcodeID: opcode, ValueType: vt, Arg: arg}
}

func (c Command) String() string {
	mnemonic := defaultCommandSet.mnemonicOf(c.OpcodeID)
	if c.Arg.Kind == ArgNone {
		return mnemonic
	}
	return fmt.Sprintf("%s %s", mnemonic, c.Arg)
}

// clearCache invalidates the cached dispatch info; Facade.Compile calls
// it on every command whose argument it rewrites.
func (c *Command) clearCache() {
	c.cachedExecutor = nil
	c.cachedHandle = 0
}
