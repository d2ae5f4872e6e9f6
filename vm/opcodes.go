package vm

// Opcode constants. Arithmetic/stack opcodes carry a ValueType on their
// Command (Integer or Float) and dispatch to the matching executor;
// control-flow, exit and console opcodes are type-agnostic and always
// dispatch to the service executor regardless of Command.ValueType.
const (
	OpNop Opcode = iota
	OpPush
	OpPop
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpNot
	OpAnd
	OpOr
	OpXor
	OpCmp
	OpLoad  // data[index] -> stack
	OpStore // stack -> data[index]
	OpJmp
	OpJz
	OpJnz
	OpJle
	OpJl
	OpJge
	OpJg
	OpWritec
	OpReadc
	// OpInvoke runs a wire-encoded command stream out of the current
	// context's byte pool as a nested, saved-context execution — what
	// lets a running program load and immediately execute a further
	// program instead of only the facade being able to. Its argument is
	// an InvokeRange packed into an immediate index (see
	// PackInvokeRange).
	OpInvoke
	OpExit
	opcodeCount
)

// PackInvokeRange/UnpackInvokeRange encode the (start, length) byte
// range an OpInvoke reads its nested stream from into the single
// uint64 an ArgImmediateIndex carries: start in the high 32 bits,
// length in the low 32 bits. Both are bounded to 32 bits, generous for
// any byte pool a program would realistically build.
func PackInvokeRange(start, length uint64) uint64 {
	return (start&0xffffffff)<<32 | (length & 0xffffffff)
}

func UnpackInvokeRange(packed uint64) (start, length uint64) {
	return packed >> 32, packed & 0xffffffff
}

type opcodeInfo struct {
	mnemonic string
	typed    bool // true: dispatches to the Integer/Float executor by Command.ValueType, false: always the service executor
}

// CommandSet is the registry mapping opcodes to mnemonics and to the
// executor responsible for running them, plus the live Executor
// instances installed for dispatch. A fresh CommandSet starts with the
// built-in opcode table; Reset clears installed executors without
// touching the table.
type CommandSet struct {
	info      [opcodeCount]opcodeInfo
	byName    map[string]Opcode
	executors map[ExecutorID]Executor
}

// defaultCommandSet backs Command.String() so commands can render
// themselves without threading a CommandSet through every call site.
var defaultCommandSet = NewCommandSet()

func NewCommandSet() *CommandSet {
	cs := &CommandSet{
		byName:    make(map[string]Opcode),
		executors: make(map[ExecutorID]Executor),
	}
	table := []struct {
		op   Opcode
		name string
		typ  bool
	}{
		{OpNop, "nop", false},
		{OpPush, "push", true},
		{OpPop, "pop", true},
		{OpAdd, "add", true},
		{OpSub, "sub", true},
		{OpMul, "mul", true},
		{OpDiv, "div", true},
		{OpNot, "not", true},
		{OpAnd, "and", true},
		{OpOr, "or", true},
		{OpXor, "xor", true},
		{OpCmp, "cmp", true},
		{OpLoad, "load", true},
		{OpStore, "store", true},
		{OpJmp, "jmp", false},
		{OpJz, "jz", false},
		{OpJnz, "jnz", false},
		{OpJle, "jle", false},
		{OpJl, "jl", false},
		{OpJge, "jge", false},
		{OpJg, "jg", false},
		{OpWritec, "writec", false},
		{OpReadc, "readc", false},
		{OpInvoke, "invoke", false},
		{OpExit, "exit", false},
	}
	for _, e := range table {
		cs.info[e.op] = opcodeInfo{mnemonic: e.name, typed: e.typ}
		cs.byName[e.name] = e.op
	}
	return cs
}

func (cs *CommandSet) mnemonicOf(op Opcode) string {
	if op >= opcodeCount {
		return "???"
	}
	return cs.info[op].mnemonic
}

func (cs *CommandSet) OpcodeByName(name string) (Opcode, bool) {
	op, ok := cs.byName[name]
	return op, ok
}

// ExecutorFor returns which ExecutorID should handle a given (opcode,
// valueType) pairing. Typed opcodes route to Integer or Float based on
// vt; untyped opcodes route to the service executor. A typed opcode
// asked about with any other vt (ValueNone included) is ErrTypeMismatch.
func (cs *CommandSet) ExecutorFor(op Opcode, vt ValueType) (ExecutorID, error) {
	if op >= opcodeCount {
		return 0, ErrUnknownOpcode
	}
	info := cs.info[op]
	if !info.typed {
		return ExecutorService, nil
	}
	switch vt {
	case ValueInteger:
		return ExecutorInteger, nil
	case ValueFloat:
		return ExecutorFloat, nil
	default:
		return 0, ErrTypeMismatch
	}
}

// Install registers the live Executor for its own ID, replacing any
// previous one. The service executor must be installed; integer/float
// executors are only needed if the program actually uses typed opcodes.
func (cs *CommandSet) Install(e Executor) {
	cs.executors[e.ID()] = e
}

// Reset removes all installed executors, leaving the opcode table
// itself intact — only the dispatch targets are cleared.
func (cs *CommandSet) Reset() {
	cs.executors = make(map[ExecutorID]Executor)
}

// GetExecutionHandle resolves a Command's (opcode, type) pair to the
// concrete Executor and a dispatch Handle, caching both on the Command so
// repeated execution of the same instruction (loops) skips the lookup.
func (cs *CommandSet) GetExecutionHandle(c *Command) (Executor, Handle, error) {
	if c.cachedExecutor != nil {
		return c.cachedExecutor, c.cachedHandle, nil
	}
	id, err := cs.ExecutorFor(c.OpcodeID, c.ValueType)
	if err != nil {
		return nil, 0, err
	}
	ex, ok := cs.executors[id]
	if !ok {
		return nil, 0, ErrUnknownOpcode
	}
	handle := Handle(c.OpcodeID)
	c.cachedExecutor = ex
	c.cachedHandle = handle
	return ex, handle, nil
}

// Decode turns a byte-encoded instruction into a
// Command. The encoding is a fixed 6-byte header (4 bytes opcode, 1 byte
// ValueType, 1 byte ArgumentKind) followed by a payload whose size
// depends on ArgumentKind: none, 9 bytes for an immediate value (type
// byte + word), 8 bytes for an index, or a variable-length reference
// (see Command.Encode in codec.go for the inverse).
//
// Decode distinguishes two failure shapes: running out of bytes before a
// complete element is available (ErrStreamEOF — a trailing, incomplete
// record, which RunStream treats as the preliminary-EOF warning spec §7
// category 4 describes) from bytes that are fully present but don't
// decode to anything legal (ErrStreamDecode — fatal, no recovery path).
func (cs *CommandSet) Decode(b []byte) (Command, int, error) {
	const headerLen = 4 + 1 + 1
	if len(b) < headerLen {
		return Command{}, 0, ErrStreamEOF
	}
	op := Opcode(beUint32(b[0:4]))
	vt := ValueType(b[4])
	kind := ArgumentKind(b[5])
	if op >= opcodeCount {
		return Command{}, 0, ErrStreamDecode
	}
	n := headerLen
	var arg Argument
	switch kind {
	case ArgNone:
		arg = NoArgument()
	case ArgImmediateValue:
		if len(b) < n+9 {
			return Command{}, 0, ErrStreamEOF
		}
		raw := beUint64(b[n+1:])
		switch ValueType(b[n]) {
		case ValueInteger:
			arg = ImmediateArgument(ValueFromABIWord(raw, ValueInteger))
		case ValueFloat:
			arg = ImmediateArgument(ValueFromABIWord(raw, ValueFloat))
		default:
			return Command{}, 0, ErrStreamDecode
		}
		n += 9
	case ArgImmediateIndex:
		if len(b) < n+8 {
			return Command{}, 0, ErrStreamEOF
		}
		arg = IndexArgument(beUint64(b[n:]))
		n += 8
	case ArgReference:
		ref, consumed, err := decodeReference(b[n:])
		if err != nil {
			return Command{}, 0, err
		}
		arg = ReferenceArgument(ref)
		n += consumed
	default:
		return Command{}, 0, ErrStreamDecode
	}
	return NewCommand(op, vt, arg), n, nil
}
