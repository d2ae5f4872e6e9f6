package vm

// IntegerExecutor runs every typed opcode whose Command.ValueType is
// ValueInteger: push/pop/load/store against the integer stack and
// integer arithmetic/comparison/bitwise ops.
type IntegerExecutor struct{}

func NewIntegerExecutor() *IntegerExecutor { return &IntegerExecutor{} }

func (e *IntegerExecutor) ID() ExecutorID         { return ExecutorInteger }
func (e *IntegerExecutor) SupportedType() ValueType { return ValueInteger }

func (e *IntegerExecutor) Execute(m *MMU, handle Handle, arg Argument) (ExecOutcome, error) {
	op := Opcode(handle)
	switch op {
	case OpPush:
		v, err := resolveOperandValue(m, arg, ValueInteger)
		if err != nil {
			return ExecContinue, executorError("push", err)
		}
		m.StackPush(v)
		return ExecContinue, nil
	case OpPop:
		if _, err := m.StackPop(ValueInteger); err != nil {
			return ExecContinue, executorError("pop", err)
		}
		return ExecContinue, nil
	case OpLoad:
		idx, err := operandIndex(m, arg)
		if err != nil {
			return ExecContinue, executorError("load", err)
		}
		v, err := m.DataAt(idx)
		if err != nil {
			return ExecContinue, executorError("load", err)
		}
		m.StackPush(v)
		return ExecContinue, nil
	case OpStore:
		idx, err := operandIndex(m, arg)
		if err != nil {
			return ExecContinue, executorError("store", err)
		}
		v, err := m.StackPop(ValueInteger)
		if err != nil {
			return ExecContinue, executorError("store", err)
		}
		m.SetDataAt(idx, v)
		return ExecContinue, nil
	case OpAdd, OpSub, OpMul, OpDiv, OpAnd, OpOr, OpXor:
		return e.binary(m, op)
	case OpNot:
		return e.unary(m)
	case OpCmp:
		return e.compare(m)
	default:
		return ExecContinue, ErrUnknownOpcode
	}
}

func (e *IntegerExecutor) binary(m *MMU, op Opcode) (ExecOutcome, error) {
	b, err := m.StackPop(ValueInteger)
	if err != nil {
		return ExecContinue, executorError("int-binop", err)
	}
	a, err := m.StackPop(ValueInteger)
	if err != nil {
		return ExecContinue, executorError("int-binop", err)
	}
	ai, _ := a.Integer()
	bi, _ := b.Integer()
	var r int64
	switch op {
	case OpAdd:
		r = ai + bi
	case OpSub:
		r = ai - bi
	case OpMul:
		r = ai * bi
	case OpDiv:
		if bi == 0 {
			return ExecContinue, executorError("div", ErrOutOfBounds)
		}
		r = ai / bi
	case OpAnd:
		r = ai & bi
	case OpOr:
		r = ai | bi
	case OpXor:
		r = ai ^ bi
	}
	m.StackPush(IntegerValue(r))
	return ExecContinue, nil
}

func (e *IntegerExecutor) unary(m *MMU) (ExecOutcome, error) {
	a, err := m.StackPop(ValueInteger)
	if err != nil {
		return ExecContinue, executorError("not", err)
	}
	ai, _ := a.Integer()
	m.StackPush(IntegerValue(^ai))
	return ExecContinue, nil
}

func (e *IntegerExecutor) compare(m *MMU) (ExecOutcome, error) {
	b, err := m.StackPop(ValueInteger)
	if err != nil {
		return ExecContinue, executorError("cmp", err)
	}
	a, err := m.StackPop(ValueInteger)
	if err != nil {
		return ExecContinue, executorError("cmp", err)
	}
	ai, _ := a.Integer()
	bi, _ := b.Integer()
	switch {
	case ai < bi:
		m.Current().CompareResult = -1
	case ai > bi:
		m.Current().CompareResult = 1
	default:
		m.Current().CompareResult = 0
	}
	return ExecContinue, nil
}

// resolveOperandValue extracts the Value a push/store-style argument
// contributes: an immediate carries it directly, a reference is only
// legal once fully resolved to a data-section address (the linker's job
// to guarantee before execution ever sees it).
func resolveOperandValue(m *MMU, arg Argument, want ValueType) (Value, error) {
	switch arg.Kind {
	case ArgImmediateValue:
		if arg.Value.Type() != want {
			return Value{}, ErrTypeMismatch
		}
		return arg.Value, nil
	case ArgImmediateIndex:
		return m.DataAt(arg.Index)
	case ArgReference:
		if arg.Ref.GlobalSection != SectionData || !arg.Ref.IsSimple() {
			return Value{}, ErrBadSection
		}
		c := arg.Ref.Components[0]
		if c.Kind != BaseMemoryRef {
			return Value{}, ErrUndefinedSymbol
		}
		return m.DataAt(c.MemoryAddress)
	default:
		return Value{}, ErrBadSection
	}
}

func operandIndex(m *MMU, arg Argument) (uint64, error) {
	switch arg.Kind {
	case ArgImmediateIndex:
		return arg.Index, nil
	case ArgReference:
		if !arg.Ref.IsSimple() {
			return 0, ErrBadSection
		}
		c := arg.Ref.Components[0]
		if c.Kind != BaseMemoryRef {
			return 0, ErrUndefinedSymbol
		}
		return c.MemoryAddress, nil
	default:
		return 0, ErrBadSection
	}
}
