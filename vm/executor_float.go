package vm

// FloatExecutor runs every typed opcode whose Command.ValueType is
// ValueFloat. Bitwise ops (and/or/xor/not) have no float form; a program
// that emits one with ValueType Float was built wrong and fails fast.
type FloatExecutor struct{}

func NewFloatExecutor() *FloatExecutor { return &FloatExecutor{} }

func (e *FloatExecutor) ID() ExecutorID         { return ExecutorFloat }
func (e *FloatExecutor) SupportedType() ValueType { return ValueFloat }

func (e *FloatExecutor) Execute(m *MMU, handle Handle, arg Argument) (ExecOutcome, error) {
	op := Opcode(handle)
	switch op {
	case OpPush:
		v, err := resolveOperandValue(m, arg, ValueFloat)
		if err != nil {
			return ExecContinue, executorError("push", err)
		}
		m.StackPush(v)
		return ExecContinue, nil
	case OpPop:
		if _, err := m.StackPop(ValueFloat); err != nil {
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
		v, err := m.StackPop(ValueFloat)
		if err != nil {
			return ExecContinue, executorError("store", err)
		}
		m.SetDataAt(idx, v)
		return ExecContinue, nil
	case OpAdd, OpSub, OpMul, OpDiv:
		return e.binary(m, op)
	case OpCmp:
		return e.compare(m)
	default:
		return ExecContinue, ErrUnknownOpcode
	}
}

func (e *FloatExecutor) binary(m *MMU, op Opcode) (ExecOutcome, error) {
	b, err := m.StackPop(ValueFloat)
	if err != nil {
		return ExecContinue, executorError("float-binop", err)
	}
	a, err := m.StackPop(ValueFloat)
	if err != nil {
		return ExecContinue, executorError("float-binop", err)
	}
	af, _ := a.Float()
	bf, _ := b.Float()
	var r float64
	switch op {
	case OpAdd:
		r = af + bf
	case OpSub:
		r = af - bf
	case OpMul:
		r = af * bf
	case OpDiv:
		if bf == 0 {
			return ExecContinue, executorError("div", ErrOutOfBounds)
		}
		r = af / bf
	}
	m.StackPush(FloatValue(r))
	return ExecContinue, nil
}

func (e *FloatExecutor) compare(m *MMU) (ExecOutcome, error) {
	b, err := m.StackPop(ValueFloat)
	if err != nil {
		return ExecContinue, executorError("cmp", err)
	}
	a, err := m.StackPop(ValueFloat)
	if err != nil {
		return ExecContinue, executorError("cmp", err)
	}
	af, _ := a.Float()
	bf, _ := b.Float()
	switch {
	case af < bf:
		m.Current().CompareResult = -1
	case af > bf:
		m.Current().CompareResult = 1
	default:
		m.Current().CompareResult = 0
	}
	return ExecContinue, nil
}
