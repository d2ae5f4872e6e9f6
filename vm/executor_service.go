package vm

// ServiceExecutor runs every type-agnostic opcode: control flow, exit,
// and console I/O. It is tried before the Integer/Float executors for
// any opcode CommandSet's table marks untyped (see opcodes.go).
type ServiceExecutor struct{}

func NewServiceExecutor() *ServiceExecutor { return &ServiceExecutor{} }

func (e *ServiceExecutor) ID() ExecutorID         { return ExecutorService }
func (e *ServiceExecutor) SupportedType() ValueType { return ValueNone }

func (e *ServiceExecutor) Execute(m *MMU, handle Handle, arg Argument) (ExecOutcome, error) {
	op := Opcode(handle)
	switch op {
	case OpNop:
		return ExecContinue, nil
	case OpExit:
		m.Current().Flags |= FlagExit
		return ExecHalted, nil
	case OpJmp:
		return ExecContinue, e.jumpTo(m, arg)
	case OpJz:
		return e.jumpIf(m, arg, m.Current().CompareResult == 0)
	case OpJnz:
		return e.jumpIf(m, arg, m.Current().CompareResult != 0)
	case OpJl:
		return e.jumpIf(m, arg, m.Current().CompareResult < 0)
	case OpJle:
		return e.jumpIf(m, arg, m.Current().CompareResult <= 0)
	case OpJg:
		return e.jumpIf(m, arg, m.Current().CompareResult > 0)
	case OpJge:
		return e.jumpIf(m, arg, m.Current().CompareResult >= 0)
	case OpWritec:
		return ExecContinue, e.writec(m, arg)
	case OpReadc:
		return ExecContinue, e.readc(m)
	case OpInvoke:
		return ExecContinue, e.invoke(m, arg)
	default:
		return ExecContinue, ErrUnknownOpcode
	}
}

func (e *ServiceExecutor) jumpIf(m *MMU, arg Argument, take bool) (ExecOutcome, error) {
	if !take {
		return ExecContinue, nil
	}
	return ExecContinue, e.jumpTo(m, arg)
}

func (e *ServiceExecutor) jumpTo(m *MMU, arg Argument) error {
	target, err := operandIndex(m, arg)
	if err != nil {
		return executorError("jmp", err)
	}
	m.Current().IP = target
	return nil
}

func (e *ServiceExecutor) writec(m *MMU, arg Argument) error {
	if m.console == nil {
		return executorError("writec", ErrBadSection)
	}
	v, err := resolveOperandValue(m, arg, ValueInteger)
	if err != nil {
		return executorError("writec", err)
	}
	iv, _ := v.Integer()
	return m.console.WriteByte(byte(iv))
}

// invoke reads the (start, length) range arg points at out of the
// current context's byte pool and runs it as a nested, saved-context
// command stream — the running-program counterpart to the facade
// loading and executing a program from the outside.
func (e *ServiceExecutor) invoke(m *MMU, arg Argument) error {
	packed, err := operandIndex(m, arg)
	if err != nil {
		return executorError("invoke", err)
	}
	start, length := UnpackInvokeRange(packed)
	bp := m.ReadBytepool()
	if start > uint64(len(bp)) || length > uint64(len(bp))-start {
		return executorError("invoke", ErrOutOfBounds)
	}
	return InvokeNestedStream(m, bp[start:start+length])
}

func (e *ServiceExecutor) readc(m *MMU) error {
	if m.console == nil {
		return executorError("readc", ErrBadSection)
	}
	b, err := m.console.ReadByte()
	if err != nil {
		return executorError("readc", err)
	}
	m.StackPush(IntegerValue(int64(b)))
	return nil
}
