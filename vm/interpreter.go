package vm

import "errors"

// Interpreter is the fetch-execute execution strategy: it always
// produces a result, in contrast to the JIT backend which may decline a
// buffer it can't lower. The JIT backend, when installed, is consulted
// first by the facade; the Interpreter is both the fallback and the
// reference behavior the JIT's output must agree with byte for byte.
type Interpreter struct {
	mmu    *MMU
	logger Logger
}

func NewInterpreter(mmu *MMU) *Interpreter {
	return &Interpreter{mmu: mmu, logger: nopLogger{}}
}

// WithLogger attaches the Logger RunStream reports its preliminary-EOF
// warning through. Facade wires its own Logger in once NewFacade's
// options have all run; callers that never attach one (InvokeNestedStream's
// throwaway Interpreter, direct test construction) keep the nopLogger
// default, which is silent but still behaviorally correct.
func (in *Interpreter) WithLogger(l Logger) *Interpreter {
	if l != nil {
		in.logger = l
	}
	return in
}

// Run executes the current context's code buffer from its current IP
// until an exit command sets FlagExit or IP runs past the end of code
// (a program simply falling off the end is a normal, not an error,
// termination). Most commands leave IP untouched, in which case Run
// advances it by one; a command that itself assigned IP (a jump) is
// detected by comparing IP before and after the call and is trusted
// as-is — this is what lets a conditional jump either fall through or
// redirect without the executor needing to report "was this a jump".
func (in *Interpreter) Run() error {
	m := in.mmu
	for {
		ip := m.Current().IP
		cmd, ok := m.ACommandPtr(ip)
		if !ok {
			return nil
		}
		exec, handle, err := m.cmdSet.GetExecutionHandle(cmd)
		if err != nil {
			return err
		}
		outcome, err := exec.Execute(m, handle, cmd.Arg)
		if err != nil {
			return err
		}
		if m.Current().Flags.Has(FlagExit) || outcome == ExecHalted {
			return nil
		}
		if m.Current().IP == ip {
			m.Current().IP = ip + 1
		}
	}
}

// RunStream executes a sequence of wire-encoded commands directly, one
// decode-then-execute step at a time, without ever materialising them
// into the context's code buffer. Streaming programs cannot jump to a
// code offset that doesn't exist as a buffer index, and have no symbol
// table to link against: a command whose reference names a symbol fails
// with ErrStreamSymbolsForbidden. A trailing, incomplete record (ErrStreamEOF — too few bytes
// remain for a complete element) is the spec's preliminary-EOF warning:
// it is logged and the frame exits cleanly as if it had run an explicit
// exit. A record that decodes to something outright illegal
// (ErrStreamDecode) is still fatal; there is no recovery path for that.
func (in *Interpreter) RunStream(data []byte) error {
	m := in.mmu
	pos := 0
	for pos < len(data) {
		cmd, consumed, err := m.cmdSet.Decode(data[pos:])
		if err != nil {
			if errors.Is(err, ErrStreamEOF) {
				in.logger.Warn("preliminary EOF in command stream", map[string]interface{}{"remaining_bytes": len(data) - pos})
				m.Current().Flags |= FlagExit
				return nil
			}
			return err
		}
		pos += consumed
		if cmd.Arg.Kind == ArgReference {
			for _, c := range cmd.Arg.Ref.Components {
				if c.Kind == BaseSymbol {
					return ErrStreamSymbolsForbidden
				}
			}
		}
		exec, handle, err := m.cmdSet.GetExecutionHandle(&cmd)
		if err != nil {
			return err
		}
		outcome, err := exec.Execute(m, handle, cmd.Arg)
		if err != nil {
			return err
		}
		if m.Current().Flags.Has(FlagExit) || outcome == ExecHalted {
			return nil
		}
	}
	return nil
}

// InvokeNestedStream runs a wire-encoded command stream as a nested
// program inside a saved copy of the current context's header: the
// nested stream keeps mutating the same context in place (so its pushes
// land on the operand stacks the caller already has), and once it's
// done — normally or by error — the caller's own header is restored,
// undoing any ip/flags the nested run left behind. This is the
// mechanism the OpInvoke opcode builds on to let a running program load
// and execute a further one. The facade's streaming Exec does not call
// it; it runs its own save/clear/run/restore sequence.
func InvokeNestedStream(m *MMU, data []byte) error {
	m.SaveContext()
	runErr := NewInterpreter(m).RunStream(data)
	if err := m.RestoreContext(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
