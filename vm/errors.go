package vm

import "errors"

// Sentinel errors returned by MMU/Linker/Interpreter operations. Category
// follows the facade's contract: fatal errors abort Exec entirely, input
// errors are reported to the caller without touching execution state.
var (
	// ErrNoContext names the no-current-context condition. No MMU
	// operation returns it: the MMU always has a current context (see
	// MMU.Current).
	ErrNoContext = errors.New("vm: no current context")

	// ErrContextStackEmpty is returned by RestoreContext when there is
	// nothing saved to restore.
	ErrContextStackEmpty = errors.New("vm: context stack is empty")

	// ErrUndefinedSymbol is returned by Resolve and by Commit when a
	// reference or merge depends on a symbol that never became defined.
	ErrUndefinedSymbol = errors.New("vm: undefined symbol")

	// ErrSymbolRedefined is returned by Linker.Add when two resolved
	// symbols of the same name collide in a single direct-link session.
	ErrSymbolRedefined = errors.New("vm: symbol redefined")

	// ErrBadSection is returned when a reference or relocation names a
	// section that cannot appear there (e.g. a Register definition).
	ErrBadSection = errors.New("vm: illegal section for this operation")

	// ErrOutOfBounds is returned by stack/buffer reads and writes that
	// index past the current context's data.
	ErrOutOfBounds = errors.New("vm: index out of bounds")

	// ErrTypeMismatch is returned when a Value of the wrong ValueType is
	// used where another was required (e.g. pushed onto the wrong stack).
	ErrTypeMismatch = errors.New("vm: value type mismatch")

	// ErrUnknownOpcode is returned by CommandSet.ExecutorFor,
	// GetExecutionHandle and the executors when an opcode has no
	// registered mnemonic/executor pairing. CommandSet.Decode reports an
	// unknown opcode id as ErrStreamDecode instead.
	ErrUnknownOpcode = errors.New("vm: unknown opcode")

	// ErrStreamSymbolsForbidden is returned by RunStream when a streamed
	// command's reference names a symbol; streaming programs may not link.
	ErrStreamSymbolsForbidden = errors.New("vm: symbols are not allowed while streaming")

	// ErrStreamDecode is returned when a streamed byte sequence does not
	// decode to a legal command. Streaming has no recovery path for this.
	ErrStreamDecode = errors.New("vm: non-command data encountered in stream")

	// ErrStreamEOF is returned by Decode when the remaining bytes are too
	// few to hold a complete element — a trailing, incomplete record
	// rather than a malformed one. RunStream treats this as the spec's
	// preliminary-EOF warning: it is logged and the frame exits cleanly,
	// never propagated as a hard error the way ErrStreamDecode is.
	ErrStreamEOF = errors.New("vm: incomplete trailing record in stream")

	// ErrJITUnsupported signals a recoverable JIT failure: the caller
	// should fall back to the interpreter rather than treat this as fatal.
	ErrJITUnsupported = errors.New("vm: jit cannot lower this buffer")
)

// JITError distinguishes a recoverable compilation failure (fall back to
// the interpreter) from a fatal one (surface to the caller, abort Exec).
type JITError struct {
	Recoverable bool
	Err         error
}

func (e *JITError) Error() string { return e.Err.Error() }
func (e *JITError) Unwrap() error { return e.Err }

func recoverableJITError(err error) *JITError {
	return &JITError{Recoverable: true, Err: err}
}

func fatalJITError(err error) *JITError {
	return &JITError{Recoverable: false, Err: err}
}
