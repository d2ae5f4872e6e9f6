package vm

// jitCompiler is implemented per architecture: jit_amd64.go carries the
// real x86-64 backend, jit_stub.go is the always-refuse fallback for
// every other GOARCH.
type jitCompiler interface {
	compile(ctx *Context) (*compiledProgram, error)
}

// compiledProgram is a cached, ready-to-run image: its checksum is the
// MMU state digest it was compiled from, and run drives it against a
// live MMU, setting FlagExit and pushing the single value the image
// leaves on top of the stack of the last value type it touched; the
// other values the interpreter would leave on the stacks are not
// written back.
type compiledProgram struct {
	checksum uint64
	run      func(m *MMU) error
	release  func()
}

// JIT wraps a jitCompiler with a checksum-keyed cache. Exec either runs
// a cached image, compiles and caches a fresh one, or returns a
// *JITError: Recoverable true means "fall back to the interpreter",
// Recoverable false means the failure must propagate as-is.
type JIT struct {
	compiler jitCompiler
	cache    map[uint64]*compiledProgram
}

func NewJIT() *JIT {
	return &JIT{compiler: newPlatformCompiler(), cache: make(map[uint64]*compiledProgram)}
}

func (j *JIT) Exec(m *MMU) error {
	checksum := m.ChecksumState()
	prog, ok := j.cache[checksum]
	if !ok {
		var err error
		prog, err = j.compiler.compile(m.Current())
		if err != nil {
			return err
		}
		prog.checksum = checksum
		j.cache[checksum] = prog
	}
	return prog.run(m)
}

// Reset releases every cached image's executable memory and empties the
// cache. Called whenever the command set or installed executors change,
// since a cached image silently assumes the opcode semantics it was
// compiled against still hold.
func (j *JIT) Reset() {
	for _, prog := range j.cache {
		if prog.release != nil {
			prog.release()
		}
	}
	j.cache = make(map[uint64]*compiledProgram)
}
