package vm

import "fmt"

// Facade is the single entry point embedding a program would use: it
// composes the MMU, Linker, Interpreter, JIT and the reader/writer/
// logger collaborators into the operations the runtime exposes. It is
// also the only layer where a JIT failure is allowed
// to downgrade into an interpreter run — everything below it treats a
// recoverable JIT error as just another error.
type Facade struct {
	mmu         *MMU
	cmdSet      *CommandSet
	linker      *Linker
	interpreter *Interpreter
	jit         *JIT
	reader      ImageReader
	writer      ImageWriter
	logger      Logger

	streamPending []byte
}

// FacadeOption customises a Facade at construction time.
type FacadeOption func(*Facade)

func WithReader(r ImageReader) FacadeOption { return func(f *Facade) { f.reader = r } }
func WithWriter(w ImageWriter) FacadeOption { return func(f *Facade) { f.writer = w } }
func WithLogger(l Logger) FacadeOption      { return func(f *Facade) { f.logger = l } }
func WithoutJIT() FacadeOption              { return func(f *Facade) { f.jit = nil } }

// NewFacade wires a ready-to-use runtime: the built-in CommandSet with
// its three executors installed, a fresh MMU/Linker/Interpreter, and a
// JIT backend (real on amd64, an always-declining stub elsewhere).
func NewFacade(console Console, opts ...FacadeOption) *Facade {
	cmdSet := NewCommandSet()
	cmdSet.Install(NewServiceExecutor())
	cmdSet.Install(NewIntegerExecutor())
	cmdSet.Install(NewFloatExecutor())

	mmu := NewMMU(cmdSet, console)
	f := &Facade{
		mmu:         mmu,
		cmdSet:      cmdSet,
		linker:      NewLinker(mmu),
		interpreter: NewInterpreter(mmu),
		jit:         NewJIT(),
		reader:      NewBinaryReader(),
		writer:      NewBinaryWriter(),
		logger:      nopLogger{},
	}
	for _, opt := range opts {
		opt(f)
	}
	f.interpreter.WithLogger(f.logger)
	return f
}

func (f *Facade) MMU() *MMU { return f.mmu }

// invalidateJIT discards any cached JIT image; every operation that
// changes what the current context's code means calls this, not the
// public Flush (which resets far more than the JIT cache).
func (f *Facade) invalidateJIT() {
	if f.jit != nil {
		f.jit.Reset()
	}
}

// Flush resets everything: every context on the MMU's stack is dropped,
// the CommandSet's installed executors are torn down and reinstalled
// fresh, and any cached JIT image is discarded. The next Exec starts
// from a configuration as bare as a brand-new Facade's.
func (f *Facade) Flush() {
	f.mmu.ResetEverything()
	f.cmdSet.Reset()
	f.cmdSet.Install(NewServiceExecutor())
	f.cmdSet.Install(NewIntegerExecutor())
	f.cmdSet.Install(NewFloatExecutor())
	f.streamPending = nil
	f.invalidateJIT()
	f.logger.Info("flush", nil)
}

// Reset clears the current context's ip, flags, compare result and
// operand stacks, leaving its code, data, bytepool and symbols exactly
// as they are. Saved contexts beneath it are untouched.
func (f *Facade) Reset() {
	f.mmu.ClearContext()
	f.streamPending = nil
	f.invalidateJIT()
	f.logger.Info("reset", nil)
}

// Clear discards the current context's code, data, bytepool and symbols
// wholesale, leaving its operand stacks as they are. Saved contexts
// beneath it are untouched.
func (f *Facade) Clear() {
	f.mmu.ResetBuffers()
	f.streamPending = nil
	f.invalidateJIT()
	f.logger.Info("clear", nil)
}

// Delete pops the current context back to whatever was saved beneath
// it, restoring that context's own header. It fails if there is nothing
// saved to pop to — restoring past the outermost context is never
// legal.
func (f *Facade) Delete() error {
	if err := f.mmu.RestoreContext(); err != nil {
		return err
	}
	f.streamPending = nil
	f.invalidateJIT()
	f.logger.Info("delete", nil)
	return nil
}

// Load reads an image produced by Dump (or an equivalent ImageReader)
// into the current context. A sectioned image is a Uniform snapshot:
// every Code/Data/Bytepool/Stack/Symbols section bulk-replaces the
// matching MMU buffer outright, reproducing exactly the context Dump
// captured — nothing already in the current context survives. A
// streaming image carries no sections at all; its raw command bytes are
// held for Exec to run via the interpreter's streaming mode. Loading a
// NonUniform, not-yet-linked assembler result onto an existing context
// incrementally is LoadAssembled, not this method.
func (f *Facade) Load(data []byte) error {
	if err := f.reader.RdSetup(data); err != nil {
		return err
	}
	defer f.reader.RdReset()

	if f.reader.Streaming() {
		stream, err := f.reader.ReadStream()
		if err != nil {
			return err
		}
		f.streamPending = stream
		f.logger.Info("load", map[string]interface{}{"mode": "stream", "bytes": len(stream)})
		return nil
	}

	f.streamPending = nil
	f.mmu.ResetBuffers()
	stacks := make(map[ValueType][]Value)
	symbols := make(SymbolMap)
	for {
		kind, payload, ok, err := f.reader.NextSection()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		switch kind {
		case ImageCode:
			cmds, err := DecodeCommands(f.cmdSet, payload)
			if err != nil {
				return err
			}
			f.mmu.ReplaceText(cmds)
		case ImageData:
			vals, err := DecodeValues(payload)
			if err != nil {
				return err
			}
			f.mmu.ReplaceData(vals)
		case ImageBytepool:
			f.mmu.ReplaceBytepool(payload)
		case ImageStack:
			vt, vals, err := DecodeStack(payload)
			if err != nil {
				return err
			}
			stacks[vt] = vals
		case ImageSymbols:
			s, err := DecodeSymbols(payload)
			if err != nil {
				return err
			}
			for hash, sym := range s {
				symbols[hash] = sym
			}
		default:
			return fmt.Errorf("vm: unknown image section %d", kind)
		}
	}
	f.mmu.ReplaceStacks(stacks)
	f.mmu.ReplaceSymbols(symbols)
	f.invalidateJIT()
	f.logger.Info("load", map[string]interface{}{"mode": "sectioned"})
	return nil
}

// LoadAssembled is the NonUniform load path: it takes an Assembler's not
// yet linked output and appends it onto whatever the current context
// already holds, running a direct-link session over its symbols so
// labels resolve against the placement the append just gave them.
// Unlike Load's Uniform snapshot, nothing already present is replaced —
// this is how a program grows by repeated assemble-then-load.
func (f *Facade) LoadAssembled(result AssembleResult) error {
	offsets := Offsets{
		Code:     uint64(len(f.mmu.ReadText())),
		Data:     uint64(len(f.mmu.ReadData())),
		Bytepool: uint64(len(f.mmu.ReadBytepool())),
	}
	f.mmu.InsertText(result.Code)
	f.linker.InitSession(offsets)
	for _, sym := range result.Symbols {
		if err := f.linker.Add(sym); err != nil {
			return err
		}
	}
	if err := f.linker.Commit(); err != nil {
		return err
	}
	f.invalidateJIT()
	f.logger.Info("load", map[string]interface{}{"mode": "assembled", "commands": len(result.Code)})
	return nil
}

// Dump serialises the current context's buffers, operand stacks and
// symbol table back into an image Load can read. Streaming-executed
// state has nothing to dump: the command bytes were never materialised
// into Code.
func (f *Facade) Dump() []byte {
	f.writer.WrSetup()
	f.writer.Write(ImageCode, EncodeCommands(f.mmu.ReadText()))
	f.writer.Write(ImageData, EncodeValues(f.mmu.ReadData()))
	if bp := f.mmu.ReadBytepool(); len(bp) > 0 {
		f.writer.Write(ImageBytepool, bp)
	}
	for vt, vals := range f.mmu.AllStacks() {
		f.writer.Write(ImageStack, EncodeStack(vt, vals))
	}
	f.writer.Write(ImageSymbols, EncodeSymbols(f.mmu.ReadSymbols()))
	out := f.writer.Bytes()
	f.writer.WrReset()
	return out
}

// Compile resolves every reference-typed argument in the current
// context's code against its symbol table, rewriting fully-resolved
// references to plain indices so Exec never pays for symbol lookup on
// the hot path. A reference that can't be fully resolved is a fatal
// error: by the time a caller asks to Compile, every symbol a program
// depends on is supposed to have been linked in already.
func (f *Facade) Compile() error {
	code := f.mmu.ReadText()
	symbols := f.mmu.ReadSymbols()
	for i := range code {
		if code[i].Arg.Kind != ArgReference {
			continue
		}
		direct, resolved, err := f.linker.Resolve(code[i].Arg.Ref, symbols, f.mmu)
		if err != nil {
			return err
		}
		if !resolved {
			return fmt.Errorf("%w: %s", ErrUndefinedSymbol, code[i].Arg.Ref)
		}
		code[i].Arg = IndexArgument(direct.Address)
		code[i].clearCache()
	}
	f.mmu.Current().invalidateChecksum()
	f.invalidateJIT()
	f.logger.Info("compile", map[string]interface{}{"commands": len(code)})
	return nil
}

// Exec runs the current context to completion. A streaming Load takes
// priority: its bytes are consumed exactly once, run against a fresh
// frame established exactly as spec §4.5 describes for the outermost
// streaming frame — SaveContext then ClearContext before RunStream,
// RestoreContext after. This is what keeps a stale FlagExit, ip or
// operand stack left over from whatever ran in this context before from
// ever being visible to the streamed program, and restores the caller's
// own header once that frame exits. Otherwise the JIT is tried first; a
// recoverable refusal falls back to the interpreter silently (logged at
// Warn), and any other JIT error is fatal.
func (f *Facade) Exec() error {
	if f.streamPending != nil {
		stream := f.streamPending
		f.streamPending = nil
		f.mmu.SaveContext()
		f.mmu.ClearContext()
		runErr := f.interpreter.RunStream(stream)
		if err := f.mmu.RestoreContext(); err != nil && runErr == nil {
			runErr = err
		}
		return runErr
	}

	if f.jit != nil {
		err := f.jit.Exec(f.mmu)
		if err == nil {
			return nil
		}
		var jitErr *JITError
		if okAs(err, &jitErr) && jitErr.Recoverable {
			f.logger.Warn("jit declined, falling back to interpreter", map[string]interface{}{"error": jitErr.Error()})
		} else {
			return err
		}
	}
	return f.interpreter.Run()
}

// okAs is a direct type assertion standing in for errors.As, kept local
// so this file doesn't need to import "errors" just for one call site.
// It does not unwrap: only an error that is itself a *JITError matches.
func okAs(err error, target **JITError) bool {
	je, ok := err.(*JITError)
	if !ok {
		return false
	}
	*target = je
	return true
}
