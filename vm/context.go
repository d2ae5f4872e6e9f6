package vm

import "github.com/google/uuid"

// ContextFlags is a bitset of execution-state flags carried by a Context.
type ContextFlags uint32

const (
	FlagNone ContextFlags = 0
	// FlagExit marks a context that has executed an exit command; the
	// interpreter's main loop breaks out as soon as it observes this.
	FlagExit ContextFlags = 1 << iota
)

func (f ContextFlags) Has(bit ContextFlags) bool { return f&bit != 0 }

// Context is one complete unit of linked, executable state: code, data,
// the per-type operand stacks, the symbol table that named them, and the
// instruction pointer. Contexts can be saved onto the MMU's context stack
// and restored later (the MMU's save_context/restore_context pair),
// which is what gives nested streaming-execute its "return to caller"
// semantics.
type Context struct {
	// debugLabel exists only to make contexts distinguishable in logs; it
	// plays no role in VM semantics and is never compared or persisted.
	debugLabel string

	IP    uint64
	Flags ContextFlags

	Code    []Command
	Data    []Value
	Bytepool []byte

	// stacks holds one growable operand stack per ValueType in active use.
	stacks map[ValueType][]Value

	Symbols SymbolMap

	// CompareResult holds the sign of the last cmp executed: -1, 0 or 1.
	// The service executor's conditional jumps read it; ClearContext
	// resets it to 0 and no other operation touches it.
	CompareResult int8

	// checksum caches the last computed digest of Code+Data+Symbols so the
	// JIT cache can key on it without rehashing the buffers on every call;
	// cleared whenever the buffers that feed it are mutated.
	checksum      uint64
	checksumValid bool

	// sharesContent marks a header-only duplicate pushed by save: restore
	// carries the current content buffers over onto it.
	sharesContent bool
}

func newContext() *Context {
	return &Context{
		debugLabel: uuid.NewString(),
		stacks:     make(map[ValueType][]Value),
		Symbols:    make(SymbolMap),
	}
}

func (c *Context) invalidateChecksum() { c.checksumValid = false }

// stack returns the operand stack for vt (nil if none has been pushed).
func (c *Context) stack(vt ValueType) []Value {
	return c.stacks[vt]
}

func (c *Context) setStack(vt ValueType, s []Value) {
	c.stacks[vt] = s
}

func (c *Context) pushStack(vt ValueType, v Value) {
	c.stacks[vt] = append(c.stacks[vt], v)
}

func (c *Context) popStack(vt ValueType) (Value, bool) {
	s := c.stacks[vt]
	if len(s) == 0 {
		return Value{}, false
	}
	top := s[len(s)-1]
	c.stacks[vt] = s[:len(s)-1]
	return top, true
}

func (c *Context) peekStack(vt ValueType) (Value, bool) {
	s := c.stacks[vt]
	if len(s) == 0 {
		return Value{}, false
	}
	return s[len(s)-1], true
}

// headerDup returns a new Context carrying a value copy of c's header
// (ip, flags, compare result) but sharing c's code/data/bytepool/
// symbols/stacks by reference. Mutating the shared contents through
// either context is visible to the other; only the header diverges.
// This is what lets save_context hand a nested program the caller's
// content while still being able to restore the caller's own header
// once the nested program is done with it.
func (c *Context) headerDup() *Context {
	return &Context{
		debugLabel:    c.debugLabel,
		IP:            c.IP,
		Flags:         c.Flags,
		CompareResult: c.CompareResult,
		Code:          c.Code,
		Data:          c.Data,
		Bytepool:      c.Bytepool,
		Symbols:       c.Symbols,
		stacks:        c.stacks,
		checksum:      c.checksum,
		checksumValid: c.checksumValid,
		sharesContent: true,
	}
}

// contextStack is the MMU's stack of saved Contexts: index 0 is the
// oldest save, the last element is the most recently pushed one.
type contextStack struct {
	current *Context
	saved   []*Context
}

func newContextStack() *contextStack {
	return &contextStack{current: newContext()}
}

// alloc pushes the current context onto the stack untouched and makes a
// fresh, empty context current. restore later hands the pushed context
// straight back, so a alloc/restore pair leaves the stack structurally
// unchanged.
func (s *contextStack) alloc() {
	s.saved = append(s.saved, s.current)
	s.current = newContext()
}

// save pushes a header-only duplicate of the current context — its
// code, data, bytepool, symbols and operand stacks stay shared with
// whatever remains current. A caller loading and immediately running a
// nested program keeps mutating the same current context in place (the
// nested program's pushes land on the same stacks the caller will see);
// restore later swaps back to the duplicate's snapshotted header,
// undoing whatever ip/flags the nested run left behind while keeping
// every content mutation it made.
func (s *contextStack) save() {
	s.saved = append(s.saved, s.current.headerDup())
}

func (s *contextStack) restore() error {
	if len(s.saved) == 0 {
		return ErrContextStackEmpty
	}
	n := len(s.saved) - 1
	prev := s.saved[n]
	if prev.sharesContent {
		// Appends made since save grew new slices on current; take them
		// back so only the header is restored.
		prev.Code, prev.Data, prev.Bytepool, prev.Symbols = s.current.Code, s.current.Data, s.current.Bytepool, s.current.Symbols
		prev.checksum, prev.checksumValid = s.current.checksum, s.current.checksumValid
		prev.sharesContent = false
	}
	s.current = prev
	s.saved = s.saved[:n]
	return nil
}

// clear resets the current context's header — ip, flags, compare result
// and operand stacks — while preserving its code, data, bytepool and
// symbols. Saved contexts beneath it are untouched.
func (s *contextStack) clear() {
	s.current.IP = 0
	s.current.Flags = FlagNone
	s.current.CompareResult = 0
	s.current.stacks = make(map[ValueType][]Value)
}

// reset discards every saved context as well as the current one.
func (s *contextStack) reset() {
	s.current = newContext()
	s.saved = nil
}

func (s *contextStack) depth() int { return len(s.saved) }
