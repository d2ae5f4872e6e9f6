package vm

// MMU owns all execution-time state: the context stack, the per-type
// operand stacks of the current context, and the CommandSet used to
// dispatch commands. Every Executor receives the MMU as its sole
// surface onto VM state; it reaches the current Context's ip, flags and
// compare result through MMU.Current.
type MMU struct {
	ctxs    *contextStack
	cmdSet  *CommandSet
	console Console
}

// Console is the narrow read/write surface the service executor's
// writec/readc opcodes use. NewFacade takes it from the caller (nil
// means no console); StdConsole (console.go) is the buffered stdio
// implementation cmd/corevm passes in.
type Console interface {
	WriteByte(b byte) error
	ReadByte() (byte, error)
}

func NewMMU(cmdSet *CommandSet, console Console) *MMU {
	return &MMU{ctxs: newContextStack(), cmdSet: cmdSet, console: console}
}

func (m *MMU) CommandSet() *CommandSet { return m.cmdSet }

// Current returns the active context. It is never nil: the context
// stack always has a current context, even if freshly reset.
func (m *MMU) Current() *Context { return m.ctxs.current }

// AllocContext pushes the current context untouched and makes a fresh,
// empty one current. Paired with RestoreContext this round-trips back
// to exactly the context that was current before the call.
func (m *MMU) AllocContext() { m.ctxs.alloc() }

// SaveContext pushes a header-only snapshot (ip, flags, compare result)
// of the current context, leaving its code/data/bytepool/symbols/stacks
// shared with whatever stays current. Used when a loaded program is run
// inside the caller's own context: the nested run's pushes land on the
// same stacks the caller will see once RestoreContext swaps the header
// back.
func (m *MMU) SaveContext() { m.ctxs.save() }

// RestoreContext pops back to the previously saved context.
func (m *MMU) RestoreContext() error { return m.ctxs.restore() }

// ClearContext resets the current context's ip, flags, compare result
// and operand stacks; its code, data, bytepool and symbols are left as
// they are, and saved contexts beneath it are untouched.
func (m *MMU) ClearContext() { m.ctxs.clear() }

// ResetBuffers clears the current context's code/data/bytepool/symbols
// but leaves its operand stacks as they are.
func (m *MMU) ResetBuffers() {
	c := m.Current()
	c.Code = nil
	c.Data = nil
	c.Bytepool = nil
	c.Symbols = make(SymbolMap)
	c.invalidateChecksum()
}

// ResetEverything drops every saved context as well as the current one.
func (m *MMU) ResetEverything() { m.ctxs.reset() }

// ContextDepth reports how many contexts are saved beneath the current
// one (0 means the current context is the outermost).
func (m *MMU) ContextDepth() int { return m.ctxs.depth() }

// InsertText appends Commands to the current context's code buffer,
// returning the starting offset they were placed at (for the linker's
// high-water-mark bookkeeping).
func (m *MMU) InsertText(cmds []Command) uint64 {
	c := m.Current()
	start := uint64(len(c.Code))
	c.Code = append(c.Code, cmds...)
	c.invalidateChecksum()
	return start
}

// InsertData appends Values to the current context's data buffer,
// returning the starting offset.
func (m *MMU) InsertData(vals []Value) uint64 {
	c := m.Current()
	start := uint64(len(c.Data))
	c.Data = append(c.Data, vals...)
	c.invalidateChecksum()
	return start
}

// InsertBytepool appends raw bytes to the current context's byte pool,
// returning the starting offset.
func (m *MMU) InsertBytepool(b []byte) uint64 {
	c := m.Current()
	start := uint64(len(c.Bytepool))
	c.Bytepool = append(c.Bytepool, b...)
	c.invalidateChecksum()
	return start
}

func (m *MMU) ReadText() []Command   { return m.Current().Code }
func (m *MMU) ReadData() []Value     { return m.Current().Data }
func (m *MMU) ReadBytepool() []byte  { return m.Current().Bytepool }
func (m *MMU) ReadSymbols() SymbolMap { return m.Current().Symbols }

// ReadStack returns the live operand stack for vt on the current
// context, top-last.
func (m *MMU) ReadStack(vt ValueType) []Value { return m.Current().stack(vt) }

// AllStacks returns every non-empty operand stack of the current
// context, keyed by ValueType, for Dump to serialise wholesale.
func (m *MMU) AllStacks() map[ValueType][]Value {
	out := make(map[ValueType][]Value, len(m.Current().stacks))
	for vt, s := range m.Current().stacks {
		if len(s) == 0 {
			continue
		}
		out[vt] = s
	}
	return out
}

// ReplaceText discards the current context's code buffer wholesale and
// installs cmds in its place — the bulk-replace half of read_text,
// used by a Uniform image load rather than the incremental InsertText.
func (m *MMU) ReplaceText(cmds []Command) {
	m.Current().Code = cmds
	m.Current().invalidateChecksum()
}

// ReplaceData is ReplaceText's counterpart for the data buffer.
func (m *MMU) ReplaceData(vals []Value) {
	m.Current().Data = vals
	m.Current().invalidateChecksum()
}

// ReplaceBytepool is ReplaceText's counterpart for the byte pool.
func (m *MMU) ReplaceBytepool(b []byte) {
	m.Current().Bytepool = b
	m.Current().invalidateChecksum()
}

// ReplaceSymbols discards the current context's symbol table wholesale
// and installs symbols in its place, with no redefinition checking —
// Uniform images are a full snapshot, not an incremental link.
func (m *MMU) ReplaceSymbols(symbols SymbolMap) {
	if symbols == nil {
		symbols = make(SymbolMap)
	}
	m.Current().Symbols = symbols
	m.Current().invalidateChecksum()
}

// ReplaceStacks discards every operand stack of the current context and
// installs stacks in its place.
func (m *MMU) ReplaceStacks(stacks map[ValueType][]Value) {
	if stacks == nil {
		stacks = make(map[ValueType][]Value)
	}
	m.Current().stacks = stacks
}

// ACommand fetches the command at ip in the current context's code. The
// second return is false if ip is out of range.
func (m *MMU) ACommand(ip uint64) (Command, bool) {
	c := m.Current().Code
	if ip >= uint64(len(c)) {
		return Command{}, false
	}
	return c[ip], true
}

// ACommandPtr is like ACommand but returns a pointer into the live code
// slice, so CommandSet.GetExecutionHandle's cache write survives across
// calls (a loop body re-fetching the same ip hits the cache instead of
// re-resolving the executor every iteration).
func (m *MMU) ACommandPtr(ip uint64) (*Command, bool) {
	c := m.Current().Code
	if ip >= uint64(len(c)) {
		return nil, false
	}
	return &c[ip], true
}

// ASymbol looks a symbol up by name hash in the current context.
func (m *MMU) ASymbol(hash uint64) (Symbol, bool) {
	s, ok := m.Current().Symbols[hash]
	return s, ok
}

// SetSymbolImage installs sym into the current context's symbol table,
// keyed by its own hash, overwriting whatever was there.
func (m *MMU) SetSymbolImage(sym Symbol) {
	m.Current().Symbols[sym.Hash] = sym
	m.Current().invalidateChecksum()
}

// DumpSymbolImage returns a defensive copy of the current context's
// symbol table, for Linker.InitSession to seed its working map from.
func (m *MMU) DumpSymbolImage() SymbolMap { return m.Current().Symbols.Clone() }

// StackPush pushes v onto the operand stack selected by v's own type.
func (m *MMU) StackPush(v Value) {
	m.Current().pushStack(v.Type(), v)
}

// StackPop pops from the stack selected by vt.
func (m *MMU) StackPop(vt ValueType) (Value, error) {
	v, ok := m.Current().popStack(vt)
	if !ok {
		return Value{}, ErrOutOfBounds
	}
	return v, nil
}

// StackTop peeks the top of the stack selected by vt without removing it.
func (m *MMU) StackTop(vt ValueType) (Value, error) {
	v, ok := m.Current().peekStack(vt)
	if !ok {
		return Value{}, ErrOutOfBounds
	}
	return v, nil
}

// DataAt reads Data[index] from the current context.
func (m *MMU) DataAt(index uint64) (Value, error) {
	c := m.Current()
	if index >= uint64(len(c.Data)) {
		return Value{}, ErrOutOfBounds
	}
	return c.Data[index], nil
}

// SetDataAt writes Data[index] in the current context, growing the
// buffer with ValueNone entries if index is beyond its current length.
func (m *MMU) SetDataAt(index uint64, v Value) {
	c := m.Current()
	if index >= uint64(len(c.Data)) {
		grown := make([]Value, index+1)
		copy(grown, c.Data)
		c.Data = grown
	}
	c.Data[index] = v
	c.invalidateChecksum()
}

// ChecksumState returns a stable digest of the current context's
// code+data+symbols (bytepool deliberately excluded, matching its
// treatment as execution scratch rather than program identity). Equal
// digests across two Load calls mean the JIT's cached image for the
// previous digest is still valid.
func (m *MMU) ChecksumState() uint64 {
	c := m.Current()
	if c.checksumValid {
		return c.checksum
	}
	d := newChecksumDigest()
	for _, cmd := range c.Code {
		enc := cmd.Encode()
		d.writeUint64(uint64(len(enc)))
		d.d.Write(enc)
	}
	for _, v := range c.Data {
		d.writeUint64(uint64(v.Type()))
		d.writeUint64(v.ABIWord())
	}
	hashes := make([]uint64, 0, len(c.Symbols))
	for h := range c.Symbols {
		hashes = append(hashes, h)
	}
	sortUint64s(hashes)
	for _, h := range hashes {
		sym := c.Symbols[h]
		d.writeUint64(h)
		d.writeUint64(boolToUint64(sym.IsResolved))
		for _, comp := range sym.Reference.Components {
			d.writeUint64(uint64(comp.Kind))
			d.writeUint64(comp.SymbolHash)
			d.writeUint64(comp.MemoryAddress)
			d.writeUint64(uint64(comp.Indirection))
		}
	}
	c.checksum = d.sum()
	c.checksumValid = true
	return c.checksum
}

func boolToUint64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// sortUint64s is a tiny insertion sort: checksum inputs are small
// (symbol counts per program), so avoiding a sort.Slice closure
// allocation here is cheap and keeps this file free of imports.
func sortUint64s(s []uint64) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
