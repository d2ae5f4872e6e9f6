package vm

import "fmt"

// IndirectionReader is the narrow surface Resolve needs to perform an
// indirection load: read the word stored at address within section.
// MMU implements it directly against the current context's buffers.
type IndirectionReader interface {
	ReadWord(section Section, address uint64) (uint64, error)
}

func (m *MMU) ReadWord(section Section, address uint64) (uint64, error) {
	switch section {
	case SectionData:
		v, err := m.DataAt(address)
		if err != nil {
			return 0, err
		}
		return v.ABIWord(), nil
	case SectionBytepool:
		bp := m.ReadBytepool()
		if address+8 > uint64(len(bp)) {
			return 0, ErrOutOfBounds
		}
		return beUint64(bp[address : address+8]), nil
	default:
		return 0, ErrBadSection
	}
}

// Linker implements both link strategies this runtime supports:
// a direct-link session that assigns concrete addresses to placeholder
// definitions as they're added (Init/Add/Commit), and a merge-link path
// that blindly unions two symbol tables and leaves correctness to a
// later Relocate pass. The direct-link session operates against a
// working copy of symbols rather than the MMU's installed table, so a
// session that fails partway never corrupts already-linked state;
// MergeLinkAdd writes straight into the MMU's table.
type Linker struct {
	mmu       *MMU
	session   SymbolMap
	offsets   Offsets
	active    bool
}

func NewLinker(mmu *MMU) *Linker {
	return &Linker{mmu: mmu}
}

// InitSession starts a direct-link session seeded from the MMU's
// currently installed symbols (so Add can detect redefinitions against
// everything already linked into the current context).
func (l *Linker) InitSession(offsets Offsets) {
	l.session = l.mmu.DumpSymbolImage()
	l.offsets = offsets
	l.active = true
}

// Add merges one incoming symbol into the session, assigning a concrete
// MemoryRef to any BaseDefinition component using the session's Offsets
// as a high-water mark (the assembler records, per placeholder, how many
// prior entries of that section existed in the same translation unit;
// Add turns that into an absolute address within the target context).
// A placeholder in SectionRegister/Frame/FrameBack is illegal: those
// sections are per-execution, not growable buffers a linker can place
// things into.
func (l *Linker) Add(sym Symbol) error {
	if !l.active {
		return fmt.Errorf("linker: Add called with no active session")
	}
	resolvedRef, err := l.placeDefinitions(sym.Reference)
	if err != nil {
		return err
	}
	sym.Reference = resolvedRef
	sym.IsResolved = referenceHasNoPlaceholder(resolvedRef)

	if existing, ok := l.session[sym.Hash]; ok {
		if existing.IsResolved && sym.IsResolved {
			return fmt.Errorf("%w: %q", ErrSymbolRedefined, sym.Name)
		}
		if !sym.IsResolved && existing.IsResolved {
			// Newer symbol didn't manage to resolve; keep the one that did.
			return nil
		}
	}
	l.session[sym.Hash] = sym
	return nil
}

func (l *Linker) placeDefinitions(ref Reference) (Reference, error) {
	out := Reference{GlobalSection: ref.GlobalSection, Components: make([]Component, len(ref.Components))}
	for i, c := range ref.Components {
		if c.Kind != BaseDefinition {
			out.Components[i] = c
			continue
		}
		if !ref.GlobalSection.Relocatable() {
			return Reference{}, fmt.Errorf("%w: cannot define a placeholder in section %s", ErrBadSection, ref.GlobalSection)
		}
		out.Components[i] = Component{
			Kind:          BaseMemoryRef,
			MemoryAddress: l.offsets.forSection(ref.GlobalSection) + c.MemoryAddress,
			Indirection:   c.Indirection,
		}
	}
	return out, nil
}

func referenceHasNoPlaceholder(ref Reference) bool {
	for _, c := range ref.Components {
		if c.Kind == BaseDefinition {
			return false
		}
	}
	return true
}

// Commit validates the session has no leftover placeholders and installs
// every symbol in it into the MMU's current context, ending the session.
func (l *Linker) Commit() error {
	if !l.active {
		return fmt.Errorf("linker: Commit called with no active session")
	}
	for _, sym := range l.session {
		if !referenceHasNoPlaceholder(sym.Reference) {
			return fmt.Errorf("%w: %q left unplaced at commit", ErrUndefinedSymbol, sym.Name)
		}
	}
	for _, sym := range l.session {
		l.mmu.SetSymbolImage(sym)
	}
	l.session = nil
	l.active = false
	return nil
}

// MergeLinkAdd unions an incoming symbol into the MMU's current context
// unconditionally, with no redefinition check: the caller is expected to
// run Relocate afterward, which is what actually makes colliding
// addresses consistent again.
func (l *Linker) MergeLinkAdd(sym Symbol) {
	l.mmu.SetSymbolImage(sym)
}

// Resolve walks a Reference down to a concrete section+address. Each
// component's base is resolved (a literal address, or — for a symbol
// reference — by recursively resolving that symbol's own Reference).
// A component carrying an Indirection additionally dereferences the
// resolved base as a word in that section and uses the loaded value as
// its contribution instead of the address itself; if the base isn't
// resolvable yet, the load is skipped and the whole reference comes
// back marked not fully resolved rather than erroring outright. At most
// one component may carry an Indirection.
func (l *Linker) Resolve(ref Reference, symbols SymbolMap, reader IndirectionReader) (DirectReference, bool, error) {
	if len(ref.Components) == 0 {
		return DirectReference{}, false, fmt.Errorf("%w: empty reference", ErrBadSection)
	}
	indirected := 0
	for _, c := range ref.Components {
		if c.Indirection != SectionNone {
			indirected++
		}
	}
	if indirected > 1 {
		return DirectReference{}, false, fmt.Errorf("%w: at most one component may be indirected", ErrBadSection)
	}

	var sum uint64
	fullyResolved := true
	for _, c := range ref.Components {
		base, resolved, err := l.resolveComponentBase(c, symbols, reader)
		if err != nil {
			return DirectReference{}, false, err
		}
		if !resolved {
			fullyResolved = false
			continue
		}
		if c.Indirection != SectionNone {
			word, err := reader.ReadWord(c.Indirection, base)
			if err != nil {
				return DirectReference{}, false, err
			}
			base = word
		}
		sum += base
	}
	return DirectReference{Section: ref.GlobalSection, Address: sum}, fullyResolved, nil
}

func (l *Linker) resolveComponentBase(c Component, symbols SymbolMap, reader IndirectionReader) (uint64, bool, error) {
	switch c.Kind {
	case BaseMemoryRef:
		return c.MemoryAddress, true, nil
	case BaseDefinition:
		return 0, false, nil
	case BaseSymbol:
		sym, ok := symbols[c.SymbolHash]
		if !ok {
			return 0, false, fmt.Errorf("%w: hash %x", ErrUndefinedSymbol, c.SymbolHash)
		}
		if !sym.IsResolved {
			return 0, false, nil
		}
		// An indirection on the aliased symbol's own reference is
		// dereferenced by this recursive call, through the same reader.
		direct, resolved, err := l.Resolve(sym.Reference, symbols, reader)
		if err != nil {
			return 0, false, err
		}
		return direct.Address, resolved, nil
	default:
		return 0, false, fmt.Errorf("%w: bad component kind", ErrBadSection)
	}
}

// Relocate shifts every defined, simple (single-component), plain
// MemoryRef symbol in symbols by delta on its section — the form a
// merge-linked symbol table needs after two contexts' buffers have been
// concatenated. Aliases (BaseSymbol), indirected components, and
// bi-component references are left untouched: relocating a stale base
// out from under a still-live indirection or alias would silently
// change what it points at.
func (l *Linker) Relocate(symbols SymbolMap, section Section, delta uint64) {
	for hash, sym := range symbols {
		if !sym.IsResolved || !sym.Reference.IsSimple() {
			continue
		}
		if sym.Reference.GlobalSection != section {
			continue
		}
		c := sym.Reference.Components[0]
		if c.Kind != BaseMemoryRef || c.Indirection != SectionNone {
			continue
		}
		c.MemoryAddress += delta
		sym.Reference.Components[0] = c
		symbols[hash] = sym
	}
}
