package vm

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Assembler turns the textual form into Commands plus the Symbols a
// Linker session needs to place their labels. It is deliberately small:
// one mnemonic per line, an optional `.i`/`.f` type suffix, and at most
// one operand — immediate literal, `#index`, a bare label (a code-
// section reference) or `@label` (a data-section reference). Grounded
// on the teacher's line-oriented, label-substituting assembler
// (compile.go's preprocessLine/CompileSourceFromBuffer), reworked to
// emit linker-resolvable References instead of textually patching
// addresses in place.
type Assembler struct {
	cmdSet *CommandSet
}

func NewAssembler(cs *CommandSet) *Assembler { return &Assembler{cmdSet: cs} }

var labelLine = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*):\s*$`)
var commentLine = regexp.MustCompile(`^\s*([;#].*)?$`)

// AssembleResult is everything a Load's ImageCode/ImageSymbols sections
// need: the code buffer and the symbol table recording each label's
// placeholder. Both are ready to pass straight to a Linker session.
type AssembleResult struct {
	Code    []Command
	Symbols SymbolMap
}

func (a *Assembler) Assemble(src string) (AssembleResult, error) {
	result := AssembleResult{Symbols: make(SymbolMap)}
	for lineNo, raw := range strings.Split(src, "\n") {
		line := strings.TrimSpace(raw)
		if commentLine.MatchString(line) {
			continue
		}
		if m := labelLine.FindStringSubmatch(line); m != nil {
			name := m[1]
			hash := HashSymbolName(name)
			result.Symbols[hash] = Symbol{
				Name:   name,
				Hash:   hash,
				Reference: SimpleReference(SectionCode, Component{
					Kind:          BaseDefinition,
					MemoryAddress: uint64(len(result.Code)),
				}),
			}
			continue
		}
		cmd, err := a.assembleLine(line, result.Symbols)
		if err != nil {
			return AssembleResult{}, fmt.Errorf("line %d: %w", lineNo+1, err)
		}
		result.Code = append(result.Code, cmd)
	}
	return result, nil
}

func (a *Assembler) assembleLine(line string, symbols SymbolMap) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("empty instruction")
	}
	mnemonic, vt := splitMnemonic(fields[0])
	op, ok := a.cmdSet.OpcodeByName(mnemonic)
	if !ok {
		return Command{}, fmt.Errorf("unknown mnemonic %q", mnemonic)
	}
	if len(fields) == 1 {
		return NewCommand(op, vt, NoArgument()), nil
	}
	arg, err := a.assembleOperand(fields[1], vt, symbols)
	if err != nil {
		return Command{}, err
	}
	return NewCommand(op, vt, arg), nil
}

func splitMnemonic(tok string) (string, ValueType) {
	name, suffix, found := strings.Cut(tok, ".")
	if !found {
		return name, ValueNone
	}
	switch suffix {
	case "i":
		return name, ValueInteger
	case "f":
		return name, ValueFloat
	default:
		return name, ValueNone
	}
}

func (a *Assembler) assembleOperand(tok string, vt ValueType, symbols SymbolMap) (Argument, error) {
	switch {
	case strings.HasPrefix(tok, "#"):
		idx, err := strconv.ParseUint(tok[1:], 10, 64)
		if err != nil {
			return Argument{}, fmt.Errorf("bad index operand %q: %w", tok, err)
		}
		return IndexArgument(idx), nil
	case strings.HasPrefix(tok, "@"):
		name := tok[1:]
		return ReferenceArgument(symbolReference(SectionData, name)), nil
	default:
		if v, ok := tryParseImmediate(tok, vt); ok {
			return ImmediateArgument(v), nil
		}
		return ReferenceArgument(symbolReference(SectionCode, tok)), nil
	}
}

func symbolReference(section Section, name string) Reference {
	return SimpleReference(section, Component{Kind: BaseSymbol, SymbolHash: HashSymbolName(name)})
}

func tryParseImmediate(tok string, vt ValueType) (Value, bool) {
	switch vt {
	case ValueFloat:
		f, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return Value{}, false
		}
		return FloatValue(f), true
	default:
		i, err := strconv.ParseInt(tok, 10, 64)
		if err != nil {
			return Value{}, false
		}
		return IntegerValue(i), true
	}
}
