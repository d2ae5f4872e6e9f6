package vm

// ImageWriter is the facade's output collaborator for Dump: the inverse
// of ImageReader. The default BinaryWriter produces exactly the format
// BinaryReader consumes.
type ImageWriter interface {
	WrSetup()
	Write(kind ImageSection, payload []byte) error
	Bytes() []byte
	WrReset()
}

type BinaryWriter struct {
	buf []byte
}

func NewBinaryWriter() *BinaryWriter { return &BinaryWriter{} }

func (w *BinaryWriter) WrSetup() {
	w.buf = []byte{byte(modeSectioned)}
}

func (w *BinaryWriter) Write(kind ImageSection, payload []byte) error {
	if w.buf == nil {
		w.WrSetup()
	}
	header := make([]byte, 9)
	header[0] = byte(kind)
	putBeUint64(header[1:], uint64(len(payload)))
	w.buf = append(w.buf, header...)
	w.buf = append(w.buf, payload...)
	return nil
}

func (w *BinaryWriter) Bytes() []byte { return w.buf }

func (w *BinaryWriter) WrReset() { w.buf = nil }

// EncodeCommands serialises a code buffer to its wire form, the payload
// Write expects for an ImageCode section.
func EncodeCommands(cmds []Command) []byte {
	var out []byte
	for _, c := range cmds {
		out = append(out, c.Encode()...)
	}
	return out
}

// DecodeCommands is the inverse of EncodeCommands, used when reading an
// ImageCode section back with a CommandSet to decode against.
func DecodeCommands(cs *CommandSet, payload []byte) ([]Command, error) {
	var out []Command
	pos := 0
	for pos < len(payload) {
		cmd, n, err := cs.Decode(payload[pos:])
		if err != nil {
			return nil, err
		}
		out = append(out, cmd)
		pos += n
	}
	return out, nil
}

// EncodeValues/DecodeValues serialise a data buffer: 1 byte ValueType +
// 8 bytes ABI word per Value.
func EncodeValues(vals []Value) []byte {
	out := make([]byte, 0, len(vals)*9)
	for _, v := range vals {
		out = append(out, byte(v.Type()))
		word := make([]byte, 8)
		putBeUint64(word, v.ABIWord())
		out = append(out, word...)
	}
	return out
}

func DecodeValues(payload []byte) ([]Value, error) {
	var out []Value
	pos := 0
	for pos < len(payload) {
		if pos+9 > len(payload) {
			return nil, ErrStreamDecode
		}
		typ := ValueType(payload[pos])
		word := beUint64(payload[pos+1 : pos+9])
		out = append(out, ValueFromABIWord(word, typ))
		pos += 9
	}
	return out, nil
}

// EncodeStack/DecodeStack serialise a single operand stack as its own
// ImageStack payload: 1 byte ValueType, 4 bytes BE element count, then
// that many Values in EncodeValues' per-Value format.
func EncodeStack(vt ValueType, vals []Value) []byte {
	out := make([]byte, 5)
	out[0] = byte(vt)
	putBeUint32(out[1:], uint32(len(vals)))
	out = append(out, EncodeValues(vals)...)
	return out
}

func DecodeStack(payload []byte) (ValueType, []Value, error) {
	if len(payload) < 5 {
		return ValueNone, nil, ErrStreamDecode
	}
	vt := ValueType(payload[0])
	count := int(beUint32(payload[1:5]))
	vals, err := DecodeValues(payload[5:])
	if err != nil {
		return ValueNone, nil, err
	}
	if len(vals) != count {
		return ValueNone, nil, ErrStreamDecode
	}
	return vt, vals, nil
}

// EncodeSymbols/DecodeSymbols serialise a SymbolMap: per symbol, a
// length-prefixed name, the resolved flag, and its Reference.
func EncodeSymbols(symbols SymbolMap) []byte {
	var out []byte
	for _, sym := range symbols {
		nameBytes := []byte(sym.Name)
		header := make([]byte, 4+1)
		putBeUint32(header[0:4], uint32(len(nameBytes)))
		if sym.IsResolved {
			header[4] = 1
		}
		out = append(out, header...)
		out = append(out, nameBytes...)
		out = append(out, encodeReference(sym.Reference)...)
	}
	return out
}

func DecodeSymbols(payload []byte) (SymbolMap, error) {
	out := make(SymbolMap)
	pos := 0
	for pos < len(payload) {
		if pos+5 > len(payload) {
			return nil, ErrStreamDecode
		}
		nameLen := int(beUint32(payload[pos : pos+4]))
		resolved := payload[pos+4] == 1
		pos += 5
		if pos+nameLen > len(payload) {
			return nil, ErrStreamDecode
		}
		name := string(payload[pos : pos+nameLen])
		pos += nameLen
		ref, consumed, err := decodeReference(payload[pos:])
		if err != nil {
			return nil, err
		}
		pos += consumed
		hash := HashSymbolName(name)
		out[hash] = Symbol{Name: name, Hash: hash, IsResolved: resolved, Reference: ref}
	}
	return out, nil
}
