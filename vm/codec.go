package vm

import "encoding/binary"

func beUint32(b []byte) uint32 { return binary.BigEndian.Uint32(b) }
func beUint64(b []byte) uint64 { return binary.BigEndian.Uint64(b) }

func putBeUint32(b []byte, v uint32) { binary.BigEndian.PutUint32(b, v) }
func putBeUint64(b []byte, v uint64) { binary.BigEndian.PutUint64(b, v) }

// component wire layout: kind(1) + indirection(1) + payload(8).
const componentWireLen = 1 + 1 + 8

func encodeComponent(c Component) []byte {
	buf := make([]byte, componentWireLen)
	buf[0] = byte(c.Kind)
	buf[1] = byte(c.Indirection)
	switch c.Kind {
	case BaseSymbol:
		putBeUint64(buf[2:], c.SymbolHash)
	default:
		putBeUint64(buf[2:], c.MemoryAddress)
	}
	return buf
}

func decodeComponent(b []byte) (Component, int, error) {
	if len(b) < componentWireLen {
		return Component{}, 0, ErrStreamEOF
	}
	kind := BaseKind(b[0])
	indirection := Section(b[1])
	payload := beUint64(b[2:10])
	c := Component{Kind: kind, Indirection: indirection}
	if kind == BaseSymbol {
		c.SymbolHash = payload
	} else {
		c.MemoryAddress = payload
	}
	return c, componentWireLen, nil
}

// reference wire layout: section(1) + numComponents(1) + components...
func encodeReference(r Reference) []byte {
	buf := []byte{byte(r.GlobalSection), byte(len(r.Components))}
	for _, c := range r.Components {
		buf = append(buf, encodeComponent(c)...)
	}
	return buf
}

func decodeReference(b []byte) (Reference, int, error) {
	if len(b) < 2 {
		return Reference{}, 0, ErrStreamEOF
	}
	section := Section(b[0])
	numComponents := int(b[1])
	if numComponents < 1 || numComponents > 2 {
		return Reference{}, 0, ErrStreamDecode
	}
	n := 2
	comps := make([]Component, 0, numComponents)
	for i := 0; i < numComponents; i++ {
		c, consumed, err := decodeComponent(b[n:])
		if err != nil {
			return Reference{}, 0, err
		}
		comps = append(comps, c)
		n += consumed
	}
	return Reference{GlobalSection: section, Components: comps}, n, nil
}

// Encode serialises a Command to the wire format CommandSet.Decode reads.
func (c Command) Encode() []byte {
	buf := make([]byte, 6)
	putBeUint32(buf[0:4], uint32(c.OpcodeID))
	buf[4] = byte(c.ValueType)
	buf[5] = byte(c.Arg.Kind)
	switch c.Arg.Kind {
	case ArgNone:
	case ArgImmediateValue:
		payload := make([]byte, 9)
		payload[0] = byte(c.Arg.Value.Type())
		putBeUint64(payload[1:], c.Arg.Value.ABIWord())
		buf = append(buf, payload...)
	case ArgImmediateIndex:
		payload := make([]byte, 8)
		putBeUint64(payload, c.Arg.Index)
		buf = append(buf, payload...)
	case ArgReference:
		buf = append(buf, encodeReference(c.Arg.Ref)...)
	}
	return buf
}
