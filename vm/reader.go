package vm

import "fmt"

// ImageReader is the facade's input collaborator: it owns decoding
// whatever bytes Load was given into a sequence of sections (the normal
// path) or a raw command stream (the "EIP"/streaming path, named after
// the original implementation's instruction-pointer-only execution
// mode). A custom ImageReader can back Load with any transport; the
// default BinaryReader implements the fixed wire format Writer emits.
type ImageReader interface {
	// RdSetup primes the reader with a full image buffer.
	RdSetup(data []byte) error
	// Streaming reports which of the two Load paths this image uses.
	Streaming() bool
	// NextSection returns the next (kind, payload) pair in a sectioned
	// image. ok is false once the image is exhausted.
	NextSection() (kind ImageSection, payload []byte, ok bool, err error)
	// ReadStream returns the raw command bytes of a streaming image.
	ReadStream() ([]byte, error)
	// RdReset discards whatever RdSetup primed, freeing the reader to
	// be reused for the next Load.
	RdReset()
}

// BinaryReader implements ImageReader against the fixed format
// BinaryWriter produces: a mode byte, then for sectioned images a
// sequence of (kind byte, length uint64 BE, payload) triples; for
// streaming images, the remainder of the buffer is the raw command
// stream verbatim.
type BinaryReader struct {
	data   []byte
	pos    int
	mode   imageMode
	isInit bool
}

func NewBinaryReader() *BinaryReader { return &BinaryReader{} }

func (r *BinaryReader) RdSetup(data []byte) error {
	if len(data) < 1 {
		return fmt.Errorf("vm: image too short to contain a mode byte")
	}
	r.data = data
	r.mode = imageMode(data[0])
	r.pos = 1
	r.isInit = true
	return nil
}

func (r *BinaryReader) Streaming() bool { return r.mode == modeStream }

func (r *BinaryReader) NextSection() (ImageSection, []byte, bool, error) {
	if !r.isInit {
		return 0, nil, false, fmt.Errorf("vm: reader not set up")
	}
	if r.pos >= len(r.data) {
		return 0, nil, false, nil
	}
	if r.pos+9 > len(r.data) {
		return 0, nil, false, fmt.Errorf("vm: truncated section header")
	}
	kind := ImageSection(r.data[r.pos])
	length := beUint64(r.data[r.pos+1 : r.pos+9])
	start := r.pos + 9
	end := start + int(length)
	if end > len(r.data) {
		return 0, nil, false, fmt.Errorf("vm: truncated section payload")
	}
	r.pos = end
	return kind, r.data[start:end], true, nil
}

func (r *BinaryReader) ReadStream() ([]byte, error) {
	if !r.isInit {
		return nil, fmt.Errorf("vm: reader not set up")
	}
	return r.data[r.pos:], nil
}

func (r *BinaryReader) RdReset() {
	r.data = nil
	r.pos = 0
	r.isInit = false
}
