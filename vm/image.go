package vm

// ImageSection tags one chunk of a linked program image. It mirrors
// Section but is the on-disk/on-wire vocabulary rather than the
// in-memory address-space one: Symbols has no Section counterpart since
// symbols are never an address themselves, only metadata about one.
type ImageSection byte

const (
	ImageCode ImageSection = iota
	ImageData
	ImageBytepool
	ImageSymbols
	// ImageStack carries one operand stack (all Values of a single
	// ValueType) belonging to the Uniform snapshot; a full image writes
	// one ImageStack section per non-empty ValueType in use.
	ImageStack
)

// imageMode is the first byte of every image: which of the two Load
// paths produced it. Streaming images never carry a symbols section:
// after the mode byte the stream format is raw command bytes with no
// sections at all.
type imageMode byte

const (
	modeSectioned imageMode = iota
	modeStream
)
