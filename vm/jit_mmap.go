//go:build amd64

package vm

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// execBuffer is a page allocated anonymously and mapped writable, then
// flipped to read+execute once the machine code in it is final. Doing
// it in two steps instead of mapping PROT_WRITE|PROT_EXEC up front keeps
// the buffer W^X at every point in its life but the one controlled
// transition, the same discipline wazero's JIT backend uses for its
// generated code pages.
type execBuffer struct {
	mem []byte
}

func newExecBuffer(size int) (*execBuffer, error) {
	if size <= 0 {
		size = unix.Getpagesize()
	}
	mem, err := unix.Mmap(-1, 0, pageAlign(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("vm: mmap jit buffer: %w", err)
	}
	return &execBuffer{mem: mem}, nil
}

func pageAlign(n int) int {
	pg := unix.Getpagesize()
	return ((n + pg - 1) / pg) * pg
}

// write copies code into the buffer. Must be called before finalize.
func (b *execBuffer) write(code []byte) error {
	if len(code) > len(b.mem) {
		return fmt.Errorf("vm: jit image (%d bytes) exceeds mapped buffer (%d bytes)", len(code), len(b.mem))
	}
	copy(b.mem, code)
	return nil
}

// finalize switches the buffer from writable to executable. After this
// call the buffer must never be written again.
func (b *execBuffer) finalize() error {
	if err := unix.Mprotect(b.mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		return fmt.Errorf("vm: mprotect jit buffer: %w", err)
	}
	return nil
}

func (b *execBuffer) entry() uintptr {
	return uintptr(unsafe.Pointer(&b.mem[0]))
}

func (b *execBuffer) release() {
	_ = unix.Munmap(b.mem)
}
