package device

import (
	"fmt"
	"sync"

	"github.com/robotalks/rm.go/pkg/hal/can"
)

// TxBuffer is a transmit payload shared by several devices, each owning a
// byte range of it. The frame is only produced when some owner wrote to it
// since the last Take.
type TxBuffer struct {
	ID uint32

	lock    sync.Mutex
	data    [can.MaxDataLength]byte
	length  uint8
	claimed [can.MaxDataLength]bool
	dirty   bool
}

// NewTxBuffer creates a TxBuffer for identifier id with a fixed length.
func NewTxBuffer(id uint32, length uint8) *TxBuffer {
	if length > can.MaxDataLength {
		length = can.MaxDataLength
	}
	return &TxBuffer{ID: id, length: length}
}

// Claim reserves size bytes at offset for exclusive use.
func (b *TxBuffer) Claim(offset, size int) error {
	if offset < 0 || size <= 0 || offset+size > int(b.length) {
		return fmt.Errorf("0x%03X: slot [%d,%d) out of buffer", b.ID, offset, offset+size)
	}
	b.lock.Lock()
	defer b.lock.Unlock()
	for i := offset; i < offset+size; i++ {
		if b.claimed[i] {
			return &IdentifierError{ID: b.ID, Err: fmt.Errorf("%w: slot %d already claimed", ErrDuplicateIdentifier, offset)}
		}
	}
	for i := offset; i < offset+size; i++ {
		b.claimed[i] = true
	}
	return nil
}

// Release frees a claimed range and zeroes it.
func (b *TxBuffer) Release(offset, size int) {
	b.lock.Lock()
	defer b.lock.Unlock()
	for i := offset; i < offset+size && i < int(b.length); i++ {
		b.claimed[i] = false
		b.data[i] = 0
	}
}

// Put copies p at offset and marks the buffer dirty.
func (b *TxBuffer) Put(offset int, p []byte) {
	b.lock.Lock()
	copy(b.data[offset:b.length], p)
	b.dirty = true
	b.lock.Unlock()
}

// Bytes returns a copy of the current payload.
func (b *TxBuffer) Bytes() []byte {
	b.lock.Lock()
	defer b.lock.Unlock()
	return append([]byte(nil), b.data[:b.length]...)
}

// Take returns the pending frame and clears the dirty flag.
func (b *TxBuffer) Take() (can.Frame, bool) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if !b.dirty {
		return can.Frame{}, false
	}
	b.dirty = false
	return can.Frame{ID: b.ID, Extended: b.ID > can.MaxStdID, Len: b.length, Data: b.data}, true
}
