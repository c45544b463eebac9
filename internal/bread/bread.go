// Package bread provides a single bounds-checked big-endian reader used by
// every format loader (mod, mmd). Centralizing the length checks here keeps
// truncated-file detection in one place instead of being repeated inline
// the way mod.go/s3m.go do it ad hoc.
package bread

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrShortRead is wrapped into every bounds-check failure.
var ErrShortRead = errors.New("bread: short read")

// Reader wraps a byte slice with a cursor and bounds-checked typed reads.
type Reader struct {
	buf []byte
	pos int
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

func (r *Reader) Len() int      { return len(r.buf) - r.pos }
func (r *Reader) Pos() int      { return r.pos }
func (r *Reader) Total() int    { return len(r.buf) }
func (r *Reader) Seek(pos int)  { r.pos = pos }
func (r *Reader) Remaining() []byte {
	if r.pos >= len(r.buf) {
		return nil
	}
	return r.buf[r.pos:]
}

func (r *Reader) need(n int) error {
	if n < 0 || r.pos+n > len(r.buf) {
		return fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShortRead, n, r.pos, r.Len())
	}
	return nil
}

// Bytes reads n raw bytes and advances the cursor.
func (r *Reader) Bytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// U8 reads an unsigned byte.
func (r *Reader) U8() (uint8, error) {
	b, err := r.Bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// U16 reads a big-endian uint16.
func (r *Reader) U16() (uint16, error) {
	b, err := r.Bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

// U32 reads a big-endian uint32.
func (r *Reader) U32() (uint32, error) {
	b, err := r.Bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// I16 reads a big-endian signed int16.
func (r *Reader) I16() (int16, error) {
	v, err := r.U16()
	return int16(v), err
}

// String reads n bytes and trims trailing NUL padding.
func (r *Reader) String(n int) (string, error) {
	b, err := r.Bytes(n)
	if err != nil {
		return "", err
	}
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	return string(b[:end]), nil
}

// At returns a fresh Reader positioned at an absolute offset into the same
// underlying buffer, used for chasing pointer tables (MMD instrument/block
// offsets), grounded on s3m.go's paragraph-pointer seeks.
func (r *Reader) At(offset int) (*Reader, error) {
	if offset < 0 || offset > len(r.buf) {
		return nil, fmt.Errorf("%w: offset %d out of range (len %d)", ErrShortRead, offset, len(r.buf))
	}
	return &Reader{buf: r.buf, pos: offset}, nil
}
