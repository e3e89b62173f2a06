// Package binio provides little-endian binary encoding helpers for the tile
// codec. The writer appends to an internal buffer; the reader is
// bounds-checked and reports truncation as an error instead of panicking, so
// malformed tile buffers are rejected rather than crashing the caller.
package binio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Writer serializes little-endian fixed-width values into a growing buffer.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer {
	return &Writer{}
}

// NewWriterSize pre-allocates capacity for the expected output size.
func NewWriterSize(n int) *Writer {
	return &Writer{buf: make([]byte, 0, n)}
}

func (w *Writer) WriteUint8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *Writer) WriteUint16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

func (w *Writer) WriteUint32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *Writer) WriteInt32(v int32) {
	w.WriteUint32(uint32(v))
}

func (w *Writer) WriteFloat32(v float32) {
	w.WriteUint32(math.Float32bits(v))
}

func (w *Writer) WriteUint16s(vs []uint16) {
	for _, v := range vs {
		w.WriteUint16(v)
	}
}

func (w *Writer) WriteUint8s(vs []uint8) {
	w.buf = append(w.buf, vs...)
}

func (w *Writer) WriteFloat32s(vs []float32) {
	for _, v := range vs {
		w.WriteFloat32(v)
	}
}

// Pad appends n zero bytes.
func (w *Writer) Pad(n int) {
	for i := 0; i < n; i++ {
		w.buf = append(w.buf, 0)
	}
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Bytes returns the accumulated buffer.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Reader decodes little-endian fixed-width values from a byte slice.
type Reader struct {
	data []byte
	off  int
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

func (r *Reader) need(n int) error {
	if r.off+n > len(r.data) {
		return fmt.Errorf("binio: truncated buffer: need %d bytes at offset %d, have %d", n, r.off, len(r.data)-r.off)
	}
	return nil
}

func (r *Reader) ReadUint8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.data[r.off]
	r.off++
	return v, nil
}

func (r *Reader) ReadUint16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v, nil
}

func (r *Reader) ReadUint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v, nil
}

func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

func (r *Reader) ReadFloat32() (float32, error) {
	v, err := r.ReadUint32()
	return math.Float32frombits(v), err
}

func (r *Reader) ReadUint16s(dst []uint16) error {
	if err := r.need(len(dst) * 2); err != nil {
		return err
	}
	for i := range dst {
		dst[i] = binary.LittleEndian.Uint16(r.data[r.off:])
		r.off += 2
	}
	return nil
}

func (r *Reader) ReadUint8s(dst []uint8) error {
	if err := r.need(len(dst)); err != nil {
		return err
	}
	copy(dst, r.data[r.off:])
	r.off += len(dst)
	return nil
}

func (r *Reader) ReadFloat32s(dst []float32) error {
	if err := r.need(len(dst) * 4); err != nil {
		return err
	}
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(r.data[r.off:]))
		r.off += 4
	}
	return nil
}

// Skip advances past n bytes, validating the buffer is long enough.
func (r *Reader) Skip(n int) error {
	if err := r.need(n); err != nil {
		return err
	}
	r.off += n
	return nil
}

// Offset returns the current read position.
func (r *Reader) Offset() int {
	return r.off
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.off
}
