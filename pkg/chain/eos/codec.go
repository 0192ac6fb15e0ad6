package eos

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var errShortBuffer = errors.New("unexpected end of data")

// encoder writes the little endian EOS wire format.
type encoder struct {
	buf bytes.Buffer
}

func (e *encoder) Bytes() []byte {
	return e.buf.Bytes()
}

func (e *encoder) writeUint8(v uint8) {
	e.buf.WriteByte(v)
}

func (e *encoder) writeUint16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	e.buf.Write(b[:])
}

func (e *encoder) writeUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.buf.Write(b[:])
}

func (e *encoder) writeUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.buf.Write(b[:])
}

func (e *encoder) writeVarUint32(v uint32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		e.buf.WriteByte(b)
		if v == 0 {
			return
		}
	}
}

func (e *encoder) writeBytes(b []byte) {
	e.writeVarUint32(uint32(len(b)))
	e.buf.Write(b)
}

func (e *encoder) writeRaw(b []byte) {
	e.buf.Write(b)
}

func (e *encoder) writeString(s string) {
	e.writeBytes([]byte(s))
}

func (e *encoder) writeName(s string) error {
	n, err := StringToName(s)
	if err != nil {
		return err
	}
	e.writeUint64(n)
	return nil
}

// decoder reads what encoder writes.
type decoder struct {
	data []byte
	pos  int
}

func newDecoder(data []byte) *decoder {
	return &decoder{data: data}
}

func (d *decoder) remaining() int {
	return len(d.data) - d.pos
}

func (d *decoder) readN(n int) ([]byte, error) {
	if n < 0 || d.remaining() < n {
		return nil, errShortBuffer
	}
	out := d.data[d.pos : d.pos+n]
	d.pos += n
	return out, nil
}

func (d *decoder) readUint8() (uint8, error) {
	b, err := d.readN(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *decoder) readUint16() (uint16, error) {
	b, err := d.readN(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (d *decoder) readUint32() (uint32, error) {
	b, err := d.readN(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (d *decoder) readUint64() (uint64, error) {
	b, err := d.readN(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (d *decoder) readVarUint32() (uint32, error) {
	var v uint64
	var shift uint
	for {
		b, err := d.readUint8()
		if err != nil {
			return 0, err
		}
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
		if shift > 35 {
			return 0, fmt.Errorf("varuint32 overflow")
		}
	}
	if v > 0xffffffff {
		return 0, fmt.Errorf("varuint32 overflow")
	}
	return uint32(v), nil
}

func (d *decoder) readBytes() ([]byte, error) {
	n, err := d.readVarUint32()
	if err != nil {
		return nil, err
	}
	b, err := d.readN(int(n))
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (d *decoder) readString() (string, error) {
	b, err := d.readBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *decoder) readName() (string, error) {
	n, err := d.readUint64()
	if err != nil {
		return "", err
	}
	return NameToString(n), nil
}

func (d *decoder) expectEOF() error {
	if d.remaining() != 0 {
		return fmt.Errorf("%d trailing bytes: %w", d.remaining(), io.ErrUnexpectedEOF)
	}
	return nil
}
