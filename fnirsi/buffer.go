package fnirsi

import (
	"encoding/binary"
	"io"
)

type Buffer []byte

func NewBuffer(data []byte) *Buffer {
	buf := Buffer(data)
	return &buf
}

// All multi-byte fields in the report are little-endian.
var (
	order = binary.LittleEndian
)

func (b *Buffer) Len() int {
	return len(*b)
}

// ReadRaw consumes fixed-width fields from the front of the buffer into
// the given pointers, in order.
func (b *Buffer) ReadRaw(tv ...interface{}) error {
	for _, t := range tv {
		switch t := t.(type) {
		case *uint8:
			if len(*b) < 1 {
				return io.ErrUnexpectedEOF
			}
			*t = (*b)[0]
			*b = (*b)[1:]
		case *uint16:
			if len(*b) < 2 {
				return io.ErrUnexpectedEOF
			}
			*t = order.Uint16((*b)[0:2])
			*b = (*b)[2:]
		case *uint32:
			if len(*b) < 4 {
				return io.ErrUnexpectedEOF
			}
			*t = order.Uint32((*b)[0:4])
			*b = (*b)[4:]
		case []byte:
			if len(*b) < len(t) {
				return io.ErrUnexpectedEOF
			}
			copy(t, *b)
			*b = (*b)[len(t):]
		default:
			return Err("unsupported type")
		}
	}
	return nil
}
