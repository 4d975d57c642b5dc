package fnirsi

import "io"

// Reader frames fixed-size reports out of a continuous byte stream,
// for setups where the meter is attached through a serial bridge
// rather than read as whole HID transfers.
type Reader interface {
	ReadReport() ([]byte, error)
}

type reader struct {
	r   io.Reader
	buf []byte
}

func NewReader(r io.Reader) Reader {
	return &reader{
		r: r,
	}
}

func (r *reader) ReadReport() ([]byte, error) {
	buf := make([]byte, 256)
	for {
		if rep := r.tryReport(); rep != nil {
			return rep, nil
		}
		n, err := r.r.Read(buf)
		if err != nil {
			return nil, err
		}
		r.buf = append(r.buf, buf[0:n]...)
	}
}

func (r *reader) tryReport() []byte {
	// Forward to the next vendor marker, useful in case we start
	// reading in the middle of a report
	for len(r.buf) > 0 && r.buf[0] != vendorMarker {
		r.buf = r.buf[1:]
	}
	if len(r.buf) < ReportLength {
		return nil
	}
	rep := r.buf[0:ReportLength]
	r.buf = r.buf[ReportLength:]
	return rep
}
