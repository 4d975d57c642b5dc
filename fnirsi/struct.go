package fnirsi

import (
	"strings"
	"time"
)

type Err string

func (e Err) Error() string {
	return string(e)
}

const (
	ErrReportLength = Err("report is not 64 bytes")
	ErrUnknownModel = Err("unknown model")

	// ErrTimeout is returned by a Transport when no report arrived
	// within the read timeout. It is a recoverable condition, not a
	// session failure.
	ErrTimeout = Err("read timed out")
)

const (
	// Every report and command starts with the vendor marker
	vendorMarker byte = 0xaa

	// Byte 1 of a report is the payload type. Only telemetry reports
	// are decoded; other types (0x03 has been observed) are ignored.
	typeTelemetry byte = 0x04

	// ReportLength is the fixed size of both reports and commands.
	ReportLength = 64

	// Four sub-samples per report, 15 bytes each, starting at byte 2.
	subsPerReport = 4
	subLength     = 15
	subsOffset    = 2

	// The meters sample at a fixed 100 sps regardless of settings.
	SamplesPerSecond = 100

	// SampleInterval is the spacing between two consecutive sub-samples.
	SampleInterval = time.Second / SamplesPerSecond
)

// Model identifies a supported device family. The families share the
// report format but differ in USB identity, initialization sequence and
// keep-alive cadence.
type Model int

const (
	FNB48 Model = iota
	C1
	FNB58
)

// Models lists the supported families in probe order.
var Models = []Model{FNB48, C1, FNB58}

func (m Model) String() string {
	switch m {
	case FNB48:
		return "FNB48"
	case C1:
		return "C1"
	case FNB58:
		return "FNB58"
	}
	return "unknown"
}

// ParseModel maps a user-supplied name to a Model.
func ParseModel(s string) (Model, error) {
	for _, m := range Models {
		if strings.EqualFold(s, m.String()) {
			return m, nil
		}
	}
	return 0, ErrUnknownModel
}

// USBID returns the USB vendor and product ID the family enumerates with.
func (m Model) USBID() (vendor, product uint16) {
	switch m {
	case FNB48:
		return 0x0483, 0x003a
	case C1:
		return 0x0483, 0x003b
	case FNB58:
		return 0x2e3c, 0x5558
	}
	return 0, 0
}

// KeepAlive returns how often the streaming command must be re-sent to
// keep the device emitting reports. The FNB58 only tolerates a slow
// cadence; the others want it near-continuous.
func (m Model) KeepAlive() time.Duration {
	if m == FNB58 {
		return time.Second
	}
	return 3 * time.Millisecond
}

// initCommands returns the handshake written once at session start.
// The FNB58 does not accept the 0x83 command during initialization and
// gets the second handshake buffer again instead.
func (m Model) initCommands() [][]byte {
	third := cmdStartStream
	if m == FNB58 {
		third = cmdHandshake2
	}
	return [][]byte{cmdHandshake1, cmdHandshake2, third}
}

// command builds one of the fixed 64-byte vendor commands: marker,
// opcode, zero padding and a checksum trailer. The trailers are kept as
// literals so the buffers match the captured traffic byte for byte.
func command(op, trailer byte) []byte {
	buf := make([]byte, ReportLength)
	buf[0] = vendorMarker
	buf[1] = op
	buf[ReportLength-1] = trailer
	return buf
}

var (
	cmdHandshake1 = command(0x81, 0x8e)
	cmdHandshake2 = command(0x82, 0x96)

	// cmdStartStream doubles as the periodic keep-alive.
	cmdStartStream = command(0x83, 0x9e)
)

// Sample is one decoded telemetry reading. Energy and Capacity are
// running totals over the whole session, not per-sample quantities.
type Sample struct {
	// Time is a back-dated estimate: the device packs the four readings
	// immediately preceding the report's arrival.
	Time time.Time
	// Index is the position of the reading within its report, 0 to 3.
	Index int
	// Voltage on VBUS in volts.
	Voltage float64
	// Current in amperes. The protocol does not encode a sign.
	Current float64
	// DP and DN are the USB D+ and D- line voltages in volts.
	DP float64
	DN float64
	// Temp is the device temperature in °C after EMA smoothing.
	Temp float64
	// Energy accumulated since session start, in watt-seconds.
	Energy float64
	// Capacity accumulated since session start, in ampere-seconds.
	Capacity float64
	// Flag is the reserved per-reading byte. Observed constant 1; its
	// meaning is unknown and it must not be interpreted.
	Flag byte
	// Unknown is the reserved report byte at offset 62, carried so
	// captures can be analyzed offline.
	Unknown byte
}
