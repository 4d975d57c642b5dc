package fnirsi

import (
	"github.com/stretchr/testify/assert"
	"testing"
)

func TestChecksumVector(t *testing.T) {
	// Published self-check vector for this CRC configuration
	assert.Equal(t, byte(0x4b), Checksum8([]byte("123456789")))
}

func TestVerify(t *testing.T) {
	report := make([]byte, ReportLength)
	report[0] = vendorMarker
	report[1] = typeTelemetry
	report[10] = 0x42
	report[ReportLength-1] = Checksum8(report[1 : ReportLength-1])

	assert.True(t, Verify(report))

	report[10]++
	assert.False(t, Verify(report))
}

func TestCommandTrailers(t *testing.T) {
	// The trailer literals are the same CRC the reports carry
	for _, cmd := range [][]byte{cmdHandshake1, cmdHandshake2, cmdStartStream} {
		assert.Equal(t, Checksum8(cmd[1:ReportLength-1]), cmd[ReportLength-1])
	}
}
