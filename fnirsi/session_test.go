package fnirsi

import (
	"github.com/stretchr/testify/assert"
	"io"
	"testing"
	"time"
)

// fakeTransport replays a scripted sequence of reads; a nil entry is a
// timeout. Reads past the script return io.EOF.
type fakeTransport struct {
	reports [][]byte
	writes  [][]byte
}

func (f *fakeTransport) Write(p []byte) error {
	f.writes = append(f.writes, p)
	return nil
}

func (f *fakeTransport) ReadReport(_ time.Duration) ([]byte, error) {
	if len(f.reports) == 0 {
		return nil, io.EOF
	}
	r := f.reports[0]
	f.reports = f.reports[1:]
	if r == nil {
		return nil, ErrTimeout
	}
	return r, nil
}

// testSession pins the clock to a fixed instant and makes sleeps
// instantaneous while recording them.
func testSession(tr Transport, m Model) (*Session, *[]time.Duration) {
	s := NewSession(tr, m)
	s.now = func() time.Time { return arrival }
	slept := &[]time.Duration{}
	s.sleep = func(d time.Duration) { *slept = append(*slept, d) }
	return s, slept
}

func TestSessionInit(t *testing.T) {
	tr := &fakeTransport{}
	s, slept := testSession(tr, FNB48)

	assert.Equal(t, Idle, s.State())
	assert.NoError(t, s.Init())

	assert.Equal(t, [][]byte{cmdHandshake1, cmdHandshake2, cmdStartStream}, tr.writes)
	assert.Equal(t, []time.Duration{settleDelay}, *slept)
}

func TestSessionInitFNB58(t *testing.T) {
	tr := &fakeTransport{}
	s, _ := testSession(tr, FNB58)

	assert.NoError(t, s.Init())

	// The FNB58 repeats the second handshake instead of 0x83
	assert.Equal(t, [][]byte{cmdHandshake1, cmdHandshake2, cmdHandshake2}, tr.writes)
}

func TestSessionRun(t *testing.T) {
	report := buildReport(typeTelemetry, [subsPerReport]sub{
		{voltage: 520000, current: 104000, temp: 250},
	}, 0)
	tr := &fakeTransport{reports: [][]byte{report}}
	s, _ := testSession(tr, FNB58)

	var samples []Sample
	err := s.Run(func(smp Sample) {
		samples = append(samples, smp)
	})

	assert.Equal(t, io.EOF, err)
	assert.Equal(t, Terminated, s.State())
	assert.Len(t, samples, subsPerReport)
	assert.InDelta(t, 5.2, samples[0].Voltage, 1e-9)
}

func TestSessionTimeoutIsNotFatal(t *testing.T) {
	report := buildReport(typeTelemetry, [subsPerReport]sub{}, 0)
	tr := &fakeTransport{reports: [][]byte{nil, nil, report}}
	s, _ := testSession(tr, FNB58)

	var samples []Sample
	err := s.Run(func(smp Sample) {
		samples = append(samples, smp)
	})

	assert.Equal(t, io.EOF, err)
	assert.Len(t, samples, subsPerReport)
}

func TestSessionKeepAlive(t *testing.T) {
	report := buildReport(typeTelemetry, [subsPerReport]sub{}, 0)
	tr := &fakeTransport{reports: [][]byte{report, report}}
	s, _ := testSession(tr, FNB48)

	// Advance the clock past the FNB48 cadence on every observation
	clock := arrival
	s.now = func() time.Time {
		clock = clock.Add(40 * time.Millisecond)
		return clock
	}

	err := s.Run(func(Sample) {})
	assert.Equal(t, io.EOF, err)

	keepalives := 0
	for _, w := range tr.writes[3:] { // skip the init handshake
		if assert.Equal(t, cmdStartStream, w) {
			keepalives++
		}
	}
	assert.True(t, keepalives >= 1)
}

func TestSessionKeepAliveCadence(t *testing.T) {
	assert.Equal(t, time.Second, FNB58.KeepAlive())
	assert.Equal(t, 3*time.Millisecond, FNB48.KeepAlive())
	assert.Equal(t, 3*time.Millisecond, C1.KeepAlive())
}

func TestSessionFatalDecode(t *testing.T) {
	// A short report means the transport is broken
	tr := &fakeTransport{reports: [][]byte{make([]byte, 32)}}
	s, _ := testSession(tr, FNB48)

	err := s.Run(func(Sample) {})
	assert.Error(t, err)
	assert.NotEqual(t, io.EOF, err)
	assert.Equal(t, Terminated, s.State())
}
