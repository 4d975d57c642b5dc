package fnirsi

import (
	"fmt"
	"log"
	"time"
)

// Temperature readings are smoothed with an exponential moving average.
const emaAlpha = 0.9

// Decoder turns raw reports into samples and carries the per-session
// state that spans reports: the temperature EMA and the energy and
// capacity accumulators. It is owned by a single goroutine; Decode is
// not safe for concurrent use.
type Decoder struct {
	// SkipChecksum disables report verification, accepting every
	// telemetry report as-is. Degraded mode, matching a capture setup
	// where the trailer is known to be damaged.
	SkipChecksum bool

	// Logf receives per-packet diagnostics (dropped reports). Defaults
	// to log.Printf.
	Logf func(format string, v ...interface{})

	tempEMA  *float64
	energy   float64
	capacity float64
}

func NewDecoder() *Decoder {
	return &Decoder{Logf: log.Printf}
}

// Energy returns the accumulated energy in watt-seconds.
func (d *Decoder) Energy() float64 {
	return d.energy
}

// Capacity returns the accumulated charge in ampere-seconds.
func (d *Decoder) Capacity() float64 {
	return d.capacity
}

// Decode processes one report received at the given arrival time.
//
// Non-telemetry reports and reports failing checksum verification
// produce no samples and no error; only a report of the wrong length is
// an error, since it means the transport is broken. Decoder state is
// updated only when a report decodes fully, so a dropped report leaves
// the accumulators and the EMA untouched.
func (d *Decoder) Decode(report []byte, arrival time.Time) ([]Sample, error) {
	if len(report) != ReportLength {
		return nil, fmt.Errorf("%s: got %d", ErrReportLength, len(report))
	}
	if report[1] != typeTelemetry {
		return nil, nil
	}
	if !d.SkipChecksum && !Verify(report) {
		d.logf("ignoring report of length %d with unexpected checksum, expected: %02x actual: %02x",
			len(report), Checksum8(report[1:ReportLength-1]), report[ReportLength-1])
		return nil, nil
	}

	ema := d.tempEMA
	energy := d.energy
	capacity := d.capacity
	unknown := report[ReportLength-2]

	buf := NewBuffer(report[subsOffset : subsOffset+subsPerReport*subLength])
	t0 := arrival.Add(-subsPerReport * SampleInterval)
	samples := make([]Sample, 0, subsPerReport)

	for i := 0; i < subsPerReport; i++ {
		var (
			voltageRaw uint32
			currentRaw uint32
			dpRaw      uint16
			dnRaw      uint16
			flag       uint8
			tempRaw    uint16
		)
		err := buf.ReadRaw(&voltageRaw, &currentRaw, &dpRaw, &dnRaw, &flag, &tempRaw)
		if err != nil {
			return nil, err
		}

		voltage := float64(voltageRaw) / 100000
		current := float64(currentRaw) / 100000
		dp := float64(dpRaw) / 1000
		dn := float64(dnRaw) / 1000
		temp := float64(tempRaw) / 10.0

		if ema != nil {
			t := temp*(1.0-emaAlpha) + *ema*emaAlpha
			ema = &t
		} else {
			ema = &temp
		}

		// Fixed-interval integration; jitter between USB arrival and
		// the device's sampling clock is not corrected for.
		dt := SampleInterval.Seconds()
		energy += voltage * current * dt
		capacity += current * dt

		samples = append(samples, Sample{
			Time:     t0.Add(time.Duration(i) * SampleInterval),
			Index:    i,
			Voltage:  voltage,
			Current:  current,
			DP:       dp,
			DN:       dn,
			Temp:     *ema,
			Energy:   energy,
			Capacity: capacity,
			Flag:     flag,
			Unknown:  unknown,
		})
	}

	d.tempEMA = ema
	d.energy = energy
	d.capacity = capacity
	return samples, nil
}

func (d *Decoder) logf(format string, v ...interface{}) {
	if d.Logf != nil {
		d.Logf(format, v...)
	}
}
