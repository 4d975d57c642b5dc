package fnirsi

import (
	"time"
)

const (
	// settleDelay is the pause between the init handshake and the
	// first read; the device needs a moment before it starts streaming.
	settleDelay = 100 * time.Millisecond

	// readTimeout bounds one blocking read. A timeout is not an error,
	// it only bounces the loop so the keep-alive check can run.
	readTimeout = time.Second
)

// Transport moves fixed-size buffers between host and meter. Write
// sends one 64-byte command to the OUT endpoint; ReadReport returns one
// report from the IN endpoint, or ErrTimeout if none arrived in time.
type Transport interface {
	Write(p []byte) error
	ReadReport(timeout time.Duration) ([]byte, error)
}

// State of a Session. There is no recovery path: a session that
// terminates can only be replaced by a fresh one.
type State int

const (
	Idle State = iota
	Initializing
	Streaming
	Terminated
)

// Session drives one meter from handshake to termination. It owns the
// Decoder and the transport for its whole lifetime and runs on a single
// goroutine: reads, decodes and keep-alive writes are all interleaved
// in one loop.
type Session struct {
	transport Transport
	model     Model
	dec       *Decoder
	state     State

	// Stubbed in tests.
	now   func() time.Time
	sleep func(time.Duration)
}

func NewSession(t Transport, m Model) *Session {
	return &Session{
		transport: t,
		model:     m,
		dec:       NewDecoder(),
		state:     Idle,
		now:       time.Now,
		sleep:     time.Sleep,
	}
}

// Decoder exposes the session's decoder so callers can configure it
// (checksum bypass, diagnostics) and read the accumulators.
func (s *Session) Decoder() *Decoder {
	return s.dec
}

func (s *Session) State() State {
	return s.state
}

// Init writes the model's three-command handshake and waits for the
// device to settle. There is no retry: if the device does not respond
// afterwards, the whole session must be restarted.
func (s *Session) Init() error {
	s.state = Initializing
	for _, cmd := range s.model.initCommands() {
		if err := s.transport.Write(cmd); err != nil {
			s.state = Terminated
			return err
		}
	}
	s.sleep(settleDelay)
	return nil
}

// Run streams until the transport fails, calling handle for every
// decoded sample. Init is performed first if the session is still Idle.
//
// The keep-alive is cooperative: the due time is checked once per loop
// iteration, after the read, so a send can lag by up to one read
// timeout. That is well within what the devices tolerate.
func (s *Session) Run(handle func(Sample)) error {
	if s.state == Idle {
		if err := s.Init(); err != nil {
			return err
		}
	}
	s.state = Streaming

	refresh := s.model.KeepAlive()
	due := s.now().Add(refresh)

	for {
		report, err := s.transport.ReadReport(readTimeout)
		switch {
		case err == ErrTimeout:
			// Quiet interval, fall through to the keep-alive check.
		case err != nil:
			s.state = Terminated
			return err
		default:
			samples, err := s.dec.Decode(report, s.now())
			if err != nil {
				s.state = Terminated
				return err
			}
			for _, smp := range samples {
				handle(smp)
			}
		}

		if !s.now().Before(due) {
			due = s.now().Add(refresh)
			if err := s.transport.Write(cmdStartStream); err != nil {
				s.state = Terminated
				return err
			}
		}
	}
}
