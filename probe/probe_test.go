package probe

import (
	"bytes"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/m-lab/iperfer/protocol"
	"go.uber.org/goleak"
)

// stepClock returns a clock that advances by step on every call.
func stepClock(step time.Duration) protocol.Clock {
	t := time.Unix(1700000000, 0)
	return func() time.Time {
		t = t.Add(step)
		return t
	}
}

type fakeConn struct {
	io.Reader
	io.Writer
}

type failingWriter struct {
	after int
	buf   bytes.Buffer
}

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.after <= 0 {
		return 0, errors.New("broken pipe")
	}
	w.after--
	return w.buf.Write(p)
}

func TestActiveAndPassiveOverPipe(t *testing.T) {
	defer goleak.VerifyNone(t)
	a, p := net.Pipe()
	defer a.Close()
	defer p.Close()

	type result struct {
		samples Samples
		outcome protocol.Outcome
		err     error
	}
	done := make(chan result)
	go func() {
		s, o, err := Passive(p, stepClock(time.Millisecond))
		done <- result{s, o, err}
	}()

	samples, outcome, err := Active(a, stepClock(2*time.Millisecond))
	if err != nil || outcome != protocol.OK {
		t.Fatalf("Active() = %v, %v; want OK, nil", outcome, err)
	}
	if samples.Len() != protocol.ProbeRounds {
		t.Errorf("Active() produced %d samples, want %d", samples.Len(), protocol.ProbeRounds)
	}
	for i, v := range samples.Values() {
		if v != 2*time.Millisecond {
			t.Errorf("active sample %d = %v, want 2ms", i, v)
		}
	}

	r := <-done
	if r.err != nil || r.outcome != protocol.OK {
		t.Fatalf("Passive() = %v, %v; want OK, nil", r.outcome, r.err)
	}
	if r.samples.Len() != protocol.ProbeRounds-1 {
		t.Errorf("Passive() produced %d samples, want %d", r.samples.Len(), protocol.ProbeRounds-1)
	}
	for i, v := range r.samples.Milliseconds() {
		if v != 1 {
			t.Errorf("passive sample %d = %vms, want 1ms", i, v)
		}
	}
}

func TestActive(t *testing.T) {
	tests := []struct {
		name        string
		acks        string
		writes      int
		wantSamples int
		wantOutcome protocol.Outcome
		wantErr     bool
		wantMarkers int
	}{
		{
			name:        "complete",
			acks:        strings.Repeat("A", protocol.ProbeRounds),
			writes:      protocol.ProbeRounds,
			wantSamples: protocol.ProbeRounds,
			wantOutcome: protocol.OK,
			wantMarkers: protocol.ProbeRounds,
		},
		{
			name:        "peer-closes-after-three-acks",
			acks:        "AAA",
			writes:      protocol.ProbeRounds,
			wantSamples: 3,
			wantOutcome: protocol.PeerClosed,
			wantErr:     true,
			wantMarkers: 4,
		},
		{
			name:        "send-fails-on-second-round",
			acks:        strings.Repeat("A", protocol.ProbeRounds),
			writes:      1,
			wantSamples: 1,
			wantOutcome: protocol.IOError,
			wantErr:     true,
			wantMarkers: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &failingWriter{after: tt.writes}
			conn := fakeConn{Reader: strings.NewReader(tt.acks), Writer: w}
			samples, outcome, err := Active(conn, stepClock(time.Millisecond))
			if (err != nil) != tt.wantErr {
				t.Errorf("Active() error = %v, wantErr %v", err, tt.wantErr)
			}
			if outcome != tt.wantOutcome {
				t.Errorf("Active() outcome = %v, want %v", outcome, tt.wantOutcome)
			}
			if samples.Len() != tt.wantSamples {
				t.Errorf("Active() samples = %d, want %d", samples.Len(), tt.wantSamples)
			}
			if w.buf.Len() != tt.wantMarkers {
				t.Errorf("Active() sent %d markers, want %d", w.buf.Len(), tt.wantMarkers)
			}
		})
	}
}

func TestPassiveShortSequence(t *testing.T) {
	out := &bytes.Buffer{}
	conn := fakeConn{Reader: strings.NewReader("MM"), Writer: out}
	samples, outcome, err := Passive(conn, stepClock(time.Millisecond))
	if err == nil {
		t.Fatal("Passive() should fail when the marker sequence is short")
	}
	if outcome != protocol.PeerClosed {
		t.Errorf("Passive() outcome = %v, want %v", outcome, protocol.PeerClosed)
	}
	if samples.Len() != 1 {
		t.Errorf("Passive() samples = %d, want 1", samples.Len())
	}
	if out.String() != "AA" {
		t.Errorf("Passive() wrote %q, want %q", out.String(), "AA")
	}
}

func TestSamples(t *testing.T) {
	s := NewSamples(-time.Millisecond, 1, 2, 3, 4, 5, 6, 7, 8, 9)
	if s.Len() != protocol.ProbeRounds {
		t.Fatalf("Len() = %d, want %d", s.Len(), protocol.ProbeRounds)
	}
	v := s.Values()
	if v[0] != 0 {
		t.Errorf("negative sample stored as %v, want 0", v[0])
	}
	if v[7] != 7 {
		t.Errorf("last kept sample = %v, want 7", v[7])
	}
	// Values returns a copy.
	v[1] = time.Hour
	if s.Values()[1] != 1 {
		t.Error("Values() exposed internal storage")
	}
	var empty Samples
	if len(empty.Milliseconds()) != 0 {
		t.Error("zero Samples should be empty")
	}
}
