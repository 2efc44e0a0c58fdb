// Package probe implements the latency phase of a measurement: a fixed
// number of one-byte marker/ack exchanges, each timed independently.
//
// Rounds are strictly sequential. The active endpoint sends a marker and
// waits for the ack before starting the next round, so there is never more
// than one byte in flight in either direction.
package probe

import (
	"fmt"
	"io"
	"time"

	"github.com/m-lab/iperfer/protocol"
	"golang.org/x/exp/slices"
)

// Samples is the ordered, bounded sequence of RTT samples produced by one
// probe phase. The zero value is empty and ready to use.
type Samples struct {
	rtts [protocol.ProbeRounds]time.Duration
	n    int
}

// NewSamples returns Samples holding rtts. Values past the capacity are
// dropped.
func NewSamples(rtts ...time.Duration) Samples {
	var s Samples
	for _, rtt := range rtts {
		s.add(rtt)
	}
	return s
}

// add appends rtt, clamping negative values to zero. It reports whether
// there was room for the sample.
func (s *Samples) add(rtt time.Duration) bool {
	if s.n == len(s.rtts) {
		return false
	}
	if rtt < 0 {
		rtt = 0
	}
	s.rtts[s.n] = rtt
	s.n++
	return true
}

// Len returns the number of samples.
func (s Samples) Len() int {
	return s.n
}

// Values returns a copy of the samples in the order they were taken.
func (s Samples) Values() []time.Duration {
	return slices.Clone(s.rtts[:s.n])
}

// Milliseconds returns the samples as fractional milliseconds.
func (s Samples) Milliseconds() []float64 {
	ms := make([]float64, 0, s.n)
	for _, rtt := range s.rtts[:s.n] {
		ms = append(ms, float64(rtt)/float64(time.Millisecond))
	}
	return ms
}

// Active runs the probe phase from the initiating side. For each round it
// sends a marker, blocks until the ack arrives, and records the elapsed time
// as one sample. When a write or read fails the samples collected so far are
// returned together with the outcome and the error; the failing round
// contributes no sample.
func Active(rw io.ReadWriter, now protocol.Clock) (Samples, protocol.Outcome, error) {
	var samples Samples
	marker := []byte{protocol.Marker}
	ack := make([]byte, 1)
	for i := 0; i < protocol.ProbeRounds; i++ {
		t0 := now()
		if _, err := rw.Write(marker); err != nil {
			return samples, protocol.OutcomeOf(err), fmt.Errorf("probe round %d: send marker: %w", i, err)
		}
		if _, err := io.ReadFull(rw, ack); err != nil {
			return samples, protocol.OutcomeOf(err), fmt.Errorf("probe round %d: receive ack: %w", i, err)
		}
		samples.add(now().Sub(t0))
	}
	return samples, protocol.OK, nil
}

// Passive runs the probe phase from the listening side. For each round it
// waits for a marker and immediately answers with an ack. The time between
// sending an ack and receiving the following marker is a round trip as seen
// from this side, so the last round (which has no following marker) yields
// no sample and a complete phase produces ProbeRounds-1 samples.
func Passive(rw io.ReadWriter, now protocol.Clock) (Samples, protocol.Outcome, error) {
	var samples Samples
	marker := make([]byte, 1)
	ack := []byte{protocol.Ack}
	var ackSent time.Time
	for i := 0; i < protocol.ProbeRounds; i++ {
		if _, err := io.ReadFull(rw, marker); err != nil {
			return samples, protocol.OutcomeOf(err), fmt.Errorf("probe round %d: receive marker: %w", i, err)
		}
		if i > 0 {
			samples.add(now().Sub(ackSent))
		}
		ackSent = now()
		if _, err := rw.Write(ack); err != nil {
			return samples, protocol.OutcomeOf(err), fmt.Errorf("probe round %d: send ack: %w", i, err)
		}
	}
	return samples, protocol.OK, nil
}
