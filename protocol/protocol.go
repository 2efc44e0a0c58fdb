// Package protocol contains the constants both endpoints agree upon ahead of
// time, and the Outcome type every measurement phase reports.
package protocol

import (
	"errors"
	"fmt"
	"io"
	"time"
)

const (
	// ChunkSize is the size in bytes of one throughput chunk. Both ends MUST
	// use the same value because chunks carry no length prefix.
	ChunkSize = 80000

	// ProbeRounds is the number of marker/ack exchanges of the probe phase.
	ProbeRounds = 8

	// WarmupRounds is the number of leading RTT samples excluded from the
	// reported average.
	WarmupRounds = 4
)

const (
	// Marker is the byte the active endpoint sends on each probe round.
	Marker = byte('M')

	// Ack is the byte sent to acknowledge a probe marker or a full chunk.
	Ack = byte('A')
)

// Outcome is the reason a measurement phase ended.
type Outcome int

const (
	// OK means the phase ran to its natural end.
	OK = Outcome(iota)
	// PeerClosed means the peer closed the connection (end-of-stream).
	PeerClosed
	// IOError means a read or write failed with an error other than EOF.
	IOError
)

func (o Outcome) String() string {
	switch o {
	case OK:
		return "ok"
	case PeerClosed:
		return "peer-closed"
	case IOError:
		return "io-error"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// MarshalText lets Outcome appear by name in archival JSON.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText is the inverse of MarshalText.
func (o *Outcome) UnmarshalText(b []byte) error {
	for _, v := range []Outcome{OK, PeerClosed, IOError} {
		if v.String() == string(b) {
			*o = v
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", b)
}

// OutcomeOf classifies the error that ended a phase. A nil error is OK.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OK
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return PeerClosed
	default:
		return IOError
	}
}

// Clock returns the current time. Phases take a Clock so that tests can
// control elapsed time.
type Clock func() time.Time
