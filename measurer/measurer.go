// Package measurer samples kernel statistics of the measurement socket in
// the background and summarizes them when the measurement is over. It only
// reads socket state through a dup'd descriptor and never touches the data
// stream.
package measurer

import (
	"context"
	"errors"
	"time"

	"github.com/m-lab/go/memoryless"
	"github.com/m-lab/iperfer/logging"
	"github.com/m-lab/iperfer/tcpinfox"
	"github.com/m-lab/tcp-info/inetdiag"
	"github.com/m-lab/tcp-info/tcp"
)

// Sampling intervals of the Poisson process driving the measurer.
const (
	MinSamplingInterval      = 25 * time.Millisecond
	ExpectedSamplingInterval = 250 * time.Millisecond
	MaxSamplingInterval      = 625 * time.Millisecond
)

// DefaultConfig is the memoryless configuration used by Measure.
var DefaultConfig = memoryless.Config{
	Min:      MinSamplingInterval,
	Expected: ExpectedSamplingInterval,
	Max:      MaxSamplingInterval,
}

// ErrNoSamples is returned when not a single snapshot could be read.
var ErrNoSamples = errors.New("no socket statistics collected")

// Source provides snapshots of the socket. *netx.Conn implements it.
type Source interface {
	ReadInfo() (inetdiag.BBRInfo, tcp.LinuxTCPInfo, error)
}

// Snapshot is a single reading of the socket statistics.
type Snapshot struct {
	// ElapsedTime is the time since sampling started, in microseconds.
	ElapsedTime int64
	BBRInfo     inetdiag.BBRInfo
	TCPInfo     tcp.LinuxTCPInfo
}

// Summary describes the socket over the whole measurement.
type Summary struct {
	// Samples is the number of snapshots taken.
	Samples int
	// MinRTT is the smallest RTT the kernel reported in any snapshot. Its
	// own minimum is preferred over the smoothed estimate when available.
	MinRTT time.Duration
	// SmoothedRTT is the kernel's RTT estimate at the last snapshot.
	SmoothedRTT time.Duration
	// MaxBBRBandwidth is the largest BBR bottleneck bandwidth estimate in
	// bytes per second, or zero when BBR was not in use.
	MaxBBRBandwidth int64
	// Last is the final snapshot.
	Last Snapshot
}

func summarize(snaps []Snapshot) (*Summary, error) {
	if len(snaps) == 0 {
		return nil, ErrNoSamples
	}
	s := &Summary{
		Samples: len(snaps),
		Last:    snaps[len(snaps)-1],
	}
	for i := range snaps {
		rtt := tcpinfox.MinRTT(&snaps[i].TCPInfo)
		if rtt == 0 {
			rtt = tcpinfox.SmoothedRTT(&snaps[i].TCPInfo)
		}
		if rtt > 0 && (s.MinRTT == 0 || rtt < s.MinRTT) {
			s.MinRTT = rtt
		}
		if snaps[i].BBRInfo.BW > s.MaxBBRBandwidth {
			s.MaxBBRBandwidth = snaps[i].BBRInfo.BW
		}
	}
	s.SmoothedRTT = tcpinfox.SmoothedRTT(&s.Last.TCPInfo)
	return s, nil
}

func measure(src Source, elapsed time.Duration) (Snapshot, error) {
	bbrinfo, tcpInfo, err := src.ReadInfo()
	return Snapshot{
		ElapsedTime: int64(elapsed / time.Microsecond),
		BBRInfo:     bbrinfo,
		TCPInfo:     tcpInfo,
	}, err
}

func measureUntilContextCancellation(ctx context.Context, src Source, cfg memoryless.Config) (*Summary, error) {
	logging.Logger.Debug("measurer: start")
	defer logging.Logger.Debug("measurer: stop")
	// The ticker closes its output channel once ctx is done.
	ticker, err := memoryless.NewTicker(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer ticker.Stop()
	start := time.Now()
	snaps := make([]Snapshot, 0, 64)
	take := func(now time.Time) {
		snap, err := measure(src, now.Sub(start))
		if err != nil {
			logging.Logger.WithError(err).Debug("measurer: cannot read socket info")
			return
		}
		snaps = append(snaps, snap)
	}
	take(start)
	for now := range ticker.C {
		take(now)
	}
	// One last reading covers the tail of the measurement.
	take(time.Now())
	return summarize(snaps)
}

// Measure samples src until ctx is canceled, then sends one Summary on the
// returned channel and closes it. Nothing is sent when no snapshot could be
// read or cfg is invalid. The caller must cancel ctx before src is closed.
func Measure(ctx context.Context, src Source, cfg memoryless.Config) <-chan *Summary {
	// Capacity 1 lets the goroutine exit even if the caller never reads.
	c := make(chan *Summary, 1)
	go func() {
		defer close(c)
		summary, err := measureUntilContextCancellation(ctx, src, cfg)
		if err != nil {
			logging.Logger.WithError(err).Warn("measurer: no summary")
			return
		}
		c <- summary
	}()
	return c
}
