// Package stats turns the raw counters of a measurement into a Report.
package stats

import (
	"fmt"
	"math"

	"github.com/m-lab/iperfer/probe"
	"github.com/m-lab/iperfer/protocol"
	"github.com/m-lab/iperfer/stream"
)

// Report is the human-facing summary of one measurement.
type Report struct {
	// Kilobytes is the number of bytes transferred divided by 1000.
	Kilobytes int64
	// RateMbps is the throughput in megabits per second.
	RateMbps float64
	// AvgRTTMs is the mean of the last protocol.WarmupRounds RTT samples, in
	// whole milliseconds.
	AvgRTTMs int64
}

// Aggregate computes the Report for a throughput session and the RTT samples
// of the preceding probe phase. The rate only counts the bytes inside the
// session's time window. It has no side effects.
func Aggregate(sess stream.Session, samples probe.Samples) Report {
	return Report{
		Kilobytes: sess.TotalBytes / 1000,
		RateMbps:  RateMbps(sess.WindowBytes, sess.Elapsed().Seconds()),
		AvgRTTMs:  AverageRTTMs(samples),
	}
}

// RateMbps returns bytes*8/(seconds*1e6), or 0 when seconds is not positive.
func RateMbps(bytes int64, seconds float64) float64 {
	if !(seconds > 0) || math.IsInf(seconds, 0) {
		return 0
	}
	return float64(bytes) * 8 / (seconds * 1e6)
}

// AverageRTTMs returns the rounded mean of the last protocol.WarmupRounds
// samples in milliseconds. The earlier samples are connection warm-up and
// are not included. With fewer than protocol.WarmupRounds samples the
// result is 0.
func AverageRTTMs(samples probe.Samples) int64 {
	ms := samples.Milliseconds()
	if len(ms) < protocol.WarmupRounds {
		return 0
	}
	sum := 0.0
	for _, v := range ms[len(ms)-protocol.WarmupRounds:] {
		sum += v
	}
	return int64(math.Round(sum / protocol.WarmupRounds))
}

// Line formats the report as a single line. verb is "Sent" or "Received".
func (r Report) Line(verb string) string {
	return fmt.Sprintf("%s=%d KB, Rate=%.3f Mbps, RTT=%dms", verb, r.Kilobytes, r.RateMbps, r.AvgRTTMs)
}
