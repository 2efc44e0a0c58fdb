// Package runner sequences one measurement: establish the connection, run
// the probe phase, run the stream phase, and aggregate the Report.
package runner

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/apex/log"
	"github.com/m-lab/go/memoryless"
	"github.com/m-lab/go/warnonerror"

	"github.com/m-lab/iperfer/config"
	"github.com/m-lab/iperfer/data"
	"github.com/m-lab/iperfer/logging"
	"github.com/m-lab/iperfer/measurer"
	"github.com/m-lab/iperfer/metadata"
	"github.com/m-lab/iperfer/metrics"
	"github.com/m-lab/iperfer/netdev"
	"github.com/m-lab/iperfer/netx"
	"github.com/m-lab/iperfer/probe"
	"github.com/m-lab/iperfer/protocol"
	"github.com/m-lab/iperfer/stats"
	"github.com/m-lab/iperfer/stream"
)

// ErrProbeAborted is returned when the passive side loses its peer during
// the probe phase. No Report is produced, but this is not a failure of the
// tool.
var ErrProbeAborted = errors.New("probe phase aborted")

// FatalError is returned when the active side cannot complete a phase
// without which the measurement is meaningless.
type FatalError struct {
	Phase string
	Err   error
}

func (e *FatalError) Error() string {
	return e.Phase + " failed: " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *FatalError) Unwrap() error {
	return e.Err
}

// Options tune a run beyond the Config.
type Options struct {
	// Version is recorded in the Result.
	Version string
	// EnableBBR tries to switch the connection to BBR. Failure is logged.
	EnableBBR bool
	// SampleSocket samples kernel socket statistics in the background.
	SampleSocket bool
	// Sampling configures the socket sampler. The zero value selects
	// measurer.DefaultConfig.
	Sampling memoryless.Config
	// ChunkSize overrides protocol.ChunkSize. Both peers must agree.
	ChunkSize int
	// Clock overrides time.Now.
	Clock protocol.Clock
	// Device, if set, reads the counters of the network device carrying the
	// measurement before and after the stream phase.
	Device DeviceReader
	// Metadata is copied into the Result.
	Metadata []metadata.NameValue
	// OnListen, if set, is called with the listening address of the
	// passive side before it waits for the peer.
	OnListen func(net.Addr)
}

// DeviceReader reads network device counters. *netdev.Reader implements it.
type DeviceReader interface {
	Read() (netdev.Counters, error)
}

func (o *Options) clock() protocol.Clock {
	if o.Clock == nil {
		return time.Now
	}
	return o.Clock
}

func (o *Options) sampling() memoryless.Config {
	if o.Sampling == (memoryless.Config{}) {
		return measurer.DefaultConfig
	}
	return o.Sampling
}

// Run performs one measurement as cfg.Role. The returned Result is non-nil
// whenever a connection was established, even if err is not nil.
//
// Errors are *netx.EstablishError when no connection could be made,
// ErrProbeAborted when the passive probe phase lost its peer, and
// *FatalError when the active probe phase failed. Failures of the stream
// phase are recorded in the Result and do not make Run fail.
func Run(ctx context.Context, cfg config.Config, opts Options) (result *data.Result, err error) {
	role := cfg.Role.String()
	metrics.ActiveRuns.WithLabelValues(role).Inc()
	defer metrics.ActiveRuns.WithLabelValues(role).Dec()

	conn, err := establish(ctx, cfg, &opts)
	if err != nil {
		op := "unknown"
		var ee *netx.EstablishError
		if errors.As(err, &ee) {
			op = ee.Op
		}
		metrics.EstablishErrors.WithLabelValues(role, op).Inc()
		metrics.RunCount.WithLabelValues(role, "establish-error").Inc()
		return nil, err
	}
	defer warnonerror.Close(conn, "runner: could not close connection")

	result = data.New(cfg.Role, opts.Version)
	result.Metadata = opts.Metadata
	describe(result, conn)
	logger := logging.Logger.WithFields(log.Fields{"role": role, "uuid": result.UUID})
	logger.WithField("remote", conn.RemoteAddr().String()).Info("connection established")

	result.CongestionControl = congestionControl(conn, opts.EnableBBR, logger)

	samplerCtx, stopSampler := context.WithCancel(ctx)
	var summaries <-chan *measurer.Summary
	if opts.SampleSocket {
		summaries = measurer.Measure(samplerCtx, conn, opts.sampling())
	}
	// Runs before the connection is closed.
	defer func() {
		stopSampler()
		if summaries != nil {
			result.Socket = <-summaries
		}
		result.EndTime = time.Now()
		if err != nil {
			result.Error = err.Error()
		}
	}()

	samples, err := runProbe(cfg.Role, conn, opts.clock(), result)
	if err != nil {
		logger.WithError(err).Warn("probe phase failed")
		if cfg.Role == config.Passive {
			metrics.RunCount.WithLabelValues(role, "probe-aborted").Inc()
			return result, fmt.Errorf("%w: %w", ErrProbeAborted, err)
		}
		metrics.RunCount.WithLabelValues(role, "probe-error").Inc()
		return result, &FatalError{Phase: "probe", Err: err}
	}

	var before *netdev.Counters
	if opts.Device != nil {
		if c, err := opts.Device.Read(); err == nil {
			before = &c
		} else {
			logger.WithError(err).Warn("cannot read device counters")
		}
	}
	sess := runStream(cfg, conn, &opts, result)
	if before != nil {
		if after, err := opts.Device.Read(); err == nil {
			d := after.Sub(*before)
			result.DeviceTraffic = &d
		}
	}
	if result.Stream.Outcome != protocol.OK {
		// The passive side always ends this way.
		logger.WithField("outcome", result.Stream.Outcome).Debug("stream phase ended by peer")
	}

	report := stats.Aggregate(sess, samples)
	result.Report = &report
	metrics.Rate.WithLabelValues(role).Observe(report.RateMbps)
	metrics.RunCount.WithLabelValues(role, "ok").Inc()
	return result, nil
}

func establish(ctx context.Context, cfg config.Config, opts *Options) (*netx.Conn, error) {
	switch cfg.Role {
	case config.Passive:
		ln, err := netx.Listen(cfg.Port)
		if err != nil {
			return nil, err
		}
		if opts.OnListen != nil {
			opts.OnListen(ln.Addr())
		}
		logging.Logger.WithField("port", cfg.Port).Info("iperfer server started")
		return netx.AcceptOne(ctx, ln)
	case config.Active:
		logging.Logger.WithFields(log.Fields{"host": cfg.Host, "port": cfg.Port}).Info("iperfer client started")
		return netx.Dial(ctx, cfg.Host, cfg.Port)
	default:
		return nil, fmt.Errorf("%w: unknown role %d", config.ErrUsage, cfg.Role)
	}
}

func describe(result *data.Result, conn *netx.Conn) {
	result.UUID = conn.UUID()
	if a := netx.ToTCPAddr(conn.LocalAddr()); a != nil {
		result.LocalIP, result.LocalPort = a.IP.String(), a.Port
	}
	if a := netx.ToTCPAddr(conn.RemoteAddr()); a != nil {
		result.RemoteIP, result.RemotePort = a.IP.String(), a.Port
	}
}

// congestionControl optionally switches ci to BBR and returns the algorithm
// in use afterwards.
func congestionControl(ci netx.ConnInfo, enableBBR bool, logger *log.Entry) string {
	if enableBBR {
		if err := ci.EnableBBR(); err != nil {
			logger.WithError(err).Warn("cannot enable BBR")
		}
	}
	return ci.CongestionControl()
}

func runProbe(role config.Role, conn net.Conn, now protocol.Clock, result *data.Result) (probe.Samples, error) {
	var (
		samples probe.Samples
		outcome protocol.Outcome
		err     error
	)
	if role == config.Active {
		samples, outcome, err = probe.Active(conn, now)
	} else {
		samples, outcome, err = probe.Passive(conn, now)
	}
	metrics.PhaseCount.WithLabelValues(role.String(), "probe", outcome.String()).Inc()
	for _, rtt := range samples.Values() {
		metrics.ProbeRTT.WithLabelValues(role.String()).Observe(rtt.Seconds())
	}
	result.Probe = &data.ProbeData{
		Outcome: outcome,
		RTTMs:   samples.Milliseconds(),
	}
	return samples, err
}

func runStream(cfg config.Config, conn net.Conn, opts *Options, result *data.Result) stream.Session {
	var (
		sess    stream.Session
		outcome protocol.Outcome
		err     error
	)
	if cfg.Role == config.Active {
		s := &stream.Sender{ChunkSize: opts.ChunkSize, Duration: cfg.Duration, Clock: opts.clock()}
		sess, outcome, err = s.Run(conn)
	} else {
		r := &stream.Receiver{ChunkSize: opts.ChunkSize, Clock: opts.clock()}
		sess, outcome, err = r.Run(conn)
	}
	if err != nil {
		logging.Logger.WithError(err).WithField("role", cfg.Role.String()).Info("stream phase ended early")
	}
	metrics.PhaseCount.WithLabelValues(cfg.Role.String(), "stream", outcome.String()).Inc()
	metrics.BytesTransferred.WithLabelValues(cfg.Role.String()).Add(float64(sess.TotalBytes))
	result.Stream = &data.StreamData{
		Outcome:     outcome,
		ChunkSize:   sess.ChunkSize,
		Chunks:      sess.Chunks,
		TotalBytes:  sess.TotalBytes,
		WindowBytes: sess.WindowBytes,
		StartTime:   sess.Start,
		EndTime:     sess.End,
	}
	return sess
}
