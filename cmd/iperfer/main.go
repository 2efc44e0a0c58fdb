// iperfer measures round-trip latency and one-way throughput over a single
// TCP connection between a passive endpoint (-s) and an active one (-c).
//
// Every flag may also be given as an environment variable named after the
// flag in upper case, with dots replaced by underscores, e.g. P=5201.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/httpx"
	"github.com/m-lab/go/warnonerror"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/m-lab/iperfer/config"
	"github.com/m-lab/iperfer/data"
	"github.com/m-lab/iperfer/logging"
	"github.com/m-lab/iperfer/metadata"
	"github.com/m-lab/iperfer/netdev"
	"github.com/m-lab/iperfer/platformx"
	"github.com/m-lab/iperfer/redis"
	"github.com/m-lab/iperfer/results"
	"github.com/m-lab/iperfer/runner"
	"github.com/m-lab/iperfer/version"
)

// Exit codes.
const (
	exitOK      = 0
	exitUsage   = 1
	exitFailure = 2
)

var (
	serverMode = flag.Bool("s", false, "Run as the passive endpoint")
	clientMode = flag.Bool("c", false, "Run as the active endpoint")
	port       = flag.Int("p", 0, "Port number in the range [1024, 65535]")
	host       = flag.String("h", "", "IPv4 address of the passive endpoint (with -c)")
	seconds    = flag.Float64("t", 0, "Duration of the transfer in seconds, fractions allowed (with -c)")

	dataDir   = flag.String("datadir", "", "Directory to archive results into. Empty disables archiving.")
	redisAddr = flag.String("redis.addr", "", "Redis address to publish results to. Empty disables publishing.")
	promAddr  = flag.String("prometheus.addr", "", "Address to serve /metrics on. Empty disables the metrics server.")
	enableBBR = flag.Bool("bbr", false, "Try to enable BBR on the measurement connection")
	tcpInfo   = flag.Bool("tcpinfo", false, "Sample TCP_INFO of the measurement connection in the background")
	logFormat = flag.String("log.format", logging.FormatJSON, "Log format: json, text or cli")
	device    = flag.String("netdev.device", "", "Record the traffic on this network device during the transfer. Empty disables it.")
	meta      flagx.StringArray

	// Context for the whole program. Tests replace it.
	ctx, cancel = context.WithCancel(context.Background())

	osExit           = os.Exit
	stdout io.Writer = os.Stdout
)

func init() {
	flag.Var(&meta, "metadata", "name=value annotation to store with the result. May be repeated.")
}

func main() {
	if err := parseFlags(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			osExit(exitOK)
			return
		}
		logging.Logger.WithError(err).Error("invalid arguments")
		osExit(exitUsage)
		return
	}

	sigctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	code := run(sigctx)
	stop()
	osExit(code)
}

// parseFlags reads the command line and then the environment. Malformed
// values are returned as errors instead of exiting the process.
func parseFlags(args []string) error {
	flag.CommandLine.Init(os.Args[0], flag.ContinueOnError)
	if err := flag.CommandLine.Parse(args); err != nil {
		return err
	}
	return flagx.ArgsFromEnv(flag.CommandLine)
}

// run performs one measurement using the parsed flags and returns the exit
// code.
func run(ctx context.Context) int {
	if err := logging.SetFormat(*logFormat); err != nil {
		logging.Logger.WithError(err).Error("invalid -log.format")
		return exitUsage
	}
	platformx.WarnIfNotFullySupported()

	cfg, err := config.FromFlags(config.Flags{
		Server:  *serverMode,
		Client:  *clientMode,
		Port:    *port,
		Host:    *host,
		Seconds: *seconds,
	})
	if err != nil {
		logging.Logger.WithError(err).Error("invalid arguments")
		return exitUsage
	}

	nvs, err := metadata.Parse(meta)
	if err != nil {
		logging.Logger.WithError(err).Error("invalid -metadata")
		return exitUsage
	}
	opts := runner.Options{
		Version:      version.Version,
		EnableBBR:    *enableBBR,
		SampleSocket: *tcpInfo,
		Metadata:     nvs,
	}
	if *device != "" {
		r, err := netdev.NewReader(netdev.DefaultProcPath, *device)
		if err != nil {
			logging.Logger.WithError(err).Warn("cannot watch network device")
		} else {
			opts.Device = r
		}
	}

	if *promAddr != "" {
		srv, err := serveMetrics(*promAddr)
		if err != nil {
			logging.Logger.WithError(err).Error("cannot start metrics server")
			return exitFailure
		}
		defer warnonerror.Close(srv, "Could not close metrics server")
	}

	result, err := runner.Run(ctx, cfg, opts)
	code := exitCode(err)
	logger := logging.Logger.WithField("role", cfg.Role.String())
	switch code {
	case exitOK:
		if err != nil {
			logger.WithError(err).Warn("peer went away during the probe phase, no report")
		}
	default:
		logger.WithError(err).Error("measurement failed")
	}
	if result == nil {
		return code
	}
	archive(result)
	if result.Report != nil {
		verb := "Received"
		if cfg.Role == config.Active {
			verb = "Sent"
		}
		line := result.Report.Line(verb)
		logger.WithFields(log.Fields{
			"kilobytes": result.Report.Kilobytes,
			"rate_mbps": result.Report.RateMbps,
			"rtt_ms":    result.Report.AvgRTTMs,
		}).Info(line)
		fmt.Fprintln(stdout, line)
	}
	return code
}

// exitCode maps the error returned by runner.Run to the process exit code.
// A passive probe abort is not a failure of the tool.
func exitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, runner.ErrProbeAborted):
		return exitOK
	case errors.Is(err, config.ErrUsage):
		return exitUsage
	default:
		return exitFailure
	}
}

func serveMetrics(addr string) (*http.Server, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:    addr,
		Handler: logging.MakeAccessLogHandler(mux),
	}
	return srv, httpx.ListenAndServeAsync(srv)
}

// archive stores result wherever the flags ask for. Failures are logged and
// do not change the exit code.
func archive(result *data.Result) {
	if *dataDir != "" {
		name, err := results.Save(*dataDir, result)
		if err != nil {
			logging.Logger.WithError(err).Warn("cannot archive result")
		} else {
			logging.Logger.WithField("file", name).Debug("result archived")
		}
	}
	if *redisAddr != "" {
		client := redis.NewClient(*redisAddr)
		defer warnonerror.Close(client, "Could not close redis client")
		// Publishing still gets a grace period after an interrupt.
		rctx, rcancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer rcancel()
		if err := client.Ping(rctx); err != nil {
			logging.Logger.WithError(err).Warn("redis is not reachable, result not published")
			return
		}
		if err := client.SetResult(rctx, result); err != nil {
			logging.Logger.WithError(err).Warn("cannot publish result")
		}
	}
}
