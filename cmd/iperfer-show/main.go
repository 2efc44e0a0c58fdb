// iperfer-show prints a result recorded by iperfer, either from an archive
// file written with -datadir or from the Redis server given to -redis.addr.
//
// Without -uuid, the latest result published for -role is shown.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/warnonerror"

	"github.com/m-lab/iperfer/config"
	"github.com/m-lab/iperfer/data"
	"github.com/m-lab/iperfer/logging"
	"github.com/m-lab/iperfer/redis"
	"github.com/m-lab/iperfer/results"
)

// Exit codes, as in iperfer.
const (
	exitOK      = 0
	exitUsage   = 1
	exitFailure = 2
)

var (
	file      = flag.String("file", "", "Archived result to show")
	redisAddr = flag.String("redis.addr", "", "Redis address to read results from")
	uuid      = flag.String("uuid", "", "UUID of the result to fetch from Redis. Empty means the latest one.")
	role      = flag.String("role", config.Passive.String(), "Role whose latest result is fetched: passive or active")
	asJSON    = flag.Bool("json", false, "Print the whole result as JSON")
	timeout   = flag.Duration("timeout", 5*time.Second, "Timeout for Redis operations")
	logFormat = flag.String("log.format", logging.FormatJSON, "Log format: json, text or cli")

	errNoResult = errors.New("no result found")

	osExit           = os.Exit
	stdout io.Writer = os.Stdout
)

func main() {
	flag.CommandLine.Init(os.Args[0], flag.ContinueOnError)
	if err := flag.CommandLine.Parse(os.Args[1:]); err != nil {
		osExit(exitUsage)
		return
	}
	if err := flagx.ArgsFromEnv(flag.CommandLine); err != nil {
		logging.Logger.WithError(err).Error("invalid arguments")
		osExit(exitUsage)
		return
	}
	osExit(run(context.Background()))
}

func run(ctx context.Context) int {
	if err := logging.SetFormat(*logFormat); err != nil {
		logging.Logger.WithError(err).Error("invalid -log.format")
		return exitUsage
	}
	var (
		result *data.Result
		err    error
	)
	switch {
	case *file != "" && *redisAddr != "":
		logging.Logger.Error("-file and -redis.addr are mutually exclusive")
		return exitUsage
	case *file != "":
		result, err = results.Load(*file)
	case *redisAddr != "":
		var r config.Role
		if err := r.UnmarshalText([]byte(*role)); err != nil {
			logging.Logger.WithError(err).Error("invalid -role")
			return exitUsage
		}
		rctx, rcancel := context.WithTimeout(ctx, *timeout)
		defer rcancel()
		result, err = fetch(rctx, *redisAddr, *uuid, r)
	default:
		logging.Logger.Error("one of -file or -redis.addr is required")
		return exitUsage
	}
	if err != nil {
		logging.Logger.WithError(err).Error("cannot read result")
		return exitFailure
	}
	if err := show(stdout, result, *asJSON); err != nil {
		logging.Logger.WithError(err).Error("cannot print result")
		return exitFailure
	}
	return exitOK
}

// fetch reads the result with the given uuid, or the latest one for role
// when uuid is empty.
func fetch(ctx context.Context, addr, id string, r config.Role) (*data.Result, error) {
	client := redis.NewClient(addr)
	defer warnonerror.Close(client, "Could not close redis client")
	if err := client.Ping(ctx); err != nil {
		return nil, err
	}
	if id == "" {
		latest, err := client.GetLatest(ctx, r.String())
		if err != nil {
			return nil, err
		}
		if latest == "" {
			return nil, fmt.Errorf("%w for role %s", errNoResult, r)
		}
		id = latest
	}
	return client.GetResult(ctx, id)
}

// show prints the report line of result, or the error that prevented it.
func show(w io.Writer, result *data.Result, full bool) error {
	if full {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	if result.Report == nil {
		_, err := fmt.Fprintf(w, "%s %s: no report: %s\n", result.Role, result.UUID, result.Error)
		return err
	}
	verb := "Received"
	if result.Role == config.Active {
		verb = "Sent"
	}
	_, err := fmt.Fprintf(w, "%s %s: %s\n", result.Role, result.UUID, result.Report.Line(verb))
	return err
}
