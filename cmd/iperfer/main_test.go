package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/m-lab/go/osx"
	"github.com/m-lab/go/prometheusx/promtest"
	"github.com/m-lab/go/rtx"
	pipe "gopkg.in/m-lab/pipe.v3"

	"github.com/m-lab/iperfer/config"
	"github.com/m-lab/iperfer/data"
	"github.com/m-lab/iperfer/netx"
	"github.com/m-lab/iperfer/runner"
)

// Get an open port, and then close it. Hopefully the port will remain free
// for the next few microseconds so that we can use it in unit tests.
func getOpenPort() int {
	ln, err := net.Listen("tcp4", ":0")
	rtx.Must(err, "Could not listen on a local port")
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func countFiles(dir string) int {
	count := 0
	filepath.Walk(dir, func(_path string, info os.FileInfo, _err error) error {
		if info != nil && !info.IsDir() {
			count++
		}
		return nil
	})
	return count
}

// setFlags sets command line flags and restores their previous values when
// the test ends.
func setFlags(t *testing.T, values map[string]string) {
	for name, value := range values {
		name, value := name, value
		f := flag.Lookup(name)
		if f == nil {
			t.Fatalf("no such flag %q", name)
		}
		old := f.Value.String()
		rtx.Must(flag.Set(name, value), "Could not set flag %q", name)
		t.Cleanup(func() { flag.Set(name, old) })
	}
}

// HelperProcess runs main() when invoked as a subprocess of the exit code
// test below.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("IPERFER_HELPER_PROCESS") != "1" {
		return
	}
	main()
}

func TestMainExitCodes(t *testing.T) {
	if testing.Short() {
		t.Skip("Exit code tests start subprocesses")
	}
	free := strconv.Itoa(getOpenPort())
	tests := []struct {
		name string
		env  map[string]string
		args []string
		want string
	}{
		{
			name: "no-role",
			env:  map[string]string{"P": "5201"},
			want: "exit status 1",
		},
		{
			name: "privileged-port",
			env:  map[string]string{"S": "true", "P": "80"},
			want: "exit status 1",
		},
		{
			name: "client-without-duration",
			env:  map[string]string{"C": "true", "P": free, "H": "127.0.0.1"},
			want: "exit status 1",
		},
		{
			name: "bad-log-format",
			env:  map[string]string{"S": "true", "P": free, "LOG_FORMAT": "xml"},
			want: "exit status 1",
		},
		{
			name: "bad-metadata",
			env:  map[string]string{"S": "true", "P": free, "METADATA": "novalue"},
			want: "exit status 1",
		},
		{
			name: "malformed-port",
			env:  map[string]string{"S": "true", "P": "abc"},
			want: "exit status 1",
		},
		{
			name: "fractional-duration-is-valid",
			env:  map[string]string{"C": "true", "P": free, "H": "127.0.0.1", "T": "0.5"},
			want: "exit status 2",
		},
		{
			name: "fractional-duration-on-command-line",
			args: []string{"-c", "-h", "127.0.0.1", "-p", free, "-t", "1.5"},
			want: "exit status 2",
		},
		{
			name: "nan-duration",
			env:  map[string]string{"C": "true", "P": free, "H": "127.0.0.1", "T": "NaN"},
			want: "exit status 1",
		},
		{
			name: "connection-refused",
			env:  map[string]string{"C": "true", "P": free, "H": "127.0.0.1", "T": "1"},
			want: "exit status 2",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			script := []pipe.Pipe{pipe.SetEnvVar("IPERFER_HELPER_PROCESS", "1")}
			for k, v := range tt.env {
				script = append(script, pipe.SetEnvVar(k, v))
			}
			args := append([]string{"-test.run=TestHelperProcess"}, tt.args...)
			script = append(script, pipe.Exec(os.Args[0], args...))
			_, err := pipe.CombinedOutput(pipe.Script(tt.name, script...))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("iperfer exited with %v, want %q", err, tt.want)
			}
		})
	}
}

func Test_parseFlags(t *testing.T) {
	for _, args := range [][]string{
		{"-p", "abc"},
		{"-t", "ten"},
		{"-no-such-flag"},
	} {
		if err := parseFlags(args); err == nil {
			t.Errorf("parseFlags(%q) should fail", args)
		}
	}
}

func Test_exitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, exitOK},
		{"probe-aborted", fmt.Errorf("%w: %w", runner.ErrProbeAborted, errors.New("EOF")), exitOK},
		{"usage", fmt.Errorf("%w: bad role", config.ErrUsage), exitUsage},
		{"establish", &netx.EstablishError{Op: "connect", Err: errors.New("refused")}, exitFailure},
		{"probe-fatal", &runner.FatalError{Phase: "probe", Err: errors.New("reset")}, exitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func Test_runActiveAgainstPassive(t *testing.T) {
	dir := t.TempDir()
	passivePort := getOpenPort()

	// The passive side runs in-process through the runner; the active side
	// goes through the command line path.
	rctx, rcancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer rcancel()
	done := make(chan error, 1)
	go func() {
		_, err := runner.Run(rctx, config.Config{Role: config.Passive, Port: passivePort}, runner.Options{})
		done <- err
	}()

	setFlags(t, map[string]string{
		"c":               "true",
		"h":               "127.0.0.1",
		"p":               strconv.Itoa(passivePort),
		"t":               "1",
		"datadir":         dir,
		"prometheus.addr": "127.0.0.1:0",
		"log.format":      "text",
		"netdev.device":   "lo",
	})
	out := &bytes.Buffer{}
	old := stdout
	stdout = out
	defer func() { stdout = old }()

	// The passive side may not be listening yet.
	var code int
	for i := 0; i < 50; i++ {
		out.Reset()
		code = run(rctx)
		if code != exitFailure {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if code != exitOK {
		t.Fatalf("run() = %d, want %d", code, exitOK)
	}
	if err := <-done; err != nil {
		t.Errorf("passive runner.Run() unexpected error = %v", err)
	}
	if !strings.HasPrefix(out.String(), "Sent=") || !strings.Contains(out.String(), "Mbps") {
		t.Errorf("run() printed %q", out.String())
	}
	if n := countFiles(dir); n != 1 {
		t.Errorf("found %d archived results, want 1", n)
	}
}

func Test_archiveWithUnreachableRedis(t *testing.T) {
	dir := t.TempDir()
	setFlags(t, map[string]string{
		"datadir":    dir,
		"redis.addr": "127.0.0.1:" + strconv.Itoa(getOpenPort()),
	})
	result := data.New(config.Passive, "test")
	result.UUID = "archive-uuid"

	start := time.Now()
	archive(result)
	if d := time.Since(start); d > 10*time.Second {
		t.Errorf("archive() took %v", d)
	}
	// The file is written even though publishing fails.
	if n := countFiles(dir); n != 1 {
		t.Errorf("found %d archived results, want 1", n)
	}
}

func Test_ContextCancelsMain(t *testing.T) {
	setFlags(t, map[string]string{
		"s": "true",
		"p": strconv.Itoa(getOpenPort()),
	})
	// Flags not given on the command line come from the environment.
	defer osx.MustSetenv("TCPINFO", "true")()
	t.Cleanup(func() { flag.Set("tcpinfo", "false") })

	// Set up the global context for main()
	ctx, cancel = context.WithCancel(context.Background())
	got := -1
	osExit = func(code int) { got = code }
	defer func() { osExit = os.Exit }()

	// Run main, but cancel it very soon after starting.
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	// If this doesn't run forever, then canceling the context causes main to exit.
	main()
	if got != exitFailure {
		t.Errorf("main() exited with %d, want %d", got, exitFailure)
	}
}

func TestMetrics(t *testing.T) {
	promtest.LintMetrics(t)
}
