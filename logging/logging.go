// Package logging contains data structures useful to implement logging
// across iperfer in a Docker friendly way.
package logging

import (
	"fmt"
	"io"
	golog "log"
	"net/http"
	"os"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/text"
	"github.com/gorilla/handlers"
)

// Logger is a logger that logs messages on the standard error
// in a structured JSON format, to simplify processing. Emitting logs
// on the standard error is consistent with the standard practices
// when dockerising an Apache or Nginx instance.
var Logger = log.Logger{
	Handler: json.New(os.Stderr),
	Level:   log.DebugLevel,
}

// Formats accepted by SetFormat.
const (
	FormatJSON = "json"
	FormatText = "text"
	FormatCLI  = "cli"
)

// NewHandler returns the apex/log handler for format writing to w.
func NewHandler(format string, w io.Writer) (log.Handler, error) {
	switch format {
	case FormatJSON:
		return json.New(w), nil
	case FormatText:
		return text.New(w), nil
	case FormatCLI:
		return cli.New(w), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// SetFormat switches Logger to the given format on the standard error.
func SetFormat(format string) error {
	h, err := NewHandler(format, os.Stderr)
	if err != nil {
		return err
	}
	Logger.Handler = h
	return nil
}

// MakeAccessLogHandler wraps |handler| with another handler that logs
// access to each resource on the standard output. This is consistent with
// the way in which Apache and Nginx are dockerised.
func MakeAccessLogHandler(handler http.Handler) http.Handler {
	return handlers.LoggingHandler(golog.Writer(), handler)
}
