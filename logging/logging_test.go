package logging

import (
	"bytes"
	"log"
	"net/http"
	"strings"
	"testing"

	apexlog "github.com/apex/log"
	"github.com/m-lab/go/httpx"
	"github.com/m-lab/go/rtx"
)

type fakeHandler struct{}

func (s *fakeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(200)
}

func TestMakeAccessLogHandler(t *testing.T) {
	buff := &bytes.Buffer{}
	old := log.Writer()
	defer func() {
		log.SetOutput(old)
	}()
	log.SetOutput(buff)
	f := MakeAccessLogHandler(&fakeHandler{})
	log.SetOutput(old)
	srv := http.Server{
		Addr:    ":0",
		Handler: f,
	}
	rtx.Must(httpx.ListenAndServeAsync(&srv), "Could not start server")
	defer srv.Close()
	_, err := http.Get("http://" + srv.Addr + "/")
	rtx.Must(err, "Could not get")
	s, _ := buff.ReadString('\n')
	if s == "" {
		t.Error("We should not have had an empty string")
	}
}

func TestNewHandler(t *testing.T) {
	tests := []struct {
		format  string
		want    string
		wantErr bool
	}{
		{format: FormatJSON, want: `"message":"hello"`},
		{format: FormatText, want: "hello"},
		{format: FormatCLI, want: "hello"},
		{format: "xml", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			buf := &bytes.Buffer{}
			h, err := NewHandler(tt.format, buf)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewHandler() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			l := &apexlog.Logger{Handler: h, Level: apexlog.InfoLevel}
			l.WithField("port", 5201).Info("hello")
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("log output %q does not contain %q", buf.String(), tt.want)
			}
		})
	}
}

func TestSetFormat(t *testing.T) {
	old := Logger.Handler
	defer func() { Logger.Handler = old }()

	if err := SetFormat(FormatText); err != nil {
		t.Errorf("SetFormat(text) unexpected error = %v", err)
	}
	if err := SetFormat("yaml"); err == nil {
		t.Error("SetFormat(yaml) should fail")
	}
}
