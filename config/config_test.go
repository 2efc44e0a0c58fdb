package config

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestFromFlags(t *testing.T) {
	tests := []struct {
		name    string
		flags   Flags
		want    Config
		wantErr bool
	}{
		{
			name:  "passive",
			flags: Flags{Server: true, Port: 5201},
			want:  Config{Role: Passive, Port: 5201},
		},
		{
			name:  "passive-ignores-host-and-duration",
			flags: Flags{Server: true, Port: 5201, Host: "nonsense", Seconds: -3},
			want:  Config{Role: Passive, Port: 5201},
		},
		{
			name:  "active",
			flags: Flags{Client: true, Port: 65535, Host: "10.0.0.1", Seconds: 10},
			want:  Config{Role: Active, Port: 65535, Host: "10.0.0.1", Duration: 10 * time.Second},
		},
		{
			name:  "active-fractional-duration",
			flags: Flags{Client: true, Port: 5201, Host: "127.0.0.1", Seconds: 1.5},
			want:  Config{Role: Active, Port: 5201, Host: "127.0.0.1", Duration: 1500 * time.Millisecond},
		},
		{
			name:    "active-nan-duration",
			flags:   Flags{Client: true, Port: 5201, Host: "127.0.0.1", Seconds: math.NaN()},
			wantErr: true,
		},
		{
			name:    "active-infinite-duration",
			flags:   Flags{Client: true, Port: 5201, Host: "127.0.0.1", Seconds: math.Inf(1)},
			wantErr: true,
		},
		{
			name:    "no-role",
			flags:   Flags{Port: 5201},
			wantErr: true,
		},
		{
			name:    "both-roles",
			flags:   Flags{Server: true, Client: true, Port: 5201},
			wantErr: true,
		},
		{
			name:    "missing-port",
			flags:   Flags{Server: true},
			wantErr: true,
		},
		{
			name:    "privileged-port",
			flags:   Flags{Server: true, Port: 1023},
			wantErr: true,
		},
		{
			name:    "port-too-large",
			flags:   Flags{Server: true, Port: 65536},
			wantErr: true,
		},
		{
			name:  "lowest-port",
			flags: Flags{Server: true, Port: 1024},
			want:  Config{Role: Passive, Port: 1024},
		},
		{
			name:    "active-missing-host",
			flags:   Flags{Client: true, Port: 5201, Seconds: 1},
			wantErr: true,
		},
		{
			name:    "active-hostname",
			flags:   Flags{Client: true, Port: 5201, Host: "localhost", Seconds: 1},
			wantErr: true,
		},
		{
			name:    "active-ipv6",
			flags:   Flags{Client: true, Port: 5201, Host: "::1", Seconds: 1},
			wantErr: true,
		},
		{
			name:    "active-zero-duration",
			flags:   Flags{Client: true, Port: 5201, Host: "127.0.0.1"},
			wantErr: true,
		},
		{
			name:    "active-negative-duration",
			flags:   Flags{Client: true, Port: 5201, Host: "127.0.0.1", Seconds: -1},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromFlags(tt.flags)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FromFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, ErrUsage) {
					t.Errorf("FromFlags() error = %v, want ErrUsage", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("FromFlags() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestValidate_UnknownRole(t *testing.T) {
	err := Config{Port: 5201}.Validate()
	if !errors.Is(err, ErrUsage) {
		t.Errorf("Validate() = %v, want ErrUsage", err)
	}
}

func TestRole_String(t *testing.T) {
	for r, want := range map[Role]string{Passive: "passive", Active: "active", Role(0): "unknown"} {
		if got := r.String(); got != want {
			t.Errorf("Role(%d).String() = %q, want %q", r, got, want)
		}
	}
}
