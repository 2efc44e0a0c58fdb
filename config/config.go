// Package config holds the validated settings of one iperfer run.
package config

import (
	"errors"
	"fmt"
	"math"
	"net"
	"time"
)

// ErrUsage is wrapped by every error returned from Validate.
var ErrUsage = errors.New("usage error")

// Port limits. Privileged ports are refused.
const (
	MinPort = 1024
	MaxPort = 65535
)

// Role selects the endpoint behavior.
type Role int

// Roles.
const (
	// Passive listens for a single peer and receives.
	Passive Role = iota + 1
	// Active connects to the peer and sends.
	Active
)

func (r Role) String() string {
	switch r {
	case Passive:
		return "passive"
	case Active:
		return "active"
	default:
		return "unknown"
	}
}

// MarshalText encodes the role by name.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText is the inverse of MarshalText.
func (r *Role) UnmarshalText(b []byte) error {
	switch string(b) {
	case "passive":
		*r = Passive
	case "active":
		*r = Active
	default:
		return fmt.Errorf("unknown role %q", b)
	}
	return nil
}

// Config is the input of a run.
type Config struct {
	Role Role
	// Port is the TCP port to listen on (Passive) or connect to (Active).
	Port int
	// Host is the literal IPv4 address of the passive peer. Active only.
	Host string
	// Duration is how long the active side streams data. Active only.
	Duration time.Duration
}

// Flags are the raw command line values, before validation.
type Flags struct {
	Server  bool
	Client  bool
	Port    int
	Host    string
	Seconds float64
}

// maxSeconds is the longest duration a time.Duration can hold.
var maxSeconds = time.Duration(math.MaxInt64).Seconds()

func usagef(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrUsage, fmt.Sprintf(format, args...))
}

// FromFlags validates f and converts it into a Config. All checks happen
// before any network activity.
func FromFlags(f Flags) (Config, error) {
	var c Config
	switch {
	case f.Server && f.Client:
		return c, usagef("-s and -c are mutually exclusive")
	case f.Server:
		c.Role = Passive
	case f.Client:
		c.Role = Active
	default:
		return c, usagef("one of -s or -c is required")
	}
	c.Port = f.Port
	if c.Role == Active {
		c.Host = f.Host
		// Also rejects NaN.
		if !(f.Seconds > 0) || f.Seconds >= maxSeconds {
			return c, usagef("duration must be a positive number of seconds")
		}
		c.Duration = time.Duration(f.Seconds * float64(time.Second))
	}
	return c, c.Validate()
}

// Validate checks the invariants of c.
func (c Config) Validate() error {
	if c.Role != Passive && c.Role != Active {
		return usagef("unknown role %d", c.Role)
	}
	if c.Port == 0 {
		return usagef("missing port number")
	}
	if c.Port < MinPort || c.Port > MaxPort {
		return usagef("port number must be in the range of [%d, %d]", MinPort, MaxPort)
	}
	if c.Role == Passive {
		return nil
	}
	if c.Host == "" {
		return usagef("missing host")
	}
	if ip := net.ParseIP(c.Host); ip == nil || ip.To4() == nil {
		return usagef("host %q is not a literal IPv4 address", c.Host)
	}
	if c.Duration <= 0 {
		return usagef("duration must be a positive number of seconds")
	}
	return nil
}
