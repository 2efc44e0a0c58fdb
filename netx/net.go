// Package netx establishes the single TCP connection a measurement runs
// over. The passive endpoint listens with a backlog of one and accepts
// exactly one peer; the active endpoint connects to a literal IPv4 address.
//
// Conns returned by this package keep a dup() of the socket descriptor, so
// that callers can read kernel statistics (TCP_INFO, BBR) and the socket
// UUID while the measurement runs.
package netx

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	guuid "github.com/google/uuid"
	"github.com/m-lab/go/rtx"
	"github.com/m-lab/iperfer/netx/iface"
	"github.com/m-lab/tcp-info/inetdiag"
	"github.com/m-lab/tcp-info/tcp"
)

// listenBacklog is the listen(2) backlog. A measurement has a single peer.
const listenBacklog = 1

// EstablishError is returned when the connection cannot be established.
// Op names the step that failed: socket, bind, listen, accept, resolve or
// connect.
type EstablishError struct {
	Op  string
	Err error
}

func (e *EstablishError) Error() string {
	return "cannot " + e.Op + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *EstablishError) Unwrap() error {
	return e.Err
}

// Listener is a TCPListener whose Accept returns *Conn.
type Listener struct {
	*net.TCPListener
	connfile iface.ConnFile
}

// NewListener creates a new Listener using the given net.TCPListener.
func NewListener(l *net.TCPListener) *Listener {
	return &Listener{
		TCPListener: l,
		connfile:    &iface.RealConnInfo{},
	}
}

// Listen binds the wildcard IPv4 address on port and listens with a
// backlog of one. Port zero selects an ephemeral port.
func Listen(port int) (*Listener, error) {
	tcpl, err := listenTCP(port)
	if err != nil {
		return nil, err
	}
	return NewListener(tcpl), nil
}

// Conn is returned by Listener.Accept and Dial and provides mediated access
// to additional operations on the Conn file descriptor.
type Conn struct {
	net.Conn
	fp      *os.File
	netinfo iface.NetInfo
	once    sync.Once
	err     error
}

// ConnInfo provides operations on a Conn's underlying file descriptor.
type ConnInfo interface {
	UUID() string
	EnableBBR() error
	ReadInfo() (inetdiag.BBRInfo, tcp.LinuxTCPInfo, error)
	CongestionControl() string
}

func newConn(tc *net.TCPConn, cf iface.ConnFile) (*Conn, error) {
	fp, err := cf.DupFile(tc)
	if err != nil {
		tc.Close()
		return nil, err
	}
	return &Conn{
		Conn:    tc,
		fp:      fp,
		netinfo: &iface.RealConnInfo{},
	}, nil
}

// Accept a connection, set 3min keepalive, and return a *Conn as a net.Conn.
func (ln *Listener) Accept() (net.Conn, error) {
	return ln.AcceptConn()
}

// AcceptConn is like Accept but returns the concrete *Conn.
func (ln *Listener) AcceptConn() (*Conn, error) {
	tc, err := ln.AcceptTCP()
	if err != nil {
		return nil, &EstablishError{Op: "accept", Err: err}
	}
	tc.SetKeepAlive(true)
	tc.SetKeepAlivePeriod(3 * time.Minute)
	c, err := newConn(tc, ln.connfile)
	if err != nil {
		return nil, &EstablishError{Op: "accept", Err: err}
	}
	return c, nil
}

// AcceptOne accepts exactly one peer on ln and then closes ln, so that no
// further connections can be queued. Canceling ctx aborts the wait.
func AcceptOne(ctx context.Context, ln *Listener) (*Conn, error) {
	defer ln.Close()
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			ln.Close()
		case <-stop:
		}
	}()
	c, err := ln.AcceptConn()
	if err != nil && ctx.Err() != nil {
		return nil, &EstablishError{Op: "accept", Err: ctx.Err()}
	}
	return c, err
}

// Dial connects to host:port. The host must be a literal IPv4 address; no
// name resolution is performed.
func Dial(ctx context.Context, host string, port int) (*Conn, error) {
	ip := net.ParseIP(host)
	if ip == nil || ip.To4() == nil {
		return nil, &EstablishError{Op: "resolve", Err: fmt.Errorf("%q is not a literal IPv4 address", host)}
	}
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp4", net.JoinHostPort(ip.String(), strconv.Itoa(port)))
	if err != nil {
		return nil, &EstablishError{Op: "connect", Err: err}
	}
	mc, err := newConn(c.(*net.TCPConn), &iface.RealConnInfo{})
	if err != nil {
		return nil, &EstablishError{Op: "connect", Err: err}
	}
	return mc, nil
}

// Close the underlying net.Conn and dup'd file descriptor. Only the first
// call has an effect; later calls return the same error.
func (mc *Conn) Close() error {
	mc.once.Do(func() {
		mc.fp.Close()
		mc.err = mc.Conn.Close()
	})
	return mc.err
}

// EnableBBR sets the BBR congestion control on the TCP connection, if
// supported by the kernel.
func (mc *Conn) EnableBBR() error {
	return mc.netinfo.EnableBBR(mc.fp)
}

// ReadInfo reads metadata about the TCP connection. If BBR is not in use on
// the connection, then ReadInfo will return an empty BBRInfo struct. If TCP
// info metrics cannot be read, an error is returned.
func (mc *Conn) ReadInfo() (inetdiag.BBRInfo, tcp.LinuxTCPInfo, error) {
	// Sample BBR before TCPInfo so that TCPInfo tells us whether the
	// connection was closed in the meantime.
	bbrinfo, err := mc.netinfo.GetBBRInfo(mc.fp)
	if err != nil {
		bbrinfo = inetdiag.BBRInfo{}
	}
	tcpInfo, err := mc.netinfo.GetTCPInfo(mc.fp)
	if err != nil {
		return inetdiag.BBRInfo{}, tcp.LinuxTCPInfo{}, err
	}
	return bbrinfo, *tcpInfo, nil
}

// CongestionControl returns the congestion control algorithm in use, or
// the empty string when it cannot be determined.
func (mc *Conn) CongestionControl() string {
	cc, err := mc.netinfo.GetCongestionControl(mc.fp)
	if err != nil {
		return ""
	}
	return cc
}

// UUID returns the connection's UUID.
func (mc *Conn) UUID() string {
	id, err := mc.netinfo.GetUUID(mc.fp)
	if err != nil {
		// Use UUID v1 as fallback when SO_COOKIE isn't supported by kernel
		fallbackUUID, err := guuid.NewUUID()
		// NOTE: this could only fail when `GetTime` fails from guuid package.
		rtx.Must(err, "unable to fallback to uuid")
		id = fallbackUUID.String()
	}
	return id
}

// ToTCPAddr is a helper function for extracting the net.TCPAddr type from a
// net.Addr. ToTCPAddr returns nil if addr does not contain a *net.TCPAddr.
func ToTCPAddr(addr net.Addr) *net.TCPAddr {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return a
	default:
		log.Printf("unsupported addr type: %T", a)
		return nil
	}
}
