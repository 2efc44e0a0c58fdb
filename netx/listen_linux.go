//go:build linux

package netx

import (
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// listenTCP creates the listening socket by hand so the backlog can be set.
// The net package always uses the system maximum.
func listenTCP(port int) (*net.TCPListener, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return nil, &EstablishError{Op: "socket", Err: os.NewSyscallError("socket", err)}
	}
	if err := unix.Bind(fd, &unix.SockaddrInet4{Port: port}); err != nil {
		unix.Close(fd)
		return nil, &EstablishError{Op: "bind", Err: os.NewSyscallError("bind", err)}
	}
	if err := unix.Listen(fd, listenBacklog); err != nil {
		unix.Close(fd)
		return nil, &EstablishError{Op: "listen", Err: os.NewSyscallError("listen", err)}
	}
	// net.FileListener dups fd, so the original is closed either way.
	fp := os.NewFile(uintptr(fd), "listener")
	defer fp.Close()
	l, err := net.FileListener(fp)
	if err != nil {
		return nil, &EstablishError{Op: "listen", Err: err}
	}
	return l.(*net.TCPListener), nil
}
