//go:build !linux

package netx

import (
	"net"
)

func listenTCP(port int) (*net.TCPListener, error) {
	l, err := net.ListenTCP("tcp4", &net.TCPAddr{Port: port})
	if err != nil {
		return nil, &EstablishError{Op: "listen", Err: err}
	}
	return l, nil
}
