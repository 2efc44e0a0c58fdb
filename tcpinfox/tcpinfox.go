// Package tcpinfox helps to gather TCP_INFO statistics from the socket
// underlying a measurement connection.
package tcpinfox

import (
	"errors"
	"os"
	"time"

	"github.com/m-lab/tcp-info/tcp"
)

// ErrNoSupport is returned on systems that do not support TCP_INFO.
var ErrNoSupport = errors.New("TCP_INFO not supported")

// GetTCPInfo measures TCP_INFO metrics using |fp| and returns them. In
// case of error, instead, an error is returned.
func GetTCPInfo(fp *os.File) (*tcp.LinuxTCPInfo, error) {
	return getTCPInfo(fp)
}

// SmoothedRTT returns the kernel's smoothed RTT estimate.
func SmoothedRTT(info *tcp.LinuxTCPInfo) time.Duration {
	return time.Duration(info.RTT) * time.Microsecond
}

// MinRTT returns the minimum RTT the kernel observed on the connection.
func MinRTT(info *tcp.LinuxTCPInfo) time.Duration {
	return time.Duration(info.MinRTT) * time.Microsecond
}
