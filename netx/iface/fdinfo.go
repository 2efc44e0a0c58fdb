// Package iface provides access to network connection operations via file
// descriptor. The implementation MUST be correct by inspection.
package iface

import (
	"net"
	"os"

	"github.com/m-lab/iperfer/bbr"
	"github.com/m-lab/iperfer/tcpinfox"
	"github.com/m-lab/tcp-info/inetdiag"
	"github.com/m-lab/tcp-info/tcp"
	"github.com/m-lab/uuid"
)

// ConnFile provides access to underlying network file.
type ConnFile interface {
	DupFile(tc *net.TCPConn) (*os.File, error)
}

// NetInfo provides access to network connection metadata.
type NetInfo interface {
	GetUUID(fp *os.File) (string, error)
	GetBBRInfo(fp *os.File) (inetdiag.BBRInfo, error)
	GetTCPInfo(fp *os.File) (*tcp.LinuxTCPInfo, error)
	GetCongestionControl(fp *os.File) (string, error)
	EnableBBR(fp *os.File) error
}

// RealConnInfo implements both the ConnFile and NetInfo interfaces.
type RealConnInfo struct{}

// DupFile returns the corresponding *os.File. Note that the returned
// *os.File is a dup() of the original, hence the caller owns two objects
// that both need to be closed.
func (f *RealConnInfo) DupFile(tc *net.TCPConn) (*os.File, error) {
	return tc.File()
}

// GetUUID returns a UUID for the given file pointer.
func (f *RealConnInfo) GetUUID(fp *os.File) (string, error) {
	return uuid.FromFile(fp)
}

// GetBBRInfo returns BBRInfo for the given file pointer.
func (f *RealConnInfo) GetBBRInfo(fp *os.File) (inetdiag.BBRInfo, error) {
	return bbr.GetBBRInfo(fp)
}

// GetTCPInfo returns TCPInfo for the given file pointer.
func (f *RealConnInfo) GetTCPInfo(fp *os.File) (*tcp.LinuxTCPInfo, error) {
	return tcpinfox.GetTCPInfo(fp)
}

// GetCongestionControl returns the congestion control algorithm in use.
func (f *RealConnInfo) GetCongestionControl(fp *os.File) (string, error) {
	return bbr.CongestionControl(fp)
}

// EnableBBR switches the congestion control of fp to BBR.
func (f *RealConnInfo) EnableBBR(fp *os.File) error {
	return bbr.Enable(fp)
}
