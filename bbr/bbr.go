// Package bbr contains code required to enable TCP BBR on a socket and to
// read its BBR variables. This code currently only works on Linux systems,
// as BBR is only available there.
package bbr

import (
	"errors"
	"os"

	"github.com/m-lab/tcp-info/inetdiag"
)

// ErrNoSupport indicates that this system does not support BBR.
var ErrNoSupport = errors.New("TCP_CC_INFO not supported")

// Enable enables BBR on |fp|.
func Enable(fp *os.File) error {
	return enableBBR(fp)
}

// GetBBRInfo obtains BBR info from |fp|. It returns ErrNoSupport when the
// socket is not using BBR.
func GetBBRInfo(fp *os.File) (inetdiag.BBRInfo, error) {
	return getBBRInfo(fp)
}

// CongestionControl returns the name of the congestion control algorithm
// used by |fp|.
func CongestionControl(fp *os.File) (string, error) {
	return congestionControl(fp)
}
