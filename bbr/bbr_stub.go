//go:build !linux
// +build !linux

package bbr

import (
	"os"

	"github.com/m-lab/tcp-info/inetdiag"
)

func enableBBR(*os.File) error {
	return ErrNoSupport
}

func getBBRInfo(*os.File) (inetdiag.BBRInfo, error) {
	return inetdiag.BBRInfo{}, ErrNoSupport
}

func congestionControl(*os.File) (string, error) {
	return "", ErrNoSupport
}
