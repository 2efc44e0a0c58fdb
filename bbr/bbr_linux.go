package bbr

import (
	"os"
	"strings"
	"unsafe"

	"github.com/m-lab/tcp-info/inetdiag"
	"golang.org/x/sys/unix"
)

// tcpBBRInfo mirrors struct tcp_bbr_info from include/uapi/linux/inet_diag.h.
type tcpBBRInfo struct {
	BwLo       uint32
	BwHi       uint32
	MinRTT     uint32
	PacingGain uint32
	CwndGain   uint32
}

func enableBBR(fp *os.File) error {
	// Note: casting to int is safe because a socket is int on Unix
	return unix.SetsockoptString(int(fp.Fd()), unix.IPPROTO_TCP, unix.TCP_CONGESTION, "bbr")
}

func getBBRInfo(fp *os.File) (inetdiag.BBRInfo, error) {
	var ti tcpBBRInfo
	size := uint32(unsafe.Sizeof(ti))
	length := size
	_, _, errno := unix.Syscall6(
		unix.SYS_GETSOCKOPT,
		fp.Fd(),
		uintptr(unix.IPPROTO_TCP),
		uintptr(unix.TCP_CC_INFO),
		uintptr(unsafe.Pointer(&ti)),
		uintptr(unsafe.Pointer(&length)),
		0)
	if errno != 0 {
		return inetdiag.BBRInfo{}, errno
	}
	// tcp_bbr_info is the only congestion control data structure that
	// occupies five 32 bit words; a shorter reply means another algorithm.
	if length != size {
		return inetdiag.BBRInfo{}, ErrNoSupport
	}
	return inetdiag.BBRInfo{
		BW:         int64(uint64(ti.BwHi)<<32 | uint64(ti.BwLo)),
		MinRTT:     ti.MinRTT,
		PacingGain: ti.PacingGain,
		CwndGain:   ti.CwndGain,
	}, nil
}

func congestionControl(fp *os.File) (string, error) {
	cc, err := unix.GetsockoptString(int(fp.Fd()), unix.IPPROTO_TCP, unix.TCP_CONGESTION)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(cc, "\x00"), nil
}
