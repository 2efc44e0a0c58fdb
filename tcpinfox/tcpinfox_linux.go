package tcpinfox

import (
	"os"
	"unsafe"

	"github.com/m-lab/tcp-info/tcp"
	"golang.org/x/sys/unix"
)

func getTCPInfo(fp *os.File) (*tcp.LinuxTCPInfo, error) {
	tcpInfo := tcp.LinuxTCPInfo{}
	tcpInfoLen := uint32(unsafe.Sizeof(tcpInfo))
	_, _, errno := unix.Syscall6(
		unix.SYS_GETSOCKOPT,
		fp.Fd(),
		uintptr(unix.SOL_TCP),
		uintptr(unix.TCP_INFO),
		uintptr(unsafe.Pointer(&tcpInfo)),
		uintptr(unsafe.Pointer(&tcpInfoLen)),
		0)
	if errno != 0 {
		return &tcpInfo, errno
	}
	return &tcpInfo, nil
}
