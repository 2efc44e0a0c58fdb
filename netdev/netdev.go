// Package netdev reads the byte counters of a network device from
// /proc/net/dev. Comparing the counters before and after the stream phase
// shows how much other traffic shared the device with the measurement.
package netdev

import (
	"fmt"

	"github.com/prometheus/procfs"
)

// DefaultProcPath is where procfs is mounted.
const DefaultProcPath = "/proc"

// Counters are the cumulative byte counters of one device.
type Counters struct {
	Device  string
	RxBytes uint64
	TxBytes uint64
}

// Reader reads counters of a single device.
type Reader struct {
	device string
	pfs    procfs.FS
}

// NewReader creates a Reader for device using the procfs mounted at
// procPath. The device is read once to verify that it exists.
func NewReader(procPath, device string) (*Reader, error) {
	pfs, err := procfs.NewFS(procPath)
	if err != nil {
		return nil, err
	}
	r := &Reader{device: device, pfs: pfs}
	if _, err := r.Read(); err != nil {
		return nil, err
	}
	return r, nil
}

// Read returns the current counters.
func (r *Reader) Read() (Counters, error) {
	v, err := readNetDevLine(r.pfs, r.device)
	if err != nil {
		return Counters{}, err
	}
	return Counters{Device: v.Name, RxBytes: v.RxBytes, TxBytes: v.TxBytes}, nil
}

// Sub returns the traffic between an earlier reading and c. Counters that
// went backwards (device reset) yield zero.
func (c Counters) Sub(earlier Counters) Counters {
	d := Counters{Device: c.Device}
	if c.RxBytes >= earlier.RxBytes {
		d.RxBytes = c.RxBytes - earlier.RxBytes
	}
	if c.TxBytes >= earlier.TxBytes {
		d.TxBytes = c.TxBytes - earlier.TxBytes
	}
	return d
}

func readNetDevLine(pfs procfs.FS, device string) (procfs.NetDevLine, error) {
	nd, err := pfs.NetDev()
	if err != nil {
		return procfs.NetDevLine{}, err
	}
	v, ok := nd[device]
	if !ok {
		return procfs.NetDevLine{}, fmt.Errorf("given device not found: %q", device)
	}
	return v, nil
}
