package data

import (
	"time"

	"github.com/m-lab/iperfer/config"
	"github.com/m-lab/iperfer/measurer"
	"github.com/m-lab/iperfer/metadata"
	"github.com/m-lab/iperfer/netdev"
	"github.com/m-lab/iperfer/protocol"
	"github.com/m-lab/iperfer/stats"
)

// CurrentSchemaVersion is the current version of the Result struct below.
// This schema version should be included in serialized JSON result files. The
// version should be incremented for every structure change to Result so that
// readers of archived records can tell them apart.
const CurrentSchemaVersion = 1

// Result is the struct that is serialized as JSON to disk and to Redis as the
// archival record of one iperfer run.
type Result struct {
	// Version is the symbolic version (if any) of the running code.
	Version string
	// SchemaVersion represents the version of the Result structure.
	SchemaVersion int

	Role config.Role
	// UUID identifies the connection. It matches the socket cookie when the
	// kernel supports it.
	UUID string

	// All data members should all be self-describing. In the event of confusion,
	// rename them to add clarity rather than adding a comment.
	LocalIP    string
	LocalPort  int
	RemoteIP   string
	RemotePort int

	StartTime time.Time
	EndTime   time.Time

	CongestionControl string `json:",omitempty"`

	Probe  *ProbeData    `json:",omitempty"`
	Stream *StreamData   `json:",omitempty"`
	Report *stats.Report `json:",omitempty"`

	// Socket is the kernel view of the connection, when it was sampled.
	Socket *measurer.Summary `json:",omitempty"`
	// DeviceTraffic is all traffic on the configured network device during
	// the stream phase, the measurement included.
	DeviceTraffic *netdev.Counters `json:",omitempty"`

	Metadata []metadata.NameValue `json:",omitempty"`

	// Error is the error that ended the run early, if any.
	Error string `json:",omitempty"`
}

// ProbeData describes the latency phase.
type ProbeData struct {
	Outcome protocol.Outcome
	// RTTMs are the probe round trip times in milliseconds, in order.
	RTTMs []float64
}

// StreamData describes the throughput phase.
type StreamData struct {
	Outcome     protocol.Outcome
	ChunkSize   int
	Chunks      int64
	TotalBytes  int64
	WindowBytes int64
	StartTime   time.Time
	EndTime     time.Time
}

// New returns an empty Result for role stamped with the current schema.
func New(role config.Role, version string) *Result {
	return &Result{
		Version:       version,
		SchemaVersion: CurrentSchemaVersion,
		Role:          role,
		StartTime:     time.Now(),
	}
}
