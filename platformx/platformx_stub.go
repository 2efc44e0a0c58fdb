//go:build !linux

package platformx

import (
	"github.com/m-lab/iperfer/logging"
)

func maybeEmitWarning() {
	logging.Logger.Warn("This platform is not fully supported: no TCP_INFO sampling, no BBR, and the listen backlog is the system default.")
}
