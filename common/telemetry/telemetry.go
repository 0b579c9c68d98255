// Package telemetry exposes the pprof debug server for development
// deployments. Execution metrics live on the event bus; this only
// covers runtime profiling.
package telemetry

import (
	"fmt"
	"net/http"
	_ "net/http/pprof"

	"github.com/aether-ai/conductor/common/logger"
)

// Debug serves net/http/pprof on localhost
type Debug struct {
	log  *logger.Logger
	addr string
}

// NewDebug creates the debug server. It binds to localhost only.
func NewDebug(port int, log *logger.Logger) *Debug {
	return &Debug{
		log:  log,
		addr: fmt.Sprintf("localhost:%d", port),
	}
}

// Start serves pprof in the background. Listener errors are logged,
// never fatal: profiling is best effort.
func (d *Debug) Start() {
	go func() {
		d.log.Info("pprof server starting", "addr", d.addr)
		if err := http.ListenAndServe(d.addr, nil); err != nil {
			d.log.Error("pprof server error", "error", err)
		}
	}()
}
