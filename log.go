package slava

import (
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// pkgLogger backs the package-wide logger used by the reactor and scheduler
// for lifecycle and fault events. It defaults to a disabled logger so a
// consumer that never calls SetLogger pays nothing on the happy path.
var pkgLogger atomic.Pointer[zerolog.Logger]

func init() {
	l := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.Disabled)
	pkgLogger.Store(&l)
}

// SetLogger installs the logger used for reactor and scheduler diagnostics:
// reactor start, poll loop faults, worker pool start and drain, and
// recovered task panics. Safe to call at any time, including concurrently with a
// running scheduler or reactor.
func SetLogger(l zerolog.Logger) {
	pkgLogger.Store(&l)
}

func logger() *zerolog.Logger {
	return pkgLogger.Load()
}
