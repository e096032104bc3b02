package difficulty

import "github.com/btcsuite/btclog"

// log is the package-level subsystem logger, set via UseLogger; disabled
// until a backend calls it during start-up.
var log = btclog.Disabled

// UseLogger sets the subsystem logger used by this package.
func UseLogger(logger btclog.Logger) {
	log = logger
}
