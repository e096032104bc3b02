package blockchain

import "github.com/btcsuite/btclog"

// log is the package-level subsystem logger for the ChainManager, set via
// UseLogger; disabled until a backend calls it during start-up.
var log = btclog.Disabled

// UseLogger sets the subsystem logger used by the blockchain package.
func UseLogger(logger btclog.Logger) {
	log = logger
}

// logClosure allows a callback to satisfy fmt's Stringer interface so that
// expensive-to-build log payloads (e.g. spew.Sdump of a rejected block) are
// only ever built when the active log level will actually print them.
type logClosure func() string

func (c logClosure) String() string {
	return c()
}

func newLogClosure(c func() string) logClosure {
	return logClosure(c)
}
