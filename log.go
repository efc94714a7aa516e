package lnchan

import "github.com/btcsuite/btclog"

// log is this package's subsystem logger. It defaults to a disabled
// logger so the package is silent unless an orchestrator wires one in via
// UseLogger, following lnd's per-package logging convention (a
// UseLogger call for every subsystem).
var log = btclog.Disabled

// UseLogger sets the subsystem logger used by this package.
func UseLogger(logger btclog.Logger) {
	log = logger
}
