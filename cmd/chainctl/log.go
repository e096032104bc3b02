package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"

	"github.com/bchsuite/bchd/blockchain"
	"github.com/bchsuite/bchd/chainstore"
	"github.com/bchsuite/bchd/difficulty"
	"github.com/bchsuite/bchd/forks"
	"github.com/bchsuite/bchd/txscript"
	"github.com/bchsuite/bchd/utxo"
)

// logWriter writes to both stdout and the rotator's write-end pipe, once
// initLogRotator has set logRotator up.
type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	os.Stdout.Write(p)
	logRotator.Write(p)
	return len(p), nil
}

// backendLog is the log backend every subsystem logger below is created
// from. It must not be used until initLogRotator has run, or writes race
// against a nil logRotator.
var backendLog = btclog.NewBackend(logWriter{})

// logRotator is the rotating log file. It is closed on shutdown.
var logRotator *rotator.Rotator

var (
	chanLog = backendLog.Logger("CHAN")
	bcdbLog = backendLog.Logger("BCDB")
	utxoLog = backendLog.Logger("UTXO")
	diffLog = backendLog.Logger("DIFF")
	forkLog = backendLog.Logger("FORK")
	scrpLog = backendLog.Logger("SCRP")
)

func init() {
	blockchain.UseLogger(chanLog)
	chainstore.UseLogger(bcdbLog)
	utxo.UseLogger(utxoLog)
	difficulty.UseLogger(diffLog)
	forks.UseLogger(forkLog)
	txscript.UseLogger(scrpLog)
}

// subsystemLoggers maps each subsystem tag to its logger, for setLogLevels.
var subsystemLoggers = map[string]btclog.Logger{
	"CHAN": chanLog,
	"BCDB": bcdbLog,
	"UTXO": utxoLog,
	"DIFF": diffLog,
	"FORK": forkLog,
	"SCRP": scrpLog,
}

// initLogRotator opens the rotating log file at logFile, creating its
// directory if needed, and must run before any subsystem logger is used.
func initLogRotator(logFile string) error {
	logDir, _ := filepath.Split(logFile)
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		return fmt.Errorf("failed to create file rotator: %w", err)
	}
	logRotator = r
	return nil
}

// setLogLevel sets the log level for subsystemID, ignoring unknown tags.
func setLogLevel(subsystemID, logLevel string) {
	logger, ok := subsystemLoggers[subsystemID]
	if !ok {
		return
	}
	level, ok := btclog.LevelFromString(logLevel)
	if !ok {
		level = btclog.LevelInfo
	}
	logger.SetLevel(level)
}

// setLogLevels sets every subsystem logger to logLevel.
func setLogLevels(logLevel string) {
	for subsystemID := range subsystemLoggers {
		setLogLevel(subsystemID, logLevel)
	}
}
