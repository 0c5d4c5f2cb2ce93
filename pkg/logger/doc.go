// Package logger provides the structured logging interface used by the monitor.
//
// It wraps zerolog. Console output is written to stderr in the fixed line
// format
//
//	[2006-01-02 15:04:05] [Mode1] message key=value ...
//
// so stdout stays free for the JSON event stream. When a log file is
// configured, the same events are also appended to it as JSON.
//
// Basic Usage:
//
//	if err := logger.Initialize(&cfg.Logging); err != nil {
//	    return err
//	}
//	log := logger.GetLogger().WithField(logger.ModeField, "Mode1")
//	log.WithField("username", "natgeo").Info("Monitoring started")
//
// Tests use NewTestLogger to capture messages or NewNopLogger to discard them.
package logger
