// Package logging provides a simple leveled logging interface for the
// photo catalog.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information
//   - INFO: General operational messages
//   - WARN: Warning conditions
//   - ERROR: Error conditions
//   - FATAL: Fatal errors that terminate the application
//
// The log level is configured via the LOG_LEVEL environment variable and
// can be raised to debug at runtime via SetDebug (driven by the
// logging.show_debug configuration key).
package logging
