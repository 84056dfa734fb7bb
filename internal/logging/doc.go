// Package logging provides a simple leveled logging interface for the
// media catalog tools.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information
//   - INFO: General operational messages
//   - WARN: Warning conditions
//   - ERROR: Error conditions
//   - FATAL: Fatal errors that terminate the process
//
// The log level is configured via the LOG_LEVEL environment variable and may
// be overridden programmatically with SetLevel once configuration is loaded.
package logging
