// Package netlog provides structured network-lifecycle logging for the
// basecamp agent.
//
// This package defines the Logger interface and Event types for capturing
// agent events: mode selection, connectivity transitions, boot-resilience
// escalations, and errors. It is separate from operational logging (slog) -
// lifecycle capture provides a complete machine-readable trace of how a
// device behaved across boots, for debugging devices that are hard to
// reach once deployed.
//
// # Basic Usage
//
// Applications configure logging by providing a Logger implementation:
//
//	// For development: log to console via slog
//	cfg.EventLogger = netlog.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	cfg.EventLogger, _ = netlog.NewFileLogger("/var/log/basecamp/device.bclog")
//
//	// Both: use MultiLogger
//	cfg.EventLogger = netlog.NewMultiLogger(
//	    netlog.NewSlogAdapter(slog.Default()),
//	    netlog.NewFileLogger("/var/log/basecamp/device.bclog"),
//	)
//
// # Event Types
//
// Every event carries a boot ID so traces from different process runs can
// be told apart in an appended file. The category-specific payloads are:
//   - State: lifecycle and mode transitions (StateEvent)
//   - Network: address and station facts (NetworkEvent)
//   - Escalation: boot-resilience decisions (EscalationEvent)
//   - Error: failures at any stage (ErrorEventData)
//
// # File Format
//
// Log files use CBOR encoding with .bclog extension. The basecamp-log CLI
// tool provides viewing, filtering, and export capabilities.
package netlog
