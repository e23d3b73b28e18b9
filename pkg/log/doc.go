// Package log provides structured protocol logging for server connections.
//
// It defines the Logger interface and Event types for capturing
// protocol-level events at multiple layers (transport frames, decoded wire
// messages, connection state changes). It is separate from operational
// logging (slog): protocol capture provides a complete machine-readable
// trace of the traffic with a server for debugging and analysis.
//
// # Basic Usage
//
// Applications configure logging by providing a Logger implementation:
//
//	// For development: log to console via slog
//	cfg.Events = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	cfg.Events, _ = log.NewFileLogger("/var/log/electrum-xmc/wire.elog")
//
//	// Both: use MultiLogger
//	cfg.Events = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # Event Types
//
// Events are captured at multiple layers:
//   - Transport: raw frame lines (FrameEvent)
//   - Wire: decoded messages (MessageEvent)
//   - Session: connection state changes (StateChangeEvent)
//
// Errors at any layer have a dedicated event type.
//
// # File Format
//
// Log files use CBOR encoding with the .elog extension; Reader iterates a
// recorded stream back into events.
package log
