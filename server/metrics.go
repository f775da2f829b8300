package server

import "time"

// MetricsCollector receives per-command, per-transfer and per-connection
// events, for export to a monitoring system.
//
// Methods are called synchronously from session goroutines and should not
// block. The server checks for a nil collector before calling.
type MetricsCollector interface {
	// RecordCommand records one control command. cmd is the upper-cased
	// verb ("UNKNOWN" for verbs outside the table); success is true for
	// 1xx, 2xx and 3xx final replies.
	RecordCommand(cmd string, success bool, duration time.Duration)

	// RecordTransfer records a completed STOR, RETR or LIST.
	RecordTransfer(operation string, bytes int64, duration time.Duration)

	// RecordConnection records a control connection attempt. reason is
	// "accepted" or the rejection cause (e.g. "global_limit_reached").
	RecordConnection(accepted bool, reason string)
}
