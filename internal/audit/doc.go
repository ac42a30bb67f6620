// Package audit records registry activity in the audit_logs table.
//
// Entries are append-only. The registry writes one entry per committed
// registration through Subscriber, which plugs into the event emitter;
// the HTTP API reads them back with List.
package audit
