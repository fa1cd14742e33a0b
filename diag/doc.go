// Package diag provides structured diagnostics for recovered input
// failures: malformed lines, missing fields, unkeyable events, and
// orphan payments. Each rejection or no-op produces one Diagnostic
// delivered to a Reporter.
//
// Reporters compose: the slog-backed LogReporter writes one structured
// line per diagnostic, the NATSReporter publishes diagnostics to a
// subject for remote consumption, the Recorder retains the last N
// diagnostics in a ring for tests and operational inspection, and
// MultiReporter fans out to several of these at once.
package diag
