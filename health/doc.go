// Package health tracks and aggregates component health for the pipeline
// runtime. Each component reports a Status; the Monitor collects them and
// the engine exposes an aggregate over the ops endpoint.
//
// Error messages that flow into statuses are sanitized before exposure so
// connection strings, paths, and credentials never leak through a health
// endpoint.
package health
