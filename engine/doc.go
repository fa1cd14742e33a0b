// Package engine runs a configured pipeline of components.
//
// The runtime creates component instances from configuration through the
// component registry, starts them in dependency order (outputs before
// processors before inputs, so every subscriber exists before its
// publisher starts), and stops them in reverse. Components that read a
// finite source signal completion through a Done channel; when every
// such source is drained the runtime's Done channel closes, letting the
// caller flush and exit.
//
// Health of each running component is polled periodically and mirrored
// into a health.Monitor for the readiness endpoint.
package engine
