// Package metric provides Prometheus instrumentation for the cartjoin
// runtime. A single Registry owns the Prometheus registry, the core
// pipeline metrics, and any component-scoped collectors registered at
// component initialization. The Server exposes the registry over HTTP
// for scraping.
package metric
