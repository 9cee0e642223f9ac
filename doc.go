// Package spindle defines the core types shared across the crawl engine:
// requests and their routing tags, backend responses, per-dispatch contexts,
// the tri-state signal returned by handlers, and the error taxonomy used at
// every component boundary.
//
// The engine itself lives in the engine package; tag routing and middleware
// in router; the pooled backend contract in backend; and frontier/sink
// storage in dataset and its subpackages.
package spindle
