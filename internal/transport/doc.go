// Package transport owns the network paths used to reach the AI completion
// service: a direct path and an optional path through a forward proxy.
//
// A Selector memoizes one *http.Client (and its keep-alive *http.Transport)
// per variant. Handles are rebuilt only when the configuration fingerprint
// changes, never per call. Proxy health is cached for a fixed interval and
// concurrent health checks collapse into a single in-flight probe.
//
// The Selector is a single-owner resource: construct one per process and pass
// it by reference to the executors that need it.
package transport
