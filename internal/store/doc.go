// Package store defines the persistence contracts for telemetry audit
// records. Implementations live under internal/platform; nothing in the
// request path depends on a store being configured.
package store
