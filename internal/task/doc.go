// Package task runs batches of independent work items with bounded
// concurrency. A fixed pool of workers pulls item indices from a shared
// queue and fully processes one item, including its retries, before taking
// the next, so the concurrency bound holds regardless of per-item retries.
// Results keep original submission order.
package task
