// Package service composes the resilience layer into the two content use
// cases: batch exercise generation and transcript length expansion.
//
// ContentService owns no retry logic of its own. Per-request retries and
// transport fallback live in generation.Executor, per-item retries and the
// concurrency bound in task.ConcurrencyService, and quality refinement in
// refine.
package service
