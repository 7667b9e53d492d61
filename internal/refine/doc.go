// Package refine implements iterative quality-gated generation: generate,
// evaluate, and retry with an augmented prompt while keeping the best
// attempt seen. Failing to reach the quality bar is not an error; callers
// receive the best result together with a degradation reason.
package refine
