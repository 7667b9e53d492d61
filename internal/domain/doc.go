// Package domain holds the learning artifacts the generation pipeline
// produces: exercises generated in batches and length-refined transcripts.
package domain
