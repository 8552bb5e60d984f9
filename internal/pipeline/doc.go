// Package pipeline runs a plate-fit batch: it aligns frame capture times
// with the rotary-encoder log, extracts per-frame photometry, filters
// encoder outliers, derives plate angles and fits harmonic models.
//
// The package is the composition root for encoder, timesync, frames, roi
// and harmonic. Outputs (plots, run logs, archives) are attached as
// Emitters so the run itself has no output dependencies.
package pipeline
