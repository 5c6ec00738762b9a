// Package scheduler drives the train and predict jobs on clock boundaries.
// Jobs run one at a time on the caller's goroutine; a failing job never
// stops the loop.
package scheduler
