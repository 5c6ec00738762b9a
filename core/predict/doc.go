// Package predict produces the next-slot forecast of every station from the
// latest observations and the persisted training bundle, and hands each
// forecast to the broker publisher.
package predict
