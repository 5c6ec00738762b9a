// Package series turns raw per-station observations into model-ready data:
// alignment onto a common fixed-interval axis, min-max scaling and sliding
// window snapshots.
package series
