// Package artifact persists what a training run produces: the network
// weights, the scaler and the station graph. The three files share a header
// so a reader can tell whether they came from the same run and still match
// the configured station set.
package artifact
