// Package training turns stored observations into a persisted forecast
// bundle: align, scale, window, build the station graph, fit the network and
// save the artifacts.
package training
