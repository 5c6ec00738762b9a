// Package nn implements the two-stage spatiotemporal forecast network.
//
// Each station's window is encoded by a shared LSTM and only the last hidden
// state is kept. The hidden states are then mixed by one graph convolution
// over the station graph, passed through a ReLU and projected to a scalar per
// station. Training uses hand-written backpropagation through time and Adam.
//
// All values flowing through the network are min-max scaled; callers own the
// scaling on both sides.
package nn
