// Package graph derives the station adjacency graph from geographic
// coordinates. Nodes are station indexes in registry order; an edge links two
// stations whose great-circle distance is within a threshold and carries the
// inverse distance as its weight.
package graph
