package graph

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/kilianp07/aqforecast/core/model"
)

const earthRadiusKm = 6371.0

// Edge is a directed entry of the adjacency list.
type Edge struct {
	From       int     `json:"from"`
	To         int     `json:"to"`
	Weight     float64 `json:"weight"`
	DistanceKm float64 `json:"distance_km"`
}

// Graph is the station adjacency structure. Every undirected link is stored
// as two directed edges with equal weight.
type Graph struct {
	Nodes       int     `json:"nodes"`
	ThresholdKm float64 `json:"threshold_km"`
	Edges       []Edge  `json:"edges"`
}

// Haversine returns the great-circle distance in kilometres.
func Haversine(a, b model.Station) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// DistanceFunc returns the distance in kilometres between nodes i and j.
type DistanceFunc func(i, j int) float64

// Build links every ordered pair of distinct stations within thresholdKm.
// Stations without neighbours are kept as isolated nodes.
func Build(stations []model.Station, thresholdKm float64) (Graph, error) {
	if len(stations) == 0 {
		return Graph{}, errors.New("no stations")
	}
	return BuildFromDistances(len(stations), func(i, j int) float64 {
		return Haversine(stations[i], stations[j])
	}, thresholdKm)
}

// BuildFromDistances builds the graph from an arbitrary distance function.
// Coincident nodes get no edge since their inverse distance is undefined.
func BuildFromDistances(nodes int, dist DistanceFunc, thresholdKm float64) (Graph, error) {
	if nodes <= 0 {
		return Graph{}, errors.New("no stations")
	}
	if thresholdKm <= 0 {
		return Graph{}, fmt.Errorf("threshold must be positive, got %v", thresholdKm)
	}
	g := Graph{Nodes: nodes, ThresholdKm: thresholdKm}
	for i := 0; i < nodes; i++ {
		for j := 0; j < nodes; j++ {
			if i == j {
				continue
			}
			d := dist(i, j)
			if d <= 0 || d > thresholdKm {
				continue
			}
			g.Edges = append(g.Edges, Edge{From: i, To: j, Weight: 1 / d, DistanceKm: d})
		}
	}
	return g, nil
}

// Neighbors returns the indexes reachable from node i.
func (g Graph) Neighbors(i int) []int {
	var out []int
	for _, e := range g.Edges {
		if e.From == i {
			out = append(out, e.To)
		}
	}
	return out
}

// Adjacency returns the weighted adjacency matrix, A[from][to].
func (g Graph) Adjacency() *mat.Dense {
	a := mat.NewDense(g.Nodes, g.Nodes, nil)
	for _, e := range g.Edges {
		a.Set(e.From, e.To, a.At(e.From, e.To)+e.Weight)
	}
	return a
}

// Normalized returns the graph-convolution propagation matrix
// D^-1/2 (A + I) D^-1/2 where D is the weighted degree including the self loop.
// Row i aggregates the messages received by node i.
func (g Graph) Normalized() *mat.Dense {
	n := g.Nodes
	// messages flow from source to target, so node i reads row i of A^T
	p := mat.DenseCopyOf(g.Adjacency().T())
	deg := make([]float64, n)
	for i := 0; i < n; i++ {
		p.Set(i, i, 1)
		deg[i] = mat.Sum(p.RowView(i))
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if v := p.At(i, j); v != 0 {
				p.Set(i, j, v/math.Sqrt(deg[i]*deg[j]))
			}
		}
	}
	return p
}

// Validate checks the edge list against a node count.
func (g Graph) Validate(nodes int) error {
	if g.Nodes != nodes {
		return fmt.Errorf("graph has %d nodes, want %d", g.Nodes, nodes)
	}
	for _, e := range g.Edges {
		if e.From < 0 || e.From >= nodes || e.To < 0 || e.To >= nodes {
			return fmt.Errorf("edge %d->%d out of range", e.From, e.To)
		}
		if e.From == e.To {
			return fmt.Errorf("self loop on node %d", e.From)
		}
		if e.Weight <= 0 || math.IsNaN(e.Weight) || math.IsInf(e.Weight, 0) {
			return fmt.Errorf("edge %d->%d has invalid weight %v", e.From, e.To, e.Weight)
		}
	}
	return nil
}
