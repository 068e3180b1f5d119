package geo

import (
	"encoding/json"
	"fmt"

	"github.com/MiaMao0615/AR-Accompanied/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// Trail builds an XYZ line string from a sequence of local positions.
func Trail(points []core.Vec3) (geom.LineString, error) {
	if len(points) < 2 {
		return geom.LineString{}, fmt.Errorf("trail must have at least 2 points, got %d", len(points))
	}

	flat := make([]float64, 0, len(points)*3)
	for _, p := range points {
		flat = append(flat, p.X, p.Z, p.Y)
	}

	seq := geom.NewSequence(flat, geom.DimXYZ)
	return geom.NewLineString(seq), nil
}

// TrailLength returns the planar length of a trail.
func TrailLength(points []core.Vec3) float64 {
	ls, err := Trail(points)
	if err != nil {
		return 0
	}
	return ls.Length()
}

// MarshalTrail renders points as a JSON array of [x,y,z] triples.
func MarshalTrail(points []core.Vec3) string {
	coords := make([][]float64, len(points))
	for i, p := range points {
		coords[i] = []float64{p.X, p.Y, p.Z}
	}
	b, _ := json.Marshal(coords)
	return string(b)
}
