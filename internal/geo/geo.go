package geo

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/MiaMao0615/AR-Accompanied/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// Local positions are metres in a right-handed frame with +Y up and +Z forward.
// When a site origin is configured, X is treated as east and Z as north so
// samples can be geo-referenced through EPSG:3857.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

func parseFloats(s string, n int) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, ErrInvalidCoordinates
	}
	out := make([]float64, n)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, ErrInvalidCoordinates
		}
		out[i] = f
	}
	return out, nil
}

// Vec3FromString parses "x,y,z".
func Vec3FromString(s string) (core.Vec3, error) {
	f, err := parseFloats(s, 3)
	if err != nil {
		return core.Vec3{}, err
	}
	return core.Vec3{X: f[0], Y: f[1], Z: f[2]}, nil
}

// QuatFromString parses "x,y,z,w" and normalizes the result.
func QuatFromString(s string) (core.Quat, error) {
	f, err := parseFloats(s, 4)
	if err != nil {
		return core.Quat{}, err
	}
	return core.Quat{X: f[0], Y: f[1], Z: f[2], W: f[3]}.Normalized(), nil
}

// PointZ converts a local position into a geom XYZ point. Z holds the
// height (local Y) so the XY plane is the ground.
func PointZ(v core.Vec3) geom.Point {
	return geom.NewPoint(
		geom.Coordinates{
			XY:   geom.XY{X: v.X, Y: v.Z},
			Z:    v.Y,
			Type: geom.DimXYZ,
		},
	)
}

// Site anchors the local frame to a WGS84 origin.
type Site struct {
	Longitude float64
	Latitude  float64
	originX   float64
	originY   float64
	toWGS84   func(a, b, c float64) (float64, float64, float64)
}

// NewSite builds a site for the given origin.
func NewSite(longitude, latitude float64) *Site {
	epsg := wgs84.EPSG()
	x, y, _ := epsg.Transform(4326, 3857)(longitude, latitude, 0)
	return &Site{
		Longitude: longitude,
		Latitude:  latitude,
		originX:   x,
		originY:   y,
		toWGS84:   epsg.Transform(3857, 4326),
	}
}

// Project returns the EPSG:3857 point of a local position.
func (s *Site) Project(v core.Vec3) geom.Point {
	return geom.NewPoint(
		geom.Coordinates{
			XY:   geom.XY{X: s.originX + v.X, Y: s.originY + v.Z},
			Z:    v.Y,
			Type: geom.DimXYZ,
		},
	)
}

// LonLat returns the WGS84 longitude and latitude of a local position.
func (s *Site) LonLat(v core.Vec3) (lon, lat float64) {
	lon, lat, _ = s.toWGS84(s.originX+v.X, s.originY+v.Z, 0)
	return lon, lat
}
