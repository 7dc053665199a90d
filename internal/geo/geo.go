package geo

import (
	"errors"
	"math"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// GEO POINTS
// Positions are always stored as EPSG:3857 so SQLite, which has no spatial
// awareness, can round-trip them as WKB through the geom Scan/Value methods.

// ErrInvalidCellSize is returned when a grid is built with a non-positive cell size
var ErrInvalidCellSize = errors.New("cell size must be positive")

// Coords3857From4326 creates a web mercator point from a longitude and latitude
func Coords3857From4326(
	longitude float64,
	latitude float64,
) (
	point geom.Point,
	err error,
) {
	f := wgs84.EPSG().Transform(4326, 3857)
	x, y, _ := f(longitude, latitude, 0)
	point = geom.NewPoint(
		geom.Coordinates{
			XY: geom.XY{X: x, Y: y},
		},
	)
	return point, nil
}

// Coords4326From3857 returns the longitude and latitude of a web mercator position.
func Coords4326From3857(x, y float64) (longitude, latitude float64) {
	f := wgs84.EPSG().Transform(3857, 4326)
	longitude, latitude, _ = f(x, y, 0)
	return longitude, latitude
}

// Grid places simulation cells on the map. Cell (0, 0) has its north-west
// corner on the origin; x grows east and y grows south.
type Grid struct {
	originX  float64
	originY  float64
	cellSize float64
}

// NewGrid anchors a grid at the given origin. cellSize is in web mercator
// units, which match meters only at the equator.
func NewGrid(originLongitude, originLatitude, cellSize float64) (*Grid, error) {
	if cellSize <= 0 {
		return nil, ErrInvalidCellSize
	}
	origin, err := Coords3857From4326(originLongitude, originLatitude)
	if err != nil {
		return nil, err
	}
	c, _ := origin.Coordinates()
	return &Grid{originX: c.X, originY: c.Y, cellSize: cellSize}, nil
}

// CellCenter returns the web mercator coordinates of the center of cell (x, y).
func (g *Grid) CellCenter(x, y int) (float64, float64) {
	return g.originX + (float64(x)+0.5)*g.cellSize,
		g.originY - (float64(y)+0.5)*g.cellSize
}

// CellToPoint returns the center of cell (x, y) as an EPSG:3857 point.
// Cells outside the grid (boundary spawn positions) are projected the same way.
func (g *Grid) CellToPoint(x, y int) geom.Point {
	px, py := g.CellCenter(x, y)
	return geom.NewPoint(geom.Coordinates{XY: geom.XY{X: px, Y: py}})
}

// PointToCell maps an EPSG:3857 point back to the cell containing it.
func (g *Grid) PointToCell(p geom.Point) (x, y int, ok bool) {
	c, ok := p.Coordinates()
	if !ok {
		return 0, 0, false
	}
	fx := (c.X - g.originX) / g.cellSize
	fy := (g.originY - c.Y) / g.cellSize
	return floor(fx), floor(fy), true
}

// CellToLonLat returns the geographic position of the center of cell (x, y).
func (g *Grid) CellToLonLat(x, y int) (longitude, latitude float64) {
	return Coords4326From3857(g.CellCenter(x, y))
}

func floor(v float64) int {
	return int(math.Floor(v))
}
