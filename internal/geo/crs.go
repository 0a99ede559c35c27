package geo

import (
	"math"
	"slices"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-proj/v10"
)

// Common EPSG codes.
const (
	EPSG4326 = 4326 // WGS 84
	EPSG3857 = 3857 // WGS 84 / Pseudo-Mercator
	EPSG2154 = 2154 // RGF93 / Lambert-93
)

// ErrUnsupportedCRS is returned for CRS pairs that cannot be transformed.
var ErrUnsupportedCRS = eris.New("geo: unsupported crs")

// ErrNotMetric is returned when a CRS whose units are not ground metres is
// used for measurements.
var ErrNotMetric = eris.New("geo: crs is not metric")

// nonMetric lists common geographic CRSs and the Web Mercator family, whose
// planar distances are not ground distances.
var nonMetric = []int{4326, 4258, 4269, 4171, 4979, 4937, 3857, 3785, 900913, 102100, 102113}

// ValidateMetric checks that planar measurements in code are metres on the
// ground.
func ValidateMetric(code int) error {
	if slices.Contains(nonMetric, code) {
		return eris.Wrapf(ErrNotMetric, "geo: EPSG:%d", code)
	}
	return nil
}

// Transformer reprojects geometries between two EPSG codes with PROJ.
// Coordinates are always x/easting then y/northing, longitude first for
// geographic CRSs.
type Transformer struct {
	From, To int
	pj       *proj.PJ
}

// NewTransformer returns a transformer from one EPSG code to another.
// Identical codes, or a zero code on either side, give the identity
// transform.
func NewTransformer(from, to int) (*Transformer, error) {
	t := &Transformer{From: from, To: to}
	if from == to || from == 0 || to == 0 {
		return t, nil
	}
	pj, err := proj.NewCRSToCRS(epsg(from), epsg(to), nil)
	if err != nil {
		return nil, eris.Wrapf(ErrUnsupportedCRS, "geo: transform EPSG:%d to EPSG:%d: %v", from, to, err)
	}
	t.pj, err = pj.NormalizeForVisualization()
	if err != nil {
		return nil, eris.Wrapf(ErrUnsupportedCRS, "geo: normalize EPSG:%d to EPSG:%d: %v", from, to, err)
	}
	return t, nil
}

func epsg(code int) string {
	return "EPSG:" + strconv.Itoa(code)
}

// ValidateCRS checks that a transform between the two codes exists.
func ValidateCRS(from, to int) error {
	_, err := NewTransformer(from, to)
	return err
}

// IsIdentity reports whether the transform leaves coordinates unchanged.
func (t *Transformer) IsIdentity() bool {
	return t.pj == nil
}

// Point reprojects a single point. Points PROJ cannot transform come back
// as NaN.
func (t *Transformer) Point(p orb.Point) orb.Point {
	if t.IsIdentity() {
		return p
	}
	c, err := t.pj.Forward(proj.NewCoord(p[0], p[1], 0, 0))
	if err != nil {
		return orb.Point{math.NaN(), math.NaN()}
	}
	return orb.Point{c.X(), c.Y()}
}

// Geometry returns a reprojected copy of g. The input is never modified.
func (t *Transformer) Geometry(g orb.Geometry) orb.Geometry {
	if g == nil {
		return nil
	}
	c := orb.Clone(g)
	if t.IsIdentity() {
		return c
	}
	return project.Geometry(c, t.Point)
}
