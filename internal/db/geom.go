package db

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// SRID4326 is the WGS84 spatial reference used for every stored point.
const SRID4326 = 4326

// PointEWKB encodes a longitude/latitude pair as little-endian EWKB with
// SRID 4326, the format PostGIS accepts for geometry(Point, 4326) columns.
func PointEWKB(lng, lat float64) ([]byte, error) {
	p := geom.NewPointFlat(geom.XY, []float64{lng, lat}).SetSRID(SRID4326)
	data, err := ewkb.Marshal(p, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "db: encode point")
	}
	return data, nil
}
