package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

func TestPointEWKB(t *testing.T) {
	data, err := PointEWKB(-83.7382, 42.278)
	require.NoError(t, err)
	require.NotEmpty(t, data)
	assert.Equal(t, byte(1), data[0]) // NDR

	g, err := ewkb.Unmarshal(data)
	require.NoError(t, err)
	p, ok := g.(*geom.Point)
	require.True(t, ok)
	assert.Equal(t, SRID4326, p.SRID())
	assert.InDelta(t, -83.7382, p.X(), 1e-9)
	assert.InDelta(t, 42.278, p.Y(), 1e-9)
}
