package tuple

import (
	"slices"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feature(props map[string]any) *geojson.Feature {
	f := geojson.NewFeature(orb.Point{1, 2})
	f.ID = "f1"
	for k, v := range props {
		f.Properties[k] = v
	}
	return f
}

func TestContentHash_Deterministic(t *testing.T) {
	h1, err := ContentHash(feature(map[string]any{"a": 1, "b": "x"}), nil, nil)
	require.NoError(t, err)
	h2, err := ContentHash(feature(map[string]any{"b": "x", "a": 1}), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.NotZero(t, h1)
}

func TestContentHash_ChangesWithContent(t *testing.T) {
	base, err := ContentHash(feature(map[string]any{"a": 1}), nil, nil)
	require.NoError(t, err)

	changedProp, err := ContentHash(feature(map[string]any{"a": 2}), nil, nil)
	require.NoError(t, err)
	assert.NotEqual(t, base, changedProp)

	moved := feature(map[string]any{"a": 1})
	moved.Geometry = orb.Point{1, 3}
	changedGeom, err := ContentHash(moved, nil, nil)
	require.NoError(t, err)
	assert.NotEqual(t, base, changedGeom)
}

func TestContentHash_IgnoresNamespace(t *testing.T) {
	plain, err := ContentHash(feature(map[string]any{"a": 1}), nil, nil)
	require.NoError(t, err)
	withNS, err := ContentHash(feature(map[string]any{
		"a":          1,
		NamespaceKey: map[string]any{"txn": "2026:10:19:1", "uuid": "abc"},
	}), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, plain, withNS)
}

func TestContentHash_ExcludePaths(t *testing.T) {
	plain, err := ContentHash(feature(map[string]any{"a": 1}), nil, nil)
	require.NoError(t, err)

	withVolatile, err := ContentHash(feature(map[string]any{"a": 1, "lastSeen": 12345}),
		[][]string{{"properties", "lastSeen"}, {"properties", "missing", "deep"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, plain, withVolatile)
}

func TestContentHash_ExcludeFunc(t *testing.T) {
	plain, err := ContentHash(feature(map[string]any{"a": 1, "nested": map[string]any{}}), nil, nil)
	require.NoError(t, err)

	skipTmp := func(path []string) bool {
		return slices.Contains([]string{"tmp1", "tmp2"}, path[len(path)-1])
	}
	filtered, err := ContentHash(feature(map[string]any{
		"a":      1,
		"tmp1":   true,
		"nested": map[string]any{"tmp2": "x"},
	}), nil, skipTmp)
	require.NoError(t, err)
	assert.Equal(t, plain, filtered)
}

func TestContentHash_NilFeature(t *testing.T) {
	h, err := ContentHash(nil, nil, nil)
	require.NoError(t, err)
	assert.Zero(t, h)
}

func TestGeoGrid(t *testing.T) {
	ref := orb.Point{8.68, 50.11}
	fromRef := GeoGrid("f1", &ref, orb.Point{-70, -30})
	fromGeom := GeoGrid("f1", nil, orb.Point{8.68, 50.11})
	assert.Equal(t, fromRef, fromGeom, "reference point wins over geometry")

	poly := orb.Polygon{{{8.6, 50.1}, {8.7, 50.1}, {8.7, 50.2}, {8.6, 50.2}, {8.6, 50.1}}}
	assert.Equal(t, GeoGrid("x", nil, orb.Point{8.65, 50.15}), GeoGrid("x", nil, poly))

	noGeom := GeoGrid("f1", nil, nil)
	assert.Equal(t, noGeom, GeoGrid("f1", nil, nil))
	assert.NotEqual(t, noGeom, GeoGrid("f2", nil, nil))
	assert.GreaterOrEqual(t, noGeom, int64(0))

	polar := orb.Point{180, 90}
	assert.GreaterOrEqual(t, GeoGrid("p", &polar, nil), int64(0))
}
