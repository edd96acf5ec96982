package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const collection = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"Type": "MT", "M": 5, "MN": "8", "B": null},
      "geometry": {"type": "Polygon", "coordinates": [[[55.1,25.1],[55.2,25.1],[55.2,25.2],[55.1,25.2],[55.1,25.1]]]}
    },
    {
      "type": "Feature",
      "properties": {"Type": "K", "K": "7"},
      "geometry": null
    }
  ]
}`

func write(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "parcel.geojson")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFeatureCollection(t *testing.T) {
	features, err := Load(write(t, collection))
	require.NoError(t, err)
	require.Len(t, features, 2)

	poly, ok := features[0].Geometry.(orb.Polygon)
	require.True(t, ok)
	assert.Len(t, poly[0], 5)
	assert.Equal(t, "MT", features[0].Properties["Type"])
	assert.Equal(t, float64(5), features[0].Properties["M"])
	assert.Nil(t, features[0].Properties["B"])

	assert.Nil(t, features[1].Geometry)
	assert.Equal(t, "7", features[1].Properties["K"])
}

func TestLoadSingleFeature(t *testing.T) {
	body := `{"type":"Feature","properties":{"M":3},"geometry":{"type":"Point","coordinates":[1,2]}}`
	features, err := Load(write(t, body))
	require.NoError(t, err)
	require.Len(t, features, 1)
	assert.Equal(t, orb.Point{1, 2}, features[0].Geometry)
}

func TestLoadErrors(t *testing.T) {
	tests := map[string]string{
		"not json":     "{",
		"wrong type":   `{"type":"Polygon","coordinates":[]}`,
		"bad features": `{"type":"FeatureCollection","features":"nope"}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(write(t, body))
			assert.ErrorIs(t, err, ErrLoad)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.geojson"))
	assert.ErrorIs(t, err, ErrLoad)
}
