// Package source loads vector features from GeoJSON files.
package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/paulmach/orb/geojson"

	"github.com/ChuLiYu/geotile/pkg/types"
)

// ErrLoad 來源檔案無法讀取或不是有效的 GeoJSON
var ErrLoad = errors.New("source: load failed")

// Loader 載入一個來源檔案
type Loader interface {
	Load(path string) ([]types.Feature, error)
}

// GeoJSON 預設的 Loader
type GeoJSON struct{}

var _ Loader = GeoJSON{}

// Load 讀取 FeatureCollection（也接受單一 Feature）
//
// 幾何為 nil 的圖徵會保留，分類仍然適用。
func (GeoJSON) Load(path string) ([]types.Feature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLoad, path, err)
	}

	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLoad, path, err)
	}

	var fs []*geojson.Feature
	switch probe.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLoad, path, err)
		}
		fs = fc.Features
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLoad, path, err)
		}
		fs = []*geojson.Feature{f}
	default:
		return nil, fmt.Errorf("%w: %s: unsupported GeoJSON type %q", ErrLoad, path, probe.Type)
	}

	out := make([]types.Feature, 0, len(fs))
	for _, f := range fs {
		props := make(map[string]any, len(f.Properties))
		for k, v := range f.Properties {
			props[k] = v
		}
		out = append(out, types.Feature{Geometry: f.Geometry, Properties: props})
	}
	return out, nil
}

// Load 使用預設的 GeoJSON Loader
func Load(path string) ([]types.Feature, error) {
	return GeoJSON{}.Load(path)
}
