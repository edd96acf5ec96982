package integration

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ChuLiYu/geotile/internal/coordinator"
	"github.com/ChuLiYu/geotile/internal/pipeline"
)

// writeParcels 產生 n 個 GeoJSON 檔；每個檔案含一個大地塊、其中的小地塊（同組，會被移除）
// 與一個不同分組的相鄰地塊
func writeParcels(t testing.TB, dir string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		x := 121.50 + float64(i%4)*0.02
		y := 25.00 + float64(i/4)*0.02

		fc := geojson.NewFeatureCollection()
		fc.Append(parcel(square(x, y, 0.01), "MU", "12"))
		fc.Append(parcel(square(x+0.003, y+0.003, 0.002), "MU", "12"))
		fc.Append(parcel(square(x+0.011, y, 0.004), "K", "0"))

		data, err := fc.MarshalJSON()
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, fmt.Sprintf("parcel_%03d.geojson", i)), data, 0o644))
	}
}

func parcel(p orb.Polygon, typ, m string) *geojson.Feature {
	f := geojson.NewFeature(p)
	f.Properties["Type"] = typ
	f.Properties["M"] = m
	f.Properties["K"] = "9"
	return f
}

func square(x, y, size float64) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}, {x, y},
	}}
}

// pipelineConfig 低縮放層級的真實渲染設定
func pipelineConfig(t testing.TB, folder string) pipeline.Config {
	t.Helper()
	jobs := coordinator.DefaultConfig()
	jobs.PollInterval = 5 * time.Millisecond
	jobs.LockTimeout = 10 * time.Second
	return pipeline.Config{
		Folder:   folder,
		Jobs:     jobs,
		ZoomMin:  11,
		ZoomMax:  13,
		TileSize: 64,
		IdleWait: 20 * time.Millisecond,
		Logger:   zaptest.NewLogger(t).Sugar(),
	}
}

// tileSet 回傳 dir 底下所有圖磚的相對路徑（排序後）
func tileSet(t testing.TB, dir string) []string {
	t.Helper()
	var out []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".png") {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	require.NoError(t, err)
	sort.Strings(out)
	return out
}
