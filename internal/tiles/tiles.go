// ============================================================================
// Geotile Tiles - Web Mercator 圖磚估算
// ============================================================================
//
// Package: internal/tiles
// 文件: tiles.go
// 功能: 由 WGS84 外框與縮放範圍估算 XYZ 圖磚數量
//
// 公式:
//   x = floor((lon + 180) / 360 * 2^z)
//   y = floor((1 - ln(tan(lat) + sec(lat)) / π) / 2 * 2^z)
//
//   北界給出最小 row，南界給出最大 row（row 往南遞增）。
//   每層數量 = (xMax - xMin + 1) * (yMax - yMin + 1)，各層加總。
//
// 結果是規劃用的上限估計，不要求與渲染器實際輸出完全一致。
//
// ============================================================================

package tiles

import (
	"math"

	"github.com/paulmach/orb"

	"github.com/ChuLiYu/geotile/pkg/types"
)

// MaxLatitude Web Mercator 可表示的最大緯度
const MaxLatitude = 85.05112878

// Span 單一縮放層的圖磚範圍（包含兩端）
type Span struct {
	Z          int
	MinX, MaxX int
	MinY, MaxY int
}

// Count 範圍內的圖磚數
func (s Span) Count() int64 {
	return int64(s.MaxX-s.MinX+1) * int64(s.MaxY-s.MinY+1)
}

// Each 依 row 優先的順序走訪範圍內每個圖磚
func (s Span) Each(fn func(types.TileCoord) error) error {
	for y := s.MinY; y <= s.MaxY; y++ {
		for x := s.MinX; x <= s.MaxX; x++ {
			if err := fn(types.TileCoord{Z: s.Z, X: x, Y: y}); err != nil {
				return err
			}
		}
	}
	return nil
}

// LonToTileX 經度轉換為圖磚 column
func LonToTileX(lon float64, z int) int {
	n := math.Exp2(float64(z))
	return clampIndex(int(math.Floor((lon+180)/360*n)), z)
}

// LatToTileY 緯度轉換為圖磚 row
func LatToTileY(lat float64, z int) int {
	lat = math.Max(-MaxLatitude, math.Min(MaxLatitude, lat))
	rad := lat * math.Pi / 180
	n := math.Exp2(float64(z))
	y := (1 - math.Log(math.Tan(rad)+1/math.Cos(rad))/math.Pi) / 2 * n
	return clampIndex(int(math.Floor(y)), z)
}

// Project 經緯度轉換為縮放層 z 的連續圖磚座標（未取 floor、未限制範圍）
func Project(pt orb.Point, z int) (x, y float64) {
	lat := math.Max(-MaxLatitude, math.Min(MaxLatitude, pt[1]))
	rad := lat * math.Pi / 180
	n := math.Exp2(float64(z))
	x = (pt[0] + 180) / 360 * n
	y = (1 - math.Log(math.Tan(rad)+1/math.Cos(rad))/math.Pi) / 2 * n
	return x, y
}

// Range 外框在縮放層 z 的圖磚範圍
func Range(b orb.Bound, z int) Span {
	return Span{
		Z:    z,
		MinX: LonToTileX(b.Min[0], z),
		MaxX: LonToTileX(b.Max[0], z),
		MinY: LatToTileY(b.Max[1], z), // 北界
		MaxY: LatToTileY(b.Min[1], z), // 南界
	}
}

// Spans zmin..zmax 每一層的範圍；zmin > zmax 時為空
func Spans(b orb.Bound, zmin, zmax int) []Span {
	if zmin > zmax || zmin < 0 {
		return nil
	}
	out := make([]Span, 0, zmax-zmin+1)
	for z := zmin; z <= zmax; z++ {
		out = append(out, Range(b, z))
	}
	return out
}

// EstimateTileCount 估算 zmin..zmax 的圖磚總數
func EstimateTileCount(b orb.Bound, zmin, zmax int) int64 {
	var total int64
	for _, s := range Spans(b, zmin, zmax) {
		total += s.Count()
	}
	return total
}

func clampIndex(v, z int) int {
	max := 1<<uint(z) - 1
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}
