// ============================================================================
// Geotile Geom - 平面幾何運算
// ============================================================================
//
// Package: internal/geom
// 文件: geom.go
// 功能: 面積、外框、包含判斷、有效性檢查與修復
//
// 座標皆為 WGS84 經緯度，以平面方式計算；只用於同一來源檔案內的
// 相對比較（排序、包含），不需要投影後的實際面積。
//
// ============================================================================

package geom

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// ErrGeometry 幾何無效且無法修復，或缺少必要欄位
var ErrGeometry = errors.New("geom: invalid geometry")

// Area 多邊形面積（外環減去內環）
func Area(p orb.Polygon) float64 {
	if len(p) == 0 {
		return 0
	}
	return math.Abs(planar.Area(p))
}

// Bound 多邊形外框
func Bound(p orb.Polygon) orb.Bound {
	return p.Bound()
}

// BoundContains outer 是否完整包含 inner（邊界重合視為包含）
func BoundContains(outer, inner orb.Bound) bool {
	return outer.Min[0] <= inner.Min[0] && outer.Min[1] <= inner.Min[1] &&
		outer.Max[0] >= inner.Max[0] && outer.Max[1] >= inner.Max[1]
}

// ExteriorOnly 只保留外環
func ExteriorOnly(p orb.Polygon) orb.Polygon {
	if len(p) == 0 {
		return nil
	}
	return orb.Polygon{p[0]}
}

// Contains big 是否完整包含 small
//
// 判斷條件：
//  1. small 外環的每個頂點與每條邊的中點都在 big 內（邊界上視為在內）
//  2. small 的邊與 big 的任何環都沒有真正交叉
//  3. big 的內環沒有落在 small 內
func Contains(big, small orb.Polygon) bool {
	if len(big) == 0 || len(small) == 0 || len(small[0]) == 0 {
		return false
	}
	if !BoundContains(big.Bound(), small.Bound()) {
		return false
	}

	ring := small[0]
	for i, pt := range ring {
		if !planar.PolygonContains(big, pt) {
			return false
		}
		if i > 0 && !planar.PolygonContains(big, midpoint(ring[i-1], pt)) {
			return false
		}
	}

	for _, r := range big {
		if ringsCross(r, ring) {
			return false
		}
	}

	for _, hole := range big[1:] {
		for _, pt := range hole {
			if planar.RingContains(ring, pt) && !onRing(ring, pt) {
				return false
			}
		}
	}
	return true
}

// IsValid 檢查多邊形是否有效
//
// 有效條件：每個環至少 4 點且閉合、沒有連續重複點、外環面積非零、
// 外環沒有自我交叉。
func IsValid(p orb.Polygon) bool {
	if len(p) == 0 {
		return false
	}
	for _, r := range p {
		if len(r) < 4 || !r.Closed() || hasRepeats(r) {
			return false
		}
	}
	if Area(orb.Polygon{p[0]}) == 0 {
		return false
	}
	return !selfIntersects(p[0])
}

// MakeValid 修復多邊形
//
// 修復方式：移除連續重複點、閉合環、丟棄退化的內環、
// 外環調整為逆時針、內環調整為順時針。
// 外環退化或自我交叉時回傳 ErrGeometry。
func MakeValid(p orb.Polygon) (orb.Polygon, error) {
	if len(p) == 0 {
		return nil, fmt.Errorf("%w: empty polygon", ErrGeometry)
	}

	exterior := cleanRing(p[0])
	if len(exterior) < 4 || Area(orb.Polygon{exterior}) == 0 {
		return nil, fmt.Errorf("%w: degenerate exterior ring", ErrGeometry)
	}
	if selfIntersects(exterior) {
		return nil, fmt.Errorf("%w: self-intersecting exterior ring", ErrGeometry)
	}
	if exterior.Orientation() != orb.CCW {
		exterior.Reverse()
	}

	out := orb.Polygon{exterior}
	for _, h := range p[1:] {
		hole := cleanRing(h)
		if len(hole) < 4 || Area(orb.Polygon{hole}) == 0 {
			continue
		}
		if hole.Orientation() != orb.CW {
			hole.Reverse()
		}
		out = append(out, hole)
	}
	return out, nil
}

// ============================================================================
// 內部輔助函數
// ============================================================================

func cleanRing(r orb.Ring) orb.Ring {
	out := make(orb.Ring, 0, len(r)+1)
	for _, pt := range r {
		if len(out) > 0 && out[len(out)-1] == pt {
			continue
		}
		out = append(out, pt)
	}
	if len(out) > 0 && out[0] != out[len(out)-1] {
		out = append(out, out[0])
	}
	return out
}

func hasRepeats(r orb.Ring) bool {
	for i := 1; i < len(r); i++ {
		if r[i] == r[i-1] {
			return true
		}
	}
	return false
}

func midpoint(a, b orb.Point) orb.Point {
	return orb.Point{(a[0] + b[0]) / 2, (a[1] + b[1]) / 2}
}

// orient 三點方向：> 0 逆時針，< 0 順時針，0 共線
func orient(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

// properCross 兩線段是否在內部交叉（端點接觸與共線不算）
func properCross(p1, p2, q1, q2 orb.Point) bool {
	d1 := orient(p1, p2, q1)
	d2 := orient(p1, p2, q2)
	d3 := orient(q1, q2, p1)
	d4 := orient(q1, q2, p2)
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

func ringsCross(a, b orb.Ring) bool {
	ba, bb := a.Bound(), b.Bound()
	if !ba.Intersects(bb) {
		return false
	}
	for i := 1; i < len(a); i++ {
		for j := 1; j < len(b); j++ {
			if properCross(a[i-1], a[i], b[j-1], b[j]) {
				return true
			}
		}
	}
	return false
}

func selfIntersects(r orb.Ring) bool {
	n := len(r) - 1 // 邊數（閉合環）
	for i := 0; i < n; i++ {
		for j := i + 2; j < n; j++ {
			if i == 0 && j == n-1 {
				continue // 首尾相鄰
			}
			if properCross(r[i], r[i+1], r[j], r[j+1]) {
				return true
			}
		}
	}
	return false
}

func onRing(r orb.Ring, pt orb.Point) bool {
	for i := 1; i < len(r); i++ {
		a, b := r[i-1], r[i]
		if orient(a, b, pt) != 0 {
			continue
		}
		if math.Min(a[0], b[0]) <= pt[0] && pt[0] <= math.Max(a[0], b[0]) &&
			math.Min(a[1], b[1]) <= pt[1] && pt[1] <= math.Max(a[1], b[1]) {
			return true
		}
	}
	return false
}
