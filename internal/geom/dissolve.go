package geom

import (
	"fmt"
	"sort"

	"github.com/paulmach/orb"

	"github.com/ChuLiYu/geotile/pkg/types"
)

// Group 一個 group key 下的所有多邊形
type Group struct {
	Key      string
	Geometry orb.MultiPolygon
}

// Dissolver 依屬性合併圖徵
type Dissolver interface {
	Dissolve(features []types.Feature, field string) ([]Group, error)
}

// Exploder 將多部件幾何拆成單一多邊形
type Exploder interface {
	Explode(groups []Group) []types.Outline
}

// Engine 預設的 Dissolver / Exploder
//
// Dissolve 只做分組，不做多邊形聯集；相鄰的多邊形保持各自獨立，
// 由後續的包含過濾移除被完整包住的部分。
type Engine struct{}

var (
	_ Dissolver = Engine{}
	_ Exploder  = Engine{}
)

// Dissolve 依 field 將圖徵分組，回傳依 key 排序的群組
//
// 非面狀幾何與 nil 幾何會被略過；任何圖徵缺少 field 時回傳 ErrGeometry。
func (Engine) Dissolve(features []types.Feature, field string) ([]Group, error) {
	byKey := make(map[string]orb.MultiPolygon)
	for i, f := range features {
		raw, ok := f.Properties[field]
		if !ok {
			return nil, fmt.Errorf("%w: feature %d missing field %q", ErrGeometry, i, field)
		}
		key := fmt.Sprint(raw)
		polys := Polygons(f.Geometry)
		if len(polys) == 0 {
			continue
		}
		byKey[key] = append(byKey[key], polys...)
	}

	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	groups := make([]Group, 0, len(keys))
	for _, k := range keys {
		groups = append(groups, Group{Key: k, Geometry: byKey[k]})
	}
	return groups, nil
}

// Explode 每個多邊形成為一個 Outline
func (Engine) Explode(groups []Group) []types.Outline {
	var out []types.Outline
	for _, g := range groups {
		for _, p := range g.Geometry {
			out = append(out, types.Outline{GroupKey: g.Key, Polygon: p})
		}
	}
	return out
}

// Dissolve 使用預設 Engine
func Dissolve(features []types.Feature, field string) ([]Group, error) {
	return Engine{}.Dissolve(features, field)
}

// ExplodeMultipart 使用預設 Engine
func ExplodeMultipart(groups []Group) []types.Outline {
	return Engine{}.Explode(groups)
}

// Polygons 取出幾何中的所有面（非面狀幾何回傳 nil）
func Polygons(g orb.Geometry) []orb.Polygon {
	switch v := g.(type) {
	case orb.Polygon:
		if len(v) == 0 {
			return nil
		}
		return []orb.Polygon{v}
	case orb.MultiPolygon:
		out := make([]orb.Polygon, 0, len(v))
		for _, p := range v {
			if len(p) > 0 {
				out = append(out, p)
			}
		}
		return out
	case orb.Bound:
		return []orb.Polygon{v.ToPolygon()}
	case orb.Collection:
		var out []orb.Polygon
		for _, c := range v {
			out = append(out, Polygons(c)...)
		}
		return out
	default:
		return nil
	}
}
