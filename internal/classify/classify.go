// ============================================================================
// Geotile Classify - 圖徵分組鍵
// ============================================================================
//
// Package: internal/classify
// 文件: classify.go
// 功能: 由圖徵屬性 (Type, M, MN, B, K) 計算 group_key，作為 dissolve 的分組依據
//
// 規則（依 Type 分派）:
//   MT                         M/MN 皆無 => "0"；只有一個 => 該值；相等 => 該值；
//                              不同 => 以 MN 為主，有 B 時為 "B/MN"
//   MU, MU/MT, MT/MU, MU/KW, KW 使用 M
//   K                          使用 K
//   其他或分支無結果            M，否則 "0"
//
// GroupKey 是純函數：相同屬性永遠得到相同字串，且永遠不會回傳空字串。
//
// ============================================================================

package classify

import (
	"strings"

	"github.com/ChuLiYu/geotile/pkg/types"
)

// 屬性欄位名稱
const (
	FieldType = "Type"
	FieldM    = "M"
	FieldMN   = "MN"
	FieldB    = "B"
	FieldK    = "K"
)

// Fallback 沒有任何可用值時的 group key
const Fallback = "0"

var mValueTypes = map[string]bool{
	"MU":    true,
	"MU/MT": true,
	"MT/MU": true,
	"MU/KW": true,
	"KW":    true,
}

// GroupKey 由屬性計算 group key
func GroupKey(attrs map[string]any) string {
	typ := strings.TrimSpace(typeString(attrs[FieldType]))
	m := Normalize(attrs[FieldM])
	mn := Normalize(attrs[FieldMN])
	b := Normalize(attrs[FieldB])
	k := Normalize(attrs[FieldK])

	var key string
	switch {
	case typ == "MT":
		key = mtKey(m, mn, b)
	case mValueTypes[typ]:
		key = m.String()
	case typ == "K":
		key = k.String()
	}

	if key != "" {
		return key
	}
	if m.Present() {
		return m.String()
	}
	return Fallback
}

func mtKey(m, mn, b Value) string {
	switch {
	case !m.Present() && !mn.Present():
		return Fallback
	case m.Present() != mn.Present():
		if mn.Present() {
			return mn.String()
		}
		return m.String()
	case m.Equal(mn):
		return m.String()
	case b.Present():
		return b.String() + "/" + mn.String()
	default:
		return mn.String()
	}
}

// Assign 為每個圖徵寫入 group_key 屬性
//
// 必須在 dissolve 之前對同一來源檔案的所有圖徵執行。
// 來源檔若已有 group_key 欄位，其值一律以計算結果取代；GroupKey 不讀取該欄位，
// 因此重複執行 Assign 得到相同結果。
func Assign(features []types.Feature) {
	for i := range features {
		if features[i].Properties == nil {
			features[i].Properties = make(map[string]any)
		}
		features[i].Properties[types.GroupKeyField] = GroupKey(features[i].Properties)
	}
}

func typeString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		return Normalize(x).String()
	}
}
