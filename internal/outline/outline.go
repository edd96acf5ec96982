// ============================================================================
// Geotile Outline - 輪廓簡化與包含過濾
// ============================================================================
//
// Package: internal/outline
// 文件: outline.go
// 功能: 將 dissolve 後的多邊形整理成可渲染的輪廓
//
// 步驟:
//   1. 有效性修復：無效的多邊形先經 geom.MakeValid 修復
//   2. 只保留外環：內環（洞）全部丟棄，不可逆
//   3. 包含過濾：每個 group key 分區獨立處理，依面積由小到大排序，
//      若較大的多邊形 B 的外框包含 S 的外框且 B 完整包含 S，則移除 S。
//      找到第一個包含者即停止；已移除的多邊形不再作為包含者。
//
// 複雜度:
//   每個分區 O(n²)，以外框預先過濾。分區通常只有數十個多邊形。
//
// ============================================================================

package outline

import (
	"fmt"
	"sort"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/ChuLiYu/geotile/internal/geom"
	"github.com/ChuLiYu/geotile/pkg/types"
)

// Result 簡化結果
type Result struct {
	Outlines []types.Outline // 保留的輪廓（維持輸入順序）
	Removed  int             // 被包含過濾移除的數量
	Repaired int             // 經過修復的數量
}

// candidate 排序用的中間資料
type candidate struct {
	index   int
	area    float64
	bound   orb.Bound
	polygon orb.Polygon
}

// Reduce 修復、只保留外環，並移除同一分區內被完整包含的輪廓
//
// 參數：
//   - in: 已依 group key 拆成單一多邊形的輪廓
//   - logger: 可為 nil
//
// 返回值：
//   - Result: 保留的輪廓與統計；沒有移除任何輪廓是正常結果
//   - error: 有無法修復的幾何時回傳（wrap geom.ErrGeometry）
func Reduce(in []types.Outline, logger *zap.SugaredLogger) (Result, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	var res Result
	cleaned := make([]types.Outline, 0, len(in))
	for i, o := range in {
		if len(o.Polygon) == 0 {
			continue
		}
		p := o.Polygon
		if !geom.IsValid(p) {
			fixed, err := geom.MakeValid(p)
			if err != nil {
				return Result{}, fmt.Errorf("outline %d (group %s): %w", i, o.GroupKey, err)
			}
			p = fixed
			res.Repaired++
		}
		cleaned = append(cleaned, types.Outline{GroupKey: o.GroupKey, Polygon: geom.ExteriorOnly(p)})
	}

	removed := make([]bool, len(cleaned))
	for key, members := range partition(cleaned) {
		n := filterContained(members, removed)
		if n > 0 {
			logger.Debugw("Removed contained outlines", "group_key", key, "removed", n, "partition", len(members))
		}
		res.Removed += n
	}

	res.Outlines = make([]types.Outline, 0, len(cleaned)-res.Removed)
	for i, o := range cleaned {
		if !removed[i] {
			res.Outlines = append(res.Outlines, o)
		}
	}
	return res, nil
}

// partition 依 group key 分區
func partition(outlines []types.Outline) map[string][]candidate {
	parts := make(map[string][]candidate)
	for i, o := range outlines {
		parts[o.GroupKey] = append(parts[o.GroupKey], candidate{
			index:   i,
			area:    geom.Area(o.Polygon),
			bound:   geom.Bound(o.Polygon),
			polygon: o.Polygon,
		})
	}
	return parts
}

// filterContained 在單一分區內標記被包含的輪廓，回傳移除數量
func filterContained(members []candidate, removed []bool) int {
	sort.SliceStable(members, func(i, j int) bool {
		return members[i].area < members[j].area
	})

	count := 0
	for i, small := range members {
		for _, big := range members[i+1:] {
			if removed[big.index] {
				continue
			}
			if !geom.BoundContains(big.bound, small.bound) {
				continue
			}
			if geom.Contains(big.polygon, small.polygon) {
				removed[small.index] = true
				count++
				break
			}
		}
	}
	return count
}
