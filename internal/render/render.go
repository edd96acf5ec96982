// ============================================================================
// Geotile Render - XYZ 圖磚渲染
// ============================================================================
//
// Package: internal/render
// 文件: render.go
// 功能: 將多邊形圖層柵格化為 {z}/{x}/{y}.png 圖磚樹
//
// 渲染方式:
//   外框在每個縮放層的圖磚範圍（與 tiles.Range 相同）內，每個圖磚都會輸出，
//   背景透明；沒有內容的圖磚由 prune 刪除。
//   每個圖磚使用獨立的 gg.Context，以 errgroup 限制並發數量。
//
// 重新渲染同一個輸出目錄會覆蓋既有圖磚。
//
// ============================================================================

package render

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"

	"github.com/gogpu/gg"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"golang.org/x/sync/errgroup"

	"github.com/ChuLiYu/geotile/internal/tiles"
	"github.com/ChuLiYu/geotile/pkg/types"
)

// ErrRender 渲染失敗
var ErrRender = errors.New("render: failed")

// Layer 一個要渲染的圖層
type Layer struct {
	Name      string
	Polygons  []orb.Polygon
	Fill      color.Color // nil 表示不填色
	Stroke    color.Color // nil 表示不描邊
	LineWidth float64
}

// Request 渲染請求
type Request struct {
	Extent    orb.Bound
	ZoomMin   int
	ZoomMax   int
	TileSize  int
	OutputDir string
	Format    string // png 或 jpg
	Layers    []Layer
}

// Renderer 將圖層渲染為圖磚檔案，回傳寫入的圖磚數
type Renderer interface {
	Render(ctx context.Context, req Request) (int, error)
}

// SoftwareRenderer 使用 gg 的 CPU 渲染器
type SoftwareRenderer struct {
	Workers int // <= 0 時使用 GOMAXPROCS
}

var _ Renderer = (*SoftwareRenderer)(nil)

// prepared 預先計算外框的圖層
type prepared struct {
	layer  Layer
	bounds []orb.Bound
}

// Render 渲染所有縮放層
func (r *SoftwareRenderer) Render(ctx context.Context, req Request) (int, error) {
	if req.TileSize <= 0 {
		return 0, fmt.Errorf("%w: tile size %d", ErrRender, req.TileSize)
	}
	ext, err := extension(req.Format)
	if err != nil {
		return 0, err
	}

	layers := make([]prepared, len(req.Layers))
	for i, l := range req.Layers {
		layers[i].layer = l
		layers[i].bounds = make([]orb.Bound, len(l.Polygons))
		for j, p := range l.Polygons {
			layers[i].bounds[j] = p.Bound()
		}
	}

	workers := r.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	var written atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, span := range tiles.Spans(req.Extent, req.ZoomMin, req.ZoomMax) {
		err := span.Each(func(tc types.TileCoord) error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			g.Go(func() error {
				if err := renderTile(tc, req, ext, layers); err != nil {
					return err
				}
				written.Add(1)
				return nil
			})
			return nil
		})
		if err != nil {
			break
		}
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return int(written.Load()), err
		}
		return int(written.Load()), fmt.Errorf("%w: %v", ErrRender, err)
	}
	if err := ctx.Err(); err != nil {
		return int(written.Load()), err
	}
	return int(written.Load()), nil
}

// renderTile 渲染並寫出單一圖磚
func renderTile(tc types.TileCoord, req Request, ext string, layers []prepared) error {
	size := float64(req.TileSize)
	tileBound := maptile.New(uint32(tc.X), uint32(tc.Y), maptile.Zoom(tc.Z)).Bound()

	dc := gg.NewContext(req.TileSize, req.TileSize)
	defer dc.Close()
	dc.SetFillRule(gg.FillRuleEvenOdd)

	project := func(pt orb.Point) (float64, float64) {
		x, y := tiles.Project(pt, tc.Z)
		return (x - float64(tc.X)) * size, (y - float64(tc.Y)) * size
	}

	for _, pl := range layers {
		for i, poly := range pl.layer.Polygons {
			if !pl.bounds[i].Intersects(tileBound) {
				continue
			}
			dc.ClearPath()
			for _, ring := range poly {
				for k, pt := range ring {
					x, y := project(pt)
					if k == 0 {
						dc.MoveTo(x, y)
					} else {
						dc.LineTo(x, y)
					}
				}
				dc.ClosePath()
			}
			if pl.layer.Fill != nil {
				dc.SetColor(pl.layer.Fill)
				if err := dc.FillPreserve(); err != nil {
					return fmt.Errorf("tile %d/%d/%d fill: %w", tc.Z, tc.X, tc.Y, err)
				}
			}
			if pl.layer.Stroke != nil {
				dc.SetColor(pl.layer.Stroke)
				dc.SetLineWidth(pl.layer.LineWidth)
				if err := dc.StrokePreserve(); err != nil {
					return fmt.Errorf("tile %d/%d/%d stroke: %w", tc.Z, tc.X, tc.Y, err)
				}
			}
			dc.ClearPath()
		}
	}

	path := tc.Path(req.OutputDir, ext)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return save(dc, path, ext)
}

func save(dc *gg.Context, path, ext string) error {
	if ext == "png" {
		return dc.SavePNG(path)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := dc.EncodeJPEG(f, 90); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func extension(format string) (string, error) {
	switch format {
	case "", "png", "PNG":
		return "png", nil
	case "jpg", "jpeg", "JPG", "JPEG":
		return "jpg", nil
	default:
		return "", fmt.Errorf("%w: unsupported format %q", ErrRender, format)
	}
}
