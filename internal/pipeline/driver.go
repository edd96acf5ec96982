// ============================================================================
// Geotile Pipeline - 單一 worker 的任務迴圈
// ============================================================================
//
// Package: internal/pipeline
// 文件: driver.go
// 功能: 認領任務並依序執行各處理階段，成功後標記 DONE
//
// 每個任務的處理鏈:
//   load → 修復 → classify → dissolve → explode → outline → estimate
//   → 清空輸出目錄 → render → prune → manifest → MarkDone
//
// 錯誤傳遞:
//   - 任務內任何階段失敗：記錄、計數，任務維持 IN_PROGRESS，迴圈繼續
//     （只有操作員執行 reset 才會回到 PENDING）
//   - render 失敗時略過 prune
//   - 取得 lock 失敗：直接返回，停止此 worker
//
// 冪等性:
//   重新處理同一任務會先刪除輸出目錄，再完整重建。
//
// 多 worker:
//   RunWorkers 在同一行程內啟動 n 個獨立迴圈，每個迴圈有自己的 owner id，
//   與 n 個獨立行程的行為相同。
//
// ============================================================================

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"time"

	"github.com/paulmach/orb"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ChuLiYu/geotile/internal/classify"
	"github.com/ChuLiYu/geotile/internal/coordinator"
	"github.com/ChuLiYu/geotile/internal/geom"
	"github.com/ChuLiYu/geotile/internal/metrics"
	"github.com/ChuLiYu/geotile/internal/outline"
	"github.com/ChuLiYu/geotile/internal/prune"
	"github.com/ChuLiYu/geotile/internal/render"
	"github.com/ChuLiYu/geotile/internal/report"
	"github.com/ChuLiYu/geotile/internal/source"
	"github.com/ChuLiYu/geotile/internal/tiles"
	"github.com/ChuLiYu/geotile/pkg/types"
)

// ============================================================================
// 資料結構定義
// ============================================================================

// 預設值
const (
	DefaultZoomMin  = 10
	DefaultZoomMax  = 20
	DefaultTileSize = 256
	DefaultFormat   = "png"
	DefaultIdleWait = 3 * time.Second
)

// 圖層樣式
var (
	featureFill   = color.NRGBA{R: 0x33, G: 0x88, B: 0xff, A: 0x55}
	outlineStroke = color.NRGBA{R: 0x22, G: 0x22, B: 0x22, A: 0xff}
)

// Config Driver 配置
type Config struct {
	Folder   string             // job folder
	Jobs     coordinator.Config // ledger / lock 設定（Owner 留空則每個 Driver 自動產生）
	ZoomMin  int                // 照原值使用；0..0 只輸出 z0
	ZoomMax  int
	TileSize int
	Format   string
	IdleWait time.Duration // 沒有 PENDING 任務但尚未全部完成時的等待間隔
	Prune    prune.Config

	// 外部能力，nil 時使用預設實作
	Loader    source.Loader
	Dissolver geom.Dissolver
	Exploder  geom.Exploder
	Renderer  render.Renderer

	Logger  *zap.SugaredLogger
	Metrics *metrics.Collector

	// OnServing 迴圈開始時以 true、結束時以 false 呼叫（可為 nil）
	OnServing func(serving bool)
}

// Driver 單一 worker
type Driver struct {
	cfg    Config
	coord  *coordinator.Coordinator
	pruner *prune.Pruner
	log    *zap.SugaredLogger
}

// ============================================================================
// 核心方法實作
// ============================================================================

// New 建立 Driver
func New(cfg Config) *Driver {
	if cfg.TileSize <= 0 {
		cfg.TileSize = DefaultTileSize
	}
	if cfg.Format == "" {
		cfg.Format = DefaultFormat
	}
	if cfg.IdleWait <= 0 {
		cfg.IdleWait = DefaultIdleWait
	}
	if cfg.Loader == nil {
		cfg.Loader = source.GeoJSON{}
	}
	if cfg.Dissolver == nil {
		cfg.Dissolver = geom.Engine{}
	}
	if cfg.Exploder == nil {
		cfg.Exploder = geom.Engine{}
	}
	if cfg.Renderer == nil {
		cfg.Renderer = &render.SoftwareRenderer{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}

	jobs := cfg.Jobs
	jobs.Logger = cfg.Logger
	jobs.Metrics = cfg.Metrics
	coord := coordinator.New(cfg.Folder, jobs)

	log := cfg.Logger.With("worker", coord.Owner())
	pc := cfg.Prune
	pc.Logger = log
	pc.Metrics = cfg.Metrics

	return &Driver{
		cfg:    cfg,
		coord:  coord,
		pruner: prune.New(pc),
		log:    log,
	}
}

// Coordinator 回傳此 Driver 使用的 Coordinator
func (d *Driver) Coordinator() *coordinator.Coordinator { return d.coord }

// Run 建立（或續用）ledger，並持續認領任務直到全部完成
//
// 返回值：
//   - nil: 所有任務皆為 DONE
//   - error: lock / ledger 錯誤或 ctx 取消
func (d *Driver) Run(ctx context.Context) error {
	if err := d.coord.BuildJobList(ctx); err != nil {
		return err
	}

	if d.cfg.OnServing != nil {
		d.cfg.OnServing(true)
		defer d.cfg.OnServing(false)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		done, err := d.coord.AllDone(ctx)
		if err != nil {
			return err
		}
		if done {
			d.log.Infow("All jobs done", "folder", d.cfg.Folder)
			return nil
		}

		name, ok, err := d.coord.ClaimNextJob(ctx)
		if err != nil {
			return err
		}
		if !ok {
			d.log.Debugw("Waiting for jobs", "folder", d.cfg.Folder, "wait", d.cfg.IdleWait)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.cfg.IdleWait):
			}
			continue
		}

		jc := NewJobContext(d.coord.Owner(), d.cfg.Folder, name)
		d.log.Infow("Job claimed", "file", name)

		m, err := d.ProcessFile(ctx, jc)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			stage := "unknown"
			var se *StageError
			if errors.As(err, &se) {
				stage = se.Stage
			}
			d.cfg.Metrics.RecordFailed(stage)
			d.log.Errorw("Job failed; left in progress", "file", name, "stage", stage, "error", err)
			continue
		}

		if err := d.coord.MarkDone(ctx, name); err != nil {
			return err
		}
		d.cfg.Metrics.RecordCompleted(time.Since(jc.Started).Seconds())
		d.log.Infow("Job done",
			"file", name,
			"outlines", m.OutlineCount,
			"removed_outlines", m.RemovedOutlines,
			"rendered_tiles", m.RenderedTiles,
			"pruned_tiles", m.PrunedTiles,
			"duration_ms", m.DurationMs,
		)
	}
}

// ProcessFile 完整處理一個來源檔案
//
// 返回值：
//   - report.JobManifest: 處理結果（已寫入輸出目錄）
//   - error: *StageError，指出失敗的階段
func (d *Driver) ProcessFile(ctx context.Context, jc JobContext) (report.JobManifest, error) {
	log := d.log.With("file", jc.BaseName)
	m := report.JobManifest{File: filepath.Base(jc.Source), Worker: jc.Worker}

	// 1. 載入
	features, err := d.cfg.Loader.Load(jc.Source)
	if err != nil {
		return m, stageErr(StageLoad, jc, err)
	}
	m.FeatureCount = len(features)

	// 2. 修復來源幾何
	if err := repairFeatures(features); err != nil {
		return m, stageErr(StageGeometry, jc, err)
	}

	// 3. 分類 + dissolve + explode
	classify.Assign(features)
	groups, err := d.cfg.Dissolver.Dissolve(features, types.GroupKeyField)
	if err != nil {
		return m, stageErr(StageDissolve, jc, err)
	}
	m.GroupCount = len(groups)

	// 4. 輪廓簡化
	res, err := outline.Reduce(d.cfg.Exploder.Explode(groups), log)
	if err != nil {
		return m, stageErr(StageOutline, jc, err)
	}
	m.OutlineCount = len(res.Outlines)
	m.RemovedOutlines = res.Removed
	m.RepairedOutlines = res.Repaired
	d.cfg.Metrics.RecordOutlinesRemoved(res.Removed)
	log.Infow("Outline cleaned", "outlines", m.OutlineCount, "removed", res.Removed, "repaired", res.Repaired)

	// 5. 估算
	extent, ok := outlineExtent(res.Outlines)
	if ok {
		m.Extent = [4]float64{extent.Min[0], extent.Min[1], extent.Max[0], extent.Max[1]}
		m.EstimatedTiles = tiles.EstimateTileCount(extent, d.cfg.ZoomMin, d.cfg.ZoomMax)
		d.cfg.Metrics.RecordTilesEstimated(m.EstimatedTiles)
		log.Infow("Tiles to generate", "tiles", m.EstimatedTiles)
	}

	// 6. 清空輸出目錄，重新處理時結果一致
	if err := os.RemoveAll(jc.OutputDir); err != nil {
		return m, stageErr(StageRender, jc, err)
	}
	if err := os.MkdirAll(jc.OutputDir, 0o755); err != nil {
		return m, stageErr(StageRender, jc, err)
	}

	// 7. 渲染 + 清理
	if ok {
		n, err := d.cfg.Renderer.Render(ctx, render.Request{
			Extent:    extent,
			ZoomMin:   d.cfg.ZoomMin,
			ZoomMax:   d.cfg.ZoomMax,
			TileSize:  d.cfg.TileSize,
			OutputDir: jc.OutputDir,
			Format:    d.cfg.Format,
			Layers:    layers(features, res.Outlines),
		})
		if err != nil {
			return m, stageErr(StageRender, jc, err)
		}
		m.RenderedTiles = n

		sum, err := d.pruner.Prune(ctx, jc.OutputDir)
		if err != nil {
			return m, stageErr(StagePrune, jc, err)
		}
		m.PrunedTiles = sum.Removed
	}

	// 8. manifest
	m.DurationMs = time.Since(jc.Started).Milliseconds()
	m.FinishedAt = time.Now().UTC()
	if err := report.NewManager(jc.OutputDir).Write(m); err != nil {
		return m, stageErr(StageManifest, jc, err)
	}
	return m, nil
}

// ============================================================================
// 多 worker
// ============================================================================

// RunWorkers 在同一行程內啟動 n 個獨立的 Driver
//
// 任一 worker 返回錯誤時取消其餘 worker。
func RunWorkers(ctx context.Context, cfg Config, n int) error {
	if n <= 1 {
		return New(cfg).Run(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		wc := cfg
		wc.Jobs.Owner = ""
		if cfg.Jobs.Owner != "" {
			wc.Jobs.Owner = fmt.Sprintf("%s-%d", cfg.Jobs.Owner, i)
		}
		d := New(wc)
		g.Go(func() error { return d.Run(gctx) })
	}
	return g.Wait()
}

// ============================================================================
// 內部輔助函數
// ============================================================================

// repairFeatures 修復無效的面狀幾何
func repairFeatures(features []types.Feature) error {
	for i := range features {
		switch g := features[i].Geometry.(type) {
		case orb.Polygon:
			if geom.IsValid(g) {
				continue
			}
			fixed, err := geom.MakeValid(g)
			if err != nil {
				return fmt.Errorf("feature %d: %w", i, err)
			}
			features[i].Geometry = fixed
		case orb.MultiPolygon:
			out := make(orb.MultiPolygon, 0, len(g))
			for j, p := range g {
				if geom.IsValid(p) {
					out = append(out, p)
					continue
				}
				fixed, err := geom.MakeValid(p)
				if err != nil {
					return fmt.Errorf("feature %d part %d: %w", i, j, err)
				}
				out = append(out, fixed)
			}
			features[i].Geometry = out
		}
	}
	return nil
}

func outlineExtent(outlines []types.Outline) (orb.Bound, bool) {
	if len(outlines) == 0 {
		return orb.Bound{}, false
	}
	b := outlines[0].Polygon.Bound()
	for _, o := range outlines[1:] {
		b = b.Union(o.Polygon.Bound())
	}
	return b, true
}

func layers(features []types.Feature, outlines []types.Outline) []render.Layer {
	var src []orb.Polygon
	for _, f := range features {
		src = append(src, geom.Polygons(f.Geometry)...)
	}
	out := make([]orb.Polygon, len(outlines))
	for i, o := range outlines {
		out[i] = o.Polygon
	}
	return []render.Layer{
		{Name: "features", Polygons: src, Fill: featureFill},
		{Name: "outlines", Polygons: out, Stroke: outlineStroke, LineWidth: 1.5},
	}
}
