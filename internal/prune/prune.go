// ============================================================================
// Geotile Prune - 空白圖磚清理
// ============================================================================
//
// Package: internal/prune
// 文件: prune.go
// 功能: 遞迴掃描圖磚目錄，刪除完全透明的圖磚
//
// 流程:
//   1. 列舉所有符合副檔名的圖磚
//   2. 大小過濾：大於門檻的檔案不可能是空白（透明圖磚壓縮後很小），不解碼
//   3. 解碼並與全透明影像精確比較
//   4. 空白即刪除；單一圖磚的解碼或刪除失敗不會中斷批次，只會計數
//   5. 以固定大小分批，每批使用新的 worker pool
//
// Worker 數量:
//   min(MaxWorkers, GOMAXPROCS * Multiplier)
//
// 一批開始後執行到完成；ctx 只在批次之間檢查。
//
// ============================================================================

package prune

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ChuLiYu/geotile/internal/metrics"
	"github.com/ChuLiYu/geotile/internal/worker"
)

// 預設值
const (
	DefaultSizeThreshold = 1800
	DefaultMultiplier    = 4
	DefaultMaxWorkers    = 64
	DefaultBatchSize     = 5000
)

// Config Pruner 配置
type Config struct {
	SizeThreshold int64    // 大小門檻（位元組）
	Workers       int      // > 0 時直接使用
	Multiplier    int      // GOMAXPROCS 倍數
	MaxWorkers    int      // worker 上限
	BatchSize     int      // 每批圖磚數
	Extensions    []string // 要檢查的副檔名（小寫，含點）
	Logger        *zap.SugaredLogger
	Metrics       *metrics.Collector
}

// DefaultConfig 回傳預設配置
func DefaultConfig() Config {
	return Config{
		SizeThreshold: DefaultSizeThreshold,
		Multiplier:    DefaultMultiplier,
		MaxWorkers:    DefaultMaxWorkers,
		BatchSize:     DefaultBatchSize,
		Extensions:    []string{".png"},
	}
}

// Summary 清理結果
type Summary struct {
	Scanned      int // 掃描到的圖磚數
	Removed      int // 刪除的空白圖磚數
	SkippedLarge int // 因大小門檻略過的圖磚數
	DecodeFailed int // 解碼失敗（保留）
	DeleteFailed int // 刪除失敗（保留）
	Batches      int // 批次數
}

// Pruner 空白圖磚清理器
type Pruner struct {
	cfg Config
	log *zap.SugaredLogger
}

// New 建立 Pruner，未設定的欄位使用預設值
func New(cfg Config) *Pruner {
	def := DefaultConfig()
	if cfg.SizeThreshold <= 0 {
		cfg.SizeThreshold = def.SizeThreshold
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = def.Multiplier
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = def.MaxWorkers
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = def.Extensions
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	return &Pruner{cfg: cfg, log: cfg.Logger}
}

// WorkerCount 每批使用的 worker 數量
func (p *Pruner) WorkerCount() int {
	if p.cfg.Workers > 0 {
		return p.cfg.Workers
	}
	return min(p.cfg.MaxWorkers, runtime.GOMAXPROCS(0)*p.cfg.Multiplier)
}

// Prune 清理 root 底下所有空白圖磚
//
// 返回值：
//   - Summary: 統計；單一圖磚失敗只反映在計數中
//   - error: 目錄無法掃描或 ctx 在批次之間被取消
func (p *Pruner) Prune(ctx context.Context, root string) (Summary, error) {
	var sum Summary

	paths, err := p.collect(root)
	if err != nil {
		return sum, err
	}
	sum.Scanned = len(paths)
	if len(paths) == 0 {
		p.log.Infow("No tiles found to process", "dir", root)
		return sum, nil
	}

	workers := p.WorkerCount()
	p.log.Infow("Tile cleanup started", "dir", root, "tiles", len(paths), "workers", workers)

	var skipped atomic.Int64
	fn := func(_ context.Context, path string) (bool, error) {
		v, err := inspect(path, p.cfg.SizeThreshold)
		if err != nil {
			return false, err
		}
		switch v {
		case tooLarge:
			skipped.Add(1)
			return false, nil
		case blank:
			if err := os.Remove(path); err != nil {
				return false, fmt.Errorf("%w: %s: %v", ErrTileDelete, path, err)
			}
			return true, nil
		default:
			return false, nil
		}
	}

	for start := 0; start < len(paths); start += p.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		end := min(start+p.cfg.BatchSize, len(paths))

		results, err := worker.RunBatch(ctx, paths[start:end], workers, fn)
		if err != nil {
			return sum, err
		}
		sum.Batches++

		for _, r := range results {
			switch {
			case r.Removed:
				sum.Removed++
			case errors.Is(r.Err, ErrTileDelete):
				sum.DeleteFailed++
				p.log.Debugw("Tile delete failed", "error", r.Err)
			case r.Err != nil:
				sum.DecodeFailed++
				p.log.Debugw("Tile decode failed", "error", r.Err)
			}
		}
		p.log.Debugw("Tile batch done", "batch", sum.Batches, "tiles", end-start, "removed", sum.Removed)
	}
	sum.SkippedLarge = int(skipped.Load())

	p.cfg.Metrics.RecordTilesPruned(sum.Removed)
	p.cfg.Metrics.RecordTileFailures("decode", sum.DecodeFailed)
	p.cfg.Metrics.RecordTileFailures("delete", sum.DeleteFailed)

	p.log.Infow("Tile cleanup done",
		"dir", root,
		"removed", sum.Removed,
		"skipped_large", sum.SkippedLarge,
		"decode_failed", sum.DecodeFailed,
		"delete_failed", sum.DeleteFailed,
	)
	return sum, nil
}

// collect 遞迴列舉符合副檔名的檔案
func (p *Pruner) collect(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		for _, want := range p.cfg.Extensions {
			if ext == want {
				paths = append(paths, path)
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("prune: walk %s: %w", root, err)
	}
	return paths, nil
}
