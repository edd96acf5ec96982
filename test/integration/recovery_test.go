// ============================================================================
// Geotile 恢復測試套件
// ============================================================================
//
// Package: test/integration
// 文件: recovery_test.go
// 功能: 端到端測試：多 worker 共用 job folder、中斷後恢復、重跑結果一致
//
// TestEndToEndMultiWorker:
//   - 8 個檔案，3 個 in-process worker（與 3 個行程等價）
//   - 每個任務只被處理一次，全部 DONE，每個輸出目錄都有 manifest
//   - 同組被包含的小地塊被移除
//
// TestRecoveryAfterCrash:
//   - 模擬 worker 在認領後崩潰：任務維持 IN_PROGRESS
//   - 其他 worker 處理完剩餘任務後持續等待（不會自行完成）
//   - 操作員 reset 後再次執行，全部 DONE
//
// TestRerunIsIdempotent:
//   - 同一來源檔案處理兩次（第二次前留下殘檔），圖磚集合與 manifest 統計完全相同
//
// ============================================================================

package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/geotile/internal/coordinator"
	"github.com/ChuLiYu/geotile/internal/journal"
	"github.com/ChuLiYu/geotile/internal/pipeline"
	"github.com/ChuLiYu/geotile/internal/report"
	"github.com/ChuLiYu/geotile/pkg/types"
)

func TestEndToEndMultiWorker(t *testing.T) {
	folder := t.TempDir()
	writeParcels(t, folder, 8)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	require.NoError(t, pipeline.RunWorkers(ctx, pipelineConfig(t, folder), 3))

	coord := coordinator.New(folder, coordinator.DefaultConfig())
	l, err := coord.Status()
	require.NoError(t, err)
	require.Len(t, l.Jobs, 8)
	assert.True(t, l.AllDone())

	for _, j := range l.Jobs {
		out := report.OutputDir(folder, j.Filename)
		m, err := report.NewManager(out).Load()
		require.NoError(t, err, j.Filename)

		assert.Equal(t, 3, m.FeatureCount)
		assert.Equal(t, 2, m.OutlineCount, "nested parcel removed")
		assert.Equal(t, 1, m.RemovedOutlines)
		assert.Equal(t, int(m.EstimatedTiles), m.RenderedTiles, "every tile in range rendered")
		assert.Len(t, tileSet(t, out), m.RenderedTiles-m.PrunedTiles)
	}

	// 每個檔案恰好被認領一次、完成一次
	events, stats, err := coord.Journal().ReadAll()
	require.NoError(t, err)
	assert.Zero(t, stats.Corrupted)
	claims := map[string]int{}
	dones := map[string]int{}
	for _, e := range events {
		switch e.Type {
		case journal.EventClaim:
			claims[e.File]++
		case journal.EventDone:
			dones[e.File]++
		}
	}
	for _, j := range l.Jobs {
		assert.Equal(t, 1, claims[j.Filename], j.Filename)
		assert.Equal(t, 1, dones[j.Filename], j.Filename)
	}
}

func TestRecoveryAfterCrash(t *testing.T) {
	folder := t.TempDir()
	writeParcels(t, folder, 4)
	cfg := pipelineConfig(t, folder)

	// 崩潰的 worker：認領後就消失
	crashed := coordinator.New(folder, cfg.Jobs)
	require.NoError(t, crashed.BuildJobList(context.Background()))
	lost, ok, err := crashed.ClaimNextJob(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	err = pipeline.RunWorkers(ctx, cfg, 2)
	cancel()
	assert.ErrorIs(t, err, context.DeadlineExceeded, "workers wait for the stuck job")

	l, err := crashed.Status()
	require.NoError(t, err)
	s := l.Stats()
	assert.Equal(t, 3, s.Done)
	assert.Equal(t, 1, s.InProgress)
	assert.Equal(t, types.StatusInProgress, l.Jobs[l.Find(lost)].Status)

	// 操作員 reset
	require.NoError(t, crashed.Reset(context.Background(), lost))

	ctx, cancel = context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	require.NoError(t, pipeline.RunWorkers(ctx, cfg, 2))

	l, err = crashed.Status()
	require.NoError(t, err)
	assert.True(t, l.AllDone())
}

func TestRerunIsIdempotent(t *testing.T) {
	folder := t.TempDir()
	writeParcels(t, folder, 1)
	cfg := pipelineConfig(t, folder)
	ctx := context.Background()

	d := pipeline.New(cfg)
	require.NoError(t, d.Run(ctx))

	out := report.OutputDir(folder, "parcel_000.geojson")
	first := tileSet(t, out)
	m1, err := report.NewManager(out).Load()
	require.NoError(t, err)
	require.NotEmpty(t, first)

	// 殘留的舊圖磚會在重跑時被清除
	require.NoError(t, os.WriteFile(out+"/stale.png", []byte("x"), 0o644))

	// DONE 是終態，重跑由 ProcessFile 直接驅動
	_, err = d.ProcessFile(ctx, pipeline.NewJobContext("rerun", folder, "parcel_000.geojson"))
	require.NoError(t, err)

	second := tileSet(t, out)
	m2, err := report.NewManager(out).Load()
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("tile set changed on re-run (-first +second):\n%s", diff)
	}
	assert.Equal(t, m1.OutlineCount, m2.OutlineCount)
	assert.Equal(t, m1.RemovedOutlines, m2.RemovedOutlines)
	assert.Equal(t, m1.PrunedTiles, m2.PrunedTiles)
	assert.Equal(t, m1.Extent, m2.Extent)

	l, err := d.Coordinator().Status()
	require.NoError(t, err)
	assert.True(t, l.AllDone())
	assert.Error(t, d.Coordinator().Reset(ctx, "parcel_000.geojson"), "DONE jobs cannot be reset")
}
