// ============================================================================
// Geotile Worker Pool - 有界並發的圖磚執行器
// ============================================================================
//
// Package: internal/worker
// 文件: worker_pool.go
// 功能: 管理一批 Worker goroutine 的生命週期和任務分發
//
// 設計模式:
//   採用 Worker Pool 模式（工作池模式）：
//   1. 固定數量的 Worker goroutine 處理同一批圖磚
//   2. 通過共享的任務 channel 分發任務
//   3. 通過結果 channel 收集執行結果
//   4. 每一批使用新的 Pool，批次之間不保留任何狀態
//
// 架構組件:
//   ┌─────────────┐
//   │   Pruner    │ --Submit()--> taskCh
//   └─────────────┘
//         ↑
//   ReceiveResult()
//         ↑
//   ┌─────────────┐
//   │   Pool      │
//   │  ┌────────┐ │
//   │  │Worker 1│←── taskCh
//   │  │Worker 2│←── taskCh   ──→ resultCh
//   │  │Worker 3│←── taskCh
//   │  └────────┘ │
//   └─────────────┘
//
// 生命週期:
//   1. NewPool() - 創建 Pool，初始化 channels
//   2. Start(ctx, n, fn) - 啟動 n 個 Worker goroutines
//   3. Submit(task) - 提交任務到 taskCh
//   4. ReceiveResult() - 從 resultCh 讀取結果
//   5. Stop() - 關閉 taskCh，等待所有 Worker 完成
//
// 並發控制:
//   - Submit 在持有讀鎖時送出任務，Stop 取得寫鎖後才關閉 taskCh，
//     不會向已關閉的 channel 送值
//   - WaitGroup: 追蹤所有 Worker，確保優雅關閉
//
// 一批開始後會執行到完成；沒有中途取消。
//
// ============================================================================

package worker

import (
	"context"
	"errors"
	"sync"
)

// ============================================================================
// 錯誤定義
// ============================================================================

var (
	// ErrPoolClosed 表示當前 Pool 已關閉，無法提交新任務
	ErrPoolClosed = errors.New("worker pool is closed")
	// ErrPoolNotStarted 表示 Pool 尚未啟動，無法提交任務
	ErrPoolNotStarted = errors.New("worker pool not started")
	// ErrPoolStarted 表示 Pool 已啟動
	ErrPoolStarted = errors.New("worker pool already started")
)

// ============================================================================
// 資料結構定義
// ============================================================================

// Pool 代表 Worker 池
type Pool struct {
	workers  []*Worker      // 所有啟動的 Worker
	taskCh   chan Task      // 任務通道
	resultCh chan Result    // 結果通道
	wg       sync.WaitGroup // 等待所有 Worker 完成
	started  bool
	stopped  bool
	mu       sync.RWMutex // 保護 started / stopped 與 taskCh 的關閉
}

// NewPool 建立新的 Worker Pool
//
// 參數：
//   - bufferSize: 任務和結果通道的緩衝大小（通常等於批次大小）
func NewPool(bufferSize int) *Pool {
	return &Pool{
		workers:  make([]*Worker, 0),
		taskCh:   make(chan Task, bufferSize),
		resultCh: make(chan Result, bufferSize),
	}
}

// Start 啟動指定數量的 Worker
//
// 參數：
//   - ctx: 傳給每次 TileFunc 呼叫
//   - workerCount: 要啟動的 Worker 數量（至少 1）
//   - fn: 每個圖磚要執行的工作
func (p *Pool) Start(ctx context.Context, workerCount int, fn TileFunc) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrPoolStarted
	}
	if workerCount < 1 {
		workerCount = 1
	}

	for i := 0; i < workerCount; i++ {
		w := newWorker(ctx, i, fn, p.taskCh, p.resultCh)
		p.workers = append(p.workers, w)

		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.Run()
		}(w)
	}

	p.started = true
	return nil
}

// Submit 提交任務到 Worker Pool
//
// taskCh 已滿時會阻塞，直到有 Worker 取走任務。
func (p *Pool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.started {
		return ErrPoolNotStarted
	}
	if p.stopped {
		return ErrPoolClosed
	}
	p.taskCh <- task
	return nil
}

// ReceiveResult 從結果通道接收執行結果
//
// Stop() 之後，已完成但未讀取的結果仍可讀出；讀完後回傳 ErrPoolClosed。
func (p *Pool) ReceiveResult() (Result, error) {
	result, ok := <-p.resultCh
	if !ok {
		return Result{}, ErrPoolClosed
	}
	return result, nil
}

// Stop 優雅地關閉 Worker Pool
//
// 關閉流程：
//  1. 設定 stopped 標誌並關閉 taskCh
//  2. Worker 處理完 taskCh 中剩餘的任務後退出
//  3. 等待所有 Worker 完成
//  4. 關閉 resultCh
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.taskCh)
	p.mu.Unlock()

	p.wg.Wait()
	close(p.resultCh)
}

// GetWorkerCount 返回當前 Worker 數量
func (p *Pool) GetWorkerCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.workers)
}

// IsStarted 檢查 Pool 是否已啟動
func (p *Pool) IsStarted() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.started
}

// RunBatch 以新的 Pool 處理一批圖磚，回傳所有結果
//
// 結果順序不保證與 paths 相同。
func RunBatch(ctx context.Context, paths []string, workerCount int, fn TileFunc) ([]Result, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	if workerCount > len(paths) {
		workerCount = len(paths)
	}

	pool := NewPool(len(paths))
	if err := pool.Start(ctx, workerCount, fn); err != nil {
		return nil, err
	}
	for _, p := range paths {
		if err := pool.Submit(Task{Path: p}); err != nil {
			pool.Stop()
			return nil, err
		}
	}

	results := make([]Result, 0, len(paths))
	for range paths {
		r, err := pool.ReceiveResult()
		if err != nil {
			break
		}
		results = append(results, r)
	}
	pool.Stop()
	return results, nil
}
