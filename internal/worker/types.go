package worker

import (
	"context"
	"time"
)

// Task 代表要處理的單一圖磚檔案
type Task struct {
	Path string // 圖磚檔案路徑
}

// Result 代表圖磚處理結果
type Result struct {
	Path     string        // 圖磚檔案路徑
	Removed  bool          // 是否已刪除
	Err      error         // 錯誤（解碼或刪除失敗）
	Duration time.Duration // 實際執行時間
}

// TileFunc 處理單一圖磚，回傳是否已刪除
type TileFunc func(ctx context.Context, path string) (bool, error)
