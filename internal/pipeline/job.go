package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ChuLiYu/geotile/internal/report"
)

// 處理階段名稱（用於錯誤與 metrics label）
const (
	StageLoad     = "load"
	StageGeometry = "geometry"
	StageDissolve = "dissolve"
	StageOutline  = "outline"
	StageRender   = "render"
	StagePrune    = "prune"
	StageManifest = "manifest"
)

// JobContext 單一任務的處理上下文
//
// 每個任務明確傳遞，不存在跨任務共享的圖層或專案狀態。
type JobContext struct {
	Worker    string    // 認領任務的 worker
	Folder    string    // job folder
	Source    string    // 來源檔案完整路徑
	BaseName  string    // 來源檔名去除副檔名
	OutputDir string    // <Folder>/<BaseName>
	Started   time.Time // 開始處理時間
}

// NewJobContext 由 job folder 與 ledger 中的檔名建立 JobContext
func NewJobContext(worker, folder, filename string) JobContext {
	base := filepath.Base(filename)
	return JobContext{
		Worker:    worker,
		Folder:    folder,
		Source:    filepath.Join(folder, base),
		BaseName:  strings.TrimSuffix(base, filepath.Ext(base)),
		OutputDir: report.OutputDir(folder, base),
		Started:   time.Now(),
	}
}

// StageError 任務在某個階段失敗
type StageError struct {
	Stage string
	File  string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline: %s: %s stage: %v", e.File, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(stage string, jc JobContext, err error) error {
	return &StageError{Stage: stage, File: filepath.Base(jc.Source), Err: err}
}
