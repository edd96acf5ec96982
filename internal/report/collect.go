package report

import (
	"errors"
	"time"

	"github.com/ChuLiYu/geotile/internal/journal"
	"github.com/ChuLiYu/geotile/pkg/types"
)

// Row 報表中的一列：ledger 狀態 + journal 時間 + manifest 結果
type Row struct {
	File      string
	Status    types.JobStatus
	Worker    string
	Claims    int
	ClaimedAt time.Time
	DoneAt    time.Time
	Manifest  *JobManifest // 尚未完成或 manifest 無法讀取時為 nil
}

// Collect 合併 ledger、journal 與各輸出目錄的 manifest
//
// 順序與 ledger 相同。journal 中沒有紀錄的任務只有狀態欄位。
func Collect(folder string, jobs []types.Job, events []journal.Event) ([]Row, error) {
	byFile := make(map[string]*Row, len(jobs))
	rows := make([]Row, len(jobs))
	for i, j := range jobs {
		rows[i] = Row{File: j.Filename, Status: j.Status}
		byFile[j.Filename] = &rows[i]
	}

	for _, e := range events {
		r, ok := byFile[e.File]
		if !ok {
			continue
		}
		switch e.Type {
		case journal.EventClaim:
			r.Claims++
			r.Worker = e.Worker
			r.ClaimedAt = e.Time()
			r.DoneAt = time.Time{}
		case journal.EventDone:
			r.DoneAt = e.Time()
		case journal.EventReset:
			r.DoneAt = time.Time{}
		}
	}

	for i := range rows {
		m, err := NewManager(OutputDir(folder, rows[i].File)).Load()
		if errors.Is(err, ErrManifestNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		rows[i].Manifest = &m
	}
	return rows, nil
}

// Duration claim 到 done 的時間；未完成時為 0
func (r Row) Duration() time.Duration {
	if r.ClaimedAt.IsZero() || r.DoneAt.IsZero() {
		return 0
	}
	return r.DoneAt.Sub(r.ClaimedAt)
}
