package journal

// ============================================================================
// Journal 核心實作
// 職責：
// 1. 在持有 lock file 時追加 ledger 狀態變更事件（append-only）
// 2. 提供重放功能，讓 report 指令重建每個任務的認領/完成時間
// 3. 損壞的行會被略過並計數，不中斷重放
//
// 與 ledger 的關係：
//   ledger 是唯一的真實狀態來源；journal 只是稽核紀錄。
//   journal 寫入失敗只記錄警告，不會讓 ledger 變更回滾。
// ============================================================================

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// Journal 表示一個 append-only 事件檔案
//
// 每次 Append 都會重新以 O_APPEND 開啟檔案，因為寫入者是多個獨立的行程，
// 不能長時間持有檔案描述器。
type Journal struct {
	mu   sync.Mutex // 保護同一行程內的並發寫入
	path string     // journal 檔案路徑
	now  func() time.Time
}

// ReplayStats 重放結果統計
type ReplayStats struct {
	Applied   int // 成功套用的事件數
	Corrupted int // 無法解析或 checksum 錯誤而略過的行數
}

// New 建立 Journal 實例（不會立即建立檔案）
func New(path string) *Journal {
	return &Journal{path: path, now: time.Now}
}

// Path 回傳 journal 檔案路徑
func (j *Journal) Path() string {
	return j.path
}

// Record 建立一個帶有時間戳與 checksum 的事件
func (j *Journal) Record(eventType EventType, file, worker string) Event {
	e := Event{
		Type:      eventType,
		File:      file,
		Worker:    worker,
		Timestamp: j.now().UnixMilli(),
	}
	e.Checksum = CalculateChecksum(e)
	return e
}

// Append 追加事件到 journal 並同步到磁碟
//
// 呼叫者必須持有 coordinator 的 lock file，否則多個行程的寫入可能交錯。
func (j *Journal) Append(events ...Event) error {
	if len(events) == 0 {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	file, err := os.OpenFile(j.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("journal: open: %w", err)
	}

	encoder := json.NewEncoder(file)
	for _, e := range events {
		if e.Checksum == 0 {
			e.Checksum = CalculateChecksum(e)
		}
		if err := encoder.Encode(e); err != nil {
			file.Close()
			return fmt.Errorf("journal: encode: %w", err)
		}
	}

	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("journal: sync: %w", err)
	}
	return file.Close()
}

// Replay 依序重放所有事件
//
// 行為：
// - journal 不存在時視為空（回傳零值統計）
// - 逐行解析；損壞或 checksum 錯誤的行略過並計入 Corrupted
// - handler 回傳錯誤時立即停止
func (j *Journal) Replay(handler EventHandler) (ReplayStats, error) {
	var stats ReplayStats

	file, err := os.Open(j.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return stats, nil
		}
		return stats, fmt.Errorf("journal: open: %w", err)
	}
	defer file.Close()

	sc := bufio.NewScanner(file)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}

		var e Event
		if err := json.Unmarshal(raw, &e); err != nil {
			stats.Corrupted++
			continue
		}
		if !VerifyChecksum(e) {
			stats.Corrupted++
			continue
		}

		if err := handler(e); err != nil {
			return stats, err
		}
		stats.Applied++
	}
	if err := sc.Err(); err != nil {
		return stats, &CorruptionError{Line: line + 1, Cause: err}
	}
	return stats, nil
}

// ReadAll 讀取所有有效事件
func (j *Journal) ReadAll() ([]Event, ReplayStats, error) {
	var events []Event
	stats, err := j.Replay(func(e Event) error {
		events = append(events, e)
		return nil
	})
	return events, stats, err
}
