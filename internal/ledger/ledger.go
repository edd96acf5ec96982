// ============================================================================
// Geotile Ledger - 任務清單狀態機
// ============================================================================
//
// Package: internal/ledger
// 文件: ledger.go
// 功能: 解析與寫回共享 ledger 檔案，並維護任務狀態轉換規則
//
// 檔案格式:
//   UTF-8 純文字，每行一個任務，無標頭：
//     <filename>,<PENDING|IN_PROGRESS|DONE>\n
//   行的順序 = 建立時的探索順序，改寫單行時不變。
//
// 任務狀態轉換 (State Machine):
//   PENDING
//      ↓ Transition(InProgress)  （ClaimNextJob）
//   IN_PROGRESS
//      ↓ Transition(Done)        （MarkDone）
//   DONE
//
//   不存在其他邊。IN_PROGRESS → PENDING 只能透過操作員明確呼叫 Reset()。
//
// 並發安全:
//   Ledger 本身不加鎖；跨行程的互斥由 coordinator 的 lock file 負責。
//   所有 Write() 都必須在持有 lock 時呼叫。
//
// ============================================================================

package ledger

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ChuLiYu/geotile/pkg/types"
)

// ============================================================================
// 錯誤定義
// ============================================================================

var (
	// ErrMalformedLine ledger 中出現無法解析的行
	ErrMalformedLine = errors.New("ledger: malformed line")
	// ErrInvalidTransition 不允許的狀態轉換
	ErrInvalidTransition = errors.New("ledger: invalid status transition")
	// ErrJobNotFound 任務不存在
	ErrJobNotFound = errors.New("ledger: job not found")
)

// LineError 帶有行號的解析錯誤
type LineError struct {
	Line int    // 1-based 行號
	Text string // 原始內容
}

func (e *LineError) Error() string {
	return fmt.Sprintf("ledger: malformed line %d: %q", e.Line, e.Text)
}

func (e *LineError) Unwrap() error {
	return ErrMalformedLine
}

// ============================================================================
// 單行編解碼
// ============================================================================

// ParseLine 解析單行 "<filename>,<STATUS>"，以第一個逗號切分
func ParseLine(line string) (types.Job, error) {
	line = strings.TrimRight(line, "\r\n")
	fn, status, ok := strings.Cut(line, ",")
	if !ok || fn == "" {
		return types.Job{}, ErrMalformedLine
	}
	st := types.JobStatus(strings.TrimSpace(status))
	if !st.Valid() {
		return types.Job{}, ErrMalformedLine
	}
	return types.Job{Filename: fn, Status: st}, nil
}

// Format 產生單行內容（含結尾換行）
func Format(job types.Job) string {
	return job.Filename + "," + string(job.Status) + "\n"
}

// ============================================================================
// Ledger
// ============================================================================

// Ledger 記憶體中的任務清單，順序與檔案一致
type Ledger struct {
	Jobs []types.Job
}

// Stats 各狀態的任務數量
type Stats struct {
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Done       int `json:"done"`
}

// Total 任務總數
func (s Stats) Total() int {
	return s.Pending + s.InProgress + s.Done
}

// Read 讀取整個 ledger 檔案
//
// 返回值：
//   - *Ledger: 解析結果（空行會被略過）
//   - error: 檔案不存在時回傳 os.ErrNotExist（可用 errors.Is 判斷）
func Read(path string) (*Ledger, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse 從位元組內容解析 ledger
func Parse(data []byte) (*Ledger, error) {
	l := &Ledger{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	n := 0
	for sc.Scan() {
		n++
		text := sc.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		job, err := ParseLine(text)
		if err != nil {
			return nil, &LineError{Line: n, Text: text}
		}
		l.Jobs = append(l.Jobs, job)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("ledger: scan: %w", err)
	}
	return l, nil
}

// Bytes 序列化為檔案內容
func (l *Ledger) Bytes() []byte {
	var b strings.Builder
	for _, job := range l.Jobs {
		b.WriteString(Format(job))
	}
	return []byte(b.String())
}

// Write 整檔改寫 ledger
//
// 注意：這不是原子寫入。多個 worker 之間的一致性完全依賴呼叫者持有 lock file；
// 若行程在寫入途中崩潰，ledger 可能被截斷（已知風險）。
func (l *Ledger) Write(path string) error {
	if err := os.WriteFile(path, l.Bytes(), 0o644); err != nil {
		return fmt.Errorf("ledger: write %s: %w", path, err)
	}
	return nil
}

// Find 依檔名尋找任務索引，找不到回傳 -1
func (l *Ledger) Find(filename string) int {
	for i, job := range l.Jobs {
		if job.Filename == filename {
			return i
		}
	}
	return -1
}

// FirstPending 回傳第一個 PENDING 任務的索引，沒有則回傳 -1
func (l *Ledger) FirstPending() int {
	for i, job := range l.Jobs {
		if job.Status == types.StatusPending {
			return i
		}
	}
	return -1
}

// Transition 將任務移到下一個狀態
//
// 允許的邊：PENDING→IN_PROGRESS、IN_PROGRESS→DONE。
// MarkDone 對已是 DONE 的任務視為冪等（回傳 nil）。
func (l *Ledger) Transition(filename string, to types.JobStatus) error {
	i := l.Find(filename)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, filename)
	}
	from := l.Jobs[i].Status
	if from == to && to == types.StatusDone {
		return nil
	}
	if !allowed(from, to) {
		return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, filename, from, to)
	}
	l.Jobs[i].Status = to
	return nil
}

// Reset 操作員手動將卡住的任務放回 PENDING
//
// 這是唯一的 IN_PROGRESS→PENDING 路徑，系統本身從不自動呼叫。
func (l *Ledger) Reset(filename string) error {
	i := l.Find(filename)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, filename)
	}
	if l.Jobs[i].Status != types.StatusInProgress {
		return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, filename, l.Jobs[i].Status, types.StatusPending)
	}
	l.Jobs[i].Status = types.StatusPending
	return nil
}

// AllDone 是否所有任務都已完成
func (l *Ledger) AllDone() bool {
	for _, job := range l.Jobs {
		if job.Status != types.StatusDone {
			return false
		}
	}
	return true
}

// Stats 取得各狀態的任務統計
func (l *Ledger) Stats() Stats {
	var s Stats
	for _, job := range l.Jobs {
		switch job.Status {
		case types.StatusPending:
			s.Pending++
		case types.StatusInProgress:
			s.InProgress++
		case types.StatusDone:
			s.Done++
		}
	}
	return s
}

func allowed(from, to types.JobStatus) bool {
	switch from {
	case types.StatusPending:
		return to == types.StatusInProgress
	case types.StatusInProgress:
		return to == types.StatusDone
	}
	return false
}
