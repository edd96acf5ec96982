// ============================================================================
// Geotile Coordinator - 無中央伺服器的多 worker 任務分配
// ============================================================================
//
// Package: internal/coordinator
// 文件: coordinator.go
// 功能: 透過共享資料夾中的 ledger 檔案與 lock file，
//       讓 N 個獨立的 worker 行程從同一個資料夾取得互不重疊的任務
//
// 檔案配置（皆位於 job folder 內）:
//   geojson_jobs.txt          ledger：<filename>,<STATUS>
//   geojson_jobs.lock         lock file：存在 = 被持有
//   geojson_jobs.txt.journal  journal：狀態變更稽核紀錄
//
// 操作:
//   BuildJobList  冪等；ledger 已存在時不做任何事（支援續跑）
//   ClaimNextJob  lock 下把第一個 PENDING 改為 IN_PROGRESS
//   MarkDone      lock 下把指定任務改為 DONE
//   AllDone       ledger 不存在或全部 DONE
//   Reset         操作員手動把 IN_PROGRESS 放回 PENDING
//   ForceUnlock   操作員手動移除卡住的 lock file
//
// 已知風險:
//   - 持有 lock 的行程崩潰後，lock 永遠不會被自動回收，其他 worker 會在
//     逾時後失敗（lease 模式下會明確標記為 stale）。
//   - ledger 改寫不是原子操作，一致性只來自 lock。
//   - 處理失敗的任務會停在 IN_PROGRESS，直到有人執行 Reset。
//
// ============================================================================

package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ChuLiYu/geotile/internal/journal"
	"github.com/ChuLiYu/geotile/internal/ledger"
	"github.com/ChuLiYu/geotile/internal/metrics"
	"github.com/ChuLiYu/geotile/pkg/types"
)

// ============================================================================
// 錯誤定義
// ============================================================================

var (
	// ErrLockTimeout 在逾時內無法取得 lock
	ErrLockTimeout = errors.New("coordinator: lock timeout")
	// ErrStaleLock lock 的 lease 已超過 TTL，持有者可能已崩潰
	ErrStaleLock = errors.New("coordinator: stale lock")
	// ErrNoLedger job folder 中沒有 ledger
	ErrNoLedger = errors.New("coordinator: ledger not found")
)

// ============================================================================
// 設定
// ============================================================================

// 預設值（與既有 job folder 相容）
const (
	DefaultLedgerFile    = "geojson_jobs.txt"
	DefaultLockFile      = "geojson_jobs.lock"
	DefaultSourcePattern = "*.geojson"
	DefaultLockTimeout   = 30 * time.Second
	DefaultPollInterval  = 250 * time.Millisecond
)

// Config Coordinator 配置
type Config struct {
	LedgerFile    string             // ledger 檔名
	LockFile      string             // lock file 檔名
	SourcePattern string             // 來源檔案 glob
	LockTimeout   time.Duration      // 取得 lock 的最長等待時間
	PollInterval  time.Duration      // 輪詢間隔
	LeaseTTL      time.Duration      // > 0 時啟用 lease 與 stale 偵測
	Owner         string             // worker 識別碼，空值時自動產生 UUID
	Logger        *zap.SugaredLogger // 日誌
	Metrics       *metrics.Collector // 可為 nil
}

// DefaultConfig 回傳預設配置
func DefaultConfig() Config {
	return Config{
		LedgerFile:    DefaultLedgerFile,
		LockFile:      DefaultLockFile,
		SourcePattern: DefaultSourcePattern,
		LockTimeout:   DefaultLockTimeout,
		PollInterval:  DefaultPollInterval,
	}
}

// ============================================================================
// Coordinator
// ============================================================================

// Coordinator 管理單一 job folder 的 ledger 與 lock
type Coordinator struct {
	folder  string
	cfg     Config
	journal *journal.Journal
	log     *zap.SugaredLogger
	now     func() time.Time
}

// New 建立 Coordinator，未設定的欄位使用預設值
func New(folder string, cfg Config) *Coordinator {
	def := DefaultConfig()
	if cfg.LedgerFile == "" {
		cfg.LedgerFile = def.LedgerFile
	}
	if cfg.LockFile == "" {
		cfg.LockFile = def.LockFile
	}
	if cfg.SourcePattern == "" {
		cfg.SourcePattern = def.SourcePattern
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = def.LockTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.Owner == "" {
		cfg.Owner = uuid.NewString()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}

	c := &Coordinator{
		folder: folder,
		cfg:    cfg,
		log:    cfg.Logger.With("worker", cfg.Owner),
		now:    time.Now,
	}
	c.journal = journal.New(c.JournalPath())
	return c
}

// Folder 回傳 job folder
func (c *Coordinator) Folder() string { return c.folder }

// Owner 回傳 worker 識別碼
func (c *Coordinator) Owner() string { return c.cfg.Owner }

// LedgerPath 回傳 ledger 檔案路徑
func (c *Coordinator) LedgerPath() string { return filepath.Join(c.folder, c.cfg.LedgerFile) }

// LockPath 回傳 lock file 路徑
func (c *Coordinator) LockPath() string { return filepath.Join(c.folder, c.cfg.LockFile) }

// JournalPath 回傳 journal 檔案路徑
func (c *Coordinator) JournalPath() string { return c.LedgerPath() + ".journal" }

// Journal 回傳 journal（供 report 使用）
func (c *Coordinator) Journal() *journal.Journal { return c.journal }

// BuildJobList 掃描來源檔案並建立 ledger
//
// 冪等：ledger 已存在時直接返回，支援中斷後續跑。
// 建立過程持有 lock，避免兩個同時啟動的 worker 各自建立一份。
func (c *Coordinator) BuildJobList(ctx context.Context) error {
	if exists(c.LedgerPath()) {
		return nil
	}

	return c.withLock(ctx, func() error {
		if exists(c.LedgerPath()) {
			return nil
		}

		matches, err := filepath.Glob(filepath.Join(c.folder, c.cfg.SourcePattern))
		if err != nil {
			return fmt.Errorf("coordinator: glob %q: %w", c.cfg.SourcePattern, err)
		}

		l := &ledger.Ledger{}
		events := make([]journal.Event, 0, len(matches))
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil || info.IsDir() {
				continue
			}
			name := filepath.Base(m)
			l.Jobs = append(l.Jobs, types.Job{Filename: name, Status: types.StatusPending})
			events = append(events, c.journal.Record(journal.EventBuild, name, c.cfg.Owner))
		}

		if err := l.Write(c.LedgerPath()); err != nil {
			return err
		}
		c.appendJournal(events...)
		c.log.Infow("Job list built", "folder", c.folder, "jobs", len(l.Jobs))
		return nil
	})
}

// ClaimNextJob 認領第一個 PENDING 任務
//
// 返回值：
//   - filename: 認領到的檔名（不含資料夾）
//   - ok: 沒有 PENDING 任務時為 false（不是錯誤）
//   - error: lock 或 ledger 錯誤
func (c *Coordinator) ClaimNextJob(ctx context.Context) (string, bool, error) {
	var claimed string
	err := c.withLock(ctx, func() error {
		l, err := c.readLedger()
		if err != nil {
			return err
		}

		i := l.FirstPending()
		if i < 0 {
			return nil
		}
		claimed = l.Jobs[i].Filename
		if err := l.Transition(claimed, types.StatusInProgress); err != nil {
			return err
		}
		if err := l.Write(c.LedgerPath()); err != nil {
			return err
		}

		c.appendJournal(c.journal.Record(journal.EventClaim, claimed, c.cfg.Owner))
		c.observe(l)
		c.cfg.Metrics.RecordClaim()
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return claimed, claimed != "", nil
}

// MarkDone 將任務標記為 DONE
//
// filename 可以是完整路徑，只會使用其 base name。
func (c *Coordinator) MarkDone(ctx context.Context, filename string) error {
	name := filepath.Base(filename)
	return c.withLock(ctx, func() error {
		l, err := c.readLedger()
		if err != nil {
			return err
		}
		if err := l.Transition(name, types.StatusDone); err != nil {
			return err
		}
		if err := l.Write(c.LedgerPath()); err != nil {
			return err
		}

		c.appendJournal(c.journal.Record(journal.EventDone, name, c.cfg.Owner))
		c.observe(l)
		return nil
	})
}

// AllDone ledger 不存在或所有任務皆為 DONE 時回傳 true
//
// 先不持有 lock 讀取；只要看到未完成任務就直接回傳 false。
// ledger 以截斷後改寫的方式更新，未持 lock 的讀取可能看到空檔或被截斷的內容，
// 因此「全部完成」的結果（或讀到格式錯誤）一律在 lock 下重讀確認。
func (c *Coordinator) AllDone(ctx context.Context) (bool, error) {
	l, err := ledger.Read(c.LedgerPath())
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	if err == nil && !l.AllDone() {
		return false, nil
	}
	if err != nil && !errors.Is(err, ledger.ErrMalformedLine) {
		return false, err
	}

	err = c.withLock(ctx, func() error {
		var rerr error
		l, rerr = ledger.Read(c.LedgerPath())
		return rerr
	})
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return l.AllDone(), nil
}

// Status 讀取 ledger（不持有 lock，供顯示用）
func (c *Coordinator) Status() (*ledger.Ledger, error) {
	return c.readLedger()
}

// Reset 操作員手動將 IN_PROGRESS 任務放回 PENDING
func (c *Coordinator) Reset(ctx context.Context, filenames ...string) error {
	return c.withLock(ctx, func() error {
		l, err := c.readLedger()
		if err != nil {
			return err
		}

		events := make([]journal.Event, 0, len(filenames))
		for _, fn := range filenames {
			name := filepath.Base(fn)
			if err := l.Reset(name); err != nil {
				return err
			}
			events = append(events, c.journal.Record(journal.EventReset, name, c.cfg.Owner))
		}
		if err := l.Write(c.LedgerPath()); err != nil {
			return err
		}

		c.appendJournal(events...)
		c.log.Infow("Jobs reset to pending", "files", filenames)
		return nil
	})
}

// ForceUnlock 操作員手動移除 lock file
//
// 返回值：
//   - LockInfo: 被移除前的 lock 狀態（Held=false 代表原本就沒有 lock）
func (c *Coordinator) ForceUnlock(ctx context.Context) (LockInfo, error) {
	info, err := c.LockInfo()
	if err != nil {
		return info, err
	}
	if !info.Held {
		return info, nil
	}
	if err := os.Remove(c.LockPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return info, fmt.Errorf("coordinator: remove lock: %w", err)
	}

	c.log.Warnw("Lock removed by operator", "path", c.LockPath(), "previous_owner", info.Owner)
	err = c.withLock(ctx, func() error {
		c.appendJournal(c.journal.Record(journal.EventForceUnlock, info.Owner, c.cfg.Owner))
		return nil
	})
	return info, err
}

// ============================================================================
// 內部輔助方法
// ============================================================================

func (c *Coordinator) readLedger() (*ledger.Ledger, error) {
	l, err := ledger.Read(c.LedgerPath())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoLedger, c.LedgerPath())
	}
	return l, err
}

// appendJournal 寫入 journal；失敗只記錄，ledger 仍是真實來源
func (c *Coordinator) appendJournal(events ...journal.Event) {
	if err := c.journal.Append(events...); err != nil {
		c.log.Warnw("Failed to append journal", "path", c.journal.Path(), "error", err)
	}
}

func (c *Coordinator) observe(l *ledger.Ledger) {
	s := l.Stats()
	c.cfg.Metrics.UpdateLedgerStats(s.Pending, s.InProgress, s.Done)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
