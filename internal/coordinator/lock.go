package coordinator

// ============================================================================
// Lock file - 跨行程互斥
// ============================================================================
//
// 機制:
//   os.OpenFile(O_CREATE|O_EXCL) 是唯一的互斥原語：檔案存在 = lock 被持有。
//   建立者即持有者，沒有重入、沒有公平性、沒有死結偵測。
//
// Lease 模式 (LeaseTTL > 0):
//   marker 內容為 "<owner>,<unix-ms>\n"。等待逾時時，若 lease 已超過 TTL，
//   回傳 ErrStaleLock 並指出持有者與存在時間。stale lock 只會被標記，
//   永遠不會被自動刪除；由操作員執行 `geotile unlock` 處理。
//
// 相容模式 (LeaseTTL == 0):
//   marker 為零位元組檔案，與既有 job folder 完全相容。
//
// ============================================================================

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// LockError 取得 lock 失敗的詳細資訊
type LockError struct {
	Path   string        // lock file 路徑
	Owner  string        // lease 持有者（相容模式下為空）
	Age    time.Duration // lease 存在時間（相容模式下為 0）
	Waited time.Duration // 實際等待時間
	Stale  bool          // lease 是否已超過 TTL
}

func (e *LockError) Error() string {
	if e.Stale {
		return fmt.Sprintf("coordinator: stale lock %s held by %s for %s (waited %s)",
			e.Path, e.Owner, e.Age.Round(time.Millisecond), e.Waited.Round(time.Millisecond))
	}
	if e.Owner != "" {
		return fmt.Sprintf("coordinator: timeout waiting for lock %s held by %s (waited %s)",
			e.Path, e.Owner, e.Waited.Round(time.Millisecond))
	}
	return fmt.Sprintf("coordinator: timeout waiting for lock %s (waited %s)",
		e.Path, e.Waited.Round(time.Millisecond))
}

// Unwrap 讓 errors.Is 同時匹配 ErrLockTimeout 與（若適用）ErrStaleLock
func (e *LockError) Unwrap() []error {
	if e.Stale {
		return []error{ErrLockTimeout, ErrStaleLock}
	}
	return []error{ErrLockTimeout}
}

// Lock 已取得的 lock
type Lock struct {
	path  string
	owner string
	log   *zap.SugaredLogger
}

// Release 刪除 lock file
//
// 刪除失敗（例如已被操作員移除）只會記錄，不會往上傳遞。
func (l *Lock) Release() {
	if l == nil {
		return
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		l.log.Warnw("Failed to release lock", "path", l.path, "error", err)
	}
}

// LockInfo lock file 的目前狀態
type LockInfo struct {
	Held     bool
	Owner    string
	Acquired time.Time
}

// AcquireLock 以固定間隔輪詢，直到取得 lock 或逾時
//
// 參數：
//   - ctx: 取消等待用
//   - timeout: 最長等待時間（<= 0 時使用設定值）
//
// 返回值：
//   - *Lock: 取得的 lock，使用完畢必須呼叫 Release()
//   - error: *LockError（errors.Is ErrLockTimeout / ErrStaleLock）或 ctx.Err()
func (c *Coordinator) AcquireLock(ctx context.Context, timeout time.Duration) (*Lock, error) {
	if timeout <= 0 {
		timeout = c.cfg.LockTimeout
	}
	path := c.LockPath()
	start := c.now()

	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			if c.cfg.LeaseTTL > 0 {
				body := c.cfg.Owner + "," + strconv.FormatInt(c.now().UnixMilli(), 10) + "\n"
				if _, werr := f.WriteString(body); werr != nil {
					c.log.Warnw("Failed to write lease", "path", path, "error", werr)
				}
			}
			if cerr := f.Close(); cerr != nil {
				c.log.Warnw("Failed to close lock file", "path", path, "error", cerr)
			}
			c.cfg.Metrics.RecordLockWait(c.now().Sub(start).Seconds())
			return &Lock{path: path, owner: c.cfg.Owner, log: c.log}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("coordinator: create lock %s: %w", path, err)
		}

		waited := c.now().Sub(start)
		if waited >= timeout {
			return nil, c.timeoutError(path, waited)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.cfg.PollInterval):
		}
	}
}

// timeoutError 建立逾時錯誤，並在 lease 模式下判斷是否為 stale lock
func (c *Coordinator) timeoutError(path string, waited time.Duration) error {
	lockErr := &LockError{Path: path, Waited: waited}
	info, err := readLease(path)
	if err == nil && info.Owner != "" {
		lockErr.Owner = info.Owner
		lockErr.Age = c.now().Sub(info.Acquired)
		if c.cfg.LeaseTTL > 0 && lockErr.Age > c.cfg.LeaseTTL {
			lockErr.Stale = true
		}
	}

	if lockErr.Stale {
		c.cfg.Metrics.RecordLockTimeout("stale")
		c.log.Warnw("Stale lock detected; manual intervention required",
			"path", path, "owner", lockErr.Owner, "age", lockErr.Age)
	} else {
		c.cfg.Metrics.RecordLockTimeout("timeout")
	}
	return lockErr
}

// LockInfo 讀取 lock file 的狀態（不取得 lock）
func (c *Coordinator) LockInfo() (LockInfo, error) {
	info, err := readLease(c.LockPath())
	if errors.Is(err, fs.ErrNotExist) {
		return LockInfo{}, nil
	}
	if err != nil {
		return LockInfo{}, err
	}
	return info, nil
}

// withLock 在持有 lock 的情況下執行 fn
func (c *Coordinator) withLock(ctx context.Context, fn func() error) error {
	lock, err := c.AcquireLock(ctx, c.cfg.LockTimeout)
	if err != nil {
		return err
	}
	defer lock.Release()
	return fn()
}

// readLease 解析 lock file 內容；零位元組 marker 只回傳 Held=true
func readLease(path string) (LockInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return LockInfo{}, err
	}
	info := LockInfo{Held: true}
	owner, ms, ok := strings.Cut(strings.TrimSpace(string(data)), ",")
	if !ok {
		return info, nil
	}
	n, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return info, nil
	}
	info.Owner = owner
	info.Acquired = time.UnixMilli(n)
	return info, nil
}
