package report

// ============================================================================
// 職責說明：
// 1. 將單一任務的處理結果序列化為 manifest.json
// 2. 使用原子性寫入（temp file + rename）防止損壞
// 3. 載入時驗證 schema 版本相容性
// 4. 重新處理同一任務時直接覆蓋
// ============================================================================

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ============================================================================
// 錯誤定義
// ============================================================================

var (
	ErrCorruptedManifest   = errors.New("manifest file is corrupted")
	ErrIncompatibleVersion = errors.New("manifest schema version is incompatible")
	ErrManifestNotFound    = errors.New("manifest file not found")
)

// ManifestName 每個輸出目錄中的 manifest 檔名
const ManifestName = "manifest.json"

// SchemaVersion 目前的 manifest 版本
const SchemaVersion = 1

// ============================================================================
// 資料結構定義
// ============================================================================

// JobManifest 單一來源檔案的處理結果
type JobManifest struct {
	SchemaVer        int        `json:"schema_version"`
	File             string     `json:"file"`
	Worker           string     `json:"worker"`
	FeatureCount     int        `json:"feature_count"`
	GroupCount       int        `json:"group_count"`
	OutlineCount     int        `json:"outline_count"`
	RemovedOutlines  int        `json:"removed_outlines"`
	RepairedOutlines int        `json:"repaired_outlines"`
	EstimatedTiles   int64      `json:"estimated_tiles"`
	RenderedTiles    int        `json:"rendered_tiles"`
	PrunedTiles      int        `json:"pruned_tiles"`
	Extent           [4]float64 `json:"extent"` // minLon, minLat, maxLon, maxLat
	DurationMs       int64      `json:"duration_ms"`
	FinishedAt       time.Time  `json:"finished_at"`
}

// Manager manifest 讀寫
type Manager struct {
	path string     // manifest 檔案路徑
	mu   sync.Mutex // 保護檔案操作
}

// OutputDir 來源檔案的輸出目錄：<folder>/<檔名去除副檔名>
func OutputDir(folder, filename string) string {
	base := filepath.Base(filename)
	return filepath.Join(folder, strings.TrimSuffix(base, filepath.Ext(base)))
}

// NewManager 建立 manifest 管理器
func NewManager(outputDir string) *Manager {
	return &Manager{path: filepath.Join(outputDir, ManifestName)}
}

// Write 原子性寫入 manifest
//
// 使用原子性寫入流程：
// 1. 寫入臨時檔案（.tmp）
// 2. 使用 os.Rename 原子性替換原始檔案
func (m *Manager) Write(data JobManifest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data.SchemaVer = SchemaVersion

	jsonBytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	tmpPath := m.path + ".tmp"
	if err := os.WriteFile(tmpPath, jsonBytes, 0o644); err != nil {
		return fmt.Errorf("failed to write temp manifest: %w", err)
	}
	if err := os.Rename(tmpPath, m.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename manifest: %w", err)
	}
	return nil
}

// Load 載入 manifest
//
// 返回值：
//   - JobManifest: manifest 資料
//   - error: 不存在時為 ErrManifestNotFound；損壞或版本不符時回傳對應錯誤
func (m *Manager) Load() (JobManifest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var data JobManifest
	jsonBytes, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return data, ErrManifestNotFound
		}
		return data, fmt.Errorf("failed to read manifest: %w", err)
	}

	if err := json.Unmarshal(jsonBytes, &data); err != nil {
		return data, fmt.Errorf("%w: %v", ErrCorruptedManifest, err)
	}
	if data.SchemaVer != SchemaVersion {
		return data, fmt.Errorf("%w: got %d, want %d", ErrIncompatibleVersion, data.SchemaVer, SchemaVersion)
	}
	return data, nil
}

// Exists 檢查 manifest 是否存在
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

// GetPath 取得 manifest 路徑
func (m *Manager) GetPath() string {
	return m.path
}
