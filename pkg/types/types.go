// Package types 定義了 geotile 系統中使用的核心領域模型
package types

import (
	"path/filepath"
	"strconv"

	"github.com/paulmach/orb"
)

// JobStatus 任務狀態（與 ledger 檔案中的字面值一致）
type JobStatus string

// 定義任務狀態常數
const (
	StatusPending    JobStatus = "PENDING"     // 待處理：ledger 建立時的初始狀態
	StatusInProgress JobStatus = "IN_PROGRESS" // 執行中：已被某個 worker 認領
	StatusDone       JobStatus = "DONE"        // 完成：輸出與圖磚清理皆已完成
)

// Valid 檢查狀態是否為已知值
func (s JobStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// Job 代表 ledger 中的一行：一個來源檔案與其處理狀態
type Job struct {
	Filename string    `json:"filename"` // 來源檔名（不含資料夾路徑）
	Status   JobStatus `json:"status"`   // 目前狀態
}

// GroupKeyField 為分類後附加到每個 feature 的屬性名稱，dissolve 以此欄位分組
const GroupKeyField = "group_key"

// Feature 幾何圖形加上屬性對照表，來自單一來源檔案
type Feature struct {
	Geometry   orb.Geometry   `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

// Outline 清理後的外環多邊形，標記其所屬群組
type Outline struct {
	GroupKey string      `json:"group_key"`
	Polygon  orb.Polygon `json:"polygon"`
}

// TileCoord XYZ 圖磚座標（y 向南遞增）
type TileCoord struct {
	Z int `json:"z"`
	X int `json:"x"`
	Y int `json:"y"`
}

// Path 回傳 root/{z}/{x}/{y}.ext
func (t TileCoord) Path(root, ext string) string {
	return filepath.Join(root, strconv.Itoa(t.Z), strconv.Itoa(t.X), strconv.Itoa(t.Y)+"."+ext)
}
