package report

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	_ "modernc.org/sqlite"
)

const sheetName = "Jobs"

var headers = []string{
	"File",
	"Status",
	"Worker",
	"Claims",
	"Claimed At",
	"Done At",
	"Features",
	"Groups",
	"Outlines",
	"Removed Outlines",
	"Estimated Tiles",
	"Rendered Tiles",
	"Pruned Tiles",
	"Duration (ms)",
}

// values 一列的輸出值，順序與 headers 相同
func (r Row) values() []any {
	v := []any{
		r.File,
		string(r.Status),
		r.Worker,
		r.Claims,
		formatTime(r.ClaimedAt),
		formatTime(r.DoneAt),
	}
	if m := r.Manifest; m != nil {
		return append(v, m.FeatureCount, m.GroupCount, m.OutlineCount, m.RemovedOutlines,
			m.EstimatedTiles, m.RenderedTiles, m.PrunedTiles, m.DurationMs)
	}
	return append(v, nil, nil, nil, nil, nil, nil, nil, nil)
}

// WriteXLSX 將報表寫成 Excel 活頁簿
func WriteXLSX(path string, rows []Row) error {
	f := excelize.NewFile()
	defer f.Close()

	if index, _ := f.GetSheetIndex(sheetName); index == -1 {
		if _, err := f.NewSheet(sheetName); err != nil {
			return err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheetName)
	f.SetActiveSheet(activeIndex)
	_ = f.DeleteSheet("Sheet1")

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return err
		}
	}

	for r, row := range rows {
		for c, v := range row.values() {
			if v == nil {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return err
			}
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 36) // file
	_ = f.SetColWidth(sheetName, "B", "C", 16) // status, worker
	_ = f.SetColWidth(sheetName, "E", "F", 22) // timestamps
	_ = f.SetColWidth(sheetName, "G", "N", 14) // counters

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

const schema = `CREATE TABLE IF NOT EXISTS jobs (
	file             TEXT PRIMARY KEY,
	status           TEXT NOT NULL,
	worker           TEXT,
	claims           INTEGER NOT NULL DEFAULT 0,
	claimed_at       TEXT,
	done_at          TEXT,
	features         INTEGER,
	groups_count     INTEGER,
	outlines         INTEGER,
	removed_outlines INTEGER,
	estimated_tiles  INTEGER,
	rendered_tiles   INTEGER,
	pruned_tiles     INTEGER,
	duration_ms      INTEGER
)`

const upsert = `INSERT INTO jobs (
	file, status, worker, claims, claimed_at, done_at,
	features, groups_count, outlines, removed_outlines,
	estimated_tiles, rendered_tiles, pruned_tiles, duration_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(file) DO UPDATE SET
	status = excluded.status,
	worker = excluded.worker,
	claims = excluded.claims,
	claimed_at = excluded.claimed_at,
	done_at = excluded.done_at,
	features = excluded.features,
	groups_count = excluded.groups_count,
	outlines = excluded.outlines,
	removed_outlines = excluded.removed_outlines,
	estimated_tiles = excluded.estimated_tiles,
	rendered_tiles = excluded.rendered_tiles,
	pruned_tiles = excluded.pruned_tiles,
	duration_ms = excluded.duration_ms`

// WriteSQLite 將報表寫入 SQLite 資料庫的 jobs 表（依 file upsert）
func WriteSQLite(ctx context.Context, path string, rows []Row) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create jobs table: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, upsert)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.values()...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert %s: %w", r.File, err)
		}
	}
	return tx.Commit()
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
