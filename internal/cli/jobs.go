package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ChuLiYu/geotile/internal/coordinator"
	"github.com/ChuLiYu/geotile/internal/report"
)

// ============================================================================
// status
// ============================================================================

func (a *app) buildStatusCommand() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "status <folder>",
		Short: "Show job folder status",
		Long:  "Display ledger statistics, the lock holder and every job's status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := a.load()
			if err != nil {
				return err
			}
			coord := coordinator.New(args[0], cfg.jobsConfig(log, nil))
			if !watch {
				return printStatus(cmd.OutOrStdout(), coord)
			}
			return watchStatus(cmd.Context(), cmd.OutOrStdout(), coord, log)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "reprint whenever the ledger changes")
	return cmd
}

func printStatus(w io.Writer, coord *coordinator.Coordinator) error {
	l, err := coord.Status()
	if err != nil {
		return err
	}
	stats := l.Stats()

	fmt.Fprintln(w, titleStyle.Render("Folder: "+coord.Folder()))
	fmt.Fprintf(w, "  ├─ Total:       %d\n", stats.Total())
	fmt.Fprintf(w, "  ├─ Pending:     %d\n", stats.Pending)
	fmt.Fprintf(w, "  ├─ In progress: %d\n", stats.InProgress)
	fmt.Fprintf(w, "  └─ Done:        %d\n", stats.Done)

	info, err := coord.LockInfo()
	switch {
	case err != nil:
		fmt.Fprintf(w, "Lock: unreadable (%v)\n", err)
	case !info.Held:
		fmt.Fprintln(w, "Lock: free")
	case info.Owner == "":
		fmt.Fprintln(w, warnStyle.Render("Lock: held"))
	default:
		fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("Lock: held by %s for %s", info.Owner, time.Since(info.Acquired).Round(time.Second))))
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tSTATUS")
	for _, j := range l.Jobs {
		fmt.Fprintf(tw, "%s\t%s\n", j.Filename, renderStatus(j.Status))
	}
	return tw.Flush()
}

// watchStatus 在 ledger 被改寫時重新輸出
//
// ledger 以整檔改寫方式更新，因此監看所在目錄並過濾檔名。
func watchStatus(ctx context.Context, w io.Writer, coord *coordinator.Coordinator, log *zap.SugaredLogger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(coord.Folder()); err != nil {
		return fmt.Errorf("failed to watch %s: %w", coord.Folder(), err)
	}
	if err := printStatus(w, coord); err != nil {
		log.Warnw("Status unavailable", "error", err)
	}

	ledgerName := filepath.Base(coord.LedgerPath())
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != ledgerName || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			if err := printStatus(w, coord); err != nil {
				log.Warnw("Status unavailable", "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warnw("Watcher error", "error", err)
		}
	}
}

// ============================================================================
// reset / unlock
// ============================================================================

func (a *app) buildResetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <folder> <file>...",
		Short: "Reset jobs to PENDING",
		Long:  "Operator reset: return stuck IN_PROGRESS jobs to PENDING so they are claimed again. DONE jobs are final.",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := a.load()
			if err != nil {
				return err
			}
			coord := coordinator.New(args[0], cfg.jobsConfig(log, nil))
			if err := coord.Reset(cmd.Context(), args[1:]...); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reset %d job(s) to PENDING\n", len(args)-1)
			return nil
		},
	}
}

func (a *app) buildUnlockCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "unlock <folder>",
		Short: "Remove a stuck lock file",
		Long:  "Operator removal of the lock file left behind by a crashed worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := a.load()
			if err != nil {
				return err
			}
			coord := coordinator.New(args[0], cfg.jobsConfig(log, nil))
			info, err := coord.ForceUnlock(cmd.Context())
			if err != nil {
				return err
			}
			switch {
			case !info.Held:
				fmt.Fprintln(cmd.OutOrStdout(), "Lock was not held")
			case info.Owner != "":
				fmt.Fprintf(cmd.OutOrStdout(), "Removed lock held by %s\n", info.Owner)
			default:
				fmt.Fprintln(cmd.OutOrStdout(), "Removed lock")
			}
			return nil
		},
	}
}

// ============================================================================
// report
// ============================================================================

func (a *app) buildReportCommand() *cobra.Command {
	var xlsxPath, sqlitePath string

	cmd := &cobra.Command{
		Use:   "report <folder>",
		Short: "Per-job report from ledger, journal and manifests",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := a.load()
			if err != nil {
				return err
			}
			coord := coordinator.New(args[0], cfg.jobsConfig(log, nil))

			l, err := coord.Status()
			if err != nil {
				return err
			}
			events, stats, err := coord.Journal().ReadAll()
			if err != nil {
				return err
			}
			if stats.Corrupted > 0 {
				log.Warnw("Skipped corrupted journal entries", "count", stats.Corrupted)
			}

			rows, err := report.Collect(coord.Folder(), l.Jobs, events)
			if err != nil {
				return err
			}
			if err := printReport(cmd.OutOrStdout(), rows); err != nil {
				return err
			}

			if xlsxPath != "" {
				if err := report.WriteXLSX(xlsxPath, rows); err != nil {
					return err
				}
				log.Infow("Wrote XLSX report", "path", xlsxPath, "rows", len(rows))
			}
			if sqlitePath != "" {
				if err := report.WriteSQLite(cmd.Context(), sqlitePath, rows); err != nil {
					return err
				}
				log.Infow("Wrote SQLite report", "path", sqlitePath, "rows", len(rows))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "write the report as an Excel workbook")
	cmd.Flags().StringVar(&sqlitePath, "sqlite", "", "upsert the report into a SQLite database")
	return cmd
}

func printReport(w io.Writer, rows []report.Row) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tSTATUS\tWORKER\tCLAIMS\tDURATION\tOUTLINES\tTILES\tPRUNED")
	for _, r := range rows {
		outlines, tilesOut, pruned := "-", "-", "-"
		if r.Manifest != nil {
			outlines = fmt.Sprint(r.Manifest.OutlineCount)
			tilesOut = fmt.Sprint(r.Manifest.RenderedTiles)
			pruned = fmt.Sprint(r.Manifest.PrunedTiles)
		}
		dur := "-"
		if d := r.Duration(); d > 0 {
			dur = d.Round(time.Millisecond).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			r.File, renderStatus(r.Status), r.Worker, r.Claims, dur, outlines, tilesOut, pruned)
	}
	return tw.Flush()
}
