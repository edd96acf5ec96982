package main

// ============================================================================
// 職責說明：
// 1. 產生一個示範用 job folder（合成的 GeoJSON 地塊）
// 2. 以多個 in-process worker 處理，期間持續輸出 ledger 狀態
// 3. recover 模式：把 Ctrl+C 留下的 IN_PROGRESS 任務放回 PENDING 後繼續
//
// 使用方式：
//   go run ./cmd/demo start  /tmp/geotile-demo
//   (Ctrl+C 中斷)
//   go run ./cmd/demo recover /tmp/geotile-demo
// ============================================================================

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/ChuLiYu/geotile/internal/coordinator"
	"github.com/ChuLiYu/geotile/internal/pipeline"
	"github.com/ChuLiYu/geotile/pkg/types"
)

const (
	demoFiles   = 24
	demoWorkers = 4
)

func main() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: go run ./cmd/demo <start|recover> <folder>")
		os.Exit(1)
	}
	mode, folder := os.Args[1], os.Args[2]

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	coord := coordinator.New(folder, coordinator.DefaultConfig())

	switch mode {
	case "start":
		if _, err := coord.Status(); err == nil {
			fmt.Printf("⚠️  %s already has a ledger; run 'recover' to continue it\n", folder)
			os.Exit(1)
		}
		if err := writeDemoFolder(folder, demoFiles); err != nil {
			log.Fatalw("Failed to write demo folder", "error", err)
		}
		fmt.Printf("✓ Wrote %d GeoJSON files to %s\n", demoFiles, folder)
		fmt.Printf("💡 Press Ctrl+C while jobs are running to leave some IN_PROGRESS\n\n")

	case "recover":
		l, err := coord.Status()
		if err != nil {
			log.Fatalw("No ledger to recover", "error", err)
		}
		var stuck []string
		for _, j := range l.Jobs {
			if j.Status == types.StatusInProgress {
				stuck = append(stuck, j.Filename)
			}
		}
		printStats("Status before recovery", coord)
		if len(stuck) > 0 {
			if err := coord.Reset(ctx, stuck...); err != nil {
				log.Fatalw("Reset failed", "error", err)
			}
			fmt.Printf("\n✓ Reset %d interrupted job(s) to PENDING\n\n", len(stuck))
		}

	default:
		fmt.Printf("unknown mode %q\n", mode)
		os.Exit(1)
	}

	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				printStats("Status", coord)
			}
		}
	}()

	err = pipeline.RunWorkers(ctx, pipeline.Config{
		Folder:   folder,
		Jobs:     coordinator.DefaultConfig(),
		ZoomMin:  12,
		ZoomMax:  15,
		IdleWait: 500 * time.Millisecond,
		Logger:   log,
	}, demoWorkers)

	switch {
	case err == nil:
		printStats("Final status", coord)
		fmt.Println("\n✓ All jobs done")
	case errors.Is(err, context.Canceled):
		printStats("Interrupted", coord)
		fmt.Printf("\n💡 Run 'go run ./cmd/demo recover %s' to finish\n", folder)
	default:
		log.Fatalw("Workers stopped", "error", err)
	}
}

func printStats(title string, coord *coordinator.Coordinator) {
	l, err := coord.Status()
	if err != nil {
		return
	}
	s := l.Stats()
	fmt.Printf("📊 %s: Pending=%d, In-Progress=%d, Done=%d\n", title, s.Pending, s.InProgress, s.Done)
}

// writeDemoFolder 產生 n 個 GeoJSON 檔：每個檔案有一塊大地塊、其中的小地塊，
// 以及一塊不同分組的相鄰地塊
func writeDemoFolder(folder string, n int) error {
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		x := 121.50 + float64(i%6)*0.01
		y := 25.00 + float64(i/6)*0.01

		fc := geojson.NewFeatureCollection()
		fc.Append(parcel(square(x, y, 0.008), "MU", "12", nil))
		fc.Append(parcel(square(x+0.002, y+0.002, 0.002), "MU", "12", nil))
		fc.Append(parcel(square(x+0.0085, y, 0.001), "MT", "7", "3"))

		data, err := fc.MarshalJSON()
		if err != nil {
			return err
		}
		name := filepath.Join(folder, fmt.Sprintf("parcel_%02d.geojson", i))
		if err := os.WriteFile(name, data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func parcel(p orb.Polygon, typ, m string, mn any) *geojson.Feature {
	f := geojson.NewFeature(p)
	f.Properties["Type"] = typ
	f.Properties["M"] = m
	f.Properties["MN"] = mn
	return f
}

func square(x, y, size float64) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}, {x, y},
	}}
}
