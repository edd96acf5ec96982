package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/spf13/cobra"

	"github.com/ChuLiYu/geotile/internal/prune"
	"github.com/ChuLiYu/geotile/internal/tiles"
)

func (a *app) buildEstimateCommand() *cobra.Command {
	var bbox string
	var zmin, zmax int

	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate the tile count for a bounding box",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := a.load()
			if err != nil {
				return err
			}
			b, err := parseBBox(bbox)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("zmin") {
				zmin = cfg.Tiles.ZoomMin
			}
			if !cmd.Flags().Changed("zmax") {
				zmax = cfg.Tiles.ZoomMax
			}

			w := cmd.OutOrStdout()
			for _, s := range tiles.Spans(b, zmin, zmax) {
				fmt.Fprintf(w, "z%-2d x %d..%d  y %d..%d  %d tiles\n", s.Z, s.MinX, s.MaxX, s.MinY, s.MaxY, s.Count())
			}
			fmt.Fprintf(w, "Total: %d tiles (z%d-z%d)\n", tiles.EstimateTileCount(b, zmin, zmax), zmin, zmax)
			return nil
		},
	}

	cmd.Flags().StringVar(&bbox, "bbox", "", "minLon,minLat,maxLon,maxLat")
	cmd.Flags().IntVar(&zmin, "zmin", 0, "minimum zoom (default from config)")
	cmd.Flags().IntVar(&zmax, "zmax", 0, "maximum zoom (default from config)")
	_ = cmd.MarkFlagRequired("bbox")
	return cmd
}

// parseBBox 解析 "minLon,minLat,maxLon,maxLat"
func parseBBox(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("bbox must have 4 comma-separated values, got %d", len(parts))
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("bbox value %q: %w", p, err)
		}
		v[i] = f
	}
	if v[0] > v[2] || v[1] > v[3] {
		return orb.Bound{}, fmt.Errorf("bbox min exceeds max: %s", s)
	}
	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}

func (a *app) buildPruneCommand() *cobra.Command {
	var workers int

	cmd := &cobra.Command{
		Use:   "prune <dir>",
		Short: "Delete fully transparent tiles under a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := a.load()
			if err != nil {
				return err
			}
			pc := cfg.pruneConfig(log, nil)
			pc.Workers = workers

			p := prune.New(pc)
			sum, err := p.Prune(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Scanned:       %d\n", sum.Scanned)
			fmt.Fprintf(w, "Removed:       %d\n", sum.Removed)
			fmt.Fprintf(w, "Skipped large: %d\n", sum.SkippedLarge)
			fmt.Fprintf(w, "Decode failed: %d\n", sum.DecodeFailed)
			fmt.Fprintf(w, "Delete failed: %d\n", sum.DeleteFailed)
			fmt.Fprintf(w, "Batches:       %d (workers %d)\n", sum.Batches, p.WorkerCount())
			return nil
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 0, "worker count override (default min(max_workers, CPUs*multiplier))")
	return cmd
}
