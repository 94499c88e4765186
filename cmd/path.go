package main

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/1F47E/imagery-dater/pkg/config"
	"github.com/1F47E/imagery-dater/pkg/path"
)

// maxGapMinutes keeps the gap within time.Duration
const maxGapMinutes = float64(math.MaxInt64 / int64(time.Minute))

func newPathCmd() *cobra.Command {
	var (
		configPath string
		outPath    string
	)

	cmd := &cobra.Command{
		Use:   "path <captures.csv> [gap-minutes]",
		Short: "Split resolved captures into trips and export them as GeoJSON",
		Long: `Sort captures by time and start a new trip whenever two consecutive
captures are more than gap-minutes apart. Each trip becomes a LineString in
<name>_path.geojson next to the input file.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			gap := cfg.Path.SegmentGap
			if len(args) == 2 {
				minutes, err := strconv.ParseFloat(args[1], 64)
				if err != nil || minutes < 0 || math.IsNaN(minutes) || minutes > maxGapMinutes {
					return fmt.Errorf("invalid gap %q: want a non-negative number of minutes", args[1])
				}
				gap = time.Duration(minutes * float64(time.Minute))
			}

			if outPath == "" {
				base := strings.TrimSuffix(args[0], filepath.Ext(args[0]))
				outPath = base + "_path.geojson"
			}

			return runPath(cmd, args[0], outPath, gap)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file path")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output GeoJSON path (default <name>_path.geojson)")
	return cmd
}

func runPath(cmd *cobra.Command, csvPath, outPath string, gap time.Duration) error {
	out := cmd.OutOrStdout()

	in, err := os.Open(csvPath)
	if err != nil {
		return fmt.Errorf("failed to open captures: %w", err)
	}
	captures, err := path.ReadCSV(in)
	in.Close()
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", csvPath, err)
	}

	segments := path.Split(captures, gap)

	file, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := path.WriteGeoJSON(file, segments); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}

	fmt.Fprintf(out, "Split %d captures into %d trips (gap %v)\n", len(captures), len(segments), gap)
	for i, s := range segments {
		fmt.Fprintf(out, "  %d. %s  %3d captures  %v\n",
			i+1, s.Start().UTC().Format(time.RFC3339), len(s.Captures), s.Duration())
	}
	fmt.Fprintf(out, "Saved %s\n", outPath)
	return nil
}
