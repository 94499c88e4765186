package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/1F47E/imagery-dater/pkg/config"
	"github.com/1F47E/imagery-dater/pkg/models"
	"github.com/1F47E/imagery-dater/pkg/rtree"
	"github.com/1F47E/imagery-dater/pkg/sink"
)

type queryOptions struct {
	configPath string
	indexFile  string
	queryType  string
	// Box query parameters
	minLat, maxLat, minLng, maxLng float64
	// Radius and nearest query parameters
	lat, lng float64
	radius   float64
	k        int
	// Output
	outputJSON bool
	limit      int
	postgis    bool
}

func newQueryCmd() *cobra.Command {
	opts := &queryOptions{}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Search resolved captures by area",
		Long: `Search the capture index (or PostGIS with --postgis) for captures inside a
bounding box, within a radius of a point, or nearest to a point.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "Config file path")
	f.StringVarP(&opts.indexFile, "index", "i", "", "Capture index file (default from config)")
	f.StringVarP(&opts.queryType, "type", "t", "radius", "Query type: box, radius, nearest")
	f.Float64Var(&opts.minLat, "min-lat", 0, "Minimum latitude (box query)")
	f.Float64Var(&opts.maxLat, "max-lat", 0, "Maximum latitude (box query)")
	f.Float64Var(&opts.minLng, "min-lng", 0, "Minimum longitude (box query)")
	f.Float64Var(&opts.maxLng, "max-lng", 0, "Maximum longitude (box query)")
	f.Float64Var(&opts.lat, "lat", 0, "Center latitude (radius/nearest query)")
	f.Float64Var(&opts.lng, "lng", 0, "Center longitude (radius/nearest query)")
	f.Float64Var(&opts.radius, "radius-km", 1, "Radius in km (radius query)")
	f.IntVar(&opts.k, "k", 10, "Number of nearest captures (nearest query)")
	f.BoolVar(&opts.outputJSON, "json", false, "Output results as JSON")
	f.IntVar(&opts.limit, "limit", 100, "Maximum number of results to display")
	f.BoolVar(&opts.postgis, "postgis", false, "Query PostGIS instead of the index file (box only)")

	return cmd
}

func runQuery(cmd *cobra.Command, opts *queryOptions) error {
	out := cmd.OutOrStdout()

	if opts.limit < 0 {
		return fmt.Errorf("limit must not be negative, got %d", opts.limit)
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.indexFile == "" {
		opts.indexFile = cfg.Index.File
	}

	center := models.Location{Lat: opts.lat, Lng: opts.lng}
	box := models.BoundingBox{
		BottomLeft: models.Location{Lat: opts.minLat, Lng: opts.minLng},
		TopRight:   models.Location{Lat: opts.maxLat, Lng: opts.maxLng},
	}

	var results []models.Capture

	if opts.postgis {
		if opts.queryType != "box" {
			return errors.New("postgis supports box queries only")
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		db, err := sink.NewPostGIS(ctx, cfg.PostGISConfig())
		if err != nil {
			return err
		}
		defer db.Close()

		results, err = db.QueryBox(ctx, box)
		if err != nil {
			return fmt.Errorf("box query failed: %w", err)
		}
	} else {
		if opts.indexFile == "" {
			return errors.New("no capture index file configured")
		}
		index := rtree.NewCaptureIndex()
		if err := index.LoadFromFile(opts.indexFile); err != nil {
			return fmt.Errorf("failed to load index: %w", err)
		}

		switch opts.queryType {
		case "box":
			if box == (models.BoundingBox{}) {
				return errors.New("box query requires --min-lat, --max-lat, --min-lng, --max-lng")
			}
			results = index.QueryBox(box)
		case "radius":
			results = index.QueryRadius(center, opts.radius)
		case "nearest":
			results = index.NearestNeighbors(center, opts.k)
		default:
			return fmt.Errorf("unknown query type: %s", opts.queryType)
		}
	}

	total := len(results)
	if len(results) > opts.limit {
		results = results[:opts.limit]
	}

	if opts.outputJSON {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(results)
	}

	fmt.Fprintf(out, "Found %d captures\n", total)
	for i, c := range results {
		line := fmt.Sprintf("%d. %s: (%s)", i+1, c.Timestamp.UTC().Format(time.RFC3339), c.Location)
		if opts.queryType != "box" {
			line += fmt.Sprintf(" - %.2f km", rtree.Distance(center, c.Location))
		}
		fmt.Fprintln(out, line)
	}
	if total > len(results) {
		fmt.Fprintf(out, "Showing first %d results (use --limit to see more)\n", len(results))
	}
	return nil
}
