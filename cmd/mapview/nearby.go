package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/geomark/mapview/internal/config"
	"github.com/geomark/mapview/internal/geo"
	"github.com/geomark/mapview/internal/landmarks"
	"github.com/geomark/mapview/pkg/core"
	"github.com/spf13/cobra"
)

var (
	nearbyLat    float64
	nearbyLng    float64
	nearbyRadius float64
)

var nearbyCmd = &cobra.Command{
	Use:   "nearby",
	Short: "List catalog landmarks around a position, nearest first",
	RunE:  runNearby,
}

func init() {
	nearbyCmd.Flags().Float64Var(&nearbyLat, "lat", 0, "Latitude of the center")
	nearbyCmd.Flags().Float64Var(&nearbyLng, "lng", 0, "Longitude of the center")
	nearbyCmd.Flags().Float64VarP(&nearbyRadius, "radius", "r", 0, "Search radius in meters; defaults to the configured radius")
	_ = nearbyCmd.MarkFlagRequired("lat")
	_ = nearbyCmd.MarkFlagRequired("lng")
}

func runNearby(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	center := core.Position{Lat: nearbyLat, Lng: nearbyLng}
	if err := geo.Validate(&center); err != nil {
		return err
	}

	cfg := config.GetLandmarkConfig()
	radius := cfg.RadiusMeters
	if nearbyRadius > 0 {
		radius = nearbyRadius
	}

	catalog, err := landmarks.Open(ctx, cfg, zlog("landmarks"))
	if err != nil {
		return err
	}
	defer catalog.Close()

	found, err := catalog.Nearby(ctx, center, radius)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d landmarks within %.0fm of %s\n", len(found), radius, center)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tTITLE\tDISTANCE\tTAGS")
	for _, l := range found {
		fmt.Fprintf(tw, "%s\t%s\t%.0fm\t%v\n", l.Key(), l.Title, geo.DistanceMeters(center, *l.Position), l.Tags)
	}
	return tw.Flush()
}
