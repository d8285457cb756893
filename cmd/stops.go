package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"tcat.dev/transit/model"
	"tcat.dev/transit/parse"
)

var stopsCmd = &cobra.Command{
	Use:   "stops [lat lng] [limit]",
	Short: "Lists stops near a geographical location",
	Args:  cobra.RangeArgs(0, 3),
	RunE:  stops,
}

var stopsImportCmd = &cobra.Command{
	Use:   "import <stops.txt>",
	Short: "Replaces the stop catalog with a GTFS stops file",
	Args:  cobra.ExactArgs(1),
	RunE:  stopsImport,
}

var stopsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Writes the stop catalog as CSV",
	Args:  cobra.NoArgs,
	RunE:  stopsExport,
}

func init() {
	stopsCmd.AddCommand(stopsImportCmd)
	stopsCmd.AddCommand(stopsExportCmd)
	rootCmd.AddCommand(stopsCmd)
}

func stops(cmd *cobra.Command, args []string) error {
	var lat, lng float64
	var limit int
	var err error

	gotLocation := false
	if len(args) == 1 {
		return fmt.Errorf("missing lng")
	}
	if len(args) >= 2 {
		gotLocation = true
		lat, err = strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid lat: %w", err)
		}
		lng, err = strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid lng: %w", err)
		}
	}
	if len(args) == 3 {
		limit, err = strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid limit: %w", err)
		}
		if limit < 0 {
			return fmt.Errorf("limit must be >= 0")
		}
	}

	m, cleanup, err := loadManager(context.Background())
	if err != nil {
		return err
	}
	defer cleanup()

	var found []model.Stop
	if gotLocation {
		found, err = m.NearbyStops(lat, lng, limit)
	} else {
		found, err = m.Stops()
		sort.Slice(found, func(i, j int) bool {
			return found[i].Name < found[j].Name
		})
	}
	if err != nil {
		return err
	}

	for _, stop := range found {
		if gotLocation {
			miles := model.MetersToMiles(model.Distance(model.Coordinate{Lat: lat, Lng: lng}, stop.Coordinate()))
			fmt.Printf("%s: %s (%.2f mi)\n", stop.ID, stop.Name, miles)
			continue
		}
		fmt.Printf("%s: %s\n", stop.ID, stop.Name)
	}

	return nil
}

func stopsImport(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("opening %s: %w", args[0], err)
	}
	defer f.Close()

	m, cleanup, err := loadManager(context.Background())
	if err != nil {
		return err
	}
	defer cleanup()

	n, err := m.ImportStops(f)
	if err != nil {
		return err
	}

	fmt.Printf("Imported %d stops\n", n)
	return nil
}

func stopsExport(cmd *cobra.Command, args []string) error {
	m, cleanup, err := loadManager(context.Background())
	if err != nil {
		return err
	}
	defer cleanup()

	found, err := m.Stops()
	if err != nil {
		return err
	}

	return parse.WriteStops(os.Stdout, found)
}
