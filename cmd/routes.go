package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"

	"tcat.dev/transit"
	"tcat.dev/transit/model"
	"tcat.dev/transit/parse"
	"tcat.dev/transit/storage"
)

var (
	routesStartName string
	routesEndName   string
	routesAt        string
	routesArriveBy  bool
	routesCSV       bool
	routesRaw       bool
	routesTrip      string
)

var routesCmd = &cobra.Command{
	Use:   "routes <start lat,lng> <end lat,lng>",
	Short: "Request bus routes between two points",
	Args:  cobra.ExactArgs(2),
	RunE:  routes,
}

var showCmd = &cobra.Command{
	Use:   "show <route-id>",
	Short: "Print a stored route",
	Args:  cobra.ExactArgs(1),
	RunE:  show,
}

var summaryCmd = &cobra.Command{
	Use:   "summary <route-id>",
	Short: "Describe a stored route in one paragraph",
	Args:  cobra.ExactArgs(1),
	RunE:  summary,
}

var savedCmd = &cobra.Command{
	Use:   "saved",
	Short: "List stored routes",
	Args:  cobra.NoArgs,
	RunE:  saved,
}

var forgetCmd = &cobra.Command{
	Use:   "forget <route-id>",
	Short: "Delete a stored route and its delay history",
	Args:  cobra.ExactArgs(1),
	RunE:  forget,
}

func init() {
	routesCmd.Flags().StringVarP(&routesStartName, "from", "", "", "Name of the starting point")
	routesCmd.Flags().StringVarP(&routesEndName, "to", "", "", "Name of the destination")
	routesCmd.Flags().StringVarP(&routesAt, "at", "", "", "Departure time, RFC3339 (default now)")
	routesCmd.Flags().BoolVarP(&routesArriveBy, "arrive-by", "", false, "Treat --at as arrival time")

	for _, c := range []*cobra.Command{routesCmd, showCmd} {
		c.Flags().BoolVarP(&routesCSV, "csv", "", false, "Print directions as CSV")
		c.Flags().BoolVarP(&routesRaw, "raw", "", false, "Print raw directions instead of display directions")
	}

	savedCmd.Flags().StringVarP(&routesTrip, "trip", "", "", "Only routes riding this trip")

	rootCmd.AddCommand(routesCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(savedCmd)
	rootCmd.AddCommand(forgetCmd)
}

func parseCoordinate(s string) (model.Coordinate, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return model.Coordinate{}, fmt.Errorf("'%s' is not on form <lat>,<lng>", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return model.Coordinate{}, fmt.Errorf("parsing latitude '%s': %w", parts[0], err)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return model.Coordinate{}, fmt.Errorf("parsing longitude '%s': %w", parts[1], err)
	}
	return model.Coordinate{Lat: lat, Lng: lng}, nil
}

func routes(cmd *cobra.Command, args []string) error {
	start, err := parseCoordinate(args[0])
	if err != nil {
		return err
	}
	end, err := parseCoordinate(args[1])
	if err != nil {
		return err
	}

	q := transit.RouteQuery{
		Start:     start,
		End:       end,
		StartName: routesStartName,
		EndName:   routesEndName,
		ArriveBy:  routesArriveBy,
	}
	if routesAt != "" {
		q.Time, err = time.Parse(time.RFC3339, routesAt)
		if err != nil {
			return fmt.Errorf("parsing --at: %w", err)
		}
	}

	ctx := context.Background()
	m, cleanup, err := loadManager(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	found, err := m.LoadRoutes(ctx, q)
	if err != nil {
		var rce *parse.RouteCalculationError
		if errors.As(err, &rce) {
			fmt.Println("No routes found:", rce.Description)
			return nil
		}
		return err
	}

	return printRoutes(os.Stdout, found)
}

func show(cmd *cobra.Command, args []string) error {
	m, cleanup, err := loadManager(context.Background())
	if err != nil {
		return err
	}
	defer cleanup()

	route, err := m.Route(args[0])
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("no route with id %s", args[0])
		}
		return err
	}

	return printRoutes(os.Stdout, []*transit.Route{route})
}

func summary(cmd *cobra.Command, args []string) error {
	m, cleanup, err := loadManager(context.Background())
	if err != nil {
		return err
	}
	defer cleanup()

	route, err := m.Route(args[0])
	if err != nil {
		return err
	}

	fmt.Println(route.SummaryDescription())
	return nil
}

func saved(cmd *cobra.Command, args []string) error {
	m, cleanup, err := loadManager(context.Background())
	if err != nil {
		return err
	}
	defer cleanup()

	found, err := m.Routes(storage.ListRoutesFilter{TripID: routesTrip})
	if err != nil {
		return err
	}

	for _, r := range found {
		fmt.Printf(
			"%s  %s  %s -> %s  (%d min, %d transfers)\n",
			r.ID,
			r.DepartureTime.Local().Format("Mon 15:04"),
			r.StartName,
			r.EndName,
			r.TotalMinutes(),
			r.NumberOfTransfers,
		)
	}

	return nil
}

func forget(cmd *cobra.Command, args []string) error {
	m, cleanup, err := loadManager(context.Background())
	if err != nil {
		return err
	}
	defer cleanup()

	return m.DeleteRoute(args[0])
}

func directionsOf(r *transit.Route) []model.Direction {
	if routesRaw {
		return r.RawDirections()
	}
	return r.Directions()
}

func printRoutes(w io.Writer, found []*transit.Route) error {
	if routesCSV {
		rows := []*directionRow{}
		for _, r := range found {
			rows = append(rows, directionRows(r.ID, directionsOf(r))...)
		}
		return gocsv.Marshal(rows, w)
	}

	for i, r := range found {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "Route %s\n", r.ID)
		fmt.Fprintf(
			w,
			"  %s - %s (%d min)\n",
			r.DepartureTime.Local().Format("15:04"),
			r.ArrivalTime.Local().Format("15:04"),
			r.TotalMinutes(),
		)
		if s := r.SummaryDescription(); s != "" {
			fmt.Fprintf(w, "  %s\n", s)
		}
		for _, d := range directionsOf(r) {
			fmt.Fprintf(w, "    %s\n", formatDirection(d))
		}
	}

	return nil
}

func formatDirection(d model.Direction) string {
	line := fmt.Sprintf("%s %-9s %s", d.StartTime.Local().Format("15:04"), d.Type, d.Name)
	if d.IsBus() {
		line += fmt.Sprintf(" (route %d, %d stops)", d.RouteNumber, len(d.Stops))
	}
	if d.Delay != nil && *d.Delay != 0 {
		line += fmt.Sprintf(" [delay %s]", d.Delay.Round(time.Second))
	}
	return line
}
