package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tcat.dev/transit"
)

var (
	delaysWatch   bool
	delaysHistory bool
)

var delaysCmd = &cobra.Command{
	Use:   "delays <route-id>",
	Short: "Fetch the current delay of a stored route",
	Args:  cobra.ExactArgs(1),
	RunE:  delays,
}

func init() {
	delaysCmd.Flags().BoolVarP(&delaysWatch, "watch", "w", false, "Keep refreshing until interrupted")
	delaysCmd.Flags().BoolVarP(&delaysHistory, "history", "", false, "Print recorded delays instead of fetching")

	rootCmd.AddCommand(delaysCmd)
}

func delays(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m, cleanup, err := loadManager(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	route, err := m.Route(args[0])
	if err != nil {
		return err
	}

	if delaysHistory {
		observations, err := m.Delays(route.ID)
		if err != nil {
			return err
		}
		for _, o := range observations {
			fmt.Printf(
				"%s  trip %s at stop %s: %s\n",
				o.ObservedAt.Local().Format(time.RFC3339),
				o.TripID,
				o.StopID,
				o.Delay,
			)
		}
		return nil
	}

	if !delaysWatch {
		if err := m.FetchDelay(ctx, route); err != nil {
			return err
		}
		printDelay(route)
		return nil
	}

	go func() {
		ticker := time.NewTicker(m.DelayRefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				printDelay(route)
			}
		}
	}()

	err = m.PollDelays(ctx, route)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func printDelay(route *transit.Route) {
	delay, ok := route.DepartureDelay()
	if !ok {
		fmt.Println("No delay information")
		return
	}
	if delay == 0 {
		fmt.Println("On time")
		return
	}
	fmt.Printf("Delayed %s\n", delay.Round(time.Second))
}
