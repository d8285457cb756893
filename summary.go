package transit

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"tcat.dev/transit/model"
	"tcat.dev/transit/parse"
)

// Formats a distance for display. Distances of 10 and up are rounded
// to whole units, shorter ones to a single decimal.
func RoundedDistance(d float64) string {
	if d >= 10 {
		return strconv.FormatFloat(math.Round(d), 'f', 0, 64)
	}
	return strconv.FormatFloat(math.Round(d*10)/10, 'f', -1, 64)
}

// A one paragraph, human readable description of the route. Built on
// every call from the current display directions.
func (r *Route) SummaryDescription() string {
	directions := r.Directions()

	var b strings.Builder
	if r.StartName == parse.CurrentLocation {
		fmt.Fprintf(&b, "To get to %s,", r.EndName)
	} else {
		fmt.Fprintf(&b, "To get from %s to %s,", r.StartName, r.EndName)
	}

	bus := 0
	for _, d := range directions {
		if !d.IsBus() {
			continue
		}

		var line string
		if d.Type == model.DirectionTransfer {
			line = fmt.Sprintf("the bus becomes Route %d. Stay on board, and then get off at %s", d.RouteNumber, d.EndLocation.Name)
		} else {
			line = fmt.Sprintf("take Route %d from %s to %s. ", d.RouteNumber, d.StartLocation.Name, d.EndLocation.Name)
		}

		if bus == 0 {
			b.WriteString(" " + line)
		} else {
			b.WriteString("Then, " + line)
		}
		bus++
	}
	b.WriteString(".")

	if bus == 0 {
		if len(directions) == 0 {
			return ""
		}
		return fmt.Sprintf(
			"Walk %s mi from %s to %s.",
			RoundedDistance(directions[0].TravelDistance),
			r.StartName,
			r.EndName,
		)
	}

	return b.String()
}
