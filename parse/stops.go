package parse

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
	"github.com/spkg/bom"

	"tcat.dev/transit/model"
)

type StopCSV struct {
	ID   string  `csv:"stop_id"`
	Name string  `csv:"stop_name"`
	Lat  float64 `csv:"stop_lat"`
	Lon  float64 `csv:"stop_lon"`
}

// Parses the bus stop catalog. Stop IDs must be unique, and every stop
// needs a name and a location.
func ParseStops(data io.Reader) ([]model.Stop, error) {
	stopCsv := []*StopCSV{}

	// The BOM reader strips unicode BOMs if present. Lazy quotes
	// let sloppy exports through.
	reader := gocsv.LazyCSVReader(bom.NewReader(data))
	if err := gocsv.UnmarshalCSV(reader, &stopCsv); err != nil {
		return nil, errors.Wrap(err, "unmarshaling stops csv")
	}

	seen := map[string]bool{}
	stops := make([]model.Stop, 0, len(stopCsv))
	for i, st := range stopCsv {
		if st.ID == "" {
			return nil, fmt.Errorf("empty stop_id (row %d)", i+1)
		}
		if seen[st.ID] {
			return nil, fmt.Errorf("repeated stop_id '%s'", st.ID)
		}
		seen[st.ID] = true

		if st.Name == "" {
			return nil, fmt.Errorf("empty stop_name for stop_id '%s'", st.ID)
		}
		if st.Lat == 0 || st.Lon == 0 {
			return nil, fmt.Errorf("empty stop_lat or stop_lon for stop_id '%s'", st.ID)
		}

		stops = append(stops, model.Stop{
			ID:   st.ID,
			Name: st.Name,
			Lat:  st.Lat,
			Lng:  st.Lon,
		})
	}

	return stops, nil
}

// Writes stops in the same format ParseStops reads.
func WriteStops(w io.Writer, stops []model.Stop) error {
	rows := make([]*StopCSV, 0, len(stops))
	for _, s := range stops {
		rows = append(rows, &StopCSV{ID: s.ID, Name: s.Name, Lat: s.Lat, Lon: s.Lng})
	}
	if err := gocsv.Marshal(rows, w); err != nil {
		return errors.Wrapf(err, "marshaling %d stops", len(rows))
	}
	return nil
}
