package parse

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tcat.dev/transit/model"
)

func TestParseStops(t *testing.T) {
	for _, tc := range []struct {
		name    string
		content string
		stops   []model.Stop
		err     bool
	}{
		{
			"minimal",
			`
stop_id,stop_name,stop_lat,stop_lon
1,Seneca Street,42.43,-76.49`,
			[]model.Stop{{ID: "1", Name: "Seneca Street", Lat: 42.43, Lng: -76.49}},
			false,
		},
		{
			"bom_and_extra_columns",
			"\ufeffstop_id,stop_code,stop_name,stop_lat,stop_lon\n" +
				"1,c1,Seneca Street,42.43,-76.49\n" +
				"2,c2,Statler Hall,42.44,-76.48\n",
			[]model.Stop{
				{ID: "1", Name: "Seneca Street", Lat: 42.43, Lng: -76.49},
				{ID: "2", Name: "Statler Hall", Lat: 42.44, Lng: -76.48},
			},
			false,
		},
		{
			"sloppy_quotes",
			`
stop_id,stop_name,stop_lat,stop_lon
1,Sage "Hall",42.43,-76.49`,
			[]model.Stop{{ID: "1", Name: `Sage "Hall"`, Lat: 42.43, Lng: -76.49}},
			false,
		},
		{
			"repeated_id",
			`
stop_id,stop_name,stop_lat,stop_lon
1,A,1,1
1,B,2,2`,
			nil,
			true,
		},
		{
			"empty_id",
			`
stop_id,stop_name,stop_lat,stop_lon
,A,1,1`,
			nil,
			true,
		},
		{
			"missing_name",
			`
stop_id,stop_name,stop_lat,stop_lon
1,,1,1`,
			nil,
			true,
		},
		{
			"missing_location",
			`
stop_id,stop_name,stop_lat,stop_lon
1,A,,`,
			nil,
			true,
		},
		{
			"bad_lat",
			`
stop_id,stop_name,stop_lat,stop_lon
1,A,north,1`,
			nil,
			true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			stops, err := ParseStops(strings.NewReader(strings.TrimLeft(tc.content, "\n")))
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.stops, stops)
		})
	}
}

func TestWriteStops(t *testing.T) {
	stops := []model.Stop{
		{ID: "1", Name: "Seneca Street", Lat: 42.43, Lng: -76.49},
		{ID: "2", Name: "Statler Hall", Lat: 42.44, Lng: -76.48},
	}

	buf := &bytes.Buffer{}
	require.NoError(t, WriteStops(buf, stops))
	assert.True(t, strings.HasPrefix(buf.String(), "stop_id,stop_name,stop_lat,stop_lon\n"))

	parsed, err := ParseStops(buf)
	require.NoError(t, err)
	assert.Equal(t, stops, parsed)
}
