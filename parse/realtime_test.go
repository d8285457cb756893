package parse

import (
	"context"
	"testing"
	"time"

	p "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	proto "google.golang.org/protobuf/proto"
)

func TestParseRealtimeDelaysBadHeader(t *testing.T) {
	data, err := proto.Marshal(&p.FeedMessage{
		Header: &p.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Timestamp:           proto.Uint64(1702473763),
		},
	})
	require.NoError(t, err)
	rd, err := ParseRealtimeDelays(context.Background(), [][]byte{data})
	require.NoError(t, err)
	assert.Equal(t, uint64(1702473763), rd.Timestamp)
	assert.Empty(t, rd.ByTrip)

	// Unsupported version
	data, err = proto.Marshal(&p.FeedMessage{
		Header: &p.FeedHeader{
			GtfsRealtimeVersion: proto.String("3.0"),
		},
	})
	require.NoError(t, err)
	_, err = ParseRealtimeDelays(context.Background(), [][]byte{data})
	assert.Error(t, err)

	// Not protobuf at all
	_, err = ParseRealtimeDelays(context.Background(), [][]byte{[]byte("nope")})
	assert.Error(t, err)
}

func TestParseRealtimeDelays(t *testing.T) {
	data, err := proto.Marshal(&p.FeedMessage{
		Header: &p.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
		},
		Entity: []*p.FeedEntity{
			{
				Id: proto.String("e1"),
				TripUpdate: &p.TripUpdate{
					Trip: &p.TripDescriptor{
						TripId:               proto.String("trip1"),
						ScheduleRelationship: p.TripDescriptor_SCHEDULED.Enum(),
					},
					StopTimeUpdate: []*p.TripUpdate_StopTimeUpdate{
						// Both arrival and departure
						{
							StopSequence: proto.Uint32(1),
							StopId:       proto.String("s1"),
							Arrival:      &p.TripUpdate_StopTimeEvent{Delay: proto.Int32(30)},
							Departure:    &p.TripUpdate_StopTimeEvent{Delay: proto.Int32(45)},
						},
						// Arrival only
						{
							StopSequence: proto.Uint32(2),
							StopId:       proto.String("s2"),
							Arrival:      &p.TripUpdate_StopTimeEvent{Delay: proto.Int32(60)},
						},
						// Early arrival only
						{
							StopSequence: proto.Uint32(3),
							StopId:       proto.String("s3"),
							Arrival:      &p.TripUpdate_StopTimeEvent{Delay: proto.Int32(-20)},
						},
						// Skipped stops carry no delay
						{
							StopSequence:         proto.Uint32(4),
							StopId:               proto.String("s4"),
							ScheduleRelationship: p.TripUpdate_StopTimeUpdate_SKIPPED.Enum(),
						},
					},
				},
			},
			{
				Id: proto.String("e2"),
				TripUpdate: &p.TripUpdate{
					Trip: &p.TripDescriptor{
						TripId:               proto.String("trip2"),
						ScheduleRelationship: p.TripDescriptor_CANCELED.Enum(),
					},
				},
			},
			{
				// No trip ID, ignored
				Id: proto.String("e3"),
				TripUpdate: &p.TripUpdate{
					Trip: &p.TripDescriptor{
						RouteId: proto.String("r"),
					},
				},
			},
			{
				// Not a trip update
				Id: proto.String("e4"),
			},
		},
	})
	require.NoError(t, err)

	rd, err := ParseRealtimeDelays(context.Background(), [][]byte{data})
	require.NoError(t, err)

	require.Len(t, rd.ByTrip["trip1"], 3)
	assert.Equal(t, &StopDelay{
		TripID:         "trip1",
		StopID:         "s1",
		StopSequence:   1,
		ArrivalDelay:   30 * time.Second,
		DepartureDelay: 45 * time.Second,
	}, rd.ByTrip["trip1"][0])
	assert.Equal(t, 60*time.Second, rd.ByTrip["trip1"][1].DepartureDelay)
	assert.Equal(t, time.Duration(0), rd.ByTrip["trip1"][2].DepartureDelay)
	assert.Equal(t, -20*time.Second, rd.ByTrip["trip1"][2].ArrivalDelay)
	assert.True(t, rd.CanceledTrips["trip2"])

	for _, tc := range []struct {
		trip  string
		stop  string
		delay time.Duration
		ok    bool
	}{
		{"trip1", "s1", 45 * time.Second, true},
		{"trip1", "s2", 60 * time.Second, true},
		{"trip1", "unknown", 45 * time.Second, true},
		{"trip2", "s1", 0, false},
		{"trip3", "s1", 0, false},
	} {
		delay, ok := rd.Delay(tc.trip, tc.stop)
		assert.Equal(t, tc.ok, ok, "%s/%s", tc.trip, tc.stop)
		assert.Equal(t, tc.delay, delay, "%s/%s", tc.trip, tc.stop)
	}
}

func TestParseRealtimeDelaysMissingTrip(t *testing.T) {
	// trip is a required field, so this needs AllowPartial
	data, err := proto.MarshalOptions{AllowPartial: true}.Marshal(&p.FeedMessage{
		Header: &p.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
		},
		Entity: []*p.FeedEntity{
			{
				Id:         proto.String("e1"),
				TripUpdate: &p.TripUpdate{},
			},
		},
	})
	require.NoError(t, err)

	_, err = ParseRealtimeDelays(context.Background(), [][]byte{data})
	assert.Error(t, err)
}

func TestParseRealtimeDelaysCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ParseRealtimeDelays(ctx, [][]byte{{}})
	assert.ErrorIs(t, err, context.Canceled)
}
