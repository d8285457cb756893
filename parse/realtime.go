package parse

import (
	"context"
	"fmt"
	"time"

	gtfsproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	proto "google.golang.org/protobuf/proto"
)

// A delay reported for a trip at a stop.
type StopDelay struct {
	TripID         string
	StopID         string
	StopSequence   uint32
	ArrivalDelay   time.Duration
	DepartureDelay time.Duration
}

// Delays extracted from one or more GTFS Realtime feeds.
type RealtimeDelays struct {
	// Timestamp of the feed. If loaded from multiple feeds, the
	// last one wins.
	Timestamp uint64

	CanceledTrips map[string]bool

	// Delays for each trip, in feed order.
	ByTrip map[string][]*StopDelay
}

// Looks up the departure delay of a trip at a stop. If the stop has no
// update of its own, the first update on the trip applies.
func (rd *RealtimeDelays) Delay(tripID string, stopID string) (time.Duration, bool) {
	if rd.CanceledTrips[tripID] {
		return 0, false
	}

	delays := rd.ByTrip[tripID]
	if len(delays) == 0 {
		return 0, false
	}

	for _, d := range delays {
		if d.StopID == stopID {
			return d.DepartureDelay, true
		}
	}

	return delays[0].DepartureDelay, true
}

func ParseRealtimeDelays(ctx context.Context, feeds [][]byte) (*RealtimeDelays, error) {
	rd := &RealtimeDelays{
		CanceledTrips: map[string]bool{},
		ByTrip:        map[string][]*StopDelay{},
	}

	for _, feed := range feeds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		f := &gtfsproto.FeedMessage{}
		err := proto.Unmarshal(feed, f)
		if err != nil {
			return nil, fmt.Errorf("unmarshaling protobuf: %w", err)
		}

		header := f.GetHeader()

		version := header.GetGtfsRealtimeVersion()
		if version != "2.0" && version != "1.0" {
			return nil, fmt.Errorf("version %s not supported", version)
		}

		rd.Timestamp = header.GetTimestamp()

		for _, entity := range f.GetEntity() {
			if entity.TripUpdate == nil {
				continue
			}

			trip := entity.TripUpdate.GetTrip()
			if trip == nil {
				return nil, fmt.Errorf("trip_update missing trip")
			}

			// Without a trip ID there's nothing to match
			// against tripIdentifiers.
			if trip.GetTripId() == "" {
				continue
			}

			switch trip.GetScheduleRelationship() {
			case gtfsproto.TripDescriptor_CANCELED:
				rd.CanceledTrips[trip.GetTripId()] = true
			case gtfsproto.TripDescriptor_SCHEDULED:
				for _, update := range entity.TripUpdate.GetStopTimeUpdate() {
					addStopDelay(rd, trip.GetTripId(), update)
				}
			}
		}
	}

	return rd, nil
}

func addStopDelay(rd *RealtimeDelays, tripID string, update *gtfsproto.TripUpdate_StopTimeUpdate) {
	if update.GetScheduleRelationship() != gtfsproto.TripUpdate_StopTimeUpdate_SCHEDULED {
		return
	}

	sd := &StopDelay{
		TripID:       tripID,
		StopID:       update.GetStopId(),
		StopSequence: update.GetStopSequence(),
	}

	if update.Arrival != nil {
		sd.ArrivalDelay = time.Duration(update.GetArrival().GetDelay()) * time.Second
	}

	if update.Departure != nil {
		sd.DepartureDelay = time.Duration(update.GetDeparture().GetDelay()) * time.Second
	} else {
		// Lacking departure data, the arrival delay applies.
		// Early arrivals wait for the schedule.
		sd.DepartureDelay = max(sd.ArrivalDelay, 0)
	}

	rd.ByTrip[tripID] = append(rd.ByTrip[tripID], sd)
}
