package transit

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"tcat.dev/transit/downloader"
	"tcat.dev/transit/parse"
)

// Looks up how late a trip is at a stop. Reports false if no delay is
// known.
type DelaySource interface {
	Delay(ctx context.Context, tripID string, stopID string) (time.Duration, bool, error)
}

// Reads delays from the upstream delay endpoint.
type APIDelaySource struct {
	URL        string
	Headers    map[string]string
	Downloader downloader.Downloader
	Options    downloader.GetOptions
}

func (s *APIDelaySource) Delay(ctx context.Context, tripID string, stopID string) (time.Duration, bool, error) {
	q := url.Values{}
	q.Set("tripID", tripID)
	q.Set("stopID", stopID)

	body, err := s.Downloader.Get(ctx, s.URL+"?"+q.Encode(), s.Headers, s.Options)
	if err != nil {
		return 0, false, fmt.Errorf("downloading delay: %w", err)
	}

	delay, ok, err := parse.ParseDelayResponse(body)
	if err != nil {
		return 0, false, fmt.Errorf("parsing delay: %w", err)
	}

	return delay, ok, nil
}

// Reads delays from a GTFS-realtime TripUpdates feed.
type RealtimeDelaySource struct {
	URL        string
	Headers    map[string]string
	Downloader downloader.Downloader
	Options    downloader.GetOptions
}

func (s *RealtimeDelaySource) Delay(ctx context.Context, tripID string, stopID string) (time.Duration, bool, error) {
	feed, err := s.Downloader.Get(ctx, s.URL, s.Headers, s.Options)
	if err != nil {
		return 0, false, fmt.Errorf("downloading realtime: %w", err)
	}

	delays, err := parse.ParseRealtimeDelays(ctx, [][]byte{feed})
	if err != nil {
		return 0, false, fmt.Errorf("parsing realtime: %w", err)
	}

	delay, ok := delays.Delay(tripID, stopID)
	return delay, ok, nil
}
