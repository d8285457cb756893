package parse

import (
	"encoding/json"
	"fmt"
	"time"
)

type delayResponseJSON struct {
	Success bool `json:"success"`
	Data    struct {
		Delay *int `json:"delay"`
	} `json:"data"`
}

// Parses a delay lookup response. The reported delay is in seconds.
//
// ok is false when the server reports failure or has no delay for the
// requested trip and stop.
func ParseDelayResponse(data []byte) (delay time.Duration, ok bool, err error) {
	resp := delayResponseJSON{}
	if err := json.Unmarshal(data, &resp); err != nil {
		return 0, false, &ParseError{Err: fmt.Errorf("decoding delay response: %w", err)}
	}

	if !resp.Success || resp.Data.Delay == nil {
		return 0, false, nil
	}

	return time.Duration(*resp.Data.Delay) * time.Second, true, nil
}
