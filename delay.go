package transit

import (
	"time"

	"tcat.dev/transit/model"
)

// Clears all delays of the display directions. Raw directions keep
// theirs, so the last known delay stays available for lookups.
func (r *Route) ResetDelays() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.directions {
		r.directions[i].Delay = nil
	}
}

// Applies a delay reported for the first bus of the route.
//
// The delay is set on the first depart direction of both lists. Every
// later display direction that isn't a depart has the delay added to
// whatever it already carries. Returns ErrNoDepartDirection if the
// route has no bus to apply it to.
func (r *Route) ApplyDelay(delay time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	raw := firstOfType(r.rawDirections, model.DirectionDepart)
	display := firstOfType(r.directions, model.DirectionDepart)
	if raw == -1 || display == -1 {
		return ErrNoDepartDirection
	}

	r.rawDirections[raw].Delay = durationPtr(delay)
	r.directions[display].Delay = durationPtr(delay)

	for i := display + 1; i < len(r.directions); i++ {
		d := &r.directions[i]
		if d.Type == model.DirectionDepart {
			continue
		}
		if d.Delay == nil {
			d.Delay = durationPtr(delay)
		} else {
			d.Delay = durationPtr(*d.Delay + delay)
		}
	}

	return nil
}

// Delay of the first depart display direction, if known.
func (r *Route) DepartureDelay() (time.Duration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i := firstOfType(r.directions, model.DirectionDepart)
	if i == -1 || r.directions[i].Delay == nil {
		return 0, false
	}
	return *r.directions[i].Delay, true
}

func firstOfType(directions []model.Direction, t model.DirectionType) int {
	for i, d := range directions {
		if d.Type == t {
			return i
		}
	}
	return -1
}

func durationPtr(d time.Duration) *time.Duration {
	return &d
}
