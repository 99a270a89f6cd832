// Package srs implements the simplified SM-2 scheduler used for learn-mode
// reviews. Intervals are whole days; the ease factor only moves on failure.
package srs

import (
	"math"
	"time"
)

const (
	DefaultEase = 2.5
	MinEase     = 1.3

	easePenalty    = 0.2
	firstInterval  = 1
	secondInterval = 6
)

// Scheduling is the per-card scheduling state. A zero Scheduling means the
// card has never been reviewed; Ease 0 is read as DefaultEase.
type Scheduling struct {
	Due      time.Time `json:"due"`
	Interval int       `json:"interval"`
	Ease     float64   `json:"ease"`
}

// Reviewed reports whether the card has scheduling state at all.
func (s Scheduling) Reviewed() bool {
	return s.Interval > 0 || !s.Due.IsZero()
}

// Review computes the next scheduling state for a card after the user
// self-grades their recall. On success the interval grows (1, 6, then
// ceil(interval*ease)) and the ease is untouched; on failure the card goes
// back to daily review and the ease shrinks, floored at MinEase.
func Review(prev Scheduling, knewIt bool, now time.Time) Scheduling {
	ease := prev.Ease
	if ease == 0 {
		ease = DefaultEase
	}

	var interval int
	if knewIt {
		switch {
		case prev.Interval <= 0:
			interval = firstInterval
		case prev.Interval == firstInterval:
			interval = secondInterval
		default:
			interval = int(math.Ceil(float64(prev.Interval) * ease))
		}
	} else {
		interval = firstInterval
		ease = math.Max(MinEase, ease-easePenalty)
	}

	return Scheduling{
		Due:      now.AddDate(0, 0, interval),
		Interval: interval,
		Ease:     ease,
	}
}
