// Package session derives the current market session from the broker clock.
//
// Only the time-of-day of NextOpen and NextClose is compared against now; the
// calendar date is ignored. Around midnight, weekends and holidays this can
// classify a closed market as PRE_MARKET or AFTER_MARKET.
package session

import (
	"time"

	"github.com/bkviswam/tradeplatform/internal/models"
)

func Classify(clock models.Clock, now time.Time) models.MarketSession {
	switch {
	case beforeTimeOfDay(now, clock.NextOpen):
		return models.PreMarket
	case afterTimeOfDay(now, clock.NextClose):
		return models.AfterMarket
	default:
		return models.Regular
	}
}

// IsExtendedHours reports whether now falls outside the regular window.
func IsExtendedHours(clock models.Clock, now time.Time) bool {
	return beforeTimeOfDay(now, clock.NextOpen) || afterTimeOfDay(now, clock.NextClose)
}

func beforeTimeOfDay(now, ref time.Time) bool {
	return sinceMidnight(now.In(ref.Location())) < sinceMidnight(ref)
}

func afterTimeOfDay(now, ref time.Time) bool {
	return sinceMidnight(now.In(ref.Location())) > sinceMidnight(ref)
}

func sinceMidnight(t time.Time) time.Duration {
	h, m, s := t.Clock()
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second + time.Duration(t.Nanosecond())
}
