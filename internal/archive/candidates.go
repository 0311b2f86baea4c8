package archive

import (
	"time"

	"github.com/yanizio/sportcrm/internal/marker"
	"github.com/yanizio/sportcrm/internal/trial"
)

const day = 24 * time.Hour

// AgeDays returns the whole days between r's age reference and now.
func AgeDays(r trial.Request, now time.Time) int {
	d := now.Sub(r.AgeReference(now))
	if d < 0 {
		return 0
	}
	return int(d / day)
}

// FilterOld returns the non-archived requests strictly older than
// thresholdDays whole days.  Age runs from UpdatedAt, else CreatedAt; a
// request with neither is treated as brand new.  The input is not modified.
func FilterOld(reqs []trial.Request, thresholdDays int, now time.Time) []trial.Request {
	if thresholdDays < 0 {
		thresholdDays = 0
	}
	out := make([]trial.Request, 0, len(reqs))
	for _, r := range reqs {
		if marker.IsArchived(r) {
			continue
		}
		if AgeDays(r, now) > thresholdDays {
			out = append(out, r.Clone())
		}
	}
	return out
}
