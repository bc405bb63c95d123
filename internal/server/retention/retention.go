// Package retention decides which archived snapshots survive rotation under
// an hourly plus daily policy. It performs no I/O.
package retention

import (
	"cmp"
	"slices"
	"time"

	"github.com/dmitrijs2005/chatkeeper/internal/server/models"
)

const (
	DefaultMaxHourly = 24
	DefaultMaxDaily  = 7

	// DailyWindow bounds how far back the daily tier looks.
	DailyWindow = 7 * 24 * time.Hour
)

// Decision partitions the input. Both slices are ordered newest first.
type Decision struct {
	Keep   []models.Snapshot
	Delete []models.Snapshot
}

// Decide keeps the maxHourly most recent snapshots plus, for each of the
// maxDaily most recent UTC days inside DailyWindow, the earliest snapshot
// of that day. A snapshot that qualifies for both tiers is kept once.
// Snapshots are identified by ID.
func Decide(snapshots []models.Snapshot, now time.Time, maxHourly, maxDaily int) Decision {
	sorted := slices.Clone(snapshots)
	slices.SortStableFunc(sorted, func(a, b models.Snapshot) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})

	keep := make(map[string]bool, len(sorted))

	for i := 0; i < len(sorted) && i < maxHourly; i++ {
		keep[sorted[i].ID] = true
	}

	// sorted is newest first, so the last snapshot seen for a day is its
	// earliest and days are discovered most recent first.
	cutoff := now.Add(-DailyWindow)
	var days []string
	earliest := make(map[string]string)
	for _, s := range sorted {
		if !s.CreatedAt.After(cutoff) {
			continue
		}
		day := s.CreatedAt.UTC().Format(time.DateOnly)
		if _, seen := earliest[day]; !seen {
			days = append(days, day)
		}
		earliest[day] = s.ID
	}
	if len(days) > maxDaily {
		days = days[:max(maxDaily, 0)]
	}
	for _, day := range days {
		keep[earliest[day]] = true
	}

	d := Decision{
		Keep:   make([]models.Snapshot, 0, len(keep)),
		Delete: make([]models.Snapshot, 0, len(sorted)-len(keep)),
	}
	for _, s := range sorted {
		if keep[s.ID] {
			d.Keep = append(d.Keep, s)
		} else {
			d.Delete = append(d.Delete, s)
		}
	}
	return d
}
