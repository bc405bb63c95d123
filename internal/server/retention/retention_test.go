package retention

import (
	"fmt"
	"testing"
	"time"

	"github.com/dmitrijs2005/chatkeeper/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hourly(n int, end time.Time) []models.Snapshot {
	out := make([]models.Snapshot, 0, n)
	for i := n - 1; i >= 0; i-- {
		at := end.Add(-time.Duration(i) * time.Hour)
		out = append(out, models.Snapshot{ID: fmt.Sprintf("s-%s", at.Format(time.RFC3339)), CreatedAt: at})
	}
	return out
}

func ids(s []models.Snapshot) []string {
	out := make([]string, 0, len(s))
	for _, x := range s {
		out = append(out, x.ID)
	}
	return out
}

func TestDecide_EmptyInput(t *testing.T) {
	d := Decide(nil, time.Now(), DefaultMaxHourly, DefaultMaxDaily)
	assert.Empty(t, d.Keep)
	assert.Empty(t, d.Delete)
}

func TestDecide_FewerThanMaxHourlyKeepsAll(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	snaps := hourly(5, now)

	d := Decide(snaps, now, DefaultMaxHourly, DefaultMaxDaily)
	assert.Len(t, d.Keep, 5)
	assert.Empty(t, d.Delete)
	assert.Equal(t, snaps[4].ID, d.Keep[0].ID, "newest first")
}

func TestDecide_UnionOfHourlyAndDaily(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	snaps := hourly(50, now)

	d := Decide(snaps, now, 24, 7)

	require.Len(t, d.Keep, 26)
	require.Len(t, d.Delete, 24)
	assert.GreaterOrEqual(t, len(d.Keep), 24)
	assert.LessOrEqual(t, len(d.Keep), 31)

	recent := make(map[string]bool)
	for _, s := range snaps[len(snaps)-24:] {
		recent[s.ID] = true
	}
	earliestOfDay := make(map[string]string)
	for _, s := range snaps {
		day := s.CreatedAt.Format(time.DateOnly)
		if _, ok := earliestOfDay[day]; !ok {
			earliestOfDay[day] = s.ID
		}
	}

	for _, s := range d.Keep {
		isEarliest := earliestOfDay[s.CreatedAt.Format(time.DateOnly)] == s.ID
		assert.True(t, recent[s.ID] || isEarliest, "unexpected keep %s", s.ID)
	}
	for id := range recent {
		assert.Contains(t, ids(d.Keep), id)
	}

	// 50h back from 12:00 on the 19th reaches 11:00 on the 17th.
	assert.Contains(t, ids(d.Keep), "s-2026-10-17T11:00:00Z")
	assert.Contains(t, ids(d.Keep), "s-2026-10-18T00:00:00Z")
	assert.Contains(t, ids(d.Keep), "s-2026-10-19T00:00:00Z", "already in the hourly tier, kept once")
}

func TestDecide_UnionBoundsAcrossClockOffsets(t *testing.T) {
	for h := 0; h < 24; h++ {
		now := time.Date(2026, 10, 19, h, 30, 0, 0, time.UTC)
		d := Decide(hourly(50, now), now, 24, 7)

		assert.GreaterOrEqual(t, len(d.Keep), 24, "hour %d", h)
		assert.LessOrEqual(t, len(d.Keep), 31, "hour %d", h)
		assert.Equal(t, 50, len(d.Keep)+len(d.Delete))
	}
}

func TestDecide_DailyTierCappedAndWindowed(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	var snaps []models.Snapshot
	for day := 0; day < 10; day++ {
		for _, hour := range []int{3, 9, 20} {
			at := time.Date(2026, 10, 19-day, hour, 0, 0, 0, time.UTC)
			if at.After(now) {
				continue
			}
			snaps = append(snaps, models.Snapshot{ID: at.Format("01-02T15"), CreatedAt: at})
		}
	}

	d := Decide(snaps, now, 0, 3)
	assert.Equal(t, []string{"10-19T03", "10-18T03", "10-17T03"}, ids(d.Keep))

	d = Decide(snaps, now, 0, 30)
	// 10-12 12:00 is exactly seven days back, so only its 20:00 snapshot is inside the window.
	assert.Equal(t, []string{
		"10-19T03", "10-18T03", "10-17T03", "10-16T03", "10-15T03", "10-14T03", "10-13T03", "10-12T20",
	}, ids(d.Keep))
}

func TestDecide_DoesNotMutateInput(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	snaps := hourly(30, now)
	first := snaps[0].ID

	_ = Decide(snaps, now, 24, 7)
	assert.Equal(t, first, snaps[0].ID)
}

func TestDecide_ZeroLimitsDeleteEverything(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	d := Decide(hourly(3, now), now, 0, 0)
	assert.Empty(t, d.Keep)
	assert.Len(t, d.Delete, 3)
}
