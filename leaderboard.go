package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Leaderboard ranks every account. sortBy is one of points-desc (default),
// co2-desc, streak-desc or trips-desc.
func Leaderboard(ctx context.Context, store RecordStore, sortBy string, limit int) ([]LeaderboardEntry, error) {
	records, err := store.ListRecords(ctx, accountKey(""))
	if err != nil {
		return nil, fmt.Errorf("%w: list accounts: %w", ErrStorageUnavailable, err)
	}

	entries := make([]LeaderboardEntry, 0, len(records))
	for _, rec := range records {
		var acct Account
		if err := json.Unmarshal(rec.Data, &acct); err != nil {
			return nil, fmt.Errorf("%w: decode %s: %v", ErrCorruptRecord, rec.Key, err)
		}
		p := acct.Progress
		entries = append(entries, LeaderboardEntry{
			UserID:        strings.TrimPrefix(rec.Key, accountKey("")),
			Points:        p.TotalPoints,
			CO2Saved:      p.TotalCO2Saved,
			TotalTrips:    p.TotalTrips,
			CurrentStreak: p.CurrentStreak,
			Badges:        len(p.UnlockedBadges),
		})
	}

	var less func(a, b LeaderboardEntry) bool
	switch sortBy {
	case "co2-desc":
		less = func(a, b LeaderboardEntry) bool { return a.CO2Saved > b.CO2Saved }
	case "streak-desc":
		less = func(a, b LeaderboardEntry) bool { return a.CurrentStreak > b.CurrentStreak }
	case "trips-desc":
		less = func(a, b LeaderboardEntry) bool { return a.TotalTrips > b.TotalTrips }
	default: // points-desc
		less = func(a, b LeaderboardEntry) bool { return a.Points > b.Points }
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if less(entries[i], entries[j]) {
			return true
		}
		if less(entries[j], entries[i]) {
			return false
		}
		return entries[i].UserID < entries[j].UserID
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}
