package main

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRiderJourney(t *testing.T) {
	ctx := context.Background()
	r := newTestRewards(t, NewMemoryStore(), RewardsOptions{})

	out, err := r.LogTrip(ctx, TripRecord{UserID: "u1", TransitType: TransitBus, PointsEarned: 12, CO2Saved: 2.5, Date: day("2026-10-14")})
	require.NoError(t, err)
	assert.Equal(t, 12, out.Progress.TotalPoints)
	assert.Equal(t, 2.5, out.Progress.TotalCO2Saved)
	assert.Equal(t, 1, out.Progress.TotalTrips)
	assert.Equal(t, 1, out.Progress.CurrentStreak)

	out, err = r.LogTrip(ctx, TripRecord{UserID: "u1", TransitType: TransitMetro, PointsEarned: 16, CO2Saved: 3.1, Date: day("2026-10-15")})
	require.NoError(t, err)
	assert.Equal(t, 28, out.Progress.TotalPoints)
	assert.Equal(t, 2, out.Progress.CurrentStreak)

	_, err = r.RedeemReward(ctx, "u1", "bus-pass-5")
	require.ErrorIs(t, err, ErrInsufficientBalance)
	progress, err := r.GetProgress(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 28, progress.TotalPoints)

	progress, err = r.CreditTrip(ctx, "u1", 92, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 120, progress.TotalPoints)

	claim, err := r.RedeemReward(ctx, "u1", "bus-pass-5")
	require.NoError(t, err)
	assert.Equal(t, 100, claim.PointsCost)
	progress, err = r.GetProgress(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 20, progress.TotalPoints)

	_, err = r.RedeemReward(ctx, "u1", "bus-pass-5")
	require.ErrorIs(t, err, ErrAlreadyClaimed)

	requireReconciled(t, r, "u1")
}

func TestLogTripIsIdempotentByID(t *testing.T) {
	ctx := context.Background()
	notifier := &recordingNotifier{}
	r := newTestRewards(t, NewMemoryStore(), RewardsOptions{Notifier: notifier})

	trip := TripRecord{ID: "booking-7", UserID: "u1", TransitType: TransitMetro, PointsEarned: 20, CO2Saved: 1.2, Date: day("2026-10-15")}
	first, err := r.LogTrip(ctx, trip)
	require.NoError(t, err)
	assert.False(t, first.AlreadyCredited)
	assert.Equal(t, []string{"eco-starter"}, first.NewBadges)

	second, err := r.LogTrip(ctx, trip)
	require.NoError(t, err)
	assert.True(t, second.AlreadyCredited)
	assert.Empty(t, second.NewBadges)
	assert.Equal(t, 20, second.Progress.TotalPoints)
	assert.Equal(t, 1, second.Progress.TotalTrips)

	trips, err := r.ListTrips(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, trips, 1)
	assert.Equal(t, 1, notifier.count("points-updated"))
	assert.Equal(t, 1, notifier.count("badge-unlocked"))
}

func TestLogTripRetryAfterAccountWriteFailure(t *testing.T) {
	ctx := context.Background()
	store := &faultyStore{RecordStore: NewMemoryStore()}
	r := newTestRewards(t, store, RewardsOptions{})
	trip := TripRecord{ID: "booking-9", UserID: "u1", TransitType: TransitBus, PointsEarned: 9, Date: day("2026-10-15")}

	store.failWrites = 1
	_, err := r.LogTrip(ctx, trip)
	require.ErrorIs(t, err, ErrStorageUnavailable)

	progress, err := r.GetProgress(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, progress.TotalPoints)
	trips, err := r.ListTrips(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, trips, "a failed write leaves no trip behind")

	out, err := r.LogTrip(ctx, trip)
	require.NoError(t, err)
	assert.False(t, out.AlreadyCredited)
	assert.Equal(t, 9, out.Progress.TotalPoints)

	trips, err = r.ListTrips(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, trips, 1)
}

func TestFailedTripDoesNotCountTowardBadges(t *testing.T) {
	ctx := context.Background()
	store := &faultyStore{RecordStore: NewMemoryStore()}
	r := newTestRewards(t, store, RewardsOptions{})

	store.failWrites = 1
	_, err := r.LogTrip(ctx, TripRecord{UserID: "u1", TransitType: TransitBus, PointsEarned: 2, Date: day("2026-10-01")})
	require.ErrorIs(t, err, ErrStorageUnavailable)

	var earned []string
	for i := 0; i < 9; i++ {
		out, err := r.LogTrip(ctx, TripRecord{UserID: "u1", TransitType: TransitBus, PointsEarned: 2, Date: day("2026-10-02")})
		require.NoError(t, err)
		earned = append(earned, out.NewBadges...)
	}
	assert.NotContains(t, earned, "bus-enthusiast")

	counts, err := r.trips.Counts(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 9, counts[TransitBus])
	trips, err := r.ListTrips(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, trips, 9)
	progress, err := r.GetProgress(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 9, progress.TotalTrips)
	assert.Equal(t, 18, progress.TotalPoints)

	out, err := r.LogTrip(ctx, TripRecord{UserID: "u1", TransitType: TransitBus, PointsEarned: 2, Date: day("2026-10-02")})
	require.NoError(t, err)
	assert.Equal(t, []string{"bus-enthusiast"}, out.NewBadges)
	requireReconciled(t, r, "u1")
}

func TestCreditRetryUsesTripsWrittenConcurrently(t *testing.T) {
	ctx := context.Background()
	store := &faultyStore{RecordStore: NewMemoryStore()}
	r := newTestRewards(t, store, RewardsOptions{})
	other := newRecordUpdater(store.RecordStore, 3, quietLogger())

	// Another writer lands ten bus trips between this credit's read and write.
	store.beforeWrite = func(key string) {
		_, err := updateJSON(ctx, other, key, func(a *Account) error {
			for i := 0; i < 10; i++ {
				a.Trips = append(a.Trips, TripRecord{
					ID:          fmt.Sprintf("side-%d", i),
					UserID:      "u1",
					TransitType: TransitBus,
					Date:        day("2026-10-10"),
					Status:      TripCompleted,
				})
			}
			a.Progress.TotalTrips += 10
			return nil
		})
		require.NoError(t, err)
	}

	progress, err := r.CreditTrip(ctx, "u1", 5, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 10, progress.TotalTrips)
	assert.Contains(t, progress.UnlockedBadges, "bus-enthusiast")
	requireReconciled(t, r, "u1")
}

func TestBackdatedTripCreditsWithoutMovingStreak(t *testing.T) {
	ctx := context.Background()
	r := newTestRewards(t, NewMemoryStore(), RewardsOptions{})

	_, err := r.LogTrip(ctx, TripRecord{UserID: "u1", TransitType: TransitBus, PointsEarned: 10, Date: day("2026-10-15")})
	require.NoError(t, err)

	out, err := r.LogTrip(ctx, TripRecord{UserID: "u1", TransitType: TransitBus, PointsEarned: 7, Date: day("2026-10-12")})
	require.NoError(t, err)
	assert.False(t, out.StreakAdvanced)
	assert.Equal(t, 17, out.Progress.TotalPoints)
	assert.Equal(t, 1, out.Progress.CurrentStreak)
	assert.Equal(t, day("2026-10-15"), *out.Progress.LastActivityDate)

	trips, err := r.ListTrips(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, trips, 2)
	assert.Equal(t, day("2026-10-15"), trips[0].Date, "most recent travel date first")
}

func TestUpcomingTripCountsTowardBadges(t *testing.T) {
	ctx := context.Background()
	r := newTestRewards(t, NewMemoryStore(), RewardsOptions{})

	out, err := r.LogTrip(ctx, TripRecord{UserID: "u1", TransitType: TransitMetro, Status: TripUpcoming, PointsEarned: 4, Date: day("2026-10-16")})
	require.NoError(t, err)
	assert.Equal(t, TripUpcoming, out.Trip.Status)
	assert.Equal(t, 4, out.Progress.TotalPoints)
}

func TestLogTripValidation(t *testing.T) {
	ctx := context.Background()
	r := newTestRewards(t, NewMemoryStore(), RewardsOptions{})

	bad := []TripRecord{
		{UserID: "u1", TransitType: "ferry", Date: day("2026-10-15")},
		{UserID: "u1", TransitType: TransitBus, Status: TripCancelled, Date: day("2026-10-15")},
		{UserID: "u1", TransitType: TransitBus, PointsEarned: -3, Date: day("2026-10-15")},
		{UserID: "u1", TransitType: TransitBus},
	}
	for _, trip := range bad {
		_, err := r.LogTrip(ctx, trip)
		require.ErrorIs(t, err, ErrInvalidTrip)
	}

	_, err := r.LogTrip(ctx, TripRecord{UserID: "a/b", TransitType: TransitBus, Date: day("2026-10-15")})
	require.ErrorIs(t, err, ErrInvalidUser)

	trips, err := r.ListTrips(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, trips)
}

func TestWeeklyWarriorAfterSevenDays(t *testing.T) {
	ctx := context.Background()
	r := newTestRewards(t, NewMemoryStore(), RewardsOptions{})

	var earned []string
	for _, d := range []string{"2026-10-05", "2026-10-06", "2026-10-07", "2026-10-08", "2026-10-09", "2026-10-10", "2026-10-11"} {
		out, err := r.LogTrip(ctx, TripRecord{UserID: "u1", TransitType: TransitBus, PointsEarned: 3, Date: day(d)})
		require.NoError(t, err)
		earned = append(earned, out.NewBadges...)
	}
	assert.Equal(t, []string{"eco-starter", "consistent-hopper", "weekly-warrior"}, earned)

	progress, err := r.GetProgress(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 7, progress.CurrentStreak)
	assert.Equal(t, 7, progress.BestStreak)
}

func TestLeaderboardOrdering(t *testing.T) {
	ctx := context.Background()
	r := newTestRewards(t, NewMemoryStore(), RewardsOptions{})

	_, err := r.CreditTrip(ctx, "ana", 50, 9.5, 3)
	require.NoError(t, err)
	_, err = r.CreditTrip(ctx, "ben", 80, 1.0, 1)
	require.NoError(t, err)
	_, err = r.CreditTrip(ctx, "cai", 50, 2.0, 8)
	require.NoError(t, err)

	byPoints, err := r.Leaderboard(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, byPoints, 3)
	assert.Equal(t, []string{"ben", "ana", "cai"}, leaderboardUsers(byPoints), "ties break by user id")
	assert.Equal(t, []int{1, 2, 3}, []int{byPoints[0].Rank, byPoints[1].Rank, byPoints[2].Rank})

	byCO2, err := r.Leaderboard(ctx, "co2-desc", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"ana", "cai", "ben"}, leaderboardUsers(byCO2))

	byTrips, err := r.Leaderboard(ctx, "trips-desc", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"cai"}, leaderboardUsers(byTrips))
}

func leaderboardUsers(entries []LeaderboardEntry) []string {
	users := make([]string, 0, len(entries))
	for _, e := range entries {
		users = append(users, e.UserID)
	}
	return users
}
