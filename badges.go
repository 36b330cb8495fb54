package main

import (
	"context"
	"log/slog"
)

var defaultBadges = []BadgeDefinition{
	{ID: "eco-starter", Name: "Eco Starter", Description: "First trip logged", Icon: "leaf", Category: CategoryAchievement, Metric: MetricTotalTrips, Requirement: 1},
	{ID: "bus-enthusiast", Name: "Bus Enthusiast", Description: "10 bus trips completed", Icon: "bus", Category: CategoryTransport, Metric: MetricBusTrips, Requirement: 10},
	{ID: "metro-master", Name: "Metro Master", Description: "25 metro trips completed", Icon: "train", Category: CategoryTransport, Metric: MetricMetroTrips, Requirement: 25},
	{ID: "consistent-hopper", Name: "Consistent Hopper", Description: "5-day streak of eco-friendly commuting", Icon: "activity", Category: CategoryConsistency, Metric: MetricCurrentStreak, Requirement: 5},
	{ID: "weekly-warrior", Name: "Weekly Warrior", Description: "Trip every day for a week", Icon: "clock", Category: CategoryConsistency, Metric: MetricCurrentStreak, Requirement: 7},
	{ID: "carbon-champion", Name: "Carbon Champion", Description: "Save 50kg of CO2", Icon: "award", Category: CategoryAchievement, Metric: MetricCO2Saved, Requirement: 50},
}

// BadgeStats is the flattened view a badge rule table is evaluated against.
type BadgeStats struct {
	TotalTrips    int
	BusTrips      int
	MetroTrips    int
	CurrentStreak int
	BestStreak    int
	CO2Saved      float64
	TotalPoints   int
}

func statsFor(p UserProgress, counts TripCounts) BadgeStats {
	return BadgeStats{
		TotalTrips:    p.TotalTrips,
		BusTrips:      counts[TransitBus],
		MetroTrips:    counts[TransitMetro],
		CurrentStreak: p.CurrentStreak,
		BestStreak:    p.BestStreak,
		CO2Saved:      p.TotalCO2Saved,
		TotalPoints:   p.TotalPoints,
	}
}

// Value returns the statistic for metric. Unknown metrics read as zero.
func (s BadgeStats) Value(metric BadgeMetric) float64 {
	switch metric {
	case MetricTotalTrips:
		return float64(s.TotalTrips)
	case MetricBusTrips:
		return float64(s.BusTrips)
	case MetricMetroTrips:
		return float64(s.MetroTrips)
	case MetricCurrentStreak:
		return float64(s.CurrentStreak)
	case MetricBestStreak:
		return float64(s.BestStreak)
	case MetricCO2Saved:
		return s.CO2Saved
	case MetricTotalPoints:
		return float64(s.TotalPoints)
	}
	return 0
}

// EvaluateBadges returns, in rule order, the ids whose threshold is met by
// stats and which are not already unlocked. Thresholds are inclusive.
func EvaluateBadges(rules []BadgeDefinition, stats BadgeStats, unlocked map[string]bool) []string {
	var earned []string
	for _, rule := range rules {
		if unlocked[rule.ID] {
			continue
		}
		if stats.Value(rule.Metric) >= rule.Requirement {
			earned = append(earned, rule.ID)
		}
	}
	return earned
}

// BadgeEvaluator applies the badge rule table to user progress. Unlocks are
// only ever added.
type BadgeEvaluator struct {
	accounts *accountStore
	rules    []BadgeDefinition
	logger   *slog.Logger
}

func NewBadgeEvaluator(accounts *accountStore, rules []BadgeDefinition, logger *slog.Logger) *BadgeEvaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgeEvaluator{accounts: accounts, rules: rules, logger: logger}
}

func (e *BadgeEvaluator) Rules() []BadgeDefinition {
	return append([]BadgeDefinition(nil), e.rules...)
}

// Evaluate re-checks every rule and returns the badges unlocked by this call.
func (e *BadgeEvaluator) Evaluate(ctx context.Context, userID string) ([]string, error) {
	var unlocked []string
	_, err := e.accounts.update(ctx, userID, func(a *Account) error {
		unlocked = e.unlock(a)
		if len(unlocked) == 0 {
			return errUnchanged
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return unlocked, nil
}

func (e *BadgeEvaluator) Unlocked(ctx context.Context, userID string) ([]string, error) {
	acct, err := e.accounts.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return append([]string{}, acct.Progress.UnlockedBadges...), nil
}

// unlock adds newly earned badges to a and returns them. Trip counts are
// taken from a itself.
func (e *BadgeEvaluator) unlock(a *Account) []string {
	have := make(map[string]bool, len(a.Progress.UnlockedBadges))
	for _, id := range a.Progress.UnlockedBadges {
		have[id] = true
	}
	earned := EvaluateBadges(e.rules, statsFor(a.Progress, a.tripCounts()), have)
	a.Progress.UnlockedBadges = append(a.Progress.UnlockedBadges, earned...)
	for _, id := range earned {
		e.logger.Debug("badge threshold met", "user", a.Progress.UserID, "badge", id)
	}
	return earned
}
