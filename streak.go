package main

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"
)

// StreakTracker derives consecutive-day activity streaks.
type StreakTracker struct {
	accounts *accountStore
	badges   *BadgeEvaluator
}

func NewStreakTracker(accounts *accountStore, badges *BadgeEvaluator) *StreakTracker {
	return &StreakTracker{accounts: accounts, badges: badges}
}

// RecordActivity advances the streak for a day with a completed trip and
// re-checks badges. Days before the last recorded activity are rejected
// with ErrStaleActivity.
func (t *StreakTracker) RecordActivity(ctx context.Context, userID string, day civil.Date) (UserProgress, error) {
	if !day.IsValid() {
		return UserProgress{}, fmt.Errorf("%w: invalid activity date %v", ErrInvalidTrip, day)
	}
	acct, err := t.accounts.update(ctx, userID, func(a *Account) error {
		changed, err := applyActivity(&a.Progress, day)
		if err != nil {
			return err
		}
		unlocked := t.badges.unlock(a)
		if !changed && len(unlocked) == 0 {
			return errUnchanged
		}
		return nil
	})
	if err != nil {
		return UserProgress{}, err
	}
	return acct.Progress, nil
}

// ResetStreak zeroes the current streak. The best streak is kept.
func (t *StreakTracker) ResetStreak(ctx context.Context, userID string) (UserProgress, error) {
	acct, err := t.accounts.update(ctx, userID, func(a *Account) error {
		if a.Progress.CurrentStreak == 0 {
			return errUnchanged
		}
		a.Progress.CurrentStreak = 0
		return nil
	})
	if err != nil {
		return UserProgress{}, err
	}
	return acct.Progress, nil
}

// applyActivity folds one activity day into p and reports whether p changed.
func applyActivity(p *UserProgress, day civil.Date) (bool, error) {
	before := *p
	switch {
	case p.LastActivityDate == nil:
		p.CurrentStreak = 1
	case day.Before(*p.LastActivityDate):
		return false, fmt.Errorf("%w: %s is before %s", ErrStaleActivity, day, *p.LastActivityDate)
	case day == *p.LastActivityDate:
		// Same day counts once. A streak reset earlier that day restarts at 1.
		if p.CurrentStreak == 0 {
			p.CurrentStreak = 1
		}
	case day.DaysSince(*p.LastActivityDate) == 1:
		p.CurrentStreak++
	default:
		p.CurrentStreak = 1
	}
	p.BestStreak = max(p.BestStreak, p.CurrentStreak)
	last := day
	p.LastActivityDate = &last

	changed := before.CurrentStreak != p.CurrentStreak ||
		before.BestStreak != p.BestStreak ||
		before.LastActivityDate == nil || *before.LastActivityDate != day
	return changed, nil
}
