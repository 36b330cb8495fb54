package main

import (
	"context"
	"fmt"
	"strings"
)

// Account is the persisted document for one user. Progress, the transaction
// log, the trip log and the claims live together so that a credit and the
// trip it pays for, or a debit and the claim it pays for, are committed by
// the same write.
type Account struct {
	Progress     UserProgress  `json:"progress"`
	Transactions []Transaction `json:"transactions"`
	Trips        []TripRecord  `json:"trips"`
	Claims       []RewardClaim `json:"claims"`
}

func accountKey(userID string) string { return "account/" + userID }

func (a *Account) validate() error {
	p := a.Progress
	if p.TotalPoints < 0 {
		return fmt.Errorf("negative balance %d", p.TotalPoints)
	}
	if p.TotalCO2Saved < 0 || p.TotalTrips < 0 || p.CurrentStreak < 0 {
		return fmt.Errorf("negative counters")
	}
	if p.BestStreak < p.CurrentStreak {
		return fmt.Errorf("best streak %d below current streak %d", p.BestStreak, p.CurrentStreak)
	}
	return a.reconcile()
}

// reconcile checks that the transaction log sums to the balance.
func (a *Account) reconcile() error {
	sum := 0
	for _, tx := range a.Transactions {
		sum += tx.Amount
	}
	if sum != a.Progress.TotalPoints {
		return fmt.Errorf("transactions sum to %d, balance is %d", sum, a.Progress.TotalPoints)
	}
	return nil
}

// findTrip returns the logged trip with id, if any.
func (a *Account) findTrip(id string) (TripRecord, bool) {
	for _, trip := range a.Trips {
		if trip.ID == id {
			return trip, true
		}
	}
	return TripRecord{}, false
}

// tripCounts tallies credited trips by transit type.
func (a *Account) tripCounts() TripCounts {
	counts := TripCounts{}
	for _, trip := range a.Trips {
		if trip.Status == TripCancelled {
			continue
		}
		counts[trip.TransitType]++
	}
	return counts
}

func (a *Account) normalize(userID string) {
	a.Progress.UserID = userID
	if a.Progress.UnlockedBadges == nil {
		a.Progress.UnlockedBadges = []string{}
	}
}

type accountStore struct {
	updater *recordUpdater
}

func newAccountStore(updater *recordUpdater) *accountStore {
	return &accountStore{updater: updater}
}

func (s *accountStore) load(ctx context.Context, userID string) (*Account, error) {
	if err := checkUserID(userID); err != nil {
		return nil, err
	}
	acct, _, err := readJSON[Account](ctx, s.updater.store, accountKey(userID))
	if err != nil {
		return nil, err
	}
	acct.normalize(userID)
	return &acct, nil
}

func (s *accountStore) update(ctx context.Context, userID string, fn func(*Account) error) (*Account, error) {
	if err := checkUserID(userID); err != nil {
		return nil, err
	}
	acct, err := updateJSON(ctx, s.updater, accountKey(userID), func(a *Account) error {
		a.normalize(userID)
		return fn(a)
	})
	if err != nil {
		return nil, err
	}
	acct.normalize(userID)
	return &acct, nil
}

func checkUserID(userID string) error {
	if strings.TrimSpace(userID) == "" || strings.Contains(userID, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidUser, userID)
	}
	return nil
}
