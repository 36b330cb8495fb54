package main

import (
	"context"
	"fmt"
	"sort"
)

// TripCounts holds credited trips per transit type.
type TripCounts map[TransitType]int

// TripStore reads the trip log kept in each account. Trips are appended by
// Rewards.LogTrip in the same write that credits them.
type TripStore struct {
	accounts *accountStore
}

func NewTripStore(accounts *accountStore) *TripStore {
	return &TripStore{accounts: accounts}
}

// List returns the user's trips, most recent travel date first.
func (s *TripStore) List(ctx context.Context, userID string) ([]TripRecord, error) {
	acct, err := s.accounts.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	trips := append([]TripRecord{}, acct.Trips...)
	sort.SliceStable(trips, func(i, j int) bool {
		if trips[i].Date != trips[j].Date {
			return trips[i].Date.After(trips[j].Date)
		}
		return trips[i].LoggedAt.After(trips[j].LoggedAt)
	})
	return trips, nil
}

// Counts tallies the user's credited trips by transit type.
func (s *TripStore) Counts(ctx context.Context, userID string) (TripCounts, error) {
	acct, err := s.accounts.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return acct.tripCounts(), nil
}

func (t TripRecord) validate() error {
	switch t.TransitType {
	case TransitBus, TransitMetro:
	default:
		return fmt.Errorf("%w: transit type %q", ErrInvalidTrip, t.TransitType)
	}
	switch t.Status {
	case TripUpcoming, TripCompleted:
	case TripCancelled:
		return fmt.Errorf("%w: cancelled trips do not earn points", ErrInvalidTrip)
	default:
		return fmt.Errorf("%w: status %q", ErrInvalidTrip, t.Status)
	}
	if t.Distance < 0 || t.CO2Saved < 0 || t.PointsEarned < 0 {
		return fmt.Errorf("%w: negative distance, co2 or points", ErrInvalidTrip)
	}
	if !t.Date.IsValid() {
		return fmt.Errorf("%w: invalid date", ErrInvalidTrip)
	}
	return nil
}
