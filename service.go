package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

// Notifier receives user-facing events after state has been committed.
type Notifier interface {
	Notify(userID, eventType string, data interface{})
}

type nopNotifier struct{}

func (nopNotifier) Notify(string, string, interface{}) {}

// Rewards is the entry point for the page layer. It wires the ledger, the
// streak tracker, the badge evaluator and the redemption engine over one
// record store.
type Rewards struct {
	store      RecordStore
	ledger     *Ledger
	streaks    *StreakTracker
	badges     *BadgeEvaluator
	redemption *RedemptionEngine
	trips      *TripStore
	catalog    *Catalog
	notifier   Notifier
	logger     *slog.Logger
	now        func() time.Time
}

type RewardsOptions struct {
	Badges      []BadgeDefinition
	MaxAttempts int
	Coupons     func() (string, error)
	Notifier    Notifier
	Logger      *slog.Logger
	Now         func() time.Time
}

func NewRewards(store RecordStore, opts RewardsOptions) *Rewards {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	if opts.Badges == nil {
		opts.Badges = defaultBadges
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 3
	}

	updater := newRecordUpdater(store, opts.MaxAttempts, opts.Logger)
	accounts := newAccountStore(updater)
	trips := NewTripStore(accounts)
	badges := NewBadgeEvaluator(accounts, opts.Badges, opts.Logger)
	catalog := NewCatalog(updater)

	return &Rewards{
		store:      store,
		ledger:     NewLedger(accounts, badges, opts.Now),
		streaks:    NewStreakTracker(accounts, badges),
		badges:     badges,
		redemption: NewRedemptionEngine(accounts, catalog, opts.Coupons, opts.Now),
		trips:      trips,
		catalog:    catalog,
		notifier:   opts.Notifier,
		logger:     opts.Logger,
		now:        opts.Now,
	}
}

// TripOutcome is the result of logging one trip.
type TripOutcome struct {
	Trip            TripRecord   `json:"trip"`
	Progress        UserProgress `json:"progress"`
	NewBadges       []string     `json:"new_badges"`
	AlreadyCredited bool         `json:"already_credited"`
	StreakAdvanced  bool         `json:"streak_advanced"`
}

// LogTrip records a booked trip and, in a single account write, credits its
// points, advances the streak and re-checks badges. Logging the same trip id
// again never credits twice.
func (s *Rewards) LogTrip(ctx context.Context, trip TripRecord) (TripOutcome, error) {
	if trip.Status == "" {
		trip.Status = TripCompleted
	}
	if err := trip.validate(); err != nil {
		return TripOutcome{}, err
	}
	if err := checkUserID(trip.UserID); err != nil {
		return TripOutcome{}, err
	}
	if trip.ID == "" {
		trip.ID = uuid.NewString()
	}
	if trip.LoggedAt.IsZero() {
		trip.LoggedAt = s.now().UTC()
	}

	out := TripOutcome{Trip: trip}
	acct, err := s.ledger.accounts.update(ctx, trip.UserID, func(a *Account) error {
		out.Trip, out.NewBadges, out.AlreadyCredited, out.StreakAdvanced = trip, nil, false, false
		if existing, ok := a.findTrip(trip.ID); ok {
			out.Trip = existing
			out.AlreadyCredited = true
			return errUnchanged
		}
		a.Trips = append(a.Trips, trip)
		applyCredit(a, s.now(), creditInput{
			Points:    trip.PointsEarned,
			CO2Saved:  trip.CO2Saved,
			TripCount: 1,
			Reference: trip.ID,
			Note:      fmt.Sprintf("%s trip on %s", trip.TransitType, trip.Date),
		})
		changed, err := applyActivity(&a.Progress, trip.Date)
		if err != nil && !errors.Is(err, ErrStaleActivity) {
			return err
		}
		out.StreakAdvanced = changed
		out.NewBadges = s.badges.unlock(a)
		return nil
	})
	if err != nil {
		return TripOutcome{}, err
	}
	out.Progress = acct.Progress

	if !out.AlreadyCredited {
		s.announce(out.Progress, out.NewBadges)
	}
	return out, nil
}

func (s *Rewards) CreditTrip(ctx context.Context, userID string, points int, co2Saved float64, tripCount int) (UserProgress, error) {
	before, err := s.ledger.Progress(ctx, userID)
	if err != nil {
		return UserProgress{}, err
	}
	p, err := s.ledger.Credit(ctx, userID, points, co2Saved, tripCount)
	if err != nil {
		return UserProgress{}, err
	}
	s.announce(p, newBadges(before, p))
	return p, nil
}

func (s *Rewards) DebitPoints(ctx context.Context, userID string, points int) (UserProgress, error) {
	p, err := s.ledger.Debit(ctx, userID, points)
	if err != nil {
		return UserProgress{}, err
	}
	s.notifier.Notify(userID, "points-updated", p)
	return p, nil
}

func (s *Rewards) AdjustPoints(ctx context.Context, userID string, amount int, note string) (UserProgress, error) {
	p, err := s.ledger.Adjust(ctx, userID, amount, note)
	if err != nil {
		return UserProgress{}, err
	}
	s.logger.Info("points adjusted", "user", userID, "amount", amount, "balance", p.TotalPoints)
	s.notifier.Notify(userID, "points-updated", p)
	return p, nil
}

func (s *Rewards) GetProgress(ctx context.Context, userID string) (UserProgress, error) {
	return s.ledger.Progress(ctx, userID)
}

func (s *Rewards) GetTransactionHistory(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	return s.ledger.History(ctx, userID, limit)
}

func (s *Rewards) RecordTripActivity(ctx context.Context, userID string, day civil.Date) (UserProgress, error) {
	before, err := s.ledger.Progress(ctx, userID)
	if err != nil {
		return UserProgress{}, err
	}
	p, err := s.streaks.RecordActivity(ctx, userID, day)
	if err != nil {
		return UserProgress{}, err
	}
	s.announce(p, newBadges(before, p))
	return p, nil
}

func (s *Rewards) ResetStreak(ctx context.Context, userID string) (UserProgress, error) {
	return s.streaks.ResetStreak(ctx, userID)
}

func (s *Rewards) EvaluateBadges(ctx context.Context, userID string) ([]string, error) {
	unlocked, err := s.badges.Evaluate(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, id := range unlocked {
		s.notifier.Notify(userID, "badge-unlocked", map[string]string{"badge": id})
	}
	return unlocked, nil
}

func (s *Rewards) GetUnlockedBadges(ctx context.Context, userID string) ([]string, error) {
	return s.badges.Unlocked(ctx, userID)
}

func (s *Rewards) BadgeCatalog() []BadgeDefinition {
	return s.badges.Rules()
}

func (s *Rewards) ListRewards(ctx context.Context, userID, category string) ([]RewardListing, error) {
	return s.redemption.ListAvailable(ctx, userID, category)
}

func (s *Rewards) RedeemReward(ctx context.Context, userID, rewardID string) (RewardClaim, error) {
	claim, err := s.redemption.Redeem(ctx, userID, rewardID)
	if err != nil {
		return RewardClaim{}, err
	}
	s.logger.Info("reward redeemed", "user", userID, "reward", rewardID, "cost", claim.PointsCost)
	s.notifier.Notify(userID, "reward-redeemed", claim)
	return claim, nil
}

func (s *Rewards) ListClaims(ctx context.Context, userID string) ([]RewardClaim, error) {
	return s.redemption.Claims(ctx, userID)
}

func (s *Rewards) MarkClaimUsed(ctx context.Context, userID, claimID string) (RewardClaim, error) {
	return s.redemption.MarkUsed(ctx, userID, claimID)
}

func (s *Rewards) ListTrips(ctx context.Context, userID string) ([]TripRecord, error) {
	return s.trips.List(ctx, userID)
}

func (s *Rewards) Reconcile(ctx context.Context, userID string) error {
	return s.ledger.Reconcile(ctx, userID)
}

func (s *Rewards) Leaderboard(ctx context.Context, sortBy string, limit int) ([]LeaderboardEntry, error) {
	return Leaderboard(ctx, s.store, sortBy, limit)
}

func (s *Rewards) Catalog() *Catalog { return s.catalog }

func (s *Rewards) announce(p UserProgress, unlocked []string) {
	s.notifier.Notify(p.UserID, "points-updated", p)
	for _, id := range unlocked {
		s.logger.Info("badge unlocked", "user", p.UserID, "badge", id)
		s.notifier.Notify(p.UserID, "badge-unlocked", map[string]string{"badge": id})
	}
}

// newBadges lists badges present in after but not in before.
func newBadges(before, after UserProgress) []string {
	had := make(map[string]bool, len(before.UnlockedBadges))
	for _, id := range before.UnlockedBadges {
		had[id] = true
	}
	var out []string
	for _, id := range after.UnlockedBadges {
		if !had[id] {
			out = append(out, id)
		}
	}
	return out
}
