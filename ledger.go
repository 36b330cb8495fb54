package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger owns point balances and the append-only transaction log.
type Ledger struct {
	accounts *accountStore
	badges   *BadgeEvaluator
	now      func() time.Time
}

func NewLedger(accounts *accountStore, badges *BadgeEvaluator, now func() time.Time) *Ledger {
	return &Ledger{accounts: accounts, badges: badges, now: now}
}

type creditInput struct {
	Points    int
	CO2Saved  float64
	TripCount int
	Reference string
	Note      string
}

// Credit adds points and trip statistics, then re-checks badges in the same write.
func (l *Ledger) Credit(ctx context.Context, userID string, points int, co2Saved float64, tripCount int) (UserProgress, error) {
	in := creditInput{Points: points, CO2Saved: co2Saved, TripCount: tripCount}
	if err := in.check(); err != nil {
		return UserProgress{}, err
	}
	acct, err := l.accounts.update(ctx, userID, func(a *Account) error {
		applyCredit(a, l.now(), in)
		l.badges.unlock(a)
		return nil
	})
	if err != nil {
		return UserProgress{}, err
	}
	return acct.Progress, nil
}

// Debit removes points. The balance check runs against the same snapshot
// that is written back.
func (l *Ledger) Debit(ctx context.Context, userID string, points int) (UserProgress, error) {
	if points <= 0 {
		return UserProgress{}, fmt.Errorf("%w: debit of %d", ErrInvalidAmount, points)
	}
	acct, err := l.accounts.update(ctx, userID, func(a *Account) error {
		_, err := applyDebit(a, l.now(), points, ReasonRedemption, "", "")
		return err
	})
	if err != nil {
		return UserProgress{}, err
	}
	return acct.Progress, nil
}

// Adjust applies a signed manual correction. It cannot drive the balance negative.
func (l *Ledger) Adjust(ctx context.Context, userID string, amount int, note string) (UserProgress, error) {
	if amount == 0 {
		return UserProgress{}, fmt.Errorf("%w: zero adjustment", ErrInvalidAmount)
	}
	acct, err := l.accounts.update(ctx, userID, func(a *Account) error {
		if amount < 0 {
			_, err := applyDebit(a, l.now(), -amount, ReasonAdjustment, "", note)
			return err
		}
		appendTransaction(a, l.now(), amount, ReasonAdjustment, "", note)
		return nil
	})
	if err != nil {
		return UserProgress{}, err
	}
	return acct.Progress, nil
}

func (l *Ledger) Balance(ctx context.Context, userID string) (int, error) {
	acct, err := l.accounts.load(ctx, userID)
	if err != nil {
		return 0, err
	}
	return acct.Progress.TotalPoints, nil
}

func (l *Ledger) Progress(ctx context.Context, userID string) (UserProgress, error) {
	acct, err := l.accounts.load(ctx, userID)
	if err != nil {
		return UserProgress{}, err
	}
	return acct.Progress, nil
}

// History returns the user's transactions, most recent first. limit <= 0 means all.
func (l *Ledger) History(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	acct, err := l.accounts.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	n := len(acct.Transactions)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Transaction, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, acct.Transactions[i])
	}
	return out, nil
}

// Reconcile verifies the transaction log against the stored balance.
func (l *Ledger) Reconcile(ctx context.Context, userID string) error {
	acct, err := l.accounts.load(ctx, userID)
	if err != nil {
		return err
	}
	return acct.reconcile()
}

func (in creditInput) check() error {
	if in.Points < 0 {
		return fmt.Errorf("%w: negative points %d", ErrInvalidAmount, in.Points)
	}
	if in.CO2Saved < 0 {
		return fmt.Errorf("%w: negative co2 %v", ErrInvalidAmount, in.CO2Saved)
	}
	if in.TripCount < 0 {
		return fmt.Errorf("%w: negative trip count %d", ErrInvalidAmount, in.TripCount)
	}
	return nil
}

func applyCredit(a *Account, now time.Time, in creditInput) {
	a.Progress.TotalCO2Saved = addCO2(a.Progress.TotalCO2Saved, in.CO2Saved)
	a.Progress.TotalTrips += in.TripCount
	appendTransaction(a, now, in.Points, ReasonTripReward, in.Reference, in.Note)
}

func applyDebit(a *Account, now time.Time, points int, reason TransactionReason, ref, note string) (Transaction, error) {
	if points > a.Progress.TotalPoints {
		return Transaction{}, fmt.Errorf("%w: need %d, have %d", ErrInsufficientBalance, points, a.Progress.TotalPoints)
	}
	return appendTransaction(a, now, -points, reason, ref, note), nil
}

func appendTransaction(a *Account, now time.Time, amount int, reason TransactionReason, ref, note string) Transaction {
	a.Progress.TotalPoints += amount
	tx := Transaction{
		ID:               uuid.NewString(),
		UserID:           a.Progress.UserID,
		Amount:           amount,
		ResultingBalance: a.Progress.TotalPoints,
		Reason:           reason,
		Reference:        ref,
		Note:             note,
		Timestamp:        now.UTC(),
	}
	a.Transactions = append(a.Transactions, tx)
	return tx
}

// addCO2 sums kilograms on a decimal base rounded to grams, so repeated
// credits do not accumulate float error.
func addCO2(total, delta float64) float64 {
	return decimal.NewFromFloat(total).Add(decimal.NewFromFloat(delta)).Round(3).InexactFloat64()
}
