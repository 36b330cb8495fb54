package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// couponAlphabet leaves out 0, O, 1 and I.
const (
	couponAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	couponLength   = 8
	couponAttempts = 5
)

// NewCouponCode returns a random code drawn from couponAlphabet.
func NewCouponCode() (string, error) {
	base := big.NewInt(int64(len(couponAlphabet)))
	code := make([]byte, couponLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", fmt.Errorf("generate coupon code: %w", err)
		}
		code[i] = couponAlphabet[n.Int64()]
	}
	return string(code), nil
}

// RedemptionEngine exchanges points for reward claims.
type RedemptionEngine struct {
	accounts *accountStore
	catalog  *Catalog
	coupons  func() (string, error)
	now      func() time.Time
}

func NewRedemptionEngine(accounts *accountStore, catalog *Catalog, coupons func() (string, error), now func() time.Time) *RedemptionEngine {
	if coupons == nil {
		coupons = NewCouponCode
	}
	return &RedemptionEngine{accounts: accounts, catalog: catalog, coupons: coupons, now: now}
}

// ListAvailable returns the listable rewards, optionally narrowed to one
// category, annotated with the user's claim status.
func (e *RedemptionEngine) ListAvailable(ctx context.Context, userID, category string) ([]RewardListing, error) {
	acct, err := e.accounts.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	rewards, err := e.catalog.List(ctx)
	if err != nil {
		return nil, err
	}

	now := e.now()
	listings := make([]RewardListing, 0, len(rewards))
	for _, r := range rewards {
		if !r.Available(now) {
			continue
		}
		if category != "" && r.Category != category {
			continue
		}
		status := RewardAvailable
		if !r.Repeatable && hasClaim(acct, r.ID) {
			status = RewardClaimed
		}
		listings = append(listings, RewardListing{RewardDefinition: r, Status: status})
	}
	return listings, nil
}

// Redeem debits the reward cost and records a claim in one write. Either
// both the debit transaction and the claim are stored, or neither is.
func (e *RedemptionEngine) Redeem(ctx context.Context, userID, rewardID string) (RewardClaim, error) {
	reward, ok, err := e.catalog.Get(ctx, rewardID)
	if err != nil {
		return RewardClaim{}, err
	}
	if !ok || !reward.Available(e.now()) {
		return RewardClaim{}, fmt.Errorf("%w: %s", ErrRewardNotFound, rewardID)
	}

	var claim RewardClaim
	_, err = e.accounts.update(ctx, userID, func(a *Account) error {
		if !reward.Repeatable && hasClaim(a, reward.ID) {
			return fmt.Errorf("%w: %s", ErrAlreadyClaimed, reward.ID)
		}
		code, err := e.uniqueCoupon(a)
		if err != nil {
			return err
		}
		now := e.now().UTC()
		claim = RewardClaim{
			ID:         uuid.NewString(),
			UserID:     userID,
			RewardID:   reward.ID,
			RewardName: reward.Name,
			PointsCost: reward.PointsCost,
			ClaimedAt:  now,
			CouponCode: code,
			Status:     ClaimActive,
		}
		if _, err := applyDebit(a, now, reward.PointsCost, ReasonRedemption, claim.ID, reward.Name); err != nil {
			return err
		}
		a.Claims = append(a.Claims, claim)
		return nil
	})
	if err != nil {
		return RewardClaim{}, err
	}
	return claim, nil
}

// Claims returns the user's claims, most recent first.
func (e *RedemptionEngine) Claims(ctx context.Context, userID string) ([]RewardClaim, error) {
	acct, err := e.accounts.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]RewardClaim, 0, len(acct.Claims))
	for i := len(acct.Claims) - 1; i >= 0; i-- {
		out = append(out, acct.Claims[i])
	}
	return out, nil
}

// MarkUsed records that the coupon of a claim has been spent.
func (e *RedemptionEngine) MarkUsed(ctx context.Context, userID, claimID string) (RewardClaim, error) {
	var used RewardClaim
	_, err := e.accounts.update(ctx, userID, func(a *Account) error {
		for i := range a.Claims {
			if a.Claims[i].ID != claimID {
				continue
			}
			if a.Claims[i].Status == ClaimUsed {
				return fmt.Errorf("%w: %s", ErrClaimUsed, claimID)
			}
			now := e.now().UTC()
			a.Claims[i].Status = ClaimUsed
			a.Claims[i].UsedAt = &now
			used = a.Claims[i]
			return nil
		}
		return fmt.Errorf("%w: %s", ErrClaimNotFound, claimID)
	})
	if err != nil {
		return RewardClaim{}, err
	}
	return used, nil
}

// uniqueCoupon draws a code not used by any of the account's claims. Codes
// are unique per user only; two users may hold the same code, so a coupon is
// always looked up together with its user id.
func (e *RedemptionEngine) uniqueCoupon(a *Account) (string, error) {
	for i := 0; i < couponAttempts; i++ {
		code, err := e.coupons()
		if err != nil {
			return "", err
		}
		taken := false
		for _, c := range a.Claims {
			if c.CouponCode == code {
				taken = true
				break
			}
		}
		if !taken {
			return code, nil
		}
	}
	return "", fmt.Errorf("no unused coupon code after %d attempts", couponAttempts)
}

// hasClaim reports whether the account holds any claim for rewardID. Used
// claims still count.
func hasClaim(a *Account, rewardID string) bool {
	for _, c := range a.Claims {
		if c.RewardID == rewardID {
			return true
		}
	}
	return false
}
