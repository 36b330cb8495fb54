package main

import (
	"time"

	"cloud.google.com/go/civil"
)

type TransitType string

const (
	TransitBus   TransitType = "bus"
	TransitMetro TransitType = "metro"
)

type TripStatus string

const (
	TripUpcoming  TripStatus = "upcoming"
	TripCompleted TripStatus = "completed"
	TripCancelled TripStatus = "cancelled"
)

type TransactionReason string

const (
	ReasonTripReward TransactionReason = "trip-reward"
	ReasonRedemption TransactionReason = "redemption"
	ReasonAdjustment TransactionReason = "adjustment"
)

type BadgeCategory string

const (
	CategoryAchievement BadgeCategory = "achievement"
	CategoryTransport   BadgeCategory = "transport"
	CategoryConsistency BadgeCategory = "consistency"
)

// BadgeMetric names the statistic a badge threshold is compared against.
type BadgeMetric string

const (
	MetricTotalTrips    BadgeMetric = "total_trips"
	MetricBusTrips      BadgeMetric = "bus_trips"
	MetricMetroTrips    BadgeMetric = "metro_trips"
	MetricCurrentStreak BadgeMetric = "current_streak"
	MetricBestStreak    BadgeMetric = "best_streak"
	MetricCO2Saved      BadgeMetric = "co2_saved"
	MetricTotalPoints   BadgeMetric = "total_points"
)

type RewardStatus string

const (
	RewardAvailable RewardStatus = "available"
	RewardClaimed   RewardStatus = "claimed"
)

type ClaimStatus string

const (
	ClaimActive ClaimStatus = "active"
	ClaimUsed   ClaimStatus = "used"
)

// UserProgress is the per-user snapshot owned by the point ledger.
type UserProgress struct {
	UserID           string      `json:"user_id"`
	TotalPoints      int         `json:"total_points"`
	TotalCO2Saved    float64     `json:"total_co2_saved"`
	TotalTrips       int         `json:"total_trips"`
	CurrentStreak    int         `json:"current_streak"`
	BestStreak       int         `json:"best_streak"`
	UnlockedBadges   []string    `json:"unlocked_badges"`
	LastActivityDate *civil.Date `json:"last_activity_date,omitempty"`
}

type Transaction struct {
	ID               string            `json:"id"`
	UserID           string            `json:"user_id"`
	Amount           int               `json:"amount"`
	ResultingBalance int               `json:"resulting_balance"`
	Reason           TransactionReason `json:"reason"`
	Reference        string            `json:"reference,omitempty"` // trip or claim id
	Note             string            `json:"note,omitempty"`
	Timestamp        time.Time         `json:"timestamp"`
}

type TripRecord struct {
	ID           string      `json:"id"`
	UserID       string      `json:"user_id"`
	TransitType  TransitType `json:"transit_type"`
	Distance     float64     `json:"distance"`
	CO2Saved     float64     `json:"co2_saved"`
	PointsEarned int         `json:"points_earned"`
	Date         civil.Date  `json:"date"`
	Status       TripStatus  `json:"status"`
	LoggedAt     time.Time   `json:"logged_at"`
}

type BadgeDefinition struct {
	ID          string        `json:"id" yaml:"id"`
	Name        string        `json:"name" yaml:"name"`
	Description string        `json:"description" yaml:"description"`
	Icon        string        `json:"icon" yaml:"icon"`
	Category    BadgeCategory `json:"category" yaml:"category"`
	Metric      BadgeMetric   `json:"metric" yaml:"metric"`
	Requirement float64       `json:"requirement" yaml:"requirement"`
}

type RewardDefinition struct {
	ID             string     `json:"id" yaml:"id"`
	Name           string     `json:"name" yaml:"name"`
	Description    string     `json:"description" yaml:"description"`
	Category       string     `json:"category" yaml:"category"`
	Image          string     `json:"image" yaml:"image"`
	PointsCost     int        `json:"points_cost" yaml:"points_cost"`
	Active         bool       `json:"active" yaml:"active"`
	Repeatable     bool       `json:"repeatable" yaml:"repeatable"`
	AvailableUntil *time.Time `json:"available_until,omitempty" yaml:"available_until,omitempty"`
}

// Available reports whether the reward can be listed and redeemed at now.
func (r RewardDefinition) Available(now time.Time) bool {
	if !r.Active {
		return false
	}
	return r.AvailableUntil == nil || now.Before(*r.AvailableUntil)
}

// RewardListing is a catalog entry annotated for one user.
type RewardListing struct {
	RewardDefinition
	Status RewardStatus `json:"status"`
}

type RewardClaim struct {
	ID         string      `json:"id"`
	UserID     string      `json:"user_id"`
	RewardID   string      `json:"reward_id"`
	RewardName string      `json:"reward_name"`
	PointsCost int         `json:"points_cost"`
	ClaimedAt  time.Time   `json:"claimed_at"`
	CouponCode string      `json:"coupon_code"`
	Status     ClaimStatus `json:"status"`
	UsedAt     *time.Time  `json:"used_at,omitempty"`
}

type LeaderboardEntry struct {
	Rank          int     `json:"rank"`
	UserID        string  `json:"user_id"`
	Points        int     `json:"points"`
	CO2Saved      float64 `json:"co2_saved"`
	TotalTrips    int     `json:"total_trips"`
	CurrentStreak int     `json:"current_streak"`
	Badges        int     `json:"badges"`
}
