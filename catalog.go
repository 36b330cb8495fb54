package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var defaultRewards = []RewardDefinition{
	{ID: "free-coffee", Name: "Free Coffee", Description: "Get a free coffee at participating cafes", PointsCost: 50, Category: "food", Image: "☕", Active: true},
	{ID: "metro-pass-10", Name: "10% Off Metro Pass", Description: "10% discount on your next metro pass purchase", PointsCost: 80, Category: "transport", Image: "🚇", Active: true},
	{ID: "bus-pass-5", Name: "5% Off Bus Pass", Description: "5% discount on your next monthly bus pass", PointsCost: 100, Category: "transport", Image: "🚌", Active: true},
	{ID: "first-ride-20", Name: "20% Off First Ride", Description: "20% discount on your first eco-friendly cab ride", PointsCost: 120, Category: "transport", Image: "🚗", Active: true},
	{ID: "plant-a-tree", Name: "Plant a Tree", Description: "We'll plant a tree on your behalf", PointsCost: 150, Category: "eco", Image: "🌳", Active: true},
	{ID: "vegan-meal", Name: "Free Vegan Meal", Description: "Enjoy a complimentary vegan meal at participating restaurants", PointsCost: 180, Category: "food", Image: "🥗", Active: true},
	{ID: "movie-ticket", Name: "Movie Ticket", Description: "One free movie ticket at select theaters", PointsCost: 200, Category: "entertainment", Image: "🎬", Active: true},
	{ID: "eco-shopping-15", Name: "Eco Shopping Discount", Description: "15% off at eco-friendly stores", PointsCost: 220, Category: "eco", Image: "🛍️", Active: true},
	{ID: "bike-rental", Name: "Free Bike Rental", Description: "One day of free bike rental", PointsCost: 250, Category: "transport", Image: "🚲", Active: true},
	{ID: "concert-ticket", Name: "Concert Ticket", Description: "Get a free ticket to an upcoming eco-awareness concert", PointsCost: 300, Category: "entertainment", Image: "🎵", Active: true},
}

// CatalogFile is the YAML layout accepted by CATALOG_FILE.
type CatalogFile struct {
	Rewards []RewardDefinition `yaml:"rewards"`
	Badges  []BadgeDefinition  `yaml:"badges"`
}

// LoadCatalogFile reads a catalog file. Sections left empty fall back to the
// built-in defaults.
func LoadCatalogFile(path string) (CatalogFile, error) {
	file := CatalogFile{Rewards: defaultRewards, Badges: defaultBadges}
	if path == "" {
		return file, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return file, fmt.Errorf("read catalog: %w", err)
	}
	var parsed CatalogFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return file, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	for _, r := range parsed.Rewards {
		if err := r.validate(); err != nil {
			return file, fmt.Errorf("catalog %s: %w", path, err)
		}
	}
	for _, b := range parsed.Badges {
		if b.ID == "" || b.Metric == "" || b.Requirement <= 0 {
			return file, fmt.Errorf("catalog %s: badge %q needs id, metric and a positive requirement", path, b.ID)
		}
	}
	if len(parsed.Rewards) > 0 {
		file.Rewards = parsed.Rewards
	}
	if len(parsed.Badges) > 0 {
		file.Badges = parsed.Badges
	}
	return file, nil
}

func (r RewardDefinition) validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidReward)
	}
	if r.PointsCost <= 0 {
		return fmt.Errorf("%w: %s has non-positive cost %d", ErrInvalidReward, r.ID, r.PointsCost)
	}
	return nil
}

const catalogKey = "catalog/rewards"

type rewardCatalog struct {
	Rewards []RewardDefinition `json:"rewards"`
}

// Catalog is the persisted reward catalog.
type Catalog struct {
	updater *recordUpdater
}

func NewCatalog(updater *recordUpdater) *Catalog {
	return &Catalog{updater: updater}
}

// Seed stores rewards if no catalog exists yet and reports whether it did.
func (c *Catalog) Seed(ctx context.Context, rewards []RewardDefinition) (bool, error) {
	var seeded bool
	_, err := updateJSON(ctx, c.updater, catalogKey, func(cat *rewardCatalog) error {
		if len(cat.Rewards) > 0 {
			seeded = false
			return errUnchanged
		}
		seeded = true
		cat.Rewards = append([]RewardDefinition(nil), rewards...)
		return nil
	})
	return seeded, err
}

// List returns every reward, cheapest first.
func (c *Catalog) List(ctx context.Context) ([]RewardDefinition, error) {
	cat, _, err := readJSON[rewardCatalog](ctx, c.updater.store, catalogKey)
	if err != nil {
		return nil, err
	}
	rewards := cat.Rewards
	sort.SliceStable(rewards, func(i, j int) bool {
		if rewards[i].PointsCost != rewards[j].PointsCost {
			return rewards[i].PointsCost < rewards[j].PointsCost
		}
		return rewards[i].ID < rewards[j].ID
	})
	return rewards, nil
}

func (c *Catalog) Get(ctx context.Context, id string) (RewardDefinition, bool, error) {
	rewards, err := c.List(ctx)
	if err != nil {
		return RewardDefinition{}, false, err
	}
	for _, r := range rewards {
		if r.ID == id {
			return r, true, nil
		}
	}
	return RewardDefinition{}, false, nil
}

// Upsert adds reward or replaces the entry with the same id.
func (c *Catalog) Upsert(ctx context.Context, reward RewardDefinition) error {
	if err := reward.validate(); err != nil {
		return err
	}
	_, err := updateJSON(ctx, c.updater, catalogKey, func(cat *rewardCatalog) error {
		for i := range cat.Rewards {
			if cat.Rewards[i].ID == reward.ID {
				cat.Rewards[i] = reward
				return nil
			}
		}
		cat.Rewards = append(cat.Rewards, reward)
		return nil
	})
	return err
}

// Deactivate hides a reward from listings. Existing claims are unaffected.
func (c *Catalog) Deactivate(ctx context.Context, id string) error {
	_, err := updateJSON(ctx, c.updater, catalogKey, func(cat *rewardCatalog) error {
		for i := range cat.Rewards {
			if cat.Rewards[i].ID == id {
				if !cat.Rewards[i].Active {
					return errUnchanged
				}
				cat.Rewards[i].Active = false
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrRewardNotFound, id)
	})
	return err
}
