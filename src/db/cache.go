package db

import (
	"fmt"

	"github.com/dgraph-io/ristretto"

	"budgee-sync/src/models"
)

// CategoryCache holds each budget's effective category config.
// Entries are dropped whenever the budget's custom categories are written.
type CategoryCache struct {
	cache *ristretto.Cache
}

func NewCategoryCache() (*CategoryCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10000, // number of keys to track frequency of
		MaxCost:     10000,
		BufferItems: 64, // number of keys per Get buffer
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}
	return &CategoryCache{cache: c}, nil
}

func categoryKey(budgetID string) string {
	return "categories:" + budgetID
}

func (c *CategoryCache) Get(budgetID string) (*models.BudgetCategoryConfig, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.cache.Get(categoryKey(budgetID))
	if !ok {
		return nil, false
	}
	cfg, ok := v.(*models.BudgetCategoryConfig)
	return cfg, ok
}

// Set stores cfg. Callers must not mutate cfg afterwards.
func (c *CategoryCache) Set(cfg *models.BudgetCategoryConfig) {
	if c == nil || cfg == nil {
		return
	}
	c.cache.Set(categoryKey(cfg.BudgetID), cfg, 1)
	c.cache.Wait()
}

func (c *CategoryCache) Invalidate(budgetID string) {
	if c == nil {
		return
	}
	c.cache.Del(categoryKey(budgetID))
}

func (c *CategoryCache) Close() {
	if c != nil {
		c.cache.Close()
	}
}
