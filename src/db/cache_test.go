package db

import (
	"testing"

	"github.com/stretchr/testify/require"

	"budgee-sync/src/models"
)

func TestCategoryCache(t *testing.T) {
	c, err := NewCategoryCache()
	require.NoError(t, err)
	defer c.Close()

	_, ok := c.Get("b1")
	require.False(t, ok)

	cfg := &models.BudgetCategoryConfig{BudgetID: "b1", Groups: []models.CategoryGroup{{ID: "grp_other", Name: "Other"}}}
	c.Set(cfg)
	got, ok := c.Get("b1")
	require.True(t, ok)
	require.Equal(t, cfg, got)

	c.Invalidate("b1")
	_, ok = c.Get("b1")
	require.False(t, ok)
}

func TestNilCategoryCache(t *testing.T) {
	var c *CategoryCache
	c.Set(&models.BudgetCategoryConfig{BudgetID: "b1"})
	_, ok := c.Get("b1")
	require.False(t, ok)
	c.Invalidate("b1")
}
