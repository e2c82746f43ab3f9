package models

import "time"

// PlaidItem is one aggregator connection: its credential and the cursor of its change feed.
type PlaidItem struct {
	ID          string    `json:"id"`
	TeamID      string    `json:"team_id"`
	ItemID      string    `json:"item_id"`
	AccessToken string    `json:"-"`
	Cursor      string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}
