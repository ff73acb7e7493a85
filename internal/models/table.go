package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TableStatus string

const (
	TableAvailable     TableStatus = "AVAILABLE"
	TableBusy          TableStatus = "BUSY"
	TableBillRequested TableStatus = "BILL_REQUESTED"
	TableReady         TableStatus = "READY"
)

func (s TableStatus) Valid() bool {
	switch s {
	case TableAvailable, TableBusy, TableBillRequested, TableReady:
		return true
	}
	return false
}

type Restaurant struct {
	bun.BaseModel `bun:"table:restaurants,alias:r"`

	ID   string `bun:"id,pk" json:"id"`
	Name string `bun:"name,notnull" json:"name"`
	Slug string `bun:"slug,notnull,unique" json:"slug"`
}

// LastResetAt marks the start of the current occupancy; orders before it are history.
type Table struct {
	bun.BaseModel `bun:"table:dining_tables,alias:dt"`

	ID           string      `bun:"id,pk" json:"id"`
	RestaurantID string      `bun:"restaurant_id,notnull" json:"restaurantId"`
	Name         string      `bun:"name,notnull" json:"name"`
	Status       TableStatus `bun:"status,notnull" json:"status"`
	ServerID     *string     `bun:"server_id" json:"serverId"`
	LastResetAt  *time.Time  `bun:"last_reset_at" json:"lastResetAt"`
	CreatedAt    time.Time   `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt    time.Time   `bun:"updated_at,notnull" json:"updatedAt"`
}

// TableSession rows are deactivated, never deleted.
type TableSession struct {
	bun.BaseModel `bun:"table:table_sessions,alias:ts"`

	ID        string    `bun:"id,pk" json:"id"`
	TableID   string    `bun:"table_id,notnull" json:"tableId"`
	Token     string    `bun:"token,notnull,unique" json:"token"`
	Active    bool      `bun:"active,notnull" json:"active"`
	ExpiresAt time.Time `bun:"expires_at,notnull" json:"expiresAt"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"createdAt"`
}
