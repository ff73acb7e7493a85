package models

import (
	"time"

	"github.com/uptrace/bun"
)

type OrderStatus string

const (
	OrderServerReview OrderStatus = "SERVER_REVIEW"
	OrderPending      OrderStatus = "PENDING"
	OrderPreparing    OrderStatus = "PREPARING"
	OrderReady        OrderStatus = "READY"
	OrderServed       OrderStatus = "SERVED"
	OrderCancelled    OrderStatus = "CANCELLED"
)

type PaymentStatus string

const (
	PaymentUnpaid        PaymentStatus = "UNPAID"
	PaymentPartiallyPaid PaymentStatus = "PARTIALLY_PAID"
	PaymentPaid          PaymentStatus = "PAID"
)

// Order totals are a snapshot taken at creation; catalog price changes never touch them.
type Order struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	ID            string        `bun:"id,pk" json:"id"`
	RestaurantID  string        `bun:"restaurant_id,notnull" json:"restaurantId"`
	TableID       string        `bun:"table_id,notnull" json:"tableId"`
	DeviceID      string        `bun:"device_id,notnull" json:"deviceId"`
	Status        OrderStatus   `bun:"status,notnull" json:"status"`
	PaymentStatus PaymentStatus `bun:"payment_status,notnull" json:"paymentStatus"`
	Total         float64       `bun:"total,notnull" json:"total"`
	ServerNotes   string        `bun:"server_notes" json:"serverNotes,omitempty"`
	ClaimedBy     *string       `bun:"claimed_by" json:"claimedBy,omitempty"`
	ClaimedAt     *time.Time    `bun:"claimed_at" json:"claimedAt,omitempty"`
	Version       int64         `bun:"version,notnull" json:"-"`
	CreatedAt     time.Time     `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt     time.Time     `bun:"updated_at,notnull" json:"updatedAt"`

	Items []OrderItem `bun:"rel:has-many,join:id=order_id" json:"items,omitempty"`
}

type OrderItem struct {
	bun.BaseModel `bun:"table:order_items,alias:oi"`

	ID        string  `bun:"id,pk" json:"id"`
	OrderID   string  `bun:"order_id,notnull" json:"orderId"`
	ProductID string  `bun:"product_id,notnull" json:"productId"`
	Name      string  `bun:"name,notnull" json:"name"`
	UnitPrice float64 `bun:"unit_price,notnull" json:"unitPrice"`
	Quantity  int     `bun:"quantity,notnull" json:"quantity"`
	Notes     string  `bun:"notes" json:"notes,omitempty"`
	ImageURL  string  `bun:"image_url" json:"imageUrl,omitempty"`
}

// Product is read-only here; catalog management lives elsewhere.
type Product struct {
	bun.BaseModel `bun:"table:products,alias:pr"`

	ID           string  `bun:"id,pk" json:"id"`
	RestaurantID string  `bun:"restaurant_id,notnull" json:"restaurantId"`
	Name         string  `bun:"name,notnull" json:"name"`
	Price        float64 `bun:"price,notnull" json:"price"`
	ImageURL     string  `bun:"image_url" json:"imageUrl,omitempty"`
	Available    bool    `bun:"available,notnull" json:"available"`
}
