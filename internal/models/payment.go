package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TipMethod string

const (
	TipPercentage TipMethod = "PERCENTAGE"
	TipAmount     TipMethod = "AMOUNT"
)

type PaymentType string

const (
	PaymentCash PaymentType = "CASH"
	PaymentPOS  PaymentType = "POS"
)

func (p PaymentType) Valid() bool {
	return p == PaymentCash || p == PaymentPOS
}

// Payment applies funds to exactly one order and is never updated after insert.
type Payment struct {
	bun.BaseModel `bun:"table:payments,alias:p"`

	ID            string      `bun:"id,pk" json:"id"`
	OrderID       string      `bun:"order_id,notnull" json:"orderId"`
	TableID       string      `bun:"table_id,notnull" json:"tableId"`
	RestaurantID  string      `bun:"restaurant_id,notnull" json:"restaurantId"`
	Amount        float64     `bun:"amount,notnull" json:"amount"`
	TipAmount     float64     `bun:"tip_amount,notnull" json:"tipAmount"`
	TipMethod     TipMethod   `bun:"tip_method,notnull" json:"tipMethod"`
	Total         float64     `bun:"total,notnull" json:"total"`
	// PaymentType is the tender and is set only on the payment of a batch that carries the tip.
	PaymentType   PaymentType `bun:"payment_type,nullzero" json:"paymentType,omitempty"`
	ProcessedBy   *string     `bun:"processed_by" json:"processedBy"`
	PayerDeviceID *string     `bun:"payer_device_id" json:"payerDeviceId,omitempty"`
	CreatedAt     time.Time   `bun:"created_at,notnull" json:"createdAt"`
}

type BillRequest struct {
	bun.BaseModel `bun:"table:bill_requests,alias:br"`

	ID           string      `bun:"id,pk" json:"id"`
	RestaurantID string      `bun:"restaurant_id,notnull" json:"restaurantId"`
	TableID      string      `bun:"table_id,notnull" json:"tableId"`
	DeviceID     string      `bun:"device_id,notnull" json:"deviceId"`
	PaymentType  PaymentType `bun:"payment_type,notnull" json:"paymentType"`
	Processed    bool        `bun:"processed,notnull" json:"processed"`
	ProcessedBy  *string     `bun:"processed_by" json:"processedBy,omitempty"`
	ProcessedAt  *time.Time  `bun:"processed_at" json:"processedAt,omitempty"`
	CreatedAt    time.Time   `bun:"created_at,notnull" json:"createdAt"`

	Orders []BillRequestOrder `bun:"rel:has-many,join:id=bill_request_id" json:"-"`
}

// OrderIDs flattens the relation for responses and events.
func (b *BillRequest) OrderIDs() []string {
	ids := make([]string, 0, len(b.Orders))
	for _, o := range b.Orders {
		ids = append(ids, o.OrderID)
	}
	return ids
}

type BillRequestOrder struct {
	bun.BaseModel `bun:"table:bill_request_orders,alias:bro"`

	BillRequestID string `bun:"bill_request_id,pk" json:"billRequestId"`
	OrderID       string `bun:"order_id,pk" json:"orderId"`
}
