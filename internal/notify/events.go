package notify

import (
	"time"

	"ms-tableside/internal/bus"
	"ms-tableside/internal/models"
)

const (
	EventNewOrder           = "new_order"
	EventOrderCreated       = "order_created"
	EventOrderUpdated       = "order_updated"
	EventOrderStatusUpdated = "order_status_updated"
	EventPaymentProcessed   = "payment_processed"
	EventTableStatusChanged = "table_status_changed"
	EventBillRequested      = "bill_requested"
	EventSessionRevoked     = "table_session_revoked"
	EventWaiterCalled       = "waiter_called"
)

type route struct {
	topic   string
	event   string
	payload any
}

// Event is a domain change that knows which topics hear about it.
type Event interface {
	routes() []route
}

// OrderCreated: TableServerID nil means nobody is assigned and every server should look.
type OrderCreated struct {
	Order         models.Order
	TableName     string
	TableServerID *string
}

func (e OrderCreated) routes() []route {
	return []route{
		{bus.RestaurantTopic(e.Order.RestaurantID), EventNewOrder, struct {
			Order         models.Order `json:"order"`
			TableName     string       `json:"tableName"`
			TableServerID *string      `json:"tableServerId"`
		}{e.Order, e.TableName, e.TableServerID}},
		{bus.TableTopic(e.Order.TableID), EventOrderCreated, e.Order},
	}
}

type OrderUpdated struct {
	Order models.Order
}

func (e OrderUpdated) routes() []route {
	return []route{
		{bus.RestaurantTopic(e.Order.RestaurantID), EventOrderUpdated, e.Order},
		{bus.TableTopic(e.Order.TableID), EventOrderStatusUpdated, struct {
			OrderID string             `json:"orderId"`
			Status  models.OrderStatus `json:"status"`
			Order   models.Order       `json:"order"`
		}{e.Order.ID, e.Order.Status, e.Order}},
	}
}

type PaymentProcessed struct {
	TableID     string           `json:"tableId"`
	Payments    []models.Payment `json:"payments"`
	TotalAmount float64          `json:"totalAmount"`
	TipAmount   float64          `json:"tipAmount"`
	ProcessedBy *string          `json:"processedBy"`
}

func (e PaymentProcessed) routes() []route {
	return []route{{bus.TableTopic(e.TableID), EventPaymentProcessed, e}}
}

type TableStatusChanged struct {
	Table models.Table
}

func (e TableStatusChanged) routes() []route {
	return []route{{bus.RestaurantTopic(e.Table.RestaurantID), EventTableStatusChanged, struct {
		TableID  string             `json:"tableId"`
		Name     string             `json:"name"`
		Status   models.TableStatus `json:"status"`
		ServerID *string            `json:"serverId"`
	}{e.Table.ID, e.Table.Name, e.Table.Status, e.Table.ServerID}}}
}

type BillRequested struct {
	Request   models.BillRequest
	TableName string
}

func (e BillRequested) routes() []route {
	return []route{{bus.RestaurantTopic(e.Request.RestaurantID), EventBillRequested, struct {
		ID          string             `json:"id"`
		TableID     string             `json:"tableId"`
		TableName   string             `json:"tableName"`
		DeviceID    string             `json:"deviceId"`
		OrderIDs    []string           `json:"orderIds"`
		PaymentType models.PaymentType `json:"paymentType"`
		CreatedAt   time.Time          `json:"createdAt"`
	}{e.Request.ID, e.Request.TableID, e.TableName, e.Request.DeviceID, e.Request.OrderIDs(), e.Request.PaymentType, e.Request.CreatedAt}}}
}

// SessionRevoked tells devices on the table to drop their local session and cart.
type SessionRevoked struct {
	TableID string `json:"tableId"`
	Reason  string `json:"reason"`
}

func (e SessionRevoked) routes() []route {
	return []route{{bus.TableTopic(e.TableID), EventSessionRevoked, e}}
}

type WaiterCalled struct {
	RestaurantID string    `json:"-"`
	TableID      string    `json:"tableId"`
	TableName    string    `json:"tableName"`
	DeviceID     string    `json:"deviceId"`
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
}

func (e WaiterCalled) routes() []route {
	return []route{{bus.RestaurantTopic(e.RestaurantID), EventWaiterCalled, e}}
}
