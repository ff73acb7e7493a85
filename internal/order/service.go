package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ms-tableside/internal/apperr"
	"ms-tableside/internal/auth"
	"ms-tableside/internal/logger"
	"ms-tableside/internal/models"
	"ms-tableside/internal/notify"
	orderdb "ms-tableside/internal/order/db"
	"ms-tableside/internal/utils"
)

type DBLayer interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	ListOrders(ctx context.Context, f orderdb.Filter) ([]models.Order, error)
	ClaimOrder(ctx context.Context, id, claimedBy string, now time.Time) (bool, error)
	UpdateStatus(ctx context.Context, id string, from, to models.OrderStatus, now time.Time) (bool, error)
	ReviewOrder(ctx context.Context, id, notes string, to models.OrderStatus, now time.Time) (bool, error)
	PatchOrder(ctx context.Context, id string, from, to models.OrderStatus, notes *string, now time.Time) (bool, error)
	GetProducts(ctx context.Context, restaurantID string, ids []string) ([]models.Product, error)
}

// Sessions is the part of the table registry orders need.
type Sessions interface {
	ValidateSession(ctx context.Context, token string) (*models.Table, error)
	SessionTable(ctx context.Context, token string) (*models.Table, error)
}

type Notifier interface {
	Dispatch(ctx context.Context, ev notify.Event)
}

type ItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Notes     string `json:"notes,omitempty"`
}

type CreateOrderRequest struct {
	Token    string        `json:"token"`
	DeviceID string        `json:"deviceId"`
	Items    []ItemRequest `json:"items"`
}

// OrderPatch lists the staff-editable order fields; nil fields are left alone.
type OrderPatch struct {
	Status      *models.OrderStatus `json:"status,omitempty"`
	ServerNotes *string             `json:"serverNotes,omitempty"`
}

type ListFilter struct {
	Status  models.OrderStatus
	TableID string
	// Mine restricts a server's result to tables currently assigned to them. Other roles ignore it.
	Mine bool
}

type OrderService struct {
	DB       DBLayer
	Sessions Sessions
	Notifier Notifier
	Logger   *logger.Logger
	Now      func() time.Time
}

func NewOrderService(db DBLayer, sessions Sessions, notifier Notifier, log *logger.Logger) *OrderService {
	return &OrderService{
		DB:       db,
		Sessions: sessions,
		Notifier: notifier,
		Logger:   log,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// ---------------- CUSTOMERS ----------------

// Create places an order for the device holding token. Prices come from the catalog at this
// moment and are never recomputed.
func (s *OrderService) Create(ctx context.Context, req CreateOrderRequest) (*models.Order, error) {
	const op = "order.Create"
	if len(req.Items) == 0 {
		return nil, apperr.Wrap(apperr.KindInvalidInput, op, apperr.ErrEmptyOrder)
	}
	if strings.TrimSpace(req.DeviceID) == "" {
		return nil, apperr.InvalidInput(op, "device id is required")
	}
	ids := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, apperr.InvalidInput(op, "quantity for product %s must be positive", item.ProductID)
		}
		ids = append(ids, item.ProductID)
	}

	table, err := s.Sessions.SessionTable(ctx, req.Token)
	if err != nil {
		return nil, err
	}

	products, err := s.DB.GetProducts(ctx, table.RestaurantID, ids)
	if err != nil {
		return nil, err
	}
	catalog := make(map[string]models.Product, len(products))
	for _, p := range products {
		catalog[p.ID] = p
	}

	now := s.Now()
	order := &models.Order{
		ID:            utils.NewID(),
		RestaurantID:  table.RestaurantID,
		TableID:       table.ID,
		DeviceID:      req.DeviceID,
		Status:        models.OrderServerReview,
		PaymentStatus: models.PaymentUnpaid,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	var total float64
	for _, item := range req.Items {
		p, ok := catalog[item.ProductID]
		if !ok || !p.Available {
			return nil, apperr.InvalidInput(op, "product %s is not available", item.ProductID)
		}
		order.Items = append(order.Items, models.OrderItem{
			ID:        utils.NewID(),
			OrderID:   order.ID,
			ProductID: p.ID,
			Name:      p.Name,
			UnitPrice: p.Price,
			Quantity:  item.Quantity,
			Notes:     strings.TrimSpace(item.Notes),
			ImageURL:  p.ImageURL,
		})
		total += p.Price * float64(item.Quantity)
	}
	order.Total = utils.RoundMoney(total)

	// The table becomes BUSY only once the order is known to be placeable.
	if table, err = s.Sessions.ValidateSession(ctx, req.Token); err != nil {
		return nil, err
	}
	if err := s.DB.CreateOrder(ctx, order); err != nil {
		return nil, err
	}
	s.Logger.LogOrder("CREATE", order.ID, fmt.Sprintf("table %s device %s total %.2f", table.ID, order.DeviceID, order.Total))

	s.Notifier.Dispatch(ctx, notify.OrderCreated{Order: *order, TableName: table.Name, TableServerID: table.ServerID})
	return order, nil
}

// ListForTable returns the orders of the current occupancy of the token's table.
func (s *OrderService) ListForTable(ctx context.Context, token string) ([]models.Order, error) {
	table, err := s.Sessions.SessionTable(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.DB.ListOrders(ctx, orderdb.Filter{TableID: table.ID, Since: table.LastResetAt})
}

// ---------------- STAFF ----------------

func (s *OrderService) Get(ctx context.Context, caller auth.Caller, orderID string) (*models.Order, error) {
	return s.load(ctx, caller, "order.Get", orderID)
}

func (s *OrderService) List(ctx context.Context, caller auth.Caller, f ListFilter) ([]models.Order, error) {
	const op = "order.List"
	if f.Status != "" && !ValidStatus(f.Status) {
		return nil, apperr.InvalidInput(op, "unknown order status %q", f.Status)
	}
	filter := orderdb.Filter{Status: f.Status, TableID: f.TableID}
	if caller.Role != auth.RoleSuperAdmin {
		filter.RestaurantID = caller.RestaurantID
	}
	if f.Mine && caller.Role == auth.RoleServer {
		filter.ServerID = caller.UserID
	}
	return s.DB.ListOrders(ctx, filter)
}

// Review is the server's gate between the customer and the kitchen.
func (s *OrderService) Review(ctx context.Context, caller auth.Caller, orderID, notes string, sendToKitchen bool) (*models.Order, error) {
	const op = "order.Review"
	if !caller.Can(auth.PermReviewOrders) {
		return nil, apperr.Forbidden(op, "role %s cannot review orders", caller.Role)
	}
	order, err := s.load(ctx, caller, op, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderServerReview {
		return nil, apperr.InvalidState(op, "order %s is %s, not awaiting review", orderID, order.Status)
	}

	to := models.OrderServerReview
	if sendToKitchen {
		to = models.OrderPending
	}
	notes = strings.TrimSpace(notes)
	ok, err := s.DB.ReviewOrder(ctx, order.ID, notes, to, s.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.InvalidState(op, "order %s left review concurrently", orderID)
	}
	s.Logger.LogOrder("REVIEW", order.ID, fmt.Sprintf("by %s, to kitchen: %t", caller.UserID, sendToKitchen))
	return s.reloadAndNotify(ctx, order.ID)
}

// Claim hands a PENDING order to exactly one kitchen member.
func (s *OrderService) Claim(ctx context.Context, caller auth.Caller, orderID string) (*models.Order, error) {
	const op = "order.Claim"
	if !caller.Can(auth.PermClaimOrders) {
		return nil, apperr.Forbidden(op, "role %s cannot claim orders", caller.Role)
	}
	order, err := s.load(ctx, caller, op, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderPending {
		return nil, apperr.InvalidState(op, "order %s is %s, not pending", orderID, order.Status)
	}

	ok, err := s.DB.ClaimOrder(ctx, order.ID, caller.UserID, s.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.InvalidState(op, "order %s was already claimed", orderID)
	}
	s.Logger.LogOrder("CLAIM", order.ID, "claimed by "+caller.UserID)
	return s.reloadAndNotify(ctx, order.ID)
}

// SetStatus is a staff override: any status may be written onto a non-terminal order.
func (s *OrderService) SetStatus(ctx context.Context, caller auth.Caller, orderID string, status models.OrderStatus) (*models.Order, error) {
	const op = "order.SetStatus"
	if !caller.Can(auth.PermUpdateOrders) {
		return nil, apperr.Forbidden(op, "role %s cannot update orders", caller.Role)
	}
	if !ValidStatus(status) {
		return nil, apperr.InvalidInput(op, "unknown order status %q", status)
	}
	order, err := s.load(ctx, caller, op, orderID)
	if err != nil {
		return nil, err
	}
	if IsTerminal(order.Status) {
		return nil, apperr.InvalidState(op, "order %s is already %s", orderID, order.Status)
	}
	if order.Status == status {
		return order, nil
	}

	ok, err := s.DB.UpdateStatus(ctx, order.ID, order.Status, status, s.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.InvalidState(op, "order %s changed concurrently", orderID)
	}
	if !CanAdvance(order.Status, status) {
		s.Logger.Warn("ORDER", fmt.Sprintf("override %s -> %s on order %s by %s", order.Status, status, order.ID, caller.UserID))
	}
	s.Logger.LogOrder("STATUS", order.ID, fmt.Sprintf("%s -> %s", order.Status, status))
	return s.reloadAndNotify(ctx, order.ID)
}

func (s *OrderService) Update(ctx context.Context, caller auth.Caller, orderID string, patch OrderPatch) (*models.Order, error) {
	const op = "order.Update"
	if !caller.Can(auth.PermUpdateOrders) {
		return nil, apperr.Forbidden(op, "role %s cannot update orders", caller.Role)
	}
	if patch.Status == nil && patch.ServerNotes == nil {
		return nil, apperr.InvalidInput(op, "nothing to update")
	}
	if patch.Status != nil && !ValidStatus(*patch.Status) {
		return nil, apperr.InvalidInput(op, "unknown order status %q", *patch.Status)
	}
	order, err := s.load(ctx, caller, op, orderID)
	if err != nil {
		return nil, err
	}

	to := order.Status
	if patch.Status != nil && *patch.Status != order.Status {
		if IsTerminal(order.Status) {
			return nil, apperr.InvalidState(op, "order %s is already %s", orderID, order.Status)
		}
		to = *patch.Status
	}
	var notes *string
	if patch.ServerNotes != nil {
		trimmed := strings.TrimSpace(*patch.ServerNotes)
		notes = &trimmed
	}
	if notes == nil && to == order.Status {
		return order, nil
	}

	ok, err := s.DB.PatchOrder(ctx, order.ID, order.Status, to, notes, s.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.InvalidState(op, "order %s changed concurrently", orderID)
	}
	if to != order.Status {
		if !CanAdvance(order.Status, to) {
			s.Logger.Warn("ORDER", fmt.Sprintf("override %s -> %s on order %s by %s", order.Status, to, order.ID, caller.UserID))
		}
		s.Logger.LogOrder("STATUS", order.ID, fmt.Sprintf("%s -> %s", order.Status, to))
	}
	return s.reloadAndNotify(ctx, order.ID)
}

func (s *OrderService) reloadAndNotify(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.DB.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, apperr.NotFound("order.reload", "order %s disappeared", orderID)
	}
	s.Notifier.Dispatch(ctx, notify.OrderUpdated{Order: *order})
	return order, nil
}

// load fetches an order the caller may see; other tenants' orders are reported as missing.
func (s *OrderService) load(ctx context.Context, caller auth.Caller, op, orderID string) (*models.Order, error) {
	order, err := s.DB.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil || !caller.OwnsRestaurant(order.RestaurantID) {
		return nil, apperr.NotFound(op, "order %s not found", orderID)
	}
	return order, nil
}
