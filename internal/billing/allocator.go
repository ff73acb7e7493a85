package billing

import (
	"context"
	"fmt"
	"strings"

	"ms-tableside/internal/apperr"
	"ms-tableside/internal/auth"
	billingdb "ms-tableside/internal/billing/db"
	"ms-tableside/internal/models"
	"ms-tableside/internal/notify"
	"ms-tableside/internal/utils"
)

type AllocateRequest struct {
	OrderIDs      []string           `json:"orderIds"`
	BaseAmount    float64            `json:"baseAmount"`
	Tip           float64            `json:"tip"`
	TipMethod     models.TipMethod   `json:"tipMethod"`
	// PaymentType is optional. A payment settling a bill request inherits the request's tender.
	PaymentType   models.PaymentType `json:"paymentType,omitempty"`
	BillRequestID string             `json:"billRequestId,omitempty"`

	ProcessedBy   *string `json:"-"`
	PayerDeviceID *string `json:"-"`
	// RestaurantID and TableID, when set, confine the payment to that tenant or table.
	RestaurantID string `json:"-"`
	TableID      string `json:"-"`
}

type Allocation struct {
	TableID     string           `json:"tableId"`
	Payments    []models.Payment `json:"payments"`
	Orders      []models.Order   `json:"orders"`
	TotalAmount float64          `json:"totalAmount"`
	TipAmount   float64          `json:"tipAmount"`
}

// ProcessPayment records a payment taken by staff.
func (s *Service) ProcessPayment(ctx context.Context, caller auth.Caller, req AllocateRequest) (*Allocation, error) {
	if !caller.Can(auth.PermProcessPayments) {
		return nil, apperr.Forbidden("billing.ProcessPayment", "role %s cannot process payments", caller.Role)
	}
	by := caller.UserID
	req.ProcessedBy = &by
	req.PayerDeviceID = nil
	req.TableID = ""
	req.RestaurantID = ""
	if caller.Role != auth.RoleSuperAdmin {
		req.RestaurantID = caller.RestaurantID
	}
	return s.Allocate(ctx, req)
}

// PayFromDevice records a payment made by a customer device on the token's table.
func (s *Service) PayFromDevice(ctx context.Context, token, deviceID string, req AllocateRequest) (*Allocation, error) {
	if strings.TrimSpace(deviceID) == "" {
		return nil, apperr.InvalidInput("billing.PayFromDevice", "device id is required")
	}
	table, err := s.Tables.SessionTable(ctx, token)
	if err != nil {
		return nil, err
	}
	req.ProcessedBy = nil
	req.PayerDeviceID = &deviceID
	req.RestaurantID = table.RestaurantID
	req.TableID = table.ID
	req.BillRequestID = ""
	return s.Allocate(ctx, req)
}

// Allocate spreads BaseAmount over the orders in the given order, paying each one's remaining
// balance before moving on, and books the whole tip on the last order that received money.
// Either every payment is written or none is.
func (s *Service) Allocate(ctx context.Context, req AllocateRequest) (*Allocation, error) {
	const op = "billing.Allocate"

	ids := dedupe(req.OrderIDs)
	if len(ids) == 0 {
		return nil, apperr.Wrap(apperr.KindInvalidInput, op, apperr.ErrEmptyOrderSet)
	}
	if req.BaseAmount <= 0 {
		return nil, apperr.InvalidInput(op, "base amount must be positive")
	}
	if req.Tip < 0 {
		return nil, apperr.InvalidInput(op, "tip cannot be negative")
	}
	switch req.TipMethod {
	case models.TipPercentage, models.TipAmount:
	case "":
		req.TipMethod = models.TipAmount
	default:
		return nil, apperr.InvalidInput(op, "unknown tip method %q", req.TipMethod)
	}
	if req.PaymentType != "" && !req.PaymentType.Valid() {
		return nil, apperr.InvalidInput(op, "payment type must be CASH or POS")
	}
	base := utils.RoundMoney(req.BaseAmount)
	tip := utils.RoundMoney(req.Tip)
	if req.TipMethod == models.TipPercentage {
		tip = utils.RoundMoney(base * req.Tip / 100)
	}

	owner := utils.NewID()
	ok, err := s.Locks.LockOrders(ctx, ids, owner)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return nil, apperr.Conflict(op, "another payment is being processed for these orders")
	}
	defer func() {
		if err := s.Locks.UnlockOrders(context.WithoutCancel(ctx), ids, owner); err != nil {
			s.Logger.Warn("PAYMENT", fmt.Sprintf("release order locks: %v", err))
		}
	}()

	var result *Allocation
	err = s.DB.InTx(ctx, func(ctx context.Context, tx *billingdb.DB) error {
		var err error
		result, err = s.allocate(ctx, tx, req, ids, base, tip)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.Logger.LogPayment("ALLOCATE", result.TableID, fmt.Sprintf("%d payments, base %.2f, tip %.2f", len(result.Payments), result.TotalAmount, result.TipAmount))
	s.Notifier.Dispatch(ctx, notify.PaymentProcessed{
		TableID:     result.TableID,
		Payments:    result.Payments,
		TotalAmount: result.TotalAmount,
		TipAmount:   result.TipAmount,
		ProcessedBy: req.ProcessedBy,
	})
	return result, nil
}

func (s *Service) allocate(ctx context.Context, tx *billingdb.DB, req AllocateRequest, ids []string, base, tip float64) (*Allocation, error) {
	const op = "billing.Allocate"

	found, err := tx.GetOrdersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*models.Order, len(found))
	for i := range found {
		byID[found[i].ID] = &found[i]
	}

	orders := make([]*models.Order, 0, len(ids))
	for _, id := range ids {
		o, ok := byID[id]
		if !ok || (req.RestaurantID != "" && o.RestaurantID != req.RestaurantID) {
			return nil, apperr.NotFound(op, "order %s not found", id)
		}
		if req.TableID != "" && o.TableID != req.TableID {
			return nil, apperr.Forbidden(op, "order %s does not belong to this table", id)
		}
		if o.Status == models.OrderCancelled {
			return nil, apperr.InvalidState(op, "order %s is cancelled", id)
		}
		orders = append(orders, o)
	}
	tableID := orders[0].TableID
	for _, o := range orders[1:] {
		if o.TableID != tableID {
			return nil, apperr.Wrap(apperr.KindInvalidInput, op, apperr.ErrMixedTable)
		}
	}

	var billRequest *models.BillRequest
	if req.BillRequestID != "" {
		billRequest, err = tx.GetBillRequest(ctx, req.BillRequestID)
		if err != nil {
			return nil, err
		}
		if billRequest == nil || billRequest.TableID != tableID {
			return nil, apperr.NotFound(op, "bill request %s not found for table %s", req.BillRequestID, tableID)
		}
		if req.PaymentType == "" {
			req.PaymentType = billRequest.PaymentType
		}
	}

	paid, err := tx.PaidByOrder(ctx, ids)
	if err != nil {
		return nil, err
	}
	var outstanding float64
	for _, o := range orders {
		if rem := utils.RoundMoney(o.Total - paid[o.ID].Amount); rem > 0 {
			outstanding += rem
		}
	}
	outstanding = utils.RoundMoney(outstanding)
	if base > outstanding {
		return nil, apperr.New(apperr.KindOverpayment, op, "amount %.2f exceeds the %.2f still owed", base, outstanding)
	}

	now := s.Now()
	result := &Allocation{TableID: tableID, TotalAmount: base, TipAmount: tip}
	budget := base
	for _, o := range orders {
		if budget <= 0 {
			break
		}
		rem := utils.RoundMoney(o.Total - paid[o.ID].Amount)
		if rem <= 0 {
			continue
		}
		applied := min(rem, budget)
		budget = utils.RoundMoney(budget - applied)

		result.Payments = append(result.Payments, models.Payment{
			ID:            utils.NewID(),
			OrderID:       o.ID,
			TableID:       o.TableID,
			RestaurantID:  o.RestaurantID,
			Amount:        applied,
			TipMethod:     req.TipMethod,
			Total:         applied,
			ProcessedBy:   req.ProcessedBy,
			PayerDeviceID: req.PayerDeviceID,
			CreatedAt:     now,
		})

		o.PaymentStatus = paymentStatus(paid[o.ID].Amount+applied, o.Total)
		if o.PaymentStatus == models.PaymentPaid && o.Status != models.OrderServed {
			o.Status = models.OrderServed
		}
		ok, err := tx.SettleOrder(ctx, o, now)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperr.Conflict(op, "order %s changed while the payment was processed", o.ID)
		}
		result.Orders = append(result.Orders, *o)
	}

	last := &result.Payments[len(result.Payments)-1]
	last.TipAmount = tip
	last.Total = utils.RoundMoney(last.Amount + tip)
	last.PaymentType = req.PaymentType

	if err := tx.InsertPayments(ctx, result.Payments); err != nil {
		return nil, err
	}

	if billRequest != nil {
		if _, err := tx.MarkBillRequestProcessed(ctx, billRequest.ID, req.ProcessedBy, now); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func paymentStatus(paid, total float64) models.PaymentStatus {
	switch {
	case utils.RoundMoney(paid) >= utils.RoundMoney(total):
		return models.PaymentPaid
	case paid > 0:
		return models.PaymentPartiallyPaid
	default:
		return models.PaymentUnpaid
	}
}

// dedupe keeps the first occurrence of each id and drops blanks.
func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
