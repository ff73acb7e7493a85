package billing

import (
	"context"
	"fmt"
	"strings"

	"ms-tableside/internal/apperr"
	"ms-tableside/internal/auth"
	"ms-tableside/internal/models"
	"ms-tableside/internal/notify"
	"ms-tableside/internal/utils"
)

type BillRequestInput struct {
	DeviceID    string             `json:"deviceId"`
	OrderIDs    []string           `json:"orderIds"`
	PaymentType models.PaymentType `json:"paymentType"`
}

// PendingRequest is a bill request with its orders flattened for staff screens.
type PendingRequest struct {
	models.BillRequest
	OrderIDs []string `json:"orderIds"`
}

// RequestBill asks staff to come and collect payment for the listed orders.
func (s *Service) RequestBill(ctx context.Context, token string, in BillRequestInput) (*models.BillRequest, error) {
	const op = "billing.RequestBill"
	if strings.TrimSpace(in.DeviceID) == "" {
		return nil, apperr.InvalidInput(op, "device id is required")
	}
	if !in.PaymentType.Valid() {
		return nil, apperr.InvalidInput(op, "payment type must be CASH or POS")
	}
	ids := dedupe(in.OrderIDs)
	if len(ids) == 0 {
		return nil, apperr.Wrap(apperr.KindInvalidInput, op, apperr.ErrEmptyOrderSet)
	}

	table, err := s.Tables.SessionTable(ctx, token)
	if err != nil {
		return nil, err
	}
	orders, err := s.DB.GetOrdersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(orders) != len(ids) {
		return nil, apperr.NotFound(op, "some orders were not found")
	}
	for _, o := range orders {
		if o.TableID != table.ID {
			return nil, apperr.Forbidden(op, "order %s does not belong to this table", o.ID)
		}
		if o.Status == models.OrderCancelled {
			return nil, apperr.InvalidState(op, "order %s is cancelled", o.ID)
		}
	}

	br := &models.BillRequest{
		ID:           utils.NewID(),
		RestaurantID: table.RestaurantID,
		TableID:      table.ID,
		DeviceID:     in.DeviceID,
		PaymentType:  in.PaymentType,
		CreatedAt:    s.Now(),
	}
	for _, id := range ids {
		br.Orders = append(br.Orders, models.BillRequestOrder{BillRequestID: br.ID, OrderID: id})
	}
	if err := s.DB.InsertBillRequest(ctx, br); err != nil {
		return nil, err
	}
	s.Logger.LogPayment("BILL_REQUEST", table.ID, fmt.Sprintf("device %s asks to pay %d orders by %s", in.DeviceID, len(ids), in.PaymentType))

	if err := s.Tables.ApplyStatus(ctx, table, models.TableBillRequested); err != nil {
		return nil, err
	}
	s.Notifier.Dispatch(ctx, notify.BillRequested{Request: *br, TableName: table.Name})
	return br, nil
}

func (s *Service) PendingBillRequests(ctx context.Context, caller auth.Caller) ([]PendingRequest, error) {
	if !caller.Can(auth.PermViewBilling) {
		return nil, apperr.Forbidden("billing.PendingBillRequests", "role %s cannot view bill requests", caller.Role)
	}
	restaurantID := caller.RestaurantID
	if caller.Role == auth.RoleSuperAdmin {
		restaurantID = ""
	}
	requests, err := s.DB.PendingBillRequests(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	out := make([]PendingRequest, 0, len(requests))
	for i := range requests {
		out = append(out, PendingRequest{BillRequest: requests[i], OrderIDs: requests[i].OrderIDs()})
	}
	return out, nil
}

func (s *Service) MarkBillRequestProcessed(ctx context.Context, caller auth.Caller, requestID string) error {
	const op = "billing.MarkBillRequestProcessed"
	if !caller.Can(auth.PermProcessPayments) {
		return apperr.Forbidden(op, "role %s cannot process bill requests", caller.Role)
	}
	br, err := s.DB.GetBillRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if br == nil || !caller.OwnsRestaurant(br.RestaurantID) {
		return apperr.NotFound(op, "bill request %s not found", requestID)
	}
	by := caller.UserID
	ok, err := s.DB.MarkBillRequestProcessed(ctx, br.ID, &by, s.Now())
	if err != nil {
		return err
	}
	if !ok {
		return apperr.InvalidState(op, "bill request %s was already processed", requestID)
	}
	s.Logger.LogPayment("BILL_REQUEST", br.TableID, fmt.Sprintf("request %s processed by %s", br.ID, by))
	return nil
}
