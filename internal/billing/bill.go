package billing

import (
	"context"

	"ms-tableside/internal/apperr"
	"ms-tableside/internal/auth"
	"ms-tableside/internal/models"
	"ms-tableside/internal/utils"
)

type OrderBill struct {
	Order     models.Order `json:"order"`
	Paid      float64      `json:"paid"`
	Tips      float64      `json:"tips"`
	Remaining float64      `json:"remaining"`
}

type DeviceBill struct {
	DeviceID  string      `json:"deviceId"`
	Orders    []OrderBill `json:"orders"`
	Total     float64     `json:"total"`
	Paid      float64     `json:"paid"`
	Tips      float64     `json:"tips"`
	Remaining float64     `json:"remaining"`
}

// TableBill covers the current occupancy of a table only.
type TableBill struct {
	TableID   string             `json:"tableId"`
	TableName string             `json:"tableName"`
	Status    models.TableStatus `json:"status"`
	Orders    []OrderBill        `json:"orders"`
	Devices   []DeviceBill       `json:"devices"`
	TotalBill float64            `json:"totalBill"`
	TotalPaid float64            `json:"totalPaid"`
	TotalTips float64            `json:"totalTips"`
	Remaining float64            `json:"remaining"`
}

// ComputeTableBill aggregates the non-cancelled orders created since the table's last reset.
func (s *Service) ComputeTableBill(ctx context.Context, table *models.Table) (*TableBill, error) {
	orders, err := s.DB.OrdersForTable(ctx, table.ID, table.LastResetAt)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	paid, err := s.DB.PaidByOrder(ctx, ids)
	if err != nil {
		return nil, err
	}

	bill := &TableBill{
		TableID:   table.ID,
		TableName: table.Name,
		Status:    table.Status,
		Orders:    []OrderBill{},
		Devices:   []DeviceBill{},
	}
	deviceIdx := map[string]int{}
	for _, o := range orders {
		p := paid[o.ID]
		ob := OrderBill{
			Order:     o,
			Paid:      utils.RoundMoney(p.Amount),
			Tips:      utils.RoundMoney(p.Tips),
			Remaining: utils.RoundMoney(max(o.Total-p.Amount, 0)),
		}
		bill.Orders = append(bill.Orders, ob)
		bill.TotalBill += o.Total
		bill.TotalPaid += p.Amount
		bill.TotalTips += p.Tips
		bill.Remaining += ob.Remaining

		i, ok := deviceIdx[o.DeviceID]
		if !ok {
			i = len(bill.Devices)
			deviceIdx[o.DeviceID] = i
			bill.Devices = append(bill.Devices, DeviceBill{DeviceID: o.DeviceID})
		}
		d := &bill.Devices[i]
		d.Orders = append(d.Orders, ob)
		d.Total = utils.RoundMoney(d.Total + o.Total)
		d.Paid = utils.RoundMoney(d.Paid + ob.Paid)
		d.Tips = utils.RoundMoney(d.Tips + ob.Tips)
		d.Remaining = utils.RoundMoney(d.Remaining + ob.Remaining)
	}
	bill.TotalBill = utils.RoundMoney(bill.TotalBill)
	bill.TotalPaid = utils.RoundMoney(bill.TotalPaid)
	bill.TotalTips = utils.RoundMoney(bill.TotalTips)
	bill.Remaining = utils.RoundMoney(bill.Remaining)
	return bill, nil
}

func (s *Service) TableBill(ctx context.Context, caller auth.Caller, tableID string) (*TableBill, error) {
	if !caller.Can(auth.PermViewBilling) {
		return nil, apperr.Forbidden("billing.TableBill", "role %s cannot view bills", caller.Role)
	}
	table, err := s.Tables.Get(ctx, caller, tableID)
	if err != nil {
		return nil, err
	}
	return s.ComputeTableBill(ctx, table)
}

// SessionBill is the bill as seen from a customer device on the table.
func (s *Service) SessionBill(ctx context.Context, token string) (*TableBill, error) {
	table, err := s.Tables.SessionTable(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.ComputeTableBill(ctx, table)
}

type TableSummary struct {
	Table     models.Table `json:"table"`
	Orders    int          `json:"orders"`
	TotalBill float64      `json:"totalBill"`
	TotalPaid float64      `json:"totalPaid"`
	TotalTips float64      `json:"totalTips"`
	Remaining float64      `json:"remaining"`
}

// TablesOverview lists every table of the caller's restaurant with its current bill.
func (s *Service) TablesOverview(ctx context.Context, caller auth.Caller) ([]TableSummary, error) {
	if !caller.Can(auth.PermViewBilling) {
		return nil, apperr.Forbidden("billing.TablesOverview", "role %s cannot view bills", caller.Role)
	}
	tables, err := s.Tables.List(ctx, caller)
	if err != nil {
		return nil, err
	}
	out := make([]TableSummary, 0, len(tables))
	for i := range tables {
		bill, err := s.ComputeTableBill(ctx, &tables[i])
		if err != nil {
			return nil, err
		}
		out = append(out, TableSummary{
			Table:     tables[i],
			Orders:    len(bill.Orders),
			TotalBill: bill.TotalBill,
			TotalPaid: bill.TotalPaid,
			TotalTips: bill.TotalTips,
			Remaining: bill.Remaining,
		})
	}
	return out, nil
}
