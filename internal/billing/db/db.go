package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ms-tableside/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun bun.IDB
}

// InTx runs fn against a transaction-scoped DB. Only the tx handle may be used inside fn.
func (d *DB) InTx(ctx context.Context, fn func(ctx context.Context, tx *DB) error) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &DB{Bun: tx})
	})
}

// ---------------- ORDERS ----------------

func (d *DB) GetOrdersByIDs(ctx context.Context, ids []string) ([]models.Order, error) {
	orders := []models.Order{}
	if len(ids) == 0 {
		return orders, nil
	}
	err := d.Bun.NewSelect().Model(&orders).Where("o.id IN (?)", bun.In(ids)).Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get orders: %w", err)
	}
	return orders, nil
}

// OrdersForTable returns the non-cancelled orders of a table created at or after since.
func (d *DB) OrdersForTable(ctx context.Context, tableID string, since *time.Time) ([]models.Order, error) {
	orders := []models.Order{}
	q := d.Bun.NewSelect().
		Model(&orders).
		Relation("Items").
		Where("o.table_id = ?", tableID).
		Where("o.status != ?", models.OrderCancelled).
		Order("o.created_at ASC")
	if since != nil {
		q = q.Where("o.created_at >= ?", *since)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("orders for table %s: %w", tableID, err)
	}
	return orders, nil
}

// SettleOrder writes the payment outcome if nobody changed the order since it was read.
func (d *DB) SettleOrder(ctx context.Context, o *models.Order, now time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("payment_status = ?", o.PaymentStatus).
		Set("status = ?", o.Status).
		Set("updated_at = ?", now).
		Set("version = version + 1").
		Where("id = ?", o.ID).
		Where("version = ?", o.Version).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("settle order %s: %w", o.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		o.Version++
		o.UpdatedAt = now
	}
	return n == 1, nil
}

// ---------------- PAYMENTS ----------------

type paidRow struct {
	OrderID string  `bun:"order_id"`
	Amount  float64 `bun:"amount"`
	Tips    float64 `bun:"tips"`
}

// Paid is the base amount and tips recorded against one order.
type Paid struct {
	Amount float64
	Tips   float64
}

func (d *DB) PaidByOrder(ctx context.Context, orderIDs []string) (map[string]Paid, error) {
	out := make(map[string]Paid, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}
	var rows []paidRow
	err := d.Bun.NewSelect().
		Model((*models.Payment)(nil)).
		Column("order_id").
		ColumnExpr("SUM(amount) AS amount").
		ColumnExpr("SUM(tip_amount) AS tips").
		Where("order_id IN (?)", bun.In(orderIDs)).
		Group("order_id").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("sum payments: %w", err)
	}
	for _, r := range rows {
		out[r.OrderID] = Paid{Amount: r.Amount, Tips: r.Tips}
	}
	return out, nil
}

func (d *DB) InsertPayments(ctx context.Context, payments []models.Payment) error {
	if len(payments) == 0 {
		return nil
	}
	if _, err := d.Bun.NewInsert().Model(&payments).Exec(ctx); err != nil {
		return fmt.Errorf("insert payments: %w", err)
	}
	return nil
}

// PaymentsBetween lists a restaurant's payments with from <= created_at < to.
func (d *DB) PaymentsBetween(ctx context.Context, restaurantID string, from, to time.Time) ([]models.Payment, error) {
	payments := []models.Payment{}
	q := d.Bun.NewSelect().
		Model(&payments).
		Where("created_at >= ?", from).
		Where("created_at < ?", to).
		Order("created_at ASC")
	if restaurantID != "" {
		q = q.Where("restaurant_id = ?", restaurantID)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return payments, nil
}

// ---------------- BILL REQUESTS ----------------

func (d *DB) InsertBillRequest(ctx context.Context, br *models.BillRequest) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(br).Exec(ctx); err != nil {
			return fmt.Errorf("insert bill request: %w", err)
		}
		if len(br.Orders) == 0 {
			return nil
		}
		if _, err := tx.NewInsert().Model(&br.Orders).Exec(ctx); err != nil {
			return fmt.Errorf("insert bill request orders: %w", err)
		}
		return nil
	})
}

func (d *DB) GetBillRequest(ctx context.Context, id string) (*models.BillRequest, error) {
	br := new(models.BillRequest)
	err := d.Bun.NewSelect().Model(br).Relation("Orders").Where("br.id = ?", id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get bill request %s: %w", id, err)
	}
	return br, nil
}

// PendingBillRequests lists unprocessed requests oldest first.
func (d *DB) PendingBillRequests(ctx context.Context, restaurantID string) ([]models.BillRequest, error) {
	requests := []models.BillRequest{}
	q := d.Bun.NewSelect().
		Model(&requests).
		Relation("Orders").
		Where("br.processed = ?", false).
		Order("br.created_at ASC")
	if restaurantID != "" {
		q = q.Where("br.restaurant_id = ?", restaurantID)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list bill requests: %w", err)
	}
	return requests, nil
}

// MarkBillRequestProcessed flips an unprocessed request and reports whether it did.
func (d *DB) MarkBillRequestProcessed(ctx context.Context, id string, processedBy *string, now time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.BillRequest)(nil)).
		Set("processed = ?", true).
		Set("processed_by = ?", processedBy).
		Set("processed_at = ?", now).
		Where("id = ?", id).
		Where("processed = ?", false).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("mark bill request %s processed: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
