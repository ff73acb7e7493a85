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

// Filter narrows ListOrders. Empty fields match everything.
type Filter struct {
	RestaurantID string
	TableID      string
	Status       models.OrderStatus
	ServerID     string
	Since        *time.Time
}

// ---------------- ORDERS ----------------

// CreateOrder inserts the order and its items together.
func (d *DB) CreateOrder(ctx context.Context, order *models.Order) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(order).Exec(ctx); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		if len(order.Items) == 0 {
			return nil
		}
		if _, err := tx.NewInsert().Model(&order.Items).Exec(ctx); err != nil {
			return fmt.Errorf("insert order items: %w", err)
		}
		return nil
	})
}

// GetOrderByID loads one order with its items, or nil when it does not exist.
func (d *DB) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	order := new(models.Order)
	err := d.Bun.NewSelect().
		Model(order).
		Relation("Items").
		Where("o.id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	return order, nil
}

// ListOrders returns matching orders oldest first.
func (d *DB) ListOrders(ctx context.Context, f Filter) ([]models.Order, error) {
	orders := []models.Order{}
	q := d.Bun.NewSelect().Model(&orders).Relation("Items").Order("o.created_at ASC")
	if f.RestaurantID != "" {
		q = q.Where("o.restaurant_id = ?", f.RestaurantID)
	}
	if f.TableID != "" {
		q = q.Where("o.table_id = ?", f.TableID)
	}
	if f.Status != "" {
		q = q.Where("o.status = ?", f.Status)
	}
	if f.ServerID != "" {
		assigned := d.Bun.NewSelect().
			Model((*models.Table)(nil)).
			ColumnExpr("dt.id").
			Where("dt.server_id = ?", f.ServerID)
		q = q.Where("o.table_id IN (?)", assigned)
	}
	if f.Since != nil {
		q = q.Where("o.created_at >= ?", *f.Since)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// ClaimOrder moves a PENDING order to PREPARING. Only one concurrent caller can win.
func (d *DB) ClaimOrder(ctx context.Context, id, claimedBy string, now time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("status = ?", models.OrderPreparing).
		Set("claimed_by = ?", claimedBy).
		Set("claimed_at = ?", now).
		Set("updated_at = ?", now).
		Set("version = version + 1").
		Where("id = ?", id).
		Where("status = ?", models.OrderPending).
		Exec(ctx)
	return affectedOne(res, err, "claim order "+id)
}

// UpdateStatus writes to when the order is still in from.
func (d *DB) UpdateStatus(ctx context.Context, id string, from, to models.OrderStatus, now time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", now).
		Set("version = version + 1").
		Where("id = ?", id).
		Where("status = ?", from).
		Exec(ctx)
	return affectedOne(res, err, "update status of order "+id)
}

// ReviewOrder records server notes and the next status on an order still in SERVER_REVIEW.
func (d *DB) ReviewOrder(ctx context.Context, id, notes string, to models.OrderStatus, now time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("server_notes = ?", notes).
		Set("status = ?", to).
		Set("updated_at = ?", now).
		Set("version = version + 1").
		Where("id = ?", id).
		Where("status = ?", models.OrderServerReview).
		Exec(ctx)
	return affectedOne(res, err, "review order "+id)
}

// PatchOrder writes notes (when non-nil) and status in one statement, provided the order is
// still in status from.
func (d *DB) PatchOrder(ctx context.Context, id string, from, to models.OrderStatus, notes *string, now time.Time) (bool, error) {
	q := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", now).
		Set("version = version + 1")
	if notes != nil {
		q = q.Set("server_notes = ?", *notes)
	}
	res, err := q.
		Where("id = ?", id).
		Where("status = ?", from).
		Exec(ctx)
	return affectedOne(res, err, "patch order "+id)
}

// ---------------- CATALOG ----------------

// GetProducts returns the restaurant's products among ids; unknown ids are simply absent.
func (d *DB) GetProducts(ctx context.Context, restaurantID string, ids []string) ([]models.Product, error) {
	products := []models.Product{}
	if len(ids) == 0 {
		return products, nil
	}
	err := d.Bun.NewSelect().
		Model(&products).
		Where("restaurant_id = ?", restaurantID).
		Where("id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	return products, nil
}

func affectedOne(res sql.Result, err error, what string) (bool, error) {
	if err != nil {
		return false, fmt.Errorf("%s: %w", what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", what, err)
	}
	return n == 1, nil
}
