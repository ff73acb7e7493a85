package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-tableside/internal/models"

	"github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

type DB struct {
	Bun bun.IDB
}

func (d *DB) GetTableByID(ctx context.Context, id string) (*models.Table, error) {
	table := new(models.Table)
	err := d.Bun.NewSelect().Model(table).Where("id = ?", id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get table %s: %w", id, err)
	}
	return table, nil
}

// ListTables returns every table of a restaurant, or of all restaurants when restaurantID is empty.
func (d *DB) ListTables(ctx context.Context, restaurantID string) ([]models.Table, error) {
	var tables []models.Table
	q := d.Bun.NewSelect().Model(&tables).Order("name ASC")
	if restaurantID != "" {
		q = q.Where("restaurant_id = ?", restaurantID)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return tables, nil
}

func (d *DB) GetRestaurant(ctx context.Context, id string) (*models.Restaurant, error) {
	r := new(models.Restaurant)
	err := d.Bun.NewSelect().Model(r).Where("id = ?", id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get restaurant %s: %w", id, err)
	}
	return r, nil
}

func (d *DB) SetServer(ctx context.Context, tableID string, serverID *string, now time.Time) error {
	_, err := d.Bun.NewUpdate().Model((*models.Table)(nil)).
		Set("server_id = ?", serverID).
		Set("updated_at = ?", now).
		Where("id = ?", tableID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("set server on table %s: %w", tableID, err)
	}
	return nil
}

// SetStatus writes status and, when resetAt is non-nil, the new occupancy boundary.
func (d *DB) SetStatus(ctx context.Context, tableID string, status models.TableStatus, resetAt *time.Time, now time.Time) error {
	q := d.Bun.NewUpdate().Model((*models.Table)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", now).
		Where("id = ?", tableID)
	if resetAt != nil {
		q = q.Set("last_reset_at = ?", *resetAt)
	}
	if _, err := q.Exec(ctx); err != nil {
		return fmt.Errorf("set status on table %s: %w", tableID, err)
	}
	return nil
}

func (d *DB) SetName(ctx context.Context, tableID, name string, now time.Time) error {
	_, err := d.Bun.NewUpdate().Model((*models.Table)(nil)).
		Set("name = ?", name).
		Set("updated_at = ?", now).
		Where("id = ?", tableID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("rename table %s: %w", tableID, err)
	}
	return nil
}

// MarkBusyIfAvailable flips AVAILABLE to BUSY in one statement and reports whether it did.
func (d *DB) MarkBusyIfAvailable(ctx context.Context, tableID string, now time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().Model((*models.Table)(nil)).
		Set("status = ?", models.TableBusy).
		Set("updated_at = ?", now).
		Where("id = ?", tableID).
		Where("status = ?", models.TableAvailable).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("mark table %s busy: %w", tableID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (d *DB) DeactivateSessions(ctx context.Context, tableID string) (int64, error) {
	res, err := d.Bun.NewUpdate().Model((*models.TableSession)(nil)).
		Set("active = ?", false).
		Where("table_id = ?", tableID).
		Where("active = ?", true).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("deactivate sessions of table %s: %w", tableID, err)
	}
	return res.RowsAffected()
}

// ErrSessionConflict reports that another active session was created for the table concurrently.
var ErrSessionConflict = errors.New("table already has an active session")

// ReplaceSession deactivates the table's active sessions and inserts s in one transaction.
// The table row is locked first so concurrent replacements for one table run one after another.
func (d *DB) ReplaceSession(ctx context.Context, s *models.TableSession) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockTable(ctx, tx, s.TableID); err != nil {
			return err
		}
		_, err := tx.NewUpdate().Model((*models.TableSession)(nil)).
			Set("active = ?", false).
			Where("table_id = ?", s.TableID).
			Where("active = ?", true).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("deactivate sessions of table %s: %w", s.TableID, err)
		}
		if _, err := tx.NewInsert().Model(s).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return ErrSessionConflict
			}
			return fmt.Errorf("insert session: %w", err)
		}
		return nil
	})
}

// lockTable takes a row lock on PostgreSQL. SQLite serialises writers on its own.
func lockTable(ctx context.Context, tx bun.Tx, tableID string) error {
	if tx.Dialect().Name() != dialect.PG {
		return nil
	}
	var id string
	err := tx.NewSelect().Model((*models.Table)(nil)).
		Column("id").
		Where("id = ?", tableID).
		For("UPDATE").
		Scan(ctx, &id)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("lock table %s: %w", tableID, err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// GetValidSession finds an active session for token that has not expired at now.
func (d *DB) GetValidSession(ctx context.Context, token string, now time.Time) (*models.TableSession, error) {
	s := new(models.TableSession)
	err := d.Bun.NewSelect().Model(s).
		Where("token = ?", token).
		Where("active = ?", true).
		Where("expires_at > ?", now).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

func (d *DB) GetActiveSessionForTable(ctx context.Context, tableID string, now time.Time) (*models.TableSession, error) {
	s := new(models.TableSession)
	err := d.Bun.NewSelect().Model(s).
		Where("table_id = ?", tableID).
		Where("active = ?", true).
		Where("expires_at > ?", now).
		Order("created_at DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active session of table %s: %w", tableID, err)
	}
	return s, nil
}
