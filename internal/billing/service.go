// Package billing settles table bills: it allocates payments across orders, computes what a
// table still owes, and tracks customers' bill requests.
package billing

import (
	"context"
	"time"

	"ms-tableside/internal/auth"
	billingdb "ms-tableside/internal/billing/db"
	"ms-tableside/internal/logger"
	"ms-tableside/internal/models"
	"ms-tableside/internal/notify"
)

// Tables is the part of the table registry billing depends on.
type Tables interface {
	Get(ctx context.Context, caller auth.Caller, tableID string) (*models.Table, error)
	List(ctx context.Context, caller auth.Caller) ([]models.Table, error)
	SessionTable(ctx context.Context, token string) (*models.Table, error)
	ApplyStatus(ctx context.Context, table *models.Table, status models.TableStatus) error
}

// OrderLocker serialises payments that touch the same orders across instances.
type OrderLocker interface {
	LockOrders(ctx context.Context, orderIDs []string, owner string) (bool, error)
	UnlockOrders(ctx context.Context, orderIDs []string, owner string) error
}

type Notifier interface {
	Dispatch(ctx context.Context, ev notify.Event)
}

type Service struct {
	DB       *billingdb.DB
	Tables   Tables
	Locks    OrderLocker
	Notifier Notifier
	Logger   *logger.Logger
	Now      func() time.Time
}

func NewService(db *billingdb.DB, tables Tables, locks OrderLocker, notifier Notifier, log *logger.Logger) *Service {
	return &Service{
		DB:       db,
		Tables:   tables,
		Locks:    locks,
		Notifier: notifier,
		Logger:   log,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}
