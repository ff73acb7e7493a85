package tables

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-tableside/internal/apperr"
	"ms-tableside/internal/auth"
	"ms-tableside/internal/logger"
	"ms-tableside/internal/models"
	"ms-tableside/internal/notify"
	tablesdb "ms-tableside/internal/tables/db"
	"ms-tableside/internal/utils"
)

type Store interface {
	GetTableByID(ctx context.Context, id string) (*models.Table, error)
	ListTables(ctx context.Context, restaurantID string) ([]models.Table, error)
	GetRestaurant(ctx context.Context, id string) (*models.Restaurant, error)
	SetServer(ctx context.Context, tableID string, serverID *string, now time.Time) error
	SetStatus(ctx context.Context, tableID string, status models.TableStatus, resetAt *time.Time, now time.Time) error
	SetName(ctx context.Context, tableID, name string, now time.Time) error
	MarkBusyIfAvailable(ctx context.Context, tableID string, now time.Time) (bool, error)
	DeactivateSessions(ctx context.Context, tableID string) (int64, error)
	ReplaceSession(ctx context.Context, s *models.TableSession) error
	GetValidSession(ctx context.Context, token string, now time.Time) (*models.TableSession, error)
	GetActiveSessionForTable(ctx context.Context, tableID string, now time.Time) (*models.TableSession, error)
}

type Notifier interface {
	Dispatch(ctx context.Context, ev notify.Event)
}

// TablePatch lists the mutable table fields; nil fields are left alone.
type TablePatch struct {
	Name   *string             `json:"name,omitempty"`
	Status *models.TableStatus `json:"status,omitempty"`
}

type IssuedSession struct {
	SessionID string       `json:"sessionId"`
	Token     string       `json:"token"`
	URL       string       `json:"qrUrl"`
	ExpiresAt time.Time    `json:"expiresAt"`
	Table     models.Table `json:"table"`
}

// Registry is the only writer of table occupancy state.
type Registry struct {
	DB         Store
	Notifier   Notifier
	QR         *QRGenerator
	SessionTTL time.Duration
	Logger     *logger.Logger
	Now        func() time.Time
}

func NewRegistry(db Store, notifier Notifier, qr *QRGenerator, sessionTTL time.Duration, log *logger.Logger) *Registry {
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}
	return &Registry{
		DB:         db,
		Notifier:   notifier,
		QR:         qr,
		SessionTTL: sessionTTL,
		Logger:     log,
		Now:        func() time.Time { return time.Now().UTC() },
	}
}

// ---------------- STAFF ----------------

func (r *Registry) Get(ctx context.Context, caller auth.Caller, tableID string) (*models.Table, error) {
	if !caller.Can(auth.PermViewTables) {
		return nil, apperr.Forbidden("tables.Get", "role %s cannot view tables", caller.Role)
	}
	return r.load(ctx, caller, "tables.Get", tableID)
}

func (r *Registry) List(ctx context.Context, caller auth.Caller) ([]models.Table, error) {
	if !caller.Can(auth.PermViewTables) {
		return nil, apperr.Forbidden("tables.List", "role %s cannot view tables", caller.Role)
	}
	tables, err := r.DB.ListTables(ctx, caller.RestaurantID)
	if err != nil {
		return nil, err
	}
	return tables, nil
}

// Assign gives the table to serverID. Re-assigning the current server skips the write.
func (r *Registry) Assign(ctx context.Context, caller auth.Caller, tableID, serverID string) (*models.Table, error) {
	const op = "tables.Assign"
	if !caller.Can(auth.PermManageTables) {
		return nil, apperr.Forbidden(op, "role %s cannot assign tables", caller.Role)
	}
	if serverID == "" {
		return nil, apperr.InvalidInput(op, "server id is required")
	}

	table, err := r.load(ctx, caller, op, tableID)
	if err != nil {
		return nil, err
	}

	if table.ServerID == nil || *table.ServerID != serverID {
		now := r.Now()
		if err := r.DB.SetServer(ctx, table.ID, &serverID, now); err != nil {
			return nil, err
		}
		table.ServerID = &serverID
		table.UpdatedAt = now
		r.Logger.LogTable("ASSIGN", table.ID, fmt.Sprintf("assigned to %s by %s", serverID, caller.UserID))
	}

	r.Notifier.Dispatch(ctx, notify.TableStatusChanged{Table: *table})
	return table, nil
}

func (r *Registry) Release(ctx context.Context, caller auth.Caller, tableID string) (*models.Table, error) {
	const op = "tables.Release"
	table, err := r.load(ctx, caller, op, tableID)
	if err != nil {
		return nil, err
	}

	isAssignee := table.ServerID != nil && *table.ServerID == caller.UserID
	if !isAssignee && !caller.Can(auth.PermReleaseAnyTable) {
		return nil, apperr.Forbidden(op, "only the assigned server or an admin can release table %s", tableID)
	}

	now := r.Now()
	if err := r.DB.SetServer(ctx, table.ID, nil, now); err != nil {
		return nil, err
	}
	table.ServerID = nil
	table.UpdatedAt = now
	r.Logger.LogTable("RELEASE", table.ID, fmt.Sprintf("released by %s", caller.UserID))

	r.Notifier.Dispatch(ctx, notify.TableStatusChanged{Table: *table})
	return table, nil
}

func (r *Registry) SetStatus(ctx context.Context, caller auth.Caller, tableID string, status models.TableStatus) (*models.Table, error) {
	const op = "tables.SetStatus"
	if !caller.Can(auth.PermManageTables) {
		return nil, apperr.Forbidden(op, "role %s cannot change table status", caller.Role)
	}
	if !status.Valid() {
		return nil, apperr.InvalidInput(op, "unknown table status %q", status)
	}

	table, err := r.load(ctx, caller, op, tableID)
	if err != nil {
		return nil, err
	}
	if err := r.ApplyStatus(ctx, table, status); err != nil {
		return nil, err
	}
	return table, nil
}

// ApplyStatus writes status onto an already authorised table. Moving to AVAILABLE starts a
// new occupancy: lastResetAt is stamped and devices on the table are told to drop their session.
func (r *Registry) ApplyStatus(ctx context.Context, table *models.Table, status models.TableStatus) error {
	now := r.Now()
	var resetAt *time.Time
	if status == models.TableAvailable {
		resetAt = &now
	}

	if err := r.DB.SetStatus(ctx, table.ID, status, resetAt, now); err != nil {
		return err
	}
	table.Status = status
	table.UpdatedAt = now
	if resetAt != nil {
		table.LastResetAt = resetAt
	}
	r.Logger.LogTable("STATUS", table.ID, string(status))

	r.Notifier.Dispatch(ctx, notify.TableStatusChanged{Table: *table})
	if status == models.TableAvailable {
		r.Notifier.Dispatch(ctx, notify.SessionRevoked{TableID: table.ID, Reason: "table reset"})
	}
	return nil
}

func (r *Registry) Update(ctx context.Context, caller auth.Caller, tableID string, patch TablePatch) (*models.Table, error) {
	const op = "tables.Update"
	if !caller.Can(auth.PermManageTables) {
		return nil, apperr.Forbidden(op, "role %s cannot edit tables", caller.Role)
	}

	var name string
	if patch.Name != nil {
		name = strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, apperr.InvalidInput(op, "name cannot be empty")
		}
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, apperr.InvalidInput(op, "unknown table status %q", *patch.Status)
	}

	table, err := r.load(ctx, caller, op, tableID)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil && name != table.Name {
		now := r.Now()
		if err := r.DB.SetName(ctx, table.ID, name, now); err != nil {
			return nil, err
		}
		table.Name = name
		table.UpdatedAt = now
	}
	if patch.Status != nil {
		if err := r.ApplyStatus(ctx, table, *patch.Status); err != nil {
			return nil, err
		}
	}
	return table, nil
}

// IssueSession replaces any active session of the table with a fresh one. Order history is untouched.
func (r *Registry) IssueSession(ctx context.Context, caller auth.Caller, tableID string, ttl time.Duration) (*IssuedSession, error) {
	const op = "tables.IssueSession"
	if !caller.Can(auth.PermManageTables) {
		return nil, apperr.Forbidden(op, "role %s cannot issue table sessions", caller.Role)
	}
	if ttl < 0 {
		return nil, apperr.InvalidInput(op, "ttl must be positive")
	}

	table, err := r.load(ctx, caller, op, tableID)
	if err != nil {
		return nil, err
	}
	return r.issue(ctx, table, ttl)
}

func (r *Registry) issue(ctx context.Context, table *models.Table, ttl time.Duration) (*IssuedSession, error) {
	if ttl == 0 {
		ttl = r.SessionTTL
	}

	token, err := utils.GenerateSessionToken()
	if err != nil {
		return nil, err
	}
	now := r.Now()
	session := &models.TableSession{
		ID:        utils.NewID(),
		TableID:   table.ID,
		Token:     token,
		Active:    true,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := r.DB.ReplaceSession(ctx, session); err != nil {
		if errors.Is(err, tablesdb.ErrSessionConflict) {
			return nil, apperr.Conflict("tables.IssueSession", "a session for table %s is being issued concurrently", table.ID)
		}
		return nil, err
	}
	r.Logger.LogTable("SESSION", table.ID, fmt.Sprintf("issued session %s valid until %s", session.ID, session.ExpiresAt.Format(time.RFC3339)))

	return r.describe(ctx, table, session)
}

func (r *Registry) describe(ctx context.Context, table *models.Table, session *models.TableSession) (*IssuedSession, error) {
	restaurant, err := r.DB.GetRestaurant(ctx, table.RestaurantID)
	if err != nil {
		return nil, err
	}
	if restaurant == nil {
		return nil, apperr.NotFound("tables.describe", "restaurant %s not found", table.RestaurantID)
	}
	return &IssuedSession{
		SessionID: session.ID,
		Token:     session.Token,
		URL:       r.QR.MenuURL(restaurant.Slug, session.Token),
		ExpiresAt: session.ExpiresAt,
		Table:     *table,
	}, nil
}

// RevokeSessions deactivates every session of the table; its printed QR code stops working.
func (r *Registry) RevokeSessions(ctx context.Context, caller auth.Caller, tableID string) (int64, error) {
	const op = "tables.RevokeSessions"
	if !caller.Can(auth.PermManageTables) {
		return 0, apperr.Forbidden(op, "role %s cannot revoke table sessions", caller.Role)
	}
	table, err := r.load(ctx, caller, op, tableID)
	if err != nil {
		return 0, err
	}

	n, err := r.DB.DeactivateSessions(ctx, table.ID)
	if err != nil {
		return 0, err
	}
	r.Logger.LogTable("REVOKE", table.ID, fmt.Sprintf("%d sessions deactivated by %s", n, caller.UserID))
	r.Notifier.Dispatch(ctx, notify.SessionRevoked{TableID: table.ID, Reason: "token revoked"})
	return n, nil
}

// QRCode renders the table's current session link, issuing a session when none is active.
func (r *Registry) QRCode(ctx context.Context, caller auth.Caller, tableID string) (*IssuedSession, []byte, error) {
	const op = "tables.QRCode"
	if !caller.Can(auth.PermManageTables) {
		return nil, nil, apperr.Forbidden(op, "role %s cannot view table QR codes", caller.Role)
	}
	table, err := r.load(ctx, caller, op, tableID)
	if err != nil {
		return nil, nil, err
	}

	session, err := r.DB.GetActiveSessionForTable(ctx, table.ID, r.Now())
	if err != nil {
		return nil, nil, err
	}

	var issued *IssuedSession
	if session == nil {
		issued, err = r.issue(ctx, table, 0)
	} else {
		issued, err = r.describe(ctx, table, session)
	}
	if err != nil {
		return nil, nil, err
	}

	png, err := r.QR.PNG(issued.URL)
	if err != nil {
		return nil, nil, err
	}
	return issued, png, nil
}

// ---------------- CUSTOMERS ----------------

// ValidateSession checks token on every call and, for the first scan of a new occupancy,
// flips the table from AVAILABLE to BUSY with a single conditional update.
func (r *Registry) ValidateSession(ctx context.Context, token string) (*models.Table, error) {
	session, err := r.session(ctx, "tables.ValidateSession", token)
	if err != nil {
		return nil, err
	}

	flipped, err := r.DB.MarkBusyIfAvailable(ctx, session.TableID, r.Now())
	if err != nil {
		return nil, err
	}

	table, err := r.DB.GetTableByID(ctx, session.TableID)
	if err != nil {
		return nil, err
	}
	if table == nil {
		return nil, apperr.InvalidToken("tables.ValidateSession", "session table no longer exists")
	}

	if flipped {
		r.Logger.LogTable("OCCUPIED", table.ID, "first scan of a new occupancy")
		r.Notifier.Dispatch(ctx, notify.TableStatusChanged{Table: *table})
	}
	return table, nil
}

// SessionTable resolves token to its table without any occupancy side effect.
func (r *Registry) SessionTable(ctx context.Context, token string) (*models.Table, error) {
	session, err := r.session(ctx, "tables.SessionTable", token)
	if err != nil {
		return nil, err
	}
	table, err := r.DB.GetTableByID(ctx, session.TableID)
	if err != nil {
		return nil, err
	}
	if table == nil {
		return nil, apperr.InvalidToken("tables.SessionTable", "session table no longer exists")
	}
	return table, nil
}

func (r *Registry) CallWaiter(ctx context.Context, token, deviceID, message string) error {
	table, err := r.SessionTable(ctx, token)
	if err != nil {
		return err
	}
	if deviceID == "" {
		return apperr.InvalidInput("tables.CallWaiter", "device id is required")
	}

	r.Notifier.Dispatch(ctx, notify.WaiterCalled{
		RestaurantID: table.RestaurantID,
		TableID:      table.ID,
		TableName:    table.Name,
		DeviceID:     deviceID,
		Message:      strings.TrimSpace(message),
		Timestamp:    r.Now(),
	})
	r.Logger.LogTable("WAITER", table.ID, fmt.Sprintf("called from device %s", deviceID))
	return nil
}

func (r *Registry) session(ctx context.Context, op, token string) (*models.TableSession, error) {
	if token == "" {
		return nil, apperr.InvalidToken(op, "table token is required")
	}
	session, err := r.DB.GetValidSession(ctx, token, r.Now())
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, apperr.InvalidToken(op, "invalid or expired table token")
	}
	return session, nil
}

// load fetches a table the caller is allowed to see; other tenants' tables are reported as missing.
func (r *Registry) load(ctx context.Context, caller auth.Caller, op, tableID string) (*models.Table, error) {
	table, err := r.DB.GetTableByID(ctx, tableID)
	if err != nil {
		return nil, err
	}
	if table == nil || !caller.OwnsRestaurant(table.RestaurantID) {
		return nil, apperr.NotFound(op, "table %s not found", tableID)
	}
	return table, nil
}
