// Package testdb builds throwaway SQLite databases with the service schema.
package testdb

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"ms-tableside/internal/models"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

var schema = []any{
	(*models.Restaurant)(nil),
	(*models.Table)(nil),
	(*models.TableSession)(nil),
	(*models.Product)(nil),
	(*models.Order)(nil),
	(*models.OrderItem)(nil),
	(*models.Payment)(nil),
	(*models.BillRequest)(nil),
	(*models.BillRequestOrder)(nil),
}

// constraints the models cannot express, copied from the migrations.
var indexes = []string{
	"CREATE UNIQUE INDEX table_sessions_one_active_idx ON table_sessions (table_id) WHERE active",
}

// New returns an isolated in-memory database. A single connection serialises access
// the way row locks would on PostgreSQL.
func New(t testing.TB) *bun.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	for _, model := range schema {
		if _, err := db.NewCreateTable().Model(model).Exec(context.Background()); err != nil {
			t.Fatalf("Failed to create table for %T: %v", model, err)
		}
	}
	for _, ddl := range indexes {
		if _, err := db.ExecContext(context.Background(), ddl); err != nil {
			t.Fatalf("Failed to create index: %v", err)
		}
	}

	t.Cleanup(func() { db.Close() })
	return db
}
