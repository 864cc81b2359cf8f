package db

import (
	"fmt"
	"testing"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func TestIsUniqueViolation_PgError(t *testing.T) {
	err := fmt.Errorf("update order: %w", &pgconn.PgError{Code: "23505", ConstraintName: "idx_orders_payment_intent_id"})

	if !IsUniqueViolation(err, "") {
		t.Fatalf("expected unique violation")
	}
	if !IsUniqueViolation(err, "idx_orders_payment_intent_id") {
		t.Fatalf("expected match on constraint name")
	}
	if IsUniqueViolation(err, "idx_other") {
		t.Fatalf("expected constraint mismatch to be false")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}, "") {
		t.Fatalf("foreign key violation is not a unique violation")
	}
	if IsUniqueViolation(nil, "") {
		t.Fatalf("nil is not a violation")
	}
}

func TestIsUniqueViolation_SQLite(t *testing.T) {
	conn := newTestDB(t)
	record := models.InventoryRecord{ProductID: uuid.New(), StoreID: uuid.New(), Quantity: 1}
	if err := conn.Create(&record).Error; err != nil {
		t.Fatalf("seed record: %v", err)
	}

	err := conn.Create(&models.InventoryRecord{ProductID: record.ProductID, StoreID: record.StoreID, Quantity: 2}).Error
	if !IsUniqueViolation(err, "") {
		t.Fatalf("expected duplicate record to be a unique violation, got %v", err)
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(fmt.Errorf("load: %w", gorm.ErrRecordNotFound)) {
		t.Fatalf("expected wrapped not-found")
	}
	if IsNotFound(fmt.Errorf("boom")) {
		t.Fatalf("unexpected not-found")
	}
}
