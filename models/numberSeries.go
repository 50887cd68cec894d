package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NumberKind identifies one counter family in the number_series table.
type NumberKind string

const (
	NumberKindDepartment  NumberKind = "DEPARTMENT"
	NumberKindRegister    NumberKind = "STOCK_REGISTER"
	NumberKindBatch       NumberKind = "BATCH"
	NumberKindStockEntry  NumberKind = "STOCK_ENTRY"
	NumberKindTransfer    NumberKind = "TRANSFER_NOTE"
	NumberKindRequisition NumberKind = "REQUISITION"
	NumberKindAssetTag    NumberKind = "ASSET_TAG"
	NumberKindLedgerHead  NumberKind = "LEDGER_HEAD"
)

// NumberSeries is the durable counter behind every generated document number
// and the per-batch asset tag sequence. A row is keyed by (kind, scope_key)
// and incremented under a row lock inside the same transaction as the record
// it numbers, so concurrent writers can never hand out the same value.
// The LEDGER_HEAD rows carry no meaningful value of their own; they exist so
// appends to one (item, register) ledger pair have a row to serialize on.
type NumberSeries struct {
	ID        int        `gorm:"primary_key" json:"id"`
	Kind      NumberKind `gorm:"size:30;not null;uniqueIndex:idx_series_kind_scope" json:"kind"`
	ScopeKey  string     `gorm:"size:100;not null;uniqueIndex:idx_series_kind_scope" json:"scope_key"`
	LastValue int        `gorm:"not null;default:0" json:"last_value"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// NextSequence allocates the next value for (kind, scopeKey) inside tx.
// The series row is locked FOR UPDATE until the caller's transaction ends.
func NextSequence(tx *gorm.DB, kind NumberKind, scopeKey string) (int, error) {
	series := NumberSeries{
		Kind:     kind,
		ScopeKey: scopeKey,
	}
	result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("kind = ? AND scope_key = ?", kind, scopeKey).
		FirstOrCreate(&series)
	if result.Error != nil {
		return 0, result.Error
	}

	next := series.LastValue + 1
	if err := tx.Model(&series).Update("LastValue", next).Error; err != nil {
		return 0, err
	}
	return next, nil
}

// NextNumber allocates and formats the next document number,
// e.g. NextNumber(tx, NumberKindTransfer, "", "TN", 4) -> "TN-0001".
func NextNumber(tx *gorm.DB, kind NumberKind, scopeKey string, prefix string, width int) (string, error) {
	next, err := NextSequence(tx, kind, scopeKey)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%0*d", prefix, width, next), nil
}
