package models

import (
	"context"
	"fmt"

	"time"

	"bitbucket.org/nedworks/inventry_backend/config"
	"bitbucket.org/nedworks/inventry_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StoreInventory is the materialized counter for one (store, batch) pair.
// Rows are created lazily on first movement into the store and never deleted.
type StoreInventory struct {
	ID                int       `gorm:"primary_key" json:"id"`
	StoreId           int       `gorm:"not null;uniqueIndex:idx_inventory_store_batch" json:"store_id"`
	Store             *Store    `gorm:"foreignKey:StoreId" json:"store,omitempty"`
	BatchId           int       `gorm:"not null;uniqueIndex:idx_inventory_store_batch" json:"batch_id"`
	Batch             *Batch    `gorm:"foreignKey:BatchId" json:"batch,omitempty"`
	QuantityOnHand    int       `gorm:"not null;default:0" json:"quantity_on_hand"`
	QuantityAllocated int       `gorm:"not null;default:0" json:"quantity_allocated"`
	QuantityQrTagged  int       `gorm:"not null;default:0" json:"quantity_qr_tagged"`
	LastUpdated       time.Time `gorm:"autoUpdateTime" json:"last_updated"`
}

// stockLockKey is the coarse serialization key for ledger-affecting
// operations on one store.
func stockLockKey(storeId int) string {
	return fmt.Sprintf("stockLock:store:%d", storeId)
}

// firstOrCreateStoreInventory finds or creates the (store, batch) row and
// locks it FOR UPDATE for the remainder of the transaction.
func firstOrCreateStoreInventory(tx *gorm.DB, storeId int, batchId int) (*StoreInventory, error) {
	inventory := StoreInventory{
		StoreId: storeId,
		BatchId: batchId,
	}
	result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("store_id = ? AND batch_id = ?", storeId, batchId).
		FirstOrCreate(&inventory)
	if result.Error != nil {
		return nil, result.Error
	}
	return &inventory, nil
}

// fetchStoreInventoryLocked loads an existing row FOR UPDATE; a missing row
// means the store has never held the batch.
func fetchStoreInventoryLocked(tx *gorm.DB, storeId int, batchId int) (*StoreInventory, error) {
	var inventory StoreInventory
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("store_id = ? AND batch_id = ?", storeId, batchId).
		First(&inventory).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, &utils.InsufficientStockError{
				BatchId: batchId,
				StoreId: storeId,
				Reason:  "store holds no stock of this batch",
			}
		}
		return nil, err
	}
	return &inventory, nil
}

func (inv *StoreInventory) saveCounters(tx *gorm.DB) error {
	if inv.QuantityQrTagged > inv.QuantityOnHand+inv.QuantityAllocated {
		return &utils.InsufficientStockError{
			BatchId:   inv.BatchId,
			StoreId:   inv.StoreId,
			Requested: inv.QuantityQrTagged,
			Available: inv.QuantityOnHand + inv.QuantityAllocated,
			Reason:    "tagged units would exceed units held",
		}
	}
	return tx.Model(inv).Updates(map[string]interface{}{
		"QuantityOnHand":    inv.QuantityOnHand,
		"QuantityAllocated": inv.QuantityAllocated,
		"QuantityQrTagged":  inv.QuantityQrTagged,
	}).Error
}

// ReserveStock moves qty from on-hand to allocated (issue side of a transfer
// or requisition). Returns the post-mutation snapshot.
func ReserveStock(tx *gorm.DB, storeId int, batchId int, qty int) (*StoreInventory, error) {
	if qty <= 0 {
		return nil, utils.NewValidationError("reserve quantity must be positive")
	}
	inventory, err := fetchStoreInventoryLocked(tx, storeId, batchId)
	if err != nil {
		return nil, err
	}
	if inventory.QuantityOnHand < qty {
		return nil, &utils.InsufficientStockError{
			BatchId:   batchId,
			StoreId:   storeId,
			Requested: qty,
			Available: inventory.QuantityOnHand,
			Reason:    "on-hand quantity too low",
		}
	}
	inventory.QuantityOnHand -= qty
	inventory.QuantityAllocated += qty
	if err := inventory.saveCounters(tx); err != nil {
		return nil, err
	}
	return inventory, nil
}

// ReleaseStock moves qty back from allocated to on-hand (cancelled issue).
func ReleaseStock(tx *gorm.DB, storeId int, batchId int, qty int) (*StoreInventory, error) {
	if qty <= 0 {
		return nil, utils.NewValidationError("release quantity must be positive")
	}
	inventory, err := fetchStoreInventoryLocked(tx, storeId, batchId)
	if err != nil {
		return nil, err
	}
	if inventory.QuantityAllocated < qty {
		return nil, &utils.InsufficientStockError{
			BatchId:   batchId,
			StoreId:   storeId,
			Requested: qty,
			Available: inventory.QuantityAllocated,
			Reason:    "allocated quantity too low",
		}
	}
	inventory.QuantityAllocated -= qty
	inventory.QuantityOnHand += qty
	if err := inventory.saveCounters(tx); err != nil {
		return nil, err
	}
	return inventory, nil
}

// CommitStockOut removes qty straight from on-hand (direct issue without a
// prior reservation).
func CommitStockOut(tx *gorm.DB, storeId int, batchId int, qty int) (*StoreInventory, error) {
	if qty <= 0 {
		return nil, utils.NewValidationError("issue quantity must be positive")
	}
	inventory, err := fetchStoreInventoryLocked(tx, storeId, batchId)
	if err != nil {
		return nil, err
	}
	if inventory.QuantityOnHand < qty {
		return nil, &utils.InsufficientStockError{
			BatchId:   batchId,
			StoreId:   storeId,
			Requested: qty,
			Available: inventory.QuantityOnHand,
			Reason:    "on-hand quantity too low",
		}
	}
	inventory.QuantityOnHand -= qty
	if err := inventory.saveCounters(tx); err != nil {
		return nil, err
	}
	return inventory, nil
}

// CommitStockIn adds qty to on-hand, creating the row on first movement into
// the store.
func CommitStockIn(tx *gorm.DB, storeId int, batchId int, qty int) (*StoreInventory, error) {
	if qty <= 0 {
		return nil, utils.NewValidationError("receipt quantity must be positive")
	}
	inventory, err := firstOrCreateStoreInventory(tx, storeId, batchId)
	if err != nil {
		return nil, err
	}
	inventory.QuantityOnHand += qty
	if err := inventory.saveCounters(tx); err != nil {
		return nil, err
	}
	return inventory, nil
}

// SettleAllocatedStock removes qty from allocated once the counterpart has
// acknowledged receipt. The units left the store at reservation time; this
// closes out the reservation without returning anything to on-hand.
func SettleAllocatedStock(tx *gorm.DB, storeId int, batchId int, qty int) (*StoreInventory, error) {
	if qty <= 0 {
		return nil, utils.NewValidationError("settle quantity must be positive")
	}
	inventory, err := fetchStoreInventoryLocked(tx, storeId, batchId)
	if err != nil {
		return nil, err
	}
	if inventory.QuantityAllocated < qty {
		return nil, &utils.InsufficientStockError{
			BatchId:   batchId,
			StoreId:   storeId,
			Requested: qty,
			Available: inventory.QuantityAllocated,
			Reason:    "allocated quantity too low",
		}
	}
	inventory.QuantityAllocated -= qty
	if err := inventory.saveCounters(tx); err != nil {
		return nil, err
	}
	return inventory, nil
}

// TagStock increments the tagged counter. The caller must already have
// verified the batch-level tag budget; this checks the store-level one.
func TagStock(tx *gorm.DB, storeId int, batchId int, qty int) (*StoreInventory, error) {
	if qty <= 0 {
		return nil, utils.NewValidationError("tag quantity must be positive")
	}
	inventory, err := fetchStoreInventoryLocked(tx, storeId, batchId)
	if err != nil {
		return nil, err
	}
	untagged := inventory.QuantityOnHand - inventory.QuantityQrTagged
	if untagged < qty {
		return nil, &utils.InsufficientStockError{
			BatchId:   batchId,
			StoreId:   storeId,
			Requested: qty,
			Available: untagged,
			Reason:    "untagged on-hand quantity too low",
		}
	}
	inventory.QuantityQrTagged += qty
	if err := inventory.saveCounters(tx); err != nil {
		return nil, err
	}
	return inventory, nil
}

// AdjustStock applies a signed manual correction to on-hand.
func AdjustStock(tx *gorm.DB, storeId int, batchId int, qty int) (*StoreInventory, error) {
	if qty == 0 {
		return nil, utils.NewValidationError("adjustment quantity cannot be zero")
	}
	inventory, err := firstOrCreateStoreInventory(tx, storeId, batchId)
	if err != nil {
		return nil, err
	}
	if inventory.QuantityOnHand+qty < 0 {
		return nil, &utils.InsufficientStockError{
			BatchId:   batchId,
			StoreId:   storeId,
			Requested: -qty,
			Available: inventory.QuantityOnHand,
			Reason:    "on-hand quantity would go negative",
		}
	}
	inventory.QuantityOnHand += qty
	if err := inventory.saveCounters(tx); err != nil {
		return nil, err
	}
	return inventory, nil
}

// ListStoreInventory returns the snapshot for a store and/or batch.
func ListStoreInventory(ctx context.Context, storeId *int, batchId *int) ([]*StoreInventory, error) {
	db := config.GetDB()
	var results []*StoreInventory

	dbCtx := db.WithContext(ctx).Preload("Batch").Preload("Batch.Item")
	if storeId != nil {
		dbCtx = dbCtx.Where("store_id = ?", *storeId)
	}
	if batchId != nil {
		dbCtx = dbCtx.Where("batch_id = ?", *batchId)
	}
	if err := dbCtx.Order("store_id, batch_id").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func GetStoreInventory(ctx context.Context, storeId int, batchId int) (*StoreInventory, error) {
	db := config.GetDB()
	var inventory StoreInventory
	err := db.WithContext(ctx).
		Where("store_id = ? AND batch_id = ?", storeId, batchId).
		First(&inventory).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &inventory, nil
}
