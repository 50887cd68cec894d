package reports

import (
	"context"

	"bitbucket.org/nedworks/inventry_backend/config"
	"bitbucket.org/nedworks/inventry_backend/models"
	"bitbucket.org/nedworks/inventry_backend/utils"
	"github.com/shopspring/decimal"
)

// StoreInventoryRow is one batch holding in the store snapshot.
type StoreInventoryRow struct {
	BatchId           int             `json:"batch_id"`
	BatchNumber       string          `json:"batch_number"`
	ItemName          string          `json:"item_name"`
	ItemCode          string          `json:"item_code"`
	Unit              string          `json:"unit"`
	QuantityOnHand    int             `json:"quantity_on_hand"`
	QuantityAllocated int             `json:"quantity_allocated"`
	QuantityQrTagged  int             `json:"quantity_qr_tagged"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	StockValue        decimal.Decimal `json:"stock_value"`
}

func GetStoreInventoryReport(ctx context.Context, storeId int) ([]*StoreInventoryRow, error) {

	sql := `
SELECT
    si.batch_id,
    batches.batch_number,
    items.name AS item_name,
    items.code AS item_code,
    items.unit,
    si.quantity_on_hand,
    si.quantity_allocated,
    si.quantity_qr_tagged,
    batches.unit_price,
    si.quantity_on_hand * batches.unit_price AS stock_value
FROM
    store_inventories si
    JOIN batches ON batches.id = si.batch_id
    JOIN items ON items.id = batches.item_id
WHERE
    si.store_id = @storeId
    AND (si.quantity_on_hand > 0 OR si.quantity_allocated > 0)
ORDER BY items.name, batches.batch_number;
`

	if err := utils.ValidateResourceId[models.Store](ctx, storeId); err != nil {
		return nil, utils.NewValidationError("store not found")
	}

	var records []*StoreInventoryRow
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql, map[string]interface{}{
		"storeId": storeId,
	}).Scan(&records).Error; err != nil {
		return nil, err
	}

	return records, nil
}

// BatchMovementRow traces one batch across the ledger: cumulative receipts,
// issues and the tag count, per store where the batch has ever pooled.
type BatchMovementRow struct {
	StoreId           int    `json:"store_id"`
	StoreName         string `json:"store_name"`
	TotalReceived     int    `json:"total_received"`
	TotalIssued       int    `json:"total_issued"`
	QuantityOnHand    int    `json:"quantity_on_hand"`
	QuantityAllocated int    `json:"quantity_allocated"`
	TaggedCount       int    `json:"tagged_count"`
}

func GetBatchMovementReport(ctx context.Context, batchId int) ([]*BatchMovementRow, error) {

	sql := `
SELECT
    si.store_id,
    stores.name AS store_name,
    COALESCE(led.total_received, 0) AS total_received,
    COALESCE(led.total_issued, 0) AS total_issued,
    si.quantity_on_hand,
    si.quantity_allocated,
    COALESCE(tags.tagged_count, 0) AS tagged_count
FROM
    store_inventories si
    JOIN stores ON stores.id = si.store_id
    LEFT JOIN (
        SELECT
            store_id,
            SUM(CASE WHEN quantity > 0 THEN quantity ELSE 0 END) AS total_received,
            SUM(CASE WHEN quantity < 0 THEN ABS(quantity) ELSE 0 END) AS total_issued
        FROM stock_entries
        WHERE batch_id = @batchId
        GROUP BY store_id
    ) AS led ON led.store_id = si.store_id
    LEFT JOIN (
        SELECT store_id, COUNT(*) AS tagged_count
        FROM asset_tags
        WHERE batch_id = @batchId
        GROUP BY store_id
    ) AS tags ON tags.store_id = si.store_id
WHERE
    si.batch_id = @batchId
ORDER BY stores.name;
`

	if err := utils.ValidateResourceId[models.Batch](ctx, batchId); err != nil {
		return nil, utils.NewValidationError("batch not found")
	}

	var records []*BatchMovementRow
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql, map[string]interface{}{
		"batchId": batchId,
	}).Scan(&records).Error; err != nil {
		return nil, err
	}

	return records, nil
}
