package reports

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/nedworks/inventry_backend/config"
	"bitbucket.org/nedworks/inventry_backend/models"
	"bitbucket.org/nedworks/inventry_backend/utils"
	"github.com/xuri/excelize/v2"
)

// StockRegisterRow is one printed line of the physical stock register book.
type StockRegisterRow struct {
	EntryNumber string    `json:"entry_number"`
	EntryDate   time.Time `json:"entry_date"`
	EntryType   string    `json:"entry_type"`
	ItemName    string    `json:"item_name"`
	ItemCode    string    `json:"item_code"`
	BatchNumber *string   `json:"batch_number,omitempty"`
	Quantity    int       `json:"quantity"`
	Balance     int       `json:"balance"`
	Remarks     string    `json:"remarks"`
}

func GetStockRegisterReport(ctx context.Context, registerId int, fromDate *time.Time, toDate *time.Time) ([]*StockRegisterRow, error) {

	sqlT := `
SELECT
    se.entry_number,
    se.entry_date,
    se.entry_type,
    items.name AS item_name,
    items.code AS item_code,
    batches.batch_number,
    se.quantity,
    se.balance,
    se.remarks
FROM
    stock_entries se
    JOIN items ON items.id = se.item_id
    LEFT JOIN batches ON batches.id = se.batch_id
WHERE
    se.stock_register_id = @registerId
    {{- if .fromDate }} AND se.entry_date >= @fromDate {{- end }}
    {{- if .toDate }} AND se.entry_date <= @toDate {{- end }}
ORDER BY se.id;
`

	if err := utils.ValidateResourceId[models.StockRegister](ctx, registerId); err != nil {
		return nil, utils.NewValidationError("stock register not found")
	}

	// generating sql from template
	sql, err := utils.ExecTemplate(sqlT, map[string]interface{}{
		"fromDate": fromDate != nil,
		"toDate":   toDate != nil,
	})
	if err != nil {
		return nil, err
	}

	args := map[string]interface{}{
		"registerId": registerId,
	}
	if fromDate != nil {
		args["fromDate"] = *fromDate
	}
	if toDate != nil {
		args["toDate"] = *toDate
	}

	var records []*StockRegisterRow
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql, args).Scan(&records).Error; err != nil {
		return nil, err
	}

	return records, nil
}

// ExportStockRegisterXlsx renders the register book as a spreadsheet. The
// caller owns the returned file and is responsible for closing it.
func ExportStockRegisterXlsx(ctx context.Context, registerId int, fromDate *time.Time, toDate *time.Time) (*excelize.File, error) {

	register, err := models.GetStockRegister(ctx, registerId)
	if err != nil {
		return nil, err
	}
	data, err := GetStockRegisterReport(ctx, registerId, fromDate, toDate)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	sheetName := "Sheet1"
	if _, err := f.NewSheet(sheetName); err != nil {
		return nil, err
	}

	// Add headers
	f.SetCellValue(sheetName, "A1", "Register")
	f.SetCellValue(sheetName, "B1", register.RegisterNumber)
	f.SetCellValue(sheetName, "A2", "Entry Number")
	f.SetCellValue(sheetName, "B2", "Date")
	f.SetCellValue(sheetName, "C2", "Type")
	f.SetCellValue(sheetName, "D2", "Item")
	f.SetCellValue(sheetName, "E2", "Item Code")
	f.SetCellValue(sheetName, "F2", "Batch")
	f.SetCellValue(sheetName, "G2", "Quantity")
	f.SetCellValue(sheetName, "H2", "Balance")
	f.SetCellValue(sheetName, "I2", "Remarks")

	// Add data
	for i, d := range data {
		row := fmt.Sprint(i + 3)
		f.SetCellValue(sheetName, "A"+row, d.EntryNumber)
		f.SetCellValue(sheetName, "B"+row, d.EntryDate.Format("2006-01-02"))
		f.SetCellValue(sheetName, "C"+row, d.EntryType)
		f.SetCellValue(sheetName, "D"+row, d.ItemName)
		f.SetCellValue(sheetName, "E"+row, d.ItemCode)
		f.SetCellValue(sheetName, "F"+row, utils.DereferencePtr(d.BatchNumber, ""))
		f.SetCellValue(sheetName, "G"+row, d.Quantity)
		f.SetCellValue(sheetName, "H"+row, d.Balance)
		f.SetCellValue(sheetName, "I"+row, d.Remarks)
	}

	return f, nil
}
