package models

import (
	"log"

	"bitbucket.org/nedworks/inventry_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Department{}, &Store{}, &StockRegister{}, &Location{},
		&ItemCategory{}, &Item{},
		&InspectionCertificate{}, &InspectionItem{},
		&Batch{}, &StoreInventory{}, &StockEntry{},
		&TransferNote{}, &TransferNoteItem{},
		&Requisition{}, &RequisitionItem{},
		&AssetTag{},
		&NumberSeries{},
		&User{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
