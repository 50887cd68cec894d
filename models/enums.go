package models

type StoreType string

const (
	StoreTypeMain StoreType = "MAIN"
	StoreTypeSub  StoreType = "SUB"
)

type RegisterType string

const (
	RegisterTypeDeadStock  RegisterType = "DEADSTOCK"
	RegisterTypeConsumable RegisterType = "CONSUMABLE"
	RegisterTypeEquipment  RegisterType = "EQUIPMENT"
)

// short codes embedded in generated register numbers, e.g. MAIN-01-DSR-001
var registerTypeCodes = map[RegisterType]string{
	RegisterTypeDeadStock:  "DSR",
	RegisterTypeConsumable: "CON",
	RegisterTypeEquipment:  "EQT",
}

func (t RegisterType) Code() string {
	if code, ok := registerTypeCodes[t]; ok {
		return code
	}
	return "REG"
}

type LocationType string

const (
	LocationTypeRoom         LocationType = "ROOM"
	LocationTypeAuditorium   LocationType = "AUDITORIUM"
	LocationTypeLab          LocationType = "LAB"
	LocationTypeOffice       LocationType = "OFFICE"
	LocationTypeRepairCenter LocationType = "REPAIR_CENTER"
	LocationTypeHostel       LocationType = "HOSTEL"
	LocationTypeOther        LocationType = "OTHER"
)

type ItemSourceType string

const (
	ItemSourceTypeDeptPurchase    ItemSourceType = "DEPT_PURCHASE"
	ItemSourceTypeUniversityStore ItemSourceType = "UNIVERSITY_STORE"
)

type DeliveryStatus string

const (
	DeliveryStatusPartial DeliveryStatus = "PART"
	DeliveryStatusFull    DeliveryStatus = "FULL"
)

type BatchSourceType string

const (
	BatchSourceDepartmentalPurchase BatchSourceType = "DEPARTMENTAL_PURCHASE"
	BatchSourceUniversityStore      BatchSourceType = "UNIVERSITY_STORE_DISTRIBUTION"
)

type StockEntryType string

const (
	StockEntryTypeReceipt      StockEntryType = "RECEIPT"
	StockEntryTypeIssue        StockEntryType = "ISSUE"
	StockEntryTypeAdjustment   StockEntryType = "ADJUSTMENT"
	StockEntryTypeReturn       StockEntryType = "RETURN"
	StockEntryTypeTransferIn   StockEntryType = "TRANSFER_IN"
	StockEntryTypeTransferOut  StockEntryType = "TRANSFER_OUT"
	StockEntryTypeQrGeneration StockEntryType = "QR_GENERATION"
)

func (t StockEntryType) IsValid() bool {
	switch t {
	case StockEntryTypeReceipt, StockEntryTypeIssue, StockEntryTypeAdjustment,
		StockEntryTypeReturn, StockEntryTypeTransferIn, StockEntryTypeTransferOut,
		StockEntryTypeQrGeneration:
		return true
	}
	return false
}

type TransferNoteStatus string

const (
	TransferNoteStatusDraft             TransferNoteStatus = "DRAFT"
	TransferNoteStatusIssued            TransferNoteStatus = "ISSUED"
	TransferNoteStatusPartiallyReceived TransferNoteStatus = "PARTIALLY_RECEIVED"
	TransferNoteStatusReceived          TransferNoteStatus = "RECEIVED"
	TransferNoteStatusCancelled         TransferNoteStatus = "CANCELLED"
)

type RequisitionStatus string

const (
	RequisitionStatusDraft             RequisitionStatus = "DRAFT"
	RequisitionStatusPendingApproval   RequisitionStatus = "PENDING_APPROVAL"
	RequisitionStatusApproved          RequisitionStatus = "APPROVED"
	RequisitionStatusInTransit         RequisitionStatus = "IN_TRANSIT"
	RequisitionStatusPartiallyReceived RequisitionStatus = "PARTIALLY_RECEIVED"
	RequisitionStatusReceived          RequisitionStatus = "RECEIVED"
	RequisitionStatusRejected          RequisitionStatus = "REJECTED"
)

type AssetTagStatus string

const (
	AssetTagStatusInStock     AssetTagStatus = "IN_STOCK"
	AssetTagStatusInUse       AssetTagStatus = "IN_USE"
	AssetTagStatusUnderRepair AssetTagStatus = "UNDER_REPAIR"
	AssetTagStatusWrittenOff  AssetTagStatus = "WRITTEN_OFF"
	AssetTagStatusLost        AssetTagStatus = "LOST"
)

// allowed asset tag status transitions; written-off and lost are terminal
var assetTagTransitions = map[AssetTagStatus][]AssetTagStatus{
	AssetTagStatusInStock:     {AssetTagStatusInUse, AssetTagStatusUnderRepair, AssetTagStatusWrittenOff, AssetTagStatusLost},
	AssetTagStatusInUse:       {AssetTagStatusInStock, AssetTagStatusUnderRepair, AssetTagStatusWrittenOff, AssetTagStatusLost},
	AssetTagStatusUnderRepair: {AssetTagStatusInStock, AssetTagStatusInUse, AssetTagStatusWrittenOff, AssetTagStatusLost},
}

func (s AssetTagStatus) CanTransitionTo(next AssetTagStatus) bool {
	for _, allowed := range assetTagTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type UserRole string

const (
	UserRoleAdmin       UserRole = "A"
	UserRoleStoreKeeper UserRole = "S"
	UserRoleClerk       UserRole = "C"
)
