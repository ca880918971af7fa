package models

import (
	"log"

	"bitbucket.org/mmdatafocus/docledger_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Business{}, &Supplier{}, &CreditCard{},
		&ScannedDocument{},
		&Invoice{}, &Payment{}, &PaymentSplit{}, &DeliveryNote{},
		&SupplierItem{}, &SupplierItemPrice{}, &PriceAlert{},
		&DailyEntry{}, &DailyIncomeLine{}, &DailyReceiptLine{}, &DailyParameterLine{}, &DailyProductUsage{},
		&ManagedProduct{},
		&DocumentChangeRecord{},
		&ApprovalKey{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
