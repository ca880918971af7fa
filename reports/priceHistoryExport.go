package reports

import (
	"context"
	"fmt"
	"io"

	"bitbucket.org/mmdatafocus/docledger_backend/config"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

type priceHistoryRow struct {
	SupplierName string          `json:"supplier_name"`
	ItemName     string          `json:"item_name"`
	Price        decimal.Decimal `json:"price"`
	Quantity     decimal.Decimal `json:"quantity"`
	DocumentDate string          `json:"document_date"`
}

func getPriceHistoryRows(ctx context.Context, businessId string) ([]priceHistoryRow, error) {
	db := config.GetDB()
	var rows []priceHistoryRow
	err := db.WithContext(ctx).Raw(`
		SELECT
			s.name AS supplier_name,
			i.name AS item_name,
			p.price AS price,
			COALESCE(p.quantity, 0) AS quantity,
			DATE_FORMAT(p.document_date, '%Y-%m-%d') AS document_date
		FROM supplier_item_prices p
		JOIN supplier_items i ON p.supplier_item_id = i.id
		JOIN suppliers s ON i.supplier_id = s.id
		WHERE p.business_id = ?
		ORDER BY s.name, i.name, p.document_date
	`, businessId).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// WritePriceHistoryXlsx streams the full supplier price history as a workbook.
func WritePriceHistoryXlsx(ctx context.Context, businessId string, w io.Writer) error {
	rows, err := getPriceHistoryRows(ctx, businessId)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	if _, err := f.NewSheet("Sheet1"); err != nil {
		return err
	}

	// Add headers
	f.SetCellValue("Sheet1", "A1", "Supplier")
	f.SetCellValue("Sheet1", "B1", "Item")
	f.SetCellValue("Sheet1", "C1", "Price")
	f.SetCellValue("Sheet1", "D1", "Quantity")
	f.SetCellValue("Sheet1", "E1", "DocumentDate")

	// Add data
	for i, r := range rows {
		f.SetCellValue("Sheet1", "A"+fmt.Sprint(i+2), r.SupplierName)
		f.SetCellValue("Sheet1", "B"+fmt.Sprint(i+2), r.ItemName)
		f.SetCellValue("Sheet1", "C"+fmt.Sprint(i+2), r.Price.InexactFloat64())
		f.SetCellValue("Sheet1", "D"+fmt.Sprint(i+2), r.Quantity.InexactFloat64())
		f.SetCellValue("Sheet1", "E"+fmt.Sprint(i+2), r.DocumentDate)
	}

	return f.Write(w)
}
