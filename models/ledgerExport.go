package models

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/maresto/inventory_backend/config"
	"github.com/maresto/inventory_backend/utils"
	"github.com/xuri/excelize/v2"
)

const (
	ExportSheetSpecifications = "Specifications"
	ExportSheetLedger         = "Ledger"
)

type ledgerExportRow struct {
	ID                int
	SpecificationId   int
	SpecificationName string
	FlowType          string
	Quantity          int64
	UnitPrice         string
	Price             string
	TransactionItemId *int
	CreatedBy         string
	Note              *string
	CreatedAt         time.Time
}

// ExportLedger builds a workbook with the branch's specifications and their full ledger.
// The caller closes the returned file.
func ExportLedger(ctx context.Context, branchId int) (*excelize.File, error) {
	db := config.GetDB().WithContext(ctx)
	if err := utils.ValidateResourceIds[Branch](db, []int{branchId}, "branch_id"); err != nil {
		return nil, err
	}

	specifications, err := utils.FetchAllModels[Specification](ctx, branchId)
	if err != nil {
		return nil, err
	}

	var rows []ledgerExportRow
	err = db.Table("specification_histories sh").
		Select(`sh.id, sh.specification_id, s.name AS specification_name, sh.flow_type, sh.quantity,
			sh.unit_price, sh.price, sh.transaction_item_id, sh.created_by, sh.note, sh.created_at`).
		Joins("JOIN specifications s ON s.id = sh.specification_id").
		Where("s.branch_id = ?", branchId).
		Order("sh.specification_id").Order("sh.created_at").Order("sh.id").
		Scan(&rows).Error
	if err != nil {
		return nil, utils.Persistence("specification_histories", err)
	}

	f := excelize.NewFile()
	fail := func(err error) (*excelize.File, error) {
		_ = f.Close()
		return nil, utils.Persistence("export", err)
	}

	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), ExportSheetSpecifications); err != nil {
		return fail(err)
	}
	header := []interface{}{"id", "name", "unit", "unit_name", "smallest_unit", "raw_price", "lowest_price"}
	if err := f.SetSheetRow(ExportSheetSpecifications, "A1", &header); err != nil {
		return fail(err)
	}
	for i, s := range specifications {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fail(err)
		}
		row := []interface{}{s.ID, s.Name, s.Unit, s.UnitName, s.SmallestUnit, s.RawPrice.StringFixed(4), s.LowestPrice.StringFixed(2)}
		if err := f.SetSheetRow(ExportSheetSpecifications, cell, &row); err != nil {
			return fail(err)
		}
	}

	if _, err := f.NewSheet(ExportSheetLedger); err != nil {
		return fail(err)
	}
	header = []interface{}{"id", "specification_id", "specification", "flow_type", "quantity", "unit_price", "price", "transaction_item_id", "created_by", "note", "created_at"}
	if err := f.SetSheetRow(ExportSheetLedger, "A1", &header); err != nil {
		return fail(err)
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fail(err)
		}
		var itemId interface{}
		if r.TransactionItemId != nil {
			itemId = *r.TransactionItemId
		}
		var note interface{}
		if r.Note != nil {
			note = *r.Note
		}
		row := []interface{}{r.ID, r.SpecificationId, r.SpecificationName, r.FlowType, r.Quantity,
			r.UnitPrice, r.Price, itemId, r.CreatedBy, note, r.CreatedAt.UTC().Format(time.RFC3339)}
		if err := f.SetSheetRow(ExportSheetLedger, cell, &row); err != nil {
			return fail(err)
		}
	}
	return f, nil
}

// ArchiveLedgerExport uploads the branch workbook to bucket and returns its gs:// location.
func ArchiveLedgerExport(ctx context.Context, branchId int, bucket string) (string, error) {
	f, err := ExportLedger(ctx, branchId)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	buf := &bytes.Buffer{}
	if err := f.Write(buf); err != nil {
		return "", utils.Persistence("export", err)
	}
	objectName := fmt.Sprintf("ledger-exports/branch-%d/%s.xlsx", branchId, time.Now().UTC().Format("20060102T150405Z"))
	location, err := utils.UploadBytesToGCS(ctx, bucket, objectName, buf.Bytes(), utils.XlsxContentType)
	if err != nil {
		logFailure("LedgerExport", "ArchiveLedgerExport", "uploading workbook", branchId, err)
		return "", utils.Persistence("export", err)
	}
	return location, nil
}
