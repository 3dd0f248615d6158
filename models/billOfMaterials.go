package models

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/maresto/inventory_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type BillOfMaterials struct {
	Product *Product   `json:"product"`
	Lines   []*BomLine `json:"specifications"`
}

type BomLine struct {
	SpecificationId   int             `json:"specification_id"`
	SpecificationName string          `json:"name"`
	Unit              string          `json:"unit"`
	QuantityPerUnit   int64           `json:"quantity_per_unit"`
	LatestUnitPrice   decimal.Decimal `json:"latest_unit_price"`
}

type bomRow struct {
	SpecificationId int
	Name            string
	Unit            string
	Quantity        int64
}

// ResolveBillOfMaterials returns the product's live BOM lines with their snapshot prices.
// A product without edges resolves to an empty line list.
// A BOM specification with no ledger history fails with NotFound.
func ResolveBillOfMaterials(tx *gorm.DB, prices *PriceSnapshot, branchId int, productReferenceId uuid.UUID) (*BillOfMaterials, error) {
	var product Product
	result := tx.Where("branch_id = ? AND reference_id = ?", branchId, productReferenceId).Limit(1).Find(&product)
	if result.Error != nil {
		return nil, utils.Persistence("product_reference_id", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, utils.NotFound("product_reference_id", "product not found")
	}

	var rows []bomRow
	err := tx.Table("product_specifications ps").
		Select("ps.specification_id, s.name, s.unit, ps.quantity").
		Joins("JOIN specifications s ON s.id = ps.specification_id AND s.deleted_at IS NULL").
		Where("ps.product_id = ?", product.ID).
		Order("ps.id").
		Scan(&rows).Error
	if err != nil {
		return nil, utils.Persistence("product_specifications", err)
	}

	specificationIds := make([]int, 0, len(rows))
	for _, row := range rows {
		specificationIds = append(specificationIds, row.SpecificationId)
	}
	if err := prices.load(tx, specificationIds); err != nil {
		return nil, err
	}

	bom := &BillOfMaterials{Product: &product, Lines: make([]*BomLine, 0, len(rows))}
	for _, row := range rows {
		price, err := prices.LatestUnitPrice(tx, row.SpecificationId)
		if err != nil {
			if utils.KindOf(err) == utils.ErrorKindNotFound {
				return nil, utils.NotFound("specification_history", fmt.Sprintf("specification %q has no price history", row.Name))
			}
			return nil, err
		}
		bom.Lines = append(bom.Lines, &BomLine{
			SpecificationId:   row.SpecificationId,
			SpecificationName: row.Name,
			Unit:              row.Unit,
			QuantityPerUnit:   row.Quantity,
			LatestUnitPrice:   price,
		})
	}
	return bom, nil
}
