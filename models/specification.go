package models

import (
	"context"
	"time"

	"github.com/maresto/inventory_backend/config"
	"github.com/maresto/inventory_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Specification is a raw material tracked by a branch.
// LowestPrice is always RawPrice / SmallestUnit rounded to 2 decimals.
type Specification struct {
	ID           int             `gorm:"primary_key" json:"id"`
	BranchId     int             `gorm:"index:idx_specifications_branch_name,priority:1;not null" json:"branch_id"`
	Name         string          `gorm:"index:idx_specifications_branch_name,priority:2;size:100;not null" json:"name"`
	Unit         string          `gorm:"size:50;not null" json:"unit"`
	UnitName     string          `gorm:"size:50;not null" json:"unit_name"`
	SmallestUnit int64           `gorm:"not null;default:1" json:"smallest_unit"`
	RawPrice     decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"raw_price"`
	LowestPrice  decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"lowest_price"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt    gorm.DeletedAt  `gorm:"index" json:"-"`
}

type NewSpecification struct {
	Name         string          `json:"name" binding:"required,max=100"`
	Unit         string          `json:"unit" binding:"required,max=50"`
	UnitName     string          `json:"unit_name" binding:"required,max=50"`
	SmallestUnit int64           `json:"smallest_unit" binding:"required,gt=0"`
	RawPrice     decimal.Decimal `json:"raw_price"`
}

type SimplifyProduct struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Quantity  int64     `json:"quantity"`
	UpdatedAt time.Time `json:"updated_at"`
}

type SpecificationWithProducts struct {
	Specification
	Products []SimplifyProduct `json:"products"`
}

// validate input for both create & update. (id = 0 for create)
func (input *NewSpecification) validate(tx *gorm.DB, branchId int, id int) error {
	input.Name = utils.NormalizeName(input.Name)
	input.UnitName = utils.NormalizeName(input.UnitName)
	if input.Name == "" {
		return utils.Validation("name", "required")
	}
	if input.UnitName == "" {
		return utils.Validation("unit_name", "required")
	}
	if input.SmallestUnit <= 0 {
		return utils.Validation("smallest_unit", "must be greater than 0")
	}
	if input.RawPrice.IsNegative() {
		return utils.Validation("raw_price", "must not be negative")
	}
	if err := utils.ValidateResourceIds[Branch](tx, []int{branchId}, "branch_id"); err != nil {
		return err
	}
	if id > 0 {
		if err := utils.ValidateBranchResourceId[Specification](tx, branchId, id, "specification_id"); err != nil {
			return err
		}
	}
	return utils.ValidateUnique[Specification](tx, branchId, "name", input.Name, id)
}

func (input *NewSpecification) lowestPrice() (decimal.Decimal, error) {
	if _, err := utils.CheckLedgerRange(input.RawPrice); err != nil {
		return decimal.Zero, utils.Arithmetic("raw_price", err)
	}
	lowest, err := utils.DivideMoney(input.RawPrice, decimal.NewFromInt(input.SmallestUnit), utils.MoneyScale)
	if err != nil {
		return decimal.Zero, utils.Arithmetic("lowest_price", err)
	}
	return lowest, nil
}

func CreateSpecification(ctx context.Context, branchId int, input *NewSpecification) (*Specification, error) {
	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, utils.Persistence("db", tx.Error)
	}

	if err := input.validate(tx, branchId, 0); err != nil {
		tx.Rollback()
		return nil, err
	}
	lowest, err := input.lowestPrice()
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	specification := Specification{
		BranchId:     branchId,
		Name:         input.Name,
		Unit:         input.Unit,
		UnitName:     input.UnitName,
		SmallestUnit: input.SmallestUnit,
		RawPrice:     input.RawPrice,
		LowestPrice:  lowest,
	}
	if err := tx.Create(&specification).Error; err != nil {
		tx.Rollback()
		logFailure("Specification", "CreateSpecification", "create", input, err)
		return nil, utils.FromDBError("name", err)
	}
	if err := tx.Commit().Error; err != nil {
		logFailure("Specification", "CreateSpecification", "commit", input, err)
		return nil, utils.Persistence("commit", err)
	}
	return &specification, nil
}

func UpdateSpecification(ctx context.Context, branchId int, id int, input *NewSpecification) (*Specification, error) {
	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, utils.Persistence("db", tx.Error)
	}

	if err := input.validate(tx, branchId, id); err != nil {
		tx.Rollback()
		return nil, err
	}
	lowest, err := input.lowestPrice()
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	var specification Specification
	if err := tx.Where("branch_id = ?", branchId).First(&specification, id).Error; err != nil {
		tx.Rollback()
		return nil, utils.FromDBError("specification_id", err)
	}
	err = tx.Model(&specification).Updates(map[string]interface{}{
		"Name":         input.Name,
		"Unit":         input.Unit,
		"UnitName":     input.UnitName,
		"SmallestUnit": input.SmallestUnit,
		"RawPrice":     input.RawPrice,
		"LowestPrice":  lowest,
	}).Error
	if err != nil {
		tx.Rollback()
		logFailure("Specification", "UpdateSpecification", "update", input, err)
		return nil, utils.FromDBError("name", err)
	}
	if err := tx.Commit().Error; err != nil {
		logFailure("Specification", "UpdateSpecification", "commit", input, err)
		return nil, utils.Persistence("commit", err)
	}
	return &specification, nil
}

// DeleteSpecification soft-deletes; its ledger stays and BOM resolution skips it.
func DeleteSpecification(ctx context.Context, branchId int, id int) (*Specification, error) {
	specification, err := utils.FetchModel[Specification](ctx, branchId, id)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(specification).Error; err != nil {
		logFailure("Specification", "DeleteSpecification", "delete", id, err)
		return nil, utils.Persistence("specification_id", err)
	}
	return specification, nil
}

func GetSpecification(ctx context.Context, branchId int, id int) (*Specification, error) {
	return utils.FetchModel[Specification](ctx, branchId, id)
}

// GetSpecifications lists a branch's live specifications with the products that use them.
func GetSpecifications(ctx context.Context, branchId int) ([]*SpecificationWithProducts, error) {
	db := config.GetDB()
	if err := utils.ValidateResourceIds[Branch](db.WithContext(ctx), []int{branchId}, "branch_id"); err != nil {
		return nil, err
	}

	specifications, err := utils.FetchAllModels[Specification](ctx, branchId)
	if err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(specifications))
	for _, s := range specifications {
		ids = append(ids, s.ID)
	}

	type productRow struct {
		SpecificationId int
		SimplifyProduct
	}
	var rows []productRow
	if len(ids) > 0 {
		err = db.WithContext(ctx).Table("product_specifications ps").
			Select("ps.specification_id, p.id, p.name, ps.quantity, p.updated_at").
			Joins("JOIN products p ON p.id = ps.product_id AND p.deleted_at IS NULL").
			Where("ps.specification_id IN ?", ids).
			Order("p.id").
			Scan(&rows).Error
		if err != nil {
			return nil, utils.Persistence("product_specifications", err)
		}
	}
	bySpecification := make(map[int][]SimplifyProduct)
	for _, row := range rows {
		bySpecification[row.SpecificationId] = append(bySpecification[row.SpecificationId], row.SimplifyProduct)
	}

	results := make([]*SpecificationWithProducts, 0, len(specifications))
	for _, s := range specifications {
		products := bySpecification[s.ID]
		if products == nil {
			products = []SimplifyProduct{}
		}
		results = append(results, &SpecificationWithProducts{Specification: *s, Products: products})
	}
	return results, nil
}
