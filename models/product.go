package models

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/maresto/inventory_backend/config"
	"github.com/maresto/inventory_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Product mirrors an upstream catalog product inside one branch.
type Product struct {
	ID          int            `gorm:"primary_key" json:"id"`
	BranchId    int            `gorm:"uniqueIndex:idx_products_branch_reference,priority:1;not null" json:"branch_id"`
	Name        string         `gorm:"size:255;not null" json:"name"`
	ReferenceId uuid.UUID      `gorm:"type:varchar(36);uniqueIndex:idx_products_branch_reference,priority:2;not null" json:"reference_id"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// ProductSpecification is a BOM edge: Quantity units of the specification per product sold.
type ProductSpecification struct {
	ID              int       `gorm:"primary_key" json:"id"`
	ProductId       int       `gorm:"uniqueIndex:idx_product_specifications_pair,priority:1;not null" json:"product_id"`
	SpecificationId int       `gorm:"uniqueIndex:idx_product_specifications_pair,priority:2;index;not null" json:"specification_id"`
	Quantity        int64     `gorm:"not null" json:"quantity"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProductSpecification struct {
	ProductId       int   `json:"product_id" binding:"required"`
	SpecificationId int   `json:"specification_id" binding:"required"`
	Quantity        int64 `json:"quantity" binding:"gte=0"`
}

// CatalogProduct is one product as the upstream catalog reports it.
type CatalogProduct struct {
	ReferenceId uuid.UUID `json:"id"`
	Name        string    `json:"name"`
}

type ProductCostLine struct {
	SpecificationId int              `json:"specification_id"`
	Name            string           `json:"name"`
	Unit            string           `json:"unit"`
	UnitName        string           `json:"unit_name"`
	Quantity        int64            `json:"quantity"`
	LatestUnitPrice *decimal.Decimal `json:"latest_unit_price"`
	Cost            *decimal.Decimal `json:"cost"`
}

type ProductWithSpecifications struct {
	Product
	CostOfProduct  decimal.Decimal    `json:"cost_of_product"`
	Specifications []*ProductCostLine `json:"specifications"`
}

// GetProducts lists a branch's products with cost_of_product = sum(latest unit price * quantity).
// Specifications without history are listed but add nothing to the cost.
func GetProducts(ctx context.Context, branchId int) ([]*ProductWithSpecifications, error) {
	db := config.GetDB().WithContext(ctx)
	if err := utils.ValidateResourceIds[Branch](db, []int{branchId}, "branch_id"); err != nil {
		return nil, err
	}

	products, err := utils.FetchAllModels[Product](ctx, branchId)
	if err != nil {
		return nil, err
	}
	productIds := make([]int, 0, len(products))
	for _, p := range products {
		productIds = append(productIds, p.ID)
	}

	type edgeRow struct {
		ProductId       int
		SpecificationId int
		Name            string
		Unit            string
		UnitName        string
		Quantity        int64
	}
	var edges []edgeRow
	if len(productIds) > 0 {
		err = db.Table("product_specifications ps").
			Select("ps.product_id, ps.specification_id, s.name, s.unit, s.unit_name, ps.quantity").
			Joins("JOIN specifications s ON s.id = ps.specification_id AND s.deleted_at IS NULL").
			Where("ps.product_id IN ?", productIds).
			Order("ps.id").
			Scan(&edges).Error
		if err != nil {
			return nil, utils.Persistence("product_specifications", err)
		}
	}

	prices, err := newPriceSnapshot(db)
	if err != nil {
		return nil, err
	}
	specificationIds := make([]int, 0, len(edges))
	for _, e := range edges {
		specificationIds = append(specificationIds, e.SpecificationId)
	}
	if err := prices.load(db, specificationIds); err != nil {
		return nil, err
	}

	byProduct := make(map[int][]*ProductCostLine)
	for _, e := range edges {
		line := &ProductCostLine{
			SpecificationId: e.SpecificationId,
			Name:            e.Name,
			Unit:            e.Unit,
			UnitName:        e.UnitName,
			Quantity:        e.Quantity,
		}
		if price, err := prices.LatestUnitPrice(db, e.SpecificationId); err == nil {
			cost := utils.RoundMoney(price.Mul(decimal.NewFromInt(e.Quantity)))
			line.LatestUnitPrice = &price
			line.Cost = &cost
		}
		byProduct[e.ProductId] = append(byProduct[e.ProductId], line)
	}

	results := make([]*ProductWithSpecifications, 0, len(products))
	for _, p := range products {
		lines := byProduct[p.ID]
		if lines == nil {
			lines = []*ProductCostLine{}
		}
		total := decimal.Zero
		for _, line := range lines {
			if line.Cost != nil {
				total = total.Add(*line.Cost)
			}
		}
		results = append(results, &ProductWithSpecifications{
			Product:        *p,
			CostOfProduct:  utils.RoundMoney(total),
			Specifications: lines,
		})
	}
	return results, nil
}

// SetProductSpecification upserts a BOM edge. Quantity 0 removes the edge and returns nil.
func SetProductSpecification(ctx context.Context, branchId int, input *NewProductSpecification) (*ProductSpecification, error) {
	if input.Quantity < 0 {
		return nil, utils.Validation("quantity", "must not be negative")
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, utils.Persistence("db", tx.Error)
	}

	if err := utils.ValidateBranchResourceId[Product](tx, branchId, input.ProductId, "product_id"); err != nil {
		tx.Rollback()
		return nil, err
	}
	// edges of a product being sold stay fixed until that posting commits
	var locked []int
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Model(&Product{}).
		Where("id = ?", input.ProductId).Pluck("id", &locked).Error; err != nil {
		tx.Rollback()
		return nil, utils.Persistence("product_id", err)
	}
	if err := utils.ValidateBranchResourceId[Specification](tx, branchId, input.SpecificationId, "specification_id"); err != nil {
		tx.Rollback()
		return nil, err
	}

	if input.Quantity == 0 {
		err := tx.Where("product_id = ? AND specification_id = ?", input.ProductId, input.SpecificationId).
			Delete(&ProductSpecification{}).Error
		if err != nil {
			tx.Rollback()
			logFailure("Product", "SetProductSpecification", "remove edge", input, err)
			return nil, utils.Persistence("product_specification", err)
		}
		if err := tx.Commit().Error; err != nil {
			return nil, utils.Persistence("commit", err)
		}
		return nil, nil
	}

	edge := ProductSpecification{
		ProductId:       input.ProductId,
		SpecificationId: input.SpecificationId,
		Quantity:        input.Quantity,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "product_id"}, {Name: "specification_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"quantity", "updated_at"}),
	}).Create(&edge).Error
	if err != nil {
		tx.Rollback()
		logFailure("Product", "SetProductSpecification", "upsert edge", input, err)
		return nil, utils.FromDBError("product_specification", err)
	}
	// the upsert may not report the existing row's id
	if err := tx.Where("product_id = ? AND specification_id = ?", input.ProductId, input.SpecificationId).
		First(&edge).Error; err != nil {
		tx.Rollback()
		return nil, utils.FromDBError("product_specification", err)
	}
	if err := tx.Commit().Error; err != nil {
		return nil, utils.Persistence("commit", err)
	}
	return &edge, nil
}

// UpsertCatalogProducts renames products already known by reference id and creates the rest.
// Products that disappeared upstream are left untouched.
func UpsertCatalogProducts(ctx context.Context, branchId int, products []CatalogProduct) (created int, updated int, err error) {
	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return 0, 0, utils.Persistence("db", tx.Error)
	}

	if err := utils.ValidateResourceIds[Branch](tx, []int{branchId}, "branch_id"); err != nil {
		tx.Rollback()
		return 0, 0, err
	}

	for _, p := range products {
		if p.ReferenceId == uuid.Nil {
			continue
		}
		var existing Product
		result := tx.Unscoped().Where("branch_id = ? AND reference_id = ?", branchId, p.ReferenceId).Limit(1).Find(&existing)
		if result.Error != nil {
			tx.Rollback()
			return 0, 0, utils.Persistence("products", result.Error)
		}
		if result.RowsAffected > 0 {
			if existing.Name == p.Name {
				continue
			}
			if err := tx.Unscoped().Model(&existing).Update("name", p.Name).Error; err != nil {
				tx.Rollback()
				return 0, 0, utils.Persistence("products", err)
			}
			updated++
			continue
		}
		product := Product{BranchId: branchId, Name: p.Name, ReferenceId: p.ReferenceId}
		if err := tx.Create(&product).Error; err != nil {
			tx.Rollback()
			return 0, 0, utils.FromDBError("reference_id", err)
		}
		created++
	}

	if err := tx.Commit().Error; err != nil {
		return 0, 0, utils.Persistence("commit", err)
	}
	return created, updated, nil
}
