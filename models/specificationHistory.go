package models

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/maresto/inventory_backend/config"
	"github.com/maresto/inventory_backend/metrics"
	"github.com/maresto/inventory_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var errLedgerImmutable = errors.New("specification history rows are immutable")

// SpecificationHistory is one inventory movement. Rows are append-only.
type SpecificationHistory struct {
	ID                int             `gorm:"primary_key" json:"id"`
	FlowType          FlowType        `gorm:"size:3;not null" json:"flow_type"`
	SpecificationId   int             `gorm:"not null;index:idx_specification_histories_latest,priority:1" json:"specification_id"`
	CreatedBy         uuid.UUID       `gorm:"type:varchar(36);index;not null" json:"created_by"`
	Quantity          int64           `gorm:"not null" json:"quantity"`
	TransactionItemId *int            `gorm:"index" json:"transaction_item_id"`
	Note              *string         `gorm:"type:text" json:"note"`
	Price             decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"price"`
	UnitPrice         decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"unit_price"`
	CreatedAt         time.Time       `gorm:"index:idx_specification_histories_latest,priority:2,sort:desc" json:"created_at"`
}

func (h *SpecificationHistory) BeforeUpdate(tx *gorm.DB) error {
	return errLedgerImmutable
}

func (h *SpecificationHistory) BeforeDelete(tx *gorm.DB) error {
	return errLedgerImmutable
}

type NewLedgerEntry struct {
	SpecificationId   int
	FlowType          FlowType
	Quantity          int64
	UnitPrice         decimal.Decimal
	Price             decimal.Decimal
	Note              *string
	CreatedBy         uuid.UUID
	TransactionItemId *int
}

type NewPurchase struct {
	Quantity          int64           `json:"quantity" binding:"required,gt=0"`
	Price             decimal.Decimal `json:"price"`
	Note              *string         `json:"note"`
	TransactionItemId *int            `json:"transaction_item_id"`
}

func (input *NewLedgerEntry) validate() error {
	if !input.FlowType.IsValid() {
		return utils.Validation("flow_type", "must be IN or OUT")
	}
	if input.Quantity <= 0 {
		return utils.Validation("quantity", "must be greater than 0")
	}
	if input.UnitPrice.IsNegative() {
		return utils.Validation("unit_price", "must not be negative")
	}
	if input.Price.IsNegative() {
		return utils.Validation("price", "must not be negative")
	}
	if _, err := utils.CheckLedgerRange(input.UnitPrice); err != nil {
		return utils.Arithmetic("unit_price", err)
	}
	if _, err := utils.CheckLedgerRange(input.Price); err != nil {
		return utils.Arithmetic("price", err)
	}
	if input.CreatedBy == uuid.Nil {
		return utils.Validation("created_by", "required")
	}
	return nil
}

// PostLedgerEntry appends one ledger row inside the caller's unit of work.
func PostLedgerEntry(tx *gorm.DB, input *NewLedgerEntry) (*SpecificationHistory, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	if err := utils.ValidateResourceIds[Specification](tx, []int{input.SpecificationId}, "specification_id"); err != nil {
		return nil, err
	}
	return appendLedger(tx, input)
}

// appendLedger writes an already validated entry.
func appendLedger(tx *gorm.DB, input *NewLedgerEntry) (*SpecificationHistory, error) {
	history := SpecificationHistory{
		FlowType:          input.FlowType,
		SpecificationId:   input.SpecificationId,
		CreatedBy:         input.CreatedBy,
		Quantity:          input.Quantity,
		TransactionItemId: input.TransactionItemId,
		Note:              input.Note,
		Price:             input.Price,
		UnitPrice:         input.UnitPrice,
	}
	if err := tx.Create(&history).Error; err != nil {
		return nil, utils.Persistence("specification_history", err)
	}
	return &history, nil
}

// LatestUnitPrice reads the current unit price of a specification outside any unit of work.
func LatestUnitPrice(ctx context.Context, specificationId int) (decimal.Decimal, error) {
	db := config.GetDB().WithContext(ctx)
	prices, err := newPriceSnapshot(db)
	if err != nil {
		return decimal.Zero, err
	}
	return prices.LatestUnitPrice(db, specificationId)
}

// validateTransactionItem checks the item belongs to a transaction of the branch.
func validateTransactionItem(tx *gorm.DB, branchId int, transactionItemId int) error {
	var count int64
	err := tx.Table("transaction_items ti").
		Joins("JOIN transactions t ON t.id = ti.transaction_id").
		Where("ti.id = ? AND t.branch_id = ?", transactionItemId, branchId).
		Count(&count).Error
	if err != nil {
		return utils.Persistence("transaction_item_id", err)
	}
	if count == 0 {
		return utils.NotFound("transaction_item_id", "transaction item not found")
	}
	return nil
}

// PurchaseSpecification records a restock (IN) bought for price in total.
// unit_price is price / quantity at ledger scale, attributed to the authenticated user.
func PurchaseSpecification(ctx context.Context, branchId int, specificationId int, input *NewPurchase) (*SpecificationHistory, error) {
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == uuid.Nil {
		return nil, utils.Validation("created_by", "user id is required")
	}
	if input.Quantity <= 0 {
		return nil, utils.Validation("quantity", "must be greater than 0")
	}
	if input.Price.IsNegative() {
		return nil, utils.Validation("price", "must not be negative")
	}
	unitPrice, err := utils.DivideMoney(input.Price, decimal.NewFromInt(input.Quantity), utils.LedgerScale)
	if err != nil {
		return nil, utils.Arithmetic("unit_price", err)
	}

	var history *SpecificationHistory
	lock := func(tx *gorm.DB) error {
		if err := utils.ValidateBranchResourceId[Specification](tx, branchId, specificationId, "specification_id"); err != nil {
			return err
		}
		return BulkLockSpecifications(tx, []int{specificationId})
	}
	err = RunLockedUnitOfWork(ctx, lock, func(tx *gorm.DB, _ *PriceSnapshot) error {
		if input.TransactionItemId != nil {
			if err := validateTransactionItem(tx, branchId, *input.TransactionItemId); err != nil {
				return err
			}
		}
		var err error
		history, err = appendLedger(tx, &NewLedgerEntry{
			SpecificationId:   specificationId,
			FlowType:          FlowTypeIn,
			Quantity:          input.Quantity,
			UnitPrice:         unitPrice,
			Price:             input.Price,
			Note:              input.Note,
			CreatedBy:         userId,
			TransactionItemId: input.TransactionItemId,
		})
		return err
	})
	if err != nil {
		logFailure("SpecificationHistory", "PurchaseSpecification", "posting purchase", specificationId, err)
		return nil, err
	}
	metrics.LedgerRowPosted(string(FlowTypeIn))
	return history, nil
}

// GetSpecificationHistories lists a specification's ledger, newest first.
func GetSpecificationHistories(ctx context.Context, branchId int, specificationId int) ([]*SpecificationHistory, error) {
	db := config.GetDB()
	if err := utils.ValidateBranchResourceId[Specification](db.WithContext(ctx), branchId, specificationId, "specification_id"); err != nil {
		return nil, err
	}
	var results []*SpecificationHistory
	err := db.WithContext(ctx).
		Where("specification_id = ?", specificationId).
		Order("created_at DESC").Order("id DESC").
		Find(&results).Error
	if err != nil {
		return nil, utils.Persistence("specification_history", err)
	}
	return results, nil
}
