package models

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/maresto/inventory_backend/config"
	"github.com/maresto/inventory_backend/metrics"
	"github.com/maresto/inventory_backend/utils"
	"gorm.io/gorm"
)

// Transaction is a sale. Its items freeze product name and quantity at the time of sale.
type Transaction struct {
	ID        int                `gorm:"primary_key" json:"id"`
	BranchId  int                `gorm:"index;not null" json:"branch_id"`
	CreatedBy *uuid.UUID         `gorm:"type:varchar(36);index" json:"created_by"`
	Note      *string            `gorm:"type:text" json:"note"`
	Items     []*TransactionItem `gorm:"foreignKey:TransactionId" json:"items,omitempty"`
	CreatedAt time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

type TransactionItem struct {
	ID                 int       `gorm:"primary_key" json:"id"`
	TransactionId      int       `gorm:"index;not null" json:"transaction_id"`
	ProductId          int       `gorm:"index;not null" json:"product_id"`
	ProductName        string    `gorm:"size:255;not null" json:"product_name"`
	ProductReferenceId uuid.UUID `gorm:"type:varchar(36);index;not null" json:"product_reference_id"`
	ProductQuantity    int64     `gorm:"not null" json:"product_quantity"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type NewTransaction struct {
	CreatedBy *uuid.UUID           `json:"created_by"`
	Note      *string              `json:"note"`
	Items     []NewTransactionItem `json:"items" binding:"required,min=1,dive"`
}

type NewTransactionItem struct {
	ProductReferenceId uuid.UUID `json:"product_reference_id" binding:"required"`
	ProductQuantity    int64     `json:"product_quantity" binding:"required,gt=0"`
}

func (input *NewTransaction) validate() error {
	if len(input.Items) == 0 {
		return utils.Validation("items", "at least one item is required")
	}
	for i, item := range input.Items {
		if item.ProductReferenceId == uuid.Nil {
			return utils.Validation(fmt.Sprintf("items.%d.product_reference_id", i), "required")
		}
		if item.ProductQuantity <= 0 {
			return utils.Validation(fmt.Sprintf("items.%d.product_quantity", i), "must be greater than 0")
		}
	}
	if input.CreatedBy != nil && *input.CreatedBy == uuid.Nil {
		return utils.Validation("created_by", "invalid user id")
	}
	return nil
}

// validateActors checks every supplied actor exists before anything is posted.
func validateActors(tx *gorm.DB, inputs []*NewTransaction) error {
	for i, input := range inputs {
		if input.CreatedBy == nil {
			continue
		}
		if err := utils.ValidateResourceIds[User](tx, []uuid.UUID{*input.CreatedBy}, "created_by"); err != nil {
			if len(inputs) > 1 {
				return utils.PrefixField(err, fmt.Sprintf("transactions.%d", i))
			}
			return err
		}
	}
	return nil
}

// CreateTransaction posts one sale: per item it resolves the BOM, writes the item and
// one OUT ledger row per BOM line. Everything commits together or not at all.
func CreateTransaction(ctx context.Context, branchId int, input *NewTransaction) (*Transaction, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	started := time.Now()
	var transaction *Transaction
	var ledgerRows int
	lock := func(tx *gorm.DB) error {
		return lockPostingRows(tx, branchId, []*NewTransaction{input})
	}
	err := RunLockedUnitOfWork(ctx, lock, func(tx *gorm.DB, prices *PriceSnapshot) error {
		if err := utils.ValidateResourceIds[Branch](tx, []int{branchId}, "branch_id"); err != nil {
			return err
		}
		if err := validateActors(tx, []*NewTransaction{input}); err != nil {
			return err
		}
		var err error
		transaction, ledgerRows, err = postTransaction(tx, prices, branchId, input)
		return err
	})
	if err != nil {
		logFailure("Transaction", "CreateTransaction", "posting transaction", input, err)
		metrics.ObservePosting("single", 0, 0, started, string(utils.KindOf(err)))
		return nil, err
	}
	metrics.ObservePosting("single", 1, ledgerRows, started, "")
	return transaction, nil
}

// CreateTransactions posts every transaction in one unit of work, in request order.
// The first failure rolls back the whole call and is the only error returned.
func CreateTransactions(ctx context.Context, branchId int, inputs []*NewTransaction) ([]int, error) {
	if len(inputs) == 0 {
		return nil, utils.Validation("transactions", "at least one transaction is required")
	}
	for i, input := range inputs {
		if input == nil {
			return nil, utils.Validation(fmt.Sprintf("transactions.%d", i), "required")
		}
		if err := input.validate(); err != nil {
			return nil, utils.PrefixField(err, fmt.Sprintf("transactions.%d", i))
		}
	}

	started := time.Now()
	ids := make([]int, 0, len(inputs))
	var ledgerRows int
	lock := func(tx *gorm.DB) error {
		return lockPostingRows(tx, branchId, inputs)
	}
	err := RunLockedUnitOfWork(ctx, lock, func(tx *gorm.DB, prices *PriceSnapshot) error {
		if err := utils.ValidateResourceIds[Branch](tx, []int{branchId}, "branch_id"); err != nil {
			return err
		}
		if err := validateActors(tx, inputs); err != nil {
			return err
		}
		for i, input := range inputs {
			transaction, rows, err := postTransaction(tx, prices, branchId, input)
			if err != nil {
				return utils.PrefixField(err, fmt.Sprintf("transactions.%d", i))
			}
			ids = append(ids, transaction.ID)
			ledgerRows += rows
		}
		return nil
	})
	if err != nil {
		logFailure("Transaction", "CreateTransactions", "posting bulk transactions", len(inputs), err)
		metrics.ObservePosting("bulk", 0, 0, started, string(utils.KindOf(err)))
		return nil, err
	}
	metrics.ObservePosting("bulk", len(ids), ledgerRows, started, "")
	return ids, nil
}

func postTransaction(tx *gorm.DB, prices *PriceSnapshot, branchId int, input *NewTransaction) (*Transaction, int, error) {
	transaction := Transaction{
		BranchId:  branchId,
		CreatedBy: input.CreatedBy,
		Note:      input.Note,
	}
	if err := tx.Create(&transaction).Error; err != nil {
		return nil, 0, utils.Persistence("transaction", err)
	}

	ledgerRows := 0
	for i, item := range input.Items {
		itemField := fmt.Sprintf("items.%d", i)

		bom, err := ResolveBillOfMaterials(tx, prices, branchId, item.ProductReferenceId)
		if err != nil {
			return nil, 0, utils.PrefixField(err, itemField)
		}

		transactionItem := TransactionItem{
			TransactionId:      transaction.ID,
			ProductId:          bom.Product.ID,
			ProductName:        bom.Product.Name,
			ProductReferenceId: bom.Product.ReferenceId,
			ProductQuantity:    item.ProductQuantity,
		}
		if err := tx.Create(&transactionItem).Error; err != nil {
			return nil, 0, utils.PrefixField(utils.Persistence("transaction_item", err), itemField)
		}

		for _, line := range bom.Lines {
			consumed, err := utils.MulQuantity(line.QuantityPerUnit, item.ProductQuantity)
			if err != nil {
				return nil, 0, utils.PrefixField(utils.Arithmetic("consumed_quantity", err), itemField)
			}
			lineValue, err := utils.LineValue(consumed, line.LatestUnitPrice)
			if err != nil {
				return nil, 0, utils.PrefixField(utils.Arithmetic("price", err), itemField)
			}
			entry := NewLedgerEntry{
				SpecificationId:   line.SpecificationId,
				FlowType:          FlowTypeOut,
				Quantity:          consumed,
				UnitPrice:         line.LatestUnitPrice,
				Price:             lineValue,
				CreatedBy:         utils.SystemActorId,
				TransactionItemId: &transactionItem.ID,
			}
			if err := entry.validate(); err != nil {
				return nil, 0, utils.PrefixField(err, itemField)
			}
			if _, err := appendLedger(tx, &entry); err != nil {
				return nil, 0, utils.PrefixField(err, itemField)
			}
			ledgerRows++
		}
		transaction.Items = append(transaction.Items, &transactionItem)
	}
	return &transaction, ledgerRows, nil
}

// GetTransaction returns a branch transaction with its items.
func GetTransaction(ctx context.Context, branchId int, id int) (*Transaction, error) {
	db := config.GetDB()
	var transaction Transaction
	err := db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Where("branch_id = ?", branchId).
		First(&transaction, id).Error
	if err != nil {
		return nil, utils.FromDBError("transaction_id", err)
	}
	return &transaction, nil
}
