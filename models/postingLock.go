package models

import (
	"sort"

	"github.com/google/uuid"
	"github.com/maresto/inventory_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Lock order is products by id, then specifications by id. Every writer of a
// specification's ledger takes its row lock first, so a sale cannot read a
// price that a concurrent purchase is about to replace.

// BulkLockProducts locks the branch products with the given reference ids and returns their ids.
func BulkLockProducts(tx *gorm.DB, branchId int, referenceIds []uuid.UUID) ([]int, error) {
	referenceIds = utils.UniqueSlice(referenceIds)
	if len(referenceIds) == 0 {
		return nil, nil
	}
	var ids []int
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Model(&Product{}).
		Where("branch_id = ? AND reference_id IN ?", branchId, referenceIds).
		Order("id").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, utils.Persistence("products", err)
	}
	return ids, nil
}

// BulkLockSpecifications locks specification rows in id order.
func BulkLockSpecifications(tx *gorm.DB, ids []int) error {
	ids = utils.UniqueSlice(ids)
	if len(ids) == 0 {
		return nil
	}
	sort.Ints(ids)
	var locked []int
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Model(&Specification{}).
		Where("id IN ?", ids).
		Order("id").
		Pluck("id", &locked).Error
	if err != nil {
		return utils.Persistence("specifications", err)
	}
	return nil
}

// lockPostingRows locks every product a posting sells and every specification on their BOMs.
// It runs before the price snapshot is captured.
func lockPostingRows(tx *gorm.DB, branchId int, inputs []*NewTransaction) error {
	var referenceIds []uuid.UUID
	for _, input := range inputs {
		for _, item := range input.Items {
			referenceIds = append(referenceIds, item.ProductReferenceId)
		}
	}
	productIds, err := BulkLockProducts(tx, branchId, referenceIds)
	if err != nil || len(productIds) == 0 {
		return err
	}
	var specificationIds []int
	err = tx.Model(&ProductSpecification{}).
		Where("product_id IN ?", productIds).
		Pluck("specification_id", &specificationIds).Error
	if err != nil {
		return utils.Persistence("product_specifications", err)
	}
	return BulkLockSpecifications(tx, specificationIds)
}
