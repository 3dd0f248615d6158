package utils

import (
	"gorm.io/gorm"
)

// ValidateBranchResourceId checks that id exists inside the branch, returning a NotFound AppError.
// Soft-deleted rows are excluded by gorm for models with DeletedAt.
func ValidateBranchResourceId[T any](tx *gorm.DB, branchId int, id int, field string) error {
	var model T
	var count int64
	if err := tx.Model(&model).Where("branch_id = ? AND id = ?", branchId, id).Count(&count).Error; err != nil {
		return Persistence(field, err)
	}
	if count <= 0 {
		return NotFound(field, "not found")
	}
	return nil
}

// ValidateResourceIds checks that every id exists in T, returning NotFound for the first missing one.
func ValidateResourceIds[T any, ID comparable](tx *gorm.DB, ids []ID, field string) error {
	unqIds := UniqueSlice(ids)
	if len(unqIds) == 0 {
		return nil
	}

	var model T
	var count int64
	if err := tx.Model(&model).Where("id IN ?", unqIds).Count(&count).Error; err != nil {
		return Persistence(field, err)
	}
	if count != int64(len(unqIds)) {
		return NotFound(field, "not found")
	}
	return nil
}

// ValidateUnique fails when column already holds value inside the branch (exceptId ignored).
func ValidateUnique[T any](tx *gorm.DB, branchId int, column string, value interface{}, exceptId int) error {
	var model T
	var count int64
	q := tx.Model(&model).Where("branch_id = ? AND "+column+" = ?", branchId, value)
	if exceptId > 0 {
		q = q.Where("id <> ?", exceptId)
	}
	if err := q.Count(&count).Error; err != nil {
		return Persistence(column, err)
	}
	if count > 0 {
		return Validation(column, "duplicate "+column)
	}
	return nil
}
