package utils

import (
	"context"
	"errors"

	"github.com/maresto/inventory_backend/config"
	"gorm.io/gorm"
)

/* DB fetching */

// FetchModel loads T by id inside a branch.
// (missing or soft-deleted rows return a NotFound AppError)
func FetchModel[T any](ctx context.Context, branchId int, id int, associations ...string) (*T, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("branch_id = ?", branchId)
	for _, field := range associations {
		dbCtx = dbCtx.Preload(field)
	}
	var result T
	if err := dbCtx.First(&result, id).Error; err != nil {
		return nil, FromDBError("id", err)
	}
	return &result, nil
}

// FetchSingleModel loads T by primary key without branch scope.
func FetchSingleModel[T any](ctx context.Context, id interface{}, associations ...string) (*T, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx)
	for _, field := range associations {
		dbCtx = dbCtx.Preload(field)
	}
	var result T
	if err := dbCtx.Where("id = ?", id).First(&result).Error; err != nil {
		return nil, FromDBError("id", err)
	}
	return &result, nil
}

// FetchAllModels lists every T in a branch, ordered by id.
func FetchAllModels[T any](ctx context.Context, branchId int, associations ...string) ([]*T, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("branch_id = ?", branchId)
	for _, field := range associations {
		dbCtx = dbCtx.Preload(field)
	}
	var results []*T
	if err := dbCtx.Order("id").Find(&results).Error; err != nil {
		return nil, Persistence("", err)
	}
	return results, nil
}

// IsRecordNotFound reports both gorm's sentinel and our NotFound kind.
func IsRecordNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, ErrorRecordNotFound)
}
