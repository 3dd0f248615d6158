package models

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/maresto/inventory_backend/config"
	"github.com/maresto/inventory_backend/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Branch struct {
	ID              int            `gorm:"primary_key" json:"id"`
	UserId          uuid.UUID      `gorm:"type:varchar(36);index;not null" json:"user_id"`
	Name            string         `gorm:"size:100;not null" json:"name"`
	ReferenceId     uuid.UUID      `gorm:"type:varchar(36);uniqueIndex;not null" json:"reference_id"`
	CatalogSnapshot datatypes.JSON `json:"catalog_snapshot,omitempty"`
	LastSyncedAt    *time.Time     `json:"last_synced_at"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

type NewBranch struct {
	Name        string    `json:"name" binding:"required,min=4,max=24"`
	ReferenceId uuid.UUID `json:"reference_id" binding:"required"`
	UserId      uuid.UUID `json:"user_id" binding:"required"`
}

// CatalogBranch is the upstream catalog's view of a branch.
type CatalogBranch struct {
	Name     string           `json:"name"`
	Products []CatalogProduct `json:"products"`
}

// validate input for both create & update. (id = 0 for create)
func (input *NewBranch) validate(tx *gorm.DB, id int) error {
	input.Name = strings.TrimSpace(input.Name)
	if l := len([]rune(input.Name)); l < 4 || l > 24 {
		return utils.Validation("name", "length must be between 4 and 24")
	}
	if input.ReferenceId == uuid.Nil {
		return utils.Validation("reference_id", "required")
	}
	if err := utils.ValidateResourceIds[User](tx, []uuid.UUID{input.UserId}, "user_id"); err != nil {
		return err
	}
	if id > 0 {
		if err := utils.ValidateResourceIds[Branch](tx, []int{id}, "branch_id"); err != nil {
			return err
		}
	}
	var count int64
	q := tx.Model(&Branch{}).Where("reference_id = ?", input.ReferenceId)
	if id > 0 {
		q = q.Where("id <> ?", id)
	}
	if err := q.Count(&count).Error; err != nil {
		return utils.Persistence("reference_id", err)
	}
	if count > 0 {
		return utils.Validation("reference_id", "already exists")
	}
	return nil
}

func encodeCatalog(catalog *CatalogBranch) (datatypes.JSON, error) {
	if catalog == nil {
		return nil, nil
	}
	b, err := json.Marshal(catalog)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

// CreateBranch stores a branch the upstream catalog already knows. The catalog products are
// not written here; they are synced by a task dispatched after this commit.
func CreateBranch(ctx context.Context, input *NewBranch, catalog *CatalogBranch) (*Branch, error) {
	snapshot, err := encodeCatalog(catalog)
	if err != nil {
		return nil, utils.Validation("catalog", err.Error())
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, utils.Persistence("db", tx.Error)
	}
	if err := input.validate(tx, 0); err != nil {
		tx.Rollback()
		return nil, err
	}

	branch := Branch{
		UserId:          input.UserId,
		Name:            input.Name,
		ReferenceId:     input.ReferenceId,
		CatalogSnapshot: snapshot,
	}
	if catalog != nil {
		now := time.Now().UTC()
		branch.LastSyncedAt = &now
	}
	if err := tx.Create(&branch).Error; err != nil {
		tx.Rollback()
		logFailure("Branch", "CreateBranch", "create", input, err)
		return nil, utils.FromDBError("reference_id", err)
	}
	if err := tx.Commit().Error; err != nil {
		logFailure("Branch", "CreateBranch", "commit", input, err)
		return nil, utils.Persistence("commit", err)
	}
	return &branch, nil
}

func UpdateBranch(ctx context.Context, id int, input *NewBranch) (*Branch, error) {
	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, utils.Persistence("db", tx.Error)
	}
	if err := input.validate(tx, id); err != nil {
		tx.Rollback()
		return nil, err
	}

	var branch Branch
	if err := tx.First(&branch, id).Error; err != nil {
		tx.Rollback()
		return nil, utils.FromDBError("branch_id", err)
	}
	err := tx.Model(&branch).Updates(map[string]interface{}{
		"Name":        input.Name,
		"ReferenceId": input.ReferenceId,
		"UserId":      input.UserId,
	}).Error
	if err != nil {
		tx.Rollback()
		logFailure("Branch", "UpdateBranch", "update", input, err)
		return nil, utils.FromDBError("reference_id", err)
	}
	if err := tx.Commit().Error; err != nil {
		return nil, utils.Persistence("commit", err)
	}
	return &branch, nil
}

// ApplyCatalogSnapshot renames the branch after the upstream catalog and stores the snapshot.
func ApplyCatalogSnapshot(ctx context.Context, id int, catalog *CatalogBranch) (*Branch, error) {
	if catalog == nil {
		return nil, utils.Validation("catalog", "required")
	}
	snapshot, err := encodeCatalog(catalog)
	if err != nil {
		return nil, utils.Validation("catalog", err.Error())
	}
	branch, err := GetBranch(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"CatalogSnapshot": snapshot,
		"LastSyncedAt":    time.Now().UTC(),
	}
	if name := strings.TrimSpace(catalog.Name); name != "" {
		updates["Name"] = name
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(branch).Updates(updates).Error; err != nil {
		logFailure("Branch", "ApplyCatalogSnapshot", "update", id, err)
		return nil, utils.Persistence("branch", err)
	}
	return branch, nil
}

func GetBranch(ctx context.Context, id int) (*Branch, error) {
	branch, err := utils.FetchSingleModel[Branch](ctx, id)
	if err != nil {
		if utils.IsRecordNotFound(err) {
			return nil, utils.NotFound("branch_id", "branch not found")
		}
		return nil, err
	}
	return branch, nil
}

// GetBranches lists branches, optionally only those owned by userId.
func GetBranches(ctx context.Context, userId *uuid.UUID) ([]*Branch, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Omit("CatalogSnapshot")
	if userId != nil {
		dbCtx = dbCtx.Where("user_id = ?", *userId)
	}
	var results []*Branch
	if err := dbCtx.Order("id").Find(&results).Error; err != nil {
		return nil, utils.Persistence("branches", err)
	}
	return results, nil
}

// CatalogProducts decodes the stored catalog snapshot.
func (b *Branch) CatalogProducts() ([]CatalogProduct, error) {
	if len(b.CatalogSnapshot) == 0 {
		return nil, nil
	}
	var catalog CatalogBranch
	if err := json.Unmarshal(b.CatalogSnapshot, &catalog); err != nil {
		return nil, err
	}
	return catalog.Products, nil
}
