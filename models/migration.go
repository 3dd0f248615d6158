package models

import (
	"context"
	"log"

	"github.com/maresto/inventory_backend/config"
	"gorm.io/gorm"
)

// AutoMigrate creates or updates every table and seeds the system actor.
func AutoMigrate(ctx context.Context, db *gorm.DB) error {
	err := db.WithContext(ctx).AutoMigrate(
		&Branch{},
		&OauthAccessToken{},
		&Product{}, &ProductSpecification{},
		&Specification{}, &SpecificationHistory{},
		&Transaction{}, &TransactionItem{},
		&User{},
	)
	if err != nil {
		return err
	}
	return EnsureSystemActor(ctx)
}

func MigrateTable() {
	if err := AutoMigrate(context.Background(), config.GetDB()); err != nil {
		log.Fatal(err)
	}
}
