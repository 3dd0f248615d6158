package models

import (
	"context"
	"database/sql"

	"github.com/maresto/inventory_backend/config"
	"github.com/maresto/inventory_backend/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

var tracer trace.Tracer = otel.Tracer("inventory_backend/models")

// UnitOfWorkFunc runs inside one database transaction. Returning an error rolls it back.
type UnitOfWorkFunc func(tx *gorm.DB, prices *PriceSnapshot) error

// LockFunc takes the row locks a unit of work needs. It runs before the price snapshot is captured.
type LockFunc func(tx *gorm.DB) error

// RunInUnitOfWork opens a transaction, captures the price snapshot, runs fn and commits once.
// Any error or panic from fn rolls the whole transaction back; there is no partial commit.
func RunInUnitOfWork(ctx context.Context, fn UnitOfWorkFunc) error {
	return RunLockedUnitOfWork(ctx, nil, fn)
}

// RunLockedUnitOfWork is RunInUnitOfWork with lock run first, so the snapshot sees every
// ledger row committed by writers that held those locks before us.
func RunLockedUnitOfWork(ctx context.Context, lock LockFunc, fn UnitOfWorkFunc) (err error) {
	db := config.GetDB()
	if db == nil {
		return utils.Persistence("db", gorm.ErrInvalidDB)
	}

	ctx, span := tracer.Start(ctx, "RunInUnitOfWork", trace.WithAttributes(
		attribute.String("db.system", db.Dialector.Name()),
	))
	defer func() {
		if err != nil {
			span.SetAttributes(attribute.String("error.kind", string(utils.KindOf(err))))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	tx := db.WithContext(ctx).Begin(txOptions(db))
	if tx.Error != nil {
		return utils.Persistence("db", tx.Error)
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if lock != nil {
		if err = lock(tx); err != nil {
			tx.Rollback()
			return err
		}
	}

	prices, err := newPriceSnapshot(tx)
	if err != nil {
		tx.Rollback()
		return err
	}

	if err = fn(tx, prices); err != nil {
		tx.Rollback()
		return err
	}

	if err = tx.Commit().Error; err != nil {
		tx.Rollback()
		return utils.Persistence("commit", err)
	}
	return nil
}

// The server engines run read committed: a read after a row lock sees what the previous
// lock holder committed. Prices stay fixed through the snapshot. sqlite only offers
// serializable transactions.
func txOptions(db *gorm.DB) *sql.TxOptions {
	switch db.Dialector.Name() {
	case config.DriverPostgres, config.DriverMySQL:
		return &sql.TxOptions{Isolation: sql.LevelReadCommitted}
	default:
		return nil
	}
}

// logFailure logs persistence and arithmetic failures; not-found and validation errors are the caller's.
func logFailure(moduleName string, funcName string, context string, data any, err error) {
	switch utils.KindOf(err) {
	case utils.ErrorKindNotFound, utils.ErrorKindValidation:
		return
	}
	config.LogError(config.GetLogger(), moduleName, funcName, context, data, err)
}
