package catalogsync

import (
	"context"
	"errors"

	"github.com/maresto/inventory_backend/config"
	"github.com/maresto/inventory_backend/metrics"
	"github.com/maresto/inventory_backend/models"
	"github.com/maresto/inventory_backend/utils"
	"github.com/sirupsen/logrus"
)

const lockType = "catalog-sync"

// ProcessTask upserts the task's products under the branch's catalog-sync lock.
func ProcessTask(ctx context.Context, task Task) (Result, error) {
	logger := config.GetLogger()
	if task.BranchId <= 0 {
		metrics.CatalogSyncTask(string(ResultSkipped))
		return ResultSkipped, nil
	}

	lock, err := utils.BranchLock(ctx, task.BranchId, lockType, "catalogsync", "ProcessTask")
	if err != nil {
		metrics.CatalogSyncTask(string(ResultFailed))
		return ResultFailed, err
	}
	if lock != nil {
		defer func() {
			if err := lock.Release(context.Background()); err != nil {
				config.LogError(logger, "catalogsync", "ProcessTask", "releasing lock", task.BranchId, err)
			}
		}()
	}

	created, updated, err := models.UpsertCatalogProducts(ctx, task.BranchId, task.Products)
	if err != nil {
		// branch deleted between commit and task run
		if errors.Is(err, utils.ErrorRecordNotFound) {
			metrics.CatalogSyncTask(string(ResultSkipped))
			return ResultSkipped, nil
		}
		config.LogError(logger, "catalogsync", "ProcessTask", "upserting products", task.BranchId, err)
		metrics.CatalogSyncTask(string(ResultFailed))
		return ResultFailed, err
	}

	logger.WithFields(logrus.Fields{
		"module":   "catalogsync",
		"branchId": task.BranchId,
		"reason":   task.Reason,
		"products": len(task.Products),
		"created":  created,
		"updated":  updated,
	}).Info("catalog sync done")
	metrics.CatalogSyncTask(string(ResultDone))
	return ResultDone, nil
}
