package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/maresto/inventory_backend/config"
	"github.com/maresto/inventory_backend/middlewares"
	"github.com/maresto/inventory_backend/models"
	"github.com/maresto/inventory_backend/utils"
)

func getSpecificationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		specifications, err := models.GetSpecifications(c.Request.Context(), middlewares.BranchId(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, specifications)
	}
}

func createSpecificationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewSpecification
		if !bindJSON(c, &input) {
			return
		}
		specification, err := models.CreateSpecification(c.Request.Context(), middlewares.BranchId(c), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, specification)
	}
}

func updateSpecificationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		specId, ok := intParam(c, "specId")
		if !ok {
			return
		}
		var input models.NewSpecification
		if !bindJSON(c, &input) {
			return
		}
		specification, err := models.UpdateSpecification(c.Request.Context(), middlewares.BranchId(c), specId, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, specification)
	}
}

func deleteSpecificationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		specId, ok := intParam(c, "specId")
		if !ok {
			return
		}
		specification, err := models.DeleteSpecification(c.Request.Context(), middlewares.BranchId(c), specId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, specification)
	}
}

func purchaseSpecificationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		specId, ok := intParam(c, "specId")
		if !ok {
			return
		}
		var input models.NewPurchase
		if !bindJSON(c, &input) {
			return
		}
		history, err := models.PurchaseSpecification(c.Request.Context(), middlewares.BranchId(c), specId, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, history)
	}
}

func getSpecificationHistoriesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		specId, ok := intParam(c, "specId")
		if !ok {
			return
		}
		histories, err := models.GetSpecificationHistories(c.Request.Context(), middlewares.BranchId(c), specId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, histories)
	}
}

// exportLedgerHandler streams the branch workbook, or with ?archive=true stores it in the export bucket.
func exportLedgerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		branchId := middlewares.BranchId(c)

		if strings.EqualFold(c.Query("archive"), "true") {
			bucket := config.GetSettings().Export.Bucket
			if bucket == "" {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "export bucket is not configured"})
				return
			}
			location, err := models.ArchiveLedgerExport(ctx, branchId, bucket)
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusCreated, gin.H{"location": location})
			return
		}

		f, err := models.ExportLedger(ctx, branchId)
		if err != nil {
			respondError(c, err)
			return
		}
		defer func() { _ = f.Close() }()

		filename := fmt.Sprintf("ledger-branch-%d-%s.xlsx", branchId, time.Now().UTC().Format("20060102"))
		c.Header("Content-Type", utils.XlsxContentType)
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		c.Status(http.StatusOK)
		if err := f.Write(c.Writer); err != nil {
			_ = c.Error(err)
		}
	}
}
