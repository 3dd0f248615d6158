package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/maresto/inventory_backend/middlewares"
	"github.com/maresto/inventory_backend/models"
)

func getProductsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		products, err := models.GetProducts(c.Request.Context(), middlewares.BranchId(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, products)
	}
}

// setProductSpecificationHandler upserts a BOM edge; quantity 0 removes it and answers 204.
func setProductSpecificationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewProductSpecification
		if !bindJSON(c, &input) {
			return
		}
		edge, err := models.SetProductSpecification(c.Request.Context(), middlewares.BranchId(c), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		if edge == nil {
			c.Status(http.StatusNoContent)
			return
		}
		c.JSON(http.StatusOK, edge)
	}
}

func createTransactionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewTransaction
		if !bindJSON(c, &input) {
			return
		}
		transaction, err := models.CreateTransaction(c.Request.Context(), middlewares.BranchId(c), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"id": transaction.ID})
	}
}

// bulkCreateTransactionHandler takes a JSON array of transactions and posts them all or none.
func bulkCreateTransactionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		inputs, ok := bindJSONList[models.NewTransaction](c, "transactions")
		if !ok {
			return
		}
		ids, err := models.CreateTransactions(c.Request.Context(), middlewares.BranchId(c), inputs)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"ids": ids})
	}
}

func getTransactionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		transactionId, ok := intParam(c, "transactionId")
		if !ok {
			return
		}
		transaction, err := models.GetTransaction(c.Request.Context(), middlewares.BranchId(c), transactionId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, transaction)
	}
}
