package main

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/maresto/inventory_backend/catalogsync"
	"github.com/maresto/inventory_backend/middlewares"
	"github.com/maresto/inventory_backend/models"
)

func createBranchHandler(svc *catalogsync.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewBranch
		if !bindJSON(c, &input) {
			return
		}
		branch, err := svc.CreateBranch(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, branch)
	}
}

func updateBranchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewBranch
		if !bindJSON(c, &input) {
			return
		}
		branch, err := models.UpdateBranch(c.Request.Context(), middlewares.BranchId(c), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, branch)
	}
}

func syncBranchHandler(svc *catalogsync.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		branch, err := svc.SyncBranch(c.Request.Context(), middlewares.BranchId(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, branch)
	}
}

func getBranchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		branch, err := models.GetBranch(c.Request.Context(), middlewares.BranchId(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, branch)
	}
}

// getBranchesHandler lists branches; ?user_id= narrows to one owner.
func getBranchesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var userId *uuid.UUID
		if raw := strings.TrimSpace(c.Query("user_id")); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
				return
			}
			userId = &id
		}
		branches, err := models.GetBranches(c.Request.Context(), userId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, branches)
	}
}

func getUsersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		users, err := models.GetUsers(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, users)
	}
}
