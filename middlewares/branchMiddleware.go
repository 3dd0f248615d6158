package middlewares

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/maresto/inventory_backend/models"
	"github.com/maresto/inventory_backend/utils"
)

// BranchMiddleware resolves the :id path param to a live branch and scopes the request context to it.
func BranchMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		branchId, err := strconv.Atoi(c.Param("id"))
		if err != nil || branchId <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid branch id"})
			return
		}
		if _, err := models.GetBranch(c.Request.Context(), branchId); err != nil {
			c.AbortWithStatusJSON(utils.HTTPStatus(err), utils.ErrorBody(err))
			return
		}
		c.Request = c.Request.WithContext(utils.SetBranchIdInContext(c.Request.Context(), branchId))
		c.Next()
	}
}

// BranchId returns the id stored by BranchMiddleware.
func BranchId(c *gin.Context) int {
	branchId, _ := utils.GetBranchIdFromContext(c.Request.Context())
	return branchId
}
