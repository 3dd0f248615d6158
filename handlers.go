package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/maresto/inventory_backend/utils"
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(utils.JSONTagName)
	}
}

// respondError writes err as {"error","kind","field"} with the status its kind maps to.
func respondError(c *gin.Context, err error) {
	if utils.KindOf(err) == utils.ErrorKindPersistence {
		_ = c.Error(err)
	}
	c.JSON(utils.HTTPStatus(err), utils.ErrorBody(err))
}

func respondBindError(c *gin.Context, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": utils.ProcessValidationErrors(err), "kind": utils.ErrorKindValidation})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
}

// bindJSON binds the body into obj, answering the request itself on failure.
func bindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		respondBindError(c, err)
		return false
	}
	return true
}

// bindJSONList decodes a JSON array and validates each element so errors keep their index.
func bindJSONList[T any](c *gin.Context, prefix string) ([]*T, bool) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return nil, false
	}
	var items []*T
	if err := json.Unmarshal(body, &items); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return nil, false
	}
	if len(items) == 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": map[string]string{prefix: "min"}, "kind": utils.ErrorKindValidation})
		return nil, false
	}
	for i, item := range items {
		if item == nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": map[string]string{fmt.Sprintf("%s.%d", prefix, i): "required"}, "kind": utils.ErrorKindValidation})
			return nil, false
		}
		if err := binding.Validator.ValidateStruct(item); err != nil {
			var validationErrors validator.ValidationErrors
			if !errors.As(err, &validationErrors) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
				return nil, false
			}
			fields := make(map[string]string)
			for k, v := range utils.ProcessValidationErrors(err) {
				fields[fmt.Sprintf("%s.%d.%s", prefix, i, k)] = v
			}
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": fields, "kind": utils.ErrorKindValidation})
			return nil, false
		}
	}
	return items, true
}

// intParam parses a positive integer path param, answering 400 when it is not one.
func intParam(c *gin.Context, name string) (int, bool) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil || v <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return v, true
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}
