package utils

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/maresto/inventory_backend/config"
)

// SystemActorId is the user every automatic stock deduction is attributed to.
var SystemActorId = uuid.MustParse("9f175978-100f-431e-97ad-d4f1ab54ba76")

var ErrLockNotObtained = errors.New("could not obtain lock")

// ProcessValidationErrors maps binding errors to field path => tag, e.g. items.0.product_quantity => gt.
func ProcessValidationErrors(err error) map[string]string {
	errorResponse := make(map[string]string)

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		errorResponse["body"] = "invalid"
		return errorResponse
	}

	for _, ve := range validationErrors {
		errorResponse[fieldPath(ve)] = ve.Tag()
	}

	return errorResponse
}

// fieldPath drops the root struct name from the namespace and turns [i] into .i
func fieldPath(ve validator.FieldError) string {
	ns := ve.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	} else {
		ns = ve.Field()
	}
	ns = strings.NewReplacer("[", ".", "]", "").Replace(ns)
	return LowercaseFirst(ns)
}

// JSONTagName makes validation errors report json field names.
func JSONTagName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return fld.Name
	}
	return name
}

// NormalizeName trims and lowercases names used as natural keys.
func NormalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func LowercaseFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func UniqueSlice[T comparable](slice []T) []T {
	seen := make(map[T]bool, len(slice))
	out := make([]T, 0, len(slice))
	for _, v := range slice {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// BranchLock obtains a redis lock scoped to one branch. The caller releases it.
// A nil lock with nil error means redis is not configured and the caller proceeds unlocked.
func BranchLock(ctx context.Context, branchId int, lockType string, moduleName string, functionName string) (*redislock.Lock, error) {
	logger := config.GetLogger()
	locker := config.GetRedisLock()
	if locker == nil {
		return nil, nil
	}
	lockKey := fmt.Sprintf("%s:%d", lockType, branchId)
	lock, err := locker.Obtain(ctx, lockKey, 30*time.Second, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(250*time.Millisecond), 20),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		config.LogError(logger, moduleName, functionName, "Could not obtain lock for branch", branchId, err)
		return nil, ErrLockNotObtained
	} else if err != nil {
		config.LogError(logger, moduleName, functionName, "Error obtaining lock for branch", branchId, err)
		return nil, err
	}
	return lock, nil
}
