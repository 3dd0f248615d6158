package utils

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var ErrorRecordNotFound = errors.New("record not found")

type ErrorKind string

const (
	ErrorKindNotFound    ErrorKind = "not_found"
	ErrorKindValidation  ErrorKind = "validation_failed"
	ErrorKindPersistence ErrorKind = "persistence_failure"
	ErrorKindArithmetic  ErrorKind = "arithmetic_failure"
)

// AppError is the error type returned by every model operation.
// Field names the request field or entity that caused the failure.
type AppError struct {
	Kind    ErrorKind
	Field   string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) Is(target error) bool {
	return e.Kind == ErrorKindNotFound && target == ErrorRecordNotFound
}

func NotFound(field string, message string) *AppError {
	return &AppError{Kind: ErrorKindNotFound, Field: field, Message: message}
}

func Validation(field string, message string) *AppError {
	return &AppError{Kind: ErrorKindValidation, Field: field, Message: message}
}

func Persistence(field string, err error) *AppError {
	return &AppError{Kind: ErrorKindPersistence, Field: field, Message: "failed to persist", Err: err}
}

func Arithmetic(field string, err error) *AppError {
	return &AppError{Kind: ErrorKindArithmetic, Field: field, Message: "value out of range", Err: err}
}

// PrefixField qualifies the failing field with its position in the request, e.g. items.2.product_reference_id.
func PrefixField(err error, prefix string) error {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return err
	}
	field := prefix
	if appErr.Field != "" {
		field = prefix + "." + appErr.Field
	}
	return &AppError{Kind: appErr.Kind, Field: field, Message: appErr.Message, Err: appErr.Err}
}

// KindOf returns the kind of err, defaulting to persistence for foreign errors.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, ErrorRecordNotFound) {
		return ErrorKindNotFound
	}
	return ErrorKindPersistence
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case ErrorKindNotFound:
		return http.StatusNotFound
	case ErrorKindValidation, ErrorKindArithmetic:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// ErrorBody renders err for a JSON response. Persistence failures stay generic.
func ErrorBody(err error) map[string]interface{} {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return map[string]interface{}{"error": "something went wrong", "kind": KindOf(err)}
	}
	body := map[string]interface{}{"kind": appErr.Kind}
	if appErr.Field != "" {
		body["field"] = appErr.Field
	}
	if appErr.Kind == ErrorKindPersistence {
		body["error"] = "something went wrong"
	} else {
		body["error"] = appErr.Message
	}
	return body
}

// FromDBError converts a gorm/driver error into an AppError.
func FromDBError(field string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NotFound(field, "not found")
	}
	if IsDuplicateKey(err) {
		return Validation(field, "already exists")
	}
	return Persistence(field, err)
}

func IsDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	// sqlite reports constraint failures as plain text
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

