package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handler mounts a group of routes on the server.
type Handler interface {
	RegisterRoutes(e *echo.Echo)
}

// Envelope is the body of every JSON response. Data and Errors are mutually exclusive.
type Envelope struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Errors  []Problem   `json:"errors,omitempty"`
}

// Page is the Data of list endpoints.
type Page struct {
	Rows  interface{} `json:"rows"`
	Total int         `json:"total"`
}

// Problem is one reason a request failed. Validation yields one per field.
type Problem struct {
	Code    string                 `json:"code"`
	Field   string                 `json:"field,omitempty"`
	Message string                 `json:"message"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// AppError is a Problem bound to an HTTP status.
type AppError struct {
	Problem
	Status int
	Err    error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// WithParam attaches a detail clients can switch on.
func (e *AppError) WithParam(key string, value interface{}) *AppError {
	if e.Params == nil {
		e.Params = make(map[string]interface{}, 1)
	}
	e.Params[key] = value
	return e
}

// WithError keeps the cause for logs; it is never serialized.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

var statusCodes = map[int]string{
	http.StatusBadRequest:          "ERR_BAD_REQUEST",
	http.StatusNotFound:            "ERR_NOT_FOUND",
	http.StatusConflict:            "ERR_CONFLICT",
	http.StatusInternalServerError: "ERR_INTERNAL",
	http.StatusServiceUnavailable:  "ERR_UNAVAILABLE",
}

// Errorf builds an AppError whose code derives from status.
func Errorf(status int, format string, a ...interface{}) *AppError {
	code, ok := statusCodes[status]
	if !ok {
		code = fmt.Sprintf("ERR_%d", status)
	}
	return &AppError{Problem: Problem{Code: code, Message: fmt.Sprintf(format, a...)}, Status: status}
}

func NotFound(format string, a ...interface{}) *AppError {
	return Errorf(http.StatusNotFound, format, a...)
}

func BadRequest(format string, a ...interface{}) *AppError {
	return Errorf(http.StatusBadRequest, format, a...)
}

func Conflict(format string, a ...interface{}) *AppError {
	return Errorf(http.StatusConflict, format, a...)
}

func Unavailable(format string, a ...interface{}) *AppError {
	return Errorf(http.StatusServiceUnavailable, format, a...)
}

// JSON writes data wrapped in an Envelope with the given status.
func JSON(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, Envelope{Status: status, Message: http.StatusText(status), Data: data})
}

// OK writes a 200 envelope.
func OK(c echo.Context, data interface{}) error { return JSON(c, http.StatusOK, data) }

// List writes a 200 envelope holding a Page.
func List(c echo.Context, rows interface{}, total int) error {
	return JSON(c, http.StatusOK, Page{Rows: rows, Total: total})
}

// Invalid writes a 400 listing every problem.
func Invalid(c echo.Context, problems []Problem) error {
	return c.JSON(http.StatusBadRequest, Envelope{
		Status:  http.StatusBadRequest,
		Message: http.StatusText(http.StatusBadRequest),
		Errors:  problems,
	})
}

// Fail writes err as an error envelope. Errors that are not an AppError become an opaque 500.
func Fail(c echo.Context, err error) error {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		appErr = Errorf(http.StatusInternalServerError, "something went wrong")
	}
	return c.JSON(appErr.Status, Envelope{
		Status:  appErr.Status,
		Message: http.StatusText(appErr.Status),
		Errors:  []Problem{appErr.Problem},
	})
}
