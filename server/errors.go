package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// restError is a data API error in the {"code","message","details","hint"} shape
type restError struct {
	status  int
	Code    string  `json:"code"`
	Message string  `json:"message"`
	Details *string `json:"details"`
	Hint    *string `json:"hint"`
}

func (e *restError) Error() string {
	return e.Message
}

func newRestError(status int, code, message string) *restError {
	return &restError{status: status, Code: code, Message: message}
}

func (e *restError) withDetails(details string) *restError {
	e.Details = &details
	return e
}

func writeRestError(c echo.Context, err error) error {
	re, ok := err.(*restError)
	if !ok {
		c.Logger().Error("rest error: ", err)
		re = newRestError(http.StatusInternalServerError, "XX000", "internal error")
	}
	return c.JSON(re.status, re)
}

// authError is an auth API error in the {"code","error_code","msg"} shape
type authError struct {
	Code      int    `json:"code"`
	ErrorCode string `json:"error_code"`
	Msg       string `json:"msg"`
}

func writeAuthError(c echo.Context, status int, errorCode, msg string) error {
	return c.JSON(status, authError{Code: status, ErrorCode: errorCode, Msg: msg})
}
