package response

import (
	"errors"
	"net/http"

	"goodstewards/pkg/apperr"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess       = 0
	CodeParamError    = 400
	CodeUnauthorized  = 401
	CodeForbidden     = 403
	CodeNotFound      = 404
	CodeConflict      = 409
	CodeServerError   = 500
	CodeExternalError = 502
)

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(httpStatus(code), Response{
		Code:    code,
		Message: message,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

// FromError maps a service error to its response code via the apperr
// sentinels. Unknown errors fall through as internal.
func FromError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		Error(c, CodeParamError, err.Error())
	case errors.Is(err, apperr.ErrNotFound):
		Error(c, CodeNotFound, err.Error())
	case errors.Is(err, apperr.ErrConflict):
		Error(c, CodeConflict, err.Error())
	case errors.Is(err, apperr.ErrForbidden):
		Error(c, CodeForbidden, err.Error())
	case errors.Is(err, apperr.ErrExternal):
		Error(c, CodeExternalError, err.Error())
	default:
		Error(c, CodeServerError, err.Error())
	}
}

func httpStatus(code int) int {
	switch code {
	case CodeSuccess:
		return http.StatusOK
	case CodeParamError:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeExternalError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
