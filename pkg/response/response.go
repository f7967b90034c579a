package response

import (
	"net/http"

	"Guardian/pkg/errors"
	"Guardian/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Body is the JSON envelope of every API response.
type Body struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Page wraps a list result with its paging cursor.
type Page struct {
	Items    interface{} `json:"items"`
	Total    int64       `json:"total"`
	PageNum  int         `json:"pageNum"`
	PageSize int         `json:"pageSize"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Body{Code: 0, Message: "ok", Data: data})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Body{Code: 0, Message: "created", Data: data})
}

// Fail writes err with the HTTP status derived from its code.
func Fail(c *gin.Context, err error) {
	status := Status(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(status, Body{Code: status, Message: errors.GetMessage(err)})
}

// AbortWithStatus writes a plain message with an explicit status.
func AbortWithStatus(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, Body{Code: status, Message: message})
}

// Status maps an error code to an HTTP status.
func Status(err error) int {
	switch errors.GetCode(err) {
	case errors.CodeValidation:
		return http.StatusBadRequest
	case errors.CodeUnauthorized:
		return http.StatusUnauthorized
	case errors.CodeNotFound:
		return http.StatusNotFound
	case errors.CodeConflict:
		return http.StatusConflict
	case errors.CodeTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
