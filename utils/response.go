package utils

import (
	"errors"

	"github.com/gin-gonic/gin"

	"checkin-backend/apperror"
)

func JSONSuccess(c *gin.Context, code int, data interface{}) {
	c.JSON(code, gin.H{"status": "success", "data": data})
}

func JSONError(c *gin.Context, code int, errCode, message string) {
	c.JSON(code, gin.H{"status": "error", "code": errCode, "message": message})
}

// JSONAppError writes err with the status its kind maps to. data, when
// non-nil, is attached so a conflict can carry the guest's identity.
// Internal errors are reduced to a generic message.
func JSONAppError(c *gin.Context, err error, data interface{}) {
	status := apperror.HTTPStatus(err)

	code, message := "internal_error", "internal error, please retry"
	var appErr *apperror.Error
	if errors.As(err, &appErr) && appErr.Kind != apperror.KindInternal {
		code, message = appErr.Code, appErr.Message
	}

	body := gin.H{"status": "error", "code": code, "message": message}
	if data != nil && apperror.KindOf(err) != apperror.KindInternal {
		body["data"] = data
	}
	if id := RequestID(c.Request.Context()); id != "" {
		body["request_id"] = id
	}
	c.JSON(status, body)
}
