package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/amd-agi/genforge/internal/apierrors"
	"github.com/amd-agi/genforge/internal/logger/log"
)

// errorBody is the documented 400/500-class JSON error shape (spec §7):
// a machine-readable code plus a human-readable message.
type errorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// HandleErrors translates the first error attached via gin's c.Error into
// the documented error response and aborts the chain. Only the first
// error is reported; subsequent ones are logged as they should not occur
// once a handler has already aborted.
func HandleErrors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		for i := 1; i < len(c.Errors); i++ {
			log.Warnf("additional error after first on %s %s: %v", c.Request.Method, c.Request.URL.Path, c.Errors[i])
		}

		first := c.Errors[0].Err
		appErr, ok := first.(*apierrors.Error)
		if !ok {
			log.Errorf("unwrapped error on %s %s: %v", c.Request.Method, c.Request.URL.Path, first)
			c.AbortWithStatusJSON(http.StatusInternalServerError, newErrorBody(apierrors.InternalError, "internal error"))
			return
		}

		log.Errorf("request error on %s %s: code=%d message=%s cause=%v", c.Request.Method, c.Request.URL.Path, appErr.Code, appErr.Message, appErr.Cause)
		c.AbortWithStatusJSON(statusForCode(appErr.Code), newErrorBody(appErr.Code, appErr.Message))
	}
}

func newErrorBody(code int, message string) errorBody {
	var body errorBody
	body.Error.Code = code
	body.Error.Message = message
	return body
}

func statusForCode(code int) int {
	if code >= 4000 && code < 5000 {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
