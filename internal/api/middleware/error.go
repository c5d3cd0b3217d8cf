package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/beobridge/halo-bridge-go/pkg/errors"
	"github.com/beobridge/halo-bridge-go/pkg/utils"
)

// ErrorHandlingMiddleware recovers panics and renders AppErrors
// attached to the context.
func ErrorHandlingMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(logrus.Fields{
					"panic": r,
					"path":  c.Request.URL.Path,
				}).Error("Recovered from panic")
				utils.SendError(c, http.StatusInternalServerError, "Internal server error")
				c.Abort()
			}
		}()

		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err
		if appErr, ok := err.(*errors.AppError); ok {
			utils.SendError(c, appErr.Code, appErr.Message)
			return
		}
		logger.WithError(err).Error("Unhandled request error")
		utils.SendError(c, http.StatusInternalServerError, "Internal server error")
	}
}
