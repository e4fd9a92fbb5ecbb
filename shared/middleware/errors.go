package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"reservation-platform/shared/apperror"
	"reservation-platform/shared/logging"
)

// RespondError writes err as {"error": code, "message": ...}. Policy
// violations also carry the rule and bound, conflicts the overlapping
// bookings.
func RespondError(c *gin.Context, err error) {
	status := apperror.HTTPStatus(err)
	body := gin.H{
		"error":   apperror.Code(err),
		"message": err.Error(),
	}

	var (
		violation *apperror.PolicyViolation
		conflict  *apperror.ConflictError
	)
	switch {
	case errors.As(err, &violation):
		body["rule"] = violation.Rule
		if violation.Bound != "" {
			body["bound"] = violation.Bound
		}
	case errors.As(err, &conflict):
		body["conflicts"] = conflict.Conflicts
	}

	if status == http.StatusInternalServerError {
		logging.FromContext(c.Request.Context()).WithError(err).Error("Request failed")
		body["message"] = "internal server error"
	}
	_ = c.Error(err)
	c.JSON(status, body)
}

// BadRequest rejects malformed input that never reached the service layer.
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "validation_error",
		"message": message,
	})
}
