// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/stockroom-wms/stockroom/internal/workflow"
)

// RespondError maps workflow errors to HTTP responses using RFC7807. The
// machine-readable reason code is carried in the problem type field.
func RespondError(w http.ResponseWriter, err error) {
	reason := workflow.ReasonCode(err)
	var short *workflow.InsufficientStockError
	switch {
	case errors.Is(err, workflow.ErrNotFound):
		ProblemTyped(w, http.StatusNotFound, reason, "Not Found", err.Error())
	case errors.Is(err, workflow.ErrInvalidTransition):
		ProblemTyped(w, http.StatusConflict, reason, "Invalid Transition", err.Error())
	case errors.Is(err, workflow.ErrForbidden):
		ProblemTyped(w, http.StatusForbidden, reason, "Forbidden", err.Error())
	case errors.Is(err, workflow.ErrInvalidToken):
		ProblemTyped(w, http.StatusUnprocessableEntity, reason, "Invalid Token", err.Error())
	case errors.Is(err, workflow.ErrValidation):
		ProblemTyped(w, http.StatusBadRequest, reason, "Validation Failed", err.Error())
	case errors.As(err, &short):
		ProblemTyped(w, http.StatusConflict, reason, "Insufficient Stock", short.Error())
	default:
		ProblemTyped(w, http.StatusInternalServerError, reason, "Internal Error", "")
	}
}
