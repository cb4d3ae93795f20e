package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"cryptoRiskEngine/internal/domain"
	"cryptoRiskEngine/internal/ports"
)

func formatValidationError(err error) map[string]string {
	out := make(map[string]string)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		out["_"] = err.Error()
		return out
	}
	for _, e := range verrs {
		out[e.Field()] = "failed on tag '" + e.Tag() + "'"
	}
	return out
}

// writeError maps the engine's error taxonomy onto HTTP statuses.
func (s *Server) writeError(c *gin.Context, err error) {
	var (
		verr    *domain.ValidationError
		failure *ports.ExecutionFailure
		lerr    *domain.LedgerConsistencyError
	)
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "field": verr.Field, "detail": verr.Message})
	case errors.As(err, &failure):
		status := http.StatusBadGateway
		if failure.Kind == ports.FailureTimeout {
			status = http.StatusGatewayTimeout
		}
		c.JSON(status, gin.H{
			"error":    "execution_failed",
			"reason":   string(failure.Kind),
			"venue":    failure.Venue,
			"attempts": failure.Attempts,
			"detail":   err.Error(),
		})
	case errors.As(err, &lerr), errors.Is(err, domain.ErrLedgerConsistency):
		s.logger.Error(c.Request.Context(), err, "Ledger consistency error surfaced to client")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ledger_inconsistent", "detail": err.Error()})
	default:
		s.logger.Error(c.Request.Context(), err, "Unhandled request error", map[string]interface{}{"path": c.FullPath()})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}
