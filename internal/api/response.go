package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	errs "github.com/johnayoung/go-price-sync/internal/errors"
)

// Envelope is the body of every API response.
type Envelope struct {
	Success bool                   `json:"success"`
	Data    interface{}            `json:"data,omitempty"`
	Message string                 `json:"message,omitempty"`
	Kind    errs.Kind              `json:"kind,omitempty"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind errs.Kind) int {
	switch kind {
	case errs.KindValidation:
		return http.StatusBadRequest
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindSource:
		return http.StatusBadGateway
	case errs.KindConsistency:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Envelope{Success: true, Data: data})
}

// respondError writes err as a failure envelope. data is attached when the
// operation produced a partial answer, such as an invalid validation report.
func respondError(c *gin.Context, err error, data interface{}) {
	outcome := errs.ToOutcome(err)
	if len(outcome.Context) == 0 {
		outcome.Context = nil
	}
	c.JSON(StatusFor(outcome.Kind), Envelope{
		Success: false,
		Data:    data,
		Message: outcome.Message,
		Kind:    outcome.Kind,
		Context: outcome.Context,
	})
}

func respondBadRequest(c *gin.Context, op string, err error) {
	respondError(c, errs.NewValidationError(op, "", err), nil)
}
