package api

import (
	"errors"
	"net/http"

	"github.com/hugo-lorenzo-mato/memwall/internal/core"
)

func httpStatusForDomainError(err error) (int, bool) {
	var domErr *core.DomainError
	if !errors.As(err, &domErr) || domErr == nil {
		return 0, false
	}

	switch domErr.Category {
	case core.ErrCatValidation:
		return http.StatusUnprocessableEntity, true
	case core.ErrCatNotFound:
		return http.StatusNotFound, true
	case core.ErrCatTimeout:
		return http.StatusGatewayTimeout, true
	case core.ErrCatGeneration:
		return http.StatusBadGateway, true
	default:
		return http.StatusInternalServerError, true
	}
}

// respondDomainError maps err to a status, falling back to 500. Domain
// errors carry their message and details to the client.
func (s *Server) respondDomainError(w http.ResponseWriter, err error) {
	status, ok := httpStatusForDomainError(err)
	if !ok {
		s.logger.Error("request failed", "error", err)
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	var domErr *core.DomainError
	errors.As(err, &domErr)
	body := map[string]any{"error": domErr.Message, "code": domErr.Code}
	if len(domErr.Details) > 0 {
		body["details"] = domErr.Details
	}
	s.respondJSON(w, status, body)
}
