package api

import (
	"net/http"
	"strconv"

	"github.com/near-pulse/internal/errors"
	"github.com/near-pulse/internal/logging"
	"github.com/near-pulse/internal/types"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error *types.ServiceError `json:"error"`
}

// respondError categorizes err and writes it with the matching status code.
// Server-side failures are logged; their causes never reach the client.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	catErr := errors.Categorize(err)

	if catErr.StatusCode >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).WithError(err).WithFields(logging.Fields{
			"category": string(catErr.Category),
			"code":     catErr.Code,
		}).Error("Request failed")
	}

	if retryAfter, ok := catErr.Details["retryAfter"].(int); ok && retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	}

	respondJSON(w, catErr.StatusCode, ErrorResponse{Error: catErr.ToServiceError()})
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)

	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}
