package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/soaringjerry/surveydesk/internal/services"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusForCode(code services.ErrorCode) int {
	switch code {
	case services.ErrorInvalid, services.ErrorMalformedInput:
		return http.StatusBadRequest
	case services.ErrorUnauthorized:
		return http.StatusUnauthorized
	case services.ErrorForbidden:
		return http.StatusForbidden
	case services.ErrorNotFound:
		return http.StatusNotFound
	case services.ErrorConflict:
		return http.StatusConflict
	case services.ErrorTooManyRequests:
		return http.StatusTooManyRequests
	case services.ErrorDataUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError maps a service error to its HTTP status. Anything that
// is not a ServiceError is logged and reported as a bare 500.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	se, ok := services.AsServiceError(err)
	if !ok {
		logger.Error("unhandled error", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
		return
	}
	status := statusForCode(se.Code)
	if se.Code == services.ErrorDataUnavailable {
		logger.Warn("data unavailable", "error", err)
	}
	writeJSON(w, status, errorBody{
		Error:     se.Message,
		Code:      string(se.Code),
		Retryable: se.Code == services.ErrorDataUnavailable || se.Code == services.ErrorTooManyRequests,
	})
}

// decodeJSON reads a single JSON object from the request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return services.NewMalformedInputError("request body too large")
		}
		if errors.Is(err, io.EOF) {
			return services.NewMalformedInputError("request body required")
		}
		return services.NewMalformedInputError("invalid JSON: " + err.Error())
	}
	if dec.More() {
		return services.NewMalformedInputError("request body must hold a single JSON object")
	}
	return nil
}
