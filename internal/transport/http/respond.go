package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	dErrors "helixpass/pkg/domain-errors"
	"helixpass/pkg/requestcontext"
)

// errorBody is the error envelope every non-2xx response carries.
type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a coded domain error to its HTTP status. Uncoded errors are
// never leaked to the client; they surface as a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	code := dErrors.CodeOf(err)
	status := dErrors.ToHTTPStatus(code)

	var body errorBody
	body.Error.Code = string(code)
	var de *dErrors.Error
	if errors.As(err, &de) {
		body.Error.Message = de.Message
	} else {
		body.Error.Message = "internal error"
	}

	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path,
			"code", code,
			"error", err,
			"request_id", requestcontext.RequestID(r.Context()),
		)
	}
	writeJSON(w, status, body)
}

// decodeJSON parses a request body, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return dErrors.New(dErrors.CodeValidation, "malformed request body")
	}
	return nil
}
