package gateway

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/jmolinaso/voxbridge/internal/fault"
	"github.com/jmolinaso/voxbridge/internal/observe"
)

// errorEnvelope is the wire shape of every surfaced error.
type errorEnvelope struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind          fault.Kind `json:"kind"`
	Message       string     `json:"message"`
	CorrelationID string     `json:"correlation_id,omitempty"`
}

// writeJSON encodes v with the given status. Encoding failures surface as a
// bare 500 since the header is already committed.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":{"kind":"internal_error"}}`, http.StatusInternalServerError)
	}
}

// writeError translates a domain error into the taxonomy envelope. The
// status comes from the error's kind; unknown errors map to 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := fault.KindOf(err)
	writeJSON(w, fault.HTTPStatus(kind), errorEnvelope{
		Error: errorDetail{
			Kind:          kind,
			Message:       err.Error(),
			CorrelationID: observe.CorrelationID(r.Context()),
		},
	})
}

// decodeJSON decodes the request body into v. A malformed body fails
// invalid_input so the caller can pass the error straight to writeError.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fault.Wrap(fault.KindInvalidInput, "gateway", "malformed JSON body", err)
	}
	return nil
}

// bearerToken extracts the token from the Authorization header, empty when
// absent or not a bearer scheme.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return header[len(prefix):]
	}
	return ""
}
