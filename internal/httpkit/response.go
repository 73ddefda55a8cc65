package httpkit

import (
	"encoding/json"
	"net/http"
)

type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// DecodeJSON decodes the request body into v. A positive maxBytes caps the
// body size; unknown fields are allowed.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any, maxBytes int64) error {
	defer r.Body.Close()
	body := r.Body
	if maxBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	return json.NewDecoder(body).Decode(v)
}

func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func WriteErr(w http.ResponseWriter, status int, code, msg string, details map[string]any) {
	WriteJSON(w, status, ErrorEnvelope{Error: ErrorBody{Code: code, Message: msg, Details: details}})
}
