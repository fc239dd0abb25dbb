package httputil

import (
	"encoding/json"
	"net/http"
)

type ErrorResponse struct {
	Error        string   `json:"error"`
	Kind         string   `json:"kind,omitempty"`
	LegalTargets []string `json:"legal_targets,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func ReadJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
