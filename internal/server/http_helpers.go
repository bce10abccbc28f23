package server

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
)

const (
	reasonBadRequest     = "bad request"
	reasonInvalidImageID = "invalid image id"
	reasonCompleted      = "this image is already completed"
	reasonInternal       = "internal server error"
)

func readJSON(body io.Reader, dest any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeResult(w http.ResponseWriter, result any) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"result":  result,
	})
}

func writeFailure(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"reason":  reason,
	})
}

// clientAddress reports the network origin of the request, preferring the
// first proxy-forwarded hop when one is present.
func clientAddress(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if first, _, found := strings.Cut(forwarded, ","); found {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(forwarded)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
