package middleware

import (
	"encoding/json"
	"net/http"
)

// writeJSONError writes the {"code", "message"} body shared with the API.
func writeJSONError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"code":    code,
		"message": msg,
	})
}
