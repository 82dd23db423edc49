package httpapi

import (
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/brenik/zerocache/internal/apierr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

func writeError(w http.ResponseWriter, status int, v any) {
	writeJSON(w, status, v)
}

// writeErr unwraps err into its classified HTTP status (§7) and writes the
// `{error}` envelope.
func writeErr(w http.ResponseWriter, err error) {
	apiErr := apierr.As(err)
	writeJSON(w, apiErr.Status, map[string]any{"error": apiErr.Error()})
}
