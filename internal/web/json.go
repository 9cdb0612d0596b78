package web

import (
	"encoding/json"
	"net/http"
)

// ErrorJSON is returned for rejected or failed requests.
type ErrorJSON struct {
	Error string `json:"error"`
}

// ToggleJSON reports the state a relay was switched to.
type ToggleJSON struct {
	Channel int    `json:"channel"`
	State   string `json:"state"`
}

// HealthJSON is the liveness response.
type HealthJSON struct {
	Status string `json:"status"`
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(data)
}
