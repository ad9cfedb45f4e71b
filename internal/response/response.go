// Package response writes the JSON envelope every endpoint answers with:
// {success, data | error, timestamp}.
package response

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/oggyb/wa-notifier/internal/logging"
)

type JSONResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *ErrorBody  `json:"error,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// ErrorBody repeats the HTTP status in Code so webhook callers that only
// log the body still see it.
type ErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func RespondJSON(w http.ResponseWriter, status int, payload interface{}) {
	writeJSON(w, status, JSONResponse{
		Success:   true,
		Data:      payload,
		Timestamp: timestamp(),
	})
}

func RespondError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, JSONResponse{
		Error:     &ErrorBody{Code: status, Message: msg},
		Timestamp: timestamp(),
	})
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// writeJSON encodes before writing the header so an unencodable payload
// still produces a well-formed 500.
func writeJSON(w http.ResponseWriter, status int, v JSONResponse) {
	body, err := json.Marshal(v)
	if err != nil {
		logging.Error().Err(err).Int("status", status).Msg("[HTTP] Failed to encode response")
		status = http.StatusInternalServerError
		body = []byte(`{"success":false,"error":{"code":500,"message":"internal error"}}`)
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}
