package server

import (
	"net/http"

	"github.com/oggyb/wa-notifier/internal/logging"
	"github.com/oggyb/wa-notifier/internal/response"
)

// Middleware wraps a handler.
type Middleware func(http.Handler) http.Handler

// Chain applies the given middleware in order around the provided handler,
// so the first one sees the request first. Nil entries are skipped.
func Chain(h http.Handler, m ...Middleware) http.Handler {
	for i := len(m) - 1; i >= 0; i-- {
		if m[i] == nil {
			continue
		}
		h = m[i](h)
	}
	return h
}

// Recover turns a handler panic into a 500 instead of dropping the connection.
// http.ErrAbortHandler is re-raised so net/http can abort the response.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			logging.Error().
				Interface("panic", rec).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Msg("[HTTP] Recovered from handler panic")
			response.RespondError(w, http.StatusInternalServerError, "internal error")
		}()
		next.ServeHTTP(w, r)
	})
}
