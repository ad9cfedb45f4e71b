package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/oggyb/wa-notifier/internal/response"
)

// WebhookSecretHeader carries the shared secret on gateway callbacks.
const WebhookSecretHeader = "X-Webhook-Secret"

// WebhookSecret rejects callbacks without the shared secret. An empty secret
// disables the check.
func WebhookSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(WebhookSecretHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				response.RespondError(w, http.StatusUnauthorized, "invalid webhook secret")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
