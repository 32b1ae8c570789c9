// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
)

const tokenQueryParam = "token"

// PushTokenAuth requires the shared push token, either as a bearer token or as
// the ?token= query parameter that push subscription endpoints commonly embed.
func PushTokenAuth(pushToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	return tokenAuth("push", pushToken, true, logger)
}

func tokenAuth(kind, want string, allowQuery bool, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.TrimSpace(want) == "" {
				logger.Error(kind + " token not configured")
				http.Error(w, kind+" auth not configured", http.StatusInternalServerError)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok && allowQuery {
				token = r.URL.Query().Get(tokenQueryParam)
			}

			if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(want)) != 1 {
				logger.Warn("request blocked by "+kind+" token middleware",
					"method", r.Method,
					"path", r.URL.Path,
				)
				w.Header().Set("WWW-Authenticate", "Bearer")
				http.Error(w, "missing or invalid "+kind+" token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(header string) (string, bool) {
	schemeToken := strings.SplitN(header, " ", 2)
	if len(schemeToken) != 2 {
		return "", false
	}
	if !strings.EqualFold(schemeToken[0], "Bearer") {
		return "", false
	}
	if schemeToken[1] == "" {
		return "", false
	}
	return schemeToken[1], true
}
