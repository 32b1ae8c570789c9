// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"log/slog"
	"net/http"
)

// AdminTokenAuth guards the stored-object read endpoints. Unlike the push
// token it is only accepted in the Authorization header, so it never ends up
// in access logs as part of a URL.
func AdminTokenAuth(adminToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	return tokenAuth("admin", adminToken, false, logger)
}
