package middleware

import (
	"net/http"

	"github.com/unrolled/secure"
)

// SecureHeaders sets the usual hardening headers. HTTPS redirects are only
// enforced in production.
func SecureHeaders(production bool) func(http.Handler) http.Handler {
	s := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		SSLRedirect:           production,
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:         !production,
	})
	return s.Handler
}
