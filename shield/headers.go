package shield

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// apiHeaders go on every slot API response. The API returns JSON and PNG
// only, so nothing it serves may run script, be framed or be sniffed.
var apiHeaders = [][2]string{
	{"Content-Security-Policy", "default-src 'none'; img-src 'self' data:; frame-ancestors 'none'"},
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "no-referrer"},
}

// APIHeaders returns one chi SetHeader middleware per API header.
func APIHeaders() []func(http.Handler) http.Handler {
	mws := make([]func(http.Handler) http.Handler, 0, len(apiHeaders))
	for _, h := range apiHeaders {
		mws = append(mws, middleware.SetHeader(h[0], h[1]))
	}
	return mws
}
