package security

import (
	"net/http"

	"github.com/unrolled/secure"
)

// Headers configures common security headers for HTTP responses.
type Headers struct {
	Enable                bool
	EnableHSTS            bool
	HSTSMaxAge            int64
	HSTSIncludeSubdomains bool
}

func (h Headers) options() secure.Options {
	opts := secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		ReferrerPolicy:     "no-referrer",
		PermissionsPolicy:  "geolocation=(), microphone=(), camera=()",
		SSLProxyHeaders:    map[string]string{"X-Forwarded-Proto": "https"},
	}
	if h.EnableHSTS {
		opts.STSSeconds = h.HSTSMaxAge
		if opts.STSSeconds <= 0 {
			opts.STSSeconds = 31536000
		}
		opts.STSIncludeSubdomains = h.HSTSIncludeSubdomains
	}
	return opts
}

// Middleware attaches standard security headers to each response.
func (h Headers) Middleware(next http.Handler) http.Handler {
	if !h.Enable {
		return next
	}
	return secure.New(h.options()).Handler(next)
}
