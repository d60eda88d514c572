package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func serveSecured(opt SecurityOptions, pre gin.HandlerFunc, req *http.Request) http.Header {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if pre != nil {
		r.Use(pre)
	}
	r.Use(SecurityHeaders(opt))
	r.Any("/*path", func(c *gin.Context) { c.Status(http.StatusOK) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Header()
}

func TestSecurityHeaders_BaselineOnly(t *testing.T) {
	h := serveSecured(SecurityOptions{}, nil, httptest.NewRequest(http.MethodGet, "/api/v1/reminders", nil))

	for _, p := range baselineHeaders {
		if h.Get(p.name) != p.value {
			t.Fatalf("%s = %q", p.name, h.Get(p.name))
		}
	}
	for _, name := range []string{"Permissions-Policy", "Cache-Control", "Strict-Transport-Security", "Access-Control-Expose-Headers"} {
		if h.Get(name) != "" {
			t.Fatalf("unexpected %s: %q", name, h.Get(name))
		}
	}
}

func TestSecurityHeaders_PolicyAndNoStorePrefix(t *testing.T) {
	opt := SecurityOptions{EnablePolicy: true, NoStorePrefixes: []string{"", "/api/v1/push/"}}

	h := serveSecured(opt, nil, httptest.NewRequest(http.MethodPost, "/api/v1/push/subscriptions", nil))
	if h.Get("X-Permitted-Cross-Domain-Policies") != "none" || h.Get("Permissions-Policy") == "" {
		t.Fatalf("policy headers missing: %#v", h)
	}
	if h.Get("Cache-Control") != "no-store" || h.Get("Pragma") != "no-cache" || h.Get("Expires") != "0" {
		t.Fatalf("push route should be no-store: %#v", h)
	}

	h = serveSecured(opt, nil, httptest.NewRequest(http.MethodGet, "/api/v1/reminders", nil))
	if h.Get("Cache-Control") != "" {
		t.Fatalf("reminders must stay cacheable for ETag revalidation, got %q", h.Get("Cache-Control"))
	}
}

func TestSecurityHeaders_HSTS(t *testing.T) {
	tlsReq := httptest.NewRequest(http.MethodGet, "/", nil)
	tlsReq.TLS = &tls.ConnectionState{}
	proxied := httptest.NewRequest(http.MethodGet, "/", nil)
	proxied.Header.Set("X-Forwarded-Proto", "HTTPS")

	cases := []struct {
		name string
		opt  SecurityOptions
		req  *http.Request
		want string
	}{
		{"tls", SecurityOptions{EnableHSTS: true, HSTSMaxAge: 24 * time.Hour}, tlsReq, "max-age=86400; includeSubDomains; preload"},
		{"proxy default max age", SecurityOptions{EnableHSTS: true}, proxied, "max-age=15552000; includeSubDomains; preload"},
		{"plain http", SecurityOptions{EnableHSTS: true}, httptest.NewRequest(http.MethodGet, "/", nil), ""},
		{"disabled", SecurityOptions{}, tlsReq, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := serveSecured(tc.opt, nil, tc.req).Get("Strict-Transport-Security"); got != tc.want {
				t.Fatalf("HSTS = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSecurityHeaders_ExposesRequestID(t *testing.T) {
	cases := []struct {
		name, existing, want string
	}{
		{"empty", "", "X-Request-ID"},
		{"append", "ETag", "ETag, X-Request-ID"},
		{"already present", "X-Request-ID, ETag", "X-Request-ID, ETag"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pre := func(c *gin.Context) {
				c.Header("X-Request-ID", "rid-1")
				if tc.existing != "" {
					c.Header("Access-Control-Expose-Headers", tc.existing)
				}
				c.Next()
			}
			h := serveSecured(SecurityOptions{}, pre, httptest.NewRequest(http.MethodGet, "/", nil))
			if got := h.Get("Access-Control-Expose-Headers"); got != tc.want {
				t.Fatalf("expose = %q, want %q", got, tc.want)
			}
		})
	}
}
