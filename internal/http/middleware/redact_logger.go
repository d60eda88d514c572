package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// RedactOptions extends the built-in masks of RedactingLogger. Names are
// matched case-insensitively.
type RedactOptions struct {
	// MaskHeaders are replaced wholesale, in addition to Authorization,
	// Cookie and Set-Cookie.
	MaskHeaders []string
	// MaskQueryParams are replaced wholesale, in addition to the push
	// subscription fields (endpoint, p256dh, auth) and token.
	MaskQueryParams []string
}

const redacted = "[REDACTED]"

var (
	defaultMaskedHeaders = []string{"authorization", "cookie", "set-cookie"}
	defaultMaskedParams  = []string{"endpoint", "p256dh", "auth", "token"}
)

// piiPatterns run in order; UUIDs go first so the loose phone pattern never
// sees their digit groups.
var piiPatterns = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}\b`), "[REDACTED:id]"},
	{regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`), "[REDACTED:email]"},
	{regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`), "[REDACTED:phone]"},
}

func scrubPII(s string) string {
	for _, p := range piiPatterns {
		if s == "" {
			break
		}
		s = p.re.ReplaceAllString(s, p.repl)
	}
	return s
}

func lowerSet(groups ...[]string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, g := range groups {
		for _, s := range g {
			if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
				set[s] = struct{}{}
			}
		}
	}
	return set
}

// maskQuery blanks masked parameter values in a raw query, leaving order and
// encoding of the rest intact.
func maskQuery(raw string, masked map[string]struct{}) string {
	if raw == "" {
		return raw
	}
	parts := strings.Split(raw, "&")
	for i, p := range parts {
		name, _, hasValue := strings.Cut(p, "=")
		if _, ok := masked[strings.ToLower(name)]; ok && hasValue {
			parts[i] = name + "=" + redacted
		}
	}
	return strings.Join(parts, "&")
}

// RedactingLogger is the production access logger. It attaches the same
// request-scoped logger as Logger, but logs request headers and the query
// only after masking credentials and scrubbing emails, phone numbers and
// UUIDs. Bodies are never logged; push keys normally travel there, but
// debugging clients sometimes move them into the query.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	maskHeaders := lowerSet(defaultMaskedHeaders, opts.MaskHeaders)
	maskParams := lowerSet(defaultMaskedParams, opts.MaskQueryParams)

	return func(c *gin.Context) {
		start := time.Now()
		l := attachLogger(c)

		query := scrubPII(maskQuery(c.Request.URL.RawQuery, maskParams))
		headers := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := maskHeaders[strings.ToLower(k)]; ok {
				headers[k] = redacted
			} else {
				headers[k] = scrubPII(strings.Join(vv, ", "))
			}
		}

		c.Next()

		accessEvent(&l, c).
			Str("query", query).
			Int("status", c.Writer.Status()).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Bool("replay", IsReplay(c)).
			Interface("headers", headers).
			Msg("http_request")
	}
}
