package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// envReader reads typed values; unset, empty or unparsable variables yield
// the default.
type envReader struct {
	lookup func(string) (string, bool)
}

var env = envReader{lookup: os.LookupEnv}

func (e envReader) raw(k string) (string, bool) {
	v, ok := e.lookup(k)
	return v, ok && v != ""
}

func (e envReader) strOr(k, def string) string {
	if v, ok := e.raw(k); ok {
		return v
	}
	return def
}

func (e envReader) intOr(k string, def int) int {
	if v, ok := e.raw(k); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return def
}

func (e envReader) floatOr(k string, def float64) float64 {
	if v, ok := e.raw(k); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}

func (e envReader) durOr(k string, def time.Duration) time.Duration {
	if v, ok := e.raw(k); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return def
}

func (e envReader) boolOr(k string, def bool) bool {
	v, ok := e.raw(k)
	if !ok {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	return def
}

// csv splits a comma-separated list, dropping blanks. Unset yields nil.
func (e envReader) list(k string) []string {
	v, ok := e.raw(k)
	if !ok {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
