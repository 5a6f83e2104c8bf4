// Package redact strips provider API keys and bearer tokens out of strings
// before they reach a log line or the log sink, grounded on the teacher's
// PII-redaction logger and evidence redactor.
package redact

import "regexp"

var patterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(bearer\s+)[a-z0-9._\-]{8,}`),
	regexp.MustCompile(`(?i)(x-api-key:\s*)[a-z0-9._\-]{8,}`),
	regexp.MustCompile(`(?i)(api[_-]?key["':= ]+)[a-z0-9._\-]{8,}`),
	regexp.MustCompile(`sk-[a-zA-Z0-9]{16,}`),
}

// String scrubs known secret shapes out of s, replacing the secret portion
// with "***".
func String(s string) string {
	for _, p := range patterns {
		if p.NumSubexp() > 0 {
			s = p.ReplaceAllString(s, "${1}***")
		} else {
			s = p.ReplaceAllString(s, "***")
		}
	}
	return s
}

// Key redacts a known secret value (e.g. a provider's own API key) wherever
// it appears verbatim in s. Used so an upstream error body that happens to
// echo the key back never reaches disk.
func Key(s, key string) string {
	if key == "" || len(key) < 4 {
		return String(s)
	}
	out := s
	for i := 0; i+len(key) <= len(out); i++ {
		if out[i:i+len(key)] == key {
			out = out[:i] + "***" + out[i+len(key):]
			i += 2
		}
	}
	return String(out)
}
