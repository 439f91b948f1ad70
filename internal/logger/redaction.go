package logger

import (
	"io"
	"regexp"
)

const redacted = "[REDACTED]"

// secretKeys are argument and header names whose values are masked
const secretKeys = `(?i)(api[_-]?key|password|passwd|secret|token|authorization|x-agentsim-secret)`

// rule replaces matches of pattern with replacement; replacement may use
// capture groups to keep the key visible
type rule struct {
	pattern     *regexp.Regexp
	replacement string
}

// Redactor masks secrets before log lines reach any writer
type Redactor struct {
	rules []rule
}

// NewRedactor creates a redactor with the default rules
func NewRedactor() *Redactor {
	return &Redactor{
		rules: []rule{
			{regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._~+/-]+=*`), `Bearer ` + redacted},
			{regexp.MustCompile(`sk-[a-zA-Z0-9_-]{20,}`), redacted},
			{regexp.MustCompile(`AKIA[0-9A-Z]{16}`), redacted},
			// "api_key":"..." inside logged tool arguments
			{regexp.MustCompile(`("[^"]*` + secretKeys + `[^"]*"\s*:\s*)"(?:[^"\\]|\\.)*"`), `$1"` + redacted + `"`},
			// api_key=..., password: ...
			{regexp.MustCompile(secretKeys + `(\s*[=:]\s*)[^\s",}]+`), `$1$2` + redacted},
		},
	}
}

// AddPattern masks every match of pattern
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.rules = append(r.rules, rule{pattern: re, replacement: redacted})
	return nil
}

// Redact masks secrets in s
func (r *Redactor) Redact(s string) string {
	for _, rl := range r.rules {
		s = rl.pattern.ReplaceAllString(s, rl.replacement)
	}
	return s
}

// Wrap returns a writer that redacts every write before passing it on
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{
		writer:   w,
		redactor: r,
	}
}

type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

// Write reports len(p) on success so callers do not see a short write when
// redaction changes the length
func (w *redactingWriter) Write(p []byte) (int, error) {
	if _, err := w.writer.Write([]byte(w.redactor.Redact(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}
