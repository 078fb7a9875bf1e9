package logging

import (
	"regexp"
	"strings"
	"sync"
)

// RedactPlaceholder replaces registered secrets.
const RedactPlaceholder = "***REDACTED***"

// emailPattern matches email addresses. The local part is masked rather than
// removed so operators can still tell recipients apart.
var emailPattern = regexp.MustCompile(`([A-Za-z0-9._%+\-])[A-Za-z0-9._%+\-]*@([A-Za-z0-9.\-]+\.[A-Za-z]{2,})`)

// bearerPattern matches Authorization header values.
var bearerPattern = regexp.MustCompile(`Bearer\s+[A-Za-z0-9._~+/\-]{6,}=*`)

// Redactor masks subscriber addresses and replaces registered secrets.
// All methods are safe for concurrent use.
type Redactor struct {
	mu          sync.RWMutex
	literals    []string
	maskEmails  bool
	maskBearers bool
}

// NewRedactor creates a Redactor that masks email addresses and bearer
// tokens.
func NewRedactor() *Redactor {
	return &Redactor{maskEmails: true, maskBearers: true}
}

// AddLiteral registers a secret value (an SMTP password, an API token) that
// must never reach the logs. Empty strings are ignored.
func (r *Redactor) AddLiteral(secret string) {
	if secret == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.literals = append(r.literals, secret)
}

// Redact returns s with secrets replaced and addresses masked as
// "a***@example.com".
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}

	r.mu.RLock()
	literals := r.literals
	r.mu.RUnlock()

	for _, lit := range literals {
		if strings.Contains(s, lit) {
			s = strings.ReplaceAll(s, lit, RedactPlaceholder)
		}
	}
	if r.maskBearers {
		s = bearerPattern.ReplaceAllString(s, "Bearer "+RedactPlaceholder)
	}
	if r.maskEmails && strings.Contains(s, "@") {
		s = emailPattern.ReplaceAllString(s, "${1}***@${2}")
	}
	return s
}
