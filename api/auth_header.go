package api

import (
	"crypto/subtle"
	"errors"
	"strings"
)

var (
	errMissingAuthorization = errors.New("missing authorization header")
	errBadAuthorization     = errors.New("bad auth header")
)

const bearerPrefix = "Bearer "

// bearerToken strips surrounding spaces and the Bearer scheme from an
// Authorization header value.
func bearerToken(raw string) (string, error) {
	trimmed := strings.Trim(raw, " ")
	if trimmed == "" {
		return "", errMissingAuthorization
	}
	if len(trimmed) <= len(bearerPrefix) || !strings.HasPrefix(trimmed, bearerPrefix) {
		return "", errBadAuthorization
	}
	return trimmed[len(bearerPrefix):], nil
}

// SecretGate authorizes internal callers that present a shared secret,
// either bare or as a bearer value.
type SecretGate struct {
	secret string
}

func NewSecretGate(secret string) SecretGate {
	return SecretGate{secret: strings.TrimSpace(secret)}
}

// Allow reports whether header carries the configured secret. An
// unconfigured gate allows nobody.
func (g SecretGate) Allow(header string) bool {
	if g.secret == "" {
		return false
	}
	presented := strings.TrimSpace(header)
	if token, err := bearerToken(presented); err == nil {
		presented = strings.TrimSpace(token)
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(g.secret)) == 1
}
