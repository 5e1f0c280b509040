package api

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
)

const (
	RoleAdmin          = "admin"
	RoleRepresentative = "representative"
)

// Principal is the authenticated caller.
type Principal struct {
	UserID string `json:"userId"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role"`
}

// IsAdmin reports whether the caller may manage customers, tasks and workflows.
func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// DisplayName is the name tasks are assigned under.
func (p Principal) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Email
}

// AuthOptions configures Auth. A non-empty TestSecret switches to HS256
// verification for local runs and tests.
type AuthOptions struct {
	Audience    string
	Issuer      string
	TestSecret  string
	KeyCacheTTL time.Duration
}

// Auth validates incoming JWT tokens.
type Auth struct {
	JWKS       *keyfunc.JWKS
	Audience   string
	Issuer     string
	TestMode   bool
	TestSecret []byte

	parser      *jwt.Parser
	keyCache    sync.Map
	keyCacheTTL time.Duration
}

type cachedKey struct {
	key       any
	expiresAt time.Time
}

// NewAuth creates a new Auth instance. jwks may be nil in test mode.
func NewAuth(jwks *keyfunc.JWKS, opts AuthOptions) *Auth {
	a := &Auth{
		JWKS:        jwks,
		Audience:    opts.Audience,
		Issuer:      opts.Issuer,
		keyCacheTTL: opts.KeyCacheTTL,
	}
	if opts.TestSecret != "" {
		a.TestMode = true
		a.TestSecret = []byte(opts.TestSecret)
		a.parser = jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}))
	} else {
		a.parser = jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}))
	}
	return a
}

// Authenticate verifies the Authorization header and returns the caller.
func (a *Auth) Authenticate(header string) (Principal, error) {
	if header == "" {
		return Principal{}, errMissingAuthorization
	}
	token, err := bearerToken(header)
	if err != nil {
		return Principal{}, err
	}
	if strings.Count(token, ".") != 2 {
		return Principal{}, errBadAuthorization
	}
	claims, err := a.verify(token)
	if err != nil {
		return Principal{}, err
	}
	return principalFromClaims(claims)
}

func (a *Auth) verify(tokenStr string) (jwt.MapClaims, error) {
	var parsed *jwt.Token
	var err error
	if a.TestMode {
		parsed, err = a.parser.Parse(tokenStr, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("invalid signing method")
			}
			return a.TestSecret, nil
		})
	} else {
		parsed, err = a.parser.Parse(tokenStr, a.keyForToken)
	}
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid claims")
	}

	now := time.Now().Add(time.Minute).Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return nil, errors.New("token expired")
	}
	if !claims.VerifyNotBefore(now, false) {
		return nil, errors.New("token not valid yet")
	}
	if !claims.VerifyIssuedAt(now, false) {
		return nil, errors.New("token used before issued")
	}
	if a.Audience != "" && !claims.VerifyAudience(a.Audience, false) {
		return nil, errors.New("invalid audience")
	}
	if a.Issuer != "" && !claims.VerifyIssuer(a.Issuer, false) {
		return nil, errors.New("invalid issuer")
	}
	return claims, nil
}

func principalFromClaims(claims jwt.MapClaims) (Principal, error) {
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return Principal{}, errors.New("missing sub")
	}
	p := Principal{UserID: sub}
	p.Name, _ = claims["name"].(string)
	p.Email, _ = claims["email"].(string)

	role, _ := claims["role"].(string)
	if role == "" {
		if roles, ok := claims["roles"].([]any); ok && len(roles) > 0 {
			role, _ = roles[0].(string)
		}
	}
	switch strings.ToLower(strings.TrimSpace(role)) {
	case RoleAdmin:
		p.Role = RoleAdmin
	case RoleRepresentative, "":
		p.Role = RoleRepresentative
	default:
		return Principal{}, errors.New("unknown role")
	}
	return p, nil
}

func (a *Auth) keyForToken(token *jwt.Token) (any, error) {
	if a.JWKS == nil {
		return nil, errors.New("jwks not configured")
	}

	kid, _ := token.Header["kid"].(string)
	if kid != "" && a.keyCacheTTL > 0 {
		if cached, ok := a.keyCache.Load(kid); ok {
			entry := cached.(cachedKey)
			if time.Now().Before(entry.expiresAt) {
				return entry.key, nil
			}
			a.keyCache.Delete(kid)
		}
	}

	key, err := a.JWKS.Keyfunc(token)
	if err != nil {
		return nil, err
	}

	if kid != "" && a.keyCacheTTL > 0 {
		a.keyCache.Store(kid, cachedKey{key: key, expiresAt: time.Now().Add(a.keyCacheTTL)})
	}
	return key, nil
}
