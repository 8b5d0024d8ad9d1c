// Package auth resolves the identity behind a request. Credentials are
// issued elsewhere; this package only verifies them.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dkeye/Playroom/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// DevUserHeader names the trusted username header in development mode.
const DevUserHeader = "X-Username"

// ContextKey is where the HTTP layer stores the resolved identity.
const ContextKey = "identity"

// Claims carries the username under its own claim; sub is accepted too.
type Claims struct {
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

type Authenticator struct {
	secret []byte
	now    func() time.Time
}

// New verifies HS256 tokens signed with secret. An empty secret enables
// development mode, where the client-supplied username is trusted.
func New(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret), now: time.Now}
}

func (a *Authenticator) DevMode() bool { return len(a.secret) == 0 }

// Issue signs a token for identity. It is used by tests and local tooling.
func (a *Authenticator) Issue(identity domain.Identity, ttl time.Duration) (string, error) {
	if a.DevMode() {
		return "", errors.New("no signing secret configured")
	}
	now := a.now()
	claims := Claims{
		Username: identity.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Verify parses a token and returns the identity it names.
func (a *Authenticator) Verify(token string) (domain.Identity, error) {
	if a.DevMode() {
		return "", domain.Errorf(domain.CodeUnauthenticated, "token verification is disabled")
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil {
		return "", domain.Errorf(domain.CodeUnauthenticated, "invalid token: %v", err)
	}
	name := claims.Username
	if name == "" {
		name = claims.Subject
	}
	id, err := domain.NewIdentity(name)
	if err != nil {
		return "", domain.Errorf(domain.CodeUnauthenticated, "token carries no usable username")
	}
	return id, nil
}

// FromRequest reads a bearer token from the Authorization header or the
// token query parameter. In development mode the X-Username header is
// trusted instead. ok is false when the request carries no credentials.
func (a *Authenticator) FromRequest(r *http.Request) (id domain.Identity, ok bool, err error) {
	if a.DevMode() {
		name := strings.TrimSpace(r.Header.Get(DevUserHeader))
		if name == "" {
			return "", false, nil
		}
		id, err := domain.NewIdentity(name)
		if err != nil {
			return "", false, fmt.Errorf("dev username: %w", err)
		}
		return id, true, nil
	}

	token := ""
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, value, found := strings.Cut(h, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") {
			return "", false, domain.Errorf(domain.CodeUnauthenticated, "unsupported authorization scheme")
		}
		token = strings.TrimSpace(value)
	} else {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return "", false, nil
	}
	id, err = a.Verify(token)
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}
