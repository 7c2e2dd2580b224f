package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/fenggwsx/roomcast/internal/config"
)

// CookieName is the cookie consulted when no Authorization header is sent.
const CookieName = "auth-token"

// ErrUnauthenticated is returned when a request carries no valid credential.
var ErrUnauthenticated = errors.New("unauthenticated")

// Authenticator resolves an inbound request to the id of the calling user.
type Authenticator interface {
	Authenticate(r *http.Request) (string, error)
}

// JWTAuthenticator accepts HS256 tokens from a bearer header or the auth cookie.
type JWTAuthenticator struct {
	cfg config.JWTConfig
}

// NewJWTAuthenticator constructs an authenticator for tokens issued by NewToken.
func NewJWTAuthenticator(cfg config.JWTConfig) *JWTAuthenticator {
	return &JWTAuthenticator{cfg: cfg}
}

// Authenticate implements Authenticator.
func (a *JWTAuthenticator) Authenticate(r *http.Request) (string, error) {
	token := bearerToken(r)
	if token == "" {
		if cookie, err := r.Cookie(CookieName); err == nil {
			token = strings.TrimSpace(cookie.Value)
		}
	}
	if token == "" {
		return "", ErrUnauthenticated
	}
	claims, err := ParseToken(a.cfg, token)
	if err != nil {
		return "", ErrUnauthenticated
	}
	return claims.UserID, nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
