// Package access implements the Access Gate: service-wide password
// authentication guarding every other endpoint when a password is
// configured.
package access

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	cookieName    = "sshgw_token"
	defaultTTL    = 7 * 24 * time.Hour
)

// Gate holds process-wide authentication state. TokenSecret is
// regenerated on every process start unless supplied externally, so every
// previously issued token is invalidated by a restart.
type Gate struct {
	password    string
	passwordHex string
	secret      []byte
	ttl         time.Duration
	secureCookie bool
}

// New builds a Gate. An empty password means the gate short-circuits to
// allow everywhere.
func New(password string, tokenSecret []byte, secureCookie bool) *Gate {
	g := &Gate{
		password:     password,
		secret:       tokenSecret,
		ttl:          defaultTTL,
		secureCookie: secureCookie,
	}
	if password != "" {
		sum := sha256.Sum256([]byte(password))
		g.passwordHex = hex.EncodeToString(sum[:])
	}
	return g
}

// Required reports whether an access password is configured at all.
func (g *Gate) Required() bool {
	return g.password != ""
}

// claims is the JWT payload: an issued-at time and an absolute expiry.
type claims struct {
	jwt.RegisteredClaims
}

// Check reports {required, verified} for the given cookie value (empty if
// no cookie was presented).
func (g *Gate) Check(cookieValue string) (required bool, verified bool) {
	if !g.Required() {
		return false, true
	}
	if cookieValue == "" {
		return true, false
	}
	return true, g.verifyToken(cookieValue)
}

// Verify checks password (raw or its sha256 hex, since the client may
// pre-hash) and, if remember is true, returns a signed token to set as a
// cookie.
func (g *Gate) Verify(password string, remember bool) (ok bool, token string) {
	if !g.Required() {
		return true, ""
	}
	if !constantTimeEqualAny(password, g.password, g.passwordHex) {
		return false, ""
	}
	if !remember {
		return true, ""
	}
	tok, err := g.mintToken()
	if err != nil {
		return true, ""
	}
	return true, tok
}

func constantTimeEqualAny(presented string, candidates ...string) bool {
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(presented), []byte(c)) == 1 {
			return true
		}
	}
	return false
}

func (g *Gate) mintToken() (string, error) {
	now := time.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(g.ttl)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(g.secret)
}

func (g *Gate) verifyToken(tokenString string) bool {
	tok, err := jwt.ParseWithClaims(tokenString, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return g.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	return err == nil && tok.Valid
}

// SetCookie writes the access cookie onto w, HttpOnly and SameSite=Lax per
// contract. Secure is driven by the gate's configured environment.
func (g *Gate) SetCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   g.secureCookie,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(g.ttl.Seconds()),
	})
}

// ClearCookie expires the access cookie immediately.
func (g *Gate) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   g.secureCookie,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// CookieName is exported for handlers that need to read the incoming
// request's cookie.
func CookieName() string { return cookieName }

// CookieFromRequest is a small convenience used by handlers; returns ""
// when absent.
func CookieFromRequest(r *http.Request) string {
	c, err := r.Cookie(cookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(c.Value)
}
