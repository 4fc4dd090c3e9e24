package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"finkargo-billing/internal/config"
)

// ===== Session/JWT primitives =====

var errMissingToken = errors.New("missing token")
var errInvalidToken = errors.New("invalid token")

// SessionClaims identify the dashboard user and the company they act for.
type SessionClaims struct {
	CompanyID string `json:"company_id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

type SessionManager struct {
	secret       []byte
	cookieName   string
	cookieDomain string
	secure       bool
	ttl          time.Duration
}

func NewSessionManager(cfg config.AuthConfig) *SessionManager {
	return &SessionManager{
		secret:       []byte(cfg.SessionSecret),
		cookieName:   cfg.CookieName,
		cookieDomain: cfg.CookieDomain, // "" keeps a host-only cookie
		secure:       cfg.SecureCookie,
		ttl:          cfg.TTL,
	}
}

// Mint signs a session token. When w is not nil the token is also set as cookie.
func (a *SessionManager) Mint(w http.ResponseWriter, companyID, email, role string) (string, error) {
	if companyID == "" {
		return "", errors.New("company id is required")
	}
	now := time.Now()
	claims := SessionClaims{
		CompanyID: companyID,
		Email:     email,
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			Subject:   email,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", err
	}
	if w != nil {
		http.SetCookie(w, &http.Cookie{
			Name:     a.cookieName,
			Value:    signed,
			Path:     "/",
			Domain:   a.cookieDomain,
			MaxAge:   int(a.ttl.Seconds()),
			HttpOnly: true,
			Secure:   a.secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return signed, nil
}

func (a *SessionManager) ParseFromRequest(r *http.Request) (*SessionClaims, error) {
	// Authorization: Bearer <jwt>
	if hdr := r.Header.Get("Authorization"); hdr != "" {
		if strings.HasPrefix(strings.ToLower(hdr), "bearer ") {
			return a.parse(strings.TrimSpace(hdr[7:]))
		}
	}
	if c, err := r.Cookie(a.cookieName); err == nil {
		return a.parse(c.Value)
	}
	return nil, errMissingToken
}

func (a *SessionManager) parse(tok string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tkn.Valid {
		return nil, errInvalidToken
	}
	return claims, nil
}
