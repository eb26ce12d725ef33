package httpx

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/digikrishi/krishi-market/internal/orders"
	"github.com/golang-jwt/jwt/v5"
)

const TokenCookie = "token"

// Claims are issued by the account service; this service only verifies them.
type Claims struct {
	ID       string      `json:"id"`
	Role     orders.Role `json:"role"`
	Verified bool        `json:"verified"`
	jwt.RegisteredClaims
}

type Auth struct {
	Secret []byte
}

type claimsKey struct{}

func CurrentUser(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok
}

// Sign issues an HS256 token for c.
func (a *Auth) Sign(c Claims, ttl time.Duration) (string, error) {
	if ttl != 0 {
		c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, &c).SignedString(a.Secret)
}

func (a *Auth) Parse(raw string) (*Claims, error) {
	c := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, c, func(*jwt.Token) (any, error) {
		return a.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tok.Valid {
		return nil, ErrUnauthorized
	}
	if c.ID == "" {
		return nil, ErrUnauthorized
	}
	return c, nil
}

func tokenFrom(r *http.Request) string {
	if ck, err := r.Cookie(TokenCookie); err == nil && ck.Value != "" {
		return ck.Value
	}
	h := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return ""
}

// Middleware rejects requests without a valid token.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := tokenFrom(r)
		if raw == "" {
			writeMessage(w, http.StatusUnauthorized, "authentication required")
			return
		}
		c, err := a.Parse(raw)
		if err != nil {
			writeMessage(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, c)))
	})
}

// RequireRole must run after Middleware.
func RequireRole(roles ...orders.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, ok := CurrentUser(r.Context())
			if !ok {
				writeMessage(w, http.StatusUnauthorized, "authentication required")
				return
			}
			for _, role := range roles {
				if c.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeMessage(w, http.StatusForbidden, "forbidden")
		})
	}
}

func userID(r *http.Request) (string, error) {
	c, ok := CurrentUser(r.Context())
	if !ok {
		return "", ErrUnauthorized
	}
	return c.ID, nil
}
