package httpx

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/digikrishi/krishi-market/internal/orders"
	"github.com/golang-jwt/jwt/v5"
)

func whoami(w http.ResponseWriter, r *http.Request) {
	c, _ := CurrentUser(r.Context())
	_, _ = w.Write([]byte(c.ID))
}

func TestAuthMiddleware(t *testing.T) {
	a := &Auth{Secret: []byte(testJWTSecret)}
	h := a.Middleware(http.HandlerFunc(whoami))

	good, err := a.Sign(Claims{ID: "u1", Role: orders.RoleGeneral}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	expired, _ := a.Sign(Claims{ID: "u1"}, -time.Minute)
	foreign, _ := (&Auth{Secret: []byte("other")}).Sign(Claims{ID: "u1"}, time.Hour)
	unsigned, _ := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{ID: "u1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	noID, _ := a.Sign(Claims{Role: orders.RoleAdmin}, time.Hour)

	tests := []struct {
		name   string
		header string
		cookie string
		want   int
	}{
		{name: "bearer", header: "Bearer " + good, want: http.StatusOK},
		{name: "cookie", cookie: good, want: http.StatusOK},
		{name: "missing", want: http.StatusUnauthorized},
		{name: "not bearer", header: "Basic " + good, want: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer abc.def.ghi", want: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + expired, want: http.StatusUnauthorized},
		{name: "wrong secret", header: "Bearer " + foreign, want: http.StatusUnauthorized},
		{name: "alg none", header: "Bearer " + unsigned, want: http.StatusUnauthorized},
		{name: "no subject", header: "Bearer " + noID, want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: TokenCookie, Value: tt.cookie})
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusOK && rec.Body.String() != "u1" {
				t.Errorf("user = %q", rec.Body.String())
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	a := &Auth{Secret: []byte(testJWTSecret)}
	h := a.Middleware(RequireRole(orders.RoleFarmer, orders.RoleAdmin)(http.HandlerFunc(whoami)))

	for role, want := range map[orders.Role]int{
		orders.RoleFarmer:  http.StatusOK,
		orders.RoleAdmin:   http.StatusOK,
		orders.RoleGeneral: http.StatusForbidden,
		orders.RoleExpert:  http.StatusForbidden,
	} {
		tok, _ := a.Sign(Claims{ID: "u1", Role: role}, time.Hour)
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Errorf("%s: status = %d, want %d", role, rec.Code, want)
		}
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{orders.ErrInvalidInput, http.StatusBadRequest},
		{orders.ErrNotFound, http.StatusNotFound},
		{orders.ErrForbidden, http.StatusForbidden},
		{orders.ErrConflict, http.StatusConflict},
		{ErrUnauthorized, http.StatusUnauthorized},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		wrapped := errors.Join(errors.New("ctx"), tt.err)
		if got := statusFor(wrapped); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
