package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret")

func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.RegisteredClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("SignedString() failed: %v", err)
	}
	return token
}

func TestAuthJWT(t *testing.T) {
	valid := sign(t, jwt.SigningMethodHS256, testSecret, jwt.RegisteredClaims{
		Subject:   "editor",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	expired := sign(t, jwt.SigningMethodHS256, testSecret, jwt.RegisteredClaims{
		Subject:   "editor",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})
	otherKey := sign(t, jwt.SigningMethodHS256, []byte("other"), jwt.RegisteredClaims{Subject: "editor"})
	unsigned := sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, jwt.RegisteredClaims{Subject: "editor"})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + valid, http.StatusOK},
		{"lowercase scheme", "bearer " + valid, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + valid, http.StatusUnauthorized},
		{"no token", "Bearer", http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"wrong key", "Bearer " + otherKey, http.StatusUnauthorized},
		{"alg none", "Bearer " + unsigned, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var subject string
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if claims, ok := r.Context().Value(ClaimsContextKey).(*jwt.RegisteredClaims); ok {
					subject = claims.Subject
				}
			})

			req := httptest.NewRequest(http.MethodGet, "/api/presets", http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			AuthJWT(testSecret)(next).ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("Status code mismatch: got %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusOK && subject != "editor" {
				t.Errorf("Claims subject = %q, want editor", subject)
			}
		})
	}
}
