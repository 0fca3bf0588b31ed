package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danmuck/storefront/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
)

func TestStaticTokenValidate(t *testing.T) {
	testlog.Start(t)
	tests := []struct {
		name    string
		stored  string
		input   string
		wantErr error
	}{
		{name: "empty token denied", stored: "", input: "abc", wantErr: ErrUnauthorized},
		{name: "mismatched token denied", stored: "abc", input: "xyz", wantErr: ErrUnauthorized},
		{name: "matching token accepted", stored: "abc", input: "abc", wantErr: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := (StaticToken{Token: tc.stored}).Validate(tc.input)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected err %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestRequestToken(t *testing.T) {
	testlog.Start(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer  abc ")
	if got := RequestToken(req); got != "abc" {
		t.Fatalf("bearer token = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic Zm9v")
	req.Header.Set(HeaderAPIToken, "xyz")
	if got := RequestToken(req); got != "xyz" {
		t.Fatalf("fallback token = %q", got)
	}
}

func TestMiddleware(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)

	seen := 0
	validator := FuncValidator(func(token string) error {
		seen++
		if token != "ok" {
			return ErrUnauthorized
		}
		return nil
	})
	r := gin.New()
	r.GET("/guarded", Middleware(validator), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/open", Middleware(nil), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	cases := []struct {
		path  string
		token string
		want  int
	}{
		{"/guarded", "", http.StatusUnauthorized},
		{"/guarded", "bad", http.StatusUnauthorized},
		{"/guarded", "ok", http.StatusNoContent},
		{"/open", "", http.StatusNoContent},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		if tc.token != "" {
			req.Header.Set("Authorization", "Bearer "+tc.token)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Fatalf("%s token=%q: status %d, want %d", tc.path, tc.token, w.Code, tc.want)
		}
	}
	if seen != 3 {
		t.Fatalf("validator calls = %d, want 3", seen)
	}
}
