package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestTokenOK(t *testing.T) {
	if !tokenOK(nil, "") {
		t.Fatalf("expected true when expected empty")
	}
	r := httptest.NewRequest(http.MethodGet, "/?token=secret", nil)
	if !tokenOK(r, "secret") {
		t.Fatalf("expected true with query token")
	}
	r2 := httptest.NewRequest(http.MethodGet, "/", nil)
	r2.Header.Set("X-Auth-Token", "tok")
	if !tokenOK(r2, "tok") {
		t.Fatalf("expected true with X-Auth-Token")
	}
	r3 := httptest.NewRequest(http.MethodGet, "/", nil)
	r3.Header.Set("Authorization", "bearer abc")
	if !tokenOK(r3, "abc") {
		t.Fatalf("expected true with lowercase bearer prefix")
	}
}

func TestTokenOK_NegativeCases(t *testing.T) {
	r1 := httptest.NewRequest(http.MethodGet, "/?token=wrong", nil)
	if tokenOK(r1, "secret") {
		t.Fatalf("expected false with wrong query token")
	}
	r2 := httptest.NewRequest(http.MethodGet, "/", nil)
	r2.Header.Set("X-Auth-Token", "nope")
	if tokenOK(r2, "secret") {
		t.Fatalf("expected false with wrong X-Auth-Token")
	}
	r3 := httptest.NewRequest(http.MethodGet, "/", nil)
	r3.Header.Set("Authorization", "Basic secret")
	if tokenOK(r3, "secret") {
		t.Fatalf("expected false with non-bearer scheme")
	}
	if tokenOK(nil, "secret") {
		t.Fatalf("expected false for nil request")
	}
}

func TestTokenAuthMiddleware(t *testing.T) {
	e := echo.New()
	e.Use(TokenAuth(func() string { return "secret" }, "/healthz"))
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/sessions/x", func(c echo.Context) error { return c.String(http.StatusOK, "x") })

	cases := []struct {
		path   string
		header string
		want   int
	}{
		{"/healthz", "", http.StatusOK},
		{"/sessions/x", "", http.StatusUnauthorized},
		{"/sessions/x", "Bearer wrong", http.StatusUnauthorized},
		{"/sessions/x", "Bearer secret", http.StatusOK},
	}
	for _, tc := range cases {
		r := httptest.NewRequest(http.MethodGet, tc.path, nil)
		if tc.header != "" {
			r.Header.Set("Authorization", tc.header)
		}
		w := httptest.NewRecorder()
		e.ServeHTTP(w, r)
		if w.Code != tc.want {
			t.Fatalf("%s with %q: expected %d, got %d", tc.path, tc.header, tc.want, w.Code)
		}
	}
}
