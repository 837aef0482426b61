package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func serve(t *testing.T, secret string, skip Skipper, header string, path string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.Use(BearerMiddleware(secret, skip))
	e.GET("/*", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if header != "" {
		req.Header.Set(echo.HeaderAuthorization, header)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestBearerMiddlewareAcceptsValidToken(t *testing.T) {
	t.Parallel()

	rec := serve(t, "s3cret", nil, "Bearer s3cret", "/gateway/cycle")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestBearerMiddlewareRejectsBadToken(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong token", "Bearer nope"},
		{"wrong scheme", "Basic s3cret"},
	}
	for _, tc := range cases {
		rec := serve(t, "s3cret", nil, tc.header, "/gateway/cycle")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", tc.name, rec.Code)
		}
	}
}

func TestBearerMiddlewareRejectsWhenUnconfigured(t *testing.T) {
	t.Parallel()

	rec := serve(t, "", nil, "Bearer anything", "/gateway/cycle")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for empty secret, got %d", rec.Code)
	}
}

func TestBearerMiddlewareSkipper(t *testing.T) {
	t.Parallel()

	skip := func(c echo.Context) bool {
		return c.Request().URL.Path == "/ping"
	}
	if rec := serve(t, "s3cret", skip, "", "/ping"); rec.Code != http.StatusOK {
		t.Fatalf("skipped path must pass without auth, got %d", rec.Code)
	}
	if rec := serve(t, "s3cret", skip, "", "/gateway/cycle"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("non-skipped path must require auth, got %d", rec.Code)
	}
}
