package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// passHandler writes 200 "ok".
var passHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
})

func call(t *testing.T, mw func(http.Handler) http.Handler, target, header, key string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if key != "" {
		req.Header.Set(header, key)
	}
	rec := httptest.NewRecorder()
	mw(passHandler).ServeHTTP(rec, req)
	return rec
}

func TestAPIKeyMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		mode       string
		header     string
		key        string
		target     string
		sendHeader string
		sendKey    string
		wantCode   int
	}{
		{"mode none passes through", "none", "x-api-key", "secret", "/api/v1/health", "", "", http.StatusOK},
		{"empty key fails closed", "apikey", "x-api-key", "", "/api/v1/health", "", "", http.StatusServiceUnavailable},
		{"empty key ignores sent key", "apikey", "x-api-key", "", "/", "x-api-key", "anything", http.StatusServiceUnavailable},
		{"correct key passes", "apikey", "x-api-key", "supersecret", "/", "x-api-key", "supersecret", http.StatusOK},
		{"wrong key rejected", "apikey", "x-api-key", "supersecret", "/", "x-api-key", "wrong", http.StatusUnauthorized},
		{"missing header rejected", "apikey", "x-api-key", "supersecret", "/", "", "", http.StatusUnauthorized},
		{"custom header", "apikey", "x-quiz-token", "mytoken", "/", "x-quiz-token", "mytoken", http.StatusOK},
		{"header is case-insensitive", "apikey", "X-Api-Key", "k", "/", "x-api-key", "k", http.StatusOK},
		{"query param fallback", "apikey", "x-api-key", "k", "/ws/stream?api_key=k", "", "", http.StatusOK},
		{"wrong query param", "apikey", "x-api-key", "k", "/ws/stream?api_key=nope", "", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mw := APIKeyMiddleware(tt.mode, tt.header, tt.key)
			rec := call(t, mw, tt.target, tt.sendHeader, tt.sendKey)
			if rec.Code != tt.wantCode {
				t.Errorf("status: got %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantCode == http.StatusUnauthorized {
				if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
					t.Errorf("Content-Type: got %q", ct)
				}
				if rec.Body.String() != `{"error":"invalid api key"}` {
					t.Errorf("body: got %q", rec.Body.String())
				}
			}
		})
	}
}
