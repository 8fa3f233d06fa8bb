package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// --- モック定義 ---

type mockTokenVerifier struct {
	verifyFn func(ctx context.Context, token string) (string, bool)
	calls    int
}

func (m *mockTokenVerifier) VerifyToken(ctx context.Context, token string) (string, bool) {
	m.calls++
	if m.verifyFn != nil {
		return m.verifyFn(ctx, token)
	}
	return "", false
}

func acceptToken(valid, accountID string) *mockTokenVerifier {
	return &mockTokenVerifier{
		verifyFn: func(ctx context.Context, token string) (string, bool) {
			if token == valid {
				return accountID, true
			}
			return "", false
		},
	}
}

// --- テスト ---

func TestTokenMiddleware_ValidToken_InjectsAccountID(t *testing.T) {
	verifier := acceptToken("valid-token", "account-123")

	var captured string
	handler := NewTokenMiddleware(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = AccountIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if captured != "account-123" {
		t.Errorf("accountID = %q, want %q", captured, "account-123")
	}
}

func TestTokenMiddleware_NoHeader_PassesThroughAnonymously(t *testing.T) {
	verifier := acceptToken("valid-token", "account-123")

	called := false
	handler := NewTokenMiddleware(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if _, err := AccountIDFromContext(r.Context()); err == nil {
			t.Error("anonymous request should not carry an account ID")
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if !called {
		t.Error("handler should be called for anonymous requests")
	}
	if verifier.calls != 0 {
		t.Errorf("VerifyToken called %d times, want 0", verifier.calls)
	}
}

func TestTokenMiddleware_InvalidCredentials_Returns401(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"unknown token", "Bearer forged-token"},
		{"wrong scheme", "Basic dXNlcjpwYXNz"},
		{"missing token", "Bearer "},
		{"no separator", "Bearer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewTokenMiddleware(acceptToken("valid-token", "account-1"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler should not be called")
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
			req.Header.Set("Authorization", tt.header)
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
			var body ErrorResponseBody
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			if body.Code != "UNAUTHORIZED" {
				t.Errorf("code = %q, want UNAUTHORIZED", body.Code)
			}
		})
	}
}

func TestTokenMiddleware_SchemeIsCaseInsensitive(t *testing.T) {
	handler := NewTokenMiddleware(acceptToken("tok", "account-9"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer tok")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRequireAccount(t *testing.T) {
	handler := RequireAccount(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("without account", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("with account", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(ContextWithAccountID(req.Context(), "account-1"))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
		}
	})
}

func TestAccountIDFromContext_Empty(t *testing.T) {
	if _, err := AccountIDFromContext(context.Background()); err == nil {
		t.Error("expected error for empty context")
	}
	if _, err := AccountIDFromContext(ContextWithAccountID(context.Background(), "")); err == nil {
		t.Error("expected error for empty account ID")
	}
}
