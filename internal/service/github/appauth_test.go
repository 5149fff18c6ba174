package github

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func TestAppJWTClaims(t *testing.T) {
	key := testKey(t)
	auth := NewAppAuth("1234", key, "https://api.github.com", nil, zap.NewNop())
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	auth.now = func() time.Time { return now }

	signed, err := auth.AppJWT()
	if err != nil {
		t.Fatalf("AppJWT: %v", err)
	}

	claims := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(signed, claims, func(*jwt.Token) (any, error) {
		return &key.PublicKey, nil
	}, jwt.WithValidMethods([]string{"RS256"}), jwt.WithTimeFunc(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Issuer != "1234" {
		t.Errorf("iss = %q", claims.Issuer)
	}
	if got := claims.IssuedAt.Time; !got.Equal(now.Add(-time.Minute)) {
		t.Errorf("iat = %v", got)
	}
	if got := claims.ExpiresAt.Time; !got.Equal(now.Add(10 * time.Minute)) {
		t.Errorf("exp = %v", got)
	}
}

func TestAppJWTRequiresConfiguration(t *testing.T) {
	auth := NewAppAuth("", nil, "", nil, zap.NewNop())
	if _, err := auth.AppJWT(); err != ErrAppNotConfigured {
		t.Errorf("err = %v, want ErrAppNotConfigured", err)
	}
}

// fakeGitHub issues numbered tokens and rejects the first one on the repo endpoint.
type fakeGitHub struct {
	exchanges  atomic.Int32
	rejectOnce atomic.Bool
}

func (f *fakeGitHub) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/app/installations/42/access_tokens", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			t.Errorf("missing app jwt")
		}
		n := f.exchanges.Add(1)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token":      "tok-" + string(rune('0'+n)),
			"expires_at": time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/repos/acme/apollo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer tok-1" && f.rejectOnce.CompareAndSwap(true, false) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"name": "apollo", "full_name": "acme/apollo"})
	})
	return mux
}

func TestInstallationTokenIsReused(t *testing.T) {
	fake := &fakeGitHub{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	auth := NewAppAuth("1234", testKey(t), srv.URL, NewMemoryTokenCache(), zap.NewNop())
	for i := 0; i < 3; i++ {
		tok, err := auth.Token(context.Background(), 42)
		if err != nil {
			t.Fatalf("Token: %v", err)
		}
		if tok != "tok-1" {
			t.Errorf("token = %q, want tok-1", tok)
		}
	}
	if n := fake.exchanges.Load(); n != 1 {
		t.Errorf("exchanges = %d, want 1", n)
	}
}

func TestInstallationTokenRefreshedNearExpiry(t *testing.T) {
	fake := &fakeGitHub{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	cache := NewMemoryTokenCache()
	cache.Set(context.Background(), 42, InstallationToken{Token: "stale", ExpiresAt: time.Now().Add(30 * time.Second)})
	auth := NewAppAuth("1234", testKey(t), srv.URL, cache, zap.NewNop())

	tok, err := auth.Token(context.Background(), 42)
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok != "tok-1" {
		t.Errorf("token = %q, want a fresh token", tok)
	}
}

func TestClientRefreshesTokenAfterUnauthorized(t *testing.T) {
	fake := &fakeGitHub{}
	fake.rejectOnce.Store(true)
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	auth := NewAppAuth("1234", testKey(t), srv.URL, NewMemoryTokenCache(), zap.NewNop())
	client := NewClient(srv.URL, auth, zap.NewNop()).WithBackoff(time.Millisecond)

	repo, err := client.GetRepository(context.Background(), 42, "acme", "apollo")
	if err != nil {
		t.Fatalf("GetRepository: %v", err)
	}
	if repo.FullName != "acme/apollo" {
		t.Errorf("repo = %+v", repo)
	}
	if n := fake.exchanges.Load(); n != 2 {
		t.Errorf("exchanges = %d, want 2 (initial + refresh)", n)
	}
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`[{"sha":"abc","commit":{"message":"TASK-1"}}]`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, staticTokens("t"), zap.NewNop()).WithBackoff(time.Millisecond)
	commits, err := client.ListCommits(context.Background(), 1, "acme", "apollo", 10)
	if err != nil {
		t.Fatalf("ListCommits: %v", err)
	}
	if len(commits) != 1 || commits[0].SHA != "abc" {
		t.Errorf("commits = %+v", commits)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, staticTokens("t"), zap.NewNop()).WithBackoff(time.Millisecond)
	if _, err := client.GetRepository(context.Background(), 1, "acme", "missing"); err == nil {
		t.Fatal("expected error")
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

type staticTokens string

func (s staticTokens) Token(context.Context, int64) (string, error) { return string(s), nil }
func (s staticTokens) Invalidate(context.Context, int64)            {}
