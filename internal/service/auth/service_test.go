package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"nexus/internal/model"
	"nexus/internal/repository"
	"nexus/pkg/util"
)

const secret = "test-secret"

func newAuth(v IdentityVerifier) (*Service, repository.UserStore) {
	users := repository.NewMemoryStore().Users()
	return NewService(users, v, secret, time.Hour, zap.NewNop()), users
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _ := newAuth(nil)
	ctx := context.Background()

	sess, err := svc.Register(ctx, RegisterInput{Name: "Ada", Email: " Ada@Example.com ", Password: "correct-horse"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if sess.User.Email != "ada@example.com" {
		t.Errorf("email = %q, want lower-cased", sess.User.Email)
	}
	claims, err := util.ParseJWT(sess.Token, secret)
	if err != nil {
		t.Fatalf("ParseJWT: %v", err)
	}
	if claims.UserID != sess.User.ID || claims.Email != "ada@example.com" {
		t.Errorf("claims = %+v", claims)
	}

	if _, err := svc.Login(ctx, "ADA@example.com", "correct-horse"); err != nil {
		t.Errorf("Login: %v", err)
	}
	if _, err := svc.Login(ctx, "ada@example.com", "wrong-password"); !errors.Is(err, model.ErrUnauthorized) {
		t.Errorf("wrong password: err = %v", err)
	}
	if _, err := svc.Login(ctx, "nobody@example.com", "whatever1"); !errors.Is(err, model.ErrUnauthorized) {
		t.Errorf("unknown user: err = %v", err)
	}

	me, err := svc.Me(ctx, sess.User.ID)
	if err != nil || me.Name != "Ada" {
		t.Errorf("Me = %+v, %v", me, err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newAuth(nil)
	ctx := context.Background()
	if _, err := svc.Register(ctx, RegisterInput{Name: "Ada", Email: "ada@example.com", Password: "short"}); !errors.Is(err, model.ErrValidation) {
		t.Errorf("short password: err = %v", err)
	}
	if _, err := svc.Register(ctx, RegisterInput{Name: "Ada", Email: "not-an-email", Password: "long-enough"}); !errors.Is(err, model.ErrValidation) {
		t.Errorf("bad email: err = %v", err)
	}
	if _, err := svc.Register(ctx, RegisterInput{Name: "Ada", Email: "ada@example.com", Password: "long-enough"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := svc.Register(ctx, RegisterInput{Name: "Ada2", Email: "ADA@example.com", Password: "long-enough"}); !errors.Is(err, model.ErrConflict) {
		t.Errorf("duplicate: err = %v, want ErrConflict", err)
	}
}

func tokenInfoServer(t *testing.T, body string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id_token") != "cred" {
			t.Errorf("id_token = %q", r.URL.Query().Get("id_token"))
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func TestGoogleSignInLinksExistingUser(t *testing.T) {
	srv := tokenInfoServer(t, `{"aud":"client-1","sub":"g-123","email":"Ada@example.com","email_verified":"true","name":"Ada L","picture":"https://img"}`, http.StatusOK)
	defer srv.Close()

	svc, users := newAuth(NewGoogleVerifier("client-1", srv.URL, zap.NewNop()))
	ctx := context.Background()
	reg, err := svc.Register(ctx, RegisterInput{Name: "Ada", Email: "ada@example.com", Password: "long-enough"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	sess, err := svc.Google(ctx, "cred")
	if err != nil {
		t.Fatalf("Google: %v", err)
	}
	if sess.User.ID != reg.User.ID {
		t.Errorf("google sign-in created a second user")
	}
	stored, _ := users.GetByID(ctx, reg.User.ID)
	if stored.GoogleID != "g-123" || stored.Avatar != "https://img" {
		t.Errorf("user not linked: %+v", stored)
	}
}

func TestGoogleSignInRejectsForeignAudience(t *testing.T) {
	cases := map[string]string{
		"audience":   `{"aud":"other","sub":"g","email":"a@example.com","email_verified":"true"}`,
		"unverified": `{"aud":"client-1","sub":"g","email":"a@example.com","email_verified":"false"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			srv := tokenInfoServer(t, body, http.StatusOK)
			defer srv.Close()
			svc, _ := newAuth(NewGoogleVerifier("client-1", srv.URL, zap.NewNop()))
			if _, err := svc.Google(context.Background(), "cred"); !errors.Is(err, model.ErrUnauthorized) {
				t.Errorf("err = %v, want ErrUnauthorized", err)
			}
		})
	}
}

func TestGoogleSignInCreatesUser(t *testing.T) {
	srv := tokenInfoServer(t, `{"aud":"client-1","sub":"g-9","email":"new@example.com","email_verified":"true"}`, http.StatusOK)
	defer srv.Close()
	svc, _ := newAuth(NewGoogleVerifier("client-1", srv.URL, zap.NewNop()))

	sess, err := svc.Google(context.Background(), "cred")
	if err != nil {
		t.Fatalf("Google: %v", err)
	}
	if sess.User.GoogleID != "g-9" || sess.User.Name != "new@example.com" || sess.Token == "" {
		t.Errorf("session = %+v", sess)
	}
}
