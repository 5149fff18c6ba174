package github

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"nexus/internal/model"
	"nexus/pkg/util"
)

// ErrAppNotConfigured is returned when no App id or private key is set.
var ErrAppNotConfigured = fmt.Errorf("github app is not configured: %w", model.ErrUnavailable)

// AppAuth mints App JWTs and exchanges them for installation tokens.
type AppAuth struct {
	appID      string
	key        *rsa.PrivateKey
	baseURL    string
	httpClient *http.Client
	cache      TokenCache
	logger     *zap.Logger
	now        func() time.Time
}

// LoadPrivateKey reads an RSA key in PEM form.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read github private key: %w", err)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pem)
	if err != nil {
		return nil, fmt.Errorf("parse github private key: %w", err)
	}
	return key, nil
}

func NewAppAuth(appID string, key *rsa.PrivateKey, baseURL string, cache TokenCache, logger *zap.Logger) *AppAuth {
	if cache == nil {
		cache = NewMemoryTokenCache()
	}
	return &AppAuth{
		appID:   appID,
		key:     key,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		cache:  cache,
		logger: logger,
		now:    time.Now,
	}
}

func (a *AppAuth) Configured() bool {
	return a != nil && a.appID != "" && a.key != nil
}

// AppJWT builds the RS256 App assertion. iat is backdated a minute to
// tolerate clock drift; GitHub caps exp at ten minutes.
func (a *AppAuth) AppJWT() (string, error) {
	if !a.Configured() {
		return "", ErrAppNotConfigured
	}
	now := a.now()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now.Add(-60 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
		Issuer:    a.appID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(a.key)
	if err != nil {
		return "", fmt.Errorf("sign app jwt: %w", err)
	}
	return signed, nil
}

// Token returns a usable installation token, from cache when possible.
func (a *AppAuth) Token(ctx context.Context, installationID int64) (string, error) {
	if tok, ok := a.cache.Get(ctx, installationID); ok && tok.Usable(a.now()) {
		return tok.Token, nil
	}

	tok, err := a.exchange(ctx, installationID)
	if err != nil {
		return "", err
	}
	a.cache.Set(ctx, installationID, tok)
	a.logger.Debug("Installation token refreshed",
		zap.Int64("installation_id", installationID),
		zap.Time("expires_at", tok.ExpiresAt),
	)
	return tok.Token, nil
}

// Invalidate drops a cached token, e.g. after the API rejected it.
func (a *AppAuth) Invalidate(ctx context.Context, installationID int64) {
	a.cache.Delete(ctx, installationID)
}

func (a *AppAuth) exchange(ctx context.Context, installationID int64) (InstallationToken, error) {
	assertion, err := a.AppJWT()
	if err != nil {
		return InstallationToken{}, err
	}

	url := a.baseURL + "/app/installations/" + strconv.FormatInt(installationID, 10) + "/access_tokens"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return InstallationToken{}, err
	}
	req.Header.Set("Authorization", "Bearer "+assertion)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return InstallationToken{}, fmt.Errorf("installation token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return InstallationToken{}, fmt.Errorf("installation token for %d: %w", installationID,
			&util.StatusError{Service: "github", StatusCode: resp.StatusCode, Body: string(body)})
	}

	var tok InstallationToken
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return InstallationToken{}, fmt.Errorf("decode installation token: %w", err)
	}
	if tok.Token == "" {
		return InstallationToken{}, fmt.Errorf("installation token for %d: empty token", installationID)
	}
	return tok, nil
}
