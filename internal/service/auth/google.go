package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"nexus/internal/model"
	"nexus/pkg/util"
)

const defaultTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"

// GoogleIdentity is the verified content of a Google ID token.
type GoogleIdentity struct {
	Subject string
	Email   string
	Name    string
	Picture string
}

// GoogleVerifier validates ID tokens with Google's tokeninfo endpoint.
type GoogleVerifier struct {
	clientID     string
	tokenInfoURL string
	httpClient   *http.Client
	logger       *zap.Logger
}

func NewGoogleVerifier(clientID, tokenInfoURL string, logger *zap.Logger) *GoogleVerifier {
	if tokenInfoURL == "" {
		tokenInfoURL = defaultTokenInfoURL
	}
	return &GoogleVerifier{
		clientID:     clientID,
		tokenInfoURL: tokenInfoURL,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		logger:       logger,
	}
}

// tokeninfo returns every claim as a string, including email_verified.
type tokenInfo struct {
	Aud           string `json:"aud"`
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified string `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

func (v *GoogleVerifier) Verify(ctx context.Context, credential string) (*GoogleIdentity, error) {
	if v.clientID == "" {
		return nil, fmt.Errorf("google client id is not configured: %w", model.ErrUnauthorized)
	}

	endpoint := v.tokenInfoURL + "?id_token=" + url.QueryEscape(credential)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("google tokeninfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		statusErr := &util.StatusError{Service: "google", StatusCode: resp.StatusCode, Body: string(body)}
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("google tokeninfo: %w", statusErr)
		}
		v.logger.Info("Google rejected ID token", zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("invalid google credential: %w", model.ErrUnauthorized)
	}

	var info tokenInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode tokeninfo: %w", err)
	}
	if info.Aud != v.clientID {
		return nil, fmt.Errorf("google credential issued for another client: %w", model.ErrUnauthorized)
	}
	if !strings.EqualFold(info.EmailVerified, "true") || info.Email == "" {
		return nil, fmt.Errorf("google email is not verified: %w", model.ErrUnauthorized)
	}
	return &GoogleIdentity{
		Subject: info.Sub,
		Email:   info.Email,
		Name:    info.Name,
		Picture: info.Picture,
	}, nil
}
