package gcs

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenEndpoint = "https://oauth2.googleapis.com/token"
	scope         = "https://www.googleapis.com/auth/devstorage.read_write"
	metadataToken = "http://metadata.google.internal/computeMetadata/v1/instance/service-accounts/default/token"
	jwtBearer     = "urn:ietf:params:oauth:grant-type:jwt-bearer"

	// refresh this long before the token expires
	refreshSkew = time.Minute
)

type fetchFunc func(context.Context) (string, time.Time, error)

// tokenSource caches an OAuth access token until it nears expiry.
type tokenSource struct {
	mu     sync.Mutex
	token  string
	expiry time.Time
	fetch  fetchFunc
}

func (t *tokenSource) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token != "" && time.Until(t.expiry) > refreshSkew {
		return t.token, nil
	}
	token, expiry, err := t.fetch(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch gcs access token: %w", err)
	}
	t.token, t.expiry = token, expiry
	return token, nil
}

type serviceAccount struct {
	clientEmail string
	privateKey  *rsa.PrivateKey
	tokenURI    string
}

func parseServiceAccount(jsonCreds string) (*serviceAccount, error) {
	var creds struct {
		ClientEmail string `json:"client_email"`
		PrivateKey  string `json:"private_key"`
		TokenURI    string `json:"token_uri"`
	}
	if err := json.Unmarshal([]byte(jsonCreds), &creds); err != nil {
		return nil, fmt.Errorf("parsing service account credentials: %w", err)
	}
	if creds.ClientEmail == "" || creds.PrivateKey == "" {
		return nil, errors.New("service account credentials need client_email and private_key")
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(creds.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("parsing service account key: %w", err)
	}
	account := &serviceAccount{clientEmail: creds.ClientEmail, privateKey: key, tokenURI: creds.TokenURI}
	if account.tokenURI == "" {
		account.tokenURI = tokenEndpoint
	}
	return account, nil
}

// assertion is the signed JWT exchanged for an access token.
func (a *serviceAccount) assertion(now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"iss":   a.clientEmail,
		"scope": scope,
		"aud":   a.tokenURI,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(a.privateKey)
}

func newServiceAccountTokenSource(client *http.Client, account *serviceAccount) *tokenSource {
	return &tokenSource{fetch: func(ctx context.Context) (string, time.Time, error) {
		signed, err := account.assertion(time.Now())
		if err != nil {
			return "", time.Time{}, err
		}
		form := url.Values{"grant_type": {jwtBearer}, "assertion": {signed}}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, account.tokenURI, strings.NewReader(form.Encode()))
		if err != nil {
			return "", time.Time{}, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return exchangeToken(client, req)
	}}
}

// newMetadataTokenSource reads the runtime service account token, as on
// Cloud Run or GCE.
func newMetadataTokenSource(client *http.Client) *tokenSource {
	return &tokenSource{fetch: func(ctx context.Context) (string, time.Time, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataToken, nil)
		if err != nil {
			return "", time.Time{}, err
		}
		req.Header.Set("Metadata-Flavor", "Google")
		return exchangeToken(client, req)
	}}
}

func exchangeToken(client *http.Client, req *http.Request) (string, time.Time, error) {
	resp, err := client.Do(req)
	if err != nil {
		return "", time.Time{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", time.Time{}, fmt.Errorf("token request returned %s", resp.Status)
	}
	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", time.Time{}, err
	}
	if body.AccessToken == "" {
		return "", time.Time{}, errors.New("token response missing access_token")
	}
	return body.AccessToken, time.Now().Add(time.Duration(body.ExpiresIn) * time.Second), nil
}

// signSHA256 produces the RSA-SHA256 signature used by V4 signed URLs.
func signSHA256(payload string, key *rsa.PrivateKey) ([]byte, error) {
	return jwt.SigningMethodRS256.Sign(payload, key)
}
