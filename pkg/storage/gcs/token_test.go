package gcs

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestServiceAccountAssertion(t *testing.T) {
	t.Parallel()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	creds, _ := json.Marshal(map[string]string{
		"client_email": "uploader@bazaar.iam.gserviceaccount.com",
		"private_key":  string(keyPEM),
	})

	account, err := parseServiceAccount(string(creds))
	if err != nil {
		t.Fatalf("parseServiceAccount: %v", err)
	}
	if account.tokenURI != tokenEndpoint {
		t.Fatalf("expected default token uri, got %q", account.tokenURI)
	}

	signed, err := account.assertion(time.Now())
	if err != nil {
		t.Fatalf("assertion: %v", err)
	}
	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(signed, claims, func(*jwt.Token) (any, error) { return &key.PublicKey, nil },
		jwt.WithValidMethods([]string{"RS256"}), jwt.WithAudience(tokenEndpoint))
	if err != nil {
		t.Fatalf("assertion did not verify: %v", err)
	}
	if claims["iss"] != "uploader@bazaar.iam.gserviceaccount.com" || claims["scope"] != scope {
		t.Fatalf("unexpected claims %v", claims)
	}
}

func TestParseServiceAccountRejectsIncompleteCredentials(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{`not json`, `{"client_email":"a@b"}`, `{"client_email":"a@b","private_key":"garbage"}`} {
		if _, err := parseServiceAccount(raw); err == nil {
			t.Fatalf("expected error for %s", raw)
		}
	}
}
