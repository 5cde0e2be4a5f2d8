package gcs

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// SignedReadURL returns a V2 signed GET URL for bucket/object valid for ttl.
func (c *Client) SignedReadURL(bucket, object string, ttl time.Duration) (string, error) {
	return c.signV2("GET", bucket, object, "", ttl)
}

// SignedURL returns a V2 signed PUT URL that accepts uploads of contentType.
func (c *Client) SignedURL(bucket, object, contentType string, ttl time.Duration) (string, error) {
	return c.signV2("PUT", bucket, object, contentType, ttl)
}

func (c *Client) signV2(method, bucket, object, contentType string, ttl time.Duration) (string, error) {
	if c == nil {
		return "", errors.New("gcs client not initialized")
	}
	if bucket == "" {
		bucket = c.defaultBucket
	}
	if bucket == "" {
		return "", errors.New("bucket is required")
	}
	object = strings.TrimLeft(object, "/")
	if object == "" {
		return "", errors.New("object name is required")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("ttl must be positive, got %s", ttl)
	}
	if c.serviceAccount == nil || c.serviceAccount.privateKey == nil {
		return "", ErrSigningUnavailable
	}

	now := time.Now
	if c.now != nil {
		now = c.now
	}
	expires := strconv.FormatInt(now().Add(ttl).Unix(), 10)
	resource := "/" + bucket + "/" + object

	stringToSign := strings.Join([]string{method, "", contentType, expires, resource}, "\n")
	sig, err := signSHA256(stringToSign, c.serviceAccount.privateKey)
	if err != nil {
		return "", fmt.Errorf("signing url: %w", err)
	}

	q := url.Values{}
	q.Set("GoogleAccessId", c.serviceAccount.clientEmail)
	q.Set("Expires", expires)
	q.Set("Signature", base64.StdEncoding.EncodeToString(sig))

	u := url.URL{
		Scheme:   "https",
		Host:     publicHost,
		Path:     resource,
		RawQuery: q.Encode(),
	}
	return u.String(), nil
}
