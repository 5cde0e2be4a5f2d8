package media

import (
	"context"
	"errors"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
	"github.com/angelmondragon/bazaar-backend/pkg/redis"
	"github.com/angelmondragon/bazaar-backend/pkg/storage/gcs"
)

// Expiry selects one of the two fixed signed URL lifetimes.
type Expiry string

const (
	ExpiryShort Expiry = "short"
	ExpiryLong  Expiry = "long"
)

// ParseExpiry defaults to long, which is what listings use.
func ParseExpiry(raw string) (Expiry, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(ExpiryLong):
		return ExpiryLong, nil
	case string(ExpiryShort):
		return ExpiryShort, nil
	}
	return "", errors.New("expiry must be short or long")
}

const (
	sourceCache       = "cache"
	sourceSigned      = "signed"
	sourcePlaceholder = "placeholder"

	cacheScope = "signed-url"
)

var defaultKeyPrefixes = []string{"products", "brands", "categories"}

// ObjectRef addresses one object in a bucket.
type ObjectRef struct {
	Bucket string
	Key    string
}

// Resolved is the outcome of a resolution. Placeholder is true when URL is the
// configured fallback image.
type Resolved struct {
	URL         string    `json:"url"`
	Placeholder bool      `json:"placeholder"`
	ExpiresAt   time.Time `json:"expiresAt,omitempty"`
}

type ResolverParams struct {
	Signer  gcs.Signer
	Cache   redis.Cache
	Metrics *metrics.DomainMetrics
	Logger  *logger.Logger
	GCS     config.GCSConfig
	Media   config.MediaConfig
}

// Resolver turns stored image references into time-limited signed URLs.
type Resolver struct {
	signer      gcs.Signer
	cache       redis.Cache
	metrics     *metrics.DomainMetrics
	logg        *logger.Logger
	bucket      string
	prefixes    map[string]struct{}
	publicBase  string
	placeholder string
	shortTTL    time.Duration
	longTTL     time.Duration
	cacheOn     bool
	cacheWait   time.Duration
	now         func() time.Time
}

func NewResolver(params ResolverParams) (*Resolver, error) {
	if params.Signer == nil {
		return nil, errors.New("signer required")
	}
	if params.GCS.BucketName == "" {
		return nil, errors.New("bucket name required")
	}
	shortTTL := params.GCS.ShortURLExpiry
	if shortTTL <= 0 {
		shortTTL = time.Hour
	}
	longTTL := params.GCS.LongURLExpiry
	if longTTL <= 0 {
		longTTL = 7 * 24 * time.Hour
	}
	wait := params.Media.SignTimeout
	if wait <= 0 {
		wait = 2 * time.Second
	}
	prefixes := map[string]struct{}{}
	for _, p := range params.Media.KeyPrefixes {
		if p = strings.Trim(strings.TrimSpace(p), "/"); p != "" {
			prefixes[p] = struct{}{}
		}
	}
	if len(prefixes) == 0 {
		for _, p := range defaultKeyPrefixes {
			prefixes[p] = struct{}{}
		}
	}
	return &Resolver{
		signer:      params.Signer,
		cache:       params.Cache,
		metrics:     params.Metrics,
		logg:        params.Logger,
		bucket:      params.GCS.BucketName,
		prefixes:    prefixes,
		publicBase:  strings.TrimRight(strings.TrimSpace(params.Media.PublicBaseURL), "/"),
		placeholder: params.Media.PlaceholderURL,
		shortTTL:    shortTTL,
		longTTL:     longTTL,
		cacheOn:     params.Cache != nil && params.Media.CacheSignedURL,
		cacheWait:   wait,
		now:         time.Now,
	}, nil
}

func (r *Resolver) ttl(expiry Expiry) time.Duration {
	if expiry == ExpiryShort {
		return r.shortTTL
	}
	return r.longTTL
}

// URL is the listing helper: it returns a signed URL or the placeholder.
func (r *Resolver) URL(ctx context.Context, raw string, expiry Expiry) string {
	return r.Resolve(ctx, raw, expiry).URL
}

// Resolve never fails: anything that cannot be normalized or signed yields
// the placeholder.
func (r *Resolver) Resolve(ctx context.Context, raw string, expiry Expiry) (out Resolved) {
	defer func() {
		if rec := recover(); rec != nil {
			r.warn(ctx, "signed url resolution panicked", raw)
			out = r.placeholderResult()
		}
	}()

	ref, ok := r.ObjectRef(raw)
	if !ok {
		return r.placeholderResult()
	}

	ttl := r.ttl(expiry)
	cacheKey := ""
	if r.cacheOn {
		cacheKey = r.cache.CacheKey(cacheScope, string(expiry)+":"+ref.Bucket+"/"+ref.Key)
		if cached, hit := r.cached(ctx, cacheKey); hit {
			r.metrics.SignedURL(sourceCache)
			return Resolved{URL: cached}
		}
	}

	signed, err := r.signer.SignedReadURL(ref.Bucket, ref.Key, ttl)
	if err != nil || signed == "" {
		r.warn(ctx, "signing failed", raw)
		return r.placeholderResult()
	}
	r.metrics.SignedURL(sourceSigned)

	if cacheKey != "" {
		cctx, cancel := context.WithTimeout(ctx, r.cacheWait)
		defer cancel()
		if err := r.cache.Set(cctx, cacheKey, signed, ttl/2); err != nil {
			r.warn(ctx, "signed url cache write failed", raw)
		}
	}
	return Resolved{URL: signed, ExpiresAt: r.now().UTC().Add(ttl)}
}

func (r *Resolver) cached(ctx context.Context, key string) (string, bool) {
	cctx, cancel := context.WithTimeout(ctx, r.cacheWait)
	defer cancel()
	val, hit, err := r.cache.GetCached(cctx, key)
	if err != nil || !hit || val == "" {
		return "", false
	}
	return val, true
}

func (r *Resolver) placeholderResult() Resolved {
	r.metrics.SignedURL(sourcePlaceholder)
	return Resolved{URL: r.placeholder, Placeholder: true}
}

func (r *Resolver) warn(ctx context.Context, msg, raw string) {
	if r.logg == nil {
		return
	}
	r.logg.Warn(r.logg.WithField(ctx, "image_ref", raw), msg)
}

// ObjectRef strips known URL forms down to a bucket and object key:
// gs://bucket/key, https://storage.googleapis.com/bucket/key,
// https://bucket.storage.googleapis.com/key, the configured public base URL
// and bare keys with or without leading slashes. Query strings and fragments
// are dropped. Foreign hosts, other buckets, keys outside the media prefixes
// and path traversal are rejected.
func (r *Resolver) ObjectRef(raw string) (ObjectRef, bool) {
	value := strings.TrimSpace(raw)
	if value == "" || strings.HasPrefix(value, "data:") {
		return ObjectRef{}, false
	}
	if i := strings.IndexAny(value, "?#"); i >= 0 {
		value = value[:i]
	}

	bucket := r.bucket
	lower := strings.ToLower(value)
	switch {
	case strings.HasPrefix(lower, "gs://"):
		bucket, value = splitBucket(value[len("gs://"):])
	case r.publicBase != "" && strings.HasPrefix(lower, strings.ToLower(r.publicBase)+"/"):
		value = value[len(r.publicBase)+1:]
	case strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://"):
		u, err := url.Parse(value)
		if err != nil {
			return ObjectRef{}, false
		}
		host := strings.ToLower(u.Host)
		switch {
		case host == "storage.googleapis.com" || host == "storage.cloud.google.com":
			bucket, value = splitBucket(strings.TrimLeft(u.EscapedPath(), "/"))
		case strings.HasSuffix(host, ".storage.googleapis.com"):
			bucket = strings.TrimSuffix(host, ".storage.googleapis.com")
			value = u.EscapedPath()
		default:
			return ObjectRef{}, false
		}
	}

	if unescaped, err := url.PathUnescape(value); err == nil {
		value = unescaped
	}
	value = strings.TrimLeft(value, "/")
	if bucket == "" || value == "" || strings.HasSuffix(value, "/") {
		return ObjectRef{}, false
	}
	for _, segment := range strings.Split(value, "/") {
		if segment == ".." || segment == "." {
			return ObjectRef{}, false
		}
	}
	if path.Clean("/"+value) != "/"+value {
		return ObjectRef{}, false
	}
	if !strings.EqualFold(bucket, r.bucket) {
		return ObjectRef{}, false
	}
	folder, _, _ := strings.Cut(value, "/")
	if _, ok := r.prefixes[folder]; !ok || folder == value {
		return ObjectRef{}, false
	}
	return ObjectRef{Bucket: r.bucket, Key: value}, true
}

func splitBucket(value string) (string, string) {
	bucket, key, ok := strings.Cut(value, "/")
	if !ok {
		return "", ""
	}
	return bucket, key
}
