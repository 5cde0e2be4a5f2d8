package verification

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bazaar-backend/internal/cards"
	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/dbtest"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/mailer"
)

var codePattern = regexp.MustCompile(`\b\d{6}\b`)

type captureMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
}

func (m *captureMailer) Send(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *captureMailer) lastCode(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent)
	code := codePattern.FindString(m.sent[len(m.sent)-1].Text)
	require.NotEmpty(t, code)
	return code
}

type countingLimiter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func (l *countingLimiter) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts[scope]++
	return l.counts[scope] <= limit, l.counts[scope], nil
}

type brokenLimiter struct{}

func (brokenLimiter) FixedWindowAllow(context.Context, string, int64, time.Duration) (bool, int64, error) {
	return false, 0, errors.New("redis: connection refused")
}

type fixture struct {
	svc    *Service
	client *db.Client
	mail   *captureMailer
	user   uuid.UUID
	card   uuid.UUID
}

type cardRepo struct{ client *db.Client }

func (c cardRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.CardToken, error) {
	var card models.CardToken
	if err := c.client.DB().WithContext(ctx).First(&card, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &card, nil
}

type profileRepo struct{ client *db.Client }

func (p profileRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	var profile models.Profile
	if err := p.client.DB().WithContext(ctx).First(&profile, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

func newFixture(t *testing.T, rate config.RateLimitConfig) *fixture {
	t.Helper()
	client := dbtest.Open(t)

	profile := models.Profile{Email: "buyer@example.com", FullName: "Ana Buyer"}
	require.NoError(t, client.DB().Create(&profile).Error)
	card := models.CardToken{
		UserID:       profile.ID,
		GatewayToken: "cnon:card",
		Brand:        "VISA",
		Last4:        "4242",
		HolderName:   "Ana Buyer",
		ExpiryMonth:  12,
		ExpiryYear:   2030,
	}
	require.NoError(t, client.DB().Create(&card).Error)

	mail := &captureMailer{}
	svc, err := NewService(ServiceParams{
		Repo:     NewRepository(client.DB()),
		Cards:    cardRepo{client: client},
		Profiles: profileRepo{client: client},
		Mailer:   mail,
		Limiter:  &countingLimiter{counts: map[string]int64{}},
		Logger:   logger.New(logger.Options{ServiceName: "verification-test"}),
		Config: config.VerificationConfig{
			CodeTTL:      10 * time.Minute,
			HashMemoryKB: 8,
			HashTime:     1,
			HashParallel: 1,
			HashSaltLen:  8,
			HashKeyLen:   16,
			LookupWindow: 5,
		},
		RateLimit: rate,
	})
	require.NoError(t, err)
	return &fixture{svc: svc, client: client, mail: mail, user: profile.ID, card: card.ID}
}

func TestCodeIsAcceptedOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.RateLimitConfig{})

	res, err := f.svc.RequestCode(ctx, f.user, f.card)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), res.ExpiresAt, 5*time.Second)

	code := f.mail.lastCode(t)
	assert.Equal(t, "buyer@example.com", f.mail.sent[0].To)

	require.NoError(t, f.svc.ConsumeTx(ctx, f.client.DB(), f.user, f.card, code))

	err = f.svc.ConsumeTx(ctx, f.client.DB(), f.user, f.card, code)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.CodeOf(err))
	assert.ErrorIs(t, err, ErrCodeUsed)

	err = f.svc.Check(ctx, f.user, f.card, code)
	assert.ErrorIs(t, err, ErrCodeUsed)

	var stored models.CardEditVerification
	require.NoError(t, f.client.DB().First(&stored).Error)
	assert.True(t, stored.Used)
	assert.NotNil(t, stored.UsedAt)
}

func TestConfirmLeavesCodeForEdit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.RateLimitConfig{})

	_, err := f.svc.RequestCode(ctx, f.user, f.card)
	require.NoError(t, err)
	code := f.mail.lastCode(t)

	require.NoError(t, f.svc.Check(ctx, f.user, f.card, code))
	require.NoError(t, f.svc.Check(ctx, f.user, f.card, code))

	cardSvc, err := cards.NewService(cards.ServiceParams{
		Repo:     cards.NewRepository(f.client.DB()),
		Tx:       f.client,
		Verifier: f.svc,
	})
	require.NoError(t, err)
	holder := "Ana B. Buyer"
	updated, err := cardSvc.Edit(ctx, f.user, f.card, cards.EditCardInput{Code: code, HolderName: &holder})
	require.NoError(t, err)
	assert.Equal(t, holder, updated.HolderName)

	_, err = cardSvc.Edit(ctx, f.user, f.card, cards.EditCardInput{Code: code, HolderName: &holder})
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.CodeOf(err))
	assert.ErrorIs(t, f.svc.Check(ctx, f.user, f.card, code), ErrCodeUsed)
}

func TestExpiredCodeIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.RateLimitConfig{})

	_, err := f.svc.RequestCode(ctx, f.user, f.card)
	require.NoError(t, err)
	code := f.mail.lastCode(t)

	f.svc.now = func() time.Time { return time.Now().Add(11 * time.Minute) }
	err = f.svc.Check(ctx, f.user, f.card, code)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
	assert.ErrorIs(t, err, ErrCodeExpired)
}

func TestUnknownCodeIsNotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.RateLimitConfig{})

	_, err := f.svc.RequestCode(ctx, f.user, f.card)
	require.NoError(t, err)
	code := f.mail.lastCode(t)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	err = f.svc.Check(ctx, f.user, f.card, wrong)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))

	err = f.svc.Check(ctx, f.user, f.card, "12ab56")
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	err = f.svc.Check(ctx, uuid.New(), f.card, code)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
}

func TestRequestCodeChecksOwnership(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.RateLimitConfig{})

	_, err := f.svc.RequestCode(ctx, uuid.New(), f.card)
	assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.CodeOf(err))

	_, err = f.svc.RequestCode(ctx, f.user, uuid.New())
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
	assert.Empty(t, f.mail.sent)
}

func TestRequestCodeIsRateLimited(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.RateLimitConfig{CodeRequestLimit: 2, CodeRequestWindow: time.Minute})

	for i := 0; i < 2; i++ {
		_, err := f.svc.RequestCode(ctx, f.user, f.card)
		require.NoError(t, err)
	}
	_, err := f.svc.RequestCode(ctx, f.user, f.card)
	assert.Equal(t, pkgerrors.CodeRateLimit, pkgerrors.CodeOf(err))
	assert.Len(t, f.mail.sent, 2)
}

func TestAttemptLimiterFailsClosed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.RateLimitConfig{
		CodeRequestLimit:  5,
		CodeRequestWindow: time.Minute,
		CodeAttemptLimit:  5,
		CodeAttemptWindow: time.Minute,
	})
	f.svc.limiter = brokenLimiter{}

	_, err := f.svc.RequestCode(ctx, f.user, f.card)
	require.NoError(t, err)
	code := f.mail.lastCode(t)

	err = f.svc.Check(ctx, f.user, f.card, code)
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.CodeOf(err))
	err = f.svc.ConsumeTx(ctx, f.client.DB(), f.user, f.card, code)
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.CodeOf(err))

	var stored models.CardEditVerification
	require.NoError(t, f.client.DB().First(&stored).Error)
	assert.False(t, stored.Used)
}

func TestAttemptsAreRateLimited(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.RateLimitConfig{CodeAttemptLimit: 3, CodeAttemptWindow: time.Minute})

	_, err := f.svc.RequestCode(ctx, f.user, f.card)
	require.NoError(t, err)
	code := f.mail.lastCode(t)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	for i := 0; i < 3; i++ {
		assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(f.svc.Check(ctx, f.user, f.card, wrong)))
	}
	assert.Equal(t, pkgerrors.CodeRateLimit, pkgerrors.CodeOf(f.svc.Check(ctx, f.user, f.card, code)))
}

func TestOlderOutstandingCodeStillWorks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.RateLimitConfig{})

	_, err := f.svc.RequestCode(ctx, f.user, f.card)
	require.NoError(t, err)
	first := f.mail.lastCode(t)
	_, err = f.svc.RequestCode(ctx, f.user, f.card)
	require.NoError(t, err)

	require.NoError(t, f.svc.ConsumeTx(ctx, f.client.DB(), f.user, f.card, first))
}

func TestDeleteStaleKeepsLiveCodes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.RateLimitConfig{})
	repo := NewRepository(f.client.DB())
	now := time.Now().UTC()
	old := now.Add(-48 * time.Hour)

	rows := []models.CardEditVerification{
		{UserID: f.user, CardID: f.card, CodeHash: "x", ExpiresAt: old.Add(10 * time.Minute), CreatedAt: old},
		{UserID: f.user, CardID: f.card, CodeHash: "y", ExpiresAt: now.Add(10 * time.Minute), CreatedAt: now},
	}
	for i := range rows {
		require.NoError(t, repo.Create(ctx, &rows[i]))
	}

	deleted, err := repo.DeleteStale(ctx, nil, now.Add(-24*time.Hour), now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var remaining int64
	require.NoError(t, f.client.DB().Model(&models.CardEditVerification{}).Count(&remaining).Error)
	assert.Equal(t, int64(1), remaining)
}
