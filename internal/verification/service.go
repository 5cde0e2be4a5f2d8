package verification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/mailer"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
	"github.com/angelmondragon/bazaar-backend/pkg/redis"
	"github.com/angelmondragon/bazaar-backend/pkg/security"
)

// CodeDigits is the length of an emailed verification code.
const CodeDigits = 6

var (
	ErrCodeNotFound = errors.New("verification code not found")
	ErrCodeUsed     = errors.New("verification code already used")
	ErrCodeExpired  = errors.New("verification code expired")
)

type cardLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.CardToken, error)
}

type profileLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
}

type ServiceParams struct {
	Repo      *Repository
	Cards     cardLookup
	Profiles  profileLookup
	Mailer    mailer.Sender
	Limiter   redis.RateLimiter
	Metrics   *metrics.DomainMetrics
	Logger    *logger.Logger
	Config    config.VerificationConfig
	RateLimit config.RateLimitConfig
}

// Service issues, checks and consumes one-time card edit codes.
type Service struct {
	repo      *Repository
	cards     cardLookup
	profiles  profileLookup
	mailer    mailer.Sender
	limiter   redis.RateLimiter
	metrics   *metrics.DomainMetrics
	logg      *logger.Logger
	cfg       config.VerificationConfig
	rateLimit config.RateLimitConfig
	ttl       time.Duration
	window    int
	now       func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("verification repository required")
	case params.Cards == nil:
		return nil, fmt.Errorf("card lookup required")
	case params.Profiles == nil:
		return nil, fmt.Errorf("profile lookup required")
	case params.Mailer == nil:
		return nil, fmt.Errorf("mailer required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	ttl := params.Config.CodeTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	window := params.Config.LookupWindow
	if window <= 0 {
		window = 5
	}
	return &Service{
		repo:      params.Repo,
		cards:     params.Cards,
		profiles:  params.Profiles,
		mailer:    params.Mailer,
		limiter:   params.Limiter,
		metrics:   params.Metrics,
		logg:      params.Logger,
		cfg:       params.Config,
		rateLimit: params.RateLimit,
		ttl:       ttl,
		window:    window,
		now:       time.Now,
	}, nil
}

// RequestResult tells the client when the emailed code stops working.
type RequestResult struct {
	ExpiresAt time.Time `json:"expiresAt"`
}

// RequestCode issues a fresh code for (user, card) and emails it.
func (s *Service) RequestCode(ctx context.Context, userID, cardID uuid.UUID) (*RequestResult, error) {
	card, err := s.ownedCard(ctx, userID, cardID)
	if err != nil {
		return nil, err
	}
	if err := s.allow(ctx, "verification:request:"+userID.String(), s.rateLimit.CodeRequestLimit, s.rateLimit.CodeRequestWindow, false); err != nil {
		s.metrics.VerificationOutcome("request", "rate_limited")
		return nil, err
	}

	profile, err := s.profiles.FindByID(ctx, userID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "profile not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load profile")
	}

	code, err := security.GenerateNumericCode(CodeDigits)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate code")
	}
	hash, err := security.HashCode(code, s.cfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash code")
	}

	now := s.now().UTC()
	record := &models.CardEditVerification{
		UserID:    userID,
		CardID:    cardID,
		CodeHash:  hash,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store verification code")
	}

	msg, err := mailer.VerificationCodeMessage(profile.Email, mailer.VerificationCodeData{
		Name:          profile.FullName,
		Code:          code,
		CardLast4:     card.Last4,
		ExpiryMinutes: int(s.ttl / time.Minute),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "render verification email")
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.metrics.VerificationOutcome("request", "mail_failed")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "send verification email")
	}

	s.metrics.VerificationOutcome("request", "sent")
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"card_id":         cardID.String(),
		"verification_id": record.ID.String(),
	}), "verification code sent")
	return &RequestResult{ExpiresAt: record.ExpiresAt}, nil
}

// Check confirms that code is live for (user, card) without consuming it.
// The code stays usable for the edit that follows.
func (s *Service) Check(ctx context.Context, userID, cardID uuid.UUID, code string) error {
	match, err := s.find(ctx, s.repo, userID, cardID, code)
	if err != nil {
		return err
	}
	if err := checkUsable(match, s.now().UTC()); err != nil {
		return s.reject(err)
	}
	s.metrics.VerificationOutcome("verify", "checked")
	return nil
}

// ConsumeTx consumes a code inside the caller's transaction so the guarded
// write and the consumption commit together.
func (s *Service) ConsumeTx(ctx context.Context, tx *gorm.DB, userID, cardID uuid.UUID, code string) error {
	return s.consume(ctx, s.repo.WithTx(tx), userID, cardID, code)
}

func (s *Service) consume(ctx context.Context, repo *Repository, userID, cardID uuid.UUID, code string) error {
	match, err := s.find(ctx, repo, userID, cardID, code)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	if err := checkUsable(match, now); err != nil {
		return s.reject(err)
	}

	ok, err := repo.Consume(ctx, match.ID, now)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "consume verification code")
	}
	if !ok {
		fresh, err := repo.FindByID(ctx, match.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload verification code")
		}
		if err := checkUsable(fresh, now); err != nil {
			return s.reject(err)
		}
		return s.reject(ErrCodeUsed)
	}
	s.metrics.VerificationOutcome("verify", "accepted")
	return nil
}

// find validates the code shape, counts the attempt and looks up the record.
func (s *Service) find(ctx context.Context, repo *Repository, userID, cardID uuid.UUID, code string) (*models.CardEditVerification, error) {
	if !security.IsNumericCode(code, CodeDigits) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "code must be 6 digits")
	}
	scope := fmt.Sprintf("verification:attempt:%s:%s", userID, cardID)
	if err := s.allow(ctx, scope, s.rateLimit.CodeAttemptLimit, s.rateLimit.CodeAttemptWindow, true); err != nil {
		s.metrics.VerificationOutcome("verify", "rate_limited")
		return nil, err
	}
	return s.match(ctx, repo, userID, cardID, code)
}

// match returns the most recent record for (user, card) whose hash matches code.
func (s *Service) match(ctx context.Context, repo *Repository, userID, cardID uuid.UUID, code string) (*models.CardEditVerification, error) {
	candidates, err := repo.Recent(ctx, userID, cardID, s.window)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load verification codes")
	}
	for i := range candidates {
		ok, err := security.VerifyCode(code, candidates[i].CodeHash)
		if err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "verification_id", candidates[i].ID.String()), "malformed verification hash")
			continue
		}
		if ok {
			return &candidates[i], nil
		}
	}
	s.metrics.VerificationOutcome("verify", "not_found")
	return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, ErrCodeNotFound, ErrCodeNotFound.Error())
}

func checkUsable(v *models.CardEditVerification, now time.Time) error {
	if v.Used {
		return ErrCodeUsed
	}
	if !now.Before(v.ExpiresAt) {
		return ErrCodeExpired
	}
	return nil
}

func (s *Service) reject(err error) error {
	switch {
	case errors.Is(err, ErrCodeUsed):
		s.metrics.VerificationOutcome("verify", "used")
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, err.Error())
	case errors.Is(err, ErrCodeExpired):
		s.metrics.VerificationOutcome("verify", "expired")
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verification failed")
}

func (s *Service) ownedCard(ctx context.Context, userID, cardID uuid.UUID) (*models.CardToken, error) {
	card, err := s.cards.FindByID(ctx, cardID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "card not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load card")
	}
	if card.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "card belongs to another user")
	}
	return card, nil
}

// allow applies a fixed-window limit. A missing limiter or a zero limit
// disables the check. When the limiter errors, failClosed selects between
// rejecting the call and letting it through with a warning.
func (s *Service) allow(ctx context.Context, scope string, limit int, window time.Duration, failClosed bool) error {
	if s.limiter == nil || limit <= 0 || window <= 0 {
		return nil
	}
	ok, _, err := s.limiter.FixedWindowAllow(ctx, scope, int64(limit), window)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "scope", scope), "rate limiter unavailable")
		if failClosed {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "verification temporarily unavailable")
		}
		return nil
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeRateLimit, "too many verification attempts")
	}
	return nil
}
