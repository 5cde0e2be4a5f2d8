package cards

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/security"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

// Service manages the caller's stored card tokens.
type Service interface {
	List(ctx context.Context, userID uuid.UUID) ([]models.CardToken, error)
	Add(ctx context.Context, userID uuid.UUID, input AddCardInput) (*models.CardToken, error)
	Delete(ctx context.Context, userID, cardID uuid.UUID) error
	SetDefault(ctx context.Context, userID, cardID uuid.UUID) (*models.CardToken, error)
	Edit(ctx context.Context, userID, cardID uuid.UUID, input EditCardInput) (*models.CardToken, error)
}

// AddCardInput carries a card already tokenized by the payment gateway's
// client SDK.
type AddCardInput struct {
	GatewayToken string  `json:"gatewayToken" validate:"required,max=255"`
	Brand        string  `json:"brand" validate:"required,max=32"`
	Last4        string  `json:"last4" validate:"required,len=4,numeric"`
	HolderName   string  `json:"holderName" validate:"required,max=120"`
	ExpiryMonth  int     `json:"expiryMonth" validate:"required,min=1,max=12"`
	ExpiryYear   int     `json:"expiryYear" validate:"required,min=2000,max=2100"`
	Alias        *string `json:"alias" validate:"omitempty,max=60"`
	IsDefault    bool    `json:"isDefault"`
}

// EditCardInput updates display metadata. Code is the emailed verification
// code and is consumed by the edit.
type EditCardInput struct {
	Code        string                 `json:"code" validate:"required,len=6,numeric"`
	Alias       types.Nullable[string] `json:"alias"`
	HolderName  *string                `json:"holderName" validate:"omitempty,min=1,max=120"`
	ExpiryMonth *int                   `json:"expiryMonth" validate:"omitempty,min=1,max=12"`
	ExpiryYear  *int                   `json:"expiryYear" validate:"omitempty,min=2000,max=2100"`
}

type codeConsumer interface {
	ConsumeTx(ctx context.Context, tx *gorm.DB, userID, cardID uuid.UUID, code string) error
}

type ServiceParams struct {
	Repo     *Repository
	Tx       db.TxRunner
	Verifier codeConsumer
}

type service struct {
	repo     *Repository
	tx       db.TxRunner
	verifier codeConsumer
	now      func() time.Time
}

func NewService(params ServiceParams) (*service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "card repository required")
	}
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Verifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "verification service required")
	}
	return &service{repo: params.Repo, tx: params.Tx, verifier: params.Verifier, now: time.Now}, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID) ([]models.CardToken, error) {
	cards, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list cards")
	}
	return cards, nil
}

// Add stores a card. The first card a user adds becomes the default.
func (s *service) Add(ctx context.Context, userID uuid.UUID, input AddCardInput) (*models.CardToken, error) {
	token := strings.TrimSpace(input.GatewayToken)
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gatewayToken is required")
	}
	if !security.IsNumericCode(input.Last4, 4) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "last4 must be 4 digits")
	}
	if err := s.checkExpiry(input.ExpiryMonth, input.ExpiryYear); err != nil {
		return nil, err
	}

	card := &models.CardToken{
		UserID:       userID,
		GatewayToken: token,
		Brand:        strings.ToUpper(strings.TrimSpace(input.Brand)),
		Last4:        input.Last4,
		HolderName:   strings.TrimSpace(input.HolderName),
		ExpiryMonth:  input.ExpiryMonth,
		ExpiryYear:   input.ExpiryYear,
		Alias:        trimmedPtr(input.Alias),
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		count, err := repo.CountByUser(ctx, userID)
		if err != nil {
			return err
		}
		card.IsDefault = count == 0 || input.IsDefault
		if card.IsDefault && count > 0 {
			if err := repo.ClearDefault(ctx, userID); err != nil {
				return err
			}
		}
		return repo.Create(ctx, card)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store card")
	}
	return card, nil
}

// Delete removes a card the caller owns. When the default card goes away the
// newest remaining card is promoted.
func (s *service) Delete(ctx context.Context, userID, cardID uuid.UUID) error {
	card, err := s.owned(ctx, userID, cardID)
	if err != nil {
		return err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Delete(ctx, card.ID); err != nil {
			return err
		}
		if !card.IsDefault {
			return nil
		}
		next, err := repo.Newest(ctx, userID)
		if err != nil {
			if db.IsNotFound(err) {
				return nil
			}
			return err
		}
		return repo.MarkDefault(ctx, next.ID)
	})
	if err != nil {
		if db.IsNotFound(err) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "card not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete card")
	}
	return nil
}

// SetDefault unsets every default and marks one card inside a single
// transaction so the user never ends up with zero or two defaults.
func (s *service) SetDefault(ctx context.Context, userID, cardID uuid.UUID) (*models.CardToken, error) {
	card, err := s.owned(ctx, userID, cardID)
	if err != nil {
		return nil, err
	}
	if card.IsDefault {
		return card, nil
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.ClearDefault(ctx, userID); err != nil {
			return err
		}
		return repo.MarkDefault(ctx, card.ID)
	})
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "card not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "set default card")
	}
	card.IsDefault = true
	return card, nil
}

// Edit applies metadata changes after consuming the verification code in the
// same transaction. A rejected code leaves the card untouched.
func (s *service) Edit(ctx context.Context, userID, cardID uuid.UUID, input EditCardInput) (*models.CardToken, error) {
	card, err := s.owned(ctx, userID, cardID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Alias.Set {
		updates["alias"] = trimmedPtr(input.Alias.Value)
	}
	if input.HolderName != nil {
		name := strings.TrimSpace(*input.HolderName)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "holderName cannot be blank")
		}
		updates["holder_name"] = name
	}
	if input.ExpiryMonth != nil || input.ExpiryYear != nil {
		month, year := card.ExpiryMonth, card.ExpiryYear
		if input.ExpiryMonth != nil {
			month = *input.ExpiryMonth
		}
		if input.ExpiryYear != nil {
			year = *input.ExpiryYear
		}
		if err := s.checkExpiry(month, year); err != nil {
			return nil, err
		}
		updates["expiry_month"] = month
		updates["expiry_year"] = year
	}
	if len(updates) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no card fields to update")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.verifier.ConsumeTx(ctx, tx, userID, cardID, input.Code); err != nil {
			return err
		}
		return s.repo.WithTx(tx).Update(ctx, card.ID, updates)
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "card not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update card")
	}

	updated, err := s.repo.FindByID(ctx, card.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload card")
	}
	return updated, nil
}

// owned loads a card and rejects callers that do not own it.
func (s *service) owned(ctx context.Context, userID, cardID uuid.UUID) (*models.CardToken, error) {
	card, err := s.repo.FindByID(ctx, cardID)
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

func (s *service) checkExpiry(month, year int) error {
	if month < 1 || month > 12 {
		return pkgerrors.New(pkgerrors.CodeValidation, "expiryMonth must be between 1 and 12")
	}
	now := s.now().UTC()
	if year < now.Year() || (year == now.Year() && month < int(now.Month())) {
		return pkgerrors.New(pkgerrors.CodeValidation, "card is expired")
	}
	return nil
}

func trimmedPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
