package cards

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/IlyasAtabaev731/credx-wallet/internal/domain/models"
	"github.com/IlyasAtabaev731/credx-wallet/internal/lib/card"
	"github.com/IlyasAtabaev731/credx-wallet/internal/storage"
	"github.com/go-playground/validator/v10"
)

var ErrInvalidInput = errors.New("all card fields are required")

type Storage interface {
	SaveCard(ctx context.Context, c models.Card) (models.Card, bool, error)
	Card(ctx context.Context, userID int64) (models.Card, error)
	DeleteCard(ctx context.Context, userID int64) error
}

type Input struct {
	Number      string `validate:"required,min=12,max=19,numeric"`
	HolderName  string `validate:"required"`
	ExpiryMonth string `validate:"required"`
	ExpiryYear  string `validate:"required"`
	Background  string
}

type Cards struct {
	log      *slog.Logger
	storage  Storage
	validate *validator.Validate
}

func New(log *slog.Logger, storage Storage) *Cards {
	return &Cards{
		log:      log,
		storage:  storage,
		validate: validator.New(),
	}
}

// Card returns the user's card with a masked number, or nil when none is saved.
func (c *Cards) Card(ctx context.Context, userID int64) (*models.Card, error) {
	const op = "cards.Card"

	saved, err := c.storage.Card(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrCardNotFound) {
			return nil, nil
		}
		c.log.Error("failed to get card", slog.String("op", op), slog.Int64("uid", userID), slog.String("error", err.Error()))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	saved.Number = card.Mask(saved.Number)

	return &saved, nil
}

// Save stores the user's only card, replacing any previous one. The number is
// kept digits-only and the network is derived from it.
func (c *Cards) Save(ctx context.Context, userID int64, in Input) (models.Card, bool, error) {
	const op = "cards.Save"

	in.Number = card.Normalize(in.Number)
	in.HolderName = strings.TrimSpace(in.HolderName)
	in.ExpiryMonth = strings.TrimSpace(in.ExpiryMonth)
	in.ExpiryYear = strings.TrimSpace(in.ExpiryYear)

	if err := c.validate.Struct(in); err != nil {
		return models.Card{}, false, ErrInvalidInput
	}

	saved, created, err := c.storage.SaveCard(ctx, models.Card{
		UserID:      userID,
		Number:      in.Number,
		HolderName:  in.HolderName,
		ExpiryMonth: in.ExpiryMonth,
		ExpiryYear:  in.ExpiryYear,
		Background:  in.Background,
		Network:     card.Network(in.Number),
	})
	if err != nil {
		c.log.Error("failed to save card", slog.String("op", op), slog.Int64("uid", userID), slog.String("error", err.Error()))
		return models.Card{}, false, fmt.Errorf("%s: %w", op, err)
	}

	c.log.Info("card saved", slog.Int64("uid", userID), slog.Bool("created", created), slog.String("network", saved.Network))

	saved.Number = card.Mask(saved.Number)

	return saved, created, nil
}

// Delete removes the user's card. Deleting a missing card is not an error.
func (c *Cards) Delete(ctx context.Context, userID int64) error {
	const op = "cards.Delete"

	if err := c.storage.DeleteCard(ctx, userID); err != nil {
		c.log.Error("failed to delete card", slog.String("op", op), slog.Int64("uid", userID), slog.String("error", err.Error()))
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
