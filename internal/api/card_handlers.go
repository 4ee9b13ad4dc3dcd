package api

import (
	"net/http"
	"time"

	"github.com/IlyasAtabaev731/credx-wallet/internal/domain/models"
	"github.com/IlyasAtabaev731/credx-wallet/internal/services/cards"
)

// SaveCardRequest carries the card form. CardType is accepted for
// compatibility but the network is always derived from the number.
type SaveCardRequest struct {
	CardNumber string `json:"cardNumber" validate:"required"`
	CardName   string `json:"cardName" validate:"required"`
	CardMonth  string `json:"cardMonth" validate:"required"`
	CardYear   string `json:"cardYear" validate:"required"`
	CardBg     string `json:"cardBg"`
	CardType   string `json:"cardType"`
}

type cardResponse struct {
	ID         int64     `json:"id"`
	CardNumber string    `json:"cardNumber"`
	CardName   string    `json:"cardName"`
	CardMonth  string    `json:"cardMonth"`
	CardYear   string    `json:"cardYear"`
	CardBg     string    `json:"cardBg,omitempty"`
	CardType   string    `json:"cardType"`
	CreatedAt  time.Time `json:"createdAt"`
}

func newCardResponse(c *models.Card) *cardResponse {
	if c == nil {
		return nil
	}
	return &cardResponse{
		ID:         c.ID,
		CardNumber: c.Number,
		CardName:   c.HolderName,
		CardMonth:  c.ExpiryMonth,
		CardYear:   c.ExpiryYear,
		CardBg:     c.Background,
		CardType:   c.Network,
		CreatedAt:  c.CreatedAt,
	}
}

type CardResponse struct {
	Success bool          `json:"success"`
	Card    *cardResponse `json:"card"`
}

func (s *APIServer) getCardHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		card, err := s.cards.Card(r.Context(), identityFrom(r.Context()).UserID)
		if err != nil {
			s.respondServiceError(w, r, err)
			return
		}

		respondJSON(w, http.StatusOK, CardResponse{Success: true, Card: newCardResponse(card)})
	}
}

func (s *APIServer) saveCardHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SaveCardRequest
		if err := decodeBody(w, r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := s.validate.Struct(req); err != nil {
			respondError(w, http.StatusBadRequest, cards.ErrInvalidInput.Error())
			return
		}

		_, created, err := s.cards.Save(r.Context(), identityFrom(r.Context()).UserID, cards.Input{
			Number:      req.CardNumber,
			HolderName:  req.CardName,
			ExpiryMonth: req.CardMonth,
			ExpiryYear:  req.CardYear,
			Background:  req.CardBg,
		})
		if err != nil {
			s.respondServiceError(w, r, err)
			return
		}

		msg := "Card updated successfully"
		if created {
			msg = "Card saved successfully"
		}
		respondJSON(w, http.StatusOK, messageResponse{Success: true, Message: msg})
	}
}

func (s *APIServer) deleteCardHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.cards.Delete(r.Context(), identityFrom(r.Context()).UserID); err != nil {
			s.respondServiceError(w, r, err)
			return
		}

		respondJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Card deleted successfully"})
	}
}
