package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/IlyasAtabaev731/credx-wallet/internal/services/auth"
	"github.com/IlyasAtabaev731/credx-wallet/internal/services/cards"
	"github.com/IlyasAtabaev731/credx-wallet/internal/services/wallet"
	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Success: false, Error: msg})
}

// internalError logs err and answers with a generic 500.
func (s *APIServer) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	s.logger.Error(msg,
		slog.String("request_id", requestIDFrom(r.Context())),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	respondError(w, http.StatusInternalServerError, "internal server error")
}

// respondServiceError maps service sentinels to status codes.
func (s *APIServer) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput),
		errors.Is(err, cards.ErrInvalidInput),
		errors.Is(err, wallet.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrUserExists):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrInvalidToken):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, wallet.ErrInsufficientFunds):
		respondError(w, http.StatusPaymentRequired, "Insufficient balance")
	default:
		s.internalError(w, r, "request failed", err)
	}
}

// decode reads a JSON body into dst and validates it. On failure it has
// already written a 400.
func (s *APIServer) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeBody(w, r, dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}

	if err := s.validate.Struct(dst); err != nil {
		respondError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}

	return true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}

	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s is invalid", fe.Field())
}
