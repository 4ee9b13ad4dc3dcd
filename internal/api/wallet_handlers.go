package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/IlyasAtabaev731/credx-wallet/internal/domain/models"
	"github.com/IlyasAtabaev731/credx-wallet/internal/services/wallet"
)

type transactionResponse struct {
	ID        int64     `json:"id"`
	Purpose   string    `json:"purpose"`
	Amount    float64   `json:"amount"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

func newTransactionResponse(t models.Transaction) transactionResponse {
	return transactionResponse{
		ID:        t.ID,
		Purpose:   t.Purpose,
		Amount:    t.Amount.InexactFloat64(),
		Type:      string(t.Kind),
		Status:    string(t.Status),
		CreatedAt: t.CreatedAt,
	}
}

type BalanceRequest struct {
	Balance *float64 `json:"balance" validate:"required"`
}

type BalanceResponse struct {
	Success bool    `json:"success"`
	Balance float64 `json:"balance"`
	Stale   bool    `json:"stale,omitempty"`
}

type TransactionRequest struct {
	Purpose string   `json:"purpose" validate:"required"`
	Amount  *float64 `json:"amount" validate:"required"`
	Type    string   `json:"type" validate:"required,oneof=income expense"`
	Status  string   `json:"status"`
}

type TransactionResponse struct {
	Success     bool                `json:"success"`
	Transaction transactionResponse `json:"transaction"`
}

type TransactionsResponse struct {
	Success      bool                  `json:"success"`
	Transactions []transactionResponse `json:"transactions"`
	Stale        bool                  `json:"stale,omitempty"`
}

type statsBody struct {
	Income float64 `json:"income"`
	Spent  float64 `json:"spent"`
}

type StatsResponse struct {
	Success bool      `json:"success"`
	Stats   statsBody `json:"stats"`
	Stale   bool      `json:"stale,omitempty"`
}

// OperationRequest is the body of every composite wallet operation. Only the
// counterparty field matching the operation is read.
type OperationRequest struct {
	Amount    *float64 `json:"amount" validate:"required,gt=0"`
	Recipient string   `json:"recipient"`
	From      string   `json:"from"`
	To        string   `json:"to"`
	Method    string   `json:"method"`
	Source    string   `json:"source"`
	Note      string   `json:"note"`
}

func (req OperationRequest) counterparty(kind wallet.OperationKind) string {
	switch kind {
	case wallet.OpSend:
		return req.Recipient
	case wallet.OpRequest:
		return req.From
	case wallet.OpTransfer:
		return req.To
	case wallet.OpTopUp:
		return req.Method
	case wallet.OpAddMoney:
		return req.Source
	}
	return ""
}

type OperationResponse struct {
	Success     bool                `json:"success"`
	Balance     float64             `json:"balance"`
	Transaction transactionResponse `json:"transaction"`
}

func (s *APIServer) balanceHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		balance, stale, err := s.wallet.Balance(r.Context(), identityFrom(r.Context()).UserID)
		if err != nil {
			s.respondServiceError(w, r, err)
			return
		}

		respondJSON(w, http.StatusOK, BalanceResponse{Success: true, Balance: balance.InexactFloat64(), Stale: stale})
	}
}

func (s *APIServer) setBalanceHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BalanceRequest
		if !s.decode(w, r, &req) {
			return
		}

		balance, err := s.wallet.SetBalance(r.Context(), identityFrom(r.Context()).UserID, *req.Balance)
		if err != nil {
			s.respondServiceError(w, r, err)
			return
		}

		respondJSON(w, http.StatusOK, BalanceResponse{Success: true, Balance: balance.InexactFloat64()})
	}
}

// transactionsHandler ignores an unknown type filter and lists every kind.
func (s *APIServer) transactionsHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		kind := models.Kind(query.Get("type"))
		if !kind.Valid() {
			kind = ""
		}
		limit, _ := strconv.Atoi(query.Get("limit"))

		list, stale, err := s.wallet.Transactions(r.Context(), identityFrom(r.Context()).UserID, kind, limit)
		if err != nil {
			s.respondServiceError(w, r, err)
			return
		}

		res := TransactionsResponse{Success: true, Transactions: make([]transactionResponse, 0, len(list)), Stale: stale}
		for _, t := range list {
			res.Transactions = append(res.Transactions, newTransactionResponse(t))
		}

		respondJSON(w, http.StatusOK, res)
	}
}

func (s *APIServer) addTransactionHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TransactionRequest
		if !s.decode(w, r, &req) {
			return
		}

		t, err := s.wallet.AddTransaction(r.Context(), identityFrom(r.Context()).UserID, wallet.TransactionInput{
			Purpose: req.Purpose,
			Amount:  *req.Amount,
			Kind:    models.Kind(req.Type),
			Status:  req.Status,
		})
		if err != nil {
			s.respondServiceError(w, r, err)
			return
		}

		respondJSON(w, http.StatusCreated, TransactionResponse{Success: true, Transaction: newTransactionResponse(t)})
	}
}

func (s *APIServer) statsHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, stale, err := s.wallet.Stats(r.Context(), identityFrom(r.Context()).UserID)
		if err != nil {
			s.respondServiceError(w, r, err)
			return
		}

		respondJSON(w, http.StatusOK, StatsResponse{
			Success: true,
			Stats: statsBody{
				Income: stats.Income.InexactFloat64(),
				Spent:  stats.Spent.InexactFloat64(),
			},
			Stale: stale,
		})
	}
}

func (s *APIServer) operationHandler(kind wallet.OperationKind) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		var req OperationRequest
		if !s.decode(w, r, &req) {
			return
		}

		receipt, err := s.wallet.Apply(r.Context(), identityFrom(r.Context()).UserID, wallet.Operation{
			Kind:         kind,
			Amount:       *req.Amount,
			Counterparty: req.counterparty(kind),
			Note:         req.Note,
		})
		if err != nil {
			s.respondServiceError(w, r, err)
			return
		}

		respondJSON(w, http.StatusOK, OperationResponse{
			Success:     true,
			Balance:     receipt.Balance.InexactFloat64(),
			Transaction: newTransactionResponse(receipt.Transaction),
		})
	}
}
