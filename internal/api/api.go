package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/IlyasAtabaev731/credx-wallet/internal/config"
	"github.com/IlyasAtabaev731/credx-wallet/internal/domain/models"
	"github.com/IlyasAtabaev731/credx-wallet/internal/lib/metrics"
	"github.com/IlyasAtabaev731/credx-wallet/internal/services/auth"
	"github.com/IlyasAtabaev731/credx-wallet/internal/services/cards"
	"github.com/IlyasAtabaev731/credx-wallet/internal/services/wallet"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

type Auth interface {
	Register(ctx context.Context, username, email, password string) (models.User, string, error)
	Login(ctx context.Context, username, password string) (models.User, string, error)
	Verify(ctx context.Context, token string) (auth.Identity, error)
	Logout(ctx context.Context, id auth.Identity) error
}

type Cards interface {
	Card(ctx context.Context, userID int64) (*models.Card, error)
	Save(ctx context.Context, userID int64, in cards.Input) (models.Card, bool, error)
	Delete(ctx context.Context, userID int64) error
}

type Wallet interface {
	Balance(ctx context.Context, userID int64) (decimal.Decimal, bool, error)
	SetBalance(ctx context.Context, userID int64, amount float64) (decimal.Decimal, error)
	Stats(ctx context.Context, userID int64) (models.Stats, bool, error)
	Transactions(ctx context.Context, userID int64, kind models.Kind, limit int) ([]models.Transaction, bool, error)
	AddTransaction(ctx context.Context, userID int64, in wallet.TransactionInput) (models.Transaction, error)
	Apply(ctx context.Context, userID int64, op wallet.Operation) (wallet.Receipt, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type APIServer struct {
	config   *config.Config
	logger   *slog.Logger
	server   *http.Server
	auth     Auth
	cards    Cards
	wallet   Wallet
	db       Pinger
	validate *validator.Validate
}

func New(config *config.Config, logger *slog.Logger, auth Auth, cards Cards, wallet Wallet, db Pinger) *APIServer {
	s := &APIServer{
		config: config,
		logger: logger,
		server: &http.Server{
			Addr:         config.ApiHost + ":" + strconv.Itoa(config.ApiPort),
			ReadTimeout:  config.HTTP.ReadTimeout,
			WriteTimeout: config.HTTP.WriteTimeout,
		},
		auth:     auth,
		cards:    cards,
		wallet:   wallet,
		db:       db,
		validate: newValidator(),
	}

	s.configureRouter()

	return s
}

func (s *APIServer) Start() error {
	s.logger.Info("Starting server", slog.String("addr", s.server.Addr))

	return s.server.ListenAndServe()
}

func (s *APIServer) MustStart() {
	err := s.Start()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		panic("Failed to start server: " + err.Error())
	}
}

func (s *APIServer) Stop(ctx context.Context) error {
	defer s.logger.Info("Server successfully stopped")
	return s.server.Shutdown(ctx)
}

// Handler is the fully wired router, middleware included.
func (s *APIServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *APIServer) configureRouter() {
	router := mux.NewRouter()
	router.Use(metrics.InstrumentHandler)
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "not found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.healthHandler()).Methods(http.MethodGet)

	api.HandleFunc("/auth/register", s.registerHandler()).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", s.loginHandler()).Methods(http.MethodPost)
	api.HandleFunc("/auth/verify", s.authenticate(s.verifyHandler())).Methods(http.MethodGet)
	api.HandleFunc("/auth/logout", s.authenticate(s.logoutHandler())).Methods(http.MethodPost)

	api.HandleFunc("/cards", s.authenticate(s.getCardHandler())).Methods(http.MethodGet)
	api.HandleFunc("/cards", s.authenticate(s.saveCardHandler())).Methods(http.MethodPost)
	api.HandleFunc("/cards", s.authenticate(s.deleteCardHandler())).Methods(http.MethodDelete)

	api.HandleFunc("/wallet/balance", s.authenticate(s.balanceHandler())).Methods(http.MethodGet)
	api.HandleFunc("/wallet/balance", s.authenticate(s.setBalanceHandler())).Methods(http.MethodPut)
	api.HandleFunc("/wallet/transactions", s.authenticate(s.transactionsHandler())).Methods(http.MethodGet)
	api.HandleFunc("/wallet/transactions", s.authenticate(s.addTransactionHandler())).Methods(http.MethodPost)
	api.HandleFunc("/wallet/stats", s.authenticate(s.statsHandler())).Methods(http.MethodGet)

	api.HandleFunc("/wallet/send", s.authenticate(s.operationHandler(wallet.OpSend))).Methods(http.MethodPost)
	api.HandleFunc("/wallet/request", s.authenticate(s.operationHandler(wallet.OpRequest))).Methods(http.MethodPost)
	api.HandleFunc("/wallet/transfer", s.authenticate(s.operationHandler(wallet.OpTransfer))).Methods(http.MethodPost)
	api.HandleFunc("/wallet/topup", s.authenticate(s.operationHandler(wallet.OpTopUp))).Methods(http.MethodPost)
	api.HandleFunc("/wallet/add-money", s.authenticate(s.operationHandler(wallet.OpAddMoney))).Methods(http.MethodPost)

	s.server.Handler = s.requestLogger(router)
}

type healthResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
}

func (s *APIServer) healthHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := s.db.Ping(ctx); err != nil {
			s.logger.Warn("health check failed", slog.String("error", err.Error()))
			respondError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}

		respondJSON(w, http.StatusOK, healthResponse{Success: true, Status: "ok"})
	}
}
