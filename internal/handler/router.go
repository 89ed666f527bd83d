package handler

import (
	"net/http"

	"github.com/Dan9191/transaction-service/internal/auth"
	"github.com/Dan9191/transaction-service/internal/middleware"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// NewRouter wires the routes. Everything under /api requires HMAC authentication.
// Request logging wraps the whole router so unmatched requests are logged too.
func NewRouter(h *Handler, authenticator *auth.Authenticator, log logrus.FieldLogger) http.Handler {
	r := mux.NewRouter()

	// Public routes
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	// Protected routes
	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.AuthMiddleware(authenticator, log))
	api.HandleFunc("/transactions", h.CreateTransaction).Methods(http.MethodPost)
	api.HandleFunc("/transactions/{transactionId}", h.GetTransaction).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{accountNumber}/transactions", h.AccountTransactions).Methods(http.MethodGet)

	return middleware.LoggingMiddleware(log)(r)
}
